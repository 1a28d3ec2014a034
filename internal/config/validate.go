package config

import (
	"fmt"
	"strings"
)

// Validate enforces config invariants and returns non-fatal warnings.
func Validate(cfg Config) ([]Warning, error) {
	warnings := make([]Warning, 0)

	if strings.TrimSpace(cfg.Extraction.BaseURL) == "" {
		return nil, fmt.Errorf("extraction.base_url must not be empty")
	}
	if strings.TrimSpace(cfg.Extraction.Model) == "" {
		return nil, fmt.Errorf("extraction.model must not be empty")
	}
	if cfg.Extraction.TimeoutMS < 0 {
		return nil, fmt.Errorf("extraction.timeout_ms must be >= 0")
	}

	if strings.TrimSpace(cfg.ASR.Endpoint) == "" {
		return nil, fmt.Errorf("asr.endpoint must not be empty")
	}
	if !strings.HasPrefix(strings.TrimSpace(cfg.ASR.Path), "/") {
		return nil, fmt.Errorf("asr.path must start with '/'")
	}
	if !strings.HasPrefix(strings.TrimSpace(cfg.ASR.HealthPath), "/") {
		return nil, fmt.Errorf("asr.health_path must start with '/'")
	}
	if strings.TrimSpace(cfg.ASR.LanguageCode) == "" {
		return nil, fmt.Errorf("asr.language_code must not be empty")
	}
	if cfg.ASR.TimeoutMS < 0 {
		return nil, fmt.Errorf("asr.timeout_ms must be >= 0")
	}

	if cfg.Voice.Rate < 0.25 || cfg.Voice.Rate > 4.0 {
		return nil, fmt.Errorf("voice.rate must be within [0.25, 4.0]")
	}
	if cfg.Voice.Enable && len(cfg.SynthCmd.Argv) == 0 {
		return nil, fmt.Errorf("synth_cmd must not be empty when voice.enable=true")
	}

	if strings.TrimSpace(cfg.Extraction.APIKeyEnv) == "" {
		warnings = append(warnings, Warning{Message: "extraction.api_key_env is empty; requests are sent unauthenticated"})
	}

	return warnings, nil
}
