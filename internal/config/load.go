package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Loaded captures resolved config path, parsed values, and non-fatal warnings.
type Loaded struct {
	Path     string
	Config   Config
	Warnings []Warning
	Exists   bool
}

// Load resolves, reads, parses, and validates the runtime configuration.
func Load(explicitPath string) (Loaded, error) {
	resolvedPath, err := ResolvePath(explicitPath)
	if err != nil {
		return Loaded{}, err
	}

	base := Default()
	content, err := os.ReadFile(resolvedPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Loaded{
				Path:   resolvedPath,
				Config: base,
				Warnings: []Warning{{
					Message: fmt.Sprintf("config file %q not found; using defaults", resolvedPath),
				}},
				Exists: false,
			}, nil
		}
		return Loaded{}, fmt.Errorf("read config %q: %w", resolvedPath, err)
	}

	cfg, warnings, err := Parse(string(content), base)
	if err != nil {
		return Loaded{}, fmt.Errorf("parse config %q: %w", resolvedPath, err)
	}

	return Loaded{
		Path:     resolvedPath,
		Config:   cfg,
		Warnings: warnings,
		Exists:   true,
	}, nil
}

// savePayload mirrors the on-disk JSONC schema for serialization.
type savePayload struct {
	Extraction saveExtraction `json:"extraction"`
	ASR        saveASR        `json:"asr"`
	Audio      saveAudio      `json:"audio"`
	Voice      saveVoice      `json:"voice"`
	SynthCmd   string         `json:"synth_cmd"`
	Debug      saveDebug      `json:"debug"`
}

type saveExtraction struct {
	BaseURL   string `json:"base_url"`
	Model     string `json:"model"`
	APIKeyEnv string `json:"api_key_env"`
	TimeoutMS int    `json:"timeout_ms"`
}

type saveASR struct {
	Endpoint     string `json:"endpoint"`
	Path         string `json:"path"`
	HealthPath   string `json:"health_path"`
	LanguageCode string `json:"language_code"`
	TimeoutMS    int    `json:"timeout_ms"`
}

type saveAudio struct {
	Input    string `json:"input"`
	Fallback string `json:"fallback"`
}

type saveVoice struct {
	Enable             bool    `json:"enable"`
	Rate               float64 `json:"rate"`
	RepeatConfirmation bool    `json:"repeat_confirmation"`
	PreSessionGuidance bool    `json:"pre_session_guidance"`
}

type saveDebug struct {
	AudioDump bool `json:"audio_dump"`
}

// Save validates cfg and writes it to path atomically. The written file
// round-trips through Load.
func Save(path string, cfg Config) error {
	if _, err := Validate(cfg); err != nil {
		return err
	}

	payload := savePayload{
		Extraction: saveExtraction{
			BaseURL:   cfg.Extraction.BaseURL,
			Model:     cfg.Extraction.Model,
			APIKeyEnv: cfg.Extraction.APIKeyEnv,
			TimeoutMS: cfg.Extraction.TimeoutMS,
		},
		ASR: saveASR{
			Endpoint:     cfg.ASR.Endpoint,
			Path:         cfg.ASR.Path,
			HealthPath:   cfg.ASR.HealthPath,
			LanguageCode: cfg.ASR.LanguageCode,
			TimeoutMS:    cfg.ASR.TimeoutMS,
		},
		Audio: saveAudio{
			Input:    cfg.Audio.Input,
			Fallback: cfg.Audio.Fallback,
		},
		Voice: saveVoice{
			Enable:             cfg.Voice.Enable,
			Rate:               cfg.Voice.Rate,
			RepeatConfirmation: cfg.Voice.RepeatConfirmation,
			PreSessionGuidance: cfg.Voice.PreSessionGuidance,
		},
		SynthCmd: cfg.SynthCmd.Raw,
		Debug:    saveDebug{AudioDump: cfg.Debug.EnableAudioDump},
	}

	encoded, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	encoded = append([]byte("// qcvoice configuration\n"), encoded...)
	encoded = append(encoded, '\n')

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, encoded, 0o644); err != nil {
		return fmt.Errorf("write config %q: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace config %q: %w", path, err)
	}
	return nil
}
