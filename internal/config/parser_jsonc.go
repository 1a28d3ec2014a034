package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Overlay structs use pointer fields so that absent keys leave the base
// configuration untouched.
type jsoncConfig struct {
	Extraction *jsoncExtraction `json:"extraction"`
	ASR        *jsoncASR        `json:"asr"`
	Audio      *jsoncAudio      `json:"audio"`
	Voice      *jsoncVoice      `json:"voice"`
	SynthCmd   *string          `json:"synth_cmd"`
	Debug      *jsoncDebug      `json:"debug"`
}

type jsoncExtraction struct {
	BaseURL   *string `json:"base_url"`
	Model     *string `json:"model"`
	APIKeyEnv *string `json:"api_key_env"`
	TimeoutMS *int    `json:"timeout_ms"`
}

type jsoncASR struct {
	Endpoint     *string `json:"endpoint"`
	Path         *string `json:"path"`
	HealthPath   *string `json:"health_path"`
	LanguageCode *string `json:"language_code"`
	TimeoutMS    *int    `json:"timeout_ms"`
}

type jsoncAudio struct {
	Input    *string `json:"input"`
	Fallback *string `json:"fallback"`
}

type jsoncVoice struct {
	Enable             *bool    `json:"enable"`
	Rate               *float64 `json:"rate"`
	RepeatConfirmation *bool    `json:"repeat_confirmation"`
	PreSessionGuidance *bool    `json:"pre_session_guidance"`
}

type jsoncDebug struct {
	AudioDump *bool `json:"audio_dump"`
}

func parseJSONC(content string, base Config) (Config, []Warning, error) {
	normalized, err := normalizeJSONC(content)
	if err != nil {
		return Config{}, nil, err
	}

	decoder := json.NewDecoder(strings.NewReader(normalized))
	decoder.DisallowUnknownFields()

	var payload jsoncConfig
	if err := decoder.Decode(&payload); err != nil {
		return Config{}, nil, wrapJSONDecodeError(normalized, err)
	}
	if err := ensureSingleJSONValue(decoder); err != nil {
		return Config{}, nil, wrapJSONDecodeError(normalized, err)
	}

	cfg := base
	if err := payload.applyTo(&cfg); err != nil {
		return Config{}, nil, err
	}

	warnings, err := Validate(cfg)
	if err != nil {
		return Config{}, nil, err
	}
	return cfg, warnings, nil
}

func (payload jsoncConfig) applyTo(cfg *Config) error {
	if payload.Extraction != nil {
		if payload.Extraction.BaseURL != nil {
			cfg.Extraction.BaseURL = strings.TrimSpace(*payload.Extraction.BaseURL)
		}
		if payload.Extraction.Model != nil {
			cfg.Extraction.Model = strings.TrimSpace(*payload.Extraction.Model)
		}
		if payload.Extraction.APIKeyEnv != nil {
			cfg.Extraction.APIKeyEnv = strings.TrimSpace(*payload.Extraction.APIKeyEnv)
		}
		if payload.Extraction.TimeoutMS != nil {
			cfg.Extraction.TimeoutMS = *payload.Extraction.TimeoutMS
		}
	}

	if payload.ASR != nil {
		if payload.ASR.Endpoint != nil {
			cfg.ASR.Endpoint = strings.TrimSpace(*payload.ASR.Endpoint)
		}
		if payload.ASR.Path != nil {
			cfg.ASR.Path = strings.TrimSpace(*payload.ASR.Path)
		}
		if payload.ASR.HealthPath != nil {
			cfg.ASR.HealthPath = strings.TrimSpace(*payload.ASR.HealthPath)
		}
		if payload.ASR.LanguageCode != nil {
			cfg.ASR.LanguageCode = strings.TrimSpace(*payload.ASR.LanguageCode)
		}
		if payload.ASR.TimeoutMS != nil {
			cfg.ASR.TimeoutMS = *payload.ASR.TimeoutMS
		}
	}

	if payload.Audio != nil {
		if payload.Audio.Input != nil {
			cfg.Audio.Input = *payload.Audio.Input
		}
		if payload.Audio.Fallback != nil {
			cfg.Audio.Fallback = *payload.Audio.Fallback
		}
	}

	if payload.Voice != nil {
		if payload.Voice.Enable != nil {
			cfg.Voice.Enable = *payload.Voice.Enable
		}
		if payload.Voice.Rate != nil {
			cfg.Voice.Rate = *payload.Voice.Rate
		}
		if payload.Voice.RepeatConfirmation != nil {
			cfg.Voice.RepeatConfirmation = *payload.Voice.RepeatConfirmation
		}
		if payload.Voice.PreSessionGuidance != nil {
			cfg.Voice.PreSessionGuidance = *payload.Voice.PreSessionGuidance
		}
	}

	if payload.SynthCmd != nil {
		raw := *payload.SynthCmd
		argv, err := splitCommand(raw)
		if err != nil {
			return fmt.Errorf("invalid synth_cmd: %w", err)
		}
		cfg.SynthCmd = CommandConfig{Raw: raw, Argv: argv}
	}

	if payload.Debug != nil && payload.Debug.AudioDump != nil {
		cfg.Debug.EnableAudioDump = *payload.Debug.AudioDump
	}

	return nil
}

func normalizeJSONC(content string) (string, error) {
	withoutComments, err := stripJSONCComments(content)
	if err != nil {
		return "", err
	}
	return stripJSONCTrailingCommas(withoutComments), nil
}

func stripJSONCComments(content string) (string, error) {
	var out strings.Builder
	out.Grow(len(content))

	inString := false
	escape := false
	lineComment := false
	blockComment := false

	for i := 0; i < len(content); i++ {
		ch := content[i]

		if lineComment {
			if ch == '\n' || ch == '\r' {
				lineComment = false
				out.WriteByte(ch)
				continue
			}
			out.WriteByte(' ')
			continue
		}

		if blockComment {
			if ch == '*' && i+1 < len(content) && content[i+1] == '/' {
				blockComment = false
				out.WriteString("  ")
				i++
				continue
			}
			if ch == '\n' || ch == '\r' || ch == '\t' {
				out.WriteByte(ch)
			} else {
				out.WriteByte(' ')
			}
			continue
		}

		if inString {
			out.WriteByte(ch)
			if escape {
				escape = false
				continue
			}
			if ch == '\\' {
				escape = true
				continue
			}
			if ch == '"' {
				inString = false
			}
			continue
		}

		if ch == '"' {
			inString = true
			out.WriteByte(ch)
			continue
		}

		if ch == '/' && i+1 < len(content) {
			next := content[i+1]
			if next == '/' {
				lineComment = true
				out.WriteString("  ")
				i++
				continue
			}
			if next == '*' {
				blockComment = true
				out.WriteString("  ")
				i++
				continue
			}
		}

		out.WriteByte(ch)
	}

	if blockComment {
		return "", fmt.Errorf("unterminated block comment in JSONC")
	}

	return out.String(), nil
}

func stripJSONCTrailingCommas(content string) string {
	var out strings.Builder
	out.Grow(len(content))

	inString := false
	escape := false

	for i := 0; i < len(content); i++ {
		ch := content[i]

		if inString {
			out.WriteByte(ch)
			if escape {
				escape = false
				continue
			}
			if ch == '\\' {
				escape = true
				continue
			}
			if ch == '"' {
				inString = false
			}
			continue
		}

		if ch == '"' {
			inString = true
			out.WriteByte(ch)
			continue
		}

		if ch == ',' {
			j := i + 1
			for j < len(content) && isJSONWhitespace(content[j]) {
				j++
			}
			if j < len(content) && (content[j] == '}' || content[j] == ']') {
				continue
			}
		}

		out.WriteByte(ch)
	}

	return out.String()
}

func isJSONWhitespace(ch byte) bool {
	switch ch {
	case ' ', '\n', '\r', '\t':
		return true
	default:
		return false
	}
}

func ensureSingleJSONValue(decoder *json.Decoder) error {
	var extra struct{}
	err := decoder.Decode(&extra)
	if errors.Is(err, io.EOF) {
		return nil
	}
	if err == nil {
		return fmt.Errorf("multiple JSON values are not allowed")
	}
	return err
}

func wrapJSONDecodeError(content string, err error) error {
	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		line, col := offsetToLineCol(content, syntaxErr.Offset)
		return fmt.Errorf("line %d column %d: %w", line, col, err)
	}

	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		line, col := offsetToLineCol(content, typeErr.Offset)
		return fmt.Errorf("line %d column %d: %w", line, col, err)
	}

	return err
}

func offsetToLineCol(content string, offset int64) (int, int) {
	if offset <= 0 {
		return 1, 1
	}

	limit := int(offset)
	if limit > len(content) {
		limit = len(content)
	}

	line := 1
	col := 1
	for i := 0; i < limit-1; i++ {
		if content[i] == '\n' {
			line++
			col = 1
			continue
		}
		col++
	}
	return line, col
}
