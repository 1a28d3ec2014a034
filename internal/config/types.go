// Package config resolves, parses, validates, and persists qcvoice configuration.
package config

// Config is the fully materialized runtime configuration used by qcvoice.
// It is the only state that survives a process restart; session data never
// does.
type Config struct {
	Extraction ExtractionConfig
	ASR        ASRConfig
	Audio      AudioConfig
	Voice      VoiceConfig
	SynthCmd   CommandConfig
	Debug      DebugConfig
}

// ExtractionConfig points at the chat-completions endpoint used for
// structured extraction.
type ExtractionConfig struct {
	BaseURL   string
	Model     string
	APIKeyEnv string
	TimeoutMS int
}

// ASRConfig points at the speech-recognition HTTP service.
type ASRConfig struct {
	Endpoint     string
	Path         string
	HealthPath   string
	LanguageCode string
	TimeoutMS    int
}

// AudioConfig controls preferred and fallback input-source selection.
type AudioConfig struct {
	Input    string
	Fallback string
}

// VoiceConfig controls spoken guidance behavior.
type VoiceConfig struct {
	Enable             bool
	Rate               float64
	RepeatConfirmation bool
	PreSessionGuidance bool
}

// CommandConfig stores a raw command string and its parsed argv form.
type CommandConfig struct {
	Raw  string
	Argv []string
}

// DebugConfig controls optional debug artifact output.
type DebugConfig struct {
	EnableAudioDump bool
}

// Warning is a non-fatal parse/validation message.
type Warning struct {
	Line    int
	Message string
}
