package config

// Default returns the canonical runtime configuration used when no file is present.
func Default() Config {
	synth := "espeak-ng -s {rate}"

	return Config{
		Extraction: ExtractionConfig{
			BaseURL:   "http://127.0.0.1:8080/v1",
			Model:     "qwen2.5-7b-instruct",
			APIKeyEnv: "QCVOICE_API_KEY",
			TimeoutMS: 20000,
		},
		ASR: ASRConfig{
			Endpoint:     "http://127.0.0.1:9000",
			Path:         "/v1/asr",
			HealthPath:   "/v1/health/ready",
			LanguageCode: "zh-CN",
			TimeoutMS:    30000,
		},
		Audio: AudioConfig{
			Input:    "default",
			Fallback: "default",
		},
		Voice: VoiceConfig{
			Enable:             true,
			Rate:               1.0,
			RepeatConfirmation: true,
			PreSessionGuidance: true,
		},
		SynthCmd: CommandConfig{Raw: synth, Argv: mustSplitCommand(synth)},
		Debug:    DebugConfig{},
	}
}
