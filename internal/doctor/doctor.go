// Package doctor runs runtime readiness diagnostics for config, extraction,
// recognition, synthesis, and audio.
package doctor

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"strings"
	"time"

	"qcvoice/internal/audio"
	"qcvoice/internal/config"
)

// Check is one doctor assertion result.
type Check struct {
	Name    string
	Pass    bool
	Message string
}

// Report is the full doctor output contract.
type Report struct {
	Checks []Check
}

// OK returns true when all checks pass.
func (r Report) OK() bool {
	for _, check := range r.Checks {
		if !check.Pass {
			return false
		}
	}
	return true
}

// String renders the report as user-facing text output.
func (r Report) String() string {
	var b strings.Builder
	for _, check := range r.Checks {
		status := "OK"
		if !check.Pass {
			status = "FAIL"
		}
		b.WriteString(fmt.Sprintf("[%s] %s: %s\n", status, check.Name, check.Message))
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// Run executes environment/config/runtime checks for a loaded config.
func Run(cfg config.Loaded) Report {
	checks := []Check{}

	checks = append(checks, Check{
		Name:    "config",
		Pass:    true,
		Message: fmt.Sprintf("loaded %q", cfg.Path),
	})

	checks = append(checks, checkExtractionKey(cfg.Config.Extraction))
	checks = append(checks, checkHTTPReady("asr.ready", cfg.Config.ASR.Endpoint, cfg.Config.ASR.HealthPath))

	if cfg.Config.Voice.Enable {
		checks = append(checks, checkCommand(cfg.Config.SynthCmd.Argv, "synth_cmd"))
	}

	checks = append(checks, checkAudioSelection(cfg.Config))

	return Report{Checks: checks}
}

// checkExtractionKey verifies the configured API key variable is populated.
func checkExtractionKey(cfg config.ExtractionConfig) Check {
	name := "extraction.api_key"
	env := strings.TrimSpace(cfg.APIKeyEnv)
	if env == "" {
		return Check{Name: name, Pass: true, Message: "no api_key_env configured; requests are unauthenticated"}
	}
	if strings.TrimSpace(os.Getenv(env)) == "" {
		return Check{Name: name, Pass: false, Message: fmt.Sprintf("environment variable %s is empty", env)}
	}
	return Check{Name: name, Pass: true, Message: fmt.Sprintf("%s is set", env)}
}

// checkCommand validates that argv contains a runnable command.
func checkCommand(argv []string, name string) Check {
	if len(argv) == 0 {
		return Check{Name: name, Pass: false, Message: "command is empty"}
	}
	return checkBinary(argv[0], fmt.Sprintf("%s command is available", name))
}

// checkBinary validates that a binary exists in PATH.
func checkBinary(bin string, okMsg string) Check {
	path, err := exec.LookPath(bin)
	if err != nil {
		return Check{Name: bin, Pass: false, Message: fmt.Sprintf("binary not found in PATH: %s", bin)}
	}
	return Check{Name: bin, Pass: true, Message: fmt.Sprintf("found at %s (%s)", path, okMsg)}
}

// checkAudioSelection runs live device selection to surface selection/fallback issues.
func checkAudioSelection(cfg config.Config) Check {
	selection, err := audio.SelectDevice(context.Background(), cfg.Audio.Input, cfg.Audio.Fallback)
	if err != nil {
		return Check{Name: "audio.device", Pass: false, Message: err.Error()}
	}
	message := fmt.Sprintf("selected %q", selection.Device.ID)
	if selection.Warning != "" {
		message = message + " (" + selection.Warning + ")"
	}
	return Check{Name: "audio.device", Pass: true, Message: message}
}

// checkHTTPReady probes a service health endpoint.
func checkHTTPReady(name string, endpoint string, healthPath string) Check {
	base := strings.TrimSpace(endpoint)
	if base == "" {
		return Check{Name: name, Pass: false, Message: "endpoint is empty"}
	}
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}

	url := strings.TrimRight(base, "/") + healthPath
	client := http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(url)
	if err != nil {
		return Check{Name: name, Pass: false, Message: fmt.Sprintf("request failed: %v", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Check{Name: name, Pass: false, Message: fmt.Sprintf("HTTP %d from %s", resp.StatusCode, url)}
	}
	return Check{Name: name, Pass: true, Message: fmt.Sprintf("ready at %s", url)}
}
