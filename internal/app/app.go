// Package app dispatches parsed CLI commands to the session daemon or to a
// running daemon's control socket.
package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"syscall"
	"time"

	"qcvoice/internal/asr"
	"qcvoice/internal/audio"
	"qcvoice/internal/cli"
	"qcvoice/internal/config"
	"qcvoice/internal/doctor"
	"qcvoice/internal/extract"
	"qcvoice/internal/ipc"
	"qcvoice/internal/logging"
	"qcvoice/internal/pipeline"
	"qcvoice/internal/record"
	"qcvoice/internal/session"
	"qcvoice/internal/store"
	"qcvoice/internal/synth"
	"qcvoice/internal/version"
)

type Runner struct {
	Stdout io.Writer
	Stderr io.Writer
	Logger *slog.Logger
}

func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	r := Runner{Stdout: stdout, Stderr: stderr}
	return r.Execute(ctx, args)
}

func (r Runner) Execute(ctx context.Context, args []string) int {
	parsed, err := cli.Parse(args)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n\n", err)
		fmt.Fprint(r.Stderr, cli.HelpText("qcvoice"))
		return 2
	}

	if parsed.ShowHelp {
		fmt.Fprint(r.Stdout, cli.HelpText("qcvoice"))
		return 0
	}

	if parsed.Command == cli.CommandVersion {
		fmt.Fprintln(r.Stdout, version.String())
		return 0
	}

	logRuntime, err := logging.New()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: setup logging: %v\n", err)
		return 1
	}
	defer func() { _ = logRuntime.Close() }()

	logger := r.Logger
	if logger == nil {
		logger = logRuntime.Logger
	}

	cfgLoaded, err := config.Load(parsed.ConfigPath)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		logger.Error("load config failed", "error", err.Error())
		return 1
	}
	for _, w := range cfgLoaded.Warnings {
		msg := w.Message
		if w.Line > 0 {
			msg = fmt.Sprintf("line %d: %s", w.Line, w.Message)
		}
		fmt.Fprintf(r.Stderr, "warning: %s\n", msg)
		logger.Warn("config warning", "line", w.Line, "message", w.Message)
	}

	logger.Info("command start",
		"command", parsed.Command,
		"config", cfgLoaded.Path,
		"log", logRuntime.Path,
	)

	switch parsed.Command {
	case cli.CommandDoctor:
		report := doctor.Run(cfgLoaded)
		fmt.Fprintln(r.Stdout, report.String())
		if report.OK() {
			return 0
		}
		return 1
	case cli.CommandDevices:
		return r.commandDevices(ctx)
	case cli.CommandVoice:
		return r.commandVoice(cfgLoaded, parsed.VoiceEnable, logger)
	case cli.CommandStart:
		return r.commandStart(ctx, parsed.Batch, cfgLoaded.Config, logger)
	case cli.CommandCapture, cli.CommandStop, cli.CommandConfirm,
		cli.CommandReset, cli.CommandCancel, cli.CommandHistory:
		return r.forwardOrFail(ctx, ipc.Request{Command: string(parsed.Command)})
	case cli.CommandText:
		return r.forwardOrFail(ctx, ipc.Request{Command: "text", Text: parsed.Text})
	case cli.CommandStatus:
		return r.commandStatus(ctx)
	default:
		fmt.Fprintf(r.Stderr, "error: unsupported command %q\n", parsed.Command)
		return 2
	}
}

func (r Runner) commandDevices(ctx context.Context) int {
	devices, err := audio.ListDevices(ctx)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	if len(devices) == 0 {
		fmt.Fprintln(r.Stdout, "no audio devices found")
		return 1
	}

	for _, device := range devices {
		defaultMark := " "
		if device.Default {
			defaultMark = "*"
		}
		availability := "yes"
		if !device.Available {
			availability = "no"
		}
		muted := "no"
		if device.Muted {
			muted = "yes"
		}
		fmt.Fprintf(
			r.Stdout,
			"%s id=%s | description=%q | state=%s | available=%s | muted=%s\n",
			defaultMark,
			device.ID,
			device.Description,
			device.State,
			availability,
			muted,
		)
	}

	return 0
}

// commandVoice persists the voice-guidance setting; it takes effect on the
// next session start.
func (r Runner) commandVoice(cfgLoaded config.Loaded, enable bool, logger *slog.Logger) int {
	cfg := cfgLoaded.Config
	cfg.Voice.Enable = enable

	if err := config.Save(cfgLoaded.Path, cfg); err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	mode := "off"
	if enable {
		mode = "on"
	}
	fmt.Fprintf(r.Stdout, "voice guidance %s (saved to %s)\n", mode, cfgLoaded.Path)
	logger.Info("voice setting saved", "enable", enable, "path", cfgLoaded.Path)
	return 0
}

func (r Runner) commandStatus(ctx context.Context) int {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		fmt.Fprintln(r.Stdout, "idle (no session)")
		return 0
	}

	resp, handled, err := tryForward(ctx, socketPath, ipc.Request{Command: "status"})
	if !handled {
		fmt.Fprintln(r.Stdout, "idle (no session)")
		return 0
	}
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	state := resp.State
	if state == "" {
		state = "idle"
	}
	fmt.Fprintln(r.Stdout, state)
	if resp.Progress != nil {
		fmt.Fprintf(r.Stdout, "progress: %d/%d dimensions (%d%%)\n",
			resp.Progress.Completed, resp.Progress.Total, resp.Progress.Percentage)
		fmt.Fprintf(r.Stdout, "total score: %d (grade %s)\n", resp.Score, resp.Grade)
	}
	return 0
}

func (r Runner) forwardOrFail(ctx context.Context, req ipc.Request) int {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	resp, handled, err := tryForward(ctx, socketPath, req)
	if !handled {
		fmt.Fprintln(r.Stderr, "error: no active inspection session; run 'qcvoice start' first")
		return 1
	}
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	if resp.Message != "" {
		fmt.Fprintln(r.Stdout, resp.Message)
	}
	return 0
}

// commandStart acquires the daemon socket, builds the session stack, and
// serves control commands until the session terminates.
func (r Runner) commandStart(ctx context.Context, batchArgs cli.BatchArgs, cfg config.Config, logger *slog.Logger) int {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	listener, err := ipc.Acquire(ctx, socketPath, 180*time.Millisecond, 8, nil)
	if err != nil {
		if errors.Is(err, ipc.ErrAlreadyRunning) {
			fmt.Fprintln(r.Stderr, "error: an inspection session is already running; confirm or cancel it first")
			return 1
		}
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	defer func() {
		_ = listener.Close()
		_ = os.Remove(socketPath)
	}()

	controller := r.buildController(cfg, logger)
	defer controller.Close()

	// The mirror answers status and history reads; everything else mutates
	// through the controller.
	mirror := store.New(controller)
	defer mirror.Close()

	serverCtx, serverCancel := context.WithCancel(ctx)
	defer serverCancel()

	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- ipc.Serve(serverCtx, listener, mirror.Handler(controller))
	}()

	batch := record.Batch{
		ID:       batchArgs.Number,
		Number:   batchArgs.Number,
		Product:  batchArgs.Product,
		Quantity: batchArgs.Quantity,
		Unit:     batchArgs.Unit,
		Source:   batchArgs.Source,
	}
	controller.StartSession(ctx, batch)
	fmt.Fprintf(r.Stdout, "inspection session started for batch %s (%s)\n", batch.Number, batch.Product)
	fmt.Fprintf(r.Stdout, "control socket: %s\n", socketPath)

	select {
	case <-ctx.Done():
		controller.CancelSession(context.Background())
		fmt.Fprintln(r.Stdout, "session cancelled")
	case <-controller.Terminated():
		fmt.Fprintln(r.Stdout, "session ended")
	}

	serverCancel()
	if serverErr := <-serverErrCh; serverErr != nil {
		fmt.Fprintf(r.Stderr, "error: control server failed: %v\n", serverErr)
		return 1
	}
	return 0
}

// buildController wires the extraction, capture, synthesis, and submission
// adapters into a session controller.
func (r Runner) buildController(cfg config.Config, logger *slog.Logger) *session.Controller {
	remote := extract.NewClient(extract.ClientConfig{
		BaseURL: cfg.Extraction.BaseURL,
		Model:   cfg.Extraction.Model,
		APIKey:  apiKeyFromEnv(cfg.Extraction.APIKeyEnv),
		Timeout: time.Duration(cfg.Extraction.TimeoutMS) * time.Millisecond,
	}, logger)
	extractor := &extract.Resilient{
		Primary:  remote,
		Fallback: extract.Heuristic{},
		Logger:   logger,
	}

	recognizer := asr.NewClient(asr.Config{
		Endpoint:     cfg.ASR.Endpoint,
		Path:         cfg.ASR.Path,
		LanguageCode: cfg.ASR.LanguageCode,
		Timeout:      time.Duration(cfg.ASR.TimeoutMS) * time.Millisecond,
	})
	capturer := pipeline.NewRecorder(cfg, recognizer, logger)

	var speaker session.Speaker
	if cfg.Voice.Enable {
		commandSpeaker, err := synth.NewCommandSpeaker(cfg.SynthCmd.Argv)
		if err != nil {
			logger.Warn("voice guidance disabled", "error", err.Error())
		} else {
			speaker = commandSpeaker
		}
	}

	opts := session.Options{
		VoiceEnabled:       cfg.Voice.Enable && speaker != nil,
		SpeechRate:         cfg.Voice.Rate,
		RepeatConfirmation: cfg.Voice.RepeatConfirmation,
		PreSessionGuidance: cfg.Voice.PreSessionGuidance,
	}

	return session.NewController(logger, capturer, speaker, extractor, r.recordSink(), opts)
}

// recordSink prints confirmed inspection records as JSON on stdout.
func (r Runner) recordSink() session.Submitter {
	return session.SubmitFunc(func(_ context.Context, finalized session.Finalized) error {
		encoded, err := json.MarshalIndent(finalized, "", "  ")
		if err != nil {
			return fmt.Errorf("encode inspection record: %w", err)
		}
		fmt.Fprintln(r.Stdout, string(encoded))
		return nil
	})
}

func apiKeyFromEnv(env string) string {
	if strings.TrimSpace(env) == "" {
		return ""
	}
	return strings.TrimSpace(os.Getenv(env))
}

func tryForward(ctx context.Context, socketPath string, req ipc.Request) (ipc.Response, bool, error) {
	resp, err := ipc.Send(ctx, socketPath, req, 220*time.Millisecond)
	if err == nil {
		if resp.OK {
			return resp, true, nil
		}
		return resp, true, errors.New(resp.Error)
	}

	if isSocketMissing(err) {
		return ipc.Response{}, false, nil
	}
	if isConnectionRefused(err) {
		return ipc.Response{}, false, nil
	}

	return ipc.Response{}, true, fmt.Errorf("forward command %q: %w", req.Command, err)
}

func isSocketMissing(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, os.ErrNotExist) ||
		strings.Contains(err.Error(), "no such file or directory")
}

func isConnectionRefused(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, syscall.ECONNREFUSED)
}
