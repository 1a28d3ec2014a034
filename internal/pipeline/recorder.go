// Package pipeline wires microphone capture and speech recognition into the
// session capture boundary.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"qcvoice/internal/asr"
	"qcvoice/internal/audio"
	"qcvoice/internal/config"
	"qcvoice/internal/logging"
	"qcvoice/internal/session"
)

// Recognizer converts captured PCM into a transcript.
type Recognizer interface {
	Transcribe(ctx context.Context, pcm []byte) (string, error)
}

// captureClient is the slice of audio.Capture the recorder depends on.
type captureClient interface {
	Chunks() <-chan []byte
	Stop() error
	BytesCaptured() int64
}

// Recorder owns one capture -> recognition cycle at a time and implements
// the session capture boundary.
type Recorder struct {
	cfg        config.Config
	logger     *slog.Logger
	recognizer Recognizer

	selectDevice func(ctx context.Context, input, fallback string) (audio.Selection, error)
	startCapture func(ctx context.Context, device audio.Device) (captureClient, error)

	mu          sync.Mutex
	started     bool
	selection   audio.Selection
	capture     captureClient
	pcm         []byte
	collectDone chan struct{}
}

// NewRecorder constructs a recorder bound to the real audio stack.
func NewRecorder(cfg config.Config, recognizer Recognizer, logger *slog.Logger) *Recorder {
	return &Recorder{
		cfg:          cfg,
		logger:       logger,
		recognizer:   recognizer,
		selectDevice: audio.SelectDevice,
		startCapture: func(ctx context.Context, device audio.Device) (captureClient, error) {
			return audio.StartCapture(ctx, device)
		},
	}
}

// Start resolves the input device and begins streaming PCM into the buffer.
func (r *Recorder) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.started {
		return fmt.Errorf("recorder already started")
	}

	selection, err := r.selectDevice(ctx, r.cfg.Audio.Input, r.cfg.Audio.Fallback)
	if err != nil {
		return err
	}
	r.selection = selection
	if selection.Warning != "" {
		r.logWarn(selection.Warning)
	}

	capture, err := r.startCapture(ctx, selection.Device)
	if err != nil {
		return err
	}

	r.capture = capture
	r.pcm = nil
	r.collectDone = make(chan struct{})
	r.started = true

	go r.collectLoop(capture, r.collectDone)
	return nil
}

// Stop ends capture, submits the buffered audio for recognition, and
// returns the final transcript.
func (r *Recorder) Stop(ctx context.Context) (string, error) {
	r.mu.Lock()
	started := r.started
	capture := r.capture
	done := r.collectDone
	r.mu.Unlock()

	if !started || capture == nil {
		return "", session.ErrCaptureUnavailable
	}

	_ = capture.Stop()
	<-done

	r.mu.Lock()
	pcm := r.pcm
	bytesCaptured := capture.BytesCaptured()
	device := r.selection.Device
	r.reset()
	r.mu.Unlock()

	r.writeDebugAudio(pcm)
	r.logDebug("capture stopped",
		"device", describeDevice(device),
		"bytes_captured", bytesCaptured,
	)

	if r.recognizer == nil {
		return "", session.ErrCaptureUnavailable
	}
	transcript, err := r.recognizer.Transcribe(ctx, pcm)
	if err != nil {
		return "", fmt.Errorf("recognize captured audio: %w", err)
	}
	return transcript, nil
}

// Cancel stops capture immediately and discards buffered audio.
func (r *Recorder) Cancel(_ context.Context) error {
	r.mu.Lock()
	capture := r.capture
	done := r.collectDone
	r.mu.Unlock()

	if capture == nil {
		return nil
	}

	_ = capture.Stop()
	if done != nil {
		<-done
	}

	r.mu.Lock()
	pcm := r.pcm
	r.reset()
	r.mu.Unlock()

	r.writeDebugAudio(pcm)
	return nil
}

// collectLoop drains capture chunks into the PCM buffer until the stream closes.
func (r *Recorder) collectLoop(capture captureClient, done chan struct{}) {
	defer close(done)
	for chunk := range capture.Chunks() {
		if len(chunk) == 0 {
			continue
		}
		r.mu.Lock()
		r.pcm = append(r.pcm, chunk...)
		r.mu.Unlock()
	}
}

// reset clears per-cycle state; callers hold r.mu.
func (r *Recorder) reset() {
	r.started = false
	r.capture = nil
	r.pcm = nil
	r.collectDone = nil
}

// describeDevice formats device metadata for logs.
func describeDevice(device audio.Device) string {
	description := strings.TrimSpace(device.Description)
	id := strings.TrimSpace(device.ID)
	if description == "" {
		return id
	}
	if id == "" {
		return description
	}
	return fmt.Sprintf("%s (%s)", description, id)
}

// writeDebugAudio dumps buffered PCM as WAV when debug.audio_dump is enabled.
func (r *Recorder) writeDebugAudio(pcm []byte) {
	if !r.cfg.Debug.EnableAudioDump || len(pcm) == 0 {
		return
	}

	path, err := createDebugFilePath("audio", "wav")
	if err != nil {
		r.logWarn(fmt.Sprintf("unable to create debug audio dump: %v", err))
		return
	}
	if err := os.WriteFile(path, asr.EncodeWAV(pcm, asr.SampleRate, 1), 0o600); err != nil {
		r.logWarn(fmt.Sprintf("unable to write debug audio dump: %v", err))
	}
}

// createDebugFilePath allocates a timestamped artifact path under the state dir.
func createDebugFilePath(prefix string, extension string) (string, error) {
	stateDir, err := logging.StateDir()
	if err != nil {
		return "", err
	}
	debugDir := filepath.Join(stateDir, "debug")
	if err := os.MkdirAll(debugDir, 0o700); err != nil {
		return "", fmt.Errorf("create debug dir: %w", err)
	}

	timestamp := time.Now().Format("20060102-150405.000")
	return filepath.Join(debugDir, fmt.Sprintf("%s-%s.%s", prefix, timestamp, extension)), nil
}

func (r *Recorder) logWarn(message string) {
	if r.logger != nil {
		r.logger.Warn(message)
	}
}

func (r *Recorder) logDebug(msg string, args ...any) {
	if r.logger != nil {
		r.logger.Debug(msg, args...)
	}
}
