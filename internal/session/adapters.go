package session

import (
	"context"
	"errors"
)

var (
	// ErrNoActiveSession indicates an operation that requires a started session.
	ErrNoActiveSession = errors.New("no active inspection session")
	// ErrIncompleteRecord indicates confirmSubmit on a record with missing fields.
	ErrIncompleteRecord = errors.New("inspection record is incomplete")
	// ErrNotIdle indicates a capture request while a turn is already underway.
	ErrNotIdle = errors.New("capture not allowed in current state")
	// ErrCapture wraps speech-capture device failures.
	ErrCapture = errors.New("speech capture failure")
	// ErrCaptureUnavailable indicates runtime capture wiring is missing.
	ErrCaptureUnavailable = errors.New("speech capture pipeline not configured")
)

// Capturer abstracts the speech-capture device: start listening, stop and
// yield the final transcript, or abort without a transcript.
type Capturer interface {
	Start(context.Context) error
	Stop(context.Context) (string, error)
	Cancel(context.Context) error
}

// PlaceholderCapturer is the no-op capturer used when no pipeline is wired;
// sessions then run on typed input only.
type PlaceholderCapturer struct{}

func (PlaceholderCapturer) Start(context.Context) error { return ErrCaptureUnavailable }

func (PlaceholderCapturer) Stop(context.Context) (string, error) {
	return "", ErrCaptureUnavailable
}

func (PlaceholderCapturer) Cancel(context.Context) error { return nil }

// Speaker abstracts the speech-synthesis device. Speak blocks until the
// utterance finishes or the context is cancelled.
type Speaker interface {
	Speak(ctx context.Context, text string, rate float64) error
	Stop(context.Context) error
}

// noopSpeaker preserves session flow when voice guidance has no backend.
type noopSpeaker struct{}

func (noopSpeaker) Speak(context.Context, string, float64) error { return nil }
func (noopSpeaker) Stop(context.Context) error                   { return nil }

// Submitter dispatches a confirmed inspection record.
type Submitter interface {
	Submit(context.Context, Finalized) error
}

// SubmitFunc adapts a function to the Submitter interface.
type SubmitFunc func(context.Context, Finalized) error

func (f SubmitFunc) Submit(ctx context.Context, finalized Finalized) error {
	return f(ctx, finalized)
}
