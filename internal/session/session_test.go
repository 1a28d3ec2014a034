package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"qcvoice/internal/chat"
	"qcvoice/internal/events"
	"qcvoice/internal/extract"
	"qcvoice/internal/fsm"
	"qcvoice/internal/record"
)

type fakeCapturer struct {
	mu         sync.Mutex
	transcript string
	startErr   error
	stopErr    error
	starts     int
	stops      int
	cancels    int
}

func (f *fakeCapturer) Start(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts++
	return f.startErr
}

func (f *fakeCapturer) Stop(context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	return f.transcript, f.stopErr
}

func (f *fakeCapturer) Cancel(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancels++
	return nil
}

type fakeSpeaker struct {
	mu     sync.Mutex
	spoken []string
	err    error
	stops  int
}

func (f *fakeSpeaker) Speak(_ context.Context, text string, _ float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.spoken = append(f.spoken, text)
	return f.err
}

func (f *fakeSpeaker) Stop(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	return nil
}

func (f *fakeSpeaker) spokenTexts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.spoken...)
}

func requireSpoken(t *testing.T, speaker *fakeSpeaker, fragment string) {
	t.Helper()
	for _, text := range speaker.spokenTexts() {
		if strings.Contains(text, fragment) {
			return
		}
	}
	t.Fatalf("nothing spoken contained %q (spoken: %v)", fragment, speaker.spokenTexts())
}

// releaseExtractor resolves only when released, ignoring context
// cancellation, to model a late-arriving remote response.
type releaseExtractor struct {
	release chan struct{}
	resp    *extract.Response
}

func (r *releaseExtractor) Extract(context.Context, extract.Context) (*extract.Response, error) {
	<-r.release
	return r.resp, nil
}

func testBatch() record.Batch {
	return record.Batch{
		ID:       "batch-1",
		Number:   "B-100",
		Product:  "frozen dumplings",
		Quantity: 100,
		Unit:     "kg",
	}
}

func waitForState(t *testing.T, ctrl *Controller, want fsm.State) {
	t.Helper()
	require.Eventually(t, func() bool {
		return ctrl.State() == want
	}, 2*time.Second, 5*time.Millisecond, "waiting for state %s, current %s", want, ctrl.State())
}

func settleTurn(t *testing.T, ctrl *Controller, text string, want fsm.State) {
	t.Helper()
	require.NoError(t, ctrl.SubmitText(context.Background(), text))
	waitForState(t, ctrl, want)
}

func TestStartSessionGreetsAndResets(t *testing.T) {
	ctrl := NewController(nil, nil, nil, nil, nil, Options{PreSessionGuidance: true})
	defer ctrl.Close()

	ctrl.StartSession(context.Background(), testBatch())

	snapshot := ctrl.Snapshot()
	require.True(t, snapshot.Active)
	require.Equal(t, fsm.StateIdle, snapshot.State)
	require.Len(t, snapshot.History, 1)
	require.Equal(t, chat.RoleSystem, snapshot.History[0].Role)
	require.Contains(t, snapshot.History[0].Text, "B-100")
	require.Contains(t, snapshot.History[0].Text, "frozen dumplings")
	require.Contains(t, snapshot.History[0].Text, "0 to 20")
	require.Empty(t, snapshot.Record)
}

func TestStartSessionDiscardsPreviousSessionData(t *testing.T) {
	ctrl := NewController(nil, nil, nil, nil, nil, Options{})
	defer ctrl.Close()

	ctrl.StartSession(context.Background(), testBatch())
	settleTurn(t, ctrl, "appearance score 18", fsm.StateIdle)
	require.NotEmpty(t, ctrl.Snapshot().Record)

	ctrl.StartSession(context.Background(), record.Batch{Number: "B-200", Product: "noodles"})
	snapshot := ctrl.Snapshot()
	require.Empty(t, snapshot.Record)
	require.Len(t, snapshot.History, 1)
	require.Equal(t, "B-200", snapshot.Batch.Number)
}

func TestStartCaptureOnlyFromIdle(t *testing.T) {
	capturer := &fakeCapturer{transcript: "smell score 20"}
	ctrl := NewController(nil, capturer, nil, nil, nil, Options{})
	defer ctrl.Close()

	require.ErrorIs(t, ctrl.StartCapture(context.Background()), ErrNoActiveSession)

	ctrl.StartSession(context.Background(), testBatch())
	require.NoError(t, ctrl.StartCapture(context.Background()))
	require.Equal(t, fsm.StateListening, ctrl.State())

	// re-entrant capture is rejected, not queued
	err := ctrl.StartCapture(context.Background())
	require.ErrorIs(t, err, ErrNotIdle)
	require.Equal(t, 1, capturer.starts)
	require.Equal(t, fsm.StateListening, ctrl.State())
}

func TestStopCaptureEmptyTranscriptReturnsToIdle(t *testing.T) {
	capturer := &fakeCapturer{transcript: "   "}
	extractor := &releaseExtractor{release: make(chan struct{})}
	ctrl := NewController(nil, capturer, nil, extractor, nil, Options{})
	defer ctrl.Close()

	ctrl.StartSession(context.Background(), testBatch())
	require.NoError(t, ctrl.StartCapture(context.Background()))
	require.NoError(t, ctrl.StopCapture(context.Background()))

	snapshot := ctrl.Snapshot()
	require.Equal(t, fsm.StateIdle, snapshot.State)
	last := snapshot.History[len(snapshot.History)-1]
	require.Equal(t, chat.RoleSystem, last.Role)
	require.Contains(t, last.Text, "didn't catch")
}

func TestStopCaptureRunsTurnThroughHeuristic(t *testing.T) {
	capturer := &fakeCapturer{transcript: "appearance color normal, shape intact, score 18"}
	ctrl := NewController(nil, capturer, nil, nil, nil, Options{})
	defer ctrl.Close()

	ctrl.StartSession(context.Background(), testBatch())
	require.NoError(t, ctrl.StartCapture(context.Background()))
	require.NoError(t, ctrl.StopCapture(context.Background()))
	waitForState(t, ctrl, fsm.StateIdle)

	snapshot := ctrl.Snapshot()
	require.Equal(t, 18, snapshot.Record[record.FieldAppearance].Score)
	require.Equal(t,
		[]record.Field{record.FieldSmell, record.FieldSpecification, record.FieldWeight, record.FieldPackaging},
		snapshot.Record.Missing(),
	)
	require.False(t, snapshot.Record.IsComplete())

	// user turn plus assistant reply landed in history
	require.Equal(t, chat.RoleUser, snapshot.History[1].Role)
	require.Equal(t, chat.RoleAssistant, snapshot.History[2].Role)
	require.Equal(t, 18, snapshot.History[2].Fields[record.FieldAppearance].Score)
}

func TestFullInspectionFlowConfirmSubmit(t *testing.T) {
	var submitted []Finalized
	submitter := SubmitFunc(func(_ context.Context, finalized Finalized) error {
		submitted = append(submitted, finalized)
		return nil
	})

	ctrl := NewController(nil, nil, nil, nil, submitter, Options{})
	defer ctrl.Close()

	ctrl.StartSession(context.Background(), testBatch())

	settleTurn(t, ctrl, "appearance color normal, shape intact, score 18", fsm.StateIdle)
	settleTurn(t, ctrl, "smell 20 points", fsm.StateIdle)
	settleTurn(t, ctrl, "specification score 16", fsm.StateIdle)
	settleTurn(t, ctrl, "weight score 19", fsm.StateIdle)
	settleTurn(t, ctrl, "packaging 20 points", fsm.StateWaitingConfirm)

	snapshot := ctrl.Snapshot()
	require.True(t, snapshot.Record.IsComplete())
	require.Equal(t, 93, snapshot.Record.TotalScore())
	require.Equal(t, "A", record.Grade(snapshot.Record.TotalScore()))

	finalized, err := ctrl.ConfirmSubmit(context.Background())
	require.NoError(t, err)
	require.Equal(t, 93, finalized.TotalScore)
	require.Equal(t, "A", finalized.Grade)
	require.Len(t, finalized.Fields, 5)
	require.Equal(t, "B-100", finalized.Batch.Number)
	require.Len(t, submitted, 1)

	require.Equal(t, fsm.StateIdle, ctrl.State())
	require.False(t, ctrl.Snapshot().Active)
	select {
	case <-ctrl.Terminated():
	default:
		t.Fatal("expected session termination after confirm")
	}
}

func TestConfirmSubmitIncompleteFailsWithoutMutation(t *testing.T) {
	ctrl := NewController(nil, nil, nil, nil, nil, Options{})
	defer ctrl.Close()

	ctrl.StartSession(context.Background(), testBatch())
	settleTurn(t, ctrl, "appearance score 18", fsm.StateIdle)

	before := ctrl.Snapshot()
	_, err := ctrl.ConfirmSubmit(context.Background())
	require.ErrorIs(t, err, ErrIncompleteRecord)

	after := ctrl.Snapshot()
	require.Equal(t, before.Record, after.Record)
	require.Equal(t, len(before.History), len(after.History))
	require.Equal(t, before.State, after.State)
	require.True(t, after.Active)
}

func TestConfirmSubmitWithoutSessionFails(t *testing.T) {
	ctrl := NewController(nil, nil, nil, nil, nil, Options{})
	defer ctrl.Close()

	_, err := ctrl.ConfirmSubmit(context.Background())
	require.ErrorIs(t, err, ErrNoActiveSession)
}

func TestSubmitFailureLeavesSessionIntact(t *testing.T) {
	submitter := SubmitFunc(func(context.Context, Finalized) error {
		return errors.New("sink offline")
	})
	ctrl := NewController(nil, nil, nil, nil, submitter, Options{})
	defer ctrl.Close()

	ctrl.StartSession(context.Background(), testBatch())
	settleTurn(t, ctrl, "appearance score 18", fsm.StateIdle)
	settleTurn(t, ctrl, "smell score 20", fsm.StateIdle)
	settleTurn(t, ctrl, "specification score 16", fsm.StateIdle)
	settleTurn(t, ctrl, "weight score 19", fsm.StateIdle)
	settleTurn(t, ctrl, "packaging score 20", fsm.StateWaitingConfirm)

	_, err := ctrl.ConfirmSubmit(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "sink offline")

	snapshot := ctrl.Snapshot()
	require.True(t, snapshot.Active)
	require.True(t, snapshot.Record.IsComplete())
}

func TestResetSessionIsIdempotent(t *testing.T) {
	ctrl := NewController(nil, nil, nil, nil, nil, Options{})
	defer ctrl.Close()

	ctrl.StartSession(context.Background(), testBatch())
	settleTurn(t, ctrl, "appearance score 18", fsm.StateIdle)

	require.NoError(t, ctrl.ResetSession(context.Background()))
	first := ctrl.Snapshot()
	require.NoError(t, ctrl.ResetSession(context.Background()))
	second := ctrl.Snapshot()

	require.Empty(t, first.Record)
	require.Equal(t, first.Record, second.Record)
	require.Len(t, first.History, 1)
	require.Len(t, second.History, 1)
	require.Equal(t, first.History[0].Text, second.History[0].Text)
	require.Equal(t, first.Batch, second.Batch)
	require.Equal(t, fsm.StateIdle, second.State)
}

func TestCancelSessionDiscardsStaleExtraction(t *testing.T) {
	extractor := &releaseExtractor{
		release: make(chan struct{}),
		resp: &extract.Response{
			Action: extract.ActionExtract,
			Fields: record.Partial{record.FieldSmell: {Score: 20}},
			Reply:  "stale reply",
		},
	}
	ctrl := NewController(nil, nil, nil, extractor, nil, Options{})
	defer ctrl.Close()

	ctrl.StartSession(context.Background(), testBatch())
	require.NoError(t, ctrl.SubmitText(context.Background(), "smell is fine, 20 points"))
	require.Equal(t, fsm.StateProcessing, ctrl.State())

	ctrl.CancelSession(context.Background())
	require.Equal(t, fsm.StateIdle, ctrl.State())
	require.False(t, ctrl.Snapshot().Active)

	// a new session must be immune to the old session's late result
	ctrl.StartSession(context.Background(), record.Batch{Number: "B-300", Product: "tofu"})
	close(extractor.release)

	require.Never(t, func() bool {
		snapshot := ctrl.Snapshot()
		return len(snapshot.Record) != 0 || len(snapshot.History) != 1
	}, 300*time.Millisecond, 20*time.Millisecond, "stale extraction mutated a later session")
}

func TestCancelSessionSignalsAdapters(t *testing.T) {
	capturer := &fakeCapturer{transcript: "x"}
	speaker := &fakeSpeaker{}
	ctrl := NewController(nil, capturer, speaker, nil, nil, Options{VoiceEnabled: true})
	defer ctrl.Close()

	ctrl.StartSession(context.Background(), testBatch())
	require.NoError(t, ctrl.StartCapture(context.Background()))
	ctrl.CancelSession(context.Background())

	require.Equal(t, fsm.StateIdle, ctrl.State())
	require.GreaterOrEqual(t, capturer.cancels, 1)
	require.GreaterOrEqual(t, speaker.stops, 1)
}

func TestVoiceTurnSpeaksReplyAndSettles(t *testing.T) {
	speaker := &fakeSpeaker{}
	ctrl := NewController(nil, nil, speaker, nil, nil, Options{VoiceEnabled: true, SpeechRate: 1.2})
	defer ctrl.Close()

	ctrl.StartSession(context.Background(), testBatch())
	settleTurn(t, ctrl, "weight score 19", fsm.StateIdle)

	requireSpoken(t, speaker, "weight 19")
}

func TestVoiceCompletionSpeaksConfirmationPrompt(t *testing.T) {
	speaker := &fakeSpeaker{}
	ctrl := NewController(nil, nil, speaker, nil, nil, Options{VoiceEnabled: true, RepeatConfirmation: true})
	defer ctrl.Close()

	ctrl.StartSession(context.Background(), testBatch())
	settleTurn(t, ctrl, "appearance score 18", fsm.StateIdle)
	settleTurn(t, ctrl, "smell score 20", fsm.StateIdle)
	settleTurn(t, ctrl, "specification score 16", fsm.StateIdle)
	settleTurn(t, ctrl, "weight score 19", fsm.StateIdle)
	settleTurn(t, ctrl, "packaging score 20", fsm.StateWaitingConfirm)

	requireSpoken(t, speaker, "Total score 93, grade A")
}

func TestSynthesisFailureDegradesToText(t *testing.T) {
	speaker := &fakeSpeaker{err: errors.New("tts backend gone")}
	ctrl := NewController(nil, nil, speaker, nil, nil, Options{VoiceEnabled: true})
	defer ctrl.Close()

	var errorEvents int
	var mu sync.Mutex
	unsubscribe := ctrl.Subscribe(func(event events.Event) {
		if event.Kind == events.KindErrorRaised {
			mu.Lock()
			errorEvents++
			mu.Unlock()
		}
	})
	defer unsubscribe()

	ctrl.StartSession(context.Background(), testBatch())
	settleTurn(t, ctrl, "smell score 20", fsm.StateIdle)

	snapshot := ctrl.Snapshot()
	require.Equal(t, 20, snapshot.Record[record.FieldSmell].Score)
	last := snapshot.History[len(snapshot.History)-1]
	require.Equal(t, chat.RoleSystem, last.Role)
	require.Contains(t, last.Text, "text only")

	mu.Lock()
	defer mu.Unlock()
	require.GreaterOrEqual(t, errorEvents, 1)
}

func TestCaptureStartFailureSurfacesAndResets(t *testing.T) {
	capturer := &fakeCapturer{startErr: errors.New("microphone denied")}
	ctrl := NewController(nil, capturer, nil, nil, nil, Options{})
	defer ctrl.Close()

	var raised error
	var states []fsm.State
	var mu sync.Mutex
	unsubscribe := ctrl.Subscribe(func(event events.Event) {
		mu.Lock()
		defer mu.Unlock()
		switch event.Kind {
		case events.KindErrorRaised:
			raised, _ = event.Payload.(error)
		case events.KindStatusChanged:
			if state, ok := event.Payload.(fsm.State); ok {
				states = append(states, state)
			}
		}
	})
	defer unsubscribe()

	ctrl.StartSession(context.Background(), testBatch())
	recordBefore := ctrl.Snapshot().Record

	err := ctrl.StartCapture(context.Background())
	require.ErrorIs(t, err, ErrCapture)
	require.Equal(t, fsm.StateIdle, ctrl.State())

	// the failure passes through the error state before settling on idle
	mu.Lock()
	require.Contains(t, states, fsm.StateError)
	require.Equal(t, fsm.StateIdle, states[len(states)-1])
	mu.Unlock()

	snapshot := ctrl.Snapshot()
	require.Equal(t, recordBefore, snapshot.Record)
	last := snapshot.History[len(snapshot.History)-1]
	require.Equal(t, chat.RoleSystem, last.Role)
	require.Contains(t, last.Text, "capture failed")

	mu.Lock()
	defer mu.Unlock()
	require.Error(t, raised)
}

func TestEventsCarryImmutableSnapshots(t *testing.T) {
	ctrl := NewController(nil, nil, nil, nil, nil, Options{})
	defer ctrl.Close()

	var mu sync.Mutex
	var snapshots []RecordSnapshot
	unsubscribe := ctrl.Subscribe(func(event events.Event) {
		if event.Kind == events.KindRecordChanged {
			if snap, ok := event.Payload.(RecordSnapshot); ok {
				mu.Lock()
				snapshots = append(snapshots, snap)
				mu.Unlock()
			}
		}
	})
	defer unsubscribe()

	ctrl.StartSession(context.Background(), testBatch())
	settleTurn(t, ctrl, "appearance score 18", fsm.StateIdle)
	settleTurn(t, ctrl, "appearance score 12", fsm.StateIdle)

	mu.Lock()
	defer mu.Unlock()
	require.GreaterOrEqual(t, len(snapshots), 3)
	final := snapshots[len(snapshots)-1]
	require.Equal(t, 12, final.Fields[record.FieldAppearance].Score)

	// mutating a delivered snapshot must not leak into the controller
	final.Fields[record.FieldAppearance] = record.ScoreEntry{Score: 0}
	require.Equal(t, 12, ctrl.Snapshot().Record[record.FieldAppearance].Score)
}
