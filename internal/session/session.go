// Package session coordinates the voice-driven inspection lifecycle: capture,
// extraction, record merging, synthesis, and submission.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"qcvoice/internal/chat"
	"qcvoice/internal/events"
	"qcvoice/internal/extract"
	"qcvoice/internal/fsm"
	"qcvoice/internal/record"
)

// Options carries the persisted voice-guidance settings a controller runs with.
type Options struct {
	VoiceEnabled       bool
	SpeechRate         float64
	RepeatConfirmation bool
	PreSessionGuidance bool
}

// Finalized is the confirmed inspection record returned by ConfirmSubmit.
type Finalized struct {
	Batch       record.Batch   `json:"batch"`
	Fields      record.Partial `json:"fields"`
	TotalScore  int            `json:"total_score"`
	Grade       string         `json:"grade"`
	ConfirmedAt time.Time      `json:"confirmed_at"`
}

// RecordSnapshot is the immutable record view delivered on record-changed
// events. All derived values are recomputed from the merged record.
type RecordSnapshot struct {
	Fields     record.Partial
	TotalScore int
	Grade      string
	Missing    []record.Field
	Complete   bool
}

// Snapshot is the full immutable session view consumed by the state store.
type Snapshot struct {
	State     fsm.State
	Active    bool
	Batch     record.Batch
	Record    record.Partial
	History   chat.History
	LastError string
}

// Controller orchestrates exactly one inspection session at a time and is
// the sole mutator of the partial record.
type Controller struct {
	logger    *slog.Logger
	capture   Capturer
	speaker   Speaker
	extractor extract.Extractor
	submit    Submitter
	emitter   *events.Emitter
	opts      Options

	mu         sync.Mutex
	state      fsm.State
	active     bool
	batch      record.Batch
	partial    record.Partial
	history    chat.History
	generation uint64
	lastErr    string
	turnCancel context.CancelFunc

	terminated    chan struct{}
	terminateOnce sync.Once
}

// NewController constructs a session controller with safe default fallbacks.
func NewController(
	logger *slog.Logger,
	capturer Capturer,
	speaker Speaker,
	extractor extract.Extractor,
	submitter Submitter,
	opts Options,
) *Controller {
	if capturer == nil {
		capturer = PlaceholderCapturer{}
	}
	if speaker == nil {
		speaker = noopSpeaker{}
	}
	if extractor == nil {
		extractor = extract.Heuristic{}
	}
	if submitter == nil {
		submitter = SubmitFunc(func(context.Context, Finalized) error { return nil })
	}
	if opts.SpeechRate <= 0 {
		opts.SpeechRate = 1.0
	}

	return &Controller{
		logger:     logger,
		capture:    capturer,
		speaker:    speaker,
		extractor:  extractor,
		submit:     submitter,
		emitter:    events.New(),
		opts:       opts,
		state:      fsm.StateIdle,
		partial:    record.Partial{},
		terminated: make(chan struct{}),
	}
}

// Subscribe registers an event listener and returns its unsubscribe handle.
func (c *Controller) Subscribe(listener events.Listener) func() {
	return c.emitter.Subscribe(listener)
}

// Terminated is closed once the session ends through confirm or cancel.
func (c *Controller) Terminated() <-chan struct{} {
	return c.terminated
}

// State returns the current session state.
func (c *Controller) State() fsm.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Snapshot returns an immutable copy of the full session view.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{
		State:     c.state,
		Active:    c.active,
		Batch:     c.batch,
		Record:    c.partial.Clone(),
		History:   c.history.Clone(),
		LastError: c.lastErr,
	}
}

// Close tears down the session and all listener subscriptions.
func (c *Controller) Close() {
	c.CancelSession(context.Background())
	c.emitter.Close()
}

// StartSession begins a fresh session for batch, discarding any session that
// is still active; no data merges across batches.
func (c *Controller) StartSession(ctx context.Context, batch record.Batch) {
	greeting := chat.New(chat.RoleSystem, greetingText(batch, c.opts.PreSessionGuidance))

	c.mu.Lock()
	c.generation++
	gen := c.generation
	cancelTurn := c.turnCancel
	c.turnCancel = nil
	c.active = true
	c.batch = batch
	c.partial = record.Partial{}
	c.history = chat.History{}.Append(greeting)
	c.state = fsm.StateIdle
	c.lastErr = ""
	c.mu.Unlock()

	if cancelTurn != nil {
		cancelTurn()
	}
	_ = c.capture.Cancel(ctx)
	_ = c.speaker.Stop(ctx)

	c.emitStatus(fsm.StateIdle)
	c.emitMessage(greeting)
	c.emitRecord(record.Partial{})

	c.logInfo("session started", "batch", batch.Number, "product", batch.Product)

	if c.opts.VoiceEnabled {
		go c.speakAside(gen, greeting.Text)
	}
}

// StartCapture begins listening. It is rejected without side effects unless
// the session is waiting for input.
func (c *Controller) StartCapture(ctx context.Context) error {
	c.mu.Lock()
	if !c.active {
		c.mu.Unlock()
		return ErrNoActiveSession
	}
	next, err := fsm.Transition(c.state, fsm.EventListen)
	if err != nil {
		c.mu.Unlock()
		return fmt.Errorf("%w: %v", ErrNotIdle, err)
	}
	c.state = next
	c.mu.Unlock()
	c.emitStatus(next)

	if err := c.capture.Start(ctx); err != nil {
		c.captureFailure(err)
		return fmt.Errorf("%w: %v", ErrCapture, err)
	}
	return nil
}

// StopCapture stops listening, collects the final transcript, and starts
// turn processing. An empty transcript returns the session to idle with a
// clarifying system message and no extraction call.
func (c *Controller) StopCapture(ctx context.Context) error {
	c.mu.Lock()
	if c.state != fsm.StateListening {
		c.mu.Unlock()
		return fmt.Errorf("%w: not listening", ErrNotIdle)
	}
	gen := c.generation
	c.mu.Unlock()

	transcript, err := c.capture.Stop(ctx)
	if err != nil {
		c.captureFailure(err)
		return fmt.Errorf("%w: %v", ErrCapture, err)
	}

	if strings.TrimSpace(transcript) == "" {
		msg := chat.New(chat.RoleSystem, "Sorry, I didn't catch that. Please try again.")
		c.mu.Lock()
		if gen != c.generation {
			c.mu.Unlock()
			return nil
		}
		c.state = fsm.StateIdle
		c.history = c.history.Append(msg)
		c.mu.Unlock()
		c.emitMessage(msg)
		c.emitStatus(fsm.StateIdle)
		return nil
	}

	return c.beginTurn(gen, fsm.EventTranscript, transcript)
}

// SubmitText is the typed-input entry point bypassing capture.
func (c *Controller) SubmitText(_ context.Context, text string) error {
	c.mu.Lock()
	if !c.active {
		c.mu.Unlock()
		return ErrNoActiveSession
	}
	gen := c.generation
	c.mu.Unlock()

	if strings.TrimSpace(text) == "" {
		msg := chat.New(chat.RoleSystem, "Sorry, I didn't catch that. Please try again.")
		c.mu.Lock()
		if gen != c.generation {
			c.mu.Unlock()
			return nil
		}
		c.history = c.history.Append(msg)
		c.mu.Unlock()
		c.emitMessage(msg)
		return nil
	}

	return c.beginTurn(gen, fsm.EventSubmit, strings.TrimSpace(text))
}

// beginTurn transitions into processing, appends the user message, and
// launches asynchronous extraction guarded by the generation token.
func (c *Controller) beginTurn(gen uint64, event fsm.Event, transcript string) error {
	userMsg := chat.New(chat.RoleUser, transcript)

	c.mu.Lock()
	if gen != c.generation || !c.active {
		c.mu.Unlock()
		return nil
	}
	next, err := fsm.Transition(c.state, event)
	if err != nil {
		c.mu.Unlock()
		return fmt.Errorf("%w: %v", ErrNotIdle, err)
	}
	c.state = next
	c.history = c.history.Append(userMsg)
	turn := extract.Context{
		Batch:      c.batch,
		Filled:     c.partial.Clone(),
		Missing:    c.partial.Missing(),
		Transcript: transcript,
	}
	turnCtx, cancel := context.WithCancel(context.Background())
	c.turnCancel = cancel
	c.mu.Unlock()

	c.emitMessage(userMsg)
	c.emitStatus(next)

	go c.processTurn(turnCtx, gen, turn)
	return nil
}

// ConfirmSubmit finalizes a complete record, dispatches it, and terminates
// the session. An incomplete record fails without mutating any state.
func (c *Controller) ConfirmSubmit(ctx context.Context) (Finalized, error) {
	c.mu.Lock()
	if !c.active {
		c.mu.Unlock()
		return Finalized{}, ErrNoActiveSession
	}
	if !c.partial.IsComplete() {
		c.mu.Unlock()
		return Finalized{}, ErrIncompleteRecord
	}
	total := c.partial.TotalScore()
	finalized := Finalized{
		Batch:       c.batch,
		Fields:      c.partial.Clone(),
		TotalScore:  total,
		Grade:       record.Grade(total),
		ConfirmedAt: time.Now(),
	}
	c.mu.Unlock()

	if err := c.submit.Submit(ctx, finalized); err != nil {
		return Finalized{}, fmt.Errorf("submit inspection record: %w", err)
	}

	c.mu.Lock()
	c.generation++
	cancelTurn := c.turnCancel
	c.turnCancel = nil
	c.active = false
	c.batch = record.Batch{}
	c.partial = record.Partial{}
	c.history = nil
	c.state = fsm.StateIdle
	c.mu.Unlock()

	if cancelTurn != nil {
		cancelTurn()
	}
	_ = c.capture.Cancel(ctx)
	_ = c.speaker.Stop(ctx)

	c.emitStatus(fsm.StateIdle)
	c.emitRecord(record.Partial{})
	c.logInfo("record submitted",
		"batch", finalized.Batch.Number,
		"total_score", finalized.TotalScore,
		"grade", finalized.Grade,
	)
	c.terminateOnce.Do(func() { close(c.terminated) })
	return finalized, nil
}

// ResetSession clears the record and history and re-greets the same batch.
// Invoking it twice in a row is indistinguishable from invoking it once.
func (c *Controller) ResetSession(ctx context.Context) error {
	c.mu.Lock()
	if !c.active {
		c.mu.Unlock()
		return ErrNoActiveSession
	}
	batch := c.batch
	c.mu.Unlock()

	c.StartSession(ctx, batch)
	return nil
}

// CancelSession abandons the session from any state: in-flight capture and
// synthesis are cancelled, a pending extraction is invalidated through the
// generation token, and the state is idle by the time this returns.
func (c *Controller) CancelSession(ctx context.Context) {
	c.mu.Lock()
	c.generation++
	cancelTurn := c.turnCancel
	c.turnCancel = nil
	wasActive := c.active
	c.active = false
	c.batch = record.Batch{}
	c.partial = record.Partial{}
	c.history = nil
	c.state = fsm.StateIdle
	c.lastErr = ""
	c.mu.Unlock()

	if cancelTurn != nil {
		cancelTurn()
	}
	_ = c.capture.Cancel(ctx)
	_ = c.speaker.Stop(ctx)

	if wasActive {
		c.emitStatus(fsm.StateIdle)
		c.emitRecord(record.Partial{})
		c.logInfo("session cancelled")
		c.terminateOnce.Do(func() { close(c.terminated) })
	}
}

// captureFailure routes a device failure through the error state and back
// to idle; session data stays untouched.
func (c *Controller) captureFailure(err error) {
	msg := chat.New(chat.RoleSystem, "Speech capture failed: "+err.Error())

	c.mu.Lock()
	c.lastErr = err.Error()
	if c.active {
		c.history = c.history.Append(msg)
	}
	failed, _ := fsm.Transition(c.state, fsm.EventFail)
	c.state = failed
	c.mu.Unlock()

	c.emitStatus(failed)
	c.emitError(err)
	c.emitMessage(msg)

	recovered, _ := fsm.Transition(failed, fsm.EventDone)
	c.mu.Lock()
	c.state = recovered
	c.mu.Unlock()
	c.emitStatus(recovered)
	c.logError("capture failed", "error", err.Error())
}

// speakAside speaks non-turn text (greetings) without a state transition.
func (c *Controller) speakAside(gen uint64, text string) {
	ctx := context.Background()
	if err := c.speaker.Speak(ctx, text, c.opts.SpeechRate); err != nil {
		c.mu.Lock()
		stale := gen != c.generation
		c.mu.Unlock()
		if !stale {
			c.logWarn("voice guidance degraded to text", "error", err.Error())
		}
	}
}

func (c *Controller) emitStatus(state fsm.State) {
	c.emitter.Emit(events.Event{Kind: events.KindStatusChanged, Payload: state})
}

func (c *Controller) emitMessage(msg chat.Message) {
	if msg.Fields != nil {
		msg.Fields = msg.Fields.Clone()
	}
	c.emitter.Emit(events.Event{Kind: events.KindMessageAppended, Payload: msg})
}

func (c *Controller) emitRecord(partial record.Partial) {
	c.emitter.Emit(events.Event{Kind: events.KindRecordChanged, Payload: snapshotRecord(partial)})
}

func (c *Controller) emitError(err error) {
	c.emitter.Emit(events.Event{Kind: events.KindErrorRaised, Payload: err})
}

// snapshotRecord recomputes every derived value from the merged record.
func snapshotRecord(partial record.Partial) RecordSnapshot {
	total := partial.TotalScore()
	return RecordSnapshot{
		Fields:     partial.Clone(),
		TotalScore: total,
		Grade:      record.Grade(total),
		Missing:    partial.Missing(),
		Complete:   partial.IsComplete(),
	}
}

func greetingText(batch record.Batch, guidance bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Starting inspection for batch %s: %s", batch.Number, batch.Product)
	if batch.Quantity > 0 {
		fmt.Fprintf(&b, ", %g %s", batch.Quantity, batch.Unit)
	}
	if batch.Source != "" {
		fmt.Fprintf(&b, ", from %s", batch.Source)
	}
	b.WriteString(".")
	if guidance {
		b.WriteString(" Report appearance, smell, specification, weight and packaging, each scored 0 to 20. Say confirm once all five are recorded.")
	}
	return b.String()
}

func confirmationText(snapshot RecordSnapshot) string {
	return fmt.Sprintf(
		"All five dimensions recorded. Total score %d, grade %s. Confirm to submit, or restate any dimension to correct it.",
		snapshot.TotalScore, snapshot.Grade,
	)
}

func (c *Controller) logInfo(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Info(msg, args...)
	}
}

func (c *Controller) logWarn(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Warn(msg, args...)
	}
}

func (c *Controller) logError(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Error(msg, args...)
	}
}

func (c *Controller) logDebug(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Debug(msg, args...)
	}
}
