// Package store mirrors controller-emitted session state for presentation
// consumers. It is read-only: every mutation flows through the controller
// and arrives here as an event.
package store

import (
	"sync"

	"qcvoice/internal/chat"
	"qcvoice/internal/events"
	"qcvoice/internal/fsm"
	"qcvoice/internal/record"
	"qcvoice/internal/session"
)

// Source is the controller surface the store mirrors.
type Source interface {
	Snapshot() session.Snapshot
	Subscribe(events.Listener) func()
}

// Progress is the completion view derived from the mirrored record.
type Progress struct {
	Completed  int `json:"completed"`
	Total      int `json:"total"`
	Percentage int `json:"percentage"`
}

// Store holds the presentation mirror. Derived values (progress, total
// score, grade) are recomputed from the mirrored record on every read and
// never cached.
type Store struct {
	source Source

	mu       sync.RWMutex
	state    fsm.State
	fields   record.Partial
	history  chat.History
	lastErr  string
	watchers map[int]func()
	watchSeq int

	unsubscribe func()
}

// New builds a store mirroring source and begins consuming its events.
func New(source Source) *Store {
	snapshot := source.Snapshot()
	s := &Store{
		source:   source,
		state:    snapshot.State,
		fields:   snapshot.Record,
		history:  snapshot.History,
		lastErr:  snapshot.LastError,
		watchers: map[int]func(){},
	}
	s.unsubscribe = source.Subscribe(s.consume)
	return s
}

// Close detaches the store from its source.
func (s *Store) Close() {
	if s.unsubscribe != nil {
		s.unsubscribe()
		s.unsubscribe = nil
	}
}

// Watch registers a change notification callback and returns its removal
// handle. Watchers are told that something changed, not what; they re-read.
func (s *Store) Watch(fn func()) func() {
	s.mu.Lock()
	s.watchSeq++
	id := s.watchSeq
	s.watchers[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.watchers, id)
		s.mu.Unlock()
	}
}

func (s *Store) consume(event events.Event) {
	s.mu.Lock()
	switch event.Kind {
	case events.KindStatusChanged:
		if state, ok := event.Payload.(fsm.State); ok {
			s.state = state
		}
	case events.KindMessageAppended:
		if msg, ok := event.Payload.(chat.Message); ok {
			s.history = s.history.Append(msg)
		}
	case events.KindRecordChanged:
		if snap, ok := event.Payload.(session.RecordSnapshot); ok {
			s.fields = snap.Fields
			if len(snap.Fields) == 0 {
				// record cleared means a fresh session; drop stale history
				s.history = s.source.Snapshot().History
				s.lastErr = ""
			}
		}
	case events.KindErrorRaised:
		if err, ok := event.Payload.(error); ok {
			s.lastErr = err.Error()
		}
	}
	watchers := make([]func(), 0, len(s.watchers))
	for _, fn := range s.watchers {
		watchers = append(watchers, fn)
	}
	s.mu.Unlock()

	for _, fn := range watchers {
		fn()
	}
}

// State returns the mirrored session state.
func (s *Store) State() fsm.State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Active reports whether the source currently has a live session.
func (s *Store) Active() bool {
	return s.source.Snapshot().Active
}

// Batch returns the batch the current session is attached to.
func (s *Store) Batch() record.Batch {
	return s.source.Snapshot().Batch
}

// Record returns a copy of the mirrored partial record.
func (s *Store) Record() record.Partial {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fields.Clone()
}

// History returns a copy of the mirrored chat history.
func (s *Store) History() chat.History {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.history.Clone()
}

// LastError returns the most recent surfaced error text, if any.
func (s *Store) LastError() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

// Progress derives the completion view from the mirrored record.
func (s *Store) Progress() Progress {
	s.mu.RLock()
	defer s.mu.RUnlock()
	completed := len(s.fields.Filled())
	total := len(record.Fields())
	return Progress{
		Completed:  completed,
		Total:      total,
		Percentage: completed * 100 / total,
	}
}

// TotalScore derives the running total from the mirrored record.
func (s *Store) TotalScore() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fields.TotalScore()
}

// Grade derives the grade letter from the current total.
func (s *Store) Grade() string {
	return record.Grade(s.TotalScore())
}

// Missing derives the not-yet-recorded dimensions in canonical order.
func (s *Store) Missing() []record.Field {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fields.Missing()
}

// IsComplete reports whether all five dimensions are recorded.
func (s *Store) IsComplete() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fields.IsComplete()
}
