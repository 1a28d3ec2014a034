// Package extract turns free-form inspection utterances into structured
// record updates, either through the remote extraction service or through
// local keyword heuristics when that service is unusable.
package extract

import (
	"context"
	"errors"

	"qcvoice/internal/record"
)

var (
	// ErrUnusablePayload indicates the remote service answered but its
	// payload carried no parseable structured object.
	ErrUnusablePayload = errors.New("extraction payload is unusable")
	// ErrServiceUnavailable indicates the remote service could not be
	// reached or did not answer in time.
	ErrServiceUnavailable = errors.New("extraction service unavailable")
)

// Action tags the assistant's intent and determines the expected payload shape.
type Action string

const (
	// ActionExtract carries one or more extracted field entries.
	ActionExtract Action = "extract"
	// ActionClarify carries only a reply asking the inspector to rephrase.
	ActionClarify Action = "clarify"
	// ActionConfirm asks the inspector to confirm a completed record.
	ActionConfirm Action = "confirm"
)

func validAction(a Action) bool {
	switch a {
	case ActionExtract, ActionClarify, ActionConfirm:
		return true
	}
	return false
}

// Response is the structured outcome of one extraction turn. Missing,
// Complete, TotalScore and Grade are advisory here: the session controller
// recomputes all four from the merged record and never trusts these values.
type Response struct {
	Action     Action         `json:"action"`
	Fields     record.Partial `json:"fields,omitempty"`
	Reply      string         `json:"reply"`
	Missing    []record.Field `json:"missing_fields,omitempty"`
	Complete   bool           `json:"is_complete"`
	TotalScore int            `json:"total_score"`
	Grade      string         `json:"grade,omitempty"`
}

// Context is the conversation state handed to an extractor for one turn.
type Context struct {
	Batch      record.Batch
	Filled     record.Partial
	Missing    []record.Field
	Transcript string
}

// Extractor resolves one turn's transcript into a structured response.
type Extractor interface {
	Extract(ctx context.Context, turn Context) (*Response, error)
}
