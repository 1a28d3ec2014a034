// Package chat holds the session conversation history.
package chat

import (
	"time"

	"github.com/google/uuid"

	"qcvoice/internal/record"
)

// Role identifies who produced a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message is one conversation turn. Fields carries the snapshot of record
// fields extracted in that turn, nil for turns that extracted nothing.
type Message struct {
	ID        string         `json:"id"`
	Role      Role           `json:"role"`
	Text      string         `json:"text"`
	Timestamp time.Time      `json:"timestamp"`
	Fields    record.Partial `json:"fields,omitempty"`
}

// New builds a message with a fresh id and current timestamp.
func New(role Role, text string) Message {
	return Message{
		ID:        uuid.NewString(),
		Role:      role,
		Text:      text,
		Timestamp: time.Now(),
	}
}

// WithFields attaches an extracted-field snapshot to the message.
func (m Message) WithFields(fields record.Partial) Message {
	if len(fields) == 0 {
		return m
	}
	m.Fields = fields.Clone()
	return m
}

// History is an append-only ordered message list.
type History []Message

// Append returns the history extended with msg.
func (h History) Append(msg Message) History {
	return append(h, msg)
}

// Clone returns an independent copy for listener snapshots.
func (h History) Clone() History {
	out := make(History, len(h))
	for i, msg := range h {
		if msg.Fields != nil {
			msg.Fields = msg.Fields.Clone()
		}
		out[i] = msg
	}
	return out
}
