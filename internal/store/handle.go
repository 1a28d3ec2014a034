package store

import (
	"context"
	"fmt"
	"strings"

	"qcvoice/internal/ipc"
	"qcvoice/internal/record"
)

// Handler wraps next so that the read-only views (status, history) are
// answered from the mirror while every mutating command passes through to
// the controller.
func (s *Store) Handler(next ipc.Handler) ipc.Handler {
	return ipc.HandlerFunc(func(ctx context.Context, req ipc.Request) ipc.Response {
		switch req.Command {
		case "status":
			return s.statusResponse()
		case "history":
			return s.historyResponse()
		default:
			return next.Handle(ctx, req)
		}
	})
}

func (s *Store) statusResponse() ipc.Response {
	progress := s.Progress()
	total := s.TotalScore()
	return ipc.Response{
		OK:      true,
		State:   string(s.State()),
		Message: "status",
		Error:   s.LastError(),
		Progress: &ipc.Progress{
			Completed:  progress.Completed,
			Total:      progress.Total,
			Percentage: progress.Percentage,
		},
		Score: total,
		Grade: record.Grade(total),
	}
}

func (s *Store) historyResponse() ipc.Response {
	history := s.History()
	lines := make([]string, 0, len(history))
	for _, msg := range history {
		lines = append(lines, fmt.Sprintf("%s: %s", msg.Role, msg.Text))
	}
	return ipc.Response{
		OK:      true,
		State:   string(s.State()),
		Message: strings.Join(lines, "\n"),
	}
}
