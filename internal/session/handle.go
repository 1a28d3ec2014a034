package session

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"qcvoice/internal/ipc"
	"qcvoice/internal/record"
)

// Handle serves mutating IPC commands against the active session. The
// read-only views (status, history) are served by the store mirror, which
// wraps this handler in the daemon.
func (c *Controller) Handle(ctx context.Context, req ipc.Request) ipc.Response {
	switch req.Command {
	case "capture":
		return c.commandResponse(c.StartCapture(ctx), "capture started")
	case "stop":
		return c.commandResponse(c.StopCapture(ctx), "processing")
	case "text":
		return c.commandResponse(c.SubmitText(ctx, req.Text), "processing")
	case "confirm":
		finalized, err := c.ConfirmSubmit(ctx)
		if err != nil {
			return c.errorResponse(err)
		}
		return ipc.Response{
			OK:      true,
			State:   string(c.State()),
			Message: fmt.Sprintf("record submitted: total %d, grade %s", finalized.TotalScore, finalized.Grade),
			Score:   finalized.TotalScore,
			Grade:   finalized.Grade,
		}
	case "reset":
		return c.commandResponse(c.ResetSession(ctx), "session reset")
	case "cancel":
		c.CancelSession(ctx)
		return ipc.Response{OK: true, State: string(c.State()), Message: "session cancelled"}
	default:
		return ipc.Response{OK: false, State: string(c.State()), Error: fmt.Sprintf("unknown command: %s", req.Command)}
	}
}

func (c *Controller) commandResponse(err error, message string) ipc.Response {
	if err != nil {
		return c.errorResponse(err)
	}
	return ipc.Response{OK: true, State: string(c.State()), Message: message}
}

func (c *Controller) errorResponse(err error) ipc.Response {
	resp := ipc.Response{OK: false, State: string(c.State()), Error: err.Error()}
	if errors.Is(err, ErrIncompleteRecord) {
		snapshot := c.Snapshot()
		names := make([]string, 0, len(record.Fields()))
		for _, field := range snapshot.Record.Missing() {
			names = append(names, string(field))
		}
		resp.Error = fmt.Sprintf("%v: missing %s", err, strings.Join(names, ", "))
	}
	return resp
}
