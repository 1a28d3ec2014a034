package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"qcvoice/internal/fsm"
	"qcvoice/internal/ipc"
	"qcvoice/internal/record"
)

func TestHandlerStatusReportsProgress(t *testing.T) {
	ctrl, s := newMirroredController(t)
	handler := s.Handler(ctrl)

	ctrl.StartSession(context.Background(), record.Batch{Number: "B-100", Product: "frozen dumplings"})
	require.NoError(t, ctrl.SubmitText(context.Background(), "appearance score 18"))
	waitForIdleRecord(t, s, 1)
	require.NoError(t, ctrl.SubmitText(context.Background(), "smell score 20"))
	waitForIdleRecord(t, s, 2)

	resp := handler.Handle(context.Background(), ipc.Request{Command: "status"})
	require.True(t, resp.OK)
	require.Equal(t, "idle", resp.State)
	require.NotNil(t, resp.Progress)
	require.Equal(t, 2, resp.Progress.Completed)
	require.Equal(t, 5, resp.Progress.Total)
	require.Equal(t, 40, resp.Progress.Percentage)
	require.Equal(t, 38, resp.Score)
	require.Equal(t, "D", resp.Grade)
}

func TestHandlerHistoryListsConversation(t *testing.T) {
	ctrl, s := newMirroredController(t)
	handler := s.Handler(ctrl)

	ctrl.StartSession(context.Background(), record.Batch{Number: "B-1", Product: "noodles"})
	require.NoError(t, ctrl.SubmitText(context.Background(), "smell score 20"))
	waitForIdleRecord(t, s, 1)

	resp := handler.Handle(context.Background(), ipc.Request{Command: "history"})
	require.True(t, resp.OK)
	require.Contains(t, resp.Message, "user: smell score 20")
	require.Contains(t, resp.Message, "assistant: ")
}

func TestHandlerDelegatesMutatingCommands(t *testing.T) {
	ctrl, s := newMirroredController(t)
	handler := s.Handler(ctrl)

	ctrl.StartSession(context.Background(), record.Batch{Number: "B-1", Product: "noodles"})

	resp := handler.Handle(context.Background(), ipc.Request{Command: "text", Text: "weight score 19"})
	require.True(t, resp.OK, resp.Error)
	waitForIdleRecord(t, s, 1)

	resp = handler.Handle(context.Background(), ipc.Request{Command: "cancel"})
	require.True(t, resp.OK)
	require.Equal(t, "idle", resp.State)
}

func TestCancelSessionClearsMirror(t *testing.T) {
	ctrl, s := newMirroredController(t)

	ctrl.StartSession(context.Background(), record.Batch{Number: "B-1", Product: "noodles"})
	require.NoError(t, ctrl.SubmitText(context.Background(), "appearance score 18"))
	waitForIdleRecord(t, s, 1)

	ctrl.CancelSession(context.Background())

	require.False(t, s.Active())
	require.Eventually(t, func() bool {
		return s.Progress().Completed == 0 && len(s.History()) == 0
	}, 2*time.Second, 5*time.Millisecond)
	require.Empty(t, s.Record())
	require.Equal(t, 0, s.TotalScore())
	require.Empty(t, s.LastError())
}

func TestConfirmSubmitClearsMirror(t *testing.T) {
	ctrl, s := newMirroredController(t)
	handler := s.Handler(ctrl)

	ctrl.StartSession(context.Background(), record.Batch{Number: "B-1", Product: "noodles"})
	utterances := []string{
		"appearance score 18",
		"smell score 20",
		"specification score 16",
		"weight score 19",
		"packaging score 20",
	}
	for i, utterance := range utterances {
		require.NoError(t, ctrl.SubmitText(context.Background(), utterance))
		if i < len(utterances)-1 {
			waitForIdleRecord(t, s, i+1)
		}
	}
	require.Eventually(t, func() bool {
		return ctrl.State() == fsm.StateWaitingConfirm
	}, 2*time.Second, 5*time.Millisecond)

	resp := handler.Handle(context.Background(), ipc.Request{Command: "confirm"})
	require.True(t, resp.OK, resp.Error)

	require.False(t, s.Active())
	require.Eventually(t, func() bool {
		return s.Progress().Completed == 0 && len(s.History()) == 0
	}, 2*time.Second, 5*time.Millisecond)
	require.Equal(t, 0, s.TotalScore())
}
