package session

import (
	"context"

	"qcvoice/internal/chat"
	"qcvoice/internal/extract"
	"qcvoice/internal/fsm"
)

// processTurn resolves one transcript into record updates and the reply,
// then walks the state machine to its resting state. It runs on its own
// goroutine; the generation token gen decides whether its results may still
// touch controller state.
func (c *Controller) processTurn(turnCtx context.Context, gen uint64, turn extract.Context) {
	resp, err := c.extractor.Extract(turnCtx, turn)
	if err != nil || resp == nil {
		if turnCtx.Err() != nil {
			c.logDebug("turn abandoned before extraction resolved")
			return
		}
		// extraction must never surface; the heuristic path always yields
		// a usable response
		resp, _ = extract.Heuristic{}.Extract(turnCtx, turn)
	}

	assistantMsg := chat.New(chat.RoleAssistant, resp.Reply).WithFields(resp.Fields)

	c.mu.Lock()
	if gen != c.generation || !c.active {
		c.mu.Unlock()
		c.logDebug("stale extraction result discarded", "generation", gen)
		return
	}

	c.partial.Merge(resp.Fields)
	snapshot := snapshotRecord(c.partial)
	c.history = c.history.Append(assistantMsg)

	var confirmMsg *chat.Message
	if snapshot.Complete && c.opts.RepeatConfirmation {
		msg := chat.New(chat.RoleSystem, confirmationText(snapshot))
		c.history = c.history.Append(msg)
		confirmMsg = &msg
	}

	restEvent := fsm.EventDone
	if snapshot.Complete {
		restEvent = fsm.EventComplete
	}

	voice := c.opts.VoiceEnabled
	var next fsm.State
	if voice {
		next, _ = fsm.Transition(c.state, fsm.EventSpeak)
	} else {
		next, _ = fsm.Transition(c.state, restEvent)
	}
	c.state = next
	c.mu.Unlock()

	c.emitRecord(snapshot.Fields)
	c.emitMessage(assistantMsg)
	if confirmMsg != nil {
		c.emitMessage(*confirmMsg)
	}
	c.emitStatus(next)

	if !voice {
		return
	}

	spoken := resp.Reply
	if confirmMsg != nil {
		spoken = spoken + " " + confirmMsg.Text
	}
	c.speakReply(turnCtx, gen, spoken, restEvent)
}

// speakReply voices the turn reply and settles the state machine afterward.
// Synthesis failure is non-fatal: delivery degrades to text and the session
// continues.
func (c *Controller) speakReply(turnCtx context.Context, gen uint64, text string, restEvent fsm.Event) {
	err := c.speaker.Speak(turnCtx, text, c.opts.SpeechRate)
	if err != nil && turnCtx.Err() == nil {
		failMsg := chat.New(chat.RoleSystem, "Voice guidance unavailable; continuing in text only.")
		c.mu.Lock()
		stale := gen != c.generation
		if !stale && c.active {
			c.history = c.history.Append(failMsg)
		}
		c.mu.Unlock()
		if stale {
			return
		}
		c.emitError(err)
		c.emitMessage(failMsg)
		c.logWarn("synthesis failed", "error", err.Error())
	}

	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		return
	}
	next, terr := fsm.Transition(c.state, restEvent)
	if terr != nil {
		c.mu.Unlock()
		return
	}
	c.state = next
	c.mu.Unlock()
	c.emitStatus(next)
}
