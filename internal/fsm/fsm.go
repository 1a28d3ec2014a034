package fsm

import "fmt"

type State string

type Event string

const (
	StateIdle           State = "idle"
	StateListening      State = "listening"
	StateProcessing     State = "processing"
	StateSpeaking       State = "speaking"
	StateWaitingConfirm State = "waiting_confirm"
	StateError          State = "error"
)

const (
	EventListen     Event = "listen"
	EventTranscript Event = "transcript"
	EventSubmit     Event = "submit"
	EventSpeak      Event = "speak"
	EventDone       Event = "done"
	EventComplete   Event = "complete"
	EventConfirm    Event = "confirm"
	EventCancel     Event = "cancel"
	EventFail       Event = "fail"
	EventReset      Event = "reset"
)

func Transition(current State, event Event) (State, error) {
	switch event {
	case EventFail:
		return StateError, nil
	case EventCancel, EventReset:
		return StateIdle, nil
	}

	switch current {
	case StateIdle:
		switch event {
		case EventListen:
			return StateListening, nil
		case EventSubmit:
			return StateProcessing, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateListening:
		switch event {
		case EventTranscript:
			return StateProcessing, nil
		case EventDone:
			// empty transcript short-circuits back to idle
			return StateIdle, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateProcessing:
		switch event {
		case EventSpeak:
			return StateSpeaking, nil
		case EventDone:
			return StateIdle, nil
		case EventComplete:
			return StateWaitingConfirm, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateSpeaking:
		switch event {
		case EventDone:
			return StateIdle, nil
		case EventComplete:
			return StateWaitingConfirm, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateWaitingConfirm:
		switch event {
		case EventConfirm:
			return StateIdle, nil
		case EventSubmit:
			// corrections are still accepted before the record is confirmed
			return StateProcessing, nil
		case EventListen:
			return StateListening, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateError:
		switch event {
		case EventDone:
			return StateIdle, nil
		default:
			return current, invalidTransition(current, event)
		}
	default:
		return current, fmt.Errorf("unknown state %q", current)
	}
}

func invalidTransition(state State, event Event) error {
	return fmt.Errorf("invalid transition: %s --(%s)--> ?", state, event)
}
