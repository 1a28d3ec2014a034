// Package synth voices reply text through an external text-to-speech command.
package synth

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"strings"
	"sync"
)

// baseWordsPerMinute is the speaking speed at rate 1.0.
const baseWordsPerMinute = 175

// ratePlaceholder in the configured argv is replaced by the computed
// words-per-minute value for the requested speech rate.
const ratePlaceholder = "{rate}"

// CommandSpeaker runs a configured command per utterance, feeding the text
// on stdin. One utterance plays at a time; Stop interrupts the current one.
type CommandSpeaker struct {
	argv []string

	mu     sync.Mutex
	cancel context.CancelFunc

	run func(ctx context.Context, argv []string, text string) error
}

// NewCommandSpeaker builds a speaker for the given argv template.
func NewCommandSpeaker(argv []string) (*CommandSpeaker, error) {
	if len(argv) == 0 {
		return nil, errors.New("synthesis command is empty")
	}
	return &CommandSpeaker{
		argv: append([]string(nil), argv...),
		run:  runCommand,
	}, nil
}

// Speak voices text at the given rate and blocks until playback finishes,
// the context is cancelled, or Stop is called.
func (s *CommandSpeaker) Speak(ctx context.Context, text string, rate float64) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.cancel = cancel
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		if s.cancel != nil {
			s.cancel()
			s.cancel = nil
		}
		s.mu.Unlock()
	}()

	argv := expandArgv(s.argv, rate)
	if err := s.run(runCtx, argv, text); err != nil {
		if runCtx.Err() != nil {
			return runCtx.Err()
		}
		return fmt.Errorf("synthesize speech: %w", err)
	}
	return nil
}

// Stop interrupts the in-flight utterance, if any.
func (s *CommandSpeaker) Stop(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	return nil
}

// expandArgv substitutes the rate placeholder with words per minute.
func expandArgv(argv []string, rate float64) []string {
	wpm := wordsPerMinute(rate)
	out := make([]string, len(argv))
	for i, arg := range argv {
		out[i] = strings.ReplaceAll(arg, ratePlaceholder, strconv.Itoa(wpm))
	}
	return out
}

// wordsPerMinute scales the base speed by rate, clamped to a sane range.
func wordsPerMinute(rate float64) int {
	if rate <= 0 {
		rate = 1.0
	}
	wpm := int(math.Round(baseWordsPerMinute * rate))
	if wpm < 80 {
		wpm = 80
	}
	if wpm > 450 {
		wpm = 450
	}
	return wpm
}

func runCommand(ctx context.Context, argv []string, text string) error {
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Stdin = strings.NewReader(text)
	return cmd.Run()
}
