package orchestrator

import (
	"strings"
	"time"
)

// SilentUtterance is the sentinel text returned when a non-first turn's
// silence window expires without any speech.
const SilentUtterance = "(says nothing)"

// CoalescerConfig configures an UtteranceCoalescer.
type CoalescerConfig struct {
	// SilenceTimeout bounds how long turns after the first wait for an
	// utterance before returning SilentUtterance. The first turn always
	// blocks indefinitely, per the asymmetry the turn orchestrator relies
	// on to avoid talking over a user who simply hasn't started yet.
	SilenceTimeout time.Duration
}

// DefaultCoalescerConfig returns the 5-second silence timeout used from
// the second turn onward.
func DefaultCoalescerConfig() CoalescerConfig {
	return CoalescerConfig{SilenceTimeout: 5 * time.Second}
}

// UtteranceCoalescer merges STT results that arrive in quick succession
// (e.g. a speaker pausing mid-thought) into a single turn input, and
// applies the first-turn/later-turn silence asymmetry.
type UtteranceCoalescer struct {
	cfg       CoalescerConfig
	ctrl      *BargeController
	firstTurn bool
}

// NewUtteranceCoalescer returns a coalescer reading from ctrl's utterance
// queue.
func NewUtteranceCoalescer(cfg CoalescerConfig, ctrl *BargeController) *UtteranceCoalescer {
	return &UtteranceCoalescer{cfg: cfg, ctrl: ctrl, firstTurn: true}
}

// Next blocks for the next coalesced utterance. On the first call it
// blocks indefinitely; afterward it applies the configured silence
// timeout and returns SilentUtterance on expiry. Once at least one
// utterance has arrived, it drains any further utterances already queued
// (without blocking) and joins them with a space, so a user's quick
// follow-up clause isn't split into two separate turns.
func (c *UtteranceCoalescer) Next() string {
	first := c.firstTurn
	c.firstTurn = false

	var initial string
	if first {
		initial = <-c.ctrl.Utterances()
	} else {
		select {
		case initial = <-c.ctrl.Utterances():
		case <-time.After(c.cfg.SilenceTimeout):
			return SilentUtterance
		}
	}

	parts := []string{initial}
drain:
	for {
		select {
		case next := <-c.ctrl.Utterances():
			parts = append(parts, next)
		default:
			break drain
		}
	}
	return strings.Join(parts, " ")
}
