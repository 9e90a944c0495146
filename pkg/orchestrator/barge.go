package orchestrator

import "sync/atomic"

// BargeController tracks the three level-triggered signals that cross-cut
// a turn: whether the assistant is currently speaking, whether a barge-in
// has been detected, and whether the active turn has been cancelled.
// Readers poll these fields instead of blocking on a channel close, since
// many call sites (token loop, audio writer) need to check state on every
// iteration without risking a double-close panic.
type BargeController struct {
	aiSpeaking atomic.Bool
	barge      atomic.Bool
	cancel     atomic.Bool

	utterances chan string
}

// NewBargeController returns a controller with a bounded utterance queue;
// in practice at most one or two utterances ever queue up between turns.
func NewBargeController() *BargeController {
	return &BargeController{
		utterances: make(chan string, 16),
	}
}

// AISpeaking reports whether the assistant is currently producing audio.
func (b *BargeController) AISpeaking() bool { return b.aiSpeaking.Load() }

// SetAISpeaking updates the ai-speaking signal.
func (b *BargeController) SetAISpeaking(v bool) { b.aiSpeaking.Store(v) }

// Barge reports whether a barge-in has been detected for the active turn.
func (b *BargeController) Barge() bool { return b.barge.Load() }

// Cancelled reports whether the active turn has been cancelled.
func (b *BargeController) Cancelled() bool { return b.cancel.Load() }

// RequestCancel flags the current turn for cancellation. Barge is always
// set alongside cancel so that any caller polling only Barge() still
// observes the interruption (cancel implies barge, never the reverse).
func (b *BargeController) RequestCancel() {
	b.barge.Store(true)
	b.cancel.Store(true)
}

// RequestBarge flags a barge-in without necessarily cancelling the turn
// outright (used by the mic energy watcher, which fires earlier and more
// speculatively than a confirmed utterance).
func (b *BargeController) RequestBarge() {
	b.barge.Store(true)
}

// ResetForNextTurn clears cancel/barge ahead of starting a new turn. It
// does not touch AISpeaking, which the turn orchestrator sets and clears.
func (b *BargeController) ResetForNextTurn() {
	b.cancel.Store(false)
	b.barge.Store(false)
}

// PushUtterance enqueues a finalized STT result for the turn loop to
// consume. It blocks once the queue is full: a bound of 16 is a
// back-pressure signal to the STT worker, not a license to drop
// utterances silently. An utterance arriving while the assistant is
// speaking is itself a barge-in signal, so it also flags barge.
func (b *BargeController) PushUtterance(text string) {
	if b.aiSpeaking.Load() {
		b.RequestBarge()
	}
	b.utterances <- text
}

// Utterances exposes the underlying channel for the coalescer to drain.
func (b *BargeController) Utterances() chan string { return b.utterances }
