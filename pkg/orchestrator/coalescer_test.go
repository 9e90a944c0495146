package orchestrator

import (
	"testing"
	"time"
)

func TestUtteranceCoalescerFirstTurnBlocksUntilUtterance(t *testing.T) {
	ctrl := NewBargeController()
	c := NewUtteranceCoalescer(CoalescerConfig{SilenceTimeout: 10 * time.Millisecond}, ctrl)

	done := make(chan string, 1)
	go func() { done <- c.Next() }()

	select {
	case <-done:
		t.Fatalf("expected first turn to block past the silence timeout with no utterance")
	case <-time.After(30 * time.Millisecond):
	}

	ctrl.PushUtterance("hello")
	select {
	case got := <-done:
		if got != "hello" {
			t.Errorf("expected 'hello', got %q", got)
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for first utterance")
	}
}

func TestUtteranceCoalescerSilenceTimeoutAfterFirstTurn(t *testing.T) {
	ctrl := NewBargeController()
	c := NewUtteranceCoalescer(CoalescerConfig{SilenceTimeout: 10 * time.Millisecond}, ctrl)
	ctrl.PushUtterance("first")
	c.Next()

	got := c.Next()
	if got != SilentUtterance {
		t.Errorf("expected silence sentinel after timeout, got %q", got)
	}
}

func TestUtteranceCoalescerMergesQuicklyArrivingUtterances(t *testing.T) {
	// Three utterances arriving in quick succession should be joined into
	// one space-separated utterance.
	ctrl := NewBargeController()
	c := NewUtteranceCoalescer(DefaultCoalescerConfig(), ctrl)

	ctrl.PushUtterance("hello")
	ctrl.PushUtterance("are you there")
	ctrl.PushUtterance("hello??")

	got := c.Next()
	want := "hello are you there hello??"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}
