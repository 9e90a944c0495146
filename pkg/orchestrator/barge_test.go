package orchestrator

import "testing"

func TestBargeControllerRequestCancelImpliesBarge(t *testing.T) {
	ctrl := NewBargeController()
	if ctrl.Barge() || ctrl.Cancelled() {
		t.Fatalf("expected fresh controller to have no signals set")
	}
	ctrl.RequestCancel()
	if !ctrl.Barge() {
		t.Errorf("expected RequestCancel to also set barge")
	}
	if !ctrl.Cancelled() {
		t.Errorf("expected cancel to be set")
	}
}

func TestBargeControllerResetForNextTurn(t *testing.T) {
	ctrl := NewBargeController()
	ctrl.RequestCancel()
	ctrl.ResetForNextTurn()
	if ctrl.Barge() || ctrl.Cancelled() {
		t.Errorf("expected ResetForNextTurn to clear barge and cancel")
	}
}

func TestBargeControllerPushAndDrainUtterances(t *testing.T) {
	ctrl := NewBargeController()
	ctrl.PushUtterance("hello")
	got := <-ctrl.Utterances()
	if got != "hello" {
		t.Errorf("expected 'hello', got %q", got)
	}
}

func TestBargeControllerAISpeaking(t *testing.T) {
	ctrl := NewBargeController()
	if ctrl.AISpeaking() {
		t.Fatalf("expected AISpeaking to start false")
	}
	ctrl.SetAISpeaking(true)
	if !ctrl.AISpeaking() {
		t.Errorf("expected AISpeaking to be true after SetAISpeaking(true)")
	}
}
