package orchestrator

import (
	"context"
	"testing"
	"time"
)

type fakeStreamingLLM struct {
	reply      string
	bargeAfter int // cancel the controller after this many tokens fed
	ctrl       *BargeController
	aborted    bool
}

func (f *fakeStreamingLLM) GenerateResponse(ctx context.Context, systemPrompt string, history []Message, onToken func(string) error) error {
	for i, tok := range splitIntoTokens(f.reply) {
		if f.bargeAfter > 0 && i == f.bargeAfter {
			f.ctrl.RequestCancel()
		}
		if err := onToken(tok); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeStreamingLLM) Abort() error {
	f.aborted = true
	return nil
}

func splitIntoTokens(s string) []string {
	var out []string
	for _, r := range s {
		out = append(out, string(r))
	}
	return out
}

func newTestTurnOrchestrator(t *testing.T, llm StreamingLLM, ctrl *BargeController, firstUtterance string) (*TurnOrchestrator, *Conversation) {
	t.Helper()
	queue := NewSentenceQueue()
	engine := &fakeTTSEngine{}
	tts := NewTTSPipeline(TTSPipelineConfig{}, engine, queue, ctrl, func([]byte) {}, nil)
	conv := NewConversation(0, 0, nil)
	coalescer := NewUtteranceCoalescer(DefaultCoalescerConfig(), ctrl)
	ctrl.PushUtterance(firstUtterance)

	orch := NewTurnOrchestrator(
		TurnOrchestratorConfig{SystemPrompt: "be nice"},
		ctrl, coalescer, llm, tts, queue, engine, conv, nil, nil, nil,
	)
	return orch, conv
}

func TestTurnOrchestratorCompletesCleanTurn(t *testing.T) {
	ctrl := NewBargeController()
	llm := &fakeStreamingLLM{reply: "hi"}
	orch, conv := newTestTurnOrchestrator(t, llm, ctrl, "hello")

	done := make(chan error, 1)
	go func() { done <- orch.RunTurn(context.Background()) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("RunTurn did not return")
	}

	hist := conv.GetHistory()
	if len(hist) != 2 {
		t.Fatalf("expected exactly 2 history entries (user + assistant), got %d: %+v", len(hist), hist)
	}
	if hist[0].Content != "hello" || hist[0].Role != "user" {
		t.Errorf("expected first entry to be the user utterance, got %+v", hist[0])
	}
	if hist[1].Content != "hi" || hist[1].Role != "assistant" {
		t.Errorf("expected second entry to be the assistant reply, got %+v", hist[1])
	}
	if orch.State() != StateIdle {
		t.Errorf("expected orchestrator to return to Idle, got %s", orch.State())
	}
}

func TestTurnOrchestratorDiscardsPartialReplyOnBargeIn(t *testing.T) {
	ctrl := NewBargeController()
	llm := &fakeStreamingLLM{reply: "this is a long reply", bargeAfter: 3, ctrl: ctrl}
	orch, conv := newTestTurnOrchestrator(t, llm, ctrl, "hello")

	done := make(chan error, 1)
	go func() { done <- orch.RunTurn(context.Background()) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("RunTurn did not return")
	}

	// Invariant: a cancelled turn adds exactly the user's message, never a
	// partial assistant message, to history.
	hist := conv.GetHistory()
	if len(hist) != 1 {
		t.Fatalf("expected exactly 1 history entry after a barged turn, got %d: %+v", len(hist), hist)
	}
	if hist[0].Role != "user" {
		t.Errorf("expected the surviving entry to be the user's utterance, got %+v", hist[0])
	}
	if !llm.aborted {
		t.Errorf("expected the LLM to have been aborted")
	}
	if orch.State() != StateIdle {
		t.Errorf("expected orchestrator to return to Idle after cancellation, got %s", orch.State())
	}
}

func TestTurnOrchestratorProceedsThroughLLMOnSilence(t *testing.T) {
	ctrl := NewBargeController()
	llm := &fakeStreamingLLM{reply: "still here"}
	queue := NewSentenceQueue()
	engine := &fakeTTSEngine{}
	tts := NewTTSPipeline(TTSPipelineConfig{}, engine, queue, ctrl, func([]byte) {}, nil)
	conv := NewConversation(0, 0, nil)
	coalescer := NewUtteranceCoalescer(CoalescerConfig{SilenceTimeout: 10 * time.Millisecond}, ctrl)
	ctrl.PushUtterance("first turn primes the coalescer")

	orch := NewTurnOrchestrator(
		TurnOrchestratorConfig{}, ctrl, coalescer, llm, tts, queue, engine, conv, nil, nil, nil,
	)
	// Drain the first (always-blocking) turn so the coalescer moves into
	// its silence-timeout mode.
	if err := orch.RunTurn(context.Background()); err != nil {
		t.Fatalf("unexpected error priming first turn: %v", err)
	}

	if err := orch.RunTurn(context.Background()); err != nil {
		t.Fatalf("unexpected error on silent turn: %v", err)
	}

	// S1: a silence timeout still proceeds Listening->Thinking, recording
	// the sentinel user message and the LLM's reply, rather than
	// short-circuiting straight back to Idle.
	hist := conv.GetHistory()
	if len(hist) != 4 {
		t.Fatalf("expected 4 history entries (2 per turn), got %d: %+v", len(hist), hist)
	}
	if hist[2].Role != "user" || hist[2].Content != SilentUtterance {
		t.Errorf("expected the silent turn's user entry to be the sentinel, got %+v", hist[2])
	}
	if hist[3].Role != "assistant" || hist[3].Content != "still here" {
		t.Errorf("expected the LLM reply to be recorded after the sentinel, got %+v", hist[3])
	}
	if orch.State() != StateIdle {
		t.Errorf("expected orchestrator to return to Idle, got %s", orch.State())
	}
}
