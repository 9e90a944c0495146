package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/lokutor-ai/turnloop/pkg/orchestrator"
)

type fakeLLMProvider struct {
	reply      string
	err        error
	beforeDone func()
}

func (f *fakeLLMProvider) Complete(ctx context.Context, messages []orchestrator.Message) (string, error) {
	if f.beforeDone != nil {
		f.beforeDone()
	}
	return f.reply, f.err
}

func (f *fakeLLMProvider) Name() string { return "fake-llm" }

func TestOneShotStreamingAdapterDeliversSingleToken(t *testing.T) {
	a := NewOneShotStreamingAdapter(&fakeLLMProvider{reply: "hello there"})

	var got string
	err := a.GenerateResponse(context.Background(), "be nice", nil, func(tok string) error {
		got += tok
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "hello there" {
		t.Errorf("expected 'hello there', got %q", got)
	}
}

func TestOneShotStreamingAdapterPropagatesProviderError(t *testing.T) {
	wantErr := errors.New("boom")
	a := NewOneShotStreamingAdapter(&fakeLLMProvider{err: wantErr})

	err := a.GenerateResponse(context.Background(), "", nil, func(string) error { return nil })
	if err != wantErr {
		t.Errorf("expected provider error to propagate, got %v", err)
	}
}

func TestOneShotStreamingAdapterAbortDuringCompleteSuppressesToken(t *testing.T) {
	var a *OneShotStreamingAdapter
	a = NewOneShotStreamingAdapter(&fakeLLMProvider{
		reply:      "too late",
		beforeDone: func() { a.Abort() },
	})

	called := false
	err := a.GenerateResponse(context.Background(), "", nil, func(string) error {
		called = true
		return nil
	})
	if err != orchestrator.ErrCancelledByBarge {
		t.Errorf("expected ErrCancelledByBarge, got %v", err)
	}
	if called {
		t.Errorf("expected onToken not to be called once aborted")
	}
}
