package llm

import (
	"context"
	"sync"

	"github.com/lokutor-ai/turnloop/pkg/orchestrator"
)

// OneShotStreamingAdapter turns a one-shot orchestrator.LLMProvider (Google,
// Groq) into a orchestrator.StreamingLLM by fetching the whole completion
// and handing it to onToken as a single token. It cannot abort mid-request
// the way the native streaming clients do: Abort only prevents onToken from
// firing once the response has already arrived.
type OneShotStreamingAdapter struct {
	provider orchestrator.LLMProvider

	mu      sync.Mutex
	aborted bool
}

// NewOneShotStreamingAdapter wraps provider for use where a StreamingLLM is
// required.
func NewOneShotStreamingAdapter(provider orchestrator.LLMProvider) *OneShotStreamingAdapter {
	return &OneShotStreamingAdapter{provider: provider}
}

func (a *OneShotStreamingAdapter) GenerateResponse(ctx context.Context, systemPrompt string, history []orchestrator.Message, onToken func(string) error) error {
	a.mu.Lock()
	a.aborted = false
	a.mu.Unlock()

	messages := make([]orchestrator.Message, 0, len(history)+1)
	if systemPrompt != "" {
		messages = append(messages, orchestrator.Message{Role: "system", Content: systemPrompt})
	}
	messages = append(messages, history...)

	text, err := a.provider.Complete(ctx, messages)
	if err != nil {
		return err
	}

	a.mu.Lock()
	aborted := a.aborted
	a.mu.Unlock()
	if aborted {
		return orchestrator.ErrCancelledByBarge
	}
	if text == "" {
		return nil
	}
	return onToken(text)
}

// Abort marks the in-flight call as cancelled. Since Complete is a single
// blocking round trip, this only takes effect if it races the response
// already landing; it cannot cut the HTTP request short.
func (a *OneShotStreamingAdapter) Abort() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.aborted = true
	return nil
}

func (a *OneShotStreamingAdapter) Name() string { return "oneshot-streaming:" + a.provider.Name() }
