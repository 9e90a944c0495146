package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/lokutor-ai/turnloop/pkg/orchestrator"
)

// AnthropicStreamingLLM streams a Messages API completion over SSE,
// reading content_block_delta events for text tokens.
type AnthropicStreamingLLM struct {
	apiKey string
	url    string
	model  string

	mu      sync.Mutex
	active  *http.Response
	aborted bool
}

// NewAnthropicStreamingLLM returns a streaming client.
func NewAnthropicStreamingLLM(apiKey, model string) *AnthropicStreamingLLM {
	if model == "" {
		model = "claude-3-5-sonnet-20240620"
	}
	return &AnthropicStreamingLLM{apiKey: apiKey, url: "https://api.anthropic.com/v1/messages", model: model}
}

// GenerateResponse streams tokens via onToken, same contract as
// OpenAIStreamingLLM.GenerateResponse.
func (l *AnthropicStreamingLLM) GenerateResponse(ctx context.Context, systemPrompt string, history []orchestrator.Message, onToken func(string) error) error {
	var anthropicMessages []map[string]string
	for _, m := range history {
		if m.Role == "system" {
			continue
		}
		anthropicMessages = append(anthropicMessages, map[string]string{"role": m.Role, "content": m.Content})
	}

	payload := map[string]interface{}{
		"model":      l.model,
		"messages":   anthropicMessages,
		"max_tokens": 1024,
		"stream":     true,
	}
	if systemPrompt != "" {
		payload["system"] = systemPrompt
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	l.mu.Lock()
	l.aborted = false
	l.mu.Unlock()

	reqCtx, cancelReq := context.WithCancel(ctx)
	defer cancelReq()
	connectTimer := time.AfterFunc(3*time.Second, cancelReq)
	req, err := http.NewRequestWithContext(reqCtx, "POST", l.url, bytes.NewReader(body))
	if err != nil {
		connectTimer.Stop()
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", l.apiKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	resp, err := http.DefaultClient.Do(req)
	connectTimer.Stop()
	if err != nil {
		return fmt.Errorf("anthropic stream connect: %w", err)
	}

	l.mu.Lock()
	if l.aborted {
		l.mu.Unlock()
		resp.Body.Close()
		return orchestrator.ErrCancelledByBarge
	}
	l.active = resp
	l.mu.Unlock()
	defer func() {
		l.mu.Lock()
		l.active = nil
		l.mu.Unlock()
		resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		var errResp interface{}
		json.NewDecoder(resp.Body).Decode(&errResp)
		return fmt.Errorf("anthropic stream error (status %d): %v", resp.StatusCode, errResp)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")
		var event struct {
			Type  string `json:"type"`
			Delta struct {
				Text string `json:"text"`
			} `json:"delta"`
		}
		if err := json.Unmarshal([]byte(data), &event); err != nil {
			continue
		}
		switch event.Type {
		case "content_block_delta":
			if event.Delta.Text != "" {
				if err := onToken(event.Delta.Text); err != nil {
					return err
				}
			}
		case "message_stop":
			return nil
		}
	}
	if err := scanner.Err(); err != nil {
		l.mu.Lock()
		aborted := l.aborted
		l.mu.Unlock()
		if aborted {
			return orchestrator.ErrCancelledByBarge
		}
		return err
	}
	return nil
}

// Abort closes the in-flight response body. Idempotent, safe from any
// goroutine.
func (l *AnthropicStreamingLLM) Abort() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.aborted = true
	if l.active != nil {
		return l.active.Body.Close()
	}
	return nil
}

func (l *AnthropicStreamingLLM) Name() string { return "anthropic-streaming-llm" }
