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

// OpenAIStreamingLLM is an abortable SSE streaming client against an
// OpenAI-compatible /chat/completions endpoint: a short connect timeout
// with an unbounded read timeout (the model may think for a while but the
// TCP handshake should fail fast), and abort by closing the in-flight
// response body out from under the reading goroutine.
type OpenAIStreamingLLM struct {
	apiKey string
	url    string
	model  string

	mu     sync.Mutex
	active *http.Response
	aborted bool
}

// NewOpenAIStreamingLLM returns a streaming client. url defaults to the
// public OpenAI endpoint if empty, allowing LMStudio-compatible local
// servers to be pointed at instead.
func NewOpenAIStreamingLLM(apiKey, url, model string) *OpenAIStreamingLLM {
	if url == "" {
		url = "https://api.openai.com/v1/chat/completions"
	}
	if model == "" {
		model = "gpt-4o"
	}
	return &OpenAIStreamingLLM{apiKey: apiKey, url: url, model: model}
}

// GenerateResponse streams a chat completion, calling onToken for each
// incremental content delta. Returning a non-nil error from onToken stops
// the stream and propagates that error back to the caller. A 3-second
// timeout covers connecting and receiving the response headers; once the
// headers arrive, reading is bounded only by ctx.
func (l *OpenAIStreamingLLM) GenerateResponse(ctx context.Context, systemPrompt string, history []orchestrator.Message, onToken func(string) error) error {
	messages := make([]map[string]string, 0, len(history)+1)
	if systemPrompt != "" {
		messages = append(messages, map[string]string{"role": "system", "content": systemPrompt})
	}
	for _, m := range history {
		messages = append(messages, map[string]string{"role": m.Role, "content": m.Content})
	}

	payload := map[string]interface{}{
		"model":    l.model,
		"messages": messages,
		"stream":   true,
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
	if l.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+l.apiKey)
	}

	client := &http.Client{}
	resp, err := client.Do(req)
	connectTimer.Stop()
	if err != nil {
		return fmt.Errorf("openai stream connect: %w", err)
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
		return fmt.Errorf("openai stream error (status %d): %v", resp.StatusCode, errResp)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")
		if data == "[DONE]" {
			return nil
		}
		var chunk struct {
			Choices []struct {
				Delta struct {
					Content string `json:"content"`
				} `json:"delta"`
				FinishReason *string `json:"finish_reason"`
			} `json:"choices"`
		}
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			continue
		}
		for _, c := range chunk.Choices {
			if c.Delta.Content != "" {
				if err := onToken(c.Delta.Content); err != nil {
					return err
				}
			}
			if c.FinishReason != nil {
				return nil
			}
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

// Abort closes the in-flight response body, unblocking the reading
// goroutine's next Scan with an error GenerateResponse translates back to
// ErrCancelledByBarge. Idempotent and safe from any goroutine.
func (l *OpenAIStreamingLLM) Abort() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.aborted = true
	if l.active != nil {
		return l.active.Body.Close()
	}
	return nil
}

func (l *OpenAIStreamingLLM) Name() string { return "openai-streaming-llm" }
