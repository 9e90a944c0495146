package tts

import (
	"context"
	"sync"

	"github.com/lokutor-ai/turnloop/pkg/orchestrator"
)

// LokutorEngine adapts LokutorTTS's request/response websocket protocol to
// the orchestrator.TTSEngine capability contract: a text queue fed
// incrementally, played asynchronously with an audio-chunk callback, and
// stoppable mid-utterance. The underlying protocol synthesizes one text
// payload per request, so Feed/FeedStream here queue payloads that
// PlayAsync sends one at a time, closely mirroring how the reference
// engine streams one sentence (or growing fragment) through at once.
type LokutorEngine struct {
	client *LokutorTTS
	voice  orchestrator.Voice
	lang   orchestrator.Language

	mu            sync.Mutex
	pending       []string
	cloningWav    string
	cloningPrompt string
	playing       bool
	cancel        context.CancelFunc
}

// NewLokutorEngine wraps client as a TTSEngine using voice/lang for every
// synthesis request (the underlying protocol has no notion of a separate
// voice-clone channel distinct from the "voice" field, so
// SetCloningReference stores the reference path/transcript for adapters
// that pass it through a custom field; the stock protocol ignores it).
func NewLokutorEngine(client *LokutorTTS, voice orchestrator.Voice, lang orchestrator.Language) *LokutorEngine {
	return &LokutorEngine{client: client, voice: voice, lang: lang}
}

// Feed queues a complete sentence's text for playback.
func (e *LokutorEngine) Feed(text string) {
	if text == "" {
		return
	}
	e.mu.Lock()
	e.pending = append(e.pending, text)
	e.mu.Unlock()
}

// FeedStream drains fragments as they arrive and queues each one,
// effectively treating every fragment as its own synthesis request since
// the underlying protocol has no incremental-text append of its own.
func (e *LokutorEngine) FeedStream(fragments <-chan string) {
	go func() {
		for frag := range fragments {
			e.Feed(frag)
		}
	}()
}

// PlayAsync synthesizes and plays each queued text payload in order,
// invoking onChunk for every binary audio frame received, until the queue
// is empty or ctx/Stop cancels it.
func (e *LokutorEngine) PlayAsync(ctx context.Context, onChunk func([]byte)) error {
	playCtx, cancel := context.WithCancel(ctx)
	e.mu.Lock()
	e.playing = true
	e.cancel = cancel
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		e.playing = false
		e.cancel = nil
		e.mu.Unlock()
		cancel()
	}()

	for {
		text, ok := e.popPending()
		if !ok {
			return nil
		}
		err := e.client.StreamSynthesize(playCtx, text, e.voice, e.lang, func(chunk []byte) error {
			onChunk(chunk)
			return nil
		})
		if err != nil {
			if playCtx.Err() != nil {
				return nil
			}
			return err
		}
	}
}

func (e *LokutorEngine) popPending() (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.pending) == 0 {
		return "", false
	}
	text := e.pending[0]
	e.pending = e.pending[1:]
	return text, true
}

// Stop cancels any in-flight PlayAsync call and drops queued text.
func (e *LokutorEngine) Stop() error {
	e.mu.Lock()
	cancel := e.cancel
	e.pending = nil
	e.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	return nil
}

// IsPlaying reports whether PlayAsync is currently running.
func (e *LokutorEngine) IsPlaying() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.playing
}

// SetCloningReference records the voice-clone reference path and optional
// transcript. Synthesis requests do not include them.
func (e *LokutorEngine) SetCloningReference(wavPath, promptText string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cloningWav = wavPath
	e.cloningPrompt = promptText
	return nil
}

// GetStreamInfo reports the fixed 24kHz mono 16-bit PCM output format the
// Lokutor protocol streams.
func (e *LokutorEngine) GetStreamInfo() orchestrator.StreamInfo {
	return orchestrator.StreamInfo{SampleRate: 24000, Channels: 1, BytesPerSample: 2}
}
