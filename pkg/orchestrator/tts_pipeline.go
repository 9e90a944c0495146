package orchestrator

import (
	"context"
	"path/filepath"
	"sync"
	"time"
)

// StreamInfo describes a TTSEngine's current output format, as reported by
// GetStreamInfo.
type StreamInfo struct {
	SampleRate int
	Channels   int
	BytesPerSample int
}

// TTSEngine is the capability contract a concrete TTS backend must
// satisfy. It replaces dynamic attribute probing (hasattr-style checks on
// whatever the backend happens to expose) with a single static interface:
// every adapter either implements all of it, or the compiler catches the
// gap, rather than a probe silently no-opping at runtime.
type TTSEngine interface {
	// Feed queues the complete text of a finished sentence.
	Feed(text string)
	// FeedStream queues text incrementally as it becomes available on
	// fragments, for a sentence still being generated.
	FeedStream(fragments <-chan string)
	// PlayAsync starts playback, invoking onChunk for each PCM chunk
	// produced until the fed text is exhausted or ctx is cancelled.
	PlayAsync(ctx context.Context, onChunk func([]byte)) error
	// Stop halts playback immediately; safe to call even if not playing.
	Stop() error
	// IsPlaying reports whether audio is currently being produced.
	IsPlaying() bool
	// SetCloningReference selects a voice-clone reference clip, with an
	// optional transcript of its spoken content (promptText may be "").
	SetCloningReference(wavPath, promptText string) error
	// GetStreamInfo reports the engine's current output audio format.
	GetStreamInfo() StreamInfo
}

// TTSPipelineConfig configures a TTSPipeline.
type TTSPipelineConfig struct {
	ReferencesFolder string
	DebugLog         bool
}

// TTSPipeline drives a TTSEngine from a SentenceQueue. Run, one goroutine
// per turn, resolves sentences (and their voice-clone reference) and feeds
// the engine; engine playback runs in a goroutine started whenever the
// engine is idle and hands produced audio chunks to onChunk. StopNow
// performs a panic-stop: it halts the engine, drops pending sentences,
// and flags the engine for a rebuild on the next turn, mirroring how an
// interrupted streaming TTS session cannot simply resume mid-utterance.
// Audio already handed to onChunk is not touched.
type TTSPipeline struct {
	cfg    TTSPipelineConfig
	engine TTSEngine
	queue  *SentenceQueue
	ctrl   *BargeController
	logger Logger

	mu           sync.Mutex
	stopped      bool
	needsRebuild bool

	onChunk func([]byte)
}

// NewTTSPipeline constructs a pipeline. onChunk receives produced PCM
// audio; logger may be nil.
func NewTTSPipeline(cfg TTSPipelineConfig, engine TTSEngine, queue *SentenceQueue, ctrl *BargeController, onChunk func([]byte), logger Logger) *TTSPipeline {
	if logger == nil {
		logger = &NoOpLogger{}
	}
	return &TTSPipeline{cfg: cfg, engine: engine, queue: queue, ctrl: ctrl, onChunk: onChunk, logger: logger}
}

// Run drives the pipeline for one turn, playing sentences as they arrive
// until StopNow is called, the turn is cancelled or barged, or ctx ends;
// an empty queue alone does not end it.
// It is meant to be run in its own goroutine per turn, joined by the
// caller before starting the next one.
func (p *TTSPipeline) Run(ctx context.Context) {
	p.mu.Lock()
	p.stopped = false
	p.mu.Unlock()

	for {
		if p.isStopped() || p.ctrl.Cancelled() || p.ctrl.Barge() {
			return
		}
		select {
		case <-ctx.Done():
			return
		default:
		}
		sentence := p.queue.PopNext()
		if sentence == nil {
			time.Sleep(10 * time.Millisecond)
			continue
		}
		p.applyEmotion(sentence)
		p.playSentence(ctx, sentence)
		if p.queue.IsEmpty() && sentence.Finished() {
			// Nothing more queued and the last sentence handed out was
			// complete: the turn's text generation may still be running,
			// so keep looping rather than returning here.
		}
	}
}

func (p *TTSPipeline) applyEmotion(s *Sentence) {
	emotion := s.Emotion()
	if emotion == "" {
		emotion = "neutral"
	}
	path := filepath.Join(p.cfg.ReferencesFolder, emotion+".wav")
	promptPath := filepath.Join(p.cfg.ReferencesFolder, emotion+".txt")
	promptText := readTextFileBestEffort(promptPath)
	if fileExists(path) {
		if err := p.engine.SetCloningReference(path, promptText); err != nil {
			p.logger.Warn("set cloning reference failed", "path", path, "error", err)
		}
		return
	}
	neutral := filepath.Join(p.cfg.ReferencesFolder, "neutral.wav")
	if fileExists(neutral) {
		if err := p.engine.SetCloningReference(neutral, ""); err != nil {
			p.logger.Warn("set cloning reference failed", "path", neutral, "error", err)
		}
	}
}

func (p *TTSPipeline) playSentence(ctx context.Context, s *Sentence) {
	if s.Finished() {
		text := s.Text()
		if text == "" {
			return
		}
		p.engine.Feed(text)
		p.startPlaybackIfIdle(ctx)
		p.waitForIdleOrStop(ctx)
		return
	}

	buffer := NewBufferStream()
	p.engine.FeedStream(buffer.Gen())
	p.startPlaybackIfIdle(ctx)

	lastLen := 0
	for !s.Finished() {
		if p.isStopped() || p.ctrl.Cancelled() || p.ctrl.Barge() {
			p.StopNow()
			return
		}
		current := s.Text()
		if len(current) > lastLen {
			buffer.Add(current[lastLen:])
			lastLen = len(current)
		}
		time.Sleep(10 * time.Millisecond)
	}
	final := s.Text()
	if len(final) > lastLen {
		buffer.Add(final[lastLen:])
	}
	buffer.Stop()
	p.waitForIdleOrStop(ctx)
}

func (p *TTSPipeline) startPlaybackIfIdle(ctx context.Context) {
	if p.engine.IsPlaying() {
		return
	}
	go func() {
		if err := p.engine.PlayAsync(ctx, p.onChunk); err != nil {
			p.logger.Warn("tts playback error", "error", err)
		}
	}()
}

func (p *TTSPipeline) waitForIdleOrStop(ctx context.Context) {
	for p.engine.IsPlaying() {
		if p.isStopped() || p.ctrl.Cancelled() || p.ctrl.Barge() {
			p.StopNow()
			return
		}
		select {
		case <-ctx.Done():
			return
		default:
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func (p *TTSPipeline) isStopped() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopped
}

// StopNow halts playback immediately, drops pending sentences, and flags
// the engine as needing a rebuild before the next turn starts. Worker
// goroutines are not killed; Run simply returns once it observes stopped.
func (p *TTSPipeline) StopNow() {
	p.mu.Lock()
	p.stopped = true
	p.needsRebuild = true
	p.mu.Unlock()

	if err := p.engine.Stop(); err != nil {
		p.logger.Warn("tts engine stop failed", "error", err)
	}
	p.queue.Clear()
}

// NeedsRebuild reports whether StopNow was called since the last
// ClearRebuildFlag, signalling the engine's stream must be recreated
// before reuse.
func (p *TTSPipeline) NeedsRebuild() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.needsRebuild
}

// ClearRebuildFlag resets NeedsRebuild after the caller has rebuilt the
// engine's stream.
func (p *TTSPipeline) ClearRebuildFlag() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.needsRebuild = false
}
