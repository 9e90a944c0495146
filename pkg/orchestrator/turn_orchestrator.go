package orchestrator

import (
	"context"
	"sync"
	"time"
)

// TurnState names the states of the turn-taking state machine.
type TurnState string

const (
	StateIdle        TurnState = "IDLE"
	StateListening   TurnState = "LISTENING"
	StateThinking    TurnState = "THINKING"
	StateSpeaking    TurnState = "SPEAKING"
	StateCancelling  TurnState = "CANCELLING"
	StateShuttingDown TurnState = "SHUTTING_DOWN"
)

// StreamingLLM is the abortable, streaming contract a turn orchestrator
// drives an LLM provider through.
type StreamingLLM interface {
	GenerateResponse(ctx context.Context, systemPrompt string, history []Message, onToken func(string) error) error
	Abort() error
}

// TurnOrchestratorConfig bundles a turn's collaborators and static
// configuration.
type TurnOrchestratorConfig struct {
	SystemPrompt string
}

// TurnOrchestrator drives one full turn at a time: pull a coalesced
// utterance, stream an LLM response through a token parser into a
// sentence queue, play it out through a TTS pipeline, all while polling
// BargeController for cancellation. It composes the A-J components; it
// owns none of their internal locking, only the state field and the
// per-turn context.
type TurnOrchestrator struct {
	cfg       TurnOrchestratorConfig
	ctrl      *BargeController
	coalescer *UtteranceCoalescer
	llm       StreamingLLM
	tts       *TTSPipeline
	queue     *SentenceQueue
	engine    TTSEngine
	conv      *Conversation
	logger    Logger
	metrics   *Metrics
	onEvent   func(OrchestratorEvent)

	mu    sync.Mutex
	state TurnState
}

// NewTurnOrchestrator constructs an orchestrator in the Idle state. queue
// must be the same SentenceQueue tts was constructed with: the token parser
// writes into it and the TTS pipeline reads from it, so they have to be the
// same object, not two queues that happen to start out equal.
func NewTurnOrchestrator(
	cfg TurnOrchestratorConfig,
	ctrl *BargeController,
	coalescer *UtteranceCoalescer,
	llm StreamingLLM,
	tts *TTSPipeline,
	queue *SentenceQueue,
	engine TTSEngine,
	conv *Conversation,
	metrics *Metrics,
	logger Logger,
	onEvent func(OrchestratorEvent),
) *TurnOrchestrator {
	if logger == nil {
		logger = &NoOpLogger{}
	}
	if onEvent == nil {
		onEvent = func(OrchestratorEvent) {}
	}
	return &TurnOrchestrator{
		cfg: cfg, ctrl: ctrl, coalescer: coalescer, llm: llm, tts: tts,
		queue: queue, engine: engine, conv: conv, metrics: metrics, logger: logger,
		onEvent: onEvent, state: StateIdle,
	}
}

// State returns the orchestrator's current state.
func (t *TurnOrchestrator) State() TurnState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *TurnOrchestrator) setState(s TurnState) {
	t.mu.Lock()
	t.state = s
	t.mu.Unlock()
}

// CancelNow commits to aborting the in-flight turn: sets the cancel (and
// therefore barge) signal, panic-stops the TTS pipeline, best-effort
// aborts the LLM call, and emits an Interrupted event. It leaves the
// signals set until ResetForNextTurn runs at the start of the next turn,
// and is safe to call more than once for the same turn.
func (t *TurnOrchestrator) CancelNow() {
	t.ctrl.RequestCancel()
	t.tts.StopNow()
	_ = t.llm.Abort()
	t.onEvent(OrchestratorEvent{Type: Interrupted})
}

// waitForPlayout blocks until the sentence queue has drained and the
// engine has stopped producing audio, polling the barge signal
// continuously. A barge-in observed mid-playout commits to cancellation
// and breaks the wait immediately rather than letting the tail of the
// utterance play out.
func (t *TurnOrchestrator) waitForPlayout(turnCtx context.Context) {
	for {
		if t.ctrl.Cancelled() {
			return
		}
		if t.ctrl.Barge() {
			t.CancelNow()
			return
		}
		if t.queue.IsEmpty() && !t.engine.IsPlaying() {
			return
		}
		select {
		case <-turnCtx.Done():
			return
		case <-time.After(10 * time.Millisecond):
		}
	}
}

// RunTurn executes exactly one Listening->Thinking->Speaking cycle,
// returning to Idle (via Cancelling if barged) before it returns. It blocks on the coalescer for the next utterance, so callers
// typically invoke this in a loop for the lifetime of a conversation.
func (t *TurnOrchestrator) RunTurn(ctx context.Context) error {
	t.setState(StateListening)

	utterance := t.coalescer.Next()
	start := time.Now()

	// Overlap across the turn boundary: the assistant may still be
	// speaking (or have a pending barge from its own last turn) by the
	// time this next utterance lands. Commit to cancelling the trailing
	// audio before starting the new turn.
	if t.ctrl.Barge() && t.ctrl.AISpeaking() {
		t.CancelNow()
	}

	t.conv.AddUserMessage(utterance)
	t.onEvent(OrchestratorEvent{Type: TranscriptFinal, Data: utterance})

	t.setState(StateThinking)
	t.conv.TruncateHistory(t.cfg.SystemPrompt)
	history := t.conv.GetHistory()

	t.queue.Clear()
	parser := NewTokenParser(t.queue, t.ctrl)

	t.ctrl.ResetForNextTurn()
	t.ctrl.SetAISpeaking(true)

	turnCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var assistantText string
	var wg sync.WaitGroup
	wg.Add(1)
	ttsPipeline := t.tts
	go func() {
		defer wg.Done()
		ttsPipeline.Run(turnCtx)
	}()

	t.setState(StateSpeaking)
	t.onEvent(OrchestratorEvent{Type: BotSpeaking})

	genErr := t.llm.GenerateResponse(turnCtx, t.cfg.SystemPrompt, history, func(tok string) error {
		assistantText += tok
		if parser.Feed(tok) == Cancelled {
			t.CancelNow()
			return ErrCancelledByBarge
		}
		return nil
	})

	if t.ctrl.Cancelled() {
		t.setState(StateCancelling)
		wg.Wait()
		t.ctrl.SetAISpeaking(false)
		// Partial assistant text from an interrupted turn is discarded,
		// not recorded into history.
		t.setState(StateIdle)
		if t.metrics != nil {
			t.metrics.RecordBargeIn()
		}
		return nil
	}

	parser.Finish()
	t.waitForPlayout(turnCtx)
	cancel()
	wg.Wait()
	t.ctrl.SetAISpeaking(false)

	if t.ctrl.Cancelled() {
		t.setState(StateCancelling)
		// Partial assistant text from an interrupted turn is discarded,
		// not recorded into history.
		t.setState(StateIdle)
		if t.metrics != nil {
			t.metrics.RecordBargeIn()
		}
		return nil
	}

	if genErr != nil && genErr != ErrCancelledByBarge {
		t.logger.Error("llm generation failed", "error", genErr)
		t.onEvent(OrchestratorEvent{Type: ErrorEvent, Data: genErr.Error()})
		t.setState(StateIdle)
		return genErr
	}

	t.conv.AddAssistantMessage(assistantText)
	if t.metrics != nil {
		t.metrics.RecordTurn(time.Since(start).Seconds())
	}
	t.setState(StateIdle)
	return nil
}

// Shutdown transitions to ShuttingDown; callers stop invoking RunTurn and
// tear down collaborators once they observe this state.
func (t *TurnOrchestrator) Shutdown() {
	t.setState(StateShuttingDown)
}
