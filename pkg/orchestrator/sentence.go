package orchestrator

import (
	"strings"
	"sync"
)

// Sentence is a unit of text being accumulated for TTS, optionally tagged
// with an emotion. It starts unfinished and growing; FinishCurrent marks it
// complete so the TTS pipeline knows no more text will arrive for it.
type Sentence struct {
	mu        sync.Mutex
	id        int
	text      strings.Builder
	emotion   string
	finished  bool
	retrieved bool
	popped    bool
}

func newSentence(id int) *Sentence {
	return &Sentence{id: id}
}

// ID returns the sentence's queue-assigned identifier, stable for its life.
func (s *Sentence) ID() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

// Text returns the text accumulated so far.
func (s *Sentence) Text() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.text.String()
}

// Emotion returns the sentence's emotion tag, or "" if none was set.
func (s *Sentence) Emotion() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.emotion
}

// Finished reports whether no more text will be appended to this sentence.
func (s *Sentence) Finished() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finished
}

func (s *Sentence) appendText(t string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.text.WriteString(t)
}

func (s *Sentence) setEmotion(e string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.emotion = e
}

func (s *Sentence) finish() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finished = true
}

func (s *Sentence) hasText() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.text.Len() > 0
}

// SentenceQueue builds sentences incrementally from a token stream and
// hands completed or in-progress sentences to a consumer (the TTS
// pipeline). A single "current" sentence grows until an emotion change or
// an explicit FinishCurrent moves it to the completed queue.
type SentenceQueue struct {
	mu      sync.Mutex
	nextID  int
	current *Sentence
	queue   []*Sentence
}

// NewSentenceQueue returns an empty queue with a fresh, empty current
// sentence ready to accept text.
func NewSentenceQueue() *SentenceQueue {
	q := &SentenceQueue{}
	q.current = newSentence(q.nextID)
	return q
}

// AddText appends text to the growing current sentence. Whitespace-only
// text is dropped when the current sentence has no text yet, so a sentence
// never starts on pure whitespace.
func (q *SentenceQueue) AddText(text string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if strings.TrimSpace(text) == "" && !q.current.hasText() {
		return
	}
	q.current.appendText(text)
}

// AddEmotion sets the emotion for the next sentence. If the current
// sentence already has text, it is finished and pushed to the queue first,
// and a fresh current sentence takes the new emotion; an emotion asserted
// before any text simply tags the still-empty current sentence.
func (q *SentenceQueue) AddEmotion(emotion string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.current.hasText() {
		q.current.finish()
		q.queue = append(q.queue, q.current)
		q.nextID++
		q.current = newSentence(q.nextID)
	}
	q.current.setEmotion(emotion)
}

// FinishCurrent closes out the current sentence (if it has any text) and
// starts a fresh one.
func (q *SentenceQueue) FinishCurrent() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.current.hasText() {
		return
	}
	q.current.finish()
	q.queue = append(q.queue, q.current)
	q.nextID++
	q.current = newSentence(q.nextID)
}

// PopNext returns a sentence for the TTS pipeline to play: a completed
// sentence from the queue if one is pending, otherwise the growing current
// sentence (returned at most once via the retrieved flag, so the pipeline
// is not handed the same live sentence object repeatedly once it has
// already started consuming it), otherwise nil. A completed sentence that
// was already handed out while growing is dropped from the queue rather
// than returned again.
func (q *SentenceQueue) PopNext() *Sentence {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.queue) > 0 {
		s := q.queue[0]
		q.queue = q.queue[1:]
		s.mu.Lock()
		s.popped = true
		retrieved := s.retrieved
		s.mu.Unlock()
		if !retrieved {
			return s
		}
	}
	q.current.mu.Lock()
	alreadyRetrieved := q.current.retrieved
	hasText := q.current.text.Len() > 0
	q.current.mu.Unlock()
	if hasText && !alreadyRetrieved {
		q.current.mu.Lock()
		q.current.retrieved = true
		q.current.mu.Unlock()
		return q.current
	}
	return nil
}

// IsEmpty reports whether there is neither a pending completed sentence nor
// any unretrieved text in the current sentence.
func (q *SentenceQueue) IsEmpty() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.queue) > 0 {
		return false
	}
	return !q.current.hasText() || q.current.retrieved
}

// Clear drops all pending completed sentences and resets the current
// sentence, used by the TTS pipeline's panic-stop path so tail audio from
// an interrupted turn never resumes.
func (q *SentenceQueue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.queue = nil
	q.current.finish()
	q.nextID++
	q.current = newSentence(q.nextID)
}

// bufferStopped is an unused sentinel value; BufferStream marks the end of
// its stream by closing the channel in Stop.
const bufferStopped = "\x00stop"

// BufferStream lets the TTS pipeline feed a still-growing sentence's text
// to an engine incrementally, without waiting for the whole sentence to
// finish. Add appends a new fragment; Gen returns a channel that yields
// fragments as they arrive and closes once Stop is called and all
// buffered fragments are drained.
type BufferStream struct {
	mu      sync.Mutex
	buf     []string
	stopped bool
	ch      chan string
	once    sync.Once
}

// NewBufferStream returns an empty, unstarted buffer stream.
func NewBufferStream() *BufferStream {
	return &BufferStream{ch: make(chan string, 64)}
}

// Add enqueues a text fragment. Safe to call before or after Gen starts
// consuming.
func (b *BufferStream) Add(text string) {
	b.mu.Lock()
	stopped := b.stopped
	b.mu.Unlock()
	if stopped || text == "" {
		return
	}
	b.ch <- text
}

// Stop signals no more fragments will be added. Gen's channel closes once
// any fragments already queued have been delivered.
func (b *BufferStream) Stop() {
	b.once.Do(func() {
		b.mu.Lock()
		b.stopped = true
		b.mu.Unlock()
		close(b.ch)
	})
}

// Gen returns the channel of fragments. It may only be consumed once;
// nothing in this package restarts a BufferStream after Stop.
func (b *BufferStream) Gen() <-chan string {
	return b.ch
}
