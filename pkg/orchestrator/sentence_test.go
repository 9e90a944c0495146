package orchestrator

import "testing"

func TestSentenceQueueAddTextIgnoresLeadingWhitespace(t *testing.T) {
	q := NewSentenceQueue()
	q.AddText("   ")
	if !q.IsEmpty() {
		t.Fatalf("expected queue to remain empty after whitespace-only text")
	}
	q.AddText("hello")
	if q.IsEmpty() {
		t.Fatalf("expected queue to be non-empty once real text arrives")
	}
}

func TestSentenceQueueFinishCurrentQueuesSentence(t *testing.T) {
	q := NewSentenceQueue()
	q.AddText("Hello there")
	q.FinishCurrent()

	s := q.PopNext()
	if s == nil {
		t.Fatalf("expected a finished sentence to pop")
	}
	if !s.Finished() {
		t.Errorf("expected popped sentence to be finished")
	}
	if s.Text() != "Hello there" {
		t.Errorf("expected text 'Hello there', got %q", s.Text())
	}
	if q.PopNext() != nil {
		t.Errorf("expected no more sentences after draining the one finished sentence")
	}
}

func TestSentenceQueueAddEmotionStartsNewSentence(t *testing.T) {
	// "Hello [happy] friend!" yields ("Hello", neutral) then (" friend!", happy).
	q := NewSentenceQueue()
	q.AddText("Hello")
	q.AddEmotion("happy")
	q.AddText(" friend!")
	q.FinishCurrent()

	first := q.PopNext()
	if first == nil || first.Text() != "Hello" {
		t.Fatalf("expected first sentence text 'Hello', got %+v", first)
	}
	second := q.PopNext()
	if second == nil || second.Text() != " friend!" || second.Emotion() != "happy" {
		t.Fatalf("expected second sentence ' friend!' tagged happy, got %+v", second)
	}
}

func TestSentenceQueuePopNextReturnsGrowingSentenceOnce(t *testing.T) {
	q := NewSentenceQueue()
	q.AddText("still typing")

	first := q.PopNext()
	if first == nil {
		t.Fatalf("expected the growing sentence to be returned")
	}
	second := q.PopNext()
	if second != nil {
		t.Errorf("expected the growing sentence not to be handed out twice, got %+v", second)
	}
}

func TestSentenceQueueClearDropsPendingWork(t *testing.T) {
	q := NewSentenceQueue()
	q.AddText("first")
	q.FinishCurrent()
	q.AddText("second growing")

	q.Clear()

	if !q.IsEmpty() {
		t.Errorf("expected queue to be empty after Clear")
	}
	if q.PopNext() != nil {
		t.Errorf("expected no sentence after Clear")
	}
}

func TestBufferStreamDeliversFragmentsThenCloses(t *testing.T) {
	b := NewBufferStream()
	b.Add("hel")
	b.Add("lo")
	b.Stop()

	var out string
	for frag := range b.Gen() {
		out += frag
	}
	if out != "hello" {
		t.Errorf("expected 'hello', got %q", out)
	}
}
