package orchestrator

import "strings"

// ParserResult is the outcome of feeding one token through a TokenParser,
// replacing an exception-based abort with an explicit, inspectable value.
type ParserResult int

const (
	// Continue means the token was consumed normally.
	Continue ParserResult = iota
	// Cancelled means the controller's cancel or barge signal was observed
	// and the caller should stop pulling further tokens from the LLM stream.
	Cancelled
)

var validEmotions = map[string]bool{
	"neutral": true, "happy": true, "sad": true, "angry": true,
	"surprised": true, "fearful": true, "disgusted": true, "calm": true,
}

type parserState int

const (
	statePlain parserState = iota
	stateInEmotion
)

// TokenParser consumes an LLM's incremental token stream, splitting plain
// text from "[emotion]" bracket tags and feeding both into a SentenceQueue.
// It polls a BargeController on every token so a caller driving tokens in
// a tight loop can bail out promptly on barge-in.
type TokenParser struct {
	state   parserState
	plain   strings.Builder
	tagBuf  strings.Builder
	queue   *SentenceQueue
	ctrl    *BargeController

	// pendingSpace holds a word separator seen at a flush boundary until
	// more text follows, so a sentence never ends in whitespace.
	pendingSpace bool
	emitted      bool
}

// NewTokenParser returns a parser feeding the given queue, cancellable via
// ctrl.
func NewTokenParser(queue *SentenceQueue, ctrl *BargeController) *TokenParser {
	return &TokenParser{queue: queue, ctrl: ctrl}
}

// Feed processes one token (which may contain multiple characters, or span
// a partial bracket) and returns Cancelled if the controller's cancel or
// barge signal is set, in which case the caller must stop feeding further
// tokens and the in-flight buffer is left unflushed.
func (p *TokenParser) Feed(token string) ParserResult {
	if p.ctrl.Cancelled() || p.ctrl.Barge() {
		return Cancelled
	}
	for _, r := range token {
		switch p.state {
		case statePlain:
			if r == '[' {
				p.flushPlain()
				p.state = stateInEmotion
				p.tagBuf.Reset()
				continue
			}
			p.plain.WriteRune(r)
		case stateInEmotion:
			if r == ']' {
				p.closeEmotion()
				p.state = statePlain
				continue
			}
			p.tagBuf.WriteRune(r)
		}
	}
	// Flush plain text as it arrives so the sentence queue sees it
	// incrementally rather than only at token-parser shutdown.
	if p.state == statePlain {
		p.flushPlain()
	}
	return Continue
}

func (p *TokenParser) flushPlain() {
	if p.plain.Len() == 0 {
		return
	}
	raw := p.plain.String()
	p.plain.Reset()
	if p.emitted && strings.ContainsAny(raw[:1], " \t\n") {
		p.pendingSpace = true
	}
	text := normalizeWhitespace(raw)
	trailing := strings.HasSuffix(text, " ")
	text = strings.TrimSuffix(text, " ")
	if text == "" {
		return
	}
	if p.pendingSpace {
		text = " " + text
	}
	p.queue.AddText(text)
	p.emitted = true
	p.pendingSpace = trailing
}

func (p *TokenParser) closeEmotion() {
	raw := strings.ToLower(strings.TrimSpace(p.tagBuf.String()))
	p.tagBuf.Reset()
	if !validEmotions[raw] {
		raw = "neutral"
	}
	p.queue.AddEmotion(raw)
}

// Finish flushes any trailing plain text and closes out the current
// sentence, called once the token stream ends normally.
func (p *TokenParser) Finish() {
	p.flushPlain()
	p.queue.FinishCurrent()
}

func normalizeWhitespace(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	var b strings.Builder
	lastSpace := false
	for _, r := range s {
		if r == ' ' || r == '\t' {
			if !lastSpace && b.Len() > 0 {
				b.WriteRune(' ')
			}
			lastSpace = true
			continue
		}
		lastSpace = false
		b.WriteRune(r)
	}
	return b.String()
}
