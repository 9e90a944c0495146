package audio

import "sync"

// Broadcaster fans out raw PCM frames captured from a single device to
// multiple independent readers (the mic energy watcher and the STT
// segmenter each need their own view of the capture stream, read at their
// own pace).
type Broadcaster struct {
	mu   sync.Mutex
	subs []chan []byte
}

// NewBroadcaster returns an empty broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{}
}

// Subscribe registers a new reader and returns it. Frames are dropped for
// a subscriber whose channel is full rather than blocking the capture
// callback.
func (b *Broadcaster) Subscribe() *Reader {
	ch := make(chan []byte, 64)
	b.mu.Lock()
	b.subs = append(b.subs, ch)
	b.mu.Unlock()
	return &Reader{ch: ch}
}

// Publish copies frame to every subscriber. Safe to call from a real-time
// audio callback: it never blocks.
func (b *Broadcaster) Publish(frame []byte) {
	cp := make([]byte, len(frame))
	copy(cp, frame)
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- cp:
		default:
		}
	}
}

// Reader adapts a Broadcaster subscription to io.Reader, buffering any
// partial frame across Read calls.
type Reader struct {
	ch      chan []byte
	pending []byte
}

// Read blocks until at least one byte is available from the subscription.
func (r *Reader) Read(p []byte) (int, error) {
	if len(r.pending) == 0 {
		r.pending = <-r.ch
	}
	n := copy(p, r.pending)
	r.pending = r.pending[n:]
	return n, nil
}
