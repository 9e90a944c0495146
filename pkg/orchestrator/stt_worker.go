package orchestrator

import (
	"bytes"
	"context"
	"io"
	"strings"
	"time"
)

// STTSource is a blocking source of finalized utterance text, the
// contract the STT worker goroutine drives.
type STTSource interface {
	NextUtterance(ctx context.Context) (string, error)
}

// SegmentingSTTSource turns a raw PCM capture stream plus a batch
// STTProvider into an STTSource: it accumulates audio while RMSVAD reports
// speech and submits the accumulated buffer for transcription once speech
// ends. This is distinct from the MicEnergyWatcher, which only trips an
// early barge signal and never itself produces transcribable audio.
type SegmentingSTTSource struct {
	src      io.Reader
	vad      *RMSVAD
	provider STTProvider
	lang     Language
	chunk    int
	logger   Logger
}

// NewSegmentingSTTSource constructs a source reading chunkBytes at a time
// from src, segmenting with vad and transcribing completed utterances
// with provider.
func NewSegmentingSTTSource(src io.Reader, vad *RMSVAD, provider STTProvider, lang Language, chunkBytes int, logger Logger) *SegmentingSTTSource {
	if logger == nil {
		logger = &NoOpLogger{}
	}
	return &SegmentingSTTSource{src: src, vad: vad, provider: provider, lang: lang, chunk: chunkBytes, logger: logger}
}

// NextUtterance blocks until a complete voiced segment has been captured
// and transcribed, or ctx is cancelled.
func (s *SegmentingSTTSource) NextUtterance(ctx context.Context) (string, error) {
	var buf bytes.Buffer
	frame := make([]byte, s.chunk)
	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		default:
		}
		n, err := s.src.Read(frame)
		if n > 0 {
			ev, _ := s.vad.Process(frame[:n])
			if s.vad.IsSpeaking() {
				buf.Write(frame[:n])
			}
			if ev != nil && ev.Type == VADSpeechEnd && buf.Len() > 0 {
				text, terr := s.provider.Transcribe(ctx, buf.Bytes(), s.lang)
				buf.Reset()
				if terr != nil {
					return "", terr
				}
				if strings.TrimSpace(text) != "" {
					return text, nil
				}
				continue
			}
		}
		if err != nil {
			if err == io.EOF {
				return "", err
			}
			time.Sleep(10 * time.Millisecond)
		}
	}
}

// Worker repeatedly pulls utterances from an STTSource and pushes
// non-empty, trimmed results into the barge controller's utterance queue,
// logging and backing off briefly on error. It runs until ctx is
// cancelled, as a long-lived daemon goroutine for the life of the
// process.
func Worker(ctx context.Context, source STTSource, ctrl *BargeController, logger Logger) {
	if logger == nil {
		logger = &NoOpLogger{}
	}
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		text, err := source.NextUtterance(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Warn("stt worker error", "error", err)
			time.Sleep(50 * time.Millisecond)
			continue
		}
		text = strings.TrimSpace(text)
		if text != "" {
			ctrl.PushUtterance(text)
		}
	}
}
