package orchestrator

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func buildPCMFrames(amplitude int16, chunkSize, numFrames int) []byte {
	var buf bytes.Buffer
	sample := make([]byte, 2)
	for f := 0; f < numFrames; f++ {
		for i := 0; i < chunkSize; i++ {
			v := amplitude
			if i%2 == 1 {
				v = -amplitude
			}
			binary.LittleEndian.PutUint16(sample, uint16(v))
			buf.Write(sample)
		}
	}
	return buf.Bytes()
}

func TestMicEnergyWatcherTripsBargeOnSustainedLoudAudio(t *testing.T) {
	cfg := DefaultMicWatcherConfig()
	cfg.Mode = ModeAlways
	ctrl := NewBargeController()
	w := NewMicEnergyWatcher(cfg, ctrl, nil)

	src := bytes.NewReader(buildPCMFrames(5000, cfg.ChunkSize, 6))
	w.Run(src, nil)

	if !ctrl.Barge() {
		t.Errorf("expected sustained loud audio to trip the barge signal")
	}
}

func TestMicEnergyWatcherIgnoresQuietAudio(t *testing.T) {
	cfg := DefaultMicWatcherConfig()
	cfg.Mode = ModeAlways
	ctrl := NewBargeController()
	w := NewMicEnergyWatcher(cfg, ctrl, nil)

	src := bytes.NewReader(buildPCMFrames(10, cfg.ChunkSize, 6))
	w.Run(src, nil)

	if ctrl.Barge() {
		t.Errorf("expected quiet audio not to trip the barge signal")
	}
}

func TestMicEnergyWatcherHighThreshWhileTTSSuppressesSelfTrigger(t *testing.T) {
	// Moderate-amplitude audio (e.g. the assistant's own voice leaking
	// into the mic) must not self-trigger a barge while the assistant is
	// speaking and the watcher is in high_thresh_while_tts mode, but the
	// same audio does trip the watcher once the assistant has gone quiet.
	cfg := DefaultMicWatcherConfig()
	cfg.Mode = ModeHighThreshWhileTTS
	frames := buildPCMFrames(100, cfg.ChunkSize, 6)

	ctrl := NewBargeController()
	ctrl.SetAISpeaking(true)
	w := NewMicEnergyWatcher(cfg, ctrl, nil)
	w.Run(bytes.NewReader(frames), nil)
	if ctrl.Barge() {
		t.Errorf("expected moderate self-echo audio not to trip barge while assistant is speaking")
	}

	ctrl2 := NewBargeController()
	w2 := NewMicEnergyWatcher(cfg, ctrl2, nil)
	w2.Run(bytes.NewReader(frames), nil)
	if !ctrl2.Barge() {
		t.Errorf("expected the same audio to trip barge once the assistant is not speaking")
	}
}

func TestMicEnergyWatcherDisabledModeNeverRuns(t *testing.T) {
	cfg := DefaultMicWatcherConfig()
	cfg.Mode = ModeDisabled
	ctrl := NewBargeController()
	w := NewMicEnergyWatcher(cfg, ctrl, nil)

	w.Run(bytes.NewReader(buildPCMFrames(20000, cfg.ChunkSize, 6)), nil)
	if ctrl.Barge() {
		t.Errorf("expected disabled watcher never to trip barge")
	}
}
