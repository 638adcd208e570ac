package energy

import (
	"encoding/binary"
	"testing"

	"github.com/halcyoncraft/sightline/pkg/provider/vad"
)

const (
	testRate  = 16000
	testFrame = 1024 // bytes, 512 samples, 32ms at 16kHz
)

func frame(t *testing.T, amplitude int16) []byte {
	t.Helper()
	buf := make([]byte, testFrame)
	for i := 0; i < testFrame; i += 2 {
		binary.LittleEndian.PutUint16(buf[i:], uint16(amplitude))
	}
	return buf
}

func newTestSession(t *testing.T, hangoverMs int) vad.Session {
	t.Helper()
	s, err := New().NewSession(vad.Config{
		SampleRate:      testRate,
		FrameSize:       testFrame,
		SpeechThreshold: 500,
		HangoverMs:      hangoverMs,
	})
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	return s
}

func TestNewSessionValidation(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		cfg  vad.Config
	}{
		{"zero sample rate", vad.Config{FrameSize: testFrame}},
		{"zero frame size", vad.Config{SampleRate: testRate}},
		{"odd frame size", vad.Config{SampleRate: testRate, FrameSize: 31}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if _, err := New().NewSession(tc.cfg); err == nil {
				t.Fatal("expected error, got nil")
			}
		})
	}
}

func TestSpeechStartNeedsConsecutiveFrames(t *testing.T) {
	t.Parallel()
	s := newTestSession(t, 700)

	loud := frame(t, 3000)
	quiet := frame(t, 0)

	// A single loud frame is treated as a pop, not speech.
	ev, err := s.ProcessFrame(loud)
	if err != nil {
		t.Fatalf("ProcessFrame: %v", err)
	}
	if ev.Type != vad.Silence {
		t.Fatalf("first loud frame: got %v, want Silence", ev.Type)
	}

	ev, _ = s.ProcessFrame(quiet)
	if ev.Type != vad.Silence {
		t.Fatalf("quiet frame after pop: got %v, want Silence", ev.Type)
	}

	// Two consecutive loud frames fire SpeechStart on the second.
	s.ProcessFrame(loud)
	ev, _ = s.ProcessFrame(loud)
	if ev.Type != vad.SpeechStart {
		t.Fatalf("second consecutive loud frame: got %v, want SpeechStart", ev.Type)
	}
	if ev.Energy <= 0 {
		t.Fatalf("speech event energy = %v, want > 0", ev.Energy)
	}
}

func TestHangoverBridgesShortPauses(t *testing.T) {
	t.Parallel()
	// 96ms hangover = 3 frames of 32ms.
	s := newTestSession(t, 96)

	loud := frame(t, 3000)
	quiet := frame(t, 0)

	s.ProcessFrame(loud)
	s.ProcessFrame(loud) // SpeechStart

	// Two quiet frames: still inside the utterance.
	for i := 0; i < 2; i++ {
		ev, _ := s.ProcessFrame(quiet)
		if ev.Type != vad.SpeechContinue {
			t.Fatalf("quiet frame %d: got %v, want SpeechContinue", i, ev.Type)
		}
	}

	// Speech resumes; the silence run resets.
	if ev, _ := s.ProcessFrame(loud); ev.Type != vad.SpeechContinue {
		t.Fatalf("resumed loud frame: got %v, want SpeechContinue", ev.Type)
	}

	// Three straight quiet frames end the utterance.
	s.ProcessFrame(quiet)
	s.ProcessFrame(quiet)
	ev, _ := s.ProcessFrame(quiet)
	if ev.Type != vad.SpeechEnd {
		t.Fatalf("after full hangover: got %v, want SpeechEnd", ev.Type)
	}

	// Back to silence afterwards.
	if ev, _ := s.ProcessFrame(quiet); ev.Type != vad.Silence {
		t.Fatalf("post-utterance quiet frame: got %v, want Silence", ev.Type)
	}
}

func TestResetDropsState(t *testing.T) {
	t.Parallel()
	s := newTestSession(t, 700)
	loud := frame(t, 3000)

	s.ProcessFrame(loud)
	s.ProcessFrame(loud) // in speech now
	s.Reset()

	// After reset a single loud frame must not continue the old utterance.
	ev, _ := s.ProcessFrame(loud)
	if ev.Type != vad.Silence {
		t.Fatalf("post-reset loud frame: got %v, want Silence", ev.Type)
	}
}

func TestWrongFrameSize(t *testing.T) {
	t.Parallel()
	s := newTestSession(t, 700)
	if _, err := s.ProcessFrame(make([]byte, testFrame/2)); err == nil {
		t.Fatal("expected error for short frame")
	}
}

func TestClosedSession(t *testing.T) {
	t.Parallel()
	s := newTestSession(t, 700)
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := s.ProcessFrame(frame(t, 0)); err == nil {
		t.Fatal("expected error after Close")
	}
}
