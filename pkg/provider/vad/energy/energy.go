// Package energy implements an RMS-energy voice activity detector. It has
// no model weights and no external dependencies, which makes it the default
// engine on constrained hubs; swap in a model-backed engine via the same
// vad.Engine interface when detection quality matters more than footprint.
package energy

import (
	"errors"
	"fmt"

	"github.com/halcyoncraft/sightline/pkg/audio"
	"github.com/halcyoncraft/sightline/pkg/provider/vad"
)

// Compile-time check that *Engine satisfies [vad.Engine].
var _ vad.Engine = (*Engine)(nil)

const (
	// defaultThreshold is the RMS level (in 16-bit PCM sample units)
	// above which a frame counts as speech. 300 corresponds to
	// near-silence on typical MEMS microphones.
	defaultThreshold = 300.0

	// startFrames is how many consecutive speech frames are required
	// before a SpeechStart fires. Suppresses single-frame pops.
	startFrames = 2
)

// Engine creates RMS-based VAD sessions.
type Engine struct{}

// New returns a ready Engine.
func New() *Engine { return &Engine{} }

// NewSession implements [vad.Engine].
func (e *Engine) NewSession(cfg vad.Config) (vad.Session, error) {
	if cfg.SampleRate <= 0 {
		return nil, errors.New("energy: SampleRate must be positive")
	}
	if cfg.FrameSize <= 0 || cfg.FrameSize%2 != 0 {
		return nil, fmt.Errorf("energy: FrameSize %d must be a positive even byte count", cfg.FrameSize)
	}
	threshold := cfg.SpeechThreshold
	if threshold <= 0 {
		threshold = defaultThreshold
	}
	hangover := cfg.HangoverMs
	if hangover <= 0 {
		hangover = 700
	}

	frameMs := cfg.FrameSize * 1000 / (cfg.SampleRate * 2)
	if frameMs <= 0 {
		frameMs = 1
	}

	return &session{
		frameSize:      cfg.FrameSize,
		threshold:      threshold,
		frameMs:        frameMs,
		hangoverFrames: (hangover + frameMs - 1) / frameMs,
	}, nil
}

// session holds the smoothing state for one audio stream. Not safe for
// concurrent use.
type session struct {
	frameSize      int
	threshold      float64
	frameMs        int
	hangoverFrames int

	inSpeech     bool
	speechRun    int
	silenceRun   int
	closed       bool
}

// ProcessFrame implements [vad.Session]. The raw per-frame decision is a
// pure threshold on RMS energy; start/end smoothing happens here.
func (s *session) ProcessFrame(frame []byte) (vad.Event, error) {
	if s.closed {
		return vad.Event{}, errors.New("energy: session closed")
	}
	if len(frame) != s.frameSize {
		return vad.Event{}, fmt.Errorf("energy: frame is %d bytes, want %d", len(frame), s.frameSize)
	}

	rms := audio.RMS(frame)
	loud := rms >= s.threshold

	ev := vad.Event{Energy: rms}
	switch {
	case !s.inSpeech && loud:
		s.speechRun++
		if s.speechRun >= startFrames {
			s.inSpeech = true
			s.silenceRun = 0
			ev.Type = vad.SpeechStart
		} else {
			ev.Type = vad.Silence
		}

	case !s.inSpeech:
		s.speechRun = 0
		ev.Type = vad.Silence

	case loud:
		s.silenceRun = 0
		ev.Type = vad.SpeechContinue

	default:
		s.silenceRun++
		if s.silenceRun >= s.hangoverFrames {
			s.inSpeech = false
			s.speechRun = 0
			s.silenceRun = 0
			ev.Type = vad.SpeechEnd
		} else {
			// Short pauses inside an utterance still count as speech.
			ev.Type = vad.SpeechContinue
		}
	}
	return ev, nil
}

// Reset implements [vad.Session].
func (s *session) Reset() {
	s.inSpeech = false
	s.speechRun = 0
	s.silenceRun = 0
}

// Close implements [vad.Session].
func (s *session) Close() error {
	s.closed = true
	return nil
}
