// Package mock provides a scripted [vad.Engine] for tests.
package mock

import (
	"github.com/halcyoncraft/sightline/pkg/provider/vad"
)

var _ vad.Engine = (*Engine)(nil)

// Engine hands out sessions that replay a fixed event script.
type Engine struct {
	// Script is the sequence of events returned by successive
	// ProcessFrame calls. Once exhausted, sessions return Silence.
	Script []vad.Event

	// Err, when set, is returned by every ProcessFrame call.
	Err error
}

// NewSession implements [vad.Engine].
func (e *Engine) NewSession(vad.Config) (vad.Session, error) {
	return &Session{engine: e}, nil
}

// Session replays the parent engine's script.
type Session struct {
	engine *Engine
	pos    int

	// Frames records every frame passed to ProcessFrame.
	Frames [][]byte

	// ResetCalls counts Reset invocations.
	ResetCalls int

	// Closed reports whether Close was called.
	Closed bool
}

// ProcessFrame implements [vad.Session].
func (s *Session) ProcessFrame(frame []byte) (vad.Event, error) {
	cp := make([]byte, len(frame))
	copy(cp, frame)
	s.Frames = append(s.Frames, cp)
	if s.engine.Err != nil {
		return vad.Event{}, s.engine.Err
	}
	if s.pos < len(s.engine.Script) {
		ev := s.engine.Script[s.pos]
		s.pos++
		return ev, nil
	}
	return vad.Event{Type: vad.Silence}, nil
}

// Reset implements [vad.Session].
func (s *Session) Reset() { s.ResetCalls++ }

// Close implements [vad.Session].
func (s *Session) Close() error {
	s.Closed = true
	return nil
}
