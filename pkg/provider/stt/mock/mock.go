// Package mock provides a canned [stt.Transcriber] for tests.
package mock

import (
	"context"
	"sync"

	"github.com/halcyoncraft/sightline/pkg/provider/stt"
)

var _ stt.Transcriber = (*Transcriber)(nil)

// Transcriber returns canned transcripts and records every request.
type Transcriber struct {
	// Result is returned by every Transcribe call unless Results is set.
	Result stt.Transcript

	// Results, when non-empty, is consumed one entry per call; after it
	// is exhausted Result applies.
	Results []stt.Transcript

	// Err, when set, is returned by every Transcribe call.
	Err error

	// Delay, when set, makes Transcribe wait for ctx or the delay,
	// whichever comes first.
	Delay func(ctx context.Context) error

	mu    sync.Mutex
	calls []stt.Audio
}

// Transcribe implements [stt.Transcriber].
func (m *Transcriber) Transcribe(ctx context.Context, in stt.Audio) (stt.Transcript, error) {
	m.mu.Lock()
	cp := in
	cp.PCM = append([]byte(nil), in.PCM...)
	m.calls = append(m.calls, cp)
	var next stt.Transcript
	havePop := len(m.Results) > 0
	if havePop {
		next = m.Results[0]
		m.Results = m.Results[1:]
	}
	m.mu.Unlock()

	if m.Delay != nil {
		if err := m.Delay(ctx); err != nil {
			return stt.Transcript{}, err
		}
	}
	if m.Err != nil {
		return stt.Transcript{}, m.Err
	}
	if havePop {
		return next, nil
	}
	return m.Result, nil
}

// Close implements [stt.Transcriber].
func (m *Transcriber) Close() error { return nil }

// Calls returns a copy of every Audio passed to Transcribe.
func (m *Transcriber) Calls() []stt.Audio {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]stt.Audio(nil), m.calls...)
}
