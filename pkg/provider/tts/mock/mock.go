// Package mock provides a canned [tts.Synthesizer] for tests.
package mock

import (
	"context"
	"sync"

	"github.com/halcyoncraft/sightline/pkg/audio"
	"github.com/halcyoncraft/sightline/pkg/provider/tts"
)

var _ tts.Synthesizer = (*Synthesizer)(nil)

// Synthesizer returns a canned clip and records every request.
type Synthesizer struct {
	// PCM is the clip returned by every Synthesize call. When nil a
	// short non-empty clip is returned.
	PCM []byte

	// Clips, when non-empty, is consumed one entry per call; after it is
	// exhausted PCM applies.
	Clips [][]byte

	// Format defaults to 16kHz mono when zero-valued.
	Format audio.Format

	// Err, when set, is returned by every Synthesize call.
	Err error

	// Delay, when set, runs before the clip is returned.
	Delay func(ctx context.Context) error

	mu    sync.Mutex
	texts []string
}

// Synthesize implements [tts.Synthesizer].
func (m *Synthesizer) Synthesize(ctx context.Context, text string) (tts.Speech, error) {
	m.mu.Lock()
	m.texts = append(m.texts, text)
	var queued []byte
	haveQueued := len(m.Clips) > 0
	if haveQueued {
		queued = m.Clips[0]
		m.Clips = m.Clips[1:]
	}
	m.mu.Unlock()

	if m.Delay != nil {
		if err := m.Delay(ctx); err != nil {
			return tts.Speech{}, err
		}
	}
	if m.Err != nil {
		return tts.Speech{}, m.Err
	}
	pcm := m.PCM
	if haveQueued {
		pcm = queued
	}
	if pcm == nil {
		pcm = make([]byte, 320)
	}
	format := m.Format
	if format.SampleRate == 0 {
		format = audio.Format{SampleRate: 16000, Channels: 1}
	}
	return tts.Speech{PCM: pcm, Format: format}, nil
}

// Close implements [tts.Synthesizer].
func (m *Synthesizer) Close() error { return nil }

// Texts returns a copy of every text passed to Synthesize.
func (m *Synthesizer) Texts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.texts...)
}
