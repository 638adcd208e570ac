// Package mock provides a canned [vlm.Describer] for tests.
package mock

import (
	"context"
	"sync"

	"github.com/halcyoncraft/sightline/pkg/provider/vlm"
)

var _ vlm.Describer = (*Describer)(nil)

// Describer returns canned descriptions and records every frame.
type Describer struct {
	// Description is returned by every Describe call.
	Description string

	// Err, when set, is returned by every Describe call.
	Err error

	// Delay, when set, runs before the description is returned.
	Delay func(ctx context.Context) error

	mu     sync.Mutex
	frames [][]byte
}

// Describe implements [vlm.Describer].
func (m *Describer) Describe(ctx context.Context, jpeg []byte) (string, error) {
	m.mu.Lock()
	cp := make([]byte, len(jpeg))
	copy(cp, jpeg)
	m.frames = append(m.frames, cp)
	m.mu.Unlock()

	if m.Delay != nil {
		if err := m.Delay(ctx); err != nil {
			return "", err
		}
	}
	if m.Err != nil {
		return "", m.Err
	}
	return m.Description, nil
}

// Frames returns a copy of every frame passed to Describe.
func (m *Describer) Frames() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]byte, len(m.frames))
	copy(out, m.frames)
	return out
}
