// Package mock provides a canned [detect.Detector] for tests.
package mock

import (
	"context"
	"sync"

	"github.com/halcyoncraft/sightline/pkg/provider/detect"
)

var _ detect.Detector = (*Detector)(nil)

// Detector returns canned detections and records every frame.
type Detector struct {
	// Detections is returned by every Detect call.
	Detections []detect.Detection

	// Err, when set, is returned by every Detect call.
	Err error

	mu     sync.Mutex
	frames int
}

// Detect implements [detect.Detector].
func (m *Detector) Detect(_ context.Context, jpeg []byte) ([]detect.Detection, error) {
	m.mu.Lock()
	m.frames++
	m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	return append([]detect.Detection(nil), m.Detections...), nil
}

// FrameCount returns how many frames were passed to Detect.
func (m *Detector) FrameCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.frames
}
