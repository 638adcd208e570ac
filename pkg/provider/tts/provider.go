// Package tts defines the text-to-speech provider contract. The playback
// pacer needs the whole clip up front to compute its schedule, so the
// contract is batch: one reply in, one PCM clip out.
package tts

import (
	"context"

	"github.com/halcyoncraft/sightline/pkg/audio"
)

// Speech is one synthesized clip of raw signed 16-bit little-endian PCM.
type Speech struct {
	PCM    []byte
	Format audio.Format
}

// Synthesizer converts reply text into speech audio.
type Synthesizer interface {
	// Synthesize blocks until the full clip is available or ctx is done.
	Synthesize(ctx context.Context, text string) (Speech, error)

	// Close releases provider resources.
	Close() error
}
