package resilience

import (
	"context"
	"errors"

	"github.com/halcyoncraft/sightline/pkg/provider/tts"
)

// TTSFallback implements [tts.Synthesizer] with automatic failover across
// multiple backends. Each backend has its own circuit breaker.
type TTSFallback struct {
	group *FallbackGroup[tts.Synthesizer]
}

// Compile-time interface assertion.
var _ tts.Synthesizer = (*TTSFallback)(nil)

// NewTTSFallback creates a [TTSFallback] with primary as the preferred backend.
func NewTTSFallback(primary tts.Synthesizer, primaryName string, cfg FallbackConfig) *TTSFallback {
	return &TTSFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional synthesizer as a fallback.
func (f *TTSFallback) AddFallback(name string, synthesizer tts.Synthesizer) {
	f.group.AddFallback(name, synthesizer)
}

// Synthesize renders the reply with the first healthy backend. Fallbacks may
// return clips in a different format; callers resample per clip.
func (f *TTSFallback) Synthesize(ctx context.Context, text string) (tts.Speech, error) {
	return ExecuteWithResult(f.group, func(s tts.Synthesizer) (tts.Speech, error) {
		return s.Synthesize(ctx, text)
	})
}

// Close closes every backend, joining their errors.
func (f *TTSFallback) Close() error {
	var errs []error
	for i := range f.group.backends {
		if err := f.group.backends[i].impl.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
