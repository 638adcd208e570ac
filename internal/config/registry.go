package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/halcyoncraft/sightline/pkg/provider/detect"
	"github.com/halcyoncraft/sightline/pkg/provider/llm"
	"github.com/halcyoncraft/sightline/pkg/provider/stt"
	"github.com/halcyoncraft/sightline/pkg/provider/tts"
	"github.com/halcyoncraft/sightline/pkg/provider/vad"
	"github.com/halcyoncraft/sightline/pkg/provider/vlm"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Registry maps provider names to their constructor functions for each
// provider type. It is safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	vad    map[string]func(ProviderEntry) (vad.Engine, error)
	stt    map[string]func(ProviderEntry) (stt.Transcriber, error)
	llm    map[string]func(ProviderEntry) (llm.Responder, error)
	tts    map[string]func(ProviderEntry) (tts.Synthesizer, error)
	vlm    map[string]func(ProviderEntry) (vlm.Describer, error)
	detect map[string]func(ProviderEntry) (detect.Detector, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		vad:    make(map[string]func(ProviderEntry) (vad.Engine, error)),
		stt:    make(map[string]func(ProviderEntry) (stt.Transcriber, error)),
		llm:    make(map[string]func(ProviderEntry) (llm.Responder, error)),
		tts:    make(map[string]func(ProviderEntry) (tts.Synthesizer, error)),
		vlm:    make(map[string]func(ProviderEntry) (vlm.Describer, error)),
		detect: make(map[string]func(ProviderEntry) (detect.Detector, error)),
	}
}

// RegisterVAD registers a VAD engine factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterVAD(name string, factory func(ProviderEntry) (vad.Engine, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.vad[name] = factory
}

// RegisterSTT registers a transcriber factory under name.
func (r *Registry) RegisterSTT(name string, factory func(ProviderEntry) (stt.Transcriber, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stt[name] = factory
}

// RegisterLLM registers a responder factory under name.
func (r *Registry) RegisterLLM(name string, factory func(ProviderEntry) (llm.Responder, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.llm[name] = factory
}

// RegisterTTS registers a synthesizer factory under name.
func (r *Registry) RegisterTTS(name string, factory func(ProviderEntry) (tts.Synthesizer, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tts[name] = factory
}

// RegisterVLM registers a describer factory under name.
func (r *Registry) RegisterVLM(name string, factory func(ProviderEntry) (vlm.Describer, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.vlm[name] = factory
}

// RegisterDetect registers a detector factory under name.
func (r *Registry) RegisterDetect(name string, factory func(ProviderEntry) (detect.Detector, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.detect[name] = factory
}

// CreateVAD instantiates a VAD engine using the factory registered under
// entry.Name. Returns [ErrProviderNotRegistered] if no factory has been
// registered for that name.
func (r *Registry) CreateVAD(entry ProviderEntry) (vad.Engine, error) {
	r.mu.RLock()
	factory, ok := r.vad[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: vad/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateSTT instantiates a transcriber using the factory registered under entry.Name.
func (r *Registry) CreateSTT(entry ProviderEntry) (stt.Transcriber, error) {
	r.mu.RLock()
	factory, ok := r.stt[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: stt/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateLLM instantiates a responder using the factory registered under entry.Name.
func (r *Registry) CreateLLM(entry ProviderEntry) (llm.Responder, error) {
	r.mu.RLock()
	factory, ok := r.llm[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: llm/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateTTS instantiates a synthesizer using the factory registered under entry.Name.
func (r *Registry) CreateTTS(entry ProviderEntry) (tts.Synthesizer, error) {
	r.mu.RLock()
	factory, ok := r.tts[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: tts/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateVLM instantiates a describer using the factory registered under entry.Name.
func (r *Registry) CreateVLM(entry ProviderEntry) (vlm.Describer, error) {
	r.mu.RLock()
	factory, ok := r.vlm[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: vlm/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateDetect instantiates a detector using the factory registered under entry.Name.
func (r *Registry) CreateDetect(entry ProviderEntry) (detect.Detector, error) {
	r.mu.RLock()
	factory, ok := r.detect[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: detect/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}
