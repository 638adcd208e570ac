package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"vad":    {"energy"},
	"stt":    {"whisper", "whisper-native"},
	"llm":    {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"tts":    {"elevenlabs"},
	"vlm":    {"openai"},
	"detect": {"httpdet"},
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults, and
// validates the result. Useful in tests where configs are constructed from
// string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills unset numeric fields with their documented defaults.
// String fields are left alone; empty addresses mean "disabled" and are
// validated per-daemon at startup.
func ApplyDefaults(cfg *Config) {
	if cfg.Hub.Links.LivenessTimeoutMs <= 0 {
		cfg.Hub.Links.LivenessTimeoutMs = 3000
	}

	v := &cfg.Hub.Voice
	if v.DeviceSampleRate <= 0 {
		v.DeviceSampleRate = 44100
	}
	if v.DeviceChannels <= 0 {
		v.DeviceChannels = 1
	}
	if v.VADSampleRate <= 0 {
		v.VADSampleRate = 16000
	}
	if v.VADFrameBytes <= 0 {
		v.VADFrameBytes = 1024
	}
	if v.SilenceMs <= 0 {
		v.SilenceMs = 700
	}
	if v.MaxUtteranceMs <= 0 {
		v.MaxUtteranceMs = 15000
	}
	if v.CooldownMs < 0 {
		v.CooldownMs = 0
	} else if v.CooldownMs == 0 {
		v.CooldownMs = 7000
	}
	if v.PacingFactor <= 0 {
		v.PacingFactor = 0.8
	}
	if v.PlaybackPacketBytes <= 0 {
		v.PlaybackPacketBytes = 1024
	}
	if v.SceneContextEntries <= 0 {
		v.SceneContextEntries = 20
	}
	if v.StageTimeoutMs <= 0 {
		v.StageTimeoutMs = 30000
	}

	if cfg.Hub.SceneLog.MaxEntries <= 0 {
		cfg.Hub.SceneLog.MaxEntries = 50
	}

	n := &cfg.Node
	if n.DetectTimeoutMs <= 0 {
		n.DetectTimeoutMs = 500
	}
	if n.AnalysisIntervalMs <= 0 {
		n.AnalysisIntervalMs = 5000
	}
	if n.VLMTimeoutMs <= 0 {
		n.VLMTimeoutMs = 30000
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Hub.LogLevel != "" && !cfg.Hub.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("hub.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Hub.LogLevel))
	}
	if cfg.Node.LogLevel != "" && !cfg.Node.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("node.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Node.LogLevel))
	}

	// Provider name validation — warn for unknown provider names.
	validateProviderName("vad", cfg.Providers.VAD.Name)
	validateProviderName("stt", cfg.Providers.STT.Name)
	validateProviderName("llm", cfg.Providers.LLM.Name)
	validateProviderName("tts", cfg.Providers.TTS.Name)
	validateProviderName("vlm", cfg.Providers.VLM.Name)
	validateProviderName("detect", cfg.Providers.Detect.Name)

	// Fallbacks only make sense behind a configured primary.
	for _, fb := range []struct {
		kind    string
		primary string
		entries []ProviderEntry
	}{
		{"stt", cfg.Providers.STT.Name, cfg.Providers.STTFallbacks},
		{"llm", cfg.Providers.LLM.Name, cfg.Providers.LLMFallbacks},
		{"tts", cfg.Providers.TTS.Name, cfg.Providers.TTSFallbacks},
	} {
		if len(fb.entries) > 0 && fb.primary == "" {
			errs = append(errs, fmt.Errorf("providers.%s_fallbacks is set but providers.%s is not configured", fb.kind, fb.kind))
		}
		for i, entry := range fb.entries {
			if entry.Name == "" {
				errs = append(errs, fmt.Errorf("providers.%s_fallbacks[%d] has no name", fb.kind, i))
				continue
			}
			validateProviderName(fb.kind, entry.Name)
		}
	}

	v := cfg.Hub.Voice
	if v.PacingFactor <= 0 || v.PacingFactor > 1 {
		errs = append(errs, fmt.Errorf("hub.voice.pacing_factor %.2f is out of range (0, 1]", v.PacingFactor))
	}
	if v.VADFrameBytes%2 != 0 {
		errs = append(errs, fmt.Errorf("hub.voice.vad_frame_bytes %d must be an even byte count", v.VADFrameBytes))
	}
	if v.SilenceMs >= v.MaxUtteranceMs {
		errs = append(errs, fmt.Errorf("hub.voice.silence_ms %d must be below max_utterance_ms %d", v.SilenceMs, v.MaxUtteranceMs))
	}

	if cfg.Node.MinConfidence < 0 || cfg.Node.MinConfidence > 1 {
		errs = append(errs, fmt.Errorf("node.min_confidence %.2f is out of range [0, 1]", cfg.Node.MinConfidence))
	}
	if cfg.Node.Annotate && cfg.Providers.Detect.Name == "" {
		errs = append(errs, errors.New("node.annotate is enabled but providers.detect is not configured"))
	}

	// Voice pipeline cross-validation: a wake word without an STT provider
	// can never match anything.
	if v.WakeWord != "" && cfg.Providers.STT.Name == "" {
		slog.Warn("hub.voice.wake_word is set but providers.stt is not configured; the wake word will never match")
	}
	if cfg.Hub.Links.MicListen != "" {
		if cfg.Providers.STT.Name == "" || cfg.Providers.LLM.Name == "" || cfg.Providers.TTS.Name == "" {
			slog.Warn("hub.links.mic_listen is set but the voice pipeline is incomplete",
				"stt", cfg.Providers.STT.Name,
				"llm", cfg.Providers.LLM.Name,
				"tts", cfg.Providers.TTS.Name,
			)
		}
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
