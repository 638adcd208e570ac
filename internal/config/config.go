// Package config provides the configuration schema, loader, and provider
// registry for the Sightline relay hub and inference node. One YAML file
// carries both the hub and node sections so a deployment can ship a single
// config to every machine.
package config

// LogLevel controls log verbosity for a Sightline daemon.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure for Sightline.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Hub       HubConfig       `yaml:"hub"`
	Node      NodeConfig      `yaml:"node"`
	Providers ProvidersConfig `yaml:"providers"`
}

// HubConfig holds everything the relay hub daemon needs: link addresses,
// voice pipeline tuning, and the scene log bounds.
type HubConfig struct {
	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// MetricsAddr is the TCP address for the /metrics and /status HTTP
	// endpoints (e.g., ":9100"). Empty disables the HTTP server.
	MetricsAddr string `yaml:"metrics_addr"`

	Links    HubLinks       `yaml:"links"`
	Voice    VoiceConfig    `yaml:"voice"`
	SceneLog SceneLogConfig `yaml:"scene_log"`
}

// HubLinks declares the hub's UDP endpoints. Listen addresses bind local
// sockets; dial addresses name remote peers.
type HubLinks struct {
	// CameraListen receives length-prefixed JPEG frames from the camera.
	CameraListen string `yaml:"camera_listen"`

	// AnnotatedListen receives annotated frames back from the node.
	AnnotatedListen string `yaml:"annotated_listen"`

	// AnalysisListen receives scene-description text from the node.
	AnalysisListen string `yaml:"analysis_listen"`

	// MicListen receives raw PCM datagrams from the microphone device.
	MicListen string `yaml:"mic_listen"`

	// NodeFrames is the node address camera frames are forwarded to.
	NodeFrames string `yaml:"node_frames"`

	// Playback is the speaker device address for synthesized speech.
	Playback string `yaml:"playback"`

	// Display is an optional display device address; annotated frames are
	// mirrored there in addition to in-process sinks. Empty disables it.
	Display string `yaml:"display"`

	// LivenessTimeoutMs is how long a link may be silent before Status
	// reports it down. Defaults to 3000.
	LivenessTimeoutMs int `yaml:"liveness_timeout_ms"`
}

// VoiceConfig tunes the voice turn controller.
type VoiceConfig struct {
	// DeviceSampleRate is the microphone/speaker sample rate in Hz.
	// Defaults to 44100.
	DeviceSampleRate int `yaml:"device_sample_rate"`

	// DeviceChannels is the device channel count. Defaults to 1.
	DeviceChannels int `yaml:"device_channels"`

	// VADSampleRate is the rate audio is resampled to before voice
	// activity detection. Defaults to 16000.
	VADSampleRate int `yaml:"vad_sample_rate"`

	// VADFrameBytes is the fixed VAD frame size in bytes at the VAD rate.
	// Defaults to 1024 (512 samples, 32 ms at 16 kHz).
	VADFrameBytes int `yaml:"vad_frame_bytes"`

	// SpeechThreshold is the RMS energy above which a frame counts as
	// speech. Zero uses the engine default.
	SpeechThreshold float64 `yaml:"speech_threshold"`

	// SilenceMs is the sustained-silence duration that seals an open
	// utterance. Defaults to 700.
	SilenceMs int `yaml:"silence_ms"`

	// MaxUtteranceMs seals an utterance regardless of silence.
	// Defaults to 15000.
	MaxUtteranceMs int `yaml:"max_utterance_ms"`

	// CooldownMs suppresses speech detection after playback ends so the
	// assistant does not hear itself. Defaults to 7000.
	CooldownMs int `yaml:"cooldown_ms"`

	// PacingFactor scales playback packet timing relative to real time.
	// Values below 1 send slightly ahead of playback. Defaults to 0.8.
	PacingFactor float64 `yaml:"pacing_factor"`

	// PlaybackPacketBytes is the PCM packet size sent to the speaker.
	// Defaults to 1024.
	PlaybackPacketBytes int `yaml:"playback_packet_bytes"`

	// Muted starts the controller with speech detection disabled.
	Muted bool `yaml:"muted"`

	// WakeWord, when non-empty, gates turns on a phonetic match against
	// the first words of the transcript.
	WakeWord string `yaml:"wake_word"`

	// SceneContextEntries is how many recent scene log entries are given
	// to the LLM per turn. Defaults to 20.
	SceneContextEntries int `yaml:"scene_context_entries"`

	// StageTimeoutMs bounds each of the STT, LLM, and TTS calls.
	// Defaults to 30000.
	StageTimeoutMs int `yaml:"stage_timeout_ms"`
}

// SceneLogConfig bounds the append-only scene log.
type SceneLogConfig struct {
	// MaxEntries is the entry cap; oldest entries are evicted on append.
	// Defaults to 50.
	MaxEntries int `yaml:"max_entries"`

	// MaxAgeMs evicts entries older than this on append. Zero keeps
	// entries until the cap pushes them out.
	MaxAgeMs int `yaml:"max_age_ms"`
}

// NodeConfig holds everything the inference node daemon needs.
type NodeConfig struct {
	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// MetricsAddr is the TCP address for the /metrics endpoint.
	// Empty disables the HTTP server.
	MetricsAddr string `yaml:"metrics_addr"`

	// FramesListen receives forwarded camera frames from the hub.
	FramesListen string `yaml:"frames_listen"`

	// HubAnnotated is the hub address annotated frames are sent to.
	// Empty enables reply auto-detection: the node answers to the source
	// address of the first received frame.
	HubAnnotated string `yaml:"hub_annotated"`

	// HubAnalysis is the hub address scene descriptions are sent to.
	// Empty enables reply auto-detection.
	HubAnalysis string `yaml:"hub_analysis"`

	// Annotate toggles the detection/annotation fast path. When false,
	// frames pass through untouched.
	Annotate bool `yaml:"annotate"`

	// MinConfidence drops detections below this confidence.
	MinConfidence float64 `yaml:"min_confidence"`

	// DetectTimeoutMs bounds the per-frame detection call. Defaults to 500.
	DetectTimeoutMs int `yaml:"detect_timeout_ms"`

	// AnalysisIntervalMs is the scene-analysis sampling period.
	// Defaults to 5000.
	AnalysisIntervalMs int `yaml:"analysis_interval_ms"`

	// VLMTimeoutMs bounds the scene-analysis call. Defaults to 30000.
	VLMTimeoutMs int `yaml:"vlm_timeout_ms"`

	// AuditLogPath is the append-only file scene descriptions are written
	// to. Empty disables the audit log.
	AuditLogPath string `yaml:"audit_log_path"`
}

// ProvidersConfig declares which provider implementation to use for each
// pipeline stage. Each field selects a named provider registered in the
// [Registry].
type ProvidersConfig struct {
	VAD    ProviderEntry `yaml:"vad"`
	STT    ProviderEntry `yaml:"stt"`
	LLM    ProviderEntry `yaml:"llm"`
	TTS    ProviderEntry `yaml:"tts"`
	VLM    ProviderEntry `yaml:"vlm"`
	Detect ProviderEntry `yaml:"detect"`

	// STTFallbacks, LLMFallbacks, and TTSFallbacks list extra providers
	// tried in order when the primary fails or its circuit breaker is
	// open. Empty lists disable failover for that stage.
	STTFallbacks []ProviderEntry `yaml:"stt_fallbacks"`
	LLMFallbacks []ProviderEntry `yaml:"llm_fallbacks"`
	TTSFallbacks []ProviderEntry `yaml:"tts_fallbacks"`
}

// ProviderEntry is the common configuration block shared by all provider types.
// The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation
	// (e.g., "whisper", "elevenlabs", "anthropic").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	// Leave empty to use the provider's built-in default.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider
	// (e.g., "gpt-4o-mini", "base.en", an ElevenLabs voice ID).
	Model string `yaml:"model"`

	// Options holds provider-specific configuration values not covered by
	// the standard fields above. Values may be strings, numbers, booleans,
	// or nested maps.
	Options map[string]any `yaml:"options"`
}
