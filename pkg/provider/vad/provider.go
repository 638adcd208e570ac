// Package vad defines the Engine interface for voice activity detection
// backends.
//
// A VAD engine wraps a frame-level speech classifier and surfaces it as a
// stateful per-stream session: the classifier itself is a pure function of
// one fixed-size audio chunk, while the session layers the smoothing that
// turns raw per-chunk decisions into speech-start and speech-end events.
//
// VAD is synchronous by design: ProcessFrame returns immediately with a
// detection result, making it suitable for the low-latency loop that gates
// utterance capture. A single Session must not be shared across goroutines.
package vad

// EventType enumerates VAD detection states.
type EventType int

const (
	// Silence indicates no speech detected.
	Silence EventType = iota

	// SpeechStart indicates speech has just begun.
	SpeechStart

	// SpeechContinue indicates ongoing speech.
	SpeechContinue

	// SpeechEnd indicates sustained silence after speech: the utterance
	// boundary.
	SpeechEnd
)

// Event is the detection result for a single audio frame.
type Event struct {
	// Type is the detection result after smoothing.
	Type EventType

	// Energy is the raw measure the decision was based on, in
	// implementation-defined units. Useful for logging and tuning.
	Energy float64
}

// Config holds the parameters for a VAD session.
type Config struct {
	// SampleRate is the audio sample rate in Hz. Must match the rate of
	// the PCM frames passed to ProcessFrame.
	SampleRate int

	// FrameSize is the expected size of each frame in bytes. ProcessFrame
	// returns an error for frames of any other size.
	FrameSize int

	// SpeechThreshold is the energy level above which a frame counts as
	// speech, in the engine's native units.
	SpeechThreshold float64

	// HangoverMs is the sustained-silence duration, in milliseconds, that
	// ends an active speech segment. Shorter values seal utterances
	// faster but split hesitant speech.
	HangoverMs int
}

// Session is an active VAD session for a single audio stream.
type Session interface {
	// ProcessFrame classifies a single fixed-size audio frame. The frame
	// must be 16-bit little-endian mono PCM at the configured sample rate
	// and size. It must not block.
	ProcessFrame(frame []byte) (Event, error)

	// Reset clears accumulated smoothing state without closing the
	// session. Use when the audio stream is interrupted or after
	// playback-cooldown so stale state cannot leak into the next segment.
	Reset()

	// Close releases the session's resources. Safe to call repeatedly.
	Close() error
}

// Engine is the factory for VAD sessions. Implementations must be safe for
// concurrent use; sessions they create need not be.
type Engine interface {
	// NewSession creates a session with the given configuration, ready to
	// accept frames. Returns an error for invalid configurations.
	NewSession(cfg Config) (Session, error)
}
