// Package stt defines the speech-to-text provider contract. Implementations
// take a complete utterance and return its transcript; streaming partial
// results are out of scope for the turn pipeline, which only ever acts on
// finished utterances.
package stt

import "context"

// Audio is a complete utterance to transcribe.
type Audio struct {
	// PCM is raw signed 16-bit little-endian samples.
	PCM []byte

	// SampleRate in Hz.
	SampleRate int

	// Channels is the channel count (1 or 2).
	Channels int
}

// Transcript is the result of transcribing one utterance.
type Transcript struct {
	// Text is the recognized text, whitespace-trimmed. Empty means the
	// provider heard nothing intelligible.
	Text string

	// Language is the detected or configured language code, if the
	// provider reports one.
	Language string
}

// Transcriber converts one utterance of audio into text.
type Transcriber interface {
	// Transcribe blocks until the utterance is transcribed or ctx is
	// done. Callers bound it with a per-turn timeout.
	Transcribe(ctx context.Context, audio Audio) (Transcript, error)

	// Close releases provider resources.
	Close() error
}
