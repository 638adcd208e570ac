// Package audio provides the PCM utilities shared by the voice path: format
// descriptions, energy measurement, channel conversion, fixed-size
// re-chunking, sample-rate conversion, and WAV container encoding.
//
// All functions operate on 16-bit signed little-endian PCM, the only sample
// format carried on the microphone and playback Links.
package audio

import (
	"encoding/binary"
	"math"
	"time"
)

// bytesPerSample is fixed at 2 for 16-bit PCM.
const bytesPerSample = 2

// Format describes the sample rate and channel count of a PCM stream.
type Format struct {
	// SampleRate in Hz (e.g. 44100 for the capture device, 16000 for VAD/STT).
	SampleRate int

	// Channels: 1 for mono, 2 for stereo.
	Channels int
}

// BytesPerSecond returns the PCM byte rate of the format.
func (f Format) BytesPerSecond() int {
	return f.SampleRate * f.Channels * bytesPerSample
}

// Duration returns the play time of n PCM bytes in this format.
func (f Format) Duration(n int) time.Duration {
	bps := f.BytesPerSecond()
	if bps <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second / time.Duration(bps)
}

// RMS returns the root-mean-square energy of a PCM buffer, expressed in
// sample units (0–32767). Returns 0 for buffers shorter than one sample.
func RMS(pcm []byte) float64 {
	n := len(pcm) / bytesPerSample
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		v := float64(int16(binary.LittleEndian.Uint16(pcm[i*2 : i*2+2])))
		sum += v * v
	}
	return math.Sqrt(sum / float64(n))
}

// MonoToStereo duplicates each mono sample into both stereo channels.
func MonoToStereo(pcm []byte) []byte {
	n := len(pcm) / bytesPerSample
	out := make([]byte, n*2*bytesPerSample)
	for i := 0; i < n; i++ {
		copy(out[i*4:i*4+2], pcm[i*2:i*2+2])
		copy(out[i*4+2:i*4+4], pcm[i*2:i*2+2])
	}
	return out
}

// StereoToMono averages each stereo sample pair into one mono sample.
func StereoToMono(pcm []byte) []byte {
	frames := len(pcm) / (2 * bytesPerSample)
	out := make([]byte, frames*bytesPerSample)
	for i := 0; i < frames; i++ {
		l := int16(binary.LittleEndian.Uint16(pcm[i*4 : i*4+2]))
		r := int16(binary.LittleEndian.Uint16(pcm[i*4+2 : i*4+4]))
		binary.LittleEndian.PutUint16(out[i*2:i*2+2], uint16((int32(l)+int32(r))/2))
	}
	return out
}

// Chunker re-slices an arbitrary stream of PCM datagrams into fixed-size
// chunks. Datagram boundaries carry no meaning: a chunk may span several
// datagrams, and one datagram may yield several chunks.
//
// Not safe for concurrent use; the microphone loop owns its instance.
type Chunker struct {
	size int
	buf  []byte
}

// NewChunker returns a Chunker emitting chunks of exactly size bytes.
func NewChunker(size int) *Chunker {
	return &Chunker{size: size}
}

// Push appends data and returns every complete chunk, in order. Returned
// chunks are copies.
func (c *Chunker) Push(data []byte) [][]byte {
	c.buf = append(c.buf, data...)
	var chunks [][]byte
	for len(c.buf) >= c.size {
		chunk := make([]byte, c.size)
		copy(chunk, c.buf[:c.size])
		chunks = append(chunks, chunk)
		c.buf = c.buf[c.size:]
	}
	if len(c.buf) == 0 {
		c.buf = nil
	}
	return chunks
}

// Reset discards any buffered partial chunk.
func (c *Chunker) Reset() {
	c.buf = nil
}
