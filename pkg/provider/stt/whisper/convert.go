package whisper

import "encoding/binary"

// monoSamples converts 16-bit signed little-endian PCM to the mono float32
// samples whisper.cpp expects, normalised to [-1.0, 1.0]. Multi-channel
// input is down-mixed by averaging each frame. A trailing partial frame is
// ignored.
func monoSamples(pcm []byte, channels int) []float32 {
	if channels < 1 {
		channels = 1
	}
	frames := len(pcm) / (2 * channels)
	out := make([]float32, frames)
	for i := 0; i < frames; i++ {
		var sum int32
		for ch := 0; ch < channels; ch++ {
			off := (i*channels + ch) * 2
			sum += int32(int16(binary.LittleEndian.Uint16(pcm[off : off+2])))
		}
		out[i] = float32(sum) / (32768.0 * float32(channels))
	}
	return out
}
