package audio

import (
	"encoding/binary"
	"fmt"

	resampling "github.com/tphakala/go-audio-resampling"
)

// Resampler converts a 16-bit PCM stream from a source to a destination
// format across repeated Process calls. One instance carries the rate
// converter's filter state between calls, so a continuous stream can be fed
// packet by packet without discontinuities at packet boundaries.
//
// Not safe for concurrent use; the microphone loop owns its instance.
type Resampler struct {
	src, dst Format

	// channels is the channel count fed to the rate converter: down-mixing
	// happens before rate conversion, up-mixing after.
	channels int
	rate     resampling.Resampler
}

// NewResampler returns a Resampler converting from src to dst. A matching
// src and dst passes input through unchanged.
func NewResampler(src, dst Format) (*Resampler, error) {
	r := &Resampler{src: src, dst: dst, channels: src.Channels}
	if src.Channels == 2 && dst.Channels == 1 {
		r.channels = 1
	}
	if src.SampleRate != dst.SampleRate {
		rate, err := resampling.New(&resampling.Config{
			InputRate:  float64(src.SampleRate),
			OutputRate: float64(dst.SampleRate),
			Channels:   r.channels,
			Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
		})
		if err != nil {
			return nil, fmt.Errorf("audio: create resampler: %w", err)
		}
		r.rate = rate
	}
	return r, nil
}

// Process converts one chunk of PCM. Output length varies with the rate
// converter's internal buffering; a chunk may yield fewer or more samples
// than a naive ratio would predict.
func (r *Resampler) Process(pcm []byte) ([]byte, error) {
	if r.src == r.dst {
		return pcm, nil
	}
	if r.src.Channels == 2 && r.dst.Channels == 1 {
		pcm = StereoToMono(pcm)
	}
	if r.rate != nil {
		out, err := r.rate.Process(pcmToFloat64(pcm))
		if err != nil {
			return nil, fmt.Errorf("audio: resample %d→%d Hz: %w", r.src.SampleRate, r.dst.SampleRate, err)
		}
		pcm = float64ToPCM(out)
	}
	if r.channels == 1 && r.dst.Channels == 2 {
		pcm = MonoToStereo(pcm)
	}
	return pcm, nil
}

// Resample converts a single 16-bit PCM buffer from src to dst format. Each
// call builds a fresh rate converter, which is fine for the utterance- and
// response-sized buffers the turn pipeline works with; continuous streams
// should hold one Resampler and feed it chunk by chunk instead.
func Resample(pcm []byte, src, dst Format) ([]byte, error) {
	r, err := NewResampler(src, dst)
	if err != nil {
		return nil, err
	}
	return r.Process(pcm)
}

func pcmToFloat64(pcm []byte) []float64 {
	n := len(pcm) / bytesPerSample
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		s := int16(binary.LittleEndian.Uint16(pcm[i*2 : i*2+2]))
		out[i] = float64(s) / 32768.0
	}
	return out
}

func float64ToPCM(samples []float64) []byte {
	out := make([]byte, len(samples)*bytesPerSample)
	for i, s := range samples {
		v := int32(s * 32767.0)
		if v > 32767 {
			v = 32767
		} else if v < -32768 {
			v = -32768
		}
		binary.LittleEndian.PutUint16(out[i*2:i*2+2], uint16(int16(v)))
	}
	return out
}
