package transport

import (
	"encoding/binary"
	"fmt"
)

const (
	// PrefixSize is the width of the big-endian length prefix that leads
	// every frame on the video Links.
	PrefixSize = 4

	// MaxDatagramPayload is the usable payload per datagram once IP/UDP
	// headers are accounted for. Frames larger than this are split into
	// multiple segments by [Segments] and reassembled by [Assembler].
	MaxDatagramPayload = 65503

	// MaxFramePayload bounds the declared length an Assembler will accept.
	// A prefix above this is treated as stream corruption, not a frame.
	MaxFramePayload = 8 * 1024 * 1024
)

// EncodeFrame returns prefix+payload as a single buffer: a 4-byte
// big-endian length followed by the payload bytes, unmodified.
func EncodeFrame(payload []byte) []byte {
	buf := make([]byte, PrefixSize+len(payload))
	binary.BigEndian.PutUint32(buf, uint32(len(payload)))
	copy(buf[PrefixSize:], payload)
	return buf
}

// Segments splits an encoded frame into datagram-sized chunks of at most
// maxSize bytes each. maxSize values below 1 fall back to
// [MaxDatagramPayload]. The returned slices alias the input.
func Segments(frame []byte, maxSize int) [][]byte {
	if maxSize < 1 {
		maxSize = MaxDatagramPayload
	}
	segs := make([][]byte, 0, (len(frame)+maxSize-1)/maxSize)
	for len(frame) > maxSize {
		segs = append(segs, frame[:maxSize])
		frame = frame[maxSize:]
	}
	if len(frame) > 0 {
		segs = append(segs, frame)
	}
	return segs
}

// Assembler reassembles length-prefixed frames from a stream of datagrams.
// Datagram boundaries carry no meaning: a frame may arrive as one datagram
// or span several. Push buffered bytes and emit every complete payload.
//
// Assembler is not safe for concurrent use; each inbound Link loop owns
// its own instance.
type Assembler struct {
	buf     []byte
	dropped uint64
}

// Push appends one datagram to the stream and returns all frame payloads
// that became complete, in order. Returned payloads are copies and do not
// alias the Assembler's buffer.
//
// A declared length above [MaxFramePayload] means the stream has lost
// sync (a datagram was dropped mid-frame, or the payload is garbage); the
// Assembler discards its buffer, counts a drop, and returns an error so
// the caller can log it. Subsequent datagrams resume normally.
func (a *Assembler) Push(datagram []byte) ([][]byte, error) {
	a.buf = append(a.buf, datagram...)

	var frames [][]byte
	for len(a.buf) >= PrefixSize {
		length := binary.BigEndian.Uint32(a.buf)
		if length > MaxFramePayload {
			a.buf = nil
			a.dropped++
			return frames, fmt.Errorf("transport: frame length %d exceeds limit, stream reset", length)
		}
		total := PrefixSize + int(length)
		if len(a.buf) < total {
			break
		}
		payload := make([]byte, length)
		copy(payload, a.buf[PrefixSize:total])
		frames = append(frames, payload)
		a.buf = a.buf[total:]
	}

	// Release the backing array once fully drained so a large frame does
	// not pin memory for the life of the Link.
	if len(a.buf) == 0 {
		a.buf = nil
	}
	return frames, nil
}

// Reset discards any partially assembled frame. Call after a known gap in
// the datagram stream (e.g. a liveness timeout) to avoid gluing the tail
// of one frame to the head of another.
func (a *Assembler) Reset() {
	a.buf = nil
}

// Dropped returns how many times the Assembler has discarded its buffer
// due to a corrupt length prefix.
func (a *Assembler) Dropped() uint64 { return a.dropped }
