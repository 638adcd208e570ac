// Package transport provides the datagram primitives shared by every
// Sightline component: the [Link] type, one direction of one UDP stream
// bound to a fixed address/port pair, and the length-prefixed framing used
// on the video Links.
//
// A Link owns its socket and its liveness/rate counters; it is never shared
// between goroutines except through the counter accessors, which are safe
// for concurrent use. There is no connection state and no handshake: a Link
// that stops receiving datagrams is simply reported as down by [Link.Up]
// after the caller's liveness timeout, and resumes on the next datagram.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

const (
	// MaxDatagram is the largest datagram a Link will receive in one read.
	MaxDatagram = 65535

	// socketBuffer is the kernel send/receive buffer requested for every
	// Link socket. Video Links burst a full frame of segments at a time,
	// so the default buffer is too small on most systems.
	socketBuffer = 4 * 1024 * 1024

	// recvPollInterval bounds how long a Recv call can block before
	// re-checking its context.
	recvPollInterval = time.Second
)

// ErrClosed is returned by Recv and Send after the Link has been closed.
var ErrClosed = errors.New("transport: link closed")

// ErrNoRemote is returned by Send when an outbound Link has no remote
// address yet (auto-detecting Links learn theirs from the first inbound
// datagram on a paired Link).
var ErrNoRemote = errors.New("transport: no remote address set")

// Stats is a point-in-time snapshot of a Link's traffic counters.
type Stats struct {
	// Packets is the total number of datagrams sent or received.
	Packets uint64

	// Bytes is the total payload bytes sent or received.
	Bytes uint64

	// LastActivity is when the most recent datagram was sent or received.
	// Zero if the Link has never carried traffic.
	LastActivity time.Time
}

// Link is one direction of one UDP datagram stream. Inbound Links are
// created with [Listen] and used via [Link.Recv]; outbound Links are
// created with [Dial] (fixed remote) or [NewSender] (remote learned later
// via [Link.SetRemote]) and used via [Link.Send].
type Link struct {
	name string
	conn *net.UDPConn

	mu     sync.Mutex // guards remote
	remote *net.UDPAddr

	packets  atomic.Uint64
	bytes    atomic.Uint64
	lastNano atomic.Int64

	closed atomic.Bool
}

// Listen creates an inbound Link bound to addr (e.g. ":9000").
// name is used only for logging and status reporting.
func Listen(name, addr string) (*Link, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("transport: resolve %q: %w", addr, err)
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, fmt.Errorf("transport: listen %q: %w", addr, err)
	}
	_ = conn.SetReadBuffer(socketBuffer)
	return &Link{name: name, conn: conn}, nil
}

// Dial creates an outbound Link with a fixed remote address.
func Dial(name, addr string) (*Link, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("transport: resolve %q: %w", addr, err)
	}
	l, err := NewSender(name)
	if err != nil {
		return nil, err
	}
	l.remote = udpAddr
	return l, nil
}

// NewSender creates an outbound Link without a remote address. Send returns
// [ErrNoRemote] until [Link.SetRemote] is called; this supports the
// reply-to-first-sender behaviour of the inference node.
func NewSender(name string) (*Link, error) {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{})
	if err != nil {
		return nil, fmt.Errorf("transport: open sender socket: %w", err)
	}
	_ = conn.SetWriteBuffer(socketBuffer)
	return &Link{name: name, conn: conn}, nil
}

// Name returns the Link's configured name.
func (l *Link) Name() string { return l.name }

// Recv blocks until a datagram arrives, ctx is cancelled, or the Link is
// closed. The returned slice is freshly allocated and owned by the caller.
func (l *Link) Recv(ctx context.Context) ([]byte, *net.UDPAddr, error) {
	buf := make([]byte, MaxDatagram)
	for {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		if l.closed.Load() {
			return nil, nil, ErrClosed
		}

		// Short read deadlines keep the goroutine responsive to
		// cancellation without a watcher goroutine per Link.
		_ = l.conn.SetReadDeadline(time.Now().Add(recvPollInterval))
		n, addr, err := l.conn.ReadFromUDP(buf)
		if err != nil {
			var nerr net.Error
			if errors.As(err, &nerr) && nerr.Timeout() {
				continue
			}
			if l.closed.Load() {
				return nil, nil, ErrClosed
			}
			return nil, nil, fmt.Errorf("transport: recv on %s: %w", l.name, err)
		}

		l.packets.Add(1)
		l.bytes.Add(uint64(n))
		l.lastNano.Store(time.Now().UnixNano())

		out := make([]byte, n)
		copy(out, buf[:n])
		return out, addr, nil
	}
}

// Send transmits one datagram to the Link's remote address. It never
// retries: the transport is unreliable by contract and a late frame is
// worse than a lost one.
func (l *Link) Send(payload []byte) error {
	if l.closed.Load() {
		return ErrClosed
	}

	l.mu.Lock()
	remote := l.remote
	l.mu.Unlock()
	if remote == nil {
		return ErrNoRemote
	}

	n, err := l.conn.WriteToUDP(payload, remote)
	if err != nil {
		return fmt.Errorf("transport: send on %s: %w", l.name, err)
	}
	l.packets.Add(1)
	l.bytes.Add(uint64(n))
	l.lastNano.Store(time.Now().UnixNano())
	return nil
}

// SetRemote sets or replaces the remote address for an outbound Link.
func (l *Link) SetRemote(addr *net.UDPAddr) {
	l.mu.Lock()
	l.remote = addr
	l.mu.Unlock()
}

// Remote returns the current remote address, or nil if none is set.
func (l *Link) Remote() *net.UDPAddr {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.remote
}

// LocalAddr returns the local address of the Link's socket.
func (l *Link) LocalAddr() net.Addr { return l.conn.LocalAddr() }

// Stats returns a snapshot of the Link's traffic counters.
func (l *Link) Stats() Stats {
	s := Stats{
		Packets: l.packets.Load(),
		Bytes:   l.bytes.Load(),
	}
	if nano := l.lastNano.Load(); nano != 0 {
		s.LastActivity = time.Unix(0, nano)
	}
	return s
}

// Up reports whether the Link has carried traffic within timeout. It is
// status reporting only and never affects control flow.
func (l *Link) Up(timeout time.Duration) bool {
	nano := l.lastNano.Load()
	if nano == 0 {
		return false
	}
	return time.Since(time.Unix(0, nano)) < timeout
}

// Close releases the Link's socket. Recv and Send return ErrClosed
// afterwards. Calling Close more than once is safe.
func (l *Link) Close() error {
	if l.closed.Swap(true) {
		return nil
	}
	return l.conn.Close()
}
