// Package relay implements the hub's frame relay: three independent inbound
// link loops (camera, annotated, analysis) plus the forward link to the
// inference node.
//
// The relay never interprets video payloads. Camera datagrams are forwarded
// to the node verbatim, segmentation intact, so a frame survives the hop
// exactly as the camera sent it. Reassembly happens only at the edges where
// the hub itself consumes content: complete camera and annotated frames are
// published to their in-process sinks, and analysis text, one plain UTF-8
// message per datagram, is appended to the Scene Log.
//
// Every publish is non-blocking. A slow sink consumer drops frames; it can
// never stall a link loop.
package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/halcyoncraft/sightline/internal/config"
	"github.com/halcyoncraft/sightline/internal/observe"
	"github.com/halcyoncraft/sightline/internal/scenelog"
	"github.com/halcyoncraft/sightline/pkg/transport"
)

// defaultLivenessTimeout is used when the config leaves liveness_timeout_ms
// unset.
const defaultLivenessTimeout = 3 * time.Second

// defaultSinkDepth is the buffer depth of a subscriber sink. Deep enough to
// absorb a UI render hiccup, shallow enough that a dead consumer wastes at
// most a few frames of memory.
const defaultSinkDepth = 4

// Feed identifies one of the hub's frame streams.
type Feed string

const (
	// FeedCamera carries raw camera frames as they pass through the hub.
	FeedCamera Feed = "camera"

	// FeedAnnotated carries annotated frames returned by the node.
	FeedAnnotated Feed = "annotated"
)

// Sink is a bounded, non-blocking frame subscriber. Frames that arrive while
// the buffer is full are dropped and counted.
type Sink struct {
	ch      chan []byte
	mu      sync.Mutex
	dropped uint64
	closed  bool
}

func newSink(depth int) *Sink {
	if depth <= 0 {
		depth = defaultSinkDepth
	}
	return &Sink{ch: make(chan []byte, depth)}
}

// Frames returns the channel complete frames are delivered on. The channel
// is closed when the hub shuts down.
func (s *Sink) Frames() <-chan []byte { return s.ch }

// Dropped returns how many frames this sink has missed because its buffer
// was full.
func (s *Sink) Dropped() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// publish delivers frame without blocking. Reports whether the frame was
// accepted.
func (s *Sink) publish(frame []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.ch <- frame:
		return true
	default:
		s.dropped++
		return false
	}
}

func (s *Sink) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

// LinkStatus is the reported state of a single inbound link.
type LinkStatus struct {
	// Up is true if the link carried traffic within the liveness timeout.
	Up bool

	// Stats is the link's traffic snapshot.
	Stats transport.Stats
}

// Status is a point-in-time snapshot of the hub's inbound links. It is for
// status reporting only and never drives control flow.
type Status struct {
	Camera    LinkStatus
	Annotated LinkStatus
	Analysis  LinkStatus
}

// Hub owns the relay's links and loops. Create it with [New], start it with
// [Hub.Run], and shut it down by cancelling the Run context.
type Hub struct {
	log      *slog.Logger
	metrics  *observe.Metrics
	sceneLog *scenelog.Log

	camera    *transport.Link
	annotated *transport.Link
	analysis  *transport.Link
	node      *transport.Link
	display   *transport.Link

	livenessTimeout time.Duration
	sinkDepth       int

	mu    sync.Mutex
	sinks map[Feed][]*Sink
}

// Option configures a Hub during construction.
type Option func(*Hub)

// WithLogger sets the logger. Defaults to [slog.Default].
func WithLogger(log *slog.Logger) Option {
	return func(h *Hub) { h.log = log }
}

// WithMetrics sets the metrics instance. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(h *Hub) { h.metrics = m }
}

// WithSinkDepth sets the buffer depth of subscriber sinks.
func WithSinkDepth(n int) Option {
	return func(h *Hub) { h.sinkDepth = n }
}

// New creates a Hub, binding the three inbound links and opening the forward
// link to the inference node. The optional display mirror link is opened only
// when links.Display is non-empty. On error all already-opened links are
// closed.
func New(links config.HubLinks, sceneLog *scenelog.Log, opts ...Option) (*Hub, error) {
	h := &Hub{
		sceneLog:        sceneLog,
		livenessTimeout: defaultLivenessTimeout,
		sinkDepth:       defaultSinkDepth,
		sinks:           make(map[Feed][]*Sink),
	}
	if links.LivenessTimeoutMs > 0 {
		h.livenessTimeout = time.Duration(links.LivenessTimeoutMs) * time.Millisecond
	}
	for _, o := range opts {
		o(h)
	}
	if h.log == nil {
		h.log = slog.Default()
	}
	if h.metrics == nil {
		h.metrics = observe.DefaultMetrics()
	}

	var err error
	if h.camera, err = transport.Listen("camera", links.CameraListen); err != nil {
		return nil, fmt.Errorf("relay: %w", err)
	}
	if h.annotated, err = transport.Listen("annotated", links.AnnotatedListen); err != nil {
		h.closeLinks()
		return nil, fmt.Errorf("relay: %w", err)
	}
	if h.analysis, err = transport.Listen("analysis", links.AnalysisListen); err != nil {
		h.closeLinks()
		return nil, fmt.Errorf("relay: %w", err)
	}
	if h.node, err = transport.Dial("node-frames", links.NodeFrames); err != nil {
		h.closeLinks()
		return nil, fmt.Errorf("relay: %w", err)
	}
	if links.Display != "" {
		if h.display, err = transport.Dial("display", links.Display); err != nil {
			h.closeLinks()
			return nil, fmt.Errorf("relay: %w", err)
		}
	}
	return h, nil
}

// CameraAddr returns the bound camera listen address.
func (h *Hub) CameraAddr() string { return h.camera.LocalAddr().String() }

// AnnotatedAddr returns the bound annotated listen address.
func (h *Hub) AnnotatedAddr() string { return h.annotated.LocalAddr().String() }

// AnalysisAddr returns the bound analysis listen address.
func (h *Hub) AnalysisAddr() string { return h.analysis.LocalAddr().String() }

// Subscribe registers a new sink on the given feed. Subscribers added after
// Run has started receive only frames that arrive after subscription.
func (h *Hub) Subscribe(feed Feed) *Sink {
	s := newSink(h.sinkDepth)
	h.mu.Lock()
	h.sinks[feed] = append(h.sinks[feed], s)
	h.mu.Unlock()
	return s
}

// Status reports per-link liveness and traffic counters.
func (h *Hub) Status() Status {
	return Status{
		Camera:    LinkStatus{Up: h.camera.Up(h.livenessTimeout), Stats: h.camera.Stats()},
		Annotated: LinkStatus{Up: h.annotated.Up(h.livenessTimeout), Stats: h.annotated.Stats()},
		Analysis:  LinkStatus{Up: h.analysis.Up(h.livenessTimeout), Stats: h.analysis.Stats()},
	}
}

// CameraLink exposes the camera link for readiness checks.
func (h *Hub) CameraLink() *transport.Link { return h.camera }

// AnnotatedLink exposes the annotated-return link for readiness checks.
func (h *Hub) AnnotatedLink() *transport.Link { return h.annotated }

// LivenessTimeout is the window used by [Hub.Status] to decide whether a
// link is up.
func (h *Hub) LivenessTimeout() time.Duration { return h.livenessTimeout }

// Run drives the three inbound loops until ctx is cancelled or a loop fails
// unrecoverably. All links and sinks are closed before Run returns.
func (h *Hub) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return h.cameraLoop(ctx) })
	g.Go(func() error { return h.annotatedLoop(ctx) })
	g.Go(func() error { return h.analysisLoop(ctx) })

	err := g.Wait()
	h.closeLinks()
	h.mu.Lock()
	for _, sinks := range h.sinks {
		for _, s := range sinks {
			s.close()
		}
	}
	h.mu.Unlock()

	if errors.Is(err, context.Canceled) || errors.Is(err, transport.ErrClosed) {
		return nil
	}
	return err
}

// cameraLoop forwards every camera datagram to the node verbatim and
// publishes complete frames to camera sinks. Forwarding failures drop the
// datagram; a frame arriving late at the node is worse than a frame lost.
func (h *Hub) cameraLoop(ctx context.Context) error {
	var asm transport.Assembler
	for {
		datagram, _, err := h.camera.Recv(ctx)
		if err != nil {
			return err
		}

		if sendErr := h.node.Send(datagram); sendErr != nil {
			h.metrics.RecordFrameDrop(ctx, "node_send")
			h.log.Warn("camera forward failed", "error", sendErr)
		}

		frames, asmErr := asm.Push(datagram)
		if asmErr != nil {
			h.metrics.RecordFrameDrop(ctx, "camera_desync")
			h.log.Debug("camera stream desync", "error", asmErr)
			continue
		}
		for _, frame := range frames {
			h.metrics.RecordFrame(ctx, "camera")
			h.publish(ctx, FeedCamera, frame)
		}
	}
}

// annotatedLoop reassembles annotated frames from the node and publishes
// them to annotated sinks and the optional display mirror.
func (h *Hub) annotatedLoop(ctx context.Context) error {
	var asm transport.Assembler
	for {
		datagram, _, err := h.annotated.Recv(ctx)
		if err != nil {
			return err
		}

		if h.display != nil {
			if sendErr := h.display.Send(datagram); sendErr != nil {
				h.log.Debug("display mirror failed", "error", sendErr)
			}
		}

		frames, asmErr := asm.Push(datagram)
		if asmErr != nil {
			h.metrics.RecordFrameDrop(ctx, "annotated_desync")
			h.log.Debug("annotated stream desync", "error", asmErr)
			continue
		}
		for _, frame := range frames {
			h.metrics.RecordFrame(ctx, "annotated")
			h.publish(ctx, FeedAnnotated, frame)
		}
	}
}

// analysisLoop appends analysis text to the Scene Log. The analysis link
// carries plain UTF-8, one complete message per datagram, no length prefix.
// Empty datagrams are ignored.
func (h *Hub) analysisLoop(ctx context.Context) error {
	for {
		datagram, _, err := h.analysis.Recv(ctx)
		if err != nil {
			return err
		}

		text := string(datagram)
		if text == "" {
			continue
		}
		before := h.sceneLog.Len()
		h.sceneLog.Append(text)
		h.metrics.SceneLogEntries.Add(ctx, int64(h.sceneLog.Len()-before))
		h.log.Info("scene analysis", "text", text)
	}
}

func (h *Hub) publish(ctx context.Context, feed Feed, frame []byte) {
	h.mu.Lock()
	sinks := make([]*Sink, len(h.sinks[feed]))
	copy(sinks, h.sinks[feed])
	h.mu.Unlock()

	for _, s := range sinks {
		if !s.publish(frame) {
			h.metrics.RecordFrameDrop(ctx, "sink_full")
		}
	}
}

func (h *Hub) closeLinks() {
	for _, l := range []*transport.Link{h.camera, h.annotated, h.analysis, h.node, h.display} {
		if l != nil {
			_ = l.Close()
		}
	}
}
