// Package infer implements the inference node: the per-frame dispatch loop
// and the sampled scene-analysis worker.
//
// Every forwarded camera frame takes the fast path: optional object detection
// under a short timeout, box drawing, and the annotated result sent back to
// the hub in a single datagram. Any failure on the fast path degrades to
// passing the original frame through untouched; the video stream never stalls
// on inference.
//
// Independently, a wall-clock ticker samples the most recent frame into a
// single-slot hand-off consumed by the analyst worker, which blocks on the
// vision-language model with a generous timeout. A busy analyst means the
// tick is skipped, never queued.
package infer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/halcyoncraft/sightline/internal/annotate"
	"github.com/halcyoncraft/sightline/internal/config"
	"github.com/halcyoncraft/sightline/internal/observe"
	"github.com/halcyoncraft/sightline/pkg/provider/detect"
	"github.com/halcyoncraft/sightline/pkg/provider/vlm"
	"github.com/halcyoncraft/sightline/pkg/transport"
)

const (
	defaultDetectTimeout    = 500 * time.Millisecond
	defaultAnalysisInterval = 5 * time.Second
	defaultVLMTimeout       = 30 * time.Second

	// shrinkFloor and shrinkStep govern the one-shot quality retry when an
	// annotated re-encode does not fit a single datagram.
	shrinkFloor = 20
	shrinkStep  = 30

	// maxAnnotatedJPEG is the largest annotated frame that fits one
	// datagram alongside its length prefix.
	maxAnnotatedJPEG = transport.MaxDatagramPayload - transport.PrefixSize
)

// replyLink is an outbound link whose remote host may be learned from
// inbound traffic. A config address with an explicit host is fixed; a
// host-less address like ":9001" pins the port and adopts the source IP of
// the first frame the node receives.
type replyLink struct {
	link *transport.Link

	// port is non-zero only while the remote host is still unknown.
	port int
}

func newReplyLink(name, addr string) (*replyLink, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, fmt.Errorf("infer: reply address %q: %w", addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 {
		return nil, fmt.Errorf("infer: reply address %q: invalid port", addr)
	}
	if host != "" {
		l, err := transport.Dial(name, addr)
		if err != nil {
			return nil, err
		}
		return &replyLink{link: l}, nil
	}
	l, err := transport.NewSender(name)
	if err != nil {
		return nil, err
	}
	return &replyLink{link: l, port: port}, nil
}

// learn adopts src's IP as the remote host if it is still unknown.
func (r *replyLink) learn(src *net.UDPAddr) {
	if r.port == 0 || src == nil {
		return
	}
	r.link.SetRemote(&net.UDPAddr{IP: src.IP, Port: r.port})
	r.port = 0
}

// Dispatcher runs the node's loops. Construct with [New], start with
// [Dispatcher.Run].
type Dispatcher struct {
	log     *slog.Logger
	metrics *observe.Metrics

	frames    *transport.Link
	annotated *replyLink
	analysis  *replyLink

	detector  detect.Detector
	describer vlm.Describer

	annotateOn       bool
	detectTimeout    time.Duration
	analysisInterval time.Duration
	vlmTimeout       time.Duration
	auditPath        string

	mu     sync.Mutex
	latest []byte

	// slot is the single-slot hand-off between the sampler and the
	// analyst. Capacity one; a failed non-blocking send is a skip.
	slot chan []byte
}

// Option configures a Dispatcher during construction.
type Option func(*Dispatcher)

// WithLogger sets the logger. Defaults to [slog.Default].
func WithLogger(log *slog.Logger) Option {
	return func(d *Dispatcher) { d.log = log }
}

// WithMetrics sets the metrics instance. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// WithDetector sets the object detector used on the fast path. Without one
// (or with annotation disabled) frames pass through untouched.
func WithDetector(det detect.Detector) Option {
	return func(d *Dispatcher) { d.detector = det }
}

// WithDescriber sets the scene-analysis model. Without one the sampling loop
// does not run.
func WithDescriber(desc vlm.Describer) Option {
	return func(d *Dispatcher) { d.describer = desc }
}

// New creates a Dispatcher from the node configuration, binding the frames
// listen socket and opening the two reply links.
func New(cfg config.NodeConfig, opts ...Option) (*Dispatcher, error) {
	d := &Dispatcher{
		annotateOn:       cfg.Annotate,
		detectTimeout:    defaultDetectTimeout,
		analysisInterval: defaultAnalysisInterval,
		vlmTimeout:       defaultVLMTimeout,
		auditPath:        cfg.AuditLogPath,
		slot:             make(chan []byte, 1),
	}
	if cfg.DetectTimeoutMs > 0 {
		d.detectTimeout = time.Duration(cfg.DetectTimeoutMs) * time.Millisecond
	}
	if cfg.AnalysisIntervalMs > 0 {
		d.analysisInterval = time.Duration(cfg.AnalysisIntervalMs) * time.Millisecond
	}
	if cfg.VLMTimeoutMs > 0 {
		d.vlmTimeout = time.Duration(cfg.VLMTimeoutMs) * time.Millisecond
	}
	for _, o := range opts {
		o(d)
	}
	if d.log == nil {
		d.log = slog.Default()
	}
	if d.metrics == nil {
		d.metrics = observe.DefaultMetrics()
	}

	var err error
	if d.frames, err = transport.Listen("frames", cfg.FramesListen); err != nil {
		return nil, fmt.Errorf("infer: %w", err)
	}
	if d.annotated, err = newReplyLink("hub-annotated", cfg.HubAnnotated); err != nil {
		d.frames.Close()
		return nil, err
	}
	if d.analysis, err = newReplyLink("hub-analysis", cfg.HubAnalysis); err != nil {
		d.frames.Close()
		d.annotated.link.Close()
		return nil, err
	}
	return d, nil
}

// FramesAddr returns the bound frames listen address.
func (d *Dispatcher) FramesAddr() string { return d.frames.LocalAddr().String() }

// FramesLink exposes the frames link for readiness checks.
func (d *Dispatcher) FramesLink() *transport.Link { return d.frames }

// Run drives the frame loop and, when a describer is configured, the sampler
// and analyst loops, until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return d.frameLoop(ctx) })
	if d.describer != nil {
		g.Go(func() error { return d.sampleLoop(ctx) })
		g.Go(func() error { return d.analystLoop(ctx) })
	}

	err := g.Wait()
	d.frames.Close()
	d.annotated.link.Close()
	d.analysis.link.Close()

	if errors.Is(err, context.Canceled) || errors.Is(err, transport.ErrClosed) {
		return nil
	}
	return err
}

func (d *Dispatcher) frameLoop(ctx context.Context) error {
	var asm transport.Assembler
	for {
		datagram, src, err := d.frames.Recv(ctx)
		if err != nil {
			return err
		}
		d.annotated.learn(src)
		d.analysis.learn(src)

		frames, asmErr := asm.Push(datagram)
		if asmErr != nil {
			d.metrics.RecordFrameDrop(ctx, "frames_desync")
			d.log.Debug("frame stream desync", "error", asmErr)
			continue
		}
		for _, frame := range frames {
			d.mu.Lock()
			d.latest = frame
			d.mu.Unlock()
			d.process(ctx, frame)
		}
	}
}

// process runs the fast path for one frame: detect, draw, send back. Any
// inference or drawing failure sends the original bytes instead.
func (d *Dispatcher) process(ctx context.Context, frame []byte) {
	out := frame
	if d.annotateOn && d.detector != nil {
		out = d.annotateFrame(ctx, frame)
	}

	if len(out) > maxAnnotatedJPEG {
		shrunk, err := annotate.ShrinkToFit(out, maxAnnotatedJPEG, annotate.Quality-shrinkStep, shrinkFloor, shrinkStep)
		if err != nil {
			d.metrics.RecordFrameDrop(ctx, "oversized")
			d.log.Warn("annotated frame too large, dropped", "bytes", len(out))
			return
		}
		out = shrunk
	}

	if err := d.annotated.link.Send(transport.EncodeFrame(out)); err != nil {
		if !errors.Is(err, transport.ErrNoRemote) {
			d.log.Warn("annotated send failed", "error", err)
		}
		d.metrics.RecordFrameDrop(ctx, "annotated_send")
		return
	}
	d.metrics.RecordFrame(ctx, "annotated")
}

func (d *Dispatcher) annotateFrame(ctx context.Context, frame []byte) []byte {
	dctx, cancel := context.WithTimeout(ctx, d.detectTimeout)
	defer cancel()

	start := time.Now()
	detections, err := d.detector.Detect(dctx, frame)
	d.metrics.DetectDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		d.metrics.RecordProviderError(ctx, "detect", "detect")
		d.log.Debug("detection failed, passing frame through", "error", err)
		return frame
	}
	if len(detections) == 0 {
		return frame
	}

	drawn, err := annotate.Draw(frame, detections)
	if err != nil {
		d.log.Debug("annotation failed, passing frame through", "error", err)
		return frame
	}
	return drawn
}

// sampleLoop try-submits the most recent frame to the analyst on every tick.
func (d *Dispatcher) sampleLoop(ctx context.Context) error {
	ticker := time.NewTicker(d.analysisInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		d.mu.Lock()
		frame := d.latest
		d.mu.Unlock()
		if frame == nil {
			continue
		}

		select {
		case d.slot <- frame:
			d.metrics.AnalysisSampled.Add(ctx, 1)
		default:
			d.metrics.AnalysisSkipped.Add(ctx, 1)
		}
	}
}

// analystLoop consumes sampled frames one at a time and publishes each scene
// description on the analysis link.
func (d *Dispatcher) analystLoop(ctx context.Context) error {
	for {
		var frame []byte
		select {
		case <-ctx.Done():
			return ctx.Err()
		case frame = <-d.slot:
		}

		vctx, cancel := context.WithTimeout(ctx, d.vlmTimeout)
		start := time.Now()
		text, err := d.describer.Describe(vctx, frame)
		cancel()
		d.metrics.VLMDuration.Record(ctx, time.Since(start).Seconds())
		if err != nil {
			d.metrics.RecordProviderError(ctx, "vlm", "vlm")
			d.log.Warn("scene analysis failed", "error", err)
			continue
		}

		// Analysis text travels as plain UTF-8, one message per
		// datagram, no length prefix.
		if err := d.analysis.link.Send([]byte(text)); err != nil {
			if !errors.Is(err, transport.ErrNoRemote) {
				d.log.Warn("analysis send failed", "error", err)
			}
			continue
		}
		d.log.Info("scene analysis sent", "text", text)
		d.audit(text)
	}
}

// audit appends one timestamped line to the local audit file. The file is
// write-only from the node's perspective; it is never read back.
func (d *Dispatcher) audit(text string) {
	if d.auditPath == "" {
		return
	}
	f, err := os.OpenFile(d.auditPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		d.log.Warn("audit log open failed", "path", d.auditPath, "error", err)
		return
	}
	defer f.Close()
	if _, err := fmt.Fprintf(f, "%s\t%s\n", time.Now().Format(time.RFC3339), text); err != nil {
		d.log.Warn("audit log write failed", "error", err)
	}
}
