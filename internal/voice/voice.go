// Package voice implements the hub's voice turn controller: the capture loop
// that turns the microphone's PCM stream into sealed utterances, and the
// per-utterance turn pipeline that transcribes, answers, and speaks.
//
// The capture loop is the only goroutine that touches VAD and utterance
// state. Sealing an utterance spawns a turn goroutine and capture resumes
// immediately; overlapping turns run independently, but their playback is
// serialized so packets from two replies never interleave on the speaker
// link. After playback a cooldown window suppresses detection so the
// assistant does not transcribe its own voice.
package voice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/halcyoncraft/sightline/internal/config"
	"github.com/halcyoncraft/sightline/internal/observe"
	"github.com/halcyoncraft/sightline/internal/scenelog"
	"github.com/halcyoncraft/sightline/pkg/audio"
	"github.com/halcyoncraft/sightline/pkg/provider/llm"
	"github.com/halcyoncraft/sightline/pkg/provider/stt"
	"github.com/halcyoncraft/sightline/pkg/provider/tts"
	"github.com/halcyoncraft/sightline/pkg/provider/vad"
	"github.com/halcyoncraft/sightline/pkg/transport"
)

// Sentinel errors that end a turn without producing speech. They are
// expected outcomes, logged at debug level.
var (
	// ErrEmptyTranscript means STT heard nothing intelligible.
	ErrEmptyTranscript = errors.New("voice: empty transcript")

	// ErrWakeWordMismatch means the transcript did not address the
	// assistant.
	ErrWakeWordMismatch = errors.New("voice: wake word not detected")

	// ErrEmptyReply means the model returned no text to speak.
	ErrEmptyReply = errors.New("voice: empty reply")
)

const (
	defaultStageTimeout = 30 * time.Second
	defaultMaxUtterance = 15 * time.Second
	defaultSilence      = 700 * time.Millisecond
	defaultPacketBytes  = 1024
	defaultPacing       = 0.8
	defaultContext      = 20
)

// systemPrompt frames every turn. Scene observations are appended per turn.
const systemPrompt = "You are Sightline, a voice assistant watching a live camera feed. " +
	"Answer briefly in plain spoken language suitable for text-to-speech: no lists, no markup. " +
	"When the question concerns what you can see, rely on the scene observations listed below, oldest first."

// Providers bundles the four collaborator services a Controller needs.
type Providers struct {
	VAD vad.Engine
	STT stt.Transcriber
	LLM llm.Responder
	TTS tts.Synthesizer
}

// Controller owns the mic and playback links and runs the capture loop.
// Construct with [New], start with [Controller.Run].
type Controller struct {
	log     *slog.Logger
	metrics *observe.Metrics

	mic      *transport.Link
	playback *transport.Link

	providers Providers
	sceneLog  *scenelog.Log
	gate      *WakeGate

	deviceFormat audio.Format
	vadFormat    audio.Format

	frameBytes    int
	threshold     float64
	silence       time.Duration
	maxUtterance  time.Duration
	cooldown      time.Duration
	stageTimeout  time.Duration
	packetBytes   int
	pacing        float64
	contextDepth  int

	muted         atomic.Bool
	cooldownUntil atomic.Int64 // unix nanos; 0 = no cooldown

	// playMu serializes playback across overlapping turns.
	playMu sync.Mutex

	// turns tracks in-flight turn goroutines for shutdown.
	turns sync.WaitGroup
}

// Option configures a Controller during construction.
type Option func(*Controller)

// WithLogger sets the logger. Defaults to [slog.Default].
func WithLogger(log *slog.Logger) Option {
	return func(c *Controller) { c.log = log }
}

// WithMetrics sets the metrics instance. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// New creates a Controller, binding the mic listen socket and opening the
// playback link.
func New(links config.HubLinks, cfg config.VoiceConfig, sceneLog *scenelog.Log, p Providers, opts ...Option) (*Controller, error) {
	if p.VAD == nil || p.STT == nil || p.LLM == nil || p.TTS == nil {
		return nil, errors.New("voice: all four providers are required")
	}

	c := &Controller{
		providers:    p,
		sceneLog:     sceneLog,
		gate:         NewWakeGate(cfg.WakeWord),
		deviceFormat: audio.Format{SampleRate: cfg.DeviceSampleRate, Channels: cfg.DeviceChannels},
		vadFormat:    audio.Format{SampleRate: cfg.VADSampleRate, Channels: 1},
		frameBytes:   cfg.VADFrameBytes,
		threshold:    cfg.SpeechThreshold,
		silence:      defaultSilence,
		maxUtterance: defaultMaxUtterance,
		cooldown:     time.Duration(cfg.CooldownMs) * time.Millisecond,
		stageTimeout: defaultStageTimeout,
		packetBytes:  defaultPacketBytes,
		pacing:       defaultPacing,
		contextDepth: defaultContext,
	}
	if cfg.SilenceMs > 0 {
		c.silence = time.Duration(cfg.SilenceMs) * time.Millisecond
	}
	if cfg.MaxUtteranceMs > 0 {
		c.maxUtterance = time.Duration(cfg.MaxUtteranceMs) * time.Millisecond
	}
	if cfg.StageTimeoutMs > 0 {
		c.stageTimeout = time.Duration(cfg.StageTimeoutMs) * time.Millisecond
	}
	if cfg.PlaybackPacketBytes > 0 {
		c.packetBytes = cfg.PlaybackPacketBytes
	}
	if cfg.PacingFactor > 0 {
		c.pacing = cfg.PacingFactor
	}
	if cfg.SceneContextEntries > 0 {
		c.contextDepth = cfg.SceneContextEntries
	}
	c.muted.Store(cfg.Muted)
	for _, o := range opts {
		o(c)
	}
	if c.log == nil {
		c.log = slog.Default()
	}
	if c.metrics == nil {
		c.metrics = observe.DefaultMetrics()
	}

	var err error
	if c.mic, err = transport.Listen("mic", links.MicListen); err != nil {
		return nil, fmt.Errorf("voice: %w", err)
	}
	if c.playback, err = transport.Dial("playback", links.Playback); err != nil {
		c.mic.Close()
		return nil, fmt.Errorf("voice: %w", err)
	}
	return c, nil
}

// MicAddr returns the bound mic listen address.
func (c *Controller) MicAddr() string { return c.mic.LocalAddr().String() }

// SetMuted enables or disables speech detection. Muting while an utterance
// is open discards it.
func (c *Controller) SetMuted(muted bool) { c.muted.Store(muted) }

// Muted reports whether speech detection is disabled.
func (c *Controller) Muted() bool { return c.muted.Load() }

// Run drives the capture loop until ctx is cancelled, then waits for
// in-flight turns to finish.
func (c *Controller) Run(ctx context.Context) error {
	session, err := c.providers.VAD.NewSession(vad.Config{
		SampleRate:      c.vadFormat.SampleRate,
		FrameSize:       c.frameBytes,
		SpeechThreshold: c.threshold,
		HangoverMs:      int(c.silence / time.Millisecond),
	})
	if err != nil {
		return fmt.Errorf("voice: create VAD session: %w", err)
	}

	err = c.captureLoop(ctx, session)

	session.Close()
	c.mic.Close()
	c.turns.Wait()
	c.playback.Close()

	if errors.Is(err, context.Canceled) || errors.Is(err, transport.ErrClosed) {
		return nil
	}
	return err
}

// captureLoop consumes mic datagrams and drives the utterance state machine.
// It is the only goroutine that touches session and utterance state.
func (c *Controller) captureLoop(ctx context.Context, session vad.Session) error {
	chunker := audio.NewChunker(c.frameBytes)

	// One resampler for the whole mic stream. Datagram boundaries are
	// arbitrary, so the converter's filter state has to survive them.
	resampler, err := audio.NewResampler(c.deviceFormat, c.vadFormat)
	if err != nil {
		return fmt.Errorf("voice: create mic resampler: %w", err)
	}

	var (
		open       bool
		openedAt   time.Time
		buf        []byte
		inCooldown bool
	)

	discard := func() {
		open = false
		buf = nil
		session.Reset()
	}
	seal := func() {
		utterance := make([]byte, len(buf))
		copy(utterance, buf)
		open = false
		buf = nil
		c.startTurn(ctx, utterance)
	}

	for {
		datagram, _, err := c.mic.Recv(ctx)
		if err != nil {
			return err
		}

		if c.muted.Load() {
			if open {
				c.log.Debug("utterance discarded: muted")
				discard()
			}
			chunker.Reset()
			continue
		}

		now := time.Now()
		if until := c.cooldownUntil.Load(); until != 0 && now.UnixNano() < until {
			if !inCooldown {
				inCooldown = true
				if open {
					c.log.Debug("utterance discarded: playback cooldown")
					discard()
				} else {
					session.Reset()
				}
				chunker.Reset()
			}
			continue
		}
		inCooldown = false

		pcm, err := resampler.Process(datagram)
		if err != nil {
			c.log.Warn("mic resample failed", "error", err)
			continue
		}

		for _, frame := range chunker.Push(pcm) {
			ev, err := session.ProcessFrame(frame)
			if err != nil {
				c.log.Warn("vad frame rejected", "error", err)
				continue
			}

			switch {
			case !open && ev.Type == vad.SpeechStart:
				open = true
				openedAt = now
				buf = append(buf, frame...)
				c.log.Debug("utterance opened", "energy", ev.Energy)

			case open:
				// Everything inside an open utterance is kept,
				// silence and repeated speech starts included.
				buf = append(buf, frame...)
				if ev.Type == vad.SpeechEnd {
					c.log.Debug("utterance sealed: silence", "bytes", len(buf))
					seal()
				} else if now.Sub(openedAt) >= c.maxUtterance {
					c.log.Debug("utterance sealed: max duration", "bytes", len(buf))
					seal()
					session.Reset()
				}
			}
		}
	}
}

// startTurn spawns the pipeline goroutine for one sealed utterance.
func (c *Controller) startTurn(ctx context.Context, utterance []byte) {
	turnID := uuid.NewString()
	c.turns.Add(1)
	c.metrics.ActiveTurns.Add(ctx, 1)

	go func() {
		defer c.turns.Done()
		defer c.metrics.ActiveTurns.Add(ctx, -1)

		start := time.Now()
		err := c.runTurn(ctx, turnID, utterance)
		switch {
		case err == nil:
			c.metrics.TurnDuration.Record(ctx, time.Since(start).Seconds())
		case errors.Is(err, ErrEmptyTranscript), errors.Is(err, ErrWakeWordMismatch):
			c.log.Debug("turn skipped", "turn", turnID, "reason", err)
		case errors.Is(err, context.Canceled):
		default:
			c.log.Warn("turn failed", "turn", turnID, "error", err)
		}
	}()
}

// runTurn runs one utterance through STT, the wake-word gate, the LLM, TTS,
// and paced playback.
func (c *Controller) runTurn(ctx context.Context, turnID string, utterance []byte) error {
	ctx, span := observe.TurnSpan(ctx, turnID)
	defer span.End()

	text, err := c.transcribe(ctx, utterance)
	if err != nil {
		return err
	}
	if !c.gate.Match(text) {
		return fmt.Errorf("%w: %q", ErrWakeWordMismatch, text)
	}
	c.log.Info("turn transcript", "turn", turnID, "text", text)

	reply, err := c.respond(ctx, text)
	if err != nil {
		return err
	}
	c.log.Info("turn reply", "turn", turnID, "text", reply)

	speech, err := c.synthesize(ctx, reply)
	if err != nil {
		return err
	}
	return c.play(ctx, speech)
}

func (c *Controller) transcribe(ctx context.Context, utterance []byte) (string, error) {
	sctx, cancel := context.WithTimeout(ctx, c.stageTimeout)
	defer cancel()
	sctx, span := observe.StageSpan(sctx, "stt")
	defer span.End()

	start := time.Now()
	transcript, err := c.providers.STT.Transcribe(sctx, stt.Audio{
		PCM:        utterance,
		SampleRate: c.vadFormat.SampleRate,
		Channels:   1,
	})
	c.metrics.STTDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		c.metrics.RecordProviderError(ctx, "stt", "stt")
		return "", fmt.Errorf("voice: transcribe: %w", err)
	}
	text := strings.TrimSpace(transcript.Text)
	if text == "" {
		return "", ErrEmptyTranscript
	}
	return text, nil
}

func (c *Controller) respond(ctx context.Context, text string) (string, error) {
	sctx, cancel := context.WithTimeout(ctx, c.stageTimeout)
	defer cancel()
	sctx, span := observe.StageSpan(sctx, "llm")
	defer span.End()

	start := time.Now()
	resp, err := c.providers.LLM.Respond(sctx, llm.Request{
		SystemPrompt: c.buildSystemPrompt(),
		Messages:     []llm.Message{{Role: "user", Content: text}},
	})
	c.metrics.LLMDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		c.metrics.RecordProviderError(ctx, "llm", "llm")
		return "", fmt.Errorf("voice: respond: %w", err)
	}
	reply := strings.TrimSpace(resp.Content)
	if reply == "" {
		return "", ErrEmptyReply
	}
	return reply, nil
}

func (c *Controller) synthesize(ctx context.Context, reply string) (tts.Speech, error) {
	sctx, cancel := context.WithTimeout(ctx, c.stageTimeout)
	defer cancel()
	sctx, span := observe.StageSpan(sctx, "tts")
	defer span.End()

	start := time.Now()
	speech, err := c.providers.TTS.Synthesize(sctx, reply)
	c.metrics.TTSDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		c.metrics.RecordProviderError(ctx, "tts", "tts")
		return tts.Speech{}, fmt.Errorf("voice: synthesize: %w", err)
	}
	return speech, nil
}

// buildSystemPrompt appends a snapshot of recent scene observations to the
// base prompt. The snapshot is taken at this instant; entries appended later
// in the turn are not seen.
func (c *Controller) buildSystemPrompt() string {
	entries := c.sceneLog.Recent(c.contextDepth)
	if len(entries) == 0 {
		return systemPrompt
	}
	var b strings.Builder
	b.WriteString(systemPrompt)
	b.WriteString("\n\nScene observations:\n")
	for _, e := range entries {
		fmt.Fprintf(&b, "[%s] %s\n", e.Time.Format("15:04:05"), e.Text)
	}
	return b.String()
}

// play converts speech to the device format and sends it in fixed-size
// packets, paced at a fraction of real time so the device buffer stays
// ahead without overrunning. Playback is serialized across turns. The
// cooldown window starts when the last packet is sent.
func (c *Controller) play(ctx context.Context, speech tts.Speech) error {
	pcm, err := audio.Resample(speech.PCM, speech.Format, c.deviceFormat)
	if err != nil {
		return fmt.Errorf("voice: playback resample: %w", err)
	}

	c.playMu.Lock()
	defer c.playMu.Unlock()

	for off := 0; off < len(pcm); off += c.packetBytes {
		end := off + c.packetBytes
		if end > len(pcm) {
			end = len(pcm)
		}
		packet := pcm[off:end]
		if err := c.playback.Send(packet); err != nil {
			return fmt.Errorf("voice: playback: %w", err)
		}

		wait := time.Duration(float64(c.deviceFormat.Duration(len(packet))) * c.pacing)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}

	if c.cooldown > 0 {
		c.cooldownUntil.Store(time.Now().Add(c.cooldown).UnixNano())
	}
	return nil
}
