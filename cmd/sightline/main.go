// Command sightline is the relay hub daemon: it moves video between the
// camera, the inference node, and the display, and runs the voice turn
// controller against the microphone and speaker links.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/halcyoncraft/sightline/internal/config"
	"github.com/halcyoncraft/sightline/internal/health"
	"github.com/halcyoncraft/sightline/internal/observe"
	"github.com/halcyoncraft/sightline/internal/relay"
	"github.com/halcyoncraft/sightline/internal/resilience"
	"github.com/halcyoncraft/sightline/internal/scenelog"
	"github.com/halcyoncraft/sightline/internal/voice"
	"github.com/halcyoncraft/sightline/pkg/provider/llm"
	"github.com/halcyoncraft/sightline/pkg/provider/llm/anyllm"
	"github.com/halcyoncraft/sightline/pkg/provider/stt"
	"github.com/halcyoncraft/sightline/pkg/provider/stt/whisper"
	"github.com/halcyoncraft/sightline/pkg/provider/tts"
	"github.com/halcyoncraft/sightline/pkg/provider/tts/elevenlabs"
	"github.com/halcyoncraft/sightline/pkg/provider/vad"
	"github.com/halcyoncraft/sightline/pkg/provider/vad/energy"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "sightline: config file %q not found\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "sightline: %v\n", err)
		}
		return 1
	}

	logger := newLogger(cfg.Hub.LogLevel)
	slog.SetDefault(logger)

	slog.Info("sightline hub starting",
		"config", *configPath,
		"camera_listen", cfg.Hub.Links.CameraListen,
		"node_frames", cfg.Hub.Links.NodeFrames,
		"log_level", cfg.Hub.LogLevel,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "sightline-hub"})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()
	metrics := observe.DefaultMetrics()

	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	sceneLog := scenelog.New(
		cfg.Hub.SceneLog.MaxEntries,
		time.Duration(cfg.Hub.SceneLog.MaxAgeMs)*time.Millisecond,
	)

	hub, err := relay.New(cfg.Hub.Links, sceneLog, relay.WithMetrics(metrics))
	if err != nil {
		slog.Error("failed to create relay", "err", err)
		return 1
	}

	controller, err := buildVoiceController(cfg, reg, sceneLog, metrics)
	if err != nil {
		slog.Error("failed to create voice controller", "err", err)
		return 1
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return hub.Run(ctx) })
	if controller != nil {
		g.Go(func() error { return controller.Run(ctx) })
	}
	if cfg.Hub.MetricsAddr != "" {
		g.Go(func() error { return serveHTTP(ctx, cfg.Hub.MetricsAddr, hub, metrics) })
	}

	slog.Info("hub ready")
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// buildVoiceController wires the four voice providers from the registry.
// When any of them is unconfigured the hub runs video-only and nil is
// returned.
func buildVoiceController(cfg *config.Config, reg *config.Registry, sceneLog *scenelog.Log, metrics *observe.Metrics) (*voice.Controller, error) {
	names := []string{
		cfg.Providers.VAD.Name,
		cfg.Providers.STT.Name,
		cfg.Providers.LLM.Name,
		cfg.Providers.TTS.Name,
	}
	for _, n := range names {
		if n == "" {
			slog.Warn("voice pipeline disabled: vad, stt, llm, and tts providers are all required")
			return nil, nil
		}
	}

	vadEngine, err := reg.CreateVAD(cfg.Providers.VAD)
	if err != nil {
		return nil, fmt.Errorf("create vad provider %q: %w", cfg.Providers.VAD.Name, err)
	}
	transcriber, err := reg.CreateSTT(cfg.Providers.STT)
	if err != nil {
		return nil, fmt.Errorf("create stt provider %q: %w", cfg.Providers.STT.Name, err)
	}
	responder, err := reg.CreateLLM(cfg.Providers.LLM)
	if err != nil {
		return nil, fmt.Errorf("create llm provider %q: %w", cfg.Providers.LLM.Name, err)
	}
	synthesizer, err := reg.CreateTTS(cfg.Providers.TTS)
	if err != nil {
		return nil, fmt.Errorf("create tts provider %q: %w", cfg.Providers.TTS.Name, err)
	}
	for _, kind := range []string{"vad", "stt", "llm", "tts"} {
		slog.Info("provider created", "kind", kind)
	}

	if len(cfg.Providers.STTFallbacks) > 0 {
		fb := resilience.NewSTTFallback(transcriber, cfg.Providers.STT.Name, resilience.FallbackConfig{})
		for _, entry := range cfg.Providers.STTFallbacks {
			alt, err := reg.CreateSTT(entry)
			if err != nil {
				return nil, fmt.Errorf("create stt fallback %q: %w", entry.Name, err)
			}
			fb.AddFallback(entry.Name, alt)
		}
		transcriber = fb
		slog.Info("stt failover enabled", "fallbacks", len(cfg.Providers.STTFallbacks))
	}
	if len(cfg.Providers.LLMFallbacks) > 0 {
		fb := resilience.NewLLMFallback(responder, cfg.Providers.LLM.Name, resilience.FallbackConfig{})
		for _, entry := range cfg.Providers.LLMFallbacks {
			alt, err := reg.CreateLLM(entry)
			if err != nil {
				return nil, fmt.Errorf("create llm fallback %q: %w", entry.Name, err)
			}
			fb.AddFallback(entry.Name, alt)
		}
		responder = fb
		slog.Info("llm failover enabled", "fallbacks", len(cfg.Providers.LLMFallbacks))
	}
	if len(cfg.Providers.TTSFallbacks) > 0 {
		fb := resilience.NewTTSFallback(synthesizer, cfg.Providers.TTS.Name, resilience.FallbackConfig{})
		for _, entry := range cfg.Providers.TTSFallbacks {
			alt, err := reg.CreateTTS(entry)
			if err != nil {
				return nil, fmt.Errorf("create tts fallback %q: %w", entry.Name, err)
			}
			fb.AddFallback(entry.Name, alt)
		}
		synthesizer = fb
		slog.Info("tts failover enabled", "fallbacks", len(cfg.Providers.TTSFallbacks))
	}

	return voice.New(cfg.Hub.Links, cfg.Hub.Voice, sceneLog, voice.Providers{
		VAD: vadEngine,
		STT: transcriber,
		LLM: responder,
		TTS: synthesizer,
	}, voice.WithMetrics(metrics))
}

// registerBuiltinProviders wires the provider factories that ship with the
// hub into reg.
func registerBuiltinProviders(reg *config.Registry) {
	// VAD.
	reg.RegisterVAD("energy", func(config.ProviderEntry) (vad.Engine, error) {
		return energy.New(), nil
	})

	// LLM: the hosted backends share the APIKey + BaseURL pattern.
	for _, providerName := range []string{
		"openai", "anthropic", "gemini",
		"deepseek", "mistral", "groq", "llamacpp", "llamafile",
	} {
		reg.RegisterLLM(providerName, func(entry config.ProviderEntry) (llm.Responder, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(providerName, entry.Model, opts...)
		})
	}

	// ollama is a local server; it uses BaseURL for the address, not a key.
	reg.RegisterLLM("ollama", func(entry config.ProviderEntry) (llm.Responder, error) {
		var opts []anyllmlib.Option
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		return anyllm.New("ollama", entry.Model, opts...)
	})

	// STT.
	reg.RegisterSTT("whisper", func(entry config.ProviderEntry) (stt.Transcriber, error) {
		var opts []whisper.Option
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		return whisper.NewServer(entry.BaseURL, opts...)
	})
	reg.RegisterSTT("whisper-native", func(entry config.ProviderEntry) (stt.Transcriber, error) {
		modelPath := entry.Model
		if modelPath == "" {
			modelPath = optString(entry.Options, "model_path")
		}
		var opts []whisper.NativeOption
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithNativeLanguage(lang))
		}
		return whisper.NewNative(modelPath, opts...)
	})

	// TTS. The Model field carries the ElevenLabs voice ID; the synthesis
	// model is an option.
	reg.RegisterTTS("elevenlabs", func(entry config.ProviderEntry) (tts.Synthesizer, error) {
		var opts []elevenlabs.Option
		if model := optString(entry.Options, "model_id"); model != "" {
			opts = append(opts, elevenlabs.WithModel(model))
		}
		if format := optString(entry.Options, "output_format"); format != "" {
			rate := optInt(entry.Options, "output_sample_rate")
			opts = append(opts, elevenlabs.WithOutputFormat(format, rate))
		}
		return elevenlabs.New(entry.APIKey, entry.Model, opts...)
	})
}

// serveHTTP exposes /metrics, /status, and the health probes until ctx is
// cancelled.
func serveHTTP(ctx context.Context, addr string, hub *relay.Hub, metrics *observe.Metrics) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(hub.Status()); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})
	health.New(
		health.LinkChecker("camera_link", hub.CameraLink(), hub.LivenessTimeout()),
		health.LinkChecker("annotated_link", hub.AnnotatedLink(), hub.LivenessTimeout()),
	).Register(mux)

	srv := &http.Server{
		Addr:              addr,
		Handler:           observe.Middleware(metrics, "hub")(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

func optString(opts map[string]any, key string) string {
	if opts == nil {
		return ""
	}
	if s, ok := opts[key].(string); ok {
		return s
	}
	return ""
}

func optInt(opts map[string]any, key string) int {
	if opts == nil {
		return 0
	}
	switch v := opts[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return 0
}
