// Command sightline-node is the inference node daemon: it annotates
// forwarded camera frames with object detections and periodically describes
// the scene with a vision-language model, sending both back to the hub.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/halcyoncraft/sightline/internal/config"
	"github.com/halcyoncraft/sightline/internal/health"
	"github.com/halcyoncraft/sightline/internal/infer"
	"github.com/halcyoncraft/sightline/internal/observe"
	"github.com/halcyoncraft/sightline/pkg/provider/detect"
	"github.com/halcyoncraft/sightline/pkg/provider/detect/httpdet"
	"github.com/halcyoncraft/sightline/pkg/provider/vlm"
	vlmopenai "github.com/halcyoncraft/sightline/pkg/provider/vlm/openai"
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
			fmt.Fprintf(os.Stderr, "sightline-node: config file %q not found\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "sightline-node: %v\n", err)
		}
		return 1
	}

	logger := newLogger(cfg.Node.LogLevel)
	slog.SetDefault(logger)

	slog.Info("sightline node starting",
		"config", *configPath,
		"frames_listen", cfg.Node.FramesListen,
		"annotate", cfg.Node.Annotate,
		"log_level", cfg.Node.LogLevel,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "sightline-node"})
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
	registerBuiltinProviders(reg, cfg)

	opts := []infer.Option{infer.WithMetrics(metrics)}
	if name := cfg.Providers.Detect.Name; name != "" {
		det, err := reg.CreateDetect(cfg.Providers.Detect)
		if err != nil {
			slog.Error("failed to create detect provider", "name", name, "err", err)
			return 1
		}
		opts = append(opts, infer.WithDetector(det))
		slog.Info("provider created", "kind", "detect", "name", name)
	} else if cfg.Node.Annotate {
		slog.Warn("annotation enabled without a detect provider; frames pass through")
	}
	if name := cfg.Providers.VLM.Name; name != "" {
		desc, err := reg.CreateVLM(cfg.Providers.VLM)
		if err != nil {
			slog.Error("failed to create vlm provider", "name", name, "err", err)
			return 1
		}
		opts = append(opts, infer.WithDescriber(desc))
		slog.Info("provider created", "kind", "vlm", "name", name)
	} else {
		slog.Warn("no vlm provider configured; scene analysis disabled")
	}

	dispatcher, err := infer.New(cfg.Node, opts...)
	if err != nil {
		slog.Error("failed to create dispatcher", "err", err)
		return 1
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return dispatcher.Run(ctx) })
	if cfg.Node.MetricsAddr != "" {
		g.Go(func() error { return serveHTTP(ctx, cfg.Node.MetricsAddr, dispatcher, metrics) })
	}

	slog.Info("node ready")
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// registerBuiltinProviders wires the provider factories the node knows into
// reg. The node config supplies the detection confidence floor.
func registerBuiltinProviders(reg *config.Registry, cfg *config.Config) {
	reg.RegisterDetect("httpdet", func(entry config.ProviderEntry) (detect.Detector, error) {
		var opts []httpdet.Option
		if cfg.Node.MinConfidence > 0 {
			opts = append(opts, httpdet.WithMinConfidence(cfg.Node.MinConfidence))
		}
		return httpdet.New(entry.BaseURL, opts...)
	})

	reg.RegisterVLM("openai", func(entry config.ProviderEntry) (vlm.Describer, error) {
		var opts []vlmopenai.Option
		if entry.BaseURL != "" {
			opts = append(opts, vlmopenai.WithBaseURL(entry.BaseURL))
		}
		if prompt := optString(entry.Options, "prompt"); prompt != "" {
			opts = append(opts, vlmopenai.WithPrompt(prompt))
		}
		if n := optInt(entry.Options, "max_tokens"); n > 0 {
			opts = append(opts, vlmopenai.WithMaxTokens(n))
		}
		return vlmopenai.New(entry.APIKey, entry.Model, opts...)
	})
}

// frameLiveness is the window without inbound frames after which the node
// reports not ready.
const frameLiveness = 3 * time.Second

// serveHTTP exposes /metrics and the health probes until ctx is cancelled.
func serveHTTP(ctx context.Context, addr string, dispatcher *infer.Dispatcher, metrics *observe.Metrics) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	health.New(
		health.LinkChecker("frames_link", dispatcher.FramesLink(), frameLiveness),
	).Register(mux)

	srv := &http.Server{
		Addr:              addr,
		Handler:           observe.Middleware(metrics, "node")(mux),
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
