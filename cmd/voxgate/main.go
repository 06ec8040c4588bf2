// Command voxgate is the conversational turn gateway: speech and text
// utterances in, capability invocations and speakable replies out.
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

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/voxgate/voxgate/internal/capability"
	"github.com/voxgate/voxgate/internal/capability/mcpimport"
	"github.com/voxgate/voxgate/internal/config"
	"github.com/voxgate/voxgate/internal/dispatch"
	"github.com/voxgate/voxgate/internal/fastpath"
	"github.com/voxgate/voxgate/internal/gateway"
	"github.com/voxgate/voxgate/internal/health"
	"github.com/voxgate/voxgate/internal/intent"
	"github.com/voxgate/voxgate/internal/observe"
	"github.com/voxgate/voxgate/internal/resilience"
	"github.com/voxgate/voxgate/internal/skills"
	"github.com/voxgate/voxgate/internal/turn"
	"github.com/voxgate/voxgate/pkg/history"
	historypg "github.com/voxgate/voxgate/pkg/history/postgres"
	"github.com/voxgate/voxgate/pkg/provider/llm"
	"github.com/voxgate/voxgate/pkg/provider/llm/anyllm"
	"github.com/voxgate/voxgate/pkg/provider/stt"
	"github.com/voxgate/voxgate/pkg/provider/stt/whisper"
	"github.com/voxgate/voxgate/pkg/provider/tts/kokoro"
)

// version is set via -ldflags at release build time.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "voxgate: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "voxgate: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("voxgate starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Observability ─────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "voxgate",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise observability", "err", err)
		return 1
	}
	metrics := observe.DefaultMetrics()

	// ── Inference backend ─────────────────────────────────────────────────────
	provider, err := buildInference(cfg.Inference)
	if err != nil {
		slog.Error("failed to build inference backend", "err", err)
		return 1
	}

	// ── History store ─────────────────────────────────────────────────────────
	store, closeStore, err := buildHistory(ctx, cfg.History)
	if err != nil {
		slog.Error("failed to build history store", "err", err)
		return 1
	}
	defer closeStore()

	// ── Capability registry ───────────────────────────────────────────────────
	registry := capability.NewRegistry()

	skillSet, err := skills.RegisterAll(registry, cfg.Skills)
	if err != nil {
		slog.Error("failed to register skills", "err", err)
		return 1
	}

	importer := mcpimport.New()
	if err := importer.ImportAll(ctx, registry, cfg.MCP.Servers); err != nil {
		slog.Error("failed to import MCP servers", "err", err)
		return 1
	}
	defer func() {
		if err := importer.Close(); err != nil {
			slog.Warn("closing MCP sessions failed", "err", err)
		}
	}()

	registry.Freeze()
	slog.Info("capability registry frozen", "capabilities", len(registry.List()))

	// ── Turn pipeline ─────────────────────────────────────────────────────────
	matcher, err := buildMatcher(registry, cfg.FastPath)
	if err != nil {
		slog.Error("fast-path rules do not match the registry", "err", err)
		return 1
	}

	resolverOpts := []intent.Option{
		intent.WithChatPrompt(cfg.Chat.SystemPrompt),
	}
	if cfg.Inference.MaxQueue > 0 {
		resolverOpts = append(resolverOpts, intent.WithMaxQueue(cfg.Inference.MaxQueue))
	}
	if cfg.Inference.Temperature > 0 {
		resolverOpts = append(resolverOpts, intent.WithTemperature(cfg.Inference.Temperature))
	}
	if cfg.Inference.MaxTokens > 0 {
		resolverOpts = append(resolverOpts, intent.WithMaxTokens(cfg.Inference.MaxTokens))
	}
	if cfg.Inference.Concurrent {
		resolverOpts = append(resolverOpts, intent.WithConcurrency(4))
	}
	resolver := intent.NewResolver(provider, registry, resolverOpts...)

	dispatcher := dispatch.NewDispatcher(registry,
		dispatch.WithDefaultTimeout(cfg.Dispatch.DefaultTimeout.Std()),
		dispatch.WithMetrics(metrics),
	)

	orchestrator := turn.New(matcher, resolver, dispatcher,
		turn.WithMetrics(metrics),
		turn.WithChatFallback(cfg.Chat.Enabled),
	)

	// ── HTTP surface ──────────────────────────────────────────────────────────
	gwOpts := []gateway.Option{
		gateway.WithAPIKey(apiKey(cfg)),
		gateway.WithHistoryWindow(cfg.Chat.HistoryWindow),
		gateway.WithModelName(cfg.Inference.Model),
	}
	if p, err := buildSTT(cfg.STT); err != nil {
		slog.Error("failed to initialise transcription", "err", err)
		return 1
	} else if p != nil {
		gwOpts = append(gwOpts, gateway.WithSTT(p))
	}
	if cfg.TTS.BaseURL != "" {
		gwOpts = append(gwOpts, gateway.WithTTS(kokoro.New(cfg.TTS.BaseURL,
			kokoro.WithVoice(cfg.TTS.Voice),
			kokoro.WithSpeed(cfg.TTS.Speed),
		)))
	}
	gw := gateway.New(orchestrator, store, gwOpts...)

	healthH := health.New(
		[]health.Checker{health.HistoryChecker(store)},
		health.WithCapabilityCount(func() int { return len(registry.List()) }),
	)

	mux := http.NewServeMux()
	mux.Handle("/v1/", gw.Handler())
	mux.Handle("GET /metrics", promhttp.Handler())
	healthH.Register(mux)

	srv := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           observe.Middleware(metrics)(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	printStartupSummary(cfg, len(registry.List()))

	errCh := make(chan error, 1)
	go func() {
		slog.Info("listening", "addr", cfg.Server.ListenAddr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "err", err)
			return 1
		}
	case <-ctx.Done():
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	slog.Info("shutdown signal received, stopping…")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("http shutdown error", "err", err)
	}
	if skillSet.Timers != nil {
		skillSet.Timers.CancelAll()
	}
	if err := otelShutdown(shutdownCtx); err != nil {
		slog.Warn("observability shutdown error", "err", err)
	}
	slog.Info("goodbye")
	return 0
}

// ── Component wiring ────────────────────────────────────────────────────────────

// buildInference creates the primary model backend plus configured fallbacks
// behind a circuit breaker.
func buildInference(cfg config.InferenceConfig) (llm.Provider, error) {
	primary, err := buildBackend(cfg.Provider, cfg.Model, cfg.BaseURL, cfg.APIKey)
	if err != nil {
		return nil, err
	}
	if len(cfg.Fallbacks) == 0 {
		return primary, nil
	}

	group := resilience.NewLLMFallback(primary, cfg.Provider+"/"+cfg.Model, resilience.FallbackConfig{})
	for _, fb := range cfg.Fallbacks {
		backend, err := buildBackend(fb.Provider, fb.Model, fb.BaseURL, fb.APIKey)
		if err != nil {
			return nil, fmt.Errorf("fallback %s/%s: %w", fb.Provider, fb.Model, err)
		}
		group.AddFallback(fb.Provider+"/"+fb.Model, backend)
		slog.Info("inference fallback registered", "provider", fb.Provider, "model", fb.Model)
	}
	return group, nil
}

func buildBackend(providerName, model, baseURL, apiKey string) (llm.Provider, error) {
	var opts []anyllmlib.Option
	if baseURL != "" {
		opts = append(opts, anyllmlib.WithBaseURL(baseURL))
	}
	if apiKey != "" {
		opts = append(opts, anyllmlib.WithAPIKey(apiKey))
	}
	return anyllm.New(providerName, model, opts...)
}

func buildHistory(ctx context.Context, cfg config.HistoryConfig) (history.Store, func(), error) {
	switch cfg.Backend {
	case "", "memory":
		return history.NewMemStore(0), func() {}, nil
	case "postgres":
		store, err := historypg.New(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown history backend %q", cfg.Backend)
	}
}

func buildMatcher(registry *capability.Registry, cfg config.FastPathConfig) (*fastpath.Matcher, error) {
	// Rules for disabled skills are dropped rather than treated as fatal, so
	// the default table works with any skill subset.
	var rules []fastpath.Rule
	if !cfg.Disabled {
		for _, r := range fastpath.DefaultRules() {
			if _, err := registry.Resolve(r.Capability); err == nil {
				rules = append(rules, r)
			} else {
				slog.Debug("dropping fast-path rule for unregistered capability",
					"rule", r.Name, "capability", r.Capability)
			}
		}
	}

	var opts []fastpath.Option
	if cfg.Fuzzy {
		var nOpts []fastpath.NormalizerOption
		if cfg.FuzzyThreshold > 0 {
			nOpts = append(nOpts, fastpath.WithThreshold(cfg.FuzzyThreshold))
		}
		opts = append(opts, fastpath.WithNormalizer(fastpath.NewNormalizer(fastpath.DefaultVocabulary(), nOpts...)))
	}

	m := fastpath.NewMatcher(registry, rules, opts...)
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

func buildSTT(cfg config.STTConfig) (stt.Provider, error) {
	if cfg.ModelPath == "" {
		return nil, nil
	}
	var opts []whisper.Option
	if cfg.Language != "" {
		opts = append(opts, whisper.WithLanguage(cfg.Language))
	}
	return whisper.New(cfg.ModelPath, opts...)
}

// apiKey resolves the gateway API key: config first, environment second.
func apiKey(cfg *config.Config) string {
	if cfg.Server.APIKey != "" {
		return cfg.Server.APIKey
	}
	return os.Getenv("VOXGATE_API_KEY")
}

// ── Startup summary ─────────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config, capabilities int) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║          voxgate — startup            ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printEntry("Inference", cfg.Inference.Provider+" / "+cfg.Inference.Model)
	printEntry("Fallbacks", fmt.Sprintf("%d", len(cfg.Inference.Fallbacks)))
	printEntry("STT", orDisabled(cfg.STT.ModelPath))
	printEntry("TTS", orDisabled(cfg.TTS.BaseURL))
	printEntry("History", cfg.History.Backend)
	printEntry("Capabilities", fmt.Sprintf("%d", capabilities))
	printEntry("MCP servers", fmt.Sprintf("%d", len(cfg.MCP.Servers)))
	printEntry("Listen addr", cfg.Server.ListenAddr)
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printEntry(name, value string) {
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-15s : %-19s ║\n", name, value)
}

func orDisabled(v string) string {
	if v == "" {
		return "(disabled)"
	}
	return v
}

// ── Logger ──────────────────────────────────────────────────────────────────────

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
