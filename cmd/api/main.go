package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"travel-agent-api/internal/cache"
	"travel-agent-api/internal/config"
	"travel-agent-api/internal/database"
	"travel-agent-api/internal/events"
	"travel-agent-api/internal/features"
	"travel-agent-api/internal/flights"
	"travel-agent-api/internal/handler"
	"travel-agent-api/internal/lodging"
	"travel-agent-api/internal/metrics"
	"travel-agent-api/internal/middleware"
	"travel-agent-api/internal/narrative"
	"travel-agent-api/internal/planner"
	"travel-agent-api/internal/providers/amadeus"
	"travel-agent-api/internal/providers/openai"
	"travel-agent-api/internal/providers/rapidapi"
	"travel-agent-api/internal/tracing"
)

const (
	shutdownTimeout     = 10 * time.Second
	cacheJanitorPeriod  = time.Minute
	upstreamChatTimeout = 60 * time.Second
)

func main() {
	configFile := flag.String("config", "", "Optional config file (JSON, YAML or .env); environment variables are used otherwise")
	flag.Parse()

	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Log.Level)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	flags := features.NewManager().Defaults(
		cfg.Features.CacheEnabled,
		cfg.Features.NarrativeEnabled,
		cfg.Features.CheapestFlightFirst,
	)

	backend, closeCache, err := newCache(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeCache()
	store := cache.NewSwitch(backend, flags.Func(features.FeatureCacheEnabled))

	tracer, err := tracing.New(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		Endpoint:    cfg.Tracing.Endpoint,
		ServiceName: cfg.Tracing.ServiceName,
		Environment: cfg.Server.Env,
	})
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := tracer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("failed to shut down tracer", "error", err)
		}
	}()

	eventManager, closeSink := newEvents(cfg, logger)
	defer closeSink()
	defer eventManager.Shutdown()

	flightClient := amadeus.NewClient(amadeus.Config{
		APIKey:    cfg.Amadeus.APIKey,
		APISecret: cfg.Amadeus.APISecret,
		BaseURL:   cfg.Amadeus.BaseURL,
		Timeout:   time.Duration(cfg.Amadeus.TimeoutMs) * time.Millisecond,
	})
	lodgingClient := rapidapi.NewClient(rapidapi.Config{
		APIKey:  cfg.Airbnb.APIKey,
		Host:    cfg.Airbnb.Host,
		BaseURL: cfg.Airbnb.BaseURL,
		Timeout: time.Duration(cfg.Airbnb.TimeoutMs) * time.Millisecond,
	})
	completer := openai.NewClient(openai.Config{
		APIKey:  cfg.OpenAI.APIKey,
		Model:   cfg.OpenAI.Model,
		BaseURL: cfg.OpenAI.BaseURL,
		Timeout: upstreamChatTimeout,
	})

	flightService := flights.NewService(flightClient, store, cfg.CacheTTL(), logger.With("component", "flights"))
	lodgingService := lodging.NewService(lodgingClient, store, cfg.CacheTTL(), logger.With("component", "lodging"))
	generator := narrative.NewGenerator(completer, logger.With("component", "narrative"), flags.Func(features.FeatureNarrativeEnabled))

	composer := planner.NewComposer(flightService, lodgingService, generator, logger.With("component", "planner"),
		planner.WithEvents(eventManager),
		planner.WithTracer(tracer),
		planner.WithCheapestFirst(flags.Func(features.FeatureCheapestFlightFirst)),
	)

	h := handler.NewHandlerWithOptions(flightService, lodgingService, composer, generator, logger,
		handler.NewHandlerOptions{MaxBodySize: cfg.Security.MaxRequestBodySize},
	)

	r := chi.NewRouter()

	// Middleware (order matters)
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logging(logger))
	r.Use(chimw.Recoverer)

	if cfg.RateLimit.Enabled {
		rateLimiter := middleware.NewRateLimiter(cfg.RateLimit.Rate, time.Duration(cfg.RateLimit.Window)*time.Second)
		defer rateLimiter.Stop()
		r.Use(middleware.RateLimitMiddleware(rateLimiter))
	}

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins(),
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"X-RateLimit-Limit", "X-RateLimit-Remaining"},
		MaxAge:         300,
	}))
	r.Use(middleware.TracingMiddleware(tracer))

	r.Route("/api", h.Register)
	r.Get("/health", h.Health)
	r.Handle("/metrics", metrics.Handler())

	server := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("starting server",
		"addr", server.Addr,
		"env", cfg.Server.Env,
		"cache_backend", cfg.Cache.Backend,
		"rate_limit", cfg.RateLimit.Enabled,
		"tracing", cfg.Tracing.Enabled,
		"kafka_brokers", len(cfg.Events.KafkaBrokers),
	)

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

// newCache builds the configured cache backend. The returned func releases it.
func newCache(ctx context.Context, cfg *config.Config, logger *slog.Logger) (cache.Cache, func(), error) {
	switch strings.ToLower(cfg.Cache.Backend) {
	case "redis":
		rc, err := cache.NewRedisCache(cfg.Cache.RedisAddr, cfg.Cache.RedisPassword, cfg.Cache.RedisDB)
		if err != nil {
			return nil, nil, err
		}
		return rc, func() { rc.Close() }, nil

	case "sqlite":
		db, err := database.NewDB(cfg.Cache.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		sc := cache.NewSQLiteCache(db)
		go purgeSQLite(ctx, sc, logger)
		return sc, func() { db.Close() }, nil

	default:
		mc := cache.NewInMemoryCache(
			cache.WithMaxEntries(cfg.Cache.MaxEntries),
			cache.WithJanitor(cacheJanitorPeriod),
		)
		return mc, mc.Close, nil
	}
}

func purgeSQLite(ctx context.Context, sc *cache.SQLiteCache, logger *slog.Logger) {
	ticker := time.NewTicker(cacheJanitorPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			n, err := sc.PurgeExpired(ctx)
			if err != nil {
				logger.Warn("failed to purge cache", "error", err)
				continue
			}
			if n > 0 {
				logger.Debug("purged expired cache entries", "count", n)
			}
		case <-ctx.Done():
			return
		}
	}
}

// newEvents builds the event manager, forwarding trip events to Kafka when
// brokers are configured. The returned func closes the Kafka writer and must
// run after the manager has shut down.
func newEvents(cfg *config.Config, logger *slog.Logger) (*events.Manager, func()) {
	m := events.NewManager(true, logger.With("component", "events"))
	if len(cfg.Events.KafkaBrokers) == 0 {
		return m, func() {}
	}

	sink := events.NewKafkaSink(cfg.Events.KafkaBrokers, cfg.Events.KafkaTopic)
	m.Subscribe(events.EventTripPlanned, sink.Handle)
	m.Subscribe(events.EventTripRejected, sink.Handle)

	return m, func() {
		if err := sink.Close(); err != nil {
			logger.Warn("failed to close kafka writer", "error", err)
		}
	}
}
