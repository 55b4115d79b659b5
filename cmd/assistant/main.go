package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"

	"github.com/vnmchuo/hub-assistant/config"
	"github.com/vnmchuo/hub-assistant/internal/auth"
	"github.com/vnmchuo/hub-assistant/internal/cache"
	"github.com/vnmchuo/hub-assistant/internal/logging"
	"github.com/vnmchuo/hub-assistant/internal/metrics"
	"github.com/vnmchuo/hub-assistant/internal/provider"
	"github.com/vnmchuo/hub-assistant/internal/proxy"
	"github.com/vnmchuo/hub-assistant/internal/telemetry"
	"github.com/vnmchuo/hub-assistant/internal/usage"
	"github.com/vnmchuo/hub-assistant/pkg/ratelimit"
)

const serviceName = "hub-assistant"

func main() {
	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		bootLogger := zerolog.New(os.Stderr)
		bootLogger.Fatal().Err(err).Msg("failed to load config")
	}
	logger := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stdout)

	// 2. Init telemetry
	shutdownTracer, err := telemetry.InitTracer(serviceName, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init tracer")
	}
	defer shutdownTracer()

	ctx := context.Background()

	// 3. Redis (optional): shared response cache and tenant rate limiting
	var (
		responseCache provider.ResponseCache
		limiter       *ratelimit.Limiter
	)
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()

		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warn().Err(err).Msg("redis unreachable, using in-process cache without rate limiting")
		} else {
			responseCache = cache.NewRedisStore(rdb, cfg.CacheTTL, logger)
			limiter = ratelimit.NewLimiter(rdb, cfg.DefaultRateLimitTPM)
			logger.Info().Str("addr", cfg.RedisAddr).Msg("redis connected")
		}
	}
	if responseCache == nil {
		mem, err := cache.NewMemoryStore(cfg.CacheCapacity, cfg.CacheTTL)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to create cache")
		}
		responseCache = mem
	}

	// 4. PostgreSQL (optional): usage log
	var usageStore usage.Store = usage.NewMemoryStore(0)
	if cfg.PostgresDSN != "" {
		pool, err := pgxpool.New(ctx, cfg.PostgresDSN)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect postgres")
		}
		defer pool.Close()

		if err := pool.Ping(ctx); err != nil {
			logger.Fatal().Err(err).Msg("failed to ping postgres")
		}
		pg := usage.NewPostgresStore(pool)
		if err := pg.Migrate(ctx); err != nil {
			logger.Fatal().Err(err).Msg("failed to migrate usage schema")
		}
		usageStore = pg
		logger.Info().Msg("postgres connected")
	}

	// 5. Router and providers
	reg := metrics.New()
	tracer := otel.GetTracerProvider().Tracer(serviceName)

	adapterOpts := []provider.Option{
		provider.WithCache(responseCache),
		provider.WithLogger(logger),
	}
	router := proxy.NewRouter(
		proxy.WithLogger(logger),
		proxy.WithTracer(tracer),
		proxy.WithMetrics(reg),
		proxy.WithHealthInterval(cfg.HealthCheckInterval),
		proxy.WithFactories(proxy.DefaultFactories(adapterOpts...)),
	)
	defer router.Close()

	backends := []struct {
		kind     string
		cfg      provider.Config
		priority int
		always   bool
	}{
		{"gemini", provider.Config{APIKey: cfg.GeminiAPIKey, Model: cfg.GeminiModel}, 1, true},
		{"openai", provider.Config{APIKey: cfg.OpenAIAPIKey}, 2, false},
		{"claude", provider.Config{APIKey: cfg.AnthropicAPIKey}, 3, false},
	}
	for _, b := range backends {
		if b.cfg.APIKey == "" && !b.always {
			continue
		}
		if err := router.AddProvider(b.kind, b.cfg, b.priority); err != nil {
			logger.Fatal().Err(err).Str("kind", b.kind).Msg("failed to add provider")
		}
	}

	if err := router.StartHealthChecks(); err != nil {
		logger.Fatal().Err(err).Msg("failed to start health checks")
	}

	// 6. HTTP
	handler := proxy.NewHandler(router, usageStore, limiter, tracer, logger)

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(logging.RequestLogger(logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSAllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", auth.TenantHeader, auth.UserHeader, auth.RequestIDHeader},
		ExposedHeaders: []string{auth.RequestIDHeader},
		MaxAge:         300,
	}))

	// Public routes
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok","service":"hub-assistant"}`))
	})
	r.Handle("/metrics", reg.Handler())

	// Assistant routes
	r.Group(func(r chi.Router) {
		r.Use(auth.NewMiddleware())
		handler.Routes(r)
	})

	// 7. Graceful shutdown
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info().Str("port", cfg.Port).Int("providers", router.Len()).Msg("hub assistant starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	<-quit
	logger.Info().Msg("shutting down gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("forced shutdown")
	}
	router.StopHealthChecks()
	handler.Wait()
	logger.Info().Msg("server stopped")
}
