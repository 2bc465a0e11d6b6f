package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/lalithlochan/cadence/internal/api"
	"github.com/lalithlochan/cadence/internal/campaign"
	"github.com/lalithlochan/cadence/internal/circuitbreaker"
	"github.com/lalithlochan/cadence/internal/config"
	"github.com/lalithlochan/cadence/internal/db"
	"github.com/lalithlochan/cadence/internal/metrics"
	"github.com/lalithlochan/cadence/internal/notify"
	"github.com/lalithlochan/cadence/internal/observ"
	"github.com/lalithlochan/cadence/internal/quote"
	"github.com/lalithlochan/cadence/internal/redis"
	"github.com/lalithlochan/cadence/internal/reminder"
	"github.com/lalithlochan/cadence/internal/scheduler"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Setup logger
	logger, err := observ.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("starting cadence gateway",
		zap.String("env", cfg.Env),
		zap.Int("port", cfg.Port),
	)

	// Campaign registry: stage tables are validated here, before any
	// connection is opened. A bad table is a startup failure, not a
	// runtime surprise.
	registry, err := campaign.NewRegistry(quote.Table(), reminder.Table())
	if err != nil {
		return fmt.Errorf("invalid campaign configuration: %w", err)
	}

	// Initialize database connection
	ctx := context.Background()
	dbConfig := db.Config{
		Host:     cfg.DBHost,
		Port:     cfg.DBPort,
		User:     cfg.DBUser,
		Password: cfg.DBPassword,
		Database: cfg.DBName,
		SSLMode:  cfg.DBSSLMode,
	}

	database, err := db.New(ctx, dbConfig, logger)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	logger.Info("database connection established",
		zap.String("host", cfg.DBHost),
		zap.Int("port", cfg.DBPort),
		zap.String("database", cfg.DBName),
	)

	store := db.NewSubjectStore(database, logger)

	// Initialize Redis for enrollment idempotency and rate limiting
	redisConfig := redis.Config{
		Host:     cfg.RedisHost,
		Port:     cfg.RedisPort,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}

	redisClient, err := redis.New(ctx, redisConfig, logger)
	if err != nil {
		logger.Warn("redis unavailable, idempotency and rate limiting disabled",
			zap.Error(err),
			zap.String("host", cfg.RedisHost),
		)
	}

	var idempotency *redis.Idempotency
	var rateLimiter *redis.RateLimiter
	if redisClient != nil {
		idempotency = redis.NewIdempotency(redisClient, logger, cfg.IdempotencyTTL)
		rateLimiter = redis.NewRateLimiter(redisClient, logger, redis.RateLimitConfig{
			Limit:  cfg.RateLimitRequests,
			Window: cfg.RateLimitWindow,
		})
		defer redisClient.Close()
	}

	// Delivery channels, each behind its own circuit breaker
	breakers := make(map[string]*circuitbreaker.CircuitBreaker)
	var channels []notify.ChannelNotifier

	protect := func(name string, n notify.ChannelNotifier) notify.ChannelNotifier {
		cb := circuitbreaker.New(circuitbreaker.DefaultConfig(name), logger)
		breakers[name] = cb
		return circuitbreaker.NewProtectedNotifier(n, cb, logger)
	}

	if cfg.Env == "development" {
		logger.Info("development mode: stage dispatches are logged, not delivered")
		channels = append(channels, notify.NewLogNotifier(logger))
	} else {
		sesNotifier, err := notify.NewSESNotifier(ctx, notify.SESConfig{
			Region:    cfg.AWSRegion,
			FromEmail: cfg.SESFromEmail,
		}, logger)
		if err != nil {
			return fmt.Errorf("failed to create SES email notifier: %w", err)
		}
		channels = append(channels, protect("ses", sesNotifier))

		snsNotifier, err := notify.NewSNSNotifier(ctx, notify.SNSConfig{
			Region: cfg.SNSRegion,
		}, logger)
		if err != nil {
			logger.Warn("SNS notifier unavailable, SMS stages will fail until it recovers",
				zap.Error(err),
			)
		} else {
			channels = append(channels, protect("sns", snsNotifier))
		}

		if cfg.SQSQueueURL != "" {
			queueNotifier, err := notify.NewQueueNotifier(ctx, notify.QueueConfig{
				Region:   cfg.SQSRegion,
				QueueURL: cfg.SQSQueueURL,
			}, logger)
			if err != nil {
				logger.Warn("SQS notifier unavailable, queue hand-off disabled", zap.Error(err))
			} else {
				channels = append(channels, protect("sqs", queueNotifier))
			}
		}

		if cfg.WebhookURL != "" {
			webhookNotifier := notify.NewWebhookNotifier(logger, notify.WebhookConfig{
				URL:     cfg.WebhookURL,
				Timeout: time.Duration(cfg.WebhookTimeout) * time.Second,
			})
			channels = append(channels, protect("webhook", webhookNotifier))
		}
	}

	notifier := notify.NewMultiNotifier(logger, channels...)

	builders := map[string]campaign.PayloadBuilder{
		quote.CampaignType: quote.Builder{
			BookingBaseURL: cfg.BookingBaseURL,
			BusinessName:   cfg.BusinessName,
			BusinessPhone:  cfg.BusinessPhone,
		},
		reminder.CampaignType: reminder.Builder{
			BusinessName:  cfg.BusinessName,
			BusinessPhone: cfg.BusinessPhone,
		},
	}

	driver, err := scheduler.New(registry, store, notifier, builders, scheduler.Config{
		DefaultInterval: cfg.TickInterval,
		Concurrency:     cfg.TickConcurrency,
	}, logger, nil)
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}

	schedCtx, schedCancel := context.WithCancel(context.Background())
	defer schedCancel()

	go driver.Start(schedCtx)

	logger.Info("campaign scheduler started",
		zap.Strings("campaigns", registry.Types()),
		zap.Duration("default_interval", cfg.TickInterval),
	)

	// Setup router
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(metrics.Middleware)

	// Custom logging middleware
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			logger.Info("request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("duration_ms", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	})

	// API routes
	handler := api.NewHandler(logger, registry, store, driver, idempotency, breakers)
	r.Route("/v1", func(r chi.Router) {
		// Rate limit the public surface by client IP
		r.Use(api.RateLimitMiddleware(rateLimiter, logger, api.IPKeyFunc))

		r.Post("/campaigns/{type}/subjects", handler.EnrollSubject)
		r.Get("/campaigns/{type}/subjects", handler.ListSubjects)
		r.Post("/campaigns/{type}/run", handler.RunCampaign)

		r.Get("/subjects/{id}", handler.GetSubject)
		r.Post("/subjects/{id}/skip", handler.SkipSubject)

		r.Get("/breakers", handler.CircuitBreakerStats)
	})

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := database.Health(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("database unavailable"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	// Prometheus metrics endpoint
	r.Handle("/metrics", metrics.Handler())

	// Setup HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("server listening", zap.String("addr", srv.Addr))
		serverErrors <- srv.ListenAndServe()
	}()

	// Listen for shutdown signals
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	// Block until we receive a signal or server error
	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case sig := <-shutdown:
		logger.Info("shutdown signal received", zap.String("signal", sig.String()))

		// Stop scheduling new ticks before draining HTTP
		schedCancel()

		// Give outstanding requests 10 seconds to complete
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			srv.Close()
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}

		logger.Info("server stopped gracefully")
	}

	return nil
}
