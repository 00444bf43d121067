// Package main is the entrypoint for the Daiyet dispatch worker.
//
// The worker drains two durable Postgres queues on demand: delayed scheduled
// jobs (meeting reminders, post-session feedback prompts) and the outbound
// email queue. Each trigger runs exactly one dispatch cycle; an external
// scheduler owns the cadence.
//
// In local mode (APP_ENV=local) the worker runs as a standard HTTP server
// exposing POST /run and GET /health. In Lambda mode it registers a handler
// that runs one cycle per scheduled EventBridge invocation.
//
// Graceful shutdown in HTTP mode is handled via OS signal interception
// (SIGINT, SIGTERM).
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/michaelasereoo/daiyet-app-sub003/internal/config"
	"github.com/michaelasereoo/daiyet-app-sub003/internal/core"
	"github.com/michaelasereoo/daiyet-app-sub003/internal/db"
	"github.com/michaelasereoo/daiyet-app-sub003/internal/external"
	"github.com/michaelasereoo/daiyet-app-sub003/internal/metrics"
	"github.com/michaelasereoo/daiyet-app-sub003/internal/notifications"
	"github.com/michaelasereoo/daiyet-app-sub003/internal/scheduler"
	"github.com/michaelasereoo/daiyet-app-sub003/internal/types"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// run encapsulates the startup lifecycle so that main() can cleanly exit on
// error.
func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("dispatch worker starting",
		"environment", cfg.Environment,
		"port", cfg.Server.Port,
		"email_batch_size", cfg.Dispatch.EmailBatchSize,
		"job_batch_size", cfg.Dispatch.JobBatchSize,
	)

	ctx := context.Background()

	pool, err := newPool(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("creating database pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("pinging database: %w", err)
	}

	jobRepo := db.NewJobRepository(pool)
	emailRepo := db.NewEmailQueueRepository(pool)
	bookingRepo := db.NewBookingRepository(pool)

	gateway := notifications.NewGateway(notifications.GatewayConfig{
		Provider: newEmailProvider(cfg, logger),
		From: types.SenderIdentity{
			Address: cfg.Email.FromAddress,
			Name:    cfg.Email.FromName,
		},
		Logger: logger,
	})

	registry := scheduler.NewRegistry(
		scheduler.NewMeetingReminderHandler(bookingRepo, gateway, logger),
		scheduler.NewPostSessionFeedbackHandler(bookingRepo, gateway, cfg.Server.SiteBaseURL, logger),
		scheduler.NewTestHandler(),
	)

	dispatcher := scheduler.NewDispatcher(scheduler.DispatcherConfig{
		Jobs:           jobRepo,
		Emails:         emailRepo,
		Registry:       registry,
		Sender:         gateway,
		Logger:         logger,
		EmailBatchSize: cfg.Dispatch.EmailBatchSize,
		JobBatchSize:   cfg.Dispatch.JobBatchSize,
		Concurrency:    cfg.Dispatch.Concurrency,
	})

	srv, err := core.NewServer(cfg, dispatcher, logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	srv.HealthProbes = []core.HealthProbe{newDatabaseProbe(pool)}

	cycleMetrics, err := newCycleMetrics(ctx, cfg.Metrics, logger)
	if err != nil {
		return fmt.Errorf("creating metrics publisher: %w", err)
	}
	if cycleMetrics != nil {
		srv.Metrics = cycleMetrics
	}

	srv.MountRoutes()

	if cfg.Environment == "local" && !isLambdaEnvironment() {
		defer pool.Close()
		return runHTTPServer(srv, cfg, logger)
	}

	return runLambda(dispatcher, cycleMetrics, logger)
}

// newPool builds a pgx connection pool with the configured tuning applied.
func newPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL.Unmask())
	if err != nil {
		return nil, fmt.Errorf("parsing database url: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.MaxConns)
	poolCfg.MinConns = int32(cfg.MinConns)
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	poolCfg.ConnConfig.ConnectTimeout = cfg.AcquireTimeout

	return pgxpool.NewWithConfig(ctx, poolCfg)
}

// newEmailProvider selects the email provider from configuration. A
// configured SendGrid key always wins; local mode falls back to the logging
// stub; otherwise nil, which makes the gateway report a configuration error
// on every send instead of failing startup.
func newEmailProvider(cfg *config.Config, logger *slog.Logger) external.EmailProvider {
	if cfg.Email.SendGridAPIKey.IsSet() {
		httpClient := &http.Client{Timeout: 30 * time.Second}
		return external.NewSendGridClient(httpClient, external.SendGridClientConfig{
			APIKey: cfg.Email.SendGridAPIKey.Unmask(),
			Logger: logger,
		})
	}
	if cfg.Environment == "local" {
		return external.NewStubEmailProvider(logger)
	}
	logger.Warn("SENDGRID_API_KEY is not set; email sends will fail until a credential is configured")
	return nil
}

// newCycleMetrics builds the CloudWatch publisher when metrics are enabled.
func newCycleMetrics(ctx context.Context, cfg config.MetricsConfig, logger *slog.Logger) (*metrics.CloudWatchCycleMetrics, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("loading AWS SDK config: %w", err)
	}
	client := cloudwatch.NewFromConfig(awsCfg)
	return metrics.NewCloudWatchCycleMetrics(client, cfg.Namespace, logger), nil
}

// isLambdaEnvironment returns true if the process is running inside AWS
// Lambda. The runtime sets AWS_LAMBDA_RUNTIME_API when executing there.
func isLambdaEnvironment() bool {
	_, hasRuntimeAPI := os.LookupEnv("AWS_LAMBDA_RUNTIME_API")
	_, hasServerPort := os.LookupEnv("_LAMBDA_SERVER_PORT")
	return hasRuntimeAPI || hasServerPort
}

// runLambda registers a scheduled-event handler that runs one dispatch cycle
// per invocation, bypassing the HTTP surface entirely.
func runLambda(dispatcher *scheduler.Dispatcher, cycleMetrics *metrics.CloudWatchCycleMetrics, logger *slog.Logger) error {
	handler := func(ctx context.Context) (*types.CycleReport, error) {
		start := time.Now()
		report, err := dispatcher.RunCycle(ctx)
		if err != nil {
			logger.ErrorContext(ctx, "dispatch cycle failed to start", "error", err)
			return nil, err
		}
		if cycleMetrics != nil {
			cycleMetrics.RecordCycle(ctx, report, time.Since(start))
		}
		return report, nil
	}

	logger.Info("dispatch worker initialized in Lambda mode")
	lambda.Start(handler)
	return nil
}

// runHTTPServer starts the server in standard HTTP mode with graceful
// shutdown.
func runHTTPServer(srv *core.Server, cfg *config.Config, logger *slog.Logger) error {
	addr := ":" + cfg.Server.Port

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	logger.Info("initiating graceful shutdown")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}

	logger.Info("server stopped cleanly")
	return nil
}

// newLogger creates a structured JSON logger for the given level string.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

// databaseProbe reports pool health for the /health endpoint.
type databaseProbe struct {
	pool *pgxpool.Pool
}

func newDatabaseProbe(pool *pgxpool.Pool) *databaseProbe {
	return &databaseProbe{pool: pool}
}

func (p *databaseProbe) Name() string { return "database" }

func (p *databaseProbe) Check(ctx context.Context) error {
	return p.pool.Ping(ctx)
}
