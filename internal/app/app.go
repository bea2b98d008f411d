// Package app wires the service together and manages its lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"

	"github.com/CytrexSGR/newsbrief/internal/api"
	"github.com/CytrexSGR/newsbrief/internal/config"
	"github.com/CytrexSGR/newsbrief/internal/corpus"
	"github.com/CytrexSGR/newsbrief/internal/database"
	"github.com/CytrexSGR/newsbrief/internal/dispatch"
	"github.com/CytrexSGR/newsbrief/internal/domain"
	"github.com/CytrexSGR/newsbrief/internal/generate"
	"github.com/CytrexSGR/newsbrief/internal/logger"
	"github.com/CytrexSGR/newsbrief/internal/metrics"
	"github.com/CytrexSGR/newsbrief/internal/redis"
	"github.com/CytrexSGR/newsbrief/internal/retry"
	"github.com/CytrexSGR/newsbrief/internal/scheduler"
	"github.com/CytrexSGR/newsbrief/internal/selection"
)

// App holds the service with all its dependencies wired.
type App struct {
	cfg    *config.Config
	logger logger.Logger

	db          *sqlx.DB
	redisClient *goredis.Client
	registry    *prometheus.Registry
	metrics     *metrics.Metrics

	templates  *database.TemplateRepository
	channels   *database.ChannelRepository
	content    *database.ContentRepository
	jobs       *database.JobRepository
	deliveries *database.DeliveryRepository

	evaluator *selection.Evaluator
	engine    *dispatch.Engine
	tracker   *dispatch.Tracker

	scheduler      *scheduler.Scheduler
	genWorker      *generate.Worker
	dispatchWorker *dispatch.Worker

	server *api.Server
}

// Options contains configuration for creating a new App
type Options struct {
	ConfigPath string
	Version    string
}

// New loads configuration and initializes every component.
func New(opts Options) (*App, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	appLogger, err := logger.NewLogger(cfg.Debug)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}
	appLogger = appLogger.With(
		logger.String("service", "newsbrief"),
		logger.String("version", opts.Version),
	)

	// Dependencies may come up after us; retry the initial connections.
	startupRetry := retry.Config{
		MaxAttempts:  5,
		InitialDelay: time.Second,
		MaxDelay:     10 * time.Second,
		Multiplier:   2.0,
		IsRetryable:  func(error) bool { return true },
	}

	var db *sqlx.DB
	err = retry.Do(context.Background(), startupRetry, func() error {
		var connErr error
		db, connErr = database.NewPostgresConnection(cfg.Database.DSN(), database.Pool{
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		})
		return connErr
	})
	if err != nil {
		_ = appLogger.Sync()
		return nil, fmt.Errorf("connect to PostgreSQL: %w", err)
	}

	var redisClient *goredis.Client
	err = retry.Do(context.Background(), startupRetry, func() error {
		var connErr error
		redisClient, connErr = redis.NewClient(cfg.Redis.Address, cfg.Redis.Password, appLogger)
		return connErr
	})
	if err != nil {
		if closeErr := database.Close(db); closeErr != nil {
			appLogger.Warn("failed to close database", logger.Error(closeErr))
		}
		_ = appLogger.Sync()
		return nil, fmt.Errorf("connect to Redis: %w", err)
	}

	registry := prometheus.NewRegistry()
	m := metrics.NewMetrics(registry)

	a := &App{
		cfg:         cfg,
		logger:      appLogger,
		db:          db,
		redisClient: redisClient,
		registry:    registry,
		metrics:     m,
		templates:   database.NewTemplateRepository(db),
		channels:    database.NewChannelRepository(db),
		content:     database.NewContentRepository(db),
		jobs:        database.NewJobRepository(db),
		deliveries:  database.NewDeliveryRepository(db),
	}

	a.evaluator = selection.NewEvaluator(corpus.NewPostgresReader(db))
	a.engine = dispatch.NewEngine(a.content, a.channels, a.deliveries,
		cfg.Delivery.MaxRetries, m, appLogger)
	a.tracker = dispatch.NewTracker(a.deliveries, m)

	a.scheduler, err = scheduler.New(a.templates, a.jobs, m, scheduler.Config{
		Enabled:             cfg.Scheduler.Enabled,
		ReloadInterval:      cfg.Scheduler.ReloadInterval,
		Timezone:            cfg.Scheduler.Timezone,
		MaxRetries:          cfg.Generation.MaxRetries,
		RecentContentWindow: cfg.Generation.RecentContentWindow,
	}, appLogger)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("create scheduler: %w", err)
	}

	a.genWorker = generate.NewWorker(a.jobs, a.content, a.templates, a.evaluator,
		generate.NewComposer(), m, generate.WorkerConfig{
			WorkerID:        workerID(),
			PollInterval:    cfg.Generation.PollInterval,
			BatchSize:       cfg.Generation.BatchSize,
			JobTimeout:      cfg.Generation.JobTimeout,
			MaxCostPerJob:   cfg.Generation.MaxCostPerJob,
			StaleRunningAge: cfg.Generation.StaleRunningAge,
		}, appLogger)

	transports := dispatch.NewRegistry()
	transports.Register(domain.ChannelTypeWeb, dispatch.NewWebTransport(redisClient, appLogger))
	transports.Register(domain.ChannelTypeAPI,
		dispatch.NewWebhookTransport(cfg.Delivery.WebhookTimeout, appLogger))
	a.dispatchWorker = dispatch.NewWorker(a.deliveries, a.channels, a.content,
		transports, m, dispatch.WorkerConfig{
			PollInterval:    cfg.Delivery.PollInterval,
			BatchSize:       cfg.Delivery.BatchSize,
			DeliveryTimeout: cfg.Delivery.DeliveryTimeout,
			RetentionAge:    cfg.Delivery.RetentionAge,
		}, appLogger)

	router := api.NewRouter(api.Deps{
		DB:         db,
		Redis:      redisClient,
		Templates:  a.templates,
		Channels:   a.channels,
		Content:    a.content,
		Jobs:       a.jobs,
		Deliveries: a.deliveries,
		Evaluator:  a.evaluator,
		Engine:     a.engine,
		Tracker:    a.tracker,
		Schedules:  a.scheduler,
		Metrics:    m,
		Registry:   registry,
		Config:     cfg,
		Logger:     appLogger,
	})
	a.server = api.NewServer(router, cfg.Server, appLogger)

	return a, nil
}

// RunAPI serves HTTP until a signal arrives or the listener fails.
func (a *App) RunAPI(ctx context.Context) error {
	serverErr := make(chan error, 1)
	go func() {
		serverErr <- a.server.Start()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		a.logger.Info("shutting down gracefully", logger.String("signal", sig.String()))
	case <-ctx.Done():
		a.logger.Info("shutting down, context cancelled")
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}

	if err := a.server.Shutdown(context.Background()); err != nil {
		return err
	}
	return <-serverErr
}

// RunWorker runs the generation worker, the delivery worker and, when
// enabled, the scheduler, until a signal arrives.
func (a *App) RunWorker(ctx context.Context) error {
	workerCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	a.genWorker.Start(workerCtx)
	a.dispatchWorker.Start(workerCtx)
	if a.scheduler.Enabled() {
		a.scheduler.Start(workerCtx)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		a.logger.Info("shutting down gracefully", logger.String("signal", sig.String()))
	case <-ctx.Done():
		a.logger.Info("shutting down, context cancelled")
	}

	if a.scheduler.Enabled() {
		a.scheduler.Stop()
	}
	a.dispatchWorker.Stop()
	a.genWorker.Stop()
	return nil
}

// Close releases connections and flushes the logger.
func (a *App) Close() error {
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.logger.Warn("failed to close Redis client", logger.Error(err))
		}
	}
	if a.db != nil {
		if err := database.Close(a.db); err != nil {
			a.logger.Warn("failed to close database", logger.Error(err))
		}
	}
	return a.logger.Sync()
}

// Logger returns the application logger
func (a *App) Logger() logger.Logger {
	return a.logger
}

// workerID identifies this process in job claims.
func workerID() string {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	return host + "-" + strconv.Itoa(os.Getpid())
}
