package dispatch

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/CytrexSGR/newsbrief/internal/database"
	"github.com/CytrexSGR/newsbrief/internal/domain"
	"github.com/CytrexSGR/newsbrief/internal/logger"
	"github.com/CytrexSGR/newsbrief/internal/metrics"
)

const (
	defaultPollInterval    = 5 * time.Second
	defaultBatchSize       = 25
	defaultDeliveryTimeout = 30 * time.Second
	defaultRetentionAge    = 7 * 24 * time.Hour

	cleanupInterval = time.Hour
)

// WorkerConfig holds configuration options
type WorkerConfig struct {
	PollInterval    time.Duration
	BatchSize       int
	DeliveryTimeout time.Duration
	RetentionAge    time.Duration
}

// Worker polls due deliveries and attempts them through the transport
// registry. Channel types without a registered transport (email, rss) are
// consumed by external systems and left untouched.
type Worker struct {
	deliveries *database.DeliveryRepository
	channels   *database.ChannelRepository
	content    *database.ContentRepository
	registry   *Registry
	metrics    *metrics.Metrics
	logger     logger.Logger

	cfg WorkerConfig

	stopChan chan struct{}
	wg       sync.WaitGroup
	started  bool
	mu       sync.Mutex
}

// NewWorker creates a new delivery worker
func NewWorker(
	deliveries *database.DeliveryRepository,
	channels *database.ChannelRepository,
	content *database.ContentRepository,
	registry *Registry,
	m *metrics.Metrics,
	cfg WorkerConfig,
	log logger.Logger,
) *Worker {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.DeliveryTimeout <= 0 {
		cfg.DeliveryTimeout = defaultDeliveryTimeout
	}
	if cfg.RetentionAge <= 0 {
		cfg.RetentionAge = defaultRetentionAge
	}

	return &Worker{
		deliveries: deliveries,
		channels:   channels,
		content:    content,
		registry:   registry,
		metrics:    m,
		logger:     log,
		cfg:        cfg,
		stopChan:   make(chan struct{}),
	}
}

// Start begins the delivery polling loop
func (w *Worker) Start(ctx context.Context) {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return
	}
	w.started = true
	w.mu.Unlock()

	w.wg.Add(1)
	go w.run(ctx)

	w.wg.Add(1)
	go w.runCleanup(ctx)

	w.logger.Info("delivery worker started",
		logger.Duration("poll_interval", w.cfg.PollInterval),
		logger.Int("batch_size", w.cfg.BatchSize))
}

// Stop gracefully stops the worker
func (w *Worker) Stop() {
	w.mu.Lock()
	if !w.started {
		w.mu.Unlock()
		return
	}
	w.mu.Unlock()

	close(w.stopChan)
	w.wg.Wait()
	w.logger.Info("delivery worker stopped")
}

func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	// Process immediately on start
	w.processOnce(ctx)

	for {
		select {
		case <-ticker.C:
			w.processOnce(ctx)
		case <-w.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

// runCleanup periodically prunes terminal delivery logs past the retention
// age so the table does not grow without bound.
func (w *Worker) runCleanup(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.cleanupOnce(ctx)
		case <-w.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (w *Worker) cleanupOnce(ctx context.Context) {
	removed, err := w.deliveries.CleanupTerminal(ctx, w.cfg.RetentionAge)
	if err != nil {
		w.logger.Error("delivery log cleanup failed", logger.Error(err))
		return
	}
	if removed > 0 {
		w.logger.Info("pruned terminal delivery logs", logger.Int64("removed", removed))
	}
}

func (w *Worker) processOnce(ctx context.Context) {
	due, err := w.deliveries.FetchDue(ctx, w.cfg.BatchSize)
	if err != nil {
		w.logger.Error("failed to fetch due deliveries", logger.Error(err))
		return
	}
	for i := range due {
		w.processDelivery(ctx, &due[i])
	}
}

// processDelivery attempts one delivery. MarkSent and MarkFailed are
// conditional on the current status, so a racing worker loses cleanly.
func (w *Worker) processDelivery(ctx context.Context, deliveryLog *domain.DeliveryLog) {
	log := w.logger.With(
		logger.String("delivery_id", deliveryLog.ID.String()),
		logger.String("content_id", deliveryLog.ContentID.String()),
		logger.Int("retry_count", deliveryLog.RetryCount))

	channel, err := w.channels.GetByID(ctx, deliveryLog.ChannelID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			w.markFailed(ctx, deliveryLog, "", "channel no longer exists", false, log)
			return
		}
		log.Error("failed to load channel for delivery", logger.Error(err))
		return
	}
	if !channel.IsActive {
		w.markFailed(ctx, deliveryLog, string(channel.Type), "channel was deactivated", false, log)
		return
	}

	transport, ok := w.registry.Lookup(channel.Type)
	if !ok {
		// Not ours to deliver; an external consumer owns this type.
		log.Debug("skipping delivery for externally handled channel type",
			logger.String("channel_type", string(channel.Type)))
		return
	}

	content, err := w.content.GetByID(ctx, deliveryLog.ContentID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			w.markFailed(ctx, deliveryLog, string(channel.Type), "content no longer exists", false, log)
			return
		}
		log.Error("failed to load content for delivery", logger.Error(err))
		return
	}

	w.metrics.DeliveriesInFlight.Inc()
	defer w.metrics.DeliveriesInFlight.Dec()

	attemptCtx, cancel := context.WithTimeout(ctx, w.cfg.DeliveryTimeout)
	defer cancel()

	start := time.Now()
	result, err := transport.Deliver(attemptCtx, Delivery{
		Log:     deliveryLog,
		Channel: channel,
		Content: content,
	})
	w.metrics.DeliveryDurationSecs.WithLabelValues(string(channel.Type)).
		Observe(time.Since(start).Seconds())

	if err != nil {
		transient := errors.Is(err, domain.ErrDependencyUnavailable) ||
			errors.Is(err, context.DeadlineExceeded)
		w.markFailed(ctx, deliveryLog, string(channel.Type), err.Error(), transient, log)
		return
	}

	if err := w.deliveries.MarkSent(ctx, deliveryLog.ID, result.RecipientCount); err != nil {
		log.Error("failed to mark delivery sent", logger.Error(err))
		return
	}
	w.metrics.DeliveriesTotal.WithLabelValues(string(channel.Type), "sent").Inc()
	log.Info("delivery sent", logger.String("channel_type", string(channel.Type)))
}

func (w *Worker) markFailed(ctx context.Context, deliveryLog *domain.DeliveryLog,
	channelType, message string, transient bool, log logger.Logger) {

	if err := w.deliveries.MarkFailed(ctx, deliveryLog.ID, message, transient); err != nil {
		log.Error("failed to mark delivery failed", logger.Error(err))
		return
	}

	outcome := "failed"
	if transient && deliveryLog.RetryCount+1 < deliveryLog.MaxRetries {
		outcome = "retry"
	}
	if channelType == "" {
		channelType = "unknown"
	}
	w.metrics.DeliveriesTotal.WithLabelValues(channelType, outcome).Inc()
	log.Warn("delivery attempt failed",
		logger.String("outcome", outcome),
		logger.String("error", message))
}
