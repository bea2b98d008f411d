package generate

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/CytrexSGR/newsbrief/internal/corpus"
	"github.com/CytrexSGR/newsbrief/internal/database"
	"github.com/CytrexSGR/newsbrief/internal/domain"
	"github.com/CytrexSGR/newsbrief/internal/estimate"
	"github.com/CytrexSGR/newsbrief/internal/logger"
	"github.com/CytrexSGR/newsbrief/internal/metrics"
	"github.com/CytrexSGR/newsbrief/internal/selection"
)

const (
	defaultPollInterval    = 5 * time.Second
	defaultBatchSize       = 5
	defaultJobTimeout      = 300 * time.Second
	defaultStaleRunningAge = 10 * time.Minute
	recoveryInterval       = time.Minute

	cancelledMessage = "cancelled by operator"
)

// WorkerConfig holds configuration options
type WorkerConfig struct {
	WorkerID        string
	PollInterval    time.Duration
	BatchSize       int
	JobTimeout      time.Duration
	MaxCostPerJob   float64
	StaleRunningAge time.Duration
}

// Worker polls the generation job queue and turns claimed jobs into content.
// Cancellation is cooperative: the cancel flag is checked after the claim,
// after selection and before persisting content.
type Worker struct {
	jobs      *database.JobRepository
	content   *database.ContentRepository
	templates *database.TemplateRepository
	evaluator *selection.Evaluator
	generator Generator
	metrics   *metrics.Metrics
	logger    logger.Logger

	cfg WorkerConfig

	stopChan chan struct{}
	wg       sync.WaitGroup
	started  bool
	mu       sync.Mutex
}

// NewWorker creates a new generation worker
func NewWorker(
	jobs *database.JobRepository,
	content *database.ContentRepository,
	templates *database.TemplateRepository,
	evaluator *selection.Evaluator,
	generator Generator,
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
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = defaultJobTimeout
	}
	if cfg.StaleRunningAge <= 0 {
		cfg.StaleRunningAge = defaultStaleRunningAge
	}

	return &Worker{
		jobs:      jobs,
		content:   content,
		templates: templates,
		evaluator: evaluator,
		generator: generator,
		metrics:   m,
		logger:    log,
		cfg:       cfg,
		stopChan:  make(chan struct{}),
	}
}

// Start begins the queue polling loop
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
	go w.runRecovery(ctx)

	w.logger.Info("generation worker started",
		logger.String("worker_id", w.cfg.WorkerID),
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
	w.logger.Info("generation worker stopped")
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

func (w *Worker) processOnce(ctx context.Context) {
	jobs, err := w.jobs.ClaimNext(ctx, w.cfg.WorkerID, w.cfg.BatchSize)
	if err != nil {
		w.logger.Error("failed to claim generation jobs", logger.Error(err))
		return
	}
	for i := range jobs {
		w.processJob(ctx, &jobs[i])
	}
}

// processJob runs one claimed job end to end. Every exit path records a
// terminal outcome or returns the job to pending via the retry budget.
func (w *Worker) processJob(ctx context.Context, job *domain.GenerationJob) {
	log := w.logger.With(
		logger.String("job_id", job.ID.String()),
		logger.String("template_id", job.TemplateID.String()),
		logger.Int("retry_count", job.RetryCount))

	// Corrupted queue state: the partial unique index should make this
	// impossible. Abandon the job rather than make it worse.
	if running, err := w.jobs.RunningCount(ctx, job.TemplateID); err == nil && running > 1 {
		stateErr := fmt.Errorf("%w: %d running jobs for template %s",
			domain.ErrFatalState, running, job.TemplateID)
		log.Error("FATAL: multiple running jobs for one template, abandoning claim",
			logger.Error(stateErr))
		return
	}

	if w.checkpointCancelled(ctx, job, log) {
		return
	}

	jobCtx, cancel := context.WithTimeout(ctx, w.cfg.JobTimeout)
	defer cancel()

	tmpl, err := w.templates.GetByID(jobCtx, job.TemplateID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			w.failPermanently(ctx, job, "template no longer exists", log)
			return
		}
		w.failAttempt(ctx, job, fmt.Sprintf("load template: %v", err), log)
		return
	}

	articles, err := w.evaluator.Evaluate(jobCtx, &tmpl.Criteria)
	if err != nil {
		w.failFromError(ctx, job, fmt.Errorf("evaluate selection: %w", err), log)
		return
	}
	if len(articles) == 0 {
		w.failPermanently(ctx, job, "no articles matched selection criteria", log)
		return
	}
	w.metrics.ArticlesSelected.Observe(float64(len(articles)))

	if w.checkpointCancelled(ctx, job, log) {
		return
	}

	if msg, ok := w.overCostLimit(tmpl, len(articles)); ok {
		w.failPermanently(ctx, job, msg, log)
		return
	}

	started := time.Now()
	result, err := w.generator.Generate(jobCtx, Request{Template: tmpl, Articles: articles})
	if err != nil {
		w.failFromError(ctx, job, fmt.Errorf("generate content: %w", err), log)
		return
	}
	elapsed := time.Since(started)

	if w.checkpointCancelled(ctx, job, log) {
		return
	}

	content := &domain.GeneratedContent{
		TemplateID:        job.TemplateID,
		Title:             result.Title,
		Body:              result.Body,
		OutputFormat:      outputFormat(tmpl),
		SourceArticleIDs:  articleIDs(articles),
		ArticleCount:      len(articles),
		WordCount:         result.WordCount,
		CostUSD:           result.CostUSD,
		GenerationSeconds: elapsed.Seconds(),
		ModelUsed:         result.ModelUsed,
		Status:            domain.ContentStatusGenerated,
	}

	stored, err := w.content.Create(ctx, content)
	if err != nil {
		w.failAttempt(ctx, job, fmt.Sprintf("persist content: %v", err), log)
		return
	}

	if err := w.jobs.Complete(ctx, job.ID, stored.ID); err != nil {
		log.Error("failed to complete job after persisting content", logger.Error(err))
		return
	}

	w.metrics.JobsCompletedTotal.WithLabelValues("completed").Inc()
	w.metrics.GenerationDurationSeconds.Observe(elapsed.Seconds())
	w.metrics.GenerationCostUSD.Observe(result.CostUSD)
	log.Info("generation job completed",
		logger.String("content_id", stored.ID.String()),
		logger.Int("articles", len(articles)),
		logger.Float64("cost_usd", result.CostUSD),
		logger.Duration("elapsed", elapsed))
}

// checkpointCancelled finalizes the job as cancelled when the flag is set.
func (w *Worker) checkpointCancelled(ctx context.Context, job *domain.GenerationJob, log logger.Logger) bool {
	requested, err := w.jobs.IsCancelRequested(ctx, job.ID)
	if err != nil {
		log.Warn("failed to check cancel flag", logger.Error(err))
		return false
	}
	if !requested {
		return false
	}

	if err := w.jobs.FailPermanently(ctx, job.ID, cancelledMessage); err != nil {
		log.Error("failed to finalize cancelled job", logger.Error(err))
		return true
	}
	w.metrics.JobsCompletedTotal.WithLabelValues("cancelled").Inc()
	log.Info("generation job cancelled")
	return true
}

func (w *Worker) overCostLimit(tmpl *domain.Template, articleCount int) (string, bool) {
	if w.cfg.MaxCostPerJob <= 0 {
		return "", false
	}
	if est := estimate.Cost(tmpl, articleCount).CostUSD; est > w.cfg.MaxCostPerJob {
		return fmt.Sprintf("estimated cost %.6f USD exceeds limit %.2f USD",
			est, w.cfg.MaxCostPerJob), true
	}
	return "", false
}

// failFromError routes an error to the retry path when it is transient and
// to a terminal failure otherwise.
func (w *Worker) failFromError(ctx context.Context, job *domain.GenerationJob, err error, log logger.Logger) {
	switch {
	case errors.Is(err, domain.ErrDependencyUnavailable),
		errors.Is(err, context.DeadlineExceeded):
		w.failAttempt(ctx, job, err.Error(), log)
	default:
		w.failPermanently(ctx, job, err.Error(), log)
	}
}

// failAttempt burns one retry; the job returns to pending while budget lasts.
func (w *Worker) failAttempt(ctx context.Context, job *domain.GenerationJob, msg string, log logger.Logger) {
	if err := w.jobs.Fail(ctx, job.ID, msg); err != nil {
		log.Error("failed to record job failure", logger.Error(err))
		return
	}
	outcome := "retried"
	if !willRetry(job) {
		outcome = "failed"
	}
	w.metrics.JobsCompletedTotal.WithLabelValues(outcome).Inc()
	log.Warn("generation attempt failed",
		logger.String("outcome", outcome),
		logger.String("reason", msg))
}

func (w *Worker) failPermanently(ctx context.Context, job *domain.GenerationJob, msg string, log logger.Logger) {
	if err := w.jobs.FailPermanently(ctx, job.ID, msg); err != nil {
		log.Error("failed to record job failure", logger.Error(err))
		return
	}
	w.metrics.JobsCompletedTotal.WithLabelValues("failed").Inc()
	log.Warn("generation job failed", logger.String("reason", msg))
}

// runRecovery resets stale running jobs back to pending. This handles jobs
// that were claimed but the worker crashed before completing.
func (w *Worker) runRecovery(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(recoveryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			reset, err := w.jobs.ResetStaleRunning(ctx, w.cfg.StaleRunningAge)
			if err != nil {
				w.logger.Error("stale job recovery failed", logger.Error(err))
			} else if reset > 0 {
				w.metrics.StaleJobsRecoveredTotal.Add(float64(reset))
				w.logger.Warn("recovered stale generation jobs", logger.Int64("reset", reset))
			}
		case <-w.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

// willRetry mirrors the repository's retry decision for metrics: the claimed
// snapshot carries the pre-increment retry count.
func willRetry(job *domain.GenerationJob) bool {
	return job.RetryCount+1 < job.MaxRetries
}

func outputFormat(tmpl *domain.Template) domain.OutputFormat {
	if tmpl.Structure.OutputFormat != "" {
		return tmpl.Structure.OutputFormat
	}
	return domain.OutputFormatMarkdown
}

func articleIDs(articles []corpus.Article) []int64 {
	ids := make([]int64, len(articles))
	for i, a := range articles {
		ids[i] = a.ID
	}
	return ids
}
