// Package scheduler turns template cron expressions into generation job
// triggers. Schedules live on the templates themselves; the scheduler
// periodically reconciles its cron entries against the database so edits
// take effect without a restart.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/CytrexSGR/newsbrief/internal/database"
	"github.com/CytrexSGR/newsbrief/internal/domain"
	"github.com/CytrexSGR/newsbrief/internal/logger"
	"github.com/CytrexSGR/newsbrief/internal/metrics"
)

const (
	defaultReloadInterval = time.Minute
	triggerTimeout        = 10 * time.Second
)

// Config holds configuration options
type Config struct {
	Enabled             bool
	ReloadInterval      time.Duration
	Timezone            string
	MaxRetries          int
	RecentContentWindow time.Duration
}

type entry struct {
	spec    string
	entryID cron.EntryID
}

// Scheduler reconciles cron entries from scheduled templates and enqueues
// a generation job on each firing. Duplicate suppression happens in the
// queue, not here: a firing that races a manual trigger is skipped there.
type Scheduler struct {
	templates *database.TemplateRepository
	jobs      *database.JobRepository
	metrics   *metrics.Metrics
	logger    logger.Logger

	cfg    Config
	parser cron.Parser
	cron   *cron.Cron

	entries map[uuid.UUID]entry

	stopChan chan struct{}
	wg       sync.WaitGroup
	started  bool
	mu       sync.Mutex
}

// New creates a scheduler over the template and job repositories.
func New(
	templates *database.TemplateRepository,
	jobs *database.JobRepository,
	m *metrics.Metrics,
	cfg Config,
	log logger.Logger,
) (*Scheduler, error) {
	if cfg.ReloadInterval <= 0 {
		cfg.ReloadInterval = defaultReloadInterval
	}

	loc := time.UTC
	if cfg.Timezone != "" {
		var err error
		loc, err = time.LoadLocation(cfg.Timezone)
		if err != nil {
			return nil, fmt.Errorf("invalid scheduler timezone %q: %w", cfg.Timezone, err)
		}
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	return &Scheduler{
		templates: templates,
		jobs:      jobs,
		metrics:   m,
		logger:    log,
		cfg:       cfg,
		parser:    parser,
		cron:      cron.New(cron.WithParser(parser), cron.WithLocation(loc)),
		entries:   make(map[uuid.UUID]entry),
		stopChan:  make(chan struct{}),
	}, nil
}

// Enabled reports whether scheduled triggering is turned on.
func (s *Scheduler) Enabled() bool { return s.cfg.Enabled }

// ValidateSpec reports whether a cron expression is accepted by the
// scheduler's parser. Used at the API boundary before a schedule is stored.
func (s *Scheduler) ValidateSpec(spec string) error {
	if _, err := s.parser.Parse(spec); err != nil {
		return fmt.Errorf("%w: invalid schedule %q: %v", domain.ErrValidation, spec, err)
	}
	return nil
}

// Start reconciles once, starts the cron runner and begins the reload loop.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()

	s.reconcile(ctx)
	s.cron.Start()

	s.wg.Add(1)
	go s.reloadLoop(ctx)

	s.logger.Info("scheduler started",
		logger.Duration("reload_interval", s.cfg.ReloadInterval),
		logger.Int("entries", len(s.entries)))
}

// Stop halts the reload loop and waits for in-flight firings to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	close(s.stopChan)
	s.wg.Wait()
	<-s.cron.Stop().Done()
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) reloadLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.ReloadInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.reconcile(ctx)
		case <-s.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

// reconcile aligns cron entries with the scheduled templates in the
// database: removed or edited schedules drop their entry, new ones gain one.
func (s *Scheduler) reconcile(ctx context.Context) {
	templates, err := s.templates.ListScheduled(ctx)
	if err != nil {
		s.logger.Error("failed to load scheduled templates", logger.Error(err))
		return
	}

	desired := make(map[uuid.UUID]string, len(templates))
	for _, tmpl := range templates {
		if tmpl.Schedule != nil && *tmpl.Schedule != "" {
			desired[tmpl.ID] = *tmpl.Schedule
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for templateID, existing := range s.entries {
		if spec, ok := desired[templateID]; ok && spec == existing.spec {
			continue
		}
		s.cron.Remove(existing.entryID)
		delete(s.entries, templateID)
	}

	for templateID, spec := range desired {
		if _, ok := s.entries[templateID]; ok {
			continue
		}
		id := templateID
		entryID, err := s.cron.AddFunc(spec, func() { s.fire(id) })
		if err != nil {
			s.logger.Warn("skipping template with invalid schedule",
				logger.String("template_id", templateID.String()),
				logger.String("schedule", spec),
				logger.Error(err))
			continue
		}
		s.entries[templateID] = entry{spec: spec, entryID: entryID}
		s.logger.Debug("registered schedule",
			logger.String("template_id", templateID.String()),
			logger.String("schedule", spec))
	}
}

// fire enqueues one scheduled generation job. Scheduled triggers never
// force: recent content suppresses the run.
func (s *Scheduler) fire(templateID uuid.UUID) {
	ctx, cancel := context.WithTimeout(context.Background(), triggerTimeout)
	defer cancel()

	result, err := s.jobs.Enqueue(ctx, templateID, domain.TriggerSchedule,
		s.cfg.MaxRetries, s.cfg.RecentContentWindow, false)
	if err != nil {
		s.logger.Error("scheduled trigger failed",
			logger.String("template_id", templateID.String()),
			logger.Error(err))
		return
	}

	s.metrics.JobsEnqueuedTotal.
		WithLabelValues(outcomeLabel(result.Outcome), string(domain.TriggerSchedule)).Inc()
	s.logger.Info("scheduled trigger",
		logger.String("template_id", templateID.String()),
		logger.String("outcome", string(result.Outcome)))
}

func outcomeLabel(outcome domain.EnqueueOutcome) string {
	switch outcome {
	case domain.EnqueueQueued:
		return "queued"
	case domain.EnqueueSkippedActive:
		return "skipped_active"
	case domain.EnqueueSkippedRecent:
		return "skipped_recent"
	default:
		return "unknown"
	}
}
