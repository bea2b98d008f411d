package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/CytrexSGR/newsbrief/internal/domain"
)

// jobSelectList is the column list for SELECT/RETURNING on generation_jobs
const jobSelectList = `id, template_id, status, worker_id, content_id, error_message,
			retry_count, max_retries, cancel_requested, triggered_by,
			created_at, started_at, completed_at`

// JobRepository manages the generation job queue in PostgreSQL.
// A partial unique index on template_id WHERE status IN ('pending','running')
// backs the one-active-job-per-template invariant.
type JobRepository struct {
	db *sqlx.DB
}

// NewJobRepository creates a new repository instance
func NewJobRepository(db *sqlx.DB) *JobRepository {
	return &JobRepository{db: db}
}

// JobFilter narrows List results. Nil fields are ignored.
type JobFilter struct {
	TemplateID  *uuid.UUID
	Status      *domain.JobStatus
	TriggeredBy *domain.TriggerSource
	Limit       int
}

// Enqueue inserts a pending job for the template unless an active job
// already exists or, when force is false, non-failed content was generated
// inside recentWindow. The insert is a single conditional statement so
// concurrent triggers cannot both queue.
func (r *JobRepository) Enqueue(ctx context.Context, templateID uuid.UUID, triggeredBy domain.TriggerSource,
	maxRetries int, recentWindow time.Duration, force bool) (*domain.EnqueueResult, error) {

	query := `
		INSERT INTO generation_jobs (id, template_id, status, retry_count, max_retries,
			cancel_requested, triggered_by, created_at)
		SELECT $1, $2, 'pending', 0, $3, FALSE, $4, NOW()
		WHERE NOT EXISTS (
			SELECT 1 FROM generation_jobs
			WHERE template_id = $2 AND status IN ('pending', 'running')
		)
		AND ($5 OR NOT EXISTS (
			SELECT 1 FROM generated_content
			WHERE template_id = $2
			  AND status <> 'failed'
			  AND generated_at > NOW() - $6::interval
		))
		RETURNING ` + jobSelectList

	job := &domain.GenerationJob{}
	err := r.db.QueryRowxContext(
		ctx, query,
		uuid.New(), templateID, maxRetries, triggeredBy, force, recentWindow.String(),
	).StructScan(job)
	if err == nil {
		return &domain.EnqueueResult{Outcome: domain.EnqueueQueued, Job: job}, nil
	}
	if isUniqueViolation(err) {
		// Lost the race against a concurrent enqueue.
		return &domain.EnqueueResult{Outcome: domain.EnqueueSkippedActive}, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to enqueue job: %w", err)
	}

	// Nothing inserted; report which guard skipped the trigger.
	var activeExists bool
	check := `SELECT EXISTS (
		SELECT 1 FROM generation_jobs
		WHERE template_id = $1 AND status IN ('pending', 'running'))`
	if checkErr := r.db.QueryRowContext(ctx, check, templateID).Scan(&activeExists); checkErr != nil {
		return nil, fmt.Errorf("failed to diagnose skipped enqueue: %w", checkErr)
	}
	if activeExists {
		return &domain.EnqueueResult{Outcome: domain.EnqueueSkippedActive}, nil
	}
	return &domain.EnqueueResult{Outcome: domain.EnqueueSkippedRecent}, nil
}

// ClaimNext atomically claims up to limit pending jobs for the worker.
// Uses FOR UPDATE SKIP LOCKED for concurrent worker safety.
func (r *JobRepository) ClaimNext(ctx context.Context, workerID string, limit int) ([]domain.GenerationJob, error) {
	query := `
		UPDATE generation_jobs
		SET status = 'running', worker_id = $1, started_at = NOW()
		WHERE id IN (
			SELECT id FROM generation_jobs
			WHERE status = 'pending'
			ORDER BY created_at ASC
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + jobSelectList

	rows, err := r.db.QueryxContext(ctx, query, workerID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to claim jobs: %w", err)
	}
	defer rows.Close()

	jobs := []domain.GenerationJob{}
	for rows.Next() {
		var job domain.GenerationJob
		if scanErr := rows.StructScan(&job); scanErr != nil {
			return nil, fmt.Errorf("scan job: %w", scanErr)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// Claim atomically claims one specific pending job. Zero rows means the
// claim was lost; no state changes in that case.
func (r *JobRepository) Claim(ctx context.Context, id uuid.UUID, workerID string) (*domain.GenerationJob, error) {
	query := `
		UPDATE generation_jobs
		SET status = 'running', worker_id = $2, started_at = NOW()
		WHERE id = $1 AND status = 'pending'
		RETURNING ` + jobSelectList

	job := &domain.GenerationJob{}
	err := r.db.QueryRowxContext(ctx, query, id, workerID).StructScan(job)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: job %s is not pending", domain.ErrConflict, id)
		}
		return nil, fmt.Errorf("failed to claim job: %w", err)
	}
	return job, nil
}

// Complete marks a running job completed and links the produced content
func (r *JobRepository) Complete(ctx context.Context, id, contentID uuid.UUID) error {
	query := `
		UPDATE generation_jobs
		SET status = 'completed', content_id = $2, completed_at = NOW()
		WHERE id = $1 AND status = 'running'`

	return r.execExpectOneRow(ctx, "complete job", query, id, contentID)
}

// Fail records a failed attempt on a running job. With retry budget left the
// job returns to pending for another attempt; otherwise it is terminally
// failed. One statement, so a crash cannot leave the job half-updated.
func (r *JobRepository) Fail(ctx context.Context, id uuid.UUID, errorMsg string) error {
	query := `
		UPDATE generation_jobs
		SET retry_count = retry_count + 1,
		    error_message = $2,
		    status = CASE WHEN retry_count + 1 < max_retries THEN 'pending' ELSE 'failed' END,
		    worker_id = CASE WHEN retry_count + 1 < max_retries THEN NULL ELSE worker_id END,
		    started_at = CASE WHEN retry_count + 1 < max_retries THEN NULL ELSE started_at END,
		    completed_at = CASE WHEN retry_count + 1 < max_retries THEN NULL ELSE NOW() END
		WHERE id = $1 AND status = 'running'`

	return r.execExpectOneRow(ctx, "fail job", query, id, errorMsg)
}

// FailPermanently terminally fails a running job regardless of retry budget.
// Used for cancellation and non-transient failures.
func (r *JobRepository) FailPermanently(ctx context.Context, id uuid.UUID, errorMsg string) error {
	query := `
		UPDATE generation_jobs
		SET status = 'failed', error_message = $2, completed_at = NOW()
		WHERE id = $1 AND status = 'running'`

	return r.execExpectOneRow(ctx, "fail job permanently", query, id, errorMsg)
}

// RequestCancel cancels a job. Pending jobs fail immediately; running jobs
// get the cancel flag set and finalize at the worker's next checkpoint.
func (r *JobRepository) RequestCancel(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE generation_jobs
		SET cancel_requested = TRUE,
		    status = CASE WHEN status = 'pending' THEN 'failed' ELSE status END,
		    error_message = CASE WHEN status = 'pending' THEN 'cancelled by operator' ELSE error_message END,
		    completed_at = CASE WHEN status = 'pending' THEN NOW() ELSE completed_at END
		WHERE id = $1 AND status IN ('pending', 'running')`

	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to request cancel: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		job, getErr := r.GetByID(ctx, id)
		if getErr != nil {
			return getErr
		}
		if job.Status.IsTerminal() {
			return fmt.Errorf("%w: job %s already finished", domain.ErrConflict, id)
		}
		return fmt.Errorf("%w: job %s changed state concurrently", domain.ErrConflict, id)
	}
	return nil
}

// IsCancelRequested reports the cancel flag. Workers poll this at
// checkpoints during a run.
func (r *JobRepository) IsCancelRequested(ctx context.Context, id uuid.UUID) (bool, error) {
	var requested bool
	err := r.db.QueryRowContext(ctx,
		`SELECT cancel_requested FROM generation_jobs WHERE id = $1`, id).Scan(&requested)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, domain.ErrNotFound
		}
		return false, fmt.Errorf("failed to check cancel flag: %w", err)
	}
	return requested, nil
}

// ResetStaleRunning resets running jobs whose worker went away back to
// pending. This handles jobs that were claimed but the worker crashed
// before completing.
func (r *JobRepository) ResetStaleRunning(ctx context.Context, olderThan time.Duration) (int64, error) {
	query := `
		UPDATE generation_jobs
		SET status = 'pending', worker_id = NULL, started_at = NULL
		WHERE status = 'running'
		  AND started_at < NOW() - $1::interval`

	result, err := r.db.ExecContext(ctx, query, olderThan.String())
	if err != nil {
		return 0, fmt.Errorf("failed to reset stale jobs: %w", err)
	}
	return result.RowsAffected()
}

// RunningCount returns the number of running jobs for a template. More than
// one indicates a corrupted queue state.
func (r *JobRepository) RunningCount(ctx context.Context, templateID uuid.UUID) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM generation_jobs WHERE template_id = $1 AND status = 'running'`,
		templateID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count running jobs: %w", err)
	}
	return count, nil
}

// GetByID retrieves a job by ID
func (r *JobRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.GenerationJob, error) {
	job := &domain.GenerationJob{}
	query := `SELECT ` + jobSelectList + ` FROM generation_jobs WHERE id = $1`

	err := r.db.GetContext(ctx, job, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return job, nil
}

// List retrieves jobs, newest first
func (r *JobRepository) List(ctx context.Context, filter JobFilter) ([]domain.GenerationJob, error) {
	query := `SELECT ` + jobSelectList + ` FROM generation_jobs`
	args := []any{}
	argPos := 1

	if filter.TemplateID != nil {
		query += fmt.Sprintf(" WHERE template_id = $%d", argPos)
		args = append(args, *filter.TemplateID)
		argPos++
	}
	if filter.Status != nil {
		if argPos == 1 {
			query += " WHERE"
		} else {
			query += " AND"
		}
		query += fmt.Sprintf(" status = $%d", argPos)
		args = append(args, *filter.Status)
		argPos++
	}
	if filter.TriggeredBy != nil {
		if argPos == 1 {
			query += " WHERE"
		} else {
			query += " AND"
		}
		query += fmt.Sprintf(" triggered_by = $%d", argPos)
		args = append(args, *filter.TriggeredBy)
		argPos++
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argPos)
		args = append(args, filter.Limit)
	}

	jobs := []domain.GenerationJob{}
	if err := r.db.SelectContext(ctx, &jobs, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	return jobs, nil
}

// execExpectOneRow runs an exec and returns domain.ErrNotFound when no row
// was affected
func (r *JobRepository) execExpectOneRow(ctx context.Context, op, query string, args ...any) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	rowsAffected, rowsErr := result.RowsAffected()
	if rowsErr != nil {
		return fmt.Errorf("get affected rows: %w", rowsErr)
	}
	if rowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}
