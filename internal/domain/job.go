package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// JobStatus is the queue state of a generation job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// ParseJobStatus validates a raw job status value at the boundary.
func ParseJobStatus(raw string) (JobStatus, error) {
	switch s := JobStatus(raw); s {
	case JobStatusPending, JobStatusRunning, JobStatusCompleted, JobStatusFailed:
		return s, nil
	default:
		return "", fmt.Errorf("%w: unrecognized job status %q", ErrValidation, raw)
	}
}

// IsTerminal reports whether the status admits no further transitions.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// TriggerSource records what caused a job to be enqueued.
type TriggerSource string

const (
	TriggerManual   TriggerSource = "manual"
	TriggerSchedule TriggerSource = "schedule"
	TriggerAPI      TriggerSource = "api"
)

// ParseTriggerSource validates a raw trigger source value at the boundary.
func ParseTriggerSource(raw string) (TriggerSource, error) {
	switch t := TriggerSource(raw); t {
	case TriggerManual, TriggerSchedule, TriggerAPI:
		return t, nil
	default:
		return "", fmt.Errorf("%w: unrecognized trigger source %q", ErrValidation, raw)
	}
}

// DefaultJobMaxRetries is the retry budget for generation jobs unless
// configured otherwise.
const DefaultJobMaxRetries = 3

// GenerationJob is one queue entry for content generation. At most one job
// per template may be pending or running at any time.
type GenerationJob struct {
	ID              uuid.UUID     `db:"id"               json:"id"`
	TemplateID      uuid.UUID     `db:"template_id"      json:"template_id"`
	Status          JobStatus     `db:"status"           json:"status"`
	WorkerID        *string       `db:"worker_id"        json:"worker_id,omitempty"`
	ContentID       *uuid.UUID    `db:"content_id"       json:"content_id,omitempty"`
	ErrorMessage    *string       `db:"error_message"    json:"error_message,omitempty"`
	RetryCount      int           `db:"retry_count"      json:"retry_count"`
	MaxRetries      int           `db:"max_retries"      json:"max_retries"`
	CancelRequested bool          `db:"cancel_requested" json:"cancel_requested"`
	TriggeredBy     TriggerSource `db:"triggered_by"     json:"triggered_by"`
	CreatedAt       time.Time     `db:"created_at"       json:"created_at"`
	StartedAt       *time.Time    `db:"started_at"       json:"started_at,omitempty"`
	CompletedAt     *time.Time    `db:"completed_at"     json:"completed_at,omitempty"`
}

// ShouldRetry reports whether the job still has retry budget.
func (j *GenerationJob) ShouldRetry() bool {
	return j.RetryCount < j.MaxRetries
}

// EnqueueOutcome reports what a trigger attempt actually did. Skips are
// reported to the caller, never silently dropped.
type EnqueueOutcome string

const (
	EnqueueQueued         EnqueueOutcome = "queued"
	EnqueueSkippedActive  EnqueueOutcome = "skipped: job already queued"
	EnqueueSkippedRecent  EnqueueOutcome = "skipped: recent content exists"
)

// EnqueueResult is returned from a trigger attempt.
type EnqueueResult struct {
	Outcome EnqueueOutcome `json:"outcome"`
	Job     *GenerationJob `json:"job,omitempty"`
}
