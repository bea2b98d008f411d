package database_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/CytrexSGR/newsbrief/internal/database"
	"github.com/CytrexSGR/newsbrief/internal/domain"
)

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	return sqlx.NewDb(db, "postgres"), mock
}

func jobColumns() []string {
	return []string{
		"id", "template_id", "status", "worker_id", "content_id", "error_message",
		"retry_count", "max_retries", "cancel_requested", "triggered_by",
		"created_at", "started_at", "completed_at",
	}
}

func jobRow(id, templateID uuid.UUID, status domain.JobStatus) *sqlmock.Rows {
	return sqlmock.NewRows(jobColumns()).
		AddRow(id.String(), templateID.String(), status, nil, nil, nil,
			0, 3, false, domain.TriggerManual, time.Now(), nil, nil)
}

func TestJobRepository_Enqueue(t *testing.T) {
	db, mock := newMockDB(t)
	repo := database.NewJobRepository(db)
	ctx := context.Background()
	templateID := uuid.New()

	testCases := []struct {
		name        string
		setupMock   func()
		wantOutcome domain.EnqueueOutcome
		wantErr     bool
	}{
		{
			name: "queues a job when no guard applies",
			setupMock: func() {
				mock.ExpectQuery("INSERT INTO generation_jobs").
					WillReturnRows(jobRow(uuid.New(), templateID, domain.JobStatusPending))
			},
			wantOutcome: domain.EnqueueQueued,
		},
		{
			name: "active job skips the trigger",
			setupMock: func() {
				mock.ExpectQuery("INSERT INTO generation_jobs").
					WillReturnError(sql.ErrNoRows)
				mock.ExpectQuery("SELECT EXISTS").
					WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
			},
			wantOutcome: domain.EnqueueSkippedActive,
		},
		{
			name: "recent content skips the trigger",
			setupMock: func() {
				mock.ExpectQuery("INSERT INTO generation_jobs").
					WillReturnError(sql.ErrNoRows)
				mock.ExpectQuery("SELECT EXISTS").
					WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
			},
			wantOutcome: domain.EnqueueSkippedRecent,
		},
		{
			name: "database error propagates",
			setupMock: func() {
				mock.ExpectQuery("INSERT INTO generation_jobs").
					WillReturnError(sql.ErrConnDone)
			},
			wantErr: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			tc.setupMock()

			result, err := repo.Enqueue(ctx, templateID, domain.TriggerManual, 3, 12*time.Hour, false)
			if (err != nil) != tc.wantErr {
				t.Fatalf("Enqueue() error = %v, wantErr %v", err, tc.wantErr)
			}
			if !tc.wantErr && result.Outcome != tc.wantOutcome {
				t.Errorf("Enqueue() outcome = %q, want %q", result.Outcome, tc.wantOutcome)
			}
			if tc.wantOutcome == domain.EnqueueQueued && result.Job == nil {
				t.Error("Enqueue() queued outcome is missing the job")
			}

			if expectErr := mock.ExpectationsWereMet(); expectErr != nil {
				t.Errorf("unfulfilled expectations: %v", expectErr)
			}
		})
	}
}

func TestJobRepository_Claim(t *testing.T) {
	db, mock := newMockDB(t)
	repo := database.NewJobRepository(db)
	ctx := context.Background()
	jobID := uuid.New()

	t.Run("claims a pending job", func(t *testing.T) {
		mock.ExpectQuery("UPDATE generation_jobs").
			WithArgs(jobID, "worker-1").
			WillReturnRows(jobRow(jobID, uuid.New(), domain.JobStatusRunning))

		job, err := repo.Claim(ctx, jobID, "worker-1")
		if err != nil {
			t.Fatalf("Claim() error = %v", err)
		}
		if job.Status != domain.JobStatusRunning {
			t.Errorf("Claim() status = %q, want running", job.Status)
		}
	})

	t.Run("lost claim returns conflict without state change", func(t *testing.T) {
		mock.ExpectQuery("UPDATE generation_jobs").
			WithArgs(jobID, "worker-1").
			WillReturnError(sql.ErrNoRows)

		_, err := repo.Claim(ctx, jobID, "worker-1")
		if !errors.Is(err, domain.ErrConflict) {
			t.Errorf("Claim() error = %v, want ErrConflict", err)
		}
	})

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestJobRepository_ClaimNext(t *testing.T) {
	db, mock := newMockDB(t)
	repo := database.NewJobRepository(db)
	ctx := context.Background()

	rows := jobRow(uuid.New(), uuid.New(), domain.JobStatusRunning).
		AddRow(uuid.NewString(), uuid.NewString(), domain.JobStatusRunning, nil, nil, nil,
			0, 3, false, domain.TriggerSchedule, time.Now(), nil, nil)
	mock.ExpectQuery("FOR UPDATE SKIP LOCKED").
		WithArgs("worker-1", 5).
		WillReturnRows(rows)

	jobs, err := repo.ClaimNext(ctx, "worker-1", 5)
	if err != nil {
		t.Fatalf("ClaimNext() error = %v", err)
	}
	if len(jobs) != 2 {
		t.Errorf("ClaimNext() returned %d jobs, want 2", len(jobs))
	}

	if expectErr := mock.ExpectationsWereMet(); expectErr != nil {
		t.Errorf("unfulfilled expectations: %v", expectErr)
	}
}

func TestJobRepository_Fail(t *testing.T) {
	db, mock := newMockDB(t)
	repo := database.NewJobRepository(db)
	ctx := context.Background()
	jobID := uuid.New()

	testCases := []struct {
		name      string
		setupMock func()
		wantErr   error
	}{
		{
			name: "records the failed attempt",
			setupMock: func() {
				mock.ExpectExec("UPDATE generation_jobs").
					WithArgs(jobID, "llm timeout").
					WillReturnResult(sqlmock.NewResult(0, 1))
			},
		},
		{
			name: "job no longer running returns not found",
			setupMock: func() {
				mock.ExpectExec("UPDATE generation_jobs").
					WithArgs(jobID, "llm timeout").
					WillReturnResult(sqlmock.NewResult(0, 0))
			},
			wantErr: domain.ErrNotFound,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			tc.setupMock()

			err := repo.Fail(ctx, jobID, "llm timeout")
			if tc.wantErr == nil && err != nil {
				t.Fatalf("Fail() error = %v", err)
			}
			if tc.wantErr != nil && !errors.Is(err, tc.wantErr) {
				t.Errorf("Fail() error = %v, want %v", err, tc.wantErr)
			}

			if expectErr := mock.ExpectationsWereMet(); expectErr != nil {
				t.Errorf("unfulfilled expectations: %v", expectErr)
			}
		})
	}
}

func TestJobRepository_RequestCancel(t *testing.T) {
	db, mock := newMockDB(t)
	repo := database.NewJobRepository(db)
	ctx := context.Background()
	jobID := uuid.New()

	t.Run("cancels an active job", func(t *testing.T) {
		mock.ExpectExec("UPDATE generation_jobs").
			WithArgs(jobID).
			WillReturnResult(sqlmock.NewResult(0, 1))

		if err := repo.RequestCancel(ctx, jobID); err != nil {
			t.Fatalf("RequestCancel() error = %v", err)
		}
	})

	t.Run("finished job returns conflict", func(t *testing.T) {
		mock.ExpectExec("UPDATE generation_jobs").
			WithArgs(jobID).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery("FROM generation_jobs").
			WithArgs(jobID).
			WillReturnRows(jobRow(jobID, uuid.New(), domain.JobStatusCompleted))

		err := repo.RequestCancel(ctx, jobID)
		if !errors.Is(err, domain.ErrConflict) {
			t.Errorf("RequestCancel() error = %v, want ErrConflict", err)
		}
	})

	t.Run("missing job returns not found", func(t *testing.T) {
		mock.ExpectExec("UPDATE generation_jobs").
			WithArgs(jobID).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery("FROM generation_jobs").
			WithArgs(jobID).
			WillReturnError(sql.ErrNoRows)

		err := repo.RequestCancel(ctx, jobID)
		if !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("RequestCancel() error = %v, want ErrNotFound", err)
		}
	})

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestJobRepository_ResetStaleRunning(t *testing.T) {
	db, mock := newMockDB(t)
	repo := database.NewJobRepository(db)
	ctx := context.Background()

	mock.ExpectExec("UPDATE generation_jobs").
		WithArgs("10m0s").
		WillReturnResult(sqlmock.NewResult(0, 2))

	count, err := repo.ResetStaleRunning(ctx, 10*time.Minute)
	if err != nil {
		t.Fatalf("ResetStaleRunning() error = %v", err)
	}
	if count != 2 {
		t.Errorf("ResetStaleRunning() = %d, want 2", count)
	}

	if expectErr := mock.ExpectationsWereMet(); expectErr != nil {
		t.Errorf("unfulfilled expectations: %v", expectErr)
	}
}

func TestJobRepository_ListFiltersByTrigger(t *testing.T) {
	db, mock := newMockDB(t)
	repo := database.NewJobRepository(db)
	ctx := context.Background()

	status := domain.JobStatusCompleted
	trigger := domain.TriggerSchedule

	mock.ExpectQuery("FROM generation_jobs WHERE status = (.+) AND triggered_by = (.+) ORDER BY created_at DESC").
		WithArgs(status, trigger, 10).
		WillReturnRows(jobRow(uuid.New(), uuid.New(), status))

	jobs, err := repo.List(ctx, database.JobFilter{
		Status:      &status,
		TriggeredBy: &trigger,
		Limit:       10,
	})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(jobs) != 1 {
		t.Errorf("List() returned %d jobs, want 1", len(jobs))
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}
