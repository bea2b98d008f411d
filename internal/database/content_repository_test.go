package database_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"

	"github.com/CytrexSGR/newsbrief/internal/database"
	"github.com/CytrexSGR/newsbrief/internal/domain"
)

func contentColumns() []string {
	return []string{
		"id", "template_id", "title", "body", "output_format", "source_article_ids",
		"article_count", "word_count", "cost_usd", "generation_seconds", "model_used",
		"status", "error_message", "generated_at", "published_at",
	}
}

func contentRow(id, templateID uuid.UUID, status domain.ContentStatus) *sqlmock.Rows {
	return sqlmock.NewRows(contentColumns()).
		AddRow(id.String(), templateID.String(), "Morning Briefing", "body text",
			domain.OutputFormatMarkdown, []byte("{101,102,103}"), 3, 250, 0.001017,
			4.2, "gpt-4o-mini", status, nil, time.Now(), nil)
}

func TestContentRepository_Create(t *testing.T) {
	db, mock := newMockDB(t)
	repo := database.NewContentRepository(db)
	ctx := context.Background()
	templateID := uuid.New()

	t.Run("inserts content with provenance", func(t *testing.T) {
		mock.ExpectQuery("INSERT INTO generated_content").
			WillReturnRows(contentRow(uuid.New(), templateID, domain.ContentStatusGenerated))

		content, err := repo.Create(ctx, &domain.GeneratedContent{
			TemplateID:       templateID,
			Title:            "Morning Briefing",
			Body:             "body text",
			OutputFormat:     domain.OutputFormatMarkdown,
			SourceArticleIDs: []int64{101, 102, 103},
			ArticleCount:     3,
			WordCount:        250,
			ModelUsed:        "gpt-4o-mini",
		})
		if err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		if len(content.SourceArticleIDs) != 3 {
			t.Errorf("Create() source ids = %v, want 3 entries", content.SourceArticleIDs)
		}
		if content.Status != domain.ContentStatusGenerated {
			t.Errorf("Create() status = %q, want generated", content.Status)
		}
	})

	t.Run("empty provenance is rejected before touching the database", func(t *testing.T) {
		_, err := repo.Create(ctx, &domain.GeneratedContent{
			TemplateID: templateID,
			Title:      "Empty",
		})
		if !errors.Is(err, domain.ErrValidation) {
			t.Errorf("Create() error = %v, want ErrValidation", err)
		}
	})

	t.Run("count mismatch is rejected", func(t *testing.T) {
		_, err := repo.Create(ctx, &domain.GeneratedContent{
			TemplateID:       templateID,
			SourceArticleIDs: []int64{1, 2},
			ArticleCount:     5,
		})
		if !errors.Is(err, domain.ErrValidation) {
			t.Errorf("Create() error = %v, want ErrValidation", err)
		}
	})

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestContentRepository_TransitionStatus(t *testing.T) {
	db, mock := newMockDB(t)
	repo := database.NewContentRepository(db)
	ctx := context.Background()
	contentID := uuid.New()

	t.Run("legal transition succeeds", func(t *testing.T) {
		mock.ExpectExec("UPDATE generated_content").
			WithArgs(contentID, domain.ContentStatusGenerated, domain.ContentStatusPublished).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := repo.TransitionStatus(ctx, contentID,
			domain.ContentStatusGenerated, domain.ContentStatusPublished)
		if err != nil {
			t.Fatalf("TransitionStatus() error = %v", err)
		}
	})

	t.Run("illegal transition is rejected without a query", func(t *testing.T) {
		err := repo.TransitionStatus(ctx, contentID,
			domain.ContentStatusArchived, domain.ContentStatusPublished)
		if !errors.Is(err, domain.ErrValidation) {
			t.Errorf("TransitionStatus() error = %v, want ErrValidation", err)
		}
	})

	t.Run("concurrent status change returns conflict", func(t *testing.T) {
		mock.ExpectExec("UPDATE generated_content").
			WithArgs(contentID, domain.ContentStatusGenerated, domain.ContentStatusArchived).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery("FROM generated_content").
			WithArgs(contentID).
			WillReturnRows(contentRow(contentID, uuid.New(), domain.ContentStatusPublished))

		err := repo.TransitionStatus(ctx, contentID,
			domain.ContentStatusGenerated, domain.ContentStatusArchived)
		if !errors.Is(err, domain.ErrConflict) {
			t.Errorf("TransitionStatus() error = %v, want ErrConflict", err)
		}
	})

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestContentRepository_HasRecentContent(t *testing.T) {
	db, mock := newMockDB(t)
	repo := database.NewContentRepository(db)
	ctx := context.Background()
	templateID := uuid.New()

	mock.ExpectQuery("SELECT EXISTS").
		WithArgs(templateID, "12h0m0s").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	recent, err := repo.HasRecentContent(ctx, templateID, 12*time.Hour)
	if err != nil {
		t.Fatalf("HasRecentContent() error = %v", err)
	}
	if !recent {
		t.Error("HasRecentContent() = false, want true")
	}

	if expectErr := mock.ExpectationsWereMet(); expectErr != nil {
		t.Errorf("unfulfilled expectations: %v", expectErr)
	}
}
