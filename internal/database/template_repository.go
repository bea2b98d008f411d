package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/CytrexSGR/newsbrief/internal/domain"
)

// templateSelectList is the column list for SELECT/RETURNING on templates
// (single source for schema changes)
const templateSelectList = `id, name, description, target_audience, selection_criteria,
			content_structure, llm_model, llm_temperature, llm_prompt,
			generation_schedule, is_active, version, tags, created_at, updated_at`

// TemplateRepository manages briefing templates in PostgreSQL
type TemplateRepository struct {
	db *sqlx.DB
}

// NewTemplateRepository creates a new repository instance
func NewTemplateRepository(db *sqlx.DB) *TemplateRepository {
	return &TemplateRepository{db: db}
}

// Create creates a new template at version 1
func (r *TemplateRepository) Create(ctx context.Context, req *domain.TemplateCreateRequest) (*domain.Template, error) {
	tmpl := &domain.Template{
		ID:             uuid.New(),
		Name:           req.Name,
		Description:    req.Description,
		TargetAudience: req.TargetAudience,
		Criteria:       req.Criteria,
		Structure:      req.Structure,
		LLMModel:       req.LLMModel,
		LLMTemperature: 0.7, // Default
		LLMPrompt:      req.LLMPrompt,
		Schedule:       req.Schedule,
		IsActive:       true, // Default to true
		Version:        1,
		Tags:           req.Tags,
		CreatedAt:      time.Now().UTC(),
		UpdatedAt:      time.Now().UTC(),
	}
	if req.LLMTemperature != nil {
		tmpl.LLMTemperature = *req.LLMTemperature
	}
	if req.IsActive != nil {
		tmpl.IsActive = *req.IsActive
	}

	criteriaJSON, structureJSON, tagsJSON, err := encodeTemplateJSON(tmpl)
	if err != nil {
		return nil, err
	}

	query := `
		INSERT INTO templates (id, name, description, target_audience, selection_criteria,
			content_structure, llm_model, llm_temperature, llm_prompt,
			generation_schedule, is_active, version, tags, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING ` + templateSelectList

	err = r.db.QueryRowxContext(
		ctx, query,
		tmpl.ID, tmpl.Name, tmpl.Description, tmpl.TargetAudience, criteriaJSON,
		structureJSON, tmpl.LLMModel, tmpl.LLMTemperature, tmpl.LLMPrompt,
		tmpl.Schedule, tmpl.IsActive, tmpl.Version, tagsJSON, tmpl.CreatedAt, tmpl.UpdatedAt,
	).StructScan(tmpl)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: template name %q already exists", domain.ErrConflict, req.Name)
		}
		return nil, fmt.Errorf("failed to create template: %w", err)
	}

	if err := tmpl.DecodeJSON(); err != nil {
		return nil, err
	}
	return tmpl, nil
}

// GetByID retrieves a template by ID
func (r *TemplateRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Template, error) {
	tmpl := &domain.Template{}
	query := `SELECT ` + templateSelectList + ` FROM templates WHERE id = $1`

	err := r.db.GetContext(ctx, tmpl, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get template: %w", err)
	}

	if err := tmpl.DecodeJSON(); err != nil {
		return nil, err
	}
	return tmpl, nil
}

// List retrieves all templates, optionally only active ones
func (r *TemplateRepository) List(ctx context.Context, activeOnly bool) ([]domain.Template, error) {
	query := `SELECT ` + templateSelectList + ` FROM templates`
	if activeOnly {
		query += ` WHERE is_active = true`
	}
	query += ` ORDER BY name ASC`

	templates := []domain.Template{}
	if err := r.db.SelectContext(ctx, &templates, query); err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}

	for i := range templates {
		if err := templates[i].DecodeJSON(); err != nil {
			return nil, err
		}
	}
	return templates, nil
}

// ListScheduled retrieves active templates that carry a generation schedule.
// Used by the scheduler to reconcile cron entries.
func (r *TemplateRepository) ListScheduled(ctx context.Context) ([]domain.Template, error) {
	query := `SELECT ` + templateSelectList + `
		FROM templates
		WHERE is_active = true AND generation_schedule IS NOT NULL
		ORDER BY name ASC`

	templates := []domain.Template{}
	if err := r.db.SelectContext(ctx, &templates, query); err != nil {
		return nil, fmt.Errorf("failed to list scheduled templates: %w", err)
	}

	for i := range templates {
		if err := templates[i].DecodeJSON(); err != nil {
			return nil, err
		}
	}
	return templates, nil
}

// Update applies the non-nil fields of req and bumps the template version
func (r *TemplateRepository) Update(ctx context.Context, id uuid.UUID, req *domain.TemplateUpdateRequest) (*domain.Template, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	updates := make(map[string]any)
	if req.Name != nil {
		updates["name"] = *req.Name
	}
	if req.Description != nil {
		updates["description"] = *req.Description
	}
	if req.TargetAudience != nil {
		updates["target_audience"] = *req.TargetAudience
	}
	if req.Criteria != nil {
		data, err := json.Marshal(req.Criteria)
		if err != nil {
			return nil, fmt.Errorf("encode selection_criteria: %w", err)
		}
		updates["selection_criteria"] = data
	}
	if req.Structure != nil {
		data, err := json.Marshal(req.Structure)
		if err != nil {
			return nil, fmt.Errorf("encode content_structure: %w", err)
		}
		updates["content_structure"] = data
	}
	if req.LLMModel != nil {
		updates["llm_model"] = *req.LLMModel
	}
	if req.LLMTemperature != nil {
		updates["llm_temperature"] = *req.LLMTemperature
	}
	if req.LLMPrompt != nil {
		updates["llm_prompt"] = *req.LLMPrompt
	}
	if req.Schedule != nil {
		updates["generation_schedule"] = *req.Schedule
	}
	if req.IsActive != nil {
		updates["is_active"] = *req.IsActive
	}
	if req.Tags != nil {
		data, err := json.Marshal(req.Tags)
		if err != nil {
			return nil, fmt.Errorf("encode tags: %w", err)
		}
		updates["tags"] = data
	}

	query, args, err := buildUpdateQuery("templates", id, updates, templateSelectList)
	if err != nil {
		return nil, err
	}
	// Every update bumps the version so running jobs can detect drift.
	query = strings.Replace(query, "SET ", "SET version = version + 1, ", 1)

	tmpl := &domain.Template{}
	err = r.db.QueryRowxContext(ctx, query, args...).StructScan(tmpl)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: template name already exists", domain.ErrConflict)
		}
		return nil, fmt.Errorf("failed to update template: %w", err)
	}

	if err := tmpl.DecodeJSON(); err != nil {
		return nil, err
	}
	return tmpl, nil
}

// Delete deletes a template
func (r *TemplateRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM templates WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete template: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func encodeTemplateJSON(tmpl *domain.Template) (criteria, structure, tags []byte, err error) {
	criteria, err = json.Marshal(tmpl.Criteria)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("encode selection_criteria: %w", err)
	}
	structure, err = json.Marshal(tmpl.Structure)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("encode content_structure: %w", err)
	}
	if tmpl.Tags == nil {
		tags = []byte("{}")
		return criteria, structure, tags, nil
	}
	tags, err = json.Marshal(tmpl.Tags)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("encode tags: %w", err)
	}
	return criteria, structure, tags, nil
}
