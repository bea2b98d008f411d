package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// OutputFormat is the rendered form of generated content.
type OutputFormat string

const (
	OutputFormatMarkdown OutputFormat = "markdown"
	OutputFormatHTML     OutputFormat = "html"
	OutputFormatJSON     OutputFormat = "json"
)

// ParseOutputFormat validates a raw output format value at the boundary.
func ParseOutputFormat(raw string) (OutputFormat, error) {
	switch f := OutputFormat(raw); f {
	case OutputFormatMarkdown, OutputFormatHTML, OutputFormatJSON:
		return f, nil
	default:
		return "", fmt.Errorf("%w: unrecognized output format %q", ErrValidation, raw)
	}
}

// Section is one ordered block of a briefing's content structure. MaxWords
// and MaxItems bound the section length; at most one is usually set.
type Section struct {
	Name     string `json:"name"`
	Prompt   string `json:"prompt,omitempty"`
	MaxWords *int   `json:"max_words,omitempty"`
	MaxItems *int   `json:"max_items,omitempty"`
}

// ContentStructure describes how a briefing is laid out.
type ContentStructure struct {
	Sections     []Section    `json:"sections,omitempty"`
	OutputFormat OutputFormat `json:"output_format,omitempty"`
}

// Template is the declarative definition of one recurring briefing: what to
// select, how to structure it, which model to use and when to run.
type Template struct {
	ID             uuid.UUID         `db:"id"             json:"id"`
	Name           string            `db:"name"           json:"name"`
	Description    string            `db:"description"    json:"description"`
	TargetAudience string            `db:"target_audience" json:"target_audience"`
	Criteria       SelectionCriteria `db:"-"              json:"selection_criteria"`
	CriteriaJSON   []byte            `db:"selection_criteria" json:"-"`
	Structure      ContentStructure  `db:"-"              json:"content_structure"`
	StructureJSON  []byte            `db:"content_structure" json:"-"`
	LLMModel       string            `db:"llm_model"      json:"llm_model"`
	LLMTemperature float64           `db:"llm_temperature" json:"llm_temperature"`
	LLMPrompt      string            `db:"llm_prompt"     json:"llm_prompt"`
	Schedule       *string           `db:"generation_schedule" json:"generation_schedule,omitempty"`
	IsActive       bool              `db:"is_active"      json:"is_active"`
	Version        int               `db:"version"        json:"version"`
	TagsJSON       []byte            `db:"tags"           json:"-"`
	Tags           map[string]any    `db:"-"              json:"tags,omitempty"`
	CreatedAt      time.Time         `db:"created_at"     json:"created_at"`
	UpdatedAt      time.Time         `db:"updated_at"     json:"updated_at"`
}

// DecodeJSON populates the typed criteria, structure and tags fields from
// their raw JSONB columns.
func (t *Template) DecodeJSON() error {
	if len(t.CriteriaJSON) > 0 {
		if err := json.Unmarshal(t.CriteriaJSON, &t.Criteria); err != nil {
			return fmt.Errorf("decode selection_criteria: %w", err)
		}
	}
	if len(t.StructureJSON) > 0 {
		if err := json.Unmarshal(t.StructureJSON, &t.Structure); err != nil {
			return fmt.Errorf("decode content_structure: %w", err)
		}
	}
	if len(t.TagsJSON) > 0 {
		if err := json.Unmarshal(t.TagsJSON, &t.Tags); err != nil {
			return fmt.Errorf("decode tags: %w", err)
		}
	}
	return nil
}

// TemplateCreateRequest is the payload for creating a template.
type TemplateCreateRequest struct {
	Name           string             `binding:"required,min=1,max=200" json:"name"`
	Description    string             `binding:"max=2000"               json:"description"`
	TargetAudience string             `binding:"max=100"                json:"target_audience"`
	Criteria       SelectionCriteria  `binding:"required"               json:"selection_criteria"`
	Structure      ContentStructure   `json:"content_structure"`
	LLMModel       string             `binding:"max=50"                 json:"llm_model"`
	LLMTemperature *float64           `json:"llm_temperature"`
	LLMPrompt      string             `binding:"required"               json:"llm_prompt"`
	Schedule       *string            `json:"generation_schedule"`
	IsActive       *bool              `json:"is_active"`
	Tags           map[string]any     `json:"tags"`
}

// TemplateUpdateRequest is the payload for updating a template. Nil fields
// are left unchanged; any structural change bumps the template version.
type TemplateUpdateRequest struct {
	Name           *string            `binding:"omitempty,min=1,max=200" json:"name"`
	Description    *string            `binding:"omitempty,max=2000"      json:"description"`
	TargetAudience *string            `binding:"omitempty,max=100"       json:"target_audience"`
	Criteria       *SelectionCriteria `json:"selection_criteria"`
	Structure      *ContentStructure  `json:"content_structure"`
	LLMModel       *string            `binding:"omitempty,max=50"        json:"llm_model"`
	LLMTemperature *float64           `json:"llm_temperature"`
	LLMPrompt      *string            `json:"llm_prompt"`
	Schedule       *string            `json:"generation_schedule"`
	IsActive       *bool              `json:"is_active"`
	Tags           map[string]any     `json:"tags"`
}

// Validate rejects empty update requests.
func (r *TemplateUpdateRequest) Validate() error {
	if r.Name == nil && r.Description == nil && r.TargetAudience == nil &&
		r.Criteria == nil && r.Structure == nil && r.LLMModel == nil &&
		r.LLMTemperature == nil && r.LLMPrompt == nil && r.Schedule == nil &&
		r.IsActive == nil && r.Tags == nil {
		return ErrNoFieldsToUpdate
	}
	return nil
}
