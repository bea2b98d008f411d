// Package generate runs the generation job queue: claiming jobs, evaluating
// selection criteria, producing briefing content and recording outcomes.
package generate

import (
	"context"

	"github.com/CytrexSGR/newsbrief/internal/corpus"
	"github.com/CytrexSGR/newsbrief/internal/domain"
)

// Request carries everything a generator needs for one run.
type Request struct {
	Template *domain.Template
	Articles []corpus.Article
}

// Result is the produced briefing before persistence.
type Result struct {
	Title     string
	Body      string
	WordCount int
	CostUSD   float64
	ModelUsed string
}

// Generator produces briefing content from a template and a selected article
// set. Implementations wrap a concrete model backend; transient backend
// failures must wrap domain.ErrDependencyUnavailable so the queue can retry.
type Generator interface {
	Generate(ctx context.Context, req Request) (*Result, error)
}
