package selection

import (
	"fmt"

	"github.com/CytrexSGR/newsbrief/internal/domain"
)

// Criteria bounds.
const (
	minMaxArticles = 1
	maxMaxArticles = 500
)

// Validate checks selection criteria against the documented rules and
// returns the list of violations. It is pure and never fails: valid input
// yields an empty list.
//
// category_names and source_names are part of the criteria contract but have
// no join path in this corpus; they are rejected explicitly rather than
// silently ignored.
func Validate(c *domain.SelectionCriteria) []string {
	var violations []string

	if c == nil || c.IsEmpty() {
		return []string{"selection criteria cannot be empty"}
	}

	if c.TimeframeHours != nil && *c.TimeframeHours < 1 {
		violations = append(violations, "timeframe_hours must be a positive integer")
	}

	if c.MinImpactScore != nil {
		if s := *c.MinImpactScore; s < 0 || s > 1 {
			violations = append(violations, "min_impact_score must be between 0.0 and 1.0")
		}
	}

	if c.MinSentimentScore != nil {
		if s := *c.MinSentimentScore; s < -1 || s > 1 {
			violations = append(violations, "min_sentiment_score must be between -1.0 and 1.0")
		}
	}

	if c.MaxArticles != nil {
		if n := *c.MaxArticles; n < minMaxArticles || n > maxMaxArticles {
			violations = append(violations,
				fmt.Sprintf("max_articles must be between %d and %d", minMaxArticles, maxMaxArticles))
		}
	}

	if len(c.CategoryNames) > 0 {
		violations = append(violations, "category_names filter is not supported")
	}
	if len(c.SourceNames) > 0 {
		violations = append(violations, "source_names filter is not supported")
	}

	return violations
}
