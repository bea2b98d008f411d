// Package estimate sizes generation jobs before they run: token counts,
// USD cost and a rough latency figure. Deterministic, no I/O.
package estimate

import (
	"math"

	"github.com/CytrexSGR/newsbrief/internal/domain"
)

// modelPricing is USD per 1K tokens.
type modelPricing struct {
	Input  float64
	Output float64
}

// DefaultModel is the fallback for unknown models.
const DefaultModel = "gpt-4o-mini"

var pricing = map[string]modelPricing{
	"gpt-4o":      {Input: 0.0025, Output: 0.01},
	"gpt-4o-mini": {Input: 0.00015, Output: 0.0006},
	"gpt-4-turbo": {Input: 0.01, Output: 0.03},
}

const (
	// tokensPerArticle covers title, summary and metadata of one article.
	tokensPerArticle = 500
	// promptOverheadTokens covers the prompt template itself.
	promptOverheadTokens = 1000
	// wordsToTokens is the words-to-tokens expansion ratio.
	wordsToTokens = 1.3
	// defaultSectionWords is assumed when a section declares no bound.
	defaultSectionWords = 200
	// defaultOutputTokens is assumed when the template has no sections.
	defaultOutputTokens = 2000

	costPrecision    = 1e6
	tokensPerK       = 1000.0
	minLatencySecs   = 5
	articlesPerSec10 = 10
)

// Estimate is the sized shape of one prospective generation run.
type Estimate struct {
	InputTokens    int     `json:"input_tokens"`
	OutputTokens   int     `json:"output_tokens"`
	CostUSD        float64 `json:"cost_usd"`
	LatencySeconds int     `json:"latency_seconds"`
	Model          string  `json:"model"`
}

// Cost sizes a generation run for the given template and article count.
// For a fixed template the cost is monotone non-decreasing in articleCount.
func Cost(tmpl *domain.Template, articleCount int) Estimate {
	model := tmpl.LLMModel
	price, ok := pricing[model]
	if !ok {
		model = DefaultModel
		price = pricing[model]
	}

	inputTokens := articleCount*tokensPerArticle + promptOverheadTokens

	outputTokens := 0
	for _, section := range tmpl.Structure.Sections {
		words := defaultSectionWords
		switch {
		case section.MaxWords != nil:
			words = *section.MaxWords
		case section.MaxItems != nil:
			words = *section.MaxItems
		}
		outputTokens += int(float64(words) * wordsToTokens)
	}
	if outputTokens == 0 {
		outputTokens = defaultOutputTokens
	}

	cost := (float64(inputTokens)/tokensPerK)*price.Input +
		(float64(outputTokens)/tokensPerK)*price.Output

	return Estimate{
		InputTokens:    inputTokens,
		OutputTokens:   outputTokens,
		CostUSD:        math.Round(cost*costPrecision) / costPrecision,
		LatencySeconds: latency(articleCount),
		Model:          model,
	}
}

// latency is a coarse wall-clock estimate: at least 5 seconds, scaling with
// one second per ten articles.
func latency(articleCount int) int {
	if secs := articleCount / articlesPerSec10; secs > minLatencySecs {
		return secs
	}
	return minLatencySecs
}
