package generate

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/CytrexSGR/newsbrief/internal/corpus"
	"github.com/CytrexSGR/newsbrief/internal/domain"
	"github.com/CytrexSGR/newsbrief/internal/estimate"
)

// Composer is the built-in Generator. It assembles a briefing directly from
// the selected article set, honoring the template's content structure and
// output format. Deterministic and offline; model-backed generators plug in
// behind the same interface.
type Composer struct {
	now func() time.Time
}

// NewComposer creates the built-in composer.
func NewComposer() *Composer {
	return &Composer{now: func() time.Time { return time.Now().UTC() }}
}

// Generate implements Generator.
func (c *Composer) Generate(_ context.Context, req Request) (*Result, error) {
	tmpl := req.Template
	day := c.now().Format("2006-01-02")
	title := fmt.Sprintf("%s (%s)", tmpl.Name, day)

	var body string
	var err error
	switch tmpl.Structure.OutputFormat {
	case domain.OutputFormatJSON:
		body, err = composeJSON(tmpl, req.Articles, title)
	case domain.OutputFormatHTML:
		body = composeHTML(tmpl, req.Articles, title)
	default:
		body = composeMarkdown(tmpl, req.Articles, title)
	}
	if err != nil {
		return nil, err
	}

	est := estimate.Cost(tmpl, len(req.Articles))

	return &Result{
		Title:     title,
		Body:      body,
		WordCount: len(strings.Fields(body)),
		CostUSD:   est.CostUSD,
		ModelUsed: est.Model,
	}, nil
}

// sectionArticles bounds the article list for one section.
func sectionArticles(section domain.Section, articles []corpus.Article) []corpus.Article {
	if section.MaxItems != nil && len(articles) > *section.MaxItems {
		return articles[:*section.MaxItems]
	}
	return articles
}

// sections returns the template's sections, or a single default section when
// the template declares none.
func sections(tmpl *domain.Template) []domain.Section {
	if len(tmpl.Structure.Sections) > 0 {
		return tmpl.Structure.Sections
	}
	return []domain.Section{{Name: "Headlines"}}
}

func composeMarkdown(tmpl *domain.Template, articles []corpus.Article, title string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n", title)
	for _, section := range sections(tmpl) {
		fmt.Fprintf(&b, "\n## %s\n\n", section.Name)
		for _, a := range sectionArticles(section, articles) {
			fmt.Fprintf(&b, "- %s\n", a.Title)
		}
	}
	return b.String()
}

func composeHTML(tmpl *domain.Template, articles []corpus.Article, title string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<h1>%s</h1>\n", title)
	for _, section := range sections(tmpl) {
		fmt.Fprintf(&b, "<h2>%s</h2>\n<ul>\n", section.Name)
		for _, a := range sectionArticles(section, articles) {
			fmt.Fprintf(&b, "<li>%s</li>\n", a.Title)
		}
		b.WriteString("</ul>\n")
	}
	return b.String()
}

func composeJSON(tmpl *domain.Template, articles []corpus.Article, title string) (string, error) {
	type jsonItem struct {
		ID    int64  `json:"id"`
		Title string `json:"title"`
	}
	type jsonSection struct {
		Name  string     `json:"name"`
		Items []jsonItem `json:"items"`
	}

	doc := struct {
		Title    string        `json:"title"`
		Sections []jsonSection `json:"sections"`
	}{Title: title}

	for _, section := range sections(tmpl) {
		js := jsonSection{Name: section.Name, Items: []jsonItem{}}
		for _, a := range sectionArticles(section, articles) {
			js.Items = append(js.Items, jsonItem{ID: a.ID, Title: a.Title})
		}
		doc.Sections = append(doc.Sections, js)
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("compose json briefing: %w", err)
	}
	return string(data), nil
}
