// Package search provides the external knowledge sources consulted on cache
// misses: the arXiv Atom API, the HuggingFace Hub API and the local embedded
// vector store.
package search

import "github.com/querymind/core/internal/models"

// Result is one external search hit, kept small enough to splice into a
// generation prompt.
type Result struct {
	Title   string
	URL     string
	Summary string
	Kind    models.SourceType
	Score   *float64
}

// Source converts a result into an answer attribution.
func (r Result) Source() models.Source {
	return models.Source{
		Title: r.Title,
		URL:   r.URL,
		Type:  r.Kind,
		Score: r.Score,
	}
}
