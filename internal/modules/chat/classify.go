package chat

import (
	"context"
	"strings"
)

// route decides which knowledge sources feed the answer.
type route string

const (
	routeRetrieval route = "retrieval" // local document store only
	routeSearch    route = "search"    // external paper/model search only
	routeHybrid    route = "hybrid"    // both
)

var searchKeywords = []string{
	"latest", "recent", "new", "newest", "state of the art", "sota",
	"paper", "papers", "arxiv", "preprint", "publication",
	"model", "models", "huggingface", "hugging face", "checkpoint",
	"release", "released", "benchmark",
}

var retrievalKeywords = []string{
	"what is", "what are", "explain", "definition", "define",
	"how does", "how do", "why", "difference between", "overview",
	"introduction", "basics",
}

// classifyRules applies the keyword router. The empty route means the rules
// are not confident and the model fallback should decide.
func classifyRules(query string) route {
	q := " " + strings.Join(strings.Fields(strings.ToLower(query)), " ") + " "

	search := false
	for _, kw := range searchKeywords {
		if strings.Contains(q, " "+kw+" ") || strings.Contains(q, " "+kw+",") || strings.Contains(q, " "+kw+"?") {
			search = true
			break
		}
	}
	retrieval := false
	for _, kw := range retrievalKeywords {
		if strings.Contains(q, " "+kw+" ") || strings.HasPrefix(strings.TrimSpace(q), kw) {
			retrieval = true
			break
		}
	}

	switch {
	case search && retrieval:
		return routeHybrid
	case search:
		return routeSearch
	case retrieval:
		return routeRetrieval
	default:
		return ""
	}
}

const classifySystemPrompt = `You route user questions to knowledge sources.
Respond with JSON only: {"route": "retrieval" | "search" | "hybrid"}.
"retrieval" for conceptual questions answerable from indexed documents,
"search" for questions about recent papers, models or releases,
"hybrid" when both apply.`

// classify routes a query, preferring the cheap keyword rules and falling
// back to the model for ambiguous queries. Falls back to retrieval when the
// model call fails.
func (s *Service) classify(ctx context.Context, query string) route {
	if r := classifyRules(query); r != "" {
		return r
	}

	raw, err := generateText(ctx, s.cfg.AI, classifySystemPrompt, query)
	if err != nil {
		return routeRetrieval
	}

	var out struct {
		Route string `json:"route"`
	}
	if err := unmarshalModelJSON(raw, &out); err != nil {
		return routeRetrieval
	}
	switch route(strings.ToLower(strings.TrimSpace(out.Route))) {
	case routeSearch:
		return routeSearch
	case routeHybrid:
		return routeHybrid
	default:
		return routeRetrieval
	}
}
