package search

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/philippgille/chromem-go"
	"github.com/querymind/core/internal/config"
	"github.com/querymind/core/internal/models"
)

// Retriever wraps the embedded vector store used for local document retrieval.
type Retriever struct {
	collection *chromem.Collection
	topK       int
	minScore   float64
}

// NewRetriever opens (or creates) the persisted collection. The embedding
// function follows the configured AI provider endpoint when one is set,
// otherwise the OpenAI default.
func NewRetriever(cfg config.RetrievalSection, ai config.AISection) (*Retriever, error) {
	db, err := chromem.NewPersistentDB(cfg.Dir, false)
	if err != nil {
		return nil, fmt.Errorf("open vector store: %w", err)
	}

	var embed chromem.EmbeddingFunc
	if ai.Endpoint != "" {
		embed = chromem.NewEmbeddingFuncOpenAICompat(strings.TrimRight(ai.Endpoint, "/"), ai.APIKey, ai.EmbeddingModel, nil)
	} else {
		embed = chromem.NewEmbeddingFuncOpenAI(ai.APIKey, chromem.EmbeddingModelOpenAI(ai.EmbeddingModel))
	}

	collection, err := db.GetOrCreateCollection(cfg.Collection, nil, embed)
	if err != nil {
		return nil, fmt.Errorf("open collection %q: %w", cfg.Collection, err)
	}

	return &Retriever{
		collection: collection,
		topK:       cfg.TopK,
		minScore:   cfg.MinScore,
	}, nil
}

// Count returns the number of indexed documents.
func (r *Retriever) Count() int {
	return r.collection.Count()
}

// Add indexes one document. A missing id gets a generated one.
func (r *Retriever) Add(ctx context.Context, id, title, content string) (string, error) {
	if strings.TrimSpace(content) == "" {
		return "", fmt.Errorf("document content is empty")
	}
	if id = strings.TrimSpace(id); id == "" {
		id = uuid.New().String()
	}

	metadata := map[string]string{}
	if title = strings.TrimSpace(title); title != "" {
		metadata["title"] = title
	}
	err := r.collection.AddDocument(ctx, chromem.Document{
		ID:       id,
		Metadata: metadata,
		Content:  content,
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// Query returns the most similar documents above the score floor.
func (r *Retriever) Query(ctx context.Context, query string) ([]Result, error) {
	n := r.topK
	if count := r.collection.Count(); count < n {
		n = count
	}
	if n == 0 {
		return nil, nil
	}

	hits, err := r.collection.Query(ctx, query, n, nil, nil)
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(hits))
	for _, hit := range hits {
		score := float64(hit.Similarity)
		if score < r.minScore {
			continue
		}
		title := hit.Metadata["title"]
		if title == "" {
			title = hit.ID
		}
		s := score
		results = append(results, Result{
			Title:   title,
			Summary: hit.Content,
			Kind:    models.SourceRetrieval,
			Score:   &s,
		})
	}
	return results, nil
}
