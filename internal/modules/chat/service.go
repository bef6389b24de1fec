package chat

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	appcfg "github.com/querymind/core/internal/config"
	"github.com/querymind/core/internal/models"
	"github.com/querymind/core/internal/modules/analytics"
	"github.com/querymind/core/internal/modules/cache"
	"github.com/querymind/core/internal/modules/search"
	"go.uber.org/zap"
)

// Service answers queries: cache probe first, then classification, context
// gathering and generation. It doubles as the answer generator used by the
// learning cycle's pre-warm and improvement phases.
type Service struct {
	store     *cache.Store
	analytics *analytics.Service
	retriever *search.Retriever // nil when the vector store is unavailable
	arxiv     *search.ArxivClient
	hf        *search.HuggingFaceClient
	cfg       *appcfg.AppConfig
	logger    *zap.Logger
}

func NewService(store *cache.Store, analyticsSvc *analytics.Service, retriever *search.Retriever, arxiv *search.ArxivClient, hf *search.HuggingFaceClient, cfg *appcfg.AppConfig, logger *zap.Logger) *Service {
	return &Service{
		store:     store,
		analytics: analyticsSvc,
		retriever: retriever,
		arxiv:     arxiv,
		hf:        hf,
		cfg:       cfg,
		logger:    logger.Named("ChatService"),
	}
}

// Message is the assistant message payload of a chat reply.
type Message struct {
	ID          string          `json:"id"`
	Role        string          `json:"role"`
	Content     string          `json:"content"`
	ContentHTML string          `json:"content_html,omitempty"`
	Sources     []models.Source `json:"sources"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Reply is the full chat response.
type Reply struct {
	Message     Message `json:"message"`
	Cached      bool    `json:"cached"`
	AnalyticsID string  `json:"analytics_id,omitempty"`
}

// Ask serves one query. Cache policy: expired-but-present entries are still
// served as hits; refreshing stale answers is the learning cycle's job, not
// the request path's. Every serve appends a ledger row whose id is returned
// as the feedback handle.
func (s *Service) Ask(ctx context.Context, query, userID string, renderHTML bool) (*Reply, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("query is empty")
	}

	fingerprint := cache.Fingerprint(query)
	entry, err := s.store.Get(fingerprint)
	if err != nil {
		return nil, err
	}

	if entry != nil {
		analyticsID, err := s.analytics.Log(analytics.LogInput{
			Query:      query,
			Response:   entry.Answer,
			SourceType: models.SourceCache,
			UserID:     userID,
		})
		if err != nil {
			s.logger.Warn("ledger append failed on cache hit", zap.Error(err))
		}
		return s.buildReply(entry.Answer, entry.Sources, true, analyticsID, renderHTML), nil
	}

	start := time.Now()
	answer, sources, sourceType, err := s.Generate(ctx, query)
	if err != nil {
		return nil, err
	}
	latency := int(time.Since(start).Milliseconds())

	ttl := time.Duration(s.cfg.Cache.TTLHours) * time.Hour
	if err := s.store.Put(fingerprint, query, answer, sources, ttl, false); err != nil {
		s.logger.Warn("cache put failed", zap.String("fingerprint", fingerprint), zap.Error(err))
	}

	analyticsID, err := s.analytics.Log(analytics.LogInput{
		Query:      query,
		Response:   answer,
		SourceType: sourceType,
		LatencyMS:  &latency,
		UserID:     userID,
	})
	if err != nil {
		s.logger.Warn("ledger append failed", zap.Error(err))
	}

	return s.buildReply(answer, sources, false, analyticsID, renderHTML), nil
}

const answerSystemPrompt = `You are a concise technical assistant for machine
learning topics. Answer in markdown. When context snippets are provided, rely
on them and do not invent citations.`

// Generate produces a fresh answer for query: classify, gather context from
// the configured sources, generate. Per-call timeout comes from config so a
// stuck upstream cannot pin callers.
func (s *Service) Generate(ctx context.Context, query string) (string, []models.Source, models.SourceType, error) {
	gctx, cancel := context.WithTimeout(ctx, time.Duration(s.cfg.AI.TimeoutSeconds)*time.Second)
	defer cancel()

	r := s.classify(gctx, query)

	var contextParts []string
	var sources []models.Source
	var usedRetrieval, usedArxiv, usedHF bool

	if r == routeRetrieval || r == routeHybrid {
		if s.retriever != nil {
			docs, err := s.retriever.Query(gctx, query)
			if err != nil {
				s.logger.Warn("retrieval failed", zap.Error(err))
			}
			for _, doc := range docs {
				contextParts = append(contextParts, fmt.Sprintf("[doc] %s: %s", doc.Title, doc.Summary))
				sources = append(sources, doc.Source())
			}
			usedRetrieval = len(docs) > 0
		}
	}

	if r == routeSearch || r == routeHybrid {
		if s.arxiv != nil {
			papers, err := s.arxiv.Search(gctx, query)
			if err != nil {
				s.logger.Warn("arxiv search failed", zap.Error(err))
			}
			for _, p := range papers {
				contextParts = append(contextParts, fmt.Sprintf("[paper] %s: %s", p.Title, p.Summary))
				sources = append(sources, p.Source())
			}
			usedArxiv = len(papers) > 0
		}
		if s.hf != nil {
			hubItems, err := s.hf.Search(gctx, query)
			if err != nil {
				s.logger.Warn("huggingface search failed", zap.Error(err))
			}
			for _, item := range hubItems {
				contextParts = append(contextParts, fmt.Sprintf("[model] %s (%s)", item.Title, item.Summary))
				sources = append(sources, item.Source())
			}
			usedHF = len(hubItems) > 0
		}
	}

	prompt := query
	if len(contextParts) > 0 {
		prompt = "Context:\n" + strings.Join(contextParts, "\n") + "\n\nQuestion: " + query
	}

	answer, err := generateText(gctx, s.cfg.AI, answerSystemPrompt, prompt)
	if err != nil {
		return "", nil, models.SourceUnknown, err
	}

	return answer, sources, resolveSourceType(usedRetrieval, usedArxiv, usedHF), nil
}

func resolveSourceType(retrieval, arxiv, hf bool) models.SourceType {
	switch {
	case retrieval && (arxiv || hf):
		return models.SourceHybrid
	case arxiv && hf:
		return models.SourceHybrid
	case arxiv:
		return models.SourceArxiv
	case hf:
		return models.SourceHuggingFace
	case retrieval:
		return models.SourceRetrieval
	default:
		return models.SourceUnknown
	}
}

// DocumentCount reports how many documents the retriever has indexed.
func (s *Service) DocumentCount() int {
	if s.retriever == nil {
		return 0
	}
	return s.retriever.Count()
}

// AddDocument indexes a document into the retriever.
func (s *Service) AddDocument(ctx context.Context, id, title, content string) (string, error) {
	if s.retriever == nil {
		return "", fmt.Errorf("retrieval is not configured")
	}
	return s.retriever.Add(ctx, id, title, content)
}

// Features lists the capabilities enabled by the current configuration.
func (s *Service) Features() []string {
	features := []string{"cache", "learning"}
	if s.retriever != nil {
		features = append(features, "retrieval")
	}
	if s.arxiv != nil {
		features = append(features, "arxiv")
	}
	if s.hf != nil {
		features = append(features, "huggingface")
	}
	return features
}

func (s *Service) buildReply(answer string, sources []models.Source, cached bool, analyticsID string, renderHTML bool) *Reply {
	if sources == nil {
		sources = []models.Source{}
	}
	msg := Message{
		ID:        uuid.New().String(),
		Role:      "assistant",
		Content:   answer,
		Sources:   sources,
		CreatedAt: time.Now(),
	}
	if renderHTML {
		html, err := renderMarkdown(answer)
		if err != nil {
			s.logger.Warn("markdown render failed", zap.Error(err))
		} else {
			msg.ContentHTML = html
		}
	}
	return &Reply{Message: msg, Cached: cached, AnalyticsID: analyticsID}
}
