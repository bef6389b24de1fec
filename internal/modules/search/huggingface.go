package search

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/querymind/core/internal/models"
)

const defaultHuggingFaceEndpoint = "https://huggingface.co/api"

// HuggingFaceClient searches models and spaces on the HuggingFace Hub.
type HuggingFaceClient struct {
	endpoint   string
	limit      int
	httpClient *http.Client
}

func NewHuggingFaceClient(limit int) *HuggingFaceClient {
	if limit < 1 {
		limit = 3
	}
	return &HuggingFaceClient{
		endpoint:   defaultHuggingFaceEndpoint,
		limit:      limit,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

type hubItem struct {
	ID       string `json:"id"`
	Likes    int    `json:"likes"`
	Pipeline string `json:"pipeline_tag"`
}

// Search queries the Hub models index, most-liked first.
func (c *HuggingFaceClient) Search(ctx context.Context, query string) ([]Result, error) {
	return c.search(ctx, "models", query)
}

// SearchSpaces queries the Hub spaces index, most-liked first.
func (c *HuggingFaceClient) SearchSpaces(ctx context.Context, query string) ([]Result, error) {
	return c.search(ctx, "spaces", query)
}

func (c *HuggingFaceClient) search(ctx context.Context, kind, query string) ([]Result, error) {
	params := url.Values{}
	params.Set("search", query)
	params.Set("sort", "likes")
	params.Set("direction", "-1")
	params.Set("limit", fmt.Sprintf("%d", c.limit))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"/"+kind+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("huggingface request failed: status=%d", resp.StatusCode)
	}

	var items []hubItem
	if err := json.Unmarshal(body, &items); err != nil {
		return nil, fmt.Errorf("parse huggingface response: %w", err)
	}

	results := make([]Result, 0, len(items))
	for _, item := range items {
		id := strings.TrimSpace(item.ID)
		if id == "" {
			continue
		}
		summary := fmt.Sprintf("%d likes", item.Likes)
		if item.Pipeline != "" {
			summary = item.Pipeline + ", " + summary
		}
		results = append(results, Result{
			Title:   id,
			URL:     "https://huggingface.co/" + id,
			Summary: summary,
			Kind:    models.SourceHuggingFace,
		})
	}
	return results, nil
}
