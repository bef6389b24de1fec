package search

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/querymind/core/internal/models"
)

const defaultArxivEndpoint = "http://export.arxiv.org/api/query"

// ArxivClient searches recent papers via the arXiv Atom API.
type ArxivClient struct {
	endpoint   string
	maxResults int
	httpClient *http.Client
}

func NewArxivClient(maxResults int) *ArxivClient {
	if maxResults < 1 {
		maxResults = 3
	}
	return &ArxivClient{
		endpoint:   defaultArxivEndpoint,
		maxResults: maxResults,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

type atomFeed struct {
	Entries []atomEntry `xml:"entry"`
}

type atomEntry struct {
	ID      string     `xml:"id"`
	Title   string     `xml:"title"`
	Summary string     `xml:"summary"`
	Links   []atomLink `xml:"link"`
}

type atomLink struct {
	Href string `xml:"href,attr"`
	Rel  string `xml:"rel,attr"`
	Type string `xml:"type,attr"`
}

// Search queries arXiv for the most recently submitted papers matching query.
func (c *ArxivClient) Search(ctx context.Context, query string) ([]Result, error) {
	params := url.Values{}
	params.Set("search_query", "all:"+query)
	params.Set("start", "0")
	params.Set("max_results", fmt.Sprintf("%d", c.maxResults))
	params.Set("sortBy", "submittedDate")
	params.Set("sortOrder", "descending")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}

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
		return nil, fmt.Errorf("arxiv request failed: status=%d", resp.StatusCode)
	}

	return parseArxivFeed(body)
}

func parseArxivFeed(body []byte) ([]Result, error) {
	var feed atomFeed
	if err := xml.Unmarshal(body, &feed); err != nil {
		return nil, fmt.Errorf("parse arxiv feed: %w", err)
	}

	results := make([]Result, 0, len(feed.Entries))
	for _, entry := range feed.Entries {
		title := collapseWhitespace(entry.Title)
		if title == "" {
			continue
		}
		link := strings.TrimSpace(entry.ID)
		for _, l := range entry.Links {
			if l.Rel == "alternate" || (l.Rel == "" && l.Type == "text/html") {
				link = l.Href
				break
			}
		}
		results = append(results, Result{
			Title:   title,
			URL:     link,
			Summary: collapseWhitespace(entry.Summary),
			Kind:    models.SourceArxiv,
		})
	}
	return results, nil
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
