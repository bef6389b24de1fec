package search

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/querymind/core/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleAtomFeed = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <entry>
    <id>http://arxiv.org/abs/2401.00001v1</id>
    <title>Retrieval  Augmented
      Generation Survey</title>
    <summary>A survey of
      RAG systems.</summary>
    <link href="http://arxiv.org/abs/2401.00001v1" rel="alternate" type="text/html"/>
    <link href="http://arxiv.org/pdf/2401.00001v1" rel="related" type="application/pdf"/>
  </entry>
  <entry>
    <id>http://arxiv.org/abs/2401.00002v1</id>
    <title>Untitled Placeholder</title>
    <summary>Second entry.</summary>
  </entry>
</feed>`

func TestArxivSearchParsesFeed(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("search_query")
		w.Header().Set("Content-Type", "application/atom+xml")
		_, _ = w.Write([]byte(sampleAtomFeed))
	}))
	defer srv.Close()

	client := &ArxivClient{
		endpoint:   srv.URL,
		maxResults: 3,
		httpClient: &http.Client{Timeout: 5 * time.Second},
	}

	results, err := client.Search(context.Background(), "retrieval augmented generation")
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, "all:retrieval augmented generation", gotQuery)
	assert.Equal(t, "Retrieval Augmented Generation Survey", results[0].Title)
	assert.Equal(t, "A survey of RAG systems.", results[0].Summary)
	assert.Equal(t, "http://arxiv.org/abs/2401.00001v1", results[0].URL)
	assert.Equal(t, models.SourceArxiv, results[0].Kind)

	// no alternate link: falls back to the entry id
	assert.Equal(t, "http://arxiv.org/abs/2401.00002v1", results[1].URL)
}

func TestArxivSearchErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := &ArxivClient{
		endpoint:   srv.URL,
		maxResults: 3,
		httpClient: &http.Client{Timeout: 5 * time.Second},
	}

	_, err := client.Search(context.Background(), "anything")
	assert.Error(t, err)
}

func TestParseArxivFeedSkipsEmptyTitles(t *testing.T) {
	results, err := parseArxivFeed([]byte(`<feed><entry><title>  </title></entry></feed>`))
	require.NoError(t, err)
	assert.Empty(t, results)
}
