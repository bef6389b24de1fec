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

func TestHuggingFaceSearch(t *testing.T) {
	var gotPath, gotSort string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotSort = r.URL.Query().Get("sort")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{"id": "org/first-model", "likes": 1200, "pipeline_tag": "text-generation"},
			{"id": "org/second-model", "likes": 80},
			{"id": "  "}
		]`))
	}))
	defer srv.Close()

	client := &HuggingFaceClient{
		endpoint:   srv.URL,
		limit:      3,
		httpClient: &http.Client{Timeout: 5 * time.Second},
	}

	results, err := client.Search(context.Background(), "llama")
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, "/models", gotPath)
	assert.Equal(t, "likes", gotSort)
	assert.Equal(t, "org/first-model", results[0].Title)
	assert.Equal(t, "https://huggingface.co/org/first-model", results[0].URL)
	assert.Equal(t, "text-generation, 1200 likes", results[0].Summary)
	assert.Equal(t, models.SourceHuggingFace, results[0].Kind)
	assert.Equal(t, "80 likes", results[1].Summary)
}

func TestHuggingFaceSearchSpaces(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	client := &HuggingFaceClient{
		endpoint:   srv.URL,
		limit:      3,
		httpClient: &http.Client{Timeout: 5 * time.Second},
	}

	results, err := client.SearchSpaces(context.Background(), "demo")
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Equal(t, "/spaces", gotPath)
}

func TestHuggingFaceSearchBadResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"not":"a list"}`))
	}))
	defer srv.Close()

	client := &HuggingFaceClient{
		endpoint:   srv.URL,
		limit:      3,
		httpClient: &http.Client{Timeout: 5 * time.Second},
	}

	_, err := client.Search(context.Background(), "x")
	assert.Error(t, err)
}
