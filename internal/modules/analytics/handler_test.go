package analytics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/querymind/core/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFeedbackRouter(t *testing.T) (*gin.Engine, *Service) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	svc := newTestService(t)
	r := gin.New()
	api := r.Group("/api/v1")
	passthrough := func(c *gin.Context) { c.Next() }
	NewHandler(svc).RegisterRoutes(api, passthrough)
	return r, svc
}

func postFeedback(r *gin.Engine, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/analytics/feedback", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	return w
}

func TestFeedbackEndpointLifecycle(t *testing.T) {
	r, svc := newFeedbackRouter(t)

	id, err := svc.Log(LogInput{Query: "what is rag", Response: "r", SourceType: models.SourceRetrieval})
	require.NoError(t, err)

	w := postFeedback(r, `{"analytics_id":"`+id+`","feedback":1}`)
	assert.Equal(t, http.StatusNoContent, w.Code)

	// second vote for the same serve is rejected
	w = postFeedback(r, `{"analytics_id":"`+id+`","feedback":-1}`)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestFeedbackEndpointUnknownID(t *testing.T) {
	r, _ := newFeedbackRouter(t)

	w := postFeedback(r, `{"analytics_id":"missing","feedback":1}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestFeedbackEndpointValidation(t *testing.T) {
	r, svc := newFeedbackRouter(t)

	id, err := svc.Log(LogInput{Query: "q", Response: "r", SourceType: models.SourceRetrieval})
	require.NoError(t, err)

	w := postFeedback(r, `{"feedback":1}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = postFeedback(r, `{"analytics_id":"`+id+`","feedback":2}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestPopularEndpoint(t *testing.T) {
	r, svc := newFeedbackRouter(t)

	for i := 0; i < 3; i++ {
		_, err := svc.Log(LogInput{Query: "What is RAG", Response: "r", SourceType: models.SourceRetrieval})
		require.NoError(t, err)
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/analytics/popular?min_count=2", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "what is rag")
}
