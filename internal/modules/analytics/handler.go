package analytics

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/querymind/core/internal/models"
	"github.com/querymind/core/internal/pkg/pagination"
	"github.com/querymind/core/internal/pkg/response"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW gin.HandlerFunc) {
	g := rg.Group("/analytics")
	g.GET("/dashboard", h.dashboard)
	g.GET("/summary", h.summary)
	g.GET("/popular", h.popular)
	g.GET("/negative-feedback", h.negativeFeedback)
	g.POST("/feedback", h.feedback)
	g.GET("/recent", authMW, h.recent)
}

func (h *Handler) dashboard(c *gin.Context) {
	days := queryIntOr(c, "days", 7)

	summary, err := h.svc.Summarize(days)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	popular, err := h.svc.Popular(days, 1, 10)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	recent, err := h.svc.Recent(10)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	negative, err := h.svc.ImprovementCandidates(1)
	if err != nil {
		response.InternalError(c, err)
		return
	}

	response.OK(c, gin.H{
		"summary":                   summary,
		"popular_queries":           popular,
		"recent_queries":            recent,
		"negative_feedback_queries": negative,
	})
}

func (h *Handler) summary(c *gin.Context) {
	summary, err := h.svc.Summarize(queryIntOr(c, "days", 7))
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.OK(c, summary)
}

func (h *Handler) popular(c *gin.Context) {
	days := queryIntOr(c, "days", 7)
	minCount := queryIntOr(c, "min_count", 1)
	limit := queryIntOr(c, "limit", 10)

	popular, err := h.svc.Popular(days, minCount, limit)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.OK(c, popular)
}

func (h *Handler) negativeFeedback(c *gin.Context) {
	candidates, err := h.svc.ImprovementCandidates(queryIntOr(c, "min_negative", 1))
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.OK(c, candidates)
}

type feedbackRequest struct {
	AnalyticsID string `json:"analytics_id" binding:"required"`
	Feedback    int    `json:"feedback" binding:"required"`
}

func (h *Handler) feedback(c *gin.Context) {
	var req feedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "analytics_id and feedback are required")
		return
	}
	if req.Feedback != 1 && req.Feedback != -1 {
		response.UnprocessableEntity(c, "feedback must be 1 or -1")
		return
	}

	err := h.svc.SubmitFeedback(req.AnalyticsID, req.Feedback)
	switch {
	case errors.Is(err, ErrNotFound):
		response.NotFoundMsg(c, "unknown analytics id")
	case errors.Is(err, ErrFeedbackExists):
		response.Conflict(c, "feedback already recorded for this id")
	case err != nil:
		response.InternalError(c, err)
	default:
		response.NoContent(c)
	}
}

func (h *Handler) recent(c *gin.Context) {
	q := pagination.FromContext(c)
	var rows []models.QueryEventModel
	page, err := pagination.Paginate(
		h.svc.db.Model(&models.QueryEventModel{}).Order("created_at DESC"),
		q, &rows,
	)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.Paged(c, rows, page)
}

func queryIntOr(c *gin.Context, key string, def int) int {
	v, err := strconv.Atoi(c.Query(key))
	if err != nil || v < 1 {
		return def
	}
	return v
}
