package chat

import (
	"github.com/gin-gonic/gin"
	"github.com/querymind/core/internal/pkg/response"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW gin.HandlerFunc) {
	g := rg.Group("/chat")
	{
		g.POST("", h.chat)
		g.GET("/stats", h.stats)
		g.POST("/documents", authMW, h.addDocument)
	}
}

type chatRequest struct {
	Query      string `json:"query" binding:"required"`
	UserID     string `json:"user_id"`
	RenderHTML bool   `json:"render_html"`
}

func (h *Handler) chat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "query is required")
		return
	}

	reply, err := h.svc.Ask(c.Request.Context(), req.Query, req.UserID, req.RenderHTML)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.OK(c, reply)
}

func (h *Handler) stats(c *gin.Context) {
	response.OK(c, gin.H{
		"document_count": h.svc.DocumentCount(),
		"features":       h.svc.Features(),
	})
}

type addDocumentRequest struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Content string `json:"content" binding:"required"`
}

func (h *Handler) addDocument(c *gin.Context) {
	var req addDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "content is required")
		return
	}

	id, err := h.svc.AddDocument(c.Request.Context(), req.ID, req.Title, req.Content)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.Created(c, gin.H{"id": id})
}
