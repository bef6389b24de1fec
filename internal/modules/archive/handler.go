package archive

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
	g := rg.Group("/archive")
	{
		g.POST("/run", authMW, h.run)
	}
}

func (h *Handler) run(c *gin.Context) {
	res, err := h.svc.Run(c.Request.Context())
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.OK(c, res)
}
