package auth

import (
	"time"

	"github.com/gin-gonic/gin"
	appcfg "github.com/querymind/core/internal/config"
	"github.com/querymind/core/internal/pkg/jwt"
	"github.com/querymind/core/internal/pkg/response"
	"golang.org/x/crypto/bcrypt"
)

// Handler issues admin tokens. Single-operator model: one bcrypt password
// hash in the config, one "admin" identity in the token.
type Handler struct {
	cfg *appcfg.AuthSection
}

func NewHandler(cfg *appcfg.AuthSection) *Handler {
	return &Handler{cfg: cfg}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	g := rg.Group("/auth")
	{
		g.POST("/login", h.login)
	}
}

type loginRequest struct {
	Password string `json:"password" binding:"required"`
}

func (h *Handler) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "password is required")
		return
	}

	if h.cfg.AdminPasswordHash == "" {
		response.Forbidden(c)
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(h.cfg.AdminPasswordHash), []byte(req.Password)); err != nil {
		response.Unauthorized(c)
		return
	}

	ttl := time.Duration(h.cfg.TokenTTLHours) * time.Hour
	token, err := jwt.Sign("admin", ttl)
	if err != nil {
		response.InternalError(c, err)
		return
	}

	response.OK(c, gin.H{
		"token":      token,
		"expires_at": time.Now().Add(ttl),
	})
}
