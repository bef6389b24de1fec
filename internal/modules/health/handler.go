package health

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/querymind/core/internal/pkg/cron"
	redisc "github.com/querymind/core/internal/pkg/redis"
	"github.com/querymind/core/internal/pkg/response"
	"gorm.io/gorm"
)

type Handler struct {
	db    *gorm.DB
	rc    *redisc.Client
	sched *cron.Scheduler
}

func NewHandler(db *gorm.DB, rc *redisc.Client, sched *cron.Scheduler) *Handler {
	return &Handler{db: db, rc: rc, sched: sched}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW gin.HandlerFunc) {
	g := rg.Group("/health")
	{
		g.GET("", h.health)

		g.GET("/cron", authMW, h.listJobs)
		g.POST("/cron/run/:name", authMW, h.runJob)
		g.GET("/cron/task/:name", authMW, h.jobTask)
	}
}

func (h *Handler) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	dbStatus := "up"
	if sqlDB, err := h.db.DB(); err != nil || sqlDB.PingContext(ctx) != nil {
		dbStatus = "down"
	}

	redisStatus := "up"
	if err := h.rc.Raw().Ping(ctx).Err(); err != nil {
		redisStatus = "down"
	}

	status := "ok"
	if dbStatus == "down" || redisStatus == "down" {
		status = "degraded"
	}

	response.OK(c, gin.H{
		"status": status,
		"db":     dbStatus,
		"redis":  redisStatus,
		"time":   time.Now(),
	})
}

func (h *Handler) listJobs(c *gin.Context) {
	response.OK(c, h.sched.List())
}

func (h *Handler) runJob(c *gin.Context) {
	name := c.Param("name")
	// detached from the request context: the job outlives the request
	if err := h.sched.Run(context.Background(), name); err != nil {
		response.NotFoundMsg(c, err.Error())
		return
	}
	response.OK(c, gin.H{"name": name, "status": "triggered"})
}

func (h *Handler) jobTask(c *gin.Context) {
	res, err := h.sched.GetTask(c.Param("name"))
	if err != nil {
		response.NotFoundMsg(c, err.Error())
		return
	}
	response.OK(c, res)
}
