package learning

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/querymind/core/internal/pkg/response"
	"github.com/querymind/core/internal/pkg/taskqueue"
	"go.uber.org/zap"
)

type Handler struct {
	svc    *Service
	tasks  *taskqueue.Service
	logger *zap.Logger
}

func NewHandler(svc *Service, tasks *taskqueue.Service, logger *zap.Logger) *Handler {
	return &Handler{svc: svc, tasks: tasks, logger: logger.Named("LearningHandler")}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW gin.HandlerFunc) {
	g := rg.Group("/learning")
	{
		g.GET("/stats", h.stats)
		g.GET("/status", h.status)

		g.POST("/run", authMW, h.run)
		g.POST("/pre-warm", authMW, h.preWarm)
		g.POST("/improve", authMW, h.improve)
		g.POST("/cleanup", authMW, h.cleanup)
		g.POST("/extend-ttl", authMW, h.extendTTL)

		g.GET("/tasks", authMW, h.listTasks)
		g.GET("/tasks/:taskId", authMW, h.getTask)
	}
}

func (h *Handler) stats(c *gin.Context) {
	stats, err := h.svc.CurrentStats()
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.OK(c, stats)
}

func (h *Handler) status(c *gin.Context) {
	response.OK(c, h.svc.CurrentStatus())
}

const taskTypeLearningCycle = "learning_cycle"

// run kicks off a full cycle in the background and records it as a task. A
// concurrent request is a soft conflict: 200 with already_running, never an
// error, so dashboards can poll-and-trigger without special casing. The
// single-flight slot is reserved before responding, so two rapid triggers
// cannot both report a started cycle.
func (h *Handler) run(c *gin.Context) {
	if !h.svc.state.tryStart() {
		response.OK(c, gin.H{
			"task_id": "",
			"status":  "already_running",
			"message": "a learning cycle is already in progress",
		})
		return
	}

	task, err := h.tasks.Enqueue(c.Request.Context(), taskTypeLearningCycle, nil, taskTypeLearningCycle, "")
	if err != nil {
		h.svc.state.abandon()
		response.InternalError(c, err)
		return
	}

	go func() {
		ctx := context.Background()
		_ = h.tasks.UpdateStatus(ctx, task.ID, taskqueue.TaskRunning, nil, "")

		res := h.svc.runReserved(ctx)
		_ = h.tasks.UpdateStatus(ctx, task.ID, taskqueue.TaskCompleted, res, res.Error)
	}()

	response.OK(c, gin.H{
		"task_id": task.ID,
		"status":  string(taskqueue.TaskPending),
	})
}

type preWarmRequest struct {
	Days     *int `json:"days"`
	MinCount *int `json:"min_count"`
	Limit    *int `json:"limit"`
}

func (h *Handler) preWarm(c *gin.Context) {
	var req preWarmRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, "invalid request body")
			return
		}
	}

	pw := h.svc.cfg.Learning.PreWarm
	days, minCount, limit := pw.Days, pw.MinCount, pw.Limit
	if req.Days != nil {
		days = *req.Days
	}
	if req.MinCount != nil {
		minCount = *req.MinCount
	}
	if req.Limit != nil {
		limit = *req.Limit
	}

	res, err := h.svc.PreWarm(c.Request.Context(), days, minCount, limit)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.OK(c, res)
}

type improveRequest struct {
	MinNegative *int `json:"min_negative"`
}

func (h *Handler) improve(c *gin.Context) {
	var req improveRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, "invalid request body")
			return
		}
	}

	minNegative := h.svc.cfg.Learning.Improve.MinNegative
	if req.MinNegative != nil {
		minNegative = *req.MinNegative
	}

	res, err := h.svc.Improve(c.Request.Context(), minNegative)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.OK(c, res)
}

type cleanupRequest struct {
	MaxAgeDays  *int `json:"max_age_days"`
	MinHitCount *int `json:"min_hit_count"`
}

func (h *Handler) cleanup(c *gin.Context) {
	var req cleanupRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, "invalid request body")
			return
		}
	}

	cl := h.svc.cfg.Learning.Cleanup
	maxAgeDays, minHitCount := cl.MaxAgeDays, cl.MinHitCount
	if req.MaxAgeDays != nil {
		maxAgeDays = *req.MaxAgeDays
	}
	if req.MinHitCount != nil {
		minHitCount = *req.MinHitCount
	}

	res, err := h.svc.Cleanup(maxAgeDays, minHitCount)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.OK(c, res)
}

func (h *Handler) extendTTL(c *gin.Context) {
	res, err := h.svc.ExtendQualityTTL()
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.OK(c, res)
}

func (h *Handler) listTasks(c *gin.Context) {
	page, size := 1, 20
	if v, err := parsePositive(c.Query("page")); err == nil && v > 0 {
		page = v
	}
	if v, err := parsePositive(c.Query("size")); err == nil && v > 0 && v <= 100 {
		size = v
	}

	var status *taskqueue.TaskStatus
	if raw := c.Query("status"); raw != "" {
		st := taskqueue.TaskStatus(raw)
		status = &st
	}
	taskType := taskTypeLearningCycle

	tasks, total, err := h.tasks.List(c.Request.Context(), page, size, &taskType, status)
	if err != nil {
		response.InternalError(c, err)
		return
	}

	totalPage := int((total + int64(size) - 1) / int64(size))
	response.Paged(c, tasks, response.Pagination{
		Total:       total,
		CurrentPage: page,
		TotalPage:   totalPage,
		Size:        size,
		HasNextPage: page < totalPage,
	})
}

func (h *Handler) getTask(c *gin.Context) {
	task, err := h.tasks.GetByID(c.Request.Context(), c.Param("taskId"))
	if err != nil {
		response.InternalError(c, err)
		return
	}
	if task == nil {
		response.NotFoundMsg(c, "task not found")
		return
	}
	c.JSON(http.StatusOK, task)
}

func parsePositive(raw string) (int, error) {
	return strconv.Atoi(raw)
}
