package app

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/querymind/core/internal/middleware"
	"github.com/querymind/core/internal/modules/analytics"
	"github.com/querymind/core/internal/modules/archive"
	"github.com/querymind/core/internal/modules/auth"
	"github.com/querymind/core/internal/modules/cache"
	"github.com/querymind/core/internal/modules/chat"
	"github.com/querymind/core/internal/modules/gateway"
	"github.com/querymind/core/internal/modules/health"
	"github.com/querymind/core/internal/modules/learning"
	"github.com/querymind/core/internal/modules/search"
	pkgredis "github.com/querymind/core/internal/pkg/redis"
	"github.com/querymind/core/internal/pkg/response"
	"github.com/querymind/core/internal/pkg/taskqueue"
	"go.uber.org/zap"
)

const apiPrefix = "/api/v1"

func (a *App) registerRoutes(rc *pkgredis.Client) {
	r := a.router
	db := a.db
	cfg := a.cfg
	authMW := middleware.Auth()

	r.NoRoute(func(c *gin.Context) {
		response.NotFound(c)
	})
	r.NoMethod(func(c *gin.Context) {
		response.MethodNotAllowed(c)
	})

	appInfo := gin.H{
		"name":    cfg.App.Name,
		"version": "1.0.0",
	}

	// Rate limiting and idempotence run on every route (requires Redis).
	r.Use(middleware.RateLimit(rc.Raw(), a.alerts))
	r.Use(middleware.Idempotence(rc.Raw()))

	taskSvc := taskqueue.NewService(rc)
	a.tasks = taskSvc

	// Shared services
	store := cache.NewStore(db, cfg.Cache.ResetHitsOnRegenerate)
	analyticsSvc := analytics.NewService(db)

	var retriever *search.Retriever
	if ret, err := search.NewRetriever(cfg.Retrieval, cfg.AI); err != nil {
		a.logger.Warn("retrieval disabled", zap.Error(err))
	} else {
		retriever = ret
	}

	var arxivClient *search.ArxivClient
	if cfg.Search.Arxiv.Enabled {
		arxivClient = search.NewArxivClient(cfg.Search.Arxiv.MaxResults)
	}
	var hfClient *search.HuggingFaceClient
	if cfg.Search.HuggingFace.Enabled {
		hfClient = search.NewHuggingFaceClient(cfg.Search.HuggingFace.Limit)
	}

	chatSvc := chat.NewService(store, analyticsSvc, retriever, arxivClient, hfClient, cfg, a.logger)

	learningSvc := learning.NewService(store, analyticsSvc, chatSvc, cfg, a.logger)
	learningSvc.SetAlertSink(a.alerts)
	if a.hub != nil {
		learningSvc.SetEventSink(a.hub)
	}
	a.learning = learningSvc

	archiveSvc := archive.NewService(db, &cfg.Archive, a.logger)
	a.archive = archiveSvc

	r.GET("/", func(c *gin.Context) { c.PureJSON(http.StatusOK, appInfo) })

	// Versioned API
	api := r.Group(apiPrefix)
	api.Use(middleware.OptionalAuth())

	api.GET("", func(c *gin.Context) { c.PureJSON(http.StatusOK, appInfo) })
	api.GET("/info", func(c *gin.Context) { c.PureJSON(http.StatusOK, appInfo) })
	api.GET("/ping", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"data": "pong"}) })
	api.GET("/uptime", func(c *gin.Context) {
		uptimeMs := time.Since(processStart).Milliseconds()
		c.JSON(http.StatusOK, gin.H{
			"timestamp": uptimeMs,
			"humanize":  humanizeDuration(time.Duration(uptimeMs) * time.Millisecond),
		})
	})

	auth.NewHandler(&cfg.Auth).RegisterRoutes(api)
	health.NewHandler(db, rc, a.sched).RegisterRoutes(api, authMW)
	chat.NewHandler(chatSvc).RegisterRoutes(api, authMW)
	analytics.NewHandler(analyticsSvc).RegisterRoutes(api, authMW)
	learning.NewHandler(learningSvc, taskSvc, a.logger).RegisterRoutes(api, authMW)
	archive.NewHandler(archiveSvc).RegisterRoutes(api, authMW)

	// WebSocket gateway
	if a.hub != nil {
		gateway.RegisterRoutes(r.Group(""), a.hub)
	}
}
