package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/querymind/core/internal/config"
	"github.com/querymind/core/internal/database"
	"github.com/querymind/core/internal/middleware"
	"github.com/querymind/core/internal/modules/archive"
	"github.com/querymind/core/internal/modules/gateway"
	"github.com/querymind/core/internal/modules/learning"
	"github.com/querymind/core/internal/pkg/alert"
	pkgcron "github.com/querymind/core/internal/pkg/cron"
	"github.com/querymind/core/internal/pkg/jwt"
	pkgredis "github.com/querymind/core/internal/pkg/redis"
	"github.com/querymind/core/internal/pkg/taskqueue"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// App holds all application dependencies.
type App struct {
	cfg    *config.AppConfig
	router *gin.Engine
	db     *gorm.DB
	hub    *gateway.Hub
	alerts *alert.Service
	logger *zap.Logger
	cancel context.CancelFunc
	sched  *pkgcron.Scheduler

	tasks    *taskqueue.Service
	learning *learning.Service
	archive  *archive.Service
}

// New initializes the application: config → DB → Redis → routes.
func New(logger *zap.Logger, cfg *config.AppConfig) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	applyRuntimeSettings(cfg)

	db, err := database.Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}

	rc, err := pkgredis.Connect(cfg.Redis.URL)
	if err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}

	if cfg.IsDev() {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.HandleMethodNotAllowed = true
	router.Use(gin.Recovery())
	router.Use(middleware.Logger(logger))

	corsConfig := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
	}
	if len(cfg.CORS.Origins) > 0 && !cfg.IsDev() {
		patterns := cfg.CORS.Origins
		corsConfig.AllowOriginFunc = func(origin string) bool {
			host := extractOriginHost(origin)
			for _, pattern := range patterns {
				if matchOriginPattern(pattern, host) {
					return true
				}
			}
			return false
		}
	} else {
		corsConfig.AllowOriginFunc = func(origin string) bool { return true }
	}
	router.Use(cors.New(corsConfig))

	alerts := alert.New(cfg.Gateway.AlertWebhookURL, cfg.App.Name)

	ctx, cancel := context.WithCancel(context.Background())

	var hub *gateway.Hub
	if cfg.Gateway.Enabled {
		hub = gateway.NewHub(rc, logger, func(token string) bool {
			_, err := jwt.Parse(token)
			return err == nil
		})
		go hub.Run(ctx)
	}

	sched := pkgcron.New()

	app := &App{cfg: cfg, router: router, db: db, hub: hub, alerts: alerts, logger: logger, cancel: cancel, sched: sched}
	app.registerRoutes(rc)
	app.registerCronJobs()
	go sched.Start(ctx)

	return app, nil
}

// Addr returns the listen address.
func (a *App) Addr() string { return fmt.Sprintf(":%d", a.cfg.App.Port) }

// Router returns the HTTP handler.
func (a *App) Router() http.Handler { return a.router }

// Shutdown cleans up background goroutines.
func (a *App) Shutdown() { a.cancel() }

var processStart = time.Now()
