package api

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/CytrexSGR/newsbrief/internal/config"
	"github.com/CytrexSGR/newsbrief/internal/database"
	"github.com/CytrexSGR/newsbrief/internal/dispatch"
	"github.com/CytrexSGR/newsbrief/internal/logger"
	"github.com/CytrexSGR/newsbrief/internal/metrics"
	"github.com/CytrexSGR/newsbrief/internal/selection"
)

const (
	healthCheckTimeout   = 2 * time.Second
	healthStatusHealthy  = "healthy"
	healthStatusDegraded = "degraded"
	serviceName          = "newsbrief"
	serviceVersion       = "1.0.0"

	defaultListLimit = 50
)

// ScheduleValidator rejects malformed cron expressions before they are
// stored on a template.
type ScheduleValidator interface {
	ValidateSpec(spec string) error
}

// Deps bundles everything the HTTP layer needs.
type Deps struct {
	DB         *sqlx.DB
	Redis      *redis.Client
	Templates  *database.TemplateRepository
	Channels   *database.ChannelRepository
	Content    *database.ContentRepository
	Jobs       *database.JobRepository
	Deliveries *database.DeliveryRepository
	Evaluator  *selection.Evaluator
	Engine     *dispatch.Engine
	Tracker    *dispatch.Tracker
	Schedules  ScheduleValidator
	Metrics    *metrics.Metrics
	Registry   *prometheus.Registry
	Config     *config.Config
	Logger     logger.Logger
}

// Router holds the API dependencies
type Router struct {
	deps   Deps
	engine *gin.Engine
}

// NewRouter creates the router and registers all routes.
func NewRouter(deps Deps) *Router {
	gin.SetMode(ginMode(deps.Config.Debug))

	r := &Router{deps: deps}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(requestIDMiddleware())
	engine.Use(loggingMiddleware(deps.Logger))
	engine.Use(corsMiddleware(deps.Config.Server.CORSOrigins))

	engine.GET("/health", r.healthCheck)
	if deps.Registry != nil {
		engine.GET("/metrics", gin.WrapH(
			promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{})))
	}

	r.setupServiceRoutes(engine)
	r.engine = engine
	return r
}

// Engine exposes the underlying gin engine for the HTTP server and tests.
func (r *Router) Engine() *gin.Engine {
	return r.engine
}

func (r *Router) setupServiceRoutes(engine *gin.Engine) {
	v1 := engine.Group("/api/v1")

	templates := v1.Group("/templates")
	templates.GET("", r.listTemplates)
	templates.POST("", r.createTemplate)
	templates.GET("/:id", r.getTemplate)
	templates.PUT("/:id", r.updateTemplate)
	templates.DELETE("/:id", r.deleteTemplate)
	templates.POST("/:id/preview", r.previewTemplate)
	templates.POST("/:id/generate", r.triggerGeneration)

	channels := v1.Group("/channels")
	channels.GET("", r.listChannels)
	channels.POST("", r.createChannel)
	channels.GET("/:id", r.getChannel)
	channels.PUT("/:id", r.updateChannel)
	channels.DELETE("/:id", r.deleteChannel)

	content := v1.Group("/content")
	content.GET("", r.listContent)
	content.GET("/:id", r.getContent)
	content.POST("/:id/dispatch", r.dispatchContent)
	content.PUT("/:id/status", r.updateContentStatus)

	jobs := v1.Group("/jobs")
	jobs.GET("", r.listJobs)
	jobs.GET("/:id", r.getJob)
	jobs.POST("/:id/cancel", r.cancelJob)

	deliveries := v1.Group("/deliveries")
	deliveries.GET("", r.listDeliveries)
	deliveries.GET("/:id", r.getDelivery)
	deliveries.POST("/:id/opens", r.recordOpen)
	deliveries.POST("/:id/clicks", r.recordClick)
}

// healthCheck reports service status with database and Redis connectivity.
func (r *Router) healthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
	defer cancel()

	health := gin.H{
		"status":  healthStatusHealthy,
		"service": serviceName,
		"version": serviceVersion,
	}

	dbConnected := true
	if err := r.deps.DB.PingContext(ctx); err != nil {
		dbConnected = false
		health["status"] = healthStatusDegraded
	}
	health["database"] = gin.H{"connected": dbConnected}

	redisConnected := false
	if r.deps.Redis != nil {
		redisConnected = r.deps.Redis.Ping(ctx).Err() == nil
	}
	if !redisConnected {
		health["status"] = healthStatusDegraded
	}
	health["redis"] = gin.H{"connected": redisConnected}

	c.JSON(200, health)
}
