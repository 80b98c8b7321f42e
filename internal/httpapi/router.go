// Package httpapi exposes the job board over HTTP with gin.
package httpapi

import (
	"context"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/spigell/jobboard/internal/evaluation"
	"github.com/spigell/jobboard/internal/intake"
	"github.com/spigell/jobboard/internal/store"
)

// Reevaluator re-dispatches applications stuck before a decision.
type Reevaluator interface {
	Reevaluate(ctx context.Context, applicationID int64, d evaluation.Dispatcher) error
}

// Prober checks that the AI model answers.
type Prober interface {
	Ping(ctx context.Context) (string, error)
	Model() string
}

type Deps struct {
	Jobs         store.Jobs
	Applications store.Applications
	Intake       *intake.Intake
	Dispatcher   evaluation.Dispatcher
	Reevaluator  Reevaluator
	// Prober is nil when no AI credential is configured.
	Prober      Prober
	Threshold   int
	FrontendURL string
	Logger      *zap.Logger
}

func NewRouter(deps Deps) *gin.Engine {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	r := gin.New()
	r.Use(corsMiddleware(deps.FrontendURL))
	r.Use(gin.Recovery())
	r.Use(requestID())
	r.Use(accessLog(deps.Logger))
	r.Use(errorHandler(deps.Logger))

	h := &handler{deps: deps, logger: deps.Logger}

	r.GET("/health", h.health)
	if deps.Intake != nil {
		r.Static("/uploads", deps.Intake.Dir())
	}

	api := r.Group("/api")
	api.GET("/test/ai", h.testAI)

	jobs := api.Group("/jobs")
	{
		jobs.GET("", h.listJobs)
		jobs.GET("/:id", h.getJob)
	}

	applications := api.Group("/applications")
	{
		applications.POST("", h.submitApplication)
		applications.GET("", h.myApplications)
		applications.GET("/:id", h.getApplication)
	}

	hr := api.Group("/hr")
	{
		hr.POST("/jobs", h.createJob)
		hr.GET("/applications", h.listApplications)
		hr.GET("/applications/:id", h.getApplication)
		hr.PUT("/applications/:id/status", h.updateStatus)
		hr.POST("/applications/:id/reevaluate", h.reevaluate)
		hr.GET("/stats", h.stats)
	}

	r.NoRoute(func(c *gin.Context) {
		c.Error(notFound("Route not found"))
	})

	return r
}

type handler struct {
	deps   Deps
	logger *zap.Logger
}
