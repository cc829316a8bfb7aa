// Package api wires the HTTP surface: routes, auth, and rate limiting.
package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pageshot-ai/pageshot/api/handler"
	"github.com/pageshot-ai/pageshot/api/middleware"
	"github.com/pageshot-ai/pageshot/cache"
	"github.com/pageshot-ai/pageshot/config"
	"github.com/pageshot-ai/pageshot/pipeline"
	"github.com/pageshot-ai/pageshot/record"
)

// NewRouter creates a configured Gin engine with all routes and middleware.
//
// Middleware chain:
//
//	Global:  Recovery → Logger
//	API:     Auth (if enabled) → RateLimit
//
// Health and metrics endpoints sit outside auth so monitoring probes always
// work.
func NewRouter(p *pipeline.Pipeline, o *pipeline.Orchestrator, validator *record.Validator, cfg *config.Config, cc *cache.Cache, engineNames []string, startTime time.Time) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.Logger())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/api/v1")
	v1.GET("/health", handler.Health(engineNames, startTime))

	protected := v1.Group("")
	if cfg.Auth.Enabled {
		protected.Use(middleware.Auth(cfg.Auth.APIKeys))
	}
	protected.Use(middleware.RateLimit(cfg.RateLimit))

	protected.POST("/extract", handler.Extract(p, cc))

	protected.POST("/batch", handler.PostBatch(o, cfg))
	protected.GET("/batch/:id", handler.GetBatch())
	protected.DELETE("/batch/:id", handler.CancelBatch())
	protected.GET("/batch/:id/export", handler.ExportBatch(validator))

	return r
}
