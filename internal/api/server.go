package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"pulsehub/internal/config"
	"pulsehub/internal/hub"
	"pulsehub/internal/logger"
	"pulsehub/internal/monitoring"
)

// Server represents the API server
type Server struct {
	config     *config.Config
	router     *gin.Engine
	httpServer *http.Server
	hub        *hub.Hub
	metrics    *monitoring.Metrics
	log        logger.Logger
	handlers   *Handlers
}

// Handlers contains all API handlers
type Handlers struct {
	Snapshot  *SnapshotHandler
	Alert     *AlertHandler
	Analytics *AnalyticsHandler
	Lifecycle *LifecycleHandler
	Stream    *StreamHandler
}

// NewServer creates the API server around a hub
func NewServer(cfg *config.Config, h *hub.Hub, metrics *monitoring.Metrics, log logger.Logger) *Server {
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	if metrics == nil {
		metrics = monitoring.NewMetrics()
	}
	if log == nil {
		log = logger.Nop()
	}

	server := &Server{
		config:  cfg,
		router:  gin.New(),
		hub:     h,
		metrics: metrics,
		log:     log.WithField("component", "api"),
	}

	server.handlers = &Handlers{
		Snapshot:  NewSnapshotHandler(h),
		Alert:     NewAlertHandler(h),
		Analytics: NewAnalyticsHandler(h),
		Lifecycle: NewLifecycleHandler(h),
		Stream:    NewStreamHandler(h, log),
	}

	server.setupRoutes()

	return server
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	s.router.Use(recoveryMiddleware(s.log))
	s.router.Use(requestLogMiddleware(s.log))
	s.router.Use(corsMiddleware(s.config.CORS))
	s.router.Use(rateLimitMiddleware(s.config.RateLimit))
	s.router.Use(s.metrics.MetricsMiddleware())
	s.router.Use(moduleAuthMiddleware(s.config.Auth.JWTSecret))

	if s.config.Monitoring.PrometheusEnabled {
		path := s.config.Monitoring.PrometheusPath
		if path == "" {
			path = "/metrics"
		}
		s.router.GET(path, gin.WrapH(s.metrics.Handler()))
	}

	v1 := s.router.Group("/api/v1")
	{
		v1.GET("/snapshot", s.handlers.Snapshot.GetSnapshot)
		v1.POST("/aggregate", s.handlers.Snapshot.ForceAggregate)
		v1.GET("/stream", s.handlers.Stream.Stream)

		v1.GET("/alerts", s.handlers.Alert.ListAlerts)
		v1.GET("/alerts/history", s.handlers.Alert.AlertHistory)
		v1.POST("/alerts/:id/ack", s.handlers.Alert.Acknowledge)

		v1.GET("/predict", s.handlers.Analytics.Predict)
		v1.GET("/insights", s.handlers.Analytics.Insights)
		v1.POST("/recommendations", s.handlers.Analytics.Recommendations)

		hubGroup := v1.Group("/hub")
		{
			hubGroup.GET("/status", s.handlers.Lifecycle.Status)
			hubGroup.POST("/start", s.handlers.Lifecycle.Start)
			hubGroup.POST("/stop", s.handlers.Lifecycle.Stop)
		}
	}

	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"state":  s.hub.State(),
			"time":   time.Now().UTC(),
		})
	})
}

// Router exposes the configured router, used by tests
func (s *Server) Router() http.Handler {
	return s.router
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port),
		Handler:      s.router,
		ReadTimeout:  s.config.Server.ReadTimeout,
		WriteTimeout: s.config.Server.WriteTimeout,
	}

	s.log.Info("starting API server", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Stop gracefully stops the server
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	s.log.Info("API server stopped")
	return nil
}
