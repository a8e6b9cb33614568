// Package httpapi is the PSP Engine's HTTP surface: patient assessment,
// active alert queries, audit provenance lookups, and a websocket live
// alert feed, built on gin.
package httpapi

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/psp-engine/psp/internal/domain"
	"github.com/psp-engine/psp/internal/engine"
	"github.com/psp-engine/psp/internal/platform/cache"
)

// Server is the PSP Engine's HTTP and websocket surface.
type Server struct {
	cfg    domain.ServerConfig
	log    *logrus.Logger
	engine *engine.Engine
	cache  *cache.SessionResultCache

	router   *gin.Engine
	server   *http.Server
	hub      *alertHub
	upgrader websocket.Upgrader
}

// NewServer wires engine, cache, and logger into a gin router and
// registers the engine's alert handler with the websocket hub so every
// alert the pipeline generates reaches connected feed subscribers.
func NewServer(cfg domain.ServerConfig, eng *engine.Engine, resultCache *cache.SessionResultCache, log *logrus.Logger) *Server {
	if log == nil {
		log = logrus.New()
	}
	if log.Level == logrus.DebugLevel {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		cfg:    cfg,
		log:    log,
		engine: eng,
		cache:  resultCache,
		hub:    newAlertHub(context.Background()),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}

	if eng != nil && eng.AlertEngineHandle() != nil {
		eng.AlertEngineHandle().RegisterHandler(s.hub.onAlert)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(securityHeaders())
	router.Use(requestTimeout(45 * time.Second))
	router.Use(s.corsMiddleware())
	router.Use(s.requestIDMiddleware())
	router.Use(s.loggingMiddleware())
	s.router = router
	s.setupRoutes()

	return s
}

// Start runs the hub and HTTP server, blocking until ctx is cancelled, then
// gracefully shuts the server down.
func (s *Server) Start(ctx context.Context) error {
	go s.hub.run()

	addr := s.cfg.Host + ":" + portString(s.cfg.Port)
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  nonZero(s.cfg.ReadTimeout, 30*time.Second),
		WriteTimeout: nonZero(s.cfg.WriteTimeout, 30*time.Second),
		IdleTimeout:  nonZero(s.cfg.IdleTimeout, 120*time.Second),
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.WithField("addr", addr).Info("httpapi server listening")
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.hub.stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return s.server.Shutdown(shutdownCtx)
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)

	v1 := s.router.Group("/api/v1")
	{
		v1.POST("/patients/:id/assess", s.handleAssessPatient)
		v1.GET("/alerts", s.handleListAlerts)
		v1.POST("/alerts/:id/acknowledge", s.handleAcknowledgeAlert)
		v1.POST("/alerts/:id/resolve", s.handleResolveAlert)
		v1.GET("/audit/:session", s.handleGetAuditSession)
		v1.GET("/audit/:session/provenance", s.handleGetProvenance)
		v1.GET("/alerts/stream", s.handleAlertStream)
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	status := "ok"
	if s.engine == nil || !s.engine.IsInitialized() {
		status = "not_initialized"
	}
	c.JSON(http.StatusOK, gin.H{
		"status":            status,
		"alert_feed_clients": s.hub.clientCount(),
		"timestamp":         time.Now().UTC(),
	})
}

func (s *Server) corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// requestIDMiddleware assigns every request a uuid-based request id,
// honoring one supplied by the caller.
func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header("X-Request-ID", id)
		c.Next()
	}
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.WithFields(logrus.Fields{
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"status":     c.Writer.Status(),
			"duration_ms": time.Since(start).Milliseconds(),
			"request_id": requestID(c),
		}).Info("request handled")
	}
}

func requestID(c *gin.Context) string {
	if v, ok := c.Get("request_id"); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func nonZero(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}

func portString(port int) string {
	if port <= 0 {
		port = 8080
	}
	return strconv.Itoa(port)
}
