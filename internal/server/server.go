package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"university-assistant/internal/assistant/pipeline"
	"university-assistant/internal/common/logger"
	"university-assistant/internal/common/observability"
)

type asker interface {
	Ask(ctx context.Context, clientIP, query string) (*pipeline.Envelope, error)
}

type pinger interface {
	Ping(ctx context.Context) error
}

// Server exposes the assistant over HTTP.
type Server struct {
	router *gin.Engine
	asker  asker
	pg     pinger
	rdb    pinger
	obs    *observability.Observability
	logger logger.Logger
}

func New(a asker, pg, rdb pinger, obs *observability.Observability, log logger.Logger) *Server {
	s := &Server{
		asker: a,
		pg:    pg,
		rdb:   rdb,
		obs:   obs,
		logger: log.With(map[string]interface{}{
			"component": "http-server",
		}),
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), corsMiddleware())
	router.POST("/assistant", s.handleAssistant)
	router.GET("/healthz", s.handleHealth)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	s.router = router
	return s
}

// Router returns the configured handler, for mounting or testing.
func (s *Server) Router() http.Handler {
	return s.router
}

type askRequest struct {
	Query string `json:"query"`
}

func (s *Server) handleAssistant(c *gin.Context) {
	start := time.Now()

	var req askRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Query parameter is required"})
		return
	}
	query := strings.TrimSpace(req.Query)
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Query parameter is required"})
		return
	}

	ip := clientIP(c)
	envelope, err := s.asker.Ask(c.Request.Context(), ip, query)
	if err != nil {
		s.logger.WithError(err).Error("query resolution failed", map[string]interface{}{
			"client_ip": ip,
		})
		s.record(c, "error", start)
		c.JSON(http.StatusInternalServerError, pipeline.ErrorEnvelope(query))
		return
	}

	s.record(c, "ok", start)
	c.JSON(http.StatusOK, envelope)
}

func (s *Server) handleHealth(c *gin.Context) {
	ctx := c.Request.Context()
	status := gin.H{"status": "ok"}
	code := http.StatusOK

	if err := s.pg.Ping(ctx); err != nil {
		status["status"] = "degraded"
		status["postgres"] = err.Error()
		code = http.StatusServiceUnavailable
	}
	if err := s.rdb.Ping(ctx); err != nil {
		status["status"] = "degraded"
		status["redis"] = err.Error()
		code = http.StatusServiceUnavailable
	}

	c.JSON(code, status)
}

func (s *Server) record(c *gin.Context, status string, start time.Time) {
	if s.obs == nil {
		return
	}
	ctx := c.Request.Context()
	s.obs.RecordRequest(ctx, status)
	s.obs.RecordDuration(ctx, time.Since(start), status)
}

// clientIP prefers the first X-Forwarded-For hop so contexts stay stable
// behind a proxy.
func clientIP(c *gin.Context) string {
	if xff := c.GetHeader("X-Forwarded-For"); xff != "" {
		return strings.TrimSpace(strings.Split(xff, ",")[0])
	}
	return c.ClientIP()
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
