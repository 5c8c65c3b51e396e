// Package http provides the ops HTTP server and its request handlers.
package http

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/requestid"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/metric"

	"github.com/allisson/schoolops/internal/httputil"
	"github.com/allisson/schoolops/internal/metrics"
	"github.com/allisson/schoolops/internal/outbox/domain"
)

// DeadLetterService defines the dead letter operations exposed by the ops API.
type DeadLetterService interface {
	ListDeadLetters(ctx context.Context, offset, limit int) ([]*domain.DeadLetterItem, error)
	Replay(ctx context.Context, deadLetterID uuid.UUID, replayedBy string) error
}

// Server represents the ops HTTP server.
type Server struct {
	db          *sql.DB
	router      *gin.Engine
	server      *http.Server
	logger      *slog.Logger
	deadLetters DeadLetterService
}

// NewServer creates a new ops HTTP server. The router is configured separately
// via SetupRouter.
func NewServer(
	db *sql.DB,
	host string,
	port int,
	logger *slog.Logger,
) *Server {
	return &Server{
		db:     db,
		logger: logger,
		server: &http.Server{
			Addr:         fmt.Sprintf("%s:%d", host, port),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
	}
}

// RouterConfig holds the dependencies and options for the ops router.
type RouterConfig struct {
	DeadLetters      DeadLetterService
	MeterProvider    metric.MeterProvider
	MetricsNamespace string
	CORSEnabled      bool
	CORSAllowOrigins string
}

// SetupRouter builds the gin router with middleware and routes.
func (s *Server) SetupRouter(cfg RouterConfig) {
	s.deadLetters = cfg.DeadLetters

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestid.New(requestid.WithGenerator(func() string {
		return uuid.Must(uuid.NewV7()).String()
	})))
	router.Use(CustomLoggerMiddleware(s.logger))

	if cfg.MeterProvider != nil {
		router.Use(metrics.HTTPMetricsMiddleware(cfg.MeterProvider, cfg.MetricsNamespace))
	}

	if corsMiddleware := createCORSMiddleware(cfg.CORSEnabled, cfg.CORSAllowOrigins, s.logger); corsMiddleware != nil {
		router.Use(corsMiddleware)
	}

	router.GET("/health", s.healthHandler)
	router.GET("/ready", s.readinessHandler)

	v1 := router.Group("/v1")
	{
		v1.GET("/dead-letters", s.listDeadLettersHandler)
		v1.POST("/dead-letters/:id/replay", s.replayDeadLetterHandler)
	}

	s.router = router
}

// Start starts the ops HTTP server.
func (s *Server) Start(ctx context.Context) error {
	s.server.Handler = s.router

	s.logger.Info("starting ops server", slog.String("addr", s.server.Addr))

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start ops server: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the ops HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down ops server")
	return s.server.Shutdown(ctx)
}

// healthHandler reports process liveness.
func (s *Server) healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

// readinessHandler reports whether the server can take traffic. The database
// is the only hard dependency.
func (s *Server) readinessHandler(c *gin.Context) {
	components := gin.H{"database": "ok"}

	if s.db == nil {
		components["database"] = "error"
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready", "components": components})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if err := s.db.PingContext(ctx); err != nil {
		components["database"] = "error"
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready", "components": components})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ready", "components": components})
}

// deadLetterResponse is the wire representation of a dead letter item.
type deadLetterResponse struct {
	ID           uuid.UUID  `json:"id"`
	TenantID     uuid.UUID  `json:"tenant_id"`
	OutboxItemID uuid.UUID  `json:"outbox_item_id"`
	ItemType     string     `json:"item_type"`
	Payload      string     `json:"payload"`
	Reason       string     `json:"reason"`
	FailedAt     time.Time  `json:"failed_at"`
	ReplayedAt   *time.Time `json:"replayed_at,omitempty"`
	ReplayedBy   *string    `json:"replayed_by,omitempty"`
}

func makeDeadLetterResponse(item *domain.DeadLetterItem) deadLetterResponse {
	return deadLetterResponse{
		ID:           item.ID,
		TenantID:     item.TenantID,
		OutboxItemID: item.OutboxItemID,
		ItemType:     item.ItemType,
		Payload:      item.Payload,
		Reason:       item.Reason,
		FailedAt:     item.FailedAt,
		ReplayedAt:   item.ReplayedAt,
		ReplayedBy:   item.ReplayedBy,
	}
}

// listDeadLettersHandler handles GET /v1/dead-letters.
func (s *Server) listDeadLettersHandler(c *gin.Context) {
	offset, limit, err := httputil.ParsePagination(c)
	if err != nil {
		httputil.HandleBadRequestGin(c, err, s.logger)
		return
	}

	items, err := s.deadLetters.ListDeadLetters(c.Request.Context(), offset, limit)
	if err != nil {
		httputil.HandleErrorGin(c, err, s.logger)
		return
	}

	responses := make([]deadLetterResponse, 0, len(items))
	for _, item := range items {
		responses = append(responses, makeDeadLetterResponse(item))
	}

	c.JSON(http.StatusOK, gin.H{
		"dead_letters": responses,
		"offset":       offset,
		"limit":        limit,
	})
}

// replayRequest is the body of POST /v1/dead-letters/:id/replay.
type replayRequest struct {
	ReplayedBy string `json:"replayed_by" binding:"required"`
}

// replayDeadLetterHandler handles POST /v1/dead-letters/:id/replay.
func (s *Server) replayDeadLetterHandler(c *gin.Context) {
	deadLetterID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httputil.HandleBadRequestGin(c, fmt.Errorf("invalid dead letter id: %w", err), s.logger)
		return
	}

	var request replayRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		httputil.HandleBadRequestGin(c, err, s.logger)
		return
	}

	if err := s.deadLetters.Replay(c.Request.Context(), deadLetterID, request.ReplayedBy); err != nil {
		httputil.HandleErrorGin(c, err, s.logger)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "replayed", "id": deadLetterID})
}
