package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/codemode/codemode/engine/core"
	"github.com/codemode/codemode/engine/schedule"
	"github.com/codemode/codemode/engine/template"
	"github.com/codemode/codemode/engine/webhook"
	"github.com/codemode/codemode/pkg/logger"
)

// Server is the HTTP delivery surface: webhook ingestion plus read-only
// catalog and schedule introspection. Workflow management APIs live
// elsewhere.
type Server struct {
	catalog   *template.Catalog
	scheduler *schedule.Scheduler
	webhooks  *webhook.Service
	log       logger.Logger
	addr      string
	engine    *gin.Engine
}

func New(
	addr string,
	catalog *template.Catalog,
	scheduler *schedule.Scheduler,
	webhooks *webhook.Service,
	log logger.Logger,
) *Server {
	gin.SetMode(gin.ReleaseMode)
	s := &Server{
		catalog:   catalog,
		scheduler: scheduler,
		webhooks:  webhooks,
		log:       log,
		addr:      addr,
		engine:    gin.New(),
	}
	s.engine.Use(gin.Recovery())
	s.routes()
	return s
}

func (s *Server) routes() {
	s.engine.POST("/hooks/:id", s.handleWebhook)
	s.engine.GET("/templates", s.listTemplates)
	s.engine.GET("/templates/:id", s.getTemplate)
	s.engine.GET("/schedules", s.listSchedules)
	s.engine.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })
}

func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{Addr: s.addr, Handler: s.engine}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	s.log.Info("server listening", "addr", s.addr)
	select {
	case <-ctx.Done():
		return srv.Shutdown(context.WithoutCancel(ctx))
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) handleWebhook(c *gin.Context) {
	ctx := logger.ContextWithLogger(c.Request.Context(), s.log)
	webhookID := core.ID(c.Param("id"))
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}
	headers := make(map[string]string, len(c.Request.Header))
	for name := range c.Request.Header {
		headers[name] = c.GetHeader(name)
	}
	err = s.webhooks.HandleWebhook(ctx, webhookID, body, headers)
	switch {
	case err == nil:
		c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
	case errors.Is(err, webhook.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown webhook"})
	case errors.Is(err, webhook.ErrInvalidSignature):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "signature verification failed"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func (s *Server) listTemplates(c *gin.Context) {
	ctx := logger.ContextWithLogger(c.Request.Context(), s.log)
	limit, err := intQuery(c, "limit", 50)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
		return
	}
	offset, err := intQuery(c, "offset", 0)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid offset"})
		return
	}
	filters := &template.Filters{
		Category:    template.Category(c.Query("category")),
		TriggerType: template.TriggerType(c.Query("trigger_type")),
		MCPServer:   c.Query("mcp_server"),
		Difficulty:  template.Difficulty(c.Query("difficulty")),
		Search:      c.Query("search"),
	}
	page, err := s.catalog.List(ctx, filters, limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, page)
}

func intQuery(c *gin.Context, name string, fallback int) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return fallback, nil
	}
	return strconv.Atoi(raw)
}

func (s *Server) getTemplate(c *gin.Context) {
	ctx := logger.ContextWithLogger(c.Request.Context(), s.log)
	tpl, err := s.catalog.Get(ctx, c.Param("id"))
	switch {
	case err == nil:
		c.JSON(http.StatusOK, tpl)
	case errors.Is(err, template.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "template not found"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func (s *Server) listSchedules(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"schedules": s.scheduler.GetScheduledWorkflows()})
}
