package http

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/github/rollup-and-away/internal/config"
	"github.com/github/rollup-and-away/internal/issue"
	"github.com/github/rollup-and-away/internal/repo"
)

type service interface {
	RunRollup(ctx context.Context) error
	Blame(ctx context.Context) (*issue.Fragment, error)
	LastRuns(ctx context.Context) ([]repo.Run, error)
	Memories(ctx context.Context, limit int) ([]repo.Memory, error)
}

type Handlers struct {
	cfg config.Config
	log zerolog.Logger
	svc service
}

func NewHandlers(cfg config.Config, log zerolog.Logger, svc any) *Handlers {
	return &Handlers{cfg: cfg, log: log, svc: svc.(service)}
}

func (h *Handlers) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *Handlers) LastRun(c *gin.Context) {
	runs, err := h.svc.LastRuns(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

func (h *Handlers) RunNow(c *gin.Context) {
	// Detached from the request context so a closed connection cannot
	// cancel the rollup midway.
	go func() {
		if err := h.svc.RunRollup(context.Background()); err != nil {
			h.log.Error().Err(err).Msg("on-demand rollup failed")
		}
	}()
	c.JSON(http.StatusAccepted, gin.H{"status": "queued"})
}

func (h *Handlers) Memories(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	ms, err := h.svc.Memories(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"memories": ms})
}

func (h *Handlers) Blame(c *gin.Context) {
	frag, err := h.svc.Blame(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"markdown": frag.Markdown, "sources": frag.Sources})
}
