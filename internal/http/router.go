package http

import (
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/github/rollup-and-away/internal/config"
)

func NewRouter(cfg config.Config, log zerolog.Logger, svc any) *gin.Engine {
	if cfg.AppEnv != "dev" { gin.SetMode(gin.ReleaseMode) }
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(func(c *gin.Context) {
		c.Next()
		log.Info().Str("m", c.Request.Method).Str("p", c.FullPath()).Int("s", c.Writer.Status()).Msg("http")
	})

	h := NewHandlers(cfg, log, svc)

	r.GET("/healthz", h.Healthz)
	r.GET("/admin/last-run", h.LastRun)
	r.GET("/admin/memories", h.Memories)
	r.POST("/admin/run", h.RunNow)
	r.GET("/admin/blame", h.Blame)

	return r
}
