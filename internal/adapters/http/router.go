package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/avdeyev/gamecast/internal/adapters/signal"
	"github.com/avdeyev/gamecast/internal/app/orch"
	"github.com/avdeyev/gamecast/internal/config"
	"github.com/avdeyev/gamecast/internal/core"
	"github.com/avdeyev/gamecast/internal/domain"
)

// ClientTokenMiddleware gives every browser/phone a stable identity
// cookie so reconnects are attributable across sessions.
func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie("ct")
		if token == "" {
			token = uuid.NewString()
			c.SetCookie("ct", token, 3600*24*7, "/", "", false, true)
		}
		c.Set("client_token", token)
		c.Next()
	}
}

// SetupRouter wires HTTP routes (REST + WS) with the orchestrator and
// the signaling controller.
func SetupRouter(ctx context.Context, cfg *config.Config, o *orch.Orchestrator, ctl *signal.Controller) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("GamecastSessions", store))
	r.Use(ClientTokenMiddleware())

	r.Static("/static", cfg.StaticPath)
	r.GET("/", func(c *gin.Context) {
		c.File(cfg.StaticPath + "/index.html")
	})

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Msg("router setup")

	api := r.Group("/api")

	// GET /api/config — connection settings clients need before they
	// open a peer connection
	api.GET("/config", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"stun_servers": cfg.STUNServers})
	})

	// POST /api/sessions — start a session for a game
	api.POST("/sessions", func(c *gin.Context) {
		var req struct {
			Game     string `json:"game"`
			External bool   `json:"external"`
		}
		if err := c.BindJSON(&req); err != nil || req.Game == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "missing or invalid game"})
			return
		}
		subject := domain.Subject{Game: domain.GameID(req.Game), ExternalProducer: req.External}
		s, err := o.CreateSession(c.Request.Context(), subject)
		if errors.Is(err, core.ErrLaunchFailed) {
			c.JSON(http.StatusBadGateway, gin.H{"error": "launch_failed"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "create_failed"})
			return
		}
		c.JSON(http.StatusCreated, gin.H{
			"id":      s.ID,
			"subject": s.Subject,
		})
	})

	// GET /api/sessions — list active sessions
	api.GET("/sessions", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"sessions": o.Registry.List()})
	})

	// GET /api/sessions/:id — session state for polling viewers
	api.GET("/sessions/:id", func(c *gin.Context) {
		info, err := o.Registry.Snapshot(domain.SessionID(c.Param("id")))
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
			return
		}
		c.JSON(http.StatusOK, info)
	})

	// DELETE /api/sessions/:id — stop a session; safe to repeat
	api.DELETE("/sessions/:id", func(c *gin.Context) {
		o.StopSession(domain.SessionID(c.Param("id")))
		c.Status(http.StatusNoContent)
	})

	ws := r.Group("/ws")
	ws.GET("/producer", func(c *gin.Context) {
		ctl.HandleProducer(ctx, c)
	})
	ws.GET("/viewer", func(c *gin.Context) {
		log.Info().Str("module", "adapters.http").Str("ct", c.GetString("client_token")).Msg("viewer ws endpoint hit")
		ctl.HandleViewer(ctx, c)
	})

	return r
}
