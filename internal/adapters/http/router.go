package http

import (
	"context"
	"strings"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/dkeye/Board/internal/adapters/signal"
	"github.com/dkeye/Board/internal/app/orch"
	"github.com/dkeye/Board/internal/config"
)

const (
	sessionName     = "BoardSessions"
	sessionTokenKey = "token"
	ctxTokenKey     = "session_token"
	ctxSourceKey    = "session_token_source"

	sourceCookie = "cookie"
)

// SessionTokenMiddleware resolves the caller's token from, in order, the
// bearer header, the token query parameter and the cookie session.
func SessionTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, source := "", ""
		if h := c.GetHeader("Authorization"); strings.HasPrefix(h, "Bearer ") {
			token, source = strings.TrimSpace(strings.TrimPrefix(h, "Bearer ")), "bearer"
		}
		if token == "" {
			token, source = c.Query("token"), "query"
		}
		if token == "" {
			source = ""
			if v, ok := sessions.Default(c).Get(sessionTokenKey).(string); ok && v != "" {
				token, source = v, sourceCookie
			}
		}
		c.Set(ctxTokenKey, token)
		c.Set(ctxSourceKey, source)
		c.Next()
	}
}

func SetupRouter(ctx context.Context, cfg *config.Config, o *orch.Orchestrator) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	store.Options(sessions.Options{Path: "/", MaxAge: 3600 * 24 * 7, HttpOnly: true, Secure: cfg.Mode == "release"})
	r.Use(sessions.Sessions(sessionName, store))
	r.Use(SessionTokenMiddleware())

	ctrl := signal.NewSignalWSController(o, signal.Options{
		ReadLimit:    cfg.ReadLimit,
		PingPeriod:   cfg.PingPeriod,
		PongWait:     cfg.PongWait,
		WriteWait:    cfg.WriteWait,
		SendBuffer:   cfg.SendBuffer,
		EditingRate:  rate.Limit(cfg.Limits.EditingRate),
		EditingBurst: cfg.Limits.EditingBurst,
	})
	h := &handlers{orch: o, internalToken: cfg.Internal.Token}

	log.Info().Str("module", "adapters.http").Msg("router setup")

	r.GET("/healthz", h.health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	api.GET("/ws", func(c *gin.Context) {
		log.Debug().Str("module", "adapters.http").Str("remote", c.ClientIP()).Msg("ws endpoint hit")
		token := c.GetString(ctxTokenKey)
		// The cookie rides along on cross-site upgrades; only explicit
		// tokens are accepted from a foreign origin.
		if c.GetString(ctxSourceKey) == sourceCookie && !signal.OriginAllowed(c.Request, cfg.AllowedOrigins) {
			log.Warn().Str("module", "adapters.http").Str("origin", c.GetHeader("Origin")).Msg("cookie session refused for cross-origin upgrade")
			token = ""
		}
		ctrl.HandleSignal(ctx, c, token)
	})
	api.POST("/session", h.createSession)
	api.DELETE("/session", h.deleteSession)
	api.GET("/projects/:id/presence", h.presence)

	internal := r.Group("/internal", h.requireInternalToken)
	internal.POST("/projects/:id/changes", h.notifyChange)

	return r
}
