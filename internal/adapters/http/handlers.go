package http

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Board/internal/app/orch"
	"github.com/dkeye/Board/internal/domain"
)

type handlers struct {
	orch          *orch.Orchestrator
	internalToken string
}

// writeError maps the domain taxonomy onto HTTP statuses.
func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	msg := "internal"
	switch {
	case errors.Is(err, domain.ErrAuth):
		status, msg = http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, domain.ErrForbidden):
		status, msg = http.StatusForbidden, "forbidden"
	case errors.Is(err, domain.ErrNotFound):
		status, msg = http.StatusNotFound, "not_found"
	case errors.Is(err, domain.ErrInvalidChange):
		status, msg = http.StatusBadRequest, err.Error()
	}
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Str("module", "adapters.http").Str("path", c.FullPath()).Msg("request failed")
	}
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}

func projectParam(c *gin.Context) (domain.ProjectID, bool) {
	v, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid project id"})
		return 0, false
	}
	return domain.ProjectID(v), true
}

func (h *handlers) health(c *gin.Context) {
	stats := h.orch.Stats()
	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"sessions": stats.Sessions,
		"rooms":    stats.Rooms,
	})
}

// createSession stores a verified token in the cookie session so browser
// clients can open the socket without putting the token in the URL.
func (h *handlers) createSession(c *gin.Context) {
	var req struct {
		Token string `json:"token"`
	}
	if body, err := c.GetRawData(); err == nil && len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "bad_payload"})
			return
		}
	}
	token := req.Token
	if token == "" {
		token = c.GetString(ctxTokenKey)
	}
	user, err := h.orch.ResolveUser(c.Request.Context(), token)
	if err != nil {
		writeError(c, err)
		return
	}
	s := sessions.Default(c)
	s.Set(sessionTokenKey, token)
	if err := s.Save(); err != nil {
		writeError(c, err)
		return
	}
	log.Info().Str("module", "adapters.http").Str("user", user.ID.String()).Msg("session stored")
	c.JSON(http.StatusOK, gin.H{"user": user})
}

func (h *handlers) deleteSession(c *gin.Context) {
	s := sessions.Default(c)
	s.Clear()
	if err := s.Save(); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handlers) presence(c *gin.Context) {
	project, ok := projectParam(c)
	if !ok {
		return
	}
	user, err := h.orch.ResolveUser(c.Request.Context(), c.GetString(ctxTokenKey))
	if err != nil {
		writeError(c, err)
		return
	}
	m, err := h.orch.Snapshot(c.Request.Context(), user.ID, project)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"room":  m.Room,
		"users": m.Users,
		"locks": m.Locks,
	})
}

func (h *handlers) requireInternalToken(c *gin.Context) {
	got := c.GetHeader("X-Internal-Token")
	if h.internalToken == "" || subtle.ConstantTimeCompare([]byte(got), []byte(h.internalToken)) != 1 {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return
	}
	c.Next()
}

// notifyChange is called by the write path after its transaction committed.
func (h *handlers) notifyChange(c *gin.Context) {
	project, ok := projectParam(c)
	if !ok {
		return
	}
	body, err := c.GetRawData()
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "bad_payload"})
		return
	}
	var ev domain.ChangeEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "bad_payload"})
		return
	}
	if err := h.orch.NotifyChange(c.Request.Context(), project, ev); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusAccepted)
}
