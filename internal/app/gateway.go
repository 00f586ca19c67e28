package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Board/internal/core"
	"github.com/dkeye/Board/internal/domain"
	"github.com/dkeye/Board/internal/metrics"
)

// Gateway turns an upgraded connection plus a session token into a bound
// Session. It never joins rooms.
type Gateway struct {
	Verifier core.TokenVerifier
	Profiles core.ProfileResolver
	Registry *Registry
	Hub      *core.Hub
}

// Authenticate verifies token, resolves the profile and binds the session.
// The disconnect callback is registered before returning, so a later
// Registry.Release always cleans the hub. Failures wrap domain.ErrAuth.
func (g *Gateway) Authenticate(ctx context.Context, signal core.SignalConnection, token string, cancel context.CancelFunc) (*core.Session, error) {
	if token == "" {
		metrics.AuthFailures.WithLabelValues("missing").Inc()
		return nil, fmt.Errorf("%w: missing token", domain.ErrAuth)
	}
	uid, err := g.Verifier.VerifyToken(ctx, token)
	if err != nil {
		metrics.AuthFailures.WithLabelValues("token").Inc()
		if errors.Is(err, domain.ErrAuth) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrAuth, err)
	}
	user, err := g.resolveUser(ctx, uid)
	if err != nil {
		metrics.AuthFailures.WithLabelValues("unknown_user").Inc()
		return nil, err
	}

	sess := core.NewSession(core.SessionID(uuid.NewString()), user, signal)
	g.Registry.Bind(sess, cancel, func() {
		g.Hub.Disconnect(sess)
		metrics.Connections.Dec()
	})
	metrics.Connections.Inc()
	log.Info().Str("module", "app.gateway").Str("sid", string(sess.ID())).Str("user", uid.String()).Str("name", user.Name).Msg("session authenticated")
	return sess, nil
}

// ResolveUser is the HTTP-side identity lookup for a verified token.
func (g *Gateway) ResolveUser(ctx context.Context, token string) (domain.User, error) {
	if token == "" {
		return domain.User{}, fmt.Errorf("%w: missing token", domain.ErrAuth)
	}
	uid, err := g.Verifier.VerifyToken(ctx, token)
	if err != nil {
		if errors.Is(err, domain.ErrAuth) {
			return domain.User{}, err
		}
		return domain.User{}, fmt.Errorf("%w: %v", domain.ErrAuth, err)
	}
	return g.resolveUser(ctx, uid)
}

// resolveUser falls back to a generated name when the identity service is
// unavailable; only an unknown user is fatal.
func (g *Gateway) resolveUser(ctx context.Context, uid domain.UserID) (domain.User, error) {
	if g.Profiles == nil {
		return domain.NewUser(uid, domain.Profile{}), nil
	}
	p, err := g.Profiles.UserProfile(ctx, uid)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrNotFound):
		return domain.User{}, fmt.Errorf("%w: user %s: %v", domain.ErrAuth, uid, err)
	default:
		log.Warn().Err(err).Str("module", "app.gateway").Str("user", uid.String()).Msg("profile lookup failed, using fallback name")
		p = domain.Profile{}
	}
	return domain.NewUser(uid, p), nil
}
