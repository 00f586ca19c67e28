package orch

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Board/internal/app"
	"github.com/dkeye/Board/internal/core"
	"github.com/dkeye/Board/internal/domain"
)

// Orchestrator is the single entry point the transport adapters talk to.
type Orchestrator struct {
	Gateway  *app.Gateway
	Registry *app.Registry
	Hub      *core.Hub
	Access   core.AccessChecker
	Relay    *app.Relay
}

// Connect authenticates and binds a new session. cancel must stop the
// connection's read loop.
func (o *Orchestrator) Connect(ctx context.Context, signal core.SignalConnection, token string, cancel context.CancelFunc) (*core.Session, error) {
	return o.Gateway.Authenticate(ctx, signal, token, cancel)
}

// Disconnect runs the full teardown for sid exactly once: every room is
// left and every lock released before it returns.
func (o *Orchestrator) Disconnect(sid core.SessionID) {
	if o.Registry.Release(sid) {
		log.Info().Str("module", "app.orch").Str("sid", string(sid)).Msg("disconnected")
	}
}

// ResolveUser verifies an HTTP-side token.
func (o *Orchestrator) ResolveUser(ctx context.Context, token string) (domain.User, error) {
	return o.Gateway.ResolveUser(ctx, token)
}

// NotifyChange is the internal write path into the relay.
func (o *Orchestrator) NotifyChange(ctx context.Context, project domain.ProjectID, ev domain.ChangeEvent) error {
	if o.Relay == nil {
		_, err := o.Hub.Publish(project, ev)
		return err
	}
	return o.Relay.NotifyChange(ctx, project, ev)
}

// Stats is the health summary.
type Stats struct {
	Sessions int             `json:"sessions"`
	Rooms    []core.RoomInfo `json:"rooms"`
}

func (o *Orchestrator) Stats() Stats {
	return Stats{Sessions: o.Registry.Count(), Rooms: o.Hub.Rooms()}
}
