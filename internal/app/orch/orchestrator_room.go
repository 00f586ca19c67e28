package orch

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Board/internal/core"
	"github.com/dkeye/Board/internal/domain"
	"github.com/dkeye/Board/internal/metrics"
)

// Join checks project access and adds the session to the project's room.
// A denial wraps domain.ErrForbidden; a vanished project wraps
// domain.ErrNotFound. Either way the connection stays usable.
func (o *Orchestrator) Join(ctx context.Context, s *core.Session, project domain.ProjectID) (core.Membership, error) {
	if err := o.authorize(ctx, s.User().ID, project); err != nil {
		log.Info().Err(err).Str("module", "app.orch").Str("sid", string(s.ID())).Str("room", string(project.RoomKey())).Msg("join denied")
		return core.Membership{}, err
	}
	return o.Hub.Join(s, project)
}

func (o *Orchestrator) Leave(s *core.Session, project domain.ProjectID) bool {
	return o.Hub.Leave(s, project)
}

// Snapshot returns the room view for a user who may not be connected.
func (o *Orchestrator) Snapshot(ctx context.Context, user domain.UserID, project domain.ProjectID) (core.Membership, error) {
	if err := o.authorize(ctx, user, project); err != nil {
		return core.Membership{}, err
	}
	return o.Hub.Snapshot(project), nil
}

// Presence re-sends room_state to a session that already joined.
func (o *Orchestrator) Presence(s *core.Session, project domain.ProjectID) (core.Membership, error) {
	return o.Hub.Resync(s, project)
}

func (o *Orchestrator) authorize(ctx context.Context, user domain.UserID, project domain.ProjectID) error {
	if o.Access == nil {
		return nil
	}
	ok, err := o.Access.CanAccessProject(ctx, user, project)
	if err != nil {
		reason := "error"
		if errors.Is(err, domain.ErrNotFound) {
			reason = "not_found"
		}
		metrics.JoinDenied.WithLabelValues(reason).Inc()
		return fmt.Errorf("access check for project %s: %w", project, err)
	}
	if !ok {
		metrics.JoinDenied.WithLabelValues("forbidden").Inc()
		return fmt.Errorf("project %s: %w", project, domain.ErrForbidden)
	}
	return nil
}
