package core

import (
	"context"

	"github.com/dkeye/Board/internal/domain"
)

// TokenVerifier is the session-issuing authority.
// Invalid or expired tokens return an error wrapping domain.ErrAuth.
type TokenVerifier interface {
	VerifyToken(ctx context.Context, token string) (domain.UserID, error)
}

// ProfileResolver is the identity collaborator.
// Unknown users return an error wrapping domain.ErrNotFound.
type ProfileResolver interface {
	UserProfile(ctx context.Context, id domain.UserID) (domain.Profile, error)
}

// AccessChecker is the authorization collaborator.
// A vanished project returns an error wrapping domain.ErrNotFound.
type AccessChecker interface {
	CanAccessProject(ctx context.Context, user domain.UserID, project domain.ProjectID) (bool, error)
}

// RoomInfo is a read-only summary for health and admin endpoints.
type RoomInfo struct {
	Room        domain.RoomKey `json:"room"`
	MemberCount int            `json:"member_count"`
	LockCount   int            `json:"lock_count"`
}
