// Package domain contains entity without logic, just meta-data
package domain

import (
	"strconv"
	"strings"
)

const (
	MaxUsernameLen = 64
	MaxAvatarLen   = 512
)

type UserID int64

func (id UserID) String() string { return strconv.FormatInt(int64(id), 10) }

// ParseUserID accepts the decimal form produced by UserID.String.
func ParseUserID(s string) (UserID, error) {
	v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, err
	}
	return UserID(v), nil
}

// Profile is what the identity collaborator knows about a user.
type Profile struct {
	Name   string `json:"name"`
	Avatar string `json:"avatar,omitempty"`
}

// User is the identity bound to one live connection.
type User struct {
	ID     UserID `json:"id"`
	Name   string `json:"name"`
	Avatar string `json:"avatar,omitempty"`
	Color  string `json:"color"`
}

// NewUser derives the color from the id, so the same user always renders
// identically.
func NewUser(id UserID, p Profile) User {
	name := strings.TrimSpace(p.Name)
	if name == "" {
		name = "User " + id.String()
	}
	if len(name) > MaxUsernameLen {
		name = name[:MaxUsernameLen]
	}
	avatar := p.Avatar
	if len(avatar) > MaxAvatarLen {
		avatar = ""
	}
	return User{
		ID:     id,
		Name:   name,
		Avatar: avatar,
		Color:  ColorFor(id),
	}
}

// PresenceUser is the room-scoped projection of a session.
type PresenceUser struct {
	ID     UserID `json:"id"`
	Name   string `json:"name"`
	Avatar string `json:"avatar,omitempty"`
	Color  string `json:"color"`
}

func (u User) Presence() PresenceUser {
	return PresenceUser{ID: u.ID, Name: u.Name, Avatar: u.Avatar, Color: u.Color}
}
