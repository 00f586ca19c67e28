package core

import (
	"fmt"
	"slices"
	"sync"

	"github.com/dkeye/Board/internal/domain"
)

type SessionID string

// Session binds one live connection to its user and transport.
// It remembers which rooms it joined so disconnect can clean all of them.
type Session struct {
	id     SessionID
	user   domain.User
	signal SignalConnection

	mu     sync.Mutex
	rooms  []domain.RoomKey
	closed bool
}

func NewSession(id SessionID, user domain.User, signal SignalConnection) *Session {
	return &Session{id: id, user: user, signal: signal}
}

func (s *Session) ID() SessionID                 { return s.id }
func (s *Session) User() domain.User             { return s.user }
func (s *Session) Presence() domain.PresenceUser { return s.user.Presence() }

// Rooms returns joined rooms in join order.
func (s *Session) Rooms() []domain.RoomKey {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.rooms)
}

func (s *Session) InRoom(key domain.RoomKey) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Contains(s.rooms, key)
}

func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Send hands a frame to the transport without blocking.
func (s *Session) Send(f Frame) error {
	if s.signal == nil {
		return fmt.Errorf("%w: session %s has no transport", domain.ErrTransport, s.id)
	}
	if err := s.signal.TrySend(f); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrTransport, err)
	}
	return nil
}

// addRoom records key; it reports false when the session already had it.
func (s *Session) addRoom(key domain.RoomKey) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, ErrSessionClosed
	}
	if slices.Contains(s.rooms, key) {
		return false, nil
	}
	s.rooms = append(s.rooms, key)
	return true, nil
}

func (s *Session) removeRoom(key domain.RoomKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := slices.Index(s.rooms, key); i >= 0 {
		s.rooms = slices.Delete(s.rooms, i, i+1)
	}
}

// markClosed flips the session to closed once and returns its rooms.
func (s *Session) markClosed() ([]domain.RoomKey, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, false
	}
	s.closed = true
	rooms := s.rooms
	s.rooms = nil
	return rooms, true
}
