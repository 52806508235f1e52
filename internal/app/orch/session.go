package orch

import (
	"sync"

	"github.com/dkeye/nearby/internal/core"
	"github.com/dkeye/nearby/internal/domain"
)

type State int

const (
	StateAnonymous State = iota
	StateLoggingIn
	// StateIdle: logged in, no seat (after a manual leave or a dissolved room).
	StateIdle
	// StatePaired: seated, partner not confirmed yet.
	StatePaired
	StateInRoom
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateAnonymous:
		return "anonymous"
	case StateLoggingIn:
		return "logging_in"
	case StateIdle:
		return "idle"
	case StatePaired:
		return "paired"
	case StateInRoom:
		return "in_room"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// Session is the connection-bound state. Events of one connection arrive in
// order, but other connections may detach it from a dissolved room.
type Session struct {
	SID core.SessionID

	mu      sync.Mutex
	state   State
	profile domain.Profile
	roomID  domain.RoomID
}

// SessionView is a copy of a session taken under its lock.
type SessionView struct {
	SID     core.SessionID
	State   State
	Profile domain.Profile
	RoomID  domain.RoomID
}

func newSession(sid core.SessionID) *Session {
	return &Session{SID: sid}
}

func (s *Session) View() SessionView {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SessionView{SID: s.SID, State: s.state, Profile: s.profile, RoomID: s.roomID}
}

func (s *Session) beginLogin(p domain.Profile) (prev domain.RoomID, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return "", false
	}
	prev = s.roomID
	s.profile = p
	s.roomID = ""
	s.state = StateLoggingIn
	return prev, true
}

func (s *Session) seat(room domain.RoomID, full bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return false
	}
	s.roomID = room
	s.state = StatePaired
	if full {
		s.state = StateInRoom
	}
	return true
}

func (s *Session) confirmPartner(room domain.RoomID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StatePaired && s.roomID == room {
		s.state = StateInRoom
	}
}

// detach clears the room if the session still points at it.
func (s *Session) detach(room domain.RoomID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed || s.roomID != room || room == "" {
		return false
	}
	s.roomID = ""
	s.state = StateIdle
	return true
}

// close reports whether this call performed the transition.
func (s *Session) close() (SessionView, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := SessionView{SID: s.SID, State: s.state, Profile: s.profile, RoomID: s.roomID}
	if s.state == StateClosed {
		return v, false
	}
	s.state = StateClosed
	s.roomID = ""
	return v, true
}

func (v SessionView) LoggedIn() bool {
	return v.State != StateAnonymous && v.State != StateClosed
}
