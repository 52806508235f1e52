// Package orch drives the per-connection lifecycle: login and matching,
// chat relay, manual leave and disconnect cleanup.
package orch

import (
	"sync"

	"github.com/dkeye/nearby/internal/app"
	"github.com/dkeye/nearby/internal/core"
	"github.com/dkeye/nearby/internal/domain"
	"github.com/rs/zerolog/log"
)

type Orchestrator struct {
	Registry  *app.Registry
	Rooms     *app.RoomManager
	Matcher   *app.Matcher
	Directory core.Directory
	Policy    app.Policy
	// AutoRegister upserts the caller's profile into the directory on login.
	AutoRegister bool

	mu       sync.RWMutex
	sessions map[core.SessionID]*Session
}

// Connect creates the session state for a freshly bound connection.
func (o *Orchestrator) Connect(sid core.SessionID) *Session {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.sessions == nil {
		o.sessions = make(map[core.SessionID]*Session)
	}
	if s, ok := o.sessions[sid]; ok {
		return s
	}
	s := newSession(sid)
	o.sessions[sid] = s
	return s
}

func (o *Orchestrator) Session(sid core.SessionID) (*Session, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	s, ok := o.sessions[sid]
	return s, ok
}

func (o *Orchestrator) dropSession(sid core.SessionID) (*Session, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	s, ok := o.sessions[sid]
	if ok {
		delete(o.sessions, sid)
	}
	return s, ok
}

func (o *Orchestrator) send(sid core.SessionID, evtType string, data any) {
	if err := o.Registry.Send(sid, core.Event{Type: evtType, Data: data}); err != nil {
		log.Warn().Err(err).Str("module", "orch").Str("sid", string(sid)).Str("type", evtType).Msg("send failed")
	}
}

func (o *Orchestrator) broadcast(room domain.RoomID, evtType string, data any) {
	o.broadcastFrom("", room, evtType, data)
}

// broadcastFrom skips the sender and applies the back-pressure policy to slow members.
func (o *Orchestrator) broadcastFrom(from core.SessionID, room domain.RoomID, evtType string, data any) {
	res := o.Registry.Broadcast(room, from, core.Event{Type: evtType, Data: data})
	if o.Policy == nil {
		return
	}
	for _, slow := range res.Dropped {
		switch o.Policy.OnBackPressure(room, slow) {
		case app.KickMember:
			log.Warn().Str("module", "orch").Str("sid", string(slow)).Str("room", string(room)).Msg("kicking slow member")
			o.Registry.Cancel(slow)
		case app.NoAction:
		}
	}
}

// unseat takes sid out of room, both its session and its transport group.
// A session that already moved on to another room is left alone.
func (o *Orchestrator) unseat(sid core.SessionID, room domain.RoomID) {
	o.Registry.LeaveGroup(sid, room)
	if s, ok := o.Session(sid); ok {
		s.detach(room)
	}
}

// releaseRoom unseats everyone from a dissolved room: the members it had when
// it was dissolved and any session still listening on its group.
func (o *Orchestrator) releaseRoom(last domain.Room) {
	for _, m := range last.Members {
		o.unseat(core.SessionID(m.ConnectionID), last.ID)
	}
	for _, sid := range o.Registry.MembersOfRoom(last.ID) {
		o.unseat(sid, last.ID)
	}
}
