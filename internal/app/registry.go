package app

import (
	"context"
	"errors"
	"sync"

	"github.com/dkeye/nearby/internal/core"
	"github.com/dkeye/nearby/internal/domain"
	"github.com/rs/zerolog/log"
)

var ErrNoConnection = errors.New("no such connection")

type sessionEntry struct {
	RoomID domain.RoomID
	Conn   core.SignalConnection
	Cancel context.CancelFunc
}

// Registry tracks live connections and the transport group each one listens on.
// Group membership is independent of RoomManager seats.
type Registry struct {
	mu       sync.RWMutex
	sessions map[core.SessionID]*sessionEntry
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[core.SessionID]*sessionEntry),
	}
}

func (r *Registry) BindSignal(sid core.SessionID, conn core.SignalConnection, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[sid] = &sessionEntry{Conn: conn, Cancel: cancel}
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Msg("bound signal")
}

func (r *Registry) Unbind(sid core.SessionID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, sid)
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Msg("unbind session")
}

// Join moves sid into the broadcast group of room.
func (r *Registry) Join(sid core.SessionID, room domain.RoomID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.sessions[sid]
	if !ok {
		return false
	}
	entry.RoomID = room
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Str("room", string(room)).Msg("joined group")
	return true
}

func (r *Registry) Leave(sid core.SessionID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if entry, ok := r.sessions[sid]; ok && entry.RoomID != "" {
		log.Info().Str("module", "app.registry").Str("sid", string(sid)).Str("room", string(entry.RoomID)).Msg("left group")
		entry.RoomID = ""
	}
}

// LeaveGroup leaves the group of room only if sid still listens on it.
func (r *Registry) LeaveGroup(sid core.SessionID, room domain.RoomID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.sessions[sid]
	if !ok || room == "" || entry.RoomID != room {
		return false
	}
	entry.RoomID = ""
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Str("room", string(room)).Msg("left group")
	return true
}

func (r *Registry) MembersOfRoom(room domain.RoomID) []core.SessionID {
	if room == "" {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []core.SessionID
	for sid, e := range r.sessions {
		if e.RoomID == room {
			out = append(out, sid)
		}
	}
	return out
}

// Send addresses a single connection.
func (r *Registry) Send(sid core.SessionID, evt core.Event) error {
	frame, err := core.Encode(evt)
	if err != nil {
		return err
	}
	r.mu.RLock()
	entry, ok := r.sessions[sid]
	r.mu.RUnlock()
	if !ok {
		return ErrNoConnection
	}
	return entry.Conn.TrySend(frame)
}

// Broadcast delivers evt to every connection in the group of room except skip.
// An empty room id addresses nobody.
func (r *Registry) Broadcast(room domain.RoomID, skip core.SessionID, evt core.Event) core.PublishResult {
	res := core.PublishResult{}
	if room == "" {
		return res
	}
	frame, err := core.Encode(evt)
	if err != nil {
		log.Error().Err(err).Str("module", "app.registry").Str("type", evt.Type).Msg("encode event")
		return res
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for sid, e := range r.sessions {
		if e.RoomID != room || sid == skip {
			continue
		}
		if err := e.Conn.TrySend(frame); err != nil {
			res.Dropped = append(res.Dropped, sid)
			continue
		}
		res.SendTo++
	}
	log.Debug().Str("module", "app.registry").Str("room", string(room)).Str("type", evt.Type).Int("sent_to", res.SendTo).Int("dropped", len(res.Dropped)).Msg("broadcast result")
	return res
}

func (r *Registry) Cancel(sid core.SessionID) bool {
	r.mu.RLock()
	e, ok := r.sessions[sid]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	if e.Cancel != nil {
		e.Cancel()
	}
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Msg("canceled session")
	return true
}
