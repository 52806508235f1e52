package orch

import (
	"github.com/dkeye/nearby/internal/core"
	"github.com/dkeye/nearby/internal/domain"
)

// SendMessage relays text to the sender's current room, sender included.
// Without a room nothing is delivered.
func (o *Orchestrator) SendMessage(sid core.SessionID, text string) {
	sess, ok := o.Session(sid)
	if !ok {
		return
	}
	v := sess.View()
	o.broadcast(v.RoomID, core.EventMessage, ChatMessage{Username: v.Profile.Username, Message: text})
}

// Typing relays a typing indicator to the other members of the sender's room.
// Indicators before login or for a foreign room are ignored.
func (o *Orchestrator) Typing(sid core.SessionID, roomID domain.RoomID, username string, stop bool) {
	sess, ok := o.Session(sid)
	if !ok {
		return
	}
	v := sess.View()
	if !v.LoggedIn() || roomID == "" || v.RoomID != roomID {
		return
	}
	if username == "" {
		username = v.Profile.Username
	}
	evt := core.EventTypingServer
	if stop {
		evt = core.EventStopTypingServer
	}
	o.broadcastFrom(sid, roomID, evt, username)
}
