package core

import "encoding/json"

// Event names exchanged with clients.
const (
	EventLogin              = "login"
	EventLoadingNearbyUser  = "loading-nearby-user"
	EventLoginError         = "login-error"
	EventNearbyUser         = "nearby-user"
	EventRoomJoined         = "room-joined"
	EventUserJoined         = "user-joined"
	EventSendMessage        = "send-message"
	EventMessage            = "message"
	EventTyping             = "typing"
	EventStopTyping         = "stop-typing"
	EventTypingServer       = "typing-server"
	EventStopTypingServer   = "stop-typing-server"
	EventDisconnectFromRoom = "disconnect-from-room"
	EventUserLeftRoom       = "user-left-room"
	EventUserWaiting        = "user-waiting"
	EventUserDisconnected   = "user-disconnected"
	EventPing               = "ping"
	EventPong               = "pong"
	EventWhoAmI             = "whoami"
	EventError              = "error"
)

// Event is the wire envelope in both directions.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// InboundEvent keeps the payload raw until the handler knows its shape.
type InboundEvent struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

func Encode(e Event) (Frame, error) {
	return json.Marshal(e)
}
