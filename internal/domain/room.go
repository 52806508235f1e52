package domain

import "errors"

// MaxMembers is the number of seats in a room.
const MaxMembers = 2

var (
	ErrRoomNotFound = errors.New("room not found")
	ErrRoomFull     = errors.New("room full")
)

type RoomID string

// Room is a point-in-time copy of a room; the registry never hands out its own member slice.
type Room struct {
	ID      RoomID   `json:"id"`
	Members []Member `json:"users"`
}

func (r Room) Full() bool { return len(r.Members) >= MaxMembers }

func (r Room) UserIDs() []UserID {
	out := make([]UserID, 0, len(r.Members))
	for _, m := range r.Members {
		out = append(out, m.UserID)
	}
	return out
}

func (r Room) HasUser(id UserID) bool {
	for _, m := range r.Members {
		if m.UserID == id {
			return true
		}
	}
	return false
}
