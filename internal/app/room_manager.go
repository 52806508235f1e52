package app

import (
	"errors"
	"slices"
	"sync"

	"github.com/dkeye/nearby/internal/core"
	"github.com/dkeye/nearby/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

var (
	ErrSeatDeclined = errors.New("seat declined")
	ErrNotSeated    = errors.New("connection not seated in room")
)

// Assignment is the outcome of RoomManager.Assign.
type Assignment struct {
	Room domain.Room
	// Displaced holds rooms dissolved because they already seated the user,
	// as they were right before dissolving.
	Displaced []domain.Room
}

// RoomManager is the in-memory table of active rooms.
// A single mutex guards every lookup and mutation, so "check occupancy then
// add" is atomic. Callers only ever see copies of a room.
type RoomManager struct {
	mu    sync.Mutex
	rooms map[domain.RoomID]*domain.Room
	order []domain.RoomID
	newID func() domain.RoomID
}

func snapshot(r *domain.Room) domain.Room {
	return domain.Room{ID: r.ID, Members: slices.Clone(r.Members)}
}

func NewRoomManager() *RoomManager {
	return &RoomManager{
		rooms: make(map[domain.RoomID]*domain.Room),
		newID: func() domain.RoomID { return domain.RoomID("room-" + uuid.NewString()) },
	}
}

func (m *RoomManager) Get(id domain.RoomID) (domain.Room, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rooms[id]
	if !ok {
		return domain.Room{}, false
	}
	return snapshot(r), true
}

// FindOpenRoomWith returns the oldest room that seats userID and still has a free seat.
func (m *RoomManager) FindOpenRoomWith(userID domain.UserID) (domain.Room, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r := m.findOpenLocked(userID); r != nil {
		return snapshot(r), true
	}
	return domain.Room{}, false
}

func (m *RoomManager) CreateRoom() domain.Room {
	m.mu.Lock()
	defer m.mu.Unlock()
	return snapshot(m.createLocked())
}

func (m *RoomManager) AddMember(id domain.RoomID, member domain.Member) (domain.Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rooms[id]
	if !ok {
		return domain.Room{}, domain.ErrRoomNotFound
	}
	if r.Full() {
		return domain.Room{}, domain.ErrRoomFull
	}
	r.Members = append(r.Members, member)
	log.Info().Str("module", "app.rooms").Str("room", string(id)).Str("sid", member.ConnectionID).Str("user", string(member.UserID)).Msg("member added")
	return snapshot(r), nil
}

// Assign seats member in the open room of partner if there is one, otherwise
// in a fresh room. Rooms already seating member.UserID are dissolved first,
// so a user never holds two seats. onSeat runs under the manager lock once the
// seat is taken; returning false gives the seat back and Assign fails with
// ErrSeatDeclined.
func (m *RoomManager) Assign(partner *domain.UserID, member domain.Member, onSeat func(domain.Room) bool) (Assignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var res Assignment
	for _, id := range slices.Clone(m.order) {
		if r := m.rooms[id]; r.HasUser(member.UserID) {
			res.Displaced = append(res.Displaced, snapshot(r))
			m.deleteLocked(id)
		}
	}

	var r *domain.Room
	if partner != nil {
		r = m.findOpenLocked(*partner)
	}
	if r == nil {
		r = m.createLocked()
	}
	r.Members = append(r.Members, member)
	res.Room = snapshot(r)

	if onSeat != nil && !onSeat(res.Room) {
		m.removeLocked(r, member.ConnectionID)
		return res, ErrSeatDeclined
	}
	log.Info().Str("module", "app.rooms").Str("room", string(r.ID)).Str("sid", member.ConnectionID).Int("members", len(r.Members)).Int("displaced", len(res.Displaced)).Msg("member assigned")
	return res, nil
}

// RemoveMember drops the seat held by connectionID and deletes the room once
// it is empty. The returned room reflects the membership after removal.
func (m *RoomManager) RemoveMember(id domain.RoomID, connectionID string) (domain.Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rooms[id]
	if !ok {
		return domain.Room{}, domain.ErrRoomNotFound
	}
	m.removeLocked(r, connectionID)
	return snapshot(r), nil
}

// Dissolve deletes a room seating connectionID and returns its membership as
// it was right before. Nobody can take a seat in it afterwards.
func (m *RoomManager) Dissolve(id domain.RoomID, connectionID string) (domain.Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rooms[id]
	if !ok {
		return domain.Room{}, domain.ErrRoomNotFound
	}
	if !lo.ContainsBy(r.Members, func(mb domain.Member) bool { return mb.ConnectionID == connectionID }) {
		return domain.Room{}, ErrNotSeated
	}
	last := snapshot(r)
	m.deleteLocked(id)
	return last, nil
}

func (m *RoomManager) DeleteRoom(id domain.RoomID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deleteLocked(id)
}

func (m *RoomManager) List() []core.RoomInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	return lo.Map(m.order, func(id domain.RoomID, _ int) core.RoomInfo {
		return core.RoomInfo{ID: id, MemberCount: len(m.rooms[id].Members)}
	})
}

func (m *RoomManager) findOpenLocked(userID domain.UserID) *domain.Room {
	for _, id := range m.order {
		if r := m.rooms[id]; !r.Full() && r.HasUser(userID) {
			return r
		}
	}
	return nil
}

func (m *RoomManager) createLocked() *domain.Room {
	id := m.newID()
	for _, taken := m.rooms[id]; taken; _, taken = m.rooms[id] {
		id = m.newID()
	}
	r := &domain.Room{ID: id}
	m.rooms[id] = r
	m.order = append(m.order, id)
	log.Info().Str("module", "app.rooms").Str("room", string(id)).Msg("room created")
	return r
}

func (m *RoomManager) removeLocked(r *domain.Room, connectionID string) {
	r.Members = lo.Reject(r.Members, func(mb domain.Member, _ int) bool {
		return mb.ConnectionID == connectionID
	})
	log.Info().Str("module", "app.rooms").Str("room", string(r.ID)).Str("sid", connectionID).Msg("member removed")
	if len(r.Members) == 0 {
		m.deleteLocked(r.ID)
	}
}

func (m *RoomManager) deleteLocked(id domain.RoomID) bool {
	if _, ok := m.rooms[id]; !ok {
		return false
	}
	delete(m.rooms, id)
	m.order = slices.DeleteFunc(m.order, func(o domain.RoomID) bool { return o == id })
	log.Info().Str("module", "app.rooms").Str("room", string(id)).Msg("room deleted")
	return true
}
