package orch

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"

	"github.com/dkeye/nearby/internal/adapters/directory"
	"github.com/dkeye/nearby/internal/app"
	"github.com/dkeye/nearby/internal/core"
	"github.com/dkeye/nearby/internal/domain"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	mu     sync.Mutex
	events []core.InboundEvent
}

func (c *fakeConn) TrySend(f core.Frame) error {
	var e core.InboundEvent
	if err := json.Unmarshal(f, &e); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
	return nil
}

func (c *fakeConn) Close() {}

func (c *fakeConn) types() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.events))
	for _, e := range c.events {
		out = append(out, e.Type)
	}
	return out
}

func (c *fakeConn) last(t *testing.T, typ string, v any) {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.events) - 1; i >= 0; i-- {
		if c.events[i].Type == typ {
			// Events without data omit the field entirely.
			if len(c.events[i].Data) > 0 {
				require.NoError(t, json.Unmarshal(c.events[i].Data, v))
			}
			return
		}
	}
	t.Fatalf("no %s event", typ)
}

func (c *fakeConn) count(typ string) int {
	n := 0
	for _, tp := range c.types() {
		if tp == typ {
			n++
		}
	}
	return n
}

func (c *fakeConn) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = nil
}

type harness struct {
	ctx context.Context
	o   *Orchestrator
	dir *directory.BadgerDirectory
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db, err := directory.Open("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	dir := directory.NewBadgerDirectory(db)
	return &harness{
		ctx: context.Background(),
		dir: dir,
		o: &Orchestrator{
			Registry:     app.NewRegistry(),
			Rooms:        app.NewRoomManager(),
			Matcher:      app.NewMatcher(dir, true),
			Directory:    dir,
			Policy:       app.SimplePolicy{},
			AutoRegister: true,
		},
	}
}

func (h *harness) connect(sid core.SessionID) *fakeConn {
	c := &fakeConn{}
	h.o.Registry.BindSignal(sid, c, nil)
	h.o.Connect(sid)
	return c
}

func (h *harness) status(t *testing.T, id domain.UserID) domain.Status {
	t.Helper()
	s, err := h.dir.GetStatus(h.ctx, id)
	require.NoError(t, err)
	return s
}

func (h *harness) roomOf(sid core.SessionID) domain.RoomID {
	s, ok := h.o.Session(sid)
	if !ok {
		return ""
	}
	return s.View().RoomID
}

var (
	loginX = LoginRequest{Username: "X", ID: "x", PostalCode: "110001", Gender: "male"}
	loginY = LoginRequest{Username: "Y", ID: "y", PostalCode: "110002", Gender: "female"}
)

// pair seats X and then Y in the same room.
func (h *harness) pair(t *testing.T) (*fakeConn, *fakeConn, domain.RoomID) {
	t.Helper()
	cx := h.connect("sx")
	cy := h.connect("sy")
	h.o.Login(h.ctx, "sx", loginX)
	h.o.Login(h.ctx, "sy", loginY)
	room := h.roomOf("sx")
	require.NotEmpty(t, room)
	require.Equal(t, room, h.roomOf("sy"))
	return cx, cy, room
}

func TestLogin_AloneOpensRoom(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	cx := h.connect("sx")

	// When X logs in with nobody waiting
	h.o.Login(h.ctx, "sx", loginX)

	// Then a one-member room exists
	rooms := h.o.Rooms.List()
	req.Len(rooms, 1)
	req.Equal(1, rooms[0].MemberCount)
	req.Equal(rooms[0].ID, h.roomOf("sx"))

	// And the client saw the matchmaking sequence with no candidate
	req.Equal([]string{
		core.EventLoadingNearbyUser,
		core.EventRoomJoined,
		core.EventLoadingNearbyUser,
		core.EventNearbyUser,
	}, cx.types())
	var nearby *domain.Profile
	cx.last(t, core.EventNearbyUser, &nearby)
	req.Nil(nearby)

	var loading bool
	cx.last(t, core.EventLoadingNearbyUser, &loading)
	req.False(loading)

	req.Equal(domain.StatusWaiting, h.status(t, "x"))
	s, _ := h.o.Session("sx")
	req.Equal(StatePaired, s.View().State)
}

func TestLogin_PartnerJoinsWaitingRoom(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	cx, cy, room := h.pair(t)

	// Both received the two-member room snapshot
	for _, c := range []*fakeConn{cx, cy} {
		var snap domain.Room
		c.last(t, core.EventRoomJoined, &snap)
		req.Equal(room, snap.ID)
		req.ElementsMatch([]domain.UserID{"x", "y"}, snap.UserIDs())

		var joined UserJoined
		c.last(t, core.EventUserJoined, &joined)
		req.ElementsMatch([]domain.UserID{"x", "y"}, joined.UserIDs)
	}

	// Y was told who the partner is
	var nearby domain.Profile
	cy.last(t, core.EventNearbyUser, &nearby)
	req.Equal(domain.UserID("x"), nearby.ID)

	req.Equal(domain.StatusJoined, h.status(t, "x"))
	req.Equal(domain.StatusJoined, h.status(t, "y"))

	sx, _ := h.o.Session("sx")
	sy, _ := h.o.Session("sy")
	req.Equal(StateInRoom, sx.View().State)
	req.Equal(StateInRoom, sy.View().State)
	req.Len(h.o.Rooms.List(), 1)
}

func TestSendMessage_RelaysToWholeRoom(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	cx, cy, _ := h.pair(t)
	outsider := h.connect("sz")

	h.o.SendMessage("sx", "hello")

	for _, c := range []*fakeConn{cx, cy} {
		var msg ChatMessage
		c.last(t, core.EventMessage, &msg)
		req.Equal(ChatMessage{Username: "X", Message: "hello"}, msg)
	}
	req.Empty(outsider.types())
}

func TestSendMessage_WithoutRoomIsNoop(t *testing.T) {
	h := newHarness(t)
	c := h.connect("sx")

	h.o.SendMessage("sx", "anyone?")
	h.o.SendMessage("unknown", "anyone?")

	require.Empty(t, c.types())
}

func TestLeaveRoom_DissolvesRoom(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	cx, cy, room := h.pair(t)
	cx.reset()
	cy.reset()

	// When Y leaves manually
	h.o.LeaveRoom(h.ctx, "sy", room)

	// Then both are waiting again and the room is gone
	req.Equal(domain.StatusWaiting, h.status(t, "x"))
	req.Equal(domain.StatusWaiting, h.status(t, "y"))
	_, ok := h.o.Rooms.Get(room)
	req.False(ok)
	req.Empty(h.o.Rooms.List())

	// And X was told to wait after seeing Y leave
	req.Equal([]string{core.EventUserLeftRoom, core.EventUserWaiting}, cx.types())
	var who string
	cx.last(t, core.EventUserLeftRoom, &who)
	req.Equal("Y", who)
	req.Equal([]string{core.EventUserLeftRoom}, cy.types())

	// And nobody is bound to the dissolved room
	req.Empty(h.roomOf("sx"))
	req.Empty(h.roomOf("sy"))
	sx, _ := h.o.Session("sx")
	req.Equal(StateIdle, sx.View().State)
}

func TestLeaveRoom_ForeignOrMissingRoomIsNoop(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	cx, cy, room := h.pair(t)
	outsider := h.connect("sz")
	cx.reset()
	cy.reset()

	h.o.LeaveRoom(h.ctx, "sz", room)
	h.o.LeaveRoom(h.ctx, "sx", "room-missing")

	_, ok := h.o.Rooms.Get(room)
	req.True(ok)
	req.Empty(cx.types())
	req.Empty(cy.types())
	req.Empty(outsider.types())
}

func TestDisconnect_AfterLeave(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	cx, cy, room := h.pair(t)
	h.o.LeaveRoom(h.ctx, "sy", room)
	cx.reset()
	cy.reset()

	h.o.Disconnect(h.ctx, "sx")

	req.Equal(domain.StatusOffline, h.status(t, "x"))
	req.Equal(domain.StatusWaiting, h.status(t, "y"))
	req.Empty(h.o.Rooms.List())
	req.Empty(cy.types())
	_, ok := h.o.Session("sx")
	req.False(ok)
}

func TestDisconnect_TearsDownSurvivorRoom(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	cx, cy, room := h.pair(t)
	cx.reset()
	cy.reset()

	h.o.Disconnect(h.ctx, "sx")

	// The lone survivor's room is deleted and it only hears about the disconnect
	_, ok := h.o.Rooms.Get(room)
	req.False(ok)
	req.Equal([]string{core.EventUserDisconnected}, cy.types())
	var who string
	cy.last(t, core.EventUserDisconnected, &who)
	req.Equal("X", who)
	req.Empty(cx.types())

	req.Equal(domain.StatusOffline, h.status(t, "x"))
	req.Equal(domain.StatusOffline, h.status(t, "y"))
	req.Empty(h.roomOf("sy"))
}

func TestDisconnect_Idempotent(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	_, cy, _ := h.pair(t)
	h.o.Disconnect(h.ctx, "sx")
	before := len(cy.types())

	h.o.Disconnect(h.ctx, "sx")
	h.o.Disconnect(h.ctx, "never-connected")

	req.Len(cy.types(), before)
	req.Empty(h.o.Rooms.List())
}

func TestDisconnect_WhileWaitingAlone(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	h.connect("sx")
	h.o.Login(h.ctx, "sx", loginX)
	req.Len(h.o.Rooms.List(), 1)

	h.o.Disconnect(h.ctx, "sx")

	req.Empty(h.o.Rooms.List())
	req.Equal(domain.StatusOffline, h.status(t, "x"))
}

func TestTyping(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)

	// Before login typing is ignored
	early := h.connect("early")
	h.o.Typing("early", "room-x", "nobody", false)
	req.Empty(early.types())

	cx, cy, room := h.pair(t)
	cx.reset()
	cy.reset()

	h.o.Typing("sx", room, "X", false)
	h.o.Typing("sx", room, "X", true)
	h.o.Typing("sx", "room-other", "X", false)

	req.Equal([]string{core.EventTypingServer, core.EventStopTypingServer}, cy.types())
	req.Empty(cx.types())
	var who string
	cy.last(t, core.EventTypingServer, &who)
	req.Equal("X", who)
}

func TestLogin_InvalidPayload(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	c := h.connect("sx")

	h.o.Login(h.ctx, "sx", LoginRequest{Username: "X", ID: "x", PostalCode: "110001", Gender: "robot"})

	req.Equal([]string{core.EventLoginError}, c.types())
	var le LoginError
	c.last(t, core.EventLoginError, &le)
	req.Contains(le.Message, "gender")
	req.Empty(h.o.Rooms.List())
}

func TestLogin_UnknownUserWithoutAutoRegister(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	h.o.AutoRegister = false
	c := h.connect("sx")

	h.o.Login(h.ctx, "sx", loginX)

	req.Equal([]string{core.EventLoginError}, c.types())
	req.Empty(h.o.Rooms.List())
}

func TestLogin_AgainReleasesPreviousSeat(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	h.connect("sx")
	h.o.Login(h.ctx, "sx", loginX)
	first := h.roomOf("sx")

	h.o.Login(h.ctx, "sx", loginX)
	second := h.roomOf("sx")

	req.NotEqual(first, second)
	_, ok := h.o.Rooms.Get(first)
	req.False(ok)
	rooms := h.o.Rooms.List()
	req.Len(rooms, 1)
	req.Equal(second, rooms[0].ID)
}

func TestLogin_SameGenderNeverPaired(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	h.connect("s1")
	h.connect("s2")

	h.o.Login(h.ctx, "s1", loginX)
	h.o.Login(h.ctx, "s2", LoginRequest{Username: "W", ID: "w", PostalCode: "110003", Gender: "male"})

	req.NotEqual(h.roomOf("s1"), h.roomOf("s2"))
	req.Len(h.o.Rooms.List(), 2)
}

func TestLogin_ConcurrentArrivalsSeatEachUserOnce(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	h.connect("sx")
	h.o.Login(h.ctx, "sx", loginX)

	const n = 8
	var wg sync.WaitGroup
	for i := range n {
		sid := core.SessionID("sf" + string(rune('a'+i)))
		h.connect(sid)
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.o.Login(h.ctx, sid, LoginRequest{
				Username: string(sid), ID: string(sid), PostalCode: "110002", Gender: "female",
			})
		}()
	}
	wg.Wait()

	seen := map[domain.UserID]domain.RoomID{}
	for _, info := range h.o.Rooms.List() {
		room, ok := h.o.Rooms.Get(info.ID)
		req.True(ok)
		req.NotEmpty(room.Members)
		req.LessOrEqual(len(room.Members), domain.MaxMembers)
		for _, id := range room.UserIDs() {
			_, dup := seen[id]
			req.False(dup, "user %s seated twice", id)
			seen[id] = room.ID
		}
	}
	req.Len(seen, n+1)

	// Every seated session listens on its room and a full room is confirmed on both sides
	for _, info := range h.o.Rooms.List() {
		room, _ := h.o.Rooms.Get(info.ID)
		var sids []core.SessionID
		for _, m := range room.Members {
			sid := core.SessionID(m.ConnectionID)
			sids = append(sids, sid)
			s, ok := h.o.Session(sid)
			req.True(ok)
			want := StatePaired
			if room.Full() {
				want = StateInRoom
			}
			req.Equal(want, s.View().State, "session %s", sid)
			req.Equal(room.ID, s.View().RoomID)
		}
		req.ElementsMatch(sids, h.o.Registry.MembersOfRoom(room.ID))
	}
}

func (h *harness) seatsOf(id domain.UserID) int {
	n := 0
	for _, info := range h.o.Rooms.List() {
		if room, ok := h.o.Rooms.Get(info.ID); ok && room.HasUser(id) {
			n++
		}
	}
	return n
}

func TestLogin_SecondTabKeepsSingleSeat(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	tab1 := h.connect("tab1")
	h.connect("tab2")

	// Given x waiting from a first tab
	h.o.Login(h.ctx, "tab1", loginX)
	first := h.roomOf("tab1")
	tab1.reset()

	// When x logs in again from a second tab
	h.o.Login(h.ctx, "tab2", loginX)

	// Then only the second tab holds a seat
	req.Equal(1, h.seatsOf("x"))
	req.NotEmpty(h.roomOf("tab2"))
	req.Empty(h.roomOf("tab1"))
	_, ok := h.o.Rooms.Get(first)
	req.False(ok)
	req.Empty(h.o.Registry.MembersOfRoom(first))
	req.Contains(tab1.types(), core.EventUserWaiting)
}

func TestLogin_SecondTabReleasesPartner(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	_, cy, room := h.pair(t)
	h.connect("sx2")
	cy.reset()

	h.o.Login(h.ctx, "sx2", loginX)

	// The old pairing is dissolved and y goes back to waiting
	req.Equal(1, h.seatsOf("x"))
	_, ok := h.o.Rooms.Get(room)
	req.False(ok)
	req.Equal([]string{core.EventUserLeftRoom, core.EventUserWaiting}, cy.types())
	req.Equal(domain.StatusWaiting, h.status(t, "y"))
	req.Empty(h.roomOf("sx"))
	req.Empty(h.roomOf("sy"))
	sy, _ := h.o.Session("sy")
	req.Equal(StateIdle, sy.View().State)
}

func TestLeaveRoom_ReleasesLateArrival(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	h.connect("sx")
	h.o.Login(h.ctx, "sx", loginX)
	room := h.roomOf("sx")
	late := h.connect("sz")

	// Given a newcomer seated next to x while x decides to leave
	z, _ := domain.NewProfile("z", "Z", "110002", domain.GenderFemale)
	sz, _ := h.o.Session("sz")
	sz.beginLogin(*z)
	partner := domain.UserID("x")
	res, err := h.o.Rooms.Assign(&partner, domain.NewMember("sz", z), func(r domain.Room) bool {
		sz.seat(r.ID, r.Full())
		h.o.Registry.Join("sz", r.ID)
		return true
	})
	req.NoError(err)
	req.Equal(room, res.Room.ID)

	// When x leaves
	h.o.LeaveRoom(h.ctx, "sx", room)

	// Then the newcomer is not left seated in the dissolved room
	_, ok := h.o.Rooms.Get(room)
	req.False(ok)
	req.Empty(h.roomOf("sz"))
	req.Empty(h.o.Registry.MembersOfRoom(room))
	req.Equal(core.EventUserWaiting, late.types()[len(late.types())-1])
}

func TestLogin_NonLatinUsername(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	c := h.connect("sx")
	name := strings.Repeat("अ", 20)

	h.o.Login(h.ctx, "sx", LoginRequest{Username: name, ID: "x", PostalCode: "110001", Gender: "male"})

	req.NotContains(c.types(), core.EventLoginError)
	req.NotEmpty(h.roomOf("sx"))
	s, _ := h.o.Session("sx")
	req.Equal(name, s.View().Profile.Username)
}

func TestBroadcast_KicksSlowMember(t *testing.T) {
	req := require.New(t)
	h := newHarness(t)
	kicked := make(chan struct{}, 1)
	h.o.Registry.BindSignal("slow", blockedConn{}, func() { kicked <- struct{}{} })
	h.o.Registry.Join("slow", "room-1")

	h.o.broadcast("room-1", core.EventMessage, ChatMessage{Username: "X", Message: "hi"})

	select {
	case <-kicked:
	default:
		req.Fail("slow member was not cancelled")
	}
}

type blockedConn struct{}

func (blockedConn) TrySend(core.Frame) error { return errBlocked }
func (blockedConn) Close()                   {}
