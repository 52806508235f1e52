package orch

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dkeye/nearby/internal/core"
	"github.com/dkeye/nearby/internal/domain"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

var validate = validator.New()

// LoginRequest is the payload of the login event.
type LoginRequest struct {
	Username   string `json:"username" validate:"required,max=36"`
	ID         string `json:"id" validate:"required,max=36"`
	PostalCode string `json:"pincode" validate:"omitempty,numeric,max=12"`
	Gender     string `json:"gender" validate:"required,oneof=male female"`
}

type LoginError struct {
	Message string `json:"message"`
}

type ChatMessage struct {
	Username string `json:"username"`
	Message  string `json:"message"`
}

type UserJoined struct {
	UserIDs []domain.UserID `json:"userIds"`
}

func ValidateLogin(req LoginRequest) error {
	err := validate.Struct(req)
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := lo.Map(verrs, func(fe validator.FieldError, _ int) string {
			return strings.ToLower(fe.Field()) + ":" + fe.Tag()
		})
		return fmt.Errorf("invalid login: %s", strings.Join(fields, ", "))
	}
	return err
}

// Login records the caller's profile, finds a partner and seats the
// connection in a room.
func (o *Orchestrator) Login(ctx context.Context, sid core.SessionID, req LoginRequest) {
	sess, ok := o.Session(sid)
	if !ok {
		return
	}
	logger := log.With().Str("module", "orch").Str("sid", string(sid)).Str("user", req.ID).Logger()

	if err := ValidateLogin(req); err != nil {
		logger.Info().Err(err).Msg("login rejected")
		o.send(sid, core.EventLoginError, LoginError{Message: err.Error()})
		return
	}
	profile, err := domain.NewProfile(domain.UserID(req.ID), req.Username, req.PostalCode, domain.Gender(req.Gender))
	if err != nil {
		o.send(sid, core.EventLoginError, LoginError{Message: err.Error()})
		return
	}

	prev, ok := sess.beginLogin(*profile)
	if !ok {
		return
	}
	if prev != "" {
		o.Registry.Leave(sid)
		if _, err := o.Rooms.RemoveMember(prev, string(sid)); err != nil {
			logger.Warn().Err(err).Str("room", string(prev)).Msg("release previous seat")
		}
	}

	if o.AutoRegister {
		if err := o.Directory.Upsert(ctx, *profile); err != nil {
			logger.Error().Err(err).Msg("register profile")
			return
		}
	}
	if err := o.Directory.SetStatus(ctx, profile.ID, domain.StatusWaiting); err != nil {
		logger.Error().Err(err).Msg("set waiting")
		if errors.Is(err, domain.ErrProfileNotFound) {
			o.send(sid, core.EventLoginError, LoginError{Message: "unknown user"})
		}
		return
	}

	status, err := o.Directory.GetStatus(ctx, profile.ID)
	switch {
	case errors.Is(err, domain.ErrProfileNotFound):
		o.send(sid, core.EventLoginError, LoginError{Message: "unknown user"})
	case err != nil:
		logger.Error().Err(err).Msg("read status")
		return
	case status == domain.StatusJoined:
		o.send(sid, core.EventLoginError, LoginError{Message: "You are already joined"})
	}

	o.send(sid, core.EventLoadingNearbyUser, true)
	partner, err := o.Matcher.FindPartner(ctx, profile.PostalCode, profile.Gender)
	if err != nil {
		logger.Error().Err(err).Msg("matching abandoned")
		return
	}

	var partnerID *domain.UserID
	if partner != nil {
		partnerID = &partner.ID
	}
	res, err := o.Rooms.Assign(partnerID, domain.NewMember(string(sid), profile), func(room domain.Room) bool {
		if !sess.seat(room.ID, room.Full()) {
			return false
		}
		o.Registry.Join(sid, room.ID)
		return true
	})
	o.releaseDisplaced(ctx, sid, profile, res.Displaced)
	if err != nil {
		// Disconnected while matching.
		logger.Info().Err(err).Msg("seat abandoned")
		return
	}
	room := res.Room
	logger.Info().Str("room", string(room.ID)).Int("members", len(room.Members)).Msg("seated")

	o.broadcast(room.ID, core.EventRoomJoined, room)
	o.send(sid, core.EventLoadingNearbyUser, false)
	o.send(sid, core.EventNearbyUser, partner)

	if !room.Full() || sess.View().RoomID != room.ID {
		return
	}
	ids := room.UserIDs()
	if err := o.Directory.SetStatusMany(ctx, ids, domain.StatusJoined); err != nil {
		logger.Error().Err(err).Msg("set joined")
		return
	}
	for _, m := range room.Members {
		if s, ok := o.Session(core.SessionID(m.ConnectionID)); ok {
			s.confirmPartner(room.ID)
		}
	}
	o.broadcast(room.ID, core.EventUserJoined, UserJoined{UserIDs: ids})
}

// releaseDisplaced dissolves the rooms a user sat in before taking a new seat,
// typically from another tab. Partners left behind go back to waiting.
func (o *Orchestrator) releaseDisplaced(ctx context.Context, sid core.SessionID, p *domain.Profile, rooms []domain.Room) {
	for _, d := range rooms {
		logger := log.With().Str("module", "orch").Str("sid", string(sid)).Str("room", string(d.ID)).Logger()
		others := lo.Reject(d.UserIDs(), func(id domain.UserID, _ int) bool { return id == p.ID })
		if len(others) > 0 {
			if err := o.Directory.SetStatusMany(ctx, others, domain.StatusWaiting); err != nil {
				logger.Error().Err(err).Msg("set displaced partners waiting")
			}
		}
		o.broadcast(d.ID, core.EventUserLeftRoom, p.Username)
		o.releaseRoom(d)
		for _, m := range d.Members {
			if cid := core.SessionID(m.ConnectionID); cid != sid {
				o.send(cid, core.EventUserWaiting, nil)
			}
		}
		logger.Info().Int("members", len(d.Members)).Msg("previous seat displaced")
	}
}

// LeaveRoom handles a user-initiated leave. The room is always dissolved:
// the remaining member is told to wait and must log in again to re-match.
func (o *Orchestrator) LeaveRoom(ctx context.Context, sid core.SessionID, roomID domain.RoomID) {
	sess, ok := o.Session(sid)
	if !ok {
		return
	}
	v := sess.View()
	if v.RoomID == "" || v.RoomID != roomID {
		return
	}
	room, ok := o.Rooms.Get(roomID)
	if !ok {
		return
	}
	logger := log.With().Str("module", "orch").Str("sid", string(sid)).Str("room", string(roomID)).Logger()

	if err := o.Directory.SetStatusMany(ctx, room.UserIDs(), domain.StatusWaiting); err != nil {
		logger.Error().Err(err).Msg("leave abandoned")
		return
	}
	o.broadcast(roomID, core.EventUserLeftRoom, v.Profile.Username)

	last, err := o.Rooms.Dissolve(roomID, string(sid))
	if err != nil {
		logger.Warn().Err(err).Msg("dissolve room")
		o.unseat(sid, roomID)
		return
	}
	o.releaseRoom(last)
	for _, m := range last.Members {
		if cid := core.SessionID(m.ConnectionID); cid != sid {
			o.send(cid, core.EventUserWaiting, nil)
		}
	}
	logger.Info().Int("remaining", len(last.Members)-1).Msg("left room")
}

// Disconnect cleans up after a closed connection. Only the first call for a
// connection has any effect.
func (o *Orchestrator) Disconnect(ctx context.Context, sid core.SessionID) {
	defer o.Registry.Unbind(sid)
	sess, ok := o.dropSession(sid)
	if !ok {
		return
	}
	v, ok := sess.close()
	if !ok {
		return
	}
	logger := log.With().Str("module", "orch").Str("sid", string(sid)).Str("user", string(v.Profile.ID)).Logger()

	// Rooms seat two, so the last departure or the one that leaves a lone
	// partner both end the room.
	if v.RoomID != "" {
		last, err := o.Rooms.Dissolve(v.RoomID, string(sid))
		o.Registry.LeaveGroup(sid, v.RoomID)
		if err != nil {
			logger.Warn().Err(err).Str("room", string(v.RoomID)).Msg("release seat")
		} else {
			if err := o.Directory.SetStatusMany(ctx, last.UserIDs(), domain.StatusOffline); err != nil {
				logger.Error().Err(err).Msg("set room offline")
			}
			o.broadcast(v.RoomID, core.EventUserDisconnected, v.Profile.Username)
			o.releaseRoom(last)
		}
	}

	if v.Profile.ID != "" {
		err := o.Directory.SetStatus(ctx, v.Profile.ID, domain.StatusOffline)
		if err != nil && !errors.Is(err, domain.ErrProfileNotFound) {
			logger.Error().Err(err).Msg("set offline")
		}
	}
	logger.Info().Str("room", string(v.RoomID)).Msg("disconnected")
}
