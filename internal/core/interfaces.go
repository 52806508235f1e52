//go:generate go run go.uber.org/mock/mockgen -source=interfaces.go -destination=../mocks/mock_interfaces.go -package=mocks
package core

import (
	"context"

	"github.com/dkeye/nearby/internal/domain"
)

// Frame is a raw encoded event.
type Frame []byte

type SessionID string

// SignalConnection abstracts for a system messaging transport
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}

// PublishResult reports delivery stats/backpressure to orchestrator.
type PublishResult struct {
	SendTo  int
	Dropped []SessionID
}

type RoomInfo struct {
	ID          domain.RoomID `json:"id"`
	MemberCount int           `json:"client_count"`
}

// Directory is the user store the matchmaking core reads and updates.
// Lookups return domain.ErrProfileNotFound for unknown ids and wrap
// storage failures with domain.ErrDirectoryUnavailable.
type Directory interface {
	// FindOneWaiting returns the first waiting profile accepted by f, or nil.
	FindOneWaiting(ctx context.Context, f MatchFilter) (*domain.Profile, error)
	Get(ctx context.Context, id domain.UserID) (*domain.Profile, error)
	GetStatus(ctx context.Context, id domain.UserID) (domain.Status, error)
	SetStatus(ctx context.Context, id domain.UserID, status domain.Status) error
	// SetStatusMany skips unknown ids.
	SetStatusMany(ctx context.Context, ids []domain.UserID, status domain.Status) error
	// Upsert stores profile fields; the status of an existing record is kept.
	Upsert(ctx context.Context, p domain.Profile) error
}
