// Package directory stores user profiles in BadgerDB.
package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/dkeye/nearby/internal/core"
	"github.com/dkeye/nearby/internal/domain"
	"github.com/rs/zerolog/log"
)

const keyPrefix = "user:"

// BadgerDirectory implements core.Directory.
// Profiles live under "user:{id}" as JSON; FindOneWaiting scans in key order,
// so the first match for a given filter is stable.
type BadgerDirectory struct {
	db *badger.DB
}

var _ core.Directory = (*BadgerDirectory)(nil)

func NewBadgerDirectory(db *badger.DB) *BadgerDirectory {
	return &BadgerDirectory{db: db}
}

// Open opens the store at path, or an in-memory store when path is empty.
func Open(path string) (*badger.DB, error) {
	opts := badger.DefaultOptions(path)
	if path == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	db, err := badger.Open(opts.WithLoggingLevel(badger.WARNING))
	if err != nil {
		return nil, fmt.Errorf("open directory: %w", err)
	}
	return db, nil
}

func userKey(id domain.UserID) []byte {
	return []byte(keyPrefix + string(id))
}

func (d *BadgerDirectory) FindOneWaiting(ctx context.Context, f core.MatchFilter) (*domain.Profile, error) {
	var found *domain.Profile
	err := d.view(ctx, func(txn *badger.Txn) error {
		found = nil
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte(keyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var p domain.Profile
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &p)
			}); err != nil {
				return err
			}
			if f.Match(&p) {
				found = &p
				return nil
			}
		}
		return nil
	})
	return found, err
}

func (d *BadgerDirectory) Get(ctx context.Context, id domain.UserID) (*domain.Profile, error) {
	var p domain.Profile
	err := d.view(ctx, func(txn *badger.Txn) error {
		return getProfile(txn, id, &p)
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (d *BadgerDirectory) GetStatus(ctx context.Context, id domain.UserID) (domain.Status, error) {
	p, err := d.Get(ctx, id)
	if err != nil {
		return "", err
	}
	return p.Status, nil
}

func (d *BadgerDirectory) SetStatus(ctx context.Context, id domain.UserID, status domain.Status) error {
	return d.update(ctx, func(txn *badger.Txn) error {
		var p domain.Profile
		if err := getProfile(txn, id, &p); err != nil {
			return err
		}
		p.Status = status
		return putProfile(txn, &p)
	})
}

func (d *BadgerDirectory) SetStatusMany(ctx context.Context, ids []domain.UserID, status domain.Status) error {
	return d.update(ctx, func(txn *badger.Txn) error {
		for _, id := range ids {
			var p domain.Profile
			err := getProfile(txn, id, &p)
			if errors.Is(err, domain.ErrProfileNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			p.Status = status
			if err := putProfile(txn, &p); err != nil {
				return err
			}
		}
		return nil
	})
}

func (d *BadgerDirectory) Upsert(ctx context.Context, p domain.Profile) error {
	return d.update(ctx, func(txn *badger.Txn) error {
		var existing domain.Profile
		err := getProfile(txn, p.ID, &existing)
		switch {
		case err == nil:
			p.Status = existing.Status
		case errors.Is(err, domain.ErrProfileNotFound):
			if p.Status == "" {
				p.Status = domain.StatusOffline
			}
		default:
			return err
		}
		return putProfile(txn, &p)
	})
}

func getProfile(txn *badger.Txn, id domain.UserID, p *domain.Profile) error {
	item, err := txn.Get(userKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return domain.ErrProfileNotFound
	}
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, p)
	})
}

func putProfile(txn *badger.Txn, p *domain.Profile) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal profile: %w", err)
	}
	return txn.Set(userKey(p.ID), data)
}

func (d *BadgerDirectory) view(ctx context.Context, fn func(txn *badger.Txn) error) error {
	return retryOnce(ctx, "view", func() error { return d.db.View(fn) })
}

func (d *BadgerDirectory) update(ctx context.Context, fn func(txn *badger.Txn) error) error {
	return retryOnce(ctx, "update", func() error { return d.db.Update(fn) })
}

// retryOnce runs fn a second time on storage failures. Not-found is final.
func retryOnce(ctx context.Context, op string, fn func() error) error {
	var err error
	for attempt := 0; attempt < 2; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("%w: %s: %w", domain.ErrDirectoryUnavailable, op, ctxErr)
		}
		err = fn()
		if err == nil || errors.Is(err, domain.ErrProfileNotFound) {
			return err
		}
		log.Warn().Err(err).Str("module", "directory").Str("op", op).Int("attempt", attempt+1).Msg("directory call failed")
	}
	return fmt.Errorf("%w: %s: %w", domain.ErrDirectoryUnavailable, op, err)
}
