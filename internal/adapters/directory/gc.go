package directory

import (
	"context"
	"errors"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog/log"
)

// RunGC reclaims value-log space until ctx is done. In-memory stores have
// nothing to collect and return immediately.
func RunGC(ctx context.Context, db *badger.DB, interval time.Duration) error {
	if db.Opts().InMemory || interval <= 0 {
		return nil
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			for {
				err := db.RunValueLogGC(0.5)
				if errors.Is(err, badger.ErrNoRewrite) || errors.Is(err, badger.ErrRejected) {
					break
				}
				if err != nil {
					log.Warn().Err(err).Str("module", "directory").Msg("value log gc")
					break
				}
			}
		}
	}
}
