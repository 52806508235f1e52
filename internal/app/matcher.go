package app

import (
	"context"
	"fmt"

	"github.com/dkeye/nearby/internal/core"
	"github.com/dkeye/nearby/internal/domain"
	"github.com/rs/zerolog/log"
)

const (
	cityPrefixLen  = 3
	statePrefixLen = 2
)

// Matcher picks a partner for an arriving user from the directory.
// With proximity enforced it tries the 3-digit (city) prefix first and
// falls back to the 2-digit (state) prefix.
type Matcher struct {
	Directory        core.Directory
	EnforceProximity bool
}

func NewMatcher(dir core.Directory, enforceProximity bool) *Matcher {
	return &Matcher{Directory: dir, EnforceProximity: enforceProximity}
}

// FindPartner returns nil, nil when nobody suitable is waiting.
func (m *Matcher) FindPartner(ctx context.Context, postalCode string, gender domain.Gender) (*domain.Profile, error) {
	want, err := gender.Opposite()
	if err != nil {
		return nil, err
	}

	if !m.EnforceProximity {
		return m.find(ctx, core.MatchFilter{Gender: want}, "any")
	}

	for _, tier := range []struct {
		name string
		n    int
	}{{"city", cityPrefixLen}, {"state", statePrefixLen}} {
		p, err := m.find(ctx, core.MatchFilter{
			Gender:            want,
			Proximity:         true,
			PostalPrefix:      prefix(postalCode, tier.n),
			ExcludePostalCode: postalCode,
		}, tier.name)
		if err != nil || p != nil {
			return p, err
		}
	}
	return nil, nil
}

func (m *Matcher) find(ctx context.Context, f core.MatchFilter, tier string) (*domain.Profile, error) {
	p, err := m.Directory.FindOneWaiting(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("find partner (%s): %w", tier, err)
	}
	if p != nil {
		log.Debug().Str("module", "app.matcher").Str("tier", tier).Str("partner", string(p.ID)).Msg("partner found")
	}
	return p, nil
}

// prefix degrades to the whole code when it is shorter than n.
func prefix(s string, n int) string {
	if len(s) < n {
		return s
	}
	return s[:n]
}
