package core

import (
	"strings"

	"github.com/dkeye/nearby/internal/domain"
)

// MatchFilter selects partner candidates among waiting profiles.
// Postal fields are ignored unless Proximity is set.
type MatchFilter struct {
	Gender            domain.Gender
	Proximity         bool
	PostalPrefix      string
	ExcludePostalCode string
}

func (f MatchFilter) Match(p *domain.Profile) bool {
	if p == nil || p.Status != domain.StatusWaiting || p.Gender != f.Gender {
		return false
	}
	if !f.Proximity {
		return true
	}
	return p.PostalCode != f.ExcludePostalCode && strings.HasPrefix(p.PostalCode, f.PostalPrefix)
}
