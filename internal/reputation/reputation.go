// Package reputation names standing tiers and decides threat decay.
package reputation

import (
	"time"

	"github.com/Rancune/nightcity-hq/internal/config"
	"github.com/Rancune/nightcity-hq/internal/domain"
)

// Ladder is an ascending list of tiers.
type Ladder []config.Tier

// Name returns the highest tier whose minimum score reaches. Scores below the
// first tier still get the first name.
func (l Ladder) Name(score int) string {
	if len(l) == 0 {
		return ""
	}
	name := l[0].Name
	for _, t := range l {
		if score >= t.Min {
			name = t.Name
		}
	}
	return name
}

// Reached lists tiers with an unlock that score now meets but before did not.
func (l Ladder) Reached(before, after int) []config.Tier {
	var out []config.Tier
	for _, t := range l {
		if t.Unlock == "" {
			continue
		}
		if before < t.Min && after >= t.Min {
			out = append(out, t)
		}
	}
	return out
}

// DecayDue reports whether a standing has gone a full interval without hostile
// activity and still carries threat.
func DecayDue(s domain.FactionStanding, now time.Time, interval time.Duration) bool {
	if s.Threat <= 0 {
		return false
	}
	return !now.Before(s.ThreatUpdatedAt.Add(interval))
}

// Ledger history entry kinds.
const (
	KindRelation = "relation"
	KindHostile  = "hostile"
	KindDecay    = "decay"
	KindUnlock   = "unlock"
)
