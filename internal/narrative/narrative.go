// Package narrative produces flavor text for contracts and operatives. Text
// never affects game rules; when the remote generator fails a deterministic
// local pool is used instead.
package narrative

import (
	"context"
	"hash/fnv"
	"log/slog"
	"strconv"

	"github.com/Rancune/nightcity-hq/internal/domain"
)

type ContractRequest struct {
	Archetype       domain.Archetype `json:"archetype"`
	ThreatLevel     int              `json:"threat_level"`
	TargetFaction   string           `json:"target_faction"`
	EmployerFaction string           `json:"employer_faction"`
}

type Brief struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	// Factions optionally tags the job as [target, employer].
	Factions []string `json:"factions,omitempty"`
}

type Identity struct {
	Name string `json:"name"`
	Lore string `json:"lore"`
}

type Generator interface {
	ContractBrief(ctx context.Context, req ContractRequest) (Brief, error)
	OperativeIdentity(ctx context.Context, skills domain.SkillSet) (Identity, error)
}

// Fallback is the local pool. It never fails and carries no lore.
type Fallback struct{}

var (
	titles = map[domain.Archetype][]string{
		domain.ArchetypeNetrun:       {"Ghost in the Subnet", "ICE Breaker", "Data Siphon", "Black Wall Whisper"},
		domain.ArchetypeInfiltration: {"Quiet Entry", "Badge Swap", "Night Shift", "Empty Corridor"},
		domain.ArchetypeExtraction:   {"Hot Pickup", "Asset Recovery", "Burning Bridge", "Last Ride Out"},
		domain.ArchetypeHeist:        {"Vault Job", "Clean Sweep", "Big Score", "Midnight Haul"},
	}
	handles = []string{"Nyx", "Rook", "Vandal", "Saint", "Kestrel", "Dolt", "Jinx", "Morrow", "Hex", "Cipher", "Wraith", "Tamsin"}
)

func pick(pool []string, parts ...string) string {
	h := fnv.New32a()
	for _, p := range parts {
		_, _ = h.Write([]byte(p))
		_, _ = h.Write([]byte{0})
	}
	return pool[int(h.Sum32()%uint32(len(pool)))]
}

func (Fallback) ContractBrief(_ context.Context, req ContractRequest) (Brief, error) {
	pool := titles[req.Archetype]
	if len(pool) == 0 {
		pool = titles[domain.ArchetypeHeist]
	}
	title := pick(pool, string(req.Archetype), req.TargetFaction, req.EmployerFaction, strconv.Itoa(req.ThreatLevel))
	return Brief{Title: title}, nil
}

func (Fallback) OperativeIdentity(_ context.Context, skills domain.SkillSet) (Identity, error) {
	var parts []string
	for _, sk := range domain.Skills {
		parts = append(parts, string(sk), strconv.Itoa(skills.Get(sk)))
	}
	return Identity{Name: pick(handles, parts...)}, nil
}

// WithFallback tries primary first and degrades to the local pool on error.
type WithFallback struct {
	Primary Generator
	Local   Fallback
	Log     *slog.Logger
}

func (w WithFallback) logger() *slog.Logger {
	if w.Log != nil {
		return w.Log
	}
	return slog.Default()
}

func (w WithFallback) ContractBrief(ctx context.Context, req ContractRequest) (Brief, error) {
	if w.Primary != nil {
		b, err := w.Primary.ContractBrief(ctx, req)
		if err == nil {
			return b, nil
		}
		w.logger().Warn("narrative generator failed, using fallback", "kind", "contract_brief", "err", err)
	}
	return w.Local.ContractBrief(ctx, req)
}

func (w WithFallback) OperativeIdentity(ctx context.Context, skills domain.SkillSet) (Identity, error) {
	if w.Primary != nil {
		id, err := w.Primary.OperativeIdentity(ctx, skills)
		if err == nil {
			return id, nil
		}
		w.logger().Warn("narrative generator failed, using fallback", "kind", "operative_identity", "err", err)
	}
	return w.Local.OperativeIdentity(ctx, skills)
}
