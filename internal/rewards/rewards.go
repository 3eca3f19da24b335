// Package rewards derives contract requirements, payouts and skill-check
// outcomes from the balance policy.
package rewards

import (
	"math"
	"math/rand"
	"time"

	"github.com/Rancune/nightcity-hq/internal/config"
	"github.com/Rancune/nightcity-hq/internal/domain"
)

type Policy struct {
	MaxThreat       int
	BaseEddies      int64
	BaseReputation  int
	ThreatCurve     []float64
	StandingDivisor float64
	MinMultiplier   float64
	MaxMultiplier   float64
	FailurePenalty  float64
}

func FromConfig(cfg *config.Config) Policy {
	return Policy{
		MaxThreat:       cfg.Contracts.MaxThreat,
		BaseEddies:      cfg.Rewards.BaseEddies,
		BaseReputation:  cfg.Rewards.BaseReputation,
		ThreatCurve:     cfg.Rewards.ThreatCurve,
		StandingDivisor: cfg.Rewards.StandingDivisor,
		MinMultiplier:   cfg.Rewards.MinMultiplier,
		MaxMultiplier:   cfg.Rewards.MaxMultiplier,
		FailurePenalty:  cfg.Rewards.FailurePenalty,
	}
}

// ClampThreat bounds a threat level to [1, MaxThreat].
func (p Policy) ClampThreat(threat int) int {
	if threat < 1 {
		return 1
	}
	if p.MaxThreat > 0 && threat > p.MaxThreat {
		return p.MaxThreat
	}
	return threat
}

func (p Policy) curve(threat int) float64 {
	if len(p.ThreatCurve) == 0 {
		return float64(threat)
	}
	idx := threat - 1
	if idx >= len(p.ThreatCurve) {
		idx = len(p.ThreatCurve) - 1
	}
	return p.ThreatCurve[idx]
}

// BaseReward is the contract reward before standing is applied.
func (p Policy) BaseReward(threat int) domain.Reward {
	threat = p.ClampThreat(threat)
	return domain.Reward{
		Eddies:     int64(math.Round(float64(p.BaseEddies) * p.curve(threat))),
		Reputation: p.BaseReputation * threat,
	}
}

// StandingMultiplier scales payouts by the employer relation. It is 1.0 at a
// neutral relation and never decreases as the relation improves.
func (p Policy) StandingMultiplier(relation int) float64 {
	div := p.StandingDivisor
	if div <= 0 {
		div = 200
	}
	m := 1 + float64(relation)/div
	if p.MinMultiplier > 0 && m < p.MinMultiplier {
		m = p.MinMultiplier
	}
	if p.MaxMultiplier > 0 && m > p.MaxMultiplier {
		m = p.MaxMultiplier
	}
	return m
}

// Payout applies the standing multiplier to the currency part of base.
func (p Policy) Payout(base domain.Reward, relation int) domain.Reward {
	return domain.Reward{
		Eddies:     int64(math.Round(float64(base.Eddies) * p.StandingMultiplier(relation))),
		Reputation: base.Reputation,
	}
}

// ReputationLoss is what a failed contract costs the owner.
func (p Policy) ReputationLoss(base domain.Reward) int {
	return int(math.Ceil(float64(base.Reputation) * p.FailurePenalty))
}

func clampSkill(v int) int {
	if v < 1 {
		return 1
	}
	if v > domain.MaxSkill {
		return domain.MaxSkill
	}
	return v
}

func primarySkill(a domain.Archetype) domain.Skill {
	switch a {
	case domain.ArchetypeNetrun:
		return domain.SkillHacking
	case domain.ArchetypeInfiltration:
		return domain.SkillStealth
	default:
		return domain.SkillCombat
	}
}

// RequiredSkills rolls the thresholds for a contract. Heists need every skill
// at a moderate level; other archetypes lean on one skill and pick up a
// secondary one from threat 3.
func RequiredSkills(threat int, a domain.Archetype, rng *rand.Rand) domain.SkillSet {
	if threat < 1 {
		threat = 1
	}
	req := domain.SkillSet{}
	if a == domain.ArchetypeHeist {
		for _, sk := range domain.Skills {
			req[sk] = clampSkill(threat + rng.Intn(2))
		}
		return req
	}
	primary := primarySkill(a)
	req[primary] = clampSkill(2*threat + rng.Intn(2))
	if threat >= 3 {
		var others []domain.Skill
		for _, sk := range domain.Skills {
			if sk != primary {
				others = append(others, sk)
			}
		}
		req[others[rng.Intn(len(others))]] = clampSkill(threat + rng.Intn(2) - 1)
	}
	return req
}

// DurationFunc maps a threat level to how long an active contract runs.
type DurationFunc func(threat int) time.Duration

func LinearDuration(base, perThreat time.Duration) DurationFunc {
	return func(threat int) time.Duration {
		if threat < 1 {
			threat = 1
		}
		return base + time.Duration(threat-1)*perThreat
	}
}

// BurnDuration is how long an operative that failed its check stays out.
func BurnDuration(threat int, base, perThreat time.Duration) time.Duration {
	return LinearDuration(base, perThreat)(threat)
}

// RecruitCost prices an operative by its total skill.
func RecruitCost(skills domain.SkillSet, base, perPoint int64) int64 {
	total := 0
	for _, sk := range domain.Skills {
		total += skills.Get(sk)
	}
	return base + perPoint*int64(total)
}

// RollOperative draws starting skills in [1, ceiling].
func RollOperative(ceiling int, rng *rand.Rand) domain.SkillSet {
	if ceiling < 1 {
		ceiling = 1
	}
	out := domain.SkillSet{}
	for _, sk := range domain.Skills {
		out[sk] = 1 + rng.Intn(ceiling)
	}
	return out
}

// ApplyBoost adds amount to a skill value without exceeding the cap.
func ApplyBoost(current, amount int) int {
	v := current + amount
	if v > domain.MaxSkill {
		return domain.MaxSkill
	}
	return v
}
