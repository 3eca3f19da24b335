package domain

import "fmt"

type EffectKind string

const (
	EffectSkipCheck      EffectKind = "skip_check"
	EffectBonusRoll      EffectKind = "bonus_roll"
	EffectRevealSkill    EffectKind = "reveal_skill"
	EffectPermanentBoost EffectKind = "permanent_boost"
	EffectContractLead   EffectKind = "contract_lead"
)

// Effect is the closed set of item effects. Only the fields of its Kind are set:
// bonus_roll uses Amount, reveal_skill uses All, permanent_boost uses Skill and
// Amount, contract_lead uses Threat.
type Effect struct {
	Kind   EffectKind `json:"kind" yaml:"kind" enum:"skip_check,bonus_roll,reveal_skill,permanent_boost,contract_lead"`
	Amount int        `json:"amount,omitempty" yaml:"amount,omitempty"`
	Skill  Skill      `json:"skill,omitempty" yaml:"skill,omitempty"`
	All    bool       `json:"all,omitempty" yaml:"all,omitempty"`
	Threat int        `json:"threat,omitempty" yaml:"threat,omitempty"`
}

func SkipCheck() Effect              { return Effect{Kind: EffectSkipCheck} }
func BonusRoll(amount int) Effect    { return Effect{Kind: EffectBonusRoll, Amount: amount} }
func RevealOne() Effect              { return Effect{Kind: EffectRevealSkill} }
func RevealAll() Effect              { return Effect{Kind: EffectRevealSkill, All: true} }
func ContractLead(threat int) Effect { return Effect{Kind: EffectContractLead, Threat: threat} }

func PermanentBoost(skill Skill, amount int) Effect {
	return Effect{Kind: EffectPermanentBoost, Skill: skill, Amount: amount}
}

// Armable reports whether the effect is spent during a skill check.
func (e Effect) Armable() bool {
	return e.Kind == EffectSkipCheck || e.Kind == EffectBonusRoll
}

func (e Effect) Validate() error {
	switch e.Kind {
	case EffectSkipCheck:
		return nil
	case EffectBonusRoll:
		if e.Amount <= 0 {
			return fmt.Errorf("bonus_roll amount must be positive")
		}
		return nil
	case EffectRevealSkill:
		return nil
	case EffectPermanentBoost:
		if !e.Skill.Valid() {
			return fmt.Errorf("permanent_boost skill %q unknown", e.Skill)
		}
		if e.Amount <= 0 {
			return fmt.Errorf("permanent_boost amount must be positive")
		}
		return nil
	case EffectContractLead:
		if e.Threat < 1 {
			return fmt.Errorf("contract_lead threat must be >= 1")
		}
		return nil
	}
	return fmt.Errorf("unknown effect kind %q", e.Kind)
}

func (e Effect) String() string {
	switch e.Kind {
	case EffectBonusRoll:
		return fmt.Sprintf("bonus_roll(+%d)", e.Amount)
	case EffectRevealSkill:
		if e.All {
			return "reveal_skill(all)"
		}
		return "reveal_skill(one)"
	case EffectPermanentBoost:
		return fmt.Sprintf("permanent_boost(%s+%d)", e.Skill, e.Amount)
	case EffectContractLead:
		return fmt.Sprintf("contract_lead(threat %d)", e.Threat)
	}
	return string(e.Kind)
}
