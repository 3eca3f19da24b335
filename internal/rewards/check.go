package rewards

import "github.com/Rancune/nightcity-hq/internal/domain"

type CheckResult struct {
	Skill       domain.Skill    `json:"skill"`
	OperativeID string          `json:"operative_id"`
	Threshold   int             `json:"threshold"`
	Value       int             `json:"value"`
	Passed      bool            `json:"passed"`
	Skipped     bool            `json:"skipped,omitempty"`
	Consumed    []domain.Effect `json:"consumed,omitempty"`
}

// Check runs one operative against one threshold. Armed one-shot effects are
// spent whether or not they were needed; the effects still armed afterwards are
// returned.
func Check(skill domain.Skill, threshold int, op domain.Operative) (CheckResult, []domain.Effect) {
	res := CheckResult{
		Skill:       skill,
		OperativeID: op.ID,
		Threshold:   threshold,
		Value:       op.Skills.Get(skill),
	}
	var remaining []domain.Effect
	for _, eff := range op.Effects {
		switch eff.Kind {
		case domain.EffectSkipCheck:
			res.Skipped = true
			res.Consumed = append(res.Consumed, eff)
		case domain.EffectBonusRoll:
			res.Value += eff.Amount
			res.Consumed = append(res.Consumed, eff)
		case domain.EffectRevealSkill, domain.EffectPermanentBoost, domain.EffectContractLead:
			remaining = append(remaining, eff)
		}
	}
	res.Passed = res.Skipped || res.Value >= threshold
	return res, remaining
}

type Outcome struct {
	Success bool          `json:"success"`
	Checks  []CheckResult `json:"checks"`
	// Remaining holds each operative's effects left after the checks.
	Remaining map[string][]domain.Effect `json:"-"`
}

// Evaluate checks every assignment of c. The contract succeeds only if every
// check passes. ops is keyed by operative id.
func Evaluate(c domain.Contract, ops map[string]domain.Operative) Outcome {
	out := Outcome{Success: true, Remaining: map[string][]domain.Effect{}}
	for _, sk := range c.RequiredSkills.Keys() {
		opID := c.Assignments[sk]
		op, ok := ops[opID]
		if !ok {
			out.Success = false
			out.Checks = append(out.Checks, CheckResult{Skill: sk, OperativeID: opID, Threshold: c.RequiredSkills[sk]})
			continue
		}
		res, remaining := Check(sk, c.RequiredSkills[sk], op)
		out.Checks = append(out.Checks, res)
		out.Remaining[opID] = remaining
		if !res.Passed {
			out.Success = false
		}
	}
	return out
}

// Failed reports whether the operative failed its own check.
func (o Outcome) Failed(operativeID string) bool {
	for _, c := range o.Checks {
		if c.OperativeID == operativeID && !c.Passed {
			return true
		}
	}
	return false
}
