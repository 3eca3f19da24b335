package domain

// NextReveal picks the lowest-valued required skill not yet in revealed. Ties
// go to the skill that comes first in canonical order.
func (s SkillSet) NextReveal(revealed []Skill) (Skill, bool) {
	done := map[Skill]bool{}
	for _, r := range revealed {
		done[r] = true
	}
	var (
		best  Skill
		value int
		found bool
	)
	for _, sk := range Skills {
		v := s[sk]
		if v == 0 || done[sk] {
			continue
		}
		if !found || v < value {
			best, value, found = sk, v, true
		}
	}
	return best, found
}
