package domain_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Rancune/nightcity-hq/internal/domain"
)

func TestNextRevealLowestFirst(t *testing.T) {
	req := domain.SkillSet{domain.SkillHacking: 8, domain.SkillStealth: 3, domain.SkillCombat: 5}

	sk, ok := req.NextReveal(nil)
	require.True(t, ok)
	require.Equal(t, domain.SkillStealth, sk)

	sk, _ = req.NextReveal([]domain.Skill{domain.SkillStealth})
	require.Equal(t, domain.SkillCombat, sk)

	_, ok = req.NextReveal([]domain.Skill{domain.SkillStealth, domain.SkillCombat, domain.SkillHacking})
	require.False(t, ok)
}

func TestNextRevealTieUsesCanonicalOrder(t *testing.T) {
	req := domain.SkillSet{domain.SkillCombat: 4, domain.SkillHacking: 4}
	sk, ok := req.NextReveal(nil)
	require.True(t, ok)
	require.Equal(t, domain.SkillHacking, sk)
}

func TestContractStatusRules(t *testing.T) {
	require.Equal(t, domain.ContractActive, domain.ContractAssigned.Normalize())
	require.True(t, domain.ContractExpired.Terminal())
	require.False(t, domain.ContractAssigned.Terminal())
	owner := "alice"
	c := domain.Contract{Status: domain.ContractProposed}
	require.True(t, c.Public())
	c.OwnerID = &owner
	require.False(t, c.Public())
	require.True(t, c.OwnedBy("alice"))
}

func TestEffectValidate(t *testing.T) {
	require.NoError(t, domain.BonusRoll(2).Validate())
	require.Error(t, domain.BonusRoll(0).Validate())
	require.NoError(t, domain.PermanentBoost(domain.SkillStealth, 1).Validate())
	require.Error(t, domain.PermanentBoost("charm", 1).Validate())
	require.Error(t, domain.Effect{Kind: "teleport"}.Validate())
	require.True(t, domain.SkipCheck().Armable())
	require.False(t, domain.RevealAll().Armable())
}
