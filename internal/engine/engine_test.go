package engine_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/Rancune/nightcity-hq/internal/config"
	"github.com/Rancune/nightcity-hq/internal/db"
	"github.com/Rancune/nightcity-hq/internal/domain"
	"github.com/Rancune/nightcity-hq/internal/engine"
	"github.com/Rancune/nightcity-hq/internal/gameerr"
	"github.com/Rancune/nightcity-hq/internal/migrate"
	"github.com/Rancune/nightcity-hq/internal/narrative"
	"github.com/Rancune/nightcity-hq/internal/repo"
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
	now    *time.Time
}

func (env testEnv) advance(d time.Duration) {
	*env.now = env.now.Add(d)
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	return newTestEnvWith(t, config.Default())
}

func newTestEnvWith(t *testing.T, cfg *config.Config) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Dialect: db.SQLite, Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn, db.SQLite); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	eng := engine.New(conn, db.SQLite, cfg)
	eng.Now = func() time.Time { return now }
	eng.Rand = engine.NewRand(1)
	eng.Narrative = narrative.Fallback{}
	return testEnv{Engine: eng, Ctx: context.Background(), now: &now}
}

func (env testEnv) actor(t *testing.T, id string) domain.ActorProfile {
	t.Helper()
	a, err := env.Engine.EnsureActor(env.Ctx, id)
	if err != nil {
		t.Fatalf("ensure actor %s: %v", id, err)
	}
	return a
}

func (env testEnv) operative(t *testing.T, owner string, skills domain.SkillSet) domain.Operative {
	t.Helper()
	op := domain.Operative{
		ID:        uuid.NewString(),
		OwnerID:   owner,
		Name:      "Test",
		Skills:    skills,
		Status:    domain.OperativeAvailable,
		CreatedAt: *env.now,
	}
	if err := env.Engine.Repo.InsertOperative(env.Ctx, env.Engine.DB, op); err != nil {
		t.Fatalf("insert operative: %v", err)
	}
	return op
}

func (env testEnv) contract(t *testing.T, req domain.SkillSet) domain.Contract {
	t.Helper()
	c, err := env.Engine.GenerateContract(env.Ctx, engine.ContractOptions{
		EmployerFaction: "arasaka",
		TargetFaction:   "militech",
		ThreatLevel:     1,
		Archetype:       domain.ArchetypeNetrun,
		RequiredSkills:  req,
	})
	if err != nil {
		t.Fatalf("generate contract: %v", err)
	}
	return c
}

func (env testEnv) give(t *testing.T, actorID, itemID string, qty int) {
	t.Helper()
	if _, err := env.Engine.MarketState(env.Ctx); err != nil {
		t.Fatalf("market: %v", err)
	}
	if err := env.Engine.Repo.AddInventory(env.Ctx, env.Engine.DB, actorID, itemID, qty); err != nil {
		t.Fatalf("give %s: %v", itemID, err)
	}
}

func requireKind(t *testing.T, err error, kind gameerr.Kind) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, kind, gameerr.KindOf(err), "error: %v", err)
}

func TestEnsureActorStartingBalance(t *testing.T) {
	env := newTestEnv(t)
	a := env.actor(t, "alice")
	require.Equal(t, int64(1000), a.Currency)
	require.Equal(t, "Street Kid", a.Tier)

	again := env.actor(t, "alice")
	require.Equal(t, a.CreatedAt, again.CreatedAt)

	_, err := env.Engine.EnsureActor(env.Ctx, "")
	requireKind(t, err, gameerr.KindUnauthorized)
}

func TestAcceptanceCountdownExpiresOnNextObservation(t *testing.T) {
	cfg := config.Default()
	cfg.Contracts.AcceptanceTRP = 600
	env := newTestEnvWith(t, cfg)
	env.actor(t, "alice")
	c := env.contract(t, domain.SkillSet{domain.SkillHacking: 3})

	// Below the minimum tick nothing is charged.
	env.advance(5 * time.Second)
	res, err := env.Engine.Tick(env.Ctx, "alice")
	require.NoError(t, err)
	require.False(t, res.Applied)

	env.advance(15 * time.Second)
	res, err = env.Engine.Tick(env.Ctx, "alice")
	require.NoError(t, err)
	require.True(t, res.Applied)
	require.Equal(t, int64(1200), res.TRP)
	require.Zero(t, res.Expired)

	got, err := env.Engine.Repo.GetContract(env.Ctx, env.Engine.DB, c.ID)
	require.NoError(t, err)
	require.Equal(t, domain.ContractProposed, got.Status)
	require.Equal(t, int64(-600), got.AcceptanceTRP)

	res, err = env.Engine.Tick(env.Ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, 1, res.Expired)

	got, err = env.Engine.Repo.GetContract(env.Ctx, env.Engine.DB, c.ID)
	require.NoError(t, err)
	require.Equal(t, domain.ContractExpired, got.Status)
	require.NotNil(t, got.ResolvedAt)

	_, err = env.Engine.AcceptContract(env.Ctx, c.ID, "alice")
	requireKind(t, err, gameerr.KindInvalidState)
}

func TestAcceptSpentCountdownExpires(t *testing.T) {
	cfg := config.Default()
	cfg.Contracts.AcceptanceTRP = 60
	env := newTestEnvWith(t, cfg)
	env.actor(t, "alice")
	env.actor(t, "bob")
	c := env.contract(t, domain.SkillSet{domain.SkillHacking: 3})

	env.advance(time.Minute)
	_, err := env.Engine.Tick(env.Ctx, "bob")
	require.NoError(t, err)

	_, err = env.Engine.AcceptContract(env.Ctx, c.ID, "alice")
	requireKind(t, err, gameerr.KindInvalidState)
	got, err := env.Engine.Repo.GetContract(env.Ctx, env.Engine.DB, c.ID)
	require.NoError(t, err)
	require.Equal(t, domain.ContractExpired, got.Status)
}

func TestContractReadsChargeIdleTime(t *testing.T) {
	cfg := config.Default()
	cfg.Contracts.AcceptanceTRP = 600
	env := newTestEnvWith(t, cfg)
	env.actor(t, "alice")
	c := env.contract(t, domain.SkillSet{domain.SkillHacking: 3})

	env.advance(time.Hour)
	v, err := env.Engine.GetContract(env.Ctx, c.ID, "alice")
	require.NoError(t, err)
	require.Equal(t, domain.ContractProposed, v.Status)
	require.Equal(t, int64(600-3600*60), v.AcceptanceTRP)

	_, err = env.Engine.AcceptContract(env.Ctx, c.ID, "alice")
	requireKind(t, err, gameerr.KindInvalidState)
	got, err := env.Engine.Repo.GetContract(env.Ctx, env.Engine.DB, c.ID)
	require.NoError(t, err)
	require.Equal(t, domain.ContractExpired, got.Status)
}

func TestAssignAfterIdleExpires(t *testing.T) {
	cfg := config.Default()
	cfg.Contracts.AcceptanceTRP = 600
	env := newTestEnvWith(t, cfg)
	env.actor(t, "alice")
	c := env.contract(t, domain.SkillSet{domain.SkillHacking: 3})
	op := env.operative(t, "alice", domain.SkillSet{domain.SkillHacking: 5, domain.SkillStealth: 1, domain.SkillCombat: 1})

	_, err := env.Engine.AcceptContract(env.Ctx, c.ID, "alice")
	require.NoError(t, err)

	env.advance(time.Hour)
	_, err = env.Engine.AssignOperatives(env.Ctx, c.ID, "alice", map[domain.Skill]string{domain.SkillHacking: op.ID})
	requireKind(t, err, gameerr.KindInvalidState)

	got, err := env.Engine.Repo.GetContract(env.Ctx, env.Engine.DB, c.ID)
	require.NoError(t, err)
	require.Equal(t, domain.ContractExpired, got.Status)
	idle, err := env.Engine.Repo.GetOperative(env.Ctx, env.Engine.DB, op.ID)
	require.NoError(t, err)
	require.Equal(t, domain.OperativeAvailable, idle.Status)
}

func TestConcurrentAcceptHasOneWinner(t *testing.T) {
	env := newTestEnv(t)
	actors := []string{"a1", "a2", "a3", "a4", "a5", "a6"}
	for _, a := range actors {
		env.actor(t, a)
	}
	c := env.contract(t, domain.SkillSet{domain.SkillStealth: 2})

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins []string
		errs []error
	)
	for _, a := range actors {
		wg.Add(1)
		go func(actorID string) {
			defer wg.Done()
			_, err := env.Engine.AcceptContract(env.Ctx, c.ID, actorID)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			wins = append(wins, actorID)
		}(a)
	}
	wg.Wait()

	require.Len(t, wins, 1)
	require.Len(t, errs, len(actors)-1)
	for _, err := range errs {
		requireKind(t, err, gameerr.KindConflict)
	}
	got, err := env.Engine.Repo.GetContract(env.Ctx, env.Engine.DB, c.ID)
	require.NoError(t, err)
	require.True(t, got.OwnedBy(wins[0]))
}

func TestEmployerCannotAcceptOwnContract(t *testing.T) {
	env := newTestEnv(t)
	env.actor(t, "alice")
	c, err := env.Engine.GenerateContract(env.Ctx, engine.ContractOptions{
		EmployerID:      "alice",
		EmployerFaction: "valentinos",
		TargetFaction:   "maelstrom",
		ThreatLevel:     2,
	})
	require.NoError(t, err)
	_, err = env.Engine.AcceptContract(env.Ctx, c.ID, "alice")
	requireKind(t, err, gameerr.KindForbidden)

	_, err = env.Engine.AcceptContract(env.Ctx, "missing", "alice")
	requireKind(t, err, gameerr.KindNotFound)
}

func TestAssignRequiresExactSkillSet(t *testing.T) {
	env := newTestEnv(t)
	env.actor(t, "alice")
	env.actor(t, "bob")
	c := env.contract(t, domain.SkillSet{domain.SkillHacking: 3, domain.SkillStealth: 2})
	hacker := env.operative(t, "alice", domain.SkillSet{domain.SkillHacking: 5, domain.SkillStealth: 1, domain.SkillCombat: 1})
	sneak := env.operative(t, "alice", domain.SkillSet{domain.SkillStealth: 4, domain.SkillHacking: 1, domain.SkillCombat: 1})
	brute := env.operative(t, "alice", domain.SkillSet{domain.SkillCombat: 6, domain.SkillHacking: 1, domain.SkillStealth: 1})
	foreign := env.operative(t, "bob", domain.SkillSet{domain.SkillStealth: 9, domain.SkillHacking: 1, domain.SkillCombat: 1})

	_, err := env.Engine.AssignOperatives(env.Ctx, c.ID, "alice", map[domain.Skill]string{domain.SkillHacking: hacker.ID})
	requireKind(t, err, gameerr.KindInvalidState)

	_, err = env.Engine.AcceptContract(env.Ctx, c.ID, "alice")
	require.NoError(t, err)

	_, err = env.Engine.AssignOperatives(env.Ctx, c.ID, "bob", map[domain.Skill]string{
		domain.SkillHacking: hacker.ID, domain.SkillStealth: sneak.ID,
	})
	requireKind(t, err, gameerr.KindForbidden)

	_, err = env.Engine.AssignOperatives(env.Ctx, c.ID, "alice", map[domain.Skill]string{domain.SkillHacking: hacker.ID})
	requireKind(t, err, gameerr.KindInvalidState)

	_, err = env.Engine.AssignOperatives(env.Ctx, c.ID, "alice", map[domain.Skill]string{
		domain.SkillHacking: hacker.ID, domain.SkillStealth: sneak.ID, domain.SkillCombat: brute.ID,
	})
	requireKind(t, err, gameerr.KindInvalidState)

	_, err = env.Engine.AssignOperatives(env.Ctx, c.ID, "alice", map[domain.Skill]string{
		domain.SkillHacking: hacker.ID, domain.SkillStealth: hacker.ID,
	})
	requireKind(t, err, gameerr.KindInvalidState)

	_, err = env.Engine.AssignOperatives(env.Ctx, c.ID, "alice", map[domain.Skill]string{
		domain.SkillHacking: hacker.ID, domain.SkillStealth: foreign.ID,
	})
	requireKind(t, err, gameerr.KindForbidden)

	v, err := env.Engine.AssignOperatives(env.Ctx, c.ID, "alice", map[domain.Skill]string{
		domain.SkillHacking: hacker.ID, domain.SkillStealth: sneak.ID,
	})
	require.NoError(t, err)
	require.Equal(t, domain.ContractActive, v.Status)
	require.NotNil(t, v.StartedAt)
	require.Equal(t, 2*time.Minute, v.CompletionDuration)

	op, err := env.Engine.Repo.GetOperative(env.Ctx, env.Engine.DB, hacker.ID)
	require.NoError(t, err)
	require.Equal(t, domain.OperativeOnMission, op.Status)

	c2 := env.contract(t, domain.SkillSet{domain.SkillHacking: 1})
	_, err = env.Engine.AcceptContract(env.Ctx, c2.ID, "alice")
	require.NoError(t, err)
	_, err = env.Engine.AssignOperatives(env.Ctx, c2.ID, "alice", map[domain.Skill]string{domain.SkillHacking: hacker.ID})
	requireKind(t, err, gameerr.KindConflict)
}

func TestContractLifecycleEndToEnd(t *testing.T) {
	env := newTestEnv(t)
	env.actor(t, "alice")
	c := env.contract(t, domain.SkillSet{domain.SkillHacking: 3})
	require.Equal(t, domain.Reward{Eddies: 500, Reputation: 10}, c.Reward)
	op := env.operative(t, "alice", domain.SkillSet{domain.SkillHacking: 5, domain.SkillStealth: 1, domain.SkillCombat: 1})

	_, err := env.Engine.AcceptContract(env.Ctx, c.ID, "alice")
	require.NoError(t, err)
	_, err = env.Engine.AssignOperatives(env.Ctx, c.ID, "alice", map[domain.Skill]string{domain.SkillHacking: op.ID})
	require.NoError(t, err)

	env.advance(time.Minute)
	res, err := env.Engine.Tick(env.Ctx, "alice")
	require.NoError(t, err)
	require.Zero(t, res.Resolved)

	env.advance(time.Minute)
	res, err = env.Engine.Tick(env.Ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, 1, res.Resolved)

	p, err := env.Engine.GetProfile(env.Ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, int64(1500), p.Actor.Currency)
	require.Equal(t, 10, p.Actor.Reputation)

	employer, err := env.Engine.FactionStatus(env.Ctx, "alice", "arasaka")
	require.NoError(t, err)
	require.Equal(t, 10, employer.Relation)
	target, err := env.Engine.FactionStatus(env.Ctx, "alice", "militech")
	require.NoError(t, err)
	require.Equal(t, -5, target.Relation)
	require.Equal(t, 1, target.Threat)

	got, err := env.Engine.Repo.GetContract(env.Ctx, env.Engine.DB, c.ID)
	require.NoError(t, err)
	require.Equal(t, domain.ContractCompleted, got.Status)

	back, err := env.Engine.Repo.GetOperative(env.Ctx, env.Engine.DB, op.ID)
	require.NoError(t, err)
	require.Equal(t, domain.OperativeAvailable, back.Status)
	require.Nil(t, back.ContractID)

	notes, err := env.Engine.ListNotifications(env.Ctx, "alice", 0, 10)
	require.NoError(t, err)
	require.NotEmpty(t, notes)
	require.Equal(t, "contract.resolved", notes[len(notes)-1].Kind)

	// A second sweep finds nothing left to settle.
	n, err := env.Engine.ResolveDueContracts(env.Ctx)
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestFailedCheckBurnsOperative(t *testing.T) {
	env := newTestEnv(t)
	env.actor(t, "alice")
	c := env.contract(t, domain.SkillSet{domain.SkillCombat: 9})
	op := env.operative(t, "alice", domain.SkillSet{domain.SkillCombat: 2, domain.SkillHacking: 1, domain.SkillStealth: 1})

	_, err := env.Engine.AcceptContract(env.Ctx, c.ID, "alice")
	require.NoError(t, err)
	_, err = env.Engine.AssignOperatives(env.Ctx, c.ID, "alice", map[domain.Skill]string{domain.SkillCombat: op.ID})
	require.NoError(t, err)

	env.advance(3 * time.Minute)
	n, err := env.Engine.ResolveDueContracts(env.Ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	p, err := env.Engine.GetProfile(env.Ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, int64(1000), p.Actor.Currency)
	require.Equal(t, -5, p.Actor.Reputation)

	burned, err := env.Engine.Repo.GetOperative(env.Ctx, env.Engine.DB, op.ID)
	require.NoError(t, err)
	require.Equal(t, domain.OperativeBurned, burned.Status)
	require.NotNil(t, burned.RecoveryUntil)

	env.advance(30 * time.Minute)
	_, err = env.Engine.Tick(env.Ctx, "alice")
	require.NoError(t, err)
	back, err := env.Engine.Repo.GetOperative(env.Ctx, env.Engine.DB, op.ID)
	require.NoError(t, err)
	require.Equal(t, domain.OperativeAvailable, back.Status)
}

func TestArmedSkipCheckSavesMission(t *testing.T) {
	env := newTestEnv(t)
	env.actor(t, "alice")
	c := env.contract(t, domain.SkillSet{domain.SkillStealth: 10})
	op := env.operative(t, "alice", domain.SkillSet{domain.SkillStealth: 1, domain.SkillHacking: 1, domain.SkillCombat: 1})
	env.give(t, "alice", "ghost-protocol", 1)

	armed, err := env.Engine.UseConsumable(env.Ctx, "alice", op.ID, "ghost-protocol")
	require.NoError(t, err)
	require.Len(t, armed.Effects, 1)

	_, err = env.Engine.UseConsumable(env.Ctx, "alice", op.ID, "ghost-protocol")
	requireKind(t, err, gameerr.KindInsufficientResources)

	_, err = env.Engine.AcceptContract(env.Ctx, c.ID, "alice")
	require.NoError(t, err)
	_, err = env.Engine.AssignOperatives(env.Ctx, c.ID, "alice", map[domain.Skill]string{domain.SkillStealth: op.ID})
	require.NoError(t, err)
	env.advance(3 * time.Minute)
	_, err = env.Engine.ResolveDueContracts(env.Ctx)
	require.NoError(t, err)

	got, err := env.Engine.Repo.GetContract(env.Ctx, env.Engine.DB, c.ID)
	require.NoError(t, err)
	require.Equal(t, domain.ContractCompleted, got.Status)
	after, err := env.Engine.Repo.GetOperative(env.Ctx, env.Engine.DB, op.ID)
	require.NoError(t, err)
	require.Empty(t, after.Effects)
}

func TestRevealLowestSkillFirst(t *testing.T) {
	env := newTestEnv(t)
	env.actor(t, "alice")
	c := env.contract(t, domain.SkillSet{domain.SkillHacking: 8, domain.SkillStealth: 3, domain.SkillCombat: 5})

	_, _, err := env.Engine.RevealSkill(env.Ctx, c.ID, "alice")
	requireKind(t, err, gameerr.KindInsufficientResources)

	env.give(t, "alice", "mouchard", 3)
	want := []domain.Skill{domain.SkillStealth, domain.SkillCombat, domain.SkillHacking}
	for i, sk := range want {
		v, got, err := env.Engine.RevealSkill(env.Ctx, c.ID, "alice")
		require.NoError(t, err)
		require.Equal(t, sk, got)
		require.Len(t, v.RevealedSkills, i+1)
		require.Equal(t, 3-(i+1), v.HiddenSkills)
	}
	_, _, err = env.Engine.RevealSkill(env.Ctx, c.ID, "alice")
	requireKind(t, err, gameerr.KindInvalidState)

	p, err := env.Engine.GetProfile(env.Ctx, "alice")
	require.NoError(t, err)
	_, held := p.Actor.Inventory["mouchard"]
	require.False(t, held)

	// Reveals are per actor.
	views, err := env.Engine.ListContracts(env.Ctx, "bob")
	require.NoError(t, err)
	require.Len(t, views, 1)
	require.Equal(t, 3, views[0].HiddenSkills)
	require.Nil(t, views[0].RequiredSkills)
}

func TestAnalyzeRevealsEverything(t *testing.T) {
	env := newTestEnv(t)
	env.actor(t, "alice")
	c := env.contract(t, domain.SkillSet{domain.SkillHacking: 4, domain.SkillCombat: 2})
	env.give(t, "alice", "analyzer", 1)

	v, err := env.Engine.AnalyzeContract(env.Ctx, c.ID, "alice")
	require.NoError(t, err)
	require.True(t, v.Analyzed)
	require.Zero(t, v.HiddenSkills)
	require.Equal(t, 4, v.RevealedSkills.Get(domain.SkillHacking))

	p, err := env.Engine.GetProfile(env.Ctx, "alice")
	require.NoError(t, err)
	require.Zero(t, p.Actor.Inventory["analyzer"])

	env.give(t, "alice", "analyzer", 1)
	_, err = env.Engine.AnalyzeContract(env.Ctx, c.ID, "alice")
	requireKind(t, err, gameerr.KindInvalidState)
}

func TestThreatDecaySweep(t *testing.T) {
	env := newTestEnv(t)
	env.actor(t, "alice")
	for i := 0; i < 3; i++ {
		_, err := env.Engine.RecordHostileAction(env.Ctx, "alice", "netwatch", "trace")
		require.NoError(t, err)
	}

	res, err := env.Engine.DecayThreatSweep(env.Ctx)
	require.NoError(t, err)
	require.Zero(t, res.Decremented)

	env.advance(12 * time.Hour)
	res, err = env.Engine.DecayThreatSweep(env.Ctx)
	require.NoError(t, err)
	require.Equal(t, 1, res.Decremented)
	s, err := env.Engine.FactionStatus(env.Ctx, "alice", "netwatch")
	require.NoError(t, err)
	require.Equal(t, 2, s.Threat)

	res, err = env.Engine.DecayThreatSweep(env.Ctx)
	require.NoError(t, err)
	require.Zero(t, res.Decremented)

	_, err = env.Engine.RecordHostileAction(env.Ctx, "alice", "nobody", "")
	requireKind(t, err, gameerr.KindInvalidInput)
}

func TestRelationUnlocksOpportunityOnce(t *testing.T) {
	env := newTestEnv(t)
	env.actor(t, "alice")
	s, err := env.Engine.AdjustRelation(env.Ctx, "alice", "arasaka", 80, "grant")
	require.NoError(t, err)
	require.Equal(t, "Allied", s.Status)

	_, err = env.Engine.AdjustRelation(env.Ctx, "alice", "arasaka", -20, "slight")
	require.NoError(t, err)
	_, err = env.Engine.AdjustRelation(env.Ctx, "alice", "arasaka", 20, "recovered")
	require.NoError(t, err)

	p, err := env.Engine.GetProfile(env.Ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, []string{"inner_circle_jobs"}, p.Unlocks)

	hist, err := env.Engine.FactionHistory(env.Ctx, "alice")
	require.NoError(t, err)
	require.NotEmpty(t, hist)
}

func TestMarketRotation(t *testing.T) {
	env := newTestEnv(t)
	env.actor(t, "alice")

	rotated, err := env.Engine.RotateMarketIfDue(env.Ctx)
	require.NoError(t, err)
	require.False(t, rotated)
	st, err := env.Engine.MarketState(env.Ctx)
	require.NoError(t, err)
	require.Equal(t, time.Date(2024, 1, 1, 6, 0, 0, 0, time.UTC), st.NextRotation)

	res, err := env.Engine.PurchaseItem(env.Ctx, "alice", "mouchard")
	require.NoError(t, err)
	require.Equal(t, res.Item.MaxStock-1, res.Item.Stock)

	env.advance(6 * time.Hour)
	rotated, err = env.Engine.RotateMarketIfDue(env.Ctx)
	require.NoError(t, err)
	require.True(t, rotated)
	rotated, err = env.Engine.RotateMarketIfDue(env.Ctx)
	require.NoError(t, err)
	require.False(t, rotated)

	item, err := env.Engine.Repo.GetCatalogItem(env.Ctx, env.Engine.DB, "mouchard")
	require.NoError(t, err)
	require.Equal(t, item.MaxStock, item.Stock)
	st, err = env.Engine.MarketState(env.Ctx)
	require.NoError(t, err)
	require.Equal(t, time.Date(2024, 1, 2, 6, 0, 0, 0, time.UTC), st.NextRotation)
}

func TestPurchaseIsAtomic(t *testing.T) {
	env := newTestEnv(t)
	env.actor(t, "alice")
	_, err := env.Engine.MarketState(env.Ctx)
	require.NoError(t, err)
	require.NoError(t, env.Engine.Repo.DebitCurrency(env.Ctx, env.Engine.DB, "alice", 950))

	before, err := env.Engine.Repo.GetCatalogItem(env.Ctx, env.Engine.DB, "mouchard")
	require.NoError(t, err)
	_, err = env.Engine.PurchaseItem(env.Ctx, "alice", "mouchard")
	requireKind(t, err, gameerr.KindInsufficientResources)

	after, err := env.Engine.Repo.GetCatalogItem(env.Ctx, env.Engine.DB, "mouchard")
	require.NoError(t, err)
	require.Equal(t, before.Stock, after.Stock)
	p, err := env.Engine.GetProfile(env.Ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, int64(50), p.Actor.Currency)
	require.Empty(t, p.Actor.Inventory)

	_, err = env.Engine.PurchaseItem(env.Ctx, "alice", "ghost-protocol")
	requireKind(t, err, gameerr.KindInsufficientResources)
	_, err = env.Engine.PurchaseItem(env.Ctx, "alice", "nope")
	requireKind(t, err, gameerr.KindNotFound)
}

func TestConcurrentPurchaseOfLastUnit(t *testing.T) {
	env := newTestEnv(t)
	buyers := []string{"b1", "b2", "b3", "b4", "b5", "b6"}
	for _, b := range buyers {
		env.actor(t, b)
	}
	_, err := env.Engine.MarketState(env.Ctx)
	require.NoError(t, err)
	item, err := env.Engine.Repo.GetCatalogItem(env.Ctx, env.Engine.DB, "mouchard")
	require.NoError(t, err)
	item.Stock = 1
	require.NoError(t, env.Engine.Repo.UpsertCatalogItem(env.Ctx, env.Engine.DB, item))

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins []string
		errs []error
	)
	for _, b := range buyers {
		wg.Add(1)
		go func(actorID string) {
			defer wg.Done()
			_, err := env.Engine.PurchaseItem(env.Ctx, actorID, "mouchard")
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			wins = append(wins, actorID)
		}(b)
	}
	wg.Wait()

	require.Len(t, wins, 1)
	require.Len(t, errs, len(buyers)-1)
	for _, err := range errs {
		requireKind(t, err, gameerr.KindConflict)
	}
	after, err := env.Engine.Repo.GetCatalogItem(env.Ctx, env.Engine.DB, "mouchard")
	require.NoError(t, err)
	require.Zero(t, after.Stock)

	for _, b := range buyers {
		p, err := env.Engine.GetProfile(env.Ctx, b)
		require.NoError(t, err)
		if b == wins[0] {
			require.Equal(t, int64(1000-item.Price), p.Actor.Currency)
			require.Equal(t, 1, p.Actor.Inventory["mouchard"])
			continue
		}
		require.Equal(t, int64(1000), p.Actor.Currency)
		require.Zero(t, p.Actor.Inventory["mouchard"])
	}

	_, err = env.Engine.PurchaseItem(env.Ctx, wins[0], "mouchard")
	requireKind(t, err, gameerr.KindConflict)
}

func TestPurchaseRacingRotationIsKept(t *testing.T) {
	env := newTestEnv(t)
	buyers := []string{"b1", "b2", "b3", "b4", "b5"}
	for _, b := range buyers {
		env.actor(t, b)
	}
	_, err := env.Engine.MarketState(env.Ctx)
	require.NoError(t, err)

	errs := make([]error, len(buyers)+1)
	var wg sync.WaitGroup
	for i, b := range buyers {
		wg.Add(1)
		go func(i int, actorID string) {
			defer wg.Done()
			_, errs[i] = env.Engine.PurchaseItem(env.Ctx, actorID, "mouchard")
		}(i, b)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		errs[len(buyers)] = env.Engine.PerformRotation(env.Ctx)
	}()
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}

	rotations, err := env.Engine.ListEvents(env.Ctx, repo.EventFilter{Type: "market.rotated"})
	require.NoError(t, err)
	require.Len(t, rotations, 1)
	later, err := env.Engine.ListEvents(env.Ctx, repo.EventFilter{Type: "market.purchased", AfterID: rotations[0].ID})
	require.NoError(t, err)

	item, err := env.Engine.Repo.GetCatalogItem(env.Ctx, env.Engine.DB, "mouchard")
	require.NoError(t, err)
	require.Equal(t, item.MaxStock-len(later), item.Stock)
	for _, b := range buyers {
		p, err := env.Engine.GetProfile(env.Ctx, b)
		require.NoError(t, err)
		require.Equal(t, int64(1000-item.Price), p.Actor.Currency)
		require.Equal(t, 1, p.Actor.Inventory["mouchard"])
	}
}

func TestEmptyCatalogIsReseeded(t *testing.T) {
	env := newTestEnv(t)
	items, err := env.Engine.ListCatalog(env.Ctx)
	require.NoError(t, err)
	require.NotEmpty(t, items)
	for _, it := range items {
		it.Active = false
		require.NoError(t, env.Engine.Repo.UpsertCatalogItem(env.Ctx, env.Engine.DB, it))
	}
	active, err := env.Engine.Repo.ListCatalog(env.Ctx, env.Engine.DB, true)
	require.NoError(t, err)
	require.Empty(t, active)

	env.advance(7 * time.Hour)
	rotated, err := env.Engine.RotateMarketIfDue(env.Ctx)
	require.NoError(t, err)
	require.True(t, rotated)

	again, err := env.Engine.ListCatalog(env.Ctx)
	require.NoError(t, err)
	require.Len(t, again, len(items))
	for _, it := range again {
		require.True(t, it.Active)
		require.Equal(t, it.MaxStock, it.Stock)
	}
}

func TestPurchaseDailyLimit(t *testing.T) {
	env := newTestEnv(t)
	env.actor(t, "alice")
	for i := 0; i < 3; i++ {
		res, err := env.Engine.PurchaseItem(env.Ctx, "alice", "mouchard")
		require.NoError(t, err)
		require.Equal(t, i+1, res.Quantity)
	}
	_, err := env.Engine.PurchaseItem(env.Ctx, "alice", "mouchard")
	requireKind(t, err, gameerr.KindInsufficientResources)

	p, err := env.Engine.GetProfile(env.Ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, int64(1000-3*150), p.Actor.Currency)
	require.Equal(t, 3, p.Actor.Inventory["mouchard"])

	env.advance(6 * time.Hour)
	_, err = env.Engine.RotateMarketIfDue(env.Ctx)
	require.NoError(t, err)
	_, err = env.Engine.PurchaseItem(env.Ctx, "alice", "mouchard")
	require.NoError(t, err)
}

func TestImplantCapAndSingleInstall(t *testing.T) {
	env := newTestEnv(t)
	env.actor(t, "alice")
	op := env.operative(t, "alice", domain.SkillSet{domain.SkillHacking: 10, domain.SkillStealth: 2, domain.SkillCombat: 1})
	env.give(t, "alice", "cyberdeck-mk1", 2)

	up, err := env.Engine.InstallImplant(env.Ctx, "alice", op.ID, "cyberdeck-mk1")
	require.NoError(t, err)
	require.Equal(t, domain.MaxSkill, up.Skills.Get(domain.SkillHacking))
	require.True(t, up.HasUpgrade("cyberdeck-mk1"))

	_, err = env.Engine.InstallImplant(env.Ctx, "alice", op.ID, "cyberdeck-mk1")
	requireKind(t, err, gameerr.KindConflict)

	p, err := env.Engine.GetProfile(env.Ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, 1, p.Actor.Inventory["cyberdeck-mk1"])

	env.give(t, "alice", "optical-camo", 1)
	up, err = env.Engine.InstallImplant(env.Ctx, "alice", op.ID, "optical-camo")
	require.NoError(t, err)
	require.Equal(t, 4, up.Skills.Get(domain.SkillStealth))

	_, err = env.Engine.InstallImplant(env.Ctx, "bob", op.ID, "optical-camo")
	requireKind(t, err, gameerr.KindForbidden)
	_, err = env.Engine.InstallImplant(env.Ctx, "alice", op.ID, "mouchard")
	requireKind(t, err, gameerr.KindInvalidState)
}

func TestRedeemLeadCreatesPrivateContract(t *testing.T) {
	env := newTestEnv(t)
	env.actor(t, "alice")
	env.actor(t, "bob")
	env.give(t, "alice", "lead-low", 1)

	v, err := env.Engine.RedeemLead(env.Ctx, "alice", "lead-low")
	require.NoError(t, err)
	require.True(t, v.OwnedBy("alice"))
	require.Equal(t, 2, v.ThreatLevel)
	require.Equal(t, domain.ContractProposed, v.Status)

	_, err = env.Engine.GetContract(env.Ctx, v.ID, "bob")
	requireKind(t, err, gameerr.KindNotFound)
	_, err = env.Engine.AcceptContract(env.Ctx, v.ID, "bob")
	requireKind(t, err, gameerr.KindConflict)

	_, err = env.Engine.RedeemLead(env.Ctx, "alice", "lead-low")
	requireKind(t, err, gameerr.KindInsufficientResources)
}

func TestSpawnPublicContractsTopsUp(t *testing.T) {
	env := newTestEnv(t)
	n, err := env.Engine.SpawnPublicContracts(env.Ctx)
	require.NoError(t, err)
	require.Equal(t, len(env.Engine.Config.Factions)*env.Engine.Config.Contracts.PublicPerFaction, n)

	n, err = env.Engine.SpawnPublicContracts(env.Ctx)
	require.NoError(t, err)
	require.Zero(t, n)

	views, err := env.Engine.ListContracts(env.Ctx, "")
	require.NoError(t, err)
	for _, v := range views {
		require.NotEqual(t, v.EmployerFaction, v.TargetFaction)
		require.Positive(t, v.HiddenSkills)
	}
}

type taggedBriefs struct {
	narrative.Fallback
	factions []string
}

func (g taggedBriefs) ContractBrief(ctx context.Context, req narrative.ContractRequest) (narrative.Brief, error) {
	b, err := g.Fallback.ContractBrief(ctx, req)
	b.Factions = g.factions
	return b, err
}

func TestGeneratorFactionTags(t *testing.T) {
	env := newTestEnv(t)
	env.Engine.Narrative = taggedBriefs{factions: []string{"netwatch", "valentinos"}}

	c, err := env.Engine.GenerateContract(env.Ctx, engine.ContractOptions{ThreatLevel: 2})
	require.NoError(t, err)
	require.Equal(t, "netwatch", c.TargetFaction)
	require.Equal(t, "valentinos", c.EmployerFaction)
	require.Equal(t, engine.EmployerFor("valentinos"), c.EmployerID)

	pinned, err := env.Engine.GenerateContract(env.Ctx, engine.ContractOptions{
		ThreatLevel:     2,
		EmployerFaction: "arasaka",
		TargetFaction:   "militech",
	})
	require.NoError(t, err)
	require.Equal(t, "militech", pinned.TargetFaction)
	require.Equal(t, "arasaka", pinned.EmployerFaction)

	env.Engine.Narrative = taggedBriefs{factions: []string{"netwatch", "biotechnica"}}
	rolled, err := env.Engine.GenerateContract(env.Ctx, engine.ContractOptions{ThreatLevel: 2})
	require.NoError(t, err)
	require.Contains(t, env.Engine.Config.Factions, rolled.TargetFaction)
	require.Contains(t, env.Engine.Config.Factions, rolled.EmployerFaction)
	require.NotEqual(t, "biotechnica", rolled.EmployerFaction)
}

func TestRecruitOperativeCharges(t *testing.T) {
	env := newTestEnv(t)
	env.actor(t, "alice")
	op, err := env.Engine.RecruitOperative(env.Ctx, "alice")
	require.NoError(t, err)
	require.NotEmpty(t, op.Name)

	p, err := env.Engine.GetProfile(env.Ctx, "alice")
	require.NoError(t, err)
	total := 0
	for _, sk := range domain.Skills {
		total += op.Skills.Get(sk)
	}
	require.Equal(t, int64(1000-200-40*total), p.Actor.Currency)

	ops, err := env.Engine.ListOperatives(env.Ctx, "alice")
	require.NoError(t, err)
	require.Len(t, ops, 1)
}
