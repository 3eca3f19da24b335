package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Rancune/nightcity-hq/internal/domain"
	"github.com/Rancune/nightcity-hq/internal/events"
	"github.com/Rancune/nightcity-hq/internal/gameerr"
	"github.com/Rancune/nightcity-hq/internal/narrative"
	"github.com/Rancune/nightcity-hq/internal/repo"
	"github.com/Rancune/nightcity-hq/internal/rewards"
)

func ensureContractTransition(from, to domain.ContractStatus) error {
	switch from.Normalize() {
	case domain.ContractProposed:
		if to == domain.ContractActive || to == domain.ContractExpired {
			return nil
		}
	case domain.ContractActive:
		if to == domain.ContractCompleted || to == domain.ContractFailed {
			return nil
		}
	}
	return gameerr.InvalidState("contract cannot move from %s to %s", from, to)
}

// EmployerFor is the system employer id of a faction's fixer.
func EmployerFor(faction string) string {
	return "fixer:" + faction
}

// ContractOptions describe a contract to generate. Empty fields are rolled.
type ContractOptions struct {
	ID              string
	EmployerID      string
	EmployerFaction string
	TargetFaction   string
	OwnerID         string
	Archetype       domain.Archetype
	ThreatLevel     int
	// RequiredSkills and Reward override the rolled values when set.
	RequiredSkills domain.SkillSet
	Reward         *domain.Reward
	Title          string
	ActorID        string
}

// GenerateContract creates a proposed contract.
func (e Engine) GenerateContract(ctx context.Context, opts ContractOptions) (domain.Contract, error) {
	c, err := e.buildContract(ctx, opts)
	if err != nil {
		return c, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return c, err
	}
	defer tx.Rollback()
	if err := e.insertContract(ctx, tx, c, opts.ActorID); err != nil {
		return c, err
	}
	if err := tx.Commit(); err != nil {
		return c, err
	}
	return c, nil
}

func (e Engine) buildContract(ctx context.Context, opts ContractOptions) (domain.Contract, error) {
	rng := e.rng()
	factions := e.Config.Factions
	pinned := opts.EmployerFaction != "" || opts.TargetFaction != ""
	rolledEmployerID := opts.EmployerID == ""
	if opts.ThreatLevel == 0 {
		opts.ThreatLevel = 1 + rng.Intn(e.Config.Contracts.MaxThreat)
	}
	if opts.ThreatLevel < 1 || opts.ThreatLevel > e.Config.Contracts.MaxThreat {
		return domain.Contract{}, gameerr.InvalidInput("threat level must be between 1 and %d", e.Config.Contracts.MaxThreat)
	}
	if opts.Archetype == "" {
		opts.Archetype = domain.Archetypes[rng.Intn(len(domain.Archetypes))]
	}
	if !opts.Archetype.Valid() {
		return domain.Contract{}, gameerr.InvalidInput("unknown archetype %q", opts.Archetype)
	}
	if opts.EmployerFaction == "" {
		opts.EmployerFaction = factions[rng.Intn(len(factions))]
	}
	if opts.TargetFaction == "" {
		for {
			opts.TargetFaction = factions[rng.Intn(len(factions))]
			if opts.TargetFaction != opts.EmployerFaction {
				break
			}
		}
	}
	if opts.TargetFaction == opts.EmployerFaction {
		return domain.Contract{}, gameerr.InvalidInput("target and employer faction must differ")
	}
	if opts.EmployerID == "" {
		opts.EmployerID = EmployerFor(opts.EmployerFaction)
	}
	req := opts.RequiredSkills
	if len(req) == 0 {
		req = rewards.RequiredSkills(opts.ThreatLevel, opts.Archetype, rng)
	}
	clean := domain.SkillSet{}
	for sk, v := range req {
		if !sk.Valid() {
			return domain.Contract{}, gameerr.InvalidInput("unknown skill %q", sk)
		}
		if v < 0 || v > domain.MaxSkill {
			return domain.Contract{}, gameerr.InvalidInput("skill %s threshold must be between 0 and %d", sk, domain.MaxSkill)
		}
		if v > 0 {
			clean[sk] = v
		}
	}
	if len(clean) == 0 {
		return domain.Contract{}, gameerr.InvalidInput("contract needs at least one required skill")
	}
	reward := e.Rewards.BaseReward(opts.ThreatLevel)
	if opts.Reward != nil {
		reward = *opts.Reward
	}
	title := opts.Title
	var description string
	if title == "" {
		gen := e.Narrative
		if gen == nil {
			gen = narrative.Fallback{}
		}
		brief, err := gen.ContractBrief(ctx, narrative.ContractRequest{
			Archetype:       opts.Archetype,
			ThreatLevel:     opts.ThreatLevel,
			TargetFaction:   opts.TargetFaction,
			EmployerFaction: opts.EmployerFaction,
		})
		if err != nil {
			return domain.Contract{}, err
		}
		title, description = brief.Title, brief.Description
		if target, employer, ok := e.factionTags(brief.Factions); ok && !pinned {
			opts.TargetFaction, opts.EmployerFaction = target, employer
			if rolledEmployerID {
				opts.EmployerID = EmployerFor(employer)
			}
		}
	}
	if opts.OwnerID != "" && opts.OwnerID == opts.EmployerID {
		return domain.Contract{}, gameerr.Forbidden("an employer cannot own its own contract")
	}
	id := opts.ID
	if id == "" {
		id = newID()
	}
	now := e.now()
	c := domain.Contract{
		ID:              id,
		EmployerID:      opts.EmployerID,
		Status:          domain.ContractProposed,
		Archetype:       opts.Archetype,
		Title:           title,
		Description:     description,
		ThreatLevel:     opts.ThreatLevel,
		TargetFaction:   opts.TargetFaction,
		EmployerFaction: opts.EmployerFaction,
		RequiredSkills:  clean,
		Reward:          reward,
		AcceptanceTRP:   e.Config.Contracts.AcceptanceTRP,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if opts.OwnerID != "" {
		owner := opts.OwnerID
		c.OwnerID = &owner
	}
	return c, nil
}

// factionTags accepts generator tags only when they name two distinct
// configured factions.
func (e Engine) factionTags(tags []string) (target, employer string, ok bool) {
	if len(tags) != 2 || tags[0] == tags[1] {
		return "", "", false
	}
	known := 0
	for _, f := range e.Config.Factions {
		if f == tags[0] || f == tags[1] {
			known++
		}
	}
	if known != 2 {
		return "", "", false
	}
	return tags[0], tags[1], true
}

func (e Engine) insertContract(ctx context.Context, tx *sql.Tx, c domain.Contract, actorID string) error {
	if actorID == "" {
		actorID = SystemActor
	}
	if err := e.Repo.InsertContract(ctx, tx, c); err != nil {
		return fmt.Errorf("insert contract: %w", err)
	}
	return e.Events.Append(ctx, tx, "contract.created", actorID, "contract", c.ID, events.EventPayload{
		"threat_level":     c.ThreatLevel,
		"archetype":        c.Archetype,
		"employer_id":      c.EmployerID,
		"employer_faction": c.EmployerFaction,
		"target_faction":   c.TargetFaction,
		"reward_eddies":    c.Reward.Eddies,
	})
}

// SpawnPublicContracts tops up the public board so every faction has offers.
func (e Engine) SpawnPublicContracts(ctx context.Context) (int, error) {
	public, err := e.Repo.ListContracts(ctx, e.DB, repo.ContractFilter{PublicOnly: true})
	if err != nil {
		return 0, err
	}
	perFaction := map[string]int{}
	for _, c := range public {
		perFaction[c.EmployerFaction]++
	}
	created := 0
	for _, f := range e.Config.Factions {
		for i := perFaction[f]; i < e.Config.Contracts.PublicPerFaction; i++ {
			if _, err := e.GenerateContract(ctx, ContractOptions{EmployerFaction: f}); err != nil {
				return created, err
			}
			created++
		}
	}
	return created, nil
}

// ListContracts returns what the actor can see after ticking its clock. An
// empty actor sees only the public board.
func (e Engine) ListContracts(ctx context.Context, actorID string) ([]domain.ContractView, error) {
	filter := repo.ContractFilter{PublicOnly: true}
	if actorID != "" {
		if _, err := e.Tick(ctx, actorID); err != nil {
			return nil, err
		}
		filter = repo.ContractFilter{VisibleTo: actorID}
	}
	list, err := e.Repo.ListContracts(ctx, e.DB, filter)
	if err != nil {
		return nil, err
	}
	views := make([]domain.ContractView, 0, len(list))
	for _, c := range list {
		v, err := e.view(ctx, e.DB, c, actorID)
		if err != nil {
			return nil, err
		}
		views = append(views, v)
	}
	return views, nil
}

// GetContract returns one contract as the actor sees it, after ticking its
// clock.
func (e Engine) GetContract(ctx context.Context, contractID, actorID string) (domain.ContractView, error) {
	if _, err := e.Tick(ctx, actorID); err != nil {
		return domain.ContractView{}, err
	}
	c, err := e.Repo.GetContract(ctx, e.DB, contractID)
	if err != nil {
		return domain.ContractView{}, notFound(err, "contract", contractID)
	}
	if !c.Public() && !c.OwnedBy(actorID) {
		return domain.ContractView{}, gameerr.NotFound("contract %s not found", contractID)
	}
	return e.view(ctx, e.DB, c, actorID)
}

// view hides required thresholds the actor has not revealed.
func (e Engine) view(ctx context.Context, q repo.DBTX, c domain.Contract, actorID string) (domain.ContractView, error) {
	v := domain.ContractView{Contract: c, RevealedSkills: domain.SkillSet{}}
	if c.Status.Terminal() {
		for sk, val := range c.RequiredSkills {
			v.RevealedSkills[sk] = val
		}
	} else if actorID != "" {
		revealed, err := e.Repo.ListReveals(ctx, q, c.ID, actorID)
		if err != nil {
			return v, err
		}
		for _, sk := range revealed {
			if val := c.RequiredSkills.Get(sk); val > 0 {
				v.RevealedSkills[sk] = val
			}
		}
	}
	v.HiddenSkills = len(c.RequiredSkills.Keys()) - len(v.RevealedSkills)
	v.RequiredSkills = nil
	if !c.OwnedBy(actorID) {
		v.Assignments = nil
	}
	return v, nil
}

// AcceptContract claims a public contract for the actor. Exactly one of any
// number of concurrent callers succeeds.
func (e Engine) AcceptContract(ctx context.Context, contractID, actorID string) (domain.ContractView, error) {
	if _, err := e.Tick(ctx, actorID); err != nil {
		return domain.ContractView{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.ContractView{}, err
	}
	defer tx.Rollback()

	if _, err := e.Repo.GetActor(ctx, tx, actorID); err != nil {
		return domain.ContractView{}, notFound(err, "actor", actorID)
	}
	c, err := e.Repo.GetContract(ctx, tx, contractID)
	if err != nil {
		return domain.ContractView{}, notFound(err, "contract", contractID)
	}
	if c.Status != domain.ContractProposed {
		return domain.ContractView{}, gameerr.InvalidState("contract %s is %s", c.ID, c.Status)
	}
	now := e.now()
	if c.AcceptanceTRP <= 0 {
		if err := e.expireAndCommit(ctx, tx, c, actorID, now); err != nil {
			return domain.ContractView{}, err
		}
		return domain.ContractView{}, gameerr.InvalidState("contract %s has expired", c.ID)
	}
	if c.EmployerID == actorID {
		return domain.ContractView{}, gameerr.Forbidden("cannot accept a contract you issued")
	}
	if c.OwnedBy(actorID) {
		return domain.ContractView{}, gameerr.InvalidState("contract %s is already yours", c.ID)
	}
	if c.OwnerID != nil {
		return domain.ContractView{}, gameerr.Conflict("contract %s already claimed", c.ID)
	}
	if err := e.Repo.ClaimContract(ctx, tx, c.ID, actorID, now); err != nil {
		if errors.Is(err, repo.ErrStale) {
			return domain.ContractView{}, gameerr.Conflict("contract %s already claimed", c.ID)
		}
		return domain.ContractView{}, fmt.Errorf("claim contract: %w", err)
	}
	owner := actorID
	c.OwnerID = &owner
	c.UpdatedAt = now
	var out outbox
	if err := e.notify(ctx, tx, &out, domain.Notification{
		ActorID:  c.EmployerID,
		Kind:     "contract.accepted",
		Message:  fmt.Sprintf("%s took %q", actorID, c.Title),
		EntityID: c.ID,
	}); err != nil {
		return domain.ContractView{}, err
	}
	if err := e.Events.Append(ctx, tx, "contract.accepted", actorID, "contract", c.ID, events.EventPayload{
		"employer_id": c.EmployerID,
	}); err != nil {
		return domain.ContractView{}, err
	}
	v, err := e.view(ctx, tx, c, actorID)
	if err != nil {
		return v, err
	}
	if err := tx.Commit(); err != nil {
		return v, err
	}
	e.publish(ctx, out)
	return v, nil
}

// expireAndCommit persists an expiry discovered while validating a request.
func (e Engine) expireAndCommit(ctx context.Context, tx *sql.Tx, c domain.Contract, actorID string, now time.Time) error {
	var out outbox
	if _, err := e.expire(ctx, tx, c, actorID, now, &out); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	e.publish(ctx, out)
	return nil
}

// AssignOperatives staffs an accepted contract, one operative per required
// skill, and starts its completion timer.
func (e Engine) AssignOperatives(ctx context.Context, contractID, actorID string, assignments map[domain.Skill]string) (domain.ContractView, error) {
	if _, err := e.Tick(ctx, actorID); err != nil {
		return domain.ContractView{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.ContractView{}, err
	}
	defer tx.Rollback()

	c, err := e.Repo.GetContract(ctx, tx, contractID)
	if err != nil {
		return domain.ContractView{}, notFound(err, "contract", contractID)
	}
	if !c.OwnedBy(actorID) {
		if c.Public() {
			return domain.ContractView{}, gameerr.InvalidState("contract %s must be accepted before staffing", c.ID)
		}
		return domain.ContractView{}, gameerr.Forbidden("contract %s belongs to another fixer", c.ID)
	}
	if err := ensureContractTransition(c.Status, domain.ContractActive); err != nil {
		return domain.ContractView{}, err
	}
	now := e.now()
	if c.AcceptanceTRP <= 0 {
		if err := e.expireAndCommit(ctx, tx, c, actorID, now); err != nil {
			return domain.ContractView{}, err
		}
		return domain.ContractView{}, gameerr.InvalidState("contract %s has expired", c.ID)
	}
	required := c.RequiredSkills.Keys()
	if len(assignments) != len(required) {
		return domain.ContractView{}, gameerr.InvalidState("assignments must cover exactly the required skills").With("required", len(required))
	}
	seen := map[string]domain.Skill{}
	for _, sk := range required {
		opID, ok := assignments[sk]
		if !ok || opID == "" {
			return domain.ContractView{}, gameerr.InvalidState("assignments must cover exactly the required skills").With("required", len(required))
		}
		if prev, dup := seen[opID]; dup {
			return domain.ContractView{}, gameerr.InvalidState("operative %s assigned to both %s and %s", opID, prev, sk)
		}
		seen[opID] = sk
	}
	for _, sk := range required {
		opID := assignments[sk]
		op, err := e.Repo.GetOperative(ctx, tx, opID)
		if err != nil {
			return domain.ContractView{}, notFound(err, "operative", opID)
		}
		if op.OwnerID != actorID {
			return domain.ContractView{}, gameerr.Forbidden("operative %s is not on your roster", opID)
		}
		if op.Status != domain.OperativeAvailable {
			return domain.ContractView{}, gameerr.Conflict("operative %s is %s", opID, op.Status)
		}
		if err := e.Repo.ReserveOperative(ctx, tx, opID, actorID, c.ID); err != nil {
			if errors.Is(err, repo.ErrStale) {
				return domain.ContractView{}, gameerr.Conflict("operative %s is no longer available", opID)
			}
			return domain.ContractView{}, err
		}
	}
	duration := e.duration(c.ThreatLevel)
	bound := make(map[domain.Skill]string, len(required))
	for _, sk := range required {
		bound[sk] = assignments[sk]
	}
	if err := e.Repo.ActivateContract(ctx, tx, c.ID, actorID, bound, duration, now); err != nil {
		if errors.Is(err, repo.ErrStale) {
			return domain.ContractView{}, gameerr.Conflict("contract %s changed concurrently", c.ID)
		}
		return domain.ContractView{}, fmt.Errorf("activate contract: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "contract.activated", actorID, "contract", c.ID, events.EventPayload{
		"assignments":        bound,
		"completion_seconds": int64(duration / time.Second),
	}); err != nil {
		return domain.ContractView{}, err
	}
	updated, err := e.Repo.GetContract(ctx, tx, c.ID)
	if err != nil {
		return domain.ContractView{}, err
	}
	v, err := e.view(ctx, tx, updated, actorID)
	if err != nil {
		return v, err
	}
	if err := tx.Commit(); err != nil {
		return v, err
	}
	return v, nil
}
