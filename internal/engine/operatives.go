package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Rancune/nightcity-hq/internal/domain"
	"github.com/Rancune/nightcity-hq/internal/events"
	"github.com/Rancune/nightcity-hq/internal/gameerr"
	"github.com/Rancune/nightcity-hq/internal/narrative"
	"github.com/Rancune/nightcity-hq/internal/repo"
	"github.com/Rancune/nightcity-hq/internal/rewards"
)

// RecruitOperative hires a fresh operative with rolled skills.
func (e Engine) RecruitOperative(ctx context.Context, actorID string) (domain.Operative, error) {
	skills := rewards.RollOperative(e.Config.Operatives.MaxStartingSkill, e.rng())
	cost := rewards.RecruitCost(skills, e.Config.Operatives.RecruitBaseCost, e.Config.Operatives.RecruitPerPoint)
	gen := e.Narrative
	if gen == nil {
		gen = narrative.Fallback{}
	}
	ident, err := gen.OperativeIdentity(ctx, skills)
	if err != nil {
		return domain.Operative{}, err
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Operative{}, err
	}
	defer tx.Rollback()
	if _, err := e.Repo.GetActor(ctx, tx, actorID); err != nil {
		return domain.Operative{}, notFound(err, "actor", actorID)
	}
	if err := e.Repo.DebitCurrency(ctx, tx, actorID, cost); err != nil {
		if errors.Is(err, repo.ErrStale) {
			return domain.Operative{}, gameerr.InsufficientResources("recruiting costs %d eddies", cost)
		}
		return domain.Operative{}, err
	}
	op := domain.Operative{
		ID:        newID(),
		OwnerID:   actorID,
		Name:      ident.Name,
		Lore:      ident.Lore,
		Skills:    skills,
		Status:    domain.OperativeAvailable,
		CreatedAt: e.now(),
	}
	if err := e.Repo.InsertOperative(ctx, tx, op); err != nil {
		return domain.Operative{}, fmt.Errorf("insert operative: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "operative.recruited", actorID, "operative", op.ID, events.EventPayload{
		"cost": cost, "skills": skills,
	}); err != nil {
		return domain.Operative{}, err
	}
	return op, tx.Commit()
}

func (e Engine) ListOperatives(ctx context.Context, actorID string) ([]domain.Operative, error) {
	return e.Repo.ListOperatives(ctx, e.DB, actorID)
}

// ownedOperative loads an operative and checks the caller owns it.
func (e Engine) ownedOperative(ctx context.Context, tx *sql.Tx, actorID, operativeID string) (domain.Operative, error) {
	op, err := e.Repo.GetOperative(ctx, tx, operativeID)
	if err != nil {
		return op, notFound(err, "operative", operativeID)
	}
	if op.OwnerID != actorID {
		return op, gameerr.Forbidden("operative %s is not on your roster", operativeID)
	}
	return op, nil
}

// heldItem loads a catalog item and checks the actor holds at least one.
func (e Engine) heldItem(ctx context.Context, tx *sql.Tx, actorID, itemID string) (domain.CatalogItem, error) {
	it, err := e.Repo.GetCatalogItem(ctx, tx, itemID)
	if err != nil {
		return it, notFound(err, "item", itemID)
	}
	inv, err := e.Repo.GetInventory(ctx, tx, actorID)
	if err != nil {
		return it, err
	}
	if inv[itemID] <= 0 {
		return it, gameerr.InsufficientResources("you hold no %s", itemID)
	}
	return it, nil
}

func (e Engine) consume(ctx context.Context, tx *sql.Tx, actorID, itemID string) error {
	if err := e.Repo.TakeInventory(ctx, tx, actorID, itemID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return gameerr.InsufficientResources("you hold no %s", itemID)
		}
		return err
	}
	return nil
}

// InstallImplant permanently raises one skill of an operative. Each implant
// can be installed once per operative and values never exceed the cap.
func (e Engine) InstallImplant(ctx context.Context, actorID, operativeID, itemID string) (domain.Operative, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Operative{}, err
	}
	defer tx.Rollback()

	op, err := e.ownedOperative(ctx, tx, actorID, operativeID)
	if err != nil {
		return op, err
	}
	if op.Status == domain.OperativeOnMission {
		return op, gameerr.InvalidState("operative %s is on a mission", op.ID)
	}
	it, err := e.Repo.GetCatalogItem(ctx, tx, itemID)
	if err != nil {
		return op, notFound(err, "item", itemID)
	}
	if it.Category != domain.CategoryImplant || it.Effect.Kind != domain.EffectPermanentBoost {
		return op, gameerr.InvalidState("%s is not an implant", it.ID)
	}
	if op.HasUpgrade(it.ID) {
		return op, gameerr.Conflict("operative %s already has %s", op.ID, it.ID)
	}
	if _, err := e.heldItem(ctx, tx, actorID, itemID); err != nil {
		return op, err
	}
	if err := e.consume(ctx, tx, actorID, itemID); err != nil {
		return op, err
	}
	skill := it.Effect.Skill
	value := rewards.ApplyBoost(op.Skills.Get(skill), it.Effect.Amount)
	if err := e.Repo.ApplyUpgrade(ctx, tx, op, skill, value, it.ID); err != nil {
		if errors.Is(err, repo.ErrStale) {
			return op, gameerr.Conflict("operative %s changed concurrently", op.ID)
		}
		return op, err
	}
	if err := e.Events.Append(ctx, tx, "operative.implant_installed", actorID, "operative", op.ID, events.EventPayload{
		"item": it.ID, "skill": skill, "value": value,
	}); err != nil {
		return op, err
	}
	updated, err := e.Repo.GetOperative(ctx, tx, op.ID)
	if err != nil {
		return op, err
	}
	return updated, tx.Commit()
}

// UseConsumable arms a one-shot effect on an available operative. It is spent
// at the operative's next skill check.
func (e Engine) UseConsumable(ctx context.Context, actorID, operativeID, itemID string) (domain.Operative, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Operative{}, err
	}
	defer tx.Rollback()

	op, err := e.ownedOperative(ctx, tx, actorID, operativeID)
	if err != nil {
		return op, err
	}
	if op.Status != domain.OperativeAvailable {
		return op, gameerr.InvalidState("operative %s is %s", op.ID, op.Status)
	}
	it, err := e.heldItem(ctx, tx, actorID, itemID)
	if err != nil {
		return op, err
	}
	if !it.Effect.Armable() {
		return op, gameerr.InvalidState("%s cannot be armed on an operative", it.ID)
	}
	if err := e.consume(ctx, tx, actorID, itemID); err != nil {
		return op, err
	}
	if err := e.Repo.ArmEffect(ctx, tx, op, it.Effect); err != nil {
		if errors.Is(err, repo.ErrStale) {
			return op, gameerr.Conflict("operative %s changed concurrently", op.ID)
		}
		return op, err
	}
	if err := e.Events.Append(ctx, tx, "operative.effect_armed", actorID, "operative", op.ID, events.EventPayload{
		"item": it.ID, "effect": it.Effect.String(),
	}); err != nil {
		return op, err
	}
	op.Effects = append(op.Effects, it.Effect)
	return op, tx.Commit()
}

// RedeemLead trades a lead item for a private contract offered only to the
// actor.
func (e Engine) RedeemLead(ctx context.Context, actorID, itemID string) (domain.ContractView, error) {
	it, err := e.Repo.GetCatalogItem(ctx, e.DB, itemID)
	if err != nil {
		return domain.ContractView{}, notFound(err, "item", itemID)
	}
	if it.Effect.Kind != domain.EffectContractLead {
		return domain.ContractView{}, gameerr.InvalidState("%s is not a contract lead", it.ID)
	}
	c, err := e.buildContract(ctx, ContractOptions{ThreatLevel: it.Effect.Threat, OwnerID: actorID})
	if err != nil {
		return domain.ContractView{}, err
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.ContractView{}, err
	}
	defer tx.Rollback()
	if _, err := e.heldItem(ctx, tx, actorID, itemID); err != nil {
		return domain.ContractView{}, err
	}
	if err := e.consume(ctx, tx, actorID, itemID); err != nil {
		return domain.ContractView{}, err
	}
	if err := e.insertContract(ctx, tx, c, actorID); err != nil {
		return domain.ContractView{}, err
	}
	v, err := e.view(ctx, tx, c, actorID)
	if err != nil {
		return v, err
	}
	return v, tx.Commit()
}

func (e Engine) ListNotifications(ctx context.Context, actorID string, afterID int64, limit int) ([]domain.Notification, error) {
	return e.Repo.ListNotifications(ctx, e.DB, actorID, afterID, limit)
}

func (e Engine) ListEvents(ctx context.Context, f repo.EventFilter) ([]domain.Event, error) {
	return e.Repo.ListEvents(ctx, e.DB, f)
}
