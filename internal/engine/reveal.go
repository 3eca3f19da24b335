package engine

import (
	"context"
	"database/sql"
	"errors"
	"sort"

	"github.com/Rancune/nightcity-hq/internal/domain"
	"github.com/Rancune/nightcity-hq/internal/events"
	"github.com/Rancune/nightcity-hq/internal/gameerr"
	"github.com/Rancune/nightcity-hq/internal/repo"
)

// findItem returns the first held item, by id, whose effect satisfies match.
func (e Engine) findItem(ctx context.Context, tx *sql.Tx, actorID string, match func(domain.CatalogItem) bool) (domain.CatalogItem, bool, error) {
	inv, err := e.Repo.GetInventory(ctx, tx, actorID)
	if err != nil {
		return domain.CatalogItem{}, false, err
	}
	ids := make([]string, 0, len(inv))
	for id, qty := range inv {
		if qty > 0 {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	for _, id := range ids {
		it, err := e.Repo.GetCatalogItem(ctx, tx, id)
		if errors.Is(err, repo.ErrNotFound) {
			continue
		}
		if err != nil {
			return it, false, err
		}
		if match(it) {
			return it, true, nil
		}
	}
	return domain.CatalogItem{}, false, nil
}

func singleReveal(it domain.CatalogItem) bool {
	return it.Effect.Kind == domain.EffectRevealSkill && !it.Effect.All
}

func fullReveal(it domain.CatalogItem) bool {
	return it.Effect.Kind == domain.EffectRevealSkill && it.Effect.All
}

func (e Engine) revealable(ctx context.Context, tx *sql.Tx, contractID, actorID string) (domain.Contract, error) {
	c, err := e.Repo.GetContract(ctx, tx, contractID)
	if err != nil {
		return c, notFound(err, "contract", contractID)
	}
	if !c.Public() && !c.OwnedBy(actorID) {
		return c, gameerr.Forbidden("contract %s is not visible to you", c.ID)
	}
	if c.Status.Terminal() {
		return c, gameerr.InvalidState("contract %s is %s", c.ID, c.Status)
	}
	return c, nil
}

// RevealSkill spends one reveal item to uncover the lowest hidden threshold.
func (e Engine) RevealSkill(ctx context.Context, contractID, actorID string) (domain.ContractView, domain.Skill, error) {
	if _, err := e.Tick(ctx, actorID); err != nil {
		return domain.ContractView{}, "", err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.ContractView{}, "", err
	}
	defer tx.Rollback()

	c, err := e.revealable(ctx, tx, contractID, actorID)
	if err != nil {
		return domain.ContractView{}, "", err
	}
	revealed, err := e.Repo.ListReveals(ctx, tx, c.ID, actorID)
	if err != nil {
		return domain.ContractView{}, "", err
	}
	skill, ok := c.RequiredSkills.NextReveal(revealed)
	if !ok {
		return domain.ContractView{}, "", gameerr.InvalidState("every requirement of %s is already known", c.ID)
	}
	it, ok, err := e.findItem(ctx, tx, actorID, singleReveal)
	if err != nil {
		return domain.ContractView{}, "", err
	}
	if !ok {
		return domain.ContractView{}, "", gameerr.InsufficientResources("no reveal item in inventory")
	}
	if err := e.Repo.TakeInventory(ctx, tx, actorID, it.ID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.ContractView{}, "", gameerr.InsufficientResources("no reveal item in inventory")
		}
		return domain.ContractView{}, "", err
	}
	now := e.now()
	if err := e.Repo.InsertReveal(ctx, tx, c.ID, actorID, skill, len(revealed)+1, now); err != nil {
		if errors.Is(err, repo.ErrStale) {
			return domain.ContractView{}, "", gameerr.Conflict("skill %s was revealed concurrently", skill)
		}
		return domain.ContractView{}, "", err
	}
	if err := e.Events.Append(ctx, tx, "contract.skill_revealed", actorID, "contract", c.ID, events.EventPayload{
		"skill": skill, "item": it.ID,
	}); err != nil {
		return domain.ContractView{}, "", err
	}
	v, err := e.view(ctx, tx, c, actorID)
	if err != nil {
		return v, "", err
	}
	return v, skill, tx.Commit()
}

// AnalyzeContract spends a full-scan item to uncover every threshold at once
// for the actor and flags the contract as analyzed.
func (e Engine) AnalyzeContract(ctx context.Context, contractID, actorID string) (domain.ContractView, error) {
	if _, err := e.Tick(ctx, actorID); err != nil {
		return domain.ContractView{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.ContractView{}, err
	}
	defer tx.Rollback()

	c, err := e.revealable(ctx, tx, contractID, actorID)
	if err != nil {
		return domain.ContractView{}, err
	}
	revealed, err := e.Repo.ListReveals(ctx, tx, c.ID, actorID)
	if err != nil {
		return domain.ContractView{}, err
	}
	if _, ok := c.RequiredSkills.NextReveal(revealed); !ok {
		return domain.ContractView{}, gameerr.InvalidState("every requirement of %s is already known", c.ID)
	}
	it, ok, err := e.findItem(ctx, tx, actorID, fullReveal)
	if err != nil {
		return domain.ContractView{}, err
	}
	if !ok {
		return domain.ContractView{}, gameerr.InsufficientResources("no analyzer in inventory")
	}
	if err := e.Repo.TakeInventory(ctx, tx, actorID, it.ID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.ContractView{}, gameerr.InsufficientResources("no analyzer in inventory")
		}
		return domain.ContractView{}, err
	}
	now := e.now()
	seq := len(revealed)
	for {
		sk, ok := c.RequiredSkills.NextReveal(revealed)
		if !ok {
			break
		}
		seq++
		if err := e.Repo.InsertReveal(ctx, tx, c.ID, actorID, sk, seq, now); err != nil && !errors.Is(err, repo.ErrStale) {
			return domain.ContractView{}, err
		}
		revealed = append(revealed, sk)
	}
	if err := e.Repo.SetAnalyzed(ctx, tx, c.ID, now); err != nil {
		return domain.ContractView{}, err
	}
	c.Analyzed = true
	if err := e.Events.Append(ctx, tx, "contract.analyzed", actorID, "contract", c.ID, events.EventPayload{
		"item": it.ID,
	}); err != nil {
		return domain.ContractView{}, err
	}
	v, err := e.view(ctx, tx, c, actorID)
	if err != nil {
		return v, err
	}
	return v, tx.Commit()
}
