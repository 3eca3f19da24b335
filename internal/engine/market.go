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
	"github.com/Rancune/nightcity-hq/internal/market"
	"github.com/Rancune/nightcity-hq/internal/repo"
)

// ensureMarket creates the schedule row on first use and seeds the catalog
// whenever no item is active.
func (e Engine) ensureMarket(ctx context.Context, tx *sql.Tx, now time.Time) (domain.MarketState, error) {
	st, err := e.Repo.GetMarketState(ctx, tx)
	if errors.Is(err, repo.ErrNotFound) {
		hour := e.Config.Market.RotationHour
		st = domain.MarketState{
			NextRotation: market.NextRotation(now, hour, e.Config.Location()),
			RotationHour: hour,
			Enabled:      true,
		}
		if err := e.Repo.InitMarketState(ctx, tx, st); err != nil {
			return st, fmt.Errorf("init market: %w", err)
		}
		st, err = e.Repo.GetMarketState(ctx, tx)
	}
	if err != nil {
		return st, err
	}
	n, err := e.Repo.CountActiveItems(ctx, tx)
	if err != nil {
		return st, err
	}
	if n == 0 {
		seeded := market.Seed(e.Config.Market.Catalog, e.Config.Market.StockCeilings)
		for _, it := range seeded {
			if err := e.Repo.UpsertCatalogItem(ctx, tx, it); err != nil {
				return st, fmt.Errorf("seed catalog: %w", err)
			}
		}
		e.logger().Info("market catalog seeded", "items", len(seeded))
	}
	return st, nil
}

// MarketState returns the rotation schedule, creating it if needed.
func (e Engine) MarketState(ctx context.Context) (domain.MarketState, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.MarketState{}, err
	}
	defer tx.Rollback()
	st, err := e.ensureMarket(ctx, tx, e.now())
	if err != nil {
		return st, err
	}
	return st, tx.Commit()
}

// ListCatalog returns the active catalog.
func (e Engine) ListCatalog(ctx context.Context) ([]domain.CatalogItem, error) {
	if _, err := e.MarketState(ctx); err != nil {
		return nil, err
	}
	return e.Repo.ListCatalog(ctx, e.DB, true)
}

// RotateMarketIfDue performs the daily rotation when its time has come. Calls
// racing on the same boundary rotate once.
func (e Engine) RotateMarketIfDue(ctx context.Context) (bool, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()
	now := e.now()
	st, err := e.ensureMarket(ctx, tx, now)
	if err != nil {
		return false, err
	}
	if !market.NeedsRotation(st, now) {
		return false, tx.Commit()
	}
	ok, err := e.rotate(ctx, tx, st, now)
	if err != nil || !ok {
		return false, err
	}
	return true, tx.Commit()
}

// PerformRotation rotates immediately regardless of the schedule.
func (e Engine) PerformRotation(ctx context.Context) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	now := e.now()
	st, err := e.ensureMarket(ctx, tx, now)
	if err != nil {
		return err
	}
	ok, err := e.rotate(ctx, tx, st, now)
	if err != nil {
		return err
	}
	if !ok {
		return gameerr.Conflict("market rotated concurrently")
	}
	return tx.Commit()
}

func (e Engine) rotate(ctx context.Context, tx *sql.Tx, st domain.MarketState, now time.Time) (bool, error) {
	next := market.NextRotation(now, st.RotationHour, e.Config.Location())
	if err := e.Repo.AdvanceRotation(ctx, tx, st.NextRotation, now, next); err != nil {
		if errors.Is(err, repo.ErrStale) {
			return false, nil
		}
		return false, fmt.Errorf("advance rotation: %w", err)
	}
	restocked, err := e.Repo.Restock(ctx, tx)
	if err != nil {
		return false, fmt.Errorf("restock: %w", err)
	}
	if _, err := e.Repo.ClearPurchases(ctx, tx); err != nil {
		return false, fmt.Errorf("clear purchase counters: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "market.rotated", SystemActor, "market", "", events.EventPayload{
		"restocked":     restocked,
		"next_rotation": next.Format(time.RFC3339),
	}); err != nil {
		return false, err
	}
	e.logger().Info("market rotated", "restocked", restocked, "next", next)
	return true, nil
}

// SetMarketEnabled pauses or resumes rotations.
func (e Engine) SetMarketEnabled(ctx context.Context, enabled bool) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := e.ensureMarket(ctx, tx, e.now()); err != nil {
		return err
	}
	if err := e.Repo.SetMarketEnabled(ctx, tx, enabled); err != nil {
		return err
	}
	return tx.Commit()
}

type PurchaseResult struct {
	Item        domain.CatalogItem `json:"item"`
	Currency    int64              `json:"currency"`
	Quantity    int                `json:"quantity"`
	BoughtToday int                `json:"bought_today"`
}

// PurchaseItem buys one unit. Stock, funds, daily allowance and inventory
// change together or not at all.
func (e Engine) PurchaseItem(ctx context.Context, actorID, itemID string) (PurchaseResult, error) {
	var res PurchaseResult
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return res, err
	}
	defer tx.Rollback()

	if _, err := e.ensureMarket(ctx, tx, e.now()); err != nil {
		return res, err
	}
	actor, err := e.Repo.GetActor(ctx, tx, actorID)
	if err != nil {
		return res, notFound(err, "actor", actorID)
	}
	it, err := e.Repo.GetCatalogItem(ctx, tx, itemID)
	if err != nil {
		return res, notFound(err, "item", itemID)
	}
	if !it.Active {
		return res, gameerr.InvalidState("item %s is not on sale", it.ID)
	}
	if actor.Reputation < it.MinReputation {
		return res, gameerr.InsufficientResources("%s requires reputation %d", it.ID, it.MinReputation).
			With("reputation", actor.Reputation)
	}
	if it.Stock <= 0 {
		return res, gameerr.Conflict("%s is out of stock", it.ID)
	}
	if actor.Currency < it.Price {
		return res, gameerr.InsufficientResources("%s costs %d eddies", it.ID, it.Price).With("currency", actor.Currency)
	}
	bought, err := e.Repo.PurchasesToday(ctx, tx, actorID, itemID)
	if err != nil {
		return res, err
	}
	if it.DailyLimit > 0 && bought >= it.DailyLimit {
		return res, gameerr.InsufficientResources("daily limit of %d reached for %s", it.DailyLimit, it.ID)
	}

	if err := e.Repo.TakeStock(ctx, tx, itemID); err != nil {
		if errors.Is(err, repo.ErrStale) {
			return res, gameerr.Conflict("%s is out of stock", it.ID)
		}
		return res, err
	}
	if err := e.Repo.DebitCurrency(ctx, tx, actorID, it.Price); err != nil {
		if errors.Is(err, repo.ErrStale) {
			return res, gameerr.InsufficientResources("%s costs %d eddies", it.ID, it.Price)
		}
		return res, err
	}
	if err := e.Repo.RecordPurchase(ctx, tx, actorID, itemID, it.DailyLimit); err != nil {
		if errors.Is(err, repo.ErrStale) {
			return res, gameerr.InsufficientResources("daily limit of %d reached for %s", it.DailyLimit, it.ID)
		}
		return res, err
	}
	if err := e.Repo.AddInventory(ctx, tx, actorID, itemID, 1); err != nil {
		return res, err
	}
	if err := e.Events.Append(ctx, tx, "market.purchased", actorID, "item", itemID, events.EventPayload{
		"price": it.Price,
	}); err != nil {
		return res, err
	}
	inv, err := e.Repo.GetInventory(ctx, tx, actorID)
	if err != nil {
		return res, err
	}
	it.Stock--
	res = PurchaseResult{
		Item:        it,
		Currency:    actor.Currency - it.Price,
		Quantity:    inv[itemID],
		BoughtToday: bought + 1,
	}
	return res, tx.Commit()
}
