package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Rancune/nightcity-hq/internal/domain"
)

const catalogColumns = `id,name,category,rarity,price,stock,max_stock,daily_limit,min_reputation,active,effect_json`

func scanCatalogItem(row scanner) (domain.CatalogItem, error) {
	var (
		it     domain.CatalogItem
		active int
		effect string
	)
	err := row.Scan(&it.ID, &it.Name, &it.Category, &it.Rarity, &it.Price, &it.Stock, &it.MaxStock, &it.DailyLimit,
		&it.MinReputation, &active, &effect)
	if err == sql.ErrNoRows {
		return it, ErrNotFound
	}
	if err != nil {
		return it, err
	}
	it.Active = active != 0
	if err := json.Unmarshal([]byte(effect), &it.Effect); err != nil {
		return it, fmt.Errorf("catalog item %s effect: %w", it.ID, err)
	}
	return it, nil
}

func (r Repo) UpsertCatalogItem(ctx context.Context, q DBTX, it domain.CatalogItem) error {
	effect, err := marshalJSON(it.Effect)
	if err != nil {
		return err
	}
	_, err = r.exec(ctx, q, `INSERT INTO catalog_items(id,name,category,rarity,price,stock,max_stock,daily_limit,min_reputation,active,effect_json)
VALUES (?,?,?,?,?,?,?,?,?,?,?)
ON CONFLICT(id) DO UPDATE SET name=excluded.name, category=excluded.category, rarity=excluded.rarity, price=excluded.price,
stock=excluded.stock, max_stock=excluded.max_stock, daily_limit=excluded.daily_limit, min_reputation=excluded.min_reputation,
active=excluded.active, effect_json=excluded.effect_json`,
		it.ID, it.Name, string(it.Category), string(it.Rarity), it.Price, it.Stock, it.MaxStock, it.DailyLimit, it.MinReputation,
		boolInt(it.Active), effect)
	return err
}

func (r Repo) GetCatalogItem(ctx context.Context, q DBTX, id string) (domain.CatalogItem, error) {
	return scanCatalogItem(q.QueryRowContext(ctx, r.bind(`SELECT `+catalogColumns+` FROM catalog_items WHERE id=?`), id))
}

func (r Repo) ListCatalog(ctx context.Context, q DBTX, activeOnly bool) ([]domain.CatalogItem, error) {
	query := `SELECT ` + catalogColumns + ` FROM catalog_items`
	if activeOnly {
		query += ` WHERE active=1`
	}
	query += ` ORDER BY price, id`
	rows, err := q.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.CatalogItem
	for rows.Next() {
		it, err := scanCatalogItem(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, it)
	}
	return res, rows.Err()
}

func (r Repo) CountActiveItems(ctx context.Context, q DBTX) (int, error) {
	var n int
	err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM catalog_items WHERE active=1`).Scan(&n)
	return n, err
}

// TakeStock removes one unit from an active item with stock left.
func (r Repo) TakeStock(ctx context.Context, q DBTX, itemID string) error {
	n, err := r.exec(ctx, q, `UPDATE catalog_items SET stock=stock-1 WHERE id=? AND active=1 AND stock>0`, itemID)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrStale
	}
	return nil
}

// Restock resets every active item to its ceiling.
func (r Repo) Restock(ctx context.Context, q DBTX) (int64, error) {
	return r.exec(ctx, q, `UPDATE catalog_items SET stock=max_stock WHERE active=1`)
}

func (r Repo) PurchasesToday(ctx context.Context, q DBTX, actorID, itemID string) (int, error) {
	var n int
	err := q.QueryRowContext(ctx, r.bind(`SELECT count FROM market_purchases WHERE actor_id=? AND item_id=?`), actorID, itemID).Scan(&n)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return n, err
}

// RecordPurchase bumps the daily counter while it stays within limit; limit 0
// means uncapped.
func (r Repo) RecordPurchase(ctx context.Context, q DBTX, actorID, itemID string, limit int) error {
	if limit <= 0 {
		_, err := r.exec(ctx, q, `INSERT INTO market_purchases(actor_id,item_id,count) VALUES (?,?,1)
ON CONFLICT(actor_id,item_id) DO UPDATE SET count=market_purchases.count+1`, actorID, itemID)
		return err
	}
	n, err := r.exec(ctx, q, `INSERT INTO market_purchases(actor_id,item_id,count) VALUES (?,?,1)
ON CONFLICT(actor_id,item_id) DO UPDATE SET count=market_purchases.count+1 WHERE market_purchases.count<?`, actorID, itemID, limit)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrStale
	}
	return nil
}

func (r Repo) ClearPurchases(ctx context.Context, q DBTX) (int64, error) {
	return r.exec(ctx, q, `DELETE FROM market_purchases`)
}

func (r Repo) GetMarketState(ctx context.Context, q DBTX) (domain.MarketState, error) {
	var (
		st      domain.MarketState
		last    sql.NullString
		next    string
		enabled int
	)
	err := q.QueryRowContext(ctx, `SELECT last_rotation,next_rotation,rotation_hour,enabled FROM market_state WHERE id=1`).
		Scan(&last, &next, &st.RotationHour, &enabled)
	if err == sql.ErrNoRows {
		return st, ErrNotFound
	}
	if err != nil {
		return st, err
	}
	if t := nullTS(last); t != nil {
		st.LastRotation = *t
	}
	st.NextRotation = parseTS(next)
	st.Enabled = enabled != 0
	return st, nil
}

// InitMarketState creates the singleton row if it is missing.
func (r Repo) InitMarketState(ctx context.Context, q DBTX, st domain.MarketState) error {
	var last any
	if !st.LastRotation.IsZero() {
		last = ts(st.LastRotation)
	}
	_, err := r.exec(ctx, q, `INSERT INTO market_state(id,last_rotation,next_rotation,rotation_hour,enabled) VALUES (1,?,?,?,?)
ON CONFLICT(id) DO NOTHING`, last, ts(st.NextRotation), st.RotationHour, boolInt(st.Enabled))
	return err
}

// AdvanceRotation moves the schedule forward only if no other caller already
// rotated past observedNext.
func (r Repo) AdvanceRotation(ctx context.Context, q DBTX, observedNext, last, next time.Time) error {
	n, err := r.exec(ctx, q, `UPDATE market_state SET last_rotation=?, next_rotation=? WHERE id=1 AND next_rotation=?`,
		ts(last), ts(next), ts(observedNext))
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrStale
	}
	return nil
}

func (r Repo) SetMarketEnabled(ctx context.Context, q DBTX, enabled bool) error {
	n, err := r.exec(ctx, q, `UPDATE market_state SET enabled=? WHERE id=1`, boolInt(enabled))
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
