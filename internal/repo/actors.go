package repo

import (
	"context"
	"database/sql"
	"time"

	"github.com/Rancune/nightcity-hq/internal/domain"
)

// EnsureActor creates the profile on first interaction. It reports whether a
// row was inserted.
func (r Repo) EnsureActor(ctx context.Context, q DBTX, actorID string, currency int64, now time.Time) (bool, error) {
	n, err := r.exec(ctx, q, `INSERT INTO actors(id,currency,reputation,last_seen,created_at) VALUES (?,?,0,?,?) ON CONFLICT(id) DO NOTHING`,
		actorID, currency, ts(now), ts(now))
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r Repo) GetActor(ctx context.Context, q DBTX, actorID string) (domain.ActorProfile, error) {
	var (
		a        domain.ActorProfile
		lastSeen string
		created  string
	)
	err := q.QueryRowContext(ctx, r.bind(`SELECT id,currency,reputation,last_seen,created_at FROM actors WHERE id=?`), actorID).
		Scan(&a.ID, &a.Currency, &a.Reputation, &lastSeen, &created)
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	if err != nil {
		return a, err
	}
	a.LastSeen = parseTS(lastSeen)
	a.CreatedAt = parseTS(created)
	return a, nil
}

// TouchLastSeen moves last_seen forward only if it still holds prev, so two
// concurrent ticks cannot both apply the same elapsed window.
func (r Repo) TouchLastSeen(ctx context.Context, q DBTX, actorID string, prev, now time.Time) error {
	n, err := r.exec(ctx, q, `UPDATE actors SET last_seen=? WHERE id=? AND last_seen=?`, ts(now), actorID, ts(prev))
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrStale
	}
	return nil
}

// DebitCurrency subtracts amount only when the balance covers it.
func (r Repo) DebitCurrency(ctx context.Context, q DBTX, actorID string, amount int64) error {
	n, err := r.exec(ctx, q, `UPDATE actors SET currency=currency-? WHERE id=? AND currency>=?`, amount, actorID, amount)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrStale
	}
	return nil
}

func (r Repo) CreditCurrency(ctx context.Context, q DBTX, actorID string, amount int64) error {
	n, err := r.exec(ctx, q, `UPDATE actors SET currency=currency+? WHERE id=?`, amount, actorID)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) AdjustReputation(ctx context.Context, q DBTX, actorID string, delta int) error {
	n, err := r.exec(ctx, q, `UPDATE actors SET reputation=reputation+? WHERE id=?`, delta, actorID)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) GetInventory(ctx context.Context, q DBTX, actorID string) (map[string]int, error) {
	rows, err := q.QueryContext(ctx, r.bind(`SELECT item_id,quantity FROM inventory WHERE actor_id=? ORDER BY item_id`), actorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	inv := map[string]int{}
	for rows.Next() {
		var (
			item string
			qty  int
		)
		if err := rows.Scan(&item, &qty); err != nil {
			return nil, err
		}
		inv[item] = qty
	}
	return inv, rows.Err()
}

func (r Repo) AddInventory(ctx context.Context, q DBTX, actorID, itemID string, qty int) error {
	_, err := r.exec(ctx, q, `INSERT INTO inventory(actor_id,item_id,quantity) VALUES (?,?,?)
ON CONFLICT(actor_id,item_id) DO UPDATE SET quantity=inventory.quantity+excluded.quantity`, actorID, itemID, qty)
	return err
}

// TakeInventory consumes one unit, dropping the stack when it reaches zero.
func (r Repo) TakeInventory(ctx context.Context, q DBTX, actorID, itemID string) error {
	n, err := r.exec(ctx, q, `DELETE FROM inventory WHERE actor_id=? AND item_id=? AND quantity=1`, actorID, itemID)
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	n, err = r.exec(ctx, q, `UPDATE inventory SET quantity=quantity-1 WHERE actor_id=? AND item_id=? AND quantity>1`, actorID, itemID)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
