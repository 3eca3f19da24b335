package repo

import (
	"context"
	"database/sql"
	"time"

	"github.com/Rancune/nightcity-hq/internal/domain"
)

func scanStanding(row scanner) (domain.FactionStanding, error) {
	var (
		s       domain.FactionStanding
		updated string
	)
	err := row.Scan(&s.ActorID, &s.Faction, &s.Relation, &s.Threat, &updated)
	if err == sql.ErrNoRows {
		return s, ErrNotFound
	}
	if err != nil {
		return s, err
	}
	s.ThreatUpdatedAt = parseTS(updated)
	return s, nil
}

// GetStanding returns the actor's standing with faction, zero-valued if none recorded.
func (r Repo) GetStanding(ctx context.Context, q DBTX, actorID, faction string) (domain.FactionStanding, error) {
	s, err := scanStanding(q.QueryRowContext(ctx, r.bind(`SELECT actor_id,faction,relation,threat,threat_updated_at FROM faction_standings WHERE actor_id=? AND faction=?`),
		actorID, faction))
	if err == ErrNotFound {
		return domain.FactionStanding{ActorID: actorID, Faction: faction}, nil
	}
	return s, err
}

func (r Repo) ListStandings(ctx context.Context, q DBTX, actorID string) ([]domain.FactionStanding, error) {
	rows, err := q.QueryContext(ctx, r.bind(`SELECT actor_id,faction,relation,threat,threat_updated_at FROM faction_standings WHERE actor_id=? ORDER BY faction`), actorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.FactionStanding
	for rows.Next() {
		s, err := scanStanding(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

// AdjustRelation adds delta to the relation, creating the row when absent.
func (r Repo) AdjustRelation(ctx context.Context, q DBTX, actorID, faction string, delta int, now time.Time) error {
	_, err := r.exec(ctx, q, `INSERT INTO faction_standings(actor_id,faction,relation,threat,threat_updated_at) VALUES (?,?,?,0,?)
ON CONFLICT(actor_id,faction) DO UPDATE SET relation=faction_standings.relation+excluded.relation`, actorID, faction, delta, ts(now))
	return err
}

// RaiseThreat increments threat and restarts the decay clock.
func (r Repo) RaiseThreat(ctx context.Context, q DBTX, actorID, faction string, now time.Time) error {
	_, err := r.exec(ctx, q, `INSERT INTO faction_standings(actor_id,faction,relation,threat,threat_updated_at) VALUES (?,?,0,1,?)
ON CONFLICT(actor_id,faction) DO UPDATE SET threat=faction_standings.threat+1, threat_updated_at=excluded.threat_updated_at`,
		actorID, faction, ts(now))
	return err
}

// ListThreatened returns every standing with positive threat.
func (r Repo) ListThreatened(ctx context.Context, q DBTX) ([]domain.FactionStanding, error) {
	rows, err := q.QueryContext(ctx, `SELECT actor_id,faction,relation,threat,threat_updated_at FROM faction_standings WHERE threat>0 ORDER BY actor_id, faction`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.FactionStanding
	for rows.Next() {
		s, err := scanStanding(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

// DecayThreat lowers threat by one if the row still matches the observed state.
func (r Repo) DecayThreat(ctx context.Context, q DBTX, s domain.FactionStanding, now time.Time) (bool, error) {
	n, err := r.exec(ctx, q, `UPDATE faction_standings SET threat=threat-1, threat_updated_at=?
WHERE actor_id=? AND faction=? AND threat=? AND threat_updated_at=? AND threat>0`,
		ts(now), s.ActorID, s.Faction, s.Threat, ts(s.ThreatUpdatedAt))
	return n > 0, err
}

// AppendHistory records a ledger entry and trims the actor's history to limit.
func (r Repo) AppendHistory(ctx context.Context, q DBTX, ev domain.FactionEvent, limit int) error {
	if _, err := r.exec(ctx, q, `INSERT INTO faction_history(actor_id,faction,kind,delta,note,at) VALUES (?,?,?,?,?,?)`,
		ev.ActorID, ev.Faction, ev.Kind, ev.Delta, nullable(ev.Note), ts(ev.At)); err != nil {
		return err
	}
	if limit <= 0 {
		return nil
	}
	_, err := r.exec(ctx, q, `DELETE FROM faction_history WHERE actor_id=? AND id NOT IN (
SELECT id FROM faction_history WHERE actor_id=? ORDER BY id DESC LIMIT ?)`, ev.ActorID, ev.ActorID, limit)
	return err
}

// ListHistory returns the actor's ledger history, newest first.
func (r Repo) ListHistory(ctx context.Context, q DBTX, actorID string) ([]domain.FactionEvent, error) {
	rows, err := q.QueryContext(ctx, r.bind(`SELECT id,actor_id,faction,kind,delta,COALESCE(note,''),at FROM faction_history WHERE actor_id=? ORDER BY id DESC`), actorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.FactionEvent
	for rows.Next() {
		var (
			ev domain.FactionEvent
			at string
		)
		if err := rows.Scan(&ev.ID, &ev.ActorID, &ev.Faction, &ev.Kind, &ev.Delta, &ev.Note, &at); err != nil {
			return nil, err
		}
		ev.At = parseTS(at)
		res = append(res, ev)
	}
	return res, rows.Err()
}

// InsertUnlock records an opportunity once. It reports whether it was new.
func (r Repo) InsertUnlock(ctx context.Context, q DBTX, actorID, opportunity, faction string, now time.Time) (bool, error) {
	n, err := r.exec(ctx, q, `INSERT INTO faction_unlocks(actor_id,opportunity,faction,unlocked_at) VALUES (?,?,?,?)
ON CONFLICT(actor_id,opportunity) DO NOTHING`, actorID, opportunity, faction, ts(now))
	return n > 0, err
}

func (r Repo) ListUnlocks(ctx context.Context, q DBTX, actorID string) ([]string, error) {
	rows, err := q.QueryContext(ctx, r.bind(`SELECT opportunity FROM faction_unlocks WHERE actor_id=? ORDER BY unlocked_at, opportunity`), actorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []string
	for rows.Next() {
		var o string
		if err := rows.Scan(&o); err != nil {
			return nil, err
		}
		res = append(res, o)
	}
	return res, rows.Err()
}
