package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"

	"github.com/Rancune/nightcity-hq/internal/domain"
)

func (r Repo) InsertNotification(ctx context.Context, q DBTX, n domain.Notification) error {
	_, err := r.exec(ctx, q, `INSERT INTO notifications(actor_id,kind,message,entity_id,created_at) VALUES (?,?,?,?,?)`,
		n.ActorID, n.Kind, n.Message, nullable(n.EntityID), ts(n.CreatedAt))
	return err
}

// ListNotifications returns the actor's notifications with id > afterID, oldest first.
func (r Repo) ListNotifications(ctx context.Context, q DBTX, actorID string, afterID int64, limit int) ([]domain.Notification, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := q.QueryContext(ctx, r.bind(`SELECT id,actor_id,kind,message,COALESCE(entity_id,''),created_at FROM notifications
WHERE actor_id=? AND id>? ORDER BY id LIMIT ?`), actorID, afterID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Notification
	for rows.Next() {
		var (
			n       domain.Notification
			created string
		)
		if err := rows.Scan(&n.ID, &n.ActorID, &n.Kind, &n.Message, &n.EntityID, &created); err != nil {
			return nil, err
		}
		n.CreatedAt = parseTS(created)
		res = append(res, n)
	}
	return res, rows.Err()
}

type EventFilter struct {
	ActorID    string
	EntityKind string
	EntityID   string
	Type       string
	AfterID    int64
	Limit      int
}

func (r Repo) ListEvents(ctx context.Context, q DBTX, f EventFilter) ([]domain.Event, error) {
	var (
		clauses = []string{"id>?"}
		args    = []any{f.AfterID}
	)
	if f.ActorID != "" {
		clauses = append(clauses, "actor_id=?")
		args = append(args, f.ActorID)
	}
	if f.EntityKind != "" {
		clauses = append(clauses, "entity_kind=?")
		args = append(args, f.EntityKind)
	}
	if f.EntityID != "" {
		clauses = append(clauses, "entity_id=?")
		args = append(args, f.EntityID)
	}
	if f.Type != "" {
		clauses = append(clauses, "type=?")
		args = append(args, f.Type)
	}
	query := `SELECT id,ts,type,actor_id,entity_kind,entity_id,payload_json FROM events WHERE ` + strings.Join(clauses, " AND ") + ` ORDER BY id`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := q.QueryContext(ctx, r.bind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var (
			ev       domain.Event
			entityID sql.NullString
			payload  string
		)
		if err := rows.Scan(&ev.ID, &ev.TS, &ev.Type, &ev.ActorID, &ev.EntityKind, &entityID, &payload); err != nil {
			return nil, err
		}
		ev.EntityID = nullString(entityID)
		if err := json.Unmarshal([]byte(payload), &ev.Payload); err != nil {
			ev.Payload = map[string]any{"raw": payload}
		}
		res = append(res, ev)
	}
	return res, rows.Err()
}
