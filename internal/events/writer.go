package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Rancune/nightcity-hq/internal/db"
)

type Writer struct {
	DB      *sql.DB
	Dialect db.Dialect
	Now     func() time.Time
}

type EventPayload map[string]any

// Append records an audit event inside tx.
func (w Writer) Append(ctx context.Context, tx *sql.Tx, evtType, actorID, entityKind, entityID string, payload EventPayload) error {
	if w.Now == nil {
		w.Now = time.Now
	}
	ts := w.Now().UTC().Format(time.RFC3339)
	if payload == nil {
		payload = EventPayload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	q := `INSERT INTO events(ts,type,actor_id,entity_kind,entity_id,payload_json) VALUES (?,?,?,?,?,?)`
	if w.Dialect == db.Postgres {
		q = `INSERT INTO events(ts,type,actor_id,entity_kind,entity_id,payload_json) VALUES ($1,$2,$3,$4,$5,$6)`
	}
	_, err = tx.ExecContext(ctx, q, ts, evtType, actorID, entityKind, nullable(entityID), string(data))
	return err
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
