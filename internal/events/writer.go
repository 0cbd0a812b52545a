// Package events appends audit rows in the same transaction as the state
// change they describe.
package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"edihub/internal/clock"
	"edihub/internal/domain"
)

const (
	TypeMessageEnqueued = "message.enqueued"
	TypeBundleCreated   = "bundle.created"
	TypeBundleClosed    = "bundle.closed"
	TypeBundleArchived  = "bundle.archived"
	TypeBundleDequeued  = "bundle.dequeued"
	TypeContentOrphaned = "content.orphaned"
)

const (
	KindBundle  = "bundle"
	KindMessage = "message"
)

type Writer struct {
	Clock clock.Clock
}

type EventPayload map[string]any

func (w Writer) Append(ctx context.Context, tx *sql.Tx, evtType, entityKind, entityID string, actor domain.Actor, payload EventPayload) error {
	if tx == nil {
		return errors.New("events: append requires a transaction")
	}
	ts := clock.OrSystem(w.Clock).Now().UTC().Format(time.RFC3339Nano)
	if payload == nil {
		payload = EventPayload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO events(ts,type,entity_kind,entity_id,actor,payload_json) VALUES (?,?,?,?,?,?)`,
		ts, evtType, entityKind, nullable(entityID), actor.String(), string(data))
	return err
}

// List returns events for one entity, oldest first.
func List(ctx context.Context, db *sql.DB, entityKind, entityID string) ([]domain.Event, error) {
	rows, err := db.QueryContext(ctx, `SELECT id, ts, type, entity_kind, COALESCE(entity_id, ''), actor, payload_json
FROM events WHERE entity_kind=? AND entity_id=? ORDER BY id ASC`, entityKind, entityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.EntityKind, &e.EntityID, &e.Actor, &e.Payload); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
