package notifier

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// QueryRower is the slice of database/sql used by the outbox publisher.
type QueryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const createOutboxTable = `CREATE TABLE IF NOT EXISTS state_notifications (
	id                   BIGSERIAL PRIMARY KEY,
	collections_workflow TEXT NOT NULL,
	state                TEXT NOT NULL,
	status               TEXT NOT NULL,
	message              JSONB NOT NULL,
	published_at         TIMESTAMPTZ NOT NULL DEFAULT now()
)`

const insertOutboxQuery = `INSERT INTO state_notifications (
	collections_workflow, state, status, message
) VALUES ($1, $2, $3, $4) RETURNING id`

// OutboxDB is the database handle required by the outbox publisher.
type OutboxDB interface {
	QueryRower
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Outbox is a Publisher that appends messages to a database table, from
// which a relay drains them to the external notification transport. Keeping
// the append in the same database as the state table lets deployments batch
// it with state transitions.
type Outbox struct {
	db OutboxDB
}

func NewOutbox(db OutboxDB) *Outbox {
	if db == nil {
		return nil
	}
	return &Outbox{db: db}
}

// EnsureSchema creates the outbox table if absent.
func (o *Outbox) EnsureSchema(ctx context.Context) error {
	if o == nil || o.db == nil {
		return errors.New("outbox not initialized")
	}
	if _, err := o.db.ExecContext(ctx, createOutboxTable); err != nil {
		return fmt.Errorf("ensure outbox schema: %w", err)
	}
	return nil
}

func (o *Outbox) Publish(ctx context.Context, msg Message) error {
	if o == nil || o.db == nil {
		return errors.New("outbox not initialized")
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	var id int64
	err = o.db.QueryRowContext(ctx, insertOutboxQuery,
		msg.CollectionsWorkflow, msg.State, msg.Status, body).Scan(&id)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}
