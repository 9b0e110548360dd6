package postgres

import (
	"context"
	"fmt"
)

const createStateRecordsTable = `CREATE TABLE IF NOT EXISTS state_records (
	collections_workflow TEXT NOT NULL,
	itemids              TEXT NOT NULL,
	state                TEXT NOT NULL,
	created              TIMESTAMPTZ NOT NULL,
	updated              TIMESTAMPTZ NOT NULL,
	executions           JSONB NOT NULL DEFAULT '[]'::jsonb,
	outputs              JSONB NOT NULL DEFAULT '[]'::jsonb,
	last_error           TEXT,
	attempts             INTEGER NOT NULL DEFAULT 1,
	PRIMARY KEY (collections_workflow, itemids)
)`

const createStateUpdatedIndex = `CREATE INDEX IF NOT EXISTS state_records_state_updated
	ON state_records (state, updated DESC, collections_workflow, itemids)`

const createUpdatedIndex = `CREATE INDEX IF NOT EXISTS state_records_updated
	ON state_records (updated DESC, collections_workflow, itemids)`

// EnsureSchema creates the state table and its query indexes if absent.
func EnsureSchema(ctx context.Context, db DB) error {
	for _, stmt := range []string{createStateRecordsTable, createStateUpdatedIndex, createUpdatedIndex} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure state schema: %w", classify(err))
		}
	}
	return nil
}
