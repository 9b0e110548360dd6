// Package repo defines the persistence interfaces for payload state records.
package repo

import (
	"context"
	"time"

	"github.com/nimbus-geo/nimbus-go/internal/domain"
)

// SortOrder selects the direction of a query ordered by updated time.
type SortOrder string

const (
	SortAscending  SortOrder = "asc"
	SortDescending SortOrder = "desc"
)

// TimeField names the timestamp a range filter applies to.
type TimeField string

const (
	TimeFieldCreated TimeField = "created"
	TimeFieldUpdated TimeField = "updated"
)

// Filter selects state records for a query.
type Filter struct {
	// State restricts results to a single state when set.
	State domain.State
	// CollectionsWorkflowPrefix is a begins-with match on the partition key.
	CollectionsWorkflowPrefix string
	// TimeField selects which timestamp Since/Until apply to. Defaults to
	// updated when a bound is set.
	TimeField TimeField
	Since     time.Time
	Until     time.Time
	// Order is the sort direction by updated time. Defaults to descending.
	Order SortOrder
	// Limit is the page size. Implementations apply a default when zero.
	Limit int
	// Token resumes a query from a previous page. Opaque to callers.
	Token string
}

// Page is one page of query results. Token is non-empty when more records
// remain; passing it back in the filter resumes the scan.
type Page struct {
	Records []domain.StateRecord
	Token   string
}

// ClaimResult is the outcome of a CreateOrReset call.
type ClaimResult struct {
	Record domain.StateRecord
	// Duplicate is true when the record was already PROCESSING and no new
	// attempt was started. The returned record is the existing one.
	Duplicate bool
	// Created is true when no record existed before the claim.
	Created bool
	// Previous is the record's state before the claim, empty when Created.
	Previous domain.State
}

// StateRepository manages payload state records over a keyed table with
// conditional writes. At most one PROCESSING attempt exists per identity at
// any time; that guarantee is enforced by the table's conditional-write
// primitive, not by external locking.
type StateRepository interface {
	// Get fetches a record by identity, or ErrNotFound.
	Get(ctx context.Context, identity domain.Identity) (domain.StateRecord, error)

	// CreateOrReset claims an identity for processing. Absent records are
	// created in PROCESSING; terminal records transition back to PROCESSING
	// preserving their original created timestamp; records already
	// PROCESSING are returned unchanged with Duplicate set. The execution
	// identifier is appended to the record's executions on a successful
	// claim.
	CreateOrReset(ctx context.Context, identity domain.Identity, executionID string) (ClaimResult, error)

	// SetCompleted transitions a PROCESSING record to COMPLETED and records
	// its outputs. Returns ErrConflict when the record is not PROCESSING.
	SetCompleted(ctx context.Context, identity domain.Identity, outputs []string) (domain.StateRecord, error)

	// SetFailed transitions a PROCESSING record to FAILED with an error
	// message.
	SetFailed(ctx context.Context, identity domain.Identity, errMsg string) (domain.StateRecord, error)

	// SetInvalid transitions a PROCESSING record to INVALID with an error
	// message.
	SetInvalid(ctx context.Context, identity domain.Identity, errMsg string) (domain.StateRecord, error)

	// SetAborted transitions a PROCESSING record to ABORTED.
	SetAborted(ctx context.Context, identity domain.Identity) (domain.StateRecord, error)

	// AppendExecution appends an execution identifier to an existing record
	// without changing its state.
	AppendExecution(ctx context.Context, identity domain.Identity, executionID string) (domain.StateRecord, error)

	// Query returns a page of records matching the filter.
	Query(ctx context.Context, filter Filter) (Page, error)
}
