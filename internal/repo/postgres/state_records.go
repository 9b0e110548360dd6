package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nimbus-geo/nimbus-go/internal/domain"
	"github.com/nimbus-geo/nimbus-go/internal/repo"
)

const defaultPageSize = 100

const stateRecordColumns = `collections_workflow, itemids, state, created, updated, executions, outputs, last_error, attempts`

const selectStateRecordQuery = `SELECT ` + stateRecordColumns + `
	FROM state_records
	WHERE collections_workflow = $1 AND itemids = $2`

const claimProcessingQuery = `WITH prior AS (
		SELECT state FROM state_records
		WHERE collections_workflow = $1 AND itemids = $2
	)
	INSERT INTO state_records (
		collections_workflow, itemids, state, created, updated, executions, outputs, last_error, attempts
	) VALUES ($1, $2, 'PROCESSING', $3, $3, $4::jsonb, '[]'::jsonb, NULL, 1)
	ON CONFLICT (collections_workflow, itemids) DO UPDATE
	SET state = 'PROCESSING',
		updated = EXCLUDED.updated,
		executions = state_records.executions || EXCLUDED.executions,
		outputs = '[]'::jsonb,
		attempts = state_records.attempts + 1
	WHERE state_records.state <> 'PROCESSING'
	RETURNING ` + stateRecordColumns + `, (SELECT state FROM prior)`

const setTerminalQuery = `UPDATE state_records
	SET state = $3, updated = $4, outputs = COALESCE($5::jsonb, outputs), last_error = COALESCE($6, last_error)
	WHERE collections_workflow = $1 AND itemids = $2 AND state = 'PROCESSING'
	RETURNING ` + stateRecordColumns

const appendExecutionQuery = `UPDATE state_records
	SET updated = $3, executions = executions || $4::jsonb
	WHERE collections_workflow = $1 AND itemids = $2
	RETURNING ` + stateRecordColumns

// StateStore implements repo.StateRepository over a PostgreSQL table.
type StateStore struct {
	db  DB
	now func() time.Time
}

func NewStateStore(db DB) *StateStore {
	if db == nil {
		return nil
	}
	return &StateStore{db: db, now: time.Now}
}

func (s *StateStore) Get(ctx context.Context, identity domain.Identity) (domain.StateRecord, error) {
	if s == nil || s.db == nil {
		return domain.StateRecord{}, fmt.Errorf("state store not initialized")
	}
	if err := validateIdentity(identity); err != nil {
		return domain.StateRecord{}, err
	}
	row := s.db.QueryRowContext(ctx, selectStateRecordQuery, identity.CollectionsWorkflow, identity.ItemIDs)
	record, err := scanStateRecord(row)
	if err != nil {
		return domain.StateRecord{}, handleNotFound(err)
	}
	return record, nil
}

func (s *StateStore) CreateOrReset(ctx context.Context, identity domain.Identity, executionID string) (repo.ClaimResult, error) {
	if s == nil || s.db == nil {
		return repo.ClaimResult{}, fmt.Errorf("state store not initialized")
	}
	if err := validateIdentity(identity); err != nil {
		return repo.ClaimResult{}, err
	}
	executionID = strings.TrimSpace(executionID)
	if executionID == "" {
		return repo.ClaimResult{}, fmt.Errorf("execution id is required")
	}
	executions, err := encodeStrings([]string{executionID})
	if err != nil {
		return repo.ClaimResult{}, fmt.Errorf("encode executions: %w", err)
	}

	now := s.now().UTC()
	row := s.db.QueryRowContext(ctx, claimProcessingQuery,
		identity.CollectionsWorkflow, identity.ItemIDs, now, executions)
	record, prior, err := scanClaimedRecord(row)
	if err == nil {
		return repo.ClaimResult{
			Record:   record,
			Created:  prior == "",
			Previous: prior,
		}, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return repo.ClaimResult{}, fmt.Errorf("claim processing: %w", classify(err))
	}

	// The conditional write did not apply: a record exists and it is
	// PROCESSING, which is the duplicate-submission case. Anything else
	// means this claim raced and lost; the caller must re-read.
	existing, err := s.Get(ctx, identity)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return repo.ClaimResult{}, fmt.Errorf("claim processing %s: %w", identity, repo.ErrConflict)
		}
		return repo.ClaimResult{}, err
	}
	if existing.State != domain.StateProcessing {
		return repo.ClaimResult{}, fmt.Errorf("claim processing %s: %w", identity, repo.ErrConflict)
	}
	return repo.ClaimResult{Record: existing, Duplicate: true, Previous: existing.State}, nil
}

// scanClaimedRecord scans a claim row: the state record columns plus the
// prior state, NULL when the claim created the record.
func scanClaimedRecord(row rowScanner) (domain.StateRecord, domain.State, error) {
	var record domain.StateRecord
	var state string
	var executionsJSON []byte
	var outputsJSON []byte
	var lastError sql.NullString
	var prior sql.NullString
	if err := row.Scan(&record.CollectionsWorkflow, &record.ItemIDs, &state,
		&record.Created, &record.Updated, &executionsJSON, &outputsJSON, &lastError,
		&record.Attempts, &prior); err != nil {
		return domain.StateRecord{}, "", err
	}
	parsed, ok := domain.ParseState(state)
	if !ok {
		return domain.StateRecord{}, "", fmt.Errorf("unknown state %q", state)
	}
	record.State = parsed
	record.Created = record.Created.UTC()
	record.Updated = record.Updated.UTC()
	executions, err := decodeStrings(executionsJSON)
	if err != nil {
		return domain.StateRecord{}, "", fmt.Errorf("decode executions: %w", err)
	}
	outputs, err := decodeStrings(outputsJSON)
	if err != nil {
		return domain.StateRecord{}, "", fmt.Errorf("decode outputs: %w", err)
	}
	record.Executions = executions
	record.Outputs = outputs
	if lastError.Valid {
		record.LastError = lastError.String
	}
	var priorState domain.State
	if prior.Valid {
		priorState, ok = domain.ParseState(prior.String)
		if !ok {
			return domain.StateRecord{}, "", fmt.Errorf("unknown prior state %q", prior.String)
		}
	}
	return record, priorState, nil
}

func (s *StateStore) SetCompleted(ctx context.Context, identity domain.Identity, outputs []string) (domain.StateRecord, error) {
	encoded, err := encodeStrings(outputs)
	if err != nil {
		return domain.StateRecord{}, fmt.Errorf("encode outputs: %w", err)
	}
	return s.setTerminal(ctx, identity, domain.StateCompleted, encoded, nil)
}

func (s *StateStore) SetFailed(ctx context.Context, identity domain.Identity, errMsg string) (domain.StateRecord, error) {
	return s.setTerminal(ctx, identity, domain.StateFailed, nil, &errMsg)
}

func (s *StateStore) SetInvalid(ctx context.Context, identity domain.Identity, errMsg string) (domain.StateRecord, error) {
	return s.setTerminal(ctx, identity, domain.StateInvalid, nil, &errMsg)
}

func (s *StateStore) SetAborted(ctx context.Context, identity domain.Identity) (domain.StateRecord, error) {
	return s.setTerminal(ctx, identity, domain.StateAborted, nil, nil)
}

func (s *StateStore) setTerminal(ctx context.Context, identity domain.Identity, state domain.State, outputs []byte, errMsg *string) (domain.StateRecord, error) {
	if s == nil || s.db == nil {
		return domain.StateRecord{}, fmt.Errorf("state store not initialized")
	}
	if err := validateIdentity(identity); err != nil {
		return domain.StateRecord{}, err
	}

	var outputsArg any
	if outputs != nil {
		outputsArg = outputs
	}
	var errArg sql.NullString
	if errMsg != nil {
		errArg = sql.NullString{String: *errMsg, Valid: true}
	}

	row := s.db.QueryRowContext(ctx, setTerminalQuery,
		identity.CollectionsWorkflow, identity.ItemIDs, string(state), s.now().UTC(), outputsArg, errArg)
	record, err := scanStateRecord(row)
	if err == nil {
		return record, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return domain.StateRecord{}, fmt.Errorf("set %s: %w", state, classify(err))
	}

	// No PROCESSING row matched: either the record is missing or a prior
	// transition already moved it out of PROCESSING.
	if _, getErr := s.Get(ctx, identity); getErr != nil {
		return domain.StateRecord{}, getErr
	}
	return domain.StateRecord{}, fmt.Errorf("set %s on %s: %w", state, identity, repo.ErrConflict)
}

func (s *StateStore) AppendExecution(ctx context.Context, identity domain.Identity, executionID string) (domain.StateRecord, error) {
	if s == nil || s.db == nil {
		return domain.StateRecord{}, fmt.Errorf("state store not initialized")
	}
	if err := validateIdentity(identity); err != nil {
		return domain.StateRecord{}, err
	}
	executionID = strings.TrimSpace(executionID)
	if executionID == "" {
		return domain.StateRecord{}, fmt.Errorf("execution id is required")
	}
	encoded, err := encodeStrings([]string{executionID})
	if err != nil {
		return domain.StateRecord{}, fmt.Errorf("encode executions: %w", err)
	}
	row := s.db.QueryRowContext(ctx, appendExecutionQuery,
		identity.CollectionsWorkflow, identity.ItemIDs, s.now().UTC(), encoded)
	record, err := scanStateRecord(row)
	if err != nil {
		return domain.StateRecord{}, handleNotFound(err)
	}
	return record, nil
}

func (s *StateStore) Query(ctx context.Context, filter repo.Filter) (repo.Page, error) {
	if s == nil || s.db == nil {
		return repo.Page{}, fmt.Errorf("state store not initialized")
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultPageSize
	}
	order := filter.Order
	if order == "" {
		order = repo.SortDescending
	}

	clauses := make([]string, 0, 4)
	args := make([]any, 0, 8)

	if filter.State != "" {
		args = append(args, string(filter.State))
		clauses = append(clauses, fmt.Sprintf("state = $%d", len(args)))
	}
	if prefix := strings.TrimSpace(filter.CollectionsWorkflowPrefix); prefix != "" {
		args = append(args, escapeLikePrefix(prefix))
		clauses = append(clauses, fmt.Sprintf("collections_workflow LIKE $%d", len(args)))
	}
	timeField := filter.TimeField
	if timeField == "" {
		timeField = repo.TimeFieldUpdated
	}
	if timeField != repo.TimeFieldCreated && timeField != repo.TimeFieldUpdated {
		return repo.Page{}, fmt.Errorf("unknown time field %q", timeField)
	}
	if !filter.Since.IsZero() {
		args = append(args, filter.Since.UTC())
		clauses = append(clauses, fmt.Sprintf("%s >= $%d", timeField, len(args)))
	}
	if !filter.Until.IsZero() {
		args = append(args, filter.Until.UTC())
		clauses = append(clauses, fmt.Sprintf("%s <= $%d", timeField, len(args)))
	}
	if filter.Token != "" {
		cursor, err := decodeToken(filter.Token)
		if err != nil {
			return repo.Page{}, err
		}
		cmp := "<"
		if order == repo.SortAscending {
			cmp = ">"
		}
		args = append(args, cursor.Updated, cursor.CollectionsWorkflow, cursor.ItemIDs)
		clauses = append(clauses, fmt.Sprintf("(updated, collections_workflow, itemids) %s ($%d, $%d, $%d)",
			cmp, len(args)-2, len(args)-1, len(args)))
	}

	direction := "DESC"
	if order == repo.SortAscending {
		direction = "ASC"
	}

	query := `SELECT ` + stateRecordColumns + ` FROM state_records`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += fmt.Sprintf(" ORDER BY updated %s, collections_workflow %s, itemids %s", direction, direction, direction)
	args = append(args, limit+1)
	query += fmt.Sprintf(" LIMIT $%d", len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return repo.Page{}, fmt.Errorf("query state records: %w", classify(err))
	}
	defer rows.Close()

	records := make([]domain.StateRecord, 0, limit)
	for rows.Next() {
		record, err := scanStateRecord(rows)
		if err != nil {
			return repo.Page{}, fmt.Errorf("scan state record: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return repo.Page{}, fmt.Errorf("query state records: %w", classify(err))
	}

	page := repo.Page{Records: records}
	if len(records) > limit {
		page.Records = records[:limit]
		last := page.Records[limit-1]
		token, err := encodeToken(continuation{
			Updated:             last.Updated,
			CollectionsWorkflow: last.CollectionsWorkflow,
			ItemIDs:             last.ItemIDs,
		})
		if err != nil {
			return repo.Page{}, err
		}
		page.Token = token
	}
	return page, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanStateRecord(row rowScanner) (domain.StateRecord, error) {
	var record domain.StateRecord
	var state string
	var executionsJSON []byte
	var outputsJSON []byte
	var lastError sql.NullString
	if err := row.Scan(&record.CollectionsWorkflow, &record.ItemIDs, &state,
		&record.Created, &record.Updated, &executionsJSON, &outputsJSON, &lastError,
		&record.Attempts); err != nil {
		return domain.StateRecord{}, err
	}
	parsed, ok := domain.ParseState(state)
	if !ok {
		return domain.StateRecord{}, fmt.Errorf("unknown state %q", state)
	}
	record.State = parsed
	record.Created = record.Created.UTC()
	record.Updated = record.Updated.UTC()
	executions, err := decodeStrings(executionsJSON)
	if err != nil {
		return domain.StateRecord{}, fmt.Errorf("decode executions: %w", err)
	}
	outputs, err := decodeStrings(outputsJSON)
	if err != nil {
		return domain.StateRecord{}, fmt.Errorf("decode outputs: %w", err)
	}
	record.Executions = executions
	record.Outputs = outputs
	if lastError.Valid {
		record.LastError = lastError.String
	}
	return record, nil
}

func validateIdentity(identity domain.Identity) error {
	if strings.TrimSpace(identity.CollectionsWorkflow) == "" {
		return fmt.Errorf("collections workflow is required")
	}
	if strings.TrimSpace(identity.ItemIDs) == "" {
		return fmt.Errorf("item ids are required")
	}
	return nil
}
