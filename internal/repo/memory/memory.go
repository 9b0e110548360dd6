// Package memory provides an in-process state repository with the same
// conditional-write semantics as the postgres implementation. It backs tests
// and local development; it is not durable.
package memory

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/nimbus-geo/nimbus-go/internal/domain"
	"github.com/nimbus-geo/nimbus-go/internal/repo"
)

const defaultPageSize = 100

// Store is a mutex-guarded map of state records keyed by identity.
type Store struct {
	mu      sync.Mutex
	records map[domain.Identity]domain.StateRecord
	now     func() time.Time
}

func NewStore() *Store {
	return &Store{
		records: make(map[domain.Identity]domain.StateRecord),
		now:     time.Now,
	}
}

// SetClock overrides the store's clock. Test helper.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *Store) Get(ctx context.Context, identity domain.Identity) (domain.StateRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[identity]
	if !ok {
		return domain.StateRecord{}, repo.ErrNotFound
	}
	return cloneRecord(record), nil
}

func (s *Store) CreateOrReset(ctx context.Context, identity domain.Identity, executionID string) (repo.ClaimResult, error) {
	executionID = strings.TrimSpace(executionID)
	if executionID == "" {
		return repo.ClaimResult{}, fmt.Errorf("execution id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	existing, ok := s.records[identity]
	if !ok {
		record := domain.StateRecord{
			CollectionsWorkflow: identity.CollectionsWorkflow,
			ItemIDs:             identity.ItemIDs,
			State:               domain.StateProcessing,
			Created:             now,
			Updated:             now,
			Attempts:            1,
			Executions:          []string{executionID},
			Outputs:             []string{},
		}
		s.records[identity] = record
		return repo.ClaimResult{Record: cloneRecord(record), Created: true}, nil
	}
	if existing.State == domain.StateProcessing {
		return repo.ClaimResult{Record: cloneRecord(existing), Duplicate: true, Previous: existing.State}, nil
	}

	record := existing
	record.State = domain.StateProcessing
	record.Updated = now
	record.Attempts = existing.Attempts + 1
	record.Executions = append(append([]string{}, existing.Executions...), executionID)
	record.Outputs = []string{}
	s.records[identity] = record
	return repo.ClaimResult{Record: cloneRecord(record), Previous: existing.State}, nil
}

func (s *Store) SetCompleted(ctx context.Context, identity domain.Identity, outputs []string) (domain.StateRecord, error) {
	if outputs == nil {
		outputs = []string{}
	}
	return s.setTerminal(identity, domain.StateCompleted, outputs, nil)
}

func (s *Store) SetFailed(ctx context.Context, identity domain.Identity, errMsg string) (domain.StateRecord, error) {
	return s.setTerminal(identity, domain.StateFailed, nil, &errMsg)
}

func (s *Store) SetInvalid(ctx context.Context, identity domain.Identity, errMsg string) (domain.StateRecord, error) {
	return s.setTerminal(identity, domain.StateInvalid, nil, &errMsg)
}

func (s *Store) SetAborted(ctx context.Context, identity domain.Identity) (domain.StateRecord, error) {
	return s.setTerminal(identity, domain.StateAborted, nil, nil)
}

func (s *Store) setTerminal(identity domain.Identity, state domain.State, outputs []string, errMsg *string) (domain.StateRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.records[identity]
	if !ok {
		return domain.StateRecord{}, repo.ErrNotFound
	}
	if existing.State != domain.StateProcessing {
		return domain.StateRecord{}, fmt.Errorf("set %s on %s: %w", state, identity, repo.ErrConflict)
	}

	record := existing
	record.State = state
	record.Updated = s.now().UTC()
	if outputs != nil {
		record.Outputs = append([]string{}, outputs...)
	}
	if errMsg != nil {
		record.LastError = *errMsg
	}
	s.records[identity] = record
	return cloneRecord(record), nil
}

func (s *Store) AppendExecution(ctx context.Context, identity domain.Identity, executionID string) (domain.StateRecord, error) {
	executionID = strings.TrimSpace(executionID)
	if executionID == "" {
		return domain.StateRecord{}, fmt.Errorf("execution id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.records[identity]
	if !ok {
		return domain.StateRecord{}, repo.ErrNotFound
	}
	record := existing
	record.Updated = s.now().UTC()
	record.Executions = append(append([]string{}, existing.Executions...), executionID)
	s.records[identity] = record
	return cloneRecord(record), nil
}

func (s *Store) Query(ctx context.Context, filter repo.Filter) (repo.Page, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultPageSize
	}
	order := filter.Order
	if order == "" {
		order = repo.SortDescending
	}
	timeField := filter.TimeField
	if timeField == "" {
		timeField = repo.TimeFieldUpdated
	}

	s.mu.Lock()
	matched := make([]domain.StateRecord, 0, len(s.records))
	for _, record := range s.records {
		if filter.State != "" && record.State != filter.State {
			continue
		}
		if filter.CollectionsWorkflowPrefix != "" &&
			!strings.HasPrefix(record.CollectionsWorkflow, filter.CollectionsWorkflowPrefix) {
			continue
		}
		ts := record.Updated
		if timeField == repo.TimeFieldCreated {
			ts = record.Created
		}
		if !filter.Since.IsZero() && ts.Before(filter.Since) {
			continue
		}
		if !filter.Until.IsZero() && ts.After(filter.Until) {
			continue
		}
		matched = append(matched, cloneRecord(record))
	}
	s.mu.Unlock()

	sort.Slice(matched, func(i, j int) bool {
		less := recordLess(matched[i], matched[j])
		if order == repo.SortDescending {
			return !less
		}
		return less
	})

	if filter.Token != "" {
		c, err := decodeToken(filter.Token)
		if err != nil {
			return repo.Page{}, err
		}
		start := len(matched)
		for i, record := range matched {
			if afterCursor(record, c, order) {
				start = i
				break
			}
		}
		matched = matched[start:]
	}

	page := repo.Page{}
	if len(matched) > limit {
		page.Records = matched[:limit]
		last := page.Records[limit-1]
		token, err := encodeToken(cursor{
			Updated:             last.Updated,
			CollectionsWorkflow: last.CollectionsWorkflow,
			ItemIDs:             last.ItemIDs,
		})
		if err != nil {
			return repo.Page{}, err
		}
		page.Token = token
	} else {
		page.Records = matched
	}
	return page, nil
}

// afterCursor reports whether a record sorts strictly after the cursor
// position in the given order, i.e. belongs to the next page.
func afterCursor(record domain.StateRecord, c cursor, order repo.SortOrder) bool {
	at := domain.StateRecord{
		CollectionsWorkflow: c.CollectionsWorkflow,
		ItemIDs:             c.ItemIDs,
		Updated:             c.Updated,
	}
	if order == repo.SortDescending {
		return recordLess(record, at)
	}
	return recordLess(at, record)
}

func recordLess(a, b domain.StateRecord) bool {
	if !a.Updated.Equal(b.Updated) {
		return a.Updated.Before(b.Updated)
	}
	if a.CollectionsWorkflow != b.CollectionsWorkflow {
		return a.CollectionsWorkflow < b.CollectionsWorkflow
	}
	return a.ItemIDs < b.ItemIDs
}

func cloneRecord(record domain.StateRecord) domain.StateRecord {
	out := record
	out.Executions = append([]string{}, record.Executions...)
	out.Outputs = append([]string{}, record.Outputs...)
	return out
}

type cursor struct {
	Updated             time.Time `json:"updated"`
	CollectionsWorkflow string    `json:"collections_workflow"`
	ItemIDs             string    `json:"itemids"`
}

func encodeToken(c cursor) (string, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("encode continuation token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(data), nil
}

func decodeToken(token string) (cursor, error) {
	data, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return cursor{}, fmt.Errorf("decode continuation token: %w", err)
	}
	var c cursor
	if err := json.Unmarshal(data, &c); err != nil {
		return cursor{}, fmt.Errorf("decode continuation token: %w", err)
	}
	return c, nil
}
