// Package processor orchestrates payload submission: identity derivation,
// duplicate reconciliation, payload body storage, and workflow launch.
package processor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/nimbus-geo/nimbus-go/internal/domain"
	"github.com/nimbus-geo/nimbus-go/internal/payloads"
	"github.com/nimbus-geo/nimbus-go/internal/repo"
	"github.com/nimbus-geo/nimbus-go/internal/service/chainer"
	"github.com/nimbus-geo/nimbus-go/internal/service/notifier"
)

// Executor launches a workflow execution under a caller-supplied execution
// name. Engines that mint an additional canonical reference report it via
// the returned identifier; otherwise they return the requested name. A
// returned error means the execution did not start.
type Executor interface {
	Start(ctx context.Context, executionID string, payload *domain.ProcessPayload) (string, error)
}

// Outcome is the result of a submission.
type Outcome struct {
	PayloadID   string
	Identity    domain.Identity
	ExecutionID string
	// Skipped is true when an identical payload was already in flight and
	// no new execution was started. ExecutionID then refers to the
	// in-flight attempt.
	Skipped bool
	Record  domain.StateRecord
}

// Option configures a Service.
type Option func(*Service)

// WithBodies stores payload bodies in content-addressed object storage
// before launch.
func WithBodies(bodies *payloads.Store) Option {
	return func(s *Service) { s.bodies = bodies }
}

// WithNotifier publishes state-change messages for the transitions the
// processor performs.
func WithNotifier(n *notifier.Service) Option {
	return func(s *Service) { s.notifier = n }
}

// WithChainer enables workflow chaining on completion.
func WithChainer(c *chainer.Service) Option {
	return func(s *Service) { s.chainer = c }
}

// WithConcurrency bounds parallel submissions in SubmitAll.
func WithConcurrency(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// WithRetry overrides the transient-failure retry policy.
func WithRetry(attempts int, backoff time.Duration) Option {
	return func(s *Service) {
		if attempts > 0 {
			s.retryAttempts = attempts
		}
		if backoff > 0 {
			s.retryBackoff = backoff
		}
	}
}

type Service struct {
	states   repo.StateRepository
	executor Executor
	bodies   *payloads.Store
	notifier *notifier.Service
	chainer  *chainer.Service
	logger   *slog.Logger

	concurrency    int
	retryAttempts  int
	retryBackoff   time.Duration
	newExecutionID func() string
	sleep          func(context.Context, time.Duration) error
}

func New(states repo.StateRepository, executor Executor, logger *slog.Logger, opts ...Option) (*Service, error) {
	if states == nil {
		return nil, errors.New("state repository is required")
	}
	if executor == nil {
		return nil, errors.New("executor is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		states:         states,
		executor:       executor,
		logger:         logger,
		concurrency:    8,
		retryAttempts:  3,
		retryBackoff:   100 * time.Millisecond,
		newExecutionID: uuid.NewString,
		sleep:          sleepContext,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Submit runs one payload through the submission flow. Identical payloads
// already in flight are skipped without starting new work. A launch failure
// marks the record FAILED and surfaces the error so upstream redrive
// policies can act; a failed submission never loses a payload silently.
func (s *Service) Submit(ctx context.Context, payload *domain.ProcessPayload) (Outcome, error) {
	identity, err := domain.ComputeIdentity(payload)
	if err != nil {
		return Outcome{}, err
	}
	if err := payload.AssignID(); err != nil {
		return Outcome{}, err
	}

	if s.bodies != nil {
		if _, err := s.bodies.Put(ctx, payload); err != nil {
			return Outcome{}, fmt.Errorf("store payload body for %s: %w", payload.ID, err)
		}
	}

	executionID := s.newExecutionID()
	var claim repo.ClaimResult
	err = s.withRetry(ctx, func() error {
		var claimErr error
		claim, claimErr = s.states.CreateOrReset(ctx, identity, executionID)
		return claimErr
	})
	if err != nil {
		return Outcome{}, fmt.Errorf("claim %s: %w", identity, err)
	}

	if claim.Duplicate {
		s.logger.Info("skipping duplicate in-flight payload",
			"payload_id", payload.ID,
			"execution_id", claim.Record.LatestExecution())
		return Outcome{
			PayloadID:   payload.ID,
			Identity:    identity,
			ExecutionID: claim.Record.LatestExecution(),
			Skipped:     true,
			Record:      claim.Record,
		}, nil
	}

	canonicalID, err := s.executor.Start(ctx, executionID, payload)
	if err != nil {
		launchMsg := fmt.Sprintf("failed starting workflow: %s", err)
		failed, failErr := s.states.SetFailed(ctx, identity, launchMsg)
		if failErr != nil {
			s.logger.Error("recording launch failure",
				"payload_id", payload.ID, "error", failErr)
		} else {
			s.notify(ctx, failed, domain.StateProcessing, payload)
		}
		return Outcome{}, fmt.Errorf("start workflow for %s: %w", payload.ID, err)
	}

	record := claim.Record
	if canonicalID != "" && canonicalID != executionID {
		appended, err := s.states.AppendExecution(ctx, identity, canonicalID)
		if err != nil {
			s.logger.Error("recording canonical execution id",
				"payload_id", payload.ID, "error", err)
		} else {
			record = appended
		}
		executionID = canonicalID
	}

	s.logger.Info("started workflow execution",
		"payload_id", payload.ID, "execution_id", executionID)
	return Outcome{
		PayloadID:   payload.ID,
		Identity:    identity,
		ExecutionID: executionID,
		Record:      record,
	}, nil
}

// SubmitAll submits a batch with bounded concurrency, dropping payloads that
// duplicate an earlier id in the same batch. Outcomes are positional; a nil
// error in errs[i] pairs with outcomes[i].
func (s *Service) SubmitAll(ctx context.Context, batch []*domain.ProcessPayload) ([]Outcome, []error) {
	outcomes := make([]Outcome, len(batch))
	errs := make([]error, len(batch))

	seen := make(map[string]int, len(batch))
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(s.concurrency)

	for i, payload := range batch {
		if payload == nil {
			errs[i] = fmt.Errorf("%w: nil payload", domain.ErrMalformedPayload)
			continue
		}
		if err := payload.AssignID(); err != nil {
			errs[i] = err
			continue
		}
		if first, ok := seen[payload.ID]; ok {
			s.logger.Warn("dropping duplicated payload in batch",
				"payload_id", payload.ID, "first_index", first)
			errs[i] = fmt.Errorf("%w: duplicate of batch payload %d", domain.ErrMalformedPayload, first)
			continue
		}
		seen[payload.ID] = i

		group.Go(func() error {
			outcomes[i], errs[i] = s.Submit(groupCtx, payload)
			return nil
		})
	}
	_ = group.Wait()
	return outcomes, errs
}

// HandleCompletion records a terminal outcome reported by the execution
// observer, publishes the transition, and, for completions, returns the
// chained payloads for the payload's next chain step. Chained payloads are
// returned, not submitted.
func (s *Service) HandleCompletion(ctx context.Context, payload *domain.ProcessPayload, terminal domain.State, outputs []string, errMsg string) ([]*domain.ProcessPayload, error) {
	identity, err := domain.ComputeIdentity(payload)
	if err != nil {
		return nil, err
	}

	var record domain.StateRecord
	switch terminal {
	case domain.StateCompleted:
		record, err = s.states.SetCompleted(ctx, identity, outputs)
	case domain.StateFailed:
		record, err = s.states.SetFailed(ctx, identity, errMsg)
	case domain.StateInvalid:
		record, err = s.states.SetInvalid(ctx, identity, errMsg)
	case domain.StateAborted:
		record, err = s.states.SetAborted(ctx, identity)
	default:
		return nil, fmt.Errorf("state %s is not terminal", terminal)
	}
	if err != nil {
		return nil, fmt.Errorf("record %s for %s: %w", terminal, identity, err)
	}

	s.notify(ctx, record, domain.StateProcessing, payload)

	if terminal != domain.StateCompleted || s.chainer == nil || len(payload.Chain) == 0 {
		return nil, nil
	}
	next, err := s.chainer.Chain(payload, payload.Chain[0])
	if err != nil {
		return nil, fmt.Errorf("chain %s: %w", identity, err)
	}
	return next, nil
}

func (s *Service) notify(ctx context.Context, record domain.StateRecord, previousState domain.State, payload *domain.ProcessPayload) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, record, previousState, payload); err != nil {
		s.logger.Error("publishing state change",
			"collections_workflow", record.CollectionsWorkflow, "error", err)
	}
}

// withRetry retries transient store failures with capped exponential
// backoff. Semantic failures (malformed payloads, conditional-write
// conflicts) are never retried.
func (s *Service) withRetry(ctx context.Context, fn func() error) error {
	backoff := s.retryBackoff
	var err error
	for attempt := 0; attempt < s.retryAttempts; attempt++ {
		if err = fn(); err == nil || !errors.Is(err, repo.ErrUnavailable) {
			return err
		}
		if attempt == s.retryAttempts-1 {
			break
		}
		if sleepErr := s.sleep(ctx, backoff); sleepErr != nil {
			return sleepErr
		}
		backoff *= 2
	}
	return err
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
