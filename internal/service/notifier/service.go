// Package notifier publishes normalized state-change messages for payload
// state transitions.
package notifier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nimbus-geo/nimbus-go/internal/domain"
)

// Message is the wire form of a state-change notification.
type Message struct {
	CollectionsWorkflow string    `json:"collections_workflow"`
	State               string    `json:"state"`
	Status              string    `json:"status"`
	Created             time.Time `json:"created"`
	Updated             time.Time `json:"updated"`
	StartDatetime       string    `json:"start_datetime,omitempty"`
	EndDatetime         string    `json:"end_datetime,omitempty"`
}

// Publisher delivers notification messages to the outbound transport.
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
}

type Service struct {
	publisher Publisher
	logger    *slog.Logger
}

func New(publisher Publisher, logger *slog.Logger) (*Service, error) {
	if publisher == nil {
		return nil, errors.New("publisher is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{publisher: publisher, logger: logger}, nil
}

// Notify publishes one message for a state transition. Status is "created"
// while the record is on its first processing attempt and "updated" for
// reruns; the attempt counter is used rather than the executions list, which
// also grows when an engine mints a canonical execution id. The payload
// supplies the temporal extent when available; a payload without temporal
// metadata (or a nil payload) degrades the message, it never blocks
// publication.
func (s *Service) Notify(ctx context.Context, record domain.StateRecord, previousState domain.State, payload *domain.ProcessPayload) error {
	if s == nil || s.publisher == nil {
		return errors.New("notifier not initialized")
	}

	status := "updated"
	if record.Attempts <= 1 {
		status = "created"
	}

	msg := Message{
		CollectionsWorkflow: record.CollectionsWorkflow,
		State:               string(record.State),
		Status:              status,
		Created:             record.Created,
		Updated:             record.Updated,
	}
	if payload != nil {
		msg.StartDatetime, msg.EndDatetime = domain.TemporalExtent(payload.Items)
	}

	if err := s.publisher.Publish(ctx, msg); err != nil {
		return fmt.Errorf("publish state change for %s: %w", record.CollectionsWorkflow, err)
	}
	s.logger.Debug("published state change",
		"collections_workflow", record.CollectionsWorkflow,
		"from", string(previousState),
		"state", msg.State,
		"status", msg.Status)
	return nil
}
