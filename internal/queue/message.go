package queue

import (
	"fmt"
	"strings"
	"time"

	"github.com/kursadbilgin/kitchen-engine/internal/domain"
)

// BatchEvent is the broker payload describing one applied transition.
type BatchEvent struct {
	EventID       string           `json:"eventId"`
	BatchID       string           `json:"batchId"`
	InstanceID    string           `json:"instanceId,omitempty"`
	Type          domain.EventType `json:"type"`
	Verdict       domain.Verdict   `json:"verdict,omitempty"`
	CorrelationID string           `json:"correlationId,omitempty"`
	OccurredAt    time.Time        `json:"occurredAt"`
}

func (m BatchEvent) Validate() error {
	if strings.TrimSpace(m.EventID) == "" {
		return fmt.Errorf("eventId is required")
	}
	if strings.TrimSpace(m.BatchID) == "" {
		return fmt.Errorf("batchId is required")
	}
	if !m.Type.IsValid() {
		return fmt.Errorf("invalid event type %q", m.Type)
	}
	switch m.Type {
	case domain.EventStepStarted, domain.EventStepEnded:
		if strings.TrimSpace(m.InstanceID) == "" {
			return fmt.Errorf("instanceId is required for %s", m.Type)
		}
	case domain.EventBatchValidated:
		if m.Verdict == "" || m.Verdict == domain.VerdictNone {
			return fmt.Errorf("verdict is required for %s", m.Type)
		}
	}
	if m.OccurredAt.IsZero() {
		return fmt.Errorf("occurredAt is required")
	}
	return nil
}

// ToDomain converts the payload into the audit record the worker stores.
func (m BatchEvent) ToDomain() *domain.BatchEvent {
	event := &domain.BatchEvent{
		ID:            m.EventID,
		BatchID:       m.BatchID,
		Type:          m.Type,
		CorrelationID: m.CorrelationID,
		OccurredAt:    m.OccurredAt.UTC(),
	}
	if m.InstanceID != "" {
		instanceID := m.InstanceID
		event.InstanceID = &instanceID
	}
	if m.Verdict != "" {
		verdict := m.Verdict
		event.Verdict = &verdict
	}
	return event
}
