package domain

import "time"

// EventType names a recorded transition.
type EventType string

const (
	EventStepStarted    EventType = "step_started"
	EventStepEnded      EventType = "step_ended"
	EventBatchCompleted EventType = "batch_completed"
	EventBatchValidated EventType = "batch_validated"
)

func (e EventType) String() string { return string(e) }

func (e EventType) IsValid() bool {
	switch e {
	case EventStepStarted, EventStepEnded, EventBatchCompleted, EventBatchValidated:
		return true
	}
	return false
}

// BatchEvent is an audit record of one applied transition.
type BatchEvent struct {
	ID            string
	BatchID       string
	InstanceID    *string
	Type          EventType
	CorrelationID string
	Verdict       *Verdict
	OccurredAt    time.Time
	CreatedAt     time.Time
}
