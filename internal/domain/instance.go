package domain

import (
	"fmt"
	"strings"
	"time"
)

// StepState is derived from an instance's timestamps.
type StepState string

const (
	StepNotStarted StepState = "not_started"
	StepActive     StepState = "active"
	StepEnded      StepState = "ended"
)

func (s StepState) String() string { return string(s) }

// ProcessInstance is one occurrence of a ProcessType within a batch timeline.
type ProcessInstance struct {
	ID            string
	BatchID       string
	ProcessTypeID string
	Sequence      int
	StartTime     *time.Time
	EndTime       *time.Time
	Remarks       *string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (p *ProcessInstance) State() StepState {
	switch {
	case p.StartTime == nil:
		return StepNotStarted
	case p.EndTime == nil:
		return StepActive
	default:
		return StepEnded
	}
}

func (p *ProcessInstance) IsActive() bool { return p.State() == StepActive }

func (p *ProcessInstance) IsEnded() bool { return p.State() == StepEnded }

// MergeRemarks appends extra to existing on a new line. Blank input is ignored.
func MergeRemarks(existing *string, extra string) *string {
	extra = strings.TrimSpace(extra)
	if extra == "" {
		return existing
	}
	if existing == nil || strings.TrimSpace(*existing) == "" {
		return &extra
	}
	merged := *existing + "\n" + extra
	return &merged
}

// ReconcileUpdate decides whether a write of incoming over stored should be
// applied. Ended rows are final, so the write is dropped. Otherwise only the
// remarks may change: start and end times move through StartStep and EndStep,
// which also hold the batch's active-step claim, so incoming must carry the
// timestamps already stored.
func ReconcileUpdate(stored *ProcessInstance, incoming *ProcessInstance) (bool, error) {
	if stored == nil || incoming == nil {
		return false, fmt.Errorf("%w: instance is required", ErrValidation)
	}
	if incoming.BatchID != "" && incoming.BatchID != stored.BatchID {
		return false, fmt.Errorf("%w: step %s belongs to batch %s", ErrValidation, stored.ID, stored.BatchID)
	}
	if stored.IsEnded() {
		return false, nil
	}
	if !sameInstant(stored.StartTime, incoming.StartTime) {
		return false, fmt.Errorf("%w: start time of step %s is set by StartStep", ErrValidation, stored.ID)
	}
	if !sameInstant(stored.EndTime, incoming.EndTime) {
		return false, fmt.Errorf("%w: end time of step %s is set by EndStep", ErrValidation, stored.ID)
	}
	return !sameText(stored.Remarks, incoming.Remarks), nil
}

func sameInstant(a *time.Time, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

func sameText(a *string, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// Timeline is a batch's instances ordered by sequence ascending.
type Timeline []ProcessInstance

// CurrentIndex returns the first instance without an end time, or the last
// instance when every step has ended. An empty timeline yields -1.
func (t Timeline) CurrentIndex() int {
	if len(t) == 0 {
		return -1
	}
	for i := range t {
		if t[i].EndTime == nil {
			return i
		}
	}
	return len(t) - 1
}

// Current returns the instance at CurrentIndex.
func (t Timeline) Current() (*ProcessInstance, bool) {
	idx := t.CurrentIndex()
	if idx < 0 {
		return nil, false
	}
	return &t[idx], true
}

// Active returns the started-but-not-ended instance, if any.
func (t Timeline) Active() (*ProcessInstance, bool) {
	for i := range t {
		if t[i].IsActive() {
			return &t[i], true
		}
	}
	return nil, false
}

// IndexOf returns the position of instanceID or -1.
func (t Timeline) IndexOf(instanceID string) int {
	for i := range t {
		if t[i].ID == instanceID {
			return i
		}
	}
	return -1
}

// Complete reports whether every instance has ended.
func (t Timeline) Complete() bool {
	if len(t) == 0 {
		return false
	}
	for i := range t {
		if t[i].EndTime == nil {
			return false
		}
	}
	return true
}

// TotalDurationMinutes sums ended step durations.
func (t Timeline) TotalDurationMinutes() float64 {
	var total time.Duration
	for i := range t {
		if t[i].IsEnded() {
			total += t[i].EndTime.Sub(*t[i].StartTime)
		}
	}
	return total.Minutes()
}
