package domain

import (
	"fmt"
	"strings"
	"time"
)

// BatchStatus represents the lifecycle state of a production batch.
type BatchStatus string

const (
	BatchStatusInProgress BatchStatus = "in_progress"
	BatchStatusCompleted  BatchStatus = "completed"
	BatchStatusValidated  BatchStatus = "validated"
)

func (s BatchStatus) String() string { return string(s) }

func (s BatchStatus) IsValid() bool {
	switch s {
	case BatchStatusInProgress, BatchStatusCompleted, BatchStatusValidated:
		return true
	}
	return false
}

func (s BatchStatus) rank() int {
	switch s {
	case BatchStatusInProgress:
		return 1
	case BatchStatusCompleted:
		return 2
	case BatchStatusValidated:
		return 3
	}
	return 0
}

// CanAdvanceTo reports whether next is exactly one step forward from s.
func (s BatchStatus) CanAdvanceTo(next BatchStatus) bool {
	if !s.IsValid() || !next.IsValid() {
		return false
	}
	return next.rank() == s.rank()+1
}

func ParseBatchStatusFromString(s string) (BatchStatus, error) {
	st := BatchStatus(strings.ToLower(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", fmt.Errorf("%w: invalid batch status %q", ErrValidation, s)
	}
	return st, nil
}

// Verdict is the batch-level timing classification.
type Verdict string

const (
	VerdictNone          Verdict = "none"
	VerdictGood          Verdict = "good"
	VerdictModerate      Verdict = "moderate"
	VerdictShiftDetected Verdict = "shift_detected"
)

func (v Verdict) String() string { return string(v) }

func (v Verdict) IsValid() bool {
	switch v {
	case VerdictNone, VerdictGood, VerdictModerate, VerdictShiftDetected:
		return true
	}
	return false
}

// Severity orders verdicts; higher is worse.
func (v Verdict) Severity() int {
	switch v {
	case VerdictGood:
		return 1
	case VerdictModerate:
		return 2
	case VerdictShiftDetected:
		return 3
	}
	return 0
}

// Batch is one production run through a fixed sequence of timed steps.
type Batch struct {
	ID                   string
	ProductID            string
	InputQuantity        float64
	Status               BatchStatus
	StartTime            *time.Time
	EndTime              *time.Time
	TotalDurationMinutes *float64
	ValidationStatus     *Verdict
	ActiveInstanceID     *string
	ValidatedBy          *Role
	ValidatedAt          *time.Time
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

func (b *Batch) Validate() error {
	if strings.TrimSpace(b.ProductID) == "" {
		return fmt.Errorf("%w: product id is required", ErrValidation)
	}
	if b.InputQuantity <= 0 {
		return fmt.Errorf("%w: input quantity must be positive (got %v)", ErrValidation, b.InputQuantity)
	}
	if !b.Status.IsValid() {
		return fmt.Errorf("%w: invalid batch status %q", ErrValidation, b.Status)
	}
	return nil
}

// CheckAdvance returns ErrInvalidStatusTransition unless next follows the current status.
func (b *Batch) CheckAdvance(next BatchStatus) error {
	if !b.Status.CanAdvanceTo(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidStatusTransition, b.Status, next)
	}
	return nil
}
