// Package classifier grades a completed batch's step durations against the
// process catalog.
package classifier

import (
	"fmt"

	"github.com/kursadbilgin/kitchen-engine/internal/domain"
)

// DefaultShiftWidthFactor makes a deviation gross once it is at least as
// large as the band width itself.
const DefaultShiftWidthFactor = 1.0

// Policy holds the gross-deviation threshold.
type Policy struct {
	// ShiftWidthFactor scales the band width. A deviation beyond the band of
	// at least ShiftWidthFactor*width is a shift.
	ShiftWidthFactor float64
}

func DefaultPolicy() Policy {
	return Policy{ShiftWidthFactor: DefaultShiftWidthFactor}
}

func (p Policy) factor() float64 {
	if p.ShiftWidthFactor <= 0 {
		return DefaultShiftWidthFactor
	}
	return p.ShiftWidthFactor
}

// StepAssessment is the per-step outcome.
type StepAssessment struct {
	InstanceID       string
	ProcessTypeID    string
	ActualMinutes    float64
	LowerMinutes     float64
	UpperMinutes     float64
	DeviationMinutes float64
	Deviant          bool
	Gross            bool
}

// Verdict is the classification of this step alone; the batch verdict is
// the most severe step verdict.
func (s StepAssessment) Verdict() domain.Verdict {
	switch {
	case s.Gross:
		return domain.VerdictShiftDetected
	case s.Deviant:
		return domain.VerdictModerate
	default:
		return domain.VerdictGood
	}
}

// Result is the verdict plus the assessments it was derived from.
type Result struct {
	Verdict      domain.Verdict
	Steps        []StepAssessment
	DeviantCount int
	GrossCount   int
}

// Classify compares every instance's recorded duration against its band.
// It is a pure function of its inputs.
func Classify(instances []domain.ProcessInstance, catalog map[string]domain.ProcessType, policy Policy) (Result, error) {
	if len(instances) == 0 {
		return Result{}, fmt.Errorf("%w: batch has no steps", domain.ErrIncompleteSequence)
	}

	result := Result{
		Verdict: domain.VerdictGood,
		Steps:   make([]StepAssessment, 0, len(instances)),
	}
	for i := range instances {
		step, err := assess(instances[i], catalog, policy.factor())
		if err != nil {
			return Result{}, err
		}
		if step.Deviant {
			result.DeviantCount++
		}
		if step.Gross {
			result.GrossCount++
		}
		if v := step.Verdict(); v.Severity() > result.Verdict.Severity() {
			result.Verdict = v
		}
		result.Steps = append(result.Steps, step)
	}

	return result, nil
}

func assess(instance domain.ProcessInstance, catalog map[string]domain.ProcessType, factor float64) (StepAssessment, error) {
	if !instance.IsEnded() {
		return StepAssessment{}, fmt.Errorf("%w: step %s has no recorded duration", domain.ErrIncompleteSequence, instance.ID)
	}

	pt, ok := catalog[instance.ProcessTypeID]
	if !ok {
		return StepAssessment{}, fmt.Errorf("%w: unknown process type %q for step %s", domain.ErrValidation, instance.ProcessTypeID, instance.ID)
	}

	actual := instance.EndTime.Sub(*instance.StartTime).Minutes()
	lower, upper := pt.Band()
	width := upper - lower

	var deviation float64
	switch {
	case actual > upper:
		deviation = actual - upper
	case actual < lower:
		deviation = lower - actual
	}

	deviant := deviation > 0
	return StepAssessment{
		InstanceID:       instance.ID,
		ProcessTypeID:    instance.ProcessTypeID,
		ActualMinutes:    actual,
		LowerMinutes:     lower,
		UpperMinutes:     upper,
		DeviationMinutes: deviation,
		Deviant:          deviant,
		Gross:            deviant && deviation >= factor*width,
	}, nil
}
