package domain

import "time"

// Elapsed derives a step's elapsed time from its persisted timestamps.
// It holds no state: an active step is measured against now on every call,
// an ended step always yields its recorded duration. now before the start
// time is outside the contract and clamps to zero.
func Elapsed(instance ProcessInstance, now time.Time) time.Duration {
	if instance.StartTime == nil {
		return 0
	}

	end := now
	if instance.EndTime != nil {
		end = *instance.EndTime
	}

	elapsed := end.Sub(*instance.StartTime)
	if elapsed < 0 {
		return 0
	}
	return elapsed
}

// ClockReading is a display snapshot of one step's clock.
type ClockReading struct {
	BatchID          string
	InstanceID       string
	ProcessTypeID    string
	Sequence         int
	State            StepState
	StartTime        *time.Time
	Elapsed          time.Duration
	StandardMinutes  float64
	RemainingMinutes float64
	ReadAt           time.Time
}

// ReadClock builds a ClockReading for instance at now. pt may be nil when the
// catalog entry is unknown.
func ReadClock(instance ProcessInstance, pt *ProcessType, now time.Time) ClockReading {
	elapsed := Elapsed(instance, now)
	reading := ClockReading{
		BatchID:       instance.BatchID,
		InstanceID:    instance.ID,
		ProcessTypeID: instance.ProcessTypeID,
		Sequence:      instance.Sequence,
		State:         instance.State(),
		StartTime:     instance.StartTime,
		Elapsed:       elapsed,
		ReadAt:        now,
	}
	if pt != nil {
		reading.StandardMinutes = pt.StandardDurationMinutes
		reading.RemainingMinutes = pt.StandardDurationMinutes - elapsed.Minutes()
	}
	return reading
}
