package classifier

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/kursadbilgin/kitchen-engine/internal/domain"
)

var base = time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC)

func stepsWithMinutes(typeID string, minutes ...float64) []domain.ProcessInstance {
	out := make([]domain.ProcessInstance, 0, len(minutes))
	cursor := base
	for i, m := range minutes {
		start := cursor
		end := start.Add(time.Duration(m * float64(time.Minute)))
		out = append(out, domain.ProcessInstance{
			ID:            fmt.Sprintf("step-%d", i+1),
			ProcessTypeID: typeID,
			Sequence:      i,
			StartTime:     &start,
			EndTime:       &end,
		})
		cursor = end
	}
	return out
}

func standardCatalog() map[string]domain.ProcessType {
	return map[string]domain.ProcessType{
		"cook": {ID: "cook", Name: "Cooking", StandardDurationMinutes: 10, VarianceBufferMinutes: 2},
	}
}

func TestClassifyScenarios(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		minutes []float64
		want    domain.Verdict
		deviant int
		gross   int
	}{
		{name: "gross overrun is a shift", minutes: []float64{11, 9, 20}, want: domain.VerdictShiftDetected, deviant: 1, gross: 1},
		{name: "all inside band", minutes: []float64{11, 9, 10}, want: domain.VerdictGood},
		{name: "small overrun is moderate", minutes: []float64{13, 9, 10}, want: domain.VerdictModerate, deviant: 1},
		{name: "band edges are inside", minutes: []float64{8, 12, 10}, want: domain.VerdictGood},
		{name: "overrun equal to width is a shift", minutes: []float64{16, 10, 10}, want: domain.VerdictShiftDetected, deviant: 1, gross: 1},
		{name: "underrun just short of width is moderate", minutes: []float64{4.5, 10, 10}, want: domain.VerdictModerate, deviant: 1},
		{name: "near zero skipped step is a shift", minutes: []float64{0.01, 10, 10}, want: domain.VerdictShiftDetected, deviant: 1, gross: 1},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := Classify(stepsWithMinutes("cook", tt.minutes...), standardCatalog(), DefaultPolicy())
			if err != nil {
				t.Fatalf("Classify() error = %v", err)
			}
			if got.Verdict != tt.want {
				t.Fatalf("Classify() verdict = %s, want %s", got.Verdict, tt.want)
			}
			if got.DeviantCount != tt.deviant {
				t.Fatalf("DeviantCount = %d, want %d", got.DeviantCount, tt.deviant)
			}
			if got.GrossCount != tt.gross {
				t.Fatalf("GrossCount = %d, want %d", got.GrossCount, tt.gross)
			}
			if len(got.Steps) != len(tt.minutes) {
				t.Fatalf("Steps len = %d, want %d", len(got.Steps), len(tt.minutes))
			}
		})
	}
}

func TestClassifyShiftScenarioAssessment(t *testing.T) {
	t.Parallel()

	got, err := Classify(stepsWithMinutes("cook", 11, 9, 20), standardCatalog(), DefaultPolicy())
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}

	third := got.Steps[2]
	if third.LowerMinutes != 8 || third.UpperMinutes != 12 {
		t.Fatalf("band = [%v,%v], want [8,12]", third.LowerMinutes, third.UpperMinutes)
	}
	if third.DeviationMinutes != 8 {
		t.Fatalf("DeviationMinutes = %v, want 8", third.DeviationMinutes)
	}
	if !third.Gross {
		t.Fatal("third step should be gross")
	}
}

func TestClassifyPolicyFactor(t *testing.T) {
	t.Parallel()

	// 13 minutes overruns [8,12] by 1; a factor of 0.25 makes the gross threshold exactly 1.
	got, err := Classify(stepsWithMinutes("cook", 13, 10), standardCatalog(), Policy{ShiftWidthFactor: 0.25})
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if got.Verdict != domain.VerdictShiftDetected {
		t.Fatalf("verdict = %s, want shift_detected", got.Verdict)
	}

	got, err = Classify(stepsWithMinutes("cook", 20, 10), standardCatalog(), Policy{ShiftWidthFactor: 3})
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if got.Verdict != domain.VerdictModerate {
		t.Fatalf("verdict = %s, want moderate", got.Verdict)
	}
}

func TestClassifyZeroBufferAnyDeviationIsShift(t *testing.T) {
	t.Parallel()

	catalog := map[string]domain.ProcessType{
		"rest": {ID: "rest", StandardDurationMinutes: 5},
	}
	got, err := Classify(stepsWithMinutes("rest", 5, 5.5), catalog, DefaultPolicy())
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if got.Verdict != domain.VerdictShiftDetected {
		t.Fatalf("verdict = %s, want shift_detected", got.Verdict)
	}
}

func TestClassifyErrors(t *testing.T) {
	t.Parallel()

	if _, err := Classify(nil, standardCatalog(), DefaultPolicy()); !errors.Is(err, domain.ErrIncompleteSequence) {
		t.Fatalf("Classify(nil) error = %v, want ErrIncompleteSequence", err)
	}

	open := stepsWithMinutes("cook", 10, 10)
	open[1].EndTime = nil
	if _, err := Classify(open, standardCatalog(), DefaultPolicy()); !errors.Is(err, domain.ErrIncompleteSequence) {
		t.Fatalf("Classify(open) error = %v, want ErrIncompleteSequence", err)
	}

	if _, err := Classify(stepsWithMinutes("fry", 10), standardCatalog(), DefaultPolicy()); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("Classify(unknown type) error = %v, want ErrValidation", err)
	}
}

func TestClassifyVerdictIsMostSevereStep(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		minutes []float64
		want    domain.Verdict
	}{
		{name: "shift first", minutes: []float64{20, 11, 9}, want: domain.VerdictShiftDetected},
		{name: "moderate last", minutes: []float64{10, 10, 13}, want: domain.VerdictModerate},
		{name: "all in band", minutes: []float64{8, 12, 10}, want: domain.VerdictGood},
	}

	for _, tt := range tests {
		got, err := Classify(stepsWithMinutes("cook", tt.minutes...), standardCatalog(), DefaultPolicy())
		if err != nil {
			t.Fatalf("%s: Classify() error = %v", tt.name, err)
		}
		if got.Verdict != tt.want {
			t.Fatalf("%s: verdict = %s, want %s", tt.name, got.Verdict, tt.want)
		}

		worst := domain.VerdictGood
		for _, step := range got.Steps {
			if step.Verdict().Severity() > worst.Severity() {
				worst = step.Verdict()
			}
		}
		if worst != got.Verdict {
			t.Fatalf("%s: batch verdict %s differs from worst step verdict %s", tt.name, got.Verdict, worst)
		}
	}
}

func TestStepAssessmentVerdict(t *testing.T) {
	t.Parallel()

	tests := []struct {
		step StepAssessment
		want domain.Verdict
	}{
		{step: StepAssessment{}, want: domain.VerdictGood},
		{step: StepAssessment{Deviant: true}, want: domain.VerdictModerate},
		{step: StepAssessment{Deviant: true, Gross: true}, want: domain.VerdictShiftDetected},
	}

	for _, tt := range tests {
		if got := tt.step.Verdict(); got != tt.want {
			t.Fatalf("Verdict() for %+v = %s, want %s", tt.step, got, tt.want)
		}
	}
}
