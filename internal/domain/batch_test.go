package domain

import (
	"errors"
	"testing"
)

func TestParseBatchStatusFromString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   string
		want    BatchStatus
		wantErr bool
	}{
		{name: "valid lowercase", input: "completed", want: BatchStatusCompleted},
		{name: "valid uppercase with spaces", input: " IN_PROGRESS ", want: BatchStatusInProgress},
		{name: "invalid", input: "archived", wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := ParseBatchStatusFromString(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrValidation) {
					t.Fatalf("ParseBatchStatusFromString() error = %v, want ErrValidation", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseBatchStatusFromString() unexpected error = %v", err)
			}
			if got != tt.want {
				t.Fatalf("ParseBatchStatusFromString() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestBatchStatusCanAdvanceTo(t *testing.T) {
	t.Parallel()

	tests := []struct {
		from BatchStatus
		to   BatchStatus
		want bool
	}{
		{from: BatchStatusInProgress, to: BatchStatusCompleted, want: true},
		{from: BatchStatusCompleted, to: BatchStatusValidated, want: true},
		{from: BatchStatusInProgress, to: BatchStatusValidated, want: false},
		{from: BatchStatusCompleted, to: BatchStatusInProgress, want: false},
		{from: BatchStatusValidated, to: BatchStatusCompleted, want: false},
		{from: BatchStatusCompleted, to: BatchStatusCompleted, want: false},
		{from: BatchStatus("bogus"), to: BatchStatusCompleted, want: false},
	}

	for _, tt := range tests {
		if got := tt.from.CanAdvanceTo(tt.to); got != tt.want {
			t.Fatalf("%s.CanAdvanceTo(%s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestBatchCheckAdvance(t *testing.T) {
	t.Parallel()

	b := Batch{Status: BatchStatusValidated}
	if err := b.CheckAdvance(BatchStatusCompleted); !errors.Is(err, ErrInvalidStatusTransition) {
		t.Fatalf("CheckAdvance() error = %v, want ErrInvalidStatusTransition", err)
	}

	b.Status = BatchStatusInProgress
	if err := b.CheckAdvance(BatchStatusCompleted); err != nil {
		t.Fatalf("CheckAdvance() unexpected error = %v", err)
	}
}

func TestBatchValidate(t *testing.T) {
	t.Parallel()

	base := Batch{ProductID: "halwa-saffron", InputQuantity: 12.5, Status: BatchStatusInProgress}

	tests := []struct {
		name    string
		mutate  func(*Batch)
		wantErr bool
	}{
		{name: "valid batch", mutate: func(b *Batch) {}},
		{name: "missing product", mutate: func(b *Batch) { b.ProductID = " " }, wantErr: true},
		{name: "zero quantity", mutate: func(b *Batch) { b.InputQuantity = 0 }, wantErr: true},
		{name: "invalid status", mutate: func(b *Batch) { b.Status = "draft" }, wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			current := base
			tt.mutate(&current)

			err := current.Validate()
			if tt.wantErr {
				if !errors.Is(err, ErrValidation) {
					t.Fatalf("Validate() error = %v, want ErrValidation", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Validate() unexpected error = %v", err)
			}
		})
	}
}

func TestProcessTypeValidate(t *testing.T) {
	t.Parallel()

	valid := ProcessType{Name: "Cooking", StandardDurationMinutes: 40, VarianceBufferMinutes: 5}
	if err := valid.Validate(); err != nil {
		t.Fatalf("Validate() unexpected error = %v", err)
	}

	zeroBuffer := ProcessType{Name: "Cooling", StandardDurationMinutes: 15}
	if err := zeroBuffer.Validate(); err != nil {
		t.Fatalf("Validate() zero buffer unexpected error = %v", err)
	}

	for _, pt := range []ProcessType{
		{Name: "", StandardDurationMinutes: 10},
		{Name: "Mixing", StandardDurationMinutes: 0},
		{Name: "Mixing", StandardDurationMinutes: 10, VarianceBufferMinutes: -1},
	} {
		if err := pt.Validate(); !errors.Is(err, ErrValidation) {
			t.Fatalf("Validate(%+v) error = %v, want ErrValidation", pt, err)
		}
	}
}

func TestParseRole(t *testing.T) {
	t.Parallel()

	tests := map[string]Role{
		"admin":    RoleAdmin,
		" MANAGER": RoleManager,
		"sales":    RoleSales,
		"":         RoleNone,
		"chef":     RoleNone,
	}
	for input, want := range tests {
		if got := ParseRole(input); got != want {
			t.Fatalf("ParseRole(%q) = %s, want %s", input, got, want)
		}
	}

	if !RoleManager.CanValidate() || !RoleAdmin.CanValidate() {
		t.Fatal("admin and manager should be allowed to validate")
	}
	if RoleSales.CanValidate() || RoleNone.CanValidate() {
		t.Fatal("sales and none should not be allowed to validate")
	}
}

func TestIsRejection(t *testing.T) {
	t.Parallel()

	if !IsRejection(ErrOutOfSequence) {
		t.Fatal("ErrOutOfSequence should be a rejection")
	}
	if IsRejection(ErrDataUnavailable) {
		t.Fatal("ErrDataUnavailable should not be a rejection")
	}
	if IsRejection(errors.New("boom")) {
		t.Fatal("plain error should not be a rejection")
	}
}

func TestVerdictSeverityOrder(t *testing.T) {
	t.Parallel()

	ordered := []Verdict{VerdictNone, VerdictGood, VerdictModerate, VerdictShiftDetected}
	for i := 1; i < len(ordered); i++ {
		if ordered[i].Severity() <= ordered[i-1].Severity() {
			t.Fatalf("%s.Severity() = %d, want above %s (%d)", ordered[i], ordered[i].Severity(), ordered[i-1], ordered[i-1].Severity())
		}
	}
}
