package catalog

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/kursadbilgin/kitchen-engine/internal/domain"
)

func TestLoadSeed(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "catalog.yaml")
	content := `processTypes:
  - name: kneading
    standardDurationMinutes: 12
    varianceBufferMinutes: 2
  - name: proofing
    standardDurationMinutes: 45
    varianceBufferMinutes: 5
  - id: 6f1c2f9e-0000-4000-8000-000000000001
    name: baking
    standardDurationMinutes: 30
    position: 7
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write seed: %v", err)
	}

	types, err := LoadSeed(path)
	if err != nil {
		t.Fatalf("LoadSeed() error = %v", err)
	}
	if len(types) != 3 {
		t.Fatalf("LoadSeed() len = %d, want 3", len(types))
	}

	if types[0].Name != "kneading" || types[0].Position != 0 || types[0].StandardDurationMinutes != 12 {
		t.Fatalf("types[0] = %+v", types[0])
	}
	if types[1].Position != 1 || types[1].VarianceBufferMinutes != 5 {
		t.Fatalf("types[1] = %+v", types[1])
	}
	if types[2].ID != "6f1c2f9e-0000-4000-8000-000000000001" || types[2].Position != 7 || types[2].VarianceBufferMinutes != 0 {
		t.Fatalf("types[2] = %+v", types[2])
	}
}

func TestLoadSeedMissingFile(t *testing.T) {
	t.Parallel()

	if _, err := LoadSeed(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("LoadSeed() expected error for missing file")
	}
}

func TestParseSeedRejectsInvalidInput(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  string
	}{
		{name: "empty", raw: ""},
		{name: "no entries", raw: "processTypes: []\n"},
		{name: "unknown key", raw: "processTypes:\n  - name: mixing\n    standardDurationMinutes: 5\n    colour: red\n"},
		{name: "non-positive duration", raw: "processTypes:\n  - name: mixing\n    standardDurationMinutes: 0\n"},
		{name: "negative buffer", raw: "processTypes:\n  - name: mixing\n    standardDurationMinutes: 5\n    varianceBufferMinutes: -1\n"},
		{name: "duplicate name", raw: "processTypes:\n  - name: mixing\n    standardDurationMinutes: 5\n  - name: Mixing\n    standardDurationMinutes: 6\n"},
		{name: "malformed", raw: "processTypes: [\n"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if _, err := ParseSeed([]byte(tt.raw)); !errors.Is(err, domain.ErrValidation) {
				t.Fatalf("ParseSeed() error = %v, want ErrValidation", err)
			}
		})
	}
}
