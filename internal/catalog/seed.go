// Package catalog reads the process type seed file applied at start-up.
package catalog

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/kursadbilgin/kitchen-engine/internal/domain"
	"gopkg.in/yaml.v3"
)

// SeedFile is the on-disk layout:
//
//	processTypes:
//	  - name: kneading
//	    standardDurationMinutes: 12
//	    varianceBufferMinutes: 2
type SeedFile struct {
	ProcessTypes []SeedEntry `yaml:"processTypes"`
}

type SeedEntry struct {
	ID                      string  `yaml:"id"`
	Name                    string  `yaml:"name"`
	StandardDurationMinutes float64 `yaml:"standardDurationMinutes"`
	VarianceBufferMinutes   float64 `yaml:"varianceBufferMinutes"`
	// Position defaults to the entry's index in the file.
	Position *int `yaml:"position"`
}

// LoadSeed reads and validates the seed file at path.
func LoadSeed(path string) ([]domain.ProcessType, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog seed %s: %w", path, err)
	}
	types, err := ParseSeed(raw)
	if err != nil {
		return nil, fmt.Errorf("catalog seed %s: %w", path, err)
	}
	return types, nil
}

// ParseSeed decodes seed YAML. Unknown keys and duplicate names are rejected.
func ParseSeed(raw []byte) ([]domain.ProcessType, error) {
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)

	var file SeedFile
	if err := dec.Decode(&file); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: seed file is empty", domain.ErrValidation)
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	if len(file.ProcessTypes) == 0 {
		return nil, fmt.Errorf("%w: seed file lists no process types", domain.ErrValidation)
	}

	seen := make(map[string]struct{}, len(file.ProcessTypes))
	types := make([]domain.ProcessType, 0, len(file.ProcessTypes))
	for i, entry := range file.ProcessTypes {
		pt := domain.ProcessType{
			ID:                      strings.TrimSpace(entry.ID),
			Name:                    strings.TrimSpace(entry.Name),
			StandardDurationMinutes: entry.StandardDurationMinutes,
			VarianceBufferMinutes:   entry.VarianceBufferMinutes,
			Position:                i,
		}
		if entry.Position != nil {
			pt.Position = *entry.Position
		}
		if err := pt.Validate(); err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}

		key := strings.ToLower(pt.Name)
		if _, dup := seen[key]; dup {
			return nil, fmt.Errorf("%w: duplicate process type %q", domain.ErrValidation, pt.Name)
		}
		seen[key] = struct{}{}
		types = append(types, pt)
	}

	return types, nil
}
