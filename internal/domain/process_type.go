package domain

import (
	"fmt"
	"strings"
	"time"
)

// ProcessType is a catalog definition of a timed processing step.
type ProcessType struct {
	ID                      string
	Name                    string
	StandardDurationMinutes float64
	VarianceBufferMinutes   float64
	Position                int
	CreatedAt               time.Time
	UpdatedAt               time.Time
}

func (p *ProcessType) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("%w: process type name is required", ErrValidation)
	}
	if p.StandardDurationMinutes <= 0 {
		return fmt.Errorf("%w: standard duration must be positive (got %v)", ErrValidation, p.StandardDurationMinutes)
	}
	if p.VarianceBufferMinutes < 0 {
		return fmt.Errorf("%w: variance buffer must not be negative (got %v)", ErrValidation, p.VarianceBufferMinutes)
	}
	return nil
}

// Band returns the accepted duration range in minutes.
func (p ProcessType) Band() (lower, upper float64) {
	return p.StandardDurationMinutes - p.VarianceBufferMinutes, p.StandardDurationMinutes + p.VarianceBufferMinutes
}

// CatalogByID indexes process types by id.
func CatalogByID(types []ProcessType) map[string]ProcessType {
	out := make(map[string]ProcessType, len(types))
	for _, t := range types {
		out[t.ID] = t
	}
	return out
}
