package match

import (
	"fmt"
	"strings"

	"github.com/david/grant-matcher/internal/models"
)

// ConfigurationError reports a profile missing a field scoring cannot
// proceed without.
type ConfigurationError struct {
	Field string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("profile configuration invalid: missing %s", e.Field)
}

// InvariantViolationError is raised in strict mode when a factor
// produced a value outside [0,1] before clamping. In production the
// clamp silently corrects it; a strict build surfaces it because it
// means a factor formula is wrong.
type InvariantViolationError struct {
	OpportunityID string
	Factors       []string
}

func (e *InvariantViolationError) Error() string {
	return fmt.Sprintf("scoring invariant violated for opportunity %s: factors out of range: %s",
		e.OpportunityID, strings.Join(e.Factors, ", "))
}

// validateProfile checks the mandatory fields.
func validateProfile(p *models.RequesterProfile) error {
	if p == nil {
		return &ConfigurationError{Field: "profile"}
	}
	if strings.TrimSpace(p.EntityType) == "" {
		return &ConfigurationError{Field: "entity_type"}
	}
	if len(p.FundingTypes) == 0 {
		return &ConfigurationError{Field: "funding_types"}
	}
	return nil
}
