package workflow

import (
	"fmt"

	"github.com/phaseline/phaseline/internal/domain"
)

// Phase is one stage of a workflow type's fixed sequence. Each phase names
// the responder topic its work is dispatched to.
type Phase struct {
	Name  string `json:"name"`
	Topic string `json:"topic"`
}

// Workflow type identifiers. The phase sequences are fixed; workflow rows
// reference them by type name.
const (
	TypeFeatureDevelopment = "feature-development"
	TypeReviewCycle        = "review-cycle"
	TypeSpecOnly           = "spec-only"
)

var phaseRegistry = map[string][]Phase{
	TypeFeatureDevelopment: {
		{Name: "specification", Topic: "architecture"},
		{Name: "planning", Topic: "planning"},
		{Name: "task-breakdown", Topic: "planning"},
	},
	TypeReviewCycle: {
		{Name: "review", Topic: "architecture"},
	},
	TypeSpecOnly: {
		{Name: "specification", Topic: "architecture"},
	},
}

// Phases returns the phase sequence for the given workflow type.
func Phases(workflowType string) ([]Phase, error) {
	phases, ok := phaseRegistry[workflowType]
	if !ok {
		return nil, fmt.Errorf("%w: unknown workflow type %q", domain.ErrValidation, workflowType)
	}
	return phases, nil
}

// Types returns the registered workflow type names.
func Types() []string {
	out := make([]string, 0, len(phaseRegistry))
	for t := range phaseRegistry {
		out = append(out, t)
	}
	return out
}

// PhaseAt returns the phase at the given 1-based index for the workflow type.
func PhaseAt(workflowType string, n int) (Phase, error) {
	phases, err := Phases(workflowType)
	if err != nil {
		return Phase{}, err
	}
	if n < 1 || n > len(phases) {
		return Phase{}, fmt.Errorf("%w: phase %d out of range for %q", domain.ErrValidation, n, workflowType)
	}
	return phases[n-1], nil
}
