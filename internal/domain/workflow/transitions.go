package workflow

import (
	"fmt"

	"github.com/phaseline/phaseline/internal/domain"
)

// Transition is the computed effect of applying a trigger to a workflow.
type Transition struct {
	To        Status
	NextPhase int    // current_phase after the transition
	PhaseName string // name of NextPhase (empty for terminal states past the last phase)
	Rework    bool   // human_rejected re-entering the same phase
	Exhausted bool   // human_rejected with the rework budget spent
}

// TransitionError carries the context needed to diagnose a rejected trigger.
type TransitionError struct {
	WorkflowID string
	From       Status
	Trigger    Trigger
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("workflow %s: trigger %q not applicable in status %q", e.WorkflowID, e.Trigger, e.From)
}

// Unwrap ties TransitionError into the shared sentinel taxonomy.
func (e *TransitionError) Unwrap() error { return domain.ErrInvalidTransition }

// Next computes the transition for applying trigger to w. maxReworks bounds
// human_rejected rework cycles; 0 means unlimited. Pure: no side effects.
func Next(w *Workflow, trigger Trigger, maxReworks int) (Transition, error) {
	if w.Status.Terminal() {
		return Transition{}, &TransitionError{WorkflowID: w.ID, From: w.Status, Trigger: trigger}
	}

	phases, err := Phases(w.Type)
	if err != nil {
		return Transition{}, err
	}

	invalid := func() (Transition, error) {
		return Transition{}, &TransitionError{WorkflowID: w.ID, From: w.Status, Trigger: trigger}
	}

	switch trigger {
	case TriggerStart:
		if w.Status != StatusPending {
			return invalid()
		}
		return Transition{To: StatusInProgress, NextPhase: 1, PhaseName: phases[0].Name}, nil

	case TriggerAgentComplete:
		if w.Status != StatusInProgress {
			return invalid()
		}
		return Transition{To: StatusWaitingApproval, NextPhase: w.CurrentPhase, PhaseName: w.PhaseName}, nil

	case TriggerError:
		if w.Status != StatusInProgress && w.Status != StatusWaitingApproval {
			return invalid()
		}
		return Transition{To: StatusFailed, NextPhase: w.CurrentPhase, PhaseName: w.PhaseName}, nil

	case TriggerHumanApproved:
		if w.Status != StatusWaitingApproval {
			return invalid()
		}
		if w.CurrentPhase >= len(phases) {
			return Transition{To: StatusCompleted, NextPhase: w.CurrentPhase, PhaseName: w.PhaseName}, nil
		}
		next := w.CurrentPhase + 1
		return Transition{To: StatusInProgress, NextPhase: next, PhaseName: phases[next-1].Name}, nil

	case TriggerHumanRejected:
		if w.Status != StatusWaitingApproval {
			return invalid()
		}
		if maxReworks > 0 && w.ReworkCount >= maxReworks {
			return Transition{To: StatusFailed, NextPhase: w.CurrentPhase, PhaseName: w.PhaseName, Exhausted: true}, nil
		}
		return Transition{To: StatusInProgress, NextPhase: w.CurrentPhase, PhaseName: w.PhaseName, Rework: true}, nil

	default:
		return Transition{}, fmt.Errorf("%w: unknown trigger %q", domain.ErrValidation, trigger)
	}
}
