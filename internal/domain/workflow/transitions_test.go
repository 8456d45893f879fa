package workflow

import (
	"errors"
	"testing"

	"github.com/phaseline/phaseline/internal/domain"
)

func TestNext_FullApprovalPath(t *testing.T) {
	w := &Workflow{ID: "wf-1", Type: TypeFeatureDevelopment, Status: StatusPending}

	tr, err := Next(w, TriggerStart, 0)
	if err != nil {
		t.Fatal(err)
	}
	if tr.To != StatusInProgress || tr.NextPhase != 1 || tr.PhaseName != "specification" {
		t.Fatalf("unexpected start transition: %+v", tr)
	}

	w.Status, w.CurrentPhase, w.PhaseName = tr.To, tr.NextPhase, tr.PhaseName

	tr, err = Next(w, TriggerAgentComplete, 0)
	if err != nil {
		t.Fatal(err)
	}
	if tr.To != StatusWaitingApproval {
		t.Fatalf("expected waiting_approval, got %s", tr.To)
	}
	w.Status = tr.To

	tr, err = Next(w, TriggerHumanApproved, 0)
	if err != nil {
		t.Fatal(err)
	}
	if tr.To != StatusInProgress || tr.NextPhase != 2 || tr.PhaseName != "planning" {
		t.Fatalf("expected advance to phase 2, got %+v", tr)
	}
}

func TestNext_LastPhaseApprovalCompletes(t *testing.T) {
	w := &Workflow{ID: "wf-1", Type: TypeReviewCycle, Status: StatusWaitingApproval, CurrentPhase: 1, PhaseName: "review"}

	tr, err := Next(w, TriggerHumanApproved, 0)
	if err != nil {
		t.Fatal(err)
	}
	if tr.To != StatusCompleted {
		t.Fatalf("single-phase approval should complete, got %s", tr.To)
	}
}

func TestNext_RejectedReworkAndBudget(t *testing.T) {
	w := &Workflow{ID: "wf-1", Type: TypeReviewCycle, Status: StatusWaitingApproval, CurrentPhase: 1, PhaseName: "review"}

	tr, err := Next(w, TriggerHumanRejected, 2)
	if err != nil {
		t.Fatal(err)
	}
	if tr.To != StatusInProgress || !tr.Rework {
		t.Fatalf("expected rework transition, got %+v", tr)
	}

	w.ReworkCount = 2
	tr, err = Next(w, TriggerHumanRejected, 2)
	if err != nil {
		t.Fatal(err)
	}
	if tr.To != StatusFailed || !tr.Exhausted {
		t.Fatalf("expected failed on exhausted budget, got %+v", tr)
	}
}

func TestNext_UnlimitedReworkWhenBudgetZero(t *testing.T) {
	w := &Workflow{ID: "wf-1", Type: TypeReviewCycle, Status: StatusWaitingApproval, CurrentPhase: 1, PhaseName: "review", ReworkCount: 50}

	tr, err := Next(w, TriggerHumanRejected, 0)
	if err != nil {
		t.Fatal(err)
	}
	if tr.To != StatusInProgress {
		t.Fatalf("budget 0 should allow unlimited rework, got %s", tr.To)
	}
}

func TestNext_ErrorFromBothActiveStates(t *testing.T) {
	for _, from := range []Status{StatusInProgress, StatusWaitingApproval} {
		w := &Workflow{ID: "wf-1", Type: TypeReviewCycle, Status: from, CurrentPhase: 1, PhaseName: "review"}
		tr, err := Next(w, TriggerError, 0)
		if err != nil {
			t.Fatalf("error trigger from %s: %v", from, err)
		}
		if tr.To != StatusFailed {
			t.Fatalf("expected failed from %s, got %s", from, tr.To)
		}
	}
}

func TestNext_TerminalStatesRejectEverything(t *testing.T) {
	triggers := []Trigger{TriggerStart, TriggerAgentComplete, TriggerError, TriggerHumanApproved, TriggerHumanRejected}
	for _, status := range []Status{StatusCompleted, StatusFailed} {
		for _, trig := range triggers {
			w := &Workflow{ID: "wf-1", Type: TypeReviewCycle, Status: status, CurrentPhase: 1}
			if _, err := Next(w, trig, 0); !errors.Is(err, domain.ErrInvalidTransition) {
				t.Errorf("trigger %s from %s: expected ErrInvalidTransition, got %v", trig, status, err)
			}
		}
	}
}

func TestNext_InapplicableTrigger(t *testing.T) {
	w := &Workflow{ID: "wf-1", Type: TypeReviewCycle, Status: StatusPending}

	_, err := Next(w, TriggerHumanApproved, 0)
	if !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}

	var te *TransitionError
	if !errors.As(err, &te) {
		t.Fatal("expected a *TransitionError")
	}
	if te.From != StatusPending || te.Trigger != TriggerHumanApproved {
		t.Fatalf("error should carry context, got %+v", te)
	}
}

func TestPhases_UnknownType(t *testing.T) {
	if _, err := Phases("no-such-type"); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestPhaseAt(t *testing.T) {
	p, err := PhaseAt(TypeFeatureDevelopment, 2)
	if err != nil {
		t.Fatal(err)
	}
	if p.Name != "planning" {
		t.Fatalf("expected planning, got %s", p.Name)
	}

	if _, err := PhaseAt(TypeFeatureDevelopment, 4); err == nil {
		t.Fatal("expected out-of-range error")
	}
}
