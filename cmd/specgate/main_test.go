package main

import (
	"testing"

	"github.com/kokistudios/specgate/internal/integrate"
	"github.com/kokistudios/specgate/internal/phase"
	"github.com/kokistudios/specgate/internal/workflow"
)

func TestNewlyCompleted(t *testing.T) {
	before := integrate.StatusInfo{Status: workflow.Status{CompletedPhases: []phase.Phase{phase.PhaseProduct}}}
	after := integrate.StatusInfo{Status: workflow.Status{CompletedPhases: []phase.Phase{phase.PhaseProduct, phase.PhaseSpecify}}}

	got := newlyCompleted(before, after)
	if len(got) != 1 || got[0] != phase.PhaseSpecify {
		t.Errorf("newlyCompleted = %v, want [specify]", got)
	}
	if got := newlyCompleted(after, before); len(got) != 0 {
		t.Errorf("newlyCompleted after reset = %v, want none", got)
	}
}

func TestFail(t *testing.T) {
	if err := fail(true, "ignored"); err != nil {
		t.Errorf("fail(true) = %v", err)
	}
	err := fail(false, "Cannot run plan")
	if err == nil || err.Error() != "Cannot run plan" {
		t.Errorf("fail(false) = %v", err)
	}
}
