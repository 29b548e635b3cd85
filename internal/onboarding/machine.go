// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nomadiqe Contributors

package onboarding

import (
	"time"

	"github.com/samber/oops"

	"github.com/nomadiqe/nomadiqe/pkg/errutil"
)

// Transition is the result of applying a rule to a Progress.
type Transition struct {
	Progress Progress
	// Changed is false for idempotent no-ops.
	Changed bool
	// Completed is true when this transition reached the terminal step.
	Completed bool
	// Status and Step are the account-level fields after the transition.
	Status Status
	Step   Step
}

// Advance completes step on role's path.
//
// Re-completing a step is a no-op, also after completion. Otherwise the step
// must lie ahead of every completed step, and no required step may be
// skipped on the way. Reaching the terminal step sets COMPLETED.
func Advance(p Progress, role Role, status Status, step Step, now time.Time) (Transition, error) {
	if !step.Valid() {
		return Transition{}, errutil.WithKind(errutil.KindValidation,
			oops.Code("STEP_INVALID").With("step", step).Errorf("unknown onboarding step %q", step))
	}
	if p.HasCompleted(step) {
		return unchanged(p, role, status), nil
	}
	if status == StatusCompleted {
		return Transition{}, errAlreadyCompleted(p)
	}

	path := pathFor(role)
	idx := indexOf(path, step)
	if idx < 0 || step == StepComplete {
		return Transition{}, errutil.WithKind(errutil.KindValidation,
			oops.Code("STEP_NOT_IN_PATH").
				With("step", step).
				With("role", role).
				Errorf("step %q is not part of the %s onboarding", step, role))
	}

	hi := highestCompleted(path, p.CompletedSteps)
	if idx < hi {
		return Transition{}, errutil.WithKind(errutil.KindConflict,
			oops.Code("STEP_BEHIND").
				With("step", step).
				With("current_step", p.CurrentStep).
				Errorf("step %q is behind the current onboarding position", step))
	}
	for j := hi + 1; j < idx; j++ {
		if !path[j].optional {
			return Transition{}, errutil.WithKind(errutil.KindConflict,
				oops.Code("STEP_OUT_OF_ORDER").
					With("step", step).
					With("missing", path[j].step).
					Errorf("step %q must be completed before %q", path[j].step, step))
		}
	}

	next := p.clone()
	next.CompletedSteps = append(next.CompletedSteps, step)
	return settle(next, path, now), nil
}

// ChangeRole switches the account to role before onboarding completes.
// It records role-selection as completed and recomputes the next step on
// the new role's path.
func ChangeRole(p Progress, role Role, status Status, now time.Time) (Transition, error) {
	if status == StatusCompleted {
		return Transition{}, errAlreadyCompleted(p)
	}
	if !role.Selectable() {
		return Transition{}, errutil.WithKind(errutil.KindValidation,
			oops.Code("ROLE_NOT_SELECTABLE").With("role", role).Errorf("role %q cannot be selected", role))
	}

	next := p.clone()
	if !next.HasCompleted(StepRoleSelection) {
		next.CompletedSteps = append(next.CompletedSteps, StepRoleSelection)
	}
	return settle(next, pathFor(role), now), nil
}

// Resume computes the account-level fields implied by p on role's path
// without changing anything.
func Resume(p Progress, role Role) Snapshot {
	path := pathFor(role)
	step := nextOnPath(path, p.CompletedSteps)
	if step == StepComplete {
		return Snapshot{Role: role, Status: StatusCompleted}
	}
	status := StatusInProgress
	if len(p.CompletedSteps) == 0 {
		status = StatusPending
	}
	return Snapshot{Role: role, Status: status, Step: step}
}

func settle(next Progress, path []pathStep, now time.Time) Transition {
	next.UpdatedAt = now
	step := nextOnPath(path, next.CompletedSteps)
	next.CurrentStep = step

	t := Transition{Progress: next, Changed: true}
	if step == StepComplete {
		if t.Progress.CompletedAt == nil {
			at := now
			t.Progress.CompletedAt = &at
		}
		t.Completed = true
		t.Status = StatusCompleted
		return t
	}
	t.Status = StatusInProgress
	t.Step = step
	return t
}

func unchanged(p Progress, role Role, status Status) Transition {
	if status == StatusCompleted {
		return Transition{Progress: p, Status: status}
	}
	snap := Resume(p, role)
	return Transition{Progress: p, Status: snap.Status, Step: snap.Step}
}

func errAlreadyCompleted(p Progress) error {
	return errutil.WithKind(errutil.KindConflict,
		oops.Code("ONBOARDING_COMPLETED").
			With("account_id", p.AccountID.String()).
			Errorf("onboarding is already completed"))
}

func indexOf(path []pathStep, step Step) int {
	for i, ps := range path {
		if ps.step == step {
			return i
		}
	}
	return -1
}

func highestCompleted(path []pathStep, completed []Step) int {
	hi := -1
	for _, s := range completed {
		if i := indexOf(path, s); i > hi {
			hi = i
		}
	}
	return hi
}

func nextOnPath(path []pathStep, completed []Step) Step {
	return path[highestCompleted(path, completed)+1].step
}
