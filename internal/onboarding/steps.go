// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nomadiqe Contributors

package onboarding

import (
	"strings"

	"github.com/samber/oops"

	"github.com/nomadiqe/nomadiqe/pkg/errutil"
)

// Role is an account's marketplace role.
type Role string

// Roles.
const (
	RoleTraveler   Role = "TRAVELER"
	RoleHost       Role = "HOST"
	RoleInfluencer Role = "INFLUENCER"
	RoleAdmin      Role = "ADMIN"
)

// DefaultRole is assigned to accounts that have not chosen a role.
const DefaultRole = RoleTraveler

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleTraveler, RoleHost, RoleInfluencer, RoleAdmin:
		return true
	}
	return false
}

// Selectable reports whether a user may pick r during onboarding.
// ADMIN is only ever assigned administratively.
func (r Role) Selectable() bool {
	return r == RoleTraveler || r == RoleHost || r == RoleInfluencer
}

// ParseRole parses a role name, case-insensitively.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToUpper(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", errutil.WithKind(errutil.KindValidation,
			oops.Code("ROLE_INVALID").With("role", s).Errorf("unknown role %q", s))
	}
	return r, nil
}

// Status is the coarse onboarding state stored on the account.
type Status string

// Statuses. COMPLETED is terminal.
const (
	StatusPending    Status = "PENDING"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return s == StatusPending || s == StatusInProgress || s == StatusCompleted
}

// Step is an onboarding step key.
type Step string

// Steps. StepComplete is the terminal marker and cannot be completed directly.
const (
	StepWelcome              Step = "welcome"
	StepRoleSelection        Step = "role-selection"
	StepProfileSetup         Step = "profile-setup"
	StepIdentityVerification Step = "identity-verification"
	StepInterestSelection    Step = "interest-selection"
	StepListingCreation      Step = "listing-creation"
	StepCollaborationSetup   Step = "collaboration-setup"
	StepSocialConnect        Step = "social-connect"
	StepMediaKitSetup        Step = "media-kit-setup"
	StepComplete             Step = "complete"
)

var knownSteps = map[Step]struct{}{
	StepWelcome: {}, StepRoleSelection: {}, StepProfileSetup: {}, StepIdentityVerification: {},
	StepInterestSelection: {}, StepListingCreation: {}, StepCollaborationSetup: {},
	StepSocialConnect: {}, StepMediaKitSetup: {}, StepComplete: {},
}

// Valid reports whether s is a known step key.
func (s Step) Valid() bool {
	_, ok := knownSteps[s]
	return ok
}

// ParseStep parses a step key.
func ParseStep(s string) (Step, error) {
	step := Step(strings.ToLower(strings.TrimSpace(s)))
	if !step.Valid() {
		return "", errutil.WithKind(errutil.KindValidation,
			oops.Code("STEP_INVALID").With("step", s).Errorf("unknown onboarding step %q", s))
	}
	return step, nil
}

type pathStep struct {
	step     Step
	optional bool
}

var (
	entrySteps = []pathStep{
		{StepWelcome, true},
		{StepRoleSelection, true},
		{StepProfileSetup, false},
	}

	roleSteps = map[Role][]pathStep{
		RoleTraveler: {
			{StepInterestSelection, false},
		},
		RoleHost: {
			{StepIdentityVerification, true},
			{StepListingCreation, false},
			{StepCollaborationSetup, false},
		},
		RoleInfluencer: {
			{StepIdentityVerification, true},
			{StepSocialConnect, false},
			{StepMediaKitSetup, false},
		},
		RoleAdmin: nil,
	}
)

func pathFor(role Role) []pathStep {
	tail, ok := roleSteps[role]
	if !ok {
		tail = roleSteps[DefaultRole]
	}
	path := make([]pathStep, 0, len(entrySteps)+len(tail)+1)
	path = append(path, entrySteps...)
	path = append(path, tail...)
	return append(path, pathStep{StepComplete, false})
}

// Path returns the ordered steps for role, ending with StepComplete.
func Path(role Role) []Step {
	path := pathFor(role)
	steps := make([]Step, len(path))
	for i, ps := range path {
		steps[i] = ps.step
	}
	return steps
}

// IsOptional reports whether step may be skipped on role's path.
func IsOptional(role Role, step Step) bool {
	for _, ps := range pathFor(role) {
		if ps.step == step {
			return ps.optional
		}
	}
	return false
}

// FirstStep returns the step a new account for role starts at.
func FirstStep(role Role) Step {
	return pathFor(role)[0].step
}
