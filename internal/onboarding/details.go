// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nomadiqe Contributors

package onboarding

import (
	"errors"
	"regexp"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/samber/oops"

	"github.com/nomadiqe/nomadiqe/pkg/errutil"
)

// Step data limits.
const (
	MaxFullNameLength = 100
	MinUsernameLength = 3
	MaxUsernameLength = 30
	MaxInterests      = 20
	MaxInterestLength = 50
)

// ErrUsernameTaken is returned when another account already holds a username.
var ErrUsernameTaken = errutil.WithKind(errutil.KindConflict, errors.New("username already taken"))

var usernamePattern = regexp.MustCompile(`^[a-z0-9_]+$`)

// StepData carries the fields submitted with a step. profile-setup reads
// FullName and Username; interest-selection reads Interests.
type StepData struct {
	FullName  string   `json:"fullName"`
	Username  string   `json:"username"`
	Interests []string `json:"interests"`
}

// ProfileDetails is the public identity chosen at profile-setup.
type ProfileDetails struct {
	FullName string
	Username string
}

// CarriesData reports whether completing step stores submitted fields.
func CarriesData(step Step) bool {
	return step == StepProfileSetup || step == StepInterestSelection
}

// Normalize trims every field, lowercases the username and interests, and
// drops blank or repeated interests.
func (d StepData) Normalize() StepData {
	out := StepData{
		FullName: strings.Join(strings.Fields(d.FullName), " "),
		Username: strings.ToLower(strings.TrimSpace(d.Username)),
	}
	seen := make(map[string]bool, len(d.Interests))
	for _, raw := range d.Interests {
		interest := strings.ToLower(strings.TrimSpace(raw))
		if interest == "" || seen[interest] {
			continue
		}
		seen[interest] = true
		out.Interests = append(out.Interests, interest)
	}
	return out
}

// Empty reports whether no field was submitted.
func (d StepData) Empty() bool {
	return d.FullName == "" && d.Username == "" && len(d.Interests) == 0
}

// Validate checks the fields step needs. Steps that carry no data accept
// anything.
func (d StepData) Validate(step Step) error {
	var err error
	switch step {
	case StepProfileSetup:
		err = validation.ValidateStruct(&d,
			validation.Field(&d.FullName, validation.Required, validation.Length(1, MaxFullNameLength)),
			validation.Field(&d.Username,
				validation.Required,
				validation.Length(MinUsernameLength, MaxUsernameLength),
				validation.Match(usernamePattern).Error("may only contain lowercase letters, digits and underscores")),
		)
	case StepInterestSelection:
		err = validation.ValidateStruct(&d,
			validation.Field(&d.Interests,
				validation.Required,
				validation.Length(1, MaxInterests),
				validation.By(interestsWithinLimit)),
		)
	}
	if err != nil {
		return errutil.WithKind(errutil.KindValidation,
			oops.Code("STEP_DATA_INVALID").
				With("step", step).
				Public(err.Error()).
				Wrap(err))
	}
	return nil
}

func interestsWithinLimit(value any) error {
	interests, _ := value.([]string)
	for _, interest := range interests {
		if err := validation.Validate(interest, validation.Length(1, MaxInterestLength)); err != nil {
			return oops.Errorf("interest %q %s", interest, err.Error())
		}
	}
	return nil
}
