// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"time"

	"github.com/samber/oops"
)

// Scores holds the twelve aptitude scores tracked per account.
type Scores struct {
	FlexibilityOfClosure  int `json:"flexibilityOfClosure"`
	InformationOrdering   int `json:"informationOrdering"`
	Visualization         int `json:"visualization"`
	SpatialOrientation    int `json:"spatialOrientation"`
	Science               int `json:"science"`
	DeductiveReasoning    int `json:"deductiveReasoning"`
	InductiveReasoning    int `json:"inductiveReasoning"`
	ProblemSensitivity    int `json:"problemSensitivity"`
	CategoryFlexibility   int `json:"categoryFlexibility"`
	Technical             int `json:"technical"`
	MathematicalReasoning int `json:"mathematicalReasoning"`
	WrittenComprehension  int `json:"writtenComprehension"`
}

// Account is a registered user.
type Account struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	School         string    `json:"school"`
	Phone          string    `json:"phone"`
	PasswordDigest string    `json:"-"`
	Scores         Scores    `json:"scores"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// AccountDraft carries the caller-supplied fields of a new account.
// The store assigns the ID and timestamps.
type AccountDraft struct {
	Name           string
	School         string
	Phone          string
	PasswordDigest string
	Scores         Scores
}

// NewAccountDraft builds a draft with every score zeroed.
func NewAccountDraft(name, school, phone, passwordDigest string) (AccountDraft, error) {
	if name == "" || school == "" || phone == "" {
		return AccountDraft{}, oops.Code("ACCOUNT_INVALID").
			With("has_name", name != "").
			With("has_school", school != "").
			With("has_phone", phone != "").
			Errorf("name, school and phone are required")
	}
	if passwordDigest == "" {
		return AccountDraft{}, oops.Code("ACCOUNT_INVALID").Errorf("password digest is required")
	}

	return AccountDraft{
		Name:           name,
		School:         school,
		Phone:          phone,
		PasswordDigest: passwordDigest,
	}, nil
}

// AccountRepository manages account persistence.
type AccountRepository interface {
	// FindByPhone returns the account registered with phone, or ErrNotFound.
	FindByPhone(ctx context.Context, phone string) (*Account, error)

	// FindByID returns the account with the given ID, or ErrNotFound.
	FindByID(ctx context.Context, id string) (*Account, error)

	// Create inserts a new account. Returns ErrDuplicatePhone when the
	// phone is already registered.
	Create(ctx context.Context, draft AccountDraft) (*Account, error)

	// UpdatePasswordDigest replaces the stored digest.
	UpdatePasswordDigest(ctx context.Context, id, digest string) error
}
