// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package errutil_test

import (
	"testing"

	"github.com/samber/oops"

	"github.com/holomush/aptitude/pkg/errutil"
)

func TestAssertErrorCode_MatchingCode(t *testing.T) {
	err := oops.Code("MY_CODE").Errorf("test error")
	// Should not fail
	errutil.AssertErrorCode(t, err, "MY_CODE")
}

func TestAssertErrorContext_MatchingKeyValue(t *testing.T) {
	err := oops.With("user_id", "123").Errorf("test error")
	// Should not fail
	errutil.AssertErrorContext(t, err, "user_id", "123")
}

func TestAssertPublicMessage_Wrapped(t *testing.T) {
	inner := oops.Code("AUTH_INVALID_CREDENTIALS").Public("Invalid credentials").Errorf("phone not found")
	errutil.AssertPublicMessage(t, oops.Wrapf(inner, "login"), "Invalid credentials")
}
