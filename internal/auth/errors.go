// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import "errors"

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicatePhone is returned by account stores when the phone
// uniqueness constraint rejects an insert.
var ErrDuplicatePhone = errors.New("phone already registered")

// ErrStoreFailed marks a registration whose account insert failed for a
// reason other than a duplicate phone or a timeout.
var ErrStoreFailed = errors.New("account store failed")

// Error codes that transports translate into client responses.
const (
	CodeValidationFailed   = "AUTH_VALIDATION_FAILED"
	CodeAccountExists      = "AUTH_ACCOUNT_EXISTS"
	CodeInvalidCredentials = "AUTH_INVALID_CREDENTIALS"
	CodeMissingToken       = "AUTH_MISSING_TOKEN"
	CodeUnauthenticated    = "AUTH_UNAUTHENTICATED"
	CodePasswordTooLong    = "AUTH_PASSWORD_TOO_LONG"
	CodeStoreFailed        = "AUTH_STORE_FAILED"

	CodeTokenExpired      = "TOKEN_EXPIRED"
	CodeTokenMalformed    = "TOKEN_MALFORMED"
	CodeTokenBadSignature = "TOKEN_BAD_SIGNATURE"
)
