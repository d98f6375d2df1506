// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/samber/oops"

	"github.com/holomush/aptitude/internal/auth"
	"github.com/holomush/aptitude/pkg/errutil"
)

// Client-facing messages.
const (
	msgInvalidBody        = "Invalid request body"
	msgAccountExists      = "User already exists"
	msgInvalidCredentials = "Invalid credentials"
	msgMissingToken       = "Must pass token"
	msgInvalidToken       = "Invalid token"
	msgStoreFailed        = "Could not create account"
	msgInternal           = "Internal server error"
)

type errorResponse struct {
	Message string `json:"message"`
}

// respondError writes the single error body shape used by every route.
func respondError(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, errorResponse{Message: message})
}

// classify maps an auth error to its HTTP status and client message.
// Unclassified errors are internal. A failed account insert is a client
// error with a fixed message.
func classify(err error) (int, string) {
	if errors.Is(err, auth.ErrStoreFailed) {
		return http.StatusBadRequest, msgStoreFailed
	}

	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return http.StatusInternalServerError, msgInternal
	}

	switch oopsErr.Code() {
	case auth.CodeValidationFailed, auth.CodePasswordTooLong:
		return http.StatusBadRequest, oops.GetPublic(err, msgInvalidBody)
	case auth.CodeAccountExists:
		return http.StatusBadRequest, msgAccountExists
	case auth.CodeInvalidCredentials:
		return http.StatusBadRequest, msgInvalidCredentials
	case auth.CodeMissingToken:
		return http.StatusUnauthorized, msgMissingToken
	case auth.CodeUnauthenticated, auth.CodeTokenExpired, auth.CodeTokenMalformed, auth.CodeTokenBadSignature:
		return http.StatusUnauthorized, msgInvalidToken
	default:
		return http.StatusInternalServerError, msgInternal
	}
}

// fail classifies err, logs internal and store failures and writes the
// response.
func (h *handlers) fail(c *gin.Context, operation string, err error) {
	status, message := classify(err)
	if status >= http.StatusInternalServerError || errors.Is(err, auth.ErrStoreFailed) {
		errutil.LogErrorContext(c.Request.Context(), h.logger, operation+" failed", err)
	}
	_ = c.Error(err) //nolint:errcheck // recorded for the access log only
	respondError(c, status, message)
}
