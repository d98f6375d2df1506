// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/holomush/aptitude/internal/auth"
)

// MaxBodyBytes bounds every request body.
const MaxBodyBytes = 64 << 10

// AuthService is the subset of *auth.Service the handlers call.
type AuthService interface {
	Register(ctx context.Context, payload []byte) (string, error)
	Login(ctx context.Context, payload []byte) (string, error)
	Me(ctx context.Context, token string) (*auth.Account, error)
}

type tokenResponse struct {
	Token string `json:"token"`
}

type meRequest struct {
	Token string `json:"token"`
}

type handlers struct {
	svc    AuthService
	logger *slog.Logger
}

func (h *handlers) register(c *gin.Context) {
	body, ok := readBody(c)
	if !ok {
		return
	}
	token, err := h.svc.Register(c.Request.Context(), body)
	if err != nil {
		h.fail(c, "register", err)
		return
	}
	c.JSON(http.StatusOK, tokenResponse{Token: token})
}

func (h *handlers) login(c *gin.Context) {
	body, ok := readBody(c)
	if !ok {
		return
	}
	token, err := h.svc.Login(c.Request.Context(), body)
	if err != nil {
		h.fail(c, "login", err)
		return
	}
	c.JSON(http.StatusOK, tokenResponse{Token: token})
}

// me echoes a valid token. The token is taken from the body, then an
// Authorization bearer header, then the token query parameter.
func (h *handlers) me(c *gin.Context) {
	body, ok := readBody(c)
	if !ok {
		return
	}

	var req meRequest
	if len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			respondError(c, http.StatusBadRequest, msgInvalidBody)
			return
		}
	}
	token := req.Token
	if token == "" {
		token = bearerToken(c.GetHeader("Authorization"))
	}
	if token == "" {
		token = c.Query("token")
	}

	if _, err := h.svc.Me(c.Request.Context(), token); err != nil {
		h.fail(c, "me", err)
		return
	}
	c.JSON(http.StatusOK, tokenResponse{Token: token})
}

// readBody reads at most MaxBodyBytes. On failure it has already responded.
func readBody(c *gin.Context) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(c, http.StatusRequestEntityTooLarge, msgInvalidBody)
			return nil, false
		}
		respondError(c, http.StatusBadRequest, msgInvalidBody)
		return nil, false
	}
	return body, true
}

func bearerToken(header string) string {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
