// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/samber/oops"
)

// DefaultTokenLifetime is the lifetime of tokens issued by Register and Login.
const DefaultTokenLifetime = 24 * time.Hour

// TokenService issues and verifies HS256 session tokens. Tokens are
// stateless: validity depends only on the signature and the exp claim.
type TokenService struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// TokenOption configures a TokenService.
type TokenOption func(*TokenService)

// WithIssuer sets the iss claim written and required by the service.
func WithIssuer(issuer string) TokenOption {
	return func(s *TokenService) {
		s.issuer = issuer
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) TokenOption {
	return func(s *TokenService) {
		if now != nil {
			s.now = now
		}
	}
}

// NewTokenService creates a TokenService signing with secret.
func NewTokenService(secret string, opts ...TokenOption) (*TokenService, error) {
	if secret == "" {
		return nil, oops.Code("TOKEN_SECRET_REQUIRED").Errorf("token signing secret is required")
	}

	s := &TokenService{
		secret: []byte(secret),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Issue signs a token for account that expires after lifetime.
func (s *TokenService) Issue(account *Account, lifetime time.Duration) (string, error) {
	if account == nil || account.ID == "" {
		return "", oops.Code("TOKEN_ISSUE_FAILED").Errorf("account with an ID is required")
	}
	if lifetime <= 0 {
		return "", oops.Code("TOKEN_ISSUE_FAILED").
			With("lifetime", lifetime.String()).
			Errorf("token lifetime must be positive")
	}

	now := s.now()
	claims := jwt.RegisteredClaims{
		Subject:   account.ID,
		Issuer:    s.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(lifetime)),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", oops.Code("TOKEN_ISSUE_FAILED").With("subject", account.ID).Wrap(err)
	}
	return signed, nil
}

// Verify checks the token signature and then its expiry, returning the
// subject account ID.
func (s *TokenService) Verify(token string) (string, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}

	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	}, opts...)
	if err != nil {
		return "", classifyTokenError(err)
	}

	if claims.Subject == "" {
		return "", oops.Code(CodeTokenMalformed).Errorf("token has no subject")
	}
	return claims.Subject, nil
}

func classifyTokenError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return oops.Code(CodeTokenMalformed).Wrap(err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return oops.Code(CodeTokenBadSignature).Wrap(err)
	case errors.Is(err, jwt.ErrTokenExpired):
		return oops.Code(CodeTokenExpired).Wrap(err)
	default:
		return oops.Code(CodeTokenMalformed).With("reason", "claims").Wrap(err)
	}
}
