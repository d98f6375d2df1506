// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Outcomes reported to an OperationRecorder.
const (
	OutcomeSuccess  = "success"
	OutcomeInvalid  = "invalid"
	OutcomeConflict = "conflict"
	OutcomeDenied   = "denied"
	OutcomeError    = "error"
)

// Default bounds for blocking steps.
const (
	DefaultStoreTimeout = 5 * time.Second
	DefaultHashTimeout  = 10 * time.Second
)

// TokenProvider issues and verifies session tokens.
type TokenProvider interface {
	Issue(account *Account, lifetime time.Duration) (string, error)
	Verify(token string) (string, error)
}

// OperationRecorder receives one call per finished auth operation.
type OperationRecorder interface {
	RecordAuthOperation(operation, outcome string)
}

type noopRecorder struct{}

func (noopRecorder) RecordAuthOperation(string, string) {}

// ServiceConfig bounds the service's blocking steps and token lifetime.
// Zero values select the defaults.
type ServiceConfig struct {
	TokenLifetime time.Duration
	StoreTimeout  time.Duration
	HashTimeout   time.Duration
}

func (c ServiceConfig) withDefaults() ServiceConfig {
	if c.TokenLifetime <= 0 {
		c.TokenLifetime = DefaultTokenLifetime
	}
	if c.StoreTimeout <= 0 {
		c.StoreTimeout = DefaultStoreTimeout
	}
	if c.HashTimeout <= 0 {
		c.HashTimeout = DefaultHashTimeout
	}
	return c
}

// ServiceOption configures optional Service collaborators.
type ServiceOption func(*Service)

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithRecorder sets the operation recorder.
func WithRecorder(r OperationRecorder) ServiceOption {
	return func(s *Service) {
		s.recorder = r
	}
}

// Service runs the Register, Login and Me flows.
type Service struct {
	accounts  AccountRepository
	hasher    PasswordHasher
	tokens    TokenProvider
	validator *Validator
	cfg       ServiceConfig
	logger    *slog.Logger
	recorder  OperationRecorder
	tracer    trace.Tracer

	dummyOnce   sync.Once
	dummyDigest string
}

// NewAuthService creates a new Service.
func NewAuthService(
	accounts AccountRepository,
	hasher PasswordHasher,
	tokens TokenProvider,
	validator *Validator,
	cfg ServiceConfig,
	opts ...ServiceOption,
) (*Service, error) {
	if accounts == nil {
		return nil, oops.Code("AUTH_SERVICE_INVALID").Errorf("account repository is required")
	}
	if hasher == nil {
		return nil, oops.Code("AUTH_SERVICE_INVALID").Errorf("password hasher is required")
	}
	if tokens == nil {
		return nil, oops.Code("AUTH_SERVICE_INVALID").Errorf("token provider is required")
	}
	if validator == nil {
		return nil, oops.Code("AUTH_SERVICE_INVALID").Errorf("validator is required")
	}

	s := &Service{
		accounts:  accounts,
		hasher:    hasher,
		tokens:    tokens,
		validator: validator,
		cfg:       cfg.withDefaults(),
		logger:    slog.Default(),
		recorder:  noopRecorder{},
		tracer:    otel.Tracer("github.com/holomush/aptitude/internal/auth"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		return nil, oops.Code("AUTH_SERVICE_INVALID").Errorf("logger must not be nil")
	}
	if s.recorder == nil {
		s.recorder = noopRecorder{}
	}
	return s, nil
}

// Register validates payload, creates an account with zeroed scores and
// returns a session token for it.
//
// The phone lookup before insert only produces a friendly error early; the
// store's unique index decides concurrent registrations.
func (s *Service) Register(ctx context.Context, payload []byte) (token string, err error) {
	ctx, span := s.tracer.Start(ctx, "auth.Register")
	defer func() { s.finish(span, "register", err) }()

	req, err := s.validator.Register(payload)
	if err != nil {
		return "", err
	}

	_, err = bounded(ctx, s.cfg.StoreTimeout, "find account by phone", func(ctx context.Context) (*Account, error) {
		return s.accounts.FindByPhone(ctx, req.Phone)
	})
	switch {
	case err == nil:
		return "", accountExistsError(req.Phone)
	case !errors.Is(err, ErrNotFound):
		return "", oops.Code("AUTH_REGISTER_FAILED").With("operation", "find account by phone").Wrap(err)
	}

	digest, err := bounded(ctx, s.cfg.HashTimeout, "hash password", func(context.Context) (string, error) {
		return s.hasher.Hash(req.Password)
	})
	if err != nil {
		return "", oops.Code("AUTH_REGISTER_FAILED").With("operation", "hash password").Wrap(err)
	}

	draft, err := NewAccountDraft(req.Name, req.School, req.Phone, digest)
	if err != nil {
		return "", oops.Code("AUTH_REGISTER_FAILED").With("operation", "build account").Wrap(err)
	}

	account, err := bounded(ctx, s.cfg.StoreTimeout, "create account", func(ctx context.Context) (*Account, error) {
		return s.accounts.Create(ctx, draft)
	})
	if errors.Is(err, ErrDuplicatePhone) {
		return "", accountExistsError(req.Phone)
	}
	if err != nil && !isTimeout(err) {
		return "", oops.Code(CodeStoreFailed).
			With("operation", "create account").
			Public("Could not create account").
			Wrap(fmt.Errorf("%w: %w", ErrStoreFailed, err))
	}
	if err != nil {
		return "", oops.Code("AUTH_REGISTER_FAILED").With("operation", "create account").Wrap(err)
	}

	token, err = s.tokens.Issue(account, s.cfg.TokenLifetime)
	if err != nil {
		return "", oops.Code("AUTH_REGISTER_FAILED").With("operation", "issue token").Wrap(err)
	}

	span.SetAttributes(attribute.String("account.id", account.ID))
	s.logger.InfoContext(ctx, "account registered", "account_id", account.ID)
	return token, nil
}

// Login verifies the phone/password pair in payload and returns a session
// token. Unknown phones and wrong passwords fail identically, and a digest
// is verified in both cases so response timing does not reveal which.
func (s *Service) Login(ctx context.Context, payload []byte) (token string, err error) {
	ctx, span := s.tracer.Start(ctx, "auth.Login")
	defer func() { s.finish(span, "login", err) }()

	req, err := s.validator.Login(payload)
	if err != nil {
		return "", err
	}

	account, lookupErr := bounded(ctx, s.cfg.StoreTimeout, "find account by phone", func(ctx context.Context) (*Account, error) {
		return s.accounts.FindByPhone(ctx, req.Phone)
	})
	exists := lookupErr == nil
	if lookupErr != nil && !errors.Is(lookupErr, ErrNotFound) {
		return "", oops.Code("AUTH_LOGIN_FAILED").With("operation", "find account by phone").Wrap(lookupErr)
	}

	var target string
	if exists {
		target = account.PasswordDigest
	} else {
		target = s.timingDigest()
	}

	valid, verifyErr := bounded(ctx, s.cfg.HashTimeout, "verify password", func(context.Context) (bool, error) {
		return s.hasher.Verify(req.Password, target)
	})
	if verifyErr != nil {
		if isTimeout(verifyErr) {
			return "", oops.Code("AUTH_LOGIN_FAILED").With("operation", "verify password").Wrap(verifyErr)
		}
		if exists {
			s.logger.WarnContext(ctx, "stored password digest is malformed",
				"account_id", account.ID,
				"error", verifyErr)
		}
		return "", invalidCredentialsError()
	}
	if !exists || !valid {
		return "", invalidCredentialsError()
	}

	s.upgradeDigest(ctx, account, req.Password)

	token, err = s.tokens.Issue(account, s.cfg.TokenLifetime)
	if err != nil {
		return "", oops.Code("AUTH_LOGIN_FAILED").With("operation", "issue token").Wrap(err)
	}

	span.SetAttributes(attribute.String("account.id", account.ID))
	s.logger.InfoContext(ctx, "account logged in", "account_id", account.ID)
	return token, nil
}

// Me resolves the account a session token belongs to.
func (s *Service) Me(ctx context.Context, token string) (account *Account, err error) {
	ctx, span := s.tracer.Start(ctx, "auth.Me")
	defer func() { s.finish(span, "me", err) }()

	if token == "" {
		return nil, oops.Code(CodeMissingToken).Public("Must pass token").Errorf("token is required")
	}

	subject, err := s.tokens.Verify(token)
	if err != nil {
		return nil, oops.Code(CodeUnauthenticated).With("operation", "verify token").Wrap(err)
	}

	account, err = bounded(ctx, s.cfg.StoreTimeout, "find account by id", func(ctx context.Context) (*Account, error) {
		return s.accounts.FindByID(ctx, subject)
	})
	if errors.Is(err, ErrNotFound) {
		return nil, oops.Code(CodeUnauthenticated).
			With("account_id", subject).
			Errorf("token subject no longer exists")
	}
	if err != nil {
		return nil, oops.Code("AUTH_ME_FAILED").
			With("operation", "find account by id").
			With("account_id", subject).
			Wrap(err)
	}

	span.SetAttributes(attribute.String("account.id", account.ID))
	return account, nil
}

// upgradeDigest rehashes the password when the stored digest uses an older
// algorithm or cost. Failures are logged; login proceeds regardless.
func (s *Service) upgradeDigest(ctx context.Context, account *Account, password string) {
	if !s.hasher.NeedsUpgrade(account.PasswordDigest) {
		return
	}

	digest, err := bounded(ctx, s.cfg.HashTimeout, "rehash password", func(context.Context) (string, error) {
		return s.hasher.Hash(password)
	})
	if err != nil {
		s.logger.WarnContext(ctx, "password digest upgrade failed", "account_id", account.ID, "error", err)
		return
	}

	_, err = bounded(ctx, s.cfg.StoreTimeout, "update password digest", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.accounts.UpdatePasswordDigest(ctx, account.ID, digest)
	})
	if err != nil {
		s.logger.WarnContext(ctx, "password digest upgrade failed", "account_id", account.ID, "error", err)
		return
	}
	account.PasswordDigest = digest
}

// timingDigest returns a digest produced by the configured hasher for a
// random password, used when the phone is unknown.
func (s *Service) timingDigest() string {
	s.dummyOnce.Do(func() {
		digest, err := s.hasher.Hash(dummyPassword)
		if err != nil {
			s.logger.Warn("could not prepare timing digest", "error", err)
			return
		}
		s.dummyDigest = digest
	})
	return s.dummyDigest
}

//nolint:gosec // G101: not a credential, only hashed to equalize login timing.
const dummyPassword = "7b1d0c5e-timing-equalizer"

func (s *Service) finish(span trace.Span, operation string, err error) {
	outcome := outcomeOf(err)
	s.recorder.RecordAuthOperation(operation, outcome)
	span.SetAttributes(attribute.String("auth.outcome", outcome))
	if outcome == OutcomeError {
		span.RecordError(err)
		span.SetStatus(codes.Error, "auth operation failed")
	}
	span.End()
}

func outcomeOf(err error) string {
	if err == nil {
		return OutcomeSuccess
	}
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return OutcomeError
	}
	switch oopsErr.Code() {
	case CodeValidationFailed, CodePasswordTooLong:
		return OutcomeInvalid
	case CodeAccountExists:
		return OutcomeConflict
	case CodeInvalidCredentials, CodeMissingToken, CodeUnauthenticated,
		CodeTokenExpired, CodeTokenMalformed, CodeTokenBadSignature:
		return OutcomeDenied
	default:
		return OutcomeError
	}
}

func accountExistsError(phone string) error {
	return oops.Code(CodeAccountExists).
		With("phone", phone).
		Public("User already exists").
		Errorf("account already exists")
}

func invalidCredentialsError() error {
	return oops.Code(CodeInvalidCredentials).
		Public("Invalid credentials").
		Errorf("invalid phone or password")
}
