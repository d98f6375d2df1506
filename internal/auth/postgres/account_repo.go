// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package postgres implements auth.AccountRepository on PostgreSQL.
package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/holomush/aptitude/internal/auth"
)

// DB is the query surface shared by *pgxpool.Pool, pgx.Tx and pgxmock.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const accountColumns = `id, name, school, phone, password_digest,
		flexibility_of_closure, information_ordering, visualization,
		spatial_orientation, science, deductive_reasoning,
		inductive_reasoning, problem_sensitivity, category_flexibility,
		technical, mathematical_reasoning, written_comprehension,
		created_at, updated_at`

// AccountRepository implements auth.AccountRepository using PostgreSQL.
// Phone uniqueness is enforced by the accounts_phone_unique constraint.
type AccountRepository struct {
	db    DB
	newID func() string
}

// NewAccountRepository creates a new AccountRepository.
func NewAccountRepository(db DB) *AccountRepository {
	return &AccountRepository{
		db:    db,
		newID: func() string { return ulid.Make().String() },
	}
}

// FindByPhone retrieves an account by its phone number.
func (r *AccountRepository) FindByPhone(ctx context.Context, phone string) (*auth.Account, error) {
	row := r.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE phone = $1`, phone)

	account, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("ACCOUNT_NOT_FOUND").With("phone", phone).Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("ACCOUNT_GET_BY_PHONE_FAILED").
			With("operation", "get account by phone").
			Wrap(err)
	}
	return account, nil
}

// FindByID retrieves an account by ID.
func (r *AccountRepository) FindByID(ctx context.Context, id string) (*auth.Account, error) {
	row := r.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)

	account, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("ACCOUNT_NOT_FOUND").With("id", id).Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("ACCOUNT_GET_BY_ID_FAILED").
			With("operation", "get account by id").
			With("id", id).
			Wrap(err)
	}
	return account, nil
}

// Create inserts a new account with a fresh ULID.
func (r *AccountRepository) Create(ctx context.Context, draft auth.AccountDraft) (*auth.Account, error) {
	id := r.newID()
	s := draft.Scores

	row := r.db.QueryRow(ctx, `
		INSERT INTO accounts (`+accountColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, now(), now())
		RETURNING `+accountColumns,
		id, draft.Name, draft.School, draft.Phone, draft.PasswordDigest,
		s.FlexibilityOfClosure, s.InformationOrdering, s.Visualization,
		s.SpatialOrientation, s.Science, s.DeductiveReasoning,
		s.InductiveReasoning, s.ProblemSensitivity, s.CategoryFlexibility,
		s.Technical, s.MathematicalReasoning, s.WrittenComprehension,
	)

	account, err := scanAccount(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return nil, oops.Code("ACCOUNT_PHONE_TAKEN").
				With("constraint", pgErr.ConstraintName).
				Wrap(auth.ErrDuplicatePhone)
		}
		return nil, oops.Code("ACCOUNT_CREATE_FAILED").
			With("operation", "insert account").
			With("id", id).
			Wrap(err)
	}
	return account, nil
}

// UpdatePasswordDigest replaces an account's password digest.
func (r *AccountRepository) UpdatePasswordDigest(ctx context.Context, id, digest string) error {
	result, err := r.db.Exec(ctx, `UPDATE accounts SET password_digest = $2 WHERE id = $1`, id, digest)
	if err != nil {
		return oops.Code("ACCOUNT_UPDATE_DIGEST_FAILED").
			With("operation", "update password digest").
			With("id", id).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("ACCOUNT_NOT_FOUND").With("id", id).Wrap(auth.ErrNotFound)
	}
	return nil
}

// scanAccount scans one accounts row. pgx.ErrNoRows is returned unwrapped.
func scanAccount(row pgx.Row) (*auth.Account, error) {
	var a auth.Account
	s := &a.Scores
	err := row.Scan(
		&a.ID, &a.Name, &a.School, &a.Phone, &a.PasswordDigest,
		&s.FlexibilityOfClosure, &s.InformationOrdering, &s.Visualization,
		&s.SpatialOrientation, &s.Science, &s.DeductiveReasoning,
		&s.InductiveReasoning, &s.ProblemSensitivity, &s.CategoryFlexibility,
		&s.Technical, &s.MathematicalReasoning, &s.WrittenComprehension,
		&a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err //nolint:wrapcheck // callers attach operation context
	}
	return &a, nil
}

var _ auth.AccountRepository = (*AccountRepository)(nil)
