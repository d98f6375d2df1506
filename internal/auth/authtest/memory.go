// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package authtest provides test helpers for the auth package.
package authtest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/holomush/aptitude/internal/auth"
)

// MemoryAccounts is an in-memory AccountRepository enforcing phone
// uniqueness. IDs are acct-1, acct-2 and so on.
type MemoryAccounts struct {
	mu      sync.Mutex
	byID    map[string]*auth.Account
	nextID  int
	updates int
}

var _ auth.AccountRepository = (*MemoryAccounts)(nil)

// NewMemoryAccounts creates an empty repository.
func NewMemoryAccounts() *MemoryAccounts {
	return &MemoryAccounts{byID: make(map[string]*auth.Account)}
}

// FindByPhone returns a copy of the account with phone.
func (m *MemoryAccounts) FindByPhone(_ context.Context, phone string) (*auth.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.byID {
		if a.Phone == phone {
			cp := *a
			return &cp, nil
		}
	}
	return nil, auth.ErrNotFound
}

// FindByID returns a copy of the account with id.
func (m *MemoryAccounts) FindByID(_ context.Context, id string) (*auth.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.byID[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

// Create stores draft under the next ID.
func (m *MemoryAccounts) Create(_ context.Context, draft auth.AccountDraft) (*auth.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.byID {
		if a.Phone == draft.Phone {
			return nil, auth.ErrDuplicatePhone
		}
	}
	m.nextID++
	now := time.Now().UTC()
	a := &auth.Account{
		ID:             fmt.Sprintf("acct-%d", m.nextID),
		Name:           draft.Name,
		School:         draft.School,
		Phone:          draft.Phone,
		PasswordDigest: draft.PasswordDigest,
		Scores:         draft.Scores,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	m.byID[a.ID] = a
	cp := *a
	return &cp, nil
}

// UpdatePasswordDigest replaces the digest of account id.
func (m *MemoryAccounts) UpdatePasswordDigest(_ context.Context, id, digest string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.byID[id]
	if !ok {
		return auth.ErrNotFound
	}
	a.PasswordDigest = digest
	m.updates++
	return nil
}

// Delete removes account id, if present.
func (m *MemoryAccounts) Delete(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.byID, id)
}

// Count returns the number of stored accounts.
func (m *MemoryAccounts) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byID)
}

// Updates returns how many digest updates have been applied.
func (m *MemoryAccounts) Updates() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updates
}
