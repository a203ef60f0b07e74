// Copyright 2026 The Updraft Authors
// SPDX-License-Identifier: Apache-2.0

package memstore

import (
	"context"
	"strings"

	"github.com/updraft-io/updraft/lib/storage"
)

// AddAccount stores a new account. The email must be unique,
// case-insensitively.
func (s *Store) AddAccount(ctx context.Context, account storage.Account) (string, error) {
	if err := storage.ValidateCollaboratorEmail(account.Email); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	emailKey := strings.ToLower(strings.TrimSpace(account.Email))
	if _, exists := s.emails[emailKey]; exists {
		return "", storage.Errorf(storage.AlreadyExists, "account with email %q already exists", account.Email)
	}

	if account.ID == "" {
		account.ID = storage.NewID()
	}
	account.Email = strings.TrimSpace(account.Email)
	account.CreatedTime = s.nowMillis()

	s.accounts[account.ID] = account
	s.emails[emailKey] = account.ID
	return account.ID, nil
}

// GetAccount returns the account by ID.
func (s *Store) GetAccount(ctx context.Context, accountID string) (storage.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	account, ok := s.accounts[accountID]
	if !ok {
		return storage.Account{}, storage.Errorf(storage.NotFound, "account %q not found", accountID)
	}
	return account, nil
}

// GetAccountByEmail returns the account registered under email,
// compared case-insensitively.
func (s *Store) GetAccountByEmail(ctx context.Context, email string) (storage.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.accountByEmailLocked(email)
}

func (s *Store) accountByEmailLocked(email string) (storage.Account, error) {
	accountID, ok := s.emails[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		return storage.Account{}, storage.Errorf(storage.NotFound, "account with email %q not found", email)
	}
	return s.accounts[accountID], nil
}

// UpdateAccount updates the mutable fields of the account registered
// under email: the display name and linked provider IDs. Empty fields
// in the update are left unchanged; the email and ID are immutable.
func (s *Store) UpdateAccount(ctx context.Context, email string, account storage.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, err := s.accountByEmailLocked(email)
	if err != nil {
		return err
	}
	if account.Name != "" {
		stored.Name = account.Name
	}
	if account.GitHubID != "" {
		stored.GitHubID = account.GitHubID
	}
	if account.MicrosoftID != "" {
		stored.MicrosoftID = account.MicrosoftID
	}
	s.accounts[stored.ID] = stored
	return nil
}

// GetAccountIDFromAccessKey resolves an access-key token to the owning
// account. Expired keys fail with Expired.
func (s *Store) GetAccountIDFromAccessKey(ctx context.Context, accessKey string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	accountID, ok := s.accessKeyNames[accessKey]
	if !ok {
		return "", storage.Errorf(storage.NotFound, "access key not found")
	}
	for _, key := range s.accessKeys[accountID] {
		if key.Name != accessKey {
			continue
		}
		if key.Expires > 0 && s.nowMillis() > key.Expires {
			return "", storage.Errorf(storage.Expired, "access key %q expired", key.FriendlyName)
		}
		return accountID, nil
	}
	return "", storage.Errorf(storage.NotFound, "access key not found")
}
