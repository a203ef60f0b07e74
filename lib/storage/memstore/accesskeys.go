// Copyright 2026 The Updraft Authors
// SPDX-License-Identifier: Apache-2.0

package memstore

import (
	"cmp"
	"context"
	"slices"

	"github.com/updraft-io/updraft/lib/storage"
)

// AddAccessKey stores a new access key. The key name (the token value)
// must be globally unique and the friendly name unique per account. If
// the key carries no name, one is generated.
func (s *Store) AddAccessKey(ctx context.Context, accountID string, key storage.AccessKey) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[accountID]; !ok {
		return "", storage.Errorf(storage.NotFound, "account %q not found", accountID)
	}

	if key.Name == "" {
		name, err := storage.GenerateKey()
		if err != nil {
			return "", storage.Errorf(storage.Other, "generating access key: %v", err)
		}
		key.Name = name
	}
	if _, taken := s.accessKeyNames[key.Name]; taken {
		return "", storage.Errorf(storage.AlreadyExists, "access key already in use")
	}
	for _, existing := range s.accessKeys[accountID] {
		if key.FriendlyName != "" && existing.FriendlyName == key.FriendlyName {
			return "", storage.Errorf(storage.AlreadyExists, "access key named %q already exists", key.FriendlyName)
		}
	}

	if key.ID == "" {
		key.ID = storage.NewID()
	}
	key.CreatedTime = s.nowMillis()

	if s.accessKeys[accountID] == nil {
		s.accessKeys[accountID] = make(map[string]storage.AccessKey)
	}
	s.accessKeys[accountID][key.ID] = key
	s.accessKeyNames[key.Name] = accountID
	return key.ID, nil
}

// GetAccessKey returns one access key by ID.
func (s *Store) GetAccessKey(ctx context.Context, accountID, keyID string) (storage.AccessKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	key, ok := s.accessKeys[accountID][keyID]
	if !ok {
		return storage.AccessKey{}, storage.Errorf(storage.NotFound, "access key %q not found", keyID)
	}
	return key, nil
}

// GetAccessKeys returns the account's access keys, oldest first.
func (s *Store) GetAccessKeys(ctx context.Context, accountID string) ([]storage.AccessKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.accounts[accountID]; !ok {
		return nil, storage.Errorf(storage.NotFound, "account %q not found", accountID)
	}

	keys := make([]storage.AccessKey, 0, len(s.accessKeys[accountID]))
	for _, key := range s.accessKeys[accountID] {
		keys = append(keys, key)
	}
	slices.SortFunc(keys, func(a, b storage.AccessKey) int {
		if c := cmp.Compare(a.CreatedTime, b.CreatedTime); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return keys, nil
}

// RemoveAccessKey deletes an access key.
func (s *Store) RemoveAccessKey(ctx context.Context, accountID, keyID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key, ok := s.accessKeys[accountID][keyID]
	if !ok {
		return storage.Errorf(storage.NotFound, "access key %q not found", keyID)
	}
	delete(s.accessKeyNames, key.Name)
	delete(s.accessKeys[accountID], keyID)
	return nil
}

// UpdateAccessKey updates a key's friendly name and expiry. The token
// value itself is immutable.
func (s *Store) UpdateAccessKey(ctx context.Context, accountID string, key storage.AccessKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.accessKeys[accountID][key.ID]
	if !ok {
		return storage.Errorf(storage.NotFound, "access key %q not found", key.ID)
	}
	if key.FriendlyName != "" {
		stored.FriendlyName = key.FriendlyName
	}
	if key.Expires != 0 {
		stored.Expires = key.Expires
	}
	s.accessKeys[accountID][key.ID] = stored
	return nil
}
