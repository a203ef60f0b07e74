// Copyright 2026 The Updraft Authors
// SPDX-License-Identifier: Apache-2.0

// Package memstore is the in-memory implementation of the storage
// contract. It backs tests, development mode, and the seed loader.
//
// All state lives in maps guarded by one RWMutex; a mutation holds the
// write lock for its whole read-modify-write, which is the
// backend-native transaction an in-memory store gets. Every read
// returns deep copies, so a caller can never mutate stored state
// through a result.
//
// State is process-local and lost on exit unless a snapshot is saved
// (see snapshot.go).
package memstore

import (
	"context"
	"sync"

	"github.com/updraft-io/updraft/lib/clock"
	"github.com/updraft-io/updraft/lib/storage"
)

// Store implements storage.Storage in memory.
type Store struct {
	clock clock.Clock

	mu sync.RWMutex

	// accounts by account ID; emails maps lowercased email to account
	// ID for the case-insensitive uniqueness constraint.
	accounts map[string]storage.Account
	emails   map[string]string

	// apps by app ID. Membership lives in each app's collaborator map.
	apps map[string]*storage.App

	// deployments by deployment ID; appDeployments is the per-app set;
	// deploymentKeys maps the client-facing key to its owning IDs.
	deployments    map[string]*deploymentRecord
	appDeployments map[string]map[string]bool
	deploymentKeys map[string]storage.DeploymentInfo

	// accessKeys by account ID then key ID; accessKeyNames maps the
	// token value to the owning account for login resolution.
	accessKeys     map[string]map[string]storage.AccessKey
	accessKeyNames map[string]string
}

// deploymentRecord pairs a deployment with its package history and
// owning app.
type deploymentRecord struct {
	appID      string
	deployment storage.Deployment
	history    []storage.Package
}

var _ storage.Storage = (*Store)(nil)

// New creates an empty store. The clock stamps creation and upload
// times and drives access-key expiry. Panics on a nil clock: that is
// programmer error, not runtime input.
func New(clk clock.Clock) *Store {
	if clk == nil {
		panic("memstore: nil clock")
	}
	return &Store{
		clock:          clk,
		accounts:       make(map[string]storage.Account),
		emails:         make(map[string]string),
		apps:           make(map[string]*storage.App),
		deployments:    make(map[string]*deploymentRecord),
		appDeployments: make(map[string]map[string]bool),
		deploymentKeys: make(map[string]storage.DeploymentInfo),
		accessKeys:     make(map[string]map[string]storage.AccessKey),
		accessKeyNames: make(map[string]string),
	}
}

// CheckHealth reports success: if the process is answering, the maps
// are reachable.
func (s *Store) CheckHealth(ctx context.Context) error {
	return nil
}

// nowMillis is the stored time format: milliseconds since the epoch.
func (s *Store) nowMillis() int64 {
	return s.clock.Now().UnixMilli()
}

// appForMember returns the app if it exists and accountID is one of
// its collaborators. Both failures are NotFound: a non-member cannot
// probe for an app's existence. Callers must hold s.mu.
func (s *Store) appForMember(accountID, appID string) (*storage.App, error) {
	app, ok := s.apps[appID]
	if !ok || !isMember(app.Collaborators, accountID) {
		return nil, storage.Errorf(storage.NotFound, "app %q not found for account %q", appID, accountID)
	}
	return app, nil
}

// recordForMember returns the deployment record if the deployment
// exists, belongs to appID, and accountID is a member of the app.
// Callers must hold s.mu.
func (s *Store) recordForMember(accountID, appID, deploymentID string) (*deploymentRecord, error) {
	if _, err := s.appForMember(accountID, appID); err != nil {
		return nil, err
	}
	record, ok := s.deployments[deploymentID]
	if !ok || record.appID != appID {
		return nil, storage.Errorf(storage.NotFound, "deployment %q not found in app %q", deploymentID, appID)
	}
	return record, nil
}

func isMember(collaborators storage.CollaboratorMap, accountID string) bool {
	for _, properties := range collaborators {
		if properties.AccountID == accountID {
			return true
		}
	}
	return false
}

// ownerEmail returns the email key of the owner entry, or "".
func ownerEmail(collaborators storage.CollaboratorMap) string {
	for email, properties := range collaborators {
		if properties.Permission == storage.PermissionOwner {
			return email
		}
	}
	return ""
}

// annotate returns a copy of the app with IsCurrentAccount set on the
// calling account's collaborator entry. The annotation exists only on
// read results, never in stored state.
func annotate(app storage.App, accountID string) storage.App {
	result := app.Clone()
	for email, properties := range result.Collaborators {
		if properties.AccountID == accountID {
			properties.IsCurrentAccount = true
			result.Collaborators[email] = properties
		}
	}
	return result
}
