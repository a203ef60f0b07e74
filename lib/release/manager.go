// Copyright 2026 The Updraft Authors
// SPDX-License-Identifier: Apache-2.0

// Package release implements the package-commit operations on
// deployments: direct releases, promotion between deployments,
// rollbacks, in-place metadata patches, and history clearing.
//
// Every operation validates its input, reads the deployment's current
// history for duplicate and precondition checks, and then hands the
// actual mutation to the storage backend, whose CommitPackage /
// UpdatePackageHistory calls are the atomic read-modify-write that
// keeps label sequencing and the append-only invariant intact under
// concurrent callers.
package release

import (
	"context"

	"github.com/updraft-io/updraft/lib/metrics"
	"github.com/updraft-io/updraft/lib/storage"
)

// Manager performs release operations against one storage backend.
// The metrics recorder may be nil; metrics work is then skipped.
type Manager struct {
	store    storage.Storage
	recorder *metrics.Recorder
}

// New creates a release manager. Panics if store is nil: wiring the
// manager without a backend is a programmer error.
func New(store storage.Storage, recorder *metrics.Recorder) *Manager {
	if store == nil {
		panic("release: nil storage")
	}
	return &Manager{store: store, recorder: recorder}
}

// CreateDeployment adds a named deployment to an app. The backend
// generates the deployment's client-facing key.
func (m *Manager) CreateDeployment(ctx context.Context, accountID, appID, name string) (storage.Deployment, error) {
	if name == "" {
		return storage.Deployment{}, storage.Errorf(storage.Invalid, "deployment name is required")
	}
	deploymentID, err := m.store.AddDeployment(ctx, accountID, appID, storage.Deployment{Name: name})
	if err != nil {
		return storage.Deployment{}, err
	}
	return m.store.GetDeployment(ctx, accountID, appID, deploymentID)
}

// findByLabel returns the history entry carrying the label.
func findByLabel(history []storage.Package, label string) (storage.Package, error) {
	for i := range history {
		if history[i].Label == label {
			return history[i], nil
		}
	}
	return storage.Package{}, storage.Errorf(storage.NotFound, "no release labeled %q", label)
}
