// Copyright 2026 The Updraft Authors
// SPDX-License-Identifier: Apache-2.0

package release

import (
	"context"
	"fmt"

	"github.com/updraft-io/updraft/lib/appversion"
	"github.com/updraft-io/updraft/lib/storage"
)

// PatchParams holds an in-place metadata patch for one release. Only
// non-nil fields are applied.
type PatchParams struct {
	// Label selects the release to patch. Empty means the latest.
	Label string

	AppVersion  *string
	Description *string
	IsMandatory *bool
	IsDisabled  *bool

	// Rollout widens a staged release. It can only increase, never
	// decrease, and only while the release's rollout is unfinished.
	Rollout *int
}

// PatchPackage updates the metadata of one release in place. Labels,
// hashes, and history positions never change through a patch.
func (m *Manager) PatchPackage(ctx context.Context, accountID, appID, deploymentID string, params PatchParams) (storage.Package, error) {
	if params.AppVersion == nil && params.Description == nil &&
		params.IsMandatory == nil && params.IsDisabled == nil && params.Rollout == nil {
		return storage.Package{}, storage.Errorf(storage.Invalid, "nothing to patch")
	}

	history, err := m.store.GetPackageHistory(ctx, accountID, appID, deploymentID)
	if err != nil {
		return storage.Package{}, err
	}
	if len(history) == 0 {
		return storage.Package{}, storage.Errorf(storage.NotFound, "deployment has no releases")
	}

	index := len(history) - 1
	if params.Label != "" {
		index = -1
		for i := range history {
			if history[i].Label == params.Label {
				index = i
				break
			}
		}
		if index < 0 {
			return storage.Package{}, storage.Errorf(storage.NotFound, "no release labeled %q", params.Label)
		}
	}
	entry := &history[index]

	if params.AppVersion != nil {
		if err := appversion.ValidRange(*params.AppVersion); err != nil {
			return storage.Package{}, storage.Errorf(storage.Invalid, "app version range %q: %v", *params.AppVersion, err)
		}
		entry.AppVersion = *params.AppVersion
	}
	if params.Description != nil {
		entry.Description = *params.Description
	}
	if params.IsMandatory != nil {
		entry.IsMandatory = *params.IsMandatory
	}
	if params.IsDisabled != nil {
		entry.IsDisabled = *params.IsDisabled
	}
	if params.Rollout != nil {
		if err := storage.ValidateRollout(params.Rollout); err != nil {
			return storage.Package{}, err
		}
		if !storage.IsUnfinishedRollout(entry.Rollout) {
			return storage.Package{}, storage.Errorf(storage.Invalid, "rollout of %s is already complete", entry.Label)
		}
		if *params.Rollout <= *entry.Rollout {
			return storage.Package{}, storage.Errorf(storage.Invalid,
				"rollout can only increase: %s is at %d, requested %d", entry.Label, *entry.Rollout, *params.Rollout)
		}
		rollout := *params.Rollout
		entry.Rollout = &rollout
	}

	if err := m.store.UpdatePackageHistory(ctx, accountID, appID, deploymentID, history); err != nil {
		return storage.Package{}, err
	}
	return history[index].Clone(), nil
}

// ClearHistory empties a deployment's package history and drops its
// adoption counters. Labels restart at v1 on the next release.
func (m *Manager) ClearHistory(ctx context.Context, accountID, appID, deploymentID string) error {
	deployment, err := m.store.GetDeployment(ctx, accountID, appID, deploymentID)
	if err != nil {
		return err
	}
	if err := m.store.ClearPackageHistory(ctx, accountID, appID, deploymentID); err != nil {
		return err
	}
	if err := m.recorder.ClearMetrics(ctx, deployment.Key); err != nil {
		return fmt.Errorf("history cleared, metrics not: %w", err)
	}
	return nil
}
