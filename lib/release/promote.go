// Copyright 2026 The Updraft Authors
// SPDX-License-Identifier: Apache-2.0

package release

import (
	"context"

	"github.com/updraft-io/updraft/lib/appversion"
	"github.com/updraft-io/updraft/lib/storage"
)

// PromoteParams holds the parameters for copying a release from one
// deployment into another.
type PromoteParams struct {
	// Label selects the source release to promote. Empty means the
	// source deployment's latest.
	Label string

	// Optional overrides applied to the promoted copy. Zero values
	// inherit the source release's fields.
	AppVersion  string
	Description string
	IsMandatory *bool
	IsDisabled  *bool

	// Rollout stages the promoted release; it is never inherited from
	// the source, whose rollout belongs to its own deployment.
	Rollout *int

	// PromotedBy identifies the promoting account.
	PromotedBy string
}

// Promote re-releases content from a source deployment into a
// destination deployment of the same app, recording the lineage in
// OriginalDeployment and OriginalLabel.
func (m *Manager) Promote(ctx context.Context, accountID, appID, sourceDeploymentID, destinationDeploymentID string, params PromoteParams) (storage.Package, error) {
	history, err := m.store.GetPackageHistory(ctx, accountID, appID, sourceDeploymentID)
	if err != nil {
		return storage.Package{}, err
	}
	if len(history) == 0 {
		return storage.Package{}, storage.Errorf(storage.NotFound, "deployment has no release to promote")
	}

	source := history[len(history)-1]
	if params.Label != "" {
		source, err = findByLabel(history, params.Label)
		if err != nil {
			return storage.Package{}, err
		}
	}

	appVersion := source.AppVersion
	if params.AppVersion != "" {
		if err := appversion.ValidRange(params.AppVersion); err != nil {
			return storage.Package{}, storage.Errorf(storage.Invalid, "app version range %q: %v", params.AppVersion, err)
		}
		appVersion = params.AppVersion
	}
	if err := storage.ValidateRollout(params.Rollout); err != nil {
		return storage.Package{}, err
	}

	destinationHistory, err := m.store.GetPackageHistory(ctx, accountID, appID, destinationDeploymentID)
	if err != nil {
		return storage.Package{}, err
	}
	if len(destinationHistory) > 0 {
		latest := destinationHistory[len(destinationHistory)-1]
		if latest.PackageHash == source.PackageHash && appversion.Equivalent(latest.AppVersion, appVersion) {
			return storage.Package{}, storage.Errorf(storage.AlreadyExists,
				"destination's current release %s already has this content", latest.Label)
		}
	}

	sourceDeployment, err := m.store.GetDeployment(ctx, accountID, appID, sourceDeploymentID)
	if err != nil {
		return storage.Package{}, err
	}

	description := source.Description
	if params.Description != "" {
		description = params.Description
	}
	isMandatory := source.IsMandatory
	if params.IsMandatory != nil {
		isMandatory = *params.IsMandatory
	}
	isDisabled := source.IsDisabled
	if params.IsDisabled != nil {
		isDisabled = *params.IsDisabled
	}

	return m.store.CommitPackage(ctx, accountID, appID, destinationDeploymentID, storage.Package{
		AppVersion:         appVersion,
		BlobURL:            source.BlobURL,
		Description:        description,
		IsDisabled:         isDisabled,
		IsMandatory:        isMandatory,
		ManifestBlobURL:    source.ManifestBlobURL,
		OriginalDeployment: sourceDeployment.Name,
		OriginalLabel:      source.Label,
		PackageHash:        source.PackageHash,
		ReleasedBy:         params.PromotedBy,
		ReleaseMethod:      storage.ReleaseMethodPromote,
		Rollout:            params.Rollout,
		Size:               source.Size,
	})
}

// RollbackParams holds the parameters for rolling a deployment back to
// earlier content.
type RollbackParams struct {
	// TargetLabel names the release to roll back to. Empty means the
	// release immediately before the current one.
	TargetLabel string

	// RequestedBy identifies the account performing the rollback.
	RequestedBy string
}

// Rollback re-commits the content of an earlier release as a new
// release. The target must exist, be enabled, and carry different
// content than the current release. The new release is never staged:
// a rollback goes to every client immediately.
func (m *Manager) Rollback(ctx context.Context, accountID, appID, deploymentID string, params RollbackParams) (storage.Package, error) {
	history, err := m.store.GetPackageHistory(ctx, accountID, appID, deploymentID)
	if err != nil {
		return storage.Package{}, err
	}
	if len(history) == 0 {
		return storage.Package{}, storage.Errorf(storage.NotFound, "deployment has no release to roll back")
	}
	latest := history[len(history)-1]

	var target storage.Package
	if params.TargetLabel == "" {
		if len(history) < 2 {
			return storage.Package{}, storage.Errorf(storage.NotFound, "no release before %s to roll back to", latest.Label)
		}
		target = history[len(history)-2]
	} else {
		target, err = findByLabel(history, params.TargetLabel)
		if err != nil {
			return storage.Package{}, err
		}
	}

	if target.IsDisabled {
		return storage.Package{}, storage.Errorf(storage.Invalid, "cannot roll back to disabled release %s", target.Label)
	}
	if target.PackageHash == latest.PackageHash {
		return storage.Package{}, storage.Errorf(storage.AlreadyExists,
			"current release already has the content of %s", target.Label)
	}

	return m.store.CommitPackage(ctx, accountID, appID, deploymentID, storage.Package{
		AppVersion:      target.AppVersion,
		BlobURL:         target.BlobURL,
		Description:     target.Description,
		DiffPackageMap:  target.DiffPackageMap,
		IsMandatory:     target.IsMandatory,
		ManifestBlobURL: target.ManifestBlobURL,
		OriginalLabel:   target.Label,
		PackageHash:     target.PackageHash,
		ReleasedBy:      params.RequestedBy,
		ReleaseMethod:   storage.ReleaseMethodRollback,
		Size:            target.Size,
	})
}
