// Copyright 2026 The Updraft Authors
// SPDX-License-Identifier: Apache-2.0

package release

import (
	"context"

	"github.com/updraft-io/updraft/lib/appversion"
	"github.com/updraft-io/updraft/lib/storage"
)

// ReleaseParams holds the parameters for a direct release of new
// content into a deployment.
type ReleaseParams struct {
	// AppVersion is the binary version range the package targets: an
	// exact semver, a range expression, or "*". Required.
	AppVersion string

	// PackageHash is the content hash of the uploaded artifact.
	// Required.
	PackageHash string

	// BlobURL locates the full package artifact; ManifestBlobURL the
	// optional file-level manifest used for diff generation.
	BlobURL         string
	ManifestBlobURL string

	// Size is the artifact size in bytes.
	Size int64

	Description string
	IsMandatory bool
	IsDisabled  bool

	// Rollout stages the release to a percentage of clients, 1-100.
	// Nil releases to everyone at once.
	Rollout *int

	// ReleasedBy identifies the releasing account, typically its
	// email.
	ReleasedBy string
}

// Release commits new content to a deployment. It fails with Invalid
// on a malformed version range or rollout, and with AlreadyExists when
// the deployment's current release already carries the same content
// for an equivalent version range.
func (m *Manager) Release(ctx context.Context, accountID, appID, deploymentID string, params ReleaseParams) (storage.Package, error) {
	if params.PackageHash == "" {
		return storage.Package{}, storage.Errorf(storage.Invalid, "package hash is required")
	}
	if err := appversion.ValidRange(params.AppVersion); err != nil {
		return storage.Package{}, storage.Errorf(storage.Invalid, "app version range %q: %v", params.AppVersion, err)
	}
	if err := storage.ValidateRollout(params.Rollout); err != nil {
		return storage.Package{}, err
	}

	history, err := m.store.GetPackageHistory(ctx, accountID, appID, deploymentID)
	if err != nil {
		return storage.Package{}, err
	}
	if len(history) > 0 {
		latest := history[len(history)-1]
		if latest.PackageHash == params.PackageHash && appversion.Equivalent(latest.AppVersion, params.AppVersion) {
			return storage.Package{}, storage.Errorf(storage.AlreadyExists,
				"release is identical to the current release %s", latest.Label)
		}
	}

	return m.store.CommitPackage(ctx, accountID, appID, deploymentID, storage.Package{
		AppVersion:      params.AppVersion,
		BlobURL:         params.BlobURL,
		Description:     params.Description,
		IsDisabled:      params.IsDisabled,
		IsMandatory:     params.IsMandatory,
		ManifestBlobURL: params.ManifestBlobURL,
		PackageHash:     params.PackageHash,
		ReleasedBy:      params.ReleasedBy,
		ReleaseMethod:   storage.ReleaseMethodUpload,
		Rollout:         params.Rollout,
		Size:            params.Size,
	})
}
