// Copyright 2026 The Updraft Authors
// SPDX-License-Identifier: Apache-2.0

package storage

import (
	"fmt"
	"strconv"
	"strings"
)

// Permission is a collaborator's role on an app.
type Permission string

const (
	// PermissionOwner marks the single owning collaborator of an app.
	PermissionOwner Permission = "Owner"
	// PermissionCollaborator marks every other member.
	PermissionCollaborator Permission = "Collaborator"
)

// ReleaseMethod records how a package entered a deployment's history.
type ReleaseMethod string

const (
	// ReleaseMethodUpload is a direct release of new content.
	ReleaseMethodUpload ReleaseMethod = "Upload"
	// ReleaseMethodPromote is a copy from another deployment.
	ReleaseMethodPromote ReleaseMethod = "Promote"
	// ReleaseMethodRollback is a re-release of earlier content from
	// the same deployment.
	ReleaseMethodRollback ReleaseMethod = "Rollback"
)

// Account is a registered user. Emails are unique case-insensitively.
type Account struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	Name        string `json:"name"`
	CreatedTime int64  `json:"createdTime"`

	// Linked identity-provider IDs. Empty when the provider is not
	// linked.
	GitHubID    string `json:"gitHubId,omitempty"`
	MicrosoftID string `json:"microsoftId,omitempty"`
}

// CollaboratorProperties describes one collaborator's membership on an
// app.
type CollaboratorProperties struct {
	AccountID  string     `json:"accountId"`
	Permission Permission `json:"permission"`

	// IsCurrentAccount is a read-time annotation marking the entry of
	// the account that performed the lookup. It is never persisted as
	// true.
	IsCurrentAccount bool `json:"isCurrentAccount,omitempty"`
}

// CollaboratorMap maps collaborator email to membership properties.
// Exactly one entry has the Owner permission at all times.
type CollaboratorMap map[string]CollaboratorProperties

// App is a named application owned by one account and shared with
// collaborators. App names are unique per owner.
type App struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	CreatedTime   int64           `json:"createdTime"`
	Collaborators CollaboratorMap `json:"collaborators"`
}

// Deployment is one release channel of an app. Its key is the opaque
// token clients present on update checks: globally unique, immutable
// once issued, and never reused.
type Deployment struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Key         string `json:"key"`
	CreatedTime int64  `json:"createdTime"`

	// Package is the latest committed package, nil while the
	// deployment's history is empty.
	Package *Package `json:"package,omitempty"`
}

// DeploymentInfo resolves a deployment key back to its owning IDs.
type DeploymentInfo struct {
	AppID        string `json:"appId"`
	DeploymentID string `json:"deploymentId"`
}

// DiffInfo locates a delta artifact that upgrades one specific prior
// package to the package holding the map.
type DiffInfo struct {
	Size int64  `json:"size"`
	URL  string `json:"url"`
}

// Package is one committed release in a deployment's history.
type Package struct {
	// AppVersion is the binary version range this package targets: an
	// exact semver, a range expression, or "*".
	AppVersion  string `json:"appVersion"`
	BlobURL     string `json:"blobUrl"`
	Description string `json:"description"`

	// DiffPackageMap maps the package hash a client currently has to
	// the delta artifact that takes it to this package.
	DiffPackageMap map[string]DiffInfo `json:"diffPackageMap,omitempty"`

	// IsDisabled hides the package from resolution while keeping it
	// in history for audit and rollback.
	IsDisabled  bool `json:"isDisabled"`
	IsMandatory bool `json:"isMandatory"`

	// Label is "v" + the package's 1-based history position, assigned
	// at commit time and never reassigned.
	Label string `json:"label,omitempty"`

	ManifestBlobURL string `json:"manifestBlobUrl,omitempty"`

	// OriginalDeployment is set on promoted packages: the name of the
	// deployment the content came from.
	OriginalDeployment string `json:"originalDeployment,omitempty"`

	// OriginalLabel is set on promoted and rolled-back packages: the
	// label the content previously carried.
	OriginalLabel string `json:"originalLabel,omitempty"`

	PackageHash   string        `json:"packageHash"`
	ReleasedBy    string        `json:"releasedBy,omitempty"`
	ReleaseMethod ReleaseMethod `json:"releaseMethod,omitempty"`

	// Rollout is the percentage of clients eligible to receive this
	// package while it is staged, 1-100. Nil means fully rolled out.
	// Committing a newer package nulls the previous latest's rollout.
	Rollout *int `json:"rollout,omitempty"`

	Size       int64 `json:"size"`
	UploadTime int64 `json:"uploadTime"`
}

// AccessKey authenticates management operations on behalf of an
// account.
type AccessKey struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	FriendlyName string `json:"friendlyName"`
	CreatedBy    string `json:"createdBy"`
	CreatedTime  int64  `json:"createdTime"`

	// Expires is the expiry time in milliseconds since the epoch.
	Expires int64 `json:"expires"`

	// IsSession marks keys created implicitly by a login session
	// rather than explicitly by the user.
	IsSession bool `json:"isSession,omitempty"`
}

// Label formats the label for the package at the given 1-based history
// position.
func Label(position int) string {
	return "v" + strconv.Itoa(position)
}

// LabelPosition parses a label back to its 1-based history position.
// Returns false for anything that is not "v" followed by a positive
// integer.
func LabelPosition(label string) (int, bool) {
	rest, ok := strings.CutPrefix(label, "v")
	if !ok {
		return 0, false
	}
	position, err := strconv.Atoi(rest)
	if err != nil || position < 1 {
		return 0, false
	}
	return position, true
}

// Rollout values outside [1,100] are rejected at release time.
const (
	MinRollout = 1
	MaxRollout = 100
)

// ValidateRollout checks a staged-rollout percentage supplied on
// release or patch. Nil is valid and means fully rolled out.
func ValidateRollout(rollout *int) error {
	if rollout == nil {
		return nil
	}
	if *rollout < MinRollout || *rollout > MaxRollout {
		return Errorf(Invalid, "rollout must be between %d and %d, got %d", MinRollout, MaxRollout, *rollout)
	}
	return nil
}

// IsUnfinishedRollout reports whether a rollout value marks a package
// as still being staged.
func IsUnfinishedRollout(rollout *int) bool {
	return rollout != nil && *rollout < MaxRollout
}

func (p Package) String() string {
	return fmt.Sprintf("%s (hash %.12s)", p.Label, p.PackageHash)
}
