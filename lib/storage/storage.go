// Copyright 2026 The Updraft Authors
// SPDX-License-Identifier: Apache-2.0

// Package storage defines the persistence contract for accounts, apps,
// deployments, package histories, and access keys, together with the
// shared data model and error taxonomy.
//
// Backends implement the [Storage] interface and are selected at
// startup by configuration, never by runtime type inspection. The
// in-memory implementation lives in the memstore subpackage; cloud
// table+blob, relational, and hybrid backends satisfy the same
// contract.
//
// Two rules bind every implementation:
//
//   - Reads return defensive copies. A caller can never mutate stored
//     state through a returned value.
//   - Package histories are append-only. CommitPackage appends and
//     assigns the next sequential label; UpdatePackageHistory patches
//     entry metadata in place; ClearPackageHistory empties the list.
//     Nothing else inserts, removes, or relabels entries.
package storage

import "context"

// Storage is the persistence contract. Failures carry a classified
// *Error; in particular lookups of unknown IDs or keys fail with
// NotFound and unique-constraint collisions fail with AlreadyExists.
type Storage interface {
	// CheckHealth verifies the backend is reachable.
	CheckHealth(ctx context.Context) error

	// --- accounts ---

	// AddAccount stores a new account and returns its ID. The email
	// must be unique, compared case-insensitively.
	AddAccount(ctx context.Context, account Account) (string, error)
	GetAccount(ctx context.Context, accountID string) (Account, error)
	GetAccountByEmail(ctx context.Context, email string) (Account, error)
	UpdateAccount(ctx context.Context, email string, account Account) error

	// GetAccountIDFromAccessKey resolves an access-key name to the
	// owning account. Keys past their TTL fail with Expired.
	GetAccountIDFromAccessKey(ctx context.Context, accessKey string) (string, error)

	// --- apps ---

	// AddApp stores a new app for the account named by
	// app.Collaborators' owner entry, or for accountID when the map is
	// empty. Returns the stored app.
	AddApp(ctx context.Context, accountID string, app App) (App, error)
	GetApps(ctx context.Context, accountID string) ([]App, error)
	GetApp(ctx context.Context, accountID, appID string) (App, error)

	// RemoveApp deletes the app and cascades: its deployments, their
	// histories, and their key mappings all go with it.
	RemoveApp(ctx context.Context, accountID, appID string) error

	// TransferApp moves ownership to the account registered under
	// email. The previous owner stays on as a collaborator.
	TransferApp(ctx context.Context, accountID, appID, email string) error
	UpdateApp(ctx context.Context, accountID string, app App) error

	// --- collaborators ---

	AddCollaborator(ctx context.Context, accountID, appID, email string) error
	GetCollaborators(ctx context.Context, accountID, appID string) (CollaboratorMap, error)

	// RemoveCollaborator removes a collaborator. Removing the owner
	// fails with Invalid; the owner invariant holds at all times.
	RemoveCollaborator(ctx context.Context, accountID, appID, email string) error

	// --- deployments ---

	// AddDeployment stores a new deployment and returns its ID. The
	// deployment name must be unique within the app and the key must
	// be globally unique.
	AddDeployment(ctx context.Context, accountID, appID string, deployment Deployment) (string, error)
	GetDeployment(ctx context.Context, accountID, appID, deploymentID string) (Deployment, error)

	// GetDeploymentInfo resolves a client-facing deployment key to the
	// owning app and deployment IDs.
	GetDeploymentInfo(ctx context.Context, deploymentKey string) (DeploymentInfo, error)
	GetDeployments(ctx context.Context, accountID, appID string) ([]Deployment, error)

	// RemoveDeployment deletes the deployment, its history, and its
	// key mapping.
	RemoveDeployment(ctx context.Context, accountID, appID, deploymentID string) error

	// UpdateDeployment updates a deployment's mutable fields. The key
	// is immutable once issued.
	UpdateDeployment(ctx context.Context, accountID, appID string, deployment Deployment) error

	// --- package history ---

	// CommitPackage appends a package to the deployment's history as
	// one atomic mutation: it assigns the next sequential label,
	// stamps the upload time, nulls the previous latest package's
	// rollout, and updates the deployment's latest pointer. Returns
	// the committed package.
	CommitPackage(ctx context.Context, accountID, appID, deploymentID string, pkg Package) (Package, error)

	// ClearPackageHistory empties the history and the latest pointer.
	ClearPackageHistory(ctx context.Context, accountID, appID, deploymentID string) error

	// GetPackageHistory returns the history oldest-first. An empty
	// history is an empty slice, not an error.
	GetPackageHistory(ctx context.Context, accountID, appID, deploymentID string) ([]Package, error)

	// GetPackageHistoryFromDeploymentKey is the unauthenticated
	// resolution-path read, keyed by the client-facing deployment key.
	GetPackageHistoryFromDeploymentKey(ctx context.Context, deploymentKey string) ([]Package, error)

	// UpdatePackageHistory replaces the metadata of existing history
	// entries in place. The new history must have the same length and
	// labels as the stored one; an empty history fails with Invalid.
	UpdatePackageHistory(ctx context.Context, accountID, appID, deploymentID string, history []Package) error

	// --- access keys ---

	// AddAccessKey stores a new access key and returns its ID. The
	// key name (the token value) must be globally unique.
	AddAccessKey(ctx context.Context, accountID string, key AccessKey) (string, error)
	GetAccessKey(ctx context.Context, accountID, keyID string) (AccessKey, error)
	GetAccessKeys(ctx context.Context, accountID string) ([]AccessKey, error)
	RemoveAccessKey(ctx context.Context, accountID, keyID string) error
	UpdateAccessKey(ctx context.Context, accountID string, key AccessKey) error
}
