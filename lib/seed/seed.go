// Copyright 2026 The Updraft Authors
// SPDX-License-Identifier: Apache-2.0

// Package seed loads development fixtures into a storage backend.
//
// Fixture files are authored as JSONC (JSON extended with comments and
// trailing commas) and describe accounts, their access keys, apps,
// deployments, and the packages released to each deployment. Applying
// a fixture runs the same release pipeline as the management surface,
// so seeded packages are validated, labeled, and recorded exactly like
// real releases.
//
// Seeding is not idempotent: applying a fixture to a store that
// already contains its accounts fails with AlreadyExists. Callers seed
// fresh stores only.
package seed

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/tidwall/jsonc"

	"github.com/updraft-io/updraft/lib/clock"
	"github.com/updraft-io/updraft/lib/release"
	"github.com/updraft-io/updraft/lib/storage"
)

// DefaultAccessKeyTTL is used for fixture access keys that do not give
// an explicit ttl.
const DefaultAccessKeyTTL = 60 * 24 * time.Hour

// File is the root of a fixture file.
type File struct {
	Accounts []Account `json:"accounts"`
}

// Account seeds one registered user and everything it owns.
type Account struct {
	Email      string      `json:"email"`
	Name       string      `json:"name"`
	AccessKeys []AccessKey `json:"accessKeys,omitempty"`
	Apps       []App       `json:"apps,omitempty"`
}

// AccessKey seeds one management credential.
type AccessKey struct {
	// Name is the key string itself. Generated when empty, which is
	// only useful when the fixture exists for its apps rather than for
	// CLI access.
	Name         string `json:"name,omitempty"`
	FriendlyName string `json:"friendlyName,omitempty"`

	// TTL is a Go duration string ("720h"). Empty means
	// [DefaultAccessKeyTTL].
	TTL string `json:"ttl,omitempty"`
}

// App seeds one application.
type App struct {
	Name        string       `json:"name"`
	Deployments []Deployment `json:"deployments,omitempty"`
}

// Deployment seeds one release channel.
type Deployment struct {
	Name string `json:"name"`

	// Key pins the deployment key so development clients can hardcode
	// it. Generated when empty.
	Key string `json:"key,omitempty"`

	// Packages are released in order, so the first entry becomes v1.
	Packages []Package `json:"packages,omitempty"`
}

// Package seeds one release.
type Package struct {
	AppVersion  string `json:"appVersion"`
	PackageHash string `json:"packageHash"`
	BlobURL     string `json:"blobUrl"`
	Size        int64  `json:"size"`
	Description string `json:"description,omitempty"`
	IsMandatory bool   `json:"isMandatory,omitempty"`
	IsDisabled  bool   `json:"isDisabled,omitempty"`
	Rollout     *int   `json:"rollout,omitempty"`
}

// Summary counts what one Apply created.
type Summary struct {
	Accounts    int
	AccessKeys  int
	Apps        int
	Deployments int
	Packages    int
}

// Parse strips JSONC comments and trailing commas from data, then
// unmarshals the result into a File.
func Parse(data []byte) (*File, error) {
	stripped := jsonc.ToJSON(data)

	var file File
	if err := json.Unmarshal(stripped, &file); err != nil {
		return nil, fmt.Errorf("parsing seed fixture: %w", err)
	}

	return &file, nil
}

// ReadFile reads a JSONC fixture file from disk and parses it.
func ReadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	file, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return file, nil
}

// Apply creates everything the fixture describes, in order, failing on
// the first error. The clock stamps access-key expiry times.
func Apply(ctx context.Context, store storage.Storage, clk clock.Clock, file *File) (Summary, error) {
	var summary Summary
	manager := release.New(store, nil)

	for _, account := range file.Accounts {
		accountID, err := store.AddAccount(ctx, storage.Account{
			Email: account.Email,
			Name:  account.Name,
		})
		if err != nil {
			return summary, fmt.Errorf("seed: account %q: %w", account.Email, err)
		}
		summary.Accounts++

		for _, key := range account.AccessKeys {
			ttl := DefaultAccessKeyTTL
			if key.TTL != "" {
				ttl, err = time.ParseDuration(key.TTL)
				if err != nil {
					return summary, fmt.Errorf("seed: access key %q: bad ttl: %w", key.FriendlyName, err)
				}
			}
			_, err := store.AddAccessKey(ctx, accountID, storage.AccessKey{
				Name:         key.Name,
				FriendlyName: key.FriendlyName,
				CreatedBy:    account.Email,
				Expires:      clk.Now().Add(ttl).UnixMilli(),
			})
			if err != nil {
				return summary, fmt.Errorf("seed: account %q: access key %q: %w", account.Email, key.FriendlyName, err)
			}
			summary.AccessKeys++
		}

		for _, app := range account.Apps {
			created, err := store.AddApp(ctx, accountID, storage.App{Name: app.Name})
			if err != nil {
				return summary, fmt.Errorf("seed: account %q: app %q: %w", account.Email, app.Name, err)
			}
			summary.Apps++

			for _, deployment := range app.Deployments {
				deploymentID, err := store.AddDeployment(ctx, accountID, created.ID, storage.Deployment{
					Name: deployment.Name,
					Key:  deployment.Key,
				})
				if err != nil {
					return summary, fmt.Errorf("seed: app %q: deployment %q: %w", app.Name, deployment.Name, err)
				}
				summary.Deployments++

				for _, pkg := range deployment.Packages {
					_, err := manager.Release(ctx, accountID, created.ID, deploymentID, release.ReleaseParams{
						AppVersion:  pkg.AppVersion,
						PackageHash: pkg.PackageHash,
						BlobURL:     pkg.BlobURL,
						Size:        pkg.Size,
						Description: pkg.Description,
						IsMandatory: pkg.IsMandatory,
						IsDisabled:  pkg.IsDisabled,
						Rollout:     pkg.Rollout,
						ReleasedBy:  account.Email,
					})
					if err != nil {
						return summary, fmt.Errorf("seed: deployment %q: package %q: %w", deployment.Name, pkg.PackageHash, err)
					}
					summary.Packages++
				}
			}
		}
	}

	return summary, nil
}
