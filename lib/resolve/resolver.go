// Copyright 2026 The Updraft Authors
// SPDX-License-Identifier: Apache-2.0

// Package resolve answers the update check: given what a client runs
// today, which package (if any) should it download next?
//
// Resolution is a stateless read over the deployment's package
// history. The navigator filters the history to what the client may
// see and picks the newest compatible package; the resolver then
// applies the already-current check, the staged-rollout gate, delta
// selection, and the cumulative mandatory rule to shape the final
// answer.
package resolve

import (
	"context"
	"strings"

	"github.com/updraft-io/updraft/lib/rollout"
	"github.com/updraft-io/updraft/lib/storage"
)

// Request is one update check. AppVersion is the client's binary
// version and must already be validated as semver by the transport;
// every other field degrades gracefully when empty.
type Request struct {
	DeploymentKey  string
	AppVersion     string
	PackageHash    string
	Label          string
	ClientUniqueID string
	IsCompanion    bool
}

// Result is the update decision sent back to the client. When
// IsAvailable is false, at most one of UpdateAppVersion and
// ShouldRunBinaryVersion explains why.
type Result struct {
	IsAvailable bool `json:"isAvailable"`

	// AppVersion is the target package's version range when an update
	// is available, and an echo of the client's own version otherwise.
	AppVersion string `json:"appVersion"`

	Description string `json:"description,omitempty"`
	DownloadURL string `json:"downloadURL,omitempty"`
	IsMandatory bool   `json:"isMandatory,omitempty"`
	Label       string `json:"label,omitempty"`
	PackageHash string `json:"packageHash,omitempty"`
	PackageSize int64  `json:"packageSize,omitempty"`

	UpdateAppVersion       bool `json:"updateAppVersion,omitempty"`
	ShouldRunBinaryVersion bool `json:"shouldRunBinaryVersion,omitempty"`
}

// Resolver answers update checks against one storage backend.
type Resolver struct {
	store storage.Storage
}

// NewResolver creates a resolver. Panics if store is nil.
func NewResolver(store storage.Storage) *Resolver {
	if store == nil {
		panic("resolve: nil storage")
	}
	return &Resolver{store: store}
}

// Resolve runs the update-check algorithm. It fails with NotFound when
// the deployment key does not map to any deployment; every other
// outcome, including "no update", is a successful Result.
func (r *Resolver) Resolve(ctx context.Context, req Request) (Result, error) {
	// Clients have shipped keys with stray whitespace and line breaks
	// baked into their build config; trim rather than reject.
	key := strings.TrimSpace(req.DeploymentKey)

	history, err := r.store.GetPackageHistoryFromDeploymentKey(ctx, key)
	if err != nil {
		return Result{}, err
	}

	nav := Navigate(history, req.AppVersion, req.IsCompanion)
	if len(nav.Visible) == 0 {
		// Nothing released yet: no update, and neither flag — the
		// client's binary is neither too old nor too new for an empty
		// deployment.
		return Result{AppVersion: req.AppVersion}, nil
	}
	if nav.Target < 0 {
		return Result{
			AppVersion:             req.AppVersion,
			UpdateAppVersion:       nav.UpdateAppVersion,
			ShouldRunBinaryVersion: nav.ShouldRunBinaryVersion,
		}, nil
	}

	target := nav.Visible[nav.Target]
	latestVisible := nav.LatestVisible()

	// Already current: the client runs the target's content, or the
	// newest visible content (a binary-range mismatch must not walk a
	// client backward through history).
	if req.PackageHash != "" &&
		(req.PackageHash == target.PackageHash || req.PackageHash == latestVisible.PackageHash) {
		return Result{AppVersion: req.AppVersion}, nil
	}

	// Staged rollout: ineligible clients see no update until the
	// percentage widens.
	if !rollout.IsEligible(key, gateIdentity(req), target.Rollout) {
		return Result{AppVersion: req.AppVersion}, nil
	}

	out := Result{
		IsAvailable: true,
		AppVersion:  target.AppVersion,
		Description: target.Description,
		DownloadURL: target.BlobURL,
		Label:       target.Label,
		PackageHash: target.PackageHash,
		PackageSize: target.Size,
		IsMandatory: cumulativeMandatory(nav.Visible, req.Label, target.Label),
	}

	// A delta keyed by the client's current hash downloads much less
	// than the full package.
	if diff, ok := target.DiffPackageMap[req.PackageHash]; ok {
		out.DownloadURL = diff.URL
		out.PackageSize = diff.Size
	}

	return out, nil
}

// gateIdentity picks the stable identity used for rollout bucketing:
// the device identifier when reported, else the installed package
// hash. An empty identity is still deterministic — all anonymous
// clients land in one bucket.
func gateIdentity(req Request) string {
	if req.ClientUniqueID != "" {
		return req.ClientUniqueID
	}
	return req.PackageHash
}

// cumulativeMandatory reports whether any visible package strictly
// after the client's reported label, up to and including the target,
// is mandatory. A client that skipped a mandatory release must treat
// the whole jump as mandatory. An unknown or unparsable client label
// conservatively counts from the beginning of history.
func cumulativeMandatory(visible []storage.Package, clientLabel, targetLabel string) bool {
	clientPosition := 0
	if position, ok := storage.LabelPosition(strings.TrimSpace(clientLabel)); ok {
		clientPosition = position
	}
	targetPosition, ok := storage.LabelPosition(targetLabel)
	if !ok {
		return false
	}

	for i := range visible {
		position, ok := storage.LabelPosition(visible[i].Label)
		if !ok {
			continue
		}
		if position > clientPosition && position <= targetPosition && visible[i].IsMandatory {
			return true
		}
	}
	return false
}
