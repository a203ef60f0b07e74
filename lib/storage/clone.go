// Copyright 2026 The Updraft Authors
// SPDX-License-Identifier: Apache-2.0

package storage

import "maps"

// Clone returns a deep copy. Backends return clones from every read so
// callers can never reach stored state through a result.
func (p Package) Clone() Package {
	clone := p
	if p.DiffPackageMap != nil {
		clone.DiffPackageMap = maps.Clone(p.DiffPackageMap)
	}
	if p.Rollout != nil {
		rollout := *p.Rollout
		clone.Rollout = &rollout
	}
	return clone
}

// ClonePackages deep-copies a package history. A nil history clones to
// an empty, non-nil slice so callers can range and append without nil
// checks.
func ClonePackages(history []Package) []Package {
	clone := make([]Package, 0, len(history))
	for _, pkg := range history {
		clone = append(clone, pkg.Clone())
	}
	return clone
}

// Clone returns a deep copy.
func (d Deployment) Clone() Deployment {
	clone := d
	if d.Package != nil {
		pkg := d.Package.Clone()
		clone.Package = &pkg
	}
	return clone
}

// Clone returns a deep copy.
func (a App) Clone() App {
	clone := a
	if a.Collaborators != nil {
		clone.Collaborators = maps.Clone(a.Collaborators)
	}
	return clone
}
