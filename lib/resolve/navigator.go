// Copyright 2026 The Updraft Authors
// SPDX-License-Identifier: Apache-2.0

package resolve

import (
	"github.com/updraft-io/updraft/lib/appversion"
	"github.com/updraft-io/updraft/lib/storage"
)

// Navigation is the outcome of filtering a deployment's history for
// one client.
type Navigation struct {
	// Visible is the history with disabled packages removed, oldest
	// first. A disabled package is treated as never released.
	Visible []storage.Package

	// Target is the index into Visible of the resolution target: the
	// most recent visible package whose version range admits the
	// client. -1 when none does.
	Target int

	// UpdateAppVersion reports that the client's binary predates every
	// visible package's range; ShouldRunBinaryVersion that it is newer
	// than everything released. Mutually exclusive, and both false
	// whenever a target exists or nothing is visible.
	UpdateAppVersion       bool
	ShouldRunBinaryVersion bool
}

// LatestVisible returns the most recent visible package, or nil when
// the visible set is empty.
func (n Navigation) LatestVisible() *storage.Package {
	if len(n.Visible) == 0 {
		return nil
	}
	return &n.Visible[len(n.Visible)-1]
}

// Navigate filters a deployment's history down to the packages one
// client may see and picks the resolution target.
//
// Companion clients are not bound to an app-store binary, so binary
// version filtering is skipped entirely for them: the target is simply
// the latest visible package.
func Navigate(history []storage.Package, clientVersion string, isCompanion bool) Navigation {
	nav := Navigation{Target: -1}
	for i := range history {
		if history[i].IsDisabled {
			continue
		}
		nav.Visible = append(nav.Visible, history[i])
	}
	if len(nav.Visible) == 0 {
		return nav
	}

	if isCompanion {
		nav.Target = len(nav.Visible) - 1
		return nav
	}

	for i := len(nav.Visible) - 1; i >= 0; i-- {
		if appversion.Matches(clientVersion, nav.Visible[i].AppVersion) {
			nav.Target = i
			return nav
		}
	}

	// No visible range admits the client. A binary above every range
	// has nothing newer to install and should keep running as-is;
	// anything else (below the minimum, or in a gap between ranges)
	// needs a newer binary before updates resume.
	aboveAll := true
	for i := range nav.Visible {
		if !appversion.Above(clientVersion, nav.Visible[i].AppVersion) {
			aboveAll = false
			break
		}
	}
	if aboveAll {
		nav.ShouldRunBinaryVersion = true
	} else {
		nav.UpdateAppVersion = true
	}
	return nav
}
