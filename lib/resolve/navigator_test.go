// Copyright 2026 The Updraft Authors
// SPDX-License-Identifier: Apache-2.0

package resolve

import (
	"testing"

	"github.com/updraft-io/updraft/lib/storage"
)

func testPackage(label, appVersion, hash string) storage.Package {
	return storage.Package{Label: label, AppVersion: appVersion, PackageHash: hash}
}

func TestNavigateFiltersDisabled(t *testing.T) {
	disabled := testPackage("v2", "1.0.0", "h2")
	disabled.IsDisabled = true
	history := []storage.Package{
		testPackage("v1", "1.0.0", "h1"),
		disabled,
		testPackage("v3", "1.0.0", "h3"),
	}

	nav := Navigate(history, "1.0.0", false)
	if len(nav.Visible) != 2 {
		t.Fatalf("visible = %d packages, want 2", len(nav.Visible))
	}
	if nav.Visible[0].Label != "v1" || nav.Visible[1].Label != "v3" {
		t.Errorf("visible = %s, %s, want v1, v3", nav.Visible[0].Label, nav.Visible[1].Label)
	}
}

func TestNavigatePicksMostRecentCompatible(t *testing.T) {
	history := []storage.Package{
		testPackage("v1", "1.x", "h1"),
		testPackage("v2", "1.x", "h2"),
		testPackage("v3", "2.x", "h3"),
	}

	nav := Navigate(history, "1.4.0", false)
	if nav.Target < 0 {
		t.Fatal("no target for compatible client")
	}
	if got := nav.Visible[nav.Target].Label; got != "v2" {
		t.Errorf("target = %s, want v2 (newest 1.x package)", got)
	}
	if latest := nav.LatestVisible(); latest == nil || latest.Label != "v3" {
		t.Errorf("LatestVisible = %v, want v3", latest)
	}
}

func TestNavigateCompanionSkipsVersionFilter(t *testing.T) {
	history := []storage.Package{
		testPackage("v1", "2.x", "h1"),
		testPackage("v2", "3.x", "h2"),
	}

	nav := Navigate(history, "1.0.0", true)
	if nav.Target < 0 || nav.Visible[nav.Target].Label != "v2" {
		t.Errorf("companion target = %v, want v2", nav.Target)
	}

	// The same client without companion status is simply too old.
	nav = Navigate(history, "1.0.0", false)
	if nav.Target >= 0 {
		t.Error("non-companion client matched a range above its version")
	}
	if !nav.UpdateAppVersion {
		t.Error("UpdateAppVersion not set for a too-old client")
	}
}

func TestNavigateClassifiesIncompatibleClients(t *testing.T) {
	history := []storage.Package{
		testPackage("v1", "1.2.x", "h1"),
		testPackage("v2", "2.x", "h2"),
	}

	cases := []struct {
		name                   string
		clientVersion          string
		updateAppVersion       bool
		shouldRunBinaryVersion bool
	}{
		{"below every range", "1.0.0", true, false},
		{"above every range", "3.1.0", false, true},
		{"in the gap between ranges", "1.5.0", true, false},
		{"prerelease never matches plain ranges", "2.0.0-beta.1", true, false},
	}
	for _, tc := range cases {
		nav := Navigate(history, tc.clientVersion, false)
		if nav.Target >= 0 {
			t.Errorf("%s: client %s unexpectedly matched %s", tc.name, tc.clientVersion, nav.Visible[nav.Target].Label)
			continue
		}
		if nav.UpdateAppVersion != tc.updateAppVersion || nav.ShouldRunBinaryVersion != tc.shouldRunBinaryVersion {
			t.Errorf("%s: updateAppVersion=%t shouldRunBinaryVersion=%t, want %t/%t",
				tc.name, nav.UpdateAppVersion, nav.ShouldRunBinaryVersion,
				tc.updateAppVersion, tc.shouldRunBinaryVersion)
		}
	}
}

func TestNavigateEmptyHistory(t *testing.T) {
	nav := Navigate(nil, "1.0.0", false)
	if nav.Target != -1 || len(nav.Visible) != 0 {
		t.Errorf("empty history navigation = %+v", nav)
	}
	if nav.UpdateAppVersion || nav.ShouldRunBinaryVersion {
		t.Error("flags set for empty history")
	}
	if nav.LatestVisible() != nil {
		t.Error("LatestVisible on empty history is not nil")
	}

	// All-disabled history behaves the same as empty.
	disabled := testPackage("v1", "*", "h1")
	disabled.IsDisabled = true
	nav = Navigate([]storage.Package{disabled}, "1.0.0", false)
	if len(nav.Visible) != 0 || nav.UpdateAppVersion || nav.ShouldRunBinaryVersion {
		t.Errorf("all-disabled navigation = %+v", nav)
	}
}
