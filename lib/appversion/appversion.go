// Copyright 2026 The Updraft Authors
// SPDX-License-Identifier: Apache-2.0

// Package appversion matches client binary versions against the version
// ranges that releases target.
//
// Every release carries an appVersion expression: an exact version
// ("1.2.3"), a caret or tilde range ("^1.2.3", "~1.2.0"), a wildcard
// segment ("1.x", "1.2.*"), a bounded compound (">=1.1.0 <1.2.0"), a
// hyphen range ("1.2.0 - 1.4.0"), or "*" for everything. Clients report
// a concrete binary version, possibly partial ("1.0") and possibly
// carrying prerelease or build-metadata suffixes.
//
// Matching rules:
//   - "*" matches every client version, prereleases included.
//   - Missing minor/patch components in a client version are treated
//     as zero ("1.0" → "1.0.0").
//   - Build metadata ("+...") never affects matching.
//   - A prerelease client version only matches a range that itself
//     names a prerelease; it does not match a plain range even when
//     numerically inside it.
//
// Range expressions are validated when a release is created
// ([ValidRange]); resolution-time callers may assume stored ranges are
// well formed.
package appversion

import (
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// Normalize canonicalizes a client-reported binary version: trims
// whitespace, pads missing minor/patch components with zeros, and
// preserves prerelease and build-metadata suffixes. Returns an error
// if the input is not a semantic version.
func Normalize(version string) (string, error) {
	v, err := semver.NewVersion(strings.TrimSpace(version))
	if err != nil {
		return "", fmt.Errorf("invalid semantic version %q: %w", version, err)
	}
	return v.String(), nil
}

// Matches reports whether a client binary version satisfies a target
// range expression. Malformed inputs never match — stored ranges are
// validated at release time, so a parse failure here means the client
// sent garbage.
func Matches(clientVersion, rangeExpr string) bool {
	expr := strings.TrimSpace(rangeExpr)
	if expr == "" || expr == "*" {
		return true
	}

	constraint, err := semver.NewConstraint(expr)
	if err != nil {
		return false
	}
	version, err := semver.NewVersion(strings.TrimSpace(clientVersion))
	if err != nil {
		return false
	}
	return constraint.Check(version)
}

// ValidRange validates a target range expression for release creation.
// The expression must parse as a version constraint and fall within the
// supported grammar (exact, caret, tilde, wildcard segment, bounded
// compound, hyphen range, or "*"). Empty expressions are rejected — a
// release that targets everything says so explicitly with "*".
func ValidRange(rangeExpr string) error {
	expr := strings.TrimSpace(rangeExpr)
	if expr == "" {
		return fmt.Errorf("target version range is required (use %q to target every binary version)", "*")
	}
	if expr == "*" {
		return nil
	}
	if _, err := semver.NewConstraint(expr); err != nil {
		return fmt.Errorf("invalid target version range %q: %w", rangeExpr, err)
	}
	if _, err := parseBounds(expr); err != nil {
		return fmt.Errorf("unsupported target version range %q: %w", rangeExpr, err)
	}
	return nil
}

// Equivalent reports whether two range expressions admit exactly the
// same versions, so that "1.x", "1.*", and "1.X" compare equal when
// deciding whether a release duplicates the current latest. Expressions
// that cannot be analyzed fall back to literal comparison.
func Equivalent(a, b string) bool {
	trimmedA, trimmedB := strings.TrimSpace(a), strings.TrimSpace(b)
	if trimmedA == trimmedB {
		return true
	}

	boundsA, errA := parseBounds(trimmedA)
	boundsB, errB := parseBounds(trimmedB)
	if errA != nil || errB != nil {
		return false
	}
	return boundsA.equal(boundsB)
}

// Above reports whether version lies strictly above every version the
// range admits. Used to distinguish "client binary newer than anything
// released" from "client binary too old". A prerelease version counts
// as reaching a plain bound when its release components do ("2.0.0-rc.1"
// is above "1.x").
func Above(version, rangeExpr string) bool {
	bounds, err := parseBounds(strings.TrimSpace(rangeExpr))
	if err != nil || bounds.max == nil {
		return false
	}
	v, err := semver.NewVersion(strings.TrimSpace(version))
	if err != nil {
		return false
	}
	cmp := compareAgainstBound(v, bounds.max)
	if bounds.maxExclusive {
		return cmp >= 0
	}
	return cmp > 0
}

// Below reports whether version lies strictly below every version the
// range admits.
func Below(version, rangeExpr string) bool {
	bounds, err := parseBounds(strings.TrimSpace(rangeExpr))
	if err != nil || bounds.min == nil {
		return false
	}
	v, err := semver.NewVersion(strings.TrimSpace(version))
	if err != nil {
		return false
	}
	cmp := compareAgainstBound(v, bounds.min)
	if bounds.minExclusive {
		return cmp <= 0
	}
	return cmp < 0
}

// compareAgainstBound compares a version against a range bound. When
// the version carries a prerelease but the bound does not, the
// comparison uses the version's release components only, so that
// "2.0.0-alpha" counts as having reached a plain "2.0.0" bound.
func compareAgainstBound(v, bound *semver.Version) int {
	if v.Prerelease() != "" && bound.Prerelease() == "" {
		core := semver.New(v.Major(), v.Minor(), v.Patch(), "", "")
		return core.Compare(bound)
	}
	return v.Compare(bound)
}
