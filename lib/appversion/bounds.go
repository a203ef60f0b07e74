// Copyright 2026 The Updraft Authors
// SPDX-License-Identifier: Apache-2.0

package appversion

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// bounds is the contiguous interval of versions a range expression
// admits. A nil max means unbounded above; min is never nil for a
// parsed expression ("*" has min 0.0.0).
type bounds struct {
	min          *semver.Version
	minExclusive bool
	max          *semver.Version // nil when unbounded above
	maxExclusive bool
}

func (b bounds) equal(other bounds) bool {
	if b.minExclusive != other.minExclusive || b.maxExclusive != other.maxExclusive {
		return false
	}
	if !versionsEqual(b.min, other.min) {
		return false
	}
	return versionsEqual(b.max, other.max)
}

func versionsEqual(a, b *semver.Version) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Compare(b) == 0 && a.Prerelease() == b.Prerelease()
}

// parseBounds analyzes a range expression into its version interval.
// The supported grammar covers the expressions releases actually use:
// "*", exact versions, caret and tilde ranges, wildcard segments,
// hyphen ranges, and compounds of comparator clauses. Disjunctions
// ("||") are not supported.
func parseBounds(expr string) (bounds, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" || expr == "*" || expr == "x" || expr == "X" {
		return bounds{min: semver.New(0, 0, 0, "", "")}, nil
	}
	if strings.Contains(expr, "||") {
		return bounds{}, fmt.Errorf("disjunctive ranges are not supported")
	}
	if left, right, ok := strings.Cut(expr, " - "); ok {
		return hyphenBounds(strings.TrimSpace(left), strings.TrimSpace(right))
	}
	if strings.ContainsAny(expr, "<>=") {
		return comparatorBounds(expr)
	}
	if rest, ok := strings.CutPrefix(expr, "^"); ok {
		return caretBounds(rest)
	}
	if rest, ok := strings.CutPrefix(expr, "~"); ok {
		return tildeBounds(strings.TrimPrefix(rest, ">"))
	}
	return plainBounds(expr)
}

// partial is a version expression with possibly missing or wildcard
// trailing components. wild marks the first component position (0 =
// major, 1 = minor, 2 = patch, 3 = none) that is a wildcard or absent.
type partial struct {
	major, minor, patch uint64
	prerelease          string
	wild                int
}

func (p partial) floor() *semver.Version {
	return semver.New(p.major, p.minor, p.patch, p.prerelease, "")
}

func parsePartial(expr string) (partial, error) {
	expr = strings.TrimPrefix(strings.TrimSpace(expr), "v")
	if expr == "" {
		return partial{}, fmt.Errorf("empty version")
	}

	// Prerelease and build-metadata suffixes require a full version.
	if strings.ContainsAny(expr, "-+") {
		v, err := semver.NewVersion(expr)
		if err != nil {
			return partial{}, err
		}
		return partial{
			major:      v.Major(),
			minor:      v.Minor(),
			patch:      v.Patch(),
			prerelease: v.Prerelease(),
			wild:       3,
		}, nil
	}

	parts := strings.Split(expr, ".")
	if len(parts) > 3 {
		return partial{}, fmt.Errorf("too many version components in %q", expr)
	}
	p := partial{wild: 3}
	values := [3]uint64{}
	for i, part := range parts {
		switch part {
		case "x", "X", "*":
			p.wild = i
		case "":
			return partial{}, fmt.Errorf("empty version component in %q", expr)
		default:
			if p.wild < 3 {
				return partial{}, fmt.Errorf("numeric component after wildcard in %q", expr)
			}
			n, err := strconv.ParseUint(part, 10, 64)
			if err != nil {
				return partial{}, fmt.Errorf("invalid version component %q", part)
			}
			values[i] = n
		}
		if p.wild < 3 {
			break
		}
	}
	if len(parts) < 3 && p.wild == 3 {
		p.wild = len(parts)
	}
	p.major, p.minor, p.patch = values[0], values[1], values[2]
	return p, nil
}

// plainBounds handles bare versions and wildcard segments: "1.2.3" is
// exact, "1.2" and "1.2.x" admit [1.2.0, 1.3.0), "1" and "1.x" admit
// [1.0.0, 2.0.0).
func plainBounds(expr string) (bounds, error) {
	p, err := parsePartial(expr)
	if err != nil {
		return bounds{}, err
	}
	switch p.wild {
	case 0:
		return bounds{min: semver.New(0, 0, 0, "", "")}, nil
	case 1:
		return bounds{
			min:          p.floor(),
			max:          semver.New(p.major+1, 0, 0, "", ""),
			maxExclusive: true,
		}, nil
	case 2:
		return bounds{
			min:          p.floor(),
			max:          semver.New(p.major, p.minor+1, 0, "", ""),
			maxExclusive: true,
		}, nil
	default:
		v := p.floor()
		return bounds{min: v, max: v}, nil
	}
}

// caretBounds admits changes that keep the leftmost nonzero component
// fixed: "^1.2.3" is [1.2.3, 2.0.0), "^0.2.3" is [0.2.3, 0.3.0),
// "^0.0.3" is [0.0.3, 0.0.4).
func caretBounds(expr string) (bounds, error) {
	p, err := parsePartial(expr)
	if err != nil {
		return bounds{}, err
	}
	if p.wild == 0 {
		return bounds{min: semver.New(0, 0, 0, "", "")}, nil
	}

	var max *semver.Version
	switch {
	case p.major > 0 || p.wild == 1:
		max = semver.New(p.major+1, 0, 0, "", "")
	case p.minor > 0 || p.wild == 2:
		max = semver.New(0, p.minor+1, 0, "", "")
	default:
		max = semver.New(0, 0, p.patch+1, "", "")
	}
	return bounds{min: p.floor(), max: max, maxExclusive: true}, nil
}

// tildeBounds admits patch-level changes when a minor version is given
// ("~1.2.3" is [1.2.3, 1.3.0)) and minor-level changes otherwise
// ("~1" is [1.0.0, 2.0.0)).
func tildeBounds(expr string) (bounds, error) {
	p, err := parsePartial(expr)
	if err != nil {
		return bounds{}, err
	}
	if p.wild == 0 {
		return bounds{min: semver.New(0, 0, 0, "", "")}, nil
	}

	var max *semver.Version
	if p.wild == 1 {
		max = semver.New(p.major+1, 0, 0, "", "")
	} else {
		max = semver.New(p.major, p.minor+1, 0, "", "")
	}
	return bounds{min: p.floor(), max: max, maxExclusive: true}, nil
}

// hyphenBounds handles "1.2.0 - 1.4.0" inclusive ranges. A partial
// right side widens to the end of its segment: "1.2 - 2.3" admits
// everything below 2.4.0.
func hyphenBounds(left, right string) (bounds, error) {
	lower, err := parsePartial(left)
	if err != nil {
		return bounds{}, fmt.Errorf("invalid lower bound: %w", err)
	}
	upper, err := parsePartial(right)
	if err != nil {
		return bounds{}, fmt.Errorf("invalid upper bound: %w", err)
	}

	b := bounds{min: lower.floor()}
	switch upper.wild {
	case 0:
		// "1.2 - *" is unbounded above.
	case 1:
		b.max = semver.New(upper.major+1, 0, 0, "", "")
		b.maxExclusive = true
	case 2:
		b.max = semver.New(upper.major, upper.minor+1, 0, "", "")
		b.maxExclusive = true
	default:
		b.max = upper.floor()
	}
	return b, nil
}

// comparatorBounds intersects comparator clauses such as
// ">=1.1.0 <1.2.0". Clauses may be separated by spaces or commas.
// Partial versions in clauses are padded with zeros.
func comparatorBounds(expr string) (bounds, error) {
	fields := strings.FieldsFunc(expr, func(r rune) bool {
		return r == ' ' || r == ',' || r == '\t'
	})
	if len(fields) == 0 {
		return bounds{}, fmt.Errorf("empty range expression")
	}

	b := bounds{}
	for _, field := range fields {
		op := "="
		rest := field
		for _, candidate := range []string{">=", "<=", "==", ">", "<", "="} {
			if r, ok := strings.CutPrefix(field, candidate); ok {
				op, rest = candidate, r
				break
			}
		}
		p, err := parsePartial(rest)
		if err != nil {
			return bounds{}, err
		}
		v := p.floor()

		switch op {
		case ">=":
			b.tightenMin(v, false)
		case ">":
			b.tightenMin(v, true)
		case "<=":
			b.tightenMax(v, false)
		case "<":
			b.tightenMax(v, true)
		case "=", "==":
			b.tightenMin(v, false)
			b.tightenMax(v, false)
		}
	}
	if b.min == nil {
		b.min = semver.New(0, 0, 0, "", "")
	}
	if b.max != nil {
		cmp := b.min.Compare(b.max)
		if cmp > 0 || (cmp == 0 && (b.minExclusive || b.maxExclusive)) {
			return bounds{}, fmt.Errorf("range %q admits no versions", expr)
		}
	}
	return b, nil
}

func (b *bounds) tightenMin(v *semver.Version, exclusive bool) {
	if b.min == nil || v.GreaterThan(b.min) || (v.Equal(b.min) && exclusive) {
		b.min = v
		b.minExclusive = exclusive
	}
}

func (b *bounds) tightenMax(v *semver.Version, exclusive bool) {
	if b.max == nil || v.LessThan(b.max) || (v.Equal(b.max) && exclusive) {
		b.max = v
		b.maxExclusive = exclusive
	}
}
