// Copyright 2026 The Updraft Authors
// SPDX-License-Identifier: Apache-2.0

package storage

import "strings"

// reservedMapKeys are property-like strings that must never be used as
// collaborator-map keys. Accepting them as keys lets a crafted email
// collide with object machinery in downstream consumers of the stored
// JSON, so they are rejected outright as input.
var reservedMapKeys = map[string]bool{
	"__proto__":   true,
	"constructor": true,
	"prototype":   true,
}

// ValidateCollaboratorEmail checks an email before it is used as a
// collaborator-map key: it must look like an email address and must
// not be a reserved property-like string.
func ValidateCollaboratorEmail(email string) error {
	trimmed := strings.TrimSpace(email)
	if reservedMapKeys[strings.ToLower(trimmed)] {
		return Errorf(Invalid, "email %q is not allowed", email)
	}
	at := strings.Index(trimmed, "@")
	if at < 1 || at == len(trimmed)-1 {
		return Errorf(Invalid, "invalid email address %q", email)
	}
	return nil
}

// EmailsEqual compares account emails the way the uniqueness
// constraint does: case-insensitively.
func EmailsEqual(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
