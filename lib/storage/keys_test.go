// Copyright 2026 The Updraft Authors
// SPDX-License-Identifier: Apache-2.0

package storage

import (
	"strings"
	"testing"
)

func TestGenerateKey(t *testing.T) {
	seen := make(map[string]bool)
	for range 100 {
		key, err := GenerateKey()
		if err != nil {
			t.Fatalf("GenerateKey: %v", err)
		}
		if len(key) != DeploymentKeyLength {
			t.Fatalf("key length = %d, want %d", len(key), DeploymentKeyLength)
		}
		for _, r := range key {
			if !strings.ContainsRune(keyAlphabet, r) {
				t.Fatalf("key %q contains %q outside the alphabet", key, r)
			}
		}
		if seen[key] {
			t.Fatalf("GenerateKey produced duplicate %q", key)
		}
		seen[key] = true
	}
}

func TestNewIDUnique(t *testing.T) {
	a, b := NewID(), NewID()
	if a == b {
		t.Fatalf("NewID produced duplicate %q", a)
	}
	if a == "" {
		t.Fatal("NewID produced empty ID")
	}
}
