// Copyright 2026 The Updraft Authors
// SPDX-License-Identifier: Apache-2.0

package storage

import (
	"errors"
	"fmt"
	"testing"
)

func TestCodeOf(t *testing.T) {
	err := Errorf(NotFound, "deployment key %q", "abc")
	if got := CodeOf(err); got != NotFound {
		t.Errorf("CodeOf = %v, want NotFound", got)
	}

	wrapped := fmt.Errorf("loading history: %w", err)
	if got := CodeOf(wrapped); got != NotFound {
		t.Errorf("CodeOf(wrapped) = %v, want NotFound", got)
	}

	if got := CodeOf(errors.New("plain")); got != Other {
		t.Errorf("CodeOf(plain error) = %v, want Other", got)
	}
}

func TestIsCode(t *testing.T) {
	err := Errorf(AlreadyExists, "app %q", "demo")
	if !IsCode(err, AlreadyExists) {
		t.Error("IsCode(err, AlreadyExists) = false, want true")
	}
	if IsCode(err, NotFound) {
		t.Error("IsCode(err, NotFound) = true, want false")
	}
	if IsCode(errors.New("plain"), Other) {
		t.Error("IsCode(plain error, Other) = true, want false")
	}
}

func TestErrorMessage(t *testing.T) {
	err := Errorf(Invalid, "rollout must be between 1 and 100, got 0")
	want := "invalid: rollout must be between 1 and 100, got 0"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}

	bare := &Error{Code: Expired}
	if bare.Error() != "expired" {
		t.Errorf("bare Error() = %q, want %q", bare.Error(), "expired")
	}
}
