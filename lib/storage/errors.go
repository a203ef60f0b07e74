// Copyright 2026 The Updraft Authors
// SPDX-License-Identifier: Apache-2.0

package storage

import (
	"errors"
	"fmt"
)

// Code classifies a storage failure. Components above the storage
// layer never invent their own kinds: they surface these unchanged and
// translate them only at the HTTP boundary.
type Code int

const (
	// Other is an unclassified backend failure.
	Other Code = iota

	// NotFound means the named account, app, deployment, key, or
	// package does not exist.
	NotFound

	// AlreadyExists means a unique name, email, or key collided.
	AlreadyExists

	// TooLarge means a stored value exceeded a backend limit.
	TooLarge

	// Expired means an access key is past its TTL.
	Expired

	// Invalid means the input was malformed: an empty required
	// history, a reserved collaborator email, a bad rollout value.
	Invalid

	// ConnectionFailed means the backend could not be reached.
	ConnectionFailed
)

func (c Code) String() string {
	switch c {
	case NotFound:
		return "not found"
	case AlreadyExists:
		return "already exists"
	case TooLarge:
		return "too large"
	case Expired:
		return "expired"
	case Invalid:
		return "invalid"
	case ConnectionFailed:
		return "connection failed"
	default:
		return "storage error"
	}
}

// Error is a classified storage failure. Callers use errors.As to
// extract the structured code, or the CodeOf / IsCode helpers:
//
//	if storage.IsCode(err, storage.NotFound) { ... }
type Error struct {
	// Code is the failure classification.
	Code Code
	// Message is the human-readable description.
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Code.String()
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Errorf builds a classified storage error.
func Errorf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// CodeOf extracts the classification from err. Errors that are not a
// *Error (wrapped or otherwise) classify as Other.
func CodeOf(err error) Code {
	var storageErr *Error
	if errors.As(err, &storageErr) {
		return storageErr.Code
	}
	return Other
}

// IsCode reports whether err is a storage error with the given code.
func IsCode(err error, code Code) bool {
	var storageErr *Error
	if errors.As(err, &storageErr) {
		return storageErr.Code == code
	}
	return false
}
