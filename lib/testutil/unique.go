// Copyright 2026 The Updraft Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"fmt"
	"sync/atomic"
)

var uniqueCounter atomic.Uint64

// UniqueID returns a string of the form "prefix-N" where N is a
// monotonically increasing integer. Use this instead of time.Now() when
// tests need unique identifiers for account emails, app names, or
// deployment keys that must not collide across subtests.
//
//	email := testutil.UniqueID("dev") + "@example.com"  // "dev-1@example.com", ...
//	key := testutil.UniqueID("deployment-key")          // "deployment-key-2", ...
func UniqueID(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, uniqueCounter.Add(1))
}
