// Copyright 2026 The Updraft Authors
// SPDX-License-Identifier: Apache-2.0

// Updraft-server is the acquisition service: the endpoint client
// devices poll for over-the-air updates. It answers update checks
// against each deployment's package history and records download and
// deployment outcomes in the adoption counters.
//
// # Startup
//
// Configuration comes from a YAML file named by --config or the
// UPDRAFT_CONFIG environment variable; --dev starts with built-in
// defaults and no file. The in-memory store starts empty unless a
// snapshot file is configured (and exists), in which case it is
// restored from there. A seed fixture, when configured, populates a
// fresh store through the regular release pipeline — it is skipped
// when a snapshot was restored, since seeding an already-populated
// store would collide with the accounts and apps it contains.
//
// # Acquisition API
//
//   - GET /updateCheck — resolve the caller's next update, if any
//   - POST /reportStatus/deploy — record an install succeeding or
//     failing on a device
//   - POST /reportStatus/download — record a package download
//   - GET /health — storage and counters probes
//
// Update checks are read-only and side-effect free. Status reports
// drive the metrics recorder; when metrics are disabled the reports
// are accepted and discarded so client SDKs never see an error for
// telemetry the server chose not to keep.
//
// On SIGINT or SIGTERM the server drains in-flight requests, saves a
// snapshot when one is configured, and exits.
package main
