// Copyright 2026 The Updraft Authors
// SPDX-License-Identifier: Apache-2.0

// Package service provides shared server infrastructure for Updraft
// binaries.
//
// [HTTPServer] owns the listener lifecycle for an HTTP surface: bind,
// signal readiness, serve, and drain gracefully when the context is
// cancelled. The caller provides the http.Handler (routing, request
// parsing, response shaping); the server provides everything around
// it.
//
// Binaries compose these utilities in their own main() function rather
// than subclassing a framework. The package provides building blocks,
// not a runtime.
package service
