// Copyright 2026 The Updraft Authors
// SPDX-License-Identifier: Apache-2.0

// Package metrics records deployment adoption counters: how many
// clients downloaded, installed, failed on, or are currently running
// each label of a deployment.
//
// Counters live in SQLite under two tables keyed by deployment key.
// label_counters holds one row per (deployment, label, status) with a
// running count. client_labels holds the deprecated per-client active
// label, kept for clients that report status without the previous
// deployment/label pair; it lets the recorder migrate their Active
// count when they move between labels.
//
// Metrics are best-effort infrastructure: a nil *Recorder is valid and
// turns every operation into a success no-op, so callers never guard
// call sites on whether metrics are configured. When a recorder IS
// configured, failures are real errors — a status report must not
// claim success if an enabled counters store is unreachable.
//
// Multi-counter operations (RecordUpdate, RecordClientUpdate,
// ClearMetrics) run inside a single IMMEDIATE transaction. The sum of
// Active counts for a deployment approximates the number of devices
// currently running some label of it; partial application under
// failure would corrupt that invariant, so the batch either fully
// applies or fully rolls back.
package metrics

import (
	"context"
	"fmt"
	"log/slog"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/updraft-io/updraft/lib/sqlitepool"
	"github.com/updraft-io/updraft/lib/storage"
)

// Counter statuses. Clients report Downloaded, Installed, and Failed
// directly; Active is derived and only moves through RecordUpdate and
// RecordClientUpdate.
const (
	StatusActive     = "Active"
	StatusDownloaded = "Downloaded"
	StatusInstalled  = "Installed"
	StatusFailed     = "Failed"
)

var reportableStatuses = map[string]bool{
	StatusDownloaded: true,
	StatusInstalled:  true,
	StatusFailed:     true,
}

const schema = `
CREATE TABLE IF NOT EXISTS label_counters (
	deployment_key TEXT NOT NULL,
	label          TEXT NOT NULL,
	status         TEXT NOT NULL,
	count          INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (deployment_key, label, status)
);

CREATE TABLE IF NOT EXISTS client_labels (
	deployment_key TEXT NOT NULL,
	client_id      TEXT NOT NULL,
	label          TEXT NOT NULL,
	PRIMARY KEY (deployment_key, client_id)
);
`

// Config holds the parameters for opening a metrics recorder.
type Config struct {
	// Path is the filesystem path to the SQLite database file. The
	// parent directory must exist. Required.
	Path string

	// PoolSize is the number of connections in the pool. Defaults to
	// 4 if zero or negative.
	PoolSize int

	// Logger receives operational messages. If nil, a no-op logger is
	// used.
	Logger *slog.Logger
}

// Recorder maintains the deployment adoption counters. A nil *Recorder
// is the disabled state: every method succeeds without doing anything.
type Recorder struct {
	pool   *sqlitepool.Pool
	logger *slog.Logger
}

// Open creates a recorder backed by SQLite. The database file and the
// counter tables are created if they do not exist. The caller must
// call Close when the recorder is no longer needed.
func Open(cfg Config) (*Recorder, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = 4
	}

	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:     cfg.Path,
		PoolSize: poolSize,
		Logger:   logger,
		OnConnect: func(conn *sqlite.Conn) error {
			return sqlitex.ExecuteScript(conn, schema, nil)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("metrics: %w", err)
	}

	return &Recorder{pool: pool, logger: logger}, nil
}

// Close closes the underlying connection pool. Safe on nil.
func (r *Recorder) Close() error {
	if r == nil {
		return nil
	}
	return r.pool.Close()
}

// CheckHealth verifies the counters store is reachable. A disabled
// recorder has nothing to probe and reports healthy.
func (r *Recorder) CheckHealth(ctx context.Context) error {
	if r == nil {
		return nil
	}
	conn, err := r.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("metrics: health: %w", err)
	}
	defer r.pool.Put(conn)

	if err := sqlitex.Execute(conn, "SELECT 1", nil); err != nil {
		return fmt.Errorf("metrics: health: %w", err)
	}
	return nil
}

// IncrementLabelStatus adds one to the status counter of a label. The
// status must be Downloaded, Installed, or Failed; the row is created
// at 1 if absent.
func (r *Recorder) IncrementLabelStatus(ctx context.Context, deploymentKey, label, status string) error {
	if r == nil {
		return nil
	}
	if deploymentKey == "" || label == "" {
		return storage.Errorf(storage.Invalid, "metrics: deployment key and label are required")
	}
	if !reportableStatuses[status] {
		return storage.Errorf(storage.Invalid, "metrics: status %q is not reportable", status)
	}

	conn, err := r.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("metrics: increment: %w", err)
	}
	defer r.pool.Put(conn)

	return addToCounter(conn, deploymentKey, label, status, 1)
}

// RecordUpdate moves a client's active-install pointer to (deployment,
// label): +1 Active and +1 Installed on the new label and, when the
// previous pair is known, -1 Active on the label the client came from —
// possibly in a different deployment. All three counter changes apply
// in one transaction or not at all.
//
// The previous pair counts as known only when both previousDeploymentKey
// and previousLabel are non-empty.
func (r *Recorder) RecordUpdate(ctx context.Context, deploymentKey, label, previousDeploymentKey, previousLabel string) (err error) {
	if r == nil {
		return nil
	}
	if deploymentKey == "" || label == "" {
		return storage.Errorf(storage.Invalid, "metrics: deployment key and label are required")
	}

	conn, err := r.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("metrics: record update: %w", err)
	}
	defer r.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return fmt.Errorf("metrics: begin transaction: %w", err)
	}
	defer endTransaction(&err)

	if err = addToCounter(conn, deploymentKey, label, StatusActive, 1); err != nil {
		return err
	}
	if err = addToCounter(conn, deploymentKey, label, StatusInstalled, 1); err != nil {
		return err
	}
	if previousDeploymentKey != "" && previousLabel != "" {
		if err = addToCounter(conn, previousDeploymentKey, previousLabel, StatusActive, -1); err != nil {
			return err
		}
	}
	return nil
}

// RecordClientUpdate is the deprecated per-client flow, used for
// status reports that identify the client but not the label it came
// from. The recorder keeps the client's current label in client_labels:
// re-reporting the same label is a no-op, and a label change migrates
// the Active count within the deployment exactly as RecordUpdate would.
func (r *Recorder) RecordClientUpdate(ctx context.Context, deploymentKey, clientID, label string) (err error) {
	if r == nil {
		return nil
	}
	if deploymentKey == "" || clientID == "" || label == "" {
		return storage.Errorf(storage.Invalid, "metrics: deployment key, client ID, and label are required")
	}

	conn, err := r.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("metrics: record client update: %w", err)
	}
	defer r.pool.Put(conn)

	// IMMEDIATE even though the first statement is a read: the
	// read-modify-write on the client's label row must not interleave
	// with another report from the same client.
	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return fmt.Errorf("metrics: begin transaction: %w", err)
	}
	defer endTransaction(&err)

	var previous string
	err = sqlitex.Execute(conn,
		"SELECT label FROM client_labels WHERE deployment_key = ? AND client_id = ?",
		&sqlitex.ExecOptions{
			Args: []any{deploymentKey, clientID},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				previous = stmt.ColumnText(0)
				return nil
			},
		})
	if err != nil {
		return fmt.Errorf("metrics: read client label: %w", err)
	}

	if previous == label {
		return nil
	}

	err = sqlitex.Execute(conn,
		`INSERT INTO client_labels (deployment_key, client_id, label)
		 VALUES (?, ?, ?)
		 ON CONFLICT (deployment_key, client_id) DO UPDATE SET label = excluded.label`,
		&sqlitex.ExecOptions{Args: []any{deploymentKey, clientID, label}})
	if err != nil {
		return fmt.Errorf("metrics: write client label: %w", err)
	}

	if err = addToCounter(conn, deploymentKey, label, StatusActive, 1); err != nil {
		return err
	}
	if err = addToCounter(conn, deploymentKey, label, StatusInstalled, 1); err != nil {
		return err
	}
	if previous != "" {
		if err = addToCounter(conn, deploymentKey, previous, StatusActive, -1); err != nil {
			return err
		}
	}
	return nil
}

// ClearMetrics deletes every counter and client row for a deployment.
// Called when the deployment's package history is cleared.
func (r *Recorder) ClearMetrics(ctx context.Context, deploymentKey string) (err error) {
	if r == nil {
		return nil
	}
	if deploymentKey == "" {
		return storage.Errorf(storage.Invalid, "metrics: deployment key is required")
	}

	conn, err := r.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("metrics: clear: %w", err)
	}
	defer r.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return fmt.Errorf("metrics: begin transaction: %w", err)
	}
	defer endTransaction(&err)

	err = sqlitex.Execute(conn,
		"DELETE FROM label_counters WHERE deployment_key = ?",
		&sqlitex.ExecOptions{Args: []any{deploymentKey}})
	if err != nil {
		return fmt.Errorf("metrics: clear counters: %w", err)
	}

	err = sqlitex.Execute(conn,
		"DELETE FROM client_labels WHERE deployment_key = ?",
		&sqlitex.ExecOptions{Args: []any{deploymentKey}})
	if err != nil {
		return fmt.Errorf("metrics: clear client labels: %w", err)
	}
	return nil
}

// LabelMetrics holds the counters of one label.
type LabelMetrics struct {
	Active     int64 `json:"active"`
	Downloaded int64 `json:"downloaded"`
	Installed  int64 `json:"installed"`
	Failed     int64 `json:"failed"`
}

// Metrics returns the per-label counters of a deployment. A disabled
// recorder returns an empty map.
func (r *Recorder) Metrics(ctx context.Context, deploymentKey string) (map[string]LabelMetrics, error) {
	if r == nil {
		return map[string]LabelMetrics{}, nil
	}

	conn, err := r.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("metrics: read: %w", err)
	}
	defer r.pool.Put(conn)

	out := make(map[string]LabelMetrics)
	err = sqlitex.Execute(conn,
		"SELECT label, status, count FROM label_counters WHERE deployment_key = ?",
		&sqlitex.ExecOptions{
			Args: []any{deploymentKey},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				label := stmt.ColumnText(0)
				count := stmt.ColumnInt64(2)

				entry := out[label]
				switch stmt.ColumnText(1) {
				case StatusActive:
					entry.Active = count
				case StatusDownloaded:
					entry.Downloaded = count
				case StatusInstalled:
					entry.Installed = count
				case StatusFailed:
					entry.Failed = count
				}
				out[label] = entry
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("metrics: read: %w", err)
	}
	return out, nil
}

// addToCounter applies a delta to one (deployment, label, status)
// counter, creating the row at the delta value if absent. Mirrors a
// hash-field increment: a decrement of a missing counter creates it
// at -1 so that increment/decrement pairs always cancel.
func addToCounter(conn *sqlite.Conn, deploymentKey, label, status string, delta int64) error {
	err := sqlitex.Execute(conn,
		`INSERT INTO label_counters (deployment_key, label, status, count)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (deployment_key, label, status) DO UPDATE SET count = count + excluded.count`,
		&sqlitex.ExecOptions{Args: []any{deploymentKey, label, status, delta}})
	if err != nil {
		return fmt.Errorf("metrics: counter %s/%s: %w", label, status, err)
	}
	return nil
}
