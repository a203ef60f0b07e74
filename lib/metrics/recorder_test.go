// Copyright 2026 The Updraft Authors
// SPDX-License-Identifier: Apache-2.0

package metrics

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/updraft-io/updraft/lib/storage"
)

func newTestRecorder(t *testing.T) *Recorder {
	t.Helper()

	recorder, err := Open(Config{
		Path:     filepath.Join(t.TempDir(), "metrics.db"),
		PoolSize: 2,
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() {
		if err := recorder.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return recorder
}

func readMetrics(t *testing.T, recorder *Recorder, deploymentKey string) map[string]LabelMetrics {
	t.Helper()
	out, err := recorder.Metrics(context.Background(), deploymentKey)
	if err != nil {
		t.Fatalf("Metrics: %v", err)
	}
	return out
}

func TestIncrementLabelStatus(t *testing.T) {
	recorder := newTestRecorder(t)
	ctx := context.Background()

	for range 2 {
		if err := recorder.IncrementLabelStatus(ctx, "key-1", "v1", StatusDownloaded); err != nil {
			t.Fatalf("IncrementLabelStatus: %v", err)
		}
	}
	if err := recorder.IncrementLabelStatus(ctx, "key-1", "v1", StatusFailed); err != nil {
		t.Fatalf("IncrementLabelStatus: %v", err)
	}

	got := readMetrics(t, recorder, "key-1")
	if got["v1"].Downloaded != 2 {
		t.Errorf("Downloaded = %d, want 2", got["v1"].Downloaded)
	}
	if got["v1"].Failed != 1 {
		t.Errorf("Failed = %d, want 1", got["v1"].Failed)
	}
}

func TestIncrementLabelStatusRejectsNonReportable(t *testing.T) {
	recorder := newTestRecorder(t)
	ctx := context.Background()

	// Active is derived; clients cannot report it directly.
	err := recorder.IncrementLabelStatus(ctx, "key-1", "v1", StatusActive)
	if !storage.IsCode(err, storage.Invalid) {
		t.Errorf("IncrementLabelStatus(Active) = %v, want Invalid", err)
	}
	err = recorder.IncrementLabelStatus(ctx, "key-1", "v1", "Bogus")
	if !storage.IsCode(err, storage.Invalid) {
		t.Errorf("IncrementLabelStatus(Bogus) = %v, want Invalid", err)
	}
	err = recorder.IncrementLabelStatus(ctx, "key-1", "", StatusFailed)
	if !storage.IsCode(err, storage.Invalid) {
		t.Errorf("IncrementLabelStatus(no label) = %v, want Invalid", err)
	}
}

func TestRecordUpdateFirstInstall(t *testing.T) {
	recorder := newTestRecorder(t)

	if err := recorder.RecordUpdate(context.Background(), "key-1", "v1", "", ""); err != nil {
		t.Fatalf("RecordUpdate: %v", err)
	}

	got := readMetrics(t, recorder, "key-1")
	if got["v1"].Active != 1 || got["v1"].Installed != 1 {
		t.Errorf("v1 = %+v, want Active 1, Installed 1", got["v1"])
	}
}

func TestRecordUpdateMigratesActive(t *testing.T) {
	recorder := newTestRecorder(t)
	ctx := context.Background()

	if err := recorder.RecordUpdate(ctx, "key-1", "v1", "", ""); err != nil {
		t.Fatalf("RecordUpdate(v1): %v", err)
	}
	if err := recorder.RecordUpdate(ctx, "key-1", "v2", "key-1", "v1"); err != nil {
		t.Fatalf("RecordUpdate(v2): %v", err)
	}

	got := readMetrics(t, recorder, "key-1")
	if got["v1"].Active != 0 {
		t.Errorf("v1 Active = %d, want 0 after migration", got["v1"].Active)
	}
	if got["v1"].Installed != 1 {
		t.Errorf("v1 Installed = %d, want 1 (migration keeps install history)", got["v1"].Installed)
	}
	if got["v2"].Active != 1 || got["v2"].Installed != 1 {
		t.Errorf("v2 = %+v, want Active 1, Installed 1", got["v2"])
	}
}

func TestRecordUpdateMigratesAcrossDeployments(t *testing.T) {
	recorder := newTestRecorder(t)
	ctx := context.Background()

	// A device on Staging v3 moves to Production v1.
	if err := recorder.RecordUpdate(ctx, "staging-key", "v3", "", ""); err != nil {
		t.Fatalf("RecordUpdate(staging): %v", err)
	}
	if err := recorder.RecordUpdate(ctx, "production-key", "v1", "staging-key", "v3"); err != nil {
		t.Fatalf("RecordUpdate(production): %v", err)
	}

	staging := readMetrics(t, recorder, "staging-key")
	if staging["v3"].Active != 0 {
		t.Errorf("staging v3 Active = %d, want 0", staging["v3"].Active)
	}
	production := readMetrics(t, recorder, "production-key")
	if production["v1"].Active != 1 {
		t.Errorf("production v1 Active = %d, want 1", production["v1"].Active)
	}
}

func TestRecordClientUpdateDedupes(t *testing.T) {
	recorder := newTestRecorder(t)
	ctx := context.Background()

	for range 3 {
		if err := recorder.RecordClientUpdate(ctx, "key-1", "client-a", "v1"); err != nil {
			t.Fatalf("RecordClientUpdate: %v", err)
		}
	}

	got := readMetrics(t, recorder, "key-1")
	if got["v1"].Active != 1 || got["v1"].Installed != 1 {
		t.Errorf("v1 = %+v, want Active 1, Installed 1 after re-reports", got["v1"])
	}
}

func TestRecordClientUpdateMigratesWithinDeployment(t *testing.T) {
	recorder := newTestRecorder(t)
	ctx := context.Background()

	if err := recorder.RecordClientUpdate(ctx, "key-1", "client-a", "v1"); err != nil {
		t.Fatalf("RecordClientUpdate(v1): %v", err)
	}
	if err := recorder.RecordClientUpdate(ctx, "key-1", "client-a", "v2"); err != nil {
		t.Fatalf("RecordClientUpdate(v2): %v", err)
	}

	got := readMetrics(t, recorder, "key-1")
	if got["v1"].Active != 0 {
		t.Errorf("v1 Active = %d, want 0", got["v1"].Active)
	}
	if got["v2"].Active != 1 {
		t.Errorf("v2 Active = %d, want 1", got["v2"].Active)
	}

	// Separate clients count independently.
	if err := recorder.RecordClientUpdate(ctx, "key-1", "client-b", "v2"); err != nil {
		t.Fatalf("RecordClientUpdate(client-b): %v", err)
	}
	got = readMetrics(t, recorder, "key-1")
	if got["v2"].Active != 2 {
		t.Errorf("v2 Active = %d, want 2", got["v2"].Active)
	}
}

func TestClearMetrics(t *testing.T) {
	recorder := newTestRecorder(t)
	ctx := context.Background()

	if err := recorder.RecordClientUpdate(ctx, "key-1", "client-a", "v1"); err != nil {
		t.Fatalf("RecordClientUpdate: %v", err)
	}
	if err := recorder.IncrementLabelStatus(ctx, "key-1", "v1", StatusDownloaded); err != nil {
		t.Fatalf("IncrementLabelStatus: %v", err)
	}
	if err := recorder.RecordClientUpdate(ctx, "key-2", "client-a", "v5"); err != nil {
		t.Fatalf("RecordClientUpdate(key-2): %v", err)
	}

	if err := recorder.ClearMetrics(ctx, "key-1"); err != nil {
		t.Fatalf("ClearMetrics: %v", err)
	}

	if got := readMetrics(t, recorder, "key-1"); len(got) != 0 {
		t.Errorf("metrics after clear = %v, want empty", got)
	}

	// Other deployments are untouched.
	if got := readMetrics(t, recorder, "key-2"); got["v5"].Active != 1 {
		t.Errorf("key-2 v5 Active = %d, want 1", got["v5"].Active)
	}

	// The client's dedupe state is gone too: re-reporting counts again.
	if err := recorder.RecordClientUpdate(ctx, "key-1", "client-a", "v1"); err != nil {
		t.Fatalf("RecordClientUpdate after clear: %v", err)
	}
	if got := readMetrics(t, recorder, "key-1"); got["v1"].Active != 1 {
		t.Errorf("v1 Active after clear and re-report = %d, want 1", got["v1"].Active)
	}
}

func TestNilRecorderIsNoOp(t *testing.T) {
	var recorder *Recorder
	ctx := context.Background()

	if err := recorder.IncrementLabelStatus(ctx, "key", "v1", StatusFailed); err != nil {
		t.Errorf("IncrementLabelStatus on nil = %v", err)
	}
	if err := recorder.RecordUpdate(ctx, "key", "v1", "", ""); err != nil {
		t.Errorf("RecordUpdate on nil = %v", err)
	}
	if err := recorder.RecordClientUpdate(ctx, "key", "client", "v1"); err != nil {
		t.Errorf("RecordClientUpdate on nil = %v", err)
	}
	if err := recorder.ClearMetrics(ctx, "key"); err != nil {
		t.Errorf("ClearMetrics on nil = %v", err)
	}
	if err := recorder.CheckHealth(ctx); err != nil {
		t.Errorf("CheckHealth on nil = %v", err)
	}
	if err := recorder.Close(); err != nil {
		t.Errorf("Close on nil = %v", err)
	}
	got, err := recorder.Metrics(ctx, "key")
	if err != nil || len(got) != 0 {
		t.Errorf("Metrics on nil = (%v, %v), want empty map", got, err)
	}
}

func TestCheckHealth(t *testing.T) {
	recorder := newTestRecorder(t)
	if err := recorder.CheckHealth(context.Background()); err != nil {
		t.Errorf("CheckHealth = %v", err)
	}
}
