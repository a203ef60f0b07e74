// Copyright 2026 The Updraft Authors
// SPDX-License-Identifier: Apache-2.0

package memstore

import (
	"context"
	"errors"
	"io/fs"
	"path/filepath"
	"testing"
	"time"

	"github.com/updraft-io/updraft/lib/clock"
	"github.com/updraft-io/updraft/lib/storage"
)

func TestSnapshotRoundTrip(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	fixture := newDeploymentFixture(t, store)
	rollout := 50
	fixture.commit(t, store, storage.Package{
		AppVersion:  "1.0.0",
		PackageHash: "h1",
		Rollout:     &rollout,
	})
	keyID, err := store.AddAccessKey(ctx, fixture.accountID, storage.AccessKey{
		FriendlyName: "ci token",
		CreatedBy:    "cli",
	})
	if err != nil {
		t.Fatalf("AddAccessKey: %v", err)
	}
	key, err := store.GetAccessKey(ctx, fixture.accountID, keyID)
	if err != nil {
		t.Fatalf("GetAccessKey: %v", err)
	}

	path := filepath.Join(t.TempDir(), "state", "snapshot.cbor.zst")
	if err := store.SaveSnapshot(path); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}

	restored := New(clock.Fake(testEpoch.Add(time.Hour)))
	if err := restored.LoadSnapshot(path); err != nil {
		t.Fatalf("LoadSnapshot: %v", err)
	}

	history, err := restored.GetPackageHistory(ctx, fixture.accountID, fixture.appID, fixture.deploymentID)
	if err != nil {
		t.Fatalf("GetPackageHistory after load: %v", err)
	}
	if len(history) != 1 || history[0].PackageHash != "h1" {
		t.Errorf("history after load = %+v", history)
	}
	if history[0].Rollout == nil || *history[0].Rollout != 50 {
		t.Errorf("rollout after load = %v, want 50", history[0].Rollout)
	}

	// Derived indexes are rebuilt, not persisted: deployment key,
	// email, and access key resolution must all work on the restored
	// store.
	info, err := restored.GetDeploymentInfo(ctx, fixture.key)
	if err != nil {
		t.Fatalf("GetDeploymentInfo after load: %v", err)
	}
	if info.DeploymentID != fixture.deploymentID {
		t.Errorf("GetDeploymentInfo = %+v", info)
	}
	account, err := restored.GetAccountByEmail(ctx, "owner@example.com")
	if err != nil {
		t.Fatalf("GetAccountByEmail after load: %v", err)
	}
	if account.ID != fixture.accountID {
		t.Errorf("GetAccountByEmail ID = %q, want %q", account.ID, fixture.accountID)
	}
	resolved, err := restored.GetAccountIDFromAccessKey(ctx, key.Name)
	if err != nil {
		t.Fatalf("GetAccountIDFromAccessKey after load: %v", err)
	}
	if resolved != fixture.accountID {
		t.Errorf("access key resolves to %q, want %q", resolved, fixture.accountID)
	}
}

func TestSnapshotPreservesLabelSequence(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	fixture := newDeploymentFixture(t, store)
	fixture.commit(t, store, storage.Package{PackageHash: "h1"})
	fixture.commit(t, store, storage.Package{PackageHash: "h2"})

	path := filepath.Join(t.TempDir(), "snapshot.cbor.zst")
	if err := store.SaveSnapshot(path); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}

	restored := New(clock.Fake(testEpoch))
	if err := restored.LoadSnapshot(path); err != nil {
		t.Fatalf("LoadSnapshot: %v", err)
	}

	committed, err := restored.CommitPackage(ctx, fixture.accountID, fixture.appID, fixture.deploymentID, storage.Package{PackageHash: "h3"})
	if err != nil {
		t.Fatalf("CommitPackage after load: %v", err)
	}
	if committed.Label != "v3" {
		t.Errorf("label after load = %q, want v3", committed.Label)
	}
}

func TestLoadSnapshotMissingFile(t *testing.T) {
	store, _ := newTestStore(t)

	err := store.LoadSnapshot(filepath.Join(t.TempDir(), "absent.cbor.zst"))
	if !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("LoadSnapshot(missing) = %v, want fs.ErrNotExist", err)
	}
}

func TestSaveSnapshotOverwritesAtomically(t *testing.T) {
	store, _ := newTestStore(t)

	fixture := newDeploymentFixture(t, store)
	path := filepath.Join(t.TempDir(), "snapshot.cbor.zst")
	if err := store.SaveSnapshot(path); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}

	fixture.commit(t, store, storage.Package{PackageHash: "h1"})
	if err := store.SaveSnapshot(path); err != nil {
		t.Fatalf("SaveSnapshot(overwrite): %v", err)
	}

	restored := New(clock.Fake(testEpoch))
	if err := restored.LoadSnapshot(path); err != nil {
		t.Fatalf("LoadSnapshot: %v", err)
	}
	history, err := restored.GetPackageHistory(context.Background(), fixture.accountID, fixture.appID, fixture.deploymentID)
	if err != nil {
		t.Fatalf("GetPackageHistory: %v", err)
	}
	if len(history) != 1 {
		t.Errorf("history length = %d, want 1 (second snapshot)", len(history))
	}
}
