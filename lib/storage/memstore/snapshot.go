// Copyright 2026 The Updraft Authors
// SPDX-License-Identifier: Apache-2.0

package memstore

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"

	"github.com/updraft-io/updraft/lib/codec"
	"github.com/updraft-io/updraft/lib/storage"
)

// Snapshots persist the whole store as one zstd-compressed CBOR
// document, so a development server can survive restarts without a
// real backend. Deterministic encoding means identical state produces
// identical files.

// zstdEncoder and zstdDecoder are reused across calls; both are safe
// for concurrent use.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("memstore: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("memstore: zstd decoder initialization failed: " + err.Error())
	}
}

// snapshot is the serialized form of the store. Derived indexes
// (emails, appDeployments, accessKeyNames) are rebuilt on load rather
// than stored.
type snapshot struct {
	Accounts    map[string]storage.Account              `json:"accounts"`
	Apps        map[string]storage.App                  `json:"apps"`
	Deployments map[string]snapshotDeployment           `json:"deployments"`
	AccessKeys  map[string]map[string]storage.AccessKey `json:"accessKeys"`
}

type snapshotDeployment struct {
	AppID      string             `json:"appId"`
	Deployment storage.Deployment `json:"deployment"`
	History    []storage.Package  `json:"history"`
}

// SaveSnapshot writes the store's full state to path atomically: the
// document is written to a temp file in the same directory, then
// renamed into place.
func (s *Store) SaveSnapshot(path string) error {
	s.mu.RLock()
	document := snapshot{
		Accounts:    make(map[string]storage.Account, len(s.accounts)),
		Apps:        make(map[string]storage.App, len(s.apps)),
		Deployments: make(map[string]snapshotDeployment, len(s.deployments)),
		AccessKeys:  make(map[string]map[string]storage.AccessKey, len(s.accessKeys)),
	}
	for id, account := range s.accounts {
		document.Accounts[id] = account
	}
	for id, app := range s.apps {
		document.Apps[id] = app.Clone()
	}
	for id, record := range s.deployments {
		document.Deployments[id] = snapshotDeployment{
			AppID:      record.appID,
			Deployment: record.deployment.Clone(),
			History:    storage.ClonePackages(record.history),
		}
	}
	for accountID, keys := range s.accessKeys {
		copied := make(map[string]storage.AccessKey, len(keys))
		for keyID, key := range keys {
			copied[keyID] = key
		}
		document.AccessKeys[accountID] = copied
	}
	s.mu.RUnlock()

	encoded, err := codec.Marshal(document)
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}
	compressed := zstdEncoder.EncodeAll(encoded, nil)

	directory := filepath.Dir(path)
	if err := os.MkdirAll(directory, 0o755); err != nil {
		return fmt.Errorf("creating snapshot directory: %w", err)
	}

	tmpFile, err := os.CreateTemp(directory, "snapshot-*.cbor.zst")
	if err != nil {
		return fmt.Errorf("creating temp snapshot file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(compressed); err != nil {
		tmpFile.Close()
		return fmt.Errorf("writing snapshot data: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("closing temp snapshot file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("renaming snapshot to %s: %w", path, err)
	}

	success = true
	return nil
}

// LoadSnapshot replaces the store's state with the snapshot at path
// and rebuilds the derived indexes. A missing file surfaces as an
// fs.ErrNotExist-wrapping error; callers that treat a fresh start as
// normal should check for it.
func (s *Store) LoadSnapshot(path string) error {
	compressed, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading snapshot: %w", err)
	}
	encoded, err := zstdDecoder.DecodeAll(compressed, nil)
	if err != nil {
		return fmt.Errorf("decompressing snapshot %s: %w", path, err)
	}

	var document snapshot
	if err := codec.Unmarshal(encoded, &document); err != nil {
		return fmt.Errorf("decoding snapshot %s: %w", path, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.accounts = make(map[string]storage.Account, len(document.Accounts))
	s.emails = make(map[string]string, len(document.Accounts))
	for id, account := range document.Accounts {
		s.accounts[id] = account
		s.emails[strings.ToLower(account.Email)] = id
	}

	s.apps = make(map[string]*storage.App, len(document.Apps))
	s.appDeployments = make(map[string]map[string]bool, len(document.Apps))
	for id, app := range document.Apps {
		stored := app.Clone()
		s.apps[id] = &stored
		s.appDeployments[id] = make(map[string]bool)
	}

	s.deployments = make(map[string]*deploymentRecord, len(document.Deployments))
	s.deploymentKeys = make(map[string]storage.DeploymentInfo, len(document.Deployments))
	for id, entry := range document.Deployments {
		s.deployments[id] = &deploymentRecord{
			appID:      entry.AppID,
			deployment: entry.Deployment.Clone(),
			history:    storage.ClonePackages(entry.History),
		}
		if s.appDeployments[entry.AppID] == nil {
			s.appDeployments[entry.AppID] = make(map[string]bool)
		}
		s.appDeployments[entry.AppID][id] = true
		s.deploymentKeys[entry.Deployment.Key] = storage.DeploymentInfo{
			AppID:        entry.AppID,
			DeploymentID: id,
		}
	}

	s.accessKeys = make(map[string]map[string]storage.AccessKey, len(document.AccessKeys))
	s.accessKeyNames = make(map[string]string)
	for accountID, keys := range document.AccessKeys {
		copied := make(map[string]storage.AccessKey, len(keys))
		for keyID, key := range keys {
			copied[keyID] = key
			s.accessKeyNames[key.Name] = accountID
		}
		s.accessKeys[accountID] = copied
	}

	return nil
}
