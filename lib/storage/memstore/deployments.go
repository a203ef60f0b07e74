// Copyright 2026 The Updraft Authors
// SPDX-License-Identifier: Apache-2.0

package memstore

import (
	"cmp"
	"context"
	"slices"

	"github.com/updraft-io/updraft/lib/storage"
)

// AddDeployment stores a new deployment with an empty history. If the
// deployment carries no key, one is generated. Returns the deployment
// ID.
func (s *Store) AddDeployment(ctx context.Context, accountID, appID string, deployment storage.Deployment) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.appForMember(accountID, appID); err != nil {
		return "", err
	}
	if deployment.Name == "" {
		return "", storage.Errorf(storage.Invalid, "deployment name is required")
	}
	for existingID := range s.appDeployments[appID] {
		if s.deployments[existingID].deployment.Name == deployment.Name {
			return "", storage.Errorf(storage.AlreadyExists, "deployment named %q already exists", deployment.Name)
		}
	}

	if deployment.Key == "" {
		key, err := storage.GenerateKey()
		if err != nil {
			return "", storage.Errorf(storage.Other, "generating deployment key: %v", err)
		}
		deployment.Key = key
	}
	if _, taken := s.deploymentKeys[deployment.Key]; taken {
		return "", storage.Errorf(storage.AlreadyExists, "deployment key already in use")
	}

	if deployment.ID == "" {
		deployment.ID = storage.NewID()
	}
	deployment.CreatedTime = s.nowMillis()
	deployment.Package = nil

	s.deployments[deployment.ID] = &deploymentRecord{
		appID:      appID,
		deployment: deployment,
	}
	s.appDeployments[appID][deployment.ID] = true
	s.deploymentKeys[deployment.Key] = storage.DeploymentInfo{
		AppID:        appID,
		DeploymentID: deployment.ID,
	}
	return deployment.ID, nil
}

// GetDeployment returns one deployment, latest package included.
func (s *Store) GetDeployment(ctx context.Context, accountID, appID, deploymentID string) (storage.Deployment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, err := s.recordForMember(accountID, appID, deploymentID)
	if err != nil {
		return storage.Deployment{}, err
	}
	return record.deployment.Clone(), nil
}

// GetDeploymentInfo resolves a client-facing deployment key to its
// owning app and deployment IDs.
func (s *Store) GetDeploymentInfo(ctx context.Context, deploymentKey string) (storage.DeploymentInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	info, ok := s.deploymentKeys[deploymentKey]
	if !ok {
		return storage.DeploymentInfo{}, storage.Errorf(storage.NotFound, "deployment key not found")
	}
	return info, nil
}

// GetDeployments returns the app's deployments, oldest first.
func (s *Store) GetDeployments(ctx context.Context, accountID, appID string) ([]storage.Deployment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, err := s.appForMember(accountID, appID); err != nil {
		return nil, err
	}

	var deployments []storage.Deployment
	for deploymentID := range s.appDeployments[appID] {
		deployments = append(deployments, s.deployments[deploymentID].deployment.Clone())
	}
	slices.SortFunc(deployments, func(a, b storage.Deployment) int {
		if c := cmp.Compare(a.CreatedTime, b.CreatedTime); c != 0 {
			return c
		}
		return cmp.Compare(a.Name, b.Name)
	})
	return deployments, nil
}

// RemoveDeployment deletes the deployment, its history, and its key
// mapping.
func (s *Store) RemoveDeployment(ctx context.Context, accountID, appID, deploymentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.recordForMember(accountID, appID, deploymentID); err != nil {
		return err
	}
	s.removeDeploymentLocked(deploymentID)
	delete(s.appDeployments[appID], deploymentID)
	return nil
}

// removeDeploymentLocked removes a deployment record and its key
// mapping. Callers must hold s.mu and fix up appDeployments.
func (s *Store) removeDeploymentLocked(deploymentID string) {
	record, ok := s.deployments[deploymentID]
	if !ok {
		return
	}
	delete(s.deploymentKeys, record.deployment.Key)
	delete(s.deployments, deploymentID)
}

// UpdateDeployment renames a deployment. The key is immutable:
// supplying a different non-empty key fails with Invalid.
func (s *Store) UpdateDeployment(ctx context.Context, accountID, appID string, deployment storage.Deployment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, err := s.recordForMember(accountID, appID, deployment.ID)
	if err != nil {
		return err
	}
	if deployment.Key != "" && deployment.Key != record.deployment.Key {
		return storage.Errorf(storage.Invalid, "deployment keys are immutable")
	}
	if deployment.Name == "" || deployment.Name == record.deployment.Name {
		return nil
	}
	for existingID := range s.appDeployments[appID] {
		if existingID != deployment.ID && s.deployments[existingID].deployment.Name == deployment.Name {
			return storage.Errorf(storage.AlreadyExists, "deployment named %q already exists", deployment.Name)
		}
	}
	record.deployment.Name = deployment.Name
	return nil
}

// CommitPackage appends a package to the deployment's history in one
// atomic mutation: the next sequential label is assigned, the upload
// time is stamped, the previous latest package's rollout is nulled,
// and the deployment's latest pointer moves to the new entry.
func (s *Store) CommitPackage(ctx context.Context, accountID, appID, deploymentID string, pkg storage.Package) (storage.Package, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, err := s.recordForMember(accountID, appID, deploymentID)
	if err != nil {
		return storage.Package{}, err
	}

	committed := pkg.Clone()
	committed.Label = storage.Label(len(record.history) + 1)
	committed.UploadTime = s.nowMillis()

	// A rollout ends the instant a newer package is committed.
	if len(record.history) > 0 {
		record.history[len(record.history)-1].Rollout = nil
	}

	record.history = append(record.history, committed)
	latest := committed.Clone()
	record.deployment.Package = &latest

	return committed.Clone(), nil
}

// ClearPackageHistory empties the history and the latest pointer.
func (s *Store) ClearPackageHistory(ctx context.Context, accountID, appID, deploymentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, err := s.recordForMember(accountID, appID, deploymentID)
	if err != nil {
		return err
	}
	record.history = nil
	record.deployment.Package = nil
	return nil
}

// GetPackageHistory returns the history oldest first. An empty history
// is an empty slice, not an error.
func (s *Store) GetPackageHistory(ctx context.Context, accountID, appID, deploymentID string) ([]storage.Package, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, err := s.recordForMember(accountID, appID, deploymentID)
	if err != nil {
		return nil, err
	}
	return storage.ClonePackages(record.history), nil
}

// GetPackageHistoryFromDeploymentKey is the resolution-path read: it
// requires only the client-facing deployment key, no membership.
func (s *Store) GetPackageHistoryFromDeploymentKey(ctx context.Context, deploymentKey string) ([]storage.Package, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	info, ok := s.deploymentKeys[deploymentKey]
	if !ok {
		return nil, storage.Errorf(storage.NotFound, "deployment key not found")
	}
	return storage.ClonePackages(s.deployments[info.DeploymentID].history), nil
}

// UpdatePackageHistory patches the metadata of existing history
// entries in place. The incoming history must carry the same entries
// as the stored one: same length, same labels, in order. An empty
// history fails with Invalid; clearing goes through
// ClearPackageHistory.
func (s *Store) UpdatePackageHistory(ctx context.Context, accountID, appID, deploymentID string, history []storage.Package) error {
	if len(history) == 0 {
		return storage.Errorf(storage.Invalid, "updated package history cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	record, err := s.recordForMember(accountID, appID, deploymentID)
	if err != nil {
		return err
	}
	if len(history) != len(record.history) {
		return storage.Errorf(storage.Invalid, "package history length changed from %d to %d; entries are append-only", len(record.history), len(history))
	}
	for i := range history {
		if history[i].Label != record.history[i].Label {
			return storage.Errorf(storage.Invalid, "label %q at position %d changed to %q; labels are immutable", record.history[i].Label, i+1, history[i].Label)
		}
	}

	record.history = storage.ClonePackages(history)
	latest := record.history[len(record.history)-1].Clone()
	record.deployment.Package = &latest
	return nil
}
