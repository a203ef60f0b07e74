// Copyright 2026 The Updraft Authors
// SPDX-License-Identifier: Apache-2.0

package memstore

import (
	"cmp"
	"context"
	"slices"

	"github.com/updraft-io/updraft/lib/storage"
)

// AddApp stores a new app owned by accountID. Whatever collaborator
// map the caller supplies is replaced by a single owner entry for the
// creating account; members join through AddCollaborator.
func (s *Store) AddApp(ctx context.Context, accountID string, app storage.App) (storage.App, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	owner, ok := s.accounts[accountID]
	if !ok {
		return storage.App{}, storage.Errorf(storage.NotFound, "account %q not found", accountID)
	}
	if app.Name == "" {
		return storage.App{}, storage.Errorf(storage.Invalid, "app name is required")
	}
	if err := s.appNameAvailableLocked(accountID, app.Name, ""); err != nil {
		return storage.App{}, err
	}

	if app.ID == "" {
		app.ID = storage.NewID()
	}
	app.CreatedTime = s.nowMillis()
	app.Collaborators = storage.CollaboratorMap{
		owner.Email: {AccountID: accountID, Permission: storage.PermissionOwner},
	}

	stored := app.Clone()
	s.apps[app.ID] = &stored
	s.appDeployments[app.ID] = make(map[string]bool)
	return annotate(stored, accountID), nil
}

// appNameAvailableLocked checks the per-member uniqueness constraint
// on app names. excludeAppID skips the app being renamed.
func (s *Store) appNameAvailableLocked(accountID, name, excludeAppID string) error {
	for id, app := range s.apps {
		if id == excludeAppID || !isMember(app.Collaborators, accountID) {
			continue
		}
		if app.Name == name {
			return storage.Errorf(storage.AlreadyExists, "app named %q already exists", name)
		}
	}
	return nil
}

// GetApps returns every app the account collaborates on, oldest first.
// Names are unique per owner but not across owners, so a collaborator
// on two apps that share a name sees the foreign ones qualified as
// "ownerEmail:name"; the caller's own apps always keep their plain
// name.
func (s *Store) GetApps(ctx context.Context, accountID string) ([]storage.App, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.accounts[accountID]; !ok {
		return nil, storage.Errorf(storage.NotFound, "account %q not found", accountID)
	}

	var apps []storage.App
	for _, app := range s.apps {
		if isMember(app.Collaborators, accountID) {
			apps = append(apps, annotate(*app, accountID))
		}
	}
	slices.SortFunc(apps, func(a, b storage.App) int {
		if c := cmp.Compare(a.CreatedTime, b.CreatedTime); c != 0 {
			return c
		}
		return cmp.Compare(a.Name, b.Name)
	})

	nameCounts := make(map[string]int, len(apps))
	for _, app := range apps {
		nameCounts[app.Name]++
	}
	for i := range apps {
		if nameCounts[apps[i].Name] < 2 {
			continue
		}
		owner := ownerEmail(apps[i].Collaborators)
		if owner != "" && !apps[i].Collaborators[owner].IsCurrentAccount {
			apps[i].Name = owner + ":" + apps[i].Name
		}
	}
	return apps, nil
}

// GetApp returns one app the account collaborates on.
func (s *Store) GetApp(ctx context.Context, accountID, appID string) (storage.App, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	app, err := s.appForMember(accountID, appID)
	if err != nil {
		return storage.App{}, err
	}
	return annotate(*app, accountID), nil
}

// RemoveApp deletes the app and cascades to its deployments, their
// histories, and their key mappings.
func (s *Store) RemoveApp(ctx context.Context, accountID, appID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.appForMember(accountID, appID); err != nil {
		return err
	}

	for deploymentID := range s.appDeployments[appID] {
		s.removeDeploymentLocked(deploymentID)
	}
	delete(s.appDeployments, appID)
	delete(s.apps, appID)
	return nil
}

// TransferApp makes the account registered under email the owner. The
// previous owner stays on as a collaborator.
func (s *Store) TransferApp(ctx context.Context, accountID, appID, email string) error {
	if err := storage.ValidateCollaboratorEmail(email); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	app, err := s.appForMember(accountID, appID)
	if err != nil {
		return err
	}
	target, err := s.accountByEmailLocked(email)
	if err != nil {
		return err
	}

	currentOwner := ownerEmail(app.Collaborators)
	if storage.EmailsEqual(currentOwner, target.Email) {
		return storage.Errorf(storage.AlreadyExists, "account %q already owns this app", email)
	}

	properties := app.Collaborators[currentOwner]
	properties.Permission = storage.PermissionCollaborator
	app.Collaborators[currentOwner] = properties

	// The target may or may not already be a collaborator; keyed by
	// the stored account email either way.
	s.removeCollaboratorEntryLocked(app, target.Email)
	app.Collaborators[target.Email] = storage.CollaboratorProperties{
		AccountID:  target.ID,
		Permission: storage.PermissionOwner,
	}
	return nil
}

// UpdateApp renames an app. Collaborator changes go through the
// dedicated collaborator operations.
func (s *Store) UpdateApp(ctx context.Context, accountID string, app storage.App) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, err := s.appForMember(accountID, app.ID)
	if err != nil {
		return err
	}
	if app.Name == "" || app.Name == stored.Name {
		return nil
	}
	if err := s.appNameAvailableLocked(accountID, app.Name, app.ID); err != nil {
		return err
	}
	stored.Name = app.Name
	return nil
}

// AddCollaborator adds the account registered under email as a
// collaborator.
func (s *Store) AddCollaborator(ctx context.Context, accountID, appID, email string) error {
	if err := storage.ValidateCollaboratorEmail(email); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	app, err := s.appForMember(accountID, appID)
	if err != nil {
		return err
	}
	target, err := s.accountByEmailLocked(email)
	if err != nil {
		return err
	}
	for existing := range app.Collaborators {
		if storage.EmailsEqual(existing, target.Email) {
			return storage.Errorf(storage.AlreadyExists, "%q is already a collaborator", email)
		}
	}
	app.Collaborators[target.Email] = storage.CollaboratorProperties{
		AccountID:  target.ID,
		Permission: storage.PermissionCollaborator,
	}
	return nil
}

// GetCollaborators returns the app's collaborator map.
func (s *Store) GetCollaborators(ctx context.Context, accountID, appID string) (storage.CollaboratorMap, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	app, err := s.appForMember(accountID, appID)
	if err != nil {
		return nil, err
	}
	return annotate(*app, accountID).Collaborators, nil
}

// RemoveCollaborator removes a collaborator. The owner cannot be
// removed; transfer ownership first.
func (s *Store) RemoveCollaborator(ctx context.Context, accountID, appID, email string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	app, err := s.appForMember(accountID, appID)
	if err != nil {
		return err
	}
	for existing, properties := range app.Collaborators {
		if !storage.EmailsEqual(existing, email) {
			continue
		}
		if properties.Permission == storage.PermissionOwner {
			return storage.Errorf(storage.Invalid, "cannot remove the app owner")
		}
		delete(app.Collaborators, existing)
		return nil
	}
	return storage.Errorf(storage.NotFound, "collaborator %q not found", email)
}

// removeCollaboratorEntryLocked drops any entry keyed by an email
// equal to the given one, regardless of permission.
func (s *Store) removeCollaboratorEntryLocked(app *storage.App, email string) {
	for existing := range app.Collaborators {
		if storage.EmailsEqual(existing, email) {
			delete(app.Collaborators, existing)
		}
	}
}
