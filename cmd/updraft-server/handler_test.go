// Copyright 2026 The Updraft Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/updraft-io/updraft/lib/clock"
	"github.com/updraft-io/updraft/lib/metrics"
	"github.com/updraft-io/updraft/lib/resolve"
	"github.com/updraft-io/updraft/lib/storage"
	"github.com/updraft-io/updraft/lib/storage/memstore"
	"github.com/updraft-io/updraft/lib/testutil"
)

// serverFixture wires the acquisition handler to an in-memory store
// and a real SQLite-backed recorder, the same composition main builds.
type serverFixture struct {
	store        *memstore.Store
	recorder     *metrics.Recorder
	mux          *http.ServeMux
	accountID    string
	appID        string
	deploymentID string
	key          string
}

func newServerFixture(t *testing.T) *serverFixture {
	t.Helper()
	ctx := context.Background()

	store := memstore.New(clock.Fake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)))
	accountID, err := store.AddAccount(ctx, storage.Account{Email: "dev@example.com", Name: "Dev"})
	if err != nil {
		t.Fatalf("AddAccount: %v", err)
	}
	app, err := store.AddApp(ctx, accountID, storage.App{Name: "demo"})
	if err != nil {
		t.Fatalf("AddApp: %v", err)
	}
	deploymentID, err := store.AddDeployment(ctx, accountID, app.ID, storage.Deployment{Name: "Production"})
	if err != nil {
		t.Fatalf("AddDeployment: %v", err)
	}
	deployment, err := store.GetDeployment(ctx, accountID, app.ID, deploymentID)
	if err != nil {
		t.Fatalf("GetDeployment: %v", err)
	}

	recorder, err := metrics.Open(metrics.Config{Path: filepath.Join(t.TempDir(), "metrics.db")})
	if err != nil {
		t.Fatalf("metrics.Open: %v", err)
	}
	t.Cleanup(func() {
		if err := recorder.Close(); err != nil {
			t.Errorf("closing recorder: %v", err)
		}
	})

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	handler := NewHandler(store, recorder, logger)

	return &serverFixture{
		store:        store,
		recorder:     recorder,
		mux:          handler.Routes(),
		accountID:    accountID,
		appID:        app.ID,
		deploymentID: deploymentID,
		key:          deployment.Key,
	}
}

func (f *serverFixture) commit(t *testing.T, pkg storage.Package) storage.Package {
	t.Helper()
	committed, err := f.store.CommitPackage(context.Background(), f.accountID, f.appID, f.deploymentID, pkg)
	if err != nil {
		t.Fatalf("CommitPackage(%s): %v", pkg.PackageHash, err)
	}
	return committed
}

func (f *serverFixture) get(t *testing.T, target string) *httptest.ResponseRecorder {
	t.Helper()
	request := httptest.NewRequest(http.MethodGet, target, nil)
	recorder := httptest.NewRecorder()
	f.mux.ServeHTTP(recorder, request)
	return recorder
}

func (f *serverFixture) post(t *testing.T, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	request := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
	request.Header.Set("Content-Type", "application/json")
	recorder := httptest.NewRecorder()
	f.mux.ServeHTTP(recorder, request)
	return recorder
}

// updateCheck performs a successful update check and returns the
// decoded updateInfo payload. Params default the fixture's key.
func (f *serverFixture) updateCheck(t *testing.T, params url.Values) resolve.Result {
	t.Helper()
	if params.Get("deploymentKey") == "" {
		params.Set("deploymentKey", f.key)
	}
	response := f.get(t, "/updateCheck?"+params.Encode())
	if response.Code != http.StatusOK {
		t.Fatalf("updateCheck status = %d, body %s", response.Code, response.Body)
	}
	var envelope updateCheckResponse
	if err := json.Unmarshal(response.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decoding updateCheck response: %v", err)
	}
	return envelope.UpdateInfo
}

// counters reads a label's adoption counters through the recorder.
func (f *serverFixture) counters(t *testing.T, label string) metrics.LabelMetrics {
	t.Helper()
	all, err := f.recorder.Metrics(context.Background(), f.key)
	if err != nil {
		t.Fatalf("Metrics: %v", err)
	}
	return all[label]
}

// --- update checks ---

func TestUpdateCheckValidation(t *testing.T) {
	f := newServerFixture(t)

	tests := []struct {
		name   string
		target string
	}{
		{"missing_deployment_key", "/updateCheck?appVersion=1.0.0"},
		{"missing_app_version", "/updateCheck?deploymentKey=" + f.key},
		{"non_semver_app_version", "/updateCheck?deploymentKey=" + f.key + "&appVersion=not-a-version"},
		{"key_with_bad_characters", "/updateCheck?deploymentKey=key%20with%20spaces&appVersion=1.0.0"},
		{"malformed_query_encoding", "/updateCheck?deploymentKey=%zz&appVersion=1.0.0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			response := f.get(t, tt.target)
			if response.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want %d (body %s)", response.Code, http.StatusBadRequest, response.Body)
			}
		})
	}
}

func TestUpdateCheckUnknownKey(t *testing.T) {
	f := newServerFixture(t)

	response := f.get(t, "/updateCheck?deploymentKey=no-such-key&appVersion=1.0.0")
	if response.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", response.Code, http.StatusNotFound)
	}
	var body map[string]string
	if err := json.Unmarshal(response.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding error body: %v", err)
	}
	if body["error"] == "" {
		t.Error("error body is empty, want a message")
	}
}

func TestUpdateCheckOffersUpdate(t *testing.T) {
	f := newServerFixture(t)
	f.commit(t, storage.Package{
		AppVersion:  "1.x",
		PackageHash: "h1",
		BlobURL:     "https://cdn.example.com/p1",
		Size:        100,
		Description: "first",
	})

	got := f.updateCheck(t, url.Values{"appVersion": {"1.4.0"}})
	want := resolve.Result{
		IsAvailable: true,
		AppVersion:  "1.x",
		Description: "first",
		DownloadURL: "https://cdn.example.com/p1",
		Label:       "v1",
		PackageHash: "h1",
		PackageSize: 100,
	}
	if got != want {
		t.Errorf("updateCheck = %+v, want %+v", got, want)
	}
}

func TestUpdateCheckNormalizesAppVersion(t *testing.T) {
	f := newServerFixture(t)
	f.commit(t, storage.Package{AppVersion: "1.0.0", PackageHash: "h1", BlobURL: "https://cdn.example.com/p1"})

	// Devices on loose version strings still match exact targets.
	got := f.updateCheck(t, url.Values{"appVersion": {"1"}})
	if !got.IsAvailable || got.Label != "v1" {
		t.Errorf("updateCheck with appVersion \"1\" = %+v, want v1 available", got)
	}
}

func TestUpdateCheckAlreadyCurrent(t *testing.T) {
	f := newServerFixture(t)
	f.commit(t, storage.Package{AppVersion: "1.x", PackageHash: "h1", BlobURL: "https://cdn.example.com/p1"})

	got := f.updateCheck(t, url.Values{
		"appVersion":  {"1.0.0"},
		"packageHash": {"h1"},
		"label":       {"v1"},
	})
	if got.IsAvailable {
		t.Errorf("updateCheck = %+v, want no update for current package", got)
	}
}

func TestUpdateCheckCompanionIgnoresVersionFilter(t *testing.T) {
	f := newServerFixture(t)
	f.commit(t, storage.Package{AppVersion: "2.x", PackageHash: "h1", BlobURL: "https://cdn.example.com/p1"})

	got := f.updateCheck(t, url.Values{
		"appVersion":  {"1.0.0"},
		"isCompanion": {"true"},
	})
	if !got.IsAvailable || got.Label != "v1" {
		t.Errorf("companion updateCheck = %+v, want v1 available", got)
	}
}

// --- deploy reports ---

func TestDeployReportValidation(t *testing.T) {
	f := newServerFixture(t)

	tests := []struct {
		name string
		body string
	}{
		{"empty_body", `{}`},
		{"not_json", `{{{`},
		{"missing_status", fmt.Sprintf(`{"deploymentKey":%q,"label":"v1"}`, f.key)},
		{"missing_label_and_app_version", fmt.Sprintf(`{"deploymentKey":%q,"status":"DeploymentFailed"}`, f.key)},
		{"unrecognized_status", fmt.Sprintf(`{"deploymentKey":%q,"label":"v1","status":"Sideways"}`, f.key)},
		{"success_without_attribution", fmt.Sprintf(`{"deploymentKey":%q,"label":"v1","status":"DeploymentSucceeded"}`, f.key)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			response := f.post(t, "/reportStatus/deploy", tt.body)
			if response.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want %d (body %s)", response.Code, http.StatusBadRequest, response.Body)
			}
		})
	}
}

func TestDeployReportFailureCounts(t *testing.T) {
	f := newServerFixture(t)

	body := fmt.Sprintf(`{"deploymentKey":%q,"label":"v1","status":"DeploymentFailed"}`, f.key)
	if response := f.post(t, "/reportStatus/deploy", body); response.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", response.Code, response.Body)
	}

	if got := f.counters(t, "v1"); got.Failed != 1 {
		t.Errorf("v1 counters = %+v, want Failed 1", got)
	}
}

func TestDeployReportSuccessMovesActivePointer(t *testing.T) {
	f := newServerFixture(t)
	device := testutil.UniqueID("device")

	// First install reports through the per-client flow: the device
	// knows its ID but has no previous label to hand back.
	install := fmt.Sprintf(`{"deploymentKey":%q,"clientUniqueId":%q,"label":"v1","status":"DeploymentSucceeded"}`, f.key, device)
	if response := f.post(t, "/reportStatus/deploy", install); response.Code != http.StatusOK {
		t.Fatalf("install status = %d, body %s", response.Code, response.Body)
	}

	// The next update hands back the previous label. The previous
	// deployment key is omitted: same deployment.
	upgrade := fmt.Sprintf(`{"deploymentKey":%q,"label":"v2","previousLabelOrAppVersion":"v1","status":"DeploymentSucceeded"}`, f.key)
	if response := f.post(t, "/reportStatus/deploy", upgrade); response.Code != http.StatusOK {
		t.Fatalf("upgrade status = %d, body %s", response.Code, response.Body)
	}

	if got := f.counters(t, "v1"); got.Active != 0 || got.Installed != 1 {
		t.Errorf("v1 counters = %+v, want Active 0 Installed 1", got)
	}
	if got := f.counters(t, "v2"); got.Active != 1 || got.Installed != 1 {
		t.Errorf("v2 counters = %+v, want Active 1 Installed 1", got)
	}
}

func TestDeployReportLegacyClientDedupes(t *testing.T) {
	f := newServerFixture(t)
	device := testutil.UniqueID("device")

	body := fmt.Sprintf(`{"deploymentKey":%q,"clientUniqueId":%q,"label":"v1","status":"DeploymentSucceeded"}`, f.key, device)
	for i := 0; i < 3; i++ {
		if response := f.post(t, "/reportStatus/deploy", body); response.Code != http.StatusOK {
			t.Fatalf("report %d status = %d, body %s", i, response.Code, response.Body)
		}
	}

	if got := f.counters(t, "v1"); got.Active != 1 || got.Installed != 1 {
		t.Errorf("v1 counters after repeat reports = %+v, want Active 1 Installed 1", got)
	}
}

func TestDeployReportBinaryVersionAttribution(t *testing.T) {
	f := newServerFixture(t)

	// No label: the device runs the binary's bundled package and
	// reports its binary version instead.
	body := fmt.Sprintf(`{"deploymentKey":%q,"appVersion":"1.2.3","status":"DeploymentFailed"}`, f.key)
	if response := f.post(t, "/reportStatus/deploy", body); response.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", response.Code, response.Body)
	}

	if got := f.counters(t, "1.2.3"); got.Failed != 1 {
		t.Errorf("1.2.3 counters = %+v, want Failed 1", got)
	}
}

// --- download reports ---

func TestDownloadReportCounts(t *testing.T) {
	f := newServerFixture(t)

	body := fmt.Sprintf(`{"deploymentKey":%q,"label":"v1"}`, f.key)
	if response := f.post(t, "/reportStatus/download", body); response.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", response.Code, response.Body)
	}

	if got := f.counters(t, "v1"); got.Downloaded != 1 {
		t.Errorf("v1 counters = %+v, want Downloaded 1", got)
	}
}

func TestDownloadReportValidation(t *testing.T) {
	f := newServerFixture(t)

	tests := []struct {
		name string
		body string
	}{
		{"missing_deployment_key", `{"label":"v1"}`},
		{"missing_label", fmt.Sprintf(`{"deploymentKey":%q}`, f.key)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			response := f.post(t, "/reportStatus/download", tt.body)
			if response.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want %d", response.Code, http.StatusBadRequest)
			}
		})
	}
}

// --- disabled metrics ---

func TestStatusReportsAcceptedWithoutRecorder(t *testing.T) {
	f := newServerFixture(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	mux := NewHandler(f.store, nil, logger).Routes()

	deploy := fmt.Sprintf(`{"deploymentKey":%q,"label":"v1","previousLabelOrAppVersion":"v0","status":"DeploymentSucceeded"}`, f.key)
	download := fmt.Sprintf(`{"deploymentKey":%q,"label":"v1"}`, f.key)

	for _, report := range []struct{ target, body string }{
		{"/reportStatus/deploy", deploy},
		{"/reportStatus/download", download},
	} {
		request := httptest.NewRequest(http.MethodPost, report.target, strings.NewReader(report.body))
		recorder := httptest.NewRecorder()
		mux.ServeHTTP(recorder, request)
		if recorder.Code != http.StatusOK {
			t.Errorf("POST %s status = %d, want %d (body %s)", report.target, recorder.Code, http.StatusOK, recorder.Body)
		}
	}
}

// --- method enforcement ---

func TestRoutesEnforceMethods(t *testing.T) {
	f := newServerFixture(t)

	tests := []struct {
		method string
		target string
	}{
		{http.MethodPost, "/updateCheck"},
		{http.MethodGet, "/reportStatus/deploy"},
		{http.MethodGet, "/reportStatus/download"},
	}

	for _, tt := range tests {
		t.Run(tt.method+"_"+strings.TrimPrefix(tt.target, "/"), func(t *testing.T) {
			request := httptest.NewRequest(tt.method, tt.target, nil)
			recorder := httptest.NewRecorder()
			f.mux.ServeHTTP(recorder, request)
			if recorder.Code != http.StatusMethodNotAllowed {
				t.Errorf("status = %d, want %d", recorder.Code, http.StatusMethodNotAllowed)
			}
		})
	}
}

// --- health ---

func TestHealth(t *testing.T) {
	f := newServerFixture(t)

	response := f.get(t, "/health")
	if response.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", response.Code, response.Body)
	}
	var body map[string]string
	if err := json.Unmarshal(response.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding health body: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("health body = %v, want status ok", body)
	}
}

func TestHealthReportsUnhealthyMetrics(t *testing.T) {
	store := memstore.New(clock.Fake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)))
	recorder, err := metrics.Open(metrics.Config{Path: filepath.Join(t.TempDir(), "metrics.db")})
	if err != nil {
		t.Fatalf("metrics.Open: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	mux := NewHandler(store, recorder, logger).Routes()

	// A closed pool is the closest stand-in for an unreachable
	// counters store.
	if err := recorder.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	request := httptest.NewRequest(http.MethodGet, "/health", nil)
	response := httptest.NewRecorder()
	mux.ServeHTTP(response, request)
	if response.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", response.Code, http.StatusServiceUnavailable)
	}
}
