// Copyright 2026 The Updraft Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/updraft-io/updraft/lib/appversion"
	"github.com/updraft-io/updraft/lib/metrics"
	"github.com/updraft-io/updraft/lib/resolve"
	"github.com/updraft-io/updraft/lib/storage"
)

// Maximum request body size (4KB is plenty for a status report)
const maxRequestBodySize = 4 * 1024

// Deployment keys are opaque tokens minted at deployment creation.
// Rejecting anything outside their alphabet up front keeps garbage
// out of storage lookups and counter names.
var validDeploymentKey = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// Deployment outcomes as client SDKs report them. The recorder tracks
// successes as Installed/Active and failures as Failed.
const (
	statusDeploymentSucceeded = "DeploymentSucceeded"
	statusDeploymentFailed    = "DeploymentFailed"
)

// Handler serves the acquisition API: update checks from client
// devices, plus the download and deployment reports those devices
// send afterwards.
type Handler struct {
	store    storage.Storage
	resolver *resolve.Resolver
	recorder *metrics.Recorder
	logger   *slog.Logger
}

// NewHandler creates a new request handler. A nil recorder disables
// metrics: status reports are accepted and discarded.
func NewHandler(store storage.Storage, recorder *metrics.Recorder, logger *slog.Logger) *Handler {
	if store == nil {
		panic("updraft-server: NewHandler requires a store")
	}
	if logger == nil {
		panic("updraft-server: NewHandler requires a logger")
	}
	return &Handler{
		store:    store,
		resolver: resolve.NewResolver(store),
		recorder: recorder,
		logger:   logger,
	}
}

// Routes returns the acquisition API routing table.
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /updateCheck", h.HandleUpdateCheck)
	mux.HandleFunc("POST /reportStatus/deploy", h.HandleDeployReport)
	mux.HandleFunc("POST /reportStatus/download", h.HandleDownloadReport)
	mux.HandleFunc("GET /health", h.HandleHealth)
	return mux
}

// updateCheckResponse wraps the update decision the way client SDKs
// expect it on the wire.
type updateCheckResponse struct {
	UpdateInfo resolve.Result `json:"updateInfo"`
}

// HandleUpdateCheck answers a polling device: given its deployment
// key, binary version, and installed package, decide whether to offer
// an update and which artifact to serve.
func (h *Handler) HandleUpdateCheck(w http.ResponseWriter, r *http.Request) {
	query, err := url.ParseQuery(r.URL.RawQuery)
	if err != nil {
		h.sendError(w, http.StatusBadRequest, "malformed query string: %v", err)
		return
	}

	deploymentKey := strings.TrimSpace(query.Get("deploymentKey"))
	if deploymentKey == "" {
		h.sendError(w, http.StatusBadRequest, "deploymentKey is required")
		return
	}
	if !validDeploymentKey.MatchString(deploymentKey) {
		h.sendError(w, http.StatusBadRequest, "invalid deploymentKey")
		return
	}

	appVersion := strings.TrimSpace(query.Get("appVersion"))
	if appVersion == "" {
		h.sendError(w, http.StatusBadRequest, "appVersion is required")
		return
	}
	// Devices report loose versions ("1", "1.2"); canonicalize before
	// the resolver compares them against release target ranges.
	normalized, err := appversion.Normalize(appVersion)
	if err != nil {
		h.sendError(w, http.StatusBadRequest, "invalid appVersion %q", appVersion)
		return
	}

	result, err := h.resolver.Resolve(r.Context(), resolve.Request{
		DeploymentKey:  deploymentKey,
		AppVersion:     normalized,
		PackageHash:    query.Get("packageHash"),
		Label:          query.Get("label"),
		ClientUniqueID: query.Get("clientUniqueId"),
		IsCompanion:    strings.EqualFold(query.Get("isCompanion"), "true"),
	})
	if err != nil {
		h.logger.Warn("update check failed", "deploymentKey", deploymentKey, "error", err)
		h.sendError(w, httpStatus(err), "%v", err)
		return
	}

	h.writeJSON(w, updateCheckResponse{UpdateInfo: result})
}

// statusReport is the body of both status-report endpoints. Deploy
// reports use the full shape; download reports carry only the
// deployment key and label.
type statusReport struct {
	DeploymentKey             string `json:"deploymentKey"`
	AppVersion                string `json:"appVersion"`
	Label                     string `json:"label"`
	Status                    string `json:"status"`
	ClientUniqueID            string `json:"clientUniqueId"`
	PreviousDeploymentKey     string `json:"previousDeploymentKey"`
	PreviousLabelOrAppVersion string `json:"previousLabelOrAppVersion"`
}

// HandleDeployReport records the outcome of an update a device
// previously downloaded. Success moves the device's active-install
// pointer; failure bumps the label's failure counter — the signal
// rollback decisions are made on.
func (h *Handler) HandleDeployReport(w http.ResponseWriter, r *http.Request) {
	report, ok := h.decodeReport(w, r)
	if !ok {
		return
	}

	// Devices running the binary's bundled package have no label yet
	// and report their binary version instead.
	label := report.Label
	if label == "" {
		label = report.AppVersion
	}
	if label == "" {
		h.sendError(w, http.StatusBadRequest, "label or appVersion is required")
		return
	}

	ctx := r.Context()
	var err error
	switch report.Status {
	case statusDeploymentSucceeded:
		switch {
		case report.PreviousLabelOrAppVersion != "":
			// Older SDKs omit previousDeploymentKey when the device
			// stayed in the same deployment.
			previousKey := report.PreviousDeploymentKey
			if previousKey == "" {
				previousKey = report.DeploymentKey
			}
			err = h.recorder.RecordUpdate(ctx, report.DeploymentKey, label, previousKey, report.PreviousLabelOrAppVersion)
		case report.ClientUniqueID != "":
			err = h.recorder.RecordClientUpdate(ctx, report.DeploymentKey, report.ClientUniqueID, label)
		default:
			h.sendError(w, http.StatusBadRequest, "previousLabelOrAppVersion or clientUniqueId is required")
			return
		}
	case statusDeploymentFailed:
		err = h.recorder.IncrementLabelStatus(ctx, report.DeploymentKey, label, metrics.StatusFailed)
	case "":
		h.sendError(w, http.StatusBadRequest, "status is required")
		return
	default:
		h.sendError(w, http.StatusBadRequest, "unrecognized status %q", report.Status)
		return
	}
	if err != nil {
		h.logger.Error("recording deploy report failed",
			"deploymentKey", report.DeploymentKey,
			"label", label,
			"status", report.Status,
			"error", err,
		)
		h.sendError(w, httpStatus(err), "%v", err)
		return
	}

	w.WriteHeader(http.StatusOK)
}

// HandleDownloadReport records that a device finished downloading a
// package. Downloads are counted per label; install outcomes arrive
// separately through the deploy report.
func (h *Handler) HandleDownloadReport(w http.ResponseWriter, r *http.Request) {
	report, ok := h.decodeReport(w, r)
	if !ok {
		return
	}
	if report.Label == "" {
		h.sendError(w, http.StatusBadRequest, "label is required")
		return
	}

	if err := h.recorder.IncrementLabelStatus(r.Context(), report.DeploymentKey, report.Label, metrics.StatusDownloaded); err != nil {
		h.logger.Error("recording download report failed",
			"deploymentKey", report.DeploymentKey,
			"label", report.Label,
			"error", err,
		)
		h.sendError(w, httpStatus(err), "%v", err)
		return
	}

	w.WriteHeader(http.StatusOK)
}

// HandleHealth handles health check requests. Unhealthy storage or
// counters report 503 so load balancers stop routing here.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if err := h.store.CheckHealth(r.Context()); err != nil {
		h.sendError(w, http.StatusServiceUnavailable, "storage: %v", err)
		return
	}
	if err := h.recorder.CheckHealth(r.Context()); err != nil {
		h.sendError(w, http.StatusServiceUnavailable, "metrics: %v", err)
		return
	}
	h.writeJSON(w, map[string]string{"status": "ok"})
}

// decodeReport reads and validates the part of a status report both
// endpoints share. Reports false when a response was already sent.
func (h *Handler) decodeReport(w http.ResponseWriter, r *http.Request) (statusReport, bool) {
	// Limit request body size to prevent DoS
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

	var report statusReport
	if err := json.NewDecoder(r.Body).Decode(&report); err != nil {
		if strings.Contains(err.Error(), "http: request body too large") {
			h.sendError(w, http.StatusRequestEntityTooLarge, "request body too large (max %d bytes)", maxRequestBodySize)
			return statusReport{}, false
		}
		h.sendError(w, http.StatusBadRequest, "invalid request body: %v", err)
		return statusReport{}, false
	}

	report.DeploymentKey = strings.TrimSpace(report.DeploymentKey)
	if report.DeploymentKey == "" {
		h.sendError(w, http.StatusBadRequest, "deploymentKey is required")
		return statusReport{}, false
	}
	return report, true
}

func (h *Handler) sendError(w http.ResponseWriter, status int, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(map[string]string{
		"error": fmt.Sprintf(format, args...),
	}); err != nil {
		h.logger.Warn("writing JSON error response", "error", err, "status", status)
	}
}

// writeJSON encodes value as JSON into w, setting the Content-Type header.
// If encoding fails (typically because the client disconnected), the error
// is logged — the caller cannot send a corrective response to a dead client.
func (h *Handler) writeJSON(w http.ResponseWriter, value any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(value); err != nil {
		h.logger.Warn("writing JSON response", "error", err)
	}
}

// httpStatus maps a storage error code to the status reported to the
// client. Codes without a better mapping are internal failures.
func httpStatus(err error) int {
	switch storage.CodeOf(err) {
	case storage.NotFound:
		return http.StatusNotFound
	case storage.Invalid:
		return http.StatusBadRequest
	case storage.AlreadyExists:
		return http.StatusConflict
	case storage.Expired:
		return http.StatusUnauthorized
	case storage.TooLarge:
		return http.StatusRequestEntityTooLarge
	default:
		return http.StatusInternalServerError
	}
}
