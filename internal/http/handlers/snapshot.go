package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/bloomin8/eink-canvas-addon/internal/coordinator"
	"github.com/bloomin8/eink-canvas-addon/internal/model"
	"github.com/bloomin8/eink-canvas-addon/internal/wake"
)

// Snapshot returns the cached device view without touching the panel.
func (a *API) Snapshot(w http.ResponseWriter, _ *http.Request) {
	if _, ok := a.requireConfig(w); !ok {
		return
	}
	writeJSON(w, http.StatusOK, a.refresher.View())
}

type refreshPayload struct {
	WakePolicy string `json:"wake_policy"`
}

type refreshResponse struct {
	Status     coordinator.Status    `json:"status"`
	Wake       wake.Result           `json:"wake,omitempty"`
	Snapshot   *model.DeviceSnapshot `json:"snapshot,omitempty"`
	CapturedAt *time.Time            `json:"captured_at,omitempty"`
	Error      string                `json:"error,omitempty"`
}

// Refresh runs one user-initiated refresh and waits for its outcome. The
// body is optional; without it the wake policy defaults to auto.
func (a *API) Refresh(w http.ResponseWriter, r *http.Request) {
	var payload refreshPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid_payload", "Invalid JSON payload")
		return
	}
	policy := wake.PolicyAuto
	if payload.WakePolicy != "" {
		parsed, err := wake.ParsePolicy(payload.WakePolicy)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_wake_policy", err.Error())
			return
		}
		policy = parsed
	}

	outcome := a.refresher.RequestRefresh(r.Context(), policy, coordinator.SourceUser)
	if outcome.Status == coordinator.StatusFailed && errors.Is(outcome.Err, coordinator.ErrNotConfigured) {
		writeError(w, http.StatusConflict, "canvas_not_configured", "Canvas not configured")
		return
	}

	resp := refreshResponse{Status: outcome.Status, Wake: outcome.Wake, Snapshot: outcome.Snapshot}
	if outcome.Snapshot != nil {
		resp.CapturedAt = &outcome.CapturedAt
	}
	if outcome.Err != nil {
		resp.Error = outcome.Err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}
