package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/bloomin8/eink-canvas-addon/internal/actions"
	"github.com/bloomin8/eink-canvas-addon/internal/canvas"
	"github.com/bloomin8/eink-canvas-addon/internal/coordinator"
	"github.com/bloomin8/eink-canvas-addon/internal/model"
	"github.com/bloomin8/eink-canvas-addon/internal/wake"
)

// ActionRunner executes named actions and uploads against the panel.
type ActionRunner interface {
	Definitions() []actions.Definition
	Execute(ctx context.Context, req actions.Request) (actions.Result, error)
	Upload(ctx context.Context, req actions.UploadRequest) (actions.UploadResult, error)
	DataUpload(ctx context.Context, item canvas.UploadItem, gallery string, policy wake.Policy) (actions.Result, error)
}

// Refresher exposes the coordinator's pull path and cached view.
type Refresher interface {
	RequestRefresh(ctx context.Context, policy wake.Policy, source coordinator.Source) coordinator.Outcome
	View() coordinator.SnapshotView
}

// ConfigProvider exposes current pairing status of the add-on.
type ConfigProvider interface {
	Get() (model.CanvasConfig, bool)
}

// Library reads galleries, playlists and raw images from the panel.
type Library interface {
	Galleries(ctx context.Context, cfg model.CanvasConfig) ([]canvas.Gallery, error)
	GalleryImages(ctx context.Context, cfg model.CanvasConfig, gallery string, offset, limit int) (canvas.GalleryPage, error)
	Playlists(ctx context.Context, cfg model.CanvasConfig) ([]canvas.PlaylistInfo, error)
	GetPlaylist(ctx context.Context, cfg model.CanvasConfig, name string) (canvas.Playlist, error)
	FetchImage(ctx context.Context, cfg model.CanvasConfig, path string) ([]byte, string, error)
}

// EventStore reads the persisted action/refresh log.
type EventStore interface {
	RecentEvents(ctx context.Context, limit int) ([]model.EventLogEntry, error)
}

// API groups HTTP handlers and dependencies.
type API struct {
	actions   ActionRunner
	refresher Refresher
	config    ConfigProvider
	library   Library
	events    EventStore
	hub       *Hub
	logger    *slog.Logger
}

// New creates HTTP handlers with explicit dependencies.
func New(
	runner ActionRunner,
	refresher Refresher,
	config ConfigProvider,
	library Library,
	events EventStore,
	hub *Hub,
	logger *slog.Logger,
) *API {
	return &API{
		actions:   runner,
		refresher: refresher,
		config:    config,
		library:   library,
		events:    events,
		hub:       hub,
		logger:    logger,
	}
}

// Logger returns request logger used by HTTP middleware.
func (a *API) Logger() *slog.Logger {
	return a.logger
}

// Health reports service liveness and pairing status.
func (a *API) Health(w http.ResponseWriter, _ *http.Request) {
	_, configured := a.config.Get()
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "configured": configured})
}

// requireConfig loads the canvas config or answers with the standard
// not-configured error.
func (a *API) requireConfig(w http.ResponseWriter) (model.CanvasConfig, bool) {
	cfg, ok := a.config.Get()
	if !ok {
		writeError(w, http.StatusConflict, "canvas_not_configured", "Canvas not configured")
	}
	return cfg, ok
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code string, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"code":    code,
			"message": message,
		},
	})
}

// writeActionError maps dispatcher errors onto caller-side HTTP statuses.
// Device-side failures never land here; they travel inside the Result.
func writeActionError(w http.ResponseWriter, err error) {
	var paramErr *actions.ParamError
	switch {
	case errors.Is(err, actions.ErrUnknownAction):
		writeError(w, http.StatusNotFound, "unknown_action", err.Error())
	case errors.As(err, &paramErr):
		writeError(w, http.StatusBadRequest, "invalid_params", paramErr.Error())
	case errors.Is(err, coordinator.ErrNotConfigured):
		writeError(w, http.StatusConflict, "canvas_not_configured", "Canvas not configured")
	default:
		writeError(w, http.StatusInternalServerError, "action_failed", err.Error())
	}
}

// writeCanvasError maps device client errors from read paths. An asleep
// panel is a 503 so callers can tell "try again after a wake" from a hard
// rejection.
func writeCanvasError(w http.ResponseWriter, err error) {
	var rejected *canvas.RejectedError
	var protocol *canvas.ProtocolError
	switch {
	case canvas.IsUnreachable(err):
		writeError(w, http.StatusServiceUnavailable, "canvas_unreachable", "Canvas did not answer; it is probably asleep")
	case errors.As(err, &rejected):
		writeError(w, http.StatusNotFound, "canvas_rejected", rejected.Error())
	case errors.As(err, &protocol):
		writeError(w, http.StatusBadGateway, "canvas_protocol_error", protocol.Error())
	default:
		writeError(w, http.StatusBadGateway, "canvas_failed", err.Error())
	}
}
