package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/bloomin8/eink-canvas-addon/internal/actions"
)

const defaultPageSize = 50

// ListGalleries returns the gallery names present on the panel.
func (a *API) ListGalleries(w http.ResponseWriter, r *http.Request) {
	cfg, ok := a.requireConfig(w)
	if !ok {
		return
	}
	items, err := a.library.Galleries(r.Context(), cfg)
	if err != nil {
		writeCanvasError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// ListGalleryImages returns one page of a gallery listing.
func (a *API) ListGalleryImages(w http.ResponseWriter, r *http.Request, name string) {
	cfg, ok := a.requireConfig(w)
	if !ok {
		return
	}
	offset, err := parsePageParam(r.URL.Query().Get("offset"), 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_offset", "offset must be a non-negative integer")
		return
	}
	limit, err := parsePageParam(r.URL.Query().Get("limit"), defaultPageSize)
	if err != nil || limit == 0 || limit > 500 {
		writeError(w, http.StatusBadRequest, "invalid_limit", "limit must be between 1 and 500")
		return
	}
	page, err := a.library.GalleryImages(r.Context(), cfg, name, offset, limit)
	if err != nil {
		writeCanvasError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// CreateGallery creates a gallery through the action pipeline so it shares
// wake handling and the event log.
func (a *API) CreateGallery(w http.ResponseWriter, r *http.Request, name string) {
	a.runNamedAction(w, r, actions.ActionCreateGallery, nameParams(name), http.StatusCreated)
}

// DeleteGallery removes a gallery and everything in it.
func (a *API) DeleteGallery(w http.ResponseWriter, r *http.Request, name string) {
	a.runNamedAction(w, r, actions.ActionDeleteGallery, nameParams(name), http.StatusOK)
}

// ListPlaylists returns the playlist names present on the panel.
func (a *API) ListPlaylists(w http.ResponseWriter, r *http.Request) {
	cfg, ok := a.requireConfig(w)
	if !ok {
		return
	}
	items, err := a.library.Playlists(r.Context(), cfg)
	if err != nil {
		writeCanvasError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// GetPlaylist returns one playlist with its entries.
func (a *API) GetPlaylist(w http.ResponseWriter, r *http.Request, name string) {
	cfg, ok := a.requireConfig(w)
	if !ok {
		return
	}
	playlist, err := a.library.GetPlaylist(r.Context(), cfg, name)
	if err != nil {
		writeCanvasError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, playlist)
}

// SavePlaylist creates or replaces a playlist. The body carries the items;
// the name comes from the URL.
func (a *API) SavePlaylist(w http.ResponseWriter, r *http.Request, name string) {
	var payload struct {
		Items json.RawMessage `json:"items"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_payload", "Invalid JSON payload")
		return
	}
	params, err := json.Marshal(map[string]any{"name": name, "items": payload.Items})
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_payload", "Invalid JSON payload")
		return
	}
	a.runNamedAction(w, r, actions.ActionCreatePlaylist, params, http.StatusOK)
}

// DeletePlaylist removes one playlist by name.
func (a *API) DeletePlaylist(w http.ResponseWriter, r *http.Request, name string) {
	a.runNamedAction(w, r, actions.ActionDeletePlaylist, nameParams(name), http.StatusOK)
}

// Image proxies raw image bytes from the panel for previews and thumbnails.
// It never wakes the panel; an asleep panel answers 503.
func (a *API) Image(w http.ResponseWriter, r *http.Request) {
	cfg, ok := a.requireConfig(w)
	if !ok {
		return
	}
	path := strings.TrimSpace(r.URL.Query().Get("path"))
	if path == "" {
		writeError(w, http.StatusBadRequest, "missing_path", "path query parameter is required")
		return
	}
	data, contentType, err := a.library.FetchImage(r.Context(), cfg, path)
	if err != nil {
		writeCanvasError(w, err)
		return
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	_, _ = w.Write(data)
}

func (a *API) runNamedAction(w http.ResponseWriter, r *http.Request, action string, params json.RawMessage, status int) {
	result, err := a.actions.Execute(r.Context(), actions.Request{Name: action, Params: params})
	if err != nil {
		writeActionError(w, err)
		return
	}
	writeJSON(w, status, result)
}

func nameParams(name string) json.RawMessage {
	payload, _ := json.Marshal(map[string]string{"name": name})
	return payload
}

func parsePageParam(raw string, fallback int) (int, error) {
	if strings.TrimSpace(raw) == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return 0, strconv.ErrSyntax
	}
	return value, nil
}
