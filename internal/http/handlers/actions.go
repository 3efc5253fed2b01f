package handlers

import (
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/bloomin8/eink-canvas-addon/internal/actions"
	"github.com/bloomin8/eink-canvas-addon/internal/canvas"
	"github.com/bloomin8/eink-canvas-addon/internal/wake"
)

const (
	maxParamBytes  = 1 << 20
	maxUploadBytes = 16 << 20
)

// ListActions returns the action catalog with wake defaults and parameter
// schemas, for the HA side to build service calls from.
func (a *API) ListActions(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"items": a.actions.Definitions()})
}

// RunAction executes one named action with the raw JSON body as parameters.
// A wake query parameter overrides the action's default policy.
func (a *API) RunAction(w http.ResponseWriter, r *http.Request, name string) {
	params, err := io.ReadAll(io.LimitReader(r.Body, maxParamBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_payload", "Could not read request body")
		return
	}
	req := actions.Request{Name: name, Params: params}
	if raw := r.URL.Query().Get("wake"); raw != "" {
		policy, parseErr := wake.ParsePolicy(raw)
		if parseErr != nil {
			writeError(w, http.StatusBadRequest, "invalid_wake_policy", parseErr.Error())
			return
		}
		req.WakeOverride = policy
	}

	result, err := a.actions.Execute(r.Context(), req)
	if err != nil {
		writeActionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Upload accepts a multipart batch of images, uploads them in order and
// reports a per-item outcome. Flags arrive as query or form values.
func (a *API) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_multipart", "Invalid multipart form")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	headers := r.MultipartForm.File["images"]
	if len(headers) == 0 {
		headers = r.MultipartForm.File["file"]
	}
	if len(headers) == 0 {
		writeError(w, http.StatusBadRequest, "no_images", "Multipart form carries no image files")
		return
	}

	items := make([]canvas.UploadItem, 0, len(headers))
	for _, header := range headers {
		file, err := header.Open()
		if err != nil {
			writeError(w, http.StatusBadRequest, "unreadable_part", "Could not read "+header.Filename)
			return
		}
		data, err := io.ReadAll(file)
		_ = file.Close()
		if err != nil {
			writeError(w, http.StatusBadRequest, "unreadable_part", "Could not read "+header.Filename)
			return
		}
		items = append(items, canvas.UploadItem{
			Filename:    header.Filename,
			ContentType: header.Header.Get("Content-Type"),
			Data:        data,
		})
	}

	showLast, err := parseFlag(r.FormValue("show_now"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_show_now", "show_now must be true or false")
		return
	}
	overwrite, err := parseFlag(r.FormValue("overwrite"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_overwrite", "overwrite must be true or false")
		return
	}
	req := actions.UploadRequest{
		Items:     items,
		Gallery:   strings.TrimSpace(r.FormValue("gallery")),
		ShowLast:  showLast,
		Overwrite: overwrite,
	}
	if raw := r.FormValue("wake"); raw != "" {
		policy, parseErr := wake.ParsePolicy(raw)
		if parseErr != nil {
			writeError(w, http.StatusBadRequest, "invalid_wake_policy", parseErr.Error())
			return
		}
		req.WakeOverride = policy
	}

	result, err := a.actions.Upload(r.Context(), req)
	if err != nil {
		writeActionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// UploadData forwards one preprocessed image body to the panel untouched.
// The payload is already in panel format, so there is no multipart wrapper.
func (a *API) UploadData(w http.ResponseWriter, r *http.Request) {
	filename := strings.TrimSpace(r.URL.Query().Get("filename"))
	if filename == "" {
		writeError(w, http.StatusBadRequest, "missing_filename", "filename query parameter is required")
		return
	}
	var policy wake.Policy
	if raw := r.URL.Query().Get("wake"); raw != "" {
		parsed, err := wake.ParsePolicy(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_wake_policy", err.Error())
			return
		}
		policy = parsed
	}
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxUploadBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable_payload", "Could not read request body")
		return
	}

	item := canvas.UploadItem{
		Filename:    filename,
		ContentType: r.Header.Get("Content-Type"),
		Data:        data,
	}
	result, err := a.actions.DataUpload(r.Context(), item, r.URL.Query().Get("gallery"), policy)
	if err != nil {
		writeActionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func parseFlag(raw string) (bool, error) {
	if strings.TrimSpace(raw) == "" {
		return false, nil
	}
	return strconv.ParseBool(raw)
}
