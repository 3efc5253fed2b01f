package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bloomin8/eink-canvas-addon/internal/actions"
	"github.com/bloomin8/eink-canvas-addon/internal/canvas"
	"github.com/bloomin8/eink-canvas-addon/internal/coordinator"
	"github.com/bloomin8/eink-canvas-addon/internal/model"
	"github.com/bloomin8/eink-canvas-addon/internal/wake"
)

type fakeRunner struct {
	mu          sync.Mutex
	requests    []actions.Request
	uploads     []actions.UploadRequest
	dataItems   []canvas.UploadItem
	dataGallery string
	dataPolicy  wake.Policy

	result       actions.Result
	err          error
	uploadResult actions.UploadResult
	uploadErr    error
}

func (f *fakeRunner) Definitions() []actions.Definition {
	return []actions.Definition{{Name: "show_image"}, {Name: "sleep"}}
}

func (f *fakeRunner) Execute(_ context.Context, req actions.Request) (actions.Result, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	if f.err != nil {
		return actions.Result{}, f.err
	}
	if f.result.Action == "" {
		return actions.Result{Action: req.Name, Status: actions.StatusSuccess}, nil
	}
	return f.result, nil
}

func (f *fakeRunner) Upload(_ context.Context, req actions.UploadRequest) (actions.UploadResult, error) {
	f.mu.Lock()
	f.uploads = append(f.uploads, req)
	f.mu.Unlock()
	if f.uploadErr != nil {
		return actions.UploadResult{}, f.uploadErr
	}
	if f.uploadResult.Gallery == "" {
		return actions.UploadResult{Gallery: req.Gallery}, nil
	}
	return f.uploadResult, nil
}

func (f *fakeRunner) DataUpload(_ context.Context, item canvas.UploadItem, gallery string, policy wake.Policy) (actions.Result, error) {
	f.mu.Lock()
	f.dataItems = append(f.dataItems, item)
	f.dataGallery = gallery
	f.dataPolicy = policy
	f.mu.Unlock()
	if f.err != nil {
		return actions.Result{}, f.err
	}
	return actions.Result{Action: "data_upload", Status: actions.StatusSuccess}, nil
}

func (f *fakeRunner) lastRequest(t *testing.T) actions.Request {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.requests) == 0 {
		t.Fatalf("no action requests recorded")
	}
	return f.requests[len(f.requests)-1]
}

type fakeRefresher struct {
	mu       sync.Mutex
	policies []wake.Policy
	sources  []coordinator.Source
	outcome  coordinator.Outcome
	view     coordinator.SnapshotView
}

func (f *fakeRefresher) RequestRefresh(_ context.Context, policy wake.Policy, source coordinator.Source) coordinator.Outcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.policies = append(f.policies, policy)
	f.sources = append(f.sources, source)
	return f.outcome
}

func (f *fakeRefresher) View() coordinator.SnapshotView { return f.view }

type staticConfig struct {
	cfg model.CanvasConfig
	ok  bool
}

func (s *staticConfig) Get() (model.CanvasConfig, bool) { return s.cfg, s.ok }

type fakeLibrary struct {
	galleries []canvas.Gallery
	page      canvas.GalleryPage
	playlists []canvas.PlaylistInfo
	playlist  canvas.Playlist
	imageData []byte
	imageType string
	err       error

	gotGallery string
	gotOffset  int
	gotLimit   int
	gotPath    string
}

func (f *fakeLibrary) Galleries(context.Context, model.CanvasConfig) ([]canvas.Gallery, error) {
	return f.galleries, f.err
}

func (f *fakeLibrary) GalleryImages(_ context.Context, _ model.CanvasConfig, gallery string, offset, limit int) (canvas.GalleryPage, error) {
	f.gotGallery = gallery
	f.gotOffset = offset
	f.gotLimit = limit
	return f.page, f.err
}

func (f *fakeLibrary) Playlists(context.Context, model.CanvasConfig) ([]canvas.PlaylistInfo, error) {
	return f.playlists, f.err
}

func (f *fakeLibrary) GetPlaylist(_ context.Context, _ model.CanvasConfig, name string) (canvas.Playlist, error) {
	return f.playlist, f.err
}

func (f *fakeLibrary) FetchImage(_ context.Context, _ model.CanvasConfig, path string) ([]byte, string, error) {
	f.gotPath = path
	if f.err != nil {
		return nil, "", f.err
	}
	return f.imageData, f.imageType, nil
}

type fakeEvents struct {
	entries  []model.EventLogEntry
	err      error
	gotLimit int
}

func (f *fakeEvents) RecentEvents(_ context.Context, limit int) ([]model.EventLogEntry, error) {
	f.gotLimit = limit
	return f.entries, f.err
}

type apiEnv struct {
	api       *API
	runner    *fakeRunner
	refresher *fakeRefresher
	config    *staticConfig
	library   *fakeLibrary
	events    *fakeEvents
}

func testAPI(t *testing.T) *apiEnv {
	t.Helper()
	env := &apiEnv{
		runner:    &fakeRunner{},
		refresher: &fakeRefresher{},
		config:    &staticConfig{cfg: model.CanvasConfig{Host: "10.0.0.9"}, ok: true},
		library:   &fakeLibrary{},
		events:    &fakeEvents{},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	env.api = New(env.runner, env.refresher, env.config, env.library, env.events, nil, logger)
	return env
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var envelope struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode error envelope: %v", err)
	}
	return envelope.Error.Code
}

func TestHealthReportsPairing(t *testing.T) {
	env := testAPI(t)
	env.config.ok = false

	rec := httptest.NewRecorder()
	env.api.Health(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["configured"] != false {
		t.Fatalf("configured = %v, want false", body["configured"])
	}
}

func TestSnapshotRequiresPairing(t *testing.T) {
	env := testAPI(t)
	env.config.ok = false

	rec := httptest.NewRecorder()
	env.api.Snapshot(rec, httptest.NewRequest(http.MethodGet, "/api/snapshot", nil))

	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusConflict)
	}
	if code := errorCode(t, rec); code != "canvas_not_configured" {
		t.Fatalf("error code = %q, want %q", code, "canvas_not_configured")
	}
}

func TestSnapshotReturnsCachedView(t *testing.T) {
	env := testAPI(t)
	capturedAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	env.refresher.view = coordinator.SnapshotView{
		Snapshot:     &model.DeviceSnapshot{Name: "studio"},
		CapturedAt:   &capturedAt,
		Reachability: model.ReachabilityOnline,
	}

	rec := httptest.NewRecorder()
	env.api.Snapshot(rec, httptest.NewRequest(http.MethodGet, "/api/snapshot", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	var view coordinator.SnapshotView
	if err := json.NewDecoder(rec.Body).Decode(&view); err != nil {
		t.Fatalf("decode view: %v", err)
	}
	if view.Snapshot == nil || view.Snapshot.Name != "studio" {
		t.Fatalf("snapshot = %+v, want name studio", view.Snapshot)
	}
	if view.Reachability != model.ReachabilityOnline {
		t.Fatalf("reachability = %q, want %q", view.Reachability, model.ReachabilityOnline)
	}
}

func TestRefreshParsesWakePolicy(t *testing.T) {
	env := testAPI(t)
	env.refresher.outcome = coordinator.Outcome{
		Status:     coordinator.StatusSuccess,
		Snapshot:   &model.DeviceSnapshot{Name: "studio"},
		CapturedAt: time.Now(),
		Wake:       wake.ResultWoke,
	}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/refresh", strings.NewReader(`{"wake_policy":"force"}`))
	env.api.Refresh(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if got := env.refresher.policies[0]; got != wake.PolicyForce {
		t.Fatalf("policy = %q, want %q", got, wake.PolicyForce)
	}
	if got := env.refresher.sources[0]; got != coordinator.SourceUser {
		t.Fatalf("source = %q, want %q", got, coordinator.SourceUser)
	}
	var resp refreshResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != coordinator.StatusSuccess {
		t.Fatalf("Status = %q, want %q", resp.Status, coordinator.StatusSuccess)
	}
	if resp.CapturedAt == nil {
		t.Fatalf("CapturedAt missing from refresh response")
	}
}

func TestRefreshEmptyBodyDefaultsToAuto(t *testing.T) {
	env := testAPI(t)
	env.refresher.outcome = coordinator.Outcome{Status: coordinator.StatusUnreachable, Wake: wake.ResultUnconfirmed}

	rec := httptest.NewRecorder()
	env.api.Refresh(rec, httptest.NewRequest(http.MethodPost, "/api/refresh", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if got := env.refresher.policies[0]; got != wake.PolicyAuto {
		t.Fatalf("policy = %q, want %q", got, wake.PolicyAuto)
	}
}

func TestRefreshRejectsUnknownPolicy(t *testing.T) {
	env := testAPI(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/refresh", strings.NewReader(`{"wake_policy":"sometimes"}`))
	env.api.Refresh(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
	if code := errorCode(t, rec); code != "invalid_wake_policy" {
		t.Fatalf("error code = %q, want %q", code, "invalid_wake_policy")
	}
	if len(env.refresher.policies) != 0 {
		t.Fatalf("refresh ran despite invalid policy")
	}
}

func TestRefreshNotConfigured(t *testing.T) {
	env := testAPI(t)
	env.refresher.outcome = coordinator.Outcome{Status: coordinator.StatusFailed, Err: coordinator.ErrNotConfigured}

	rec := httptest.NewRecorder()
	env.api.Refresh(rec, httptest.NewRequest(http.MethodPost, "/api/refresh", nil))

	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusConflict)
	}
}

func TestRunActionMapsDispatcherErrors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantErr  string
	}{
		{"unknown action", actions.ErrUnknownAction, http.StatusNotFound, "unknown_action"},
		{"invalid params", &actions.ParamError{Action: "show_image", Err: errors.New("bad")}, http.StatusBadRequest, "invalid_params"},
		{"not configured", coordinator.ErrNotConfigured, http.StatusConflict, "canvas_not_configured"},
		{"other", errors.New("boom"), http.StatusInternalServerError, "action_failed"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			env := testAPI(t)
			env.runner.err = tt.err

			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/api/actions/show_image", strings.NewReader(`{}`))
			env.api.RunAction(rec, req, "show_image")

			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantCode)
			}
			if code := errorCode(t, rec); code != tt.wantErr {
				t.Fatalf("error code = %q, want %q", code, tt.wantErr)
			}
		})
	}
}

func TestRunActionPassesParamsAndOverride(t *testing.T) {
	env := testAPI(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/actions/show_image?wake=never", strings.NewReader(`{"path":"/gallerys/art/a.jpg"}`))
	env.api.RunAction(rec, req, "show_image")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	got := env.runner.lastRequest(t)
	if got.Name != "show_image" {
		t.Fatalf("action = %q, want %q", got.Name, "show_image")
	}
	if got.WakeOverride != wake.PolicyNever {
		t.Fatalf("override = %q, want %q", got.WakeOverride, wake.PolicyNever)
	}
	if !strings.Contains(string(got.Params), "/gallerys/art/a.jpg") {
		t.Fatalf("params = %s, want path passthrough", got.Params)
	}
	var result actions.Result
	if err := json.NewDecoder(rec.Body).Decode(&result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if result.Status != actions.StatusSuccess {
		t.Fatalf("Status = %q, want %q", result.Status, actions.StatusSuccess)
	}
}

func addFilePart(t *testing.T, writer *multipart.Writer, filename string, data []byte) {
	t.Helper()
	part, err := writer.CreateFormFile("images", filename)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := part.Write(data); err != nil {
		t.Fatalf("write form file: %v", err)
	}
}

func TestUploadParsesMultipartBatch(t *testing.T) {
	env := testAPI(t)

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	addFilePart(t, writer, "a.jpg", []byte("aaa"))
	addFilePart(t, writer, "b.jpg", []byte("bbbb"))
	if err := writer.WriteField("gallery", "art"); err != nil {
		t.Fatalf("write field: %v", err)
	}
	if err := writer.WriteField("show_now", "true"); err != nil {
		t.Fatalf("write field: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/upload?overwrite=true", &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	env.api.Upload(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", rec.Code, http.StatusOK, rec.Body)
	}
	if len(env.runner.uploads) != 1 {
		t.Fatalf("uploads = %d, want 1", len(env.runner.uploads))
	}
	got := env.runner.uploads[0]
	if got.Gallery != "art" || !got.ShowLast || !got.Overwrite {
		t.Fatalf("request = %+v, want gallery art, show last, overwrite", got)
	}
	if len(got.Items) != 2 || got.Items[0].Filename != "a.jpg" || got.Items[1].Filename != "b.jpg" {
		t.Fatalf("items = %+v, want a.jpg then b.jpg", got.Items)
	}
	if string(got.Items[1].Data) != "bbbb" {
		t.Fatalf("item data = %q, want %q", got.Items[1].Data, "bbbb")
	}
}

func TestUploadRejectsEmptyForm(t *testing.T) {
	env := testAPI(t)

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	if err := writer.WriteField("gallery", "art"); err != nil {
		t.Fatalf("write field: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/upload", &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	env.api.Upload(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
	if code := errorCode(t, rec); code != "no_images" {
		t.Fatalf("error code = %q, want %q", code, "no_images")
	}
}

func TestUploadDataForwardsBody(t *testing.T) {
	env := testAPI(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/upload/data?filename=frame.bin&gallery=art&wake=force", strings.NewReader("rawbytes"))
	req.Header.Set("Content-Type", "application/octet-stream")
	env.api.UploadData(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if len(env.runner.dataItems) != 1 {
		t.Fatalf("data uploads = %d, want 1", len(env.runner.dataItems))
	}
	item := env.runner.dataItems[0]
	if item.Filename != "frame.bin" || string(item.Data) != "rawbytes" {
		t.Fatalf("item = %+v, want frame.bin with raw body", item)
	}
	if env.runner.dataGallery != "art" || env.runner.dataPolicy != wake.PolicyForce {
		t.Fatalf("gallery/policy = %q/%q, want art/force", env.runner.dataGallery, env.runner.dataPolicy)
	}
}

func TestUploadDataRequiresFilename(t *testing.T) {
	env := testAPI(t)

	rec := httptest.NewRecorder()
	env.api.UploadData(rec, httptest.NewRequest(http.MethodPost, "/api/upload/data", strings.NewReader("x")))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
	if code := errorCode(t, rec); code != "missing_filename" {
		t.Fatalf("error code = %q, want %q", code, "missing_filename")
	}
}

func TestListGalleryImagesPagination(t *testing.T) {
	env := testAPI(t)
	env.library.page = canvas.GalleryPage{Total: 3, Offset: 10, Limit: 20}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/galleries/art/images?offset=10&limit=20", nil)
	env.api.ListGalleryImages(rec, req, "art")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if env.library.gotGallery != "art" || env.library.gotOffset != 10 || env.library.gotLimit != 20 {
		t.Fatalf("args = %q/%d/%d, want art/10/20", env.library.gotGallery, env.library.gotOffset, env.library.gotLimit)
	}
}

func TestListGalleryImagesRejectsBadPagination(t *testing.T) {
	tests := []struct {
		name  string
		query string
		code  string
	}{
		{"negative offset", "?offset=-1", "invalid_offset"},
		{"zero limit", "?limit=0", "invalid_limit"},
		{"non numeric limit", "?limit=many", "invalid_limit"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			env := testAPI(t)
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/api/galleries/art/images"+tt.query, nil)
			env.api.ListGalleryImages(rec, req, "art")

			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
			}
			if code := errorCode(t, rec); code != tt.code {
				t.Fatalf("error code = %q, want %q", code, tt.code)
			}
		})
	}
}

func TestCreateGalleryRunsAction(t *testing.T) {
	env := testAPI(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPut, "/api/galleries/holiday", nil)
	env.api.CreateGallery(rec, req, "holiday")

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusCreated)
	}
	got := env.runner.lastRequest(t)
	if got.Name != actions.ActionCreateGallery {
		t.Fatalf("action = %q, want %q", got.Name, actions.ActionCreateGallery)
	}
	if !strings.Contains(string(got.Params), `"holiday"`) {
		t.Fatalf("params = %s, want gallery name", got.Params)
	}
}

func TestSavePlaylistInjectsName(t *testing.T) {
	env := testAPI(t)

	rec := httptest.NewRecorder()
	body := strings.NewReader(`{"items":[{"image":"/gallerys/art/a.jpg","duration_sec":30}]}`)
	env.api.SavePlaylist(rec, httptest.NewRequest(http.MethodPut, "/api/playlists/evening", body), "evening")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", rec.Code, http.StatusOK, rec.Body)
	}
	got := env.runner.lastRequest(t)
	if got.Name != actions.ActionCreatePlaylist {
		t.Fatalf("action = %q, want %q", got.Name, actions.ActionCreatePlaylist)
	}
	var params struct {
		Name  string `json:"name"`
		Items []struct {
			Image       string `json:"image"`
			DurationSec int    `json:"duration_sec"`
		} `json:"items"`
	}
	if err := json.Unmarshal(got.Params, &params); err != nil {
		t.Fatalf("decode params: %v", err)
	}
	if params.Name != "evening" {
		t.Fatalf("name = %q, want %q", params.Name, "evening")
	}
	if len(params.Items) != 1 || params.Items[0].DurationSec != 30 {
		t.Fatalf("items = %+v, want one 30s entry", params.Items)
	}
}

func TestImageProxyMapsDeviceErrors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
	}{
		{"asleep", &canvas.UnreachableError{Host: "10.0.0.9", Err: errors.New("timeout")}, http.StatusServiceUnavailable},
		{"rejected", &canvas.RejectedError{Status: 404, Body: "no such file"}, http.StatusNotFound},
		{"garbled", &canvas.ProtocolError{Op: "image", Reason: "short read"}, http.StatusBadGateway},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			env := testAPI(t)
			env.library.err = tt.err

			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/api/image?path=/gallerys/art/a.jpg", nil)
			env.api.Image(rec, req)

			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantCode)
			}
		})
	}
}

func TestImageProxyStreamsBytes(t *testing.T) {
	env := testAPI(t)
	env.library.imageData = []byte{0xff, 0xd8, 0xff}
	env.library.imageType = "image/jpeg"

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/image?path=/gallerys/art/a.jpg", nil)
	env.api.Image(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if got := rec.Header().Get("Content-Type"); got != "image/jpeg" {
		t.Fatalf("content type = %q, want %q", got, "image/jpeg")
	}
	if !bytes.Equal(rec.Body.Bytes(), env.library.imageData) {
		t.Fatalf("body = %v, want raw image bytes", rec.Body.Bytes())
	}
	if env.library.gotPath != "/gallerys/art/a.jpg" {
		t.Fatalf("path = %q, want %q", env.library.gotPath, "/gallerys/art/a.jpg")
	}
}

func TestEventLogLimit(t *testing.T) {
	env := testAPI(t)
	env.events.entries = []model.EventLogEntry{{ID: "evt-1", Action: "show_image", Message: "completed"}}

	rec := httptest.NewRecorder()
	env.api.EventLog(rec, httptest.NewRequest(http.MethodGet, "/api/events/log", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if env.events.gotLimit != 50 {
		t.Fatalf("limit = %d, want default 50", env.events.gotLimit)
	}

	rec = httptest.NewRecorder()
	env.api.EventLog(rec, httptest.NewRequest(http.MethodGet, "/api/events/log?limit=boom", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}
