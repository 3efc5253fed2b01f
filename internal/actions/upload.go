package actions

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bloomin8/eink-canvas-addon/internal/canvas"
	"github.com/bloomin8/eink-canvas-addon/internal/coordinator"
	"github.com/bloomin8/eink-canvas-addon/internal/model"
	"github.com/bloomin8/eink-canvas-addon/internal/wake"
)

type UploadOutcome string

const (
	UploadUploaded      UploadOutcome = "uploaded"
	UploadSkippedExists UploadOutcome = "skipped_exists"
	UploadFailed        UploadOutcome = "failed"
)

type UploadItemResult struct {
	Filename string        `json:"filename"`
	Outcome  UploadOutcome `json:"outcome"`
	Path     string        `json:"path,omitempty"`
	Error    string        `json:"error,omitempty"`
}

type UploadRequest struct {
	Items   []canvas.UploadItem
	Gallery string
	// ShowLast puts the final image of the batch on screen.
	ShowLast bool
	// Overwrite uploads even when a filename already exists on the panel.
	Overwrite    bool
	WakeOverride wake.Policy
}

type UploadResult struct {
	Gallery string             `json:"gallery"`
	Wake    wake.Result        `json:"wake,omitempty"`
	Items   []UploadItemResult `json:"items"`
}

func (r UploadResult) Uploaded() int {
	n := 0
	for _, item := range r.Items {
		if item.Outcome == UploadUploaded {
			n++
		}
	}
	return n
}

// Upload sends a batch of images to one gallery with per-item outcomes.
// Filenames already present on the panel are skipped unless Overwrite is
// set. The batch fails as a whole only when the panel cannot be reached at
// all; everything after first contact is reported per item.
func (d *Dispatcher) Upload(ctx context.Context, req UploadRequest) (UploadResult, error) {
	if len(req.Items) == 0 {
		return UploadResult{}, &ParamError{Action: "upload", Err: errors.New("no images in batch")}
	}
	gallery := req.Gallery
	if gallery == "" {
		gallery = canvas.DefaultGallery
	}

	cfg, ok := d.config.Get()
	if !ok {
		return UploadResult{}, coordinator.ErrNotConfigured
	}

	policy := wake.PolicyAuto
	if req.WakeOverride != "" {
		policy = req.WakeOverride
	}

	result := UploadResult{Gallery: gallery}
	result.Wake = d.waker.MaybeWake(ctx, cfg, policy)
	if result.Wake.Attempted() {
		if err := d.sleepFn(ctx, d.tunables.PostWakeDelay); err != nil {
			return result, err
		}
	}

	existing, err := d.listExisting(ctx, cfg, gallery, result.Wake)
	if err != nil {
		return result, err
	}

	aborted := false
	var abortErr error
	for i, item := range req.Items {
		itemResult := UploadItemResult{Filename: item.Filename}
		switch {
		case aborted:
			itemResult.Outcome = UploadFailed
			itemResult.Error = "batch aborted: " + abortErr.Error()
		case !req.Overwrite && existing[item.Filename]:
			itemResult.Outcome = UploadSkippedExists
			itemResult.Path = canvas.JoinImagePath(gallery, item.Filename)
		default:
			showNow := req.ShowLast && i == len(req.Items)-1
			path, uploadErr := d.client.UploadImage(ctx, cfg, item, gallery, showNow)
			if uploadErr != nil {
				itemResult.Outcome = UploadFailed
				itemResult.Error = uploadErr.Error()
				if canvas.IsUnreachable(uploadErr) {
					// The panel dropped off mid-batch; each remaining item
					// would burn a full timeout, so stop here.
					aborted = true
					abortErr = uploadErr
				}
			} else {
				itemResult.Outcome = UploadUploaded
				itemResult.Path = path
			}
		}
		result.Items = append(result.Items, itemResult)
	}

	// A skipped final item still honors the show request.
	if last := result.Items[len(result.Items)-1]; req.ShowLast && last.Outcome == UploadSkippedExists {
		if showErr := d.client.ShowImagePath(ctx, cfg, last.Path, nil); showErr != nil {
			d.logger.Warn("show after upload failed", "path", last.Path, "error", showErr)
		}
	}

	uploaded := result.Uploaded()
	d.logger.Info("upload batch done",
		"gallery", gallery,
		"total", len(result.Items),
		"uploaded", uploaded,
		"wake", string(result.Wake))
	d.recordUpload(ctx, result)

	if uploaded > 0 {
		go d.refresher.RequestRefresh(context.WithoutCancel(ctx), wake.PolicyNever, coordinator.SourcePostAction)
	}
	return result, nil
}

// listExisting fetches the gallery contents for duplicate detection. Only an
// unreachable panel is fatal; a listing rejection (say, a gallery that does
// not exist yet) just disables the dedupe.
func (d *Dispatcher) listExisting(ctx context.Context, cfg model.CanvasConfig, gallery string, wakeResult wake.Result) (map[string]bool, error) {
	var images []canvas.GalleryImage
	err := d.withWakeRetry(ctx, wakeResult, func() error {
		var listErr error
		images, listErr = d.client.AllGalleryImages(ctx, cfg, gallery)
		return listErr
	})
	switch {
	case err == nil:
	case canvas.IsUnreachable(err):
		return nil, err
	default:
		d.logger.Debug("gallery listing failed, uploading without dedupe",
			"gallery", gallery,
			"error", err)
	}
	existing := make(map[string]bool, len(images))
	for _, image := range images {
		existing[image.Name] = true
	}
	return existing, nil
}

func (d *Dispatcher) recordUpload(ctx context.Context, result UploadResult) {
	if d.events == nil {
		return
	}
	counts := map[UploadOutcome]int{}
	for _, item := range result.Items {
		counts[item.Outcome]++
	}
	level := "info"
	if counts[UploadFailed] > 0 {
		level = "warning"
	}
	entry := model.EventLogEntry{
		ID:     d.idFn(),
		Time:   time.Now(),
		Level:  level,
		Action: "upload",
		Message: fmt.Sprintf("%d uploaded, %d skipped, %d failed of %d",
			counts[UploadUploaded], counts[UploadSkippedExists], counts[UploadFailed], len(result.Items)),
	}
	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := d.events.AppendEvent(recordCtx, entry); err != nil {
		d.logger.Warn("record upload event failed", "error", err)
	}
}

// DataUpload pushes one preprocessed image straight to the panel's raw data
// endpoint. The bytes go through untouched; dedupe and show handling do not
// apply because the caller owns the payload format.
func (d *Dispatcher) DataUpload(ctx context.Context, item canvas.UploadItem, gallery string, policy wake.Policy) (Result, error) {
	const name = "data_upload"
	if strings.TrimSpace(item.Filename) == "" {
		return Result{}, &ParamError{Action: name, Err: errors.New("filename is required")}
	}
	if len(item.Data) == 0 {
		return Result{}, &ParamError{Action: name, Err: errors.New("empty payload")}
	}
	if gallery == "" {
		gallery = canvas.DefaultGallery
	}

	cfg, ok := d.config.Get()
	if !ok {
		return Result{}, coordinator.ErrNotConfigured
	}
	if policy == "" {
		policy = wake.PolicyAuto
	}

	started := time.Now()
	wakeResult := d.waker.MaybeWake(ctx, cfg, policy)
	result := Result{Action: name, Wake: wakeResult}
	if wakeResult.Attempted() {
		if err := d.sleepFn(ctx, d.tunables.PostWakeDelay); err != nil {
			result.Status = StatusFailed
			result.Error = err.Error()
			d.record(ctx, result)
			return result, nil
		}
	}

	err := d.withWakeRetry(ctx, wakeResult, func() error {
		return d.client.UploadData(ctx, cfg, item, gallery)
	})
	result.Status = statusFromError(err)
	if err != nil {
		result.Error = err.Error()
	}

	switch result.Status {
	case StatusSuccess:
		d.logger.Info("data upload done",
			"filename", item.Filename,
			"gallery", gallery,
			"bytes", len(item.Data),
			"elapsed", time.Since(started))
	case StatusUnreachable:
		d.logger.Debug("data upload dropped, canvas unreachable", "filename", item.Filename)
	default:
		d.logger.Warn("data upload failed", "filename", item.Filename, "error", err)
	}

	if result.OK() {
		go d.refresher.RequestRefresh(context.WithoutCancel(ctx), wake.PolicyNever, coordinator.SourcePostAction)
	}
	d.record(ctx, result)
	return result, nil
}
