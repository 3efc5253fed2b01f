package actions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/bloomin8/eink-canvas-addon/internal/canvas"
	"github.com/bloomin8/eink-canvas-addon/internal/coordinator"
	"github.com/bloomin8/eink-canvas-addon/internal/model"
	"github.com/bloomin8/eink-canvas-addon/internal/wake"
)

var ErrUnknownAction = errors.New("unknown action")

// ParamError reports parameters that failed schema validation. It maps to a
// client error at the API layer, unlike device-side failures which land in
// the Result.
type ParamError struct {
	Action string
	Err    error
}

func (e *ParamError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("action %s: invalid params: %v", e.Action, e.Err)
}

func (e *ParamError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

type Status string

const (
	StatusSuccess     Status = "SUCCESS"
	StatusUnreachable Status = "UNREACHABLE"
	StatusRejected    Status = "REJECTED"
	StatusProtocol    Status = "PROTOCOL_ERROR"
	StatusFailed      Status = "FAILED"
)

// Result is the terminal state of one action execution.
type Result struct {
	Action   string                `json:"action"`
	Status   Status                `json:"status"`
	Wake     wake.Result           `json:"wake,omitempty"`
	Error    string                `json:"error,omitempty"`
	Snapshot *model.DeviceSnapshot `json:"snapshot,omitempty"`
}

func (r Result) OK() bool { return r.Status == StatusSuccess }

type Request struct {
	Name   string
	Params json.RawMessage
	// WakeOverride replaces the action's default wake policy when set.
	WakeOverride wake.Policy
}

// CanvasClient is the slice of the device client the dispatcher drives.
type CanvasClient interface {
	Show(ctx context.Context, cfg model.CanvasConfig, req canvas.ShowRequest) error
	ShowImagePath(ctx context.Context, cfg model.CanvasConfig, path string, dither *int) error
	ShowNext(ctx context.Context, cfg model.CanvasConfig) error
	Sleep(ctx context.Context, cfg model.CanvasConfig) error
	Reboot(ctx context.Context, cfg model.CanvasConfig) error
	ClearScreen(ctx context.Context, cfg model.CanvasConfig) error
	Whistle(ctx context.Context, cfg model.CanvasConfig) error
	UpdateSettings(ctx context.Context, cfg model.CanvasConfig, settings canvas.Settings) error
	DeleteImage(ctx context.Context, cfg model.CanvasConfig, path string) error
	CreateGallery(ctx context.Context, cfg model.CanvasConfig, name string) error
	DeleteGallery(ctx context.Context, cfg model.CanvasConfig, name string) error
	SavePlaylist(ctx context.Context, cfg model.CanvasConfig, playlist canvas.Playlist) error
	DeletePlaylist(ctx context.Context, cfg model.CanvasConfig, name string) error
	UploadImage(ctx context.Context, cfg model.CanvasConfig, item canvas.UploadItem, gallery string, showNow bool) (string, error)
	UploadData(ctx context.Context, cfg model.CanvasConfig, item canvas.UploadItem, gallery string) error
	AllGalleryImages(ctx context.Context, cfg model.CanvasConfig, gallery string) ([]canvas.GalleryImage, error)
}

type Refresher interface {
	RequestRefresh(ctx context.Context, policy wake.Policy, source coordinator.Source) coordinator.Outcome
	View() coordinator.SnapshotView
	Push(snap model.DeviceSnapshot, source coordinator.Source)
}

type Waker interface {
	MaybeWake(ctx context.Context, cfg model.CanvasConfig, policy wake.Policy) wake.Result
}

type ConfigSource interface {
	Get() (model.CanvasConfig, bool)
}

type EventRecorder interface {
	AppendEvent(ctx context.Context, entry model.EventLogEntry) error
}

// Dispatcher validates, wakes, runs and records named device actions.
type Dispatcher struct {
	client    CanvasClient
	waker     Waker
	config    ConfigSource
	refresher Refresher
	events    EventRecorder
	logger    *slog.Logger
	registry  map[string]*Definition
	tunables  coordinator.Tunables

	sleepFn func(ctx context.Context, d time.Duration) error
	idFn    func() string
}

func NewDispatcher(client CanvasClient, waker Waker, config ConfigSource, refresher Refresher, events EventRecorder, logger *slog.Logger, tunables coordinator.Tunables) (*Dispatcher, error) {
	registry, err := newRegistry()
	if err != nil {
		return nil, err
	}
	return &Dispatcher{
		client:    client,
		waker:     waker,
		config:    config,
		refresher: refresher,
		events:    events,
		logger:    logger,
		registry:  registry,
		tunables:  tunables.Normalize(),
		sleepFn:   sleepContext,
		idFn:      uuid.NewString,
	}, nil
}

// Definitions lists the registered actions sorted by name.
func (d *Dispatcher) Definitions() []Definition {
	defs := make([]Definition, 0, len(d.registry))
	for _, def := range d.registry {
		defs = append(defs, *def)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// Execute runs one named action end to end. Unknown actions and invalid
// parameters come back as errors; everything that reached the device is
// reported through the Result.
func (d *Dispatcher) Execute(ctx context.Context, req Request) (Result, error) {
	def, ok := d.registry[req.Name]
	if !ok {
		return Result{}, fmt.Errorf("%w: %q", ErrUnknownAction, req.Name)
	}

	params := req.Params
	if len(params) == 0 {
		params = json.RawMessage(`{}`)
	}
	var doc any
	if err := json.Unmarshal(params, &doc); err != nil {
		return Result{}, &ParamError{Action: def.Name, Err: err}
	}
	if err := def.schema.Validate(doc); err != nil {
		return Result{}, &ParamError{Action: def.Name, Err: err}
	}

	cfg, ok := d.config.Get()
	if !ok {
		return Result{}, coordinator.ErrNotConfigured
	}

	policy := def.WakePolicy
	if req.WakeOverride != "" {
		policy = req.WakeOverride
	}

	if def.refresh == refreshManaged {
		if req.WakeOverride == "" {
			if parsed, ok := wakeParam(params); ok {
				policy = parsed
			}
		}
		result := resultFromOutcome(def.Name, d.refresher.RequestRefresh(ctx, policy, coordinator.SourceUser))
		d.record(ctx, result)
		return result, nil
	}

	started := time.Now()
	wakeResult := d.waker.MaybeWake(ctx, cfg, policy)
	result := Result{Action: def.Name, Wake: wakeResult}
	if wakeResult.Attempted() {
		if err := d.sleepFn(ctx, d.tunables.PostWakeDelay); err != nil {
			result.Status = StatusFailed
			result.Error = err.Error()
			d.record(ctx, result)
			return result, nil
		}
	}

	err := d.withWakeRetry(ctx, wakeResult, func() error {
		return def.run(ctx, d, cfg, params)
	})

	result.Status = statusFromError(err)
	if err != nil {
		result.Error = err.Error()
	}

	switch result.Status {
	case StatusSuccess:
		d.logger.Info("action executed",
			"action", def.Name,
			"wake", string(wakeResult),
			"elapsed", time.Since(started))
	case StatusUnreachable:
		d.logger.Debug("action dropped, canvas unreachable",
			"action", def.Name,
			"wake", string(wakeResult))
	default:
		d.logger.Warn("action failed",
			"action", def.Name,
			"status", string(result.Status),
			"error", err)
	}

	if result.OK() && def.refresh == refreshBackground {
		go d.refresher.RequestRefresh(context.WithoutCancel(ctx), wake.PolicyNever, coordinator.SourcePostAction)
	}
	d.record(ctx, result)
	return result, nil
}

// withWakeRetry re-runs op while the panel is still booting its radio after
// an attempted wake. Without a wake attempt an unreachable panel is final.
func (d *Dispatcher) withWakeRetry(ctx context.Context, wakeResult wake.Result, op func() error) error {
	err := op()
	if !canvas.IsUnreachable(err) || !wakeResult.Attempted() {
		return err
	}
	for attempt := 1; attempt <= d.tunables.RetryAttempts && canvas.IsUnreachable(err); attempt++ {
		if sleepErr := d.sleepFn(ctx, d.tunables.RetryDelay); sleepErr != nil {
			break
		}
		err = op()
	}
	return err
}

func statusFromError(err error) Status {
	var rejected *canvas.RejectedError
	var protocol *canvas.ProtocolError
	switch {
	case err == nil:
		return StatusSuccess
	case canvas.IsUnreachable(err):
		return StatusUnreachable
	case errors.As(err, &rejected):
		return StatusRejected
	case errors.As(err, &protocol):
		return StatusProtocol
	default:
		return StatusFailed
	}
}

func resultFromOutcome(name string, outcome coordinator.Outcome) Result {
	result := Result{Action: name, Wake: outcome.Wake, Snapshot: outcome.Snapshot}
	switch outcome.Status {
	case coordinator.StatusSuccess:
		result.Status = StatusSuccess
	case coordinator.StatusUnreachable:
		result.Status = StatusUnreachable
	default:
		result.Status = StatusFailed
	}
	if outcome.Err != nil {
		result.Error = outcome.Err.Error()
	}
	return result
}

func wakeParam(params json.RawMessage) (wake.Policy, bool) {
	var p struct {
		Wake string `json:"wake"`
	}
	if err := json.Unmarshal(params, &p); err != nil || p.Wake == "" {
		return "", false
	}
	policy, err := wake.ParsePolicy(p.Wake)
	if err != nil {
		return "", false
	}
	return policy, true
}

func (d *Dispatcher) record(ctx context.Context, result Result) {
	if d.events == nil {
		return
	}
	level := "info"
	message := "completed"
	switch result.Status {
	case StatusSuccess:
	case StatusUnreachable:
		level = "warning"
		message = "canvas unreachable"
	default:
		level = "warning"
		message = result.Error
	}
	entry := model.EventLogEntry{
		ID:      d.idFn(),
		Time:    time.Now(),
		Level:   level,
		Action:  result.Action,
		Message: message,
	}
	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := d.events.AppendEvent(recordCtx, entry); err != nil {
		d.logger.Warn("record action event failed", "action", result.Action, "error", err)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
