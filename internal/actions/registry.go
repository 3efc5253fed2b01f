package actions

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/bloomin8/eink-canvas-addon/internal/canvas"
	"github.com/bloomin8/eink-canvas-addon/internal/coordinator"
	"github.com/bloomin8/eink-canvas-addon/internal/model"
	"github.com/bloomin8/eink-canvas-addon/internal/wake"
)

const (
	ActionShowImage      = "show_image"
	ActionShowNext       = "show_next"
	ActionSelectPlaylist = "select_playlist"
	ActionSleep          = "sleep"
	ActionReboot         = "reboot"
	ActionClearScreen    = "clear_screen"
	ActionWhistle        = "whistle"
	ActionUpdateSettings = "update_settings"
	ActionRefreshInfo    = "refresh_device_info"
	ActionDeleteImage    = "delete_image"
	ActionCreateGallery  = "create_gallery"
	ActionDeleteGallery  = "delete_gallery"
	ActionCreatePlaylist = "create_playlist"
	ActionDeletePlaylist = "delete_playlist"
)

// refreshMode says what happens to the snapshot cache once an action lands.
type refreshMode int

const (
	// refreshNone leaves the cache alone.
	refreshNone refreshMode = iota
	// refreshBackground kicks off a non-blocking refresh after success. The
	// panel just answered over HTTP, so that refresh never pulses the radio.
	refreshBackground
	// refreshManaged means the action is itself a refresh and the
	// coordinator owns the whole flow, wake included.
	refreshManaged
)

type runFunc func(ctx context.Context, d *Dispatcher, cfg model.CanvasConfig, params json.RawMessage) error

// Definition describes one named action: how to wake the panel for it, what
// parameters it accepts and what happens to the cache afterwards.
type Definition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	WakePolicy  wake.Policy     `json:"wake_policy"`
	ParamSchema json.RawMessage `json:"param_schema"`

	refresh refreshMode
	schema  *jsonschema.Schema
	run     runFunc
}

const emptyParamSchema = `{"type":"object","additionalProperties":false}`

const showImageSchema = `{
	"type": "object",
	"properties": {
		"path": {"type": "string", "minLength": 1},
		"filename": {"type": "string", "minLength": 1},
		"gallery": {"type": "string", "minLength": 1},
		"duration_sec": {"type": "integer", "minimum": 1},
		"dither": {"type": "integer", "enum": [0, 1]}
	},
	"anyOf": [
		{"required": ["path"]},
		{"required": ["filename"]}
	],
	"additionalProperties": false
}`

const selectPlaylistSchema = `{
	"type": "object",
	"properties": {
		"playlist": {"type": "string", "minLength": 1}
	},
	"required": ["playlist"],
	"additionalProperties": false
}`

const updateSettingsSchema = `{
	"type": "object",
	"properties": {
		"name": {"type": "string", "minLength": 1, "maxLength": 64},
		"sleep_duration_sec": {"type": "integer", "minimum": 1},
		"max_idle_sec": {"type": "integer", "minimum": 1},
		"wake_sensitivity": {"type": "integer", "minimum": 0, "maximum": 10}
	},
	"minProperties": 1,
	"additionalProperties": false
}`

const refreshInfoSchema = `{
	"type": "object",
	"properties": {
		"wake": {"type": "string", "enum": ["auto", "force", "never"]}
	},
	"additionalProperties": false
}`

const deleteImageSchema = `{
	"type": "object",
	"properties": {
		"path": {"type": "string", "minLength": 1}
	},
	"required": ["path"],
	"additionalProperties": false
}`

const galleryNameSchema = `{
	"type": "object",
	"properties": {
		"name": {"type": "string", "minLength": 1, "maxLength": 64}
	},
	"required": ["name"],
	"additionalProperties": false
}`

const createPlaylistSchema = `{
	"type": "object",
	"properties": {
		"name": {"type": "string", "minLength": 1, "maxLength": 64},
		"items": {
			"type": "array",
			"minItems": 1,
			"items": {
				"type": "object",
				"properties": {
					"image": {"type": "string", "minLength": 1},
					"duration_sec": {"type": "integer", "minimum": 1}
				},
				"required": ["image", "duration_sec"],
				"additionalProperties": false
			}
		}
	},
	"required": ["name", "items"],
	"additionalProperties": false
}`

func builtinDefinitions() []*Definition {
	return []*Definition{
		{
			Name:        ActionShowImage,
			Description: "Show an image by path, or by filename within a gallery",
			WakePolicy:  wake.PolicyAuto,
			ParamSchema: json.RawMessage(showImageSchema),
			refresh:     refreshBackground,
			run:         runShowImage,
		},
		{
			Name:        ActionShowNext,
			Description: "Advance to the next image of the active gallery",
			WakePolicy:  wake.PolicyAuto,
			ParamSchema: json.RawMessage(emptyParamSchema),
			refresh:     refreshBackground,
			run:         runShowNext,
		},
		{
			Name:        ActionSelectPlaylist,
			Description: "Start playing a stored playlist",
			WakePolicy:  wake.PolicyAuto,
			ParamSchema: json.RawMessage(selectPlaylistSchema),
			refresh:     refreshBackground,
			run:         runSelectPlaylist,
		},
		{
			Name:        ActionSleep,
			Description: "Send the panel to deep sleep immediately",
			WakePolicy:  wake.PolicyNever,
			ParamSchema: json.RawMessage(emptyParamSchema),
			refresh:     refreshNone,
			run:         runSleep,
		},
		{
			Name:        ActionReboot,
			Description: "Reboot the panel",
			WakePolicy:  wake.PolicyAuto,
			ParamSchema: json.RawMessage(emptyParamSchema),
			refresh:     refreshNone,
			run:         runReboot,
		},
		{
			Name:        ActionClearScreen,
			Description: "Blank the e-ink screen",
			WakePolicy:  wake.PolicyAuto,
			ParamSchema: json.RawMessage(emptyParamSchema),
			refresh:     refreshBackground,
			run:         runClearScreen,
		},
		{
			Name:        ActionWhistle,
			Description: "Ping the panel to postpone its idle sleep",
			WakePolicy:  wake.PolicyNever,
			ParamSchema: json.RawMessage(emptyParamSchema),
			refresh:     refreshBackground,
			run:         runWhistle,
		},
		{
			Name:        ActionUpdateSettings,
			Description: "Change device settings such as name or sleep timing",
			WakePolicy:  wake.PolicyAuto,
			ParamSchema: json.RawMessage(updateSettingsSchema),
			refresh:     refreshNone,
			run:         runUpdateSettings,
		},
		{
			Name:        ActionRefreshInfo,
			Description: "Fetch fresh device state into the cache",
			WakePolicy:  wake.PolicyAuto,
			ParamSchema: json.RawMessage(refreshInfoSchema),
			refresh:     refreshManaged,
		},
		{
			Name:        ActionDeleteImage,
			Description: "Delete an image from the panel storage",
			WakePolicy:  wake.PolicyAuto,
			ParamSchema: json.RawMessage(deleteImageSchema),
			refresh:     refreshBackground,
			run:         runDeleteImage,
		},
		{
			Name:        ActionCreateGallery,
			Description: "Create a gallery",
			WakePolicy:  wake.PolicyAuto,
			ParamSchema: json.RawMessage(galleryNameSchema),
			refresh:     refreshNone,
			run:         runCreateGallery,
		},
		{
			Name:        ActionDeleteGallery,
			Description: "Delete a gallery and its images",
			WakePolicy:  wake.PolicyAuto,
			ParamSchema: json.RawMessage(galleryNameSchema),
			refresh:     refreshNone,
			run:         runDeleteGallery,
		},
		{
			Name:        ActionCreatePlaylist,
			Description: "Create or replace a playlist",
			WakePolicy:  wake.PolicyAuto,
			ParamSchema: json.RawMessage(createPlaylistSchema),
			refresh:     refreshNone,
			run:         runCreatePlaylist,
		},
		{
			Name:        ActionDeletePlaylist,
			Description: "Delete a playlist",
			WakePolicy:  wake.PolicyAuto,
			ParamSchema: json.RawMessage(galleryNameSchema),
			refresh:     refreshNone,
			run:         runDeletePlaylist,
		},
	}
}

func newRegistry() (map[string]*Definition, error) {
	defs := builtinDefinitions()
	registry := make(map[string]*Definition, len(defs))
	for _, def := range defs {
		schema, err := compileSchema(def.Name, def.ParamSchema)
		if err != nil {
			return nil, fmt.Errorf("action %s: %w", def.Name, err)
		}
		def.schema = schema
		registry[def.Name] = def
	}
	return registry, nil
}

func compileSchema(name string, raw json.RawMessage) (*jsonschema.Schema, error) {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	resource := name + ".json"
	if err := compiler.AddResource(resource, doc); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	return compiler.Compile(resource)
}

type showImageParams struct {
	Path        string `json:"path"`
	Filename    string `json:"filename"`
	Gallery     string `json:"gallery"`
	DurationSec int    `json:"duration_sec"`
	Dither      *int   `json:"dither"`
}

func runShowImage(ctx context.Context, d *Dispatcher, cfg model.CanvasConfig, params json.RawMessage) error {
	var p showImageParams
	if err := json.Unmarshal(params, &p); err != nil {
		return err
	}
	req := canvas.ShowRequest{Dither: p.Dither}
	switch {
	case p.Path != "":
		req.Gallery, req.Filename = canvas.SplitImagePath(p.Path)
		req.PlayMode = model.PlayModeSingle
	case p.DurationSec > 0:
		req.Filename = p.Filename
		req.Gallery = p.Gallery
		req.DurationSec = p.DurationSec
		req.PlayMode = model.PlayModeSlideshow
	default:
		req.Filename = p.Filename
		req.Gallery = p.Gallery
		req.PlayMode = model.PlayModeSingle
	}
	return d.client.Show(ctx, cfg, req)
}

func runSelectPlaylist(ctx context.Context, d *Dispatcher, cfg model.CanvasConfig, params json.RawMessage) error {
	var p struct {
		Playlist string `json:"playlist"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return err
	}
	return d.client.Show(ctx, cfg, canvas.ShowRequest{
		Playlist: p.Playlist,
		PlayMode: model.PlayModePlaylist,
	})
}

func runShowNext(ctx context.Context, d *Dispatcher, cfg model.CanvasConfig, _ json.RawMessage) error {
	return d.client.ShowNext(ctx, cfg)
}

func runSleep(ctx context.Context, d *Dispatcher, cfg model.CanvasConfig, _ json.RawMessage) error {
	return d.client.Sleep(ctx, cfg)
}

func runReboot(ctx context.Context, d *Dispatcher, cfg model.CanvasConfig, _ json.RawMessage) error {
	return d.client.Reboot(ctx, cfg)
}

func runClearScreen(ctx context.Context, d *Dispatcher, cfg model.CanvasConfig, _ json.RawMessage) error {
	return d.client.ClearScreen(ctx, cfg)
}

func runWhistle(ctx context.Context, d *Dispatcher, cfg model.CanvasConfig, _ json.RawMessage) error {
	return d.client.Whistle(ctx, cfg)
}

type updateSettingsParams struct {
	Name             *string `json:"name"`
	SleepDurationSec *int    `json:"sleep_duration_sec"`
	MaxIdleSec       *int    `json:"max_idle_sec"`
	WakeSensitivity  *int    `json:"wake_sensitivity"`
}

func runUpdateSettings(ctx context.Context, d *Dispatcher, cfg model.CanvasConfig, params json.RawMessage) error {
	var p updateSettingsParams
	if err := json.Unmarshal(params, &p); err != nil {
		return err
	}
	settings := canvas.Settings{
		Name:             p.Name,
		SleepDurationSec: p.SleepDurationSec,
		MaxIdleSec:       p.MaxIdleSec,
		WakeSensitivity:  p.WakeSensitivity,
	}
	if err := d.client.UpdateSettings(ctx, cfg, settings); err != nil {
		return err
	}
	// The panel acks settings without echoing them back. Fold the accepted
	// values into the cached snapshot so readers see them right away.
	if view := d.refresher.View(); view.Snapshot != nil {
		snap := *view.Snapshot
		settings.ApplyTo(&snap)
		d.refresher.Push(snap, coordinator.SourcePostAction)
	}
	return nil
}

func runDeleteImage(ctx context.Context, d *Dispatcher, cfg model.CanvasConfig, params json.RawMessage) error {
	var p struct {
		Path string `json:"path"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return err
	}
	return d.client.DeleteImage(ctx, cfg, p.Path)
}

func runCreateGallery(ctx context.Context, d *Dispatcher, cfg model.CanvasConfig, params json.RawMessage) error {
	var p struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return err
	}
	return d.client.CreateGallery(ctx, cfg, p.Name)
}

func runDeleteGallery(ctx context.Context, d *Dispatcher, cfg model.CanvasConfig, params json.RawMessage) error {
	var p struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return err
	}
	return d.client.DeleteGallery(ctx, cfg, p.Name)
}

func runCreatePlaylist(ctx context.Context, d *Dispatcher, cfg model.CanvasConfig, params json.RawMessage) error {
	var p struct {
		Name  string `json:"name"`
		Items []struct {
			Image       string `json:"image"`
			DurationSec int    `json:"duration_sec"`
		} `json:"items"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return err
	}
	playlist := canvas.Playlist{Name: p.Name}
	for _, item := range p.Items {
		playlist.Items = append(playlist.Items, canvas.PlaylistEntry{
			Image:       item.Image,
			DurationSec: item.DurationSec,
		})
	}
	return d.client.SavePlaylist(ctx, cfg, playlist)
}

func runDeletePlaylist(ctx context.Context, d *Dispatcher, cfg model.CanvasConfig, params json.RawMessage) error {
	var p struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return err
	}
	return d.client.DeletePlaylist(ctx, cfg, p.Name)
}
