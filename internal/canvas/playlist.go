package canvas

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/bloomin8/eink-canvas-addon/internal/model"
)

type PlaylistInfo struct {
	Name string `json:"name"`
}

// PlaylistEntry is one step in a playlist rotation.
type PlaylistEntry struct {
	Image       string `json:"image"`
	DurationSec int    `json:"duration"`
}

type Playlist struct {
	Name  string          `json:"name"`
	Items []PlaylistEntry `json:"items"`
}

// Playlists lists the playlists stored on the panel.
func (c *Client) Playlists(ctx context.Context, cfg model.CanvasConfig) ([]PlaylistInfo, error) {
	var playlists []PlaylistInfo
	if err := c.getJSON(ctx, cfg, "playlistList", "/playlist/list", nil, &playlists); err != nil {
		return nil, err
	}
	return playlists, nil
}

// GetPlaylist fetches one playlist with its entries.
func (c *Client) GetPlaylist(ctx context.Context, cfg model.CanvasConfig, name string) (Playlist, error) {
	if err := validatePlaylistName(name); err != nil {
		return Playlist{}, err
	}
	var playlist Playlist
	query := url.Values{"playlist_name": {name}}
	if err := c.getJSON(ctx, cfg, "playlist", "/playlist", query, &playlist); err != nil {
		return Playlist{}, err
	}
	if playlist.Name == "" {
		playlist.Name = name
	}
	return playlist, nil
}

// SavePlaylist writes a playlist, creating or replacing it wholesale.
func (c *Client) SavePlaylist(ctx context.Context, cfg model.CanvasConfig, playlist Playlist) error {
	if err := validatePlaylistName(playlist.Name); err != nil {
		return err
	}
	for _, item := range playlist.Items {
		if strings.TrimSpace(item.Image) == "" {
			return fmt.Errorf("playlist: entry with empty image path")
		}
	}
	return c.sendJSON(ctx, cfg, "savePlaylist", http.MethodPut, "/playlist", playlist)
}

// DeletePlaylist removes a playlist by name.
func (c *Client) DeletePlaylist(ctx context.Context, cfg model.CanvasConfig, name string) error {
	if err := validatePlaylistName(name); err != nil {
		return err
	}
	return c.sendJSON(ctx, cfg, "deletePlaylist", http.MethodDelete, "/playlist", map[string]string{"name": name})
}

func validatePlaylistName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("playlist: name required")
	}
	if strings.ContainsAny(name, "/\\") {
		return fmt.Errorf("playlist: name %q must not contain path separators", name)
	}
	return nil
}
