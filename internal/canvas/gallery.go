package canvas

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/bloomin8/eink-canvas-addon/internal/model"
)

const defaultPageLimit = 100

type Gallery struct {
	Name string `json:"name"`
}

type GalleryImage struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
	Time int64  `json:"time"`
}

// GalleryPage is one page of a gallery listing as served by /gallery.
type GalleryPage struct {
	Images []GalleryImage `json:"data"`
	Total  int            `json:"total"`
	Offset int            `json:"offset"`
	Limit  int            `json:"limit"`
}

// Galleries lists every gallery on the panel.
func (c *Client) Galleries(ctx context.Context, cfg model.CanvasConfig) ([]Gallery, error) {
	var galleries []Gallery
	if err := c.getJSON(ctx, cfg, "galleryList", "/gallery/list", nil, &galleries); err != nil {
		return nil, err
	}
	return galleries, nil
}

// GalleryImages fetches one page of a gallery's contents.
func (c *Client) GalleryImages(ctx context.Context, cfg model.CanvasConfig, gallery string, offset, limit int) (GalleryPage, error) {
	if gallery == "" {
		gallery = DefaultGallery
	}
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = defaultPageLimit
	}

	query := url.Values{
		"gallery_name": {gallery},
		"offset":       {strconv.Itoa(offset)},
		"limit":        {strconv.Itoa(limit)},
	}
	var page GalleryPage
	if err := c.getJSON(ctx, cfg, "galleryImages", "/gallery", query, &page); err != nil {
		return GalleryPage{}, err
	}
	return page, nil
}

// AllGalleryImages walks /gallery pagination until the whole gallery is
// listed. The panel holds at most a few hundred images, so this stays cheap.
func (c *Client) AllGalleryImages(ctx context.Context, cfg model.CanvasConfig, gallery string) ([]GalleryImage, error) {
	var images []GalleryImage
	offset := 0
	for {
		page, err := c.GalleryImages(ctx, cfg, gallery, offset, defaultPageLimit)
		if err != nil {
			return nil, err
		}
		images = append(images, page.Images...)
		offset += len(page.Images)
		if len(page.Images) == 0 || (page.Total > 0 && offset >= page.Total) {
			return images, nil
		}
	}
}

// CreateGallery makes a new named gallery on the panel.
func (c *Client) CreateGallery(ctx context.Context, cfg model.CanvasConfig, name string) error {
	if err := validateGalleryName(name); err != nil {
		return err
	}
	return c.sendJSON(ctx, cfg, "createGallery", http.MethodPut, "/gallery", map[string]string{"name": name})
}

// DeleteGallery removes a gallery and everything in it.
func (c *Client) DeleteGallery(ctx context.Context, cfg model.CanvasConfig, name string) error {
	if err := validateGalleryName(name); err != nil {
		return err
	}
	return c.sendJSON(ctx, cfg, "deleteGallery", http.MethodDelete, "/gallery", map[string]string{"name": name})
}

func validateGalleryName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("gallery: name required")
	}
	if strings.ContainsAny(name, "/\\") {
		return fmt.Errorf("gallery: name %q must not contain path separators", name)
	}
	return nil
}
