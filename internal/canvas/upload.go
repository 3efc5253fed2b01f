package canvas

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"

	"github.com/bloomin8/eink-canvas-addon/internal/model"
)

// UploadItem is one image to store on the panel. Data must already be in a
// format the firmware renders (JPEG for regular galleries).
type UploadItem struct {
	Filename    string
	ContentType string
	Data        []byte
}

func (i UploadItem) validate() error {
	if strings.TrimSpace(i.Filename) == "" {
		return fmt.Errorf("upload: filename required")
	}
	if strings.ContainsAny(i.Filename, "/\\") {
		return fmt.Errorf("upload: filename %q must not contain path separators", i.Filename)
	}
	if len(i.Data) == 0 {
		return fmt.Errorf("upload: empty image data for %q", i.Filename)
	}
	return nil
}

// UploadImage stores one image via /upload and returns the device path it
// ended up at. The firmware replies with the gallery directory only, e.g.
// {"status":100,"path":"/gallerys/default/"}, so the filename is appended
// locally; an unparsable reply falls back to the conventional path.
func (c *Client) UploadImage(ctx context.Context, cfg model.CanvasConfig, item UploadItem, gallery string, showNow bool) (string, error) {
	if err := item.validate(); err != nil {
		return "", err
	}
	if gallery == "" {
		gallery = DefaultGallery
	}

	body, contentType, err := encodeImageForm("image", item)
	if err != nil {
		return "", err
	}

	query := url.Values{
		"filename": {item.Filename},
		"gallery":  {gallery},
		"show_now": {boolFlag(showNow)},
	}

	data, err := c.do(ctx, cfg, "upload", apiRequest{
		method:      http.MethodPost,
		path:        "/upload",
		query:       query,
		body:        body,
		contentType: contentType,
		timeout:     uploadTimeout,
	})
	if err != nil {
		var perr *ProtocolError
		if !errors.As(err, &perr) || !isMalformedResponseError(perr.Err) {
			return "", err
		}
		// The panel took the upload but answered with headers net/http will
		// not parse. Redo the exchange over a raw socket. The write is an
		// overwrite on the device side, so repeating it is safe.
		data, err = c.rawPost(ctx, cfg, "upload", "/upload", query, body, contentType)
		if err != nil {
			return "", err
		}
	}

	var parsed struct {
		Status int    `json:"status"`
		Path   string `json:"path"`
	}
	base := "/gallerys/" + gallery + "/"
	if decodeLenient("upload", data, &parsed) == nil && parsed.Path != "" {
		base = parsed.Path
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
	}
	return base + item.Filename, nil
}

// UploadImages stores several images in one /image/uploadMulti exchange. It
// is all-or-nothing on the wire; per-item bookkeeping lives a layer up.
func (c *Client) UploadImages(ctx context.Context, cfg model.CanvasConfig, items []UploadItem, gallery string) error {
	if len(items) == 0 {
		return fmt.Errorf("upload: no images given")
	}
	for _, item := range items {
		if err := item.validate(); err != nil {
			return err
		}
	}
	if gallery == "" {
		gallery = DefaultGallery
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, item := range items {
		if err := writeImagePart(w, "image", item); err != nil {
			return err
		}
	}
	if err := w.Close(); err != nil {
		return &ProtocolError{Op: "uploadMulti", Reason: "encode form", Err: err}
	}

	_, err := c.do(ctx, cfg, "uploadMulti", apiRequest{
		method:      http.MethodPost,
		path:        "/image/uploadMulti",
		query:       url.Values{"gallery": {gallery}},
		body:        buf.Bytes(),
		contentType: w.FormDataContentType(),
		timeout:     uploadTimeout,
	})
	return err
}

// UploadData pushes pre-dithered panel data via /image/dataUpload, bypassing
// the firmware's own conversion.
func (c *Client) UploadData(ctx context.Context, cfg model.CanvasConfig, item UploadItem, gallery string) error {
	if err := item.validate(); err != nil {
		return err
	}
	if gallery == "" {
		gallery = DefaultGallery
	}

	body, contentType, err := encodeImageForm("data", item)
	if err != nil {
		return err
	}
	_, err = c.do(ctx, cfg, "dataUpload", apiRequest{
		method:      http.MethodPost,
		path:        "/image/dataUpload",
		query:       url.Values{"filename": {item.Filename}, "gallery": {gallery}},
		body:        body,
		contentType: contentType,
		timeout:     uploadTimeout,
	})
	return err
}

// DeleteImage removes a stored image by full device path.
func (c *Client) DeleteImage(ctx context.Context, cfg model.CanvasConfig, path string) error {
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("delete: image path required")
	}
	return c.sendJSON(ctx, cfg, "deleteImage", http.MethodPost, "/image/delete", map[string]string{"image": path})
}

func encodeImageForm(field string, item UploadItem) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := writeImagePart(w, field, item); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", &ProtocolError{Op: "upload", Reason: "encode form", Err: err}
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

func writeImagePart(w *multipart.Writer, field string, item UploadItem) error {
	contentType := item.ContentType
	if contentType == "" {
		contentType = "image/jpeg"
	}
	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, field, item.Filename))
	header.Set("Content-Type", contentType)
	part, err := w.CreatePart(header)
	if err != nil {
		return &ProtocolError{Op: "upload", Reason: "encode form", Err: err}
	}
	if _, err := part.Write(item.Data); err != nil {
		return &ProtocolError{Op: "upload", Reason: "encode form", Err: err}
	}
	return nil
}

func boolFlag(v bool) string {
	if v {
		return "1"
	}
	return "0"
}
