package canvas

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
)

func TestAllGalleryImagesWalksPagination(t *testing.T) {
	t.Helper()

	total := 130
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

		page := GalleryPage{Total: total, Offset: offset, Limit: limit}
		for i := offset; i < total && i < offset+limit; i++ {
			page.Images = append(page.Images, GalleryImage{Name: fmt.Sprintf("img-%03d.jpg", i)})
		}
		w.Header().Set("Content-Type", "text/json")
		_ = json.NewEncoder(w).Encode(page)
	}))
	defer ts.Close()

	client := NewClient()
	images, err := client.AllGalleryImages(context.Background(), testConfig(ts), "art")
	if err != nil {
		t.Fatalf("AllGalleryImages() error: %v", err)
	}
	if len(images) != total {
		t.Fatalf("len(images) = %d, want %d", len(images), total)
	}
	if images[0].Name != "img-000.jpg" || images[total-1].Name != "img-129.jpg" {
		t.Fatalf("unexpected page stitching: first %q last %q", images[0].Name, images[total-1].Name)
	}
}

func TestCreateAndDeleteGalleryVerbs(t *testing.T) {
	t.Helper()

	var gotMethods []string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/gallery" {
			t.Errorf("path = %q, want /gallery", r.URL.Path)
		}
		gotMethods = append(gotMethods, r.Method)
		var payload map[string]string
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode gallery payload: %v", err)
		}
		if payload["name"] != "art" {
			t.Errorf("name = %q, want art", payload["name"])
		}
		_, _ = w.Write([]byte(`{"status":100}`))
	}))
	defer ts.Close()

	client := NewClient()
	cfg := testConfig(ts)
	if err := client.CreateGallery(context.Background(), cfg, "art"); err != nil {
		t.Fatalf("CreateGallery() error: %v", err)
	}
	if err := client.DeleteGallery(context.Background(), cfg, "art"); err != nil {
		t.Fatalf("DeleteGallery() error: %v", err)
	}
	if len(gotMethods) != 2 || gotMethods[0] != http.MethodPut || gotMethods[1] != http.MethodDelete {
		t.Fatalf("methods = %v, want [PUT DELETE]", gotMethods)
	}

	if err := client.CreateGallery(context.Background(), cfg, "a/b"); err == nil {
		t.Fatal("CreateGallery() error = nil for name with separator, want non-nil")
	}
}
