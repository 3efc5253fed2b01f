package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/bloomin8/eink-canvas-addon/internal/http/handlers"
)

// NewRouter builds the full HTTP routing tree for the backend API. The
// request timeout has to cover a radio wake, the post-wake retries and a
// slow e-ink full refresh, so it is far above a normal REST budget.
func NewRouter(api *handlers.API) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RecoverJSON)
	r.Use(middleware.Timeout(2 * time.Minute))
	r.Use(StripIngressPrefix)
	r.Use(RequestLogger(api))

	r.Get("/healthz", api.Health)
	r.Route("/api", func(apiRouter chi.Router) {
		apiRouter.Get("/snapshot", api.Snapshot)
		apiRouter.Post("/refresh", api.Refresh)

		apiRouter.Get("/actions", api.ListActions)
		apiRouter.Post("/actions/{name}", func(w http.ResponseWriter, r *http.Request) {
			api.RunAction(w, r, chi.URLParam(r, "name"))
		})

		apiRouter.Post("/upload", api.Upload)
		apiRouter.Post("/upload/data", api.UploadData)

		apiRouter.Get("/galleries", api.ListGalleries)
		apiRouter.Get("/galleries/{name}/images", func(w http.ResponseWriter, r *http.Request) {
			api.ListGalleryImages(w, r, chi.URLParam(r, "name"))
		})
		apiRouter.Put("/galleries/{name}", func(w http.ResponseWriter, r *http.Request) {
			api.CreateGallery(w, r, chi.URLParam(r, "name"))
		})
		apiRouter.Delete("/galleries/{name}", func(w http.ResponseWriter, r *http.Request) {
			api.DeleteGallery(w, r, chi.URLParam(r, "name"))
		})

		apiRouter.Get("/playlists", api.ListPlaylists)
		apiRouter.Get("/playlists/{name}", func(w http.ResponseWriter, r *http.Request) {
			api.GetPlaylist(w, r, chi.URLParam(r, "name"))
		})
		apiRouter.Put("/playlists/{name}", func(w http.ResponseWriter, r *http.Request) {
			api.SavePlaylist(w, r, chi.URLParam(r, "name"))
		})
		apiRouter.Delete("/playlists/{name}", func(w http.ResponseWriter, r *http.Request) {
			api.DeletePlaylist(w, r, chi.URLParam(r, "name"))
		})

		apiRouter.Get("/image", api.Image)

		apiRouter.Get("/events", api.Events)
		apiRouter.Get("/events/log", api.EventLog)
	})

	return r
}

// RunServer starts and gracefully stops HTTP server with context cancellation.
func RunServer(ctx context.Context, server *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
