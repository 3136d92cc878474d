package admin

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/klauspost/compress/gzhttp"
	"github.com/rs/zerolog/log"
)

// RegisterRoutes mounts the admin API under /admin
func RegisterRoutes(mux *http.ServeMux, handlers *AdminHandlers) {
	mux.Handle("/admin", http.RedirectHandler("/admin/", http.StatusMovedPermanently))
	mux.Handle("/admin/", http.StripPrefix("/admin", NewRouter(handlers)))

	log.Info().Msg("Admin endpoints enabled at /admin/*")
}

// NewRouter builds the admin router
func NewRouter(handlers *AdminHandlers) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(AuthMiddleware)
	r.Use(func(next http.Handler) http.Handler { return gzhttp.GzipHandler(next) })

	r.Post("/events", handlers.handleAppendEvents)
	r.Get("/cursor", handlers.handleCursor)
	r.Get("/health", handlers.handleHealth)
	r.Get("/users/{userID}/publish-list", handlers.handleUserPublishList)
	r.Get("/resources/{resourceID}/publish-list", handlers.handleResourcePublishList)

	return r
}
