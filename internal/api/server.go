// Package api exposes the extraction pipeline over HTTP. It is a thin
// adapter: upload plumbing, identifier generation, and static previews
// live here, the pipeline logic does not.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/docufield/field-extractor/internal/config"
	"github.com/docufield/field-extractor/internal/extract"
	"github.com/docufield/field-extractor/internal/observability"
)

// Server holds the HTTP adapter state.
type Server struct {
	cfg    *config.Config
	svc    *extract.Service
	logger *observability.Logger
}

// NewServer creates the HTTP adapter around the pipeline service.
func NewServer(cfg *config.Config, svc *extract.Service, logger *observability.Logger) *Server {
	return &Server{
		cfg:    cfg,
		svc:    svc,
		logger: logger.WithComponent("api"),
	}
}

// Router builds the service router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(CORS(s.cfg.Server.AllowedOrigins))

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"message": "field extraction service"})
	})
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy", "service": "field-extractor"})
	})

	r.Post("/upload-pdf", s.handleUpload)
	r.Get("/document/{documentID}", s.handleGetDocument)
	r.Get("/document/{documentID}/page/{pageNumber}", s.handleGetPage)
	r.Post("/document/{documentID}/page/{pageNumber}/extract", s.handleExtractPage)

	// Preview collaborator: serve the stored PDFs referenced by
	// page_image_reference.
	uploads := http.StripPrefix("/uploads/", http.FileServer(http.Dir(s.cfg.Upload.Dir)))
	r.Get("/uploads/*", uploads.ServeHTTP)

	return r
}

// CORS returns a middleware allowing the configured origins.
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	allowed := make(map[string]bool, len(allowedOrigins))
	allowAll := false
	for _, origin := range allowedOrigins {
		if origin == "*" {
			allowAll = true
		}
		allowed[origin] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" && (allowAll || allowed[origin]) {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
				w.Header().Set("Access-Control-Allow-Credentials", "true")
			}
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
