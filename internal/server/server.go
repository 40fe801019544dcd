// Package server sets up the HTTP router, middleware, and request handlers.
package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/howard-nolan/apiconsole/internal/config"
	"github.com/howard-nolan/apiconsole/internal/dispatch"
	"github.com/howard-nolan/apiconsole/internal/models"
)

// Server holds the HTTP router and all dependencies that handlers need.
type Server struct {
	router   chi.Router
	cfg      *config.Config
	dispatch *dispatch.Dispatcher
	registry *models.Registry
	catalog  *models.ImageCatalog
	envelope Envelope
	log      zerolog.Logger

	// now is swapped out in tests to pin /health timestamps.
	now func() time.Time
}

// New creates a Server, wires up routes and middleware, and returns it
// ready to use as an http.Handler.
func New(cfg *config.Config, d *dispatch.Dispatcher, reg *models.Registry, log zerolog.Logger) *Server {
	s := &Server{
		cfg:      cfg,
		dispatch: d,
		registry: reg,
		catalog:  models.DefaultImageCatalog(),
		envelope: Envelope(cfg.Server.Envelope),
		log:      log,
		now:      time.Now,
	}
	s.routes()
	return s
}

// routes builds the chi router with all middleware and route definitions.
// Gathered in one method so the routing table is easy to scan.
func (s *Server) routes() {
	r := chi.NewRouter()

	// --- Global middleware ---
	// hlog.NewHandler puts a copy of the logger in every request's context;
	// handlers pull it back out with hlog.FromRequest so each line carries
	// the request id.
	r.Use(hlog.NewHandler(s.log))
	r.Use(hlog.RequestIDHandler("req_id", "X-Request-Id"))

	// One access line per request once the handler returns. For /generate
	// that is when the stream closes, so duration covers the whole stream.
	r.Use(hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(r).Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Int("size", size).
			Dur("duration", duration).
			Msg("request")
	}))

	// middleware.Recoverer catches panics in handlers and returns a 500
	// instead of crashing the whole process.
	r.Use(middleware.Recoverer)

	// --- Routes ---
	r.Get("/health", s.handleHealth)
	r.Get("/models", s.handleModels)
	r.Post("/ask", s.handleAsk)
	r.Post("/generate", s.handleGenerate)
	r.Post("/vision", s.handleVision)
	r.Post("/image", s.handleImage)
	r.Post("/image/config", s.handleImageConfig)

	s.router = r
}

// ServeHTTP makes Server satisfy the http.Handler interface. Every incoming
// request flows through this method, and we just delegate to chi's router.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
