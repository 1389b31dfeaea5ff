package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

// RouterOptions configures NewRouter.
type RouterOptions struct {
	Logger *slog.Logger
	CORS   CORSConfig
	// StaticDir, when set, is served at the root for the browser client.
	StaticDir string
}

// NewRouter builds the chi router with the global middleware stack and all
// API routes.
func NewRouter(h *EventHandler, opts RouterOptions) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	r := chi.NewRouter()

	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(Logger(logger))
	r.Use(CORS(opts.CORS))

	r.Get("/health", HealthCheck)

	r.Route("/events", func(r chi.Router) {
		r.Get("/", h.ListEvents)
		r.Post("/", h.CreateEvent)
		r.Get("/lookup", h.LookupEvent)
		r.Get("/{id}", h.GetEvent)
		r.Patch("/{id}", h.UpdateEvent)
		r.Post("/{id}/purchase", h.Purchase)
		r.Get("/{id}/bookings", h.ListBookings)
	})

	r.Route("/llm", func(r chi.Router) {
		r.Post("/message", h.Message)
		r.Post("/parse", h.ParseIntent)
		r.Post("/confirm-booking", h.ConfirmBooking)
	})

	if opts.StaticDir != "" {
		r.Handle("/*", http.FileServer(http.Dir(opts.StaticDir)))
	}

	return r
}
