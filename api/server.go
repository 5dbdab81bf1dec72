/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the chi router, the middleware stack and the route table. This
  is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     Request logging
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for the calendar frontend
  5. Auth:       Bearer JWT to booking.Caller; no token = guest

ROUTE GROUPS:
  /health                         Liveness
  /api/locations                  Locations
  /api/calendars/*                Calendars and their events
  /api/events/*                   Event update, delete, expansion preview
  /api/reservations/*             Reserve, cancel, list
  /api/users/*                    Accounts, balance, credit history
  /api/admin/audit                Counter consistency audit
  /api/scenarios/*                Demo data

Permission checks live in the booking package; handlers only pass the
caller through.

SEE ALSO:
  - handlers.go: Handler implementations
  - auth.go: Token verification
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// RouterOptions configures NewRouter.
type RouterOptions struct {
	// AllowedOrigins for CORS; empty allows any origin.
	AllowedOrigins []string
	// Auth verifies bearer tokens; nil makes every request a guest.
	Auth *Authenticator
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	r := chi.NewRouter()

	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))
	r.Use(opts.Auth.Middleware)

	r.Get("/health", h.Health)

	r.Route("/api", func(r chi.Router) {
		r.Route("/locations", func(r chi.Router) {
			r.Get("/", h.ListLocations)
			r.Post("/", h.CreateLocation)
		})

		r.Route("/calendars", func(r chi.Router) {
			r.Get("/", h.ListCalendars)
			r.Post("/", h.CreateCalendar)
			r.Get("/{id}", h.GetCalendar)
			r.Put("/{id}", h.UpdateCalendar)
			r.Delete("/{id}", h.DeleteCalendar)
			r.Get("/{id}/events", h.ListEvents)
			r.Post("/{id}/events", h.CreateEvent)
		})

		r.Route("/events", func(r chi.Router) {
			r.Post("/expand", h.ExpandEvent)
			r.Get("/{id}", h.GetEvent)
			r.Put("/{id}", h.UpdateEvent)
			r.Delete("/{id}", h.DeleteEvent)
		})

		r.Route("/reservations", func(r chi.Router) {
			r.Get("/", h.ListReservations)
			r.Post("/", h.CreateReservation)
			r.Delete("/{id}", h.CancelReservation)
		})

		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Post("/load", h.LoadScenario)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Get("/audit", h.GetAudit)
			r.Post("/audit", h.RunAudit)
		})

		r.Route("/users", func(r chi.Router) {
			r.Get("/", h.ListUsers)
			r.Post("/", h.SaveUser)
			r.Get("/{id}", h.GetUser)
			r.Put("/{id}/balance", h.AdjustBalance)
			r.Get("/{id}/transactions", h.CreditHistory)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "No such route", nil)
	})

	return r
}
