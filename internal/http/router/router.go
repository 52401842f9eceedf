// Package router wires handlers and middleware into the HTTP surface.
package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"crowdship-engine/internal/http/handlers"
	"crowdship-engine/internal/http/middleware"
	"crowdship-engine/internal/http/middleware/ratelimit"
)

// Deps groups everything the router mounts.
type Deps struct {
	Base          *handlers.Handlers
	Announcements *handlers.AnnouncementHandler
	Routes        *handlers.RouteHandler
	Matches       *handlers.MatchHandler
	Escrow        *handlers.EscrowHandler
	Sweep         *handlers.SweepHandler
	RateLimit     *ratelimit.Middleware
}

// New constructs a chi-based http.Handler with base middleware and routes.
func New(d Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Observability(d.Base.Logger))
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(15 * time.Second))
	if d.RateLimit != nil {
		r.Use(d.RateLimit.Handler())
	}

	r.Get("/ping", d.Base.Ping)
	r.Method(http.MethodHead, "/healthcheck", http.HandlerFunc(d.Base.HealthcheckHead))
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/announcements", func(r chi.Router) {
		r.Post("/", d.Announcements.Create)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", d.Announcements.GetByID)
			r.Post("/transition", d.Announcements.Transition)

			r.Post("/matches", d.Matches.Generate)
			r.Get("/matches/next", d.Matches.NextBest)

			r.Post("/escrow", d.Escrow.Hold)
			r.Get("/escrow", d.Escrow.GetByAnnouncement)
			r.Post("/escrow/validate", d.Escrow.Validate)
			r.Post("/escrow/refund", d.Escrow.Refund)
			r.Post("/escrow/dispute", d.Escrow.Dispute)
		})
	})

	r.Route("/routes", func(r chi.Router) {
		r.Post("/", d.Routes.Create)
		r.Get("/{id}", d.Routes.GetByID)
	})

	r.Route("/matches", func(r chi.Router) {
		r.Post("/{id}/accept", d.Matches.Accept)
		r.Post("/{id}/reject", d.Matches.Reject)
	})

	r.Post("/sweep/run", d.Sweep.Run)

	r.NotFound(http.HandlerFunc(d.Base.NotFound))

	return r
}
