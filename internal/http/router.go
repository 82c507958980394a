package http

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robertarktes/flight-reservations/internal/auth"
	"github.com/robertarktes/flight-reservations/internal/idempotency"
	"github.com/robertarktes/flight-reservations/internal/observability"
	"github.com/robertarktes/flight-reservations/internal/rateLimit"
)

func SetupRouter(h *Handlers, logger observability.Logger, rl *rateLimit.RateLimiter, idemp *idempotency.Idempotency, jwtSecret []byte) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(RequestIDMiddleware)
	r.Use(LoggerMiddleware(logger))
	r.Use(TracingMiddleware)
	r.Use(MetricsMiddleware)

	r.Get("/v1/healthz", h.Healthz)
	r.Get("/v1/readyz", h.Readyz)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(jwtSecret))
		r.Use(RateLimitMiddleware(rl))
		r.Use(IdempotencyMiddleware(idemp))

		r.Post("/v1/reservations", h.CreateReservation)
		r.Get("/v1/reservations", h.ListReservations)
		r.Get("/v1/reservations/{id}", h.GetReservation)
		r.Post("/v1/reservations/{id}/passengers", h.AddPassenger)
		r.Put("/v1/reservations/{id}/passengers/{passport}", h.UpdatePassenger)
		r.Delete("/v1/reservations/{id}/passengers/{passport}", h.RemovePassenger)
		r.Post("/v1/reservations/{id}/cancel", h.CancelReservation)
		r.Post("/v1/reservations/{id}/fare-class", h.ChangeFareClass)

		r.Get("/v1/flights/{id}", h.GetFlight)
		r.Get("/v1/flights/{id}/availability", h.FlightAvailability)
		r.Post("/v1/flights", h.CreateFlight)
		r.Post("/v1/flights/{id}/reprice", h.RepriceFlight)
		r.Post("/v1/promotions", h.CreatePromotion)
	})

	return r
}
