package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"
)

type RouterOptions struct {
	// ReserveLimiter throttles POST /bookings. Nil disables throttling.
	ReserveLimiter *rate.Limiter
}

// NewRouter constructs the API HTTP router.
func NewRouter(s *Server) http.Handler {
	return NewRouterWithOptions(s, RouterOptions{})
}

func NewRouterWithOptions(s *Server, opts RouterOptions) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	// Health endpoint is used for infra checks.
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Route("/members", func(r chi.Router) {
		r.Post("/", s.RegisterMember)
		r.Get("/{memberId}", s.GetMember)
		r.Post("/{memberId}/renewal", s.RenewMember)
		r.Get("/{memberId}/bookings", s.ListMemberBookings)
	})
	r.Route("/sessions", func(r chi.Router) {
		r.Post("/", s.ScheduleSession)
		r.Get("/{sessionId}", s.GetSession)
		r.Get("/{sessionId}/bookings", s.ListSessionBookings)
	})
	r.Route("/bookings", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			if opts.ReserveLimiter != nil {
				r.Use(RateLimit(opts.ReserveLimiter))
			}
			r.Post("/", s.ReserveBooking)
		})
		r.Get("/{bookingId}", s.GetBooking)
		r.Post("/{bookingId}/cancel", s.CancelBooking)
		r.Post("/{bookingId}/attendance", s.RecordAttendance)
	})
	return r
}
