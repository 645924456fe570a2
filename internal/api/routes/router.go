package routes

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/zatekoja/clinicscheduler/internal/api/handlers"
	"github.com/zatekoja/clinicscheduler/internal/api/middleware"
	"github.com/zatekoja/clinicscheduler/internal/infrastructure/observability"
)

// HealthCheck reports whether a dependency is reachable
type HealthCheck func(ctx context.Context) error

// Router holds all route handlers
type Router struct {
	mux *http.ServeMux

	availabilityHandler *handlers.AvailabilityHandler
	holdHandler         *handlers.HoldHandler
	appointmentHandler  *handlers.AppointmentHandler
	eventStreamHandler  *handlers.EventStreamHandler

	rateLimiter    *middleware.RateLimiter
	allowedOrigins []string
	healthChecks   map[string]HealthCheck
	metrics        *observability.Metrics
	logger         zerolog.Logger
}

// Options carries the optional router collaborators
type Options struct {
	EventStream    *handlers.EventStreamHandler
	RateLimiter    *middleware.RateLimiter
	AllowedOrigins []string
	HealthChecks   map[string]HealthCheck
	Metrics        *observability.Metrics
	Logger         zerolog.Logger
}

// NewRouter creates a new router
func NewRouter(
	availabilityHandler *handlers.AvailabilityHandler,
	holdHandler *handlers.HoldHandler,
	appointmentHandler *handlers.AppointmentHandler,
	opts Options,
) *Router {
	return &Router{
		mux:                 http.NewServeMux(),
		availabilityHandler: availabilityHandler,
		holdHandler:         holdHandler,
		appointmentHandler:  appointmentHandler,
		eventStreamHandler:  opts.EventStream,
		rateLimiter:         opts.RateLimiter,
		allowedOrigins:      opts.AllowedOrigins,
		healthChecks:        opts.HealthChecks,
		metrics:             opts.Metrics,
		logger:              opts.Logger,
	}
}

// SetupRoutes configures all routes and returns the wrapped handler
func (r *Router) SetupRoutes() http.Handler {
	r.mux.HandleFunc("GET /health", r.health)

	// Availability
	r.mux.HandleFunc("GET /api/clinics/{id}/availability", r.availabilityHandler.GetDayAvailability)

	// Reservation holds
	r.mux.HandleFunc("POST /api/holds", r.holdHandler.PlaceHold)
	r.mux.HandleFunc("GET /api/holds/{id}", r.holdHandler.GetHold)
	r.mux.HandleFunc("DELETE /api/holds/{id}", r.holdHandler.ReleaseHold)

	// Appointment negotiation
	r.mux.HandleFunc("POST /api/appointments", r.appointmentHandler.RequestAppointment)
	r.mux.HandleFunc("GET /api/appointments/{id}", r.appointmentHandler.GetAppointment)
	r.mux.HandleFunc("POST /api/appointments/{id}/clinic-response", r.appointmentHandler.ClinicResponse)
	r.mux.HandleFunc("POST /api/appointments/{id}/patient-response", r.appointmentHandler.PatientResponse)
	r.mux.HandleFunc("POST /api/appointments/{id}/cancel", r.appointmentHandler.Cancel)
	r.mux.HandleFunc("POST /api/appointments/{id}/complete", r.appointmentHandler.Complete)
	r.mux.HandleFunc("POST /api/appointments/{id}/no-show", r.appointmentHandler.MarkNoShow)

	// Listings
	r.mux.HandleFunc("GET /api/patients/{id}/appointments", r.appointmentHandler.ListPatientAppointments)
	r.mux.HandleFunc("GET /api/clinics/{id}/appointments", r.appointmentHandler.ListClinicAppointments)

	// Live negotiation events for front-desk screens
	if r.eventStreamHandler != nil {
		r.mux.HandleFunc("GET /api/clinics/{id}/events", r.eventStreamHandler.StreamClinicEvents)
	}

	// Apply middleware in reverse order (last middleware wraps first)
	var handler http.Handler = r.mux
	if r.rateLimiter != nil {
		handler = r.rateLimiter.Middleware(handler)
	}
	handler = middleware.LoggingMiddleware(r.logger)(handler)
	handler = middleware.ObservabilityMiddleware(r.metrics)(handler)
	handler = middleware.ResponseOptimization(handler)

	// CORS wraps everything so headers are set even on rejected requests
	handler = middleware.CORSMiddleware(r.allowedOrigins)(handler)

	return handler
}

func (r *Router) health(w http.ResponseWriter, req *http.Request) {
	status := http.StatusOK
	checks := make(map[string]string, len(r.healthChecks))
	for name, check := range r.healthChecks {
		if err := check(req.Context()); err != nil {
			status = http.StatusServiceUnavailable
			checks[name] = err.Error()
			continue
		}
		checks[name] = "ok"
	}

	state := "ok"
	if status != http.StatusOK {
		state = "degraded"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status": state,
		"checks": checks,
	})
}
