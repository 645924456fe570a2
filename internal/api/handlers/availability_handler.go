package handlers

import (
	"context"
	"net/http"

	"github.com/zatekoja/clinicscheduler/internal/application/services"
	"github.com/zatekoja/clinicscheduler/internal/domain/entities"
	apperrors "github.com/zatekoja/clinicscheduler/pkg/errors"
)

// AvailabilityService computes a clinic day's slots
type AvailabilityService interface {
	GetDayAvailability(ctx context.Context, q services.AvailabilityQuery) (*entities.DayAvailability, error)
}

// AvailabilityHandler handles slot availability requests
type AvailabilityHandler struct {
	service AvailabilityService
}

// NewAvailabilityHandler creates a new availability handler
func NewAvailabilityHandler(service AvailabilityService) *AvailabilityHandler {
	return &AvailabilityHandler{service: service}
}

// GetDayAvailability handles GET /api/clinics/{id}/availability
func (h *AvailabilityHandler) GetDayAvailability(w http.ResponseWriter, r *http.Request) {
	q, err := availabilityQuery(r)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}

	day, err := h.service.GetDayAvailability(r.Context(), q)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}

	respondWithJSON(w, http.StatusOK, day)
}

func availabilityQuery(r *http.Request) (services.AvailabilityQuery, error) {
	q := services.AvailabilityQuery{
		ClinicID:  r.PathValue("id"),
		Date:      r.URL.Query().Get("date"),
		PatientID: r.URL.Query().Get("patientId"),
	}
	if q.ClinicID == "" {
		return q, apperrors.NewMissingFieldError("clinic id")
	}

	var err error
	if q.DurationMinutes, err = queryInt(r, "duration"); err != nil {
		return q, err
	}
	if q.BufferMinutes, err = queryInt(r, "buffer"); err != nil {
		return q, err
	}
	if q.MaxAdvanceDays, err = queryInt(r, "maxAdvanceDays"); err != nil {
		return q, err
	}
	if q.IncludeUnavailable, err = queryBool(r, "includeUnavailable"); err != nil {
		return q, err
	}
	return q, nil
}
