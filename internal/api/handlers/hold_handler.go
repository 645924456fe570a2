package handlers

import (
	"context"
	"net/http"

	"github.com/zatekoja/clinicscheduler/internal/application/services"
	"github.com/zatekoja/clinicscheduler/internal/domain/entities"
)

// HoldService manages reservation holds
type HoldService interface {
	Place(ctx context.Context, req services.PlaceHoldRequest) (*entities.ReservationHold, error)
	Get(ctx context.Context, holdID string) (*entities.ReservationHold, error)
	Release(ctx context.Context, holdID string) error
}

// HoldHandler handles reservation hold requests
type HoldHandler struct {
	service HoldService
}

// NewHoldHandler creates a new hold handler
func NewHoldHandler(service HoldService) *HoldHandler {
	return &HoldHandler{service: service}
}

type placeHoldPayload struct {
	ClinicID   string `json:"clinicId"`
	PatientID  string `json:"patientId"`
	Date       string `json:"date"`
	Time       string `json:"time"`
	Duration   int    `json:"duration"`
	TTLMinutes int    `json:"ttlMinutes"`
}

// PlaceHold handles POST /api/holds
func (h *HoldHandler) PlaceHold(w http.ResponseWriter, r *http.Request) {
	var payload placeHoldPayload
	if err := decodeJSON(w, r, &payload); err != nil {
		respondWithAppError(w, r, err)
		return
	}

	req, err := services.NewPlaceHoldRequest(
		payload.ClinicID,
		payload.PatientID,
		entities.SlotProposal{Date: payload.Date, Time: payload.Time, DurationMinutes: payload.Duration},
		payload.TTLMinutes,
	)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}

	hold, err := h.service.Place(r.Context(), req)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}

	respondWithJSON(w, http.StatusCreated, hold)
}

// GetHold handles GET /api/holds/{id}
func (h *HoldHandler) GetHold(w http.ResponseWriter, r *http.Request) {
	hold, err := h.service.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, hold)
}

// ReleaseHold handles DELETE /api/holds/{id}
func (h *HoldHandler) ReleaseHold(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Release(r.Context(), r.PathValue("id")); err != nil {
		respondWithAppError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
