package handlers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/zatekoja/clinicscheduler/internal/application/services"
	"github.com/zatekoja/clinicscheduler/internal/domain/entities"
	"github.com/zatekoja/clinicscheduler/internal/domain/repositories"
	apperrors "github.com/zatekoja/clinicscheduler/pkg/errors"
)

// AppointmentService defines the interface for appointment operations
type AppointmentService interface {
	RequestAppointment(ctx context.Context, in services.RequestAppointmentInput) (*entities.Appointment, error)
	RespondAsClinic(ctx context.Context, appointmentID string, resp entities.ClinicResponse) (*entities.Appointment, error)
	RespondAsPatient(ctx context.Context, appointmentID string, resp entities.PatientResponse) (*entities.Appointment, error)
	Cancel(ctx context.Context, appointmentID string, actor entities.Actor, reason string) (*entities.Appointment, error)
	Complete(ctx context.Context, appointmentID string) (*entities.Appointment, error)
	MarkNoShow(ctx context.Context, appointmentID string) (*entities.Appointment, error)
	GetAppointment(ctx context.Context, id string) (*entities.Appointment, error)
	ListForPatient(ctx context.Context, patientID string, filter repositories.AppointmentFilter) ([]*entities.Appointment, error)
	ListForClinic(ctx context.Context, clinicID string, filter repositories.AppointmentFilter) ([]*entities.Appointment, error)
}

// AppointmentHandler handles appointment requests
type AppointmentHandler struct {
	service AppointmentService
}

// NewAppointmentHandler creates a new appointment handler
func NewAppointmentHandler(service AppointmentService) *AppointmentHandler {
	return &AppointmentHandler{
		service: service,
	}
}

type requestAppointmentPayload struct {
	PatientID       string `json:"patientId"`
	PatientName     string `json:"patientName"`
	PatientPhone    string `json:"patientPhone"`
	ClinicID        string `json:"clinicId"`
	RequestedDate   string `json:"requestedDate"`
	RequestedTime   string `json:"requestedTime"`
	Duration        int    `json:"duration"`
	AppointmentType string `json:"appointmentType"`
	Reason          string `json:"reason"`
	HoldID          string `json:"holdId"`
}

// responsePayload carries either party's response. Which fields apply
// depends on ResponseType.
type responsePayload struct {
	ResponseType     string `json:"responseType"`
	ProposedDate     string `json:"proposedDate"`
	ProposedTime     string `json:"proposedTime"`
	ProposedDuration int    `json:"proposedDuration"`
	Message          string `json:"message"`
}

func (p responsePayload) proposal() entities.SlotProposal {
	return entities.SlotProposal{Date: p.ProposedDate, Time: p.ProposedTime, DurationMinutes: p.ProposedDuration}
}

type cancelPayload struct {
	Actor  string `json:"actor"`
	Reason string `json:"reason"`
}

// RequestAppointment handles POST /api/appointments
func (h *AppointmentHandler) RequestAppointment(w http.ResponseWriter, r *http.Request) {
	var payload requestAppointmentPayload
	if err := decodeJSON(w, r, &payload); err != nil {
		respondWithAppError(w, r, err)
		return
	}

	appt, err := h.service.RequestAppointment(r.Context(), services.RequestAppointmentInput{
		PatientID:    payload.PatientID,
		PatientName:  payload.PatientName,
		PatientPhone: payload.PatientPhone,
		ClinicID:     payload.ClinicID,
		Date:         payload.RequestedDate,
		Time:         payload.RequestedTime,
		Duration:     payload.Duration,
		Type:         payload.AppointmentType,
		Reason:       payload.Reason,
		HoldID:       payload.HoldID,
	})
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}

	respondWithJSON(w, http.StatusCreated, appt)
}

// GetAppointment handles GET /api/appointments/{id}
func (h *AppointmentHandler) GetAppointment(w http.ResponseWriter, r *http.Request) {
	appt, err := h.service.GetAppointment(r.Context(), r.PathValue("id"))
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, appt)
}

// ClinicResponse handles POST /api/appointments/{id}/clinic-response
func (h *AppointmentHandler) ClinicResponse(w http.ResponseWriter, r *http.Request) {
	var payload responsePayload
	if err := decodeJSON(w, r, &payload); err != nil {
		respondWithAppError(w, r, err)
		return
	}

	resp, err := decodeClinicResponse(payload)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}

	appt, err := h.service.RespondAsClinic(r.Context(), r.PathValue("id"), resp)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, appt)
}

// PatientResponse handles POST /api/appointments/{id}/patient-response
func (h *AppointmentHandler) PatientResponse(w http.ResponseWriter, r *http.Request) {
	var payload responsePayload
	if err := decodeJSON(w, r, &payload); err != nil {
		respondWithAppError(w, r, err)
		return
	}

	resp, err := decodePatientResponse(payload)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}

	appt, err := h.service.RespondAsPatient(r.Context(), r.PathValue("id"), resp)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, appt)
}

// Cancel handles POST /api/appointments/{id}/cancel
func (h *AppointmentHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	var payload cancelPayload
	if err := decodeJSON(w, r, &payload); err != nil {
		respondWithAppError(w, r, err)
		return
	}

	actor, err := entities.ParseActor(payload.Actor)
	if err != nil {
		respondWithAppError(w, r, apperrors.NewValidationError(err.Error()))
		return
	}

	appt, err := h.service.Cancel(r.Context(), r.PathValue("id"), actor, payload.Reason)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, appt)
}

// Complete handles POST /api/appointments/{id}/complete
func (h *AppointmentHandler) Complete(w http.ResponseWriter, r *http.Request) {
	appt, err := h.service.Complete(r.Context(), r.PathValue("id"))
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, appt)
}

// MarkNoShow handles POST /api/appointments/{id}/no-show
func (h *AppointmentHandler) MarkNoShow(w http.ResponseWriter, r *http.Request) {
	appt, err := h.service.MarkNoShow(r.Context(), r.PathValue("id"))
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, appt)
}

// ListPatientAppointments handles GET /api/patients/{id}/appointments
func (h *AppointmentHandler) ListPatientAppointments(w http.ResponseWriter, r *http.Request) {
	filter, err := appointmentFilter(r)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}

	appts, err := h.service.ListForPatient(r.Context(), r.PathValue("id"), filter)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"appointments": appts,
		"count":        len(appts),
	})
}

// ListClinicAppointments handles GET /api/clinics/{id}/appointments
func (h *AppointmentHandler) ListClinicAppointments(w http.ResponseWriter, r *http.Request) {
	filter, err := appointmentFilter(r)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}

	appts, err := h.service.ListForClinic(r.Context(), r.PathValue("id"), filter)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"appointments": appts,
		"count":        len(appts),
	})
}

func decodeClinicResponse(p responsePayload) (entities.ClinicResponse, error) {
	switch entities.ClinicResponseType(p.ResponseType) {
	case entities.ClinicResponseConfirmation:
		return entities.ClinicConfirmation{Message: p.Message}, nil
	case entities.ClinicResponseCounterOffer:
		offer, err := entities.NewClinicCounterOffer(p.proposal(), p.Message)
		if err != nil {
			return nil, apperrors.NewValidationError(err.Error())
		}
		return offer, nil
	case entities.ClinicResponseRejection:
		rejection, err := entities.NewClinicRejection(p.Message)
		if err != nil {
			return nil, apperrors.NewMissingFieldError("message")
		}
		return rejection, nil
	}
	return nil, apperrors.NewValidationError(fmt.Sprintf("unknown clinic responseType %q", p.ResponseType))
}

func decodePatientResponse(p responsePayload) (entities.PatientResponse, error) {
	switch entities.PatientResponseType(p.ResponseType) {
	case entities.PatientResponseAccept:
		return entities.PatientAccept{Message: p.Message}, nil
	case entities.PatientResponseCounter:
		counter, err := entities.NewPatientCounter(p.proposal(), p.Message)
		if err != nil {
			return nil, apperrors.NewValidationError(err.Error())
		}
		return counter, nil
	case entities.PatientResponseDecline:
		return entities.PatientDecline{Message: p.Message}, nil
	}
	return nil, apperrors.NewValidationError(fmt.Sprintf("unknown patient responseType %q", p.ResponseType))
}

// appointmentFilter reads status, from, to (RFC3339), limit and offset
func appointmentFilter(r *http.Request) (repositories.AppointmentFilter, error) {
	query := r.URL.Query()
	filter := repositories.AppointmentFilter{
		Status: entities.AppointmentStatus(query.Get("status")),
	}

	for name, dst := range map[string]**time.Time{"from": &filter.From, "to": &filter.To} {
		raw := query.Get(name)
		if raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return filter, apperrors.NewValidationError(fmt.Sprintf("invalid %s date format (use RFC3339)", name)).
				WithCode(apperrors.CodeInvalidFormat)
		}
		*dst = &t
	}

	var err error
	if filter.Limit, err = queryInt(r, "limit"); err != nil {
		return filter, err
	}
	if filter.Offset, err = queryInt(r, "offset"); err != nil {
		return filter, err
	}
	if filter.Limit < 0 || filter.Offset < 0 {
		return filter, apperrors.NewRangeError("limit and offset must not be negative")
	}
	return filter, nil
}
