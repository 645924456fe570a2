package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/zatekoja/clinicscheduler/internal/domain/entities"
	"github.com/zatekoja/clinicscheduler/internal/domain/providers"
	"github.com/zatekoja/clinicscheduler/internal/domain/repositories"
	apperrors "github.com/zatekoja/clinicscheduler/pkg/errors"
)

// RequestAppointmentInput is the requestAppointment payload
type RequestAppointmentInput struct {
	PatientID    string
	PatientName  string
	PatientPhone string
	ClinicID     string
	Date         string
	Time         string
	Duration     int
	Type         string
	Reason       string
	// HoldID is an optional hold consumed when the appointment is created
	HoldID string
}

// Validate checks required fields
func (in RequestAppointmentInput) Validate() error {
	switch {
	case strings.TrimSpace(in.PatientID) == "":
		return apperrors.NewMissingFieldError("patientId")
	case strings.TrimSpace(in.ClinicID) == "":
		return apperrors.NewMissingFieldError("clinicId")
	case in.Date == "":
		return apperrors.NewMissingFieldError("requestedDate")
	case in.Time == "":
		return apperrors.NewMissingFieldError("requestedTime")
	case in.Duration == 0:
		return apperrors.NewMissingFieldError("duration")
	}
	return nil
}

// AppointmentService drives the appointment negotiation against the store
type AppointmentService struct {
	appointments repositories.AppointmentRepository
	clinics      repositories.ClinicRepository
	holds        repositories.HoldRepository
	negotiator   *Negotiator
	dispatcher   *EventDispatcher
	clock        providers.Clock
	blocking     []entities.AppointmentStatus
	metrics      MetricsRecorder
	logger       zerolog.Logger
}

// NewAppointmentService creates a new appointment service
func NewAppointmentService(
	appointments repositories.AppointmentRepository,
	clinics repositories.ClinicRepository,
	holds repositories.HoldRepository,
	negotiator *Negotiator,
	dispatcher *EventDispatcher,
	clock providers.Clock,
	reserveDuringNegotiation bool,
	metrics MetricsRecorder,
	logger zerolog.Logger,
) *AppointmentService {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &AppointmentService{
		appointments: appointments,
		clinics:      clinics,
		holds:        holds,
		negotiator:   negotiator,
		dispatcher:   dispatcher,
		clock:        clock,
		blocking:     BlockingStatuses(reserveDuringNegotiation),
		metrics:      metrics,
		logger:       logger.With().Str("component", "appointment_service").Logger(),
	}
}

// RequestAppointment creates a pending appointment for an available slot
func (s *AppointmentService) RequestAppointment(ctx context.Context, in RequestAppointmentInput) (*entities.Appointment, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	clinic, err := s.clinics.GetByID(ctx, in.ClinicID)
	if err != nil {
		return nil, err
	}

	slot := entities.SlotProposal{Date: in.Date, Time: in.Time, DurationMinutes: in.Duration}
	sc, err := s.slotContext(ctx, clinic, slot, "")
	if err != nil {
		return nil, err
	}

	if in.HoldID != "" {
		if err := s.checkHold(ctx, in, clinic, slot, sc); err != nil {
			return nil, err
		}
	}

	t, err := s.negotiator.NewAppointment(AppointmentRequest{
		PatientID:    in.PatientID,
		PatientName:  in.PatientName,
		PatientPhone: in.PatientPhone,
		Clinic:       clinic,
		Slot:         slot,
		Type:         in.Type,
		Reason:       in.Reason,
	}, sc)
	if err != nil {
		return nil, err
	}

	w := repositories.AppointmentWrite{
		Appointment:   t.Appointment,
		Slot:          *t.Guard,
		Guard:         s.guard(t.Appointment, *t.Guard),
		ConsumeHoldID: in.HoldID,
	}
	if err := s.appointments.Create(ctx, w); err != nil {
		return nil, s.storeError(ctx, err)
	}

	s.metrics.RecordTransition(ctx, "", string(t.Appointment.Status))
	s.emit(ctx, t, clinic)
	return t.Appointment, nil
}

// RespondAsClinic applies a clinic response to an appointment
func (s *AppointmentService) RespondAsClinic(ctx context.Context, appointmentID string, resp entities.ClinicResponse) (*entities.Appointment, error) {
	return s.transition(ctx, appointmentID, func(appt *entities.Appointment, clinic *entities.Clinic) (*Transition, error) {
		if err := requireNegotiating(appt, "clinic response"); err != nil {
			return nil, err
		}
		target, _ := ClinicTarget(appt, resp)
		sc, err := s.slotContext(ctx, clinic, target, appt.ID)
		if err != nil {
			return nil, err
		}
		return s.negotiator.ApplyClinicResponse(appt, resp, sc)
	})
}

// RespondAsPatient applies a patient response to an appointment
func (s *AppointmentService) RespondAsPatient(ctx context.Context, appointmentID string, resp entities.PatientResponse) (*entities.Appointment, error) {
	return s.transition(ctx, appointmentID, func(appt *entities.Appointment, clinic *entities.Clinic) (*Transition, error) {
		if appt.Status != entities.AppointmentStatusCounterOffered {
			return s.negotiator.ApplyPatientResponse(appt, resp, SlotContext{Now: s.clock.Now()})
		}
		target, _ := PatientTarget(appt, resp)
		sc, err := s.slotContext(ctx, clinic, target, appt.ID)
		if err != nil {
			return nil, err
		}
		return s.negotiator.ApplyPatientResponse(appt, resp, sc)
	})
}

// Cancel cancels a non-terminal appointment on behalf of actor
func (s *AppointmentService) Cancel(ctx context.Context, appointmentID string, actor entities.Actor, reason string) (*entities.Appointment, error) {
	return s.transition(ctx, appointmentID, func(appt *entities.Appointment, _ *entities.Clinic) (*Transition, error) {
		return s.negotiator.Cancel(appt, actor, reason, s.clock.Now())
	})
}

// Complete marks a confirmed appointment as attended
func (s *AppointmentService) Complete(ctx context.Context, appointmentID string) (*entities.Appointment, error) {
	return s.transition(ctx, appointmentID, func(appt *entities.Appointment, _ *entities.Clinic) (*Transition, error) {
		return s.negotiator.Complete(appt, s.clock.Now())
	})
}

// MarkNoShow marks a confirmed appointment as missed
func (s *AppointmentService) MarkNoShow(ctx context.Context, appointmentID string) (*entities.Appointment, error) {
	return s.transition(ctx, appointmentID, func(appt *entities.Appointment, _ *entities.Clinic) (*Transition, error) {
		return s.negotiator.MarkNoShow(appt, s.clock.Now())
	})
}

// GetAppointment retrieves an appointment by ID
func (s *AppointmentService) GetAppointment(ctx context.Context, id string) (*entities.Appointment, error) {
	return s.appointments.GetByID(ctx, id)
}

// ListForPatient lists a patient's appointments
func (s *AppointmentService) ListForPatient(ctx context.Context, patientID string, filter repositories.AppointmentFilter) ([]*entities.Appointment, error) {
	return s.appointments.ListByPatient(ctx, patientID, filter)
}

// ListForClinic lists a clinic's appointments
func (s *AppointmentService) ListForClinic(ctx context.Context, clinicID string, filter repositories.AppointmentFilter) ([]*entities.Appointment, error) {
	return s.appointments.ListByClinic(ctx, clinicID, filter)
}

type transitionFunc func(appt *entities.Appointment, clinic *entities.Clinic) (*Transition, error)

// transition loads, applies and persists one state change, then emits its
// event once the write has committed.
func (s *AppointmentService) transition(ctx context.Context, appointmentID string, apply transitionFunc) (*entities.Appointment, error) {
	if strings.TrimSpace(appointmentID) == "" {
		return nil, apperrors.NewMissingFieldError("appointmentId")
	}

	appt, err := s.appointments.GetByID(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	clinic, err := s.clinics.GetByID(ctx, appt.ClinicID)
	if err != nil {
		return nil, err
	}

	t, err := apply(appt, clinic)
	if err != nil {
		if apperrors.HasCode(err, apperrors.CodeSlotNoLongerAvailable) {
			s.metrics.RecordContention(ctx, "confirmation")
		}
		return nil, err
	}

	loc, err := clinic.Location()
	if err != nil {
		return nil, apperrors.NewInternalError("clinic timezone is invalid", err)
	}
	reserved, err := t.Appointment.ReservedInterval(loc)
	if err != nil {
		return nil, apperrors.NewInternalError("appointment slot is malformed", err)
	}

	w := repositories.AppointmentWrite{Appointment: t.Appointment, Slot: reserved}
	if t.Guard != nil {
		w.Guard = s.guard(t.Appointment, *t.Guard)
	}
	if err := s.appointments.SaveTransition(ctx, w, appt.Version); err != nil {
		return nil, s.storeError(ctx, err)
	}

	s.metrics.RecordTransition(ctx, string(t.From), string(t.Appointment.Status))
	s.logger.Info().
		Str("appointment_id", t.Appointment.ID).
		Str("from", string(t.From)).
		Str("to", string(t.Appointment.Status)).
		Msg("appointment transitioned")

	s.emit(ctx, t, clinic)
	return t.Appointment, nil
}

// slotContext loads bookings and live holds overlapping target, leaving out
// the appointment being changed.
func (s *AppointmentService) slotContext(ctx context.Context, clinic *entities.Clinic, target entities.SlotProposal, excludeID string) (SlotContext, error) {
	loc, err := clinic.Location()
	if err != nil {
		return SlotContext{}, apperrors.NewInternalError("clinic timezone is invalid", err)
	}
	sc := SlotContext{Location: loc, Hours: clinic.Hours, Now: s.clock.Now()}

	window, err := target.Interval(loc)
	if err != nil {
		// Malformed input is reported by the negotiator.
		return sc, nil
	}

	bookings, err := s.appointments.ListBookings(ctx, clinic.ID, window, s.blocking)
	if err != nil {
		return SlotContext{}, fmt.Errorf("failed to load bookings: %w", err)
	}
	for _, b := range bookings {
		if b.AppointmentID != excludeID {
			sc.Bookings = append(sc.Bookings, b)
		}
	}

	sc.Holds, err = s.holds.ListLive(ctx, clinic.ID, window)
	if err != nil {
		return SlotContext{}, fmt.Errorf("failed to load holds: %w", err)
	}
	return sc, nil
}

func (s *AppointmentService) checkHold(ctx context.Context, in RequestAppointmentInput, clinic *entities.Clinic, slot entities.SlotProposal, sc SlotContext) error {
	hold, err := s.holds.GetByID(ctx, in.HoldID)
	if err != nil {
		if apperrors.IsType(err, apperrors.ErrorTypeNotFound) {
			return apperrors.NewValidationError("hold has expired or does not exist")
		}
		return err
	}
	if hold.ClinicID != clinic.ID || hold.PatientID != in.PatientID {
		return apperrors.NewValidationError("hold belongs to a different clinic or patient")
	}
	requested, err := slot.Interval(sc.Location)
	if err != nil {
		return apperrors.NewValidationError(err.Error()).WithCode(apperrors.CodeInvalidFormat)
	}
	if !hold.Slot.Contains(requested) {
		return apperrors.NewValidationError("hold does not cover the requested slot")
	}
	return nil
}

func (s *AppointmentService) guard(appt *entities.Appointment, slot entities.Interval) *repositories.SlotGuard {
	return &repositories.SlotGuard{
		ClinicID:             appt.ClinicID,
		Slot:                 slot,
		BlockingStatuses:     s.blocking,
		ExcludeAppointmentID: appt.ID,
		HolderID:             appt.PatientID,
	}
}

func (s *AppointmentService) storeError(ctx context.Context, err error) error {
	if apperrors.HasCode(err, apperrors.CodeSlotNoLongerAvailable) {
		s.metrics.RecordContention(ctx, "confirmation")
	}
	return err
}

func (s *AppointmentService) emit(ctx context.Context, t *Transition, clinic *entities.Clinic) {
	if t.Event == nil || s.dispatcher == nil {
		return
	}
	t.Event.Clinic.Phone = clinic.Phone
	s.dispatcher.Dispatch(ctx, t.Event)
}
