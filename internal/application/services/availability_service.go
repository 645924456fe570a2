package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/zatekoja/clinicscheduler/internal/domain/entities"
	"github.com/zatekoja/clinicscheduler/internal/domain/providers"
	"github.com/zatekoja/clinicscheduler/internal/domain/repositories"
	apperrors "github.com/zatekoja/clinicscheduler/pkg/errors"
)

// AvailabilityQuery is an availability request for one clinic day
type AvailabilityQuery struct {
	ClinicID           string
	Date               string
	DurationMinutes    int
	BufferMinutes      int
	IncludeUnavailable bool
	MaxAdvanceDays     int
	// PatientID, when set, keeps the patient's own holds from blocking slots
	PatientID string
}

// Validate checks required fields
func (q AvailabilityQuery) Validate() error {
	if strings.TrimSpace(q.ClinicID) == "" {
		return apperrors.NewMissingFieldError("clinicId")
	}
	if strings.TrimSpace(q.Date) == "" {
		return apperrors.NewMissingFieldError("date")
	}
	return nil
}

// AvailabilityService loads clinic state and runs the slot calculator over it
type AvailabilityService struct {
	clinics      repositories.ClinicRepository
	appointments repositories.AppointmentRepository
	holds        repositories.HoldRepository
	policy       SlotPolicy
	clock        providers.Clock
	blocking     []entities.AppointmentStatus
}

// NewAvailabilityService creates a new availability service
func NewAvailabilityService(
	clinics repositories.ClinicRepository,
	appointments repositories.AppointmentRepository,
	holds repositories.HoldRepository,
	policy SlotPolicy,
	clock providers.Clock,
	reserveDuringNegotiation bool,
) *AvailabilityService {
	return &AvailabilityService{
		clinics:      clinics,
		appointments: appointments,
		holds:        holds,
		policy:       policy,
		clock:        clock,
		blocking:     BlockingStatuses(reserveDuringNegotiation),
	}
}

// BlockingStatuses lists the appointment states that occupy a slot
func BlockingStatuses(reserveDuringNegotiation bool) []entities.AppointmentStatus {
	statuses := []entities.AppointmentStatus{
		entities.AppointmentStatusConfirmed,
		entities.AppointmentStatusCompleted,
	}
	if reserveDuringNegotiation {
		statuses = append(statuses,
			entities.AppointmentStatusPending,
			entities.AppointmentStatusCounterOffered,
		)
	}
	return statuses
}

// GetDayAvailability computes the slots for one clinic day
func (s *AvailabilityService) GetDayAvailability(ctx context.Context, q AvailabilityQuery) (*entities.DayAvailability, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	clinic, err := s.clinics.GetByID(ctx, q.ClinicID)
	if err != nil {
		return nil, err
	}
	loc, err := clinic.Location()
	if err != nil {
		return nil, apperrors.NewInternalError("clinic timezone is invalid", err)
	}

	date, err := entities.ParseDate(q.Date, loc)
	if err != nil {
		return nil, apperrors.NewValidationError(fmt.Sprintf("invalid date %q, expected YYYY-MM-DD", q.Date)).
			WithCode(apperrors.CodeInvalidFormat)
	}

	now := s.clock.Now()
	dq := DayQuery{
		Hours:              clinic.Hours,
		HolderID:           q.PatientID,
		Date:               date,
		DurationMinutes:    q.DurationMinutes,
		BufferMinutes:      q.BufferMinutes,
		IncludeUnavailable: q.IncludeUnavailable,
		MaxAdvanceDays:     q.MaxAdvanceDays,
	}
	// Reject bad input before touching the store.
	if err := s.policy.Validate(dq, now); err != nil {
		return nil, err
	}

	window := dayWindow(date)
	dq.Bookings, err = s.appointments.ListBookings(ctx, clinic.ID, window, s.blocking)
	if err != nil {
		return nil, fmt.Errorf("failed to load bookings: %w", err)
	}
	dq.Holds, err = s.holds.ListLive(ctx, clinic.ID, window)
	if err != nil {
		return nil, fmt.Errorf("failed to load holds: %w", err)
	}

	return s.policy.ComputeDay(dq, now)
}

func dayWindow(date time.Time) entities.Interval {
	start := entities.StartOfDay(date)
	return entities.Interval{Start: start, End: start.AddDate(0, 0, 1)}
}
