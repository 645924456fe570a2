package repositories

import (
	"context"
	"time"

	"github.com/zatekoja/clinicscheduler/internal/domain/entities"
)

// SlotGuard is the availability re-check a write must pass atomically.
// The store rejects the write when Slot overlaps an appointment in one of
// BlockingStatuses (other than ExcludeAppointmentID) or a live hold not
// owned by HolderID.
type SlotGuard struct {
	ClinicID             string
	Slot                 entities.Interval
	BlockingStatuses     []entities.AppointmentStatus
	ExcludeAppointmentID string
	HolderID             string
}

// AppointmentWrite bundles an appointment with the reserved range persisted
// alongside it for conflict queries.
type AppointmentWrite struct {
	Appointment *entities.Appointment
	Slot        entities.Interval
	// Guard is optional. A nil guard skips the availability re-check.
	Guard *SlotGuard
	// ConsumeHoldID names a hold deleted in the same transaction
	ConsumeHoldID string
}

// AppointmentRepository defines the interface for appointment data operations
type AppointmentRepository interface {
	// Create inserts a new appointment and sets its version to 1
	Create(ctx context.Context, w AppointmentWrite) error

	// GetByID retrieves an appointment by ID
	GetByID(ctx context.Context, id string) (*entities.Appointment, error)

	// SaveTransition persists a state change if the stored version still
	// equals expectedVersion, then bumps the version on w.Appointment
	SaveTransition(ctx context.Context, w AppointmentWrite, expectedVersion int) error

	// ListBookings returns reserved ranges overlapping window for the given statuses
	ListBookings(ctx context.Context, clinicID string, window entities.Interval, statuses []entities.AppointmentStatus) ([]entities.BookingInterval, error)

	// ListByPatient retrieves appointments for a patient
	ListByPatient(ctx context.Context, patientID string, filter AppointmentFilter) ([]*entities.Appointment, error)

	// ListByClinic retrieves appointments for a clinic
	ListByClinic(ctx context.Context, clinicID string, filter AppointmentFilter) ([]*entities.Appointment, error)
}

// AppointmentFilter defines filters for listing appointments
type AppointmentFilter struct {
	Status entities.AppointmentStatus
	From   *time.Time
	To     *time.Time
	Limit  int
	Offset int
}
