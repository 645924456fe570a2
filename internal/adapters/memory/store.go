// Package memory provides single-process repositories guarded by one mutex.
// Holds kept here do not survive a restart and are not shared between
// instances; use the postgres adapters for anything beyond development.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/zatekoja/clinicscheduler/internal/domain/entities"
	"github.com/zatekoja/clinicscheduler/internal/domain/providers"
	"github.com/zatekoja/clinicscheduler/internal/domain/repositories"
	apperrors "github.com/zatekoja/clinicscheduler/pkg/errors"
)

type storedAppointment struct {
	appt *entities.Appointment
	slot entities.Interval
}

// Store holds clinics, appointments and holds behind a single lock so every
// check-then-write is atomic.
type Store struct {
	mu           sync.Mutex
	clock        providers.Clock
	clinics      map[string]*entities.Clinic
	appointments map[string]*storedAppointment
	holds        map[string]*entities.ReservationHold
}

// NewStore creates an empty store. Hold expiry is judged against clock.
func NewStore(clock providers.Clock) *Store {
	if clock == nil {
		clock = providers.SystemClock
	}
	return &Store{
		clock:        clock,
		clinics:      make(map[string]*entities.Clinic),
		appointments: make(map[string]*storedAppointment),
		holds:        make(map[string]*entities.ReservationHold),
	}
}

// Clinics returns the clinic repository view
func (s *Store) Clinics() *ClinicStore { return &ClinicStore{s: s} }

// Appointments returns the appointment repository view
func (s *Store) Appointments() *AppointmentStore { return &AppointmentStore{s: s} }

// Holds returns the hold repository view
func (s *Store) Holds() *HoldStore { return &HoldStore{s: s} }

// conflictLocked reports whether g.Slot is occupied. Expired holds found
// along the way are dropped.
func (s *Store) conflictLocked(g repositories.SlotGuard, now time.Time) (string, bool) {
	for id, stored := range s.appointments {
		if id == g.ExcludeAppointmentID || stored.appt.ClinicID != g.ClinicID {
			continue
		}
		if !hasStatus(g.BlockingStatuses, stored.appt.Status) {
			continue
		}
		if entities.Overlaps(g.Slot, stored.slot) {
			return "appointment " + id, true
		}
	}
	for id, h := range s.holds {
		if !h.IsLive(now) {
			delete(s.holds, id)
			continue
		}
		if h.ClinicID != g.ClinicID || (g.HolderID != "" && h.PatientID == g.HolderID) {
			continue
		}
		if entities.Overlaps(g.Slot, h.Slot) {
			return "hold " + id, true
		}
	}
	return "", false
}

func hasStatus(statuses []entities.AppointmentStatus, status entities.AppointmentStatus) bool {
	for _, st := range statuses {
		if st == status {
			return true
		}
	}
	return false
}

// ClinicStore implements repositories.ClinicRepository
type ClinicStore struct{ s *Store }

var _ repositories.ClinicRepository = (*ClinicStore)(nil)

// GetByID retrieves a clinic by ID
func (c *ClinicStore) GetByID(_ context.Context, id string) (*entities.Clinic, error) {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()

	clinic, ok := c.s.clinics[id]
	if !ok {
		return nil, apperrors.NewNotFoundError("clinic not found")
	}
	cp := *clinic
	return &cp, nil
}

// Upsert creates or replaces a clinic
func (c *ClinicStore) Upsert(_ context.Context, clinic *entities.Clinic) error {
	if err := clinic.Validate(); err != nil {
		return apperrors.NewValidationError(err.Error())
	}
	c.s.mu.Lock()
	defer c.s.mu.Unlock()

	now := c.s.clock.Now()
	cp := *clinic
	if existing, ok := c.s.clinics[clinic.ID]; ok {
		cp.CreatedAt = existing.CreatedAt
	} else if cp.CreatedAt.IsZero() {
		cp.CreatedAt = now
	}
	cp.UpdatedAt = now
	c.s.clinics[clinic.ID] = &cp
	return nil
}

// List returns every clinic ordered by ID
func (c *ClinicStore) List(_ context.Context) ([]*entities.Clinic, error) {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()

	out := make([]*entities.Clinic, 0, len(c.s.clinics))
	for _, clinic := range c.s.clinics {
		cp := *clinic
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// AppointmentStore implements repositories.AppointmentRepository
type AppointmentStore struct{ s *Store }

var _ repositories.AppointmentRepository = (*AppointmentStore)(nil)

// Create inserts a new appointment
func (a *AppointmentStore) Create(_ context.Context, w repositories.AppointmentWrite) error {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()

	if _, ok := a.s.clinics[w.Appointment.ClinicID]; !ok {
		return apperrors.NewNotFoundError("clinic not found")
	}
	if _, exists := a.s.appointments[w.Appointment.ID]; exists {
		return apperrors.NewConflictError("appointment already exists")
	}
	if w.Guard != nil {
		if what, taken := a.s.conflictLocked(*w.Guard, a.s.clock.Now()); taken {
			return apperrors.NewSlotUnavailableError("slot overlaps " + what)
		}
	}

	w.Appointment.Version = 1
	a.s.appointments[w.Appointment.ID] = &storedAppointment{appt: w.Appointment.Clone(), slot: w.Slot}
	if w.ConsumeHoldID != "" {
		delete(a.s.holds, w.ConsumeHoldID)
	}
	return nil
}

// GetByID retrieves an appointment by ID
func (a *AppointmentStore) GetByID(_ context.Context, id string) (*entities.Appointment, error) {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()

	stored, ok := a.s.appointments[id]
	if !ok {
		return nil, apperrors.NewNotFoundError("appointment not found")
	}
	return stored.appt.Clone(), nil
}

// SaveTransition persists a state change guarded by the stored version
func (a *AppointmentStore) SaveTransition(_ context.Context, w repositories.AppointmentWrite, expectedVersion int) error {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()

	stored, ok := a.s.appointments[w.Appointment.ID]
	if !ok {
		return apperrors.NewNotFoundError("appointment not found")
	}
	if stored.appt.Version != expectedVersion {
		return apperrors.NewConflictError("appointment was modified concurrently").WithCode(apperrors.CodeStaleAppointment)
	}
	if w.Guard != nil {
		if what, taken := a.s.conflictLocked(*w.Guard, a.s.clock.Now()); taken {
			return apperrors.NewSlotUnavailableError("slot overlaps " + what)
		}
	}

	w.Appointment.Version = expectedVersion + 1
	a.s.appointments[w.Appointment.ID] = &storedAppointment{appt: w.Appointment.Clone(), slot: w.Slot}
	return nil
}

// ListBookings returns reserved ranges overlapping window
func (a *AppointmentStore) ListBookings(_ context.Context, clinicID string, window entities.Interval, statuses []entities.AppointmentStatus) ([]entities.BookingInterval, error) {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()

	var out []entities.BookingInterval
	for id, stored := range a.s.appointments {
		if stored.appt.ClinicID != clinicID || !hasStatus(statuses, stored.appt.Status) {
			continue
		}
		if entities.Overlaps(window, stored.slot) {
			out = append(out, entities.BookingInterval{AppointmentID: id, Interval: stored.slot})
		}
	}
	entities.SortBookings(out)
	return out, nil
}

// ListByPatient retrieves appointments for a patient
func (a *AppointmentStore) ListByPatient(_ context.Context, patientID string, filter repositories.AppointmentFilter) ([]*entities.Appointment, error) {
	return a.list(func(appt *entities.Appointment) bool { return appt.PatientID == patientID }, filter), nil
}

// ListByClinic retrieves appointments for a clinic
func (a *AppointmentStore) ListByClinic(_ context.Context, clinicID string, filter repositories.AppointmentFilter) ([]*entities.Appointment, error) {
	return a.list(func(appt *entities.Appointment) bool { return appt.ClinicID == clinicID }, filter), nil
}

func (a *AppointmentStore) list(match func(*entities.Appointment) bool, filter repositories.AppointmentFilter) []*entities.Appointment {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()

	type row struct {
		appt  *entities.Appointment
		start time.Time
	}
	var rows []row
	for _, stored := range a.s.appointments {
		if !match(stored.appt) {
			continue
		}
		if filter.Status != "" && stored.appt.Status != filter.Status {
			continue
		}
		if filter.From != nil && stored.slot.Start.Before(*filter.From) {
			continue
		}
		if filter.To != nil && stored.slot.Start.After(*filter.To) {
			continue
		}
		rows = append(rows, row{appt: stored.appt.Clone(), start: stored.slot.Start})
	}

	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].start.Equal(rows[j].start) {
			return rows[i].start.After(rows[j].start)
		}
		return rows[i].appt.ID < rows[j].appt.ID
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(rows) {
			return []*entities.Appointment{}
		}
		rows = rows[filter.Offset:]
	}
	if filter.Limit > 0 && len(rows) > filter.Limit {
		rows = rows[:filter.Limit]
	}

	out := make([]*entities.Appointment, len(rows))
	for i, r := range rows {
		out[i] = r.appt
	}
	return out
}

// HoldStore implements repositories.HoldRepository
type HoldStore struct{ s *Store }

var _ repositories.HoldRepository = (*HoldStore)(nil)

// Place inserts hold if the slot is free of bookings and live holds
func (h *HoldStore) Place(_ context.Context, hold *entities.ReservationHold, guard repositories.SlotGuard) error {
	h.s.mu.Lock()
	defer h.s.mu.Unlock()

	if _, ok := h.s.clinics[guard.ClinicID]; !ok {
		return apperrors.NewNotFoundError("clinic not found")
	}
	if what, taken := h.s.conflictLocked(guard, h.s.clock.Now()); taken {
		return apperrors.NewHoldContentionError("slot is occupied by " + what)
	}

	cp := *hold
	h.s.holds[hold.ID] = &cp
	return nil
}

// GetByID returns a live hold
func (h *HoldStore) GetByID(_ context.Context, id string) (*entities.ReservationHold, error) {
	h.s.mu.Lock()
	defer h.s.mu.Unlock()

	hold, ok := h.s.holds[id]
	if !ok {
		return nil, apperrors.NewNotFoundError("hold not found")
	}
	if !hold.IsLive(h.s.clock.Now()) {
		delete(h.s.holds, id)
		return nil, apperrors.NewNotFoundError("hold not found")
	}
	cp := *hold
	return &cp, nil
}

// Delete removes a hold if present
func (h *HoldStore) Delete(_ context.Context, id string) error {
	h.s.mu.Lock()
	defer h.s.mu.Unlock()

	delete(h.s.holds, id)
	return nil
}

// ListLive returns live holds overlapping window
func (h *HoldStore) ListLive(_ context.Context, clinicID string, window entities.Interval) ([]entities.ReservationHold, error) {
	h.s.mu.Lock()
	defer h.s.mu.Unlock()

	now := h.s.clock.Now()
	var out []entities.ReservationHold
	for id, hold := range h.s.holds {
		if !hold.IsLive(now) {
			delete(h.s.holds, id)
			continue
		}
		if hold.ClinicID == clinicID && entities.Overlaps(window, hold.Slot) {
			out = append(out, *hold)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Slot.Start.Equal(out[j].Slot.Start) {
			return out[i].Slot.Start.Before(out[j].Slot.Start)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}
