package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/doug-martin/goqu/v9"
	"github.com/zatekoja/clinicscheduler/internal/domain/entities"
	"github.com/zatekoja/clinicscheduler/internal/domain/providers"
	"github.com/zatekoja/clinicscheduler/internal/domain/repositories"
	"github.com/zatekoja/clinicscheduler/internal/infrastructure/clients/postgres"
	apperrors "github.com/zatekoja/clinicscheduler/pkg/errors"
)

// AppointmentAdapter implements the AppointmentRepository interface. Every
// guarded write locks the clinic row first, so concurrent writers for one
// clinic are serialized across processes.
type AppointmentAdapter struct {
	client *postgres.Client
	db     *goqu.Database
	clock  providers.Clock
}

var _ repositories.AppointmentRepository = (*AppointmentAdapter)(nil)

// NewAppointmentAdapter creates a new appointment adapter. Hold liveness in
// guards is judged against clock.
func NewAppointmentAdapter(client *postgres.Client, clock providers.Clock) *AppointmentAdapter {
	if clock == nil {
		clock = providers.SystemClock
	}
	return &AppointmentAdapter{
		client: client,
		db:     goqu.New("postgres", client.DB()),
		clock:  clock,
	}
}

var appointmentColumns = []any{
	"id", "patient_id", "patient_name", "patient_phone", "clinic_id", "clinic_name",
	"appointment_type", "status", "original_request", "clinic_responses", "patient_responses",
	"proposal", "proposed_by", "confirmed", "cancelled_by", "cancellation_reason",
	"version", "created_at", "updated_at",
}

func appointmentRecord(w repositories.AppointmentWrite) (goqu.Record, error) {
	appt := w.Appointment

	encode := func(v any) (string, error) {
		b, err := json.Marshal(v)
		return string(b), err
	}
	original, err := encode(appt.OriginalRequest)
	if err != nil {
		return nil, err
	}
	clinicLog, err := encode(nonNilRecords(appt.ClinicResponses))
	if err != nil {
		return nil, err
	}
	patientLog, err := encode(nonNilRecords(appt.PatientResponses))
	if err != nil {
		return nil, err
	}
	proposal, err := encode(appt.Proposal)
	if err != nil {
		return nil, err
	}
	var confirmed any
	if appt.Confirmed != nil {
		if confirmed, err = encode(appt.Confirmed); err != nil {
			return nil, err
		}
	}

	return goqu.Record{
		"patient_name":        appt.PatientName,
		"patient_phone":       appt.PatientPhone,
		"clinic_name":         appt.ClinicName,
		"appointment_type":    appt.Type,
		"status":              string(appt.Status),
		"original_request":    original,
		"clinic_responses":    clinicLog,
		"patient_responses":   patientLog,
		"proposal":            proposal,
		"proposed_by":         string(appt.ProposedBy),
		"confirmed":           confirmed,
		"cancelled_by":        string(appt.CancelledBy),
		"cancellation_reason": appt.CancellationReason,
		"slot_start":          w.Slot.Start.UTC(),
		"slot_end":            w.Slot.End.UTC(),
		"updated_at":          appt.UpdatedAt.UTC(),
	}, nil
}

func nonNilRecords(in []entities.ResponseRecord) []entities.ResponseRecord {
	if in == nil {
		return []entities.ResponseRecord{}
	}
	return in
}

func scanAppointment(row rowScanner) (*entities.Appointment, error) {
	appt := &entities.Appointment{}
	var original, clinicLog, patientLog, proposal, confirmed []byte
	var status, proposedBy, cancelledBy string

	if err := row.Scan(
		&appt.ID,
		&appt.PatientID,
		&appt.PatientName,
		&appt.PatientPhone,
		&appt.ClinicID,
		&appt.ClinicName,
		&appt.Type,
		&status,
		&original,
		&clinicLog,
		&patientLog,
		&proposal,
		&proposedBy,
		&confirmed,
		&cancelledBy,
		&appt.CancellationReason,
		&appt.Version,
		&appt.CreatedAt,
		&appt.UpdatedAt,
	); err != nil {
		return nil, err
	}

	appt.Status = entities.AppointmentStatus(status)
	appt.ProposedBy = entities.Actor(proposedBy)
	appt.CancelledBy = entities.Actor(cancelledBy)

	if err := json.Unmarshal(original, &appt.OriginalRequest); err != nil {
		return nil, fmt.Errorf("appointment %s: bad original_request: %w", appt.ID, err)
	}
	if err := json.Unmarshal(clinicLog, &appt.ClinicResponses); err != nil {
		return nil, fmt.Errorf("appointment %s: bad clinic_responses: %w", appt.ID, err)
	}
	if err := json.Unmarshal(patientLog, &appt.PatientResponses); err != nil {
		return nil, fmt.Errorf("appointment %s: bad patient_responses: %w", appt.ID, err)
	}
	if err := json.Unmarshal(proposal, &appt.Proposal); err != nil {
		return nil, fmt.Errorf("appointment %s: bad proposal: %w", appt.ID, err)
	}
	if len(confirmed) > 0 {
		appt.Confirmed = &entities.SlotProposal{}
		if err := json.Unmarshal(confirmed, appt.Confirmed); err != nil {
			return nil, fmt.Errorf("appointment %s: bad confirmed: %w", appt.ID, err)
		}
	}
	return appt, nil
}

func (a *AppointmentAdapter) checkGuard(ctx context.Context, tx *sql.Tx, guard *repositories.SlotGuard) error {
	if guard == nil {
		return nil
	}
	what, taken, err := findConflict(ctx, tx, *guard, a.clock.Now())
	if err != nil {
		return err
	}
	if taken {
		return apperrors.NewSlotUnavailableError("slot overlaps " + what)
	}
	return nil
}

// Create inserts a new appointment at version 1
func (a *AppointmentAdapter) Create(ctx context.Context, w repositories.AppointmentWrite) error {
	record, err := appointmentRecord(w)
	if err != nil {
		return apperrors.NewInternalError("failed to encode appointment", err)
	}
	record["id"] = w.Appointment.ID
	record["patient_id"] = w.Appointment.PatientID
	record["clinic_id"] = w.Appointment.ClinicID
	record["version"] = 1
	record["created_at"] = w.Appointment.CreatedAt.UTC()

	query, args, err := a.db.Insert("appointments").Rows(record).ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build insert query", err)
	}

	err = a.client.WithTx(ctx, func(tx *sql.Tx) error {
		if err := lockClinic(ctx, tx, w.Appointment.ClinicID); err != nil {
			return err
		}
		if err := a.checkGuard(ctx, tx, w.Guard); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			if isUniqueViolation(err) {
				return apperrors.NewConflictError("appointment already exists")
			}
			return apperrors.NewInternalError("failed to create appointment", err)
		}
		if w.ConsumeHoldID != "" {
			return deleteHold(ctx, tx, w.ConsumeHoldID)
		}
		return nil
	})
	if err != nil {
		return err
	}

	w.Appointment.Version = 1
	return nil
}

// GetByID retrieves an appointment by ID
func (a *AppointmentAdapter) GetByID(ctx context.Context, id string) (*entities.Appointment, error) {
	query, args, err := a.db.From("appointments").Select(appointmentColumns...).
		Where(goqu.Ex{"id": id}).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build query", err)
	}

	appt, err := scanAppointment(a.client.DB().QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("appointment with id %s not found", id))
	}
	if err != nil {
		return nil, apperrors.NewInternalError("failed to get appointment", err)
	}
	return appt, nil
}

// SaveTransition writes w if the stored version equals expectedVersion
func (a *AppointmentAdapter) SaveTransition(ctx context.Context, w repositories.AppointmentWrite, expectedVersion int) error {
	record, err := appointmentRecord(w)
	if err != nil {
		return apperrors.NewInternalError("failed to encode appointment", err)
	}
	record["version"] = expectedVersion + 1

	versionQuery, versionArgs, err := a.db.From("appointments").Select("version").
		Where(goqu.Ex{"id": w.Appointment.ID}).
		ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build version query", err)
	}
	updateQuery, updateArgs, err := a.db.Update("appointments").
		Set(record).
		Where(goqu.Ex{"id": w.Appointment.ID, "version": expectedVersion}).
		ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build update query", err)
	}

	err = a.client.WithTx(ctx, func(tx *sql.Tx) error {
		if err := lockClinic(ctx, tx, w.Appointment.ClinicID); err != nil {
			return err
		}

		var stored int
		err := tx.QueryRowContext(ctx, versionQuery, versionArgs...).Scan(&stored)
		if errors.Is(err, sql.ErrNoRows) {
			return apperrors.NewNotFoundError(fmt.Sprintf("appointment with id %s not found", w.Appointment.ID))
		}
		if err != nil {
			return apperrors.NewInternalError("failed to read appointment version", err)
		}
		if stored != expectedVersion {
			return apperrors.NewConflictError("appointment was modified concurrently").WithCode(apperrors.CodeStaleAppointment)
		}

		if err := a.checkGuard(ctx, tx, w.Guard); err != nil {
			return err
		}

		result, err := tx.ExecContext(ctx, updateQuery, updateArgs...)
		if err != nil {
			return apperrors.NewInternalError("failed to update appointment", err)
		}
		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return apperrors.NewInternalError("failed to get rows affected", err)
		}
		if rowsAffected == 0 {
			return apperrors.NewConflictError("appointment was modified concurrently").WithCode(apperrors.CodeStaleAppointment)
		}
		return nil
	})
	if err != nil {
		return err
	}

	w.Appointment.Version = expectedVersion + 1
	return nil
}

// ListBookings returns reserved ranges overlapping window for the given statuses
func (a *AppointmentAdapter) ListBookings(ctx context.Context, clinicID string, window entities.Interval, statuses []entities.AppointmentStatus) ([]entities.BookingInterval, error) {
	if len(statuses) == 0 {
		return nil, nil
	}

	query, args, err := a.db.From("appointments").Select("id", "slot_start", "slot_end").
		Where(
			goqu.Ex{"clinic_id": clinicID},
			goqu.C("status").In(statusValues(statuses)),
			overlapping(window),
		).
		Order(goqu.C("slot_start").Asc(), goqu.C("id").Asc()).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build bookings query", err)
	}

	rows, err := a.client.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to list bookings", err)
	}
	defer rows.Close()

	var bookings []entities.BookingInterval
	for rows.Next() {
		var b entities.BookingInterval
		if err := rows.Scan(&b.AppointmentID, &b.Interval.Start, &b.Interval.End); err != nil {
			return nil, apperrors.NewInternalError("failed to scan booking", err)
		}
		bookings = append(bookings, b)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewInternalError("failed to list bookings", err)
	}
	return bookings, nil
}

// ListByPatient retrieves appointments for a patient
func (a *AppointmentAdapter) ListByPatient(ctx context.Context, patientID string, filter repositories.AppointmentFilter) ([]*entities.Appointment, error) {
	return a.list(ctx, goqu.Ex{"patient_id": patientID}, filter)
}

// ListByClinic retrieves appointments for a clinic
func (a *AppointmentAdapter) ListByClinic(ctx context.Context, clinicID string, filter repositories.AppointmentFilter) ([]*entities.Appointment, error) {
	return a.list(ctx, goqu.Ex{"clinic_id": clinicID}, filter)
}

func (a *AppointmentAdapter) list(ctx context.Context, owner goqu.Ex, filter repositories.AppointmentFilter) ([]*entities.Appointment, error) {
	ds := a.db.From("appointments").Select(appointmentColumns...).Where(owner)

	if filter.Status != "" {
		ds = ds.Where(goqu.Ex{"status": string(filter.Status)})
	}
	if filter.From != nil {
		ds = ds.Where(goqu.C("slot_start").Gte(filter.From.UTC()))
	}
	if filter.To != nil {
		ds = ds.Where(goqu.C("slot_start").Lte(filter.To.UTC()))
	}

	ds = ds.Order(goqu.C("slot_start").Desc(), goqu.C("id").Asc())

	if filter.Limit > 0 {
		ds = ds.Limit(uint(filter.Limit))
	}
	if filter.Offset > 0 {
		ds = ds.Offset(uint(filter.Offset))
	}

	query, args, err := ds.ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build list query", err)
	}

	rows, err := a.client.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to list appointments", err)
	}
	defer rows.Close()

	appointments := []*entities.Appointment{}
	for rows.Next() {
		appt, err := scanAppointment(rows)
		if err != nil {
			return nil, apperrors.NewInternalError("failed to scan appointment", err)
		}
		appointments = append(appointments, appt)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewInternalError("failed to list appointments", err)
	}
	return appointments, nil
}
