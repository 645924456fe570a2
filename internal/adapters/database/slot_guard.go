package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/lib/pq"
	"github.com/zatekoja/clinicscheduler/internal/domain/entities"
	"github.com/zatekoja/clinicscheduler/internal/domain/repositories"
	apperrors "github.com/zatekoja/clinicscheduler/pkg/errors"
)

var dialect = goqu.Dialect("postgres")

// lockClinic takes the clinic row lock that serializes every
// check-then-write against the clinic's calendar.
func lockClinic(ctx context.Context, tx *sql.Tx, clinicID string) error {
	query, args, err := dialect.From("clinics").Select("id").
		Where(goqu.Ex{"id": clinicID}).
		ForUpdate(exp.Wait).
		ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build lock query", err)
	}

	var id string
	err = tx.QueryRowContext(ctx, query, args...).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return apperrors.NewNotFoundError(fmt.Sprintf("clinic with id %s not found", clinicID))
	}
	if err != nil {
		return apperrors.NewInternalError("failed to lock clinic", err)
	}
	return nil
}

// overlapping matches rows whose [slot_start, slot_end) shares an instant
// with slot. Touching ranges do not match, as with entities.Overlaps.
func overlapping(slot entities.Interval) exp.ExpressionList {
	return goqu.And(
		goqu.C("slot_start").Lt(slot.End.UTC()),
		goqu.C("slot_end").Gt(slot.Start.UTC()),
	)
}

// findConflict returns a description of the first appointment or live hold
// occupying g.Slot. It must run inside the transaction holding the clinic lock.
func findConflict(ctx context.Context, tx *sql.Tx, g repositories.SlotGuard, now time.Time) (string, bool, error) {
	if len(g.BlockingStatuses) > 0 {
		ds := dialect.From("appointments").Select("id").
			Where(
				goqu.Ex{"clinic_id": g.ClinicID},
				goqu.C("status").In(statusValues(g.BlockingStatuses)),
				overlapping(g.Slot),
			)
		if g.ExcludeAppointmentID != "" {
			ds = ds.Where(goqu.C("id").Neq(g.ExcludeAppointmentID))
		}
		id, found, err := firstID(ctx, tx, ds.Order(goqu.C("slot_start").Asc(), goqu.C("id").Asc()).Limit(1))
		if err != nil || found {
			return "appointment " + id, found, err
		}
	}

	ds := dialect.From("reservation_holds").Select("id").
		Where(
			goqu.Ex{"clinic_id": g.ClinicID},
			goqu.C("expires_at").Gt(now.UTC()),
			overlapping(g.Slot),
		)
	if g.HolderID != "" {
		ds = ds.Where(goqu.C("patient_id").Neq(g.HolderID))
	}
	id, found, err := firstID(ctx, tx, ds.Order(goqu.C("slot_start").Asc(), goqu.C("id").Asc()).Limit(1))
	return "hold " + id, found, err
}

func firstID(ctx context.Context, tx *sql.Tx, ds *goqu.SelectDataset) (string, bool, error) {
	query, args, err := ds.ToSQL()
	if err != nil {
		return "", false, apperrors.NewInternalError("failed to build conflict query", err)
	}

	var id string
	err = tx.QueryRowContext(ctx, query, args...).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, apperrors.NewInternalError("failed to check slot conflicts", err)
	}
	return id, true, nil
}

func statusValues(statuses []entities.AppointmentStatus) []string {
	out := make([]string, len(statuses))
	for i, st := range statuses {
		out[i] = string(st)
	}
	return out
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
