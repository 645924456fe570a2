package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/doug-martin/goqu/v9"
	"github.com/zatekoja/clinicscheduler/internal/domain/entities"
	"github.com/zatekoja/clinicscheduler/internal/domain/providers"
	"github.com/zatekoja/clinicscheduler/internal/domain/repositories"
	"github.com/zatekoja/clinicscheduler/internal/infrastructure/clients/postgres"
	apperrors "github.com/zatekoja/clinicscheduler/pkg/errors"
)

// HoldAdapter implements the HoldRepository interface on the
// reservation_holds table, so holds survive restarts and are shared by
// every API instance.
type HoldAdapter struct {
	client *postgres.Client
	db     *goqu.Database
	clock  providers.Clock
}

var _ repositories.HoldRepository = (*HoldAdapter)(nil)

// NewHoldAdapter creates a new hold adapter
func NewHoldAdapter(client *postgres.Client, clock providers.Clock) *HoldAdapter {
	if clock == nil {
		clock = providers.SystemClock
	}
	return &HoldAdapter{
		client: client,
		db:     goqu.New("postgres", client.DB()),
		clock:  clock,
	}
}

var holdColumns = []any{"id", "clinic_id", "patient_id", "slot_start", "slot_end", "created_at", "expires_at"}

func scanHold(row rowScanner) (*entities.ReservationHold, error) {
	h := &entities.ReservationHold{}
	if err := row.Scan(&h.ID, &h.ClinicID, &h.PatientID, &h.Slot.Start, &h.Slot.End, &h.CreatedAt, &h.ExpiresAt); err != nil {
		return nil, err
	}
	return h, nil
}

// Place inserts hold when nothing occupies its slot. Expired holds for the
// clinic are purged in the same transaction.
func (a *HoldAdapter) Place(ctx context.Context, hold *entities.ReservationHold, guard repositories.SlotGuard) error {
	now := a.clock.Now()

	purgeQuery, purgeArgs, err := a.db.Delete("reservation_holds").
		Where(goqu.Ex{"clinic_id": guard.ClinicID}, goqu.C("expires_at").Lte(now.UTC())).
		ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build purge query", err)
	}
	insertQuery, insertArgs, err := a.db.Insert("reservation_holds").Rows(goqu.Record{
		"id":         hold.ID,
		"clinic_id":  hold.ClinicID,
		"patient_id": hold.PatientID,
		"slot_start": hold.Slot.Start.UTC(),
		"slot_end":   hold.Slot.End.UTC(),
		"created_at": hold.CreatedAt.UTC(),
		"expires_at": hold.ExpiresAt.UTC(),
	}).ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build insert query", err)
	}

	return a.client.WithTx(ctx, func(tx *sql.Tx) error {
		if err := lockClinic(ctx, tx, guard.ClinicID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, purgeQuery, purgeArgs...); err != nil {
			return apperrors.NewInternalError("failed to purge expired holds", err)
		}

		what, taken, err := findConflict(ctx, tx, guard, now)
		if err != nil {
			return err
		}
		if taken {
			return apperrors.NewHoldContentionError("slot is occupied by " + what)
		}

		if _, err := tx.ExecContext(ctx, insertQuery, insertArgs...); err != nil {
			if isUniqueViolation(err) {
				return apperrors.NewConflictError("hold already exists")
			}
			return apperrors.NewInternalError("failed to place hold", err)
		}
		return nil
	})
}

// GetByID returns a live hold
func (a *HoldAdapter) GetByID(ctx context.Context, id string) (*entities.ReservationHold, error) {
	query, args, err := a.db.From("reservation_holds").Select(holdColumns...).
		Where(goqu.Ex{"id": id}, goqu.C("expires_at").Gt(a.clock.Now().UTC())).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build query", err)
	}

	hold, err := scanHold(a.client.DB().QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("hold with id %s not found", id))
	}
	if err != nil {
		return nil, apperrors.NewInternalError("failed to get hold", err)
	}
	return hold, nil
}

// Delete removes a hold if present
func (a *HoldAdapter) Delete(ctx context.Context, id string) error {
	query, args, err := a.db.Delete("reservation_holds").Where(goqu.Ex{"id": id}).ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build delete query", err)
	}
	if _, err := a.client.DB().ExecContext(ctx, query, args...); err != nil {
		return apperrors.NewInternalError("failed to release hold", err)
	}
	return nil
}

// ListLive returns live holds for a clinic overlapping window
func (a *HoldAdapter) ListLive(ctx context.Context, clinicID string, window entities.Interval) ([]entities.ReservationHold, error) {
	query, args, err := a.db.From("reservation_holds").Select(holdColumns...).
		Where(
			goqu.Ex{"clinic_id": clinicID},
			goqu.C("expires_at").Gt(a.clock.Now().UTC()),
			overlapping(window),
		).
		Order(goqu.C("slot_start").Asc(), goqu.C("id").Asc()).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build holds query", err)
	}

	rows, err := a.client.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to list holds", err)
	}
	defer rows.Close()

	var holds []entities.ReservationHold
	for rows.Next() {
		hold, err := scanHold(rows)
		if err != nil {
			return nil, apperrors.NewInternalError("failed to scan hold", err)
		}
		holds = append(holds, *hold)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewInternalError("failed to list holds", err)
	}
	return holds, nil
}

func deleteHold(ctx context.Context, tx *sql.Tx, id string) error {
	query, args, err := dialect.Delete("reservation_holds").Where(goqu.Ex{"id": id}).ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build delete query", err)
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return apperrors.NewInternalError("failed to consume hold", err)
	}
	return nil
}
