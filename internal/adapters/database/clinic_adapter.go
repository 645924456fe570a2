package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/zatekoja/clinicscheduler/internal/domain/entities"
	"github.com/zatekoja/clinicscheduler/internal/domain/repositories"
	"github.com/zatekoja/clinicscheduler/internal/infrastructure/clients/postgres"
	apperrors "github.com/zatekoja/clinicscheduler/pkg/errors"
)

// ClinicAdapter implements the ClinicRepository interface
type ClinicAdapter struct {
	client *postgres.Client
	db     *goqu.Database
}

var _ repositories.ClinicRepository = (*ClinicAdapter)(nil)

// NewClinicAdapter creates a new clinic adapter
func NewClinicAdapter(client *postgres.Client) *ClinicAdapter {
	return &ClinicAdapter{
		client: client,
		db:     goqu.New("postgres", client.DB()),
	}
}

var clinicColumns = []any{"id", "name", "phone", "timezone", "weekly_hours", "created_at", "updated_at"}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanClinic(row rowScanner) (*entities.Clinic, error) {
	clinic := &entities.Clinic{}
	var hours []byte
	if err := row.Scan(
		&clinic.ID,
		&clinic.Name,
		&clinic.Phone,
		&clinic.Timezone,
		&hours,
		&clinic.CreatedAt,
		&clinic.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(hours, &clinic.Hours); err != nil {
		return nil, fmt.Errorf("clinic %s has malformed weekly_hours: %w", clinic.ID, err)
	}
	return clinic, nil
}

// GetByID retrieves a clinic by ID
func (a *ClinicAdapter) GetByID(ctx context.Context, id string) (*entities.Clinic, error) {
	query, args, err := a.db.From("clinics").Select(clinicColumns...).
		Where(goqu.Ex{"id": id}).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build query", err)
	}

	clinic, err := scanClinic(a.client.DB().QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("clinic with id %s not found", id))
	}
	if err != nil {
		return nil, apperrors.NewInternalError("failed to get clinic", err)
	}
	return clinic, nil
}

// Upsert creates a clinic or replaces its name, phone, time zone and hours
func (a *ClinicAdapter) Upsert(ctx context.Context, clinic *entities.Clinic) error {
	if err := clinic.Validate(); err != nil {
		return apperrors.NewValidationError(err.Error())
	}

	hours, err := json.Marshal(clinic.Hours)
	if err != nil {
		return apperrors.NewInternalError("failed to encode weekly hours", err)
	}

	now := time.Now().UTC()
	if clinic.CreatedAt.IsZero() {
		clinic.CreatedAt = now
	}
	clinic.UpdatedAt = now

	query, args, err := a.db.Insert("clinics").
		Rows(goqu.Record{
			"id":           clinic.ID,
			"name":         clinic.Name,
			"phone":        clinic.Phone,
			"timezone":     clinic.Timezone,
			"weekly_hours": string(hours),
			"created_at":   clinic.CreatedAt,
			"updated_at":   clinic.UpdatedAt,
		}).
		OnConflict(goqu.DoUpdate("id", goqu.Record{
			"name":         goqu.L("EXCLUDED.name"),
			"phone":        goqu.L("EXCLUDED.phone"),
			"timezone":     goqu.L("EXCLUDED.timezone"),
			"weekly_hours": goqu.L("EXCLUDED.weekly_hours"),
			"updated_at":   goqu.L("EXCLUDED.updated_at"),
		})).
		ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build upsert query", err)
	}

	if _, err := a.client.DB().ExecContext(ctx, query, args...); err != nil {
		return apperrors.NewInternalError("failed to upsert clinic", err)
	}
	return nil
}

// List returns every clinic ordered by ID
func (a *ClinicAdapter) List(ctx context.Context) ([]*entities.Clinic, error) {
	query, args, err := a.db.From("clinics").Select(clinicColumns...).
		Order(goqu.C("id").Asc()).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build list query", err)
	}

	rows, err := a.client.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to list clinics", err)
	}
	defer rows.Close()

	clinics := []*entities.Clinic{}
	for rows.Next() {
		clinic, err := scanClinic(rows)
		if err != nil {
			return nil, apperrors.NewInternalError("failed to scan clinic", err)
		}
		clinics = append(clinics, clinic)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewInternalError("failed to list clinics", err)
	}
	return clinics, nil
}
