package repositories

import (
	"context"

	"github.com/zatekoja/clinicscheduler/internal/domain/entities"
)

// ClinicRepository defines the clinic reads slot computation needs
type ClinicRepository interface {
	// GetByID retrieves a clinic by ID
	GetByID(ctx context.Context, id string) (*entities.Clinic, error)

	// Upsert creates or replaces a clinic record
	Upsert(ctx context.Context, clinic *entities.Clinic) error

	// List returns every clinic ordered by ID
	List(ctx context.Context) ([]*entities.Clinic, error)
}
