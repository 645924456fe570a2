package repositories

import (
	"context"

	"github.com/zatekoja/clinicscheduler/internal/domain/entities"
)

// HoldRepository stores reservation holds. Expiry is lazy: reads treat a
// hold past its expiry as absent and may delete it.
type HoldRepository interface {
	// Place inserts hold only if guard finds no conflicting booking or live hold
	Place(ctx context.Context, hold *entities.ReservationHold, guard SlotGuard) error

	// GetByID returns a live hold or a not-found error
	GetByID(ctx context.Context, id string) (*entities.ReservationHold, error)

	// Delete removes a hold. Deleting a missing hold is not an error.
	Delete(ctx context.Context, id string) error

	// ListLive returns live holds for a clinic overlapping window
	ListLive(ctx context.Context, clinicID string, window entities.Interval) ([]entities.ReservationHold, error)
}
