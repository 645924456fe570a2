package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/zatekoja/clinicscheduler/internal/domain/entities"
	"github.com/zatekoja/clinicscheduler/internal/domain/repositories"
)

// ClinicWarmer loads a clinic into a cache
type ClinicWarmer interface {
	Warm(ctx context.Context, clinic *entities.Clinic) error
}

// CacheWarmingService preloads clinic records so the first availability
// query after a restart does not hit the database.
type CacheWarmingService struct {
	clinics repositories.ClinicRepository
	warmer  ClinicWarmer
	logger  zerolog.Logger
}

// NewCacheWarmingService creates a new cache warming service. clinics should
// be the uncached repository.
func NewCacheWarmingService(clinics repositories.ClinicRepository, warmer ClinicWarmer, logger zerolog.Logger) *CacheWarmingService {
	return &CacheWarmingService{
		clinics: clinics,
		warmer:  warmer,
		logger:  logger.With().Str("component", "cache_warming").Logger(),
	}
}

// WarmCache caches every clinic. Individual failures are collected and do
// not stop the pass.
func (s *CacheWarmingService) WarmCache(ctx context.Context) (int, error) {
	clinics, err := s.clinics.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list clinics: %w", err)
	}

	var (
		warmed int
		errs   []error
	)
	for _, clinic := range clinics {
		if err := s.warmer.Warm(ctx, clinic); err != nil {
			errs = append(errs, fmt.Errorf("clinic %s: %w", clinic.ID, err))
			continue
		}
		warmed++
	}

	s.logger.Info().Int("warmed", warmed).Int("failed", len(errs)).Msg("clinic cache warmed")
	return warmed, errors.Join(errs...)
}

// StartPeriodicWarming warms once, then again every interval until ctx is done
func (s *CacheWarmingService) StartPeriodicWarming(ctx context.Context, interval time.Duration) {
	if _, err := s.WarmCache(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("initial cache warming incomplete")
	}

	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				s.logger.Info().Msg("stopping cache warming")
				return
			case <-ticker.C:
				if _, err := s.WarmCache(ctx); err != nil {
					s.logger.Warn().Err(err).Msg("periodic cache warming incomplete")
				}
			}
		}
	}()
}
