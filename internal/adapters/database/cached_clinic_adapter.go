package database

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/zatekoja/clinicscheduler/internal/domain/entities"
	"github.com/zatekoja/clinicscheduler/internal/domain/providers"
	"github.com/zatekoja/clinicscheduler/internal/domain/repositories"
)

// CachedClinicAdapter wraps a ClinicRepository with a read-through cache.
// Cache failures are logged and fall through to the wrapped repository.
type CachedClinicAdapter struct {
	adapter repositories.ClinicRepository
	cache   providers.CacheProvider
	logger  zerolog.Logger
}

var _ repositories.ClinicRepository = (*CachedClinicAdapter)(nil)

// NewCachedClinicAdapter creates a new cached clinic adapter
func NewCachedClinicAdapter(adapter repositories.ClinicRepository, cache providers.CacheProvider, logger zerolog.Logger) *CachedClinicAdapter {
	return &CachedClinicAdapter{
		adapter: adapter,
		cache:   cache,
		logger:  logger.With().Str("component", "cached_clinic_adapter").Logger(),
	}
}

const (
	clinicByIDTTL   = 5 * time.Minute
	clinicsListTTL  = 3 * time.Minute
	clinicsListKey  = "clinics:list"
	clinicKeyPrefix = "clinic:"
)

// ClinicCacheKey is the cache key for a single clinic
func ClinicCacheKey(id string) string {
	return clinicKeyPrefix + id
}

// GetByID retrieves a clinic by ID with caching
func (a *CachedClinicAdapter) GetByID(ctx context.Context, id string) (*entities.Clinic, error) {
	key := ClinicCacheKey(id)

	cached, err := a.cache.Get(ctx, key)
	switch {
	case err == nil:
		var clinic entities.Clinic
		if err := json.Unmarshal(cached, &clinic); err == nil {
			return &clinic, nil
		}
		a.logger.Warn().Err(err).Str("clinic_id", id).Msg("dropping undecodable cached clinic")
	case !errors.Is(err, providers.ErrCacheMiss):
		a.logger.Warn().Err(err).Str("clinic_id", id).Msg("clinic cache read failed")
	}

	clinic, err := a.adapter.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	a.store(ctx, key, clinic, clinicByIDTTL)
	return clinic, nil
}

// Upsert writes through and drops the clinic and list entries
func (a *CachedClinicAdapter) Upsert(ctx context.Context, clinic *entities.Clinic) error {
	if err := a.adapter.Upsert(ctx, clinic); err != nil {
		return err
	}
	if err := a.cache.Delete(ctx, ClinicCacheKey(clinic.ID), clinicsListKey); err != nil {
		a.logger.Warn().Err(err).Str("clinic_id", clinic.ID).Msg("failed to invalidate clinic cache")
	}
	return nil
}

// List returns every clinic with caching
func (a *CachedClinicAdapter) List(ctx context.Context) ([]*entities.Clinic, error) {
	if cached, err := a.cache.Get(ctx, clinicsListKey); err == nil {
		var clinics []*entities.Clinic
		if err := json.Unmarshal(cached, &clinics); err == nil {
			return clinics, nil
		}
	}

	clinics, err := a.adapter.List(ctx)
	if err != nil {
		return nil, err
	}
	a.store(ctx, clinicsListKey, clinics, clinicsListTTL)
	return clinics, nil
}

// Warm loads clinic into the cache without reading the wrapped repository
func (a *CachedClinicAdapter) Warm(ctx context.Context, clinic *entities.Clinic) error {
	data, err := json.Marshal(clinic)
	if err != nil {
		return err
	}
	return a.cache.Set(ctx, ClinicCacheKey(clinic.ID), data, clinicByIDTTL)
}

func (a *CachedClinicAdapter) store(ctx context.Context, key string, v any, ttl time.Duration) {
	data, err := json.Marshal(v)
	if err != nil {
		a.logger.Warn().Err(err).Str("key", key).Msg("failed to encode cache entry")
		return
	}
	if err := a.cache.Set(ctx, key, data, ttl); err != nil {
		a.logger.Warn().Err(err).Str("key", key).Msg("failed to write cache entry")
	}
}
