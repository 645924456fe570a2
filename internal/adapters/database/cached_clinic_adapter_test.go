package database_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/zatekoja/clinicscheduler/internal/adapters/database"
	"github.com/zatekoja/clinicscheduler/internal/adapters/memory"
	"github.com/zatekoja/clinicscheduler/internal/domain/entities"
	"github.com/zatekoja/clinicscheduler/internal/domain/providers"
)

type MockCache struct {
	mock.Mock
}

func (m *MockCache) Get(ctx context.Context, key string) ([]byte, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return m.Called(ctx, key, value, ttl).Error(0)
}

func (m *MockCache) Delete(ctx context.Context, keys ...string) error {
	return m.Called(ctx, keys).Error(0)
}

func seededClinics(t *testing.T) *memory.ClinicStore {
	t.Helper()
	var hours entities.WeeklyHours
	require.NoError(t, json.Unmarshal([]byte(weekdayHoursJSON), &hours))
	store := memory.NewStore(nil).Clinics()
	require.NoError(t, store.Upsert(context.Background(), &entities.Clinic{ID: "c1", Name: "Northside", Hours: hours}))
	return store
}

func TestCachedClinicAdapter_GetByID(t *testing.T) {
	ctx := context.Background()

	t.Run("miss reads through and fills the cache", func(t *testing.T) {
		cache := new(MockCache)
		cache.On("Get", mock.Anything, "clinic:c1").Return(nil, providers.ErrCacheMiss)
		cache.On("Set", mock.Anything, "clinic:c1", mock.Anything, 5*time.Minute).Return(nil)

		clinic, err := database.NewCachedClinicAdapter(seededClinics(t), cache, zerolog.Nop()).GetByID(ctx, "c1")
		require.NoError(t, err)
		assert.Equal(t, "Northside", clinic.Name)
		cache.AssertExpectations(t)
	})

	t.Run("hit skips the repository", func(t *testing.T) {
		cached, err := json.Marshal(&entities.Clinic{ID: "c9", Name: "Cached", Timezone: "UTC"})
		require.NoError(t, err)

		cache := new(MockCache)
		cache.On("Get", mock.Anything, "clinic:c9").Return(cached, nil)

		clinic, err := database.NewCachedClinicAdapter(seededClinics(t), cache, zerolog.Nop()).GetByID(ctx, "c9")
		require.NoError(t, err)
		assert.Equal(t, "Cached", clinic.Name)
		cache.AssertNotCalled(t, "Set", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("cache errors fall through", func(t *testing.T) {
		cache := new(MockCache)
		cache.On("Get", mock.Anything, "clinic:c1").Return(nil, errors.New("redis down"))
		cache.On("Set", mock.Anything, "clinic:c1", mock.Anything, mock.Anything).Return(errors.New("redis down"))

		clinic, err := database.NewCachedClinicAdapter(seededClinics(t), cache, zerolog.Nop()).GetByID(ctx, "c1")
		require.NoError(t, err)
		assert.Equal(t, "c1", clinic.ID)
	})

	t.Run("hours survive the cache round trip", func(t *testing.T) {
		var stored []byte
		cache := new(MockCache)
		cache.On("Get", mock.Anything, "clinic:c1").Return(nil, providers.ErrCacheMiss).Once()
		cache.On("Set", mock.Anything, "clinic:c1", mock.Anything, mock.Anything).
			Run(func(args mock.Arguments) { stored = args.Get(2).([]byte) }).Return(nil)

		adapter := database.NewCachedClinicAdapter(seededClinics(t), cache, zerolog.Nop())
		fresh, err := adapter.GetByID(ctx, "c1")
		require.NoError(t, err)

		cache.On("Get", mock.Anything, "clinic:c1").Return(stored, nil)
		again, err := adapter.GetByID(ctx, "c1")
		require.NoError(t, err)
		assert.Equal(t, fresh.Hours, again.Hours)
	})
}

func TestCachedClinicAdapter_UpsertInvalidates(t *testing.T) {
	cache := new(MockCache)
	cache.On("Delete", mock.Anything, []string{"clinic:c1", "clinics:list"}).Return(nil)

	clinics := seededClinics(t)
	adapter := database.NewCachedClinicAdapter(clinics, cache, zerolog.Nop())

	clinic, err := clinics.GetByID(context.Background(), "c1")
	require.NoError(t, err)
	clinic.Name = "Northside Annex"
	require.NoError(t, adapter.Upsert(context.Background(), clinic))

	cache.AssertExpectations(t)
}
