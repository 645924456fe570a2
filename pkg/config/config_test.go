package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "clinic_scheduler", cfg.Database.Database)
	assert.Equal(t, "localhost:6379", cfg.Redis.RedisAddr())
	assert.Equal(t, "postgres", cfg.Scheduling.Store)
	assert.Equal(t, 15, cfg.Scheduling.MinSlotMinutes)
	assert.Equal(t, 240, cfg.Scheduling.MaxSlotMinutes)
	assert.Equal(t, 60, cfg.Scheduling.MaxBufferMinutes)
	assert.Equal(t, 90, cfg.Scheduling.MaxAdvanceDays)
	assert.Equal(t, 10, cfg.Scheduling.HoldTTLMinutes)
	assert.False(t, cfg.Scheduling.ReserveDuringNegotiation)
	assert.Equal(t, 2*time.Second, cfg.Scheduling.DispatchTimeout)
	assert.True(t, cfg.Server.IsDevelopment())
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("DB_PORT", "6543")
	t.Setenv("SCHEDULING_STORE", "memory")
	t.Setenv("SCHEDULING_RESERVE_DURING_NEGOTIATION", "true")
	t.Setenv("SCHEDULING_MAX_ADVANCE_DAYS", "30")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, 6543, cfg.Database.Port)
	assert.Equal(t, "memory", cfg.Scheduling.Store)
	assert.True(t, cfg.Scheduling.ReserveDuringNegotiation)
	assert.Equal(t, 30, cfg.Scheduling.MaxAdvanceDays)
	assert.Contains(t, cfg.Database.DatabaseDSN(), "host=db.internal port=6543")
}

func TestLoad_RejectsBadStore(t *testing.T) {
	t.Setenv("SCHEDULING_STORE", "mongo")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_RejectsHoldTTLAboveMax(t *testing.T) {
	t.Setenv("SCHEDULING_HOLD_TTL_MINUTES", "45")

	_, err := Load()
	assert.Error(t, err)
}

func TestServerConfig_Origins(t *testing.T) {
	cfg := ServerConfig{AllowedOrigins: "https://a.example, https://b.example,,"}
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Origins())
	assert.Empty(t, (&ServerConfig{}).Origins())
}
