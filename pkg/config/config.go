package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"db"`
	Redis      RedisConfig      `mapstructure:"redis"`
	OTEL       OTELConfig       `mapstructure:"otel"`
	Log        LogConfig        `mapstructure:"log"`
	Scheduling SchedulingConfig `mapstructure:"scheduling"`
	RateLimit  RateLimitConfig  `mapstructure:"ratelimit"`
	WhatsApp   WhatsAppConfig   `mapstructure:"whatsapp"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Env  string `mapstructure:"env"`
	// AllowedOrigins is a comma separated CORS allow list; "*" allows any origin
	AllowedOrigins string `mapstructure:"allowed_origins"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"name"`
	SSLMode  string `mapstructure:"sslmode"`
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// OTELConfig holds OpenTelemetry configuration
type OTELConfig struct {
	ServiceName    string `mapstructure:"service_name"`
	ServiceVersion string `mapstructure:"service_version"`
	Endpoint       string `mapstructure:"endpoint"`
	Enabled        bool   `mapstructure:"enabled"`
}

// LogConfig holds logger configuration
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// SchedulingConfig bounds slot computation, holds and negotiation
type SchedulingConfig struct {
	// Store selects the backing store: "postgres" or "memory"
	Store                    string        `mapstructure:"store"`
	MinSlotMinutes           int           `mapstructure:"min_slot_minutes"`
	MaxSlotMinutes           int           `mapstructure:"max_slot_minutes"`
	MinBufferMinutes         int           `mapstructure:"min_buffer_minutes"`
	MaxBufferMinutes         int           `mapstructure:"max_buffer_minutes"`
	MaxAdvanceDays           int           `mapstructure:"max_advance_days"`
	HoldTTLMinutes           int           `mapstructure:"hold_ttl_minutes"`
	MaxHoldTTLMinutes        int           `mapstructure:"max_hold_ttl_minutes"`
	ReserveDuringNegotiation bool          `mapstructure:"reserve_during_negotiation"`
	DispatchTimeout          time.Duration `mapstructure:"dispatch_timeout"`
}

// RateLimitConfig holds per-client request limits
type RateLimitConfig struct {
	RequestsPerSecond float64 `mapstructure:"rps"`
	Burst             int     `mapstructure:"burst"`
}

// WhatsAppConfig holds WhatsApp Cloud API credentials for the notifier
type WhatsAppConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	AccessToken   string `mapstructure:"access_token"`
	PhoneNumberID string `mapstructure:"phone_number_id"`
	APIVersion    string `mapstructure:"api_version"`
	BaseURL       string `mapstructure:"base_url"`
}

var defaults = map[string]any{
	"server.host": "0.0.0.0",
	"server.port": 8080,
	"server.env":  "development",

	"server.allowed_origins": "*",

	"db.host":     "localhost",
	"db.port":     5432,
	"db.user":     "postgres",
	"db.password": "",
	"db.name":     "clinic_scheduler",
	"db.sslmode":  "disable",

	"redis.enabled":  true,
	"redis.host":     "localhost",
	"redis.port":     6379,
	"redis.password": "",
	"redis.db":       0,

	"otel.service_name":    "clinic-scheduler",
	"otel.service_version": "1.0.0",
	"otel.endpoint":        "",
	"otel.enabled":         false,

	"log.level": "info",

	"scheduling.store":                      "postgres",
	"scheduling.min_slot_minutes":           15,
	"scheduling.max_slot_minutes":           240,
	"scheduling.min_buffer_minutes":         0,
	"scheduling.max_buffer_minutes":         60,
	"scheduling.max_advance_days":           90,
	"scheduling.hold_ttl_minutes":           10,
	"scheduling.max_hold_ttl_minutes":       30,
	"scheduling.reserve_during_negotiation": false,
	"scheduling.dispatch_timeout":           "2s",

	"ratelimit.rps":   5.0,
	"ratelimit.burst": 10,

	"whatsapp.enabled":         false,
	"whatsapp.access_token":    "",
	"whatsapp.phone_number_id": "",
	"whatsapp.api_version":     "v20.0",
	"whatsapp.base_url":        "https://graph.facebook.com",
}

// Load reads configuration from the environment. Nested keys map to
// upper-case variables joined by underscores, e.g. db.host -> DB_HOST.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := cfg.Scheduling.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c SchedulingConfig) validate() error {
	switch c.Store {
	case "postgres", "memory":
	default:
		return fmt.Errorf("scheduling.store must be postgres or memory, got %q", c.Store)
	}
	if c.MinSlotMinutes <= 0 || c.MinSlotMinutes > c.MaxSlotMinutes {
		return fmt.Errorf("invalid slot range [%d, %d]", c.MinSlotMinutes, c.MaxSlotMinutes)
	}
	if c.MinBufferMinutes < 0 || c.MinBufferMinutes > c.MaxBufferMinutes {
		return fmt.Errorf("invalid buffer range [%d, %d]", c.MinBufferMinutes, c.MaxBufferMinutes)
	}
	if c.HoldTTLMinutes <= 0 || c.HoldTTLMinutes > c.MaxHoldTTLMinutes {
		return fmt.Errorf("hold ttl %d must be within (0, %d]", c.HoldTTLMinutes, c.MaxHoldTTLMinutes)
	}
	return nil
}

// IsDevelopment reports whether the server runs in development mode
func (c *ServerConfig) IsDevelopment() bool {
	return c.Env == "development"
}

// Origins splits AllowedOrigins into trimmed entries
func (c *ServerConfig) Origins() []string {
	var out []string
	for _, o := range strings.Split(c.AllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

// DatabaseDSN returns the PostgreSQL connection string
func (c *DatabaseConfig) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// RedisAddr returns the Redis address
func (c *RedisConfig) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
