package entities

import (
	"fmt"
	"time"
)

// Clinic is the minimal clinic record needed for slot computation
type Clinic struct {
	ID        string      `json:"id" db:"id"`
	Name      string      `json:"name" db:"name"`
	Phone     string      `json:"phone,omitempty" db:"phone"`
	Timezone  string      `json:"timezone" db:"timezone"`
	Hours     WeeklyHours `json:"weekly_hours" db:"weekly_hours"`
	CreatedAt time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt time.Time   `json:"updated_at" db:"updated_at"`
}

// Location resolves the clinic's IANA time zone, defaulting to UTC
func (c *Clinic) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("clinic %s has invalid timezone %q: %w", c.ID, c.Timezone, err)
	}
	return loc, nil
}

// Validate checks the fields a clinic must carry before it is stored
func (c *Clinic) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("clinic id is required")
	}
	if c.Name == "" {
		return fmt.Errorf("clinic %s: name is required", c.ID)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return c.Hours.Validate()
}
