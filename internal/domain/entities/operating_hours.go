package entities

import (
	"encoding/json"
	"fmt"
	"time"
)

const (
	// DateLayout is the wire format for calendar dates
	DateLayout = "2006-01-02"
	// ClockLayout is the wire format for wall-clock times
	ClockLayout = "15:04"

	minutesPerDay = 24 * 60
)

// MinuteOfDay counts minutes since local midnight, 0..1440
type MinuteOfDay int

// ParseClock parses "HH:MM" into a minute of day
func ParseClock(s string) (MinuteOfDay, error) {
	if len(s) != 5 || s[2] != ':' || !isDigit(s[0]) || !isDigit(s[1]) || !isDigit(s[3]) || !isDigit(s[4]) {
		return 0, fmt.Errorf("invalid clock %q, expected HH:MM", s)
	}
	h := int(s[0]-'0')*10 + int(s[1]-'0')
	m := int(s[3]-'0')*10 + int(s[4]-'0')
	if m > 59 || h*60+m > minutesPerDay {
		return 0, fmt.Errorf("invalid clock %q", s)
	}
	return MinuteOfDay(h*60 + m), nil
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}

// String renders the minute as HH:MM
func (m MinuteOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", int(m)/60, int(m)%60)
}

// On anchors the minute to the calendar day of date in date's location
func (m MinuteOfDay) On(date time.Time) time.Time {
	y, mo, d := date.Date()
	return time.Date(y, mo, d, int(m)/60, int(m)%60, 0, 0, date.Location())
}

// DayHours is one weekday's opening hours
type DayHours struct {
	Closed bool
	Open   MinuteOfDay
	Close  MinuteOfDay
}

// NewDayHours builds an open day, enforcing open < close
func NewDayHours(open, close MinuteOfDay) (DayHours, error) {
	h := DayHours{Open: open, Close: close}
	if err := h.Validate(); err != nil {
		return DayHours{}, err
	}
	return h, nil
}

// ClosedDay returns hours for a day the clinic does not open
func ClosedDay() DayHours {
	return DayHours{Closed: true}
}

// Validate checks the open < close invariant
func (h DayHours) Validate() error {
	if h.Closed {
		return nil
	}
	if h.Open < 0 || h.Close > minutesPerDay {
		return fmt.Errorf("hours %s-%s outside the day", h.Open, h.Close)
	}
	if h.Open >= h.Close {
		return fmt.Errorf("open %s must be before close %s", h.Open, h.Close)
	}
	return nil
}

// Window returns the open interval for date, false when closed
func (h DayHours) Window(date time.Time) (Interval, bool) {
	if h.Closed {
		return Interval{}, false
	}
	return Interval{Start: h.Open.On(date), End: h.Close.On(date)}, true
}

type dayHoursJSON struct {
	Closed bool   `json:"closed,omitempty"`
	Open   string `json:"open,omitempty"`
	Close  string `json:"close,omitempty"`
}

// MarshalJSON renders {"closed":true} or {"open":"09:00","close":"17:00"}
func (h DayHours) MarshalJSON() ([]byte, error) {
	if h.Closed {
		return json.Marshal(dayHoursJSON{Closed: true})
	}
	return json.Marshal(dayHoursJSON{Open: h.Open.String(), Close: h.Close.String()})
}

// UnmarshalJSON parses the MarshalJSON form and validates it
func (h *DayHours) UnmarshalJSON(data []byte) error {
	var raw dayHoursJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw.Closed {
		*h = ClosedDay()
		return nil
	}
	open, err := ParseClock(raw.Open)
	if err != nil {
		return err
	}
	close, err := ParseClock(raw.Close)
	if err != nil {
		return err
	}
	parsed, err := NewDayHours(open, close)
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// WeeklyHours holds seven entries indexed by time.Weekday
type WeeklyHours [7]DayHours

// For returns the hours for weekday
func (w WeeklyHours) For(day time.Weekday) DayHours {
	return w[day]
}

// Window returns the open interval for date, false when closed
func (w WeeklyHours) Window(date time.Time) (Interval, bool) {
	return w.For(date.Weekday()).Window(date)
}

// Fits reports whether slot lies within the opening hours of its own day
func (w WeeklyHours) Fits(slot Interval) bool {
	window, open := w.Window(slot.Start)
	return open && window.Contains(slot)
}

// Validate checks every weekday
func (w WeeklyHours) Validate() error {
	for day, h := range w {
		if err := h.Validate(); err != nil {
			return fmt.Errorf("%s: %w", time.Weekday(day), err)
		}
	}
	return nil
}

// ParseDate parses a YYYY-MM-DD calendar date as midnight in loc
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	return time.ParseInLocation(DateLayout, s, loc)
}

// StartOfDay truncates t to midnight in its own location
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
