package entities

import (
	"sort"
	"time"
)

// Interval is the half-open time range [Start, End)
type Interval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// NewInterval builds an interval of the given length starting at start
func NewInterval(start time.Time, length time.Duration) Interval {
	return Interval{Start: start, End: start.Add(length)}
}

// Valid reports whether the interval is non-empty
func (i Interval) Valid() bool {
	return i.Start.Before(i.End)
}

// Duration returns the length of the interval
func (i Interval) Duration() time.Duration {
	return i.End.Sub(i.Start)
}

// Contains reports whether other lies entirely within i
func (i Interval) Contains(other Interval) bool {
	return !other.Start.Before(i.Start) && !other.End.After(i.End)
}

// Overlaps reports whether i and other share any instant
func (i Interval) Overlaps(other Interval) bool {
	return Overlaps(i, other)
}

// Overlaps is the single overlap predicate used for slots, bookings and holds.
// Ranges that only touch at an endpoint do not overlap.
func Overlaps(a, b Interval) bool {
	return a.Start.Before(b.End) && b.Start.Before(a.End)
}

// BookingInterval is an appointment's reserved range projected for conflict checks
type BookingInterval struct {
	AppointmentID string   `json:"appointment_id" db:"id"`
	Interval      Interval `json:"interval"`
}

// FindConflict returns the earliest booking overlapping candidate. Bookings
// are considered in (start, id) order so the result does not depend on the
// order of the input.
func FindConflict(candidate Interval, bookings []BookingInterval) (BookingInterval, bool) {
	var (
		found BookingInterval
		ok    bool
	)
	for _, b := range bookings {
		if !Overlaps(candidate, b.Interval) {
			continue
		}
		if !ok || bookingLess(b, found) {
			found = b
			ok = true
		}
	}
	return found, ok
}

// SortBookings orders bookings by start time, then appointment id
func SortBookings(bookings []BookingInterval) {
	sort.SliceStable(bookings, func(i, j int) bool {
		return bookingLess(bookings[i], bookings[j])
	})
}

func bookingLess(a, b BookingInterval) bool {
	if !a.Interval.Start.Equal(b.Interval.Start) {
		return a.Interval.Start.Before(b.Interval.Start)
	}
	return a.AppointmentID < b.AppointmentID
}
