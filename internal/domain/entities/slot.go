package entities

import "time"

// SlotStatus is the bookability of a computed slot
type SlotStatus string

const (
	SlotStatusAvailable SlotStatus = "available"
	SlotStatusBooked    SlotStatus = "booked"
	SlotStatusBlocked   SlotStatus = "blocked"
)

// TimeSlot is one candidate appointment range within a clinic's open hours
type TimeSlot struct {
	Start           time.Time  `json:"start"`
	End             time.Time  `json:"end"`
	Time            string     `json:"time"`
	DurationMinutes int        `json:"duration"`
	Status          SlotStatus `json:"status"`
	AppointmentID   string     `json:"appointment_id,omitempty"`
	HoldID          string     `json:"hold_id,omitempty"`
}

// Interval returns the slot's range
func (s TimeSlot) Interval() Interval {
	return Interval{Start: s.Start, End: s.End}
}

// DayAvailability is the computed slot list for one clinic day
type DayAvailability struct {
	Date           string     `json:"date"`
	IsOpen         bool       `json:"is_open"`
	ClinicHours    *DayHours  `json:"clinic_hours,omitempty"`
	TotalSlots     int        `json:"total_slots"`
	AvailableSlots int        `json:"available_slots"`
	BookedSlots    int        `json:"booked_slots"`
	BlockedSlots   int        `json:"blocked_slots"`
	TimeSlots      []TimeSlot `json:"time_slots"`
}
