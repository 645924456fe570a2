package services

import (
	"time"

	"github.com/zatekoja/clinicscheduler/internal/domain/entities"
	"github.com/zatekoja/clinicscheduler/pkg/config"
	apperrors "github.com/zatekoja/clinicscheduler/pkg/errors"
)

// SlotPolicy bounds slot lengths, buffers and how far ahead a day may be queried
type SlotPolicy struct {
	MinDuration    int
	MaxDuration    int
	MinBuffer      int
	MaxBuffer      int
	MaxAdvanceDays int
}

// DefaultSlotPolicy returns the 15-240 minute slot, 0-60 minute buffer, 90 day policy
func DefaultSlotPolicy() SlotPolicy {
	return SlotPolicy{
		MinDuration:    15,
		MaxDuration:    240,
		MinBuffer:      0,
		MaxBuffer:      60,
		MaxAdvanceDays: 90,
	}
}

// SlotPolicyFromConfig builds a policy from scheduling configuration
func SlotPolicyFromConfig(cfg config.SchedulingConfig) SlotPolicy {
	return SlotPolicy{
		MinDuration:    cfg.MinSlotMinutes,
		MaxDuration:    cfg.MaxSlotMinutes,
		MinBuffer:      cfg.MinBufferMinutes,
		MaxBuffer:      cfg.MaxBufferMinutes,
		MaxAdvanceDays: cfg.MaxAdvanceDays,
	}
}

// DayQuery is the full input to ComputeDay
type DayQuery struct {
	Hours    entities.WeeklyHours
	Bookings []entities.BookingInterval
	Holds    []entities.ReservationHold
	// HolderID's own holds do not block slots
	HolderID string
	// Date is any instant on the requested day, in the clinic's location
	Date               time.Time
	DurationMinutes    int
	BufferMinutes      int
	IncludeUnavailable bool
	// MaxAdvanceDays <= 0 falls back to the policy default
	MaxAdvanceDays int
}

// ValidateDuration checks a slot length against the policy
func (p SlotPolicy) ValidateDuration(minutes int) error {
	if minutes < p.MinDuration || minutes > p.MaxDuration {
		return apperrors.NewRangeError("duration %d minutes outside allowed range %d-%d", minutes, p.MinDuration, p.MaxDuration)
	}
	return nil
}

// ValidateBuffer checks a buffer length against the policy
func (p SlotPolicy) ValidateBuffer(minutes int) error {
	if minutes < p.MinBuffer || minutes > p.MaxBuffer {
		return apperrors.NewRangeError("buffer %d minutes outside allowed range %d-%d", minutes, p.MinBuffer, p.MaxBuffer)
	}
	return nil
}

// ValidateDate checks date lies within [today, today+maxAdvanceDays] in date's location
func (p SlotPolicy) ValidateDate(date, now time.Time, maxAdvanceDays int) error {
	if maxAdvanceDays <= 0 {
		maxAdvanceDays = p.MaxAdvanceDays
	}
	day := entities.StartOfDay(date)
	today := entities.StartOfDay(now.In(date.Location()))

	if day.Before(today) {
		return apperrors.NewRangeError("date %s is in the past", day.Format(entities.DateLayout))
	}
	limit := today.AddDate(0, 0, maxAdvanceDays)
	if day.After(limit) {
		return apperrors.NewWindowExceededError("date %s is more than %d days ahead", day.Format(entities.DateLayout), maxAdvanceDays)
	}
	return nil
}

// Validate runs every input check ComputeDay performs
func (p SlotPolicy) Validate(q DayQuery, now time.Time) error {
	if err := p.ValidateDuration(q.DurationMinutes); err != nil {
		return err
	}
	if err := p.ValidateBuffer(q.BufferMinutes); err != nil {
		return err
	}
	return p.ValidateDate(q.Date, now, q.MaxAdvanceDays)
}

// ComputeDay lists the slots for one clinic day. Slots are laid on a grid
// anchored at opening time with a step of duration plus buffer, so today's
// slots line up with every other day's. It has no side effects: the same
// query and now always produce the same result.
func (p SlotPolicy) ComputeDay(q DayQuery, now time.Time) (*entities.DayAvailability, error) {
	if err := p.Validate(q, now); err != nil {
		return nil, err
	}

	day := entities.StartOfDay(q.Date)
	hours := q.Hours.For(day.Weekday())
	result := &entities.DayAvailability{
		Date:      day.Format(entities.DateLayout),
		TimeSlots: []entities.TimeSlot{},
	}

	window, open := hours.Window(day)
	if !open {
		return result, nil
	}
	result.IsOpen = true
	result.ClinicHours = &hours

	length := time.Duration(q.DurationMinutes) * time.Minute
	step := time.Duration(q.DurationMinutes+q.BufferMinutes) * time.Minute

	start := window.Start
	local := now.In(day.Location())
	if entities.StartOfDay(local).Equal(day) && local.After(start) {
		elapsed := local.Sub(window.Start)
		steps := elapsed / step
		if elapsed%step != 0 {
			steps++
		}
		start = window.Start.Add(steps * step)
	}

	bookings := make([]entities.BookingInterval, len(q.Bookings))
	copy(bookings, q.Bookings)
	entities.SortBookings(bookings)
	holds := entities.BlockingHolds(q.Holds, q.HolderID, now)

	for s := start; !s.Add(length).After(window.End); s = s.Add(step) {
		slot := entities.TimeSlot{
			Start:           s,
			End:             s.Add(length),
			Time:            s.Format(entities.ClockLayout),
			DurationMinutes: q.DurationMinutes,
			Status:          entities.SlotStatusAvailable,
		}

		if b, ok := entities.FindConflict(slot.Interval(), bookings); ok {
			slot.Status = entities.SlotStatusBooked
			slot.AppointmentID = b.AppointmentID
		} else if h, ok := entities.FindHoldConflict(slot.Interval(), holds); ok {
			slot.Status = entities.SlotStatusBlocked
			slot.HoldID = h.ID
		}

		result.TotalSlots++
		switch slot.Status {
		case entities.SlotStatusAvailable:
			result.AvailableSlots++
		case entities.SlotStatusBooked:
			result.BookedSlots++
		case entities.SlotStatusBlocked:
			result.BlockedSlots++
		}

		if slot.Status == entities.SlotStatusAvailable || q.IncludeUnavailable {
			result.TimeSlots = append(result.TimeSlots, slot)
		}
	}

	return result, nil
}
