package services_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zatekoja/clinicscheduler/internal/application/services"
	"github.com/zatekoja/clinicscheduler/internal/domain/entities"
	apperrors "github.com/zatekoja/clinicscheduler/pkg/errors"
)

// Monday 2 March 2026
func clinicDay(h, m int) time.Time {
	return time.Date(2026, 3, 2, h, m, 0, 0, time.UTC)
}

func weekdayHours(t *testing.T) entities.WeeklyHours {
	t.Helper()
	var week entities.WeeklyHours
	week[time.Sunday] = entities.ClosedDay()
	for d := time.Monday; d <= time.Saturday; d++ {
		h, err := entities.NewDayHours(9*60, 17*60)
		require.NoError(t, err)
		week[d] = h
	}
	return week
}

func booking(id string, h1, m1, h2, m2 int) entities.BookingInterval {
	return entities.BookingInterval{
		AppointmentID: id,
		Interval:      entities.Interval{Start: clinicDay(h1, m1), End: clinicDay(h2, m2)},
	}
}

func TestComputeDay_ScenarioA_FirstSlotAtOpening(t *testing.T) {
	policy := services.DefaultSlotPolicy()
	now := clinicDay(8, 0)

	day, err := policy.ComputeDay(services.DayQuery{
		Hours:           weekdayHours(t),
		Date:            clinicDay(0, 0),
		DurationMinutes: 30,
		BufferMinutes:   15,
	}, now)

	require.NoError(t, err)
	require.True(t, day.IsOpen)
	require.NotEmpty(t, day.TimeSlots)
	assert.Equal(t, clinicDay(9, 0), day.TimeSlots[0].Start)
	assert.Equal(t, "09:00", day.TimeSlots[0].Time)
	assert.Equal(t, clinicDay(9, 45), day.TimeSlots[1].Start)
	// 09:00 .. 16:30 in 45 minute steps, last one ends 17:00
	assert.Equal(t, 11, day.TotalSlots)
	assert.Equal(t, clinicDay(16, 30), day.TimeSlots[len(day.TimeSlots)-1].Start)
}

func TestComputeDay_ScenarioB_BookedSlot(t *testing.T) {
	policy := services.DefaultSlotPolicy()
	query := services.DayQuery{
		Hours:           weekdayHours(t),
		Bookings:        []entities.BookingInterval{booking("appt-1", 10, 0, 10, 30)},
		Date:            clinicDay(0, 0),
		DurationMinutes: 30,
		BufferMinutes:   0,
	}
	now := clinicDay(7, 0)

	t.Run("booked slots omitted by default", func(t *testing.T) {
		day, err := policy.ComputeDay(query, now)
		require.NoError(t, err)

		for _, s := range day.TimeSlots {
			assert.NotEqual(t, clinicDay(10, 0), s.Start)
			assert.Equal(t, entities.SlotStatusAvailable, s.Status)
		}
		assert.Equal(t, 16, day.TotalSlots)
		assert.Equal(t, 15, day.AvailableSlots)
		assert.Equal(t, 1, day.BookedSlots)
	})

	t.Run("includeUnavailable shows the booking", func(t *testing.T) {
		q := query
		q.IncludeUnavailable = true
		day, err := policy.ComputeDay(q, now)
		require.NoError(t, err)

		byStart := map[time.Time]entities.TimeSlot{}
		for _, s := range day.TimeSlots {
			byStart[s.Start] = s
		}
		assert.Equal(t, entities.SlotStatusBooked, byStart[clinicDay(10, 0)].Status)
		assert.Equal(t, "appt-1", byStart[clinicDay(10, 0)].AppointmentID)
		assert.Equal(t, entities.SlotStatusAvailable, byStart[clinicDay(9, 30)].Status)
		assert.Equal(t, entities.SlotStatusAvailable, byStart[clinicDay(10, 30)].Status)
	})
}

func TestComputeDay_ScenarioE_WindowExceeded(t *testing.T) {
	policy := services.DefaultSlotPolicy()
	now := clinicDay(8, 0)

	_, err := policy.ComputeDay(services.DayQuery{
		Hours:           weekdayHours(t),
		Date:            clinicDay(0, 0).AddDate(0, 0, 91),
		DurationMinutes: 30,
		MaxAdvanceDays:  90,
	}, now)

	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeWindowExceeded))

	_, err = policy.ComputeDay(services.DayQuery{
		Hours:           weekdayHours(t),
		Date:            clinicDay(0, 0).AddDate(0, 0, 90),
		DurationMinutes: 30,
		MaxAdvanceDays:  90,
	}, now)
	assert.NoError(t, err)
}

func TestComputeDay_RangeErrors(t *testing.T) {
	policy := services.DefaultSlotPolicy()
	now := clinicDay(8, 0)
	base := services.DayQuery{Hours: weekdayHours(t), Date: clinicDay(0, 0), DurationMinutes: 30}

	cases := map[string]func(q *services.DayQuery){
		"duration too short": func(q *services.DayQuery) { q.DurationMinutes = 10 },
		"duration too long":  func(q *services.DayQuery) { q.DurationMinutes = 241 },
		"negative buffer":    func(q *services.DayQuery) { q.BufferMinutes = -5 },
		"buffer too long":    func(q *services.DayQuery) { q.BufferMinutes = 61 },
		"date in the past":   func(q *services.DayQuery) { q.Date = clinicDay(0, 0).AddDate(0, 0, -1) },
	}

	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			q := base
			mutate(&q)
			day, err := policy.ComputeDay(q, now)
			assert.Nil(t, day)
			assert.True(t, apperrors.HasCode(err, apperrors.CodeRange), "got %v", err)
		})
	}
}

func TestComputeDay_ClosedDay(t *testing.T) {
	policy := services.DefaultSlotPolicy()
	sunday := clinicDay(0, 0).AddDate(0, 0, 6)

	day, err := policy.ComputeDay(services.DayQuery{
		Hours: weekdayHours(t), Date: sunday, DurationMinutes: 30,
	}, clinicDay(8, 0))

	require.NoError(t, err)
	assert.False(t, day.IsOpen)
	assert.Nil(t, day.ClinicHours)
	assert.Empty(t, day.TimeSlots)
	assert.Zero(t, day.TotalSlots)
	assert.Equal(t, "2026-03-08", day.Date)
}

func TestComputeDay_TodayStartsOnGridAfterNow(t *testing.T) {
	policy := services.DefaultSlotPolicy()
	now := clinicDay(10, 10).Add(30 * time.Second)

	day, err := policy.ComputeDay(services.DayQuery{
		Hours: weekdayHours(t), Date: clinicDay(0, 0), DurationMinutes: 30, BufferMinutes: 15,
	}, now)

	require.NoError(t, err)
	require.NotEmpty(t, day.TimeSlots)
	assert.Equal(t, clinicDay(10, 30), day.TimeSlots[0].Start)
	for _, s := range day.TimeSlots {
		assert.False(t, s.Start.Before(now))
	}
}

func TestComputeDay_TodayOnExactBoundary(t *testing.T) {
	policy := services.DefaultSlotPolicy()

	day, err := policy.ComputeDay(services.DayQuery{
		Hours: weekdayHours(t), Date: clinicDay(0, 0), DurationMinutes: 60,
	}, clinicDay(11, 0))

	require.NoError(t, err)
	assert.Equal(t, clinicDay(11, 0), day.TimeSlots[0].Start)
	assert.Equal(t, 6, day.TotalSlots)
}

func TestComputeDay_AfterCloseHasNoSlots(t *testing.T) {
	policy := services.DefaultSlotPolicy()

	day, err := policy.ComputeDay(services.DayQuery{
		Hours: weekdayHours(t), Date: clinicDay(0, 0), DurationMinutes: 30,
	}, clinicDay(16, 45))

	require.NoError(t, err)
	assert.True(t, day.IsOpen)
	assert.Empty(t, day.TimeSlots)
}

func TestComputeDay_SlotInvariants(t *testing.T) {
	policy := services.DefaultSlotPolicy()
	var bookings []entities.BookingInterval
	for _, b := range []entities.BookingInterval{booking("b1", 9, 20, 9, 50), booking("b2", 13, 0, 14, 30)} {
		b.Interval = entities.Interval{Start: b.Interval.Start.AddDate(0, 0, 1), End: b.Interval.End.AddDate(0, 0, 1)}
		bookings = append(bookings, b)
	}

	for _, duration := range []int{15, 25, 45, 90, 240} {
		for _, buffer := range []int{0, 5, 20, 60} {
			day, err := policy.ComputeDay(services.DayQuery{
				Hours:              weekdayHours(t),
				Bookings:           bookings,
				Date:               clinicDay(0, 0).AddDate(0, 0, 1),
				DurationMinutes:    duration,
				BufferMinutes:      buffer,
				IncludeUnavailable: true,
			}, clinicDay(8, 0))
			require.NoError(t, err)

			closeAt := clinicDay(17, 0).AddDate(0, 0, 1)
			for _, s := range day.TimeSlots {
				assert.Equal(t, time.Duration(duration)*time.Minute, s.End.Sub(s.Start))
				assert.False(t, s.End.After(closeAt))
				if s.Status == entities.SlotStatusAvailable {
					for _, b := range bookings {
						assert.False(t, entities.Overlaps(s.Interval(), b.Interval))
					}
				}
			}
		}
	}
}

func TestComputeDay_Deterministic(t *testing.T) {
	policy := services.DefaultSlotPolicy()
	query := services.DayQuery{
		Hours:              weekdayHours(t),
		Bookings:           []entities.BookingInterval{booking("b", 11, 0, 12, 0), booking("a", 11, 0, 11, 30)},
		Date:               clinicDay(0, 0),
		DurationMinutes:    30,
		BufferMinutes:      10,
		IncludeUnavailable: true,
	}
	now := clinicDay(9, 7)

	first, err := policy.ComputeDay(query, now)
	require.NoError(t, err)

	query.Bookings = []entities.BookingInterval{query.Bookings[1], query.Bookings[0]}
	second, err := policy.ComputeDay(query, now)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestComputeDay_HoldsBlockOtherPatients(t *testing.T) {
	policy := services.DefaultSlotPolicy()
	now := clinicDay(8, 0)
	holds := []entities.ReservationHold{{
		ID:        "hold-1",
		ClinicID:  "c1",
		PatientID: "p1",
		Slot:      entities.NewInterval(clinicDay(9, 0), 30*time.Minute),
		ExpiresAt: now.Add(10 * time.Minute),
	}}
	query := services.DayQuery{
		Hours: weekdayHours(t), Holds: holds, Date: clinicDay(0, 0),
		DurationMinutes: 30, IncludeUnavailable: true,
	}

	day, err := policy.ComputeDay(query, now)
	require.NoError(t, err)
	assert.Equal(t, entities.SlotStatusBlocked, day.TimeSlots[0].Status)
	assert.Equal(t, "hold-1", day.TimeSlots[0].HoldID)
	assert.Equal(t, 1, day.BlockedSlots)

	query.HolderID = "p1"
	day, err = policy.ComputeDay(query, now)
	require.NoError(t, err)
	assert.Equal(t, entities.SlotStatusAvailable, day.TimeSlots[0].Status)

	query.HolderID = ""
	day, err = policy.ComputeDay(query, now.Add(10*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, entities.SlotStatusAvailable, day.TimeSlots[0].Status)
}
