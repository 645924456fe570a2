package entities

import (
	"testing"
	"time"
)

func at(h, m int) time.Time {
	return time.Date(2026, 3, 2, h, m, 0, 0, time.UTC)
}

func span(h1, m1, h2, m2 int) Interval {
	return Interval{Start: at(h1, m1), End: at(h2, m2)}
}

func TestOverlaps(t *testing.T) {
	cases := []struct {
		name string
		a, b Interval
		want bool
	}{
		{"identical", span(10, 0, 10, 30), span(10, 0, 10, 30), true},
		{"partial", span(10, 0, 10, 30), span(10, 15, 10, 45), true},
		{"contained", span(9, 0, 12, 0), span(10, 0, 10, 30), true},
		{"touching end to start", span(9, 30, 10, 0), span(10, 0, 10, 30), false},
		{"touching start to end", span(10, 30, 11, 0), span(10, 0, 10, 30), false},
		{"disjoint", span(8, 0, 9, 0), span(10, 0, 11, 0), false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Overlaps(tc.a, tc.b); got != tc.want {
				t.Errorf("Overlaps(a, b) = %v, want %v", got, tc.want)
			}
			if got := tc.b.Overlaps(tc.a); got != tc.want {
				t.Errorf("Overlaps(b, a) = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestFindConflict_DeterministicOrder(t *testing.T) {
	bookings := []BookingInterval{
		{AppointmentID: "b", Interval: span(10, 0, 11, 0)},
		{AppointmentID: "c", Interval: span(9, 30, 10, 30)},
		{AppointmentID: "a", Interval: span(10, 0, 10, 30)},
	}

	got, ok := FindConflict(span(10, 0, 10, 30), bookings)
	if !ok {
		t.Fatal("expected a conflict")
	}
	if got.AppointmentID != "c" {
		t.Errorf("expected earliest booking c, got %s", got.AppointmentID)
	}

	reversed := []BookingInterval{bookings[2], bookings[1], bookings[0]}
	again, _ := FindConflict(span(10, 0, 10, 30), reversed)
	if again.AppointmentID != got.AppointmentID {
		t.Errorf("result depends on input order: %s vs %s", again.AppointmentID, got.AppointmentID)
	}

	if _, ok := FindConflict(span(11, 0, 11, 30), bookings); ok {
		t.Error("expected no conflict after the last booking")
	}
}

func TestSortBookings(t *testing.T) {
	bookings := []BookingInterval{
		{AppointmentID: "z", Interval: span(10, 0, 10, 30)},
		{AppointmentID: "y", Interval: span(9, 0, 9, 30)},
		{AppointmentID: "a", Interval: span(10, 0, 10, 30)},
	}
	SortBookings(bookings)

	want := []string{"y", "a", "z"}
	for i, id := range want {
		if bookings[i].AppointmentID != id {
			t.Fatalf("position %d: got %s want %s", i, bookings[i].AppointmentID, id)
		}
	}
}

func TestFindHoldConflict_SkipsTouching(t *testing.T) {
	holds := []ReservationHold{
		{ID: "h1", Slot: span(9, 0, 9, 30)},
		{ID: "h2", Slot: span(9, 30, 10, 0)},
	}

	got, ok := FindHoldConflict(span(9, 30, 10, 0), holds)
	if !ok || got.ID != "h2" {
		t.Errorf("expected h2, got %+v (ok=%v)", got, ok)
	}
}

func TestBlockingHolds(t *testing.T) {
	now := at(9, 0)
	holds := []ReservationHold{
		{ID: "mine", PatientID: "p1", ExpiresAt: now.Add(time.Minute)},
		{ID: "theirs", PatientID: "p2", ExpiresAt: now.Add(time.Minute)},
		{ID: "expired", PatientID: "p3", ExpiresAt: now},
	}

	got := BlockingHolds(holds, "p1", now)
	if len(got) != 1 || got[0].ID != "theirs" {
		t.Errorf("expected only the other patient's live hold, got %+v", got)
	}
}
