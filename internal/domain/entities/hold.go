package entities

import "time"

// ReservationHold is a short-lived exclusive claim on a slot during booking
type ReservationHold struct {
	ID        string    `json:"id" db:"id"`
	ClinicID  string    `json:"clinic_id" db:"clinic_id"`
	PatientID string    `json:"patient_id" db:"patient_id"`
	Slot      Interval  `json:"slot"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	ExpiresAt time.Time `json:"expires_at" db:"expires_at"`
}

// IsLive reports whether the hold is still in force at now
func (h *ReservationHold) IsLive(now time.Time) bool {
	return now.Before(h.ExpiresAt)
}

// BlockingHolds returns the holds live at now that belong to someone other than holderID
func BlockingHolds(holds []ReservationHold, holderID string, now time.Time) []ReservationHold {
	out := make([]ReservationHold, 0, len(holds))
	for _, h := range holds {
		if !h.IsLive(now) {
			continue
		}
		if holderID != "" && h.PatientID == holderID {
			continue
		}
		out = append(out, h)
	}
	return out
}

// FindHoldConflict returns the first hold overlapping candidate, ordered by start then id
func FindHoldConflict(candidate Interval, holds []ReservationHold) (ReservationHold, bool) {
	var (
		found ReservationHold
		ok    bool
	)
	for _, h := range holds {
		if !Overlaps(candidate, h.Slot) {
			continue
		}
		if !ok || h.Slot.Start.Before(found.Slot.Start) ||
			(h.Slot.Start.Equal(found.Slot.Start) && h.ID < found.ID) {
			found = h
			ok = true
		}
	}
	return found, ok
}
