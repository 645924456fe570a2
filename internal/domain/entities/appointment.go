package entities

import (
	"fmt"
	"time"
)

// AppointmentStatus represents the negotiation state of an appointment
type AppointmentStatus string

const (
	AppointmentStatusPending        AppointmentStatus = "pending"
	AppointmentStatusCounterOffered AppointmentStatus = "counter-offered"
	AppointmentStatusConfirmed      AppointmentStatus = "confirmed"
	AppointmentStatusRejected       AppointmentStatus = "rejected"
	AppointmentStatusCancelled      AppointmentStatus = "cancelled"
	AppointmentStatusCompleted      AppointmentStatus = "completed"
	AppointmentStatusNoShow         AppointmentStatus = "no-show"
)

// IsTerminal reports whether no further transition is permitted
func (s AppointmentStatus) IsTerminal() bool {
	switch s {
	case AppointmentStatusRejected, AppointmentStatusCancelled,
		AppointmentStatusCompleted, AppointmentStatusNoShow:
		return true
	}
	return false
}

// Actor identifies the party driving a transition
type Actor string

const (
	ActorPatient Actor = "patient"
	ActorClinic  Actor = "clinic"
	ActorSystem  Actor = "system"
)

// ParseActor validates a wire actor value
func ParseActor(s string) (Actor, error) {
	switch a := Actor(s); a {
	case ActorPatient, ActorClinic, ActorSystem:
		return a, nil
	}
	return "", fmt.Errorf("unknown actor %q", s)
}

// SlotProposal is a clinic-local date, start time and length
type SlotProposal struct {
	Date            string `json:"date"`
	Time            string `json:"time"`
	DurationMinutes int    `json:"duration"`
}

// NewSlotProposal checks formats and a positive duration
func NewSlotProposal(date, clock string, durationMinutes int) (SlotProposal, error) {
	p := SlotProposal{Date: date, Time: clock, DurationMinutes: durationMinutes}
	if _, err := p.Interval(time.UTC); err != nil {
		return SlotProposal{}, err
	}
	return p, nil
}

// Interval resolves the proposal in the clinic's location
func (p SlotProposal) Interval(loc *time.Location) (Interval, error) {
	day, err := ParseDate(p.Date, loc)
	if err != nil {
		return Interval{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", p.Date)
	}
	start, err := ParseClock(p.Time)
	if err != nil {
		return Interval{}, err
	}
	if p.DurationMinutes <= 0 {
		return Interval{}, fmt.Errorf("duration must be positive, got %d", p.DurationMinutes)
	}
	return NewInterval(start.On(day), time.Duration(p.DurationMinutes)*time.Minute), nil
}

// AppointmentRequest is the patient's original ask
type AppointmentRequest struct {
	SlotProposal
	Reason string `json:"reason,omitempty"`
}

// ResponseRecord is one entry in a party's append-only response log
type ResponseRecord struct {
	Type      string        `json:"type"`
	Proposal  *SlotProposal `json:"proposal,omitempty"`
	Message   string        `json:"message,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
}

// Appointment is a negotiated booking between a patient and a clinic
type Appointment struct {
	ID               string             `json:"id" db:"id"`
	PatientID        string             `json:"patient_id" db:"patient_id"`
	PatientName      string             `json:"patient_name" db:"patient_name"`
	PatientPhone     string             `json:"patient_phone,omitempty" db:"patient_phone"`
	ClinicID         string             `json:"clinic_id" db:"clinic_id"`
	ClinicName       string             `json:"clinic_name" db:"clinic_name"`
	Type             string             `json:"type,omitempty" db:"appointment_type"`
	Status           AppointmentStatus  `json:"status" db:"status"`
	OriginalRequest  AppointmentRequest `json:"original_request" db:"original_request"`
	ClinicResponses  []ResponseRecord   `json:"clinic_responses" db:"clinic_responses"`
	PatientResponses []ResponseRecord   `json:"patient_responses" db:"patient_responses"`
	// Proposal is the slot currently on the table and ProposedBy who put it there
	Proposal           SlotProposal  `json:"proposal" db:"proposal"`
	ProposedBy         Actor         `json:"proposed_by" db:"proposed_by"`
	Confirmed          *SlotProposal `json:"confirmed,omitempty" db:"confirmed"`
	CancelledBy        Actor         `json:"cancelled_by,omitempty" db:"cancelled_by"`
	CancellationReason string        `json:"cancellation_reason,omitempty" db:"cancellation_reason"`
	Version            int           `json:"version" db:"version"`
	CreatedAt          time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time     `json:"updated_at" db:"updated_at"`
}

// Clone returns a deep copy so transitions never touch the caller's value
func (a *Appointment) Clone() *Appointment {
	cp := *a
	cp.ClinicResponses = cloneRecords(a.ClinicResponses)
	cp.PatientResponses = cloneRecords(a.PatientResponses)
	if a.Confirmed != nil {
		confirmed := *a.Confirmed
		cp.Confirmed = &confirmed
	}
	return &cp
}

func cloneRecords(in []ResponseRecord) []ResponseRecord {
	if in == nil {
		return nil
	}
	out := make([]ResponseRecord, len(in))
	for i, r := range in {
		out[i] = r
		if r.Proposal != nil {
			p := *r.Proposal
			out[i].Proposal = &p
		}
	}
	return out
}

// LastClinicProposal returns the most recent slot the clinic offered
func (a *Appointment) LastClinicProposal() (SlotProposal, bool) {
	for i := len(a.ClinicResponses) - 1; i >= 0; i-- {
		if p := a.ClinicResponses[i].Proposal; p != nil {
			return *p, true
		}
	}
	return SlotProposal{}, false
}

// ReservedSlot is the slot the appointment claims: the confirmed one once
// frozen, otherwise the proposal on the table
func (a *Appointment) ReservedSlot() SlotProposal {
	if a.Confirmed != nil {
		return *a.Confirmed
	}
	return a.Proposal
}

// ReservedInterval resolves ReservedSlot in loc
func (a *Appointment) ReservedInterval(loc *time.Location) (Interval, error) {
	return a.ReservedSlot().Interval(loc)
}
