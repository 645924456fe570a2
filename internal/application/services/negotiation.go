package services

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/zatekoja/clinicscheduler/internal/domain/entities"
	apperrors "github.com/zatekoja/clinicscheduler/pkg/errors"
)

var allowedTransitions = map[entities.AppointmentStatus][]entities.AppointmentStatus{
	entities.AppointmentStatusPending: {
		entities.AppointmentStatusCounterOffered,
		entities.AppointmentStatusConfirmed,
		entities.AppointmentStatusRejected,
		entities.AppointmentStatusCancelled,
	},
	entities.AppointmentStatusCounterOffered: {
		entities.AppointmentStatusCounterOffered,
		entities.AppointmentStatusConfirmed,
		entities.AppointmentStatusRejected,
		entities.AppointmentStatusCancelled,
	},
	entities.AppointmentStatusConfirmed: {
		entities.AppointmentStatusCompleted,
		entities.AppointmentStatusCancelled,
		entities.AppointmentStatusNoShow,
	},
}

// CanTransition reports whether one step from -> to is permitted
func CanTransition(from, to entities.AppointmentStatus) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// SlotContext is the snapshot of clinic state a transition validates against.
// Bookings and Holds must already exclude the appointment itself.
type SlotContext struct {
	Location *time.Location
	Hours    entities.WeeklyHours
	Bookings []entities.BookingInterval
	Holds    []entities.ReservationHold
	Now      time.Time
}

// Transition is the result of applying one input to an appointment
type Transition struct {
	From        entities.AppointmentStatus
	Appointment *entities.Appointment
	// Event is nil for transitions that notify nobody
	Event *entities.NotificationEvent
	// Guard is the range that must still be free when the write commits
	Guard *entities.Interval
}

// Negotiator applies negotiation inputs to appointments without side effects
type Negotiator struct {
	policy SlotPolicy
	newID  func() string
}

// NewNegotiator creates a negotiator. A nil newID uses random UUIDs.
func NewNegotiator(policy SlotPolicy, newID func() string) *Negotiator {
	if newID == nil {
		newID = uuid.NewString
	}
	return &Negotiator{policy: policy, newID: newID}
}

// AppointmentRequest is a validated requestAppointment input
type AppointmentRequest struct {
	PatientID    string
	PatientName  string
	PatientPhone string
	Clinic       *entities.Clinic
	Slot         entities.SlotProposal
	Type         string
	Reason       string
}

// NewAppointment validates a request and builds the pending appointment
func (n *Negotiator) NewAppointment(req AppointmentRequest, sc SlotContext) (*Transition, error) {
	if strings.TrimSpace(req.PatientID) == "" {
		return nil, apperrors.NewMissingFieldError("patientId")
	}
	if req.Clinic == nil {
		return nil, apperrors.NewMissingFieldError("clinicId")
	}

	slot, err := n.checkProposal(req.Slot, sc, req.PatientID)
	if err != nil {
		return nil, err
	}

	appt := &entities.Appointment{
		ID:           n.newID(),
		PatientID:    req.PatientID,
		PatientName:  req.PatientName,
		PatientPhone: req.PatientPhone,
		ClinicID:     req.Clinic.ID,
		ClinicName:   req.Clinic.Name,
		Type:         req.Type,
		Status:       entities.AppointmentStatusPending,
		OriginalRequest: entities.AppointmentRequest{
			SlotProposal: req.Slot,
			Reason:       req.Reason,
		},
		ClinicResponses:  []entities.ResponseRecord{},
		PatientResponses: []entities.ResponseRecord{},
		Proposal:         req.Slot,
		ProposedBy:       entities.ActorPatient,
		CreatedAt:        sc.Now,
		UpdatedAt:        sc.Now,
	}

	event := n.event(entities.NotificationAppointmentRequest, appt, req.Slot, entities.ActorPatient, req.Reason, sc.Now,
		entities.ActorClinic)
	return &Transition{Appointment: appt, Event: event, Guard: &slot}, nil
}

// ClinicTarget returns the slot a clinic response would commit to, if any
func ClinicTarget(appt *entities.Appointment, resp entities.ClinicResponse) (entities.SlotProposal, bool) {
	switch r := resp.(type) {
	case entities.ClinicConfirmation:
		return appt.Proposal, true
	case entities.ClinicCounterOffer:
		return withDuration(r.Proposal, appt.Proposal.DurationMinutes), true
	}
	return entities.SlotProposal{}, false
}

// PatientTarget returns the slot a patient response would commit to, if any
func PatientTarget(appt *entities.Appointment, resp entities.PatientResponse) (entities.SlotProposal, bool) {
	switch r := resp.(type) {
	case entities.PatientAccept:
		return appt.LastClinicProposal()
	case entities.PatientCounter:
		return withDuration(r.Proposal, appt.Proposal.DurationMinutes), true
	}
	return entities.SlotProposal{}, false
}

// ApplyClinicResponse applies a clinic's confirmation, counter-offer or rejection
func (n *Negotiator) ApplyClinicResponse(current *entities.Appointment, resp entities.ClinicResponse, sc SlotContext) (*Transition, error) {
	if resp == nil {
		return nil, apperrors.NewMissingFieldError("responseType")
	}
	if err := requireNegotiating(current, "clinic "+string(resp.ClinicResponseType())); err != nil {
		return nil, err
	}

	appt := current.Clone()
	record := entities.RecordOf(resp)
	record.CreatedAt = sc.Now
	t := &Transition{From: current.Status, Appointment: appt}

	switch r := resp.(type) {
	case entities.ClinicConfirmation:
		slot, err := n.recheck(appt.Proposal, appt.PatientID, sc)
		if err != nil {
			return nil, err
		}
		confirmed := appt.Proposal
		appt.Status = entities.AppointmentStatusConfirmed
		appt.Confirmed = &confirmed
		t.Guard = &slot
		t.Event = n.event(entities.NotificationConfirmation, appt, confirmed, entities.ActorClinic, r.Message, sc.Now,
			entities.ActorPatient)

	case entities.ClinicCounterOffer:
		proposal := withDuration(r.Proposal, appt.Proposal.DurationMinutes)
		slot, err := n.checkProposal(proposal, sc, appt.PatientID)
		if err != nil {
			return nil, err
		}
		record.Proposal = &proposal
		appt.Status = entities.AppointmentStatusCounterOffered
		appt.Proposal = proposal
		appt.ProposedBy = entities.ActorClinic
		t.Guard = &slot
		t.Event = n.event(entities.NotificationCounterOffer, appt, proposal, entities.ActorClinic, r.Message, sc.Now,
			entities.ActorPatient)

	case entities.ClinicRejection:
		appt.Status = entities.AppointmentStatusRejected
		t.Event = n.event(entities.NotificationRejection, appt, appt.Proposal, entities.ActorClinic, r.Reason, sc.Now,
			entities.ActorPatient)

	default:
		return nil, apperrors.NewValidationError("unsupported clinic response")
	}

	appt.ClinicResponses = append(appt.ClinicResponses, record)
	appt.UpdatedAt = sc.Now
	return t, nil
}

// ApplyPatientResponse applies a patient's accept, counter or decline. It is
// only valid while the clinic's counter-offer is on the table.
func (n *Negotiator) ApplyPatientResponse(current *entities.Appointment, resp entities.PatientResponse, sc SlotContext) (*Transition, error) {
	if resp == nil {
		return nil, apperrors.NewMissingFieldError("responseType")
	}
	if current.Status != entities.AppointmentStatusCounterOffered {
		return nil, apperrors.NewInvalidTransitionError("patient %s not allowed while appointment is %s",
			resp.PatientResponseType(), current.Status)
	}

	appt := current.Clone()
	record := entities.RecordOf(resp)
	record.CreatedAt = sc.Now
	t := &Transition{From: current.Status, Appointment: appt}

	switch r := resp.(type) {
	case entities.PatientAccept:
		offer, ok := appt.LastClinicProposal()
		if !ok {
			return nil, apperrors.NewInvalidTransitionError("no clinic offer to accept")
		}
		slot, err := n.recheck(offer, appt.PatientID, sc)
		if err != nil {
			return nil, err
		}
		appt.Status = entities.AppointmentStatusConfirmed
		appt.Proposal = offer
		appt.ProposedBy = entities.ActorClinic
		appt.Confirmed = &offer
		t.Guard = &slot
		t.Event = n.event(entities.NotificationConfirmation, appt, offer, entities.ActorPatient, r.Message, sc.Now,
			entities.ActorClinic, entities.ActorPatient)

	case entities.PatientCounter:
		proposal := withDuration(r.Proposal, appt.Proposal.DurationMinutes)
		slot, err := n.checkProposal(proposal, sc, appt.PatientID)
		if err != nil {
			return nil, err
		}
		record.Proposal = &proposal
		appt.Proposal = proposal
		appt.ProposedBy = entities.ActorPatient
		t.Guard = &slot
		t.Event = n.event(entities.NotificationCounterOffer, appt, proposal, entities.ActorPatient, r.Message, sc.Now,
			entities.ActorClinic)

	case entities.PatientDecline:
		appt.Status = entities.AppointmentStatusCancelled
		appt.CancelledBy = entities.ActorPatient
		appt.CancellationReason = r.Message
		t.Event = n.event(entities.NotificationCancellation, appt, appt.Proposal, entities.ActorPatient, r.Message, sc.Now,
			entities.ActorClinic)

	default:
		return nil, apperrors.NewValidationError("unsupported patient response")
	}

	appt.PatientResponses = append(appt.PatientResponses, record)
	appt.UpdatedAt = sc.Now
	return t, nil
}

// Cancel moves any non-terminal appointment to cancelled and notifies both parties
func (n *Negotiator) Cancel(current *entities.Appointment, actor entities.Actor, reason string, now time.Time) (*Transition, error) {
	if current.Status.IsTerminal() {
		return nil, apperrors.NewInvalidTransitionError("appointment is already %s", current.Status)
	}

	appt := current.Clone()
	record := entities.ResponseRecord{Type: "cancellation", Message: reason, CreatedAt: now}
	switch actor {
	case entities.ActorPatient:
		appt.PatientResponses = append(appt.PatientResponses, record)
	case entities.ActorClinic, entities.ActorSystem:
		// system cancellations act on the clinic's behalf
		appt.ClinicResponses = append(appt.ClinicResponses, record)
	default:
		return nil, apperrors.NewValidationError("unknown actor")
	}

	appt.Status = entities.AppointmentStatusCancelled
	appt.CancelledBy = actor
	appt.CancellationReason = reason
	appt.UpdatedAt = now

	return &Transition{
		From:        current.Status,
		Appointment: appt,
		Event: n.event(entities.NotificationCancellation, appt, appt.ReservedSlot(), actor, reason, now,
			entities.ActorPatient, entities.ActorClinic),
	}, nil
}

// Complete marks a confirmed appointment as attended
func (n *Negotiator) Complete(current *entities.Appointment, now time.Time) (*Transition, error) {
	return n.close(current, entities.AppointmentStatusCompleted, now)
}

// MarkNoShow marks a confirmed appointment as missed
func (n *Negotiator) MarkNoShow(current *entities.Appointment, now time.Time) (*Transition, error) {
	return n.close(current, entities.AppointmentStatusNoShow, now)
}

func (n *Negotiator) close(current *entities.Appointment, to entities.AppointmentStatus, now time.Time) (*Transition, error) {
	if !CanTransition(current.Status, to) {
		return nil, apperrors.NewInvalidTransitionError("cannot move appointment from %s to %s", current.Status, to)
	}
	appt := current.Clone()
	appt.Status = to
	appt.UpdatedAt = now
	return &Transition{From: current.Status, Appointment: appt}, nil
}

func requireNegotiating(appt *entities.Appointment, action string) error {
	switch appt.Status {
	case entities.AppointmentStatusPending, entities.AppointmentStatusCounterOffered:
		return nil
	}
	return apperrors.NewInvalidTransitionError("%s not allowed while appointment is %s", action, appt.Status)
}

// checkProposal validates a newly proposed slot: format, length, booking
// window, opening hours and availability.
func (n *Negotiator) checkProposal(p entities.SlotProposal, sc SlotContext, holderID string) (entities.Interval, error) {
	slot, err := p.Interval(sc.Location)
	if err != nil {
		return entities.Interval{}, apperrors.NewValidationError(err.Error()).WithCode(apperrors.CodeInvalidFormat)
	}
	if err := n.policy.ValidateDuration(p.DurationMinutes); err != nil {
		return entities.Interval{}, err
	}
	if err := n.policy.ValidateDate(slot.Start, sc.Now, 0); err != nil {
		return entities.Interval{}, err
	}
	if slot.Start.Before(sc.Now) {
		return entities.Interval{}, apperrors.NewRangeError("slot %s %s has already started", p.Date, p.Time)
	}
	if !sc.Hours.Fits(slot) {
		return entities.Interval{}, apperrors.NewValidationError("slot is outside clinic hours").WithCode(apperrors.CodeOutsideHours)
	}
	if err := findSlotConflict(slot, holderID, sc); err != nil {
		return entities.Interval{}, err
	}
	return slot, nil
}

// recheck re-validates a slot that was already accepted as well-formed
func (n *Negotiator) recheck(p entities.SlotProposal, holderID string, sc SlotContext) (entities.Interval, error) {
	slot, err := p.Interval(sc.Location)
	if err != nil {
		return entities.Interval{}, apperrors.NewInternalError("stored proposal is malformed", err)
	}
	if slot.Start.Before(sc.Now) {
		return entities.Interval{}, apperrors.NewRangeError("slot %s %s has already started", p.Date, p.Time)
	}
	if err := findSlotConflict(slot, holderID, sc); err != nil {
		return entities.Interval{}, err
	}
	return slot, nil
}

func findSlotConflict(slot entities.Interval, holderID string, sc SlotContext) error {
	if b, ok := entities.FindConflict(slot, sc.Bookings); ok {
		return apperrors.NewSlotUnavailableError("slot overlaps appointment " + b.AppointmentID)
	}
	if _, ok := entities.FindHoldConflict(slot, entities.BlockingHolds(sc.Holds, holderID, sc.Now)); ok {
		return apperrors.NewSlotUnavailableError("slot is held by another patient")
	}
	return nil
}

func withDuration(p entities.SlotProposal, fallback int) entities.SlotProposal {
	if p.DurationMinutes == 0 {
		p.DurationMinutes = fallback
	}
	return p
}

func (n *Negotiator) event(
	kind entities.NotificationType,
	appt *entities.Appointment,
	slot entities.SlotProposal,
	actor entities.Actor,
	message string,
	now time.Time,
	recipients ...entities.Actor,
) *entities.NotificationEvent {
	return &entities.NotificationEvent{
		ID:              n.newID(),
		Type:            kind,
		AppointmentID:   appt.ID,
		Status:          appt.Status,
		Patient:         entities.Party{ID: appt.PatientID, Name: appt.PatientName, Phone: appt.PatientPhone},
		Clinic:          entities.Party{ID: appt.ClinicID, Name: appt.ClinicName},
		Recipients:      recipients,
		Date:            slot.Date,
		Time:            slot.Time,
		DurationMinutes: slot.DurationMinutes,
		Message:         message,
		Actor:           actor,
		OccurredAt:      now,
	}
}
