package services_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zatekoja/clinicscheduler/internal/application/services"
	"github.com/zatekoja/clinicscheduler/internal/domain/entities"
	apperrors "github.com/zatekoja/clinicscheduler/pkg/errors"
)

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}
}

func newNegotiator() *services.Negotiator {
	return services.NewNegotiator(services.DefaultSlotPolicy(), sequentialIDs())
}

func slotContext(t *testing.T, bookings ...entities.BookingInterval) services.SlotContext {
	return services.SlotContext{
		Location: time.UTC,
		Hours:    weekdayHours(t),
		Bookings: bookings,
		Now:      clinicDay(8, 0),
	}
}

func pendingAppointment(t *testing.T) *entities.Appointment {
	t.Helper()
	tr, err := newNegotiator().NewAppointment(services.AppointmentRequest{
		PatientID:   "patient-1",
		PatientName: "Ada",
		Clinic:      &entities.Clinic{ID: "clinic-1", Name: "Northside"},
		Slot:        entities.SlotProposal{Date: "2026-03-03", Time: "10:00", DurationMinutes: 30},
		Reason:      "checkup",
	}, slotContext(t))
	require.NoError(t, err)
	return tr.Appointment
}

func TestCanTransition(t *testing.T) {
	all := []entities.AppointmentStatus{
		entities.AppointmentStatusPending,
		entities.AppointmentStatusCounterOffered,
		entities.AppointmentStatusConfirmed,
		entities.AppointmentStatusRejected,
		entities.AppointmentStatusCancelled,
		entities.AppointmentStatusCompleted,
		entities.AppointmentStatusNoShow,
	}

	var fromPending []entities.AppointmentStatus
	for _, to := range all {
		if services.CanTransition(entities.AppointmentStatusPending, to) {
			fromPending = append(fromPending, to)
		}
	}
	assert.ElementsMatch(t, []entities.AppointmentStatus{
		entities.AppointmentStatusCounterOffered,
		entities.AppointmentStatusConfirmed,
		entities.AppointmentStatusRejected,
		entities.AppointmentStatusCancelled,
	}, fromPending)

	for _, from := range all {
		if !from.IsTerminal() {
			continue
		}
		for _, to := range all {
			assert.False(t, services.CanTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func TestNewAppointment(t *testing.T) {
	n := newNegotiator()
	clinic := &entities.Clinic{ID: "clinic-1", Name: "Northside"}

	t.Run("builds a pending appointment and a request event for the clinic", func(t *testing.T) {
		tr, err := n.NewAppointment(services.AppointmentRequest{
			PatientID: "patient-1", PatientName: "Ada", Clinic: clinic,
			Slot: entities.SlotProposal{Date: "2026-03-03", Time: "10:00", DurationMinutes: 30},
		}, slotContext(t))

		require.NoError(t, err)
		assert.Equal(t, entities.AppointmentStatusPending, tr.Appointment.Status)
		assert.Equal(t, entities.ActorPatient, tr.Appointment.ProposedBy)
		require.NotNil(t, tr.Event)
		assert.Equal(t, entities.NotificationAppointmentRequest, tr.Event.Type)
		assert.Equal(t, []entities.Actor{entities.ActorClinic}, tr.Event.Recipients)
		assert.Equal(t, "Northside", tr.Event.Clinic.Name)
		require.NotNil(t, tr.Guard)
		assert.Equal(t, time.Date(2026, 3, 3, 10, 0, 0, 0, time.UTC), tr.Guard.Start)
	})

	cases := []struct {
		name string
		slot entities.SlotProposal
		code apperrors.Code
		kind apperrors.ErrorType
	}{
		{"outside hours", entities.SlotProposal{Date: "2026-03-03", Time: "16:45", DurationMinutes: 30}, apperrors.CodeOutsideHours, apperrors.ErrorTypeValidation},
		{"closed day", entities.SlotProposal{Date: "2026-03-08", Time: "10:00", DurationMinutes: 30}, apperrors.CodeOutsideHours, apperrors.ErrorTypeValidation},
		{"bad duration", entities.SlotProposal{Date: "2026-03-03", Time: "10:00", DurationMinutes: 5}, apperrors.CodeRange, apperrors.ErrorTypeValidation},
		{"bad format", entities.SlotProposal{Date: "03/03/2026", Time: "10:00", DurationMinutes: 30}, apperrors.CodeInvalidFormat, apperrors.ErrorTypeValidation},
		{"too far ahead", entities.SlotProposal{Date: "2026-07-01", Time: "10:00", DurationMinutes: 30}, apperrors.CodeWindowExceeded, apperrors.ErrorTypeValidation},
		{"already started", entities.SlotProposal{Date: "2026-03-02", Time: "07:30", DurationMinutes: 30}, apperrors.CodeRange, apperrors.ErrorTypeValidation},
		{"booked", entities.SlotProposal{Date: "2026-03-02", Time: "10:00", DurationMinutes: 30}, apperrors.CodeSlotNoLongerAvailable, apperrors.ErrorTypeConflict},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := n.NewAppointment(services.AppointmentRequest{
				PatientID: "patient-1", Clinic: clinic, Slot: tc.slot,
			}, slotContext(t, booking("other", 10, 0, 10, 30)))

			require.Error(t, err)
			assert.True(t, apperrors.IsType(err, tc.kind), "got %v", err)
			assert.True(t, apperrors.HasCode(err, tc.code), "got %v", err)
		})
	}
}

func TestScenarioC_CounterOfferThenAccept(t *testing.T) {
	n := newNegotiator()
	appt := pendingAppointment(t)

	offer, err := entities.NewClinicCounterOffer(entities.SlotProposal{Date: "2026-03-03", Time: "11:00"}, "how about eleven")
	require.NoError(t, err)

	countered, err := n.ApplyClinicResponse(appt, offer, slotContext(t))
	require.NoError(t, err)
	assert.Equal(t, entities.AppointmentStatusCounterOffered, countered.Appointment.Status)
	assert.Equal(t, entities.NotificationCounterOffer, countered.Event.Type)
	assert.Equal(t, 30, countered.Appointment.Proposal.DurationMinutes, "duration defaults to the original length")
	require.Len(t, countered.Appointment.ClinicResponses, 1)

	accepted, err := n.ApplyPatientResponse(countered.Appointment, entities.PatientAccept{}, slotContext(t))
	require.NoError(t, err)
	assert.Equal(t, entities.AppointmentStatusConfirmed, accepted.Appointment.Status)
	require.NotNil(t, accepted.Appointment.Confirmed)
	assert.Equal(t, "2026-03-03", accepted.Appointment.Confirmed.Date)
	assert.Equal(t, "11:00", accepted.Appointment.Confirmed.Time)
	assert.Equal(t, entities.NotificationConfirmation, accepted.Event.Type)
	assert.Len(t, accepted.Appointment.PatientResponses, 1)

	// input appointments are never mutated
	assert.Equal(t, entities.AppointmentStatusPending, appt.Status)
	assert.Empty(t, appt.ClinicResponses)
	assert.Equal(t, entities.AppointmentStatusCounterOffered, countered.Appointment.Status)
}

func TestScenarioD_CancelThenRespond(t *testing.T) {
	n := newNegotiator()
	confirmed, err := n.ApplyClinicResponse(pendingAppointment(t), entities.ClinicConfirmation{}, slotContext(t))
	require.NoError(t, err)
	require.Equal(t, entities.AppointmentStatusConfirmed, confirmed.Appointment.Status)

	for _, actor := range []entities.Actor{entities.ActorPatient, entities.ActorClinic} {
		t.Run(string(actor), func(t *testing.T) {
			cancelled, err := n.Cancel(confirmed.Appointment, actor, "cannot make it", clinicDay(8, 30))
			require.NoError(t, err)
			assert.Equal(t, entities.AppointmentStatusCancelled, cancelled.Appointment.Status)
			assert.Equal(t, actor, cancelled.Appointment.CancelledBy)
			assert.Equal(t, entities.NotificationCancellation, cancelled.Event.Type)
			assert.ElementsMatch(t, []entities.Actor{entities.ActorPatient, entities.ActorClinic}, cancelled.Event.Recipients)

			_, err = n.ApplyClinicResponse(cancelled.Appointment, entities.ClinicConfirmation{}, slotContext(t))
			assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeInvalidTransition))

			_, err = n.Cancel(cancelled.Appointment, actor, "again", clinicDay(9, 0))
			assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeInvalidTransition))
		})
	}
}

func TestApplyPatientResponse_RequiresCounterOffer(t *testing.T) {
	n := newNegotiator()
	appt := pendingAppointment(t)

	responses := []entities.PatientResponse{
		entities.PatientAccept{},
		entities.PatientDecline{},
		entities.PatientCounter{Proposal: entities.SlotProposal{Date: "2026-03-03", Time: "12:00"}},
	}
	for _, resp := range responses {
		_, err := n.ApplyPatientResponse(appt, resp, slotContext(t))
		assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeInvalidTransition), "%T: %v", resp, err)
	}
}

func TestConfirmation_SlotNoLongerAvailable(t *testing.T) {
	n := newNegotiator()
	appt := pendingAppointment(t)
	taken := entities.BookingInterval{
		AppointmentID: "rival",
		Interval:      entities.NewInterval(time.Date(2026, 3, 3, 10, 15, 0, 0, time.UTC), 30*time.Minute),
	}

	_, err := n.ApplyClinicResponse(appt, entities.ClinicConfirmation{}, slotContext(t, taken))

	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeConflict))
	assert.True(t, apperrors.HasCode(err, apperrors.CodeSlotNoLongerAvailable))
	assert.Equal(t, entities.AppointmentStatusPending, appt.Status)
	assert.Nil(t, appt.Confirmed)
}

func TestPatientCounter_LoopsBackToClinic(t *testing.T) {
	n := newNegotiator()
	offer, _ := entities.NewClinicCounterOffer(entities.SlotProposal{Date: "2026-03-03", Time: "11:00"}, "")
	countered, err := n.ApplyClinicResponse(pendingAppointment(t), offer, slotContext(t))
	require.NoError(t, err)

	counter, err := entities.NewPatientCounter(entities.SlotProposal{Date: "2026-03-04", Time: "14:00", DurationMinutes: 45}, "afternoon please")
	require.NoError(t, err)
	back, err := n.ApplyPatientResponse(countered.Appointment, counter, slotContext(t))
	require.NoError(t, err)

	assert.Equal(t, entities.AppointmentStatusCounterOffered, back.Appointment.Status)
	assert.Equal(t, entities.ActorPatient, back.Appointment.ProposedBy)
	assert.Equal(t, "14:00", back.Appointment.Proposal.Time)
	assert.Equal(t, []entities.Actor{entities.ActorClinic}, back.Event.Recipients)

	// clinic confirms the patient's proposal
	done, err := n.ApplyClinicResponse(back.Appointment, entities.ClinicConfirmation{}, slotContext(t))
	require.NoError(t, err)
	assert.Equal(t, "2026-03-04", done.Appointment.Confirmed.Date)
	assert.Equal(t, 45, done.Appointment.Confirmed.DurationMinutes)
}

func TestPatientDecline_Cancels(t *testing.T) {
	n := newNegotiator()
	offer, _ := entities.NewClinicCounterOffer(entities.SlotProposal{Date: "2026-03-03", Time: "11:00"}, "")
	countered, err := n.ApplyClinicResponse(pendingAppointment(t), offer, slotContext(t))
	require.NoError(t, err)

	declined, err := n.ApplyPatientResponse(countered.Appointment, entities.PatientDecline{Message: "no thanks"}, slotContext(t))
	require.NoError(t, err)
	assert.Equal(t, entities.AppointmentStatusCancelled, declined.Appointment.Status)
	assert.Equal(t, entities.NotificationCancellation, declined.Event.Type)
	assert.Nil(t, declined.Guard)
}

func TestClinicRejection(t *testing.T) {
	n := newNegotiator()
	rejection, err := entities.NewClinicRejection("doctor unavailable")
	require.NoError(t, err)

	rejected, err := n.ApplyClinicResponse(pendingAppointment(t), rejection, slotContext(t))
	require.NoError(t, err)
	assert.Equal(t, entities.AppointmentStatusRejected, rejected.Appointment.Status)
	assert.Equal(t, "doctor unavailable", rejected.Appointment.ClinicResponses[0].Message)
	assert.Equal(t, entities.NotificationRejection, rejected.Event.Type)

	_, err = n.ApplyClinicResponse(rejected.Appointment, entities.ClinicConfirmation{}, slotContext(t))
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeInvalidTransition))
}

func TestCounterOffer_OutsideHoursRejected(t *testing.T) {
	n := newNegotiator()
	offer, _ := entities.NewClinicCounterOffer(entities.SlotProposal{Date: "2026-03-03", Time: "18:00"}, "")

	_, err := n.ApplyClinicResponse(pendingAppointment(t), offer, slotContext(t))
	assert.True(t, apperrors.HasCode(err, apperrors.CodeOutsideHours))
}

func TestCompleteAndNoShow(t *testing.T) {
	n := newNegotiator()
	appt := pendingAppointment(t)

	_, err := n.Complete(appt, clinicDay(12, 0))
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeInvalidTransition))

	confirmed, err := n.ApplyClinicResponse(appt, entities.ClinicConfirmation{}, slotContext(t))
	require.NoError(t, err)

	completed, err := n.Complete(confirmed.Appointment, clinicDay(12, 0))
	require.NoError(t, err)
	assert.Equal(t, entities.AppointmentStatusCompleted, completed.Appointment.Status)
	assert.Nil(t, completed.Event)

	missed, err := n.MarkNoShow(confirmed.Appointment, clinicDay(12, 0))
	require.NoError(t, err)
	assert.Equal(t, entities.AppointmentStatusNoShow, missed.Appointment.Status)
}

func TestCancel_SystemActorRecordsReason(t *testing.T) {
	n := newNegotiator()
	confirmed, err := n.ApplyClinicResponse(pendingAppointment(t), entities.ClinicConfirmation{}, slotContext(t))
	require.NoError(t, err)

	cancelled, err := n.Cancel(confirmed.Appointment, entities.ActorSystem, "clinic closed", clinicDay(8, 30))
	require.NoError(t, err)

	assert.Equal(t, entities.ActorSystem, cancelled.Appointment.CancelledBy)
	assert.Empty(t, cancelled.Appointment.PatientResponses)
	require.Len(t, cancelled.Appointment.ClinicResponses, 2, "confirmation plus cancellation")
	last := cancelled.Appointment.ClinicResponses[1]
	assert.Equal(t, "cancellation", last.Type)
	assert.Equal(t, "clinic closed", last.Message)
}

func TestCancel_UnknownActorRejected(t *testing.T) {
	n := newNegotiator()
	appt := pendingAppointment(t)

	_, err := n.Cancel(appt, entities.Actor("bogus"), "x", clinicDay(8, 30))

	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeValidation))
	assert.Equal(t, entities.AppointmentStatusPending, appt.Status)
}

func TestConfirmation_SlotAlreadyStarted(t *testing.T) {
	n := newNegotiator()
	appt := pendingAppointment(t)

	late := slotContext(t)
	late.Now = time.Date(2026, 3, 3, 10, 5, 0, 0, time.UTC)
	_, err := n.ApplyClinicResponse(appt, entities.ClinicConfirmation{}, late)

	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeRange), "got %v", err)
	assert.Nil(t, appt.Confirmed)
}

func TestPatientAccept_OfferAlreadyStarted(t *testing.T) {
	n := newNegotiator()
	offer, err := entities.NewClinicCounterOffer(entities.SlotProposal{Date: "2026-03-03", Time: "11:00"}, "eleven")
	require.NoError(t, err)
	countered, err := n.ApplyClinicResponse(pendingAppointment(t), offer, slotContext(t))
	require.NoError(t, err)

	late := slotContext(t)
	late.Now = time.Date(2026, 3, 3, 11, 30, 0, 0, time.UTC)
	_, err = n.ApplyPatientResponse(countered.Appointment, entities.PatientAccept{}, late)

	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeRange), "got %v", err)
	assert.Equal(t, entities.AppointmentStatusCounterOffered, countered.Appointment.Status)
}
