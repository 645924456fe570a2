package entities

import "testing"

func TestNewClinicCounterOffer_RequiresDateAndTime(t *testing.T) {
	if _, err := NewClinicCounterOffer(SlotProposal{Time: "10:00"}, ""); err == nil {
		t.Error("expected missing date to fail")
	}
	if _, err := NewClinicCounterOffer(SlotProposal{Date: "2026-03-02"}, ""); err == nil {
		t.Error("expected missing time to fail")
	}
	if _, err := NewClinicCounterOffer(SlotProposal{Date: "02/03/2026", Time: "10:00"}, ""); err == nil {
		t.Error("expected bad date format to fail")
	}

	offer, err := NewClinicCounterOffer(SlotProposal{Date: "2026-03-02", Time: "10:00"}, "how about ten")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rec := RecordOf(offer)
	if rec.Type != "counter-offer" || rec.Proposal == nil || rec.Proposal.Time != "10:00" {
		t.Errorf("unexpected record %+v", rec)
	}
}

func TestNewClinicRejection_RequiresReason(t *testing.T) {
	if _, err := NewClinicRejection("   "); err == nil {
		t.Error("expected blank reason to fail")
	}
	r, err := NewClinicRejection(" fully booked ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Reason != "fully booked" {
		t.Errorf("reason not trimmed: %q", r.Reason)
	}
}

func TestAppointment_CloneIsDeep(t *testing.T) {
	p := SlotProposal{Date: "2026-03-02", Time: "10:00", DurationMinutes: 30}
	orig := &Appointment{
		ClinicResponses: []ResponseRecord{{Type: "counter-offer", Proposal: &p}},
		Confirmed:       &p,
	}

	cp := orig.Clone()
	cp.ClinicResponses[0].Proposal.Time = "11:00"
	cp.Confirmed.Time = "12:00"
	cp.ClinicResponses = append(cp.ClinicResponses, ResponseRecord{Type: "rejection"})

	if orig.ClinicResponses[0].Proposal.Time != "10:00" {
		t.Error("clone shares proposal pointers with the original")
	}
	if orig.Confirmed.Time != "10:00" {
		t.Error("clone shares the confirmed slot with the original")
	}
	if len(orig.ClinicResponses) != 1 {
		t.Error("clone shares the response log backing array")
	}
}

func TestAppointment_LastClinicProposal(t *testing.T) {
	first := SlotProposal{Date: "2026-03-02", Time: "10:00", DurationMinutes: 30}
	second := SlotProposal{Date: "2026-03-03", Time: "11:00", DurationMinutes: 30}
	a := &Appointment{ClinicResponses: []ResponseRecord{
		{Type: "counter-offer", Proposal: &first},
		{Type: "counter-offer", Proposal: &second},
		{Type: "confirmation"},
	}}

	got, ok := a.LastClinicProposal()
	if !ok || got != second {
		t.Errorf("expected %+v, got %+v (ok=%v)", second, got, ok)
	}
}
