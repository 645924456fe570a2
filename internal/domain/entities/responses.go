package entities

import (
	"fmt"
	"strings"
	"time"
)

// ClinicResponseType is the wire tag of a clinic response
type ClinicResponseType string

const (
	ClinicResponseConfirmation ClinicResponseType = "confirmation"
	ClinicResponseCounterOffer ClinicResponseType = "counter-offer"
	ClinicResponseRejection    ClinicResponseType = "rejection"
)

// ClinicResponse is one of ClinicConfirmation, ClinicCounterOffer or
// ClinicRejection. The unexported method closes the set.
type ClinicResponse interface {
	ClinicResponseType() ClinicResponseType
	record() ResponseRecord
	sealedClinicResponse()
}

// ClinicConfirmation accepts the slot currently on the table
type ClinicConfirmation struct {
	Message string
}

// ClinicCounterOffer proposes a different slot
type ClinicCounterOffer struct {
	Proposal SlotProposal
	Message  string
}

// ClinicRejection declines the request outright
type ClinicRejection struct {
	Reason string
}

// NewClinicCounterOffer requires a well-formed proposal
func NewClinicCounterOffer(proposal SlotProposal, message string) (ClinicCounterOffer, error) {
	if proposal.Date == "" {
		return ClinicCounterOffer{}, fmt.Errorf("proposedDate is required")
	}
	if proposal.Time == "" {
		return ClinicCounterOffer{}, fmt.Errorf("proposedTime is required")
	}
	if err := checkProposalFields(proposal); err != nil {
		return ClinicCounterOffer{}, err
	}
	return ClinicCounterOffer{Proposal: proposal, Message: message}, nil
}

// NewClinicRejection requires a human-readable reason
func NewClinicRejection(reason string) (ClinicRejection, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return ClinicRejection{}, fmt.Errorf("rejection reason is required")
	}
	return ClinicRejection{Reason: reason}, nil
}

func (ClinicConfirmation) ClinicResponseType() ClinicResponseType { return ClinicResponseConfirmation }
func (ClinicCounterOffer) ClinicResponseType() ClinicResponseType { return ClinicResponseCounterOffer }
func (ClinicRejection) ClinicResponseType() ClinicResponseType    { return ClinicResponseRejection }

func (ClinicConfirmation) sealedClinicResponse() {}
func (ClinicCounterOffer) sealedClinicResponse() {}
func (ClinicRejection) sealedClinicResponse()    {}

func (r ClinicConfirmation) record() ResponseRecord {
	return ResponseRecord{Type: string(ClinicResponseConfirmation), Message: r.Message}
}

func (r ClinicCounterOffer) record() ResponseRecord {
	p := r.Proposal
	return ResponseRecord{Type: string(ClinicResponseCounterOffer), Proposal: &p, Message: r.Message}
}

func (r ClinicRejection) record() ResponseRecord {
	return ResponseRecord{Type: string(ClinicResponseRejection), Message: r.Reason}
}

// PatientResponseType is the wire tag of a patient response
type PatientResponseType string

const (
	PatientResponseAccept  PatientResponseType = "accept"
	PatientResponseCounter PatientResponseType = "counter"
	PatientResponseDecline PatientResponseType = "decline"
)

// PatientResponse is one of PatientAccept, PatientCounter or PatientDecline
type PatientResponse interface {
	PatientResponseType() PatientResponseType
	record() ResponseRecord
	sealedPatientResponse()
}

// PatientAccept takes the clinic's last offer
type PatientAccept struct {
	Message string
}

// PatientCounter proposes another slot back to the clinic
type PatientCounter struct {
	Proposal SlotProposal
	Message  string
}

// PatientDecline walks away from the negotiation
type PatientDecline struct {
	Message string
}

// NewPatientCounter requires a well-formed proposal
func NewPatientCounter(proposal SlotProposal, message string) (PatientCounter, error) {
	if proposal.Date == "" {
		return PatientCounter{}, fmt.Errorf("proposedDate is required")
	}
	if proposal.Time == "" {
		return PatientCounter{}, fmt.Errorf("proposedTime is required")
	}
	if err := checkProposalFields(proposal); err != nil {
		return PatientCounter{}, err
	}
	return PatientCounter{Proposal: proposal, Message: message}, nil
}

func (PatientAccept) PatientResponseType() PatientResponseType  { return PatientResponseAccept }
func (PatientCounter) PatientResponseType() PatientResponseType { return PatientResponseCounter }
func (PatientDecline) PatientResponseType() PatientResponseType { return PatientResponseDecline }

func (PatientAccept) sealedPatientResponse()  {}
func (PatientCounter) sealedPatientResponse() {}
func (PatientDecline) sealedPatientResponse() {}

func (r PatientAccept) record() ResponseRecord {
	return ResponseRecord{Type: string(PatientResponseAccept), Message: r.Message}
}

func (r PatientCounter) record() ResponseRecord {
	p := r.Proposal
	return ResponseRecord{Type: string(PatientResponseCounter), Proposal: &p, Message: r.Message}
}

func (r PatientDecline) record() ResponseRecord {
	return ResponseRecord{Type: string(PatientResponseDecline), Message: r.Message}
}

// checkProposalFields validates formats. A zero duration means the
// proposal keeps the length of the slot currently on the table.
func checkProposalFields(p SlotProposal) error {
	if _, err := ParseDate(p.Date, time.UTC); err != nil {
		return fmt.Errorf("invalid proposedDate %q, expected YYYY-MM-DD", p.Date)
	}
	if _, err := ParseClock(p.Time); err != nil {
		return fmt.Errorf("invalid proposedTime: %w", err)
	}
	if p.DurationMinutes < 0 {
		return fmt.Errorf("proposedDuration must not be negative")
	}
	return nil
}

// RecordOf converts a response into its log entry
func RecordOf(r interface{ record() ResponseRecord }) ResponseRecord {
	return r.record()
}
