package services

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/zatekoja/clinicscheduler/internal/domain/entities"
	"github.com/zatekoja/clinicscheduler/internal/domain/providers"
	"github.com/zatekoja/clinicscheduler/internal/domain/repositories"
	apperrors "github.com/zatekoja/clinicscheduler/pkg/errors"
)

// PlaceHoldRequest asks for an exclusive claim on one slot
type PlaceHoldRequest struct {
	ClinicID   string
	PatientID  string
	Slot       entities.SlotProposal
	TTLMinutes int
}

// NewPlaceHoldRequest validates required fields. A zero ttl takes the default.
func NewPlaceHoldRequest(clinicID, patientID string, slot entities.SlotProposal, ttlMinutes int) (PlaceHoldRequest, error) {
	if strings.TrimSpace(clinicID) == "" {
		return PlaceHoldRequest{}, apperrors.NewMissingFieldError("clinicId")
	}
	if strings.TrimSpace(patientID) == "" {
		return PlaceHoldRequest{}, apperrors.NewMissingFieldError("patientId")
	}
	if slot.Date == "" {
		return PlaceHoldRequest{}, apperrors.NewMissingFieldError("date")
	}
	if slot.Time == "" {
		return PlaceHoldRequest{}, apperrors.NewMissingFieldError("time")
	}
	if ttlMinutes < 0 {
		return PlaceHoldRequest{}, apperrors.NewRangeError("ttlMinutes must not be negative")
	}
	return PlaceHoldRequest{ClinicID: clinicID, PatientID: patientID, Slot: slot, TTLMinutes: ttlMinutes}, nil
}

// HoldService manages reservation holds
type HoldService struct {
	holds      repositories.HoldRepository
	clinics    repositories.ClinicRepository
	negotiator *Negotiator
	clock      providers.Clock
	blocking   []entities.AppointmentStatus
	defaultTTL int
	maxTTL     int
	metrics    MetricsRecorder
	logger     zerolog.Logger
}

// HoldServiceConfig holds hold TTL bounds
type HoldServiceConfig struct {
	DefaultTTLMinutes        int
	MaxTTLMinutes            int
	ReserveDuringNegotiation bool
}

// NewHoldService creates a new hold service
func NewHoldService(
	holds repositories.HoldRepository,
	clinics repositories.ClinicRepository,
	negotiator *Negotiator,
	clock providers.Clock,
	cfg HoldServiceConfig,
	metrics MetricsRecorder,
	logger zerolog.Logger,
) *HoldService {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &HoldService{
		holds:      holds,
		clinics:    clinics,
		negotiator: negotiator,
		clock:      clock,
		blocking:   BlockingStatuses(cfg.ReserveDuringNegotiation),
		defaultTTL: cfg.DefaultTTLMinutes,
		maxTTL:     cfg.MaxTTLMinutes,
		metrics:    metrics,
		logger:     logger.With().Str("component", "hold_service").Logger(),
	}
}

// Place claims a slot for a patient. When the slot is already booked or
// held the result is a CONFLICT error with code HOLD_CONTENTION.
func (s *HoldService) Place(ctx context.Context, req PlaceHoldRequest) (*entities.ReservationHold, error) {
	ttl := req.TTLMinutes
	if ttl == 0 {
		ttl = s.defaultTTL
	}
	if s.maxTTL > 0 && ttl > s.maxTTL {
		return nil, apperrors.NewRangeError("ttlMinutes %d exceeds maximum %d", ttl, s.maxTTL)
	}

	clinic, err := s.clinics.GetByID(ctx, req.ClinicID)
	if err != nil {
		return nil, err
	}
	loc, err := clinic.Location()
	if err != nil {
		return nil, apperrors.NewInternalError("clinic timezone is invalid", err)
	}

	now := s.clock.Now()
	// Shape checks only; occupancy is decided atomically by the store.
	slot, err := s.negotiator.checkProposal(req.Slot, SlotContext{Location: loc, Hours: clinic.Hours, Now: now}, req.PatientID)
	if err != nil {
		return nil, err
	}

	hold := &entities.ReservationHold{
		ID:        uuid.NewString(),
		ClinicID:  clinic.ID,
		PatientID: req.PatientID,
		Slot:      slot,
		CreatedAt: now,
		ExpiresAt: now.Add(time.Duration(ttl) * time.Minute),
	}

	guard := repositories.SlotGuard{
		ClinicID:         clinic.ID,
		Slot:             slot,
		BlockingStatuses: s.blocking,
	}
	if err := s.holds.Place(ctx, hold, guard); err != nil {
		if apperrors.HasCode(err, apperrors.CodeHoldContention) {
			s.metrics.RecordContention(ctx, "hold")
		}
		return nil, err
	}

	s.logger.Debug().
		Str("hold_id", hold.ID).
		Str("clinic_id", hold.ClinicID).
		Time("expires_at", hold.ExpiresAt).
		Msg("hold placed")
	return hold, nil
}

// Get returns a live hold
func (s *HoldService) Get(ctx context.Context, holdID string) (*entities.ReservationHold, error) {
	hold, err := s.holds.GetByID(ctx, holdID)
	if err != nil {
		return nil, err
	}
	if !s.IsLive(hold) {
		_ = s.holds.Delete(ctx, holdID)
		return nil, apperrors.NewNotFoundError("hold not found")
	}
	return hold, nil
}

// Release drops a hold. Releasing an unknown or expired hold succeeds.
func (s *HoldService) Release(ctx context.Context, holdID string) error {
	if strings.TrimSpace(holdID) == "" {
		return apperrors.NewMissingFieldError("holdId")
	}
	return s.holds.Delete(ctx, holdID)
}

// IsLive reports whether hold has not yet expired
func (s *HoldService) IsLive(hold *entities.ReservationHold) bool {
	return hold.IsLive(s.clock.Now())
}
