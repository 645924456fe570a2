package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"

	"github.com/zatekoja/clinicscheduler/internal/domain/entities"
	"github.com/zatekoja/clinicscheduler/internal/domain/providers"
	"github.com/zatekoja/clinicscheduler/pkg/retry"
)

// NotificationService turns appointment events into delivered messages and
// keeps one log row per event and recipient.
type NotificationService struct {
	db     *sqlx.DB
	sender providers.NotificationSender
	clock  providers.Clock
	retry  retry.Config
	logger zerolog.Logger
}

// NewNotificationService creates a new notification service
func NewNotificationService(db *sqlx.DB, sender providers.NotificationSender, clock providers.Clock, logger zerolog.Logger) *NotificationService {
	if clock == nil {
		clock = providers.SystemClock
	}
	return &NotificationService{
		db:     db,
		sender: sender,
		clock:  clock,
		retry:  retry.DeliveryConfig(),
		logger: logger.With().Str("component", "notification_service").Logger(),
	}
}

// NotificationContext contains all data needed for notification rendering
type NotificationContext struct {
	PatientName     string
	ClinicName      string
	ScheduledDate   string
	ScheduledTime   string
	DurationMinutes int
	Actor           string
	Message         string
}

var messageTemplates = map[entities.NotificationType]map[entities.Actor]string{
	entities.NotificationAppointmentRequest: {
		entities.ActorClinic: "New appointment request from {{patient_name}} for {{scheduled_date}} at {{scheduled_time}} ({{duration}} min).{{#if message}} Reason: {{message}}{{/if}}",
	},
	entities.NotificationConfirmation: {
		entities.ActorPatient: "Hello {{patient_name}}, your appointment at {{clinic_name}} on {{scheduled_date}} at {{scheduled_time}} is confirmed.{{#if message}} {{message}}{{/if}}",
		entities.ActorClinic:  "{{patient_name}} accepted your offer. The appointment on {{scheduled_date}} at {{scheduled_time}} is confirmed.",
	},
	entities.NotificationCounterOffer: {
		entities.ActorPatient: "Hello {{patient_name}}, {{clinic_name}} proposed {{scheduled_date}} at {{scheduled_time}} ({{duration}} min) instead.{{#if message}} {{message}}{{/if}} Reply to accept, decline or suggest another time.",
		entities.ActorClinic:  "{{patient_name}} suggested {{scheduled_date}} at {{scheduled_time}} ({{duration}} min) instead.{{#if message}} {{message}}{{/if}}",
	},
	entities.NotificationRejection: {
		entities.ActorPatient: "Hello {{patient_name}}, {{clinic_name}} could not accept your request for {{scheduled_date}} at {{scheduled_time}}.{{#if message}} Reason: {{message}}{{/if}}",
	},
	entities.NotificationCancellation: {
		entities.ActorPatient: "Hello {{patient_name}}, your appointment at {{clinic_name}} on {{scheduled_date}} at {{scheduled_time}} was cancelled by the {{actor}}.{{#if message}} Reason: {{message}}{{/if}}",
		entities.ActorClinic:  "The appointment with {{patient_name}} on {{scheduled_date}} at {{scheduled_time}} was cancelled by the {{actor}}.{{#if message}} Reason: {{message}}{{/if}}",
	},
}

// Deliver sends event to each of its recipients. A recipient already logged
// for this event is skipped, so redelivered events do not message twice.
func (n *NotificationService) Deliver(ctx context.Context, event *entities.NotificationEvent) error {
	if event == nil {
		return nil
	}

	var errs []error
	for _, role := range event.Recipients {
		if err := n.deliverTo(ctx, event, role); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", role, err))
		}
	}
	return errors.Join(errs...)
}

func (n *NotificationService) deliverTo(ctx context.Context, event *entities.NotificationEvent, role entities.Actor) error {
	logger := n.logger.With().
		Str("event_id", event.ID).
		Str("appointment_id", event.AppointmentID).
		Str("recipient_role", string(role)).
		Logger()

	template, ok := messageTemplates[event.Type][role]
	if !ok {
		logger.Debug().Str("event_type", string(event.Type)).Msg("no template for recipient")
		return nil
	}

	party := event.Patient
	if role == entities.ActorClinic {
		party = event.Clinic
	}

	now := n.clock.Now()
	notification := &entities.AppointmentNotification{
		ID:               uuid.New().String(),
		EventID:          event.ID,
		AppointmentID:    event.AppointmentID,
		NotificationType: event.Type,
		Channel:          n.sender.Channel(),
		RecipientRole:    role,
		Recipient:        party.Phone,
		Body:             n.renderTemplate(template, buildContext(event)),
		Status:           entities.NotificationStatusPending,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if party.Phone == "" {
		notification.Status = entities.NotificationStatusSkipped
	}

	created, err := n.createNotification(ctx, notification)
	if err != nil {
		return fmt.Errorf("failed to create notification record: %w", err)
	}
	if !created {
		logger.Debug().Msg("notification already recorded, skipping")
		return nil
	}
	if notification.Status == entities.NotificationStatusSkipped {
		logger.Info().Msg("recipient has no phone number, notification skipped")
		return nil
	}

	var messageID string
	sendErr := retry.DoWithLog(ctx, n.retry, string(n.sender.Channel()), func() error {
		id, err := n.sender.Send(ctx, party.Phone, notification.Body)
		if err != nil {
			var temp interface{ Temporary() bool }
			if errors.As(err, &temp) && !temp.Temporary() {
				return retry.Permanent(err)
			}
			return err
		}
		messageID = id
		return nil
	}, func(attempt int, err error, next time.Duration) {
		logger.Warn().Err(err).Int("attempt", attempt).Dur("retry_in", next).Msg("notification send failed")
	})

	now = n.clock.Now()
	notification.UpdatedAt = now
	if sendErr != nil {
		errMsg := sendErr.Error()
		notification.Status = entities.NotificationStatusFailed
		notification.ErrorMessage = &errMsg
	} else {
		notification.Status = entities.NotificationStatusSent
		notification.MessageID = &messageID
		notification.SentAt = &now
	}

	if err := n.updateNotification(ctx, notification); err != nil {
		return fmt.Errorf("failed to update notification: %w", err)
	}

	if sendErr != nil {
		logger.Error().Err(sendErr).Msg("notification delivery failed")
	} else {
		logger.Info().Str("message_id", messageID).Msg("notification sent")
	}
	return sendErr
}

func buildContext(event *entities.NotificationEvent) *NotificationContext {
	c := &NotificationContext{
		PatientName:     event.Patient.Name,
		ClinicName:      event.Clinic.Name,
		ScheduledDate:   event.Date,
		ScheduledTime:   event.Time,
		DurationMinutes: event.DurationMinutes,
		Actor:           string(event.Actor),
		Message:         strings.TrimSpace(event.Message),
	}
	if c.PatientName == "" {
		c.PatientName = "there"
	}
	if d, err := time.Parse(entities.DateLayout, event.Date); err == nil {
		c.ScheduledDate = d.Format("Monday, January 2, 2006")
	}
	if t, err := time.Parse(entities.ClockLayout, event.Time); err == nil {
		c.ScheduledTime = t.Format("3:04 PM")
	}
	return c
}

// renderTemplate replaces placeholders in template
func (n *NotificationService) renderTemplate(template string, ctx *NotificationContext) string {
	replacements := map[string]string{
		"{{patient_name}}":   ctx.PatientName,
		"{{clinic_name}}":    ctx.ClinicName,
		"{{scheduled_date}}": ctx.ScheduledDate,
		"{{scheduled_time}}": ctx.ScheduledTime,
		"{{duration}}":       strconv.Itoa(ctx.DurationMinutes),
		"{{actor}}":          ctx.Actor,
		"{{message}}":        ctx.Message,
	}

	// Handle message section conditionally
	if ctx.Message != "" {
		template = strings.ReplaceAll(template, "{{#if message}}", "")
		template = strings.ReplaceAll(template, "{{/if}}", "")
	} else {
		for {
			start := strings.Index(template, "{{#if message}}")
			if start < 0 {
				break
			}
			end := strings.Index(template[start:], "{{/if}}")
			if end < 0 {
				break
			}
			template = template[:start] + template[start+end+len("{{/if}}"):]
		}
	}

	result := template
	for placeholder, value := range replacements {
		result = strings.ReplaceAll(result, placeholder, value)
	}

	return result
}

// ListForAppointment returns the delivery log of one appointment, oldest first
func (n *NotificationService) ListForAppointment(ctx context.Context, appointmentID string) ([]entities.AppointmentNotification, error) {
	var out []entities.AppointmentNotification
	query := `SELECT id, event_id, appointment_id, notification_type, channel, recipient_role, recipient, body,
		status, message_id, error_message, sent_at, created_at, updated_at
		FROM appointment_notifications WHERE appointment_id = $1 ORDER BY created_at, recipient_role`
	if err := n.db.SelectContext(ctx, &out, query, appointmentID); err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	return out, nil
}

// Database operations

// createNotification inserts the row unless one exists for the same event
// and recipient. It reports whether a row was written.
func (n *NotificationService) createNotification(ctx context.Context, notification *entities.AppointmentNotification) (bool, error) {
	query := `
		INSERT INTO appointment_notifications
		(id, event_id, appointment_id, notification_type, channel, recipient_role, recipient, body, status, created_at, updated_at)
		VALUES (:id, :event_id, :appointment_id, :notification_type, :channel, :recipient_role, :recipient, :body, :status, :created_at, :updated_at)
		ON CONFLICT (event_id, recipient_role) DO NOTHING
	`
	res, err := n.db.NamedExecContext(ctx, query, notification)
	if err != nil {
		return false, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

func (n *NotificationService) updateNotification(ctx context.Context, notification *entities.AppointmentNotification) error {
	query := `
		UPDATE appointment_notifications
		SET status = :status, message_id = :message_id, error_message = :error_message,
		    sent_at = :sent_at, updated_at = :updated_at
		WHERE id = :id
	`
	_, err := n.db.NamedExecContext(ctx, query, notification)
	return err
}
