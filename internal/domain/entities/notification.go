package entities

import "time"

// NotificationChannel represents the delivery channel
type NotificationChannel string

const (
	ChannelWhatsApp NotificationChannel = "whatsapp"
	ChannelLog      NotificationChannel = "log"
)

// NotificationType is the transition an event reports
type NotificationType string

const (
	NotificationAppointmentRequest NotificationType = "appointment_request"
	NotificationConfirmation       NotificationType = "confirmation"
	NotificationCounterOffer       NotificationType = "counter_offer"
	NotificationRejection          NotificationType = "rejection"
	NotificationCancellation       NotificationType = "cancellation"
)

// NotificationStatus represents the delivery status
type NotificationStatus string

const (
	NotificationStatusPending NotificationStatus = "pending"
	NotificationStatusSent    NotificationStatus = "sent"
	NotificationStatusFailed  NotificationStatus = "failed"
	NotificationStatusSkipped NotificationStatus = "skipped"
)

// Party is the denormalized view of a patient or clinic carried on events
type Party struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Phone string `json:"phone,omitempty"`
}

// NotificationEvent is emitted once per committed negotiation transition.
// It carries enough data to render a message without reading the appointment.
type NotificationEvent struct {
	ID              string            `json:"id"`
	Type            NotificationType  `json:"type"`
	AppointmentID   string            `json:"appointment_id"`
	Status          AppointmentStatus `json:"status"`
	Patient         Party             `json:"patient"`
	Clinic          Party             `json:"clinic"`
	Recipients      []Actor           `json:"recipients"`
	Date            string            `json:"date"`
	Time            string            `json:"time"`
	DurationMinutes int               `json:"duration"`
	Message         string            `json:"message,omitempty"`
	Actor           Actor             `json:"actor"`
	OccurredAt      time.Time         `json:"occurred_at"`
}

// AppointmentNotification is the delivery log row for one recipient of an event
type AppointmentNotification struct {
	ID               string              `json:"id" db:"id"`
	EventID          string              `json:"event_id" db:"event_id"`
	AppointmentID    string              `json:"appointment_id" db:"appointment_id"`
	NotificationType NotificationType    `json:"notification_type" db:"notification_type"`
	Channel          NotificationChannel `json:"channel" db:"channel"`
	RecipientRole    Actor               `json:"recipient_role" db:"recipient_role"`
	Recipient        string              `json:"recipient" db:"recipient"`
	Body             string              `json:"body" db:"body"`
	Status           NotificationStatus  `json:"status" db:"status"`
	MessageID        *string             `json:"message_id,omitempty" db:"message_id"`
	ErrorMessage     *string             `json:"error_message,omitempty" db:"error_message"`
	SentAt           *time.Time          `json:"sent_at,omitempty" db:"sent_at"`
	CreatedAt        time.Time           `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time           `json:"updated_at" db:"updated_at"`
}
