package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/zatekoja/clinicscheduler/internal/domain/entities"
	"github.com/zatekoja/clinicscheduler/internal/domain/providers"
)

const defaultHeartbeat = 30 * time.Second

// EventStreamHandler pushes a clinic's negotiation events to front-desk
// screens as Server-Sent Events
type EventStreamHandler struct {
	eventBus  providers.EventBus
	heartbeat time.Duration

	mu      sync.RWMutex
	clients map[string]int // clinic id -> open streams
}

// NewEventStreamHandler creates a stream handler. A non-positive heartbeat
// uses the default of 30s.
func NewEventStreamHandler(eventBus providers.EventBus, heartbeat time.Duration) *EventStreamHandler {
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeat
	}
	return &EventStreamHandler{
		eventBus:  eventBus,
		heartbeat: heartbeat,
		clients:   make(map[string]int),
	}
}

// StreamClinicEvents handles GET /api/clinics/{id}/events
func (h *EventStreamHandler) StreamClinicEvents(w http.ResponseWriter, r *http.Request) {
	clinicID := r.PathValue("id")
	if clinicID == "" {
		respondWithError(w, http.StatusBadRequest, "clinic ID is required")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		respondWithError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	logger := log.Ctx(r.Context())
	channel := providers.GetClinicChannel(clinicID)
	events, err := h.eventBus.Subscribe(r.Context(), channel)
	if err != nil {
		logger.Error().Err(err).Str("channel", channel).Msg("failed to subscribe")
		respondWithError(w, http.StatusServiceUnavailable, "event stream unavailable")
		return
	}

	// The server write timeout would otherwise cut the stream
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	h.register(clinicID)
	defer h.unregister(clinicID)

	writeEvent(w, "connected", map[string]interface{}{
		"clinic_id": clinicID,
		"timestamp": time.Now().UTC(),
	})
	flusher.Flush()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			logger.Debug().Str("clinic_id", clinicID).Msg("event stream closed by client")
			return
		case <-ticker.C:
			writeEvent(w, "heartbeat", map[string]interface{}{"timestamp": time.Now().UTC()})
			flusher.Flush()
		case event, ok := <-events:
			if !ok {
				return
			}
			if event == nil {
				continue
			}
			writeEventWithID(w, event)
			flusher.Flush()
		}
	}
}

// ClientCount returns the number of open streams across all clinics
func (h *EventStreamHandler) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	count := 0
	for _, n := range h.clients {
		count += n
	}
	return count
}

func (h *EventStreamHandler) register(clinicID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[clinicID]++
}

func (h *EventStreamHandler) unregister(clinicID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[clinicID]--
	if h.clients[clinicID] <= 0 {
		delete(h.clients, clinicID)
	}
}

func writeEventWithID(w http.ResponseWriter, event *entities.NotificationEvent) {
	fmt.Fprintf(w, "id: %s\n", event.ID)
	writeEvent(w, string(event.Type), event)
}

func writeEvent(w http.ResponseWriter, name string, data interface{}) {
	payload, err := json.Marshal(data)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\n", name)
	fmt.Fprintf(w, "data: %s\n\n", payload)
}
