package outbox

import (
	"encoding/json"
	"time"
)

// Topics double as event types: one topic per event, versioned.
const (
	TopicAppointmentBooked    = "booking.appointment.booked.v1"
	TopicAppointmentCancelled = "booking.appointment.cancelled.v1"
)

const aggregateAppointment = "appointment"

// Event is the envelope written to the outbox table.
type Event struct {
	EventID       string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// AppointmentPayload is the JSON body of appointment events.
type AppointmentPayload struct {
	AppointmentID string     `json:"appointment_id"`
	ProviderID    string     `json:"provider_id"`
	RequesterID   string     `json:"requester_id"`
	ScheduledAt   time.Time  `json:"scheduled_at"`
	CancelledAt   *time.Time `json:"cancelled_at,omitempty"`
	OccurredAt    time.Time  `json:"occurred_at"`
}

func NewAppointmentEvent(eventID, eventType string, p AppointmentPayload) (Event, error) {
	body, err := json.Marshal(p)
	if err != nil {
		return Event{}, err
	}
	return Event{
		EventID:       eventID,
		AggregateType: aggregateAppointment,
		AggregateID:   p.AppointmentID,
		EventType:     eventType,
		Payload:       body,
	}, nil
}

func DecodeAppointmentPayload(raw []byte) (AppointmentPayload, error) {
	var p AppointmentPayload
	err := json.Unmarshal(raw, &p)
	return p, err
}
