package events

import (
	"time"

	"github.com/spec-kit/queue-booking-service/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventBookingCreated   EventType = "booking.created"
	EventBookingCalled    EventType = "booking.called"
	EventBookingStarted   EventType = "booking.started"
	EventBookingCompleted EventType = "booking.completed"
	EventBookingCancelled EventType = "booking.cancelled"
	EventBookingReset     EventType = "booking.reset"
	EventServingChanged   EventType = "queue.serving_changed"
	EventWindowAssigned   EventType = "window.assigned"
)

// QueueEventTypes lists every event that changes what the live status shows.
var QueueEventTypes = []EventType{
	EventBookingCreated,
	EventBookingCalled,
	EventBookingStarted,
	EventBookingCompleted,
	EventBookingCancelled,
	EventBookingReset,
	EventServingChanged,
}

// Actor identifies the staff member behind an event; nil StaffID means an anonymous client.
type Actor struct {
	StaffID *string `json:"staff_id,omitempty"`
}

// Event represents a domain event emitted by services.
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	BookingID string    `json:"booking_id,omitempty"`
	Actor     Actor     `json:"actor"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

// BookingPayload describes the booking after the change.
type BookingPayload struct {
	QueueNumber int                  `json:"queue_number"`
	Status      domain.BookingStatus `json:"status"`
	OldStatus   domain.BookingStatus `json:"old_status,omitempty"`
	WindowID    *string              `json:"window_id,omitempty"`
	TimeTaken   *string              `json:"time_taken,omitempty"`
}

// ServingChangedPayload payload.
type ServingChangedPayload struct {
	Day            string  `json:"day"`
	CurrentServing int     `json:"current_serving"`
	WindowID       *string `json:"window_id,omitempty"`
	Recall         bool    `json:"recall"`
}

// WindowAssignedPayload payload.
type WindowAssignedPayload struct {
	AssignmentID string `json:"assignment_id"`
	UserID       string `json:"user_id"`
	WindowID     string `json:"window_id"`
}
