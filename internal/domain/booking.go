package domain

import (
	"fmt"
	"time"
)

// BookingStatus enumerates lifecycle states for queue bookings.
type BookingStatus string

const (
	BookingStatusWaiting    BookingStatus = "waiting"
	BookingStatusInProgress BookingStatus = "in_progress"
	BookingStatusCompleted  BookingStatus = "completed"
	BookingStatusCancelled  BookingStatus = "cancelled"
)

// Valid reports whether s is one of the known statuses.
func (s BookingStatus) Valid() bool {
	switch s {
	case BookingStatusWaiting, BookingStatusInProgress, BookingStatusCompleted, BookingStatusCancelled:
		return true
	}
	return false
}

// DateSelection is the client's choice of visit day.
type DateSelection string

const (
	DateSelectionToday    DateSelection = "today"
	DateSelectionTomorrow DateSelection = "tomorrow"
)

// Booking is a visit request holding a per-day queue number.
type Booking struct {
	ID            string
	Name          string
	Phone         string
	Email         *string
	BookingDate   time.Time
	DateSelection DateSelection
	QueueNumber   int
	Status        BookingStatus
	WindowID      *string
	WindowNumber  *int
	StartedAt     *time.Time
	EndedAt       *time.Time
	TimeTaken     *string
	HandledByID   *string
	HandledByName *string
	Notes         *string
	CreatedAt     time.Time
}

// DisplayName renders "#<n> - <name>", suffixed with the window number when known.
func (b *Booking) DisplayName() string {
	name := fmt.Sprintf("#%d - %s", b.QueueNumber, b.Name)
	if b.WindowNumber != nil {
		name = fmt.Sprintf("%s - Window %d", name, *b.WindowNumber)
	}
	return name
}
