package dto

import (
	"strings"
	"time"

	"github.com/spec-kit/queue-booking-service/internal/domain"
	apperrors "github.com/spec-kit/queue-booking-service/pkg/util/errorutil"
)

const (
	minNameLength  = 2
	minPhoneLength = 10
)

// CreateBookingRequest payload for anonymous booking registration.
type CreateBookingRequest struct {
	Name          string               `json:"name"`
	Phone         string               `json:"phone"`
	Email         *string              `json:"email"`
	DateSelection domain.DateSelection `json:"date_selection"`
	Notes         *string              `json:"notes"`
}

// Validate checks field lengths after trimming.
func (r CreateBookingRequest) Validate() error {
	details := map[string]any{}
	if len([]rune(strings.TrimSpace(r.Name))) < minNameLength {
		details["name"] = "must be at least 2 characters"
	}
	if len(strings.TrimSpace(r.Phone)) < minPhoneLength {
		details["phone"] = "must be at least 10 characters"
	}
	if len(details) > 0 {
		return apperrors.NewValidationError("invalid booking", details)
	}
	return nil
}

// UpdateBookingWindowRequest sets or clears the booking window.
type UpdateBookingWindowRequest struct {
	WindowID *string `json:"window_id"`
}

// UpdateBookingNotesRequest replaces booking notes.
type UpdateBookingNotesRequest struct {
	Notes *string `json:"notes"`
}

// BookingResponse represents a booking.
type BookingResponse struct {
	ID            string               `json:"id"`
	DisplayName   string               `json:"display_name"`
	Name          string               `json:"name"`
	Phone         string               `json:"phone"`
	Email         *string              `json:"email"`
	BookingDate   time.Time            `json:"booking_date"`
	DateSelection domain.DateSelection `json:"date_selection"`
	QueueNumber   int                  `json:"queue_number"`
	Status        domain.BookingStatus `json:"status"`
	WindowID      *string              `json:"window_id"`
	WindowNumber  *int                 `json:"window_number"`
	StartedAt     *time.Time           `json:"started_at"`
	EndedAt       *time.Time           `json:"ended_at"`
	TimeTaken     *string              `json:"time_taken"`
	HandledBy     *string              `json:"handled_by"`
	HandledByName *string              `json:"handled_by_name"`
	Notes         *string              `json:"notes"`
	CreatedAt     time.Time            `json:"created_at"`
}

// NewBookingResponse maps a booking.
func NewBookingResponse(b *domain.Booking) BookingResponse {
	return BookingResponse{
		ID:            b.ID,
		DisplayName:   b.DisplayName(),
		Name:          b.Name,
		Phone:         b.Phone,
		Email:         b.Email,
		BookingDate:   b.BookingDate,
		DateSelection: b.DateSelection,
		QueueNumber:   b.QueueNumber,
		Status:        b.Status,
		WindowID:      b.WindowID,
		WindowNumber:  b.WindowNumber,
		StartedAt:     b.StartedAt,
		EndedAt:       b.EndedAt,
		TimeTaken:     b.TimeTaken,
		HandledBy:     b.HandledByID,
		HandledByName: b.HandledByName,
		Notes:         b.Notes,
		CreatedAt:     b.CreatedAt,
	}
}

// NewBookingList maps a slice of bookings.
func NewBookingList(bookings []domain.Booking) []BookingResponse {
	items := make([]BookingResponse, 0, len(bookings))
	for i := range bookings {
		items = append(items, NewBookingResponse(&bookings[i]))
	}
	return items
}
