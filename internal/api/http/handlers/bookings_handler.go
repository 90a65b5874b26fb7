package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/queue-booking-service/internal/api/dto"
	"github.com/spec-kit/queue-booking-service/internal/domain"
	"github.com/spec-kit/queue-booking-service/internal/service"
	apperrors "github.com/spec-kit/queue-booking-service/pkg/util/errorutil"
)

// BookingsHandler exposes booking registration and the staff queue workflow.
type BookingsHandler struct {
	bookings *service.BookingService
	queue    *service.QueueService
	tracking *service.TrackingService
}

// NewBookingsHandler constructs handler.
func NewBookingsHandler(bookings *service.BookingService, queue *service.QueueService, tracking *service.TrackingService) *BookingsHandler {
	return &BookingsHandler{bookings: bookings, queue: queue, tracking: tracking}
}

// Create POST /api/bookings.
func (h *BookingsHandler) Create(c *fiber.Ctx) error {
	var req dto.CreateBookingRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	if err := req.Validate(); err != nil {
		return err
	}

	booking, err := h.bookings.CreateBooking(c.UserContext(), service.CreateBookingInput{
		Name:          req.Name,
		Phone:         req.Phone,
		Email:         req.Email,
		DateSelection: req.DateSelection,
		Notes:         req.Notes,
	})
	if err != nil {
		return err
	}
	return created(c, dto.NewBookingResponse(booking))
}

// List GET /api/bookings?date=&status=.
func (h *BookingsHandler) List(c *fiber.Ctx) error {
	day, err := queryDay(c, "date", h.tracking.Location())
	if err != nil {
		return err
	}
	filter := service.BookingListFilter{Day: day}
	if raw := strings.TrimSpace(c.Query("status")); raw != "" {
		status := domain.BookingStatus(strings.ToLower(raw))
		if !status.Valid() {
			return apperrors.NewValidationError("invalid status", map[string]any{"status": raw})
		}
		filter.Status = &status
	}

	bookings, err := h.bookings.ListBookings(c.UserContext(), filter)
	if err != nil {
		return err
	}
	return data(c, dto.NewBookingList(bookings))
}

// Dashboard GET /api/bookings/dashboard?date=.
func (h *BookingsHandler) Dashboard(c *fiber.Ctx) error {
	day, err := queryDay(c, "date", h.tracking.Location())
	if err != nil {
		return err
	}
	stats, err := h.tracking.GetDashboardStatistics(c.UserContext(), day)
	if err != nil {
		return err
	}
	return data(c, dto.NewDashboardResponse(stats))
}

// NextWaiting POST /api/bookings/next-waiting calls the next ticket to the caller's window.
func (h *BookingsHandler) NextWaiting(c *fiber.Ctx) error {
	caller, err := callerFrom(c)
	if err != nil {
		return err
	}
	booking, err := h.queue.NextWaiting(c.UserContext(), &caller.UserID)
	if err != nil {
		return err
	}
	if booking == nil {
		return apperrors.NewNotFound("waiting booking", nil)
	}
	return data(c, dto.NewBookingResponse(booking))
}

// Get GET /api/bookings/:id.
func (h *BookingsHandler) Get(c *fiber.Ctx) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	booking, err := h.bookings.GetBooking(c.UserContext(), id)
	if err != nil {
		return err
	}
	return data(c, dto.NewBookingResponse(booking))
}

// Start POST /api/bookings/:id/start.
func (h *BookingsHandler) Start(c *fiber.Ctx) error {
	return h.transition(c, func(caller *domain.Identity, id string) (*domain.Booking, error) {
		return h.queue.StartProcessing(c.UserContext(), id, caller.UserID)
	})
}

// Complete POST /api/bookings/:id/complete.
func (h *BookingsHandler) Complete(c *fiber.Ctx) error {
	return h.transition(c, func(caller *domain.Identity, id string) (*domain.Booking, error) {
		return h.queue.CompleteBooking(c.UserContext(), id, &caller.UserID)
	})
}

// Cancel POST /api/bookings/:id/cancel.
func (h *BookingsHandler) Cancel(c *fiber.Ctx) error {
	return h.transition(c, func(caller *domain.Identity, id string) (*domain.Booking, error) {
		return h.queue.CancelBooking(c.UserContext(), id, caller.UserID)
	})
}

// Reset POST /api/bookings/:id/reset.
func (h *BookingsHandler) Reset(c *fiber.Ctx) error {
	return h.transition(c, func(caller *domain.Identity, id string) (*domain.Booking, error) {
		return h.queue.ResetBooking(c.UserContext(), id, &caller.UserID)
	})
}

func (h *BookingsHandler) transition(c *fiber.Ctx, apply func(*domain.Identity, string) (*domain.Booking, error)) error {
	caller, err := callerFrom(c)
	if err != nil {
		return err
	}
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	booking, err := apply(caller, id)
	if err != nil {
		return err
	}
	return data(c, dto.NewBookingResponse(booking))
}

// UpdateWindow PUT /api/bookings/:id/window.
func (h *BookingsHandler) UpdateWindow(c *fiber.Ctx) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	var req dto.UpdateBookingWindowRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	var windowID *string
	if req.WindowID != nil {
		if windowID, err = optionalUUID(*req.WindowID, "window_id"); err != nil {
			return err
		}
	}
	booking, err := h.bookings.UpdateBookingWindow(c.UserContext(), id, windowID)
	if err != nil {
		return err
	}
	return data(c, dto.NewBookingResponse(booking))
}

// UpdateNotes PUT /api/bookings/:id/notes.
func (h *BookingsHandler) UpdateNotes(c *fiber.Ctx) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	var req dto.UpdateBookingNotesRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	booking, err := h.bookings.UpdateBookingNotes(c.UserContext(), id, req.Notes)
	if err != nil {
		return err
	}
	return data(c, dto.NewBookingResponse(booking))
}
