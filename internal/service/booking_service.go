package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/spec-kit/queue-booking-service/internal/domain"
	"github.com/spec-kit/queue-booking-service/internal/events"
	"github.com/spec-kit/queue-booking-service/internal/repository"
	apperrors "github.com/spec-kit/queue-booking-service/pkg/util/errorutil"
)

const defaultOpeningHour = 9

// BookingService registers visit requests and serves booking queries.
type BookingService struct {
	bookings    repository.BookingRepository
	windows     repository.WindowRepository
	tracking    *TrackingService
	publisher   publisher
	logger      *zap.Logger
	now         func() time.Time
	openingHour int
}

// BookingDependencies bundles collaborators for the booking service.
type BookingDependencies struct {
	BookingRepo repository.BookingRepository
	WindowRepo  repository.WindowRepository
	Tracking    *TrackingService
	Dispatcher  events.Dispatcher
	Logger      *zap.Logger
	Now         func() time.Time
	// OpeningHour is the local hour assigned to bookings made for tomorrow.
	OpeningHour int
}

// CreateBookingInput describes a visit request. Name and phone are expected to be validated.
type CreateBookingInput struct {
	Name          string
	Phone         string
	Email         *string
	DateSelection domain.DateSelection
	Notes         *string
}

// BookingListFilter narrows booking listings.
type BookingListFilter struct {
	Day    *domain.DayBucket
	Status *domain.BookingStatus
}

// NewBookingService constructs the service.
func NewBookingService(deps BookingDependencies) *BookingService {
	logger := loggerOrNop(deps.Logger)
	now := nowFunc(deps.Now)
	openingHour := deps.OpeningHour
	if openingHour < 0 || openingHour > 23 {
		openingHour = defaultOpeningHour
	}
	return &BookingService{
		bookings:    deps.BookingRepo,
		windows:     deps.WindowRepo,
		tracking:    deps.Tracking,
		publisher:   publisher{dispatcher: deps.Dispatcher, logger: logger, now: now},
		logger:      logger,
		now:         now,
		openingHour: openingHour,
	}
}

// CreateBooking stores a booking with the next queue number of its day.
func (s *BookingService) CreateBooking(ctx context.Context, input CreateBookingInput) (booking *domain.Booking, err error) {
	ctx, span := startSpan(ctx, "BookingService.CreateBooking",
		attribute.String("booking.date_selection", string(input.DateSelection)))
	defer func() { endSpan(span, err) }()

	selection, bookingDate := s.resolveBookingDate(input.DateSelection)
	day := s.tracking.DayOf(bookingDate)

	booking = &domain.Booking{
		Name:          strings.TrimSpace(input.Name),
		Phone:         strings.TrimSpace(input.Phone),
		Email:         trimmedOrNil(input.Email),
		BookingDate:   bookingDate,
		DateSelection: selection,
		Status:        domain.BookingStatusWaiting,
		Notes:         trimmedOrNil(input.Notes),
	}

	if err = s.bookings.CreateNumbered(ctx, booking, day); err != nil {
		if errors.Is(err, repository.ErrDuplicatePhone) {
			return nil, apperrors.NewDuplicate("a booking already exists for this phone number on the selected day",
				map[string]any{"phone": booking.Phone, "date": day.String()})
		}
		return nil, apperrors.NewInternalError(err)
	}
	span.SetAttributes(attribute.Int("queue.number", booking.QueueNumber))

	s.tracking.refreshAfterMutation(ctx, day)

	s.logger.Info("booking created",
		zap.String("booking_id", booking.ID),
		zap.Int("queue_number", booking.QueueNumber),
		zap.String("day", day.String()))
	s.publisher.publish(ctx, events.Event{
		Type:      events.EventBookingCreated,
		BookingID: booking.ID,
		Payload: events.BookingPayload{
			QueueNumber: booking.QueueNumber,
			Status:      booking.Status,
		},
	})
	return booking, nil
}

// resolveBookingDate maps the client's selection to the stored booking instant.
func (s *BookingService) resolveBookingDate(selection domain.DateSelection) (domain.DateSelection, time.Time) {
	now := s.now().In(s.tracking.Location())
	if strings.EqualFold(string(selection), string(domain.DateSelectionTomorrow)) {
		next := time.Date(now.Year(), now.Month(), now.Day()+1, s.openingHour, 0, 0, 0, now.Location())
		return domain.DateSelectionTomorrow, next
	}
	return domain.DateSelectionToday, now
}

// ListBookings returns bookings ordered by queue number.
func (s *BookingService) ListBookings(ctx context.Context, filter BookingListFilter) ([]domain.Booking, error) {
	bookings, err := s.bookings.List(ctx, repository.BookingFilter{Day: filter.Day, Status: filter.Status})
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	return bookings, nil
}

// GetBooking fetches a booking by id.
func (s *BookingService) GetBooking(ctx context.Context, id string) (*domain.Booking, error) {
	booking, err := s.bookings.GetByID(ctx, id)
	if err != nil {
		return nil, bookingLookupError(err, id)
	}
	return booking, nil
}

// UpdateBookingWindow sets or clears the window of a booking.
func (s *BookingService) UpdateBookingWindow(ctx context.Context, id string, windowID *string) (*domain.Booking, error) {
	if windowID != nil {
		if _, err := s.windows.GetByID(ctx, *windowID); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, apperrors.NewNotFound("window", map[string]any{"id": *windowID})
			}
			return nil, apperrors.NewInternalError(err)
		}
	}

	if err := s.bookings.SetWindow(ctx, id, windowID); err != nil {
		return nil, bookingLookupError(err, id)
	}
	return s.GetBooking(ctx, id)
}

// UpdateBookingNotes replaces the free-text notes of a booking.
func (s *BookingService) UpdateBookingNotes(ctx context.Context, id string, notes *string) (*domain.Booking, error) {
	if err := s.bookings.SetNotes(ctx, id, trimmedOrNil(notes)); err != nil {
		return nil, bookingLookupError(err, id)
	}
	return s.GetBooking(ctx, id)
}

func bookingLookupError(err error, id string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return apperrors.NewNotFound("booking", map[string]any{"id": id})
	}
	return apperrors.NewInternalError(err)
}

func trimmedOrNil(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
