package service

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/spec-kit/queue-booking-service/internal/domain"
	"github.com/spec-kit/queue-booking-service/internal/events"
	"github.com/spec-kit/queue-booking-service/internal/repository"
	apperrors "github.com/spec-kit/queue-booking-service/pkg/util/errorutil"
)

// QueueService drives bookings through their lifecycle and dispatches the next waiting ticket.
type QueueService struct {
	bookings  repository.BookingRepository
	windows   repository.WindowRepository
	tracking  *TrackingService
	publisher publisher
	logger    *zap.Logger
	now       func() time.Time
}

// QueueDependencies bundles collaborators for the queue engine.
type QueueDependencies struct {
	BookingRepo repository.BookingRepository
	WindowRepo  repository.WindowRepository
	Tracking    *TrackingService
	Dispatcher  events.Dispatcher
	Logger      *zap.Logger
	Now         func() time.Time
}

// NewQueueService constructs the service.
func NewQueueService(deps QueueDependencies) *QueueService {
	logger := loggerOrNop(deps.Logger)
	now := nowFunc(deps.Now)
	return &QueueService{
		bookings:  deps.BookingRepo,
		windows:   deps.WindowRepo,
		tracking:  deps.Tracking,
		publisher: publisher{dispatcher: deps.Dispatcher, logger: logger, now: now},
		logger:    logger,
		now:       now,
	}
}

// NextWaiting returns today's next waiting booking, or nil when nobody is waiting. With a staff id,
// the booking is stamped with the staff member's window and becomes the current serving number.
func (s *QueueService) NextWaiting(ctx context.Context, staffID *string) (booking *domain.Booking, err error) {
	ctx, span := startSpan(ctx, "QueueService.NextWaiting")
	defer func() { endSpan(span, err) }()

	var windowID *string
	if staffID != nil {
		window, err := s.currentWindow(ctx, *staffID)
		if err != nil {
			return nil, err
		}
		if window != nil {
			windowID = &window.ID
		}
	}

	day := s.tracking.Today()
	booking, err = s.bookings.ClaimNextWaiting(ctx, day, windowID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	span.SetAttributes(attribute.Int("queue.number", booking.QueueNumber))

	if staffID == nil {
		return booking, nil
	}

	if _, err = s.tracking.UpdateCurrentServing(ctx, booking.QueueNumber, windowID, false, staffID); err != nil {
		return nil, err
	}

	s.logger.Info("booking called",
		zap.String("booking_id", booking.ID),
		zap.Int("queue_number", booking.QueueNumber),
		zap.Stringp("window_id", windowID),
		zap.Stringp("staff_id", staffID))
	s.publisher.publish(ctx, events.Event{
		Type:      events.EventBookingCalled,
		BookingID: booking.ID,
		Actor:     staffActor(staffID),
		Payload: events.BookingPayload{
			QueueNumber: booking.QueueNumber,
			Status:      booking.Status,
			WindowID:    windowID,
		},
	})
	return booking, nil
}

// StartProcessing moves a waiting booking to in_progress under staffID.
func (s *QueueService) StartProcessing(ctx context.Context, id, staffID string) (*domain.Booking, error) {
	return s.transition(ctx, id, actionStart, &staffID, func(ctx context.Context, b *domain.Booking) error {
		window, err := s.currentWindow(ctx, staffID)
		if err != nil {
			return err
		}
		if window != nil {
			b.WindowID = &window.ID
		}
		startedAt := s.now()
		b.Status = domain.BookingStatusInProgress
		b.StartedAt = &startedAt
		b.HandledByID = &staffID
		return nil
	})
}

// CompleteBooking finishes an in_progress booking and records the handling time.
func (s *QueueService) CompleteBooking(ctx context.Context, id string, staffID *string) (*domain.Booking, error) {
	return s.transition(ctx, id, actionComplete, staffID, func(_ context.Context, b *domain.Booking) error {
		endedAt := s.now()
		b.Status = domain.BookingStatusCompleted
		b.EndedAt = &endedAt
		if b.StartedAt != nil {
			taken := domain.FormatDuration(domain.ElapsedSeconds(*b.StartedAt, endedAt))
			b.TimeTaken = &taken
		}
		return nil
	})
}

// CancelBooking cancels any booking that has not been completed.
func (s *QueueService) CancelBooking(ctx context.Context, id, staffID string) (*domain.Booking, error) {
	return s.transition(ctx, id, actionCancel, &staffID, func(_ context.Context, b *domain.Booking) error {
		b.Status = domain.BookingStatusCancelled
		b.HandledByID = &staffID
		return nil
	})
}

// ResetBooking returns a booking to waiting and clears its handling data.
func (s *QueueService) ResetBooking(ctx context.Context, id string, staffID *string) (*domain.Booking, error) {
	return s.transition(ctx, id, actionReset, staffID, func(_ context.Context, b *domain.Booking) error {
		b.Status = domain.BookingStatusWaiting
		b.StartedAt = nil
		b.EndedAt = nil
		b.HandledByID = nil
		b.TimeTaken = nil
		return nil
	})
}

var transitionEvents = map[bookingAction]events.EventType{
	actionStart:    events.EventBookingStarted,
	actionComplete: events.EventBookingCompleted,
	actionCancel:   events.EventBookingCancelled,
	actionReset:    events.EventBookingReset,
}

// transition loads the booking, checks action against its status, applies mutate and persists it
// guarded by the status it was loaded with.
func (s *QueueService) transition(ctx context.Context, id string, action bookingAction, staffID *string, mutate func(context.Context, *domain.Booking) error) (booking *domain.Booking, err error) {
	ctx, span := startSpan(ctx, "QueueService."+string(action),
		attribute.String("booking.id", id))
	defer func() { endSpan(span, err) }()

	booking, err = s.bookings.GetByID(ctx, id)
	if err != nil {
		return nil, bookingLookupError(err, id)
	}

	from := booking.Status
	if !canApply(action, from) {
		return nil, apperrors.NewInvalidState("booking cannot be "+actionVerb(action)+" from status "+string(from),
			map[string]any{"id": id, "status": from})
	}

	loadedWindow := booking.WindowID
	if err = mutate(ctx, booking); err != nil {
		return nil, err
	}

	setWindow := !sameID(loadedWindow, booking.WindowID)
	if err = s.bookings.Transition(ctx, booking, from, setWindow); err != nil {
		if errors.Is(err, repository.ErrStatusChanged) {
			return nil, apperrors.NewInvalidState("booking was modified concurrently", map[string]any{"id": id})
		}
		return nil, apperrors.NewInternalError(err)
	}

	s.tracking.refreshAfterMutation(ctx, s.tracking.DayOf(booking.BookingDate))

	updated, err := s.bookings.GetByID(ctx, id)
	if err != nil {
		return nil, bookingLookupError(err, id)
	}

	s.logger.Info("booking status changed",
		zap.String("booking_id", id),
		zap.String("action", string(action)),
		zap.String("old_status", string(from)),
		zap.String("new_status", string(updated.Status)),
		zap.Stringp("staff_id", staffID))
	s.publisher.publish(ctx, events.Event{
		Type:      transitionEvents[action],
		BookingID: id,
		Actor:     staffActor(staffID),
		Payload: events.BookingPayload{
			QueueNumber: updated.QueueNumber,
			Status:      updated.Status,
			OldStatus:   from,
			WindowID:    updated.WindowID,
			TimeTaken:   updated.TimeTaken,
		},
	})
	return updated, nil
}

func sameID(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func actionVerb(action bookingAction) string {
	switch action {
	case actionStart:
		return "started"
	case actionComplete:
		return "completed"
	case actionCancel:
		return "cancelled"
	default:
		return "reset"
	}
}

// currentWindow returns the window staffID is assigned to, or nil.
func (s *QueueService) currentWindow(ctx context.Context, staffID string) (*domain.Window, error) {
	window, err := s.windows.CurrentWindowForUser(ctx, staffID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	return window, nil
}
