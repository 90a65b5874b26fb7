package service

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/spec-kit/queue-booking-service/internal/domain"
	"github.com/spec-kit/queue-booking-service/internal/events"
	"github.com/spec-kit/queue-booking-service/internal/repository"
	apperrors "github.com/spec-kit/queue-booking-service/pkg/util/errorutil"
)

// TrackingService maintains the per-day tracking record and serves the live status and dashboard.
type TrackingService struct {
	tracking  repository.TrackingRepository
	bookings  repository.BookingRepository
	publisher publisher
	logger    *zap.Logger
	loc       *time.Location
	now       func() time.Time
}

// TrackingDependencies bundles collaborators for the tracking service.
type TrackingDependencies struct {
	TrackingRepo repository.TrackingRepository
	BookingRepo  repository.BookingRepository
	Dispatcher   events.Dispatcher
	Logger       *zap.Logger
	Location     *time.Location
	Now          func() time.Time
}

// NewTrackingService constructs the service.
func NewTrackingService(deps TrackingDependencies) *TrackingService {
	logger := loggerOrNop(deps.Logger)
	now := nowFunc(deps.Now)
	return &TrackingService{
		tracking:  deps.TrackingRepo,
		bookings:  deps.BookingRepo,
		publisher: publisher{dispatcher: deps.Dispatcher, logger: logger, now: now},
		logger:    logger,
		loc:       locationOrLocal(deps.Location),
		now:       now,
	}
}

// Today returns the current day bucket in the service time zone.
func (s *TrackingService) Today() domain.DayBucket {
	return domain.NewDayBucket(s.now(), s.loc)
}

// DayOf returns the bucket containing t.
func (s *TrackingService) DayOf(t time.Time) domain.DayBucket {
	return domain.NewDayBucket(t, s.loc)
}

// Location returns the service time zone.
func (s *TrackingService) Location() *time.Location {
	return s.loc
}

// GetTodayTracking returns today's record, creating it on first use.
func (s *TrackingService) GetTodayTracking(ctx context.Context) (*domain.TrackingRecord, error) {
	record, err := s.tracking.GetOrCreate(ctx, s.Today())
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	return record, nil
}

// RefreshStatistics recomputes the counters of day from its bookings.
func (s *TrackingService) RefreshStatistics(ctx context.Context, day domain.DayBucket) (*domain.TrackingRecord, error) {
	record, err := s.tracking.RefreshCounts(ctx, day)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	return record, nil
}

// refreshAfterMutation runs after a booking change is committed; a failure is logged because the
// counters are recomputed wholesale on the next mutation or status read.
func (s *TrackingService) refreshAfterMutation(ctx context.Context, day domain.DayBucket) {
	if _, err := s.tracking.RefreshCounts(ctx, day); err != nil {
		s.logger.Error("refresh tracking statistics failed", zap.String("day", day.String()), zap.Error(err))
	}
}

// UpdateCurrentServing records number as today's serving ticket. When forceRecall is set and
// number is already being served, the value is cycled through 0 and the recall time is stamped so
// displays announce it again.
func (s *TrackingService) UpdateCurrentServing(ctx context.Context, number int, windowID *string, forceRecall bool, actor *string) (record *domain.TrackingRecord, err error) {
	ctx, span := startSpan(ctx, "TrackingService.UpdateCurrentServing",
		attribute.Int("queue.number", number),
		attribute.Bool("queue.force_recall", forceRecall))
	defer func() { endSpan(span, err) }()

	if number < 0 {
		return nil, apperrors.NewValidationError("queue number must not be negative", map[string]any{"queue_number": number})
	}

	day := s.Today()
	current, err := s.tracking.GetOrCreate(ctx, day)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}

	recall := forceRecall && current.CurrentServing == number
	if recall {
		if _, err = s.tracking.SetCurrentServing(ctx, day, 0, nil); err != nil {
			return nil, apperrors.NewInternalError(err)
		}
		recalledAt := s.now()
		_, err = s.tracking.SetCurrentServing(ctx, day, number, &recalledAt)
	} else {
		_, err = s.tracking.SetCurrentServing(ctx, day, number, nil)
	}
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}

	record, err = s.RefreshStatistics(ctx, day)
	if err != nil {
		return nil, err
	}

	s.logger.Info("current serving updated",
		zap.Int("queue_number", number),
		zap.Bool("recall", recall),
		zap.Stringp("window_id", windowID))
	s.publisher.publish(ctx, events.Event{
		Type:  events.EventServingChanged,
		Actor: staffActor(actor),
		Payload: events.ServingChangedPayload{
			Day:            day.String(),
			CurrentServing: number,
			WindowID:       windowID,
			Recall:         recall,
		},
	})
	return record, nil
}

// GetQueueStatus refreshes today's counters and resolves the window serving the current number.
func (s *TrackingService) GetQueueStatus(ctx context.Context) (*domain.QueueStatus, error) {
	day := s.Today()
	record, err := s.RefreshStatistics(ctx, day)
	if err != nil {
		return nil, err
	}

	status := &domain.QueueStatus{
		CurrentServing: record.CurrentServing,
		WaitingCount:   record.WaitingCount,
		CompletedCount: record.CompletedCount,
		TotalBookings:  record.TotalBookings,
		Date:           day.String(),
		Active:         record.Active,
		LastRecallAt:   record.LastRecallAt,
	}

	if record.CurrentServing > 0 {
		booking, err := s.bookings.LatestByQueueNumber(ctx, day, record.CurrentServing)
		switch {
		case err == nil:
			status.WindowNumber = booking.WindowNumber
		case errors.Is(err, pgx.ErrNoRows):
		default:
			return nil, apperrors.NewInternalError(err)
		}
	}
	return status, nil
}

// GetDashboardStatistics aggregates the bookings of day, or of today when day is nil.
func (s *TrackingService) GetDashboardStatistics(ctx context.Context, day *domain.DayBucket) (*domain.DashboardStats, error) {
	bucket := s.Today()
	if day != nil {
		bucket = *day
	}

	bookings, err := s.bookings.List(ctx, repository.BookingFilter{Day: &bucket})
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	return buildDashboard(bucket, bookings), nil
}

type staffAccumulator struct {
	stats     domain.StaffStats
	durations []int
}

func buildDashboard(day domain.DayBucket, bookings []domain.Booking) *domain.DashboardStats {
	stats := &domain.DashboardStats{Date: day.String(), Total: len(bookings), Staff: []domain.StaffStats{}}

	var durations []int
	perStaff := make(map[string]*staffAccumulator)
	var order []string

	for _, b := range bookings {
		switch b.Status {
		case domain.BookingStatusWaiting:
			stats.Waiting++
		case domain.BookingStatusInProgress:
			stats.InProgress++
		case domain.BookingStatusCompleted:
			stats.Completed++
		case domain.BookingStatusCancelled:
			stats.Cancelled++
		}

		elapsed, timed := completedDuration(b)
		if timed {
			durations = append(durations, elapsed)
		}

		if b.HandledByID == nil {
			continue
		}
		acc, ok := perStaff[*b.HandledByID]
		if !ok {
			acc = &staffAccumulator{stats: domain.StaffStats{UserID: *b.HandledByID}}
			if b.HandledByName != nil {
				acc.stats.Name = *b.HandledByName
			}
			perStaff[*b.HandledByID] = acc
			order = append(order, *b.HandledByID)
		}
		acc.stats.Total++
		switch b.Status {
		case domain.BookingStatusCompleted:
			acc.stats.Completed++
		case domain.BookingStatusCancelled:
			acc.stats.Cancelled++
		}
		if timed {
			acc.durations = append(acc.durations, elapsed)
		}
	}

	stats.Time = summarizeDurations(durations)
	for _, id := range order {
		acc := perStaff[id]
		acc.stats.Time = summarizeDurations(acc.durations)
		stats.Staff = append(stats.Staff, acc.stats)
	}
	sort.SliceStable(stats.Staff, func(i, j int) bool {
		return stats.Staff[i].Total > stats.Staff[j].Total
	})
	return stats
}

func completedDuration(b domain.Booking) (int, bool) {
	if b.Status != domain.BookingStatusCompleted || b.StartedAt == nil || b.EndedAt == nil {
		return 0, false
	}
	return domain.ElapsedSeconds(*b.StartedAt, *b.EndedAt), true
}

func summarizeDurations(durations []int) domain.TimeStats {
	if len(durations) == 0 {
		zero := domain.FormatDuration(0)
		return domain.TimeStats{Average: zero, Min: zero, Max: zero}
	}
	total, lowest, highest := 0, durations[0], durations[0]
	for _, d := range durations {
		total += d
		if d < lowest {
			lowest = d
		}
		if d > highest {
			highest = d
		}
	}
	return domain.TimeStats{
		Average:        domain.FormatDuration(total / len(durations)),
		Min:            domain.FormatDuration(lowest),
		Max:            domain.FormatDuration(highest),
		TotalCompleted: len(durations),
	}
}
