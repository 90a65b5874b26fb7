package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/queue-booking-service/internal/domain"
)

// TrackingRepository persists the per-day queue_tracking rows.
type TrackingRepository interface {
	GetOrCreate(ctx context.Context, day domain.DayBucket) (*domain.TrackingRecord, error)
	// RefreshCounts recomputes total, waiting and completed counts of day from bookings.
	RefreshCounts(ctx context.Context, day domain.DayBucket) (*domain.TrackingRecord, error)
	// SetCurrentServing stores number; recallAt replaces last_recall_at only when non-nil.
	SetCurrentServing(ctx context.Context, day domain.DayBucket, number int, recallAt *time.Time) (*domain.TrackingRecord, error)
}

type trackingRepository struct {
	pool *pgxpool.Pool
}

// NewTrackingRepository instantiates repository.
func NewTrackingRepository(pool *pgxpool.Pool) TrackingRepository {
	return &trackingRepository{pool: pool}
}

const trackingColumns = `id, day, current_serving, total_bookings, waiting_count, completed_count, is_active, last_recall_at`

func (r *trackingRepository) ensure(ctx context.Context, day domain.DayBucket) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO queue_tracking (day) VALUES ($1) ON CONFLICT (day) DO NOTHING`, day.Date)
	return err
}

func (r *trackingRepository) GetOrCreate(ctx context.Context, day domain.DayBucket) (*domain.TrackingRecord, error) {
	if err := r.ensure(ctx, day); err != nil {
		return nil, err
	}
	return scanTracking(r.pool.QueryRow(ctx, `SELECT `+trackingColumns+` FROM queue_tracking WHERE day=$1`, day.Date))
}

func (r *trackingRepository) RefreshCounts(ctx context.Context, day domain.DayBucket) (*domain.TrackingRecord, error) {
	if err := r.ensure(ctx, day); err != nil {
		return nil, err
	}
	const query = `
        UPDATE queue_tracking t SET
            total_bookings = s.total,
            waiting_count = s.waiting,
            completed_count = s.completed
        FROM (
            SELECT COUNT(*) AS total,
                   COUNT(*) FILTER (WHERE status = 'waiting') AS waiting,
                   COUNT(*) FILTER (WHERE status = 'completed') AS completed
            FROM bookings
            WHERE booking_date >= $2 AND booking_date < $3
        ) s
        WHERE t.day = $1
        RETURNING t.id, t.day, t.current_serving, t.total_bookings, t.waiting_count, t.completed_count,
                  t.is_active, t.last_recall_at`
	return scanTracking(r.pool.QueryRow(ctx, query, day.Date, day.Start, day.End))
}

func (r *trackingRepository) SetCurrentServing(ctx context.Context, day domain.DayBucket, number int, recallAt *time.Time) (*domain.TrackingRecord, error) {
	if err := r.ensure(ctx, day); err != nil {
		return nil, err
	}
	const query = `
        UPDATE queue_tracking SET current_serving=$2, last_recall_at=COALESCE($3, last_recall_at)
        WHERE day=$1
        RETURNING ` + trackingColumns
	return scanTracking(r.pool.QueryRow(ctx, query, day.Date, number, recallAt))
}

func scanTracking(row rowScanner) (*domain.TrackingRecord, error) {
	var record domain.TrackingRecord
	if err := row.Scan(
		&record.ID,
		&record.Day,
		&record.CurrentServing,
		&record.TotalBookings,
		&record.WaitingCount,
		&record.CompletedCount,
		&record.Active,
		&record.LastRecallAt,
	); err != nil {
		return nil, err
	}
	return &record, nil
}
