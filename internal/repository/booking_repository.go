package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/queue-booking-service/internal/domain"
)

// BookingFilter narrows booking listings. Nil fields are not applied.
type BookingFilter struct {
	Day    *domain.DayBucket
	Status *domain.BookingStatus
}

// BookingRepository encapsulates booking persistence and queue-number allocation.
type BookingRepository interface {
	// CreateNumbered allocates the next queue number of day and inserts booking with it.
	// It returns ErrDuplicatePhone when the phone already booked that day.
	CreateNumbered(ctx context.Context, booking *domain.Booking, day domain.DayBucket) error
	SetWindow(ctx context.Context, id string, windowID *string) error
	SetNotes(ctx context.Context, id string, notes *string) error
	// Transition writes booking only while its stored status is still from; otherwise it
	// returns ErrStatusChanged. The window column is written only when setWindow is true.
	Transition(ctx context.Context, booking *domain.Booking, from domain.BookingStatus, setWindow bool) error
	GetByID(ctx context.Context, id string) (*domain.Booking, error)
	List(ctx context.Context, filter BookingFilter) ([]domain.Booking, error)
	// ClaimNextWaiting picks the next waiting booking of day, preferring bookings without a
	// window, and stamps windowID on it when non-nil. Returns pgx.ErrNoRows when the queue is empty.
	ClaimNextWaiting(ctx context.Context, day domain.DayBucket, windowID *string) (*domain.Booking, error)
	// LatestByQueueNumber returns the most recently created booking of day holding number.
	LatestByQueueNumber(ctx context.Context, day domain.DayBucket, number int) (*domain.Booking, error)
}

type bookingRepository struct {
	pool *pgxpool.Pool
}

// NewBookingRepository instantiates repository.
func NewBookingRepository(pool *pgxpool.Pool) BookingRepository {
	return &bookingRepository{pool: pool}
}

const bookingSelect = `
        SELECT b.id, b.name, b.phone, b.email, b.booking_date, b.date_selection, b.queue_number, b.status,
               b.window_id, w.number, b.started_at, b.ended_at, b.time_taken, b.handled_by, u.name,
               b.notes, b.created_at
        FROM bookings b
        LEFT JOIN windows w ON w.id = b.window_id
        LEFT JOIN users u ON u.id = b.handled_by`

func (r *bookingRepository) CreateNumbered(ctx context.Context, booking *domain.Booking, day domain.DayBucket) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	// The day's tracking row is the allocation lock: every booking for the day queues behind it.
	if _, err = tx.Exec(ctx, `INSERT INTO queue_tracking (day) VALUES ($1) ON CONFLICT (day) DO NOTHING`, day.Date); err != nil {
		return err
	}
	var trackingID string
	if err = tx.QueryRow(ctx, `SELECT id FROM queue_tracking WHERE day=$1 FOR UPDATE`, day.Date).Scan(&trackingID); err != nil {
		return err
	}

	var duplicate bool
	if err = tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM bookings WHERE booking_day=$1 AND phone=$2)`,
		day.Date, booking.Phone,
	).Scan(&duplicate); err != nil {
		return err
	}
	if duplicate {
		err = ErrDuplicatePhone
		return err
	}

	var next int
	if err = tx.QueryRow(ctx,
		`SELECT COALESCE(MAX(queue_number), 0) + 1 FROM bookings WHERE booking_day=$1`,
		day.Date,
	).Scan(&next); err != nil {
		return err
	}

	const insert = `
        INSERT INTO bookings (name, phone, email, booking_date, booking_day, date_selection, queue_number, status, notes)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
        RETURNING id, created_at`
	if err = tx.QueryRow(ctx, insert,
		booking.Name,
		booking.Phone,
		booking.Email,
		booking.BookingDate,
		day.Date,
		booking.DateSelection,
		next,
		booking.Status,
		booking.Notes,
	).Scan(&booking.ID, &booking.CreatedAt); err != nil {
		return err
	}

	if err = tx.Commit(ctx); err != nil {
		return err
	}
	booking.QueueNumber = next
	return nil
}

func (r *bookingRepository) SetWindow(ctx context.Context, id string, windowID *string) error {
	return r.setColumn(ctx, `UPDATE bookings SET window_id=$1 WHERE id=$2`, windowID, id)
}

func (r *bookingRepository) SetNotes(ctx context.Context, id string, notes *string) error {
	return r.setColumn(ctx, `UPDATE bookings SET notes=$1 WHERE id=$2`, notes, id)
}

func (r *bookingRepository) setColumn(ctx context.Context, query string, value any, id string) error {
	cmd, err := r.pool.Exec(ctx, query, value, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *bookingRepository) Transition(ctx context.Context, booking *domain.Booking, from domain.BookingStatus, setWindow bool) error {
	const query = `
        UPDATE bookings SET status=$1,
            window_id=CASE WHEN $9 THEN $2::uuid ELSE window_id END,
            started_at=$3, ended_at=$4, time_taken=$5, handled_by=$6
        WHERE id=$7 AND status=$8`
	cmd, err := r.pool.Exec(ctx, query,
		booking.Status,
		booking.WindowID,
		booking.StartedAt,
		booking.EndedAt,
		booking.TimeTaken,
		booking.HandledByID,
		booking.ID,
		from,
		setWindow,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrStatusChanged
	}
	return nil
}

func (r *bookingRepository) GetByID(ctx context.Context, id string) (*domain.Booking, error) {
	return scanBooking(r.pool.QueryRow(ctx, bookingSelect+` WHERE b.id=$1`, id))
}

func (r *bookingRepository) List(ctx context.Context, filter BookingFilter) ([]domain.Booking, error) {
	clauses := []string{"1=1"}
	args := []any{}

	if filter.Day != nil {
		args = append(args, filter.Day.Start)
		clauses = append(clauses, fmt.Sprintf("b.booking_date >= $%d", len(args)))
		args = append(args, filter.Day.End)
		clauses = append(clauses, fmt.Sprintf("b.booking_date < $%d", len(args)))
	}
	if filter.Status != nil {
		args = append(args, *filter.Status)
		clauses = append(clauses, fmt.Sprintf("b.status=$%d", len(args)))
	}

	query := fmt.Sprintf(`%s WHERE %s ORDER BY b.queue_number, b.booking_day`,
		bookingSelect, strings.Join(clauses, " AND "))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanBookings(rows)
}

func (r *bookingRepository) ClaimNextWaiting(ctx context.Context, day domain.DayBucket, windowID *string) (*domain.Booking, error) {
	const pick = `
        SELECT id FROM bookings
        WHERE booking_date >= $1 AND booking_date < $2 AND status = 'waiting'
        ORDER BY (window_id IS NOT NULL), queue_number
        LIMIT 1`

	if windowID == nil {
		var id string
		if err := r.pool.QueryRow(ctx, pick, day.Start, day.End).Scan(&id); err != nil {
			return nil, err
		}
		return r.GetByID(ctx, id)
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	// The window condition sits in WHERE so the row recheck after a lock wait drops a booking
	// another caller stamped in the meantime. SKIP LOCKED hands concurrent callers different rows.
	const claim = `
        SELECT id FROM bookings
        WHERE booking_date >= $1 AND booking_date < $2 AND status = 'waiting'
            AND (window_id IS NOT NULL) = $3
        ORDER BY queue_number
        LIMIT 1
        FOR UPDATE SKIP LOCKED`

	var id string
	err = tx.QueryRow(ctx, claim, day.Start, day.End, false).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		err = tx.QueryRow(ctx, claim, day.Start, day.End, true).Scan(&id)
	}
	if err != nil {
		return nil, err
	}
	if _, err = tx.Exec(ctx, `UPDATE bookings SET window_id=$1 WHERE id=$2`, *windowID, id); err != nil {
		return nil, err
	}
	if err = tx.Commit(ctx); err != nil {
		return nil, err
	}
	return r.GetByID(ctx, id)
}

func (r *bookingRepository) LatestByQueueNumber(ctx context.Context, day domain.DayBucket, number int) (*domain.Booking, error) {
	query := bookingSelect + `
        WHERE b.booking_date >= $1 AND b.booking_date < $2 AND b.queue_number = $3
        ORDER BY b.created_at DESC
        LIMIT 1`
	return scanBooking(r.pool.QueryRow(ctx, query, day.Start, day.End, number))
}

func scanBooking(row rowScanner) (*domain.Booking, error) {
	var booking domain.Booking
	if err := row.Scan(
		&booking.ID,
		&booking.Name,
		&booking.Phone,
		&booking.Email,
		&booking.BookingDate,
		&booking.DateSelection,
		&booking.QueueNumber,
		&booking.Status,
		&booking.WindowID,
		&booking.WindowNumber,
		&booking.StartedAt,
		&booking.EndedAt,
		&booking.TimeTaken,
		&booking.HandledByID,
		&booking.HandledByName,
		&booking.Notes,
		&booking.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &booking, nil
}

func scanBookings(rows pgx.Rows) ([]domain.Booking, error) {
	var result []domain.Booking
	for rows.Next() {
		booking, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *booking)
	}
	return result, rows.Err()
}
