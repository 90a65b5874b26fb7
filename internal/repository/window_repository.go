package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/queue-booking-service/internal/domain"
)

// WindowRepository persists service windows and the staff assignment history.
type WindowRepository interface {
	Create(ctx context.Context, window *domain.Window) error
	Update(ctx context.Context, window *domain.Window) error
	GetByID(ctx context.Context, id string) (*domain.Window, error)
	// NumberTaken reports whether another window than excludeID already uses number.
	NumberTaken(ctx context.Context, number int, excludeID *string) (bool, error)
	List(ctx context.Context, activeOnly bool) ([]domain.Window, error)
	// Assign releases every active assignment of userID or windowID and opens a new one, atomically.
	Assign(ctx context.Context, userID, windowID string, at time.Time) (*domain.WindowAssignment, error)
	Release(ctx context.Context, userID string, at time.Time) (int64, error)
	CurrentWindowForUser(ctx context.Context, userID string) (*domain.Window, error)
	CurrentStaffForWindow(ctx context.Context, windowID string) (*domain.StaffRef, error)
}

type windowRepository struct {
	pool *pgxpool.Pool
}

// NewWindowRepository returns a Postgres-backed implementation.
func NewWindowRepository(pool *pgxpool.Pool) WindowRepository {
	return &windowRepository{pool: pool}
}

func (r *windowRepository) Create(ctx context.Context, window *domain.Window) error {
	const query = `
        INSERT INTO windows (name, number, is_active)
        VALUES ($1, $2, $3)
        RETURNING id, created_at`
	err := r.pool.QueryRow(ctx, query, window.Name, window.Number, window.Active).Scan(&window.ID, &window.CreatedAt)
	if isUniqueViolation(err, "windows_number_key") {
		return ErrDuplicateWindowNumber
	}
	return err
}

func (r *windowRepository) Update(ctx context.Context, window *domain.Window) error {
	const query = `UPDATE windows SET name=$1, number=$2, is_active=$3 WHERE id=$4`
	cmd, err := r.pool.Exec(ctx, query, window.Name, window.Number, window.Active, window.ID)
	if isUniqueViolation(err, "windows_number_key") {
		return ErrDuplicateWindowNumber
	}
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *windowRepository) GetByID(ctx context.Context, id string) (*domain.Window, error) {
	const query = `SELECT id, name, number, is_active, created_at FROM windows WHERE id=$1`
	return scanWindow(r.pool.QueryRow(ctx, query, id))
}

func (r *windowRepository) NumberTaken(ctx context.Context, number int, excludeID *string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM windows WHERE number=$1 AND ($2::uuid IS NULL OR id <> $2::uuid))`
	var taken bool
	err := r.pool.QueryRow(ctx, query, number, excludeID).Scan(&taken)
	return taken, err
}

func (r *windowRepository) List(ctx context.Context, activeOnly bool) ([]domain.Window, error) {
	query := `SELECT id, name, number, is_active, created_at FROM windows`
	if activeOnly {
		query += ` WHERE is_active`
	}
	query += ` ORDER BY number`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Window
	for rows.Next() {
		window, err := scanWindow(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *window)
	}
	return result, rows.Err()
}

func (r *windowRepository) Assign(ctx context.Context, userID, windowID string, at time.Time) (*domain.WindowAssignment, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	// Lock user then window so concurrent assignments touching either one serialize.
	var lockedID string
	if err = tx.QueryRow(ctx, `SELECT id FROM users WHERE id=$1 FOR NO KEY UPDATE`, userID).Scan(&lockedID); err != nil {
		return nil, err
	}
	if err = tx.QueryRow(ctx, `SELECT id FROM windows WHERE id=$1 FOR NO KEY UPDATE`, windowID).Scan(&lockedID); err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, `
        SELECT id FROM window_assignments
        WHERE is_active AND (user_id=$1 OR window_id=$2)
        FOR UPDATE`, userID, windowID)
	if err != nil {
		return nil, err
	}
	var previous []string
	for rows.Next() {
		var id string
		if err = rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		previous = append(previous, id)
	}
	rows.Close()
	if err = rows.Err(); err != nil {
		return nil, err
	}

	if len(previous) > 0 {
		if _, err = tx.Exec(ctx,
			`UPDATE window_assignments SET is_active=FALSE, released_at=$1 WHERE id = ANY($2::uuid[])`,
			at, previous,
		); err != nil {
			return nil, err
		}
	}

	assignment := &domain.WindowAssignment{UserID: userID, WindowID: windowID, Active: true, AssignedAt: at}
	if err = tx.QueryRow(ctx, `
        INSERT INTO window_assignments (user_id, window_id, is_active, assigned_at)
        VALUES ($1, $2, TRUE, $3)
        RETURNING id`, userID, windowID, at,
	).Scan(&assignment.ID); err != nil {
		return nil, err
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, err
	}
	return assignment, nil
}

func (r *windowRepository) Release(ctx context.Context, userID string, at time.Time) (int64, error) {
	cmd, err := r.pool.Exec(ctx,
		`UPDATE window_assignments SET is_active=FALSE, released_at=$2 WHERE user_id=$1 AND is_active`,
		userID, at,
	)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

func (r *windowRepository) CurrentWindowForUser(ctx context.Context, userID string) (*domain.Window, error) {
	const query = `
        SELECT w.id, w.name, w.number, w.is_active, w.created_at
        FROM window_assignments a
        JOIN windows w ON w.id = a.window_id
        WHERE a.user_id=$1 AND a.is_active
        ORDER BY a.assigned_at DESC
        LIMIT 1`
	return scanWindow(r.pool.QueryRow(ctx, query, userID))
}

func (r *windowRepository) CurrentStaffForWindow(ctx context.Context, windowID string) (*domain.StaffRef, error) {
	const query = `
        SELECT u.id, u.name
        FROM window_assignments a
        JOIN users u ON u.id = a.user_id
        WHERE a.window_id=$1 AND a.is_active
        ORDER BY a.assigned_at DESC
        LIMIT 1`
	var staff domain.StaffRef
	if err := r.pool.QueryRow(ctx, query, windowID).Scan(&staff.ID, &staff.Name); err != nil {
		return nil, err
	}
	return &staff, nil
}

func scanWindow(row rowScanner) (*domain.Window, error) {
	var window domain.Window
	if err := row.Scan(&window.ID, &window.Name, &window.Number, &window.Active, &window.CreatedAt); err != nil {
		return nil, err
	}
	return &window, nil
}
