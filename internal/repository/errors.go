package repository

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrDuplicatePhone        = errors.New("phone already has a booking for this day")
	ErrDuplicateWindowNumber = errors.New("window number already in use")
	ErrDuplicateEmail        = errors.New("email already registered")
	ErrAdminExists           = errors.New("an admin account already exists")
	ErrStatusChanged         = errors.New("booking status changed concurrently")
)

const uniqueViolation = "23505"

type rowScanner interface {
	Scan(dest ...any) error
}

// isUniqueViolation matches a unique-constraint failure, optionally on a specific constraint or index.
func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != uniqueViolation {
		return false
	}
	return constraint == "" || pgErr.ConstraintName == constraint
}
