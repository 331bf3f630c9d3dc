package dberr

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"github.com/yungbote/coursehub-backend/internal/platform/apierr"
)

// ErrRetryable marks serialization failures, deadlocks and lock timeouts.
var ErrRetryable = errors.New("retryable store error")

// IsUniqueViolation recognises duplicate-key failures from Postgres (23505),
// GORM's translated error, and SQLite's constraint message.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate key")
}

func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01", "55P03":
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "database is locked")
}

// Map converts store errors into the apierr taxonomy, prefixed with op.
func Map(op string, err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return fmt.Errorf("%s: %w", op, apierr.ErrNotFound)
	case IsUniqueViolation(err):
		return fmt.Errorf("%s: %w: %v", op, apierr.ErrConflict, err)
	case isRetryable(err):
		return fmt.Errorf("%s: %w: %v", op, ErrRetryable, err)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}
