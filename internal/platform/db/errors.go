package db

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// ErrUnavailable marks storage failures that the caller may retry with
// backoff: timeouts, dropped connections, resource exhaustion. Validation
// and constraint failures are never wrapped with it.
var ErrUnavailable = errors.New("storage unavailable")

// unavailableCodeClasses are the PostgreSQL error code classes that indicate
// a transient infrastructure problem rather than a bad statement:
// 08 connection exception, 53 insufficient resources, 57 operator intervention.
var unavailableCodeClasses = []string{"08", "53", "57"}

// MapError wraps transient storage failures with ErrUnavailable so services
// can surface a retryable error kind. Other errors pass through unchanged.
func MapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return errors.Join(ErrUnavailable, err)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		for _, class := range unavailableCodeClasses {
			if strings.HasPrefix(pgErr.Code, class) {
				return errors.Join(ErrUnavailable, err)
			}
		}
	}
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return errors.Join(ErrUnavailable, err)
	}
	return err
}
