package sqlstore

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/FHFHockey-dev/fhfhockey.com-sub000/internal/adapters/repository"
)

// Sentinel kinds for SQL store errors.
var (
	ErrUnknownDriver = errors.New("unknown store driver")
)

// SQLSTATE codes treated as transient.
const (
	codeSerialization    = "40001"
	codeDeadlock         = "40P01"
	codeLockNotAvailable = "55P03"
)

// retryable reports whether a failed write is worth repeating.
func retryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch strings.TrimSpace(pgErr.Code) {
		case codeSerialization, codeDeadlock, codeLockNotAvailable:
			return true
		}
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "busy") ||
		strings.Contains(msg, "deadlock") ||
		strings.Contains(msg, "timeout")
}

func isLockTimeout(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == codeLockNotAvailable
}

// withRetry runs fn up to attempts times while it fails with a transient error.
func (s *Store) withRetry(ctx context.Context, op string, fn func() error) error {
	var err error
	for attempt := 1; attempt <= s.writeAttempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if !retryable(err) || attempt == s.writeAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return repository.Unavailable(op, ctx.Err())
		case <-time.After(s.retryDelay):
		}
	}
	return repository.Unavailable(op, err)
}
