package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/FHFHockey-dev/fhfhockey.com-sub000/internal/adapters/repository"
)

type locker interface {
	tryLock(ctx context.Context) (bool, error)
	lock(ctx context.Context, timeout time.Duration) (bool, error)
	unlock(ctx context.Context) error
}

// pgLocker holds a session-level advisory lock on a pinned connection, since
// Postgres releases it only on the session that took it.
type pgLocker struct {
	db   *gorm.DB
	key  int64
	mu   sync.Mutex
	conn *sql.Conn
}

func (l *pgLocker) pin(ctx context.Context) (*sql.Conn, error) {
	sqlDB, err := l.db.DB()
	if err != nil {
		return nil, err
	}
	return sqlDB.Conn(ctx)
}

func (l *pgLocker) tryLock(ctx context.Context) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn != nil {
		return false, nil
	}
	conn, err := l.pin(ctx)
	if err != nil {
		return false, err
	}
	var ok bool
	if err := conn.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", l.key).Scan(&ok); err != nil {
		_ = conn.Close()
		return false, err
	}
	if !ok {
		_ = conn.Close()
		return false, nil
	}
	l.conn = conn
	return true, nil
}

// lock waits on pg_advisory_lock bounded by lock_timeout. A timeout surfaces
// as SQLSTATE 55P03 and is reported as contention.
func (l *pgLocker) lock(ctx context.Context, timeout time.Duration) (bool, error) {
	if timeout <= 0 {
		return l.tryLock(ctx)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn != nil {
		return false, nil
	}
	conn, err := l.pin(ctx)
	if err != nil {
		return false, err
	}
	if _, err := conn.ExecContext(ctx, fmt.Sprintf("SET lock_timeout = %d", lockTimeoutMillis(timeout))); err != nil {
		_ = conn.Close()
		return false, err
	}
	_, err = conn.ExecContext(ctx, "SELECT pg_advisory_lock($1)", l.key)
	_, _ = conn.ExecContext(context.WithoutCancel(ctx), "RESET lock_timeout")
	if err != nil {
		_ = conn.Close()
		if isLockTimeout(err) {
			return false, nil
		}
		return false, err
	}
	l.conn = conn
	return true, nil
}

// lockTimeoutMillis rounds a positive timeout up to at least 1ms, since a
// lock_timeout of 0 disables the timeout.
func lockTimeoutMillis(timeout time.Duration) int64 {
	return max(timeout.Milliseconds(), 1)
}

func (l *pgLocker) unlock(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn == nil {
		return repository.ErrLockNotHeld
	}
	var released bool
	err := l.conn.QueryRowContext(ctx, "SELECT pg_advisory_unlock($1)", l.key).Scan(&released)
	closeErr := l.conn.Close()
	l.conn = nil
	if err != nil {
		return err
	}
	if !released {
		return repository.ErrLockNotHeld
	}
	return closeErr
}

// tableLocker emulates the advisory lock with a keyed row for engines
// without one. A row older than lease is taken to belong to a dead holder.
type tableLocker struct {
	db     *gorm.DB
	key    int64
	holder string
	poll   time.Duration
	lease  time.Duration
	now    func() time.Time
}

func newTableLocker(db *gorm.DB, key int64, poll, lease time.Duration, now func() time.Time) *tableLocker {
	return &tableLocker{db: db, key: key, holder: uuid.NewString(), poll: poll, lease: lease, now: now}
}

func (l *tableLocker) tryLock(ctx context.Context) (bool, error) {
	now := l.now().UTC()
	expired := l.db.WithContext(ctx).
		Where("lock_key = ? AND acquired_at < ?", l.key, now.Add(-l.lease)).
		Delete(&lockRow{})
	if expired.Error != nil {
		return false, expired.Error
	}
	res := l.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&lockRow{LockKey: l.key, Holder: l.holder, AcquiredAt: now})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (l *tableLocker) lock(ctx context.Context, timeout time.Duration) (bool, error) {
	if ok, err := l.tryLock(ctx); err != nil || ok {
		return ok, err
	}
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(l.poll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-deadline.C:
			return false, nil
		case <-ticker.C:
			if ok, err := l.tryLock(ctx); err != nil || ok {
				return ok, err
			}
		}
	}
}

func (l *tableLocker) unlock(ctx context.Context) error {
	res := l.db.WithContext(ctx).Where("lock_key = ? AND holder = ?", l.key, l.holder).Delete(&lockRow{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return repository.ErrLockNotHeld
	}
	return nil
}
