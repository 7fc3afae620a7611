// README: Scoped transaction helper; commit on success, rollback on error or panic.
package infra

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"dispatch/internal/apperr"
)

// Postgres SQLSTATEs surfaced as typed errors.
const (
	pgLockNotAvailable = "55P03"
	pgDeadlockDetected = "40P01"
	pgUniqueViolation  = "23505"
)

// WithTx runs fn inside a transaction. The transaction is committed only when
// fn returns nil; every other exit path, including a panic, rolls it back.
func WithTx(ctx context.Context, db DB, fn func(tx pgx.Tx) error) (err error) {
	tx, err := db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		}
	}()

	if err = fn(tx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			return errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
		}
		return err
	}
	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", translate(err))
	}
	return nil
}

// SetLockTimeout bounds row-lock waits for the rest of the transaction.
func SetLockTimeout(ctx context.Context, q Querier, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	if _, err := q.Exec(ctx, `SELECT set_config('lock_timeout', $1, true)`, fmt.Sprintf("%dms", d.Milliseconds())); err != nil {
		return fmt.Errorf("set lock_timeout: %w", err)
	}
	return nil
}

// StoreError wraps err with op, mapping lock waits and deadlocks to
// apperr.ErrLockTimeout so callers can tell them from opaque failures.
func StoreError(op string, err error) error {
	return fmt.Errorf("%s: %w", op, translate(err))
}

// IsUniqueViolation reports whether err is a unique-constraint failure.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

func translate(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgLockNotAvailable, pgDeadlockDetected:
			return errors.Join(apperr.ErrLockTimeout, err)
		}
	}
	return err
}
