package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
)

// Tx is one engine operation's view of the store. All reads and writes of
// an operation go through the same Tx so they commit or roll back together.
type Tx struct {
	tx  querier
	ctx context.Context
}

// querier is satisfied by *sql.Tx and by a *sql.Conn holding a manual
// transaction.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (t *Tx) exec(query string, args ...any) (sql.Result, error) {
	return t.tx.ExecContext(t.ctx, query, args...)
}

func (t *Tx) query(query string, args ...any) (*sql.Rows, error) {
	return t.tx.QueryContext(t.ctx, query, args...)
}

func (t *Tx) queryRow(query string, args ...any) *sql.Row {
	return t.tx.QueryRowContext(t.ctx, query, args...)
}

// Update runs fn inside a write transaction. On SQLITE_BUSY the whole
// transaction is rolled back and retried with exponential backoff; once the
// retry policy is exhausted the error wraps ErrStoreBusy. fn may run more
// than once and must not have side effects outside the transaction.
func (db *DB) Update(ctx context.Context, op string, fn func(*Tx) error) error {
	return db.retryBusy(ctx, op, func() error { return db.runTx(ctx, fn) })
}

// View runs fn inside a deferred read transaction. It takes no write lock,
// so readers do not queue behind writers in other processes. fn must only
// read; busy errors are retried as in Update.
func (db *DB) View(ctx context.Context, op string, fn func(*Tx) error) error {
	return db.retryBusy(ctx, op, func() error { return db.runView(ctx, fn) })
}

func (db *DB) retryBusy(ctx context.Context, op string, run func() error) error {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = db.retry.Initial
	eb.MaxInterval = db.retry.Max

	tries := db.retry.MaxTries
	if tries < 1 {
		tries = 1
	}

	attempt := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		err := run()
		if err == nil {
			return struct{}{}, nil
		}
		if isBusy(err) {
			db.logger.Debug("store busy, retrying",
				zap.String("op", op), zap.Int("attempt", attempt), zap.Error(err))
			return struct{}{}, err
		}
		return struct{}{}, backoff.Permanent(err)
	}, backoff.WithBackOff(eb), backoff.WithMaxTries(uint(tries)))
	if err == nil {
		return nil
	}
	if isBusy(err) {
		db.logger.Warn("store busy, giving up",
			zap.String("op", op), zap.Int("attempts", attempt))
	}
	return classify(op, err)
}

// runView pins one connection and opens the transaction by hand: BeginTx
// always honors the DSN's _txlock=immediate.
func (db *DB) runView(ctx context.Context, fn func(*Tx) error) (err error) {
	conn, err := db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("conn: %w", err)
	}
	defer conn.Close()

	if _, err = conn.ExecContext(ctx, "BEGIN DEFERRED"); err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			// the connection goes back to the pool; never leave it mid-transaction
			if _, rbErr := conn.ExecContext(context.Background(), "ROLLBACK"); rbErr != nil {
				err = errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
			}
		}
	}()

	if err = fn(&Tx{tx: conn, ctx: ctx}); err != nil {
		return err
	}
	if _, err = conn.ExecContext(ctx, "COMMIT"); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (db *DB) runTx(ctx context.Context, fn func(*Tx) error) (err error) {
	sqlTx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := sqlTx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				err = errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
			}
		}
	}()

	if err = fn(&Tx{tx: sqlTx, ctx: ctx}); err != nil {
		return err
	}
	if err = sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
