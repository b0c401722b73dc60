package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// DB wraps a sql.DB connection to the hebbian SQLite database.
//
// A DB is an explicit handle: callers open it, run operations through
// Update, and Close it. Nothing is cached between transactions, so several
// processes may share one file.
type DB struct {
	*sql.DB
	Path string

	retry  RetryPolicy
	logger *zap.Logger
}

// RetryPolicy bounds how long a transaction keeps retrying on SQLITE_BUSY.
type RetryPolicy struct {
	MaxTries int
	Initial  time.Duration
	Max      time.Duration
}

type options struct {
	busyTimeout time.Duration
	retry       RetryPolicy
	logger      *zap.Logger
}

// Option configures Open and OpenMemory.
type Option func(*options)

// WithBusyTimeout sets SQLite's per-connection busy_timeout.
func WithBusyTimeout(d time.Duration) Option {
	return func(o *options) { o.busyTimeout = d }
}

// WithRetry sets the transaction retry policy.
func WithRetry(p RetryPolicy) Option {
	return func(o *options) { o.retry = p }
}

// WithLogger sets the logger used for retry diagnostics.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

func defaultOptions() options {
	return options{
		busyTimeout: 5 * time.Second,
		retry: RetryPolicy{
			MaxTries: 5,
			Initial:  25 * time.Millisecond,
			Max:      time.Second,
		},
		logger: zap.NewNop(),
	}
}

// DefaultDBPath returns the default database path: ~/.hebbian/hebbian.db
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(home, ".hebbian", "hebbian.db"), nil
}

// Open opens (or creates) the SQLite database at the given path,
// configures pragmas, and runs migrations.
func Open(path string, opts ...Option) (*DB, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db dir: %w: %w", ErrStoreUnavailable, err)
	}

	sqlDB, err := sql.Open("sqlite", dsn(path, o.busyTimeout))
	if err != nil {
		return nil, classify("open sqlite", err)
	}

	db := &DB{DB: sqlDB, Path: path, retry: o.retry, logger: o.logger}
	if err := db.init("PRAGMA journal_mode=WAL"); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return db, nil
}

// OpenMemory opens an in-memory SQLite database. It behaves like a file
// store but is lost on Close. Used by tests and benchmarks.
func OpenMemory(opts ...Option) (*DB, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	sqlDB, err := sql.Open("sqlite", dsn(":memory:", o.busyTimeout))
	if err != nil {
		return nil, classify("open sqlite memory", err)
	}
	// Every new connection to :memory: is a new, empty database.
	sqlDB.SetMaxOpenConns(1)

	db := &DB{DB: sqlDB, Path: ":memory:", retry: o.retry, logger: o.logger}
	if err := db.init(); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return db, nil
}

// dsn builds a modernc.org/sqlite DSN. Pragmas passed through _pragma apply
// to every pooled connection; _txlock=immediate makes BeginTx take the write
// lock up front so concurrent writers wait on busy_timeout instead of
// failing on lock upgrade.
func dsn(path string, busyTimeout time.Duration) string {
	return fmt.Sprintf(
		"%s?_txlock=immediate&_pragma=busy_timeout(%d)&_pragma=foreign_keys(1)&_pragma=synchronous(NORMAL)",
		path, busyTimeout.Milliseconds())
}

func (db *DB) init(pragmas ...string) error {
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return classify(fmt.Sprintf("pragma %q", p), err)
		}
	}
	if err := db.migrate(); err != nil {
		return classify("migrate", err)
	}
	return nil
}
