package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"smartwallet/pkg/logging"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// Supported drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

// timeLayout is fixed width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Config holds the database connection settings.
type Config struct {
	// Driver is "postgres" or "sqlite3".
	Driver string `mapstructure:"driver"`

	// DSN is a lib/pq connection string, or a file path for SQLite.
	DSN string `mapstructure:"dsn"`

	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`

	// Migrate applies the embedded schema on Open.
	Migrate bool `mapstructure:"migrate"`
}

// DefaultConfig returns a configuration for a local SQLite file.
func DefaultConfig() Config {
	return Config{
		Driver:          DriverSQLite,
		DSN:             "smartwallet.db",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		Migrate:         true,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	switch c.Driver {
	case DriverPostgres, DriverSQLite:
	default:
		return fmt.Errorf("sqlstore: unsupported driver %q", c.Driver)
	}
	if c.DSN == "" {
		return fmt.Errorf("sqlstore: dsn is required")
	}
	return nil
}

// dataSource returns the DSN passed to sql.Open.
func (c Config) dataSource() string {
	if c.Driver == DriverSQLite && !strings.HasPrefix(c.DSN, "file:") {
		return fmt.Sprintf("file:%s?_foreign_keys=on&_busy_timeout=5000", c.DSN)
	}
	return c.DSN
}

// Store is a ledger and entity store on database/sql. The same queries run
// on Postgres and SQLite; placeholders are written as '?' and rebound for
// Postgres. Amounts are stored as decimal text and summed in Go.
type Store struct {
	db     *sql.DB
	driver string
	logger *logging.Logger
}

// Open connects to the database, pings it and applies migrations when
// config.Migrate is set.
func Open(ctx context.Context, config Config, logger *logging.Logger) (*Store, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	logger = logging.OrNop(logger).Named("sqlstore")

	if config.Migrate {
		if err := Migrate(config); err != nil {
			return nil, err
		}
		logger.Info("schema migrated", zap.String("driver", config.Driver))
	}

	db, err := sql.Open(config.Driver, config.dataSource())
	if err != nil {
		return nil, fmt.Errorf("failed to open %s connection: %w", config.Driver, err)
	}

	if config.Driver == DriverSQLite {
		db.SetMaxOpenConns(1)
		db.SetConnMaxLifetime(0)
	} else {
		db.SetMaxOpenConns(config.MaxOpenConns)
		db.SetMaxIdleConns(config.MaxIdleConns)
		db.SetConnMaxLifetime(config.ConnMaxLifetime)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping %s: %w", config.Driver, err)
	}

	return New(db, config.Driver, logger), nil
}

// New wraps an open database. The schema must already exist.
func New(db *sql.DB, driver string, logger *logging.Logger) *Store {
	return &Store{db: db, driver: driver, logger: logging.OrNop(logger)}
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// rebind rewrites '?' placeholders as $1, $2, ... for Postgres.
func (s *Store) rebind(query string) string {
	if s.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

func (s *Store) exec(ctx context.Context, q querier, query string, args ...any) (sql.Result, error) {
	return q.ExecContext(ctx, s.rebind(query), args...)
}

func (s *Store) query(ctx context.Context, q querier, query string, args ...any) (*sql.Rows, error) {
	return q.QueryContext(ctx, s.rebind(query), args...)
}

func (s *Store) queryRow(ctx context.Context, q querier, query string, args ...any) *sql.Row {
	return q.QueryRowContext(ctx, s.rebind(query), args...)
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// withTx runs fn in a transaction.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid stored time %q: %w", s, err)
	}
	return t, nil
}
