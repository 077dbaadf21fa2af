package sqlx

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"signwise/core"
	"signwise/engine"
)

// Driver identifies the SQL dialect.
type Driver string

const (
	DriverPostgres Driver = "postgres"
	DriverMySQL    Driver = "mysql"
	DriverSQLite   Driver = "sqlite"
)

func init() {
	// modernc registers itself as "sqlite"; sqlx only knows "sqlite3".
	sqlx.BindDriver(string(DriverSQLite), sqlx.QUESTION)
}

// Config holds SQL connection configuration.
type Config struct {
	Driver          Driver        `json:"driver" env:"SIGNWISE_SQL_DRIVER"`
	DSN             string        `json:"dsn" env:"SIGNWISE_SQL_DSN"`
	MaxOpenConns    int           `json:"max_open_conns" env:"SIGNWISE_SQL_MAX_OPEN_CONNS"`
	MaxIdleConns    int           `json:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime"`
	// AutoMigrate creates the table on New when missing.
	AutoMigrate bool `json:"auto_migrate" env:"SIGNWISE_SQL_AUTO_MIGRATE"`
}

// DefaultConfig returns sensible defaults for driver.
func DefaultConfig(driver Driver) Config {
	cfg := Config{
		Driver:          driver,
		MaxOpenConns:    10,
		MaxIdleConns:    2,
		ConnMaxLifetime: 30 * time.Minute,
		AutoMigrate:     true,
	}
	switch driver {
	case DriverPostgres:
		cfg.DSN = "postgres://localhost:5432/signwise?sslmode=disable"
	case DriverMySQL:
		cfg.DSN = "root@tcp(localhost:3306)/signwise"
	case DriverSQLite:
		cfg.DSN = "signwise.db"
		cfg.MaxOpenConns = 1
		cfg.MaxIdleConns = 1
	}
	return cfg
}

// Store implements engine.BatchStore over a single key/value table:
//
//	streak_kv(name, int_value, day_value, updated_at)
//
// Integers live in int_value and days in day_value as "YYYY-MM-DD".
// Batches run in one transaction.
type Store struct {
	db     *sqlx.DB
	driver Driver
}

// New opens a connection with the provided configuration.
func New(cfg Config) (*Store, error) {
	db, err := sqlx.Open(string(cfg.Driver), cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", cfg.Driver, err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to %s database: %w", cfg.Driver, err)
	}
	if cfg.Driver == DriverSQLite {
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	s := NewWithDB(db, cfg.Driver)
	if cfg.AutoMigrate {
		if err := s.Migrate(ctx); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return s, nil
}

// NewWithDB wraps an existing connection (useful for testing).
func NewWithDB(db *sqlx.DB, driver Driver) *Store {
	return &Store{db: db, driver: driver}
}

func (s *Store) Close() error { return s.db.Close() }

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// Migrate creates the key/value table if it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	var ddl string
	switch s.driver {
	case DriverMySQL:
		ddl = `CREATE TABLE IF NOT EXISTS streak_kv (
			name VARCHAR(255) NOT NULL PRIMARY KEY,
			int_value BIGINT NULL,
			day_value VARCHAR(10) NULL,
			updated_at DATETIME NOT NULL
		)`
	case DriverPostgres:
		ddl = `CREATE TABLE IF NOT EXISTS streak_kv (
			name TEXT PRIMARY KEY,
			int_value BIGINT NULL,
			day_value TEXT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`
	default:
		ddl = `CREATE TABLE IF NOT EXISTS streak_kv (
			name TEXT PRIMARY KEY,
			int_value INTEGER NULL,
			day_value TEXT NULL,
			updated_at TIMESTAMP NOT NULL
		)`
	}
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("failed to migrate streak_kv: %w", err)
	}
	return nil
}

type kvRow struct {
	IntValue sql.NullInt64  `db:"int_value"`
	DayValue sql.NullString `db:"day_value"`
}

func (s *Store) row(ctx context.Context, key string) (kvRow, bool, error) {
	var r kvRow
	q := s.db.Rebind(`SELECT int_value, day_value FROM streak_kv WHERE name = ?`)
	err := s.db.GetContext(ctx, &r, q, key)
	if errors.Is(err, sql.ErrNoRows) {
		return kvRow{}, false, nil
	}
	if err != nil {
		return kvRow{}, false, fmt.Errorf("failed to read %s: %w", key, err)
	}
	return r, true, nil
}

func (s *Store) GetInt(ctx context.Context, key string) (int64, bool, error) {
	r, ok, err := s.row(ctx, key)
	if err != nil || !ok {
		return 0, false, err
	}
	if !r.IntValue.Valid {
		return 0, false, fmt.Errorf("%w: %s has no integer value", engine.ErrInvalidValue, key)
	}
	return r.IntValue.Int64, true, nil
}

func (s *Store) GetDay(ctx context.Context, key string) (core.Day, bool, error) {
	r, ok, err := s.row(ctx, key)
	if err != nil || !ok {
		return core.Day{}, false, err
	}
	if !r.DayValue.Valid {
		return core.Day{}, false, fmt.Errorf("%w: %s has no day value", engine.ErrInvalidValue, key)
	}
	d, err := core.ParseDay(r.DayValue.String)
	if err != nil {
		return core.Day{}, false, fmt.Errorf("%w: %s=%q", engine.ErrInvalidValue, key, r.DayValue.String)
	}
	return d, true, nil
}

func (s *Store) SetInt(ctx context.Context, key string, v int64) error {
	return s.Apply(ctx, []engine.Mutation{engine.SetIntMutation(key, v)})
}

func (s *Store) SetDay(ctx context.Context, key string, d core.Day) error {
	return s.Apply(ctx, []engine.Mutation{engine.SetDayMutation(key, d)})
}

func (s *Store) Remove(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	q, args, err := sqlx.In(`DELETE FROM streak_kv WHERE name IN (?)`, keys)
	if err != nil {
		return fmt.Errorf("failed to build delete: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, s.db.Rebind(q), args...); err != nil {
		return fmt.Errorf("failed to remove keys: %w", err)
	}
	return nil
}

func (s *Store) upsertSQL() string {
	const insert = `INSERT INTO streak_kv (name, int_value, day_value, updated_at) VALUES (?, ?, ?, ?)`
	if s.driver == DriverMySQL {
		return insert + ` ON DUPLICATE KEY UPDATE int_value = VALUES(int_value), day_value = VALUES(day_value), updated_at = VALUES(updated_at)`
	}
	return s.db.Rebind(insert + ` ON CONFLICT (name) DO UPDATE SET int_value = excluded.int_value, day_value = excluded.day_value, updated_at = excluded.updated_at`)
}

// Apply writes muts inside one transaction.
func (s *Store) Apply(ctx context.Context, muts []engine.Mutation) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	upsert := s.upsertSQL()
	del := s.db.Rebind(`DELETE FROM streak_kv WHERE name = ?`)
	now := time.Now().UTC()
	for _, m := range muts {
		switch m.Op {
		case engine.OpSetInt:
			_, err = tx.ExecContext(ctx, upsert, m.Key, sql.NullInt64{Int64: m.Int, Valid: true}, sql.NullString{}, now)
		case engine.OpSetDay:
			_, err = tx.ExecContext(ctx, upsert, m.Key, sql.NullInt64{}, sql.NullString{String: m.Day.String(), Valid: true}, now)
		case engine.OpRemove:
			_, err = tx.ExecContext(ctx, del, m.Key)
		}
		if err != nil {
			return fmt.Errorf("failed to write %s: %w", m.Key, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

func (s *Store) Keys(ctx context.Context, prefix string) ([]string, error) {
	var names []string
	q := s.db.Rebind(`SELECT name FROM streak_kv WHERE name LIKE ? ORDER BY name`)
	if err := s.db.SelectContext(ctx, &names, q, prefix+"%"); err != nil {
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}
	// LIKE treats _ and % in prefix as wildcards
	out := names[:0]
	for _, n := range names {
		if strings.HasPrefix(n, prefix) {
			out = append(out, n)
		}
	}
	return out, nil
}

var (
	_ engine.BatchStore = (*Store)(nil)
	_ engine.KeyLister  = (*Store)(nil)
)
