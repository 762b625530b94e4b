package database

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"barbershop/internal/availability"

	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
	"github.com/rs/zerolog"
)

// DB wraps the sqlite connection pool.
type DB struct {
	*sql.DB
	path   string
	logger *zerolog.Logger
}

var (
	ErrNotFound               = errors.New("not found")
	ErrConcurrentModification = errors.New("concurrent modification")
)

// GateFunc inspects the intervals overlapping a proposed write and returns a
// non-nil error to abort it. It runs inside the write transaction.
type GateFunc func(existing []availability.Interval) error

// NewDB opens the database and runs migrations.
//
// _txlock=immediate makes every BeginTx take the write lock up front, so a
// read-then-insert sequence cannot interleave with another writer.
func NewDB(path string, logger *zerolog.Logger) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	dsn := path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_foreign_keys=on&_txlock=immediate"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	instance := &DB{DB: db, path: path, logger: logger}
	if err := instance.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	logger.Info().Str("path", path).Msg("Database initialized")
	return instance, nil
}

func (db *DB) createTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS barbers (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			is_active BOOLEAN NOT NULL DEFAULT 1,
			created_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS working_hours (
			barber_id TEXT NOT NULL,
			weekday INTEGER NOT NULL CHECK (weekday BETWEEN 0 AND 6),
			start_time TEXT NOT NULL DEFAULT '',
			end_time TEXT NOT NULL DEFAULT '',
			is_working BOOLEAN NOT NULL DEFAULT 0,
			updated_at INTEGER NOT NULL,
			UNIQUE (barber_id, weekday),
			FOREIGN KEY (barber_id) REFERENCES barbers(id) ON DELETE CASCADE
		)`,
		// start_time/end_time are Unix seconds so range predicates compare numerically.
		`CREATE TABLE IF NOT EXISTS appointments (
			id TEXT PRIMARY KEY,
			barber_id TEXT NOT NULL,
			customer_name TEXT NOT NULL,
			customer_email TEXT NOT NULL,
			customer_phone TEXT NOT NULL DEFAULT '',
			service TEXT NOT NULL DEFAULT '',
			duration_minutes INTEGER NOT NULL,
			start_time INTEGER NOT NULL,
			end_time INTEGER NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			notes TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL,
			CHECK (end_time > start_time),
			FOREIGN KEY (barber_id) REFERENCES barbers(id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_appointments_barber_range ON appointments(barber_id, start_time, end_time)`,
		`CREATE INDEX IF NOT EXISTS idx_appointments_email ON appointments(customer_email)`,
		`CREATE INDEX IF NOT EXISTS idx_appointments_status ON appointments(status)`,
		// NULL barber_id is a shop-wide closure.
		`CREATE TABLE IF NOT EXISTS blockouts (
			id TEXT PRIMARY KEY,
			barber_id TEXT,
			start_time INTEGER NOT NULL,
			end_time INTEGER NOT NULL,
			reason TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL,
			CHECK (end_time > start_time),
			FOREIGN KEY (barber_id) REFERENCES barbers(id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_blockouts_barber_range ON blockouts(barber_id, start_time, end_time)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("exec migration %s: %w", firstLine(query), err)
		}
	}
	return nil
}

func (db *DB) Close() error {
	return db.DB.Close()
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return s
}

func unix(t time.Time) int64 {
	return t.Unix()
}

func fromUnix(v int64) time.Time {
	return time.Unix(v, 0).UTC()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
