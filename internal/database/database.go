package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
	"github.com/rs/zerolog"
)

// DB wraps the sql connection pool for the reservation store.
type DB struct {
	*sql.DB
	logger *zerolog.Logger
}

var (
	// ErrNotFound is returned when a reservation, occurrence, category or
	// payment link does not exist.
	ErrNotFound = errors.New("not found")
)

// NewDB opens (and if needed creates) the sqlite database at path and
// ensures the schema exists.
func NewDB(path string, logger *zerolog.Logger) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// WAL mode and busy timeout keep concurrent request-scoped writers from
	// tripping over each other.
	dsn := path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_foreign_keys=on"
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

	instance := &DB{DB: db, logger: logger}
	if err := instance.createTables(); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	logger.Info().Str("path", path).Msg("Database initialized")
	return instance, nil
}

func (db *DB) createTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS facilities (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			building_id INTEGER NOT NULL,
			name TEXT NOT NULL,
			calendar_id TEXT NOT NULL DEFAULT '',
			time_zone TEXT NOT NULL DEFAULT 'UTC',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS categories (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			facility_id INTEGER NOT NULL,
			name TEXT NOT NULL,
			price_cents INTEGER NOT NULL DEFAULT 0,
			unit TEXT NOT NULL DEFAULT 'hour',
			flat BOOLEAN NOT NULL DEFAULT 0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (facility_id) REFERENCES facilities(id)
		)`,

		`CREATE TABLE IF NOT EXISTS reservations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			requester_id INTEGER NOT NULL,
			facility_id INTEGER NOT NULL,
			category_id INTEGER NOT NULL,
			event_name TEXT NOT NULL,
			contact_name TEXT NOT NULL DEFAULT '',
			contact_email TEXT NOT NULL DEFAULT '',
			contact_phone TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'pending',
			paid BOOLEAN NOT NULL DEFAULT 0,
			cost_override_cents INTEGER,
			payment_link_id TEXT,
			payment_link_url TEXT,
			details TEXT NOT NULL DEFAULT '',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (facility_id) REFERENCES facilities(id),
			FOREIGN KEY (category_id) REFERENCES categories(id)
		)`,

		`CREATE TABLE IF NOT EXISTS date_occurrences (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			reservation_id INTEGER NOT NULL,
			start_time DATETIME NOT NULL,
			end_time DATETIME NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			calendar_event_id TEXT NOT NULL DEFAULT '',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (reservation_id) REFERENCES reservations(id) ON DELETE CASCADE
		)`,

		`CREATE TABLE IF NOT EXISTS fees (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			reservation_id INTEGER NOT NULL,
			amount_cents INTEGER NOT NULL DEFAULT 0,
			fee_type TEXT NOT NULL DEFAULT '',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (reservation_id) REFERENCES reservations(id) ON DELETE CASCADE
		)`,

		`CREATE TABLE IF NOT EXISTS recipients (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL DEFAULT '',
			email TEXT NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS recipient_buildings (
			recipient_id INTEGER NOT NULL,
			building_id INTEGER NOT NULL,
			notify BOOLEAN NOT NULL DEFAULT 0,
			PRIMARY KEY (recipient_id, building_id),
			FOREIGN KEY (recipient_id) REFERENCES recipients(id) ON DELETE CASCADE
		)`,

		`CREATE TABLE IF NOT EXISTS outbox_tasks (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			task_type TEXT NOT NULL,
			subject_id INTEGER NOT NULL,
			dedup_key TEXT,
			payload TEXT,
			status TEXT NOT NULL DEFAULT 'pending',
			retry_count INTEGER NOT NULL DEFAULT 0,
			last_error TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			processed_at DATETIME,
			next_retry_at DATETIME
		)`,

		`CREATE INDEX IF NOT EXISTS idx_reservations_status ON reservations(status)`,
		`CREATE INDEX IF NOT EXISTS idx_reservations_facility ON reservations(facility_id)`,
		`CREATE INDEX IF NOT EXISTS idx_reservations_payment_link ON reservations(payment_link_id)`,
		`CREATE INDEX IF NOT EXISTS idx_occurrences_reservation ON date_occurrences(reservation_id)`,
		`CREATE INDEX IF NOT EXISTS idx_occurrences_status ON date_occurrences(status)`,
		`CREATE INDEX IF NOT EXISTS idx_occurrences_start ON date_occurrences(start_time)`,
		`CREATE INDEX IF NOT EXISTS idx_fees_reservation ON fees(reservation_id)`,
		`CREATE INDEX IF NOT EXISTS idx_recipient_buildings ON recipient_buildings(building_id, notify)`,
		`CREATE INDEX IF NOT EXISTS idx_outbox_status ON outbox_tasks(status)`,
		`CREATE INDEX IF NOT EXISTS idx_outbox_next_retry ON outbox_tasks(next_retry_at)`,
		// Dedup applies to queued work only; a finished task never blocks a
		// later re-enqueue of the same effect.
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_outbox_dedup ON outbox_tasks(dedup_key) WHERE status = 'pending'`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("error executing query %s: %w", query, err)
		}
	}

	return db.ensureNewColumns()
}

// ensureNewColumns applies additive migrations to existing tables.
func (db *DB) ensureNewColumns() error {
	migrations := []string{
		`ALTER TABLE reservations ADD COLUMN payment_link_url TEXT`,
		`ALTER TABLE facilities ADD COLUMN time_zone TEXT NOT NULL DEFAULT 'UTC'`,
	}

	for _, m := range migrations {
		_, err := db.Exec(m)
		if err != nil && !strings.Contains(strings.ToLower(err.Error()), "duplicate column") {
			if db.logger != nil {
				db.logger.Debug().Err(err).Str("migration", m).Msg("Migration skipped")
			}
		}
	}
	return nil
}

// WithTx runs fn inside a transaction, rolling back on error.
func (db *DB) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (db *DB) Close() error {
	return db.DB.Close()
}
