// Package registry keeps a local SQLite ledger of issued licenses.
package registry

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/MacJediWizard/scanmaster/internal/license"
)

// timeLayout is a fixed-width UTC timestamp so text columns sort chronologically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// ErrNotFound is returned when no license matches the lookup.
var ErrNotFound = errors.New("license not found in registry")

// ErrDuplicateKey is returned when a license key is already registered.
var ErrDuplicateKey = errors.New("license key already registered")

// Entry is a registered license.
type Entry struct {
	ID        uuid.UUID       `json:"id"`
	Record    *license.Record `json:"record"`
	CreatedAt time.Time       `json:"createdAt"`
}

// ListFilter narrows List results. Zero values match everything.
type ListFilter struct {
	FactoryID string
	Limit     int
}

// Store is a SQLite-backed license registry. It satisfies license.Store.
type Store struct {
	db     *sql.DB
	logger zerolog.Logger
}

// Open opens or creates the registry database at path.
func Open(path string, logger zerolog.Logger) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("create registry directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	store := &Store{
		db:     db,
		logger: logger.With().Str("component", "license_registry").Logger(),
	}

	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	store.logger.Debug().Str("path", path).Msg("license registry opened")

	return store, nil
}

// migrate creates the necessary tables.
func (s *Store) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS issued_licenses (
			id TEXT PRIMARY KEY,
			factory_id TEXT NOT NULL,
			factory_name TEXT NOT NULL,
			license_key TEXT NOT NULL UNIQUE,
			standards TEXT NOT NULL,
			expiry_date TEXT,
			max_users INTEGER,
			total_price REAL NOT NULL DEFAULT 0,
			generated_at TEXT NOT NULL,
			record TEXT NOT NULL,
			created_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_issued_licenses_factory_id ON issued_licenses(factory_id);
		CREATE INDEX IF NOT EXISTS idx_issued_licenses_generated_at ON issued_licenses(generated_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// SaveRecord registers a newly issued license.
func (s *Store) SaveRecord(ctx context.Context, rec *license.Record) error {
	_, err := s.Insert(ctx, rec)
	return err
}

// Insert registers rec and returns its entry.
func (s *Store) Insert(ctx context.Context, rec *license.Record) (*Entry, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("marshal license record: %w", err)
	}

	var expiry sql.NullString
	if rec.ExpiryDate != nil {
		expiry = sql.NullString{String: rec.ExpiryDate.UTC().Format(time.RFC3339), Valid: true}
	}
	var maxUsers sql.NullInt64
	if rec.MaxUsers != nil {
		maxUsers = sql.NullInt64{Int64: int64(*rec.MaxUsers), Valid: true}
	}

	entry := &Entry{ID: uuid.New(), Record: rec, CreatedAt: time.Now().UTC()}

	query := `
		INSERT INTO issued_licenses (id, factory_id, factory_name, license_key, standards, expiry_date, max_users, total_price, generated_at, record, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = s.db.ExecContext(ctx, query,
		entry.ID.String(),
		rec.FactoryID,
		rec.FactoryName,
		rec.LicenseKey,
		strings.Join(rec.StandardsShortCodes, ","),
		expiry,
		maxUsers,
		rec.TotalPrice,
		rec.GeneratedAt.UTC().Format(timeLayout),
		string(data),
		entry.CreatedAt.Format(timeLayout),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateKey, license.MaskKey(rec.LicenseKey))
		}
		return nil, fmt.Errorf("insert license: %w", err)
	}

	s.logger.Debug().
		Str("id", entry.ID.String()).
		Str("factory_id", rec.FactoryID).
		Msg("license registered")

	return entry, nil
}

// Get returns the entry with the given id.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*Entry, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, record, created_at FROM issued_licenses WHERE id = ?`, id.String())
	return scanEntry(row)
}

// FindByKey returns the entry holding licenseKey.
func (s *Store) FindByKey(ctx context.Context, licenseKey string) (*Entry, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, record, created_at FROM issued_licenses WHERE license_key = ?`, strings.TrimSpace(licenseKey))
	return scanEntry(row)
}

// List returns registered licenses, newest first.
func (s *Store) List(ctx context.Context, filter ListFilter) ([]*Entry, error) {
	query := `SELECT id, record, created_at FROM issued_licenses`
	var args []any
	if filter.FactoryID != "" {
		query += ` WHERE factory_id = ?`
		args = append(args, filter.FactoryID)
	}
	query += ` ORDER BY generated_at DESC, created_at DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query licenses: %w", err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate licenses: %w", err)
	}
	return entries, nil
}

// Count returns the number of registered licenses.
func (s *Store) Count(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM issued_licenses`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count licenses: %w", err)
	}
	return count, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (*Entry, error) {
	var idStr, recordJSON, createdAtStr string
	if err := row.Scan(&idStr, &recordJSON, &createdAtStr); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan license row: %w", err)
	}

	id, err := uuid.Parse(idStr)
	if err != nil {
		return nil, fmt.Errorf("parse license id: %w", err)
	}

	var rec license.Record
	if err := json.Unmarshal([]byte(recordJSON), &rec); err != nil {
		return nil, fmt.Errorf("decode license record: %w", err)
	}

	createdAt, err := time.Parse(timeLayout, createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}

	return &Entry{ID: id, Record: &rec, CreatedAt: createdAt}, nil
}
