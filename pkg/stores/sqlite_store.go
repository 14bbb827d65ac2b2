package stores

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/openfroyo/cfgtree/pkg/engine"

	// SQLite driver
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore implements Store on a single SQLite file.
type SQLiteStore struct {
	db  *sql.DB
	cfg Config
}

// Config holds SQLite store configuration
type Config struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new SQLite store instance
func NewSQLiteStore(cfg Config) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	if cfg.MaxOpenConns == 0 {
		cfg.MaxOpenConns = 4
	}
	// every connection to :memory: opens a distinct database
	if cfg.Path == ":memory:" {
		cfg.MaxOpenConns = 1
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = cfg.MaxOpenConns
	}
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = 5 * time.Minute
	}

	return &SQLiteStore{cfg: cfg}, nil
}

// Init opens the database and enables WAL mode and foreign keys.
func (s *SQLiteStore) Init(ctx context.Context) error {
	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_txlock=immediate", s.cfg.Path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(s.cfg.MaxOpenConns)
	db.SetMaxIdleConns(s.cfg.MaxIdleConns)
	db.SetConnMaxLifetime(s.cfg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	s.db = db
	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate brings the schema up to date.
func (s *SQLiteStore) Migrate(_ context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	driver, err := sqlite3.WithInstance(s.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// HealthCheck verifies the database connection is healthy
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}
	return s.db.PingContext(ctx)
}

// withTx runs fn in a transaction, rolling back when fn fails.
func (s *SQLiteStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// RecordResolution stores rec with its diagnostics and values.
func (s *SQLiteStore) RecordResolution(ctx context.Context, rec *Record) error {
	features, err := json.Marshal(nonNil(rec.Features))
	if err != nil {
		return fmt.Errorf("failed to encode features: %w", err)
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO resolutions (
				id, recorded_at, command, mode, features, outcome,
				options, errors, warnings, duration_ms, error
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			rec.ID,
			rec.RecordedAt.UnixNano(),
			rec.Command,
			rec.Mode,
			string(features),
			string(rec.Outcome),
			rec.Options,
			rec.Errors,
			rec.Warnings,
			rec.Duration.Milliseconds(),
			rec.Error,
		)
		if err != nil {
			return fmt.Errorf("failed to create resolution: %w", err)
		}

		for i, d := range rec.Diagnostics {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO resolution_diagnostics (resolution_id, seq, path, kind, severity, message)
				VALUES (?, ?, ?, ?, ?, ?)`,
				rec.ID, i, d.Path, string(d.Kind), d.Severity.String(), d.Message,
			)
			if err != nil {
				return fmt.Errorf("failed to store diagnostic: %w", err)
			}
		}

		for path, v := range rec.Values {
			data, err := json.Marshal(v)
			if err != nil {
				return fmt.Errorf("failed to encode value %s: %w", path, err)
			}
			_, err = tx.ExecContext(ctx, `
				INSERT INTO resolution_values (resolution_id, path, value) VALUES (?, ?, ?)`,
				rec.ID, path, string(data),
			)
			if err != nil {
				return fmt.Errorf("failed to store value %s: %w", path, err)
			}
		}
		return nil
	})
}

const resolutionColumns = `id, recorded_at, command, mode, features, outcome, options, errors, warnings, duration_ms, error`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*Record, error) {
	rec := &Record{}
	var (
		recordedAt int64
		durationMS int64
		features   string
		outcome    string
	)
	err := row.Scan(
		&rec.ID,
		&recordedAt,
		&rec.Command,
		&rec.Mode,
		&features,
		&outcome,
		&rec.Options,
		&rec.Errors,
		&rec.Warnings,
		&durationMS,
		&rec.Error,
	)
	if err != nil {
		return nil, err
	}
	rec.RecordedAt = time.Unix(0, recordedAt)
	rec.Duration = time.Duration(durationMS) * time.Millisecond
	rec.Outcome = Outcome(outcome)
	if err := json.Unmarshal([]byte(features), &rec.Features); err != nil {
		return nil, fmt.Errorf("failed to decode features: %w", err)
	}
	return rec, nil
}

// GetResolution loads a record with its diagnostics and values.
func (s *SQLiteStore) GetResolution(ctx context.Context, id string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+resolutionColumns+` FROM resolutions WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get resolution: %w", err)
	}

	if rec.Diagnostics, err = s.diagnostics(ctx, id); err != nil {
		return nil, err
	}
	if rec.Values, err = s.values(ctx, id); err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *SQLiteStore) diagnostics(ctx context.Context, id string) ([]engine.Diagnostic, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT path, kind, severity, message
		FROM resolution_diagnostics
		WHERE resolution_id = ?
		ORDER BY seq`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list diagnostics: %w", err)
	}
	defer rows.Close()

	var out []engine.Diagnostic
	for rows.Next() {
		var d engine.Diagnostic
		var kind, severity string
		if err := rows.Scan(&d.Path, &kind, &severity, &d.Message); err != nil {
			return nil, fmt.Errorf("failed to scan diagnostic: %w", err)
		}
		d.Kind = engine.DiagnosticKind(kind)
		if err := d.Severity.UnmarshalText([]byte(severity)); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating diagnostics: %w", err)
	}
	return out, nil
}

func (s *SQLiteStore) values(ctx context.Context, id string) (map[string]any, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT path, value FROM resolution_values WHERE resolution_id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list values: %w", err)
	}
	defer rows.Close()

	out := map[string]any{}
	for rows.Next() {
		var path, data string
		if err := rows.Scan(&path, &data); err != nil {
			return nil, fmt.Errorf("failed to scan value: %w", err)
		}
		var v any
		if err := json.Unmarshal([]byte(data), &v); err != nil {
			return nil, fmt.Errorf("failed to decode value %s: %w", path, err)
		}
		out[path] = v
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating values: %w", err)
	}
	return out, nil
}

// ListResolutions lists records newest first, without diagnostics or values.
// A limit of zero or less returns every record.
func (s *SQLiteStore) ListResolutions(ctx context.Context, limit, offset int) ([]*Record, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+resolutionColumns+`
		FROM resolutions
		ORDER BY recorded_at DESC, rowid DESC
		LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list resolutions: %w", err)
	}
	defer rows.Close()

	records := []*Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan resolution: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating resolutions: %w", err)
	}
	return records, nil
}

// LatestResolution returns the newest record, or ErrNotFound.
func (s *SQLiteStore) LatestResolution(ctx context.Context) (*Record, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `SELECT id FROM resolutions ORDER BY recorded_at DESC, rowid DESC LIMIT 1`).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest resolution: %w", err)
	}
	return s.GetResolution(ctx, id)
}

// PruneResolutions deletes all but the newest keep records.
func (s *SQLiteStore) PruneResolutions(ctx context.Context, keep int) (int64, error) {
	if keep < 0 {
		return 0, fmt.Errorf("keep must not be negative: %d", keep)
	}
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM resolutions
		WHERE id NOT IN (
			SELECT id FROM resolutions ORDER BY recorded_at DESC, rowid DESC LIMIT ?
		)`, keep)
	if err != nil {
		return 0, fmt.Errorf("failed to prune resolutions: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

// ValuePaths returns the sorted paths of a record's values.
func (r *Record) ValuePaths() []string {
	out := make([]string, 0, len(r.Values))
	for p := range r.Values {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
