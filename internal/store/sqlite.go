// Package store persists crash reports in a local SQLite database so past
// fatal conditions survive the process that produced them.
package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/hugo-lorenzo-mato/crashtrace/internal/core"
	"github.com/hugo-lorenzo-mato/crashtrace/internal/terminate"
	"github.com/hugo-lorenzo-mato/crashtrace/internal/wire"
)

//go:embed migrations/001_initial_schema.sql
var migrationV1 string

// Report is a persisted crash report row.
type Report struct {
	ID          string
	CreatedAt   time.Time
	Kind        string
	Message     string
	Source      string
	Signal      string
	MemoryBytes uint64
	Report      string // rendered human-readable report
	Encoded     []byte // wire-encoded aggregated stack, may be nil
}

// SQLiteReportStore implements report persistence with SQLite storage.
type SQLiteReportStore struct {
	dbPath string
	db     *sql.DB // Write connection
	readDB *sql.DB // Read-only connection
	mu     sync.RWMutex

	// Retry configuration
	maxRetries    int
	baseRetryWait time.Duration
}

// NewSQLiteReportStore creates a new SQLite-based report store.
func NewSQLiteReportStore(dbPath string) (*SQLiteReportStore, error) {
	s := &SQLiteReportStore{
		dbPath:        dbPath,
		maxRetries:    5,
		baseRetryWait: 100 * time.Millisecond,
	}

	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating store directory: %w", err)
	}

	// Open write connection with WAL mode
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening write database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	s.db = db

	// Open read-only connection
	readDB, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&mode=ro&_pragma=busy_timeout(1000)")
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("opening read database: %w", err)
	}
	readDB.SetMaxOpenConns(10)
	readDB.SetMaxIdleConns(5)
	readDB.SetConnMaxLifetime(5 * time.Minute)
	s.readDB = readDB

	if err := s.migrate(); err != nil {
		_ = db.Close()
		_ = readDB.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// migrate runs database migrations.
func (s *SQLiteReportStore) migrate() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS report_schema_migrations (
		version INTEGER PRIMARY KEY,
		applied_at TEXT NOT NULL
	)`)
	if err != nil {
		return fmt.Errorf("creating migrations table: %w", err)
	}

	var currentVersion int
	row := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM report_schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("checking schema version: %w", err)
	}

	migrations := []string{migrationV1}
	for i, migration := range migrations {
		version := i + 1
		if version <= currentVersion {
			continue
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning migration transaction: %w", err)
		}

		for _, stmt := range splitStatements(migration) {
			if _, err := tx.Exec(stmt); err != nil {
				_ = tx.Rollback()
				return fmt.Errorf("executing migration v%d: %w", version, err)
			}
		}

		if _, err := tx.Exec(
			"INSERT INTO report_schema_migrations (version, applied_at) VALUES (?, ?)",
			version, time.Now().UTC().Format(time.RFC3339),
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("recording migration v%d: %w", version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration v%d: %w", version, err)
		}
	}

	return nil
}

// splitStatements splits a SQL script into individual statements.
func splitStatements(script string) []string {
	var statements []string
	for _, stmt := range strings.Split(script, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		lines := strings.Split(stmt, "\n")
		var sqlLines []string
		for _, line := range lines {
			trimmed := strings.TrimSpace(line)
			if trimmed != "" && !strings.HasPrefix(trimmed, "--") {
				sqlLines = append(sqlLines, line)
			}
		}
		if len(sqlLines) > 0 {
			statements = append(statements, strings.Join(sqlLines, "\n"))
		}
	}
	return statements
}

// retryWrite executes a write operation with retry logic.
func (s *SQLiteReportStore) retryWrite(ctx context.Context, operation string, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if err := fn(); err != nil {
			if isSQLiteBusy(err) {
				lastErr = err
				wait := s.baseRetryWait * time.Duration(1<<attempt)
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(wait):
					continue
				}
			}
			return err
		}
		return nil
	}
	return fmt.Errorf("%s failed after %d retries: %w", operation, s.maxRetries, lastErr)
}

// isSQLiteBusy checks if an error is a SQLite busy/locked error.
func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "SQLITE_LOCKED")
}

// Save persists a report.
func (s *SQLiteReportStore) Save(ctx context.Context, r *Report) error {
	return s.retryWrite(ctx, "Save", func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO reports (id, created_at, kind, message, source, signal, memory_bytes, report, encoded)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				created_at = excluded.created_at,
				kind = excluded.kind,
				message = excluded.message,
				source = excluded.source,
				signal = excluded.signal,
				memory_bytes = excluded.memory_bytes,
				report = excluded.report,
				encoded = excluded.encoded
		`,
			r.ID,
			r.CreatedAt.UTC().Format(time.RFC3339Nano),
			r.Kind,
			r.Message,
			r.Source,
			r.Signal,
			int64(r.MemoryBytes),
			r.Report,
			r.Encoded,
		)
		return err
	})
}

// Get retrieves a report by ID.
func (s *SQLiteReportStore) Get(ctx context.Context, id string) (*Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.readDB.QueryRowContext(ctx, `
		SELECT id, created_at, kind, message, source, signal, memory_bytes, report, encoded
		FROM reports WHERE id = ?
	`, id)

	r, err := scanReport(row)
	if err == sql.ErrNoRows {
		return nil, core.ErrNotFound("report", id)
	}
	if err != nil {
		return nil, fmt.Errorf("scanning report: %w", err)
	}
	return r, nil
}

// List returns the most recent reports, newest first. A non-positive limit
// returns all of them.
func (s *SQLiteReportStore) List(ctx context.Context, limit int) ([]*Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	q := `
		SELECT id, created_at, kind, message, source, signal, memory_bytes, report, encoded
		FROM reports
		ORDER BY created_at DESC
	`
	var rows *sql.Rows
	var err error
	if limit > 0 {
		rows, err = s.readDB.QueryContext(ctx, q+" LIMIT ?", limit)
	} else {
		rows, err = s.readDB.QueryContext(ctx, q)
	}
	if err != nil {
		return nil, fmt.Errorf("querying reports: %w", err)
	}
	defer rows.Close()

	var reports []*Report
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning report: %w", err)
		}
		reports = append(reports, r)
	}
	return reports, rows.Err()
}

// Delete removes a report.
func (s *SQLiteReportStore) Delete(ctx context.Context, id string) error {
	return s.retryWrite(ctx, "Delete", func() error {
		_, err := s.db.ExecContext(ctx, "DELETE FROM reports WHERE id = ?", id)
		return err
	})
}

// Prune deletes all but the newest keep reports.
func (s *SQLiteReportStore) Prune(ctx context.Context, keep int) error {
	if keep < 0 {
		keep = 0
	}
	return s.retryWrite(ctx, "Prune", func() error {
		_, err := s.db.ExecContext(ctx, `
			DELETE FROM reports WHERE id NOT IN (
				SELECT id FROM reports ORDER BY created_at DESC LIMIT ?
			)
		`, keep)
		return err
	})
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReport(row rowScanner) (*Report, error) {
	var r Report
	var createdAt string
	var message, source, signal sql.NullString
	var memoryBytes int64

	err := row.Scan(&r.ID, &createdAt, &r.Kind, &message, &source, &signal, &memoryBytes, &r.Report, &r.Encoded)
	if err != nil {
		return nil, err
	}

	r.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	r.Message = message.String
	r.Source = source.String
	r.Signal = signal.String
	r.MemoryBytes = uint64(memoryBytes)
	return &r, nil
}

// StoreReport implements the termination pipeline sink: it converts the
// abort error into a report row with a fresh id and saves it. The pipeline
// is already past the point of no return when this runs, so the write gets
// a short deadline instead of blocking termination.
func (s *SQLiteReportStore) StoreReport(abortErr *terminate.AbortError) error {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	r := &Report{
		ID:          uuid.NewString(),
		CreatedAt:   abortErr.Time,
		Kind:        abortErr.Kind.String(),
		Message:     abortErr.Message,
		Source:      abortErr.Source,
		MemoryBytes: abortErr.Bytes,
		Report:      abortErr.Report(),
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	if abortErr.Signal != nil {
		r.Signal = terminate.SignalName(abortErr.Signal)
	}
	if !abortErr.Stack.Empty() {
		r.Encoded = wire.PackTree(abortErr.Stack)
	}
	return s.Save(ctx, r)
}

// Close closes both database connections.
func (s *SQLiteReportStore) Close() error {
	var errs []error
	if s.readDB != nil {
		if err := s.readDB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing read connection: %w", err))
		}
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing write connection: %w", err))
		}
	}
	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}
