// Package history maintains the SQLite session index behind
// `reldo sessions`. It implements session.Index so the recorder can
// insert sessions as they begin and update them on finalize.
package history

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/reldo-dev/reldo/internal/session"
)

// ErrNotFound is returned by Get for unknown session ids.
var ErrNotFound = errors.New("session not found")

// Store wraps the SQLite connection.
type Store struct {
	sql  *sql.DB
	path string
}

// DefaultPath returns the index location under the review output dir.
func DefaultPath(outputDir string) string {
	return filepath.Join(outputDir, "history.db")
}

// Open opens or creates the index, applies pragmas, and migrates the schema.
func Open(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("creating history dir: %w", err)
	}

	sqlDB, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening history db: %w", err)
	}

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping history db: %w", err)
	}

	if err := applyPragmas(sqlDB); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}

	if err := migrate(sqlDB); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}

	return &Store{sql: sqlDB, path: dbPath}, nil
}

// Close closes the underlying connection.
func (s *Store) Close() error {
	if s == nil || s.sql == nil {
		return nil
	}
	return s.sql.Close()
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA foreign_keys=ON;",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("setting pragma %q: %w", pragma, err)
		}
	}
	return nil
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS sessions (
    id             TEXT PRIMARY KEY,
    started_at     DATETIME NOT NULL,
    completed_at   DATETIME,
    status         TEXT NOT NULL,
    prompt         TEXT NOT NULL,
    total_tokens   INTEGER NOT NULL DEFAULT 0,
    total_cost_usd REAL NOT NULL DEFAULT 0,
    duration_ms    INTEGER NOT NULL DEFAULT 0,
    error          TEXT
);

CREATE INDEX IF NOT EXISTS idx_sessions_started ON sessions(started_at DESC);
`

func migrate(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("migrating sessions table: %w", err)
	}
	return nil
}

// InsertSession records a session at begin time.
func (s *Store) InsertSession(rec session.Record) error {
	_, err := s.sql.Exec(`
		INSERT INTO sessions (id, started_at, status, prompt)
		VALUES (?, ?, ?, ?)`,
		rec.ID, rec.StartedAt.UTC(), rec.Status, rec.Prompt)
	if err != nil {
		return fmt.Errorf("inserting session %s: %w", rec.ID, err)
	}
	return nil
}

// UpdateSession records the terminal state of a session.
func (s *Store) UpdateSession(rec session.Record) error {
	var errText any
	if rec.Error != "" {
		errText = rec.Error
	}
	_, err := s.sql.Exec(`
		UPDATE sessions
		SET completed_at = ?, status = ?, total_tokens = ?,
		    total_cost_usd = ?, duration_ms = ?, error = ?
		WHERE id = ?`,
		rec.CompletedAt.UTC(), rec.Status, rec.TotalTokens,
		rec.TotalCostUSD, rec.DurationMS, errText, rec.ID)
	if err != nil {
		return fmt.Errorf("updating session %s: %w", rec.ID, err)
	}
	return nil
}

// List returns up to n sessions, newest first. n <= 0 means all.
func (s *Store) List(n int) ([]session.Record, error) {
	query := `
		SELECT id, started_at, completed_at, status, prompt,
		       total_tokens, total_cost_usd, duration_ms, error
		FROM sessions ORDER BY started_at DESC`
	args := []any{}
	if n > 0 {
		query += " LIMIT ?"
		args = append(args, n)
	}

	rows, err := s.sql.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []session.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Get returns one session by id.
func (s *Store) Get(id string) (session.Record, error) {
	row := s.sql.QueryRow(`
		SELECT id, started_at, completed_at, status, prompt,
		       total_tokens, total_cost_usd, duration_ms, error
		FROM sessions WHERE id = ?`, id)

	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return session.Record{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return rec, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (session.Record, error) {
	var rec session.Record
	var completed sql.NullTime
	var errText sql.NullString

	err := row.Scan(&rec.ID, &rec.StartedAt, &completed, &rec.Status, &rec.Prompt,
		&rec.TotalTokens, &rec.TotalCostUSD, &rec.DurationMS, &errText)
	if err != nil {
		return session.Record{}, err
	}

	if completed.Valid {
		rec.CompletedAt = completed.Time
	}
	if errText.Valid {
		rec.Error = errText.String
	}
	rec.StartedAt = rec.StartedAt.In(time.UTC)
	rec.CompletedAt = rec.CompletedAt.In(time.UTC)
	return rec, nil
}
