// Package history keeps a SQLite index of past runs so `history` can list
// them without scanning every execution log on disk.
package history

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/kingrea/amplihack-recipes/internal/runlog"
)

// ErrRunNotFound is returned by Get for unknown run ids.
var ErrRunNotFound = errors.New("history: run not found")

// Entry is one recorded run.
type Entry struct {
	RunID      string           `json:"run_id"`
	Recipe     string           `json:"recipe"`
	Source     string           `json:"source,omitempty"`
	Status     runlog.RunStatus `json:"status"`
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt time.Time        `json:"finished_at"`
	Steps      int              `json:"steps"`
	Completed  int              `json:"completed"`
	Skipped    int              `json:"skipped"`
	FailedStep string           `json:"failed_step,omitempty"`
	Error      string           `json:"error,omitempty"`
	DryRun     bool             `json:"dry_run,omitempty"`
	LogPath    string           `json:"log_path,omitempty"`
}

// Elapsed is the run's wall time.
func (e Entry) Elapsed() time.Duration {
	if e.FinishedAt.IsZero() {
		return 0
	}
	return e.FinishedAt.Sub(e.StartedAt)
}

// EntryFromLog summarizes a finished log.
func EntryFromLog(l *runlog.Log, logPath string) Entry {
	counts := l.Counts()
	entry := Entry{
		RunID:      l.RunID,
		Recipe:     l.Recipe,
		Source:     l.Source,
		Status:     l.Status,
		StartedAt:  l.StartedAt,
		FinishedAt: l.FinishedAt,
		Steps:      len(l.Results),
		Completed:  counts[runlog.StepCompleted],
		Skipped:    counts[runlog.StepSkipped],
		Error:      l.Error,
		DryRun:     l.Options.DryRun,
		LogPath:    logPath,
	}
	if failed, ok := l.Failed(); ok {
		entry.FailedStep = failed.StepID
	}
	return entry
}

// Store is a run history backed by SQLite.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the history database at path.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("history: ensure dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("history: open %s: %w", path, err)
	}
	// one writer at a time; SQLite serializes anyway
	db.SetMaxOpenConns(1)
	store, err := New(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// New initializes the schema in db and returns a store over it.
func New(db *sql.DB) (*Store, error) {
	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("history: init schema: %w", err)
	}
	return s, nil
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			recipe TEXT NOT NULL,
			source TEXT,
			status TEXT NOT NULL,
			started_at TEXT NOT NULL,
			finished_at TEXT,
			steps INTEGER NOT NULL,
			completed INTEGER NOT NULL,
			skipped INTEGER NOT NULL,
			failed_step TEXT,
			error TEXT,
			dry_run INTEGER NOT NULL,
			log_path TEXT
		);
		CREATE INDEX IF NOT EXISTS runs_started_at ON runs (started_at);`,
	)
	return err
}

// Record inserts or replaces the entry for a run.
func (s *Store) Record(e Entry) error {
	if e.RunID == "" {
		return fmt.Errorf("history: run id is required")
	}
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO runs
			(run_id, recipe, source, status, started_at, finished_at, steps, completed, skipped, failed_step, error, dry_run, log_path)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.RunID,
		e.Recipe,
		e.Source,
		string(e.Status),
		formatTime(e.StartedAt),
		formatTime(e.FinishedAt),
		e.Steps,
		e.Completed,
		e.Skipped,
		e.FailedStep,
		e.Error,
		e.DryRun,
		e.LogPath,
	)
	if err != nil {
		return fmt.Errorf("history: record %s: %w", e.RunID, err)
	}
	return nil
}

// List returns the most recent runs first. A limit of zero or less returns
// every run.
func (s *Store) List(limit int) ([]Entry, error) {
	query := `SELECT run_id, recipe, source, status, started_at, finished_at, steps, completed, skipped, failed_step, error, dry_run, log_path
		FROM runs ORDER BY started_at DESC, run_id`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("history: list: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: list: %w", err)
	}
	return out, nil
}

// Get returns one run by id.
func (s *Store) Get(runID string) (Entry, error) {
	row := s.db.QueryRow(`
		SELECT run_id, recipe, source, status, started_at, finished_at, steps, completed, skipped, failed_step, error, dry_run, log_path
		FROM runs WHERE run_id = ?`, runID)
	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, ErrRunNotFound
	}
	return entry, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (Entry, error) {
	var (
		e                        Entry
		status, started          string
		source, finished, failed sql.NullString
		errText, logPath         sql.NullString
	)
	err := row.Scan(&e.RunID, &e.Recipe, &source, &status, &started, &finished,
		&e.Steps, &e.Completed, &e.Skipped, &failed, &errText, &e.DryRun, &logPath)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Entry{}, err
		}
		return Entry{}, fmt.Errorf("history: scan: %w", err)
	}
	e.Status = runlog.RunStatus(status)
	e.Source = source.String
	e.FailedStep = failed.String
	e.Error = errText.String
	e.LogPath = logPath.String
	if e.StartedAt, err = parseTime(started); err != nil {
		return Entry{}, err
	}
	if e.FinishedAt, err = parseTime(finished.String); err != nil {
		return Entry{}, err
	}
	return e, nil
}

// timeLayout has fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("history: invalid timestamp %q", value)
	}
	return t, nil
}

// Sink records finished runs into a store. It satisfies runlog.Sink so it can
// sit next to the file sink in a runlog.MultiSink.
type Sink struct {
	Store   *Store
	LogPath string
}

// Write implements runlog.Sink.
func (s Sink) Write(l *runlog.Log) error {
	if s.Store == nil || l == nil {
		return nil
	}
	return s.Store.Record(EntryFromLog(l, s.LogPath))
}
