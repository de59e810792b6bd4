// Package runstore persists the sweep run registry and the filename
// allocator's counter in a sqlite database. Each sweep gets a uuid run id,
// its output filenames and a status that follows the run lifecycle.
package runstore

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Run status values, in lifecycle order.
const (
	StatusRunning = "running"
	StatusPaused  = "paused"
	StatusDone    = "done"
	StatusAborted = "aborted"
	StatusError   = "error"
)

// Run is one recorded sweep run.
type Run struct {
	ID         string
	Name       string
	Status     string
	Filenames  []string
	Iterations int64
	StartedAt  time.Time
	FinishedAt *time.Time
}

type Store struct {
	*sql.DB
}

// Open opens (creating if needed) the run store at path and applies pending
// migrations. Use ":memory:" for an ephemeral store.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening run store: %w", err)
	}
	s := &Store{db}
	if err := s.MigrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// CreateRun registers a new run in the running state and returns it.
func (s *Store) CreateRun(name string) (*Run, error) {
	run := &Run{
		ID:        uuid.New().String(),
		Name:      name,
		Status:    StatusRunning,
		StartedAt: time.Now().UTC(),
	}
	_, err := s.Exec(
		`INSERT INTO sweep_runs (id, name, status, filenames, started_at) VALUES (?, ?, ?, '[]', ?)`,
		run.ID, run.Name, run.Status, run.StartedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("creating run %s: %w", name, err)
	}
	return run, nil
}

// SetStatus updates a run's status.
func (s *Store) SetStatus(id, status string) error {
	res, err := s.Exec(`UPDATE sweep_runs SET status = ? WHERE id = ?`, status, id)
	if err != nil {
		return fmt.Errorf("updating run %s status: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run %s not found", id)
	}
	return nil
}

// FinishRun records the final status, iteration count and finish time.
func (s *Store) FinishRun(id, status string, iterations int64) error {
	res, err := s.Exec(
		`UPDATE sweep_runs SET status = ?, iterations = ?, finished_at = ? WHERE id = ?`,
		status, iterations, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("finishing run %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run %s not found", id)
	}
	return nil
}

// AddFilename appends an output filename to the run's file list.
func (s *Store) AddFilename(id, filename string) error {
	tx, err := s.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var raw string
	if err := tx.QueryRow(`SELECT filenames FROM sweep_runs WHERE id = ?`, id).Scan(&raw); err != nil {
		if err == sql.ErrNoRows {
			return fmt.Errorf("run %s not found", id)
		}
		return fmt.Errorf("loading run %s filenames: %w", id, err)
	}
	var names []string
	if err := json.Unmarshal([]byte(raw), &names); err != nil {
		return fmt.Errorf("decoding run %s filenames: %w", id, err)
	}
	names = append(names, filename)
	enc, err := json.Marshal(names)
	if err != nil {
		return err
	}
	if _, err := tx.Exec(`UPDATE sweep_runs SET filenames = ? WHERE id = ?`, string(enc), id); err != nil {
		return fmt.Errorf("updating run %s filenames: %w", id, err)
	}
	return tx.Commit()
}

// GetRun loads one run by id.
func (s *Store) GetRun(id string) (*Run, error) {
	row := s.QueryRow(
		`SELECT id, name, status, filenames, iterations, started_at, finished_at FROM sweep_runs WHERE id = ?`,
		id,
	)
	return scanRun(row)
}

// ListRuns returns the most recent runs, newest first.
func (s *Store) ListRuns(limit int) ([]*Run, error) {
	rows, err := s.Query(
		`SELECT id, name, status, filenames, iterations, started_at, finished_at
		 FROM sweep_runs ORDER BY started_at DESC, id LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	var (
		run      Run
		raw      string
		finished sql.NullTime
	)
	err := row.Scan(&run.ID, &run.Name, &run.Status, &raw, &run.Iterations, &run.StartedAt, &finished)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run not found")
	}
	if err != nil {
		return nil, fmt.Errorf("scanning run: %w", err)
	}
	if err := json.Unmarshal([]byte(raw), &run.Filenames); err != nil {
		return nil, fmt.Errorf("decoding run %s filenames: %w", run.ID, err)
	}
	if finished.Valid {
		t := finished.Time
		run.FinishedAt = &t
	}
	return &run, nil
}

const fileCounterName = "next_file_i"

// NextFileIndex returns the persisted filename counter, creating it at zero
// on first use. Implements filename.CounterStore.
func (s *Store) NextFileIndex() (int, error) {
	var v int
	err := s.QueryRow(`SELECT value FROM counters WHERE name = ?`, fileCounterName).Scan(&v)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("loading file counter: %w", err)
	}
	return v, nil
}

// SetNextFileIndex persists the filename counter.
func (s *Store) SetNextFileIndex(i int) error {
	_, err := s.Exec(
		`INSERT INTO counters (name, value) VALUES (?, ?)
		 ON CONFLICT(name) DO UPDATE SET value = excluded.value`,
		fileCounterName, i,
	)
	if err != nil {
		return fmt.Errorf("saving file counter: %w", err)
	}
	return nil
}
