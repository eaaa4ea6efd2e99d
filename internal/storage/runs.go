package storage

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"nyql/internal/domain"
)

// RunStore implements domain.RunRecordStore using SQLite.
type RunStore struct {
	db *DB
}

// NewRunStore creates a new RunStore.
func NewRunStore(db *DB) *RunStore {
	return &RunStore{db: db}
}

// RecordRun inserts a run. Missing ID, start time and host are filled in.
func (s *RunStore) RecordRun(r *domain.RunRecord) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.StartedAt.IsZero() {
		r.StartedAt = time.Now()
	}
	if r.Host == "" {
		r.Host, _ = os.Hostname()
	}

	_, err := s.db.conn.Exec(
		`INSERT INTO runs (id, script, mode, dialect, result_kind, summary, started_at, duration_ms, error_kind, error, host)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Script, r.Mode, string(r.Dialect), r.ResultKind, r.Summary,
		r.StartedAt.UTC(), r.DurationMs, r.ErrorKind, r.Error, r.Host,
	)
	if err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	return nil
}

// ListRuns returns the most recent runs first. A limit of 0 or less returns
// every run.
func (s *RunStore) ListRuns(limit int) ([]domain.RunRecord, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.conn.Query(
		`SELECT id, script, mode, dialect, result_kind, summary, started_at, duration_ms, error_kind, error, host
		 FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []domain.RunRecord
	for rows.Next() {
		var r domain.RunRecord
		var dialect string
		if err := rows.Scan(&r.ID, &r.Script, &r.Mode, &dialect, &r.ResultKind, &r.Summary,
			&r.StartedAt, &r.DurationMs, &r.ErrorKind, &r.Error, &r.Host); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.Dialect = domain.Dialect(dialect)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
