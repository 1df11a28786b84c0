// Package store keeps finished missions and their phase attempts in SQLite.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	// SQLite driver
	_ "modernc.org/sqlite"

	"candlebot/internal/metrics"
	"candlebot/internal/supervisor"
)

const schema = `
CREATE TABLE IF NOT EXISTS missions (
	id           TEXT PRIMARY KEY,
	started_at   TIMESTAMP NOT NULL,
	ended_at     TIMESTAMP NOT NULL,
	duration_ms  INTEGER NOT NULL,
	final_state  TEXT NOT NULL,
	succeeded    INTEGER NOT NULL,
	fallback_run INTEGER NOT NULL,
	err          TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS phases (
	mission_id          TEXT NOT NULL REFERENCES missions(id) ON DELETE CASCADE,
	seq                 INTEGER NOT NULL,
	state               TEXT NOT NULL,
	attempt             INTEGER NOT NULL,
	started_at          TIMESTAMP NOT NULL,
	ended_at            TIMESTAMP NOT NULL,
	duration_ms         INTEGER NOT NULL,
	outcome             TEXT NOT NULL,
	samples             INTEGER NOT NULL,
	perception_failures INTEGER NOT NULL,
	cancel_requests     INTEGER NOT NULL,
	err                 TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (mission_id, seq)
);
CREATE INDEX IF NOT EXISTS idx_missions_started ON missions(started_at);
`

var ErrNotFound = errors.New("mission not found")

// Store records finished missions. It satisfies supervisor.Recorder; only
// the mission-finished hook writes.
type Store struct {
	supervisor.NopRecorder

	db  *sql.DB
	log zerolog.Logger
}

func Open(ctx context.Context, path string, logger zerolog.Logger) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return &Store{db: db, log: logger.With().Str("component", "store").Logger()}, nil
}

func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *Store) MissionFinished(_ string, mm *metrics.MissionMetrics) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.SaveMission(ctx, mm); err != nil {
		s.log.Error().Err(err).Str("mission_id", mm.MissionID).Msg("failed to save mission")
	}
}

// SaveMission writes a mission and its phases, replacing any earlier copy.
func (s *Store) SaveMission(ctx context.Context, mm *metrics.MissionMetrics) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM missions WHERE id = ?`, mm.MissionID); err != nil {
		return fmt.Errorf("failed to replace mission: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO missions (id, started_at, ended_at, duration_ms, final_state, succeeded, fallback_run, err)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		mm.MissionID, mm.Start.UTC(), mm.End.UTC(), mm.DurationMs, mm.FinalState, mm.Succeeded, mm.FallbackRun, mm.Err)
	if err != nil {
		return fmt.Errorf("failed to insert mission: %w", err)
	}

	for i, p := range mm.Phases {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO phases (mission_id, seq, state, attempt, started_at, ended_at, duration_ms, outcome, samples, perception_failures, cancel_requests, err)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			mm.MissionID, i, p.State, p.Attempt, p.Start.UTC(), p.End.UTC(), p.DurationMs, p.Outcome,
			p.Samples, p.PerceptionFailures, p.CancelRequests, p.Err)
		if err != nil {
			return fmt.Errorf("failed to insert phase %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit mission: %w", err)
	}
	return nil
}

// ListMissions returns the most recent missions first, without phases.
func (s *Store) ListMissions(ctx context.Context, limit int) ([]metrics.MissionMetrics, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, started_at, ended_at, duration_ms, final_state, succeeded, fallback_run, err
		 FROM missions ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query missions: %w", err)
	}
	defer rows.Close()

	var out []metrics.MissionMetrics
	for rows.Next() {
		var m metrics.MissionMetrics
		if err := rows.Scan(&m.MissionID, &m.Start, &m.End, &m.DurationMs, &m.FinalState, &m.Succeeded, &m.FallbackRun, &m.Err); err != nil {
			return nil, fmt.Errorf("failed to scan mission: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// GetMission loads one mission with its phases in order.
func (s *Store) GetMission(ctx context.Context, id string) (*metrics.MissionMetrics, error) {
	var m metrics.MissionMetrics
	err := s.db.QueryRowContext(ctx,
		`SELECT id, started_at, ended_at, duration_ms, final_state, succeeded, fallback_run, err
		 FROM missions WHERE id = ?`, id).
		Scan(&m.MissionID, &m.Start, &m.End, &m.DurationMs, &m.FinalState, &m.Succeeded, &m.FallbackRun, &m.Err)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load mission: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT state, attempt, started_at, ended_at, duration_ms, outcome, samples, perception_failures, cancel_requests, err
		 FROM phases WHERE mission_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query phases: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var p metrics.PhaseMetrics
		if err := rows.Scan(&p.State, &p.Attempt, &p.Start, &p.End, &p.DurationMs, &p.Outcome, &p.Samples, &p.PerceptionFailures, &p.CancelRequests, &p.Err); err != nil {
			return nil, fmt.Errorf("failed to scan phase: %w", err)
		}
		m.Phases = append(m.Phases, p)
	}
	return &m, rows.Err()
}
