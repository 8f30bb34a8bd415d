/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

package engine

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/decisiongate/decisiongate/internal/canon"
	"github.com/decisiongate/decisiongate/internal/runstate"
	"github.com/decisiongate/decisiongate/internal/spec"
)

// SQLiteStore is the default Store backend (§4.4.6). Specs are
// content-addressed and immutable, so writing the same hash twice is a
// no-op; run states are versioned rows updated with an optimistic
// WHERE version < ? guard (the row is only written when its stored
// version is lower than the new one) so a stale working copy can never
// clobber a newer commit.
type SQLiteStore struct {
	db *sql.DB

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// NewSQLiteStore opens (or creates) a SQLite-backed store at dbPath.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("engine: open sqlite store: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("engine: set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("engine: set busy_timeout: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("engine: enable foreign keys: %w", err)
	}

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS specs (
		spec_hash TEXT PRIMARY KEY,
		body      TEXT NOT NULL
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("engine: create specs table: %w", err)
	}

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS runs (
		run_id      TEXT PRIMARY KEY,
		scenario_id TEXT NOT NULL,
		version     INTEGER NOT NULL,
		body        TEXT NOT NULL
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("engine: create runs table: %w", err)
	}
	if _, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_runs_scenario ON runs(scenario_id)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("engine: create scenario index: %w", err)
	}

	return &SQLiteStore{db: db, locks: make(map[string]*sync.Mutex)}, nil
}

func (s *SQLiteStore) PutSpec(ctx context.Context, hash canon.Digest, sp *spec.ScenarioSpec) error {
	body, err := json.Marshal(sp)
	if err != nil {
		return fmt.Errorf("engine: marshal spec: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO specs(spec_hash, body) VALUES (?, ?) ON CONFLICT(spec_hash) DO NOTHING`,
		hash.String(), string(body))
	if err != nil {
		return fmt.Errorf("engine: put spec: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetSpec(ctx context.Context, hash canon.Digest) (*spec.ScenarioSpec, bool, error) {
	var body string
	err := s.db.QueryRowContext(ctx, `SELECT body FROM specs WHERE spec_hash = ?`, hash.String()).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("engine: get spec: %w", err)
	}
	var sp spec.ScenarioSpec
	if err := json.Unmarshal([]byte(body), &sp); err != nil {
		return nil, false, fmt.Errorf("engine: unmarshal spec: %w", err)
	}
	return &sp, true, nil
}

func (s *SQLiteStore) CreateRun(ctx context.Context, rs *runstate.RunState) error {
	body, err := json.Marshal(rs)
	if err != nil {
		return fmt.Errorf("engine: marshal run: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs(run_id, scenario_id, version, body) VALUES (?, ?, ?, ?)`,
		rs.RunID, string(rs.ScenarioID), rs.Version, string(body))
	if err != nil {
		return fmt.Errorf("engine: create run %q: %w", rs.RunID, err)
	}
	return nil
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*runstate.RunState, bool, error) {
	var body string
	err := s.db.QueryRowContext(ctx, `SELECT body FROM runs WHERE run_id = ?`, runID).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("engine: get run: %w", err)
	}
	var rs runstate.RunState
	if err := json.Unmarshal([]byte(body), &rs); err != nil {
		return nil, false, fmt.Errorf("engine: unmarshal run: %w", err)
	}
	return &rs, true, nil
}

// PutRun enforces the version-monotonicity contract documented on the
// Store interface: the UPDATE only matches a row whose stored version
// is strictly less than rs.Version, so two concurrent commits for the
// same run can never both succeed.
func (s *SQLiteStore) PutRun(ctx context.Context, rs *runstate.RunState) error {
	body, err := json.Marshal(rs)
	if err != nil {
		return fmt.Errorf("engine: marshal run: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET version = ?, body = ? WHERE run_id = ? AND version < ?`,
		rs.Version, string(body), rs.RunID, rs.Version)
	if err != nil {
		return fmt.Errorf("engine: put run %q: %w", rs.RunID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("engine: put run %q: %w", rs.RunID, err)
	}
	if n == 0 {
		return fmt.Errorf("engine: put run %q: stale version %d (concurrent writer committed a newer version)", rs.RunID, rs.Version)
	}
	return nil
}

// LockRun returns the process-local mutex for runID. SQLite itself has
// no notion of a per-key advisory lock; since the engine only ever runs
// in a single process against a given database file, a per-run-id
// in-process mutex is sufficient to satisfy the single-logical-writer
// contract of §4.4.6.
func (s *SQLiteStore) LockRun(ctx context.Context, runID string) (func(), error) {
	s.locksMu.Lock()
	l, ok := s.locks[runID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[runID] = l
	}
	s.locksMu.Unlock()

	l.Lock()
	return l.Unlock, nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context, scenarioID spec.ScenarioID) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT run_id FROM runs WHERE scenario_id = ? ORDER BY run_id`, string(scenarioID))
	if err != nil {
		return nil, fmt.Errorf("engine: list runs: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("engine: scan run id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
