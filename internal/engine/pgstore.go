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

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/decisiongate/decisiongate/internal/canon"
	"github.com/decisiongate/decisiongate/internal/runstate"
	"github.com/decisiongate/decisiongate/internal/spec"
)

// PGStore is a Postgres-backed Store, registered with database/sql as
// the "pgx" driver the way the control plane's read-only SQL tool
// registers it, but here used for read-write run persistence rather
// than ad hoc querying.
type PGStore struct {
	db *sql.DB

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// NewPGStore opens a connection pool against dsn and ensures the
// schema exists.
func NewPGStore(ctx context.Context, dsn string) (*PGStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("engine: open postgres store: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("engine: ping postgres store: %w", err)
	}

	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS specs (
		spec_hash TEXT PRIMARY KEY,
		body      JSONB NOT NULL
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("engine: create specs table: %w", err)
	}
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS runs (
		run_id      TEXT PRIMARY KEY,
		scenario_id TEXT NOT NULL,
		version     BIGINT NOT NULL,
		body        JSONB NOT NULL
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("engine: create runs table: %w", err)
	}
	if _, err := db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_runs_scenario ON runs(scenario_id)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("engine: create scenario index: %w", err)
	}

	return &PGStore{db: db, locks: make(map[string]*sync.Mutex)}, nil
}

func (s *PGStore) PutSpec(ctx context.Context, hash canon.Digest, sp *spec.ScenarioSpec) error {
	body, err := json.Marshal(sp)
	if err != nil {
		return fmt.Errorf("engine: marshal spec: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO specs(spec_hash, body) VALUES ($1, $2) ON CONFLICT(spec_hash) DO NOTHING`,
		hash.String(), body)
	if err != nil {
		return fmt.Errorf("engine: put spec: %w", err)
	}
	return nil
}

func (s *PGStore) GetSpec(ctx context.Context, hash canon.Digest) (*spec.ScenarioSpec, bool, error) {
	var body []byte
	err := s.db.QueryRowContext(ctx, `SELECT body FROM specs WHERE spec_hash = $1`, hash.String()).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("engine: get spec: %w", err)
	}
	var sp spec.ScenarioSpec
	if err := json.Unmarshal(body, &sp); err != nil {
		return nil, false, fmt.Errorf("engine: unmarshal spec: %w", err)
	}
	return &sp, true, nil
}

func (s *PGStore) CreateRun(ctx context.Context, rs *runstate.RunState) error {
	body, err := json.Marshal(rs)
	if err != nil {
		return fmt.Errorf("engine: marshal run: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs(run_id, scenario_id, version, body) VALUES ($1, $2, $3, $4)`,
		rs.RunID, string(rs.ScenarioID), rs.Version, body)
	if err != nil {
		return fmt.Errorf("engine: create run %q: %w", rs.RunID, err)
	}
	return nil
}

func (s *PGStore) GetRun(ctx context.Context, runID string) (*runstate.RunState, bool, error) {
	var body []byte
	err := s.db.QueryRowContext(ctx, `SELECT body FROM runs WHERE run_id = $1`, runID).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("engine: get run: %w", err)
	}
	var rs runstate.RunState
	if err := json.Unmarshal(body, &rs); err != nil {
		return nil, false, fmt.Errorf("engine: unmarshal run: %w", err)
	}
	return &rs, true, nil
}

func (s *PGStore) PutRun(ctx context.Context, rs *runstate.RunState) error {
	body, err := json.Marshal(rs)
	if err != nil {
		return fmt.Errorf("engine: marshal run: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET version = $1, body = $2 WHERE run_id = $3 AND version < $1`,
		rs.Version, body, rs.RunID)
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

// LockRun mirrors SQLiteStore's in-process mutex: the engine is the
// only writer for a given run id within one deployment, and
// cross-replica contention is expected to be handled by routing a run
// id to a single engine instance upstream, not by this store.
func (s *PGStore) LockRun(ctx context.Context, runID string) (func(), error) {
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

func (s *PGStore) ListRuns(ctx context.Context, scenarioID spec.ScenarioID) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT run_id FROM runs WHERE scenario_id = $1 ORDER BY run_id`, string(scenarioID))
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

func (s *PGStore) Close() error {
	return s.db.Close()
}
