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

	_ "github.com/go-sql-driver/mysql"

	"github.com/decisiongate/decisiongate/internal/canon"
	"github.com/decisiongate/decisiongate/internal/runstate"
	"github.com/decisiongate/decisiongate/internal/spec"
)

// MySQLStore is a MySQL/MariaDB-backed Store, same shape as
// SQLiteStore and PGStore but speaking go-sql-driver/mysql.
type MySQLStore struct {
	db *sql.DB

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// NewMySQLStore opens a connection pool against dsn and ensures the
// schema exists.
func NewMySQLStore(ctx context.Context, dsn string) (*MySQLStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("engine: open mysql store: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("engine: ping mysql store: %w", err)
	}

	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS specs (
		spec_hash VARCHAR(128) PRIMARY KEY,
		body      JSON NOT NULL
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("engine: create specs table: %w", err)
	}
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS runs (
		run_id      VARCHAR(128) PRIMARY KEY,
		scenario_id VARCHAR(255) NOT NULL,
		version     BIGINT NOT NULL,
		body        JSON NOT NULL,
		INDEX idx_runs_scenario (scenario_id)
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("engine: create runs table: %w", err)
	}

	return &MySQLStore{db: db, locks: make(map[string]*sync.Mutex)}, nil
}

func (s *MySQLStore) PutSpec(ctx context.Context, hash canon.Digest, sp *spec.ScenarioSpec) error {
	body, err := json.Marshal(sp)
	if err != nil {
		return fmt.Errorf("engine: marshal spec: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT IGNORE INTO specs(spec_hash, body) VALUES (?, ?)`,
		hash.String(), string(body))
	if err != nil {
		return fmt.Errorf("engine: put spec: %w", err)
	}
	return nil
}

func (s *MySQLStore) GetSpec(ctx context.Context, hash canon.Digest) (*spec.ScenarioSpec, bool, error) {
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

func (s *MySQLStore) CreateRun(ctx context.Context, rs *runstate.RunState) error {
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

func (s *MySQLStore) GetRun(ctx context.Context, runID string) (*runstate.RunState, bool, error) {
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

func (s *MySQLStore) PutRun(ctx context.Context, rs *runstate.RunState) error {
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

func (s *MySQLStore) LockRun(ctx context.Context, runID string) (func(), error) {
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

func (s *MySQLStore) ListRuns(ctx context.Context, scenarioID spec.ScenarioID) ([]string, error) {
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

func (s *MySQLStore) Close() error {
	return s.db.Close()
}
