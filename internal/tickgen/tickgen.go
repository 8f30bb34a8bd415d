/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

// Package tickgen schedules periodic scenario_trigger(kind=Tick) calls
// against the tool surface on a cron expression (DOMAIN STACK:
// github.com/robfig/cron/v3), modeled on
// internal/controlplane/jobs/scheduler.go's own-ticker-plus-
// cron.ParseStandard shape rather than robfig/cron's own Cron runner,
// so the caller controls exactly what time value each fired tick
// carries.
//
// The cron schedule only decides *when* to call scenario_trigger; the
// trigger payload's time is the time value of the scheduler's own poll
// tick, handed to the Trigger callback; the engine itself never reads
// the wall clock (§5: "tick triggers use caller-supplied time, not wall
// clock").
package tickgen

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Trigger fires one Tick for runID at "now". The callback (the daemon
// wires the tool surface's Server.Tick) owns translating this into a
// runstate.Timestamp and an evidence.Context.
type Trigger func(ctx context.Context, runID string, now time.Time) error

// Entry is one scheduled run: fire Trigger for RunID whenever Schedule
// is due.
type Entry struct {
	RunID    string
	Schedule string // standard 5-field cron expression
}

type scheduled struct {
	entry    Entry
	schedule cron.Schedule
	nextDue  time.Time
}

// Scheduler polls its entries on a fixed interval and fires due ones.
// It never runs two polls concurrently and never fires the same entry
// twice for the same due time.
type Scheduler struct {
	logger  *zap.Logger
	trigger Trigger
	poll    time.Duration

	mu      sync.Mutex
	entries map[string]*scheduled // keyed by RunID
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New builds a scheduler that polls every pollInterval (default 1s if
// <= 0) and calls trigger for every entry whose cron schedule is due.
func New(trigger Trigger, pollInterval time.Duration, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	return &Scheduler{
		logger:  logger.Named("tickgen"),
		trigger: trigger,
		poll:    pollInterval,
		entries: make(map[string]*scheduled),
	}
}

// Add registers or replaces the schedule for e.RunID.
func (s *Scheduler) Add(e Entry) error {
	sched, err := cron.ParseStandard(e.Schedule)
	if err != nil {
		return fmt.Errorf("tickgen: invalid cron schedule %q for run %q: %w", e.Schedule, e.RunID, err)
	}
	now := time.Now().UTC()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[e.RunID] = &scheduled{entry: e, schedule: sched, nextDue: sched.Next(now)}
	return nil
}

// Remove stops scheduling runID.
func (s *Scheduler) Remove(runID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, runID)
}

// Start begins the poll loop in a background goroutine. Calling Start
// twice without an intervening Stop is a programmer error.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.poll)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case t := <-ticker.C:
				s.pollOnce(ctx, t.UTC())
			}
		}
	}()
}

// Stop cancels the poll loop and waits for it to exit.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *Scheduler) pollOnce(ctx context.Context, now time.Time) {
	var due []*scheduled
	s.mu.Lock()
	for _, sc := range s.entries {
		if !sc.nextDue.After(now) {
			due = append(due, sc)
			sc.nextDue = sc.schedule.Next(now)
		}
	}
	s.mu.Unlock()

	for _, sc := range due {
		if err := s.trigger(ctx, sc.entry.RunID, now); err != nil {
			s.logger.Warn("tick trigger failed",
				zap.String("run_id", sc.entry.RunID),
				zap.Error(err),
			)
		}
	}
}
