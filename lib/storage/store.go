// Copyright 2026 The Sessionlog Authors
// SPDX-License-Identifier: Apache-2.0

package storage

import (
	"sync"
	"time"

	"github.com/bureau-foundation/sessionlog/lib/clock"
	"github.com/bureau-foundation/sessionlog/lib/logfile"
	"github.com/bureau-foundation/sessionlog/lib/record"
	"github.com/bureau-foundation/sessionlog/lib/secret"
	"github.com/bureau-foundation/sessionlog/lib/sequence"
)

// Maintenance scheduling defaults: the idle check reschedules on the
// order of seconds, the full expiry pass on the order of hours.
const (
	DefaultIdleThreshold = 30 * time.Second
	DefaultFullInterval  = 4 * time.Hour
)

// CallbackExecutor runs completion callbacks on the caller's context.
// Implementations must not run the callback inline on the posting
// goroutine when that goroutine is the backend sequence; the default
// executor runs each callback on its own goroutine.
type CallbackExecutor interface {
	Post(callback func())
}

type goroutineExecutor struct{}

func (goroutineExecutor) Post(callback func()) { go callback() }

// StoreOptions configures a Store.
type StoreOptions struct {
	// Backend configures the wrapped Backend.
	Backend Options

	// Callbacks receives error callbacks. Defaults to running each
	// callback on its own goroutine.
	Callbacks CallbackExecutor

	// IdleThreshold and FullInterval tune the maintenance scheduler.
	// Zero values take the defaults.
	IdleThreshold time.Duration
	FullInterval  time.Duration
}

// Store confines a Backend to its own sequence and exposes the
// storage contract to other goroutines. Appends, promotion, and
// deletion are asynchronous; reads block until the backend sequence
// has produced the result.
type Store struct {
	runner    *sequence.Runner
	backend   *Backend
	callbacks CallbackExecutor
	clk       clock.Clock

	idleThreshold time.Duration
	fullInterval  time.Duration

	mu               sync.Mutex
	maintenanceTimer *clock.Timer
	closed           bool
}

// NewStore creates the backend and starts its sequence.
func NewStore(options StoreOptions) *Store {
	backend := NewBackend(options.Backend)
	callbacks := options.Callbacks
	if callbacks == nil {
		callbacks = goroutineExecutor{}
	}
	idleThreshold := options.IdleThreshold
	if idleThreshold == 0 {
		idleThreshold = DefaultIdleThreshold
	}
	fullInterval := options.FullInterval
	if fullInterval == 0 {
		fullInterval = DefaultFullInterval
	}
	return &Store{
		runner:        sequence.NewRunner(),
		backend:       backend,
		callbacks:     callbacks,
		clk:           backend.clk,
		idleThreshold: idleThreshold,
		fullInterval:  fullInterval,
	}
}

// AppendCommands schedules an append on the backend sequence and
// returns immediately. If the append fails (protocol misuse, open
// failure, write failure), errorCallback is posted to the callback
// executor. The key is only meaningful when truncate is set.
func (s *Store) AppendCommands(commands []record.Command, truncate bool, errorCallback func(), key *secret.Buffer) {
	s.runner.Post(func() {
		if err := s.backend.AppendCommands(commands, truncate, key); err != nil {
			s.backend.logger.Warn("append failed", "error", err)
			if errorCallback != nil {
				s.callbacks.Post(errorCallback)
			}
		}
	})
}

// ReadLastSession reads the last generation, blocking until the
// backend sequence has run the read.
func (s *Store) ReadLastSession() logfile.ReadResult {
	var result logfile.ReadResult
	if err := s.runner.PostAndWait(func() {
		result = s.backend.ReadLastSessionCommands()
	}); err != nil {
		return logfile.ReadResult{}
	}
	return result
}

// MoveCurrentToLastSession schedules a generation promotion.
func (s *Store) MoveCurrentToLastSession() {
	s.runner.Post(func() {
		if err := s.backend.MoveCurrentSessionToLastSession(); err != nil {
			s.backend.logger.Warn("promotion failed", "error", err)
		}
	})
}

// DeleteLastSession schedules removal of the last-generation file.
func (s *Store) DeleteLastSession() {
	s.runner.Post(func() { s.backend.DeleteLastSession() })
}

// ScheduleMaintenance starts the repeating maintenance task. Each
// tick checks whether the backend has been idle for at least the idle
// threshold; if not it backs off for another threshold interval, and
// otherwise it runs a full expiry pass and sleeps for the full
// interval. The tick itself runs on the backend sequence, so it never
// races a data-plane call.
func (s *Store) ScheduleMaintenance() {
	s.scheduleTick(s.fullInterval)
}

func (s *Store) scheduleTick(delay time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.maintenanceTimer = s.clk.AfterFunc(delay, func() {
		s.runner.Post(s.maintenanceTick)
	})
}

func (s *Store) maintenanceTick() {
	if s.clk.Now().Sub(s.backend.lastOperation) < s.idleThreshold {
		// Busy; come back once a full idle window could have passed.
		s.scheduleTick(s.idleThreshold)
		return
	}
	s.backend.RunMaintenance()
	s.scheduleTick(s.fullInterval)
}

// Close stops maintenance, drains pending work, and closes the
// backend (deleting an unmarked current file in marker mode).
func (s *Store) Close() {
	s.mu.Lock()
	s.closed = true
	if s.maintenanceTimer != nil {
		s.maintenanceTimer.Stop()
		s.maintenanceTimer = nil
	}
	s.mu.Unlock()

	s.runner.Post(func() { s.backend.Close() })
	s.runner.Close()
}
