// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/jeranaias/agentledger/internal/manager"
	"github.com/jeranaias/agentledger/internal/store"
	"github.com/jeranaias/agentledger/internal/util"
)

// =============================================================================
// SESSION
// =============================================================================

// Session ties a conversation manager to a snapshot store and tracks
// activity, unsaved changes, and autosave timing.
type Session struct {
	mu sync.Mutex

	id           string
	task         string
	startTime    time.Time
	lastActivity time.Time

	// Autosave state
	autosaveEnabled  bool
	autosaveInterval time.Duration
	lastAutosave     time.Time
	isDirty          bool

	// Idle expiry. Zero timeout means the session never expires.
	timeout time.Duration

	mgr   *manager.Manager
	store store.SnapshotStore
}

// Config holds configuration for a session.
type Config struct {
	// Timeout is the idle duration after which the session expires.
	// Zero disables expiry.
	Timeout time.Duration

	// AutosaveEnabled enables periodic snapshot saves.
	AutosaveEnabled bool

	// AutosaveInterval is how often to autosave (default: 30 seconds).
	AutosaveInterval time.Duration
}

// DefaultConfig returns the default session configuration.
func DefaultConfig() Config {
	return Config{
		Timeout:          0,
		AutosaveEnabled:  true,
		AutosaveInterval: 30 * time.Second,
	}
}

// New creates a session for a fresh conversation.
func New(task string, mgr *manager.Manager, st store.SnapshotStore, cfg Config) *Session {
	if cfg.AutosaveInterval <= 0 {
		cfg.AutosaveInterval = 30 * time.Second
	}

	now := time.Now()
	return &Session{
		id:               store.NewSnapshot(task, mgr.Ledger()).ID,
		task:             task,
		startTime:        now,
		lastActivity:     now,
		autosaveEnabled:  cfg.AutosaveEnabled,
		autosaveInterval: cfg.AutosaveInterval,
		lastAutosave:     now,
		timeout:          cfg.Timeout,
		mgr:              mgr,
		store:            st,
	}
}

// Resume loads a snapshot and rebuilds its session. The restored ledger is
// handed to the conversation manager as-is, so seeding is skipped.
func Resume(id, systemPrompt string, settings manager.Settings, st store.SnapshotStore, cfg Config) (*Session, error) {
	snap, err := st.Load(id)
	if err != nil {
		return nil, err
	}

	mgr, err := manager.New(snap.Task, systemPrompt, settings, snap.Ledger)
	if err != nil {
		return nil, err
	}

	s := New(snap.Task, mgr, st, cfg)
	s.mu.Lock()
	s.id = snap.ID
	s.startTime = snap.CreatedAt
	s.mu.Unlock()
	return s, nil
}

// =============================================================================
// SESSION STATE
// =============================================================================

// ID returns the session (and snapshot) ID.
func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

// Task returns the session's task.
func (s *Session) Task() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.task
}

// Manager returns the conversation manager.
func (s *Session) Manager() *manager.Manager {
	return s.mgr
}

// Duration returns how long the session has been active.
func (s *Session) Duration() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Since(s.startTime)
}

// IdleTime returns how long since last activity.
func (s *Session) IdleTime() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Since(s.lastActivity)
}

// =============================================================================
// ACTIVITY TRACKING
// =============================================================================

// RecordActivity updates the last activity timestamp and marks the
// session dirty. Call this after every ledger mutation.
func (s *Session) RecordActivity() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActivity = time.Now()
	s.isDirty = true
}

// MarkClean indicates the session has been saved.
func (s *Session) MarkClean() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.isDirty = false
	s.lastAutosave = time.Now()
}

// IsDirty returns whether the session has unsaved changes.
func (s *Session) IsDirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isDirty
}

// =============================================================================
// PERSISTENCE
// =============================================================================

// Save writes the current ledger to the snapshot store.
func (s *Session) Save() error {
	s.mu.Lock()
	snap := &store.Snapshot{
		ID:        s.id,
		Task:      s.task,
		CreatedAt: s.startTime,
		Ledger:    s.mgr.Ledger(),
	}
	s.mu.Unlock()

	if _, err := s.store.Save(snap); err != nil {
		return err
	}
	s.MarkClean()
	return nil
}

// ShouldAutosave returns true if an autosave is due.
func (s *Session) ShouldAutosave() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.autosaveEnabled || !s.isDirty {
		return false
	}
	return time.Since(s.lastAutosave) >= s.autosaveInterval
}

// IsExpired returns true if the session has idled past its timeout.
func (s *Session) IsExpired() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timeout <= 0 {
		return false
	}
	return time.Since(s.lastActivity) >= s.timeout
}

// Check evaluates session state and autosaves when due.
// Returns true if the session is still valid, false if expired.
func (s *Session) Check() bool {
	if s.ShouldAutosave() {
		if err := s.Save(); err != nil {
			log.Warnf("session %s: autosave failed: %v", s.ID(), err)
		}
	}
	return !s.IsExpired()
}

// Run checks the session once a second until the context is canceled or
// the session expires. A final save flushes any unsaved changes on exit.
func (s *Session) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.flush()
			return
		case <-ticker.C:
			if !s.Check() {
				log.Infof("session %s expired after %s idle", s.ID(), FormatDuration(s.IdleTime()))
				s.flush()
				return
			}
		}
	}
}

func (s *Session) flush() {
	if !s.IsDirty() {
		return
	}
	if err := s.Save(); err != nil {
		log.Warnf("session %s: final save failed: %v", s.ID(), err)
	}
}

// =============================================================================
// SESSION STATUS
// =============================================================================

// Status represents the current session status.
type Status struct {
	ID          string
	Task        string
	StartTime   time.Time
	Duration    time.Duration
	IdleTime    time.Duration
	TotalTokens int
	EntryCount  int
	IsDirty     bool
	IsExpired   bool
}

// GetStatus returns the current session status.
func (s *Session) GetStatus() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	idle := now.Sub(s.lastActivity)

	return Status{
		ID:          s.id,
		Task:        s.task,
		StartTime:   s.startTime,
		Duration:    now.Sub(s.startTime),
		IdleTime:    idle,
		TotalTokens: s.mgr.Ledger().TotalTokens(),
		EntryCount:  s.mgr.Ledger().Len(),
		IsDirty:     s.isDirty,
		IsExpired:   s.timeout > 0 && idle >= s.timeout,
	}
}

// FormatDuration returns a human-readable duration string.
func FormatDuration(d time.Duration) string {
	if d < time.Minute {
		secs := int(d.Seconds())
		return util.IntToString(secs) + "s"
	}
	mins := int(d.Minutes())
	secs := int(d.Seconds()) % 60
	if secs == 0 {
		return util.IntToString(mins) + "m"
	}
	return util.IntToString(mins) + "m " + util.IntToString(secs) + "s"
}
