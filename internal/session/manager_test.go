// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jeranaias/agentledger/internal/manager"
	"github.com/jeranaias/agentledger/internal/store"
)

func newTestManager(t *testing.T) *manager.Manager {
	t.Helper()
	mgr, err := manager.New("test task", "You are a browser agent.", manager.Settings{}, nil)
	require.NoError(t, err)
	return mgr
}

func newTestStore(t *testing.T) *store.FileStore {
	t.Helper()
	st, err := store.NewFileStore(t.TempDir())
	require.NoError(t, err)
	return st
}

func TestSession_New(t *testing.T) {
	sess := New("test task", newTestManager(t), newTestStore(t), DefaultConfig())

	require.NotEmpty(t, sess.ID())
	require.Equal(t, "test task", sess.Task())
	require.False(t, sess.IsDirty())
	require.False(t, sess.IsExpired())

	sess.RecordActivity()
	require.True(t, sess.IsDirty())
}

func TestSession_SaveAndResume(t *testing.T) {
	st := newTestStore(t)
	mgr := newTestManager(t)
	sess := New("test task", mgr, st, DefaultConfig())

	sess.RecordActivity()
	require.NoError(t, sess.Save())
	require.False(t, sess.IsDirty())

	resumed, err := Resume(sess.ID(), "You are a browser agent.", manager.Settings{}, st, DefaultConfig())
	require.NoError(t, err)

	require.Equal(t, sess.ID(), resumed.ID())
	require.Equal(t, "test task", resumed.Task())

	// The restored ledger carries the original entries; nothing was re-seeded.
	require.Equal(t, mgr.Ledger().Len(), resumed.Manager().Ledger().Len())
	require.Equal(t, mgr.Ledger().TotalTokens(), resumed.Manager().Ledger().TotalTokens())
}

func TestSession_ResumeMissing(t *testing.T) {
	st := newTestStore(t)

	_, err := Resume("no-such-id", "prompt", manager.Settings{}, st, DefaultConfig())
	require.ErrorIs(t, err, store.ErrSnapshotNotFound)
}

func TestSession_ShouldAutosave(t *testing.T) {
	cfg := Config{AutosaveEnabled: true, AutosaveInterval: 10 * time.Millisecond}
	sess := New("task", newTestManager(t), newTestStore(t), cfg)

	// Clean sessions never autosave.
	time.Sleep(20 * time.Millisecond)
	require.False(t, sess.ShouldAutosave())

	sess.RecordActivity()
	time.Sleep(20 * time.Millisecond)
	require.True(t, sess.ShouldAutosave())
}

func TestSession_CheckAutosaves(t *testing.T) {
	st := newTestStore(t)
	cfg := Config{AutosaveEnabled: true, AutosaveInterval: 10 * time.Millisecond}
	sess := New("task", newTestManager(t), st, cfg)

	sess.RecordActivity()
	time.Sleep(20 * time.Millisecond)

	require.True(t, sess.Check())
	require.False(t, sess.IsDirty())

	_, err := st.Load(sess.ID())
	require.NoError(t, err)
}

func TestSession_Expiry(t *testing.T) {
	cfg := Config{Timeout: 10 * time.Millisecond}
	sess := New("task", newTestManager(t), newTestStore(t), cfg)

	require.False(t, sess.IsExpired())
	time.Sleep(20 * time.Millisecond)
	require.True(t, sess.IsExpired())
	require.False(t, sess.Check())
}

func TestSession_Status(t *testing.T) {
	sess := New("task", newTestManager(t), newTestStore(t), DefaultConfig())

	status := sess.GetStatus()
	require.Equal(t, sess.ID(), status.ID)
	require.Equal(t, "task", status.Task)
	require.Greater(t, status.TotalTokens, 0)
	require.Greater(t, status.EntryCount, 0)
	require.False(t, status.IsExpired)
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{30 * time.Second, "30s"},
		{time.Minute, "1m"},
		{90 * time.Second, "1m 30s"},
		{5 * time.Minute, "5m"},
	}

	for _, tt := range tests {
		if got := FormatDuration(tt.d); got != tt.want {
			t.Errorf("FormatDuration(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}
