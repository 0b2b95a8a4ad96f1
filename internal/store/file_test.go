// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package store

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jeranaias/agentledger/internal/history"
	"github.com/jeranaias/agentledger/internal/model"
)

func testLedger(t *testing.T) *history.Ledger {
	t.Helper()
	l := history.New()
	require.NoError(t, l.Add(model.NewSystemMessage("sys"), history.Metadata{Tokens: 10}))
	require.NoError(t, l.Add(model.NewHumanMessage("state"), history.Metadata{Tokens: 25}))
	return l
}

func TestFileStore_RoundTrip(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	snap := NewSnapshot("find cheap flights", testLedger(t))
	id, err := s.Save(snap)
	require.NoError(t, err)
	require.Equal(t, snap.ID, id)

	loaded, err := s.Load(id)
	require.NoError(t, err)
	require.Equal(t, "find cheap flights", loaded.Task)
	require.Equal(t, 2, loaded.Ledger.Len())
	require.Equal(t, 35, loaded.Ledger.TotalTokens())
}

func TestFileStore_LoadMissing(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	_, err = s.Load("no-such-id")
	require.ErrorIs(t, err, ErrSnapshotNotFound)
}

func TestFileStore_LoadRejectsTamperedTokens(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir)
	require.NoError(t, err)

	snap := NewSnapshot("task", testLedger(t))
	id, err := s.Save(snap)
	require.NoError(t, err)

	path := filepath.Join(dir, id+".json")
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	// Flip the cached total so it no longer matches the per-entry sum.
	require.Contains(t, string(data), `"current_tokens": 35`)
	tampered := strings.Replace(string(data), `"current_tokens": 35`, `"current_tokens": 999`, 1)
	require.NoError(t, os.WriteFile(path, []byte(tampered), 0o644))

	_, err = s.Load(id)
	require.ErrorIs(t, err, history.ErrTokenMismatch)
}

func TestFileStore_ListNewestFirstSkipsCorrupt(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir)
	require.NoError(t, err)

	first := NewSnapshot("first", testLedger(t))
	_, err = s.Save(first)
	require.NoError(t, err)

	// Updated timestamps must differ for the ordering to be observable.
	time.Sleep(10 * time.Millisecond)

	second := NewSnapshot("second", testLedger(t))
	_, err = s.Save(second)
	require.NoError(t, err)

	// A corrupt file in the directory is skipped, not fatal.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "junk.json"), []byte("{"), 0o644))

	metas, err := s.List()
	require.NoError(t, err)
	require.Len(t, metas, 2)
	require.Equal(t, "second", metas[0].Task)
	require.Equal(t, "first", metas[1].Task)
	require.Equal(t, 2, metas[0].EntryCount)
	require.Equal(t, 35, metas[0].TotalTokens)
}

func TestFileStore_DeleteIdempotent(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	snap := NewSnapshot("task", testLedger(t))
	id, err := s.Save(snap)
	require.NoError(t, err)

	require.NoError(t, s.Delete(id))
	require.NoError(t, s.Delete(id))

	_, err = s.Load(id)
	require.ErrorIs(t, err, ErrSnapshotNotFound)
}

func TestFileStore_PrunesOldest(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	s.MaxSnapshots = 3

	var ids []string
	for i := 0; i < 5; i++ {
		snap := NewSnapshot("task", testLedger(t))
		id, err := s.Save(snap)
		require.NoError(t, err)
		ids = append(ids, id)
		time.Sleep(5 * time.Millisecond)
	}

	metas, err := s.List()
	require.NoError(t, err)
	require.Len(t, metas, 3)

	// Oldest two are gone; newest three survive.
	_, err = s.Load(ids[0])
	require.ErrorIs(t, err, ErrSnapshotNotFound)
	_, err = s.Load(ids[1])
	require.ErrorIs(t, err, ErrSnapshotNotFound)
	_, err = s.Load(ids[4])
	require.NoError(t, err)
}
