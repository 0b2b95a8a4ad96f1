// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package store

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/jeranaias/agentledger/internal/util"
)

// =============================================================================
// FILE STORE
// =============================================================================

// FileStore persists one JSON file per snapshot under a base directory.
type FileStore struct {
	// BaseDir is the snapshot directory.
	BaseDir string

	// MaxSnapshots limits stored snapshots (0 = unlimited). The oldest
	// by update time are pruned on Save.
	MaxSnapshots int
}

// NewFileStore creates a store rooted at baseDir, creating it if needed.
func NewFileStore(baseDir string) (*FileStore, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, err
	}
	return &FileStore{BaseDir: baseDir, MaxSnapshots: 100}, nil
}

// filePath returns the JSON path for a snapshot id.
func (s *FileStore) filePath(id string) string {
	return filepath.Join(s.BaseDir, id+".json")
}

// =============================================================================
// SAVE / LOAD
// =============================================================================

// Save implements SnapshotStore.
func (s *FileStore) Save(snap *Snapshot) (string, error) {
	if snap.ID == "" {
		snap.ID = NewSnapshot(snap.Task, snap.Ledger).ID
	}
	snap.UpdatedAt = time.Now()
	if snap.CreatedAt.IsZero() {
		snap.CreatedAt = snap.UpdatedAt
	}

	data, err := encode(snap)
	if err != nil {
		return "", err
	}

	// RELIABILITY: Atomic write with fsync prevents data loss on crash
	if err := util.AtomicWriteFile(s.filePath(snap.ID), data, 0644); err != nil {
		return "", err
	}

	if s.MaxSnapshots > 0 {
		s.enforceLimit()
	}
	return snap.ID, nil
}

// Load implements SnapshotStore.
func (s *FileStore) Load(id string) (*Snapshot, error) {
	data, err := os.ReadFile(s.filePath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrSnapshotNotFound
		}
		return nil, err
	}
	return decode(data)
}

// =============================================================================
// LIST / DELETE
// =============================================================================

// List implements SnapshotStore. Corrupt files are skipped, not fatal.
func (s *FileStore) List() ([]SnapshotMeta, error) {
	entries, err := os.ReadDir(s.BaseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []SnapshotMeta{}, nil
		}
		return nil, err
	}

	var metas []SnapshotMeta
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		id := strings.TrimSuffix(entry.Name(), ".json")
		snap, err := s.Load(id)
		if err != nil {
			continue
		}
		metas = append(metas, snap.Meta())
	}

	// Most recent first.
	sort.Slice(metas, func(i, j int) bool {
		return metas[i].UpdatedAt.After(metas[j].UpdatedAt)
	})
	return metas, nil
}

// Delete implements SnapshotStore.
func (s *FileStore) Delete(id string) error {
	err := os.Remove(s.filePath(id))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// enforceLimit prunes the oldest snapshots beyond MaxSnapshots.
func (s *FileStore) enforceLimit() {
	metas, err := s.List()
	if err != nil || len(metas) <= s.MaxSnapshots {
		return
	}
	// List is newest-first; delete from the tail.
	for _, meta := range metas[s.MaxSnapshots:] {
		s.Delete(meta.ID)
	}
}
