// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/jeranaias/agentledger/internal/history"
)

// =============================================================================
// SQLITE STORE
// =============================================================================

// SQLiteStore persists snapshots in a single SQLite database, for hosts
// that already carry one around rather than a directory of JSON files.
type SQLiteStore struct {
	db *sql.DB
}

const snapshotSchema = `
CREATE TABLE IF NOT EXISTS snapshots (
	id           TEXT PRIMARY KEY,
	task         TEXT NOT NULL,
	created_at   TEXT NOT NULL,
	updated_at   TEXT NOT NULL,
	entry_count  INTEGER NOT NULL,
	total_tokens INTEGER NOT NULL,
	ledger       TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_snapshots_updated ON snapshots(updated_at);
`

// NewSQLiteStore opens (and migrates) the database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite: %w", err)
	}
	if _, err := db.Exec(snapshotSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: migrate schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// =============================================================================
// SAVE / LOAD
// =============================================================================

// Save implements SnapshotStore.
func (s *SQLiteStore) Save(snap *Snapshot) (string, error) {
	if snap.ID == "" {
		snap.ID = NewSnapshot(snap.Task, snap.Ledger).ID
	}
	snap.UpdatedAt = time.Now()
	if snap.CreatedAt.IsZero() {
		snap.CreatedAt = snap.UpdatedAt
	}

	ledgerJSON, err := json.Marshal(snap.Ledger)
	if err != nil {
		return "", err
	}

	meta := snap.Meta()
	_, err = s.db.Exec(`
		INSERT INTO snapshots (id, task, created_at, updated_at, entry_count, total_tokens, ledger)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			task = excluded.task,
			updated_at = excluded.updated_at,
			entry_count = excluded.entry_count,
			total_tokens = excluded.total_tokens,
			ledger = excluded.ledger`,
		snap.ID, snap.Task,
		snap.CreatedAt.Format(time.RFC3339Nano), snap.UpdatedAt.Format(time.RFC3339Nano),
		meta.EntryCount, meta.TotalTokens, string(ledgerJSON))
	if err != nil {
		return "", fmt.Errorf("store: save snapshot: %w", err)
	}
	return snap.ID, nil
}

// Load implements SnapshotStore. The embedded ledger is re-validated on
// decode; a tampered row fails here rather than corrupting a session.
func (s *SQLiteStore) Load(id string) (*Snapshot, error) {
	row := s.db.QueryRow(`
		SELECT task, created_at, updated_at, ledger
		FROM snapshots WHERE id = ?`, id)

	var task, createdAt, updatedAt, ledgerJSON string
	if err := row.Scan(&task, &createdAt, &updatedAt, &ledgerJSON); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrSnapshotNotFound
		}
		return nil, err
	}

	snap := &Snapshot{ID: id, Task: task, Ledger: history.New()}
	if err := json.Unmarshal([]byte(ledgerJSON), snap.Ledger); err != nil {
		return nil, fmt.Errorf("store: snapshot %s: %w", id, err)
	}

	var err error
	if snap.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, err
	}
	if snap.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return nil, err
	}
	return snap, nil
}

// =============================================================================
// LIST / DELETE
// =============================================================================

// List implements SnapshotStore.
func (s *SQLiteStore) List() ([]SnapshotMeta, error) {
	rows, err := s.db.Query(`
		SELECT id, task, created_at, updated_at, entry_count, total_tokens
		FROM snapshots ORDER BY updated_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var metas []SnapshotMeta
	for rows.Next() {
		var meta SnapshotMeta
		var createdAt, updatedAt string
		if err := rows.Scan(&meta.ID, &meta.Task, &createdAt, &updatedAt,
			&meta.EntryCount, &meta.TotalTokens); err != nil {
			return nil, err
		}
		if meta.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
			return nil, err
		}
		if meta.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
			return nil, err
		}
		metas = append(metas, meta)
	}
	return metas, rows.Err()
}

// Delete implements SnapshotStore.
func (s *SQLiteStore) Delete(id string) error {
	_, err := s.db.Exec(`DELETE FROM snapshots WHERE id = ?`, id)
	return err
}
