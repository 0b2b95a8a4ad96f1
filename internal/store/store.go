// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package store persists ledger snapshots between agent sessions.
//
// A snapshot embeds the ledger's own persisted form, so loading runs the
// ledger's validation: a snapshot whose recorded token total disagrees
// with its entries is rejected as malformed rather than silently
// corrected.
package store

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/jeranaias/agentledger/internal/history"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrSnapshotNotFound signals an unknown snapshot id.
	ErrSnapshotNotFound = errors.New("store: snapshot not found")
)

// =============================================================================
// SNAPSHOT TYPES
// =============================================================================

// Snapshot is one persisted ledger with identifying metadata.
type Snapshot struct {
	ID        string    `json:"id"`
	Task      string    `json:"task"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Ledger is the embedded ledger state (messages + current_tokens).
	Ledger *history.Ledger `json:"ledger"`
}

// SnapshotMeta is the listing view of a snapshot, without its entries.
type SnapshotMeta struct {
	ID          string    `json:"id"`
	Task        string    `json:"task"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	EntryCount  int       `json:"entry_count"`
	TotalTokens int       `json:"total_tokens"`
}

// NewSnapshot wraps a ledger for persistence.
func NewSnapshot(task string, ledger *history.Ledger) *Snapshot {
	now := time.Now()
	return &Snapshot{
		ID:        uuid.NewString(),
		Task:      task,
		CreatedAt: now,
		UpdatedAt: now,
		Ledger:    ledger,
	}
}

// Meta returns the listing view.
func (s *Snapshot) Meta() SnapshotMeta {
	meta := SnapshotMeta{
		ID:        s.ID,
		Task:      s.Task,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	}
	if s.Ledger != nil {
		meta.EntryCount = s.Ledger.Len()
		meta.TotalTokens = s.Ledger.TotalTokens()
	}
	return meta
}

// encode serializes a snapshot; decode restores and validates one.
func encode(s *Snapshot) ([]byte, error) {
	return json.MarshalIndent(s, "", "  ")
}

func decode(data []byte) (*Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// =============================================================================
// STORE INTERFACE
// =============================================================================

// SnapshotStore is the persistence contract. Implementations: FileStore
// (one JSON file per snapshot) and SQLiteStore.
type SnapshotStore interface {
	// Save persists the snapshot and returns its id, assigning one if
	// unset.
	Save(s *Snapshot) (string, error)

	// Load retrieves and validates a snapshot by id.
	Load(id string) (*Snapshot, error)

	// List returns metadata for all stored snapshots, most recent first.
	List() ([]SnapshotMeta, error)

	// Delete removes a snapshot. Deleting an unknown id is not an error.
	Delete(id string) error
}
