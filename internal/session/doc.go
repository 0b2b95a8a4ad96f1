// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session ties a conversation manager to a snapshot store.
//
// A Session tracks activity and unsaved changes, autosaves the ledger on a
// configurable interval, and can optionally expire after an idle timeout.
// Sessions are resumable: Resume rebuilds a manager from a stored snapshot
// without re-seeding the conversation.
//
// # Key Types
//
//   - Session: Activity tracking, autosave, and idle expiry
//   - Config: Timeout and autosave settings
//   - Status: Point-in-time view of a session
//
// # Usage
//
// Create a session and run its autosave loop:
//
//	sess := session.New(task, mgr, st, session.DefaultConfig())
//	go sess.Run(ctx)
//
// Record activity after each ledger mutation:
//
//	sess.RecordActivity()
//
// Resume a stored session:
//
//	sess, err := session.Resume(id, systemPrompt, settings, st, cfg)
package session
