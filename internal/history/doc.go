// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package history implements the token-accounted message ledger.
//
// A Ledger is an ordered sequence of entries, each pairing a message
// with its accounting metadata, plus a cached running token total. The
// ledger is passive storage: it never evicts on its own. Budget policies
// (package budget) drive eviction and compression through the ledger's
// mutation methods, which keep the token total exact at every
// observable point.
//
// The ledger assumes external synchronization: the agent step loop is
// the single writer, and embedding in a concurrent host requires a
// mutual-exclusion scope around each call.
package history
