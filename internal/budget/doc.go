// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package budget implements the eviction and compression policies
// applied to a history ledger when its token total exceeds a ceiling.
//
// Two interchangeable strategies operate on a ledger reference:
//
//   - Sliding-window eviction removes the oldest unpreserved entries
//     until the ledger fits the budget. System messages and the most
//     recent entries are always preserved, so a budget overrun after
//     eviction is possible and is reported as a status, not an error.
//
//   - Summarizing compression removes older entries wholesale and
//     returns a short textual digest of what was removed. The caller
//     decides whether to inject the digest back into the ledger.
//
// The policy itself is stateless; each call is driven entirely by the
// ledger's current contents and the ceiling argument.
package budget
