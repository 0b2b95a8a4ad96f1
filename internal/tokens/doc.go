// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package tokens estimates the token cost of messages before they are
// stored in the ledger.
//
// Two estimators are provided: a cheap character-ratio heuristic with a
// flat per-image cost, and a BPE estimator backed by tiktoken for
// callers that want counts matching what the model will bill.
package tokens
