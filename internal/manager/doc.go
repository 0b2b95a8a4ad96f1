// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package manager composes the ledger, token estimation, and budget
// policies into the per-step service an agent loop talks to.
//
// The manager seeds a new ledger with the system prompt and task
// framing, appends observations and model output after each turn,
// filters sensitive values out of stored content, and trims the ledger
// back under the input-token ceiling before each model call.
package manager
