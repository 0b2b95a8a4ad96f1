// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the message data structures shared by the
// history ledger and the budget policies.
//
// A Message is an opaque structured payload tagged with a Role. The
// content is an ordered list of parts (text or image); the rest of the
// system never parses it except to extract a short action label for
// summarization digests.
package model
