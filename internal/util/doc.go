// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides utility functions for agentledger.
//
// This package contains common helper functions used throughout the module
// for string manipulation, type conversion, and file operations.
//
// # Key Functions
//
// String Utilities:
//   - TruncateRunesNoEllipsis: UTF-8 safe string truncation
//   - RuneLen: Character count for UTF-8 strings
//
// Type Conversion:
//   - IntToString: Numeric to string conversion
//
// File Operations:
//   - AtomicWriteFile: Crash-safe file writing with fsync
//
// # Usage
//
//	// Truncate long strings safely
//	short := util.TruncateRunesNoEllipsis(longText, 100)
//
//	// Write files atomically to prevent data loss
//	err := util.AtomicWriteFile(path, data, 0644)
package util
