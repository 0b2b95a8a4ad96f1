// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides unified configuration loading and management for
// agentledger.
//
// Configuration lives in a TOML file with sensible defaults, environment
// variable overrides, and validation.
//
// # Key Types
//
//   - Config: Main configuration structure with all settings
//   - BudgetConfig: Eviction and compression thresholds
//   - TokensConfig: Token estimator selection and tuning
//   - StoreConfig: Snapshot persistence backend settings
//
// # Configuration Precedence
//
// Configuration is loaded from (in order of precedence):
//   - Environment variables (AGENTLEDGER_*)
//   - ~/.agentledger/config.toml
//   - Built-in defaults
//
// # Usage
//
// Load configuration and wire components:
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	policy := cfg.Policy()
//	est := cfg.Estimator()
package config
