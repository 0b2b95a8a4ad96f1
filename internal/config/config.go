// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
	log "github.com/sirupsen/logrus"

	"github.com/jeranaias/agentledger/internal/budget"
	"github.com/jeranaias/agentledger/internal/store"
	"github.com/jeranaias/agentledger/internal/tokens"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete agentledger configuration.
type Config struct {
	Version string `toml:"version"`

	// Budget controls eviction and compression thresholds.
	Budget BudgetConfig `toml:"budget"`

	// Tokens controls how message token counts are estimated.
	Tokens TokensConfig `toml:"tokens"`

	// Store controls snapshot persistence.
	Store StoreConfig `toml:"store"`

	// Session controls autosave behavior.
	Session SessionConfig `toml:"session"`
}

// BudgetConfig contains token budget configuration.
type BudgetConfig struct {
	// MaxInputTokens is the ceiling for total history tokens.
	MaxInputTokens int `toml:"max_input_tokens"`
	// PreserveRecent is how many trailing messages eviction never removes.
	PreserveRecent int `toml:"preserve_recent"`
	// CompressKeepRecent is how many trailing messages compression skips.
	CompressKeepRecent int `toml:"compress_keep_recent"`
	// SummarizeLimit is how many candidate messages feed the digest.
	SummarizeLimit int `toml:"summarize_limit"`
}

// TokensConfig contains token estimator configuration.
type TokensConfig struct {
	// Estimator selects the counting strategy: "heuristic" or "bpe".
	Estimator string `toml:"estimator"`
	// CharsPerToken is the heuristic divisor for text content.
	CharsPerToken int `toml:"chars_per_token"`
	// ImageTokens is the flat charge per image part.
	ImageTokens int `toml:"image_tokens"`
}

// StoreConfig contains snapshot store configuration.
type StoreConfig struct {
	// Backend selects persistence: "file" or "sqlite".
	Backend string `toml:"backend"`
	// Dir is the base directory for the file backend and the
	// parent directory of the sqlite database.
	Dir string `toml:"dir"`
	// MaxSnapshots caps retained snapshots for the file backend.
	MaxSnapshots int `toml:"max_snapshots"`
}

// SessionConfig contains session autosave configuration.
type SessionConfig struct {
	// AutosaveSecs is the autosave interval in seconds. 0 disables autosave.
	AutosaveSecs int `toml:"autosave_secs"`
}

// =============================================================================
// DEFAULT CONFIGURATION
// =============================================================================

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Version: "1.0.0",

		Budget: BudgetConfig{
			MaxInputTokens:     128000,
			PreserveRecent:     budget.DefaultPreserveRecent,
			CompressKeepRecent: budget.DefaultKeepRecent,
			SummarizeLimit:     budget.DefaultSummarizeLimit,
		},

		Tokens: TokensConfig{
			Estimator:     "heuristic",
			CharsPerToken: tokens.DefaultCharsPerToken,
			ImageTokens:   tokens.DefaultImageTokens,
		},

		Store: StoreConfig{
			Backend:      "file",
			Dir:          "", // resolved to ~/.agentledger/snapshots at open time
			MaxSnapshots: 100,
		},

		Session: SessionConfig{
			AutosaveSecs: 30,
		},
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the agentledger configuration directory path.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".agentledger"), nil
}

// ConfigPath returns the path to the TOML config file.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// EnsureConfigDir ensures the config directory exists.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0755)
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load loads configuration from the default config file, falling back to
// defaults when no file exists. Environment overrides are applied last.
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err == nil {
		if _, statErr := os.Stat(path); statErr == nil {
			return LoadFromPath(path)
		}
	}

	cfg := Default()
	cfg.ApplyEnvOverrides()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadFromPath loads configuration from a specific TOML file with full
// validation.
func LoadFromPath(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to decode TOML file %s: %w", path, err)
	}

	cfg.ApplyEnvOverrides()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// Save saves the configuration to the default TOML file.
func Save(cfg *Config) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	return SaveTOML(cfg, path)
}

// SaveTOML saves the configuration to a TOML file.
func SaveTOML(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer file.Close()

	fmt.Fprintln(file, "# agentledger configuration file")
	fmt.Fprintln(file, "# Generated by agentledger - edit with care")
	fmt.Fprintln(file, "")

	encoder := toml.NewEncoder(file)
	if err := encoder.Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	var errs ValidateErrors

	if c.Budget.MaxInputTokens <= 0 {
		errs = append(errs, ValidationError{
			Field:   "budget.max_input_tokens",
			Message: fmt.Sprintf("must be positive, got %d", c.Budget.MaxInputTokens),
		})
	}
	if c.Budget.PreserveRecent < 1 {
		errs = append(errs, ValidationError{
			Field:   "budget.preserve_recent",
			Message: fmt.Sprintf("must be at least 1, got %d", c.Budget.PreserveRecent),
		})
	}
	if c.Budget.CompressKeepRecent < 1 {
		errs = append(errs, ValidationError{
			Field:   "budget.compress_keep_recent",
			Message: fmt.Sprintf("must be at least 1, got %d", c.Budget.CompressKeepRecent),
		})
	}
	if c.Budget.SummarizeLimit < 1 {
		errs = append(errs, ValidationError{
			Field:   "budget.summarize_limit",
			Message: fmt.Sprintf("must be at least 1, got %d", c.Budget.SummarizeLimit),
		})
	}

	validEstimators := map[string]bool{"heuristic": true, "bpe": true}
	if !validEstimators[strings.ToLower(c.Tokens.Estimator)] {
		errs = append(errs, ValidationError{
			Field:   "tokens.estimator",
			Message: fmt.Sprintf("invalid estimator '%s', must be one of: heuristic, bpe", c.Tokens.Estimator),
		})
	}
	if c.Tokens.CharsPerToken < 1 {
		errs = append(errs, ValidationError{
			Field:   "tokens.chars_per_token",
			Message: fmt.Sprintf("must be at least 1, got %d", c.Tokens.CharsPerToken),
		})
	}
	if c.Tokens.ImageTokens < 0 {
		errs = append(errs, ValidationError{
			Field:   "tokens.image_tokens",
			Message: "must be non-negative",
		})
	}

	validBackends := map[string]bool{"file": true, "sqlite": true}
	if !validBackends[strings.ToLower(c.Store.Backend)] {
		errs = append(errs, ValidationError{
			Field:   "store.backend",
			Message: fmt.Sprintf("invalid backend '%s', must be one of: file, sqlite", c.Store.Backend),
		})
	}
	if c.Store.MaxSnapshots < 1 {
		errs = append(errs, ValidationError{
			Field:   "store.max_snapshots",
			Message: fmt.Sprintf("must be at least 1, got %d", c.Store.MaxSnapshots),
		})
	}

	if c.Session.AutosaveSecs < 0 {
		errs = append(errs, ValidationError{
			Field:   "session.autosave_secs",
			Message: "must be non-negative",
		})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// SetDefaults sets default values for any missing or zero-value fields.
func (c *Config) SetDefaults() {
	defaults := Default()

	if c.Version == "" {
		c.Version = defaults.Version
	}

	if c.Budget.MaxInputTokens == 0 {
		c.Budget.MaxInputTokens = defaults.Budget.MaxInputTokens
	}
	if c.Budget.PreserveRecent == 0 {
		c.Budget.PreserveRecent = defaults.Budget.PreserveRecent
	}
	if c.Budget.CompressKeepRecent == 0 {
		c.Budget.CompressKeepRecent = defaults.Budget.CompressKeepRecent
	}
	if c.Budget.SummarizeLimit == 0 {
		c.Budget.SummarizeLimit = defaults.Budget.SummarizeLimit
	}

	if c.Tokens.Estimator == "" {
		c.Tokens.Estimator = defaults.Tokens.Estimator
	}
	if c.Tokens.CharsPerToken == 0 {
		c.Tokens.CharsPerToken = defaults.Tokens.CharsPerToken
	}
	if c.Tokens.ImageTokens == 0 {
		c.Tokens.ImageTokens = defaults.Tokens.ImageTokens
	}

	if c.Store.Backend == "" {
		c.Store.Backend = defaults.Store.Backend
	}
	if c.Store.MaxSnapshots == 0 {
		c.Store.MaxSnapshots = defaults.Store.MaxSnapshots
	}
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides to the config.
//
// Supported environment variables:
//   - AGENTLEDGER_MAX_INPUT_TOKENS: overrides budget.max_input_tokens
//   - AGENTLEDGER_PRESERVE_RECENT: overrides budget.preserve_recent
//   - AGENTLEDGER_ESTIMATOR: overrides tokens.estimator
//   - AGENTLEDGER_STORE_BACKEND: overrides store.backend
//   - AGENTLEDGER_STORE_DIR: overrides store.dir
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("AGENTLEDGER_MAX_INPUT_TOKENS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Budget.MaxInputTokens = n
		}
	}
	if v := os.Getenv("AGENTLEDGER_PRESERVE_RECENT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Budget.PreserveRecent = n
		}
	}
	if v := os.Getenv("AGENTLEDGER_ESTIMATOR"); v != "" {
		c.Tokens.Estimator = v
	}
	if v := os.Getenv("AGENTLEDGER_STORE_BACKEND"); v != "" {
		c.Store.Backend = v
	}
	if v := os.Getenv("AGENTLEDGER_STORE_DIR"); v != "" {
		c.Store.Dir = v
	}
}

// =============================================================================
// COMPONENT WIRING
// =============================================================================

// Policy builds a budget policy from the configured thresholds.
func (c *Config) Policy() budget.Policy {
	return budget.New(budget.Policy{
		PreserveRecent: c.Budget.PreserveRecent,
		KeepRecent:     c.Budget.CompressKeepRecent,
		SummarizeLimit: c.Budget.SummarizeLimit,
	})
}

// Estimator builds the configured token estimator. If the BPE vocabulary
// cannot be loaded the heuristic estimator is used instead.
func (c *Config) Estimator() tokens.Estimator {
	if strings.EqualFold(c.Tokens.Estimator, "bpe") {
		bpe, err := tokens.NewBPE(c.Tokens.ImageTokens)
		if err == nil {
			return bpe
		}
		log.Warnf("bpe estimator unavailable, falling back to heuristic: %v", err)
	}
	return tokens.NewHeuristic(c.Tokens.CharsPerToken, c.Tokens.ImageTokens)
}

// OpenStore opens the configured snapshot store.
func (c *Config) OpenStore() (store.SnapshotStore, error) {
	dir := c.Store.Dir
	if dir == "" {
		base, err := ConfigDir()
		if err != nil {
			return nil, err
		}
		dir = filepath.Join(base, "snapshots")
	}

	if strings.EqualFold(c.Store.Backend, "sqlite") {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
		return store.NewSQLiteStore(filepath.Join(dir, "snapshots.db"))
	}

	fs, err := store.NewFileStore(dir)
	if err != nil {
		return nil, err
	}
	fs.MaxSnapshots = c.Store.MaxSnapshots
	return fs, nil
}

// =============================================================================
// GET/SET HELPERS (DOT NOTATION)
// =============================================================================

// Get retrieves a configuration value using dot notation (e.g., "budget.max_input_tokens").
func (c *Config) Get(key string) (interface{}, error) {
	parts := strings.Split(key, ".")
	if len(parts) == 0 {
		return nil, errors.New("empty key")
	}

	v := reflect.ValueOf(c).Elem()
	for i, part := range parts {
		fieldName := normalizeFieldName(part)

		field := v.FieldByNameFunc(func(name string) bool {
			return strings.EqualFold(name, fieldName)
		})

		if !field.IsValid() {
			return nil, fmt.Errorf("unknown field: %s", strings.Join(parts[:i+1], "."))
		}

		if i == len(parts)-1 {
			return field.Interface(), nil
		}

		if field.Kind() == reflect.Struct {
			v = field
		} else {
			return nil, fmt.Errorf("field '%s' is not a struct", strings.Join(parts[:i+1], "."))
		}
	}

	return nil, fmt.Errorf("invalid key: %s", key)
}

// Set sets a configuration value using dot notation (e.g., "budget.preserve_recent").
func (c *Config) Set(key string, value interface{}) error {
	parts := strings.Split(key, ".")
	if len(parts) == 0 {
		return errors.New("empty key")
	}

	v := reflect.ValueOf(c).Elem()
	for i, part := range parts {
		fieldName := normalizeFieldName(part)

		field := v.FieldByNameFunc(func(name string) bool {
			return strings.EqualFold(name, fieldName)
		})

		if !field.IsValid() {
			return fmt.Errorf("unknown field: %s", strings.Join(parts[:i+1], "."))
		}

		if i == len(parts)-1 {
			if !field.CanSet() {
				return fmt.Errorf("cannot set field: %s", key)
			}
			return setFieldValue(field, value)
		}

		if field.Kind() == reflect.Struct {
			v = field
		} else {
			return fmt.Errorf("field '%s' is not a struct", strings.Join(parts[:i+1], "."))
		}
	}

	return fmt.Errorf("invalid key: %s", key)
}

// normalizeFieldName converts a snake_case or kebab-case name to its Go field equivalent.
func normalizeFieldName(name string) string {
	parts := strings.FieldsFunc(name, func(r rune) bool {
		return r == '_' || r == '-'
	})

	var result strings.Builder
	for _, part := range parts {
		if len(part) > 0 {
			result.WriteString(strings.ToUpper(string(part[0])))
			result.WriteString(strings.ToLower(part[1:]))
		}
	}

	return result.String()
}

// setFieldValue sets a reflect.Value from an interface{} value with type conversion.
func setFieldValue(field reflect.Value, value interface{}) error {
	if strVal, ok := value.(string); ok {
		switch field.Kind() {
		case reflect.String:
			field.SetString(strVal)
			return nil
		case reflect.Int, reflect.Int64:
			intVal, err := strconv.ParseInt(strVal, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid integer value: %v", err)
			}
			field.SetInt(intVal)
			return nil
		case reflect.Bool:
			boolVal := strVal == "1" || strings.ToLower(strVal) == "true" || strings.ToLower(strVal) == "yes"
			field.SetBool(boolVal)
			return nil
		}
	}

	val := reflect.ValueOf(value)
	if val.Type().AssignableTo(field.Type()) {
		field.Set(val)
		return nil
	}

	if val.Type().ConvertibleTo(field.Type()) {
		field.Set(val.Convert(field.Type()))
		return nil
	}

	return fmt.Errorf("cannot assign %T to %s", value, field.Type())
}

// GetAllKeys returns all configuration keys in dot notation.
func GetAllKeys() []string {
	return []string{
		"version",
		"budget.max_input_tokens",
		"budget.preserve_recent",
		"budget.compress_keep_recent",
		"budget.summarize_limit",
		"tokens.estimator",
		"tokens.chars_per_token",
		"tokens.image_tokens",
		"store.backend",
		"store.dir",
		"store.max_snapshots",
		"session.autosave_secs",
	}
}

// =============================================================================
// SINGLETON PATTERN (THREAD-SAFE)
// =============================================================================

var (
	globalConfig     *Config
	globalConfigOnce sync.Once
	globalConfigMu   sync.RWMutex
)

// Global returns the global configuration instance.
// Loads configuration on first access. Thread-safe.
func Global() *Config {
	globalConfigOnce.Do(func() {
		cfg, err := Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v (using defaults)\n", err)
			cfg = Default()
		}
		globalConfig = cfg
	})

	globalConfigMu.RLock()
	defer globalConfigMu.RUnlock()
	return globalConfig
}

// SetGlobal sets the global configuration instance. Thread-safe.
func SetGlobal(cfg *Config) {
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = cfg
}

// ResetGlobalForTesting resets the global config state for testing.
func ResetGlobalForTesting() {
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = nil
	globalConfigOnce = sync.Once{}
}
