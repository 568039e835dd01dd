// Copyright (c) 2025 The Lantern Authors
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete lantern configuration.
type Config struct {
	// General settings
	Version string `toml:"version"`

	// Backend (model server) configuration
	Backend BackendConfig `toml:"backend"`

	// Storage configuration
	Storage StorageConfig `toml:"storage"`

	// Send orchestration configuration
	Send SendConfig `toml:"send"`

	// Compare mode configuration
	Compare CompareConfig `toml:"compare"`

	// UI configuration
	UI UIConfig `toml:"ui"`
}

// BackendConfig contains model backend configuration.
type BackendConfig struct {
	// BaseURL is the URL of the inference server
	BaseURL string `toml:"base_url"`
	// Model is the default model to chat with
	Model string `toml:"model"`
	// SystemPrompt is prepended to every conversation when set
	SystemPrompt string `toml:"system_prompt"`
	// ConnectTimeoutSecs bounds connection establishment
	ConnectTimeoutSecs int `toml:"connect_timeout_secs"`
	// RequestsPerMinute rate-limits outgoing requests (0 = default)
	RequestsPerMinute int `toml:"requests_per_minute"`
	// Temperature is the sampling temperature (0 = server default)
	Temperature float64 `toml:"temperature"`
	// MaxTokens caps the response length (0 = server default)
	MaxTokens int `toml:"max_tokens"`
}

// StorageConfig contains conversation persistence configuration.
type StorageConfig struct {
	// DatabasePath is the sqlite database location
	// (empty = ~/.lantern/conversations.db)
	DatabasePath string `toml:"database_path"`
	// ReadyTimeoutSecs is how long to wait for storage before declaring it
	// failed. Fatal until restart once exceeded.
	ReadyTimeoutSecs int `toml:"ready_timeout_secs"`
}

// SendConfig contains the orchestration timing knobs. The lock timeout and
// the stuck deadline are independent constants; neither derives from the
// other.
type SendConfig struct {
	// QueueExpirySecs is the max age of a queued submission at drain time
	QueueExpirySecs int `toml:"queue_expiry_secs"`
	// LockTimeoutSecs force-releases the submission lock
	LockTimeoutSecs int `toml:"lock_timeout_secs"`
	// SweepIntervalSecs is the stuck-message watchdog interval
	SweepIntervalSecs int `toml:"sweep_interval_secs"`
	// StuckDeadlineSecs is how old a streaming message may be before the
	// watchdog force-finalizes it
	StuckDeadlineSecs int `toml:"stuck_deadline_secs"`
	// MaxRetries bounds silent retries of blank first-turn responses
	MaxRetries int `toml:"max_retries"`
	// RetryBaseDelayMs is multiplied by the retry count between attempts
	RetryBaseDelayMs int `toml:"retry_base_delay_ms"`
}

// CompareConfig contains fan-out comparison configuration.
type CompareConfig struct {
	// Targets are the models compared by /compare
	Targets []string `toml:"targets"`
}

// UIConfig contains user interface configuration.
type UIConfig struct {
	// Theme selects the color theme: "dark" or "light"
	Theme string `toml:"theme"`
	// ShowStats renders response time and tokens/s under messages
	ShowStats bool `toml:"show_stats"`
	// Markdown renders finalized assistant messages through glamour
	Markdown bool `toml:"markdown"`
}

// =============================================================================
// DEFAULTS
// =============================================================================

// Default returns the built-in default configuration.
func Default() *Config {
	return &Config{
		Version: "1.0.0",

		Backend: BackendConfig{
			BaseURL:            "http://127.0.0.1:11434",
			Model:              "llama3.2",
			ConnectTimeoutSecs: 5,
			RequestsPerMinute:  60,
		},

		Storage: StorageConfig{
			ReadyTimeoutSecs: 15,
		},

		Send: SendConfig{
			QueueExpirySecs:   30,
			LockTimeoutSecs:   30,
			SweepIntervalSecs: 30,
			StuckDeadlineSecs: 120,
			MaxRetries:        2,
			RetryBaseDelayMs:  1000,
		},

		Compare: CompareConfig{
			Targets: []string{},
		},

		UI: UIConfig{
			Theme:     "dark",
			ShowStats: true,
			Markdown:  true,
		},
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// Dir returns the lantern configuration directory path.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".lantern"), nil
}

// Path returns the configuration file path.
func Path() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// EnsureDir creates the configuration directory if needed.
func EnsureDir() error {
	dir, err := Dir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0755)
}

// =============================================================================
// LOADING
// =============================================================================

// Load reads the configuration file, falling back to defaults when absent.
// Environment overrides are applied last, then validation with clamping.
func Load() (*Config, error) {
	path, err := Path()
	if err != nil {
		path = ""
	}
	return LoadFromPath(path)
}

// LoadFromPath loads configuration from a specific file path. An empty or
// missing path yields the defaults.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if _, err := toml.DecodeFile(path, cfg); err != nil {
				return nil, fmt.Errorf("failed to decode config: %w", err)
			}
		}
	}

	cfg.ApplyEnvOverrides()
	cfg.Clamp()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Save writes the configuration to the default file.
func Save(cfg *Config) error {
	if err := EnsureDir(); err != nil {
		return err
	}
	path, err := Path()
	if err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides:
//   - LANTERN_MODEL: overrides backend.model
//   - LANTERN_BASE_URL: overrides backend.base_url
//   - LANTERN_SYSTEM_PROMPT: overrides backend.system_prompt
//   - LANTERN_DB_PATH: overrides storage.database_path
//   - LANTERN_THEME: overrides ui.theme
//   - LANTERN_COMPARE_TARGETS: comma-separated, overrides compare.targets
func (c *Config) ApplyEnvOverrides() {
	if model := os.Getenv("LANTERN_MODEL"); model != "" {
		c.Backend.Model = model
	}
	if base := os.Getenv("LANTERN_BASE_URL"); base != "" {
		c.Backend.BaseURL = base
	}
	if prompt := os.Getenv("LANTERN_SYSTEM_PROMPT"); prompt != "" {
		c.Backend.SystemPrompt = prompt
	}
	if db := os.Getenv("LANTERN_DB_PATH"); db != "" {
		c.Storage.DatabasePath = db
	}
	if theme := os.Getenv("LANTERN_THEME"); theme != "" {
		c.UI.Theme = theme
	}
	if targets := os.Getenv("LANTERN_COMPARE_TARGETS"); targets != "" {
		var parsed []string
		for _, t := range strings.Split(targets, ",") {
			if t = strings.TrimSpace(t); t != "" {
				parsed = append(parsed, t)
			}
		}
		c.Compare.Targets = parsed
	}
	if rpm := os.Getenv("LANTERN_REQUESTS_PER_MINUTE"); rpm != "" {
		if n, err := strconv.Atoi(rpm); err == nil {
			c.Backend.RequestsPerMinute = n
		}
	}
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError describes a single invalid field.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

// Error implements the error interface.
func (e ValidateErrors) Error() string {
	msgs := make([]string, len(e))
	for i, err := range e {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}

// Clamp pulls out-of-range numeric values back to sane bounds rather than
// rejecting the file.
func (c *Config) Clamp() {
	def := Default()

	if c.Backend.ConnectTimeoutSecs <= 0 {
		c.Backend.ConnectTimeoutSecs = def.Backend.ConnectTimeoutSecs
	}
	if c.Backend.RequestsPerMinute <= 0 {
		c.Backend.RequestsPerMinute = def.Backend.RequestsPerMinute
	}
	if c.Storage.ReadyTimeoutSecs <= 0 {
		c.Storage.ReadyTimeoutSecs = def.Storage.ReadyTimeoutSecs
	}
	if c.Send.QueueExpirySecs <= 0 {
		c.Send.QueueExpirySecs = def.Send.QueueExpirySecs
	}
	if c.Send.LockTimeoutSecs <= 0 {
		c.Send.LockTimeoutSecs = def.Send.LockTimeoutSecs
	}
	if c.Send.SweepIntervalSecs <= 0 {
		c.Send.SweepIntervalSecs = def.Send.SweepIntervalSecs
	}
	if c.Send.StuckDeadlineSecs <= 0 {
		c.Send.StuckDeadlineSecs = def.Send.StuckDeadlineSecs
	}
	if c.Send.MaxRetries < 0 {
		c.Send.MaxRetries = def.Send.MaxRetries
	}
	if c.Send.MaxRetries > 5 {
		c.Send.MaxRetries = 5
	}
	if c.Send.RetryBaseDelayMs <= 0 {
		c.Send.RetryBaseDelayMs = def.Send.RetryBaseDelayMs
	}
	if c.Backend.Temperature < 0 {
		c.Backend.Temperature = 0
	}
	if c.Backend.Temperature > 2 {
		c.Backend.Temperature = 2
	}
	if c.Backend.MaxTokens < 0 {
		c.Backend.MaxTokens = 0
	}
}

// Validate checks the configuration and returns any errors.
func (c *Config) Validate() error {
	var errs ValidateErrors

	if c.Backend.BaseURL == "" {
		errs = append(errs, ValidationError{
			Field:   "backend.base_url",
			Message: "must not be empty",
		})
	} else if _, err := url.Parse(c.Backend.BaseURL); err != nil {
		errs = append(errs, ValidationError{
			Field:   "backend.base_url",
			Message: fmt.Sprintf("invalid URL: %v", err),
		})
	}

	if c.Backend.Model == "" {
		errs = append(errs, ValidationError{
			Field:   "backend.model",
			Message: "must not be empty",
		})
	}

	validThemes := map[string]bool{"dark": true, "light": true}
	if c.UI.Theme != "" && !validThemes[strings.ToLower(c.UI.Theme)] {
		errs = append(errs, ValidationError{
			Field:   "ui.theme",
			Message: fmt.Sprintf("invalid theme '%s', must be one of: dark, light", c.UI.Theme),
		})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// =============================================================================
// DERIVED VALUES
// =============================================================================

// ReadyTimeout returns the storage ready timeout as a duration.
func (c *Config) ReadyTimeout() time.Duration {
	return time.Duration(c.Storage.ReadyTimeoutSecs) * time.Second
}

// QueueExpiry returns the pending-submission expiry as a duration.
func (c *Config) QueueExpiry() time.Duration {
	return time.Duration(c.Send.QueueExpirySecs) * time.Second
}

// LockTimeout returns the lock force-release timeout as a duration.
func (c *Config) LockTimeout() time.Duration {
	return time.Duration(c.Send.LockTimeoutSecs) * time.Second
}

// SweepInterval returns the watchdog sweep interval as a duration.
func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.Send.SweepIntervalSecs) * time.Second
}

// StuckDeadline returns the stuck-message deadline as a duration.
func (c *Config) StuckDeadline() time.Duration {
	return time.Duration(c.Send.StuckDeadlineSecs) * time.Second
}

// RetryBaseDelay returns the retry base delay as a duration.
func (c *Config) RetryBaseDelay() time.Duration {
	return time.Duration(c.Send.RetryBaseDelayMs) * time.Millisecond
}

// ConnectTimeout returns the backend connect timeout as a duration.
func (c *Config) ConnectTimeout() time.Duration {
	return time.Duration(c.Backend.ConnectTimeoutSecs) * time.Second
}

// DatabasePath resolves the storage path, defaulting under the config dir.
func (c *Config) DatabasePath() (string, error) {
	if c.Storage.DatabasePath != "" {
		return c.Storage.DatabasePath, nil
	}
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "conversations.db"), nil
}
