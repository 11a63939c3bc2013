// Package config loads runtime settings.
//
// Settings are layered: built-in defaults, then an optional TOML or YAML
// file, then INKWELL_* environment variables, then explicit key=value
// overrides. The result is validated before use.
package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Errors returned by configuration operations.
var (
	// ErrUnknownKey indicates a setting key that does not exist.
	ErrUnknownKey = errors.New("unknown setting")

	// ErrInvalidValue indicates a value that cannot be parsed or is out of range.
	ErrInvalidValue = errors.New("invalid value")

	// ErrUnsupportedFormat indicates a config file extension with no loader.
	ErrUnsupportedFormat = errors.New("unsupported config format")
)

// Duration is a time.Duration written as a Go duration string ("3s").
type Duration time.Duration

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// String returns the duration string.
func (d Duration) String() string {
	return time.Duration(d).String()
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidValue, err)
	}
	*d = Duration(v)
	return nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	return d.UnmarshalText([]byte(node.Value))
}

// Config holds all settings.
type Config struct {
	Autosave AutosaveConfig `toml:"autosave" yaml:"autosave" json:"autosave"`
	Review   ReviewConfig   `toml:"review" yaml:"review" json:"review"`
	Store    StoreConfig    `toml:"store" yaml:"store" json:"store"`
	Watch    WatchConfig    `toml:"watch" yaml:"watch" json:"watch"`
	Logging  LoggingConfig  `toml:"logging" yaml:"logging" json:"logging"`
	Metrics  MetricsConfig  `toml:"metrics" yaml:"metrics" json:"metrics"`
}

// AutosaveConfig configures background saving.
type AutosaveConfig struct {
	// Delay is the quiet period after the last edit before saving.
	Delay Duration `toml:"delay" yaml:"delay" json:"delay"`
	// MaxBackoff caps the retry delay after repeated failures.
	MaxBackoff Duration `toml:"max_backoff" yaml:"max_backoff" json:"max_backoff"`
}

// ReviewConfig configures suggestion review.
type ReviewConfig struct {
	// ScrollLock is how long a mirrored scroll suppresses echoes.
	ScrollLock Duration `toml:"scroll_lock" yaml:"scroll_lock" json:"scroll_lock"`
}

// StoreConfig configures the document store.
type StoreConfig struct {
	// Root is the directory documents live in.
	Root string `toml:"root" yaml:"root" json:"root"`
	// MaxFileSize is the largest file that can be opened. Zero is unlimited.
	MaxFileSize int64 `toml:"max_file_size" yaml:"max_file_size" json:"max_file_size"`
}

// WatchConfig configures external change detection.
type WatchConfig struct {
	Enabled  bool     `toml:"enabled" yaml:"enabled" json:"enabled"`
	Debounce Duration `toml:"debounce" yaml:"debounce" json:"debounce"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `toml:"level" yaml:"level" json:"level"`
	Format string `toml:"format" yaml:"format" json:"format"`
	Output string `toml:"output" yaml:"output" json:"output"`
}

// MetricsConfig configures the metrics endpoint.
type MetricsConfig struct {
	// Addr is the listen address for /metrics. Empty disables it.
	Addr string `toml:"addr" yaml:"addr" json:"addr"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Autosave: AutosaveConfig{
			Delay:      Duration(3 * time.Second),
			MaxBackoff: Duration(time.Minute),
		},
		Review: ReviewConfig{
			ScrollLock: Duration(50 * time.Millisecond),
		},
		Store: StoreConfig{
			Root:        ".",
			MaxFileSize: 10 * 1024 * 1024, // 10MB
		},
		Watch: WatchConfig{
			Enabled:  true,
			Debounce: Duration(100 * time.Millisecond),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stderr",
		},
	}
}

// Keys returns all setting keys in display order.
func Keys() []string {
	return []string{
		"autosave.delay",
		"autosave.max_backoff",
		"review.scroll_lock",
		"store.root",
		"store.max_file_size",
		"watch.enabled",
		"watch.debounce",
		"logging.level",
		"logging.format",
		"logging.output",
		"metrics.addr",
	}
}

// Set assigns a setting from its string form.
func (c *Config) Set(key, value string) error {
	value = strings.TrimSpace(value)
	var err error
	switch key {
	case "autosave.delay":
		err = c.Autosave.Delay.UnmarshalText([]byte(value))
	case "autosave.max_backoff":
		err = c.Autosave.MaxBackoff.UnmarshalText([]byte(value))
	case "review.scroll_lock":
		err = c.Review.ScrollLock.UnmarshalText([]byte(value))
	case "store.root":
		c.Store.Root = value
	case "store.max_file_size":
		c.Store.MaxFileSize, err = strconv.ParseInt(value, 10, 64)
	case "watch.enabled":
		c.Watch.Enabled, err = parseBool(value)
	case "watch.debounce":
		err = c.Watch.Debounce.UnmarshalText([]byte(value))
	case "logging.level":
		c.Logging.Level = strings.ToLower(value)
	case "logging.format":
		c.Logging.Format = strings.ToLower(value)
	case "logging.output":
		c.Logging.Output = value
	case "metrics.addr":
		c.Metrics.Addr = value
	default:
		return fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}
	if err != nil {
		if errors.Is(err, ErrInvalidValue) {
			return fmt.Errorf("%s: %w", key, err)
		}
		return fmt.Errorf("%s: %w: %v", key, ErrInvalidValue, err)
	}
	return nil
}

// Get returns the string form of a setting.
func (c *Config) Get(key string) (string, error) {
	switch key {
	case "autosave.delay":
		return c.Autosave.Delay.String(), nil
	case "autosave.max_backoff":
		return c.Autosave.MaxBackoff.String(), nil
	case "review.scroll_lock":
		return c.Review.ScrollLock.String(), nil
	case "store.root":
		return c.Store.Root, nil
	case "store.max_file_size":
		return strconv.FormatInt(c.Store.MaxFileSize, 10), nil
	case "watch.enabled":
		return strconv.FormatBool(c.Watch.Enabled), nil
	case "watch.debounce":
		return c.Watch.Debounce.String(), nil
	case "logging.level":
		return c.Logging.Level, nil
	case "logging.format":
		return c.Logging.Format, nil
	case "logging.output":
		return c.Logging.Output, nil
	case "metrics.addr":
		return c.Metrics.Addr, nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnknownKey, key)
}

// Validate checks that all settings are usable.
func (c *Config) Validate() error {
	var errs []error
	if c.Autosave.Delay <= 0 {
		errs = append(errs, fmt.Errorf("autosave.delay: %w: must be positive", ErrInvalidValue))
	}
	if c.Autosave.MaxBackoff < c.Autosave.Delay {
		errs = append(errs, fmt.Errorf("autosave.max_backoff: %w: must be at least autosave.delay", ErrInvalidValue))
	}
	if c.Review.ScrollLock <= 0 {
		errs = append(errs, fmt.Errorf("review.scroll_lock: %w: must be positive", ErrInvalidValue))
	}
	if c.Store.Root == "" {
		errs = append(errs, fmt.Errorf("store.root: %w: must not be empty", ErrInvalidValue))
	}
	if c.Store.MaxFileSize < 0 {
		errs = append(errs, fmt.Errorf("store.max_file_size: %w: must not be negative", ErrInvalidValue))
	}
	if c.Watch.Debounce < 0 {
		errs = append(errs, fmt.Errorf("watch.debounce: %w: must not be negative", ErrInvalidValue))
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("logging.level: %w: %q", ErrInvalidValue, c.Logging.Level))
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("logging.format: %w: %q", ErrInvalidValue, c.Logging.Format))
	}
	return errors.Join(errs...)
}

func parseBool(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "true", "yes", "on", "1":
		return true, nil
	case "false", "no", "off", "0":
		return false, nil
	}
	return false, fmt.Errorf("%w: %q is not a boolean", ErrInvalidValue, s)
}
