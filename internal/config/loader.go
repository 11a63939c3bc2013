package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix for environment overrides.
const EnvPrefix = "INKWELL_"

// envAliases maps short variable names to setting keys. Any other
// INKWELL_SECTION_NAME variable maps to section.name.
var envAliases = map[string]string{
	"LOG_LEVEL":  "logging.level",
	"LOG_FORMAT": "logging.format",
	"LOG_OUTPUT": "logging.output",
}

// ParseError represents an error while parsing a configuration file.
type ParseError struct {
	// Path is the file path that failed to parse.
	Path string
	// Line is the line number where the error occurred (if available).
	Line int
	// Column is the column number where the error occurred (if available).
	Column int
	// Message describes the parse error.
	Message string
	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	if e.Line > 0 && e.Column > 0 {
		return fmt.Sprintf("parse error in %s at line %d, column %d: %s", e.Path, e.Line, e.Column, e.Message)
	}
	return fmt.Sprintf("parse error in %s: %s", e.Path, e.Message)
}

// Unwrap returns the underlying error.
func (e *ParseError) Unwrap() error {
	return e.Err
}

// Load builds a configuration from defaults, the file at path (if not
// empty), and the process environment. The result is validated.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.ApplyEnv(os.Environ()); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadFile merges the file at path over c. The format follows the
// extension: .toml, .yaml or .yml.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file %s: %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return c.decodeTOML(path, data)
	case ".yaml", ".yml":
		return c.decodeYAML(path, data)
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
}

// decodeTOML merges TOML data over c. Keys absent from data keep their
// current values.
func (c *Config) decodeTOML(source string, data []byte) error {
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(c); err != nil {
		pe := &ParseError{Path: source, Message: err.Error(), Err: err}
		var de *toml.DecodeError
		if errors.As(err, &de) {
			pe.Line, pe.Column = de.Position()
		}
		var se *toml.StrictMissingError
		if errors.As(err, &se) && len(se.Errors) > 0 {
			first := &se.Errors[0]
			pe.Line, pe.Column = first.Position()
			if key := first.Key(); len(key) > 0 {
				pe.Message = "unknown setting: " + strings.Join(key, ".")
			} else {
				pe.Message = se.String()
			}
		}
		return pe
	}
	return nil
}

// decodeYAML merges YAML data over c.
func (c *Config) decodeYAML(source string, data []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil {
		if errors.Is(err, io.EOF) {
			// Empty document.
			return nil
		}
		return &ParseError{Path: source, Message: err.Error(), Err: err}
	}
	return nil
}

// ApplyEnv applies INKWELL_* variables from environ, given in "KEY=value"
// form. Variables are applied in sorted order so errors are stable.
func (c *Config) ApplyEnv(environ []string) error {
	vars := make(map[string]string)
	for _, kv := range environ {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(key, EnvPrefix) {
			continue
		}
		vars[key] = value
	}

	names := make([]string, 0, len(vars))
	for name := range vars {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		key, ok := envKey(name)
		if !ok {
			continue
		}
		if err := c.Set(key, vars[name]); err != nil {
			return fmt.Errorf("environment %s: %w", name, err)
		}
	}
	return nil
}

// envKey maps INKWELL_AUTOSAVE_MAX_BACKOFF to autosave.max_backoff.
// The first underscore separates the section from the setting name.
func envKey(name string) (string, bool) {
	rest := strings.TrimPrefix(name, EnvPrefix)
	if rest == "" {
		return "", false
	}
	if key, ok := envAliases[rest]; ok {
		return key, true
	}
	section, setting, ok := strings.Cut(strings.ToLower(rest), "_")
	if !ok || setting == "" {
		return "", false
	}
	key := section + "." + setting
	for _, k := range Keys() {
		if k == key {
			return key, true
		}
	}
	return "", false
}

// ApplyOverrides applies "key=value" pairs, as given on the command line.
func (c *Config) ApplyOverrides(pairs []string) error {
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			return fmt.Errorf("%w: override %q is not key=value", ErrInvalidValue, pair)
		}
		if err := c.Set(strings.TrimSpace(key), value); err != nil {
			return err
		}
	}
	return nil
}

// TOML renders c as a TOML document.
func (c Config) TOML() ([]byte, error) {
	return toml.Marshal(c)
}
