package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/oshokin/hang-sentinel/internal/timeout"
)

// Config holds deadline enforcement parameters shared by the sentinel binaries.
type Config struct {
	// TimeoutSeconds is the default time limit applied to every unit of
	// work, in seconds. Zero disables enforcement.
	TimeoutSeconds float64 `yaml:"timeout_seconds"`
	// Method selects the enforcement strategy: auto, signal or thread.
	Method string `yaml:"method"`
	// AbortExitCode is the process exit status used when a kill-process
	// escalation fires. Zero picks the default.
	AbortExitCode int `yaml:"abort_exit_code"`
	// TracerSeconds schedules a diagnostic stack dump for units still
	// running after this many seconds. Zero disables the tracer.
	TracerSeconds float64 `yaml:"tracer_seconds"`
	// LogLevel is the minimum level for log messages.
	LogLevel string `yaml:"log_level"`
}

const (
	// DefaultConfigFilename is the default filename for sentinel settings.
	DefaultConfigFilename = "hang-sentinel-settings.yaml"

	// DefaultMethod is the enforcement strategy used when none is configured.
	DefaultMethod = "auto"

	// DefaultLogLevel is the log level used when none is configured.
	DefaultLogLevel = "info"

	// DefaultFilePermissions is the default file permission for config files.
	DefaultFilePermissions = 0o600

	// EnvTimeout names the environment variable overriding the default
	// time limit, in seconds.
	EnvTimeout = "SENTINEL_TIMEOUT"

	// EnvMethod names the environment variable overriding the
	// enforcement strategy.
	EnvMethod = "SENTINEL_METHOD"
)

var (
	// errConfigIsNotSet is returned when a nil configuration is provided.
	errConfigIsNotSet = errors.New("configuration is not set")
	// errAbortCodeOutOfRange is returned when the abort exit status cannot
	// be reported by a process.
	errAbortCodeOutOfRange = errors.New("abort exit code must be between 1 and 255")
)

// Default returns the configuration used when no settings file exists:
// enforcement disabled, platform strategy, standard abort status.
func Default() *Config {
	return &Config{
		Method:        DefaultMethod,
		AbortExitCode: timeout.DefaultAbortExitCode,
		LogLevel:      DefaultLogLevel,
	}
}

// Load reads configuration from the provided path and validates it.
// With an empty path the default filename is used, and its absence is
// not an error: the defaults apply.
func Load(path string) (*Config, error) {
	usingDefaultPath := path == ""
	if usingDefaultPath {
		path = DefaultConfigFilename
	}

	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		if usingDefaultPath && errors.Is(err, fs.ErrNotExist) {
			return Default(), nil
		}

		return nil, fmt.Errorf("read settings: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(contents, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save writes the configuration to the provided path.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if path == "" {
		path = DefaultConfigFilename
	}

	if err := Validate(cfg); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	// Restrict permissions.
	if err := os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	return nil
}

// ApplyEnv overlays environment variables onto the configuration.
// Environment values rank above the settings file and below flags.
func ApplyEnv(cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if raw, ok := os.LookupEnv(EnvTimeout); ok {
		seconds, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return fmt.Errorf("parse %s: %w", EnvTimeout, err)
		}

		cfg.TimeoutSeconds = seconds
	}

	if raw, ok := os.LookupEnv(EnvMethod); ok {
		cfg.Method = strings.TrimSpace(raw)
	}

	return nil
}

// Validate checks the provided configuration and fills in defaults for
// unset fields.
func Validate(cfg *Config) error {
	if _, err := timeout.DurationFromSeconds(cfg.TimeoutSeconds); err != nil {
		return fmt.Errorf("invalid timeout: %w", err)
	}

	if _, err := timeout.DurationFromSeconds(cfg.TracerSeconds); err != nil {
		return fmt.Errorf("invalid tracer limit: %w", err)
	}

	if _, err := timeout.ParseStrategy(cfg.Method); err != nil {
		return fmt.Errorf("invalid method: %w", err)
	}

	// Set default method if not specified.
	if cfg.Method == "" {
		cfg.Method = DefaultMethod
	}

	// Set default abort status if not specified.
	if cfg.AbortExitCode == 0 {
		cfg.AbortExitCode = timeout.DefaultAbortExitCode
	}

	if cfg.AbortExitCode < 1 || cfg.AbortExitCode > 255 {
		return errAbortCodeOutOfRange
	}

	if cfg.LogLevel == "" {
		cfg.LogLevel = DefaultLogLevel
	}

	return nil
}
