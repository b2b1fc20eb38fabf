package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/oshokin/fetchcore/internal/constants"
	"github.com/oshokin/fetchcore/internal/engine"
	"github.com/oshokin/fetchcore/internal/logger"
	http_transport "github.com/oshokin/fetchcore/internal/transport/http"
	"github.com/oshokin/fetchcore/internal/utils"
)

// Config holds all configuration settings.
type Config struct {
	// LogLevel specifies the logging verbosity level.
	LogLevel string `mapstructure:"log_level" yaml:"log_level"`
	// WorkerThreads is the number of runtime workers; 0 means one per CPU.
	WorkerThreads int `mapstructure:"worker_threads" yaml:"worker_threads"`
	// BodyMode selects how response bodies are materialized: "text" or "bytes".
	BodyMode string `mapstructure:"body_mode" yaml:"body_mode"`
	// PoolIdleTimeout is how long an idle pooled connection is kept open (e.g., "90s").
	PoolIdleTimeout string `mapstructure:"pool_idle_timeout" yaml:"pool_idle_timeout"`
	// PoolMaxIdlePerHost is the maximum number of idle connections kept per host.
	PoolMaxIdlePerHost int `mapstructure:"pool_max_idle_per_host" yaml:"pool_max_idle_per_host"`
	// RequestTimeout bounds requests without a timeout of their own. "0" disables it.
	RequestTimeout string `mapstructure:"request_timeout" yaml:"request_timeout"`
	// MaxRedirects is the maximum number of redirects followed by one request.
	MaxRedirects int `mapstructure:"max_redirects" yaml:"max_redirects"`
	// MaxBodySize limits response bodies (e.g., "10MB"). "0" disables the limit.
	MaxBodySize string `mapstructure:"max_body_size" yaml:"max_body_size"`
	// UserAgent is sent when a request carries no User-Agent header.
	UserAgent string `mapstructure:"user_agent" yaml:"user_agent"`
	// MaxLogLength caps the size of request and response dumps in debug logs.
	MaxLogLength uint64 `mapstructure:"max_log_length" yaml:"max_log_length"`
	// ParsedLogLevel is the parsed zap log level.
	ParsedLogLevel zapcore.Level `mapstructure:"-" yaml:"-"`
	// ParsedBodyMode is the parsed body mode.
	ParsedBodyMode engine.BodyMode `mapstructure:"-" yaml:"-"`
	// ParsedPoolIdleTimeout is the parsed idle connection timeout.
	ParsedPoolIdleTimeout time.Duration `mapstructure:"-" yaml:"-"`
	// ParsedRequestTimeout is the parsed default request timeout.
	ParsedRequestTimeout time.Duration `mapstructure:"-" yaml:"-"`
	// ParsedMaxBodySize is the parsed body size limit in bytes.
	ParsedMaxBodySize int64 `mapstructure:"-" yaml:"-"`
}

const (
	// DefaultConfigFilename is the default name of the configuration file.
	DefaultConfigFilename = ".fetchcore.yaml"

	// EnvPrefix is the prefix of environment variables overriding configuration keys.
	EnvPrefix = "FETCHCORE"

	// DefaultLogLevel is the default logging verbosity level.
	DefaultLogLevel = "info"

	// DefaultRequestTimeout disables the default request timeout.
	DefaultRequestTimeout = "0s"

	// DefaultMaxBodySize disables the body size limit.
	DefaultMaxBodySize = "0"

	// DefaultMaxLogLength is the default maximum size (in bytes) of a logged dump.
	DefaultMaxLogLength = http_transport.DefaultMaxLogLength
)

// Static error definitions for better error handling.
var (
	// ErrUnknownLogLevel indicates that the log level is not recognized.
	ErrUnknownLogLevel = errors.New("unknown log level")
	// ErrInvalidWorkerThreads indicates a negative worker count.
	ErrInvalidWorkerThreads = errors.New("worker_threads must be zero or a positive integer")
	// ErrInvalidPoolIdleTimeout indicates a non-positive idle timeout.
	ErrInvalidPoolIdleTimeout = errors.New("pool_idle_timeout must be positive")
	// ErrInvalidPoolMaxIdlePerHost indicates a non-positive idle connection count.
	ErrInvalidPoolMaxIdlePerHost = errors.New("pool_max_idle_per_host must be a positive integer")
	// ErrInvalidRequestTimeout indicates a negative request timeout.
	ErrInvalidRequestTimeout = errors.New("request_timeout must not be negative")
	// ErrInvalidMaxRedirects indicates a non-positive redirect limit.
	ErrInvalidMaxRedirects = errors.New("max_redirects must be a positive integer")
	// ErrConfigExists indicates that config init would overwrite an existing file.
	ErrConfigExists = errors.New("config file already exists")
)

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() *Config {
	return &Config{
		LogLevel:           DefaultLogLevel,
		WorkerThreads:      0,
		BodyMode:           string(engine.DefaultBodyMode),
		PoolIdleTimeout:    engine.DefaultIdleTimeout.String(),
		PoolMaxIdlePerHost: engine.DefaultMaxIdlePerHost,
		RequestTimeout:     DefaultRequestTimeout,
		MaxRedirects:       engine.DefaultMaxRedirects,
		MaxBodySize:        DefaultMaxBodySize,
		UserAgent:          "",
		MaxLogLength:       DefaultMaxLogLength,
	}
}

// LoadConfig loads configuration settings from a YAML file and FETCHCORE_* environment variables.
// An empty filename selects DefaultConfigFilename, which may be absent; an explicit file must exist.
func LoadConfig(configFilename string) (*Config, error) {
	optional := configFilename == ""
	if optional {
		configFilename = DefaultConfigFilename
	}

	v := newViper()
	v.SetConfigFile(configFilename)

	if err := v.ReadInConfig(); err != nil {
		if !optional || !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config from file: %w", err)
		}

		logger.Debugf(context.Background(), "Config file '%s' not found, using defaults", configFilename)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// newViper returns a viper instance with every key defaulted and bound to its environment variable.
func newViper() *viper.Viper {
	v := viper.New()
	defaults := DefaultConfig()

	v.SetDefault("log_level", defaults.LogLevel)
	v.SetDefault("worker_threads", defaults.WorkerThreads)
	v.SetDefault("body_mode", defaults.BodyMode)
	v.SetDefault("pool_idle_timeout", defaults.PoolIdleTimeout)
	v.SetDefault("pool_max_idle_per_host", defaults.PoolMaxIdlePerHost)
	v.SetDefault("request_timeout", defaults.RequestTimeout)
	v.SetDefault("max_redirects", defaults.MaxRedirects)
	v.SetDefault("max_body_size", defaults.MaxBodySize)
	v.SetDefault("user_agent", defaults.UserAgent)
	v.SetDefault("max_log_length", defaults.MaxLogLength)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	return v
}

// ValidateConfig checks the configuration for validity and sets derived fields.
//
//nolint:cyclop // Validation is a flat sequence of checks.
func ValidateConfig(cfg *Config) error {
	var err error

	parsedLogLevel, isLogLevelCorrect := logger.ParseLogLevel(cfg.LogLevel)
	if !isLogLevelCorrect {
		return fmt.Errorf("%w: '%s'", ErrUnknownLogLevel, cfg.LogLevel)
	}

	cfg.ParsedLogLevel = parsedLogLevel

	if cfg.WorkerThreads < 0 {
		return ErrInvalidWorkerThreads
	}

	cfg.ParsedBodyMode, err = engine.ParseBodyMode(cfg.BodyMode)
	if err != nil {
		return fmt.Errorf("failed to parse body mode: %w", err)
	}

	cfg.ParsedPoolIdleTimeout, err = time.ParseDuration(cfg.PoolIdleTimeout)
	if err != nil {
		return fmt.Errorf("failed to parse pool idle timeout: %w", err)
	}

	if cfg.ParsedPoolIdleTimeout <= 0 {
		return ErrInvalidPoolIdleTimeout
	}

	if cfg.PoolMaxIdlePerHost <= 0 {
		return ErrInvalidPoolMaxIdlePerHost
	}

	cfg.ParsedRequestTimeout, err = parseOptionalDuration(cfg.RequestTimeout)
	if err != nil {
		return fmt.Errorf("failed to parse request timeout: %w", err)
	}

	if cfg.ParsedRequestTimeout < 0 {
		return ErrInvalidRequestTimeout
	}

	if cfg.MaxRedirects <= 0 {
		return ErrInvalidMaxRedirects
	}

	var parsedMaxBodySize uint64

	if maxBodySize := strings.TrimSpace(cfg.MaxBodySize); maxBodySize != "" && maxBodySize != "0" {
		parsedMaxBodySize, err = humanize.ParseBytes(maxBodySize)
		if err != nil {
			return fmt.Errorf("failed to parse max body size: %w", err)
		}
	}

	// The body reader limits with int64, so the value is converted safely.
	cfg.ParsedMaxBodySize = utils.SafeUint64ToInt64(parsedMaxBodySize)

	if cfg.MaxLogLength == 0 {
		cfg.MaxLogLength = DefaultMaxLogLength
	}

	return nil
}

func parseOptionalDuration(value string) (time.Duration, error) {
	value = strings.TrimSpace(value)
	if value == "" || value == "0" {
		return 0, nil
	}

	return time.ParseDuration(value)
}

// EngineSettings converts a validated configuration to engine settings.
func (cfg *Config) EngineSettings() engine.Settings {
	return engine.Settings{
		WorkerThreads:  cfg.WorkerThreads,
		BodyMode:       cfg.ParsedBodyMode,
		IdleTimeout:    cfg.ParsedPoolIdleTimeout,
		MaxIdlePerHost: cfg.PoolMaxIdlePerHost,
		RequestTimeout: cfg.ParsedRequestTimeout,
		MaxRedirects:   cfg.MaxRedirects,
		MaxBodySize:    cfg.ParsedMaxBodySize,
		UserAgent:      cfg.UserAgent,
		MaxLogLength:   cfg.MaxLogLength,
	}
}

// SaveConfig writes cfg to configFile as YAML. An empty name selects DefaultConfigFilename.
// An existing file is kept unless overwrite is set.
func SaveConfig(configFile string, cfg *Config, overwrite bool) error {
	if configFile == "" {
		configFile = DefaultConfigFilename
	}

	if !overwrite {
		if _, err := os.Stat(configFile); err == nil {
			return fmt.Errorf("%w: '%s'", ErrConfigExists, configFile)
		} else if !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to check config file: %w", err)
		}
	}

	content, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal YAML: %w", err)
	}

	if err = os.WriteFile(configFile, content, constants.DefaultFilePermissions); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
