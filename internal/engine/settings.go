package engine

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"
)

// BodyMode selects how a response body is materialized.
type BodyMode string

const (
	// BodyModeText decodes the body to UTF-8 text using the charset of the response.
	BodyModeText BodyMode = "text"
	// BodyModeBytes keeps the body as raw bytes.
	BodyModeBytes BodyMode = "bytes"
)

const (
	// DefaultIdleTimeout is how long an idle pooled connection is kept open.
	DefaultIdleTimeout = 90 * time.Second
	// DefaultMaxIdlePerHost is the maximum number of idle connections kept per host.
	DefaultMaxIdlePerHost = 10
	// DefaultMaxRedirects is the maximum number of redirects followed by one request.
	DefaultMaxRedirects = 10
	// DefaultBodyMode is the body mode used when none is configured.
	DefaultBodyMode = BodyModeText

	dialTimeout           = 30 * time.Second
	dialKeepAlive         = 30 * time.Second
	tlsHandshakeTimeout   = 10 * time.Second
	expectContinueTimeout = 1 * time.Second
	http2ReadIdleTimeout  = 30 * time.Second
	http2PingTimeout      = 15 * time.Second
)

// ErrUnknownBodyMode indicates that a body mode name is not recognized.
var ErrUnknownBodyMode = errors.New("unknown body mode")

// Settings holds the tuning of the runtime, the pool and the executor.
// Zero values are replaced with defaults.
type Settings struct {
	// WorkerThreads is the number of runtime workers; 0 means one per CPU.
	WorkerThreads int
	// BodyMode selects text or raw bytes response bodies.
	BodyMode BodyMode
	// IdleTimeout is how long an idle pooled connection is kept open.
	IdleTimeout time.Duration
	// MaxIdlePerHost is the maximum number of idle connections kept per host.
	MaxIdlePerHost int
	// RequestTimeout bounds every request that sets no timeout of its own; 0 disables it.
	RequestTimeout time.Duration
	// MaxRedirects is the maximum number of redirects followed by one request.
	MaxRedirects int
	// MaxBodySize limits the materialized response body in bytes; 0 disables the limit.
	MaxBodySize int64
	// UserAgent is sent when a request carries no User-Agent header.
	UserAgent string
	// MaxLogLength caps the size of request and response dumps in debug logs.
	MaxLogLength uint64
}

// DefaultSettings returns the settings used when Configure is never called.
func DefaultSettings() Settings {
	return Settings{}.withDefaults()
}

func (s Settings) withDefaults() Settings {
	if s.WorkerThreads <= 0 {
		s.WorkerThreads = runtime.NumCPU()
	}

	if s.BodyMode == "" {
		s.BodyMode = DefaultBodyMode
	}

	if s.IdleTimeout <= 0 {
		s.IdleTimeout = DefaultIdleTimeout
	}

	if s.MaxIdlePerHost <= 0 {
		s.MaxIdlePerHost = DefaultMaxIdlePerHost
	}

	if s.RequestTimeout < 0 {
		s.RequestTimeout = 0
	}

	if s.MaxRedirects <= 0 {
		s.MaxRedirects = DefaultMaxRedirects
	}

	if s.MaxBodySize < 0 {
		s.MaxBodySize = 0
	}

	return s
}

// ParseBodyMode converts a textual body mode, case-insensitively.
// An empty value selects DefaultBodyMode.
func ParseBodyMode(value string) (BodyMode, error) {
	switch mode := BodyMode(strings.ToLower(strings.TrimSpace(value))); mode {
	case "":
		return DefaultBodyMode, nil
	case BodyModeText, BodyModeBytes:
		return mode, nil
	default:
		return "", fmt.Errorf("%w: '%s'", ErrUnknownBodyMode, value)
	}
}
