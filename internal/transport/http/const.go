package http

import "github.com/oshokin/fetchcore/internal/version"

const (
	// DefaultMaxLogLength is the default maximum size (in bytes) of a logged request or response dump.
	DefaultMaxLogLength = 1 * 1024 * 1024 // 1 MB

	// truncatedSuffix marks a dump cut at the maximum log length.
	truncatedSuffix = "... [truncated]"
)

// DefaultUserAgent returns the User-Agent sent when a request carries none.
func DefaultUserAgent() string {
	return "fetchcore/" + version.Short()
}
