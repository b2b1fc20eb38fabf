// Package utils provides small helpers shared across the application:
// safe numeric conversion, content type classification, slice mapping
// and the User-Agent provider used by the transport middleware.
package utils
