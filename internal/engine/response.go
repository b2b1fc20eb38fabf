package engine

import (
	"maps"
	"net/http"
	"slices"
	"strings"
)

// ResultType is the type tag carried by every Result.
const ResultType = "basic"

// Headers is an ordered list of header pairs. Response headers are sorted by
// name, not kept in the order they arrived.
type Headers []Header

// Get returns the first value of the named header, case-insensitively, or "".
func (h Headers) Get(name string) string {
	for _, header := range h {
		if strings.EqualFold(header.Name, name) {
			return header.Value
		}
	}

	return ""
}

// Values returns every value of the named header in order, case-insensitively.
func (h Headers) Values(name string) []string {
	var values []string

	for _, header := range h {
		if strings.EqualFold(header.Name, name) {
			values = append(values, header.Value)
		}
	}

	return values
}

// Result is the normalized outcome of a successful request.
type Result struct {
	// Status is the HTTP status code.
	Status int
	// StatusText is the canonical reason phrase, empty for unknown codes.
	StatusText string
	// Headers are the response headers with lower-cased names, sorted by name
	// rather than in received order; values of one name keep their received order.
	Headers Headers
	// Body is the materialized response body.
	Body Body
	// URL is the final URL after redirects.
	URL string
	// Redirected reports whether URL differs from the requested URL string.
	Redirected bool
	// Type is always ResultType.
	Type string
}

// Metadata is the part of a response readable before the body is consumed.
type Metadata struct {
	// Status is the HTTP status code.
	Status int
	// StatusText is the canonical reason phrase.
	StatusText string
	// Headers are the response headers.
	Headers Headers
	// URL is the final URL after redirects.
	URL string
}

// metadataOf copies everything the result needs out of resp without touching its body.
func metadataOf(resp *http.Response) Metadata {
	return Metadata{
		Status:     resp.StatusCode,
		StatusText: http.StatusText(resp.StatusCode),
		Headers:    headersOf(resp.Header),
		URL:        finalURL(resp),
	}
}

// headersOf flattens a header map into one pair per value. net/http reports
// headers as a map, so names are ordered alphabetically and values keep their
// received order. Names are lower-cased.
func headersOf(header http.Header) Headers {
	names := slices.Sorted(maps.Keys(header))
	headers := make(Headers, 0, len(header))

	for _, name := range names {
		lowerName := strings.ToLower(name)

		for _, value := range header[name] {
			headers = append(headers, Header{Name: lowerName, Value: value})
		}
	}

	return headers
}

// finalURL returns the URL of the request that produced resp, the last hop of a redirect chain.
func finalURL(resp *http.Response) string {
	if resp.Request == nil || resp.Request.URL == nil {
		return ""
	}

	return resp.Request.URL.String()
}

func newResult(requestedURL string, metadata Metadata, body Body) *Result {
	return &Result{
		Status:     metadata.Status,
		StatusText: metadata.StatusText,
		Headers:    metadata.Headers,
		Body:       body,
		URL:        metadata.URL,
		Redirected: metadata.URL != requestedURL,
		Type:       ResultType,
	}
}
