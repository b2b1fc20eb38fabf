// Package http provides http.RoundTripper middleware used by the engine's
// connection pool: debug-level request/response dumping and User-Agent
// injection for requests that carry none.
package http
