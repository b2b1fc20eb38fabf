// Package engine implements a pooled asynchronous HTTP client core.
//
// Two process-wide singletons back every request: a Runtime, a fixed pool of
// worker goroutines that drives request tasks, and a Pool, one shared
// http.Client whose transport keeps idle connections per host. An Executor
// turns a Request description into exactly one HTTP transaction and returns a
// normalized Result or a single *RequestError; it never retries.
//
// Response metadata (status, headers, final URL) is always captured before the
// body is consumed, and the body can be consumed only once.
package engine
