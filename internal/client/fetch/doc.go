// Package fetch is the caller-facing entry point of the engine.
// A Handle is a zero-sized token; every Handle shares the process-wide
// runtime and connection pool, which are started on first use.
// Requests are issued asynchronously and resolved through engine tasks.
package fetch
