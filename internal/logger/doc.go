// Package logger wraps a sugared zap logger behind context-aware helpers.
// A logger travels inside a context.Context, so fields attached with WithKV
// (such as the request ID set by the engine) appear on every line logged
// along that request's path. The global level can be changed at runtime.
package logger
