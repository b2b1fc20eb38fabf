// Package app provides the command logic of fetchcore.
// It configures the engine from the loaded configuration, performs single
// requests and renders their results, runs the sequential and parallel
// benchmark, and writes default configuration files.
package app
