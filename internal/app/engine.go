package app

import (
	"context"
	"fmt"

	"github.com/oshokin/fetchcore/internal/config"
	"github.com/oshokin/fetchcore/internal/engine"
	"github.com/oshokin/fetchcore/internal/logger"
)

// ConfigureEngine applies a validated configuration to the logger and the process-wide engine.
// It must run before the first request is issued.
func ConfigureEngine(ctx context.Context, cfg *config.Config) error {
	logger.SetLevel(cfg.ParsedLogLevel)

	settings := cfg.EngineSettings()
	if err := engine.Configure(settings); err != nil {
		return fmt.Errorf("failed to configure engine: %w", err)
	}

	logger.DebugKV(ctx, "Engine configured",
		"worker_threads", settings.WorkerThreads,
		"body_mode", settings.BodyMode,
		"idle_timeout", settings.IdleTimeout,
		"max_idle_per_host", settings.MaxIdlePerHost,
		"request_timeout", settings.RequestTimeout,
		"max_redirects", settings.MaxRedirects,
		"max_body_size", settings.MaxBodySize)

	return nil
}
