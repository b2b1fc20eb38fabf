package app

import (
	"context"
	"fmt"

	"github.com/oshokin/fetchcore/internal/config"
	"github.com/oshokin/fetchcore/internal/logger"
)

// ExecuteConfigInitCommand writes the default configuration to path.
// An empty path selects config.DefaultConfigFilename.
func ExecuteConfigInitCommand(ctx context.Context, path string, overwrite bool) error {
	if path == "" {
		path = config.DefaultConfigFilename
	}

	if err := config.SaveConfig(path, config.DefaultConfig(), overwrite); err != nil {
		return fmt.Errorf("failed to initialize config: %w", err)
	}

	logger.Infof(ctx, "Configuration written to '%s'", path)

	return nil
}
