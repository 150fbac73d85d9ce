package main

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"tablodl/internal/config"
	"tablodl/internal/logctx"
)

// commandContext carries the flag values and lazily loaded configuration
// shared by every subcommand.
type commandContext struct {
	configPath string
	devices    []string
	logLevel   string
	logFormat  string

	configOnce sync.Once
	config     *config.Config
	configErr  error
	logger     *slog.Logger
}

// ensureConfig loads and validates the configuration exactly once. Flag
// overrides are applied before validation so they behave like config values.
func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		path := strings.TrimSpace(c.configPath)
		if path == "" {
			path = config.DefaultPath()
		}

		cfg, err := config.Load(path)
		if err != nil {
			c.configErr = err

			return
		}

		if level := strings.TrimSpace(c.logLevel); level != "" {
			cfg.Log.Level = level
		}

		if format := strings.TrimSpace(c.logFormat); format != "" {
			cfg.Log.Format = format
		}

		if err := cfg.Validate(); err != nil {
			c.configErr = err

			return
		}

		c.config = cfg
		c.logger = logctx.New(os.Stderr, cfg.Log.Level, cfg.Log.Format)
		slog.SetDefault(c.logger)
	})

	return c.config, c.configErr
}

// opCtx returns the command's context with the process logger attached,
// alongside the loaded configuration.
func (c *commandContext) opCtx(cmd *cobra.Command) (context.Context, *config.Config, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, nil, err
	}

	return logctx.WithLogger(cmd.Context(), c.logger), cfg, nil
}
