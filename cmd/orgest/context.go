package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/eargollo/orgest/internal/config"
	"github.com/eargollo/orgest/internal/db"
	"github.com/eargollo/orgest/internal/logging"
	"github.com/eargollo/orgest/internal/media"
	"github.com/eargollo/orgest/internal/mediatool"
	"github.com/eargollo/orgest/internal/stage"
)

var errNoRoot = errors.New("no root given and none configured (pass ROOT or set root in the config file)")

type commandContext struct {
	configFlag    string
	logLevelFlag  string
	logFormatFlag string

	configOnce sync.Once
	config     *config.Config
	configErr  error
	log        *slog.Logger

	toolMu sync.Mutex
	tool   *mediatool.Tool
	// resolveTool defaults to mediatool.Resolve.
	resolveTool func(ctx context.Context, bundledDir, binary string) (*mediatool.Tool, error)
}

// ensureConfig loads the config file once, applies flag overrides and
// installs the process logger.
func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		path := strings.TrimSpace(c.configFlag)
		if path == "" {
			path = config.DefaultPath()
		}
		cfg, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if c.logLevelFlag != "" {
			cfg.LogLevel = c.logLevelFlag
		}
		if c.logFormatFlag != "" {
			cfg.LogFormat = c.logFormatFlag
		}
		if err := cfg.Validate(); err != nil {
			c.configErr = err
			return
		}
		c.log = logging.New(os.Stderr, logging.ParseLevel(cfg.LogLevel), cfg.LogFormat)
		slog.SetDefault(c.log)
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) logger() *slog.Logger {
	if c.log == nil {
		return slog.Default()
	}
	return c.log
}

func (c *commandContext) openDB(ctx context.Context) (*sql.DB, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	database, err := db.OpenMigrated(ctx, cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open job history: %w", err)
	}
	return database, nil
}

// resolveRoot picks the positional ROOT argument or the configured root.
func (c *commandContext) resolveRoot(args []string) (string, error) {
	if len(args) > 0 && strings.TrimSpace(args[0]) != "" {
		return args[0], nil
	}
	if c.config != nil && c.config.Root != "" {
		return c.config.Root, nil
	}
	return "", errNoRoot
}

// findTool resolves the transcoder and keeps the first successful lookup.
// A failed lookup is retried on the next call.
func (c *commandContext) findTool(ctx context.Context) (stage.Transcoder, error) {
	c.toolMu.Lock()
	defer c.toolMu.Unlock()
	if c.tool != nil {
		return c.tool, nil
	}
	resolve := c.resolveTool
	if resolve == nil {
		resolve = mediatool.Resolve
	}
	tool, err := resolve(ctx, c.config.MediaTool.BundledDir, c.config.MediaTool.Binary)
	if err != nil {
		return nil, err
	}
	c.tool = tool
	c.logger().Info("media tool resolved", "path", tool.Path, "source", tool.Source, "version", tool.Version)
	return tool, nil
}

// stageEnv is the template environment every job is started with.
func (c *commandContext) stageEnv() stage.Env {
	cfg := c.config
	return stage.Env{
		Logger:       c.logger(),
		ExcludeNames: cfg.ExcludeNames,
		FindTool:     c.findTool,
		Images:       media.NewStdCodec(cfg.Optimize.MaxDimension, cfg.Optimize.JPEGQuality),
		MinFreeBytes: cfg.MinFreeBytes,
	}
}
