package main

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/MimeLyc/video-sub-translator/internal/config"
	"github.com/MimeLyc/video-sub-translator/pkg/log"
)

type commandContext struct {
	configFlag  *string
	verboseFlag *bool

	configOnce sync.Once
	config     *config.Config
	configErr  error

	logFile *log.FileLogger
}

func newCommandContext(configFlag *string, verboseFlag *bool) *commandContext {
	return &commandContext{
		configFlag:  configFlag,
		verboseFlag: verboseFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := ensureDirectories(cfg); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) level(cfg *config.Config) log.LogLevel {
	if c.verboseFlag != nil && *c.verboseFlag {
		return log.LevelDebug
	}
	return log.ParseLevel(cfg.Logging.Level)
}

// startLogging installs the global logger for commands that run jobs.
func (c *commandContext) startLogging(cfg *config.Config) error {
	level := c.level(cfg)
	if !cfg.Logging.File {
		log.SetLogger(log.NewLogger(level))
		return nil
	}
	fileLogger, err := log.NewFileLogger(cfg.LogPath(), level)
	if err != nil {
		return err
	}
	c.logFile = fileLogger
	log.SetLogger(fileLogger.Logger)
	return nil
}

// quietLogging keeps stdout clean for commands that print tables.
func (c *commandContext) quietLogging(cfg *config.Config) {
	level := c.level(cfg)
	if level < log.LevelWarn {
		level = log.LevelWarn
	}
	log.SetLogger(log.NewWithWriter(os.Stderr, level))
}

func (c *commandContext) close() error {
	if c.logFile == nil {
		return nil
	}
	err := c.logFile.Close()
	c.logFile = nil
	return err
}

func ensureDirectories(cfg *config.Config) error {
	for _, dir := range []string{cfg.Paths.DataDir, cfg.Paths.OutputDir, cfg.Paths.TempDir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}
