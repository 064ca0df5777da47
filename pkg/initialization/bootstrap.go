package initialization

import (
	"fmt"
	"io"

	"github.com/spf13/afero"

	"github.com/corwinn/h3r-sub000/pkg/config"
	"github.com/corwinn/h3r-sub000/pkg/env"
	"github.com/corwinn/h3r-sub000/pkg/logger"
	"github.com/corwinn/h3r-sub000/pkg/paths"
	"github.com/corwinn/h3r-sub000/pkg/resource"
	"github.com/corwinn/h3r-sub000/pkg/vfs"
)

// Options are the command-line settings that take precedence over config.
type Options struct {
	ConfigPath string
	GameDir    string
	LogLevel   string
	// LogOutput receives the log (stdout when nil).
	LogOutput io.Writer
	// Fs is the filesystem archives are read from (the OS filesystem when nil).
	Fs afero.Fs
}

// InitializedComponents holds all the components initialized during bootstrap
type InitializedComponents struct {
	Config  *config.Config
	Fs      afero.Fs
	Manager *resource.Manager
}

// Close stops the resource manager and closes the log file.
func (c *InitializedComponents) Close() error {
	defer logger.Close()
	return c.Manager.Close()
}

// Bootstrap coordinates the application startup sequence
func Bootstrap(opts Options) (*InitializedComponents, error) {
	// 1. Early logger, so config loading can report
	logger.Init(opts.LogOutput, env.LogLevel())

	// 2. Load configuration, then apply flags
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("configuration error: %w", err)
	}
	if opts.GameDir != "" {
		cfg.GameDir = opts.GameDir
	}
	if opts.LogLevel != "" {
		cfg.LogLevel = opts.LogLevel
	}
	overrides := config.GetEnvOverrideKeys()

	// 3. Final logger
	logger.Init(opts.LogOutput, cfg.LogLevel)
	if cfg.LogFile {
		if err := logger.OpenFile(paths.GetDataDir()); err != nil {
			logger.Warn("Log file disabled", "err", err)
		}
	}

	// 4. Resource manager
	fsys := opts.Fs
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	m := resource.New(fsys,
		resource.WithLogger(logger.Log),
		resource.WithLookupCache(cfg.LookupCacheSize),
		resource.WithVFSOptions(vfs.Options{Charset: cfg.NameCharset, Retry: cfg.RetryPolicy()}),
	)
	if len(overrides) > 0 {
		logger.Debug("Environment overrides applied", "keys", overrides)
	}
	logger.Debug("Resource manager ready", "game_dir", cfg.GameDir, "archives", len(cfg.Archives), "formats", len(m.Formats()))

	return &InitializedComponents{Config: cfg, Fs: fsys, Manager: m}, nil
}
