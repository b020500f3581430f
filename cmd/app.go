package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/kozaktomas/face-id/internal/cache"
	"github.com/kozaktomas/face-id/internal/config"
	"github.com/kozaktomas/face-id/internal/facematch"
	"github.com/kozaktomas/face-id/internal/imageio"
	"github.com/kozaktomas/face-id/internal/recognizer"
	"github.com/kozaktomas/face-id/internal/registry"
)

// app holds the components shared by the commands.
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	cache    *cache.Cache // nil when caching is disabled
	detector facematch.Detector
	closers  []func()
}

// newApp loads the configuration, applies the global flags and builds the
// logger, cache and recognizer backend.
func newApp(cmd *cobra.Command) (*app, error) {
	cfg := config.Load()
	applyGlobalFlags(cmd, cfg)

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, logger: logger}
	a.closers = append(a.closers, func() { _ = logger.Sync() })

	if cfg.Cache.Enabled {
		a.cache, err = cache.New(cfg.Cache.Dir,
			cache.WithDimension(cfg.EmbeddingDimension()),
			cache.WithElementWidth(cfg.Cache.ElementWidth),
			cache.WithLogger(logger.Named("cache")),
		)
		if err != nil {
			return nil, err
		}
	}

	if err := a.initDetector(); err != nil {
		return nil, err
	}
	return a, nil
}

func applyGlobalFlags(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("cache-dir") {
		cfg.Cache.Dir = mustGetString(cmd, "cache-dir")
	}
	if mustGetBool(cmd, "no-cache") {
		cfg.Cache.Enabled = false
	}
	if cmd.Flags().Changed("backend") {
		cfg.Recognizer.Backend = mustGetString(cmd, "backend")
	}
	if cmd.Flags().Changed("log-level") {
		cfg.LogLevel = mustGetString(cmd, "log-level")
	}
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	zcfg := zap.NewDevelopmentConfig()
	zcfg.Level = zap.NewAtomicLevelAt(lvl)
	zcfg.DisableStacktrace = true
	zcfg.DisableCaller = true
	return zcfg.Build()
}

func (a *app) initDetector() error {
	switch a.cfg.Recognizer.Backend {
	case config.BackendHTTP:
		a.detector = recognizer.NewClient(a.cfg.Recognizer.URL,
			recognizer.WithMaxImageSize(a.cfg.Recognizer.MaxImageSize),
			recognizer.WithLogger(a.logger.Named("recognizer")),
		)
		return nil
	case config.BackendDlib:
		det, closeFn, err := newDlibDetector(a.cfg.Recognizer.ModelsDir)
		if err != nil {
			return err
		}
		a.detector = det
		a.closers = append(a.closers, closeFn)
		return nil
	default:
		return fmt.Errorf("unknown recognizer backend %q", a.cfg.Recognizer.Backend)
	}
}

func (a *app) loader(opts ...registry.LoaderOption) *registry.Loader {
	opts = append([]registry.LoaderOption{
		registry.WithCache(a.cache),
		registry.WithExtensions(a.cfg.Recognition.Extensions...),
		registry.WithLogger(a.logger.Named("registry")),
	}, opts...)
	return registry.NewLoader(a.detector, imageio.Loader{}, opts...)
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}
