package sitebuilder

import (
	"context"
	"log/slog"
	"slices"

	"github.com/c360studio/semsimilar/config"
)

// LoadFunc loads the configuration and reports the file it came from, empty
// when only defaults apply.
type LoadFunc func() (*config.Config, string, error)

// Watch builds the site, then rebuilds it whenever the docs tree changes.
// When the config file changes the configuration is reloaded; an invalid
// reload is logged and the previous configuration stays in effect. Watch
// returns when ctx is done.
func Watch(ctx context.Context, load LoadFunc, metrics *Metrics, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = NewMetrics()
	}

	cfg, cfgPath, err := load()
	if err != nil {
		return err
	}

	for {
		next, nextPath, err := watchTree(ctx, cfg, cfgPath, load, metrics, logger)
		if err != nil || next == nil {
			return err
		}
		cfg, cfgPath = next, nextPath
	}
}

// watchTree serves one watched tree. It returns a new configuration when a
// reload moved the tree or the config file, so the caller can restart the
// watcher; otherwise it returns nil once ctx is done.
func watchTree(ctx context.Context, cfg *config.Config, cfgPath string, load LoadFunc, metrics *Metrics, logger *slog.Logger) (*config.Config, string, error) {
	builder, err := NewBuilder(cfg, metrics, logger)
	if err != nil {
		return nil, "", err
	}

	rebuild := func() {
		if _, err := builder.Build(ctx); err != nil && ctx.Err() == nil {
			logger.Error("Build failed", "error", err)
		}
	}
	rebuild()

	w, err := NewWatcher(watcherConfig(cfg, cfgPath), logger)
	if err != nil {
		return nil, "", err
	}
	defer func() {
		_ = w.Stop()
		if dropped := w.DroppedBatches(); dropped > 0 {
			logger.Warn("Watcher dropped change batches", "dropped", dropped)
		}
	}()

	if err := w.Start(ctx); err != nil {
		return nil, "", err
	}

	for {
		select {
		case <-ctx.Done():
			return nil, "", nil

		case batch, ok := <-w.Batches():
			if !ok {
				return nil, "", nil
			}

			if batch.ConfigChanged {
				next, nextPath, err := load()
				if err != nil {
					logger.Error("Config reload failed, keeping previous config", "error", err)
				} else if nb, err := NewBuilder(next, metrics, logger); err != nil {
					logger.Error("Reloaded config rejected, keeping previous config", "error", err)
				} else {
					if nextPath != cfgPath || watchedTreeChanged(cfg, next) {
						logger.Info("Watched tree changed, restarting watcher", "config", nextPath)
						return next, nextPath, nil
					}
					cfg, builder = next, nb
					logger.Info("Config reloaded", "config", nextPath)
				}
			}

			logger.Info("Changes detected, rebuilding",
				"events", len(batch.Events),
				"config_changed", batch.ConfigChanged)
			rebuild()
		}
	}
}

func watcherConfig(cfg *config.Config, cfgPath string) WatcherConfig {
	return WatcherConfig{
		DocsDir:        cfg.Site.DocsDir,
		ConfigPath:     cfgPath,
		IgnoreDir:      cfg.Site.OutputDir,
		DebounceDelay:  cfg.Watch.DebounceDelay,
		FileExtensions: WatchExtensions(cfg.Site.Include),
		ExcludeDirs:    cfg.Site.ExcludeDirs,
	}
}

// watchedTreeChanged reports whether b needs a different watcher than a.
func watchedTreeChanged(a, b *config.Config) bool {
	return a.Site.DocsDir != b.Site.DocsDir ||
		a.Site.OutputDir != b.Site.OutputDir ||
		a.Watch.DebounceDelay != b.Watch.DebounceDelay ||
		!slices.Equal(a.Site.ExcludeDirs, b.Site.ExcludeDirs) ||
		!slices.Equal(WatchExtensions(a.Site.Include), WatchExtensions(b.Site.Include))
}
