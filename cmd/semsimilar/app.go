package main

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/c360studio/semsimilar/config"
)

// app holds the state shared by all subcommands.
type app struct {
	configPath string
	logLevel   string
	logger     *slog.Logger
}

// loadConfig loads the layered configuration, applies command-line
// overrides and validates the result.
func (a *app) loadConfig(apply func(*config.Config)) (*config.Config, string, error) {
	cfg, path, err := config.NewLoader(a.logger).Load(a.configPath)
	if err != nil {
		return nil, "", fmt.Errorf("load config: %w", err)
	}

	if apply != nil {
		apply(cfg)
		if err := cfg.Validate(); err != nil {
			return nil, "", fmt.Errorf("invalid configuration: %w", err)
		}
	}

	if path == "" {
		a.logger.Debug("Using default configuration")
	} else {
		a.logger.Debug("Configuration loaded", "path", path)
	}

	return cfg, path, nil
}

// siteFlags are the site overrides shared by build, watch and score.
type siteFlags struct {
	docsDir   string
	outputDir string
}

func (f *siteFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.docsDir, "docs-dir", "", "Override site.docs_dir")
	cmd.Flags().StringVar(&f.outputDir, "output-dir", "", "Override site.output_dir")
}

func (f *siteFlags) apply(cfg *config.Config) {
	if f.docsDir != "" {
		cfg.Site.DocsDir = f.docsDir
	}
	if f.outputDir != "" {
		cfg.Site.OutputDir = f.outputDir
	}
}

func newLogger(level string, w io.Writer) *slog.Logger {
	lvl := slog.LevelInfo
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl}))
}
