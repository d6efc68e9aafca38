// Package main provides the semsimilar binary entry point.
// Semsimilar adds a "similar posts" section to every blog post of a
// markdown site, ranked by how many categories the posts share.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/c360studio/semsimilar/config"
	sitebuilder "github.com/c360studio/semsimilar/processor/site-builder"
)

const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "semsimilar"
)

func main() {
	// Add panic recovery
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	app := &app{}

	cmd := &cobra.Command{
		Use:   appName,
		Short: "Similar posts for category-tagged markdown blogs",
		Long: `Semsimilar reads a markdown site, groups the posts of each blog by
category and appends a "similar posts" section to every post, ranked by a
weighted Jaccard score over the posts' categories.

Configuration is layered: defaults, then ~/.config/semsimilar/config.yaml,
then the nearest semsimilar.yaml, then the file given with --config.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			app.logger = newLogger(app.logLevel, cmd.ErrOrStderr())
			slog.SetDefault(app.logger)
		},
	}

	cmd.PersistentFlags().StringVarP(&app.configPath, "config", "c", "", "Config file path (YAML)")
	cmd.PersistentFlags().StringVar(&app.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	cmd.AddCommand(
		buildCmd(app),
		watchCmd(app),
		scoreCmd(app),
		initCmd(app),
		versionCmd(),
	)

	return cmd
}

func buildCmd(app *app) *cobra.Command {
	var (
		flags  siteFlags
		dryRun bool
	)

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build the site once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := app.loadConfig(flags.apply)
			if err != nil {
				return err
			}

			builder, err := sitebuilder.NewBuilder(cfg, nil, app.logger)
			if err != nil {
				return err
			}
			builder.DryRun = dryRun

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			report, err := builder.Build(ctx)
			if err != nil {
				return fmt.Errorf("build: %w", err)
			}

			printReport(cmd, report, dryRun)
			if report.Failed > 0 {
				return fmt.Errorf("%d document(s) failed", report.Failed)
			}
			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Compute sections without writing the output tree")

	return cmd
}

func watchCmd(app *app) *cobra.Command {
	var (
		flags       siteFlags
		metricsAddr string
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Build the site and rebuild it on every change",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			load := func() (*config.Config, string, error) {
				return app.loadConfig(flags.apply)
			}

			cfg, _, err := load()
			if err != nil {
				return err
			}
			if metricsAddr == "" {
				metricsAddr = cfg.Watch.MetricsAddr
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			metrics := sitebuilder.NewMetrics()
			if metricsAddr != "" {
				stop := serveMetrics(ctx, metricsAddr, metrics, app.logger)
				defer stop()
			}

			app.logger.Info("Semsimilar watching",
				"version", Version,
				"docs_dir", cfg.Site.DocsDir,
				"output_dir", cfg.Site.OutputDir)

			return sitebuilder.Watch(ctx, load, metrics, app.logger)
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")

	return cmd
}

func scoreCmd(app *app) *cobra.Command {
	var flags siteFlags

	cmd := &cobra.Command{
		Use:   "score <doc-path>",
		Short: "Show the ranked similar posts of one document",
		Long: `Score ranks the similar posts of one document, given by its path
relative to the docs directory, and prints them with their scores.
Nothing is written.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := app.loadConfig(flags.apply)
			if err != nil {
				return err
			}

			builder, err := sitebuilder.NewBuilder(cfg, nil, app.logger)
			if err != nil {
				return err
			}

			ranked, err := builder.Explain(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(ranked) == 0 {
				fmt.Fprintln(out, "No similar posts.")
				return nil
			}

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "SCORE\tPATH\tTITLE")
			for _, c := range ranked {
				fmt.Fprintf(tw, "%.3f\t%s\t%s\n", c.Score, c.Document.Path, c.Document.Title)
			}
			return tw.Flush()
		},
	}

	flags.register(cmd)
	return cmd
}

func initCmd(app *app) *cobra.Command {
	var user bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default configuration file",
		Long: `Init writes the default configuration to semsimilar.yaml in the
current directory, or to ~/.config/semsimilar/config.yaml with --user.
Existing files are left alone.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if user {
				return config.NewLoader(app.logger).EnsureUserConfig()
			}

			if _, err := os.Stat(config.ProjectConfigFile); err == nil {
				return fmt.Errorf("%s already exists", config.ProjectConfigFile)
			}
			if err := config.DefaultConfig().SaveToFile(config.ProjectConfigFile); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", config.ProjectConfigFile)
			return nil
		},
	}

	cmd.Flags().BoolVar(&user, "user", false, "Write the user-level config instead")
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s version %s (build: %s)\n", appName, Version, BuildTime)
		},
	}
}

func printReport(cmd *cobra.Command, report *sitebuilder.Report, dryRun bool) {
	out := cmd.OutOrStdout()
	verb := "Built"
	if dryRun {
		verb = "Checked"
	}
	fmt.Fprintf(out, "%s %d documents in %s: %d with similar posts, %d without, %d failed\n",
		verb, report.Documents, report.Duration.Round(time.Millisecond),
		report.Sections, report.Skipped, report.Failed)
}

// serveMetrics exposes metrics over HTTP until ctx is done. The returned
// function shuts the server down.
func serveMetrics(ctx context.Context, addr string, metrics *sitebuilder.Metrics, logger *slog.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("Metrics server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics server failed", "error", err)
		}
	}()

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Metrics server shutdown failed", "error", err)
		}
	}
}
