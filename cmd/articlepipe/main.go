package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"articlepipe/internal/app"
	"articlepipe/internal/config"
	"articlepipe/internal/logging"
)

var (
	configFile string
	drainIdle  time.Duration
)

var rootCmd = &cobra.Command{
	Use:           "articlepipe",
	Short:         "Queue-mediated article scraping and summarization",
	Long:          `articlepipe runs the two stages of the article pipeline: a scraper that extracts article text and enqueues it, and a summarizer that consumes the queue and stores summaries.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var scraperCmd = &cobra.Command{
	Use:   "scraper",
	Short: "Serve POST /scrape and publish extracted articles",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		scraper, err := app.NewScraper(ctx, cfg, logger)
		if err != nil {
			return err
		}
		return scraper.Run(ctx)
	},
}

var summarizerCmd = &cobra.Command{
	Use:   "summarizer",
	Short: "Consume enqueued articles, summarize and store them",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		summarizer, err := app.NewSummarizer(ctx, cfg, logger)
		if err != nil {
			return err
		}
		return summarizer.Run(ctx)
	},
}

var deadLettersCmd = &cobra.Command{
	Use:   "deadletters",
	Short: "Drain the dead-letter topic to stdout as JSON lines",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, _, err := setup()
		if err != nil {
			return err
		}
		// keep stdout for the drained messages
		logger := logging.NewWithWriter(os.Stderr, cfg.Logging.Level, cfg.Logging.Format)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		count, err := app.DrainDeadLetters(ctx, cfg, logger, cmd.OutOrStdout(), drainIdle)
		logger.Info("dead letters drained", "count", count)
		return err
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to YAML config file (default $ARTICLEPIPE_CONFIG)")
	deadLettersCmd.Flags().DurationVar(&drainIdle, "idle", 5*time.Second, "Stop after this long without messages (0 waits forever)")

	rootCmd.AddCommand(scraperCmd, summarizerCmd, deadLettersCmd)
}

func setup() (config.Config, *slog.Logger, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("load config: %w", err)
	}
	logger := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	slog.SetDefault(logger)
	return cfg, logger, nil
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
