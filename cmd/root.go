package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pennh4i/tentacool/internal/backend"
	"github.com/pennh4i/tentacool/internal/catalog"
	"github.com/pennh4i/tentacool/internal/commit"
	"github.com/pennh4i/tentacool/internal/config"
	"github.com/pennh4i/tentacool/internal/dispatch"
	"github.com/pennh4i/tentacool/internal/evaluator"
	"github.com/pennh4i/tentacool/internal/journal"
	"github.com/pennh4i/tentacool/internal/logging"
	telem "github.com/pennh4i/tentacool/internal/otel"
	"github.com/pennh4i/tentacool/internal/workflow"
)

// Version is injected at build time with -ldflags "-X .../cmd.Version=...".
var Version = "dev"

var (
	// Global flags. Empty values fall back to the loaded configuration.
	flagBaseURL   string
	flagAPIPrefix string
	flagEvaluator string
	flagLogLevel  string
	flagLogFormat string
	flagNoJournal bool
)

var rootCmd = &cobra.Command{
	Use:   "tentacool",
	Short: "Send one prompt to many LLMs and log which ones were jailbroken",
	Long: `tentacool is a console for jailbreak testing across LLM providers.

A cycle sends one prompt to every selected model in a single batch,
classifies each successful answer as jailbroken or not, lets you review
and annotate the results, and logs the reviewed set to the backend
database.

Configuration is loaded from .tentacool.yaml, ~/.config/tentacool/config.yaml,
.env and TENTACOOL_* environment variables, in increasing precedence.
Flags override all of them.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagBaseURL, "base-url", envOrDefault("TENTACOOL_BASE_URL", ""), "backend base URL")
	rootCmd.PersistentFlags().StringVar(&flagAPIPrefix, "api-prefix", "", "path prefix of every backend endpoint (default: /api)")
	rootCmd.PersistentFlags().StringVar(&flagEvaluator, "evaluator", "", "jailbreak classifier: backend, anthropic, openai")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&flagLogFormat, "log-format", "", "log format: text, json")
	rootCmd.PersistentFlags().BoolVar(&flagNoJournal, "no-journal", false, "do not record commits in the local journal")
	rootCmd.Version = Version
}

// app holds everything a command needs, built from config and flags.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	tel     *telem.Telemetry
	metrics *telem.Metrics
	client  *backend.Client
	journal *journal.Journal
}

// newApp loads configuration and wires logging, telemetry and the backend
// client. Logs go to logTo.
func newApp(ctx context.Context, logTo io.Writer) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := applyFlags(cfg); err != nil {
		return nil, err
	}

	logger, err := logging.New(logTo, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, fmt.Errorf("logging: %w", err)
	}
	if cfg.ConfigFile != "" {
		logger.Debug("config loaded", slog.String("path", cfg.ConfigFile))
	}

	// Wire build version into OTEL service metadata
	telem.Version = Version

	// Initialize OTEL (no-op if no endpoint configured)
	tel, err := telem.Init(ctx, telem.OTELConfig{
		Endpoint: cfg.OTELEndpoint,
		Headers:  cfg.OTELHeaders,
	})
	if err != nil {
		logger.Warn("otel init failed", logging.Err(err))
	}
	var metrics *telem.Metrics
	if tel != nil {
		metrics = tel.Metrics
	}

	client := backend.New(backend.Options{
		BaseURL:   cfg.BaseURL,
		APIPrefix: cfg.APIPrefix,
		Timeout:   cfg.TimeoutDuration,
		Retries:   cfg.RetryBudget(),
		Logger:    logger,
	})

	a := &app{
		cfg:     cfg,
		logger:  logger,
		tel:     tel,
		metrics: metrics,
		client:  client,
	}

	if cfg.JournalEnabled() && !flagNoJournal {
		j, err := journal.Open(cfg.Journal)
		if err != nil {
			// The journal is a convenience; commits still go to the backend.
			logger.Warn("journal unavailable", slog.String("path", cfg.Journal), logging.Err(err))
		} else {
			a.journal = j
		}
	}
	return a, nil
}

// applyFlags overrides cfg with explicitly set global flags.
func applyFlags(cfg *config.Config) error {
	if flagBaseURL != "" {
		cfg.BaseURL = flagBaseURL
	}
	if flagAPIPrefix != "" {
		cfg.APIPrefix = flagAPIPrefix
	}
	if flagLogLevel != "" {
		cfg.LogLevel = flagLogLevel
	}
	if flagLogFormat != "" {
		cfg.LogFormat = flagLogFormat
	}
	if flagEvaluator != "" {
		return cfg.UseEvaluator(flagEvaluator)
	}
	return nil
}

// Close flushes telemetry and closes the journal.
func (a *app) Close(ctx context.Context) {
	if a.journal != nil {
		if err := a.journal.Close(); err != nil {
			a.logger.Warn("closing journal", logging.Err(err))
		}
	}
	if a.tel != nil {
		a.tel.Shutdown(ctx)
	}
}

// controller wires the workflow stages around the backend client.
func (a *app) controller(onTransition func(workflow.State)) (*workflow.Controller, error) {
	classifier, err := evaluator.NewClassifier(a.cfg, a.client, a.logger, a.metrics)
	if err != nil {
		return nil, err
	}

	var recorder commit.Recorder
	if a.journal != nil {
		recorder = a.journal
	}

	return workflow.New(workflow.Options{
		Catalog: catalog.New(a.client, catalog.Options{
			Parallel: a.cfg.Parallel,
			Logger:   a.logger,
			Metrics:  a.metrics,
		}),
		Dispatcher: dispatch.New(a.client, dispatch.Options{
			Logger:  a.logger,
			Metrics: a.metrics,
		}),
		Evaluator: evaluator.NewStage(classifier, evaluator.Options{
			Cache:   evaluator.NewVerdictCache(a.cfg.CacheTTLDuration),
			Logger:  a.logger,
			Metrics: a.metrics,
		}),
		Committer: commit.New(a.client, commit.Options{
			Recorder: recorder,
			Logger:   a.logger,
			Metrics:  a.metrics,
		}),
		SelectAll:    a.cfg.SelectAllByDefault(),
		OnTransition: onTransition,
		Logger:       a.logger,
	}), nil
}

// withApp builds the app for a command and tears it down afterwards.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, os.Stderr)
	if err != nil {
		return err
	}
	defer a.Close(context.WithoutCancel(ctx))
	return fn(ctx, a)
}

// printJSON writes v to stdout, indented.
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// userError turns err into the message shown to the user, keeping the
// original for errors.Is.
func userError(err error) error {
	if err == nil {
		return nil
	}
	return &displayError{msg: workflow.UserMessage(err), err: err}
}

type displayError struct {
	msg string
	err error
}

func (e *displayError) Error() string { return e.msg }
func (e *displayError) Unwrap() error { return e.err }

func envOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}
