package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/reductor/goldensync/internal/config"
	"github.com/reductor/goldensync/internal/converter"
	"github.com/reductor/goldensync/internal/hashstore"
	"github.com/reductor/goldensync/internal/housekeeping"
	"github.com/reductor/goldensync/internal/pipeline"
	"github.com/reductor/goldensync/internal/staleness"
)

// Process exit codes
const (
	exitOK             = 0
	exitError          = 1
	exitPartialFailure = 2
	exitCancelled      = 3
	exitSourceChanged  = 4
)

var (
	// Set by goreleaser
	version = "dev"
	commit  = "none"
	date    = "unknown"

	// Global flags
	cfgFile    string
	logLevel   string
	logFormat  string
	dryRun     bool
	withRecord bool

	// newRunner is replaced in tests to avoid spawning the real editor
	newRunner = func() converter.Runner { return converter.NewExecRunner() }
)

// exitCodeError carries a process exit code alongside the error
type exitCodeError struct {
	code int
	err  error
}

func (e *exitCodeError) Error() string { return e.err.Error() }
func (e *exitCodeError) Unwrap() error { return e.err }

func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	var coded *exitCodeError
	if errors.As(err, &coded) {
		return coded.code
	}
	return exitError
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(exitCode(err))
	}
}

var rootCmd = &cobra.Command{
	Use:   "goldensync",
	Short: "Regenerate golden test artifacts when the source score changes",
	Long: `goldensync keeps the files derived from the golden-test score (MIDI, MusicXML,
PDF, PNG) in step with the score itself.

It hashes the score and compares the digest with the one recorded after the
last successful run. When they differ, every output is regenerated through the
notation editor's command line, and the new digest is recorded only if all of
the conversions succeeded.

Running goldensync without a subcommand is the same as "goldensync update".`,
	SilenceUsage: true,
	Args:         cobra.NoArgs,
	RunE:         runUpdate,
}

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Regenerate all outputs if the source score changed",
	Args:  cobra.NoArgs,
	RunE:  runUpdate,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report whether the outputs are stale without converting anything",
	RunE:  runStatus,
}

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Delete every generated output",
	Long: `Clean deletes the generated outputs of every configured target. The source
score is never touched. With --with-record the hash record is removed too, so
the next update regenerates everything.`,
	RunE: runClean,
}

var deleteBackupCmd = &cobra.Command{
	Use:   "delete-backup",
	Short: "Delete the notation editor's backup artifact next to the source",
	RunE:  runDeleteBackup,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		_, _ = fmt.Fprintf(out, "goldensync %s\n", version)
		_, _ = fmt.Fprintf(out, "  commit: %s\n", commit)
		_, _ = fmt.Fprintf(out, "  built:  %s\n", date)
	},
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./"+config.DefaultFile+" if present, else built-in defaults)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format (text, json)")

	// Update flags, also accepted on the bare root command
	addUpdateFlags(rootCmd.Flags())
	addUpdateFlags(updateCmd.Flags())

	cleanCmd.Flags().BoolVar(&withRecord, "with-record", false, "also delete the hash record")

	rootCmd.AddCommand(updateCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(cleanCmd)
	rootCmd.AddCommand(deleteBackupCmd)
	rootCmd.AddCommand(versionCmd)
}

func addUpdateFlags(fs *pflag.FlagSet) {
	fs.BoolVar(&dryRun, "dry-run", false, "show what would be regenerated without running the converter")
}

func runUpdate(cmd *cobra.Command, args []string) error {
	ctx, cancel := setupSignalHandler()
	defer cancel()

	logger := setupLogger()

	cfg, err := loadConfig(logger)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	store := hashstore.New(cfg.HashFilePath())
	oracle := staleness.NewOracle(store, cfg.DigestAlgorithm(), logger)
	conv := converter.New(cfg.Converter.Binary, newRunner(), cfg.ConverterTimeout(), logger)
	p := pipeline.New(oracle, store, conv, pipeline.Options{
		Concurrency: cfg.Sync.Concurrency,
		DryRun:      dryRun,
	}, logger)

	logger.Info("starting update", "source", cfg.SourcePath(), "record", store.Path())
	result, err := p.Run(ctx, cfg.SourcePath(), cfg.ConversionTargets())
	if result != nil {
		printSummary(cmd.OutOrStdout(), cfg, result)
	}
	if err != nil {
		logger.Error("update failed", "error", err)
		return err
	}

	switch result.Outcome {
	case pipeline.OutcomePartialFailure:
		return &exitCodeError{
			code: exitPartialFailure,
			err:  fmt.Errorf("%d of %d conversions failed", len(result.Failed()), len(result.Results)),
		}
	case pipeline.OutcomeCancelled:
		return &exitCodeError{code: exitCancelled, err: errors.New("update cancelled")}
	case pipeline.OutcomeSourceChanged:
		return &exitCodeError{code: exitSourceChanged, err: errors.New("source changed during update, run again")}
	}
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	logger := setupLogger()

	cfg, err := loadConfig(logger)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	oracle := staleness.NewOracle(hashstore.New(cfg.HashFilePath()), cfg.DigestAlgorithm(), logger)
	verdict, err := oracle.Check(cfg.SourcePath())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	switch {
	case verdict.SourceMissing:
		_, _ = fmt.Fprintf(out, "source %s not found, nothing to regenerate\n", cfg.SourcePath())
	case verdict.Stale:
		_, _ = fmt.Fprintf(out, "stale: %s (digest %s)\n", cfg.SourcePath(), verdict.Current)
		for _, target := range cfg.ConversionTargets() {
			_, _ = fmt.Fprintf(out, "  would regenerate %-9s %s\n", target.Format, target.Path)
		}
	default:
		_, _ = fmt.Fprintf(out, "up to date: %s (digest %s)\n", cfg.SourcePath(), verdict.Current)
	}
	return nil
}

func runClean(cmd *cobra.Command, args []string) error {
	logger := setupLogger()

	cfg, err := loadConfig(logger)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	removed, err := housekeeping.Clean(cfg.ConversionTargets(), logger)
	if err != nil {
		return err
	}

	if withRecord {
		if err := hashstore.New(cfg.HashFilePath()).Remove(); err != nil {
			return err
		}
	}

	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "deleted %d outputs\n", len(removed))
	return nil
}

func runDeleteBackup(cmd *cobra.Command, args []string) error {
	logger := setupLogger()

	cfg, err := loadConfig(logger)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	deleted, err := housekeeping.DeleteBackup(cfg.BackupPath(), logger)
	if err != nil {
		return err
	}
	if deleted {
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", cfg.BackupPath())
	}
	return nil
}

func printSummary(out io.Writer, cfg *config.Config, result *pipeline.Result) {
	switch {
	case result.SourceMissing:
		_, _ = fmt.Fprintf(out, "source %s not found, nothing to regenerate\n", cfg.SourcePath())
		return
	case result.DryRun:
		_, _ = fmt.Fprintf(out, "dry run: %d outputs would be regenerated\n", len(cfg.Targets))
		return
	case result.Outcome == pipeline.OutcomeSkipped:
		_, _ = fmt.Fprintln(out, "outputs up to date")
		return
	}

	for _, res := range result.Results {
		line := fmt.Sprintf("  %-14s %-9s %s", res.Status, res.Target.Format, res.Target.Path)
		if cause := res.Cause(); cause != "" {
			line += "  (" + cause + ")"
		}
		_, _ = fmt.Fprintln(out, line)
	}

	switch result.Outcome {
	case pipeline.OutcomeSucceeded:
		_, _ = fmt.Fprintf(out, "regenerated %d outputs in %s, recorded digest %s\n",
			len(result.Results), result.Duration.Round(time.Millisecond), result.Digest)
	case pipeline.OutcomePartialFailure:
		_, _ = fmt.Fprintf(out, "%d of %d conversions failed; hash record unchanged, outputs left for inspection\n",
			len(result.Failed()), len(result.Results))
	case pipeline.OutcomeCancelled:
		_, _ = fmt.Fprintln(out, "cancelled; hash record unchanged")
	case pipeline.OutcomeSourceChanged:
		_, _ = fmt.Fprintln(out, "source changed while converting; hash record unchanged")
	default:
		_, _ = fmt.Fprintln(out, "hash record not updated")
	}
}

func setupLogger() *slog.Logger {
	// Parse log level
	var level slog.Level
	switch logLevel {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}

	if logFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}

func loadConfig(logger *slog.Logger) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if cfgFile != "" {
		logger.Info("loading configuration", "path", cfgFile)
		cfg, err = config.Load(cfgFile)
	} else {
		logger.Debug("looking for configuration", "path", config.DefaultFile)
		cfg, err = config.LoadOrDefault(config.DefaultFile)
	}
	if err != nil {
		return nil, err
	}

	logger.Debug("configuration loaded",
		"source", cfg.SourcePath(),
		"hash_file", cfg.HashFilePath(),
		"binary", cfg.Converter.Binary,
		"targets", len(cfg.Targets),
		"concurrency", cfg.Sync.Concurrency,
		"digest", cfg.Sync.Digest)

	return cfg, nil
}

func setupSignalHandler() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
