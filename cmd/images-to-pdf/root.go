package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/book-expert/logger"
	"github.com/gofrs/flock"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/book-expert/images-to-pdf/internal/bundler"
	"github.com/book-expert/images-to-pdf/internal/config"
	"github.com/book-expert/images-to-pdf/internal/publish"
)

var (
	// ErrFailuresReported is returned in strict mode when any item failed.
	ErrFailuresReported = errors.New("failures were reported")
	// ErrAlreadyRunning is returned when the lock file is held by another run.
	ErrAlreadyRunning = errors.New("another images-to-pdf run holds the lock")
)

// cliFlags holds the command-line arguments.
type cliFlags struct {
	configPath string
	configURL  string
	logDir     string
	lockPath   string
	natsURL    string
	extensions []string
	workers    int
	overwrite  bool
	verify     bool
	noProgress bool
	strict     bool
}

func newRootCommand() *cobra.Command {
	var flags cliFlags

	rootCmd := &cobra.Command{
		Use:           "images-to-pdf [flags] ROOT...",
		Short:         "Bundle the images of every directory into one PDF",
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBundle(cmd.Context(), &flags, args, cmd.OutOrStdout())
		},
	}

	flagSet := rootCmd.Flags()
	flagSet.StringVarP(&flags.configPath, "config", "c", config.DefaultFileName, "Configuration file path")
	flagSet.StringVar(&flags.configURL, "config-url", "", "Load the configuration from a URL instead of a file")
	flagSet.BoolVar(&flags.overwrite, "overwrite", false, "Regenerate PDFs that already exist")
	flagSet.IntVarP(&flags.workers, "workers", "w", 0, "Number of concurrent jobs (default: CPU count)")
	flagSet.StringSliceVar(&flags.extensions, "ext", nil, "Allowed image extensions (default jpg,jpeg,png,avif)")
	flagSet.BoolVar(&flags.verify, "verify", false, "Compare converted JPEGs with their sources before deleting them")
	flagSet.StringVar(&flags.logDir, "log-dir", "", "Log directory (default ./logs/images_to_pdf)")
	flagSet.BoolVar(&flags.noProgress, "no-progress", false, "Disable progress bars")
	flagSet.StringVar(&flags.lockPath, "lock", "", "Exclusive lock file; a second run using it fails")
	flagSet.BoolVar(&flags.strict, "strict", false, "Exit with status 1 when any image or PDF failed")
	flagSet.StringVar(&flags.natsURL, "nats-url", "", "Publish created PDFs to this NATS server")

	return rootCmd
}

// runBundle is the command body, separated from cobra for tests.
func runBundle(ctx context.Context, flags *cliFlags, roots []string, stdout io.Writer) error {
	// Step 1: Build the effective configuration.
	cfg, cfgErr := loadConfig(flags)
	if cfgErr != nil {
		return cfgErr
	}

	cfg = cfg.Apply(config.Overrides{
		LogsDir:    flags.logDir,
		NATSURL:    flags.natsURL,
		Extensions: flags.extensions,
		Workers:    flags.workers,
		Overwrite:  flags.overwrite,
		Verify:     flags.verify,
	})

	workDir, wdErr := os.Getwd()
	if wdErr != nil {
		return fmt.Errorf("could not determine working directory: %w", wdErr)
	}

	// Step 2: Logger and instance lock.
	log, logErr := setupLogger(cfg.LogsDir(workDir))
	if logErr != nil {
		return logErr
	}

	defer func() {
		closeErr := log.Close()
		if closeErr != nil {
			_, _ = fmt.Fprintf(os.Stderr, "failed to close logger: %v\n", closeErr)
		}
	}()

	unlock, lockErr := acquireLock(flags.lockPath)
	if lockErr != nil {
		return lockErr
	}
	defer unlock()

	// Step 3: Run the pipeline.
	opts := cfg.BundlerOptions()
	opts.ProgressBarOutput = stdout
	opts.DisableProgress = flags.noProgress || !isTerminal(stdout)

	processor := bundler.NewProcessor(&opts, log)

	if cfg.PublishEnabled() {
		publisher, pubErr := connectPublisher(ctx, cfg.NATS, log)
		if pubErr != nil {
			return pubErr
		}
		defer publisher.Close()

		processor.SetNotifier(publisher)
	}

	summary, runErr := processor.Run(ctx, roots)
	if runErr != nil {
		return fmt.Errorf("images-to-pdf failed: %w", runErr)
	}

	// Step 4: Report.
	_, _ = fmt.Fprintln(stdout, renderSummary(summary))

	if flags.strict && summary.HasFailures() {
		return fmt.Errorf("%w: %d", ErrFailuresReported, failureCount(summary))
	}

	return nil
}

// loadConfig reads the remote configuration when a URL is given and the local
// file otherwise. A missing local file yields an empty configuration.
func loadConfig(flags *cliFlags) (config.Config, error) {
	if flags.configURL == "" {
		cfg, err := config.SafeLoad(flags.configPath)
		if err != nil {
			return config.Config{}, fmt.Errorf("error loading config file: %w", err)
		}

		return cfg, nil
	}

	bootstrapLogger, bootErr := logger.New(os.TempDir(), "images-to-pdf-bootstrap.log")
	if bootErr != nil {
		return config.Config{}, fmt.Errorf("failed to create bootstrap logger: %w", bootErr)
	}

	defer func() {
		closeErr := bootstrapLogger.Close()
		if closeErr != nil {
			_, _ = fmt.Fprintf(os.Stderr, "failed to close bootstrap logger: %v\n", closeErr)
		}
	}()

	return config.LoadFromURL(flags.configURL, bootstrapLogger)
}

// setupLogger initializes the run logger, creating the log directory if needed.
func setupLogger(logDir string) (*logger.Logger, error) {
	logFileName := fmt.Sprintf("log_%s.log", time.Now().Format("20060102_150405"))

	log, err := logger.New(logDir, logFileName)
	if err != nil {
		return nil, fmt.Errorf("could not set up logger: %w", err)
	}

	return log, nil
}

// acquireLock takes an exclusive lock on path. An empty path disables locking.
func acquireLock(path string) (func(), error) {
	if path == "" {
		return func() {}, nil
	}

	lock := flock.New(path)

	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", path, err)
	}

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyRunning, path)
	}

	return func() { _ = lock.Unlock() }, nil
}

func connectPublisher(ctx context.Context, natsCfg config.NATS, log *logger.Logger) (*publish.NATSPublisher, error) {
	natsCfg = natsCfg.WithDefaults()

	publisher, err := publish.Connect(ctx, publish.Options{
		URL:               natsCfg.URL,
		StreamName:        natsCfg.StreamName,
		Subject:           natsCfg.Subject,
		ObjectStoreBucket: natsCfg.ObjectStoreBucket,
		TenantID:          natsCfg.TenantID,
		UserID:            os.Getenv("USER"),
	}, log)
	if err != nil {
		return nil, fmt.Errorf("could not set up publishing: %w", err)
	}

	log.Info("Publishing created PDFs to %s", natsCfg.Subject)

	return publisher, nil
}

func isTerminal(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}

	fd := file.Fd()

	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
