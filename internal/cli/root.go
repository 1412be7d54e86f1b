// Package cli provides the command-line interface for escalate.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/escalate-go/internal/config"
	"github.com/raphaelgruber/escalate-go/internal/metrics"
	"github.com/raphaelgruber/escalate-go/internal/service"
	"github.com/raphaelgruber/escalate-go/internal/storage"
	"github.com/raphaelgruber/escalate-go/internal/tracing"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	verbose    bool
	configFile string
	storeKind  string
	storeDir   string
	bucket     string
	dataDir    string

	// Global state set up before every command
	cfg       config.Config
	logger    *slog.Logger
	closeLog  func() error
	store     storage.Store
	collector *metrics.Collector
	pipeline  *service.Pipeline

	shutdownTracing func(context.Context) error
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "escalate",
	Short: "Train the nursing task escalation model",
	Long: `Escalate learns which staff member an overdue nursing task should be
escalated to. It builds features from the task, schedule and staff tables,
trains a random forest on them and publishes the model bundle to an object
store (S3, MinIO or a local directory).

Stages exchange artifacts only through the store, so they can run as
separate commands or together with 'escalate run'.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip setup for version and help commands
		if cmd.Name() == "version" || cmd.Name() == "help" {
			return nil
		}

		if configFile != "" {
			os.Setenv("ESCALATE_CONFIG", configFile)
		}
		var err error
		cfg, err = config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		applyGlobalFlags(cmd)
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("config: %w", err)
		}

		level := cfg.LogLevel
		if verbose {
			level = slog.LevelDebug
		}
		logger, closeLog = config.SetupLogger(cmd.ErrOrStderr(), cfg.LogFile, level)

		tc := cfg.Tracing
		tc.ServiceVersion = Version
		shutdownTracing, err = tracing.Setup(cmd.Context(), tc, tracing.WithWriter(cmd.ErrOrStderr()))
		if err != nil {
			return fmt.Errorf("setup tracing: %w", err)
		}

		store, err = openStore(cmd.Context())
		if err != nil {
			return err
		}
		collector = metrics.NewCollector()
		pipeline = service.NewPipeline(store, service.Options{
			DataDir: cfg.DataDir,
			Split:   cfg.Split.Options(),
			Trainer: cfg.Trainer,
		}, logger, collector)
		return nil
	},
}

// applyGlobalFlags lets explicitly set flags override the loaded config.
func applyGlobalFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	if flags.Changed("store") {
		cfg.Store = storeKind
	}
	if flags.Changed("store-dir") {
		cfg.StoreDir = storeDir
	}
	if flags.Changed("bucket") {
		cfg.Bucket = bucket
	}
	if flags.Changed("data-dir") {
		cfg.DataDir = dataDir
	}
	applyTrainerFlags(cmd)
}

// openStore builds the configured object store.
func openStore(ctx context.Context) (storage.Store, error) {
	switch cfg.Store {
	case config.StoreLocal:
		s, err := storage.NewLocalStore(cfg.StoreDir, logger)
		if err != nil {
			return nil, fmt.Errorf("open local store: %w", err)
		}
		return s, nil
	case config.StoreMinIO:
		s, err := storage.NewMinIOStore(storage.MinIOConfig{
			Endpoint:  cfg.MinIO.Endpoint,
			AccessKey: cfg.MinIO.AccessKey,
			SecretKey: cfg.MinIO.SecretKey,
			Bucket:    cfg.Bucket,
			Region:    cfg.Region,
			UseSSL:    cfg.MinIO.UseSSL,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("open minio store: %w", err)
		}
		if err := s.EnsureBucket(ctx); err != nil {
			return nil, fmt.Errorf("open minio store: %w", err)
		}
		return s, nil
	default:
		s, err := storage.NewS3Store(ctx, storage.S3Config{
			Bucket:       cfg.Bucket,
			Region:       cfg.Region,
			Endpoint:     cfg.S3Endpoint,
			UsePathStyle: cfg.S3Endpoint != "",
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("open s3 store: %w", err)
		}
		if err := s.EnsureBucket(ctx); err != nil {
			return nil, fmt.Errorf("open s3 store: %w", err)
		}
		return s, nil
	}
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	err := rootCmd.ExecuteContext(context.Background())
	finish()
	return err
}

// finish runs after every command, failed ones included, since cobra
// skips post-run hooks when RunE returns an error.
func finish() {
	if collector != nil && cfg.MetricsFile != "" {
		if err := metrics.NewExporter().WriteTextfile(cfg.MetricsFile, collector); err != nil {
			logger.Warn("failed to write metrics", "file", cfg.MetricsFile, "error", err)
		}
	}
	collector = nil
	flushTracing()
	if closeLog != nil {
		if err := closeLog(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to close log file: %v\n", err)
		}
		closeLog = nil
	}
}

// flushTracing exports pending spans, including those of failed commands.
func flushTracing() {
	if shutdownTracing == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := shutdownTracing(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to flush traces: %v\n", err)
	}
	shutdownTracing = nil
}

func init() {
	// Global flags
	pf := rootCmd.PersistentFlags()
	pf.BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	pf.StringVar(&configFile, "config", "", "YAML config file (env ESCALATE_CONFIG)")
	pf.StringVar(&storeKind, "store", config.StoreS3, "object store backend: s3, minio or local")
	pf.StringVar(&storeDir, "store-dir", "", "root directory of the local store")
	pf.StringVar(&bucket, "bucket", "", "S3 bucket")
	pf.StringVar(&dataDir, "data-dir", "", "local working directory for tables and partitions")

	// Add subcommands
	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(preprocessCmd)
	rootCmd.AddCommand(trainCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(predictCmd)
}
