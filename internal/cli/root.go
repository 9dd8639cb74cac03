package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aleph-Alpha/vectorstores/v1/logger"
	"github.com/Aleph-Alpha/vectorstores/v1/tracer"
)

var (
	cfgFile     string
	backendFlag string
	verbose     bool

	cfg       *Config
	appLogger *logger.LoggerClient
	appTracer *tracer.Tracer
)

var rootCmd = &cobra.Command{
	Use:   "vectorctl",
	Short: "Manage documents in pgvector and Cosmos DB MongoDB vCore vector stores",
	Long: `vectorctl loads, searches and maintains documents in a vector store.
The backend and its connection settings come from a YAML config file.

Example usage:
  vectorctl create-index --kind hnsw
  vectorctl load docs.jsonl s3://corpus/handbook.jsonl
  vectorctl search -q "parental leave" --filter '{"lang": "en"}'`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error

		path, required := cfgFile, true
		if path == "" {
			path, required = DefaultConfigFile, false
		}
		cfg, err = LoadConfig(path, required)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if backendFlag != "" {
			cfg.Backend = backendFlag
		}
		if verbose {
			cfg.Logger.Level = logger.Debug
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}

		appLogger = logger.NewLoggerClient(cfg.Logger)

		if cfg.Tracer.EnableExport {
			appTracer, err = tracer.NewClient(cfg.Tracer, appLogger)
			if err != nil {
				return err
			}
		}
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := appTracer.Shutdown(ctx); err != nil {
			appLogger.Warn("Failed to flush spans", err, nil)
		}
		_ = appLogger.Zap.Sync()
		return nil
	},
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./"+DefaultConfigFile+")")
	rootCmd.PersistentFlags().StringVar(&backendFlag, "backend", "", "override the configured backend (pgvector or mongovcore)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log at debug level")
}
