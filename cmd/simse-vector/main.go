package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/shmor3/simse/internal/config"
	"github.com/shmor3/simse/pkg/server"
)

var (
	configPath  string
	storagePath string
	logLevel    string
)

var rootCmd = &cobra.Command{
	Use:   "simse-vector",
	Short: "simse vector memory store",
	Long:  `JSON-RPC server for the simse hybrid semantic and lexical vector memory store.`,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve JSON-RPC over stdio",
	Long:  `Reads newline-delimited JSON-RPC 2.0 requests from stdin and writes responses to stdout. Logs go to stderr.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if storagePath != "" {
			cfg.StoragePath = storagePath
		}
		if logLevel != "" {
			cfg.LogLevel = logLevel
		}

		logger, err := buildLogger(cfg.LogLevel)
		if err != nil {
			return err
		}
		defer logger.Sync() //nolint:errcheck

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		logger.Info("serving on stdio")
		if err := server.New(cfg, logger).RunStdio(ctx); err != nil && ctx.Err() == nil {
			return err
		}
		return nil
	},
}

// buildLogger writes structured logs to stderr so stdout stays reserved for
// the NDJSON response stream.
func buildLogger(level string) (*zap.Logger, error) {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	return cfg.Build()
}

func init() {
	serveCmd.Flags().StringVarP(&configPath, "config", "c", "", "path to YAML config file")
	serveCmd.Flags().StringVarP(&storagePath, "storage", "s", "", "default storage directory for the index")
	serveCmd.Flags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.AddCommand(serveCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
