package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	serverURL string
	verbose   bool
	logger    *zap.Logger
)

func setupLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.DisableStacktrace = true
	return cfg.Build()
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "glotcast-publisher",
		Short: "Publish source-text fragments to a glotcast relay",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			logger, err = setupLogger(verbose)
			return err
		},
	}

	rootCmd.PersistentFlags().StringVarP(&serverURL, "server", "s", envOrDefault("GLOTCAST_SERVER", "http://localhost:8080"), "relay base URL (or set GLOTCAST_SERVER)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(publishCmd())
	rootCmd.AddCommand(statusCmd())

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func envOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
