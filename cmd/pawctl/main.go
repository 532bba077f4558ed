package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/RichardoC/pawtrack/internal/backend"
	"github.com/RichardoC/pawtrack/internal/config"
	"github.com/RichardoC/pawtrack/internal/logging"
	"github.com/RichardoC/pawtrack/internal/purge"
)

var (
	cfgFile   string
	token     string
	patientID string
)

var rootCmd = &cobra.Command{
	Use:           "pawctl",
	Short:         "Inspect and purge PawTrack conversations",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "path to config file")
	rootCmd.PersistentFlags().StringVar(&token, "token", os.Getenv("PAWTRACK_TOKEN"), "bearer token for the backend (default $PAWTRACK_TOKEN)")
	rootCmd.PersistentFlags().StringVarP(&patientID, "patient", "p", "", "patient id")
	_ = rootCmd.MarkPersistentFlagRequired("patient")

	rootCmd.AddCommand(newPurgeCmd(), newHistoryCmd())
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// setup builds the backend client and purge service from configuration.
// CLI logs go to stderr so stdout stays machine readable.
func setup() (*backend.Client, *purge.Service, *zap.Logger, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, nil, err
	}

	logCfg := cfg.Log
	logCfg.Format = "console"
	logger, err := logging.New(logCfg)
	if err != nil {
		return nil, nil, nil, err
	}

	client, err := backend.New(cfg.Backend.BaseURL, &http.Client{Timeout: cfg.Backend.Timeout}, logger)
	if err != nil {
		return nil, nil, nil, err
	}

	svc := purge.NewService(client, purge.Options{
		Concurrency: cfg.Purge.Concurrency,
		MaxPages:    cfg.Purge.MaxPages,
		Timeout:     cfg.Purge.Timeout,
		Logger:      logger,
	})
	return client, svc, logger, nil
}
