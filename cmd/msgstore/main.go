package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/RichardoC/pawtrack/internal/config"
	"github.com/RichardoC/pawtrack/internal/db"
	"github.com/RichardoC/pawtrack/internal/logging"
	"github.com/RichardoC/pawtrack/internal/msgstore"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "pawtrack-msgstore",
	Short: "Local conversation message store for development",
	RunE:  run,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "path to config file")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	defer logger.Sync()

	database, err := db.New(cfg.Database.Path)
	if err != nil {
		logger.Error("failed to initialize database",
			zap.Error(err),
			zap.String("dbPath", cfg.Database.Path))
		return err
	}
	defer database.Close()

	if cfg.MsgStore.Token == "" {
		logger.Warn("msgstore.token is empty, bearer tokens are not checked")
	}

	srv := &http.Server{
		Addr:              cfg.MsgStore.Addr,
		Handler:           msgstore.NewHandler(database, cfg.MsgStore.Token, logger).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting message store", zap.String("addr", cfg.MsgStore.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error("message store failed", zap.Error(err))
			return err
		}
	case <-quit:
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}
