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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/RichardoC/pawtrack/internal/api"
	"github.com/RichardoC/pawtrack/internal/backend"
	"github.com/RichardoC/pawtrack/internal/config"
	"github.com/RichardoC/pawtrack/internal/db"
	"github.com/RichardoC/pawtrack/internal/logging"
	"github.com/RichardoC/pawtrack/internal/purge"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "pawtrack-server",
	Short: "Conversation history API for PawTrack",
	RunE:  runServer,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "path to config file")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}

func runServer(cmd *cobra.Command, args []string) error {
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

	client, err := backend.New(cfg.Backend.BaseURL, &http.Client{Timeout: cfg.Backend.Timeout}, logger)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	svc := purge.NewService(client, purge.Options{
		Concurrency: cfg.Purge.Concurrency,
		MaxPages:    cfg.Purge.MaxPages,
		Timeout:     cfg.Purge.Timeout,
		Recorder:    database,
		Registerer:  reg,
		Logger:      logger,
	})

	handler := api.NewHandler(svc, database, cfg.Auth.CookieName, logger)
	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      api.NewRouter(handler, logger, promhttp.HandlerFor(reg, promhttp.HandlerOpts{})),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server",
			zap.String("addr", cfg.Server.Addr),
			zap.String("backend", cfg.Backend.BaseURL))
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
			logger.Error("server failed", zap.Error(err))
			return err
		}
	case <-quit:
	}

	logger.Info("shutting down server")
	// In-flight purges run to completion, bounded by the purge timeout.
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Purge.Timeout+5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server shutdown failed", zap.Error(err))
		return err
	}
	logger.Info("server stopped")
	return nil
}
