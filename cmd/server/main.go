package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Brownie44l1/deepfake-detector/internal/config"
	"github.com/Brownie44l1/deepfake-detector/internal/handlers"
	"github.com/Brownie44l1/deepfake-detector/internal/logging"
	"github.com/Brownie44l1/deepfake-detector/internal/metrics"
	"github.com/Brownie44l1/deepfake-detector/internal/model"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		cfgPath string
		port    string
	)

	cmd := &cobra.Command{
		Use:          "server",
		Short:        "Serve the real-vs-fake face classifier over HTTP",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return err
			}
			if port != "" {
				cfg.Server.Port = port
			}
			return serve(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVar(&cfgPath, "config", "config.yaml", "path to the YAML config")
	cmd.Flags().StringVar(&port, "port", "", "listen port (overrides config and PORT)")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config) error {
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	classifier := model.NewClassifier(model.Options{
		ModelPath:         cfg.Model.Path,
		MetadataPath:      cfg.Model.MetadataPath,
		SharedLibraryPath: cfg.Model.SharedLibraryPath,
		Threshold:         cfg.Model.Threshold,
	}, logger.Named("model"))

	logger.Info("loading model", zap.String("path", cfg.Model.Path))
	if err := classifier.Load(); err != nil {
		logger.Warn("model not loaded, /predict will answer 503", zap.Error(err))
	}
	defer classifier.Close()

	h := handlers.NewHandler(classifier, handlers.Options{
		UploadDir:      cfg.Server.UploadDir,
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
	}, metrics.New(), logger.Named("http"))

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      h.Routes(),
		ReadTimeout:  config.Duration(cfg.Server.ReadTimeout, 30*time.Second),
		WriteTimeout: config.Duration(cfg.Server.WriteTimeout, 60*time.Second),
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	logger.Info("server starting",
		zap.String("addr", srv.Addr),
		zap.Bool("model_loaded", classifier.State() == model.Loaded))
	logger.Info("endpoints",
		zap.Strings("routes", []string{
			"POST /predict - classify an uploaded image",
			"GET /health - liveness and model status",
			"GET /info - model description",
			"GET /metrics - Prometheus metrics",
		}))

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	return nil
}
