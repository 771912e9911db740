package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"nerdemo/internal/detect"
	"nerdemo/internal/session"
	"nerdemo/internal/web"
)

func newServeCmd(a *app) *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the NER web app",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("port") {
				a.cfg.Server.Port = port
			}
			return runServe(cmd.Context(), a)
		},
	}
	cmd.Flags().IntVarP(&port, "port", "p", 0, "override server.port")
	return cmd
}

func runServe(ctx context.Context, a *app) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, logger := a.cfg, a.logger
	defer func() { _ = logger.Sync() }()

	inf, cleanup, err := newInferencer(cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	checkInference(ctx, inf, cfg.Inference.Timeout, logger)

	ann, err := buildAnnotator(cfg, inf, logger)
	if err != nil {
		return err
	}
	auditFile := ""
	if cfg.Audit.Enabled {
		auditFile = cfg.Audit.File
	}
	server := web.New(web.Options{
		Addr:        fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Port:        cfg.Server.Port,
		Annotator:   ann,
		Sessions:    session.NewStore(),
		Logger:      logger,
		AuditFile:   auditFile,
		ReadTimeout: cfg.Server.ReadTimeout,
		MaxBody:     int64(cfg.Inference.MaxBytes) * 2,
		SessionTTL:  cfg.Server.SessionTTL,
	})

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		logger.Info("shutting down", zap.String("signal", sig.String()))
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// checkInference runs one prediction at startup. Failures are logged and the
// server still starts; requests then surface the error to the user.
func checkInference(ctx context.Context, inf detect.Inferencer, timeout time.Duration, logger *zap.Logger) bool {
	logger.Info("checking inference backend")
	err := detect.HealthCheck(ctx, inf, timeout)
	switch {
	case err == nil:
		logger.Info("inference health check passed")
		return true
	case errors.Is(err, detect.ErrNERUnavailable):
		logger.Warn("NER model unavailable; annotate requests will fail until it is installed",
			zap.Error(err),
			zap.String("hint", "set model.dir, or install one with 'nerdemo model download' (see model.registry)"))
	case errors.Is(err, context.DeadlineExceeded):
		logger.Warn("inference health check timed out",
			zap.Duration("timeout", timeout),
			zap.String("hint", "check: python3 -c 'import onnxruntime'"))
	default:
		logger.Warn("inference health check failed", zap.Error(err))
	}
	return false
}
