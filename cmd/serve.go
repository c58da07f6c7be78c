package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"docmanager/internal/config"
	"docmanager/internal/handler"
)

var skipMigrations bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the gRPC ledger service",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&skipMigrations, "skip-migrations", false, "Do not apply migrations on startup")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger, !skipMigrations)
	if err != nil {
		return err
	}
	defer a.close()

	if cfg.Store.Driver == config.StoreDriverPostgres && cfg.Catalog.Path != "" {
		if _, err := syncCatalog(ctx, a); err != nil {
			return err
		}
	}

	router := handler.NewRouter(handler.Handlers{
		Owners:    handler.NewOwnerHandler(a.owners, a.docs, logger),
		Documents: handler.NewDocumentHandler(a.docs, logger),
		Versions:  handler.NewVersionHandler(a.ledger, logger),
	}, a.registry, logger)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	grpcServer := grpc.NewServer()
	handler.RegisterLedgerServer(grpcServer, handler.NewLedgerGRPCHandler(a.ledger, logger))

	lis, err := net.Listen("tcp", fmt.Sprintf(":%s", cfg.Server.GRPCPort))
	if err != nil {
		return fmt.Errorf("failed to listen for gRPC: %w", err)
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("starting gRPC server", zap.String("port", cfg.Server.GRPCPort))
		if err := grpcServer.Serve(lis); err != nil {
			errCh <- fmt.Errorf("failed to serve gRPC: %w", err)
		}
	}()
	go func() {
		logger.Info("starting HTTP server", zap.String("port", cfg.Server.Port))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("failed to start HTTP server: %w", err)
		}
	}()

	a.cleanup.StartTicker(ctx, cfg.Cleanup.Interval, cfg.Cleanup.Days)

	return waitForShutdown(ctx, errCh, func() {
		stop()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server forced to shutdown", zap.Error(err))
		}
		grpcServer.GracefulStop()
	}, logger)
}

// waitForShutdown ждет сигнала или отказа сервера; ошибка сервера возвращается после остановки
func waitForShutdown(ctx context.Context, errCh <-chan error, shutdown func(), logger *zap.Logger) error {
	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
		logger.Error("server failed", zap.Error(serveErr))
	}

	logger.Info("shutting down servers")
	shutdown()

	if serveErr != nil {
		return serveErr
	}
	logger.Info("server exited properly")
	return nil
}
