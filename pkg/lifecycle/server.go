// Package lifecycle runs a long-lived service together with its HTTP and
// gRPC health endpoints and handles shutdown.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mfreeman451/clientradar/pkg/grpc"
	"github.com/mfreeman451/clientradar/pkg/models"
)

const (
	MaxRecvSize       = 4 * 1024 * 1024 // 4MB
	MaxSendSize       = 4 * 1024 * 1024 // 4MB
	ShutdownTimeout   = 10 * time.Second
	readHeaderTimeout = 5 * time.Second
)

// Service defines the interface that all services must implement.
type Service interface {
	Start(context.Context) error
	Stop(context.Context) error
}

// ServerOptions holds configuration for creating a server.
type ServerOptions struct {
	ServiceName string
	Service     Service
	Logger      *slog.Logger

	HTTPAddr    string
	HTTPHandler http.Handler

	// GRPCAddr empty disables the gRPC health endpoint.
	GRPCAddr string
	Security *models.SecurityConfig

	// Signals defaults to SIGINT and SIGTERM.
	Signals []os.Signal
}

// RunServer starts the service and its endpoints and blocks until a signal,
// ctx cancellation or a component error, then shuts everything down within
// ShutdownTimeout.
func RunServer(ctx context.Context, opts *ServerOptions) error {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	logger = logger.With("service", opts.ServiceName)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	logger.Info("starting service")

	errChan := make(chan error, 3)

	var grpcServer *grpc.Server

	if opts.GRPCAddr != "" {
		var (
			provider grpc.SecurityProvider
			err      error
		)

		grpcServer, provider, err = setupGRPCServer(ctx, opts, logger)
		if err != nil {
			return fmt.Errorf("failed to setup gRPC server: %w", err)
		}

		defer func() {
			if err := provider.Close(); err != nil {
				logger.Warn("failed to close security provider", "err", err)
			}
		}()

		go func() {
			if err := grpcServer.Start(); err != nil {
				errChan <- fmt.Errorf("grpc server: %w", err)
			}
		}()
	}

	var httpServer *http.Server

	if opts.HTTPHandler != nil {
		httpServer = &http.Server{
			Addr:              opts.HTTPAddr,
			Handler:           opts.HTTPHandler,
			ReadHeaderTimeout: readHeaderTimeout,
			BaseContext:       func(net.Listener) context.Context { return ctx },
		}

		go func() {
			logger.Info("http server listening", "addr", opts.HTTPAddr)

			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errChan <- fmt.Errorf("http server: %w", err)
			}
		}()
	}

	go func() {
		if err := opts.Service.Start(ctx); err != nil {
			errChan <- fmt.Errorf("service: %w", err)
		}
	}()

	runErr := waitForShutdown(ctx, opts.Signals, errChan, logger)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.WithoutCancel(ctx), ShutdownTimeout)
	defer shutdownCancel()

	cancel()

	if httpServer != nil {
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("http server shutdown", "err", err)
		}
	}

	if grpcServer != nil {
		grpcServer.Stop(shutdownCtx)
	}

	if err := opts.Service.Stop(shutdownCtx); err != nil {
		logger.Error("error during service shutdown", "err", err)

		return errors.Join(runErr, fmt.Errorf("shutdown error: %w", err))
	}

	logger.Info("service stopped")

	return runErr
}

func setupGRPCServer(
	ctx context.Context, opts *ServerOptions, logger *slog.Logger) (*grpc.Server, grpc.SecurityProvider, error) {
	provider, err := grpc.NewSecurityProvider(ctx, opts.Security, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create security provider: %w", err)
	}

	creds, err := provider.GetServerCredentials(ctx)
	if err != nil {
		_ = provider.Close()

		return nil, nil, fmt.Errorf("failed to get server credentials: %w", err)
	}

	grpcServer := grpc.NewServer(opts.GRPCAddr,
		grpc.WithLogger(logger),
		grpc.WithMaxRecvSize(MaxRecvSize),
		grpc.WithMaxSendSize(MaxSendSize),
		grpc.WithServerOptions(creds),
	)
	grpcServer.SetServing(opts.ServiceName)

	return grpcServer, provider, nil
}

// waitForShutdown returns nil on a signal or ctx cancellation and the
// component error otherwise.
func waitForShutdown(ctx context.Context, signals []os.Signal, errChan <-chan error, logger *slog.Logger) error {
	if len(signals) == 0 {
		signals = []os.Signal{syscall.SIGINT, syscall.SIGTERM}
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, signals...)

	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		logger.Info("received signal, initiating shutdown", "signal", sig.String())
	case err := <-errChan:
		logger.Error("component failed, initiating shutdown", "err", err)

		return err
	case <-ctx.Done():
		logger.Info("context canceled, initiating shutdown")
	}

	return nil
}
