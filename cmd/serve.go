package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/parcel-report-pdf/internal/api"
)

func newServeCmd(rt *appState) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Starts the HTTP server",
		Long: `Serves the request form on /, PDF downloads on /{ref} and POST /generate-pdf,
plus /healthz, /readyz and /metrics. Stops gracefully on SIGINT or SIGTERM.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := rt.ready(); err != nil {
				return err
			}
			addr := fmt.Sprintf(":%d", rt.cfg.Server.Port)
			ln, err := net.Listen("tcp", addr)
			if err != nil {
				return fmt.Errorf("listen on %s: %w", addr, err)
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, rt, ln)
		},
	}
}

// runServe serves on ln until ctx is done, then drains in-flight requests.
func runServe(ctx context.Context, rt *appState, ln net.Listener) error {
	logger := rt.logger

	fetcher, closePipeline, err := newPipeline(rt.cfg, logger)
	if err != nil {
		_ = ln.Close()
		return err
	}
	defer closePipeline()

	srv := &http.Server{
		Handler:           api.NewServer(fetcher, logger.Named("api")).Handler(),
		ReadHeaderTimeout: rt.cfg.ReadHeaderTimeout(),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http server started", zap.String("addr", ln.Addr().String()))
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve http: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutdown initiated")
		shutdownCtx := context.Background()
		if timeout := rt.cfg.ShutdownTimeout(); timeout > 0 {
			var cancel context.CancelFunc
			shutdownCtx, cancel = context.WithTimeout(shutdownCtx, timeout)
			defer cancel()
		}
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		return nil
	})

	err = g.Wait()
	if err != nil {
		logger.Error("server stopped with error", zap.Error(err))
	} else {
		logger.Info("shutdown complete")
	}
	return err
}
