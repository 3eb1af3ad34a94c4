package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/kode4food/cascade/internal/server"
	"github.com/kode4food/cascade/pkg/log"
)

func (a *app) serveCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve FILE...",
		Short: "Host flow documents over HTTP",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.serve(cmd.Context(), args)
		},
	}
	cmd.Flags().String(flagHost, a.cfg.APIHost, "address to listen on")
	cmd.Flags().Int(flagPort, a.cfg.APIPort, "port to listen on")
	return cmd
}

func (a *app) serve(ctx context.Context, paths []string) error {
	hosted := make([]*server.Hosted, 0, len(paths))
	for _, path := range paths {
		def, f, err := a.loadFlow(path)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		hosted = append(hosted, &server.Hosted{
			Flow:        f,
			Description: def.Description,
			Seed:        def.Seed(),
		})
	}

	st, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore(st)

	var opts []server.Option
	if st != nil {
		opts = append(opts, server.WithStore(st))
	}
	apiServer, err := server.NewServer(hosted, opts...)
	if err != nil {
		return err
	}

	addr := net.JoinHostPort(a.cfg.APIHost, fmt.Sprint(a.cfg.APIPort))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	httpServer := &http.Server{
		Handler: apiServer.SetupRoutes(),
	}

	errs := make(chan error, 1)
	go func() {
		slog.Info("HTTP server starting",
			slog.String("addr", ln.Addr().String()),
			slog.Int("flows", len(hosted)))
		err := httpServer.Serve(ln)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- err
		}
		close(errs)
	}()

	select {
	case <-ctx.Done():
	case err := <-errs:
		if err != nil {
			return err
		}
	}

	slog.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(
		context.WithoutCancel(ctx), a.cfg.ShutdownTimeout,
	)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("Shutdown failed", log.Error(err))
	}
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("Run shutdown failed", log.Error(err))
	}

	slog.Info("Server exited")
	return nil
}
