package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/lexgraph/internal/httpapi"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long: `Starts the workflow service and exposes it over HTTP, including review
tasks and Prometheus metrics at /metrics. Review tasks are held in memory and
are lost on restart; suspended work survives in the store and can still be
resumed by work ID or token.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		cmd.SetContext(ctx)

		return withApp(cmd, func(ctx context.Context, a *app) error {
			srvCfg := a.cfg.Server
			srv := &http.Server{
				Addr: srvCfg.Addr(),
				Handler: httpapi.NewHandler(a.svc,
					httpapi.WithLogger(a.logger.With("system", "http")),
					httpapi.WithMetrics(a.registry),
				),
				ReadTimeout:  srvCfg.ReadTimeoutDuration(),
				WriteTimeout: srvCfg.WriteTimeoutDuration(),
			}

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				a.logger.Info("server listening", "addr", srv.Addr, "env", a.cfg.Env())
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
			g.Go(func() error {
				<-gctx.Done()
				a.logger.Info("shutting down server")

				shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), srvCfg.ShutdownTimeoutDuration())
				defer cancel()
				if err := srv.Shutdown(shutdownCtx); err != nil {
					a.logger.Error("server shutdown error", "error", err)
					return srv.Close()
				}
				a.logger.Info("server shutdown complete")
				return nil
			})
			return g.Wait()
		})
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
