package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	geniehttp "github.com/aretw0/genie/pkg/adapters/http"
	"github.com/aretw0/genie/pkg/observability"
	"github.com/aretw0/genie/pkg/session"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP conversation API",
	Long: `Starts the Genie engine as an HTTP server. Conversations are kept in memory,
or in Redis when redis.addr is configured, so several replicas can share them.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if addr, _ := cmd.Flags().GetString("addr"); cmd.Flags().Changed("addr") {
			cfg.Server.Addr = addr
		}

		hooks := observability.LoggingHooks(logger)
		var handlerOpts []geniehttp.Option
		if cfg.Server.Metrics {
			reg := prometheus.NewRegistry()
			hooks = hooks.Merge(observability.NewMetrics(reg).Hooks())
			handlerOpts = append(handlerOpts, geniehttp.WithMetricsHandler(observability.Handler(reg)))
		}

		engine, err := newEngine(hooks)
		if err != nil {
			return err
		}

		store, sessionOpts, closeStore, err := newStore()
		if err != nil {
			return err
		}
		defer func() {
			if err := closeStore(); err != nil {
				logger.Warn("Failed to close conversation store", "err", err)
			}
		}()
		mgr := session.NewManager(engine, store, append(sessionOpts, session.WithLogger(logger))...)

		handler, err := geniehttp.NewHandler(mgr, append(handlerOpts, geniehttp.WithLogger(logger))...)
		if err != nil {
			return err
		}

		srv := &http.Server{
			Addr:              cfg.Server.Addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Channel to listen for errors coming from the listener.
		serverErrors := make(chan error, 1)
		go func() {
			logger.Info("Starting Genie Server", "address", srv.Addr, "flow", engine.Name)
			serverErrors <- srv.ListenAndServe()
		}()

		// Channel to listen for interrupt or terminate signals.
		shutdown := make(chan os.Signal, 1)
		signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

		select {
		case err := <-serverErrors:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err

		case sig := <-shutdown:
			logger.Info("Start shutdown", "signal", sig.String())

			// Give outstanding requests a deadline for completion.
			ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()

			if err := srv.Shutdown(ctx); err != nil {
				logger.Error("Graceful shutdown did not complete", "timeout", cfg.Server.ShutdownTimeout, "err", err)
				if err := srv.Close(); err != nil {
					logger.Error("Error killing server", "err", err)
				}
			}
			// Abandoned conversations finalize in the background.
			mgr.Wait()
			logger.Info("Genie Server stopped gracefully")
			return nil
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringP("addr", "a", ":8080", "Address to listen on")
}
