package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/musestudio/stagehand/internal/logger"
	"github.com/musestudio/stagehand/internal/metrics"
	"github.com/musestudio/stagehand/internal/orchestrator"
	"github.com/musestudio/stagehand/internal/server"
)

func createServeCommand(f *ServeFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the host: supervise the backend, serve assets, expose the control API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(f)
		},
	}
	cmd.Flags().StringVar(&f.ListenAddr, "listen", defaultListenAddr, "control API listen address (loopback)")
	cmd.Flags().StringVar(&f.ConfigDir, "config-dir", "", "override the per-user config directory")
	cmd.Flags().BoolVar(&f.Debug, "debug", false, "enable debug logging")
	cmd.Flags().BoolVar(&f.NoColor, "no-color", false, "disable colored log output")
	return cmd
}

func runServe(f *ServeFlags) error {
	color := !f.NoColor && isatty.IsTerminal(os.Stderr.Fd())
	log := logger.NewHostLogger(os.Stderr, f.Debug, color)

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		log.Warn("metrics registration failed", "error", err)
	}

	orch, err := orchestrator.New(orchestrator.Options{ConfigDir: f.ConfigDir, Log: log})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := orch.Startup(ctx); err != nil {
		return err
	}

	srv, err := server.NewServer(f.ListenAddr, orch, log)
	if err != nil {
		orch.Shutdown()
		return err
	}
	log.Info("control API listening", "addr", f.ListenAddr)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Info("shutting down", "signal", sig.String())

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = srv.Shutdown(shutdownCtx)
	orch.Shutdown()
	return nil
}
