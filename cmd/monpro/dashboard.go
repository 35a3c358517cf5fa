package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/monpro/monpro/internal/daemon"
	"github.com/monpro/monpro/internal/dashboard"
	"github.com/monpro/monpro/internal/syncer"
)

var dashboardCmd = &cobra.Command{
	Use:     "dashboard",
	GroupID: "advanced",
	Short:   "Start a real-time WebSocket dashboard for sync activity",
	Long: `Start a WebSocket dashboard server broadcasting sync activity.

The server runs the reconciliation daemon alongside, so queued operations
replay while the dashboard is up, and streams:
- project_update: a project was created, edited, or deleted
- connectivity: the backend became reachable or unreachable
- replay_complete: a replay pass finished
- queue_depth: the pending queue length changed

Example usage:
  monpro dashboard               # Start on the configured port
  monpro dashboard --port 9000   # Start on a custom port

Connect with a WebSocket client:
  ws://localhost:<port>/ws`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		port, _ := cmd.Flags().GetInt("port")
		if port == 0 {
			port = a.cfg.DashboardPort
		}

		server := dashboard.NewServer(&dashboard.Config{
			Port:   port,
			Logger: log.New(os.Stderr, "[dashboard] ", log.LstdFlags),
		})
		if err := server.Start(); err != nil {
			return fmt.Errorf("failed to start dashboard: %w", err)
		}

		handler := dashboard.NewHandler(server, quietLogger())

		// Rebuild the engine with the dashboard as its event sink.
		engine := syncer.New(a.store, a.gw, a.monitor, a.cfg.UserID,
			syncer.WithLogger(quietLogger()),
			syncer.WithEvents(handler),
			syncer.WithDropFailedReplays(a.cfg.DropFailedReplays),
		)

		if pending, err := engine.PendingCount(ctx); err == nil {
			handler.SetQueueDepth(pending)
		}

		d, err := daemon.New(engine, a.monitor, a.cfg.StateDir, nil)
		if err != nil {
			return err
		}

		runCtx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
		defer cancel()

		// Connectivity transitions stream to clients alongside replays.
		go func() {
			online := a.monitor.Subscribe()
			for {
				select {
				case <-runCtx.Done():
					return
				case <-online:
					handler.OnConnectivityChanged(true)
				}
			}
		}()

		fmt.Printf("Dashboard server started on http://localhost:%d\n", port)
		fmt.Printf("WebSocket endpoint: ws://localhost:%d/ws\n", port)
		fmt.Printf("Health check: http://localhost:%d/health\n", port)
		fmt.Println("\nPress Ctrl+C to stop...")

		daemonErr := d.Start(runCtx)

		fmt.Println("\nShutting down dashboard server...")
		if err := server.Stop(); err != nil {
			fmt.Fprintf(os.Stderr, "Error during shutdown: %v\n", err)
		}
		fmt.Println("Dashboard server stopped")
		return daemonErr
	},
}

func init() {
	dashboardCmd.Flags().IntP("port", "p", 0, "Port to listen on (default from config)")
	rootCmd.AddCommand(dashboardCmd)
}
