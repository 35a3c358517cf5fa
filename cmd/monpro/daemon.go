package main

import (
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/monpro/monpro/internal/daemon"
	"github.com/monpro/monpro/internal/ui"
)

var daemonCmd = &cobra.Command{
	Use:     "daemon",
	GroupID: "sync",
	Short:   "Run the reconciliation daemon (foreground)",
	Long: `Run the reconciliation daemon in the foreground.

The daemon probes backend connectivity and replays the pending operation
queue on startup, on every offline-to-online transition, and when another
monpro process writes the queue while we are online.

Logs go to <state_dir>/daemon.log with rotation, and to stderr.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		logFile := &lumberjack.Logger{
			Filename:   a.cfg.DaemonLogPath(),
			MaxSize:    a.cfg.DaemonLogMaxSizeMB,
			MaxBackups: a.cfg.DaemonLogMaxBackups,
			Compress:   true,
		}
		defer logFile.Close()

		dcfg := daemon.DefaultConfig()
		dcfg.Logger = log.New(io.MultiWriter(os.Stderr, logFile), "[daemon] ", log.LstdFlags)

		d, err := daemon.New(a.engine, a.monitor, a.cfg.StateDir, dcfg)
		if err != nil {
			return err
		}

		fmt.Printf("%s Starting reconciliation daemon\n", ui.RenderAccent("🚀"))
		fmt.Printf("   State dir: %s\n", a.cfg.StateDir)
		fmt.Printf("   Log: %s\n", a.cfg.DaemonLogPath())
		fmt.Printf("\nPress Ctrl+C to stop\n\n")

		runCtx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
		defer cancel()

		return d.Start(runCtx)
	},
}

func init() {
	rootCmd.AddCommand(daemonCmd)
}
