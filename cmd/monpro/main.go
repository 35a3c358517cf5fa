// Command monpro is an offline-first client for a personal project tracker.
//
// Project operations apply to the remote backend when it is reachable and
// queue locally when it is not; the queue replays in order once
// connectivity returns. Either way the local cache reflects every change
// immediately.
package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/monpro/monpro/internal/config"
	"github.com/monpro/monpro/internal/gateway"
	"github.com/monpro/monpro/internal/netstatus"
	"github.com/monpro/monpro/internal/store"
	"github.com/monpro/monpro/internal/syncer"
)

var rootCmd = &cobra.Command{
	Use:   "monpro",
	Short: "Offline-first project tracker",
	Long: `monpro tracks personal projects against a remote Postgres backend.

When the backend is unreachable, creates, edits, and deletes queue locally
and replay in order once connectivity returns. The local cache always
reflects your latest changes, online or not.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddGroup(
		&cobra.Group{ID: "projects", Title: "Project Commands:"},
		&cobra.Group{ID: "sync", Title: "Sync Commands:"},
		&cobra.Group{ID: "advanced", Title: "Advanced Commands:"},
	)
}

// app bundles the wired-up components a command needs.
type app struct {
	cfg     *config.Config
	store   *store.Store
	gw      *gateway.Postgres
	monitor *netstatus.Monitor
	engine  *syncer.Engine
}

// openApp loads config and wires the store, gateway, monitor, and engine.
// A single connectivity probe runs so the first command decision is based
// on fresh state; if we are online and operations are queued, they replay
// before the command proceeds.
func openApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	st, err := store.Open(cfg.StorePath())
	if err != nil {
		return nil, err
	}
	if err := st.InitSchema(ctx); err != nil {
		_ = st.Close()
		return nil, err
	}

	gw, err := gateway.New(ctx, cfg.DatabaseURL)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	monitorOpts := []netstatus.Option{
		netstatus.WithInterval(cfg.ProbeInterval),
		netstatus.WithLogger(quietLogger()),
	}
	if cfg.ForceOffline {
		monitorOpts = append(monitorOpts, netstatus.ForceOffline())
	}
	monitor := netstatus.New(gw, monitorOpts...)
	monitor.CheckNow(ctx)

	engine := syncer.New(st, gw, monitor, cfg.UserID,
		syncer.WithLogger(quietLogger()),
		syncer.WithDropFailedReplays(cfg.DropFailedReplays),
	)

	a := &app{cfg: cfg, store: st, gw: gw, monitor: monitor, engine: engine}
	a.replayPending(ctx)
	return a, nil
}

// replayPending drains the queue when online. Failures stay queued; the
// command itself proceeds regardless.
func (a *app) replayPending(ctx context.Context) {
	if !a.monitor.Online() {
		return
	}
	pending, err := a.engine.PendingCount(ctx)
	if err != nil || pending == 0 {
		return
	}
	if _, err := a.engine.Replay(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: replay failed: %v\n", err)
	}
}

func (a *app) Close() {
	a.gw.Close()
	_ = a.store.Close()
}

// quietLogger suppresses component logging in interactive commands.
// Set MONPRO_DEBUG to see it.
func quietLogger() *log.Logger {
	if os.Getenv("MONPRO_DEBUG") != "" {
		return log.New(os.Stderr, "[monpro] ", log.LstdFlags)
	}
	return log.New(io.Discard, "", 0)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
