// Package daemon provides the reconciliation trigger: the long-running
// process that replays the pending queue when connectivity returns.
//
// The daemon fires a replay at three moments:
//  1. Startup, covering operations queued in a previous offline session.
//  2. Every offline-to-online transition reported by the connectivity
//     monitor.
//  3. A debounced wake when another monpro process writes the state
//     directory while we are online, so queue appends from short-lived CLI
//     invocations don't sit until the next transition.
//
// There is no timer-driven replay.
package daemon

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/monpro/monpro/internal/netstatus"
	"github.com/monpro/monpro/internal/syncer"
)

// Config holds daemon configuration.
type Config struct {
	// DebounceInterval is how long to wait after a state-dir change
	// before replaying, batching rapid writes together.
	DebounceInterval time.Duration

	// Cooldown suppresses watcher-triggered replays for a period after
	// any replay, so the daemon's own store writes don't re-trigger it.
	Cooldown time.Duration

	// Logger for daemon activity.
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		DebounceInterval: 500 * time.Millisecond,
		Cooldown:         5 * time.Second,
		Logger:           log.New(os.Stderr, "[daemon] ", log.LstdFlags),
	}
}

// Daemon orchestrates the connectivity monitor, the state-dir watcher,
// and the sync engine's replay routine.
type Daemon struct {
	engine   *syncer.Engine
	monitor  *netstatus.Monitor
	stateDir string
	config   *Config

	watcher *fsnotify.Watcher

	mu         sync.Mutex
	dirtyAt    time.Time
	lastReplay time.Time

	wg sync.WaitGroup
}

// New creates a Daemon. stateDir is the directory holding the local store
// database; it is watched for writes from other monpro processes.
func New(engine *syncer.Engine, monitor *netstatus.Monitor, stateDir string, config *Config) (*Daemon, error) {
	if engine == nil {
		return nil, fmt.Errorf("engine cannot be nil")
	}
	if monitor == nil {
		return nil, fmt.Errorf("monitor cannot be nil")
	}
	if stateDir == "" {
		return nil, fmt.Errorf("stateDir cannot be empty")
	}
	if config == nil {
		config = DefaultConfig()
	}
	if config.Logger == nil {
		config.Logger = DefaultConfig().Logger
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	return &Daemon{
		engine:   engine,
		monitor:  monitor,
		stateDir: stateDir,
		config:   config,
		watcher:  watcher,
	}, nil
}

// Start runs the daemon until ctx is cancelled.
func (d *Daemon) Start(ctx context.Context) error {
	d.config.Logger.Println("Starting daemon")

	// Startup trigger: connectivity may already be back from a previous
	// offline session.
	d.monitor.CheckNow(ctx)
	d.replay(ctx, "startup")

	if err := d.watcher.Add(d.stateDir); err != nil {
		return fmt.Errorf("failed to watch state directory %s: %w", d.stateDir, err)
	}
	d.config.Logger.Printf("Watching: %s", d.stateDir)

	online := d.monitor.Subscribe()

	d.wg.Add(3)
	go func() {
		defer d.wg.Done()
		d.monitor.Run(ctx)
	}()
	go d.watchFileEvents(ctx)
	go d.processTriggers(ctx, online)

	<-ctx.Done()
	return d.stop()
}

// stop shuts the daemon down and waits for its goroutines.
func (d *Daemon) stop() error {
	d.config.Logger.Println("Stopping daemon")

	if err := d.watcher.Close(); err != nil {
		d.config.Logger.Printf("Error closing watcher: %v", err)
	}

	d.wg.Wait()
	d.config.Logger.Println("Daemon stopped")
	return nil
}

// watchFileEvents marks the state dirty on writes to the state directory.
func (d *Daemon) watchFileEvents(ctx context.Context) {
	defer d.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-d.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			// Only the store database matters; skip logs and sockets.
			if filepath.Ext(event.Name) != ".db" {
				continue
			}
			d.mu.Lock()
			d.dirtyAt = time.Now()
			d.mu.Unlock()

		case err, ok := <-d.watcher.Errors:
			if !ok {
				return
			}
			d.config.Logger.Printf("Watcher error: %v", err)
		}
	}
}

// processTriggers replays on online transitions and on debounced
// state-dir changes.
func (d *Daemon) processTriggers(ctx context.Context, online <-chan struct{}) {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.DebounceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-online:
			d.replay(ctx, "connectivity restored")

		case <-ticker.C:
			if d.takeDirty() {
				d.replay(ctx, "state changed")
			}
		}
	}
}

// takeDirty consumes the dirty flag if it is old enough to act on and
// outside the post-replay cooldown.
func (d *Daemon) takeDirty() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.dirtyAt.IsZero() {
		return false
	}
	if time.Since(d.dirtyAt) < d.config.DebounceInterval {
		return false
	}
	if time.Since(d.lastReplay) < d.config.Cooldown {
		d.dirtyAt = time.Time{}
		return false
	}
	d.dirtyAt = time.Time{}
	return true
}

// replay runs one replay pass and logs its outcome.
func (d *Daemon) replay(ctx context.Context, reason string) {
	if !d.monitor.Online() {
		return
	}

	pending, err := d.engine.PendingCount(ctx)
	if err != nil {
		d.config.Logger.Printf("Error reading pending queue: %v", err)
		return
	}
	if pending == 0 {
		return
	}

	d.config.Logger.Printf("Replay triggered (%s): %d pending", reason, pending)

	results, err := d.engine.Replay(ctx)
	if err != nil {
		d.config.Logger.Printf("Error during replay: %v", err)
	}

	d.mu.Lock()
	d.lastReplay = time.Now()
	d.dirtyAt = time.Time{}
	d.mu.Unlock()

	replayed := 0
	for _, r := range results {
		if r.Replayed() {
			replayed++
		}
	}
	d.config.Logger.Printf("Replay done: %d replayed, %d failed", replayed, len(results)-replayed)
}
