package daemon

import (
	"context"
	"fmt"
	"io"
	"log"
	"path/filepath"
	"testing"
	"time"

	"github.com/monpro/monpro/internal/netstatus"
	"github.com/monpro/monpro/internal/schema"
	"github.com/monpro/monpro/internal/store"
	"github.com/monpro/monpro/internal/syncer"
)

// okPinger always reports the backend reachable.
type okPinger struct{}

func (okPinger) Ping(ctx context.Context) error { return nil }

// memGateway accepts every project operation, assigning sequential ids.
type memGateway struct {
	inserts int
}

func (g *memGateway) Insert(ctx context.Context, p *schema.Project) (*schema.Project, error) {
	g.inserts++
	created := p.Clone()
	created.ID = fmt.Sprintf("srv-%d", g.inserts)
	return created, nil
}

func (g *memGateway) Update(ctx context.Context, id string, p *schema.Project) error { return nil }
func (g *memGateway) Delete(ctx context.Context, id string) error                    { return nil }
func (g *memGateway) SelectAllForUser(ctx context.Context, userID string) ([]*schema.Project, error) {
	return nil, nil
}

func setupDaemon(t *testing.T) (*Daemon, *syncer.Engine, *netstatus.Monitor, *memGateway, *store.Store) {
	t.Helper()

	dir := t.TempDir()
	st, err := store.Open(filepath.Join(dir, "monpro.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	if err := st.InitSchema(context.Background()); err != nil {
		t.Fatalf("failed to init schema: %v", err)
	}

	quiet := log.New(io.Discard, "", 0)
	monitor := netstatus.New(okPinger{}, netstatus.WithLogger(quiet))
	gw := &memGateway{}
	engine := syncer.New(st, gw, monitor, "user-1", syncer.WithLogger(quiet))

	cfg := DefaultConfig()
	cfg.Logger = quiet
	cfg.DebounceInterval = 10 * time.Millisecond
	cfg.Cooldown = 50 * time.Millisecond

	d, err := New(engine, monitor, dir, cfg)
	if err != nil {
		t.Fatalf("failed to create daemon: %v", err)
	}
	t.Cleanup(func() { _ = d.watcher.Close() })
	return d, engine, monitor, gw, st
}

func TestNewRejectsMissingParts(t *testing.T) {
	_, engine, monitor, _, _ := setupDaemon(t)

	if _, err := New(nil, monitor, t.TempDir(), nil); err == nil {
		t.Error("expected error for nil engine")
	}
	if _, err := New(engine, nil, t.TempDir(), nil); err == nil {
		t.Error("expected error for nil monitor")
	}
	if _, err := New(engine, monitor, "", nil); err == nil {
		t.Error("expected error for empty state dir")
	}
}

func TestReplayDrainsQueueWhenOnline(t *testing.T) {
	d, engine, monitor, gw, _ := setupDaemon(t)
	ctx := context.Background()

	// Queue a create while offline; the monitor starts offline.
	if _, err := engine.CreateProject(ctx, &schema.Project{Name: "queued"}); err != nil {
		t.Fatalf("offline create: %v", err)
	}
	if gw.inserts != 0 {
		t.Fatal("offline create reached the gateway")
	}

	monitor.SetOnline(true)
	d.replay(ctx, "test")

	if gw.inserts != 1 {
		t.Errorf("replay made %d inserts, want 1", gw.inserts)
	}
	pending, err := engine.PendingCount(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if pending != 0 {
		t.Errorf("queue still holds %d ops after replay", pending)
	}
}

func TestReplaySkipsWhileOffline(t *testing.T) {
	d, engine, _, gw, _ := setupDaemon(t)
	ctx := context.Background()

	if _, err := engine.CreateProject(ctx, &schema.Project{Name: "queued"}); err != nil {
		t.Fatal(err)
	}

	d.replay(ctx, "test")

	if gw.inserts != 0 {
		t.Error("offline replay hit the gateway")
	}
	pending, _ := engine.PendingCount(ctx)
	if pending != 1 {
		t.Errorf("offline replay modified the queue: %d pending", pending)
	}
}

func TestTakeDirtyDebounces(t *testing.T) {
	d, _, _, _, _ := setupDaemon(t)

	if d.takeDirty() {
		t.Error("clean state reported dirty")
	}

	// A fresh mark is still inside the debounce window.
	d.mu.Lock()
	d.dirtyAt = time.Now()
	d.mu.Unlock()
	if d.takeDirty() {
		t.Error("fresh mark should wait out the debounce window")
	}

	// An aged mark fires once and is consumed.
	d.mu.Lock()
	d.dirtyAt = time.Now().Add(-time.Second)
	d.mu.Unlock()
	if !d.takeDirty() {
		t.Error("aged mark should fire")
	}
	if d.takeDirty() {
		t.Error("mark should be consumed after firing")
	}
}

func TestTakeDirtySuppressedDuringCooldown(t *testing.T) {
	d, _, _, _, _ := setupDaemon(t)

	d.mu.Lock()
	d.dirtyAt = time.Now().Add(-time.Second)
	d.lastReplay = time.Now()
	d.mu.Unlock()

	if d.takeDirty() {
		t.Error("mark inside replay cooldown should not fire")
	}

	// The cooldown swallows the mark entirely.
	d.mu.Lock()
	if !d.dirtyAt.IsZero() {
		t.Error("cooldown should consume the mark")
	}
	d.mu.Unlock()
}

func TestOnlineTransitionTriggersReplay(t *testing.T) {
	d, engine, monitor, gw, _ := setupDaemon(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if _, err := engine.CreateProject(ctx, &schema.Project{Name: "queued"}); err != nil {
		t.Fatal(err)
	}

	online := monitor.Subscribe()
	d.wg.Add(1)
	go d.processTriggers(ctx, online)

	monitor.SetOnline(true)

	deadline := time.After(2 * time.Second)
	for {
		pending, err := engine.PendingCount(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if pending == 0 && gw.inserts == 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("replay never ran: pending=%d inserts=%d", pending, gw.inserts)
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	d.wg.Wait()
}
