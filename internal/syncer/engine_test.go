package syncer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"path/filepath"
	"testing"

	"github.com/monpro/monpro/internal/schema"
	"github.com/monpro/monpro/internal/store"
)

// fakeStatus is a settable connectivity view.
type fakeStatus struct {
	online bool
}

func (f *fakeStatus) Online() bool { return f.online }

// gatewayCall records one invocation for order assertions.
type gatewayCall struct {
	op     string
	id     string
	name   string
	userID string
}

// fakeGateway implements gateway.ProjectGateway in memory, assigning
// sequential server ids and failing on demand.
type fakeGateway struct {
	calls   []gatewayCall
	nextID  int
	failOn  map[int]error // call index (0-based) -> error
	records map[string]*schema.Project
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		failOn:  make(map[int]error),
		records: make(map[string]*schema.Project),
	}
}

func (g *fakeGateway) fail() error {
	if err, ok := g.failOn[len(g.calls)-1]; ok {
		return err
	}
	return nil
}

func (g *fakeGateway) Insert(ctx context.Context, p *schema.Project) (*schema.Project, error) {
	g.calls = append(g.calls, gatewayCall{op: "insert", name: p.Name, userID: p.UserID})
	if err := g.fail(); err != nil {
		return nil, err
	}
	g.nextID++
	created := p.Clone()
	created.ID = fmt.Sprintf("srv-%d", g.nextID)
	g.records[created.ID] = created
	return created, nil
}

func (g *fakeGateway) Update(ctx context.Context, id string, p *schema.Project) error {
	g.calls = append(g.calls, gatewayCall{op: "update", id: id, name: p.Name})
	if err := g.fail(); err != nil {
		return err
	}
	g.records[id] = p.Clone()
	return nil
}

func (g *fakeGateway) Delete(ctx context.Context, id string) error {
	g.calls = append(g.calls, gatewayCall{op: "delete", id: id})
	if err := g.fail(); err != nil {
		return err
	}
	delete(g.records, id)
	return nil
}

func (g *fakeGateway) SelectAllForUser(ctx context.Context, userID string) ([]*schema.Project, error) {
	g.calls = append(g.calls, gatewayCall{op: "select", userID: userID})
	if err := g.fail(); err != nil {
		return nil, err
	}
	out := make([]*schema.Project, 0, len(g.records))
	for _, p := range g.records {
		if p.UserID == userID {
			out = append(out, p.Clone())
		}
	}
	return out, nil
}

// setupEngine builds an engine over a temp store, an in-memory gateway,
// and a settable connectivity status.
func setupEngine(t *testing.T, opts ...Option) (*Engine, *fakeGateway, *fakeStatus, *store.Store) {
	t.Helper()

	st, err := store.Open(filepath.Join(t.TempDir(), "monpro.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	if err := st.InitSchema(context.Background()); err != nil {
		t.Fatalf("failed to init schema: %v", err)
	}

	gw := newFakeGateway()
	status := &fakeStatus{online: true}

	opts = append([]Option{WithLogger(log.New(io.Discard, "", 0))}, opts...)
	e := New(st, gw, status, "user-1", opts...)
	return e, gw, status, st
}

func TestOfflineCreateIsVisibleImmediately(t *testing.T) {
	e, gw, status, st := setupEngine(t)
	status.online = false
	ctx := context.Background()

	created, err := e.CreateProject(ctx, &schema.Project{Name: "X"})
	if err != nil {
		t.Fatalf("offline create returned error: %v", err)
	}
	if created.Synced() {
		t.Error("offline create should not have a server id")
	}
	if created.ClientRef == "" {
		t.Error("offline create missing client ref")
	}
	if len(gw.calls) != 0 {
		t.Errorf("offline create hit the gateway: %v", gw.calls)
	}

	projects, err := st.Projects(ctx, "user-1")
	if err != nil {
		t.Fatalf("Projects: %v", err)
	}
	if len(projects) != 1 || projects[0].Name != "X" {
		t.Fatalf("cache does not lead with the new record: %+v", projects)
	}

	ops, err := st.PendingOps(ctx)
	if err != nil {
		t.Fatalf("PendingOps: %v", err)
	}
	if len(ops) != 1 || ops[0].Kind != schema.OpCreate || ops[0].Project.Name != "X" {
		t.Fatalf("queue does not hold exactly the create: %+v", ops)
	}
}

func TestOfflineCreatePrepends(t *testing.T) {
	e, _, status, st := setupEngine(t)
	ctx := context.Background()

	if _, err := e.CreateProject(ctx, &schema.Project{Name: "old"}); err != nil {
		t.Fatalf("online create: %v", err)
	}

	status.online = false
	if _, err := e.CreateProject(ctx, &schema.Project{Name: "new"}); err != nil {
		t.Fatalf("offline create: %v", err)
	}

	projects, _ := st.Projects(ctx, "user-1")
	if len(projects) != 2 || projects[0].Name != "new" {
		t.Errorf("offline create should prepend: %+v", projects)
	}
}

func TestOnlineCreateNeverQueues(t *testing.T) {
	e, _, _, st := setupEngine(t)
	ctx := context.Background()

	created, err := e.CreateProject(ctx, &schema.Project{Name: "X"})
	if err != nil {
		t.Fatalf("online create: %v", err)
	}
	if !created.Synced() {
		t.Error("online create missing server-assigned id")
	}

	ops, _ := st.PendingOps(ctx)
	if len(ops) != 0 {
		t.Errorf("online create queued %d ops, want 0", len(ops))
	}

	projects, _ := st.Projects(ctx, "user-1")
	if len(projects) != 1 || projects[0].ID != created.ID {
		t.Errorf("cache not updated with created record: %+v", projects)
	}
}

func TestOnlineCreateFailureSurfacesWithoutQueueing(t *testing.T) {
	e, gw, _, st := setupEngine(t)
	gw.failOn[0] = errors.New("validation failed")
	ctx := context.Background()

	if _, err := e.CreateProject(ctx, &schema.Project{Name: "X"}); err == nil {
		t.Fatal("expected gateway error to surface")
	}

	ops, _ := st.PendingOps(ctx)
	if len(ops) != 0 {
		t.Error("online failure must not fall back to the queue")
	}
	projects, _ := st.Projects(ctx, "user-1")
	if len(projects) != 0 {
		t.Error("failed create must not touch the cache")
	}
}

func TestCreateRejectsInvalid(t *testing.T) {
	e, gw, _, _ := setupEngine(t)

	if _, err := e.CreateProject(context.Background(), &schema.Project{}); err == nil {
		t.Fatal("expected validation error for empty project")
	}
	if len(gw.calls) != 0 {
		t.Error("invalid project reached the gateway")
	}
}

func TestOnlineEdit(t *testing.T) {
	e, _, _, st := setupEngine(t)
	ctx := context.Background()

	created, _ := e.CreateProject(ctx, &schema.Project{Name: "X"})
	created.Name = "X2"
	if _, err := e.EditProject(ctx, created); err != nil {
		t.Fatalf("online edit: %v", err)
	}

	projects, _ := st.Projects(ctx, "user-1")
	if projects[0].Name != "X2" {
		t.Errorf("cache not updated by edit: %+v", projects[0])
	}
	ops, _ := st.PendingOps(ctx)
	if len(ops) != 0 {
		t.Error("online edit queued an operation")
	}
}

func TestOfflineEditReplacesCachedRecord(t *testing.T) {
	e, _, status, st := setupEngine(t)
	ctx := context.Background()

	created, _ := e.CreateProject(ctx, &schema.Project{Name: "X"})

	status.online = false
	created.Name = "X2"
	if _, err := e.EditProject(ctx, created); err != nil {
		t.Fatalf("offline edit: %v", err)
	}

	projects, _ := st.Projects(ctx, "user-1")
	if len(projects) != 1 || projects[0].Name != "X2" {
		t.Errorf("offline edit did not replace cached record: %+v", projects)
	}
	ops, _ := st.PendingOps(ctx)
	if len(ops) != 1 || ops[0].Kind != schema.OpEdit {
		t.Errorf("queue should hold exactly the edit: %+v", ops)
	}
}

func TestDeleteWhileOffline(t *testing.T) {
	e, _, status, st := setupEngine(t)
	ctx := context.Background()

	created, _ := e.CreateProject(ctx, &schema.Project{Name: "doomed"})

	status.online = false
	if err := e.DeleteProject(ctx, created.ID); err != nil {
		t.Fatalf("offline delete: %v", err)
	}

	projects, _ := st.Projects(ctx, "user-1")
	if len(projects) != 0 {
		t.Errorf("cache still holds deleted record: %+v", projects)
	}

	ops, _ := st.PendingOps(ctx)
	if len(ops) != 1 || ops[0].Kind != schema.OpDelete || ops[0].ProjectID != created.ID {
		t.Errorf("queue should hold exactly one delete of %s: %+v", created.ID, ops)
	}
}

func TestOfflineDeleteOfUnsyncedCancelsQueuedOps(t *testing.T) {
	e, gw, status, st := setupEngine(t)
	status.online = false
	ctx := context.Background()

	created, _ := e.CreateProject(ctx, &schema.Project{Name: "ephemeral"})
	created.Name = "ephemeral2"
	if _, err := e.EditProject(ctx, created); err != nil {
		t.Fatalf("offline edit: %v", err)
	}

	if err := e.DeleteProject(ctx, created.ClientRef); err != nil {
		t.Fatalf("offline delete of unsynced: %v", err)
	}

	ops, _ := st.PendingOps(ctx)
	if len(ops) != 0 {
		t.Errorf("queued create/edit should be cancelled: %+v", ops)
	}
	projects, _ := st.Projects(ctx, "user-1")
	if len(projects) != 0 {
		t.Errorf("cache still holds cancelled record: %+v", projects)
	}

	// Nothing should ever reach the gateway for this record.
	status.online = true
	results, err := e.Replay(ctx)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if results != nil || len(gw.calls) != 0 {
		t.Errorf("cancelled record leaked to the gateway: %v", gw.calls)
	}
}

func TestLoadProjectsFallsBackToCache(t *testing.T) {
	e, gw, status, _ := setupEngine(t)
	ctx := context.Background()

	created, _ := e.CreateProject(ctx, &schema.Project{Name: "X"})

	// Remote load failure serves the cache.
	gw.failOn[len(gw.calls)] = errors.New("boom")
	projects, err := e.LoadProjects(ctx)
	if err != nil {
		t.Fatalf("LoadProjects with failing gateway: %v", err)
	}
	if len(projects) != 1 || projects[0].ID != created.ID {
		t.Errorf("fallback did not serve cache: %+v", projects)
	}

	// Offline serves the cache without touching the gateway.
	status.online = false
	before := len(gw.calls)
	projects, err = e.LoadProjects(ctx)
	if err != nil {
		t.Fatalf("LoadProjects offline: %v", err)
	}
	if len(gw.calls) != before {
		t.Error("offline load hit the gateway")
	}
	if len(projects) != 1 {
		t.Errorf("offline load lost the cache: %+v", projects)
	}
}
