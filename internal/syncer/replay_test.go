package syncer

import (
	"context"
	"errors"
	"testing"

	"github.com/monpro/monpro/internal/schema"
)

func TestReplayPreservesOrder(t *testing.T) {
	e, gw, status, _ := setupEngine(t)
	ctx := context.Background()

	// Queue while online first so id=1 and id=2 exist remotely.
	first, _ := e.CreateProject(ctx, &schema.Project{Name: "first"})
	second, _ := e.CreateProject(ctx, &schema.Project{Name: "second"})

	status.online = false
	if _, err := e.CreateProject(ctx, &schema.Project{Name: "A"}); err != nil {
		t.Fatalf("queue create: %v", err)
	}
	first.Name = "first-edited"
	if _, err := e.EditProject(ctx, first); err != nil {
		t.Fatalf("queue edit: %v", err)
	}
	if err := e.DeleteProject(ctx, second.ID); err != nil {
		t.Fatalf("queue delete: %v", err)
	}

	status.online = true
	gw.calls = nil

	results, err := e.Replay(ctx)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}

	wantOps := []string{"insert", "update", "delete"}
	if len(gw.calls) != len(wantOps) {
		t.Fatalf("got %d gateway calls, want %d: %v", len(gw.calls), len(wantOps), gw.calls)
	}
	for i, call := range gw.calls {
		if call.op != wantOps[i] {
			t.Errorf("call %d = %s, want %s", i, call.op, wantOps[i])
		}
	}
	for i, r := range results {
		if !r.Replayed() {
			t.Errorf("result %d failed: %v", i, r.Err)
		}
	}
}

func TestReplayRequeuesFailuresByDefault(t *testing.T) {
	e, gw, status, st := setupEngine(t)
	ctx := context.Background()

	victim, _ := e.CreateProject(ctx, &schema.Project{Name: "victim"})

	status.online = false
	if _, err := e.CreateProject(ctx, &schema.Project{Name: "one"}); err != nil {
		t.Fatal(err)
	}
	victim.Name = "victim2"
	if _, err := e.EditProject(ctx, victim); err != nil {
		t.Fatal(err)
	}
	if _, err := e.CreateProject(ctx, &schema.Project{Name: "three"}); err != nil {
		t.Fatal(err)
	}

	status.online = true
	gw.calls = nil
	gw.failOn[1] = errors.New("server choked") // the edit

	results, err := e.Replay(ctx)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}
	if results[0].Err != nil || results[2].Err != nil {
		t.Error("creates should have replayed")
	}
	if results[1].Err == nil {
		t.Error("edit should have failed")
	}

	// All three were attempted despite the mid-pass failure.
	if len(gw.calls) != 3 {
		t.Errorf("got %d gateway calls, want 3", len(gw.calls))
	}

	// Only the failed edit remains queued.
	ops, _ := st.PendingOps(ctx)
	if len(ops) != 1 || ops[0].Kind != schema.OpEdit {
		t.Errorf("queue should hold only the failed edit: %+v", ops)
	}
}

func TestReplayDrainsUnconditionallyInLegacyMode(t *testing.T) {
	e, gw, status, st := setupEngine(t, WithDropFailedReplays(true))
	ctx := context.Background()

	status.online = false
	for _, name := range []string{"one", "two", "three"} {
		if _, err := e.CreateProject(ctx, &schema.Project{Name: name}); err != nil {
			t.Fatal(err)
		}
	}

	status.online = true
	gw.failOn[1] = errors.New("server choked")

	results, err := e.Replay(ctx)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}
	if results[1].Err == nil {
		t.Error("item 2 should have failed")
	}

	// Legacy mode clears everything, including the failed item.
	ops, _ := st.PendingOps(ctx)
	if len(ops) != 0 {
		t.Errorf("legacy replay left %d ops queued, want 0", len(ops))
	}
}

func TestReplayNoOpWhenOfflineOrEmpty(t *testing.T) {
	e, gw, status, st := setupEngine(t)
	ctx := context.Background()

	// Empty queue, online.
	results, err := e.Replay(ctx)
	if err != nil || results != nil {
		t.Errorf("empty replay: results=%v err=%v", results, err)
	}
	if len(gw.calls) != 0 {
		t.Error("empty replay hit the gateway")
	}

	// Non-empty queue, offline.
	status.online = false
	if _, err := e.CreateProject(ctx, &schema.Project{Name: "X"}); err != nil {
		t.Fatal(err)
	}
	results, err = e.Replay(ctx)
	if err != nil || results != nil {
		t.Errorf("offline replay: results=%v err=%v", results, err)
	}
	if len(gw.calls) != 0 {
		t.Error("offline replay hit the gateway")
	}

	ops, _ := st.PendingOps(ctx)
	if len(ops) != 1 {
		t.Errorf("offline replay modified the queue: %+v", ops)
	}
}

func TestReplayResolvesClientRefs(t *testing.T) {
	e, gw, status, st := setupEngine(t)
	ctx := context.Background()

	status.online = false
	created, err := e.CreateProject(ctx, &schema.Project{Name: "draft"})
	if err != nil {
		t.Fatal(err)
	}
	created.Name = "draft-v2"
	if _, err := e.EditProject(ctx, created); err != nil {
		t.Fatal(err)
	}

	status.online = true
	results, err := e.Replay(ctx)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	for i, r := range results {
		if !r.Replayed() {
			t.Fatalf("result %d failed: %v", i, r.Err)
		}
	}

	// The edit must target the id assigned by the create's replay.
	if results[0].AssignedID == "" {
		t.Fatal("create replay did not report an assigned id")
	}
	if gw.calls[1].op != "update" || gw.calls[1].id != results[0].AssignedID {
		t.Errorf("edit targeted %q, want %q", gw.calls[1].id, results[0].AssignedID)
	}
	if gw.records[results[0].AssignedID].Name != "draft-v2" {
		t.Error("remote record missing the edit")
	}

	// The cached record now carries the server id.
	projects, _ := st.Projects(ctx, "user-1")
	if len(projects) != 1 || projects[0].ID != results[0].AssignedID {
		t.Errorf("cache not patched with assigned id: %+v", projects)
	}

	ops, _ := st.PendingOps(ctx)
	if len(ops) != 0 {
		t.Errorf("queue not drained: %+v", ops)
	}
}

func TestReplayUnresolvableEditFails(t *testing.T) {
	e, _, status, st := setupEngine(t)
	ctx := context.Background()

	// Plant an edit whose create never happened: the ref cannot resolve.
	op := &schema.PendingOp{
		Kind:      schema.OpEdit,
		Project:   &schema.Project{UserID: "user-1", Name: "orphan"},
		ClientRef: "local-orphan",
	}
	if err := st.SavePendingOps(ctx, []*schema.PendingOp{op}); err != nil {
		t.Fatal(err)
	}

	status.online = true
	results, err := e.Replay(ctx)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if len(results) != 1 || results[0].Err == nil {
		t.Errorf("orphan edit should fail its replay item: %+v", results)
	}
}

// recordingEvents captures engine notifications.
type recordingEvents struct {
	applied  []schema.OpKind
	queued   []bool
	replayed int
}

func (r *recordingEvents) ProjectApplied(kind schema.OpKind, p *schema.Project, queued bool) {
	r.applied = append(r.applied, kind)
	r.queued = append(r.queued, queued)
}

func (r *recordingEvents) ReplayFinished(results []ReplayResult) {
	r.replayed += len(results)
}

func TestEngineEmitsEvents(t *testing.T) {
	ev := &recordingEvents{}
	e, _, status, _ := setupEngine(t, WithEvents(ev))
	ctx := context.Background()

	if _, err := e.CreateProject(ctx, &schema.Project{Name: "X"}); err != nil {
		t.Fatal(err)
	}
	status.online = false
	if _, err := e.CreateProject(ctx, &schema.Project{Name: "Y"}); err != nil {
		t.Fatal(err)
	}
	status.online = true
	if _, err := e.Replay(ctx); err != nil {
		t.Fatal(err)
	}

	if len(ev.applied) != 2 || ev.applied[0] != schema.OpCreate {
		t.Errorf("unexpected applied events: %v", ev.applied)
	}
	if ev.queued[0] || !ev.queued[1] {
		t.Errorf("queued flags wrong: %v", ev.queued)
	}
	if ev.replayed != 1 {
		t.Errorf("replay event saw %d results, want 1", ev.replayed)
	}
}
