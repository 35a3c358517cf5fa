package syncer

import (
	"context"
	"fmt"
	"time"

	"github.com/monpro/monpro/internal/schema"
)

// ReplayResult is the typed outcome of replaying one queued operation.
type ReplayResult struct {
	// Op is the operation that was attempted.
	Op *schema.PendingOp

	// AssignedID holds the server id a replayed create received.
	AssignedID string

	// Err is the gateway failure, nil on success.
	Err error
}

// Replayed reports whether the operation reached the remote store.
func (r ReplayResult) Replayed() bool {
	return r.Err == nil
}

// Replay drains the pending queue against the remote gateway.
//
// Operations replay strictly in enqueue order. Per-item failures are
// logged and collected, never propagated; the pass always runs to the end
// of the queue. Afterwards, failed operations are written back to the
// queue in order so a later pass can retry them — unless the engine was
// built with WithDropFailedReplays, which reproduces the legacy behavior
// of clearing the queue unconditionally.
//
// Queued operations that target an offline-created project are resolved
// against the server ids assigned by earlier creates in the same pass.
// Successful creates also get their server id patched onto the matching
// cached record.
//
// Calling Replay while offline or with an empty queue is a no-op: zero
// gateway calls, queue untouched.
func (e *Engine) Replay(ctx context.Context) ([]ReplayResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	ops, err := e.store.PendingOps(ctx)
	if err != nil {
		return nil, err
	}
	if len(ops) == 0 || !e.net.Online() {
		return nil, nil
	}

	e.logger.Printf("Replaying %d pending operation(s)", len(ops))

	assigned := make(map[string]string) // client ref -> server id
	results := make([]ReplayResult, 0, len(ops))
	var failed []*schema.PendingOp

	for _, op := range ops {
		res := e.replayOne(ctx, op, assigned)
		results = append(results, res)

		if res.Err != nil {
			e.logger.Printf("Warning: failed to replay %s %s: %v", op.Kind, op.Target(), res.Err)
			failed = append(failed, op)
		}
	}

	if e.dropFailed {
		failed = nil
	}
	if err := e.store.SavePendingOps(ctx, failed); err != nil {
		return results, err
	}

	if err := e.patchAssignedIDs(ctx, assigned); err != nil {
		return results, err
	}

	replayed := 0
	for _, r := range results {
		if r.Replayed() {
			replayed++
		}
	}
	e.logger.Printf("Replay complete: %d replayed, %d failed", replayed, len(results)-replayed)

	if e.events != nil {
		e.events.ReplayFinished(results)
	}
	return results, nil
}

// replayOne issues a single queued operation against the gateway,
// resolving client refs through ids assigned earlier in the pass.
func (e *Engine) replayOne(ctx context.Context, op *schema.PendingOp, assigned map[string]string) ReplayResult {
	res := ReplayResult{Op: op}

	switch op.Kind {
	case schema.OpCreate:
		created, err := e.gw.Insert(ctx, op.Project)
		if err != nil {
			res.Err = err
			return res
		}
		res.AssignedID = created.ID
		if op.ClientRef != "" {
			assigned[op.ClientRef] = created.ID
		}

	case schema.OpEdit:
		id := op.Project.ID
		if id == "" {
			id = assigned[op.ClientRef]
		}
		if id == "" {
			res.Err = fmt.Errorf("no server id resolved for %s", op.ClientRef)
			return res
		}
		// Carry the resolved id forward so a requeued retry targets the
		// server row directly.
		op.Project.ID = id
		res.Err = e.gw.Update(ctx, id, op.Project)

	case schema.OpDelete:
		id := op.ProjectID
		if id == "" {
			id = assigned[op.ClientRef]
		}
		if id == "" {
			res.Err = fmt.Errorf("no server id resolved for %s", op.ClientRef)
			return res
		}
		op.ProjectID = id
		res.Err = e.gw.Delete(ctx, id)

	default:
		res.Err = fmt.Errorf("unknown operation kind %q", op.Kind)
	}

	return res
}

// patchAssignedIDs writes server ids from replayed creates onto the
// matching client-ref-tagged cached records.
func (e *Engine) patchAssignedIDs(ctx context.Context, assigned map[string]string) error {
	if len(assigned) == 0 {
		return nil
	}

	projects, err := e.store.Projects(ctx, e.userID)
	if err != nil {
		return err
	}

	changed := false
	for _, p := range projects {
		if p.ID != "" || p.ClientRef == "" {
			continue
		}
		if id, ok := assigned[p.ClientRef]; ok {
			p.ID = id
			changed = true
		}
	}
	if !changed {
		return nil
	}
	return e.store.SaveProjects(ctx, e.userID, projects)
}

func nowUTC() time.Time {
	return time.Now().UTC()
}
