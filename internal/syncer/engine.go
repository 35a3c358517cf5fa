package syncer

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"

	"github.com/monpro/monpro/internal/gateway"
	"github.com/monpro/monpro/internal/netstatus"
	"github.com/monpro/monpro/internal/schema"
	"github.com/monpro/monpro/internal/store"
)

// Events receives notifications of applied operations. Implementations
// must not block; the engine calls them while holding its lock.
type Events interface {
	// ProjectApplied fires after a create, edit, or delete has reached
	// its terminal state. queued is true when the operation was deferred
	// to the pending queue instead of reaching the gateway.
	ProjectApplied(kind schema.OpKind, p *schema.Project, queued bool)

	// ReplayFinished fires after a replay pass with its per-item outcomes.
	ReplayFinished(results []ReplayResult)
}

// Engine is the sync engine. Construct with New; the zero value is not
// usable.
type Engine struct {
	store  *store.Store
	gw     gateway.ProjectGateway
	net    netstatus.Status
	userID string
	logger *log.Logger
	events Events

	// dropFailed reproduces the legacy replay behavior: the queue is
	// cleared unconditionally after a pass, discarding failed items.
	dropFailed bool

	mu sync.Mutex
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine's logger.
func WithLogger(l *log.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithEvents attaches an event sink.
func WithEvents(ev Events) Option {
	return func(e *Engine) { e.events = ev }
}

// WithDropFailedReplays enables the legacy drain-everything replay mode:
// failed items are discarded with the rest of the queue instead of being
// written back for a later pass.
func WithDropFailedReplays(drop bool) Option {
	return func(e *Engine) { e.dropFailed = drop }
}

// New creates an Engine for one user's project collection.
//
// The store must be opened and have its schema initialized. If logger is
// nil, a default logger writing to stderr is used.
func New(st *store.Store, gw gateway.ProjectGateway, net netstatus.Status, userID string, opts ...Option) *Engine {
	e := &Engine{
		store:  st,
		gw:     gw,
		net:    net,
		userID: userID,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = log.New(os.Stderr, "[sync] ", log.LstdFlags)
	}
	return e
}

// LoadProjects returns the user's projects: from the gateway when online
// (refreshing the cache), from the cache otherwise. A gateway failure
// falls back to the cache rather than surfacing.
func (e *Engine) LoadProjects(ctx context.Context) ([]*schema.Project, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.net.Online() {
		projects, err := e.gw.SelectAllForUser(ctx, e.userID)
		if err == nil {
			if err := e.store.SaveProjects(ctx, e.userID, projects); err != nil {
				return nil, err
			}
			return projects, nil
		}
		e.logger.Printf("Warning: remote load failed, serving cache: %v", err)
	}

	return e.store.Projects(ctx, e.userID)
}

// CreateProject creates a project, remotely when online and queued
// otherwise. The returned record carries the server-assigned id on the
// online path and a client ref on the offline path. Either way the cached
// collection reflects the create before this returns.
func (e *Engine) CreateProject(ctx context.Context, p *schema.Project) (*schema.Project, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	p = p.Clone()
	p.UserID = e.userID
	p.SetDefaults()
	if err := p.Validate(); err != nil {
		return nil, err
	}

	if e.net.Online() {
		created, err := e.gw.Insert(ctx, p)
		if err != nil {
			return nil, err
		}
		if err := e.cachePrepend(ctx, created); err != nil {
			return nil, err
		}
		e.emit(schema.OpCreate, created, false)
		return created, nil
	}

	p.ClientRef = schema.NewClientRef()
	op := &schema.PendingOp{Kind: schema.OpCreate, Project: p, ClientRef: p.ClientRef}
	if err := e.enqueue(ctx, op); err != nil {
		return nil, err
	}
	if err := e.cachePrepend(ctx, p); err != nil {
		return nil, err
	}
	e.logger.Printf("Queued create for %q (%s)", p.Name, p.ClientRef)
	e.emit(schema.OpCreate, p, true)
	return p, nil
}

// EditProject applies the edit remotely when online and the project has a
// server id; otherwise the edit is queued against the project's ref. The
// cache reflects the edit in both cases.
func (e *Engine) EditProject(ctx context.Context, p *schema.Project) (*schema.Project, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	p = p.Clone()
	if p.UserID == "" {
		p.UserID = e.userID
	}
	p.Touch()
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if p.Ref() == "" {
		return nil, fmt.Errorf("edit target has neither id nor client ref")
	}

	if e.net.Online() && p.Synced() {
		if err := e.gw.Update(ctx, p.ID, p); err != nil {
			return nil, err
		}
		if err := e.cacheReplace(ctx, p); err != nil {
			return nil, err
		}
		e.emit(schema.OpEdit, p, false)
		return p, nil
	}

	op := &schema.PendingOp{Kind: schema.OpEdit, Project: p, ClientRef: p.ClientRef}
	if err := e.enqueue(ctx, op); err != nil {
		return nil, err
	}
	if err := e.cacheReplace(ctx, p); err != nil {
		return nil, err
	}
	e.logger.Printf("Queued edit for %q (%s)", p.Name, p.Ref())
	e.emit(schema.OpEdit, p, true)
	return p, nil
}

// DeleteProject removes the project identified by ref (server id or client
// ref). Deleting a never-synced project cancels its queued create and
// edits instead of queueing a delete nothing remote could satisfy.
func (e *Engine) DeleteProject(ctx context.Context, ref string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	target, err := e.findCached(ctx, ref)
	if err != nil {
		return err
	}

	// Unsynced record: nothing exists remotely, so the delete reduces to
	// dropping the record and its queued operations locally.
	if target != nil && !target.Synced() {
		if err := e.dequeueRef(ctx, target.ClientRef); err != nil {
			return err
		}
		if err := e.cacheRemove(ctx, target.ClientRef); err != nil {
			return err
		}
		e.logger.Printf("Cancelled queued operations for %q (%s)", target.Name, target.ClientRef)
		e.emit(schema.OpDelete, target, true)
		return nil
	}

	id := ref
	if target != nil {
		id = target.ID
	}

	if e.net.Online() {
		if err := e.gw.Delete(ctx, id); err != nil {
			return err
		}
		if err := e.cacheRemove(ctx, id); err != nil {
			return err
		}
		e.emit(schema.OpDelete, target, false)
		return nil
	}

	op := &schema.PendingOp{Kind: schema.OpDelete, ProjectID: id}
	if err := e.enqueue(ctx, op); err != nil {
		return err
	}
	if err := e.cacheRemove(ctx, id); err != nil {
		return err
	}
	e.logger.Printf("Queued delete for %s", id)
	e.emit(schema.OpDelete, target, true)
	return nil
}

// GetProject returns the cached project matching ref, or nil.
func (e *Engine) GetProject(ctx context.Context, ref string) (*schema.Project, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.findCached(ctx, ref)
}

// PendingCount returns the number of queued operations.
func (e *Engine) PendingCount(ctx context.Context) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	ops, err := e.store.PendingOps(ctx)
	if err != nil {
		return 0, err
	}
	return len(ops), nil
}

// Online reports the connectivity monitor's current state.
func (e *Engine) Online() bool {
	return e.net.Online()
}

// enqueue validates and appends one operation to the pending queue. The
// caller holds e.mu, so the read-modify-write is atomic with respect to
// other engine operations.
func (e *Engine) enqueue(ctx context.Context, op *schema.PendingOp) error {
	if err := op.Validate(); err != nil {
		return err
	}
	op.QueuedAt = nowUTC()

	ops, err := e.store.PendingOps(ctx)
	if err != nil {
		return err
	}
	ops = append(ops, op)
	return e.store.SavePendingOps(ctx, ops)
}

// dequeueRef drops all queued operations targeting the given client ref.
func (e *Engine) dequeueRef(ctx context.Context, clientRef string) error {
	ops, err := e.store.PendingOps(ctx)
	if err != nil {
		return err
	}

	kept := ops[:0]
	for _, op := range ops {
		if op.ClientRef == clientRef {
			continue
		}
		kept = append(kept, op)
	}
	return e.store.SavePendingOps(ctx, kept)
}

func (e *Engine) cachePrepend(ctx context.Context, p *schema.Project) error {
	projects, err := e.store.Projects(ctx, e.userID)
	if err != nil {
		return err
	}
	projects = append([]*schema.Project{p}, projects...)
	return e.store.SaveProjects(ctx, e.userID, projects)
}

func (e *Engine) cacheReplace(ctx context.Context, p *schema.Project) error {
	projects, err := e.store.Projects(ctx, e.userID)
	if err != nil {
		return err
	}
	for i, cached := range projects {
		if matches(cached, p.Ref()) {
			projects[i] = p
			break
		}
	}
	return e.store.SaveProjects(ctx, e.userID, projects)
}

func (e *Engine) cacheRemove(ctx context.Context, ref string) error {
	projects, err := e.store.Projects(ctx, e.userID)
	if err != nil {
		return err
	}

	kept := projects[:0]
	for _, cached := range projects {
		if matches(cached, ref) {
			continue
		}
		kept = append(kept, cached)
	}
	return e.store.SaveProjects(ctx, e.userID, kept)
}

func (e *Engine) findCached(ctx context.Context, ref string) (*schema.Project, error) {
	projects, err := e.store.Projects(ctx, e.userID)
	if err != nil {
		return nil, err
	}
	for _, p := range projects {
		if matches(p, ref) {
			return p, nil
		}
	}
	return nil, nil
}

func (e *Engine) emit(kind schema.OpKind, p *schema.Project, queued bool) {
	if e.events != nil {
		e.events.ProjectApplied(kind, p, queued)
	}
}

func matches(p *schema.Project, ref string) bool {
	if ref == "" || p == nil {
		return false
	}
	return p.ID == ref || p.ClientRef == ref
}
