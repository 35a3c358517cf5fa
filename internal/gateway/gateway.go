// Package gateway provides access to the hosted backend: a Postgres
// database holding the projects and tasks collections.
//
// The gateway is the sync layer's only network collaborator. Every call
// returns an explicit error value; the caller decides whether a failure
// means "genuinely broken" (online path) or "log and move on" (replay).
package gateway

import (
	"context"
	"errors"

	"github.com/monpro/monpro/internal/schema"
)

// ErrNotFound is returned when an update or delete targets a missing row.
var ErrNotFound = errors.New("record not found")

// ProjectGateway exposes the remote projects collection.
type ProjectGateway interface {
	// Insert creates a project and returns it with the server-assigned id.
	Insert(ctx context.Context, p *schema.Project) (*schema.Project, error)

	// Update overwrites the project with the given id.
	Update(ctx context.Context, id string, p *schema.Project) error

	// Delete removes the project with the given id.
	Delete(ctx context.Context, id string) error

	// SelectAllForUser returns a user's projects, newest first.
	SelectAllForUser(ctx context.Context, userID string) ([]*schema.Project, error)
}

// TaskGateway exposes the remote tasks collection. Task operations are
// online-only: they never pass through the pending queue.
type TaskGateway interface {
	InsertTask(ctx context.Context, t *schema.Task) (*schema.Task, error)
	UpdateTaskStatus(ctx context.Context, id string, status schema.TaskStatus) error
	TasksForProject(ctx context.Context, projectID string) ([]*schema.Task, error)
}

// Pinger reports whether the backend is reachable. The connectivity
// monitor probes through this.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Gateway is the full remote surface consumed by the CLI and daemon.
type Gateway interface {
	ProjectGateway
	TaskGateway
	Pinger
}
