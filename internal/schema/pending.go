package schema

import (
	"fmt"
	"time"
)

// OpKind identifies a deferred mutation's type.
type OpKind string

const (
	// OpCreate inserts a new project on replay.
	OpCreate OpKind = "create"
	// OpEdit updates an existing project on replay.
	OpEdit OpKind = "edit"
	// OpDelete removes a project on replay.
	OpDelete OpKind = "delete"
)

// PendingOp is one deferred mutation awaiting replay. The queue holding
// them is strictly FIFO: a create followed by an edit of the same
// not-yet-synced record only works if replayed in enqueue order.
type PendingOp struct {
	Kind OpKind `json:"kind"`

	// Project carries the full record for create and edit operations.
	Project *Project `json:"project,omitempty"`

	// ProjectID is the delete target's server id, when it has one.
	ProjectID string `json:"project_id,omitempty"`

	// ClientRef identifies the target when no server id exists yet.
	// Replay resolves it against ids assigned by earlier creates.
	ClientRef string `json:"client_ref,omitempty"`

	QueuedAt time.Time `json:"queued_at"`
}

// Validate checks structural consistency before the operation is enqueued.
func (op *PendingOp) Validate() error {
	switch op.Kind {
	case OpCreate, OpEdit:
		if op.Project == nil {
			return fmt.Errorf("%s operation requires a project payload", op.Kind)
		}
		if err := op.Project.Validate(); err != nil {
			return fmt.Errorf("invalid %s payload: %w", op.Kind, err)
		}
	case OpDelete:
		if op.ProjectID == "" && op.ClientRef == "" {
			return fmt.Errorf("delete operation requires a project id or client ref")
		}
	default:
		return fmt.Errorf("unknown operation kind %q", op.Kind)
	}
	return nil
}

// Target returns the identifier the operation acts on.
func (op *PendingOp) Target() string {
	if op.ProjectID != "" {
		return op.ProjectID
	}
	if op.Project != nil && op.Project.ID != "" {
		return op.Project.ID
	}
	return op.ClientRef
}
