package schema

import (
	"fmt"
	"time"
)

// TaskStatus is one of the three workflow states a task moves through.
type TaskStatus string

const (
	// StatusTodo is the initial state.
	StatusTodo TaskStatus = "todo"
	// StatusInProgress marks started work.
	StatusInProgress TaskStatus = "in_progress"
	// StatusDone is terminal.
	StatusDone TaskStatus = "done"
)

// ValidTaskStatus reports whether s names a known workflow state.
func ValidTaskStatus(s TaskStatus) bool {
	switch s {
	case StatusTodo, StatusInProgress, StatusDone:
		return true
	}
	return false
}

// Task is one unit of work inside a project. Tasks are mutated against the
// remote gateway directly and never pass through the pending queue.
type Task struct {
	ID        string     `json:"id,omitempty"`
	ProjectID string     `json:"project_id"`
	Title     string     `json:"title"`
	Status    TaskStatus `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
}

// Validate checks required task fields.
func (t *Task) Validate() error {
	if t.ProjectID == "" {
		return fmt.Errorf("project_id is required")
	}
	if t.Title == "" {
		return fmt.Errorf("title is required")
	}
	if !ValidTaskStatus(t.Status) {
		return fmt.Errorf("invalid status %q", t.Status)
	}
	return nil
}

// SetDefaults fills the initial state and creation time.
func (t *Task) SetDefaults() {
	if t.Status == "" {
		t.Status = StatusTodo
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
}

// Progress summarizes a project's tasks by workflow state.
type Progress struct {
	Total      int `json:"total"`
	Todo       int `json:"todo"`
	InProgress int `json:"in_progress"`
	Done       int `json:"done"`
}

// Percent returns the completed fraction as a 0-100 integer.
func (pr Progress) Percent() int {
	if pr.Total == 0 {
		return 0
	}
	return pr.Done * 100 / pr.Total
}

// SummarizeTasks computes progress over a task list.
func SummarizeTasks(tasks []*Task) Progress {
	var pr Progress
	for _, t := range tasks {
		pr.Total++
		switch t.Status {
		case StatusInProgress:
			pr.InProgress++
		case StatusDone:
			pr.Done++
		default:
			pr.Todo++
		}
	}
	return pr
}
