package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/monpro/monpro/internal/schema"
)

// Postgres implements Gateway against a Postgres database.
type Postgres struct {
	pool *pgxpool.Pool
}

var _ Gateway = (*Postgres)(nil)

// New creates a connection pool for the given DSN without contacting the
// database. Connections are established lazily, so New succeeds while
// offline; the first query or Ping surfaces reachability.
func New(ctx context.Context, dsn string) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database url: %w", err)
	}
	cfg.MaxConns = 4
	cfg.MaxConnLifetime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

// Connect opens a connection pool for the given DSN and verifies it with a
// ping before returning. The caller must call Close() when done.
func Connect(ctx context.Context, dsn string) (*Postgres, error) {
	g, err := New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if err := g.pool.Ping(ctx); err != nil {
		g.pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return g, nil
}

// Close releases the connection pool.
func (g *Postgres) Close() {
	g.pool.Close()
}

// Ping implements Pinger.
func (g *Postgres) Ping(ctx context.Context) error {
	return g.pool.Ping(ctx)
}

// InitSchema creates the projects and tasks tables if missing. Idempotent.
func (g *Postgres) InitSchema(ctx context.Context) error {
	const ddl = `
	CREATE TABLE IF NOT EXISTS projects (
		id              UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		user_id         TEXT NOT NULL,
		name            TEXT NOT NULL,
		description     TEXT NOT NULL DEFAULT '',
		explanation     TEXT NOT NULL DEFAULT '',
		start_date      TIMESTAMPTZ,
		end_date        TIMESTAMPTZ,
		features        TEXT[] NOT NULL DEFAULT '{}',
		characteristics TEXT[] NOT NULL DEFAULT '{}',
		technologies    TEXT[] NOT NULL DEFAULT '{}',
		brand_colors    TEXT[] NOT NULL DEFAULT '{}',
		wireframes      TEXT[] NOT NULL DEFAULT '{}',
		diagrams        TEXT[] NOT NULL DEFAULT '{}',
		links           JSONB NOT NULL DEFAULT '{}',
		created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
	);

	CREATE INDEX IF NOT EXISTS idx_projects_user ON projects(user_id, created_at DESC);

	CREATE TABLE IF NOT EXISTS tasks (
		id         UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		project_id UUID NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
		title      TEXT NOT NULL,
		status     TEXT NOT NULL DEFAULT 'todo',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);

	CREATE INDEX IF NOT EXISTS idx_tasks_project ON tasks(project_id, created_at);
	`
	if _, err := g.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("failed to initialize remote schema: %w", err)
	}
	return nil
}

const projectColumns = `id, user_id, name, description, explanation,
	start_date, end_date, features, characteristics, technologies,
	brand_colors, wireframes, diagrams, links, created_at, updated_at`

// Insert implements ProjectGateway.
func (g *Postgres) Insert(ctx context.Context, p *schema.Project) (*schema.Project, error) {
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid project: %w", err)
	}

	links, err := marshalLinks(p.Links)
	if err != nil {
		return nil, err
	}

	const q = `
	INSERT INTO projects (
		user_id, name, description, explanation, start_date, end_date,
		features, characteristics, technologies, brand_colors,
		wireframes, diagrams, links, created_at, updated_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	RETURNING ` + projectColumns

	row := g.pool.QueryRow(ctx, q,
		p.UserID, p.Name, p.Description, p.Explanation, p.StartDate, p.EndDate,
		emptyIfNil(p.Features), emptyIfNil(p.Characteristics), emptyIfNil(p.Technologies),
		emptyIfNil(p.BrandColors), emptyIfNil(p.Wireframes), emptyIfNil(p.Diagrams),
		links, orNow(p.CreatedAt), orNow(p.UpdatedAt),
	)

	created, err := scanProject(row)
	if err != nil {
		return nil, fmt.Errorf("failed to insert project: %w", err)
	}
	return created, nil
}

// Update implements ProjectGateway.
func (g *Postgres) Update(ctx context.Context, id string, p *schema.Project) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("invalid project: %w", err)
	}

	links, err := marshalLinks(p.Links)
	if err != nil {
		return err
	}

	const q = `
	UPDATE projects SET
		name = $2, description = $3, explanation = $4,
		start_date = $5, end_date = $6,
		features = $7, characteristics = $8, technologies = $9,
		brand_colors = $10, wireframes = $11, diagrams = $12,
		links = $13, updated_at = now()
	WHERE id = $1
	`
	tag, err := g.pool.Exec(ctx, q,
		id, p.Name, p.Description, p.Explanation, p.StartDate, p.EndDate,
		emptyIfNil(p.Features), emptyIfNil(p.Characteristics), emptyIfNil(p.Technologies),
		emptyIfNil(p.BrandColors), emptyIfNil(p.Wireframes), emptyIfNil(p.Diagrams),
		links,
	)
	if err != nil {
		return fmt.Errorf("failed to update project %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("project %s: %w", id, ErrNotFound)
	}
	return nil
}

// Delete implements ProjectGateway.
func (g *Postgres) Delete(ctx context.Context, id string) error {
	tag, err := g.pool.Exec(ctx, "DELETE FROM projects WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete project %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("project %s: %w", id, ErrNotFound)
	}
	return nil
}

// SelectAllForUser implements ProjectGateway.
func (g *Postgres) SelectAllForUser(ctx context.Context, userID string) ([]*schema.Project, error) {
	const q = `
	SELECT ` + projectColumns + `
	FROM projects
	WHERE user_id = $1
	ORDER BY created_at DESC
	`
	rows, err := g.pool.Query(ctx, q, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query projects: %w", err)
	}
	defer rows.Close()

	projects := make([]*schema.Project, 0, 16)
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		projects = append(projects, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating projects: %w", err)
	}
	return projects, nil
}

// InsertTask implements TaskGateway.
func (g *Postgres) InsertTask(ctx context.Context, t *schema.Task) (*schema.Task, error) {
	if err := t.Validate(); err != nil {
		return nil, fmt.Errorf("invalid task: %w", err)
	}

	const q = `
	INSERT INTO tasks (project_id, title, status, created_at)
	VALUES ($1, $2, $3, $4)
	RETURNING id, project_id, title, status, created_at
	`
	var out schema.Task
	err := g.pool.QueryRow(ctx, q, t.ProjectID, t.Title, string(t.Status), orNow(t.CreatedAt)).
		Scan(&out.ID, &out.ProjectID, &out.Title, &out.Status, &out.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert task: %w", err)
	}
	return &out, nil
}

// UpdateTaskStatus implements TaskGateway.
func (g *Postgres) UpdateTaskStatus(ctx context.Context, id string, status schema.TaskStatus) error {
	if !schema.ValidTaskStatus(status) {
		return fmt.Errorf("invalid status %q", status)
	}

	tag, err := g.pool.Exec(ctx, "UPDATE tasks SET status = $2 WHERE id = $1", id, string(status))
	if err != nil {
		return fmt.Errorf("failed to update task %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	return nil
}

// TasksForProject implements TaskGateway.
func (g *Postgres) TasksForProject(ctx context.Context, projectID string) ([]*schema.Task, error) {
	const q = `
	SELECT id, project_id, title, status, created_at
	FROM tasks
	WHERE project_id = $1
	ORDER BY created_at ASC
	`
	rows, err := g.pool.Query(ctx, q, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer rows.Close()

	tasks := make([]*schema.Task, 0, 16)
	for rows.Next() {
		var t schema.Task
		if err := rows.Scan(&t.ID, &t.ProjectID, &t.Title, &t.Status, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tasks: %w", err)
	}
	return tasks, nil
}

// scanProject reads one project row into a schema.Project.
func scanProject(row pgx.Row) (*schema.Project, error) {
	var p schema.Project
	var links []byte

	err := row.Scan(
		&p.ID, &p.UserID, &p.Name, &p.Description, &p.Explanation,
		&p.StartDate, &p.EndDate,
		&p.Features, &p.Characteristics, &p.Technologies,
		&p.BrandColors, &p.Wireframes, &p.Diagrams,
		&links, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	if len(links) > 0 {
		if err := json.Unmarshal(links, &p.Links); err != nil {
			return nil, fmt.Errorf("failed to unmarshal links: %w", err)
		}
	}
	return &p, nil
}

// marshalLinks serializes the links map for the jsonb column.
func marshalLinks(links map[string]string) ([]byte, error) {
	if links == nil {
		links = map[string]string{}
	}
	data, err := json.Marshal(links)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal links: %w", err)
	}
	return data, nil
}

func emptyIfNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func orNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}
