package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/avijit969/devploy-backend/internal/domain"
	"github.com/avijit969/devploy-backend/internal/repository"
)

// Repository implements persistence interfaces on PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// New constructs a Repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ensure Repository satisfies interfaces.
var (
	_ repository.ProjectRepository = (*Repository)(nil)
	_ repository.BuildRepository   = (*Repository)(nil)
)

// CreateProject inserts a project.
func (r *Repository) CreateProject(ctx context.Context, project *domain.Project) error {
	const query = `INSERT INTO projects (id, name, repo_url, live_url, deploy_status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := r.pool.Exec(ctx, query, project.ID, project.Name, project.RepoURL, project.LiveURL, project.DeployStatus, project.CreatedAt)
	return err
}

// GetProjectByName fetches a project by its unique name.
func (r *Repository) GetProjectByName(ctx context.Context, name string) (*domain.Project, error) {
	const query = `SELECT id, name, repo_url, live_url, deploy_status, created_at
		FROM projects WHERE name = $1`
	return r.scanProject(r.pool.QueryRow(ctx, query, name))
}

// GetProjectByRepoURL fetches a project by exact repository URL match.
func (r *Repository) GetProjectByRepoURL(ctx context.Context, repoURL string) (*domain.Project, error) {
	const query = `SELECT id, name, repo_url, live_url, deploy_status, created_at
		FROM projects WHERE repo_url = $1`
	return r.scanProject(r.pool.QueryRow(ctx, query, repoURL))
}

func (r *Repository) scanProject(row pgx.Row) (*domain.Project, error) {
	var p domain.Project
	if err := row.Scan(&p.ID, &p.Name, &p.RepoURL, &p.LiveURL, &p.DeployStatus, &p.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

// ListProjects returns all registered projects.
func (r *Repository) ListProjects(ctx context.Context) ([]domain.Project, error) {
	const query = `SELECT id, name, repo_url, live_url, deploy_status, created_at
		FROM projects ORDER BY created_at DESC`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var projects []domain.Project
	for rows.Next() {
		var p domain.Project
		if err := rows.Scan(&p.ID, &p.Name, &p.RepoURL, &p.LiveURL, &p.DeployStatus, &p.CreatedAt); err != nil {
			return nil, err
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

// UpdateProjectDeploy records the published URL and deploy status for a project.
func (r *Repository) UpdateProjectDeploy(ctx context.Context, projectID, liveURL, deployStatus string) error {
	const query = `UPDATE projects SET live_url = $2, deploy_status = $3 WHERE id = $1`
	_, err := r.pool.Exec(ctx, query, projectID, liveURL, deployStatus)
	return err
}

// CreateBuild inserts a build record with the next per-project build number.
func (r *Repository) CreateBuild(ctx context.Context, build *domain.Build) error {
	const query = `INSERT INTO builds (id, project_id, build_number, status, log, created_at, updated_at)
		VALUES ($1, $2,
			(SELECT COALESCE(MAX(build_number), 0) + 1 FROM builds WHERE project_id = $2),
			$3, $4, $5, $5)
		RETURNING build_number`
	now := build.CreatedAt
	if now.IsZero() {
		now = time.Now().UTC()
		build.CreatedAt = now
	}
	row := r.pool.QueryRow(ctx, query, build.ID, build.ProjectID, build.Status, build.Log, now)
	return row.Scan(&build.BuildNumber)
}

// FinishBuild applies the terminal status and log to a pending build. A build
// that already reached a terminal state is left untouched.
func (r *Repository) FinishBuild(ctx context.Context, buildID, status, log string) error {
	const query = `UPDATE builds SET status = $2, log = $3, updated_at = $4
		WHERE id = $1 AND status = 'pending'`
	_, err := r.pool.Exec(ctx, query, buildID, status, log, time.Now().UTC())
	return err
}

// GetBuildByID retrieves a build by identifier.
func (r *Repository) GetBuildByID(ctx context.Context, buildID string) (*domain.Build, error) {
	const query = `SELECT id, project_id, build_number, status, log, created_at, updated_at
		FROM builds WHERE id = $1`
	row := r.pool.QueryRow(ctx, query, buildID)
	var b domain.Build
	if err := row.Scan(&b.ID, &b.ProjectID, &b.BuildNumber, &b.Status, &b.Log, &b.CreatedAt, &b.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &b, nil
}

// ListBuildsByProject returns recent builds for a project, newest first.
func (r *Repository) ListBuildsByProject(ctx context.Context, projectID string, limit int) ([]domain.Build, error) {
	if limit <= 0 {
		limit = 20
	}
	const query = `SELECT id, project_id, build_number, status, log, created_at, updated_at
		FROM builds WHERE project_id = $1 ORDER BY build_number DESC LIMIT $2`
	rows, err := r.pool.Query(ctx, query, projectID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var builds []domain.Build
	for rows.Next() {
		var b domain.Build
		if err := rows.Scan(&b.ID, &b.ProjectID, &b.BuildNumber, &b.Status, &b.Log, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, err
		}
		builds = append(builds, b)
	}
	return builds, rows.Err()
}
