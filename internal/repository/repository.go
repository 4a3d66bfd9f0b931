package repository

import (
	"context"

	"github.com/avijit969/devploy-backend/internal/domain"
)

// ProjectRepository persists project registrations.
type ProjectRepository interface {
	CreateProject(ctx context.Context, project *domain.Project) error
	GetProjectByName(ctx context.Context, name string) (*domain.Project, error)
	GetProjectByRepoURL(ctx context.Context, repoURL string) (*domain.Project, error)
	ListProjects(ctx context.Context) ([]domain.Project, error)
	UpdateProjectDeploy(ctx context.Context, projectID, liveURL, deployStatus string) error
}

// BuildRepository stores build history.
type BuildRepository interface {
	CreateBuild(ctx context.Context, build *domain.Build) error
	FinishBuild(ctx context.Context, buildID, status, log string) error
	GetBuildByID(ctx context.Context, buildID string) (*domain.Build, error)
	ListBuildsByProject(ctx context.Context, projectID string, limit int) ([]domain.Build, error)
}
