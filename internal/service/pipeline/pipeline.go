package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"log/slog"

	"github.com/google/uuid"

	"github.com/avijit969/devploy-backend/internal/buildexec"
	"github.com/avijit969/devploy-backend/internal/config"
	"github.com/avijit969/devploy-backend/internal/detect"
	"github.com/avijit969/devploy-backend/internal/domain"
	"github.com/avijit969/devploy-backend/internal/git"
	"github.com/avijit969/devploy-backend/internal/repository"
	"github.com/avijit969/devploy-backend/internal/storage"
	"github.com/avijit969/devploy-backend/internal/workspace"
	"github.com/avijit969/devploy-backend/internal/ws"
)

// ErrBuildInFlight rejects a trigger while another build for the same
// project is still running.
var ErrBuildInFlight = errors.New("pipeline: build already in progress for project")

// Fetcher retrieves a source repository into a destination directory.
type Fetcher interface {
	Fetch(ctx context.Context, repoURL, dest string) error
}

// Builder runs the install and build steps for a fetched tree.
type Builder interface {
	InstallAndBuild(ctx context.Context, dir, installCmd, buildCmd string) (string, error)
}

// GitFetcher fetches repositories with a shallow git clone.
type GitFetcher struct{}

// Fetch clones repoURL into dest.
func (GitFetcher) Fetch(ctx context.Context, repoURL, dest string) error {
	return git.Clone(ctx, repoURL, dest)
}

// Service runs the build & publish pipeline for registered projects.
type Service struct {
	projects  repository.ProjectRepository
	builds    repository.BuildRepository
	store     storage.Store
	workspace *workspace.Manager
	fetcher   Fetcher
	executor  Builder
	hub       *ws.Hub
	logger    *slog.Logger
	cfg       config.Config

	mu       sync.Mutex
	inflight map[string]struct{}
}

// New constructs a pipeline service. The hub may be nil when log streaming
// is not wired.
func New(projects repository.ProjectRepository, builds repository.BuildRepository, store storage.Store, ws *workspace.Manager, fetcher Fetcher, logger *slog.Logger, cfg config.Config, hub *ws.Hub) *Service {
	if fetcher == nil {
		fetcher = GitFetcher{}
	}
	return &Service{
		projects:  projects,
		builds:    builds,
		store:     store,
		workspace: ws,
		fetcher:   fetcher,
		executor: buildexec.Executor{
			InstallTimeout: cfg.InstallTimeout,
			BuildTimeout:   cfg.BuildTimeout,
		},
		hub:      hub,
		logger:   logger,
		cfg:      cfg,
		inflight: make(map[string]struct{}),
	}
}

// Run executes one full build attempt for the project: record creation,
// fetch, detect, build, artifact replacement and terminal record update.
// A second call for the same project while one is in flight returns
// ErrBuildInFlight without creating a record.
func (s *Service) Run(ctx context.Context, project *domain.Project) (*domain.Build, error) {
	if !s.acquire(project.ID) {
		return nil, ErrBuildInFlight
	}
	defer s.release(project.ID)

	build := &domain.Build{
		ID:        uuid.NewString(),
		ProjectID: project.ID,
		Status:    domain.BuildStatusPending,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.builds.CreateBuild(ctx, build); err != nil {
		return nil, fmt.Errorf("create build record: %w", err)
	}
	s.logger.Info("build started", "project", project.Name, "build_id", build.ID, "build_number", build.BuildNumber)

	log := &buildLog{service: s, project: project.Name}
	start := time.Now()
	err := s.execute(ctx, project, log)
	duration := time.Since(start)

	if err != nil {
		log.printf("build failed: %v", err)
		s.finish(ctx, build, domain.BuildStatusFailed, log.String())
		observeBuild(domain.BuildStatusFailed, duration)
		s.logger.Error("build failed", "project", project.Name, "build_id", build.ID, "error", err)
		build.Status = domain.BuildStatusFailed
		return build, err
	}

	liveURL := s.cfg.PublicURL(project.Name)
	log.printf("published at %s", liveURL)
	s.finish(ctx, build, domain.BuildStatusSuccess, log.String())
	if err := s.projects.UpdateProjectDeploy(ctx, project.ID, liveURL, domain.DeployStatusDeployed); err != nil {
		s.logger.Warn("update project deploy status failed", "project", project.Name, "error", err)
	}
	observeBuild(domain.BuildStatusSuccess, duration)
	s.logger.Info("build succeeded", "project", project.Name, "build_id", build.ID, "duration", duration)
	build.Status = domain.BuildStatusSuccess
	return build, nil
}

// execute performs the fetch → detect → build → replace-artifacts stages.
// Any stage error aborts the remaining stages.
func (s *Service) execute(ctx context.Context, project *domain.Project, log *buildLog) error {
	scratch, err := s.workspace.Prepare(project.Name)
	if err != nil {
		return fmt.Errorf("prepare scratch dir: %w", err)
	}
	defer func() {
		if err := s.workspace.Cleanup(scratch); err != nil {
			s.logger.Warn("scratch cleanup failed", "project", project.Name, "error", err)
		}
	}()

	log.printf("cloning %s", project.RepoURL)
	fetchCtx, cancel := context.WithTimeout(ctx, s.cfg.GitTimeout)
	defer cancel()
	if err := s.fetcher.Fetch(fetchCtx, project.RepoURL, scratch); err != nil {
		return fmt.Errorf("fetch repository: %w", err)
	}

	manifest, err := detect.LoadManifest(scratch)
	if err != nil {
		return fmt.Errorf("invalid manifest: %w", err)
	}
	toolchain := detect.Detect(manifest, scratch)
	log.printf("detected %s toolchain, output dir %s", toolchain.Name, toolchain.OutputDir)

	output, err := s.executor.InstallAndBuild(ctx, scratch, toolchain.InstallCommand, toolchain.BuildCommand)
	if output != "" {
		log.append(output)
	}
	if err != nil {
		return err
	}

	outputDir := filepath.Join(scratch, toolchain.OutputDir)
	if info, statErr := os.Stat(outputDir); statErr != nil || !info.IsDir() {
		return fmt.Errorf("build output dir %s missing", toolchain.OutputDir)
	}

	// Old artifacts are removed before the new upload starts. A failure
	// between these two stages leaves the namespace empty until the next
	// successful build.
	log.printf("replacing artifacts under %s/", project.Name)
	if err := storage.RemovePrefix(ctx, s.store, project.Name+"/"); err != nil {
		return fmt.Errorf("remove old artifacts: %w", err)
	}
	if err := storage.UploadDir(ctx, s.store, outputDir, project.Name); err != nil {
		return fmt.Errorf("upload artifacts: %w", err)
	}
	return nil
}

func (s *Service) finish(ctx context.Context, build *domain.Build, status, log string) {
	if err := s.builds.FinishBuild(ctx, build.ID, status, log); err != nil {
		s.logger.Error("finish build record failed", "build_id", build.ID, "status", status, "error", err)
	}
}

func (s *Service) acquire(projectID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inflight[projectID]; busy {
		return false
	}
	s.inflight[projectID] = struct{}{}
	return true
}

func (s *Service) release(projectID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inflight, projectID)
}

// buildLog accumulates diagnostic text for the build record and mirrors each
// line to live stream subscribers.
type buildLog struct {
	service *Service
	project string
	buf     strings.Builder
}

func (l *buildLog) printf(format string, args ...any) {
	l.append(fmt.Sprintf(format, args...))
}

func (l *buildLog) append(text string) {
	text = strings.TrimRight(text, "\n")
	if text == "" {
		return
	}
	l.buf.WriteString(text)
	l.buf.WriteByte('\n')
	if l.service != nil && l.service.hub != nil {
		l.service.hub.Broadcast(l.project, []byte(text))
	}
}

func (l *buildLog) String() string { return l.buf.String() }
