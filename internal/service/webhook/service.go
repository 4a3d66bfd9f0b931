package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"

	"log/slog"

	"github.com/avijit969/devploy-backend/internal/domain"
	"github.com/avijit969/devploy-backend/internal/repository"
)

// ErrProjectUnregistered indicates no project matches the pushed repository.
var ErrProjectUnregistered = errors.New("webhook: project not registered")

// Trigger enqueues a build without waiting for its completion.
type Trigger interface {
	Submit(project domain.Project) error
}

// Service maps push notifications to registered projects and triggers
// rebuilds.
type Service struct {
	projects repository.ProjectRepository
	trigger  Trigger
	secret   string
	logger   *slog.Logger
}

// New constructs a webhook service. secret enables HMAC signature
// validation when non-empty.
func New(projects repository.ProjectRepository, trigger Trigger, secret string, logger *slog.Logger) Service {
	return Service{projects: projects, trigger: trigger, secret: secret, logger: logger}
}

// HandlePush looks up the project whose stored repository URL exactly
// matches cloneURL and submits a build for it. The build outcome is only
// observable through the build records.
func (s Service) HandlePush(ctx context.Context, cloneURL string) (*domain.Project, error) {
	if cloneURL == "" {
		return nil, ErrProjectUnregistered
	}
	project, err := s.projects.GetProjectByRepoURL(ctx, cloneURL)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.logger.Info("push for unregistered repository", "clone_url", cloneURL)
			return nil, ErrProjectUnregistered
		}
		return nil, err
	}
	if err := s.trigger.Submit(*project); err != nil {
		return project, err
	}
	s.logger.Info("build triggered by push", "project", project.Name, "clone_url", cloneURL)
	return project, nil
}

// ValidateSignature checks the HMAC-SHA256 signature of the raw payload.
// Validation is skipped when no secret is configured.
func (s Service) ValidateSignature(payload []byte, provided string) error {
	if s.secret == "" {
		return nil
	}
	if provided == "" {
		return errors.New("missing webhook signature")
	}
	hasher := hmac.New(sha256.New, []byte(s.secret))
	hasher.Write(payload)
	expected := hex.EncodeToString(hasher.Sum(nil))
	if !hmac.Equal([]byte(provided), []byte(expected)) {
		return errors.New("invalid webhook signature")
	}
	return nil
}
