package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"testing"

	"log/slog"

	"github.com/avijit969/devploy-backend/internal/domain"
	"github.com/avijit969/devploy-backend/internal/repository"
)

type stubProjects struct {
	byRepo map[string]domain.Project
}

func (s stubProjects) CreateProject(ctx context.Context, project *domain.Project) error { return nil }

func (s stubProjects) GetProjectByName(ctx context.Context, name string) (*domain.Project, error) {
	return nil, repository.ErrNotFound
}

func (s stubProjects) GetProjectByRepoURL(ctx context.Context, repoURL string) (*domain.Project, error) {
	if p, ok := s.byRepo[repoURL]; ok {
		return &p, nil
	}
	return nil, repository.ErrNotFound
}

func (s stubProjects) ListProjects(ctx context.Context) ([]domain.Project, error) { return nil, nil }

func (s stubProjects) UpdateProjectDeploy(ctx context.Context, projectID, liveURL, deployStatus string) error {
	return nil
}

type recordingTrigger struct {
	submitted []domain.Project
	err       error
}

func (t *recordingTrigger) Submit(project domain.Project) error {
	t.submitted = append(t.submitted, project)
	return t.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestHandlePushTriggersMatchingProject(t *testing.T) {
	projects := stubProjects{byRepo: map[string]domain.Project{
		"https://example.com/myapp.git": {ID: "p1", Name: "myapp", RepoURL: "https://example.com/myapp.git"},
	}}
	trigger := &recordingTrigger{}
	svc := New(projects, trigger, "", discardLogger())

	project, err := svc.HandlePush(context.Background(), "https://example.com/myapp.git")
	if err != nil {
		t.Fatalf("HandlePush: %v", err)
	}
	if project.Name != "myapp" {
		t.Fatalf("wrong project %q", project.Name)
	}
	if len(trigger.submitted) != 1 || trigger.submitted[0].ID != "p1" {
		t.Fatalf("expected exactly one submit for p1, got %v", trigger.submitted)
	}
}

func TestHandlePushUnregisteredRepo(t *testing.T) {
	trigger := &recordingTrigger{}
	svc := New(stubProjects{}, trigger, "", discardLogger())

	// Exact match only: a near-miss URL must not trigger anything.
	_, err := svc.HandlePush(context.Background(), "https://example.com/other.git")
	if !errors.Is(err, ErrProjectUnregistered) {
		t.Fatalf("expected ErrProjectUnregistered, got %v", err)
	}
	if len(trigger.submitted) != 0 {
		t.Fatalf("no build should be submitted, got %v", trigger.submitted)
	}
}

func TestHandlePushEmptyCloneURL(t *testing.T) {
	svc := New(stubProjects{}, &recordingTrigger{}, "", discardLogger())
	if _, err := svc.HandlePush(context.Background(), ""); !errors.Is(err, ErrProjectUnregistered) {
		t.Fatalf("expected ErrProjectUnregistered, got %v", err)
	}
}

func TestHandlePushSurfacesFullQueue(t *testing.T) {
	projects := stubProjects{byRepo: map[string]domain.Project{
		"https://example.com/myapp.git": {ID: "p1", Name: "myapp"},
	}}
	queueErr := errors.New("queue full")
	svc := New(projects, &recordingTrigger{err: queueErr}, "", discardLogger())

	if _, err := svc.HandlePush(context.Background(), "https://example.com/myapp.git"); !errors.Is(err, queueErr) {
		t.Fatalf("expected queue error, got %v", err)
	}
}

func sign(secret string, payload []byte) string {
	hasher := hmac.New(sha256.New, []byte(secret))
	hasher.Write(payload)
	return hex.EncodeToString(hasher.Sum(nil))
}

func TestValidateSignature(t *testing.T) {
	payload := []byte(`{"repository":{"clone_url":"https://example.com/myapp.git"}}`)
	svc := New(stubProjects{}, &recordingTrigger{}, "sekrit", discardLogger())

	if err := svc.ValidateSignature(payload, sign("sekrit", payload)); err != nil {
		t.Fatalf("valid signature rejected: %v", err)
	}
	if err := svc.ValidateSignature(payload, sign("wrong", payload)); err == nil {
		t.Fatalf("forged signature accepted")
	}
	if err := svc.ValidateSignature(payload, ""); err == nil {
		t.Fatalf("missing signature accepted while secret configured")
	}
}

func TestValidateSignatureSkippedWithoutSecret(t *testing.T) {
	svc := New(stubProjects{}, &recordingTrigger{}, "", discardLogger())
	if err := svc.ValidateSignature([]byte("anything"), ""); err != nil {
		t.Fatalf("validation should be skipped without a secret: %v", err)
	}
}
