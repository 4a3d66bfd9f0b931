package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"log/slog"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/avijit969/devploy-backend/internal/config"
	"github.com/avijit969/devploy-backend/internal/domain"
	"github.com/avijit969/devploy-backend/internal/repository"
	"github.com/avijit969/devploy-backend/internal/service/pipeline"
	"github.com/avijit969/devploy-backend/internal/service/serve"
	"github.com/avijit969/devploy-backend/internal/service/webhook"
	"github.com/avijit969/devploy-backend/internal/storage"
	"github.com/avijit969/devploy-backend/internal/ws"
)

// Deployer runs a full build attempt synchronously.
type Deployer interface {
	Run(ctx context.Context, project *domain.Project) (*domain.Build, error)
}

// Router wires HTTP endpoints to services and serves published artifacts on
// every route the API does not claim.
type Router struct {
	mux      *http.ServeMux
	logger   *slog.Logger
	cfg      config.Config
	projects repository.ProjectRepository
	builds   repository.BuildRepository
	deployer Deployer
	webhook  webhook.Service
	resolver serve.Resolver
	hub      *ws.Hub
	upgrader websocket.Upgrader
	limiter  RateLimiter

	metricsOnce        sync.Once
	metricsInitialized bool
	requestTotal       *prometheus.CounterVec
	requestLatency     *prometheus.HistogramVec
	rateLimitHits      *prometheus.CounterVec
}

const (
	rateWindowDefault  = time.Minute
	rateLimitWebhook   = 60
	rateLimitDeploy    = 12
	rateLimitAPIRead   = 120
	rateLimitAPIWrite  = 60
	rateLimitWebsocket = 30
)

// NewRouter assembles routes with dependencies.
func NewRouter(logger *slog.Logger, cfg config.Config, projects repository.ProjectRepository, builds repository.BuildRepository, deployer Deployer, webhookSvc webhook.Service, resolver serve.Resolver, hub *ws.Hub, limiter RateLimiter) *Router {
	r := &Router{
		mux:      http.NewServeMux(),
		logger:   logger,
		cfg:      cfg,
		projects: projects,
		builds:   builds,
		deployer: deployer,
		webhook:  webhookSvc,
		resolver: resolver,
		hub:      hub,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		limiter: limiter,
	}
	if r.limiter == nil {
		r.limiter = NewMemoryRateLimiter()
	}
	r.initMetrics()
	r.register()
	return r
}

// ServeHTTP delegates to underlying mux.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// Close releases background resources.
func (r *Router) Close() {
	if r.limiter != nil {
		r.limiter.Close()
	}
}

func (r *Router) register() {
	r.mux.HandleFunc("/health", r.audit("/health", r.handleHealth))
	r.mux.HandleFunc("/all", r.audit("/all", r.withRateLimit("/all", rateLimitAPIRead, rateWindowDefault, r.handleAll)))
	r.mux.HandleFunc("/api/projects", r.audit("/api/projects", r.withRateLimit("/api/projects", rateLimitAPIWrite, rateWindowDefault, r.handleCreateProject)))
	r.mux.HandleFunc("/api/projects/", r.audit("/api/projects/", r.withRateLimit("/api/projects/", rateLimitAPIRead, rateWindowDefault, r.handleProjectSubroutes)))
	r.mux.HandleFunc("/api/webhook", r.audit("/api/webhook", r.withRateLimit("/api/webhook", rateLimitWebhook, rateWindowDefault, r.handleWebhook)))
	r.mux.HandleFunc("/api/deploy", r.audit("/api/deploy", r.withRateLimit("/api/deploy", rateLimitDeploy, rateWindowDefault, r.handleDeploy)))
	r.mux.HandleFunc("/ws/logs", r.withRateLimit("/ws/logs", rateLimitWebsocket, rateWindowDefault, r.handleLogsWS))
	r.mux.Handle("/metrics", promhttp.Handler())
	r.mux.HandleFunc("/", r.audit("serve", r.handleServe))
}

// audit wraps a handler with request logging and metrics.
func (r *Router) audit(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(rec, req)
		duration := time.Since(start)
		r.recordRequestMetrics(req.Method, route, rec.status, duration)
		r.logger.Debug("request handled", "method", req.Method, "route", route, "host", req.Host, "path", req.URL.Path, "status", rec.status, "duration", duration)
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rec *statusRecorder) WriteHeader(status int) {
	rec.status = status
	rec.ResponseWriter.WriteHeader(status)
}

func (r *Router) handleHealth(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (r *Router) handleAll(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	projects, err := r.projects.ListProjects(req.Context())
	if err != nil {
		r.logger.Error("list projects failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list projects")
		return
	}
	out := make([]map[string]any, 0, len(projects))
	for _, p := range projects {
		out = append(out, projectJSON(p))
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "projects": out})
}

func (r *Router) handleCreateProject(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var payload struct {
		Name          string `json:"name"`
		RepositoryURL string `json:"repositoryUrl"`
	}
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	payload.Name = strings.TrimSpace(payload.Name)
	payload.RepositoryURL = strings.TrimSpace(payload.RepositoryURL)
	if payload.Name == "" || payload.RepositoryURL == "" {
		writeError(w, http.StatusBadRequest, "name and repositoryUrl are required")
		return
	}
	project := &domain.Project{
		ID:           uuid.NewString(),
		Name:         payload.Name,
		RepoURL:      payload.RepositoryURL,
		DeployStatus: domain.DeployStatusNone,
		CreatedAt:    time.Now().UTC(),
	}
	if err := r.projects.CreateProject(req.Context(), project); err != nil {
		r.logger.Error("create project failed", "name", payload.Name, "error", err)
		writeError(w, http.StatusBadRequest, "project could not be created")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "project": projectJSON(*project)})
}

func (r *Router) handleProjectSubroutes(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	rest := strings.TrimPrefix(req.URL.Path, "/api/projects/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if len(parts) != 2 || parts[1] != "builds" {
		writeError(w, http.StatusNotFound, "unknown resource")
		return
	}
	project, err := r.projects.GetProjectByName(req.Context(), parts[0])
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "project not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load project")
		return
	}
	builds, err := r.builds.ListBuildsByProject(req.Context(), project.ID, 20)
	if err != nil {
		r.logger.Error("list builds failed", "project", project.Name, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list builds")
		return
	}
	out := make([]map[string]any, 0, len(builds))
	for _, b := range builds {
		out = append(out, buildJSON(b))
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "builds": out})
}

func (r *Router) handleWebhook(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	body, err := readBody(req)
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]any{"success": false, "message": "unreadable payload"})
		return
	}
	signature := strings.TrimPrefix(req.Header.Get("X-Hub-Signature-256"), "sha256=")
	if err := r.webhook.ValidateSignature(body, signature); err != nil {
		writeJSON(w, http.StatusOK, map[string]any{"success": false, "message": err.Error()})
		return
	}
	var payload struct {
		Repository struct {
			CloneURL string `json:"clone_url"`
		} `json:"repository"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		writeJSON(w, http.StatusOK, map[string]any{"success": false, "message": "invalid JSON body"})
		return
	}
	project, err := r.webhook.HandlePush(req.Context(), payload.Repository.CloneURL)
	if err != nil {
		switch {
		case errors.Is(err, webhook.ErrProjectUnregistered):
			writeJSON(w, http.StatusOK, map[string]any{"success": false, "message": "Project not registered"})
		case errors.Is(err, pipeline.ErrQueueFull):
			writeJSON(w, http.StatusOK, map[string]any{"success": false, "message": "build queue is full"})
		default:
			r.logger.Error("webhook handling failed", "error", err)
			writeJSON(w, http.StatusOK, map[string]any{"success": false, "message": "failed to trigger build"})
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Build started",
		"project": project.Name,
	})
}

func (r *Router) handleDeploy(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var payload struct {
		RepositoryURL   string `json:"repositoryUrl"`
		ApplicationName string `json:"applicationName"`
	}
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	payload.ApplicationName = strings.TrimSpace(payload.ApplicationName)
	payload.RepositoryURL = strings.TrimSpace(payload.RepositoryURL)
	if payload.ApplicationName == "" || payload.RepositoryURL == "" {
		writeError(w, http.StatusBadRequest, "repositoryUrl and applicationName are required")
		return
	}

	project, err := r.projects.GetProjectByName(req.Context(), payload.ApplicationName)
	if errors.Is(err, repository.ErrNotFound) {
		project = &domain.Project{
			ID:           uuid.NewString(),
			Name:         payload.ApplicationName,
			RepoURL:      payload.RepositoryURL,
			DeployStatus: domain.DeployStatusNone,
			CreatedAt:    time.Now().UTC(),
		}
		if createErr := r.projects.CreateProject(req.Context(), project); createErr != nil {
			r.logger.Error("register project failed", "name", payload.ApplicationName, "error", createErr)
			writeError(w, http.StatusInternalServerError, "project could not be registered")
			return
		}
	} else if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load project")
		return
	}

	build, err := r.deployer.Run(req.Context(), project)
	if err != nil {
		if errors.Is(err, pipeline.ErrBuildInFlight) {
			writeJSON(w, http.StatusConflict, map[string]any{
				"success": false,
				"message": "build already in progress",
			})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"success": false,
			"message": "deployment failed",
			"error":   err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"message":  "deployment complete",
		"url":      r.cfg.PublicURL(project.Name),
		"build_id": build.ID,
	})
}

func (r *Router) handleLogsWS(w http.ResponseWriter, req *http.Request) {
	projectName := strings.TrimSpace(req.URL.Query().Get("project"))
	if projectName == "" {
		writeError(w, http.StatusBadRequest, "project query parameter required")
		return
	}
	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	client := ws.NewClient(conn, r.logger)
	r.hub.Register(projectName, client)
	defer r.hub.Unregister(projectName, client)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// handleServe resolves any unclaimed route against the artifact store:
// the subdomain names the project namespace and the path names the object.
func (r *Router) handleServe(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet && req.Method != http.MethodHead {
		r.methodNotAllowed(w)
		return
	}
	obj, err := r.resolver.Resolve(req.Context(), req.Host, req.URL.Path)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			http.Error(w, "Not Found", http.StatusNotFound)
			return
		}
		r.logger.Error("artifact fetch failed", "host", req.Host, "path", req.URL.Path, "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", obj.ContentType)
	w.WriteHeader(http.StatusOK)
	if req.Method == http.MethodGet {
		_, _ = w.Write(obj.Body)
	}
}

func (r *Router) methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func readBody(req *http.Request) ([]byte, error) {
	defer req.Body.Close()
	return io.ReadAll(req.Body)
}

func projectJSON(p domain.Project) map[string]any {
	return map[string]any{
		"id":            p.ID,
		"name":          p.Name,
		"repositoryUrl": p.RepoURL,
		"liveUrl":       p.LiveURL,
		"deployStatus":  p.DeployStatus,
		"createdAt":     p.CreatedAt,
	}
}

func buildJSON(b domain.Build) map[string]any {
	return map[string]any{
		"id":          b.ID,
		"projectId":   b.ProjectID,
		"buildNumber": b.BuildNumber,
		"status":      b.Status,
		"log":         b.Log,
		"createdAt":   b.CreatedAt,
		"updatedAt":   b.UpdatedAt,
	}
}
