package pipeline

import (
	"context"
	"errors"
	"sync"

	"log/slog"

	"github.com/avijit969/devploy-backend/internal/domain"
)

// ErrQueueFull rejects a trigger when the build queue has no capacity left.
var ErrQueueFull = errors.New("pipeline: build queue is full")

// Pool executes webhook-triggered builds on a fixed set of workers so that
// triggering a build never blocks the caller and concurrent builds stay
// bounded.
type Pool struct {
	service *Service
	workers int
	jobs    chan domain.Project
	logger  *slog.Logger
	wg      sync.WaitGroup
	once    sync.Once
}

// NewPool creates a pool with the given worker count and queue depth.
func NewPool(service *Service, workers, queueSize int, logger *slog.Logger) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = workers
	}
	return &Pool{
		service: service,
		workers: workers,
		jobs:    make(chan domain.Project, queueSize),
		logger:  logger,
	}
}

// Start launches the workers. Workers exit when ctx is cancelled or the
// pool is stopped.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx)
	}
}

func (p *Pool) worker(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case project, ok := <-p.jobs:
			if !ok {
				return
			}
			if _, err := p.service.Run(ctx, &project); err != nil {
				if errors.Is(err, ErrBuildInFlight) {
					p.logger.Info("queued build skipped, one already in flight", "project", project.Name)
					continue
				}
				p.logger.Error("queued build failed", "project", project.Name, "error", err)
			}
		}
	}
}

// Submit enqueues a build for the project without waiting for completion.
func (p *Pool) Submit(project domain.Project) error {
	select {
	case p.jobs <- project:
		return nil
	default:
		return ErrQueueFull
	}
}

// Stop closes the queue and waits for in-flight builds to finish.
func (p *Pool) Stop() {
	p.once.Do(func() { close(p.jobs) })
	p.wg.Wait()
}
