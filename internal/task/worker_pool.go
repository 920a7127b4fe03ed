package task

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// WorkerPool manages a pool of worker goroutines that run project loops
// from a project queue. It handles graceful shutdown and worker lifecycle.
type WorkerPool struct {
	// queue provides read access to the projects to run
	queue ProjectQueueReader

	// workerCount is the number of concurrent workers to start
	workerCount int

	// run is called with each project taken off the queue
	run func(ctx context.Context, id uuid.UUID)

	// wg tracks active worker goroutines for clean shutdown
	wg sync.WaitGroup

	cancel context.CancelFunc
	logger *slog.Logger
}

// WorkerPoolConfig holds configuration options for the worker pool
type WorkerPoolConfig struct {
	// WorkerCount determines how many concurrent worker goroutines to start
	// If zero or negative, defaults to 1
	WorkerCount int
}

// DefaultWorkerPoolConfig returns a WorkerPoolConfig with reasonable defaults
func DefaultWorkerPoolConfig() WorkerPoolConfig {
	return WorkerPoolConfig{
		WorkerCount: 4,
	}
}

// NewWorkerPool creates a new worker pool with the specified configuration
func NewWorkerPool(
	queue ProjectQueueReader,
	config WorkerPoolConfig,
	run func(ctx context.Context, id uuid.UUID),
	logger *slog.Logger,
) *WorkerPool {
	workerCount := config.WorkerCount
	if workerCount <= 0 {
		workerCount = 1
		logger.Warn("invalid worker count specified, using default",
			"specified_count", config.WorkerCount,
			"default_count", 1)
	}

	return &WorkerPool{
		queue:       queue,
		workerCount: workerCount,
		run:         run,
		logger:      logger,
	}
}

// Start launches the workers. They stop when ctx is cancelled, when Stop
// is called, or when the queue is closed.
func (p *WorkerPool) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)
	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
	p.logger.Info("worker pool started", "worker_count", p.workerCount)
}

// Stop cancels running loops and waits for every worker to return.
func (p *WorkerPool) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
	p.logger.Info("worker pool stopped")
}

func (p *WorkerPool) worker(ctx context.Context, id int) {
	defer p.wg.Done()
	p.logger.Debug("starting worker", "worker_id", id)

	for {
		select {
		case <-ctx.Done():
			p.logger.Debug("stopping worker", "worker_id", id)
			return

		case projectID, ok := <-p.queue.GetChannel():
			if !ok {
				p.logger.Debug("project queue closed, stopping worker", "worker_id", id)
				return
			}
			for {
				p.run(ctx, projectID)
				if ctx.Err() != nil || !p.queue.Done(projectID) {
					break
				}
			}
		}
	}
}
