package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/scribe-api/internal/config"
	"github.com/phrazzld/scribe-api/internal/domain"
	"github.com/phrazzld/scribe-api/internal/platform/metrics"
)

// RunnerConfig holds configuration for the project runner
type RunnerConfig struct {
	// WorkerCount determines how many projects are driven concurrently
	WorkerCount int

	// QueueSize determines the buffer size of the project queue
	QueueSize int

	// DiscoveryInterval defines how often active projects are resubmitted
	DiscoveryInterval time.Duration

	// ReaperInterval defines how often expired job leases are requeued
	ReaperInterval time.Duration
}

// DefaultRunnerConfig returns a RunnerConfig with reasonable defaults
func DefaultRunnerConfig() RunnerConfig {
	return RunnerConfig{
		WorkerCount:       4,
		QueueSize:         256,
		DiscoveryInterval: 30 * time.Second,
		ReaperInterval:    time.Minute,
	}
}

// RunnerConfigFrom maps the runtime section of the application config.
func RunnerConfigFrom(c config.RuntimeConfig) RunnerConfig {
	return RunnerConfig{
		WorkerCount:       c.WorkerCount,
		QueueSize:         c.QueueSize,
		DiscoveryInterval: c.DiscoveryInterval,
		ReaperInterval:    c.ReaperInterval,
	}
}

// Runner drives writing projects in the background.
type Runner struct {
	stepper  Stepper
	projects ProjectLister
	leases   LeaseReaper
	queue    *ProjectQueue
	pool     *WorkerPool
	config   RunnerConfig
	metrics  *metrics.Metrics
	logger   *slog.Logger
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) bool
}

// NewRunner creates a Runner. m may be nil.
func NewRunner(
	stepper Stepper,
	projects ProjectLister,
	leases LeaseReaper,
	config RunnerConfig,
	m *metrics.Metrics,
	logger *slog.Logger,
) (*Runner, error) {
	if stepper == nil || projects == nil || leases == nil {
		return nil, errors.New("runner requires a stepper, a project lister and a lease reaper")
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if config.QueueSize <= 0 {
		config.QueueSize = DefaultRunnerConfig().QueueSize
	}

	logger = logger.With("component", "project_runner")
	r := &Runner{
		stepper:  stepper,
		projects: projects,
		leases:   leases,
		queue:    NewProjectQueue(config.QueueSize, logger),
		config:   config,
		metrics:  m,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
		sleep:    sleepCtx,
	}
	r.pool = NewWorkerPool(r.queue, WorkerPoolConfig{WorkerCount: config.WorkerCount}, r.runProject, logger)
	return r, nil
}

// Submit schedules a project loop. A project already queued or running is
// picked up again once its current loop ends.
func (r *Runner) Submit(ctx context.Context, projectID uuid.UUID) error {
	if err := r.queue.Enqueue(projectID); err != nil {
		return fmt.Errorf("failed to submit project %s: %w", projectID, err)
	}
	return nil
}

// Run recovers leases left by a previous process, submits every active
// project and drives them until ctx is done.
func (r *Runner) Run(ctx context.Context) error {
	if err := r.Recover(ctx); err != nil {
		return fmt.Errorf("failed to recover runs: %w", err)
	}
	r.pool.Start(ctx)
	defer r.pool.Stop()

	discovery := time.NewTicker(r.config.DiscoveryInterval)
	defer discovery.Stop()
	reaper := time.NewTicker(r.config.ReaperInterval)
	defer reaper.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-discovery.C:
			if err := r.Discover(ctx); err != nil {
				r.logger.Error("project discovery failed", "error", err)
			}
		case <-reaper.C:
			if _, err := r.Reap(ctx); err != nil {
				r.logger.Error("lease reaper failed", "error", err)
			}
		}
	}
}

// Recover requeues every expired lease and submits active projects.
func (r *Runner) Recover(ctx context.Context) error {
	n, err := r.Reap(ctx)
	if err != nil {
		return err
	}
	if err := r.Discover(ctx); err != nil {
		return err
	}
	r.logger.Info("recovered unfinished runs", "requeued_leases", n, "queued_projects", r.queue.Len())
	return nil
}

// Discover submits every project in an active status.
func (r *Runner) Discover(ctx context.Context) error {
	projects, err := r.projects.ListByStatus(ctx, domain.ActiveStatuses()...)
	if err != nil {
		return fmt.Errorf("failed to list active projects: %w", err)
	}
	for _, p := range projects {
		if err := r.queue.Enqueue(p.ID); err != nil {
			if errors.Is(err, ErrQueueFull) {
				r.logger.Warn("project queue is full, deferring to next discovery",
					"project_id", p.ID)
				return nil
			}
			return err
		}
	}
	return nil
}

// Reap returns jobs with expired leases to the queue.
func (r *Runner) Reap(ctx context.Context) (int, error) {
	n, err := r.leases.RequeueExpiredLeases(ctx, r.now())
	if err != nil {
		return 0, fmt.Errorf("failed to requeue expired leases: %w", err)
	}
	if n > 0 {
		r.metrics.LeasesRequeued(n)
		r.logger.Info("requeued expired leases", "count", n)
	}
	return n, nil
}

// runProject steps one project until the driver says stop. Infrastructure
// errors end the loop; discovery submits the project again later.
func (r *Runner) runProject(ctx context.Context, projectID uuid.UUID) {
	logger := r.logger.With("project_id", projectID)
	logger.Debug("project loop started")

	steps := 0
	for {
		res, err := r.stepper.Tick(ctx, projectID)
		if err != nil {
			if ctx.Err() == nil {
				logger.Error("project step failed", "error", err, "steps", steps)
			}
			return
		}
		if res.Executed {
			steps++
		}
		if !res.Continue {
			logger.Debug("project loop finished", "status", res.Status, "steps", steps)
			return
		}
		if !r.sleep(ctx, res.Delay) {
			return
		}
	}
}

// sleepCtx waits for d and reports whether ctx is still live.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
