package writing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/scribe-api/internal/domain"
	"github.com/phrazzld/scribe-api/internal/events"
	"github.com/phrazzld/scribe-api/internal/platform/metrics"
	"github.com/phrazzld/scribe-api/internal/store"
)

// Resumer re-arms a run that stopped advancing.
type Resumer interface {
	ForceResume(ctx context.Context, projectID uuid.UUID) error
}

type watch struct {
	completed int
	since     time.Time
	fired     bool
}

// Watchdog force-resumes a writing project whose completed_scenes has not
// changed for the stall window. It fires once per stall episode; the next
// completed scene starts a new episode.
type Watchdog struct {
	projects store.ProjectStore
	resumer  Resumer
	stall    time.Duration
	metrics  *metrics.Metrics
	logger   *slog.Logger
	now      func() time.Time

	mu      sync.Mutex
	watches map[uuid.UUID]*watch
}

var _ events.EventHandler = (*Watchdog)(nil)

// NewWatchdog creates a Watchdog. m may be nil.
func NewWatchdog(
	projects store.ProjectStore,
	resumer Resumer,
	stall time.Duration,
	m *metrics.Metrics,
	logger *slog.Logger,
) (*Watchdog, error) {
	if projects == nil || resumer == nil {
		return nil, errors.New("watchdog requires a project store and a resumer")
	}
	if logger == nil {
		return nil, ErrNilLogger
	}
	return &Watchdog{
		projects: projects,
		resumer:  resumer,
		stall:    stall,
		metrics:  m,
		logger:   logger.With(slog.String("component", "watchdog")),
		now:      func() time.Time { return time.Now().UTC() },
		watches:  make(map[uuid.UUID]*watch),
	}, nil
}

// HandleEvent records the completed-scene count carried by progress events.
func (w *Watchdog) HandleEvent(ctx context.Context, event *events.Event) error {
	if len(event.Payload) == 0 {
		return nil
	}
	var p Progress
	if err := event.UnmarshalPayload(&p); err != nil {
		return fmt.Errorf("failed to decode progress: %w", err)
	}
	w.mu.Lock()
	w.record(event.ProjectID, p.Status, p.CompletedScenes, w.now())
	w.mu.Unlock()
	return nil
}

// record must be called with mu held.
func (w *Watchdog) record(id uuid.UUID, status domain.ProjectStatus, completed int, now time.Time) {
	if status != domain.ProjectStatusWriting {
		delete(w.watches, id)
		return
	}
	if cur, ok := w.watches[id]; ok && cur.completed == completed {
		return
	}
	w.watches[id] = &watch{completed: completed, since: now}
}

// Check scans writing projects and force-resumes the stalled ones.
func (w *Watchdog) Check(ctx context.Context) error {
	projects, err := w.projects.ListByStatus(ctx, domain.ProjectStatusWriting)
	if err != nil {
		return fmt.Errorf("failed to list writing projects: %w", err)
	}
	now := w.now()

	var due []uuid.UUID
	w.mu.Lock()
	seen := make(map[uuid.UUID]bool, len(projects))
	for _, p := range projects {
		seen[p.ID] = true
		w.record(p.ID, p.WritingStatus, p.CompletedScenes, now)
		cur := w.watches[p.ID]
		if cur != nil && !cur.fired && now.Sub(cur.since) >= w.stall {
			cur.fired = true
			due = append(due, p.ID)
		}
	}
	for id := range w.watches {
		if !seen[id] {
			delete(w.watches, id)
		}
	}
	w.mu.Unlock()

	for _, id := range due {
		log := w.logger.With(slog.String("project_id", id.String()))
		if err := w.resumer.ForceResume(ctx, id); err != nil {
			log.Error("force resume failed", slog.String("error", err.Error()))
			continue
		}
		w.metrics.WatchdogResume()
		log.Warn("no scene completed within stall window, run force-resumed",
			slog.Duration("stall", w.stall))
	}
	return nil
}

// Run calls Check every interval until ctx is done.
func (w *Watchdog) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := w.Check(ctx); err != nil {
				w.logger.Error("watchdog check failed", slog.String("error", err.Error()))
			}
		}
	}
}
