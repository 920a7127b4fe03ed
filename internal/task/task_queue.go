package task

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Common errors returned by the ProjectQueue
var (
	ErrQueueClosed = errors.New("project queue is closed")
	ErrQueueFull   = errors.New("project queue is full")
)

// ProjectQueue is a buffered queue of project ids that holds each id at
// most once. An id stays a member from Enqueue until its worker calls Done.
type ProjectQueue struct {
	ids    chan uuid.UUID
	logger *slog.Logger

	mu      sync.Mutex
	members map[uuid.UUID]bool // value: resubmitted while running
	closed  bool
}

var (
	_ ProjectQueueReader = (*ProjectQueue)(nil)
	_ ProjectQueueWriter = (*ProjectQueue)(nil)
)

// NewProjectQueue creates a new queue with the specified buffer size
func NewProjectQueue(size int, logger *slog.Logger) *ProjectQueue {
	return &ProjectQueue{
		ids:     make(chan uuid.UUID, size),
		logger:  logger,
		members: make(map[uuid.UUID]bool),
	}
}

// Enqueue adds a project to the queue.
func (q *ProjectQueue) Enqueue(id uuid.UUID) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}
	if _, ok := q.members[id]; ok {
		q.members[id] = true
		return nil
	}

	select {
	case q.ids <- id:
		q.members[id] = false
		q.logger.Debug("project enqueued",
			"project_id", id,
			"queue_len", len(q.ids),
			"queue_cap", cap(q.ids))
		return nil
	default:
		return fmt.Errorf("%w: queue capacity %d reached", ErrQueueFull, cap(q.ids))
	}
}

// Done implements ProjectQueueReader.
func (q *ProjectQueue) Done(id uuid.UUID) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	again := q.members[id]
	if again && !q.closed {
		q.members[id] = false
		return true
	}
	delete(q.members, id)
	return false
}

// Len returns the number of projects queued or running.
func (q *ProjectQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.members)
}

// Close closes the queue, preventing further submissions
func (q *ProjectQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.ids)
		q.logger.Info("project queue closed")
	}
}

// GetChannel returns a read-only channel for consuming project ids
func (q *ProjectQueue) GetChannel() <-chan uuid.UUID {
	return q.ids
}
