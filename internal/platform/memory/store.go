// Package memory provides an in-process implementation of the store
// interfaces. It backs the behavioural tests of the writing pipeline and can
// run the service without a database during local development.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/scribe-api/internal/domain"
	"github.com/phrazzld/scribe-api/internal/store"
)

type debit struct {
	UserID    uuid.UUID
	Amount    int
	CreatedAt time.Time
}

type state struct {
	projects map[uuid.UUID]*domain.Project
	chapters map[uuid.UUID]*domain.Chapter
	jobs     map[uuid.UUID]*domain.WritingJob
	ledgers  map[uuid.UUID]*domain.CreditLedger
	debits   map[uuid.UUID]debit
}

func newState() state {
	return state{
		projects: make(map[uuid.UUID]*domain.Project),
		chapters: make(map[uuid.UUID]*domain.Chapter),
		jobs:     make(map[uuid.UUID]*domain.WritingJob),
		ledgers:  make(map[uuid.UUID]*domain.CreditLedger),
		debits:   make(map[uuid.UUID]debit),
	}
}

func (s state) clone() state {
	c := newState()
	for k, v := range s.projects {
		c.projects[k] = cloneProject(v)
	}
	for k, v := range s.chapters {
		c.chapters[k] = cloneChapter(v)
	}
	for k, v := range s.jobs {
		c.jobs[k] = cloneJob(v)
	}
	for k, v := range s.ledgers {
		l := *v
		c.ledgers[k] = &l
	}
	for k, v := range s.debits {
		c.debits[k] = v
	}
	return c
}

// Store holds all entities in memory. Transactions are serialised and roll
// back by restoring a snapshot.
type Store struct {
	txMu sync.Mutex
	mu   sync.Mutex
	data state
}

var _ store.Transactor = (*Store)(nil)

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{data: newState()}
}

// Stores returns the store set backed by s.
func (s *Store) Stores() store.Stores {
	return store.Stores{
		Projects: s.Projects(),
		Chapters: s.Chapters(),
		Jobs:     s.Jobs(),
		Credits:  s.Credits(),
	}
}

// Projects returns the project store.
func (s *Store) Projects() *ProjectStore { return &ProjectStore{s: s} }

// Chapters returns the chapter store.
func (s *Store) Chapters() *ChapterStore { return &ChapterStore{s: s} }

// Jobs returns the job store.
func (s *Store) Jobs() *JobStore { return &JobStore{s: s} }

// Credits returns the credit store.
func (s *Store) Credits() *CreditStore { return &CreditStore{s: s} }

// InTx runs fn serialised against other transactions and restores the
// previous state when fn fails or panics.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx store.Stores) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	snapshot := s.data.clone()
	s.mu.Unlock()

	restore := func() {
		s.mu.Lock()
		s.data = snapshot
		s.mu.Unlock()
	}

	defer func() {
		if p := recover(); p != nil {
			restore()
			panic(p)
		}
	}()

	if err := fn(ctx, s.Stores()); err != nil {
		restore()
		return err
	}
	return nil
}

func cloneProject(p *domain.Project) *domain.Project {
	c := *p
	c.WritingError = clonePtr(p.WritingError)
	c.WritingStartedAt = clonePtr(p.WritingStartedAt)
	c.WritingCompletedAt = clonePtr(p.WritingCompletedAt)
	c.LastProgressAt = clonePtr(p.LastProgressAt)
	return &c
}

func cloneChapter(ch *domain.Chapter) *domain.Chapter {
	c := *ch
	if ch.SceneOutline != nil {
		c.SceneOutline = append([]domain.SceneStub(nil), ch.SceneOutline...)
	}
	if ch.Content != nil {
		c.Content = append([]domain.ContentBlock(nil), ch.Content...)
	}
	return &c
}

func cloneJob(j *domain.WritingJob) *domain.WritingJob {
	c := *j
	c.SceneIndex = clonePtr(j.SceneIndex)
	c.SceneSnapshot = clonePtr(j.SceneSnapshot)
	c.LeaseOwner = clonePtr(j.LeaseOwner)
	c.LeaseExpiresAt = clonePtr(j.LeaseExpiresAt)
	c.LastError = clonePtr(j.LastError)
	return &c
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func sortJobs(jobs []*domain.WritingJob) {
	sort.SliceStable(jobs, func(i, k int) bool {
		a, b := jobs[i], jobs[k]
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		if a.SortOrder != b.SortOrder {
			return a.SortOrder < b.SortOrder
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})
}
