package writing

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/scribe-api/internal/credit"
	"github.com/phrazzld/scribe-api/internal/domain"
	"github.com/phrazzld/scribe-api/internal/events"
	"github.com/phrazzld/scribe-api/internal/mocks"
	"github.com/phrazzld/scribe-api/internal/platform/memory"
	"github.com/phrazzld/scribe-api/internal/store"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2026, 4, 2, 8, 0, 0, 0, time.UTC)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.MaxRetries = 3
	cfg.StallTimeout = 0
	return cfg
}

type harness struct {
	t         *testing.T
	ctx       context.Context
	mem       *memory.Store
	gen       *mocks.MockGenerator
	driver    *Driver
	emitter   *events.InMemoryEventEmitter
	mu        sync.Mutex
	received  []*events.Event
	projectID uuid.UUID
	userID    uuid.UUID
	now       time.Time
}

type harnessOption func(*harnessOptions)

type harnessOptions struct {
	cfg    Config
	ledger *credit.Ledger
}

func withConfig(cfg Config) harnessOption {
	return func(o *harnessOptions) { o.cfg = cfg }
}

func withLedger(l *credit.Ledger) harnessOption {
	return func(o *harnessOptions) { o.ledger = l }
}

func newHarness(t *testing.T, gen *mocks.MockGenerator, opts ...harnessOption) *harness {
	t.Helper()
	o := harnessOptions{cfg: testConfig()}
	for _, opt := range opts {
		opt(&o)
	}

	h := &harness{
		t:   t,
		ctx: context.Background(),
		mem: memory.NewStore(),
		gen: gen,
		now: epoch,
	}
	h.emitter = events.NewInMemoryEventEmitter(quietLogger())
	h.emitter.RegisterHandler(events.HandlerFunc(func(_ context.Context, ev *events.Event) error {
		h.mu.Lock()
		h.received = append(h.received, ev)
		h.mu.Unlock()
		return nil
	}))

	d, err := NewDriver(h.mem, gen, o.ledger, h.emitter, nil, o.cfg, quietLogger())
	require.NoError(t, err)
	d.now = func() time.Time { return h.now }
	h.driver = d

	p, err := domain.NewProject(uuid.New(), "The Salt Road", "A caravan crosses a dead sea.", 50000)
	require.NoError(t, err)
	require.NoError(t, h.mem.Projects().Create(h.ctx, p))
	h.projectID = p.ID
	h.userID = p.UserID
	return h
}

// addChapter creates a chapter; titles, when given, become its outline.
func (h *harness) addChapter(title string, titles ...string) *domain.Chapter {
	h.t.Helper()
	chapters, err := h.mem.Chapters().ListByProject(h.ctx, h.projectID)
	require.NoError(h.t, err)
	ch, err := domain.NewChapter(h.projectID, title, title+" summary", len(chapters)+1)
	require.NoError(h.t, err)
	if len(titles) > 0 {
		stubs := make([]domain.SceneStub, len(titles))
		for i, st := range titles {
			stubs[i] = domain.SceneStub{Title: st}
		}
		ch.SetOutline(stubs, h.now)
	}
	require.NoError(h.t, h.mem.Chapters().Create(h.ctx, ch))
	return ch
}

func (h *harness) inTx(fn func(ctx context.Context, tx store.Stores, p *domain.Project) error) error {
	return h.mem.InTx(h.ctx, func(ctx context.Context, tx store.Stores) error {
		p, err := tx.Projects.GetForUpdate(ctx, h.projectID)
		if err != nil {
			return err
		}
		return fn(ctx, tx, p)
	})
}

func (h *harness) start() int {
	h.t.Helper()
	var n int
	require.NoError(h.t, h.inTx(func(ctx context.Context, tx store.Stores, p *domain.Project) error {
		var err error
		n, err = StartRun(ctx, tx, p, h.now)
		return err
	}))
	return n
}

func (h *harness) project() *domain.Project {
	h.t.Helper()
	p, err := h.mem.Projects().GetByID(h.ctx, h.projectID)
	require.NoError(h.t, err)
	return p
}

func (h *harness) chapter(id uuid.UUID) *domain.Chapter {
	h.t.Helper()
	ch, err := h.mem.Chapters().GetByID(h.ctx, id)
	require.NoError(h.t, err)
	return ch
}

func (h *harness) jobs() []*domain.WritingJob {
	h.t.Helper()
	jobs, err := h.mem.Jobs().ListByProject(h.ctx, h.projectID)
	require.NoError(h.t, err)
	return jobs
}

func (h *harness) tick() Result {
	h.t.Helper()
	res, err := h.driver.Tick(h.ctx, h.projectID)
	require.NoError(h.t, err)
	return res
}

// drain ticks until the driver stops, advancing the clock by each delay.
// It checks the counter invariants after every step.
func (h *harness) drain(maxSteps int) Result {
	h.t.Helper()
	var res Result
	lastTotal := h.project().TotalScenes
	for i := 0; i < maxSteps; i++ {
		res = h.tick()
		p := h.project()
		require.LessOrEqual(h.t, p.CompletedScenes+p.FailedScenes, p.TotalScenes)
		if p.WritingStatus.IsActive() {
			require.GreaterOrEqual(h.t, p.TotalScenes, lastTotal, "total_scenes shrank during a run")
		}
		lastTotal = p.TotalScenes
		if !res.Continue {
			return res
		}
		h.now = h.now.Add(res.Delay)
	}
	h.t.Fatalf("driver still running after %d steps", maxSteps)
	return res
}

func (h *harness) eventTypes() []events.Type {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]events.Type, 0, len(h.received))
	for _, ev := range h.received {
		out = append(out, ev.Type)
	}
	return out
}
