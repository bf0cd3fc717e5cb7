package pool

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qtbui/notification-dispatch/internal/queue"
)

// countStore is a queue.Store stub exposing only the counts the manager
// reads. Claiming and mutation paths are never exercised here.
type countStore struct {
	mu      sync.Mutex
	ready   int
	delayed int
}

func (s *countStore) setReady(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ready = n
}

func (s *countStore) ReadyCount(_ context.Context, _ string, _ time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready, nil
}

func (s *countStore) DelayedCount(_ context.Context, _ string, _ time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.delayed, nil
}

func (s *countStore) Insert(_ context.Context, _ *queue.Job) (bool, error) { return false, nil }

func (s *countStore) Get(_ context.Context, _, _ string) (*queue.Job, error) {
	return nil, queue.ErrJobNotFound
}

func (s *countStore) UpdateScheduledAt(_ context.Context, _, _ string, _ time.Time) error {
	return nil
}

func (s *countStore) Delete(_ context.Context, _, _ string) (bool, error) { return false, nil }

func (s *countStore) Claim(_ context.Context, _, _ string, _ time.Time) (*queue.Job, error) {
	return nil, queue.ErrNoJob
}

func (s *countStore) Heartbeat(_ context.Context, _, _ string, _ time.Time) error { return nil }

func (s *countStore) MarkCompleted(_ context.Context, _, _ string, _ time.Time) error { return nil }

func (s *countStore) MarkFailed(_ context.Context, _, _, _ string, _ *time.Time, _ time.Time) error {
	return nil
}

func (s *countStore) ReclaimStalled(_ context.Context, _ string, _ time.Time) ([]string, error) {
	return nil, nil
}

func (s *countStore) Sweep(_ context.Context, _ string, _ time.Time) (int, error) { return 0, nil }

// fakeRunner records lifecycle calls.
type fakeRunner struct {
	id      string
	started atomic.Bool
	stopped atomic.Bool
}

func (r *fakeRunner) Start(_ context.Context) { r.started.Store(true) }
func (r *fakeRunner) Stop()                   { r.stopped.Store(true) }

// runnerFactory tracks every runner it built.
type runnerFactory struct {
	mu      sync.Mutex
	created []*fakeRunner
}

func (f *runnerFactory) build(id string) Runner {
	f.mu.Lock()
	defer f.mu.Unlock()

	r := &fakeRunner{id: id}
	f.created = append(f.created, r)
	return r
}

func (f *runnerFactory) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.created)
}

func (f *runnerFactory) all() []*fakeRunner {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*fakeRunner(nil), f.created...)
}

func poolTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestManager(store *countStore, factory *runnerFactory, cfg Config) *Manager {
	cfg.Logger = poolTestLogger()
	cfg.Queue = queue.New("notifications", store, nil, poolTestLogger())
	cfg.Factory = factory.build
	if cfg.CheckInterval == 0 {
		// Keep the background ticker out of the way; tests drive
		// evaluations directly.
		cfg.CheckInterval = time.Hour
	}
	return NewManager(&cfg)
}

func TestNewManager_Defaults(t *testing.T) {
	m := newTestManager(&countStore{}, &runnerFactory{}, Config{})

	assert.Equal(t, DefaultMinWorkers, m.minWorkers)
	assert.Equal(t, DefaultMaxWorkers, m.maxWorkers)
	assert.Equal(t, DefaultScaleThreshold, m.scaleThreshold)

	m = newTestManager(&countStore{}, &runnerFactory{}, Config{MinWorkers: 4, MaxWorkers: 2})
	assert.Equal(t, 4, m.minWorkers)
	assert.Equal(t, 4, m.maxWorkers)
}

func TestManager_StartSpawnsMinWorkers(t *testing.T) {
	factory := &runnerFactory{}
	m := newTestManager(&countStore{}, factory, Config{MinWorkers: 2, MaxWorkers: 5})

	m.Start(context.Background())
	defer m.Shutdown()

	require.Equal(t, 2, factory.count())
	for _, r := range factory.all() {
		assert.True(t, r.started.Load())
	}
}

func TestManager_ScalesUpOneWorkerPerEvaluation(t *testing.T) {
	store := &countStore{ready: 50}
	factory := &runnerFactory{}
	m := newTestManager(store, factory, Config{MinWorkers: 1, MaxWorkers: 3, ScaleThreshold: 10})

	ctx := context.Background()
	m.Start(ctx)
	defer m.Shutdown()
	require.Equal(t, 1, m.Size())

	m.evaluate(ctx)
	assert.Equal(t, 2, m.Size())

	m.evaluate(ctx)
	assert.Equal(t, 3, m.Size())

	// At max the pool stops growing no matter the backlog.
	m.evaluate(ctx)
	assert.Equal(t, 3, m.Size())
}

func TestManager_ScalesDownWhenDrained(t *testing.T) {
	store := &countStore{ready: 50}
	factory := &runnerFactory{}
	m := newTestManager(store, factory, Config{MinWorkers: 1, MaxWorkers: 3, ScaleThreshold: 10})

	ctx := context.Background()
	m.Start(ctx)
	defer m.Shutdown()

	m.evaluate(ctx)
	m.evaluate(ctx)
	require.Equal(t, 3, m.Size())

	store.setReady(0)
	m.evaluate(ctx)
	assert.Equal(t, 2, m.Size())

	m.evaluate(ctx)
	assert.Equal(t, 1, m.Size())

	// Never below the minimum.
	m.evaluate(ctx)
	assert.Equal(t, 1, m.Size())

	runners := factory.all()
	require.Len(t, runners, 3)
	assert.True(t, runners[2].stopped.Load())
	assert.True(t, runners[1].stopped.Load())
	assert.False(t, runners[0].stopped.Load())
}

func TestManager_ScalesUpAtExactThreshold(t *testing.T) {
	store := &countStore{ready: 10}
	factory := &runnerFactory{}
	m := newTestManager(store, factory, Config{MinWorkers: 1, MaxWorkers: 5, ScaleThreshold: 10})

	ctx := context.Background()
	m.Start(ctx)
	defer m.Shutdown()

	m.evaluate(ctx)
	assert.Equal(t, 2, m.Size())
}

func TestManager_DelayedJobsCountTowardDemand(t *testing.T) {
	store := &countStore{delayed: 20}
	factory := &runnerFactory{}
	m := newTestManager(store, factory, Config{MinWorkers: 1, MaxWorkers: 5, ScaleThreshold: 10})

	ctx := context.Background()
	m.Start(ctx)
	defer m.Shutdown()

	// Nothing ready yet, but a wave of delayed jobs is coming due; the
	// pool grows ahead of it.
	m.evaluate(ctx)
	assert.Equal(t, 2, m.Size())
}

func TestManager_ConvergesToMinUnderLowDemand(t *testing.T) {
	store := &countStore{ready: 50}
	factory := &runnerFactory{}
	m := newTestManager(store, factory, Config{MinWorkers: 1, MaxWorkers: 5, ScaleThreshold: 10})

	ctx := context.Background()
	m.Start(ctx)
	defer m.Shutdown()

	m.evaluate(ctx)
	m.evaluate(ctx)
	require.Equal(t, 3, m.Size())

	// Steady trickle below the threshold sheds one worker per pass down
	// to the minimum.
	store.setReady(5)
	m.evaluate(ctx)
	assert.Equal(t, 2, m.Size())

	m.evaluate(ctx)
	assert.Equal(t, 1, m.Size())

	m.evaluate(ctx)
	assert.Equal(t, 1, m.Size())
}

func TestManager_IdlesOnEmptyQueue(t *testing.T) {
	store := &countStore{}
	factory := &runnerFactory{}
	m := newTestManager(store, factory, Config{MinWorkers: 1, MaxWorkers: 3, ScaleThreshold: 10})

	ctx := context.Background()
	m.Start(ctx)
	defer m.Shutdown()

	m.evaluate(ctx)
	assert.True(t, m.idle)

	// Delayed work keeps monitoring alive even with nothing ready.
	m.idle = false
	store.mu.Lock()
	store.delayed = 3
	store.mu.Unlock()
	m.evaluate(ctx)
	assert.False(t, m.idle)
}

func TestManager_NudgeWakesIdlePool(t *testing.T) {
	store := &countStore{}
	factory := &runnerFactory{}
	m := newTestManager(store, factory, Config{MinWorkers: 1, MaxWorkers: 3, ScaleThreshold: 10})

	ctx := context.Background()
	m.Start(ctx)
	defer m.Shutdown()

	// Nothing queued: the first nudge drives the pool idle.
	m.Nudge()
	assert.Eventually(t, func() bool {
		return factory.count() == 1
	}, time.Second, 10*time.Millisecond)

	// New backlog arrives with a queue event; the nudge must restart
	// monitoring and grow the pool.
	store.setReady(50)
	m.Nudge()
	assert.Eventually(t, func() bool {
		return factory.count() == 2
	}, time.Second, 10*time.Millisecond)
}

func TestManager_Shutdown(t *testing.T) {
	factory := &runnerFactory{}
	m := newTestManager(&countStore{}, factory, Config{MinWorkers: 2, MaxWorkers: 5})

	m.Start(context.Background())
	m.Shutdown()

	for _, r := range factory.all() {
		assert.True(t, r.stopped.Load())
	}
	assert.Zero(t, m.Size())

	// Safe to call again.
	m.Shutdown()
}
