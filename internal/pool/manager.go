package pool

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/qtbui/notification-dispatch/internal/queue"
)

// Default sizing policy for the adaptive pool.
const (
	DefaultMinWorkers     = 1
	DefaultMaxWorkers     = 5
	DefaultScaleThreshold = 10
	DefaultCheckInterval  = 60 * time.Second
)

// Config holds manager configuration.
type Config struct {
	Logger *slog.Logger
	Queue  *queue.Queue

	// Factory builds one pool member. Defaults to the claim-loop worker.
	Factory func(id string) Runner

	MinWorkers     int
	MaxWorkers     int
	ScaleThreshold int
	CheckInterval  time.Duration
}

// Manager sizes the worker pool against queue depth. All worker list
// mutations happen on the run goroutine; size evaluations never overlap.
type Manager struct {
	logger  *slog.Logger
	queue   *queue.Queue
	factory func(id string) Runner

	minWorkers     int
	maxWorkers     int
	scaleThreshold int
	checkInterval  time.Duration

	workers  []Runner
	nextID   int
	idle     bool
	nudgeCh  chan struct{}
	stopChan chan struct{}
	doneChan chan struct{}
	stopOnce sync.Once
}

// NewManager creates a pool manager. Sizing fields fall back to defaults
// when unset.
func NewManager(cfg *Config) *Manager {
	m := &Manager{
		logger:         cfg.Logger,
		queue:          cfg.Queue,
		factory:        cfg.Factory,
		minWorkers:     cfg.MinWorkers,
		maxWorkers:     cfg.MaxWorkers,
		scaleThreshold: cfg.ScaleThreshold,
		checkInterval:  cfg.CheckInterval,
		nudgeCh:        make(chan struct{}, 1),
		stopChan:       make(chan struct{}),
		doneChan:       make(chan struct{}),
	}

	if m.minWorkers <= 0 {
		m.minWorkers = DefaultMinWorkers
	}
	if m.maxWorkers <= 0 {
		m.maxWorkers = DefaultMaxWorkers
	}
	if m.maxWorkers < m.minWorkers {
		m.maxWorkers = m.minWorkers
	}
	if m.scaleThreshold <= 0 {
		m.scaleThreshold = DefaultScaleThreshold
	}
	if m.checkInterval <= 0 {
		m.checkInterval = DefaultCheckInterval
	}

	return m
}

// Start spins up the minimum pool and begins monitoring queue depth.
func (m *Manager) Start(ctx context.Context) {
	m.logger.Info("Starting worker pool manager",
		slog.Int("min_workers", m.minWorkers),
		slog.Int("max_workers", m.maxWorkers),
		slog.Int("scale_threshold", m.scaleThreshold),
		slog.Duration("check_interval", m.checkInterval),
	)

	for i := 0; i < m.minWorkers; i++ {
		m.addWorker(ctx)
	}

	go m.run(ctx)
}

// Nudge wakes the manager for an immediate size evaluation. It never
// blocks; a pending wake-up is enough.
func (m *Manager) Nudge() {
	select {
	case m.nudgeCh <- struct{}{}:
	default:
	}
}

// Shutdown stops monitoring, then stops every worker and waits for
// in-flight jobs. Safe to call more than once.
func (m *Manager) Shutdown() {
	m.stopOnce.Do(func() {
		m.logger.Info("Shutting down worker pool manager")

		close(m.stopChan)
		<-m.doneChan

		for _, w := range m.workers {
			w.Stop()
		}
		m.workers = nil

		m.logger.Info("Worker pool manager stopped")
	})
}

func (m *Manager) run(ctx context.Context) {
	defer close(m.doneChan)

	ticker := time.NewTicker(m.checkInterval)
	defer ticker.Stop()

	for {
		if m.idle {
			// Nothing queued; the next queue event restarts monitoring.
			select {
			case <-m.stopChan:
				return
			case <-ctx.Done():
				return
			case <-m.nudgeCh:
				m.idle = false
				ticker.Reset(m.checkInterval)
				m.evaluate(ctx)
			}
			continue
		}

		select {
		case <-m.stopChan:
			return
		case <-ctx.Done():
			return
		case <-m.nudgeCh:
			m.evaluate(ctx)
		case <-ticker.C:
			m.evaluate(ctx)
		}
	}
}

// evaluate adjusts the pool by at most one worker per pass and runs the
// queue janitor duties.
func (m *Manager) evaluate(ctx context.Context) {
	if reclaimed, err := m.queue.ReclaimStalled(ctx); err != nil {
		m.logger.Warn("Failed to reclaim stalled jobs",
			slog.String("error", err.Error()),
		)
	} else if reclaimed > 0 {
		m.logger.Info("Reclaimed stalled jobs",
			slog.Int("count", reclaimed),
		)
	}

	if _, err := m.queue.Sweep(ctx); err != nil {
		m.logger.Warn("Failed to sweep retained jobs",
			slog.String("error", err.Error()),
		)
	}

	ready, err := m.queue.Count(ctx)
	if err != nil {
		m.logger.Error("Failed to count ready jobs",
			slog.String("error", err.Error()),
		)
		return
	}

	delayed, err := m.queue.DelayedCount(ctx)
	if err != nil {
		m.logger.Error("Failed to count delayed jobs",
			slog.String("error", err.Error()),
		)
		return
	}

	m.logger.Debug("Evaluating pool size",
		slog.Int("ready", ready),
		slog.Int("delayed", delayed),
		slog.Int("workers", len(m.workers)),
	)

	demand := ready + delayed

	switch {
	case demand >= m.scaleThreshold && len(m.workers) < m.maxWorkers:
		m.addWorker(ctx)

	case demand < m.scaleThreshold && len(m.workers) > m.minWorkers:
		m.removeWorker()
	}

	if ready == 0 && delayed == 0 && len(m.workers) == m.minWorkers {
		m.logger.Info("Queue empty, pausing pool monitoring")
		m.idle = true
	}
}

func (m *Manager) addWorker(ctx context.Context) {
	id := fmt.Sprintf("worker-%d", m.nextID)
	m.nextID++

	w := m.factory(id)
	w.Start(ctx)
	m.workers = append(m.workers, w)

	m.logger.Info("Worker added",
		slog.String("worker_id", id),
		slog.Int("pool_size", len(m.workers)),
	)
}

func (m *Manager) removeWorker() {
	last := len(m.workers) - 1
	w := m.workers[last]
	m.workers = m.workers[:last]

	w.Stop()

	m.logger.Info("Worker removed",
		slog.Int("pool_size", len(m.workers)),
	)
}

// Size reports the current pool size. Only meaningful between Start and
// Shutdown from the managing goroutine; tests use it after Shutdown or
// via synchronization.
func (m *Manager) Size() int {
	return len(m.workers)
}
