package pool

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/qtbui/notification-dispatch/internal/queue"
)

// Handler executes claimed jobs and observes their terminal outcomes.
type Handler interface {
	// Process performs the work for one job. A returned error counts as a
	// failed attempt and drives the retry policy.
	Process(ctx context.Context, job *queue.Job) error

	// OnCompleted is called after a job is durably marked completed.
	OnCompleted(ctx context.Context, job *queue.Job)

	// OnDead is called after a job exhausts its attempts and is
	// dead-lettered.
	OnDead(ctx context.Context, job *queue.Job, procErr error)
}

// Runner is one pool member. The manager owns its lifecycle.
type Runner interface {
	Start(ctx context.Context)
	Stop()
}

// Worker claims jobs from the queue one at a time and runs them through
// the handler.
type Worker struct {
	id           string
	queue        *queue.Queue
	handler      Handler
	logger       *slog.Logger
	pollInterval time.Duration
	stopChan     chan struct{}
	doneChan     chan struct{}
}

// NewWorker creates a worker bound to a queue and handler.
func NewWorker(id string, q *queue.Queue, handler Handler, pollInterval time.Duration, logger *slog.Logger) *Worker {
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	return &Worker{
		id:           id,
		queue:        q,
		handler:      handler,
		logger:       logger,
		pollInterval: pollInterval,
		stopChan:     make(chan struct{}),
		doneChan:     make(chan struct{}),
	}
}

// Start launches the claim loop in its own goroutine.
func (w *Worker) Start(ctx context.Context) {
	go w.run(ctx)
}

// Stop signals the claim loop and waits for the in-flight job to finish.
func (w *Worker) Stop() {
	close(w.stopChan)
	<-w.doneChan
}

func (w *Worker) run(ctx context.Context) {
	defer close(w.doneChan)

	w.logger.Info("Worker started",
		slog.String("worker_id", w.id),
	)

	for {
		select {
		case <-w.stopChan:
			w.logger.Info("Worker stopping",
				slog.String("worker_id", w.id),
			)
			return

		case <-ctx.Done():
			w.logger.Info("Worker stopping - context canceled",
				slog.String("worker_id", w.id),
			)
			return

		default:
		}

		job, err := w.queue.Claim(ctx, w.id)
		if err != nil {
			if errors.Is(err, queue.ErrNoJob) {
				w.idle(ctx)
				continue
			}
			if ctx.Err() != nil {
				return
			}
			w.logger.Error("Failed to claim job",
				slog.String("worker_id", w.id),
				slog.String("error", err.Error()),
			)
			w.idle(ctx)
			continue
		}

		w.processJob(ctx, job)
	}
}

// idle waits one poll interval without blocking shutdown.
func (w *Worker) idle(ctx context.Context) {
	timer := time.NewTimer(w.pollInterval)
	defer timer.Stop()

	select {
	case <-w.stopChan:
	case <-ctx.Done():
	case <-timer.C:
	}
}

// processJob runs a single claimed job with timeout and heartbeat, then
// records its outcome.
func (w *Worker) processJob(ctx context.Context, job *queue.Job) {
	w.logger.Info("Processing job",
		slog.String("worker_id", w.id),
		slog.String("job_id", job.ID),
		slog.Int("attempts_made", job.AttemptsMade),
	)

	jobCtx, cancel := context.WithTimeout(ctx, job.Opts.Timeout)
	defer cancel()

	heartbeatDone := make(chan struct{})
	go w.sendHeartbeat(jobCtx, job, heartbeatDone)

	procErr := w.handler.Process(jobCtx, job)
	close(heartbeatDone)

	if procErr == nil {
		if err := w.queue.MarkCompleted(ctx, job); err != nil {
			w.logger.Error("Failed to mark job completed",
				slog.String("worker_id", w.id),
				slog.String("job_id", job.ID),
				slog.String("error", err.Error()),
			)
			return
		}

		w.logger.Info("Job completed",
			slog.String("worker_id", w.id),
			slog.String("job_id", job.ID),
		)
		w.handler.OnCompleted(ctx, job)
		return
	}

	w.logger.Error("Job processing failed",
		slog.String("worker_id", w.id),
		slog.String("job_id", job.ID),
		slog.String("error", procErr.Error()),
	)

	dead, err := w.queue.MarkFailed(ctx, job, procErr)
	if err != nil {
		w.logger.Error("Failed to record job failure",
			slog.String("worker_id", w.id),
			slog.String("job_id", job.ID),
			slog.String("error", err.Error()),
		)
		return
	}

	if dead {
		w.handler.OnDead(ctx, job, procErr)
	}
}

// sendHeartbeat keeps the job's liveness fresh so the stall reclaimer
// leaves it alone while it runs.
func (w *Worker) sendHeartbeat(ctx context.Context, job *queue.Job, done <-chan struct{}) {
	interval := job.Opts.StallInterval / 2
	if interval <= 0 {
		interval = 15 * time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return

		case <-ctx.Done():
			return

		case <-ticker.C:
			if err := w.queue.Heartbeat(ctx, job.ID); err != nil {
				w.logger.Warn("Failed to update job heartbeat",
					slog.String("worker_id", w.id),
					slog.String("job_id", job.ID),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}
