package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Store is the durable backend holding queue state. All mutations are
// expected to be safe under concurrent workers; claiming must hand each
// eligible job to exactly one caller.
type Store interface {
	// Insert adds a job. It reports false, without error, when a job with
	// the same id already exists in the queue.
	Insert(ctx context.Context, job *Job) (bool, error)

	Get(ctx context.Context, queue, id string) (*Job, error)
	UpdateScheduledAt(ctx context.Context, queue, id string, at time.Time) error

	// Delete removes a job. It reports false when the id was not present.
	Delete(ctx context.Context, queue, id string) (bool, error)

	ReadyCount(ctx context.Context, queue string, now time.Time) (int, error)
	DelayedCount(ctx context.Context, queue string, now time.Time) (int, error)

	// Claim atomically hands the next eligible waiting job to the worker,
	// ordered by scheduled time, then priority (lower first), then FIFO.
	// Returns ErrNoJob when nothing is eligible.
	Claim(ctx context.Context, queue, workerID string, now time.Time) (*Job, error)

	Heartbeat(ctx context.Context, queue, id string, now time.Time) error
	MarkCompleted(ctx context.Context, queue, id string, now time.Time) error

	// MarkFailed records the attempt error and increments the attempt
	// counter. A non-nil nextRun re-schedules the job; nil dead-letters it.
	MarkFailed(ctx context.Context, queue, id, lastError string, nextRun *time.Time, now time.Time) error

	// ReclaimStalled returns active jobs whose heartbeat exceeded their
	// stall interval to the waiting state and reports their ids.
	ReclaimStalled(ctx context.Context, queue string, now time.Time) ([]string, error)

	// Sweep deletes terminal jobs past their retention age/count bounds.
	Sweep(ctx context.Context, queue string, now time.Time) (int, error)
}

// Queue is a durable, priority- and delay-aware job queue over a shared
// store. Adding is fire-and-forget: it never waits for processing. The
// queue, not the worker, owns the retry/backoff state machine.
type Queue struct {
	name   string
	store  Store
	events EventPublisher
	logger *slog.Logger

	now func() time.Time
}

// New creates a queue with the given name over the store. The event
// publisher may be nil, in which case state changes are not broadcast.
func New(name string, store Store, events EventPublisher, logger *slog.Logger) *Queue {
	return &Queue{
		name:   name,
		store:  store,
		events: events,
		logger: logger,
		now:    time.Now,
	}
}

// Name returns the logical queue name.
func (q *Queue) Name() string { return q.name }

// BulkItem is one entry of an AddBulk call.
type BulkItem struct {
	Name    string
	Payload Payload
	Opts    Options
}

// Add enqueues one job. Supplying a previously used JobID is a no-op: no
// duplicate is created and the job already in the queue is returned.
func (q *Queue) Add(ctx context.Context, name string, payload Payload, opts Options) (*Job, error) {
	opts.applyDefaults()

	id := opts.JobID
	if id == "" {
		id = uuid.New().String()
	}

	now := q.now()
	job := &Job{
		ID:          id,
		Queue:       q.name,
		Name:        name,
		Payload:     payload,
		Priority:    opts.Priority,
		ScheduledAt: opts.eligibleAt(now),
		Status:      JobStatusWaiting,
		Opts:        opts,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	inserted, err := q.store.Insert(ctx, job)
	if err != nil {
		return nil, fmt.Errorf("failed to add job: %w", err)
	}

	if !inserted {
		q.logger.Debug("Duplicate job id, enqueue skipped",
			slog.String("queue", q.name),
			slog.String("job_id", id),
		)

		existing, err := q.store.Get(ctx, q.name, id)
		if err != nil {
			return nil, fmt.Errorf("failed to load existing job %s: %w", id, err)
		}
		return existing, nil
	}

	event := EventWaiting
	if job.ScheduledAt.After(now) {
		event = EventDelayed
	}
	q.publish(ctx, job.ID, event)

	return job, nil
}

// AddBulk enqueues several jobs, stopping at the first store error.
func (q *Queue) AddBulk(ctx context.Context, items []BulkItem) error {
	for _, item := range items {
		if _, err := q.Add(ctx, item.Name, item.Payload, item.Opts); err != nil {
			return err
		}
	}

	q.logger.Info("Added jobs to queue",
		slog.String("queue", q.name),
		slog.Int("count", len(items)),
	)
	return nil
}

// GetJob fetches a job by id. Returns ErrJobNotFound if absent.
func (q *Queue) GetJob(ctx context.Context, id string) (*Job, error) {
	return q.store.Get(ctx, q.name, id)
}

// ChangeDelay re-schedules a not-yet-active job to run after the given
// delay from now.
func (q *Queue) ChangeDelay(ctx context.Context, id string, delay time.Duration) error {
	now := q.now()
	if err := q.store.UpdateScheduledAt(ctx, q.name, id, now.Add(delay)); err != nil {
		if errors.Is(err, ErrJobNotFound) {
			q.logger.Warn("Job not found for delay change",
				slog.String("queue", q.name),
				slog.String("job_id", id),
			)
			return nil
		}
		return fmt.Errorf("failed to change delay for job %s: %w", id, err)
	}

	q.logger.Info("Updated job delay",
		slog.String("queue", q.name),
		slog.String("job_id", id),
		slog.Duration("delay", delay),
	)
	q.publish(ctx, id, EventDelayed)
	return nil
}

// Remove cancels a not-yet-active job. Removing an unknown id is logged
// and ignored.
func (q *Queue) Remove(ctx context.Context, id string) error {
	removed, err := q.store.Delete(ctx, q.name, id)
	if err != nil {
		return fmt.Errorf("failed to remove job %s: %w", id, err)
	}

	if !removed {
		q.logger.Warn("Job not found for removal",
			slog.String("queue", q.name),
			slog.String("job_id", id),
		)
		return nil
	}

	q.logger.Info("Removed job from queue",
		slog.String("queue", q.name),
		slog.String("job_id", id),
	)
	return nil
}

// RemoveBulk removes several jobs, stopping at the first store error.
func (q *Queue) RemoveBulk(ctx context.Context, ids []string) error {
	for _, id := range ids {
		if err := q.Remove(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// Count reports jobs ready to run now.
func (q *Queue) Count(ctx context.Context) (int, error) {
	return q.store.ReadyCount(ctx, q.name, q.now())
}

// DelayedCount reports waiting jobs whose scheduled time is in the future.
func (q *Queue) DelayedCount(ctx context.Context) (int, error) {
	return q.store.DelayedCount(ctx, q.name, q.now())
}

// Claim hands the next eligible job to the worker, marking it active.
// Returns ErrNoJob when the queue has nothing ready.
func (q *Queue) Claim(ctx context.Context, workerID string) (*Job, error) {
	job, err := q.store.Claim(ctx, q.name, workerID, q.now())
	if err != nil {
		return nil, err
	}

	q.publish(ctx, job.ID, EventActive)
	return job, nil
}

// Heartbeat records liveness for an active job, deferring stall reclaim.
func (q *Queue) Heartbeat(ctx context.Context, id string) error {
	return q.store.Heartbeat(ctx, q.name, id, q.now())
}

// MarkCompleted finishes a job successfully and applies its completion
// retention policy.
func (q *Queue) MarkCompleted(ctx context.Context, job *Job) error {
	now := q.now()
	if err := q.store.MarkCompleted(ctx, q.name, job.ID, now); err != nil {
		return fmt.Errorf("failed to complete job %s: %w", job.ID, err)
	}

	if job.Opts.RemoveOnComplete.Immediate() {
		if _, err := q.store.Delete(ctx, q.name, job.ID); err != nil {
			q.logger.Warn("Failed to remove completed job",
				slog.String("queue", q.name),
				slog.String("job_id", job.ID),
				slog.Any("error", err),
			)
		}
	}

	q.publish(ctx, job.ID, EventCompleted)
	return nil
}

// MarkFailed records a failed attempt. While attempts remain the job is
// re-scheduled per its backoff policy; otherwise it is dead-lettered per
// its failure retention policy. A PermanentError skips the retry cycle
// and dead-letters at once. Reports whether the job is now dead.
func (q *Queue) MarkFailed(ctx context.Context, job *Job, procErr error) (bool, error) {
	now := q.now()
	attempt := job.AttemptsMade + 1

	if attempt < job.Opts.Attempts && !IsPermanent(procErr) {
		nextRun := now.Add(job.Opts.Backoff.NextDelay(attempt))
		if err := q.store.MarkFailed(ctx, q.name, job.ID, procErr.Error(), &nextRun, now); err != nil {
			return false, fmt.Errorf("failed to re-schedule job %s: %w", job.ID, err)
		}

		q.logger.Info("Job will be retried",
			slog.String("queue", q.name),
			slog.String("job_id", job.ID),
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", job.Opts.Attempts),
			slog.Time("next_run", nextRun),
		)
		q.publish(ctx, job.ID, EventDelayed)
		return false, nil
	}

	if err := q.store.MarkFailed(ctx, q.name, job.ID, procErr.Error(), nil, now); err != nil {
		return false, fmt.Errorf("failed to dead-letter job %s: %w", job.ID, err)
	}

	q.logger.Warn("Job dead-lettered",
		slog.String("queue", q.name),
		slog.String("job_id", job.ID),
		slog.Int("attempts", attempt),
		slog.String("error", procErr.Error()),
	)

	if job.Opts.RemoveOnFail.Immediate() {
		if _, err := q.store.Delete(ctx, q.name, job.ID); err != nil {
			q.logger.Warn("Failed to remove dead job",
				slog.String("queue", q.name),
				slog.String("job_id", job.ID),
				slog.Any("error", err),
			)
		}
	}

	q.publish(ctx, job.ID, EventFailed)
	return true, nil
}

// ReclaimStalled recycles active jobs whose workers stopped heartbeating.
func (q *Queue) ReclaimStalled(ctx context.Context) (int, error) {
	ids, err := q.store.ReclaimStalled(ctx, q.name, q.now())
	if err != nil {
		return 0, fmt.Errorf("failed to reclaim stalled jobs: %w", err)
	}

	for _, id := range ids {
		q.logger.Warn("Reclaimed stalled job",
			slog.String("queue", q.name),
			slog.String("job_id", id),
		)
		q.publish(ctx, id, EventWaiting)
	}

	return len(ids), nil
}

// Sweep enforces retention age/count bounds on terminal jobs.
func (q *Queue) Sweep(ctx context.Context) (int, error) {
	return q.store.Sweep(ctx, q.name, q.now())
}

func (q *Queue) publish(ctx context.Context, jobID, event string) {
	if q.events == nil {
		return
	}

	err := q.events.PublishJobEvent(ctx, Event{Queue: q.name, JobID: jobID, Type: event})
	if err != nil {
		q.logger.Warn("Failed to publish queue event",
			slog.String("queue", q.name),
			slog.String("job_id", jobID),
			slog.String("event", event),
			slog.Any("error", err),
		)
	}
}
