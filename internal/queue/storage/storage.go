package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/qtbui/notification-dispatch/internal/queue"
)

// Storage is the PostgreSQL queue backend. Claims rely on
// FOR UPDATE SKIP LOCKED so concurrent workers never receive the same job.
type Storage struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStorage creates a queue store over the given database handle.
func NewStorage(db *sqlx.DB, logger *slog.Logger) *Storage {
	return &Storage{
		db:     db,
		logger: logger,
	}
}

// jobRow is the flat database shape of a queue.Job.
type jobRow struct {
	Queue           string         `db:"queue"`
	JobID           string         `db:"job_id"`
	Name            string         `db:"name"`
	Payload         []byte         `db:"payload"`
	Priority        int            `db:"priority"`
	ScheduledAt     time.Time      `db:"scheduled_at"`
	Status          string         `db:"status"`
	AttemptsMade    int            `db:"attempts_made"`
	MaxAttempts     int            `db:"max_attempts"`
	BackoffType     string         `db:"backoff_type"`
	BackoffDelayMs  int64          `db:"backoff_delay_ms"`
	StallIntervalMs int64          `db:"stall_interval_ms"`
	TimeoutMs       int64          `db:"timeout_ms"`
	RocRemove       bool           `db:"roc_remove"`
	RocAgeMs        int64          `db:"roc_age_ms"`
	RocCount        int            `db:"roc_count"`
	RofRemove       bool           `db:"rof_remove"`
	RofAgeMs        int64          `db:"rof_age_ms"`
	RofCount        int            `db:"rof_count"`
	WorkerID        sql.NullString `db:"worker_id"`
	LastError       sql.NullString `db:"last_error"`
	LastHeartbeatAt sql.NullTime   `db:"last_heartbeat_at"`
	CreatedAt       time.Time      `db:"created_at"`
	UpdatedAt       time.Time      `db:"updated_at"`
}

const jobColumns = `
	queue, job_id, name, payload, priority, scheduled_at, status,
	attempts_made, max_attempts, backoff_type, backoff_delay_ms,
	stall_interval_ms, timeout_ms,
	roc_remove, roc_age_ms, roc_count, rof_remove, rof_age_ms, rof_count,
	worker_id, last_error, last_heartbeat_at, created_at, updated_at
`

func (r *jobRow) toJob() (*queue.Job, error) {
	var payload queue.Payload
	if len(r.Payload) > 0 {
		if err := json.Unmarshal(r.Payload, &payload); err != nil {
			return nil, fmt.Errorf("failed to decode job payload: %w", err)
		}
	}

	job := &queue.Job{
		ID:           r.JobID,
		Queue:        r.Queue,
		Name:         r.Name,
		Payload:      payload,
		Priority:     r.Priority,
		ScheduledAt:  r.ScheduledAt,
		Status:       r.Status,
		AttemptsMade: r.AttemptsMade,
		Opts: queue.Options{
			JobID:    r.JobID,
			Priority: r.Priority,
			Attempts: r.MaxAttempts,
			Backoff: queue.Backoff{
				Type:  r.BackoffType,
				Delay: time.Duration(r.BackoffDelayMs) * time.Millisecond,
			},
			StallInterval: time.Duration(r.StallIntervalMs) * time.Millisecond,
			Timeout:       time.Duration(r.TimeoutMs) * time.Millisecond,
			RemoveOnComplete: queue.Retention{
				Remove: r.RocRemove,
				Age:    time.Duration(r.RocAgeMs) * time.Millisecond,
				Count:  r.RocCount,
			},
			RemoveOnFail: queue.Retention{
				Remove: r.RofRemove,
				Age:    time.Duration(r.RofAgeMs) * time.Millisecond,
				Count:  r.RofCount,
			},
		},
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}

	if r.WorkerID.Valid {
		job.WorkerID = r.WorkerID.String
	}
	if r.LastError.Valid {
		job.LastError = r.LastError.String
	}
	if r.LastHeartbeatAt.Valid {
		hb := r.LastHeartbeatAt.Time
		job.LastHeartbeatAt = &hb
	}

	return job, nil
}

// Insert adds a job row. A duplicate (queue, job_id) is reported as not
// inserted, keeping enqueue idempotent.
func (s *Storage) Insert(ctx context.Context, job *queue.Job) (bool, error) {
	payload, err := json.Marshal(job.Payload)
	if err != nil {
		return false, fmt.Errorf("failed to encode job payload: %w", err)
	}

	query := `
		INSERT INTO queue_jobs (` + jobColumns + `)
		VALUES (
			$1, $2, $3, $4, $5, $6, $7,
			$8, $9, $10, $11,
			$12, $13,
			$14, $15, $16, $17, $18, $19,
			NULL, NULL, NULL, $20, $21
		)
		ON CONFLICT (queue, job_id) DO NOTHING
	`

	res, err := s.db.ExecContext(
		ctx,
		query,
		job.Queue,
		job.ID,
		job.Name,
		payload,
		job.Priority,
		job.ScheduledAt,
		job.Status,
		job.AttemptsMade,
		job.Opts.Attempts,
		job.Opts.Backoff.Type,
		job.Opts.Backoff.Delay.Milliseconds(),
		job.Opts.StallInterval.Milliseconds(),
		job.Opts.Timeout.Milliseconds(),
		job.Opts.RemoveOnComplete.Remove,
		job.Opts.RemoveOnComplete.Age.Milliseconds(),
		job.Opts.RemoveOnComplete.Count,
		job.Opts.RemoveOnFail.Remove,
		job.Opts.RemoveOnFail.Age.Milliseconds(),
		job.Opts.RemoveOnFail.Count,
		job.CreatedAt,
		job.UpdatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert job: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read insert result: %w", err)
	}

	return affected > 0, nil
}

// Get fetches one job by id.
func (s *Storage) Get(ctx context.Context, queueName, id string) (*queue.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM queue_jobs WHERE queue = $1 AND job_id = $2`

	var row jobRow
	if err := s.db.GetContext(ctx, &row, query, queueName, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, queue.ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	return row.toJob()
}

// UpdateScheduledAt re-schedules a waiting job. Active and terminal jobs
// cannot be re-scheduled.
func (s *Storage) UpdateScheduledAt(ctx context.Context, queueName, id string, at time.Time) error {
	query := `
		UPDATE queue_jobs
		SET scheduled_at = $1, updated_at = $1
		WHERE queue = $2 AND job_id = $3 AND status = $4
	`

	res, err := s.db.ExecContext(ctx, query, at, queueName, id, queue.JobStatusWaiting)
	if err != nil {
		return fmt.Errorf("failed to update job schedule: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read update result: %w", err)
	}
	if affected == 0 {
		return queue.ErrJobNotFound
	}

	return nil
}

// Delete removes a non-active job.
func (s *Storage) Delete(ctx context.Context, queueName, id string) (bool, error) {
	query := `DELETE FROM queue_jobs WHERE queue = $1 AND job_id = $2 AND status <> $3`

	res, err := s.db.ExecContext(ctx, query, queueName, id, queue.JobStatusActive)
	if err != nil {
		return false, fmt.Errorf("failed to delete job: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read delete result: %w", err)
	}

	return affected > 0, nil
}

// ReadyCount reports waiting jobs whose scheduled time has arrived.
func (s *Storage) ReadyCount(ctx context.Context, queueName string, now time.Time) (int, error) {
	query := `
		SELECT COUNT(*) FROM queue_jobs
		WHERE queue = $1 AND status = $2 AND scheduled_at <= $3
	`

	var count int
	if err := s.db.GetContext(ctx, &count, query, queueName, queue.JobStatusWaiting, now); err != nil {
		return 0, fmt.Errorf("failed to count ready jobs: %w", err)
	}

	return count, nil
}

// DelayedCount reports waiting jobs scheduled in the future.
func (s *Storage) DelayedCount(ctx context.Context, queueName string, now time.Time) (int, error) {
	query := `
		SELECT COUNT(*) FROM queue_jobs
		WHERE queue = $1 AND status = $2 AND scheduled_at > $3
	`

	var count int
	if err := s.db.GetContext(ctx, &count, query, queueName, queue.JobStatusWaiting, now); err != nil {
		return 0, fmt.Errorf("failed to count delayed jobs: %w", err)
	}

	return count, nil
}

// Claim hands the next eligible job to the worker. SKIP LOCKED guarantees
// exactly-one-claimer under concurrent workers.
func (s *Storage) Claim(ctx context.Context, queueName, workerID string, now time.Time) (*queue.Job, error) {
	query := `
		UPDATE queue_jobs
		SET status = $1,
		    worker_id = $2,
		    last_heartbeat_at = $3,
		    updated_at = $3
		WHERE (queue, job_id) = (
			SELECT queue, job_id FROM queue_jobs
			WHERE queue = $4 AND status = $5 AND scheduled_at <= $3
			ORDER BY scheduled_at, priority, created_at
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + jobColumns

	var row jobRow
	err := s.db.GetContext(ctx, &row, query, queue.JobStatusActive, workerID, now, queueName, queue.JobStatusWaiting)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, queue.ErrNoJob
		}
		return nil, fmt.Errorf("failed to claim job: %w", err)
	}

	job, err := row.toJob()
	if err != nil {
		return nil, err
	}

	s.logger.Debug("Job claimed",
		slog.String("queue", queueName),
		slog.String("job_id", job.ID),
		slog.String("worker_id", workerID),
	)

	return job, nil
}

// Heartbeat records liveness for an active job.
func (s *Storage) Heartbeat(ctx context.Context, queueName, id string, now time.Time) error {
	query := `
		UPDATE queue_jobs
		SET last_heartbeat_at = $1, updated_at = $1
		WHERE queue = $2 AND job_id = $3 AND status = $4
	`

	if _, err := s.db.ExecContext(ctx, query, now, queueName, id, queue.JobStatusActive); err != nil {
		return fmt.Errorf("failed to update job heartbeat: %w", err)
	}

	return nil
}

// MarkCompleted finishes a job successfully.
func (s *Storage) MarkCompleted(ctx context.Context, queueName, id string, now time.Time) error {
	query := `
		UPDATE queue_jobs
		SET status = $1, worker_id = NULL, completed_at = $2, updated_at = $2
		WHERE queue = $3 AND job_id = $4
	`

	if _, err := s.db.ExecContext(ctx, query, queue.JobStatusCompleted, now, queueName, id); err != nil {
		return fmt.Errorf("failed to mark job completed: %w", err)
	}

	return nil
}

// MarkFailed records a failed attempt, either re-scheduling the job or
// dead-lettering it.
func (s *Storage) MarkFailed(ctx context.Context, queueName, id, lastError string, nextRun *time.Time, now time.Time) error {
	if nextRun != nil {
		query := `
			UPDATE queue_jobs
			SET status = $1,
			    attempts_made = attempts_made + 1,
			    last_error = $2,
			    worker_id = NULL,
			    last_heartbeat_at = NULL,
			    scheduled_at = $3,
			    updated_at = $4
			WHERE queue = $5 AND job_id = $6
		`

		if _, err := s.db.ExecContext(ctx, query, queue.JobStatusWaiting, lastError, *nextRun, now, queueName, id); err != nil {
			return fmt.Errorf("failed to re-schedule job: %w", err)
		}
		return nil
	}

	query := `
		UPDATE queue_jobs
		SET status = $1,
		    attempts_made = attempts_made + 1,
		    last_error = $2,
		    worker_id = NULL,
		    last_heartbeat_at = NULL,
		    completed_at = $3,
		    updated_at = $3
		WHERE queue = $4 AND job_id = $5
	`

	if _, err := s.db.ExecContext(ctx, query, queue.JobStatusFailed, lastError, now, queueName, id); err != nil {
		return fmt.Errorf("failed to dead-letter job: %w", err)
	}

	return nil
}

// ReclaimStalled recycles active jobs whose heartbeat exceeded their stall
// interval.
func (s *Storage) ReclaimStalled(ctx context.Context, queueName string, now time.Time) ([]string, error) {
	query := `
		UPDATE queue_jobs
		SET status = $1,
		    worker_id = NULL,
		    last_heartbeat_at = NULL,
		    scheduled_at = $2,
		    updated_at = $2
		WHERE queue = $3 AND status = $4
		  AND last_heartbeat_at + stall_interval_ms * interval '1 millisecond' < $2
		RETURNING job_id
	`

	var ids []string
	if err := s.db.SelectContext(ctx, &ids, query, queue.JobStatusWaiting, now, queueName, queue.JobStatusActive); err != nil {
		return nil, fmt.Errorf("failed to reclaim stalled jobs: %w", err)
	}

	return ids, nil
}

// Sweep deletes terminal jobs past their retention age or beyond their
// retention count, newest kept first.
func (s *Storage) Sweep(ctx context.Context, queueName string, now time.Time) (int, error) {
	agedQuery := `
		DELETE FROM queue_jobs
		WHERE queue = $1
		  AND (
			(status = $2 AND roc_age_ms > 0
			 AND completed_at + roc_age_ms * interval '1 millisecond' < $4)
			OR
			(status = $3 AND rof_age_ms > 0
			 AND completed_at + rof_age_ms * interval '1 millisecond' < $4)
		  )
	`

	res, err := s.db.ExecContext(ctx, agedQuery, queueName, queue.JobStatusCompleted, queue.JobStatusFailed, now)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep aged jobs: %w", err)
	}

	aged, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read sweep result: %w", err)
	}

	countQuery := `
		DELETE FROM queue_jobs
		WHERE (queue, job_id) IN (
			SELECT queue, job_id FROM (
				SELECT queue, job_id,
				       CASE WHEN status = $2 THEN roc_count ELSE rof_count END AS keep,
				       ROW_NUMBER() OVER (
					       PARTITION BY queue, status ORDER BY completed_at DESC
				       ) AS rn
				FROM queue_jobs
				WHERE queue = $1 AND status IN ($2, $3)
			) ranked
			WHERE keep > 0 AND rn > keep
		)
	`

	res, err = s.db.ExecContext(ctx, countQuery, queueName, queue.JobStatusCompleted, queue.JobStatusFailed)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep excess jobs: %w", err)
	}

	excess, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read sweep result: %w", err)
	}

	total := int(aged + excess)
	if total > 0 {
		s.logger.Debug("Retention sweep removed jobs",
			slog.String("queue", queueName),
			slog.Int("count", total),
		)
	}

	return total, nil
}
