package queue

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memStore is an in-memory Store for exercising queue semantics without a
// database. Mutations take the value, not the pointer, so the queue cannot
// observe later edits.
type memStore struct {
	mu   sync.Mutex
	jobs map[string]*Job
}

func newMemStore() *memStore {
	return &memStore{jobs: make(map[string]*Job)}
}

func (s *memStore) Insert(_ context.Context, job *Job) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[job.ID]; ok {
		return false, nil
	}
	copied := *job
	s.jobs[job.ID] = &copied
	return true, nil
}

func (s *memStore) Get(_ context.Context, _, id string) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	copied := *job
	return &copied, nil
}

func (s *memStore) UpdateScheduledAt(_ context.Context, _, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok || job.Status != JobStatusWaiting {
		return ErrJobNotFound
	}
	job.ScheduledAt = at
	return nil
}

func (s *memStore) Delete(_ context.Context, _, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[id]; !ok {
		return false, nil
	}
	delete(s.jobs, id)
	return true, nil
}

func (s *memStore) ReadyCount(_ context.Context, _ string, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, job := range s.jobs {
		if job.Status == JobStatusWaiting && !job.ScheduledAt.After(now) {
			count++
		}
	}
	return count, nil
}

func (s *memStore) DelayedCount(_ context.Context, _ string, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, job := range s.jobs {
		if job.Status == JobStatusWaiting && job.ScheduledAt.After(now) {
			count++
		}
	}
	return count, nil
}

func (s *memStore) Claim(_ context.Context, _, workerID string, now time.Time) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var eligible []*Job
	for _, job := range s.jobs {
		if job.Status == JobStatusWaiting && !job.ScheduledAt.After(now) {
			eligible = append(eligible, job)
		}
	}
	if len(eligible) == 0 {
		return nil, ErrNoJob
	}

	sort.Slice(eligible, func(i, j int) bool {
		if !eligible[i].ScheduledAt.Equal(eligible[j].ScheduledAt) {
			return eligible[i].ScheduledAt.Before(eligible[j].ScheduledAt)
		}
		if eligible[i].Priority != eligible[j].Priority {
			return eligible[i].Priority < eligible[j].Priority
		}
		return eligible[i].CreatedAt.Before(eligible[j].CreatedAt)
	})

	job := eligible[0]
	job.Status = JobStatusActive
	job.WorkerID = workerID
	hb := now
	job.LastHeartbeatAt = &hb

	copied := *job
	return &copied, nil
}

func (s *memStore) Heartbeat(_ context.Context, _, id string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	hb := now
	job.LastHeartbeatAt = &hb
	return nil
}

func (s *memStore) MarkCompleted(_ context.Context, _, id string, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	job.Status = JobStatusCompleted
	return nil
}

func (s *memStore) MarkFailed(_ context.Context, _, id, lastError string, nextRun *time.Time, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return ErrJobNotFound
	}

	job.LastError = lastError
	if nextRun != nil {
		job.Status = JobStatusWaiting
		job.ScheduledAt = *nextRun
		job.AttemptsMade++
		job.WorkerID = ""
		return nil
	}
	job.Status = JobStatusFailed
	return nil
}

func (s *memStore) ReclaimStalled(_ context.Context, _ string, now time.Time) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ids []string
	for _, job := range s.jobs {
		if job.Status != JobStatusActive || job.LastHeartbeatAt == nil {
			continue
		}
		if job.LastHeartbeatAt.Add(job.Opts.StallInterval).Before(now) {
			job.Status = JobStatusWaiting
			job.WorkerID = ""
			ids = append(ids, job.ID)
		}
	}
	return ids, nil
}

func (s *memStore) Sweep(_ context.Context, _ string, _ time.Time) (int, error) {
	return 0, nil
}

// recordingEvents captures every published event type in order.
type recordingEvents struct {
	mu     sync.Mutex
	events []string
	err    error
}

func (r *recordingEvents) PublishJobEvent(_ context.Context, event Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event.Type)
	return r.err
}

func (r *recordingEvents) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestQueue(store Store, events EventPublisher) *Queue {
	return New("notifications", store, events, testLogger())
}

func TestQueue_Add(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		opts      Options
		wantEvent string
		wantAt    time.Time
	}{
		{
			name:      "immediate job publishes waiting",
			opts:      Options{},
			wantEvent: EventWaiting,
			wantAt:    base,
		},
		{
			name:      "delayed job publishes delayed",
			opts:      Options{Delay: 5 * time.Minute},
			wantEvent: EventDelayed,
			wantAt:    base.Add(5 * time.Minute),
		},
		{
			name:      "scheduled time wins over delay",
			opts:      Options{Delay: 5 * time.Minute, ScheduledAt: base.Add(time.Hour)},
			wantEvent: EventDelayed,
			wantAt:    base.Add(time.Hour),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemStore()
			events := &recordingEvents{}
			q := newTestQueue(store, events)
			q.now = func() time.Time { return base }

			job, err := q.Add(context.Background(), "send-email", Payload{}, tt.opts)
			require.NoError(t, err)

			assert.NotEmpty(t, job.ID)
			assert.Equal(t, JobStatusWaiting, job.Status)
			assert.Equal(t, tt.wantAt, job.ScheduledAt)
			assert.Equal(t, []string{tt.wantEvent}, events.all())
		})
	}
}

func TestQueue_AddAppliesDefaults(t *testing.T) {
	q := newTestQueue(newMemStore(), nil)

	job, err := q.Add(context.Background(), "send-email", Payload{}, Options{})
	require.NoError(t, err)

	assert.Equal(t, DefaultMaxAttempts, job.Opts.Attempts)
	assert.Equal(t, BackoffFixed, job.Opts.Backoff.Type)
	assert.Equal(t, DefaultBackoffDelay, job.Opts.Backoff.Delay)
	assert.Equal(t, DefaultStallInterval, job.Opts.StallInterval)
	assert.Equal(t, DefaultJobTimeout, job.Opts.Timeout)
}

func TestQueue_AddDuplicateJobID(t *testing.T) {
	store := newMemStore()
	events := &recordingEvents{}
	q := newTestQueue(store, events)

	first, err := q.Add(context.Background(), "send-email", Payload{Body: "first"}, Options{JobID: "n1:a@example.com"})
	require.NoError(t, err)

	// Re-adding the same id must not create a second job or publish
	// again, and the caller sees the job as it is actually queued.
	second, err := q.Add(context.Background(), "send-email", Payload{Body: "second"}, Options{JobID: "n1:a@example.com", Priority: 9})
	require.NoError(t, err)
	assert.Equal(t, "first", second.Payload.Body)
	assert.Equal(t, first.Priority, second.Priority)

	stored, err := q.GetJob(context.Background(), first.ID)
	require.NoError(t, err)
	assert.Equal(t, "first", stored.Payload.Body)
	assert.Equal(t, []string{EventWaiting}, events.all())
}

func TestQueue_ClaimOrdering(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store := newMemStore()
	q := newTestQueue(store, nil)

	clock := base
	q.now = func() time.Time { return clock }

	_, err := q.Add(context.Background(), "send-email", Payload{}, Options{JobID: "low", Priority: 5})
	require.NoError(t, err)
	_, err = q.Add(context.Background(), "send-email", Payload{}, Options{JobID: "urgent", Priority: 1})
	require.NoError(t, err)
	clock = clock.Add(time.Second)
	_, err = q.Add(context.Background(), "send-email", Payload{}, Options{JobID: "future", Delay: time.Hour})
	require.NoError(t, err)

	// Same scheduled window: lower priority value goes first.
	job, err := q.Claim(context.Background(), "worker-1")
	require.NoError(t, err)
	assert.Equal(t, "urgent", job.ID)
	assert.Equal(t, JobStatusActive, job.Status)
	assert.Equal(t, "worker-1", job.WorkerID)

	job, err = q.Claim(context.Background(), "worker-1")
	require.NoError(t, err)
	assert.Equal(t, "low", job.ID)

	// The delayed job is not eligible yet.
	_, err = q.Claim(context.Background(), "worker-1")
	assert.ErrorIs(t, err, ErrNoJob)

	clock = clock.Add(2 * time.Hour)
	job, err = q.Claim(context.Background(), "worker-1")
	require.NoError(t, err)
	assert.Equal(t, "future", job.ID)
}

func TestQueue_Counts(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	q := newTestQueue(newMemStore(), nil)
	q.now = func() time.Time { return base }

	for _, opts := range []Options{
		{JobID: "r1"},
		{JobID: "r2"},
		{JobID: "d1", Delay: time.Minute},
	} {
		_, err := q.Add(context.Background(), "send-email", Payload{}, opts)
		require.NoError(t, err)
	}

	ready, err := q.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, ready)

	delayed, err := q.DelayedCount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, delayed)
}

func TestQueue_MarkFailed(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	t.Run("retries with backoff while attempts remain", func(t *testing.T) {
		store := newMemStore()
		events := &recordingEvents{}
		q := newTestQueue(store, events)
		q.now = func() time.Time { return base }

		_, err := q.Add(context.Background(), "send-email", Payload{}, Options{
			JobID:    "j1",
			Attempts: 3,
			Backoff:  Backoff{Type: BackoffExponential, Delay: time.Minute},
		})
		require.NoError(t, err)

		job, err := q.Claim(context.Background(), "worker-1")
		require.NoError(t, err)

		dead, err := q.MarkFailed(context.Background(), job, errors.New("provider timeout"))
		require.NoError(t, err)
		assert.False(t, dead)

		stored, err := q.GetJob(context.Background(), "j1")
		require.NoError(t, err)
		assert.Equal(t, JobStatusWaiting, stored.Status)
		assert.Equal(t, 1, stored.AttemptsMade)
		assert.Equal(t, "provider timeout", stored.LastError)
		assert.Equal(t, base.Add(time.Minute), stored.ScheduledAt)
		assert.Equal(t, JobStateDelayed, stored.State(base))

		assert.Equal(t, []string{EventWaiting, EventActive, EventDelayed}, events.all())
	})

	t.Run("dead-letters on the final attempt", func(t *testing.T) {
		store := newMemStore()
		events := &recordingEvents{}
		q := newTestQueue(store, events)
		q.now = func() time.Time { return base }

		_, err := q.Add(context.Background(), "send-email", Payload{}, Options{JobID: "j1", Attempts: 1})
		require.NoError(t, err)

		job, err := q.Claim(context.Background(), "worker-1")
		require.NoError(t, err)

		dead, err := q.MarkFailed(context.Background(), job, errors.New("hard bounce"))
		require.NoError(t, err)
		assert.True(t, dead)

		stored, err := q.GetJob(context.Background(), "j1")
		require.NoError(t, err)
		assert.Equal(t, JobStatusFailed, stored.Status)
		assert.Equal(t, "hard bounce", stored.LastError)
		assert.Equal(t, []string{EventWaiting, EventActive, EventFailed}, events.all())
	})

	t.Run("dead-letters a permanent error on the first attempt", func(t *testing.T) {
		store := newMemStore()
		events := &recordingEvents{}
		q := newTestQueue(store, events)
		q.now = func() time.Time { return base }

		_, err := q.Add(context.Background(), "send-email", Payload{}, Options{JobID: "j1", Attempts: 3})
		require.NoError(t, err)

		job, err := q.Claim(context.Background(), "worker-1")
		require.NoError(t, err)

		dead, err := q.MarkFailed(context.Background(), job, NewPermanentError(errors.New("unknown provider")))
		require.NoError(t, err)
		assert.True(t, dead)

		stored, err := q.GetJob(context.Background(), "j1")
		require.NoError(t, err)
		assert.Equal(t, JobStatusFailed, stored.Status)
		assert.Equal(t, []string{EventWaiting, EventActive, EventFailed}, events.all())
	})

	t.Run("dead-letter with immediate removal deletes the job", func(t *testing.T) {
		store := newMemStore()
		q := newTestQueue(store, nil)

		_, err := q.Add(context.Background(), "send-email", Payload{}, Options{
			JobID:        "j1",
			Attempts:     1,
			RemoveOnFail: Retention{Remove: true},
		})
		require.NoError(t, err)

		job, err := q.Claim(context.Background(), "worker-1")
		require.NoError(t, err)

		dead, err := q.MarkFailed(context.Background(), job, errors.New("hard bounce"))
		require.NoError(t, err)
		assert.True(t, dead)

		_, err = q.GetJob(context.Background(), "j1")
		assert.ErrorIs(t, err, ErrJobNotFound)
	})
}

func TestQueue_MarkCompleted(t *testing.T) {
	t.Run("keeps the job when retention is bounded", func(t *testing.T) {
		store := newMemStore()
		events := &recordingEvents{}
		q := newTestQueue(store, events)

		_, err := q.Add(context.Background(), "send-email", Payload{}, Options{
			JobID:            "j1",
			RemoveOnComplete: Retention{Remove: true, Count: 100},
		})
		require.NoError(t, err)

		job, err := q.Claim(context.Background(), "worker-1")
		require.NoError(t, err)

		require.NoError(t, q.MarkCompleted(context.Background(), job))

		stored, err := q.GetJob(context.Background(), "j1")
		require.NoError(t, err)
		assert.Equal(t, JobStatusCompleted, stored.Status)
		assert.Equal(t, []string{EventWaiting, EventActive, EventCompleted}, events.all())
	})

	t.Run("removes the job immediately when asked", func(t *testing.T) {
		store := newMemStore()
		q := newTestQueue(store, nil)

		_, err := q.Add(context.Background(), "send-email", Payload{}, Options{
			JobID:            "j1",
			RemoveOnComplete: Retention{Remove: true},
		})
		require.NoError(t, err)

		job, err := q.Claim(context.Background(), "worker-1")
		require.NoError(t, err)

		require.NoError(t, q.MarkCompleted(context.Background(), job))

		_, err = q.GetJob(context.Background(), "j1")
		assert.ErrorIs(t, err, ErrJobNotFound)
	})
}

func TestQueue_ChangeDelay(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store := newMemStore()
	events := &recordingEvents{}
	q := newTestQueue(store, events)
	q.now = func() time.Time { return base }

	_, err := q.Add(context.Background(), "send-email", Payload{}, Options{JobID: "j1"})
	require.NoError(t, err)

	require.NoError(t, q.ChangeDelay(context.Background(), "j1", 10*time.Minute))

	stored, err := q.GetJob(context.Background(), "j1")
	require.NoError(t, err)
	assert.Equal(t, base.Add(10*time.Minute), stored.ScheduledAt)
	assert.Equal(t, JobStateDelayed, stored.State(base))

	// Unknown ids are a logged no-op.
	assert.NoError(t, q.ChangeDelay(context.Background(), "ghost", time.Minute))
}

func TestQueue_Remove(t *testing.T) {
	store := newMemStore()
	q := newTestQueue(store, nil)

	_, err := q.Add(context.Background(), "send-email", Payload{}, Options{JobID: "j1"})
	require.NoError(t, err)
	_, err = q.Add(context.Background(), "send-email", Payload{}, Options{JobID: "j2"})
	require.NoError(t, err)

	require.NoError(t, q.RemoveBulk(context.Background(), []string{"j1", "j2", "ghost"}))

	_, err = q.GetJob(context.Background(), "j1")
	assert.ErrorIs(t, err, ErrJobNotFound)
	_, err = q.GetJob(context.Background(), "j2")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestQueue_ReclaimStalled(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store := newMemStore()
	events := &recordingEvents{}
	q := newTestQueue(store, events)

	clock := base
	q.now = func() time.Time { return clock }

	_, err := q.Add(context.Background(), "send-email", Payload{}, Options{
		JobID:         "j1",
		StallInterval: 30 * time.Second,
	})
	require.NoError(t, err)

	_, err = q.Claim(context.Background(), "worker-1")
	require.NoError(t, err)

	// Still within the stall interval, nothing to reclaim.
	clock = base.Add(10 * time.Second)
	reclaimed, err := q.ReclaimStalled(context.Background())
	require.NoError(t, err)
	assert.Zero(t, reclaimed)

	// A heartbeat pushes the deadline out.
	require.NoError(t, q.Heartbeat(context.Background(), "j1"))
	clock = base.Add(35 * time.Second)
	reclaimed, err = q.ReclaimStalled(context.Background())
	require.NoError(t, err)
	assert.Zero(t, reclaimed)

	// Silence past the interval recycles the job.
	clock = base.Add(2 * time.Minute)
	reclaimed, err = q.ReclaimStalled(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, reclaimed)

	stored, err := q.GetJob(context.Background(), "j1")
	require.NoError(t, err)
	assert.Equal(t, JobStatusWaiting, stored.Status)
	assert.Empty(t, stored.WorkerID)
}

func TestQueue_PublishErrorDoesNotFailAdd(t *testing.T) {
	events := &recordingEvents{err: errors.New("broker down")}
	q := newTestQueue(newMemStore(), events)

	job, err := q.Add(context.Background(), "send-email", Payload{}, Options{JobID: "j1"})
	require.NoError(t, err)

	stored, err := q.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobStatusWaiting, stored.Status)
}

func TestBackoff_NextDelay(t *testing.T) {
	tests := []struct {
		name    string
		backoff Backoff
		attempt int
		want    time.Duration
	}{
		{"fixed first attempt", Backoff{Type: BackoffFixed, Delay: time.Minute}, 1, time.Minute},
		{"fixed later attempt", Backoff{Type: BackoffFixed, Delay: time.Minute}, 4, time.Minute},
		{"exponential first attempt", Backoff{Type: BackoffExponential, Delay: time.Minute}, 1, time.Minute},
		{"exponential second attempt", Backoff{Type: BackoffExponential, Delay: time.Minute}, 2, 2 * time.Minute},
		{"exponential fourth attempt", Backoff{Type: BackoffExponential, Delay: time.Minute}, 4, 8 * time.Minute},
		{"zero attempt clamps to one", Backoff{Type: BackoffExponential, Delay: time.Minute}, 0, time.Minute},
		{"zero delay falls back to default", Backoff{Type: BackoffFixed}, 1, DefaultBackoffDelay},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.backoff.NextDelay(tt.attempt))
		})
	}
}
