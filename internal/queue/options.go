package queue

import "time"

// Backoff strategy types.
const (
	BackoffFixed       = "fixed"
	BackoffExponential = "exponential"
)

// Default scheduling attributes applied when options leave them zero.
const (
	DefaultMaxAttempts   = 3
	DefaultBackoffDelay  = time.Minute
	DefaultStallInterval = 30 * time.Second
	DefaultJobTimeout    = time.Minute
)

// Backoff describes the delay strategy between retry attempts.
type Backoff struct {
	Type  string
	Delay time.Duration
}

// NextDelay computes the delay before the given retry attempt (1-based).
// Fixed backoff always waits the base delay; exponential doubles it per
// prior attempt.
func (b Backoff) NextDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	delay := b.Delay
	if delay <= 0 {
		delay = DefaultBackoffDelay
	}

	if b.Type == BackoffExponential {
		return delay * time.Duration(1<<uint(attempt-1))
	}
	return delay
}

// Retention governs cleanup of a terminal job. The zero value keeps the job
// indefinitely; Remove with no Age/Count deletes it at the terminal
// transition; Age and Count bound how long and how many terminal jobs are
// retained by the sweep.
type Retention struct {
	Remove bool          `json:"remove,omitempty"`
	Age    time.Duration `json:"age,omitempty"`
	Count  int           `json:"count,omitempty"`
}

// Immediate reports whether the job should be deleted as soon as it reaches
// its terminal state.
func (r Retention) Immediate() bool {
	return r.Remove && r.Age == 0 && r.Count == 0
}

// Options are the caller-controlled scheduling attributes of a job.
type Options struct {
	// JobID deduplicates: re-adding an existing id is a no-op.
	JobID string

	// Delay postpones eligibility relative to enqueue time. ScheduledAt
	// anchors it to the wall clock instead; when both are set ScheduledAt
	// wins.
	Delay       time.Duration
	ScheduledAt time.Time

	// Priority orders eligible jobs; lower is more urgent.
	Priority int

	Attempts int
	Backoff  Backoff

	// StallInterval is how long an active job may go without a heartbeat
	// before it is considered stuck and recycled.
	StallInterval time.Duration

	// Timeout is the hard bound on one processing attempt.
	Timeout time.Duration

	RemoveOnComplete Retention
	RemoveOnFail     Retention
}

func (o *Options) applyDefaults() {
	if o.Attempts <= 0 {
		o.Attempts = DefaultMaxAttempts
	}
	if o.Backoff.Type == "" {
		o.Backoff.Type = BackoffFixed
	}
	if o.Backoff.Delay <= 0 {
		o.Backoff.Delay = DefaultBackoffDelay
	}
	if o.StallInterval <= 0 {
		o.StallInterval = DefaultStallInterval
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultJobTimeout
	}
}

// eligibleAt resolves Delay/ScheduledAt into one wall-clock eligibility time.
func (o *Options) eligibleAt(now time.Time) time.Time {
	if !o.ScheduledAt.IsZero() {
		return o.ScheduledAt
	}
	if o.Delay > 0 {
		return now.Add(o.Delay)
	}
	return now
}
