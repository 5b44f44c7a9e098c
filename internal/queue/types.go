package queue

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"
)

// Queue names
const (
	QueuePaymentStatus    = "payment_status"
	QueueDonationConfirm  = "donation_confirm"
	DefaultRetryCount     = 3
	DefaultTTL            = 24 * time.Hour
	defaultDequeueTimeout = time.Second
)

// JobStatus represents the status of a job
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Job is a unit of background work stored in Redis
type Job struct {
	ID         string          `json:"id"`
	Queue      string          `json:"queue"`
	Payload    json.RawMessage `json:"payload"`
	Status     JobStatus       `json:"status"`
	RetryCount int             `json:"retry_count"`
	MaxRetries int             `json:"max_retries"`
	LastError  string          `json:"last_error,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
	RunAt      time.Time       `json:"run_at"`

	unique bool
}

// Decode unmarshals the job payload into v
func (j *Job) Decode(v interface{}) error {
	if err := json.Unmarshal(j.Payload, v); err != nil {
		return fmt.Errorf("failed to decode %s job %s: %w", j.Queue, j.ID, err)
	}
	return nil
}

// QueueStats represents statistics for a queue
type QueueStats struct {
	Queue   string `json:"queue"`
	Waiting int64  `json:"waiting"`
	Delayed int64  `json:"delayed"`
	Failed  int64  `json:"failed"`
}

// EnqueueOption modifies a job before it is stored
type EnqueueOption func(*Job)

// WithMaxRetries sets the maximum number of retries for a job
func WithMaxRetries(maxRetries int) EnqueueOption {
	return func(j *Job) {
		j.MaxRetries = maxRetries
	}
}

// WithJobID sets a specific job ID. While a job with that ID is waiting or delayed,
// enqueueing it again is a no-op.
func WithJobID(id string) EnqueueOption {
	return func(j *Job) {
		j.ID = id
		j.unique = true
	}
}

// retryError asks the processor to run the job again after a delay
type retryError struct {
	delay time.Duration
	cause error
}

func (e *retryError) Error() string {
	return fmt.Sprintf("retry in %s: %v", e.delay, e.cause)
}

func (e *retryError) Unwrap() error { return e.cause }

// RetryIn wraps err so the job is rescheduled after delay regardless of its retry budget
func RetryIn(delay time.Duration, err error) error {
	return &retryError{delay: delay, cause: err}
}

// ErrNoHandler is returned for jobs on queues without a registered handler
var ErrNoHandler = errors.New("no handler registered")

// Backoff computes bounded exponential delays with jitter
type Backoff struct {
	Base   time.Duration
	Max    time.Duration
	Jitter float64 // fraction, 0.2 means +/-20%

	rand func() float64
}

// NewBackoff returns a backoff with +/-20% jitter
func NewBackoff(base, max time.Duration) Backoff {
	return Backoff{Base: base, Max: max, Jitter: 0.2}
}

// Delay returns the wait before attempt n (0-based). The result never exceeds Max.
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	random := b.rand
	if random == nil {
		random = rand.Float64
	}

	seconds := math.Min(b.Max.Seconds(), b.Base.Seconds()*math.Pow(2, float64(attempt)))

	jitter := seconds * b.Jitter
	seconds = seconds - jitter + (random() * jitter * 2)

	d := time.Duration(seconds * float64(time.Second))
	if d > b.Max {
		d = b.Max
	}
	return d
}
