package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Redis key prefixes
const (
	delayedPrefix = "delayed:"
	failedPrefix  = "failed:"
	jobPrefix     = "jobs:"
	uniquePrefix  = "unique:"
)

// RedisQueue stores jobs in Redis lists, with a sorted set per queue for delayed jobs
type RedisQueue struct {
	client *redis.Client
	log    *zap.Logger
}

// NewRedisQueue creates a new Redis queue
func NewRedisQueue(client *redis.Client, log *zap.Logger) *RedisQueue {
	return &RedisQueue{client: client, log: log}
}

func newJob(queueName string, payload interface{}, runAt time.Time, opts []EnqueueOption) (*Job, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	now := time.Now().UTC()
	job := &Job{
		ID:         uuid.New().String(),
		Queue:      queueName,
		Payload:    payloadBytes,
		Status:     JobStatusPending,
		MaxRetries: DefaultRetryCount,
		CreatedAt:  now,
		UpdatedAt:  now,
		RunAt:      runAt,
	}
	for _, opt := range opts {
		opt(job)
	}
	return job, nil
}

// Enqueue adds a job to the queue
func (q *RedisQueue) Enqueue(ctx context.Context, queueName string, payload interface{}, opts ...EnqueueOption) (string, error) {
	job, err := newJob(queueName, payload, time.Now().UTC(), opts)
	if err != nil {
		return "", err
	}
	if claimed, err := q.claim(ctx, job); err != nil || !claimed {
		return job.ID, err
	}
	if err := q.push(ctx, job); err != nil {
		q.release(ctx, job)
		return "", err
	}
	return job.ID, nil
}

// EnqueueIn adds a job to the queue with a delay
func (q *RedisQueue) EnqueueIn(ctx context.Context, queueName string, payload interface{}, delay time.Duration, opts ...EnqueueOption) (string, error) {
	if delay <= 0 {
		return q.Enqueue(ctx, queueName, payload, opts...)
	}
	job, err := newJob(queueName, payload, time.Now().UTC().Add(delay), opts)
	if err != nil {
		return "", err
	}
	if claimed, err := q.claim(ctx, job); err != nil || !claimed {
		return job.ID, err
	}
	if err := q.delay(ctx, job); err != nil {
		q.release(ctx, job)
		return "", err
	}
	return job.ID, nil
}

// claim reserves a caller-chosen job ID until the job is dequeued. Jobs with generated IDs
// are always claimed.
func (q *RedisQueue) claim(ctx context.Context, job *Job) (bool, error) {
	if !job.unique {
		return true, nil
	}
	claimed, err := q.client.SetNX(ctx, uniqueKey(job.Queue, job.ID), job.RunAt.Unix(), DefaultTTL).Result()
	if err != nil {
		return false, fmt.Errorf("failed to claim job id: %w", err)
	}
	if !claimed {
		q.log.Debug("job already queued", zap.String("queue", job.Queue), zap.String("job_id", job.ID))
	}
	return claimed, nil
}

func (q *RedisQueue) release(ctx context.Context, job *Job) {
	if err := q.client.Del(ctx, uniqueKey(job.Queue, job.ID)).Err(); err != nil {
		q.log.Warn("failed to release job id", zap.String("job_id", job.ID), zap.Error(err))
	}
}

func uniqueKey(queueName, id string) string {
	return uniquePrefix + queueName + ":" + id
}

func (q *RedisQueue) push(ctx context.Context, job *Job) error {
	jobBytes, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	pipe := q.client.TxPipeline()
	pipe.LPush(ctx, job.Queue, jobBytes)
	pipe.Set(ctx, jobPrefix+job.ID, jobBytes, DefaultTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to push job to queue: %w", err)
	}
	return nil
}

func (q *RedisQueue) delay(ctx context.Context, job *Job) error {
	jobBytes, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	pipe := q.client.TxPipeline()
	pipe.ZAdd(ctx, delayedPrefix+job.Queue, &redis.Z{
		Score:  float64(job.RunAt.Unix()),
		Member: jobBytes,
	})
	pipe.Set(ctx, jobPrefix+job.ID, jobBytes, DefaultTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to add job to delayed queue: %w", err)
	}
	return nil
}

// Dequeue waits up to timeout for a job. It returns nil when none is ready.
func (q *RedisQueue) Dequeue(ctx context.Context, queueName string, timeout time.Duration) (*Job, error) {
	q.moveReadyDelayedJobs(ctx, queueName)

	result, err := q.client.BRPop(ctx, timeout, queueName).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to pop job from queue: %w", err)
	}
	if len(result) < 2 {
		return nil, fmt.Errorf("unexpected result format from BRPOP")
	}

	var job Job
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job: %w", err)
	}
	q.release(ctx, &job)
	job.Status = JobStatusProcessing
	job.UpdatedAt = time.Now().UTC()
	return &job, nil
}

// moveReadyDelayedJobs moves due jobs to the main list. ZREM decides which worker moves a job.
func (q *RedisQueue) moveReadyDelayedJobs(ctx context.Context, queueName string) {
	jobs, err := q.client.ZRangeByScore(ctx, delayedPrefix+queueName, &redis.ZRangeBy{
		Min: "0",
		Max: strconv.FormatInt(time.Now().Unix(), 10),
	}).Result()
	if err != nil {
		q.log.Warn("failed to read delayed jobs", zap.String("queue", queueName), zap.Error(err))
		return
	}

	for _, jobStr := range jobs {
		removed, err := q.client.ZRem(ctx, delayedPrefix+queueName, jobStr).Result()
		if err != nil || removed == 0 {
			continue
		}
		if err := q.client.LPush(ctx, queueName, jobStr).Err(); err != nil {
			q.log.Error("failed to move delayed job", zap.String("queue", queueName), zap.Error(err))
		}
	}
}

// Complete marks a job as completed
func (q *RedisQueue) Complete(ctx context.Context, job *Job) error {
	job.Status = JobStatusCompleted
	return q.record(ctx, job)
}

// Retry reschedules a job after delay and counts the attempt
func (q *RedisQueue) Retry(ctx context.Context, job *Job, delay time.Duration) error {
	job.Status = JobStatusPending
	job.RetryCount++
	job.UpdatedAt = time.Now().UTC()
	job.RunAt = job.UpdatedAt.Add(delay)
	return q.delay(ctx, job)
}

// Fail moves a job to the queue's dead list
func (q *RedisQueue) Fail(ctx context.Context, job *Job, jobErr error) error {
	job.Status = JobStatusFailed
	job.UpdatedAt = time.Now().UTC()
	if jobErr != nil {
		job.LastError = jobErr.Error()
	}

	jobBytes, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}
	if err := q.client.LPush(ctx, failedPrefix+job.Queue, jobBytes).Err(); err != nil {
		return fmt.Errorf("failed to record failed job: %w", err)
	}
	return q.record(ctx, job)
}

func (q *RedisQueue) record(ctx context.Context, job *Job) error {
	job.UpdatedAt = time.Now().UTC()
	jobBytes, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}
	if err := q.client.Set(ctx, jobPrefix+job.ID, jobBytes, DefaultTTL).Err(); err != nil {
		return fmt.Errorf("failed to update job status: %w", err)
	}
	return nil
}

// Stats returns queue depths
func (q *RedisQueue) Stats(ctx context.Context, queueName string) (*QueueStats, error) {
	pipe := q.client.Pipeline()
	waiting := pipe.LLen(ctx, queueName)
	delayed := pipe.ZCard(ctx, delayedPrefix+queueName)
	failed := pipe.LLen(ctx, failedPrefix+queueName)
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, fmt.Errorf("failed to read queue stats: %w", err)
	}

	return &QueueStats{
		Queue:   queueName,
		Waiting: waiting.Val(),
		Delayed: delayed.Val(),
		Failed:  failed.Val(),
	}, nil
}
