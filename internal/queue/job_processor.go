package queue

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/santaspot/backend/internal/metrics"
	"go.uber.org/zap"
)

// Handler processes one job. Returning RetryIn reschedules it.
type Handler func(ctx context.Context, job *Job) error

// Source is where the processor takes jobs from and reports results to
type Source interface {
	Dequeue(ctx context.Context, queueName string, timeout time.Duration) (*Job, error)
	Complete(ctx context.Context, job *Job) error
	Retry(ctx context.Context, job *Job, delay time.Duration) error
	Fail(ctx context.Context, job *Job, jobErr error) error
}

// JobProcessor processes jobs from queues with a fixed pool of workers
type JobProcessor struct {
	source      Source
	handlers    map[string]Handler
	workerCount int
	backoff     Backoff
	log         *zap.Logger
	metrics     *metrics.Metrics

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// NewJobProcessor creates a new JobProcessor
func NewJobProcessor(source Source, workerCount int, backoff Backoff, log *zap.Logger, m *metrics.Metrics) *JobProcessor {
	if workerCount < 1 {
		workerCount = 1
	}
	return &JobProcessor{
		source:      source,
		handlers:    make(map[string]Handler),
		workerCount: workerCount,
		backoff:     backoff,
		log:         log,
		metrics:     m,
	}
}

// RegisterHandler registers a handler for a specific queue. Call before Start.
func (p *JobProcessor) RegisterHandler(queueName string, handler Handler) {
	p.handlers[queueName] = handler
}

// Start launches the workers. They stop when ctx is cancelled or Stop is called.
func (p *JobProcessor) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)

	queues := make([]string, 0, len(p.handlers))
	for name := range p.handlers {
		queues = append(queues, name)
	}
	sort.Strings(queues)

	p.log.Info("starting job processor", zap.Int("workers", p.workerCount), zap.Strings("queues", queues))
	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i, queues)
	}
}

// Stop cancels the workers and waits for in-flight jobs
func (p *JobProcessor) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
	p.log.Info("job processor stopped")
}

func (p *JobProcessor) worker(ctx context.Context, id int, queues []string) {
	defer p.wg.Done()

	if len(queues) == 0 {
		return
	}

	for {
		for _, queueName := range queues {
			if ctx.Err() != nil {
				return
			}

			job, err := p.source.Dequeue(ctx, queueName, defaultDequeueTimeout)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				p.log.Warn("failed to dequeue", zap.Int("worker", id), zap.String("queue", queueName), zap.Error(err))
				sleep(ctx, time.Second)
				continue
			}
			if job == nil {
				continue
			}

			if err := p.ProcessJob(ctx, job); err != nil {
				p.log.Warn("job failed", zap.Int("worker", id), zap.String("queue", queueName),
					zap.String("job_id", job.ID), zap.Error(err))
			}
		}
	}
}

// ProcessJob runs a single job and reports its outcome to the source
func (p *JobProcessor) ProcessJob(ctx context.Context, job *Job) error {
	if job == nil {
		return fmt.Errorf("nil job")
	}

	handler, ok := p.handlers[job.Queue]
	if !ok {
		err := fmt.Errorf("%w for queue %s", ErrNoHandler, job.Queue)
		p.metrics.RecordJob(job.Queue, "failed")
		if failErr := p.source.Fail(ctx, job, err); failErr != nil {
			p.log.Error("failed to record job failure", zap.String("job_id", job.ID), zap.Error(failErr))
		}
		return err
	}

	err := handler(ctx, job)
	if err == nil {
		p.metrics.RecordJob(job.Queue, "completed")
		return p.source.Complete(ctx, job)
	}

	var retry *retryError
	if errors.As(err, &retry) {
		p.metrics.RecordJob(job.Queue, "rescheduled")
		return p.source.Retry(ctx, job, retry.delay)
	}

	if job.RetryCount < job.MaxRetries {
		p.metrics.RecordJob(job.Queue, "retried")
		if retryErr := p.source.Retry(ctx, job, p.backoff.Delay(job.RetryCount)); retryErr != nil {
			return retryErr
		}
		return fmt.Errorf("job processing failed: %w", err)
	}

	p.metrics.RecordJob(job.Queue, "failed")
	if failErr := p.source.Fail(ctx, job, err); failErr != nil {
		return failErr
	}
	return fmt.Errorf("job processing failed: %w", err)
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
