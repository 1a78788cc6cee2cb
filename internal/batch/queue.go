// Package batch fans document classification out over a worker pool.
//
// Classification is side-effect free per document, so jobs parallelize
// safely; the results channel is the single serialization point.
package batch

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JoaquimAuto22/faturamento/constants"
	"github.com/JoaquimAuto22/faturamento/internal/classify"
)

// Job is one document to classify.
type Job struct {
	ID          uuid.UUID
	Path        string
	Type        constants.DocType
	SubmittedAt time.Time
}

// Done pairs a job with its outcome.
type Done struct {
	Job     Job
	Outcome classify.Outcome
}

// ClassifyFunc runs one document. Implementations must honor ctx.
type ClassifyFunc func(ctx context.Context, job Job) classify.Outcome

type Queue struct {
	fn      ClassifyFunc
	logger  *slog.Logger
	workers int
	timeout time.Duration

	ch      chan Job
	results chan Done
	wg      sync.WaitGroup
	once    sync.Once

	mu     sync.Mutex
	closed bool
}

type Option func(*Queue)

func WithWorkers(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.workers = n
		}
	}
}

func WithQueueSize(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.ch = make(chan Job, n)
		}
	}
}

// WithJobTimeout bounds one classification so a malformed PDF cannot stall
// the batch.
func WithJobTimeout(d time.Duration) Option {
	return func(q *Queue) {
		if d > 0 {
			q.timeout = d
		}
	}
}

func NewQueue(fn ClassifyFunc, logger *slog.Logger, opts ...Option) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	q := &Queue{
		fn:      fn,
		logger:  logger,
		workers: 4,
		timeout: 2 * time.Minute,
		ch:      make(chan Job, 256),
	}
	for _, o := range opts {
		o(q)
	}
	q.results = make(chan Done, cap(q.ch))
	q.start()
	return q
}

func (q *Queue) start() {
	q.once.Do(func() {
		for i := 0; i < q.workers; i++ {
			q.wg.Add(1)
			go func(workerID int) {
				defer q.wg.Done()
				q.logger.Debug("worker started", "worker_id", workerID)

				for job := range q.ch {
					ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
					out := q.fn(ctx, job)
					cancel()

					if out.Status == constants.DocStatusErrored {
						q.logger.Error("classification errored", "worker_id", workerID, "path", job.Path, "error", out.Err)
					}
					q.results <- Done{Job: job, Outcome: out}
				}

				q.logger.Debug("worker stopped", "worker_id", workerID)
			}(i + 1)
		}
	})
}

// Results yields completed jobs. Closed once Shutdown has drained the pool.
func (q *Queue) Results() <-chan Done {
	return q.results
}

func (q *Queue) Enqueue(_ context.Context, job Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		q.logger.Warn("cannot enqueue: queue is shutting down", "path", job.Path)
		return nil
	}
	select {
	case q.ch <- job:
	default:
		q.logger.Warn("queue full, applying backpressure", "path", job.Path)
		q.ch <- job
	}
	return nil
}

// Shutdown stops intake, waits for in-flight jobs, then closes Results.
func (q *Queue) Shutdown(ctx context.Context) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.ch)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		defer close(done)
		q.wg.Wait()
		close(q.results)
	}()

	select {
	case <-ctx.Done():
		q.logger.Warn("shutdown interrupted by context")
	case <-done:
		q.logger.Debug("queue drained, shutdown complete")
	}
}

// Process is the batch convenience path: enqueue every job, drain the pool,
// and return all results.
func Process(ctx context.Context, fn ClassifyFunc, jobs []Job, logger *slog.Logger, opts ...Option) []Done {
	if len(jobs) == 0 {
		return nil
	}
	opts = append(opts, WithQueueSize(len(jobs)))
	q := NewQueue(fn, logger, opts...)
	for _, job := range jobs {
		_ = q.Enqueue(ctx, job)
	}
	go q.Shutdown(ctx)

	results := make([]Done, 0, len(jobs))
	for d := range q.Results() {
		results = append(results, d)
	}
	return results
}
