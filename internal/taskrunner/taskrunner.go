// Package taskrunner executes submitted jobs on a fixed pool of in-process
// workers.
package taskrunner

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"ai-video-cutter/internal/metrics"
	"ai-video-cutter/internal/types"
	"ai-video-cutter/log"
)

const (
	defaultQueueSize   = 128
	defaultConcurrency = 2
)

var (
	ErrRunnerStopped = errors.New("task runner stopped")
	ErrQueueFull     = errors.New("task queue is full")
)

// Config controls in-process task runner behavior.
type Config struct {
	QueueSize   int
	Concurrency int
}

// DefaultConfig returns a single-host default config.
func DefaultConfig() Config {
	return Config{
		QueueSize:   defaultQueueSize,
		Concurrency: defaultConcurrency,
	}
}

// Executor runs one job to completion and records its outcome.
type Executor func(ctx context.Context, job types.Job) error

// Runner executes queued jobs with in-memory workers. Jobs leave the queue
// in submission order, so a worker that waits for an earlier chat turn of
// the same video never waits on a job still behind it in the queue.
type Runner struct {
	execute Executor
	config  Config
	metrics *metrics.Collector

	queue  chan types.Job
	ctx    context.Context
	cancel context.CancelFunc

	workerWg sync.WaitGroup
	closed   atomic.Bool
}

// New creates and starts a task runner.
func New(execute Executor, cfg Config, collector *metrics.Collector) *Runner {
	cfg = normalizeConfig(cfg)
	ctx, cancel := context.WithCancel(context.Background())

	runner := &Runner{
		execute: execute,
		config:  cfg,
		metrics: collector,
		queue:   make(chan types.Job, cfg.QueueSize),
		ctx:     ctx,
		cancel:  cancel,
	}

	for i := 0; i < cfg.Concurrency; i++ {
		runner.workerWg.Add(1)
		go runner.worker(i + 1)
	}

	return runner
}

func normalizeConfig(cfg Config) Config {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	return cfg
}

// Dispatch queues job without blocking.
func (r *Runner) Dispatch(_ context.Context, job types.Job) error {
	if r.closed.Load() {
		return ErrRunnerStopped
	}

	select {
	case <-r.ctx.Done():
		return ErrRunnerStopped
	case r.queue <- job:
		r.metrics.SetQueueDepth(len(r.queue))
		log.GetLogger().Info("[TaskRunner] task submitted",
			zap.String("task_id", job.TaskId),
			zap.String("task_type", string(job.Kind)))
		return nil
	default:
		return ErrQueueFull
	}
}

func (r *Runner) worker(workerID int) {
	defer r.workerWg.Done()

	for {
		select {
		case <-r.ctx.Done():
			return
		default:
		}

		select {
		case <-r.ctx.Done():
			return
		case job := <-r.queue:
			r.metrics.SetQueueDepth(len(r.queue))
			r.processTask(workerID, job)
		}
	}
}

func (r *Runner) processTask(workerID int, job types.Job) {
	defer func() {
		if p := recover(); p != nil {
			log.GetLogger().Error("[TaskRunner] task panicked",
				zap.Int("worker_id", workerID),
				zap.String("task_id", job.TaskId),
				zap.Any("panic", p))
		}
	}()

	if err := r.execute(r.ctx, job); err != nil {
		log.GetLogger().Error("[TaskRunner] task failed",
			zap.Int("worker_id", workerID),
			zap.String("task_id", job.TaskId),
			zap.String("task_type", string(job.Kind)),
			zap.Error(err))
		return
	}

	log.GetLogger().Info("[TaskRunner] task completed",
		zap.Int("worker_id", workerID),
		zap.String("task_id", job.TaskId),
		zap.String("task_type", string(job.Kind)))
}

// Close stops workers and rejects new tasks. Running jobs see their context
// canceled.
func (r *Runner) Close() {
	if !r.closed.CompareAndSwap(false, true) {
		return
	}

	r.cancel()
	r.workerWg.Wait()
}

// Pending returns the number of queued tasks waiting for workers.
func (r *Runner) Pending() int {
	return len(r.queue)
}
