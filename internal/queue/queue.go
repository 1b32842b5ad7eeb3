// Package queue dispatches jobs through Redis using Asynq.
// It supports reliable task queueing with persistence across restarts.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"ai-video-cutter/internal/conversation"
	"ai-video-cutter/internal/types"
	"ai-video-cutter/log"
)

// Task type names
const (
	TypeAnalyze  = "video:analyze"
	TypeChat     = "video:chat"
	TypeFinalize = "video:finalize"
)

// turnPendingDelay is how long a chat job waits before asking again whether
// its turn has come.
const turnPendingDelay = time.Second

// QueueConfig holds Redis configuration for Asynq
type QueueConfig struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	Concurrency   int
	// TaskTimeout caps a single delivery; per-kind deadlines are applied by
	// the executor.
	TaskTimeout time.Duration
}

// Queue manages task enqueueing and processing
type Queue struct {
	client *asynq.Client
	server *asynq.Server
	config QueueConfig
}

// DefaultConfig returns default queue configuration
func DefaultConfig() QueueConfig {
	return QueueConfig{
		RedisAddr:   "localhost:6379",
		RedisDB:     0,
		Concurrency: 3,
		TaskTimeout: 30 * time.Minute,
	}
}

// RedisOpt returns the connection options shared by client and server.
func (c QueueConfig) RedisOpt() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     c.RedisAddr,
		Password: c.RedisPassword,
		DB:       c.RedisDB,
	}
}

// NewQueue creates a new Queue instance
func NewQueue(cfg QueueConfig) *Queue {
	if cfg.TaskTimeout <= 0 {
		cfg.TaskTimeout = DefaultConfig().TaskTimeout
	}
	redisOpt := cfg.RedisOpt()

	client := asynq.NewClient(redisOpt)

	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: cfg.Concurrency,
			Queues: map[string]int{
				"critical": 6,
				"default":  3,
			},
			IsFailure:      IsFailure,
			RetryDelayFunc: RetryDelay,
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				if !IsFailure(err) {
					return
				}
				log.GetLogger().Error("[Queue] Task failed",
					zap.String("type", task.Type()),
					zap.ByteString("payload", task.Payload()),
					zap.Error(err))
			}),
		},
	)

	return &Queue{
		client: client,
		server: server,
		config: cfg,
	}
}

// IsFailure keeps pending chat turns from counting against retries.
func IsFailure(err error) bool {
	return !errors.Is(err, conversation.ErrTurnPending)
}

// RetryDelay re-polls pending chat turns quickly and backs off exponentially
// otherwise: 10s, 20s, 40s, ...
func RetryDelay(n int, err error, t *asynq.Task) time.Duration {
	if errors.Is(err, conversation.ErrTurnPending) {
		return turnPendingDelay
	}
	return time.Duration(10<<uint(n)) * time.Second
}

// TypeFor maps a task kind to its Asynq type name.
func TypeFor(kind types.TaskKind) (string, error) {
	switch kind {
	case types.TaskKindAnalyze:
		return TypeAnalyze, nil
	case types.TaskKindChat:
		return TypeChat, nil
	case types.TaskKindFinalize:
		return TypeFinalize, nil
	default:
		return "", fmt.Errorf("unsupported task kind %q", kind)
	}
}

// NewTask builds the Asynq task for job. The tracker's task id doubles as the
// Asynq id so a job is never enqueued twice.
func NewTask(job types.Job, timeout time.Duration) (*asynq.Task, error) {
	typeName, err := TypeFor(job.Kind)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	queueName := "default"
	if job.Kind == types.TaskKindChat {
		queueName = "critical"
	}
	return asynq.NewTask(typeName, data,
		asynq.TaskID(job.TaskId),
		asynq.MaxRetry(0),
		asynq.Timeout(timeout),
		asynq.Queue(queueName),
	), nil
}

// Dispatch enqueues job.
func (q *Queue) Dispatch(ctx context.Context, job types.Job) error {
	task, err := NewTask(job, q.config.TaskTimeout)
	if err != nil {
		return err
	}

	info, err := q.client.EnqueueContext(ctx, task)
	if err != nil {
		return fmt.Errorf("failed to enqueue task: %w", err)
	}

	log.GetLogger().Info("[Queue] Task enqueued",
		zap.String("task_id", job.TaskId),
		zap.String("type", task.Type()),
		zap.String("queue", info.Queue))

	return nil
}

// Run processes tasks until ctx ends, then shuts the server down.
func (q *Queue) Run(ctx context.Context, execute Executor) error {
	mux := asynq.NewServeMux()
	NewTaskHandlers(execute).RegisterHandlers(mux)

	log.GetLogger().Info("[Queue] Starting worker",
		zap.String("redis_addr", q.config.RedisAddr),
		zap.Int("concurrency", q.config.Concurrency))

	if err := q.server.Start(mux); err != nil {
		return fmt.Errorf("start asynq server: %w", err)
	}
	<-ctx.Done()
	q.server.Shutdown()
	return nil
}

// Close releases the client connection.
func (q *Queue) Close() error {
	return q.client.Close()
}
