package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"ai-video-cutter/internal/conversation"
	"ai-video-cutter/internal/types"
	"ai-video-cutter/log"
)

// Executor runs one job to completion and records its outcome. It returns
// conversation.ErrTurnPending, without side effects, when a chat job has to
// wait for an earlier turn.
type Executor func(ctx context.Context, job types.Job) error

// TaskHandlers provides handlers for different task types
type TaskHandlers struct {
	execute Executor
}

// NewTaskHandlers creates a new TaskHandlers instance
func NewTaskHandlers(execute Executor) *TaskHandlers {
	return &TaskHandlers{execute: execute}
}

// HandleJob decodes the payload and runs it. The executor has already
// recorded a failed task as FAILED, so failures are not retried.
func (h *TaskHandlers) HandleJob(ctx context.Context, t *asynq.Task) error {
	var job types.Job
	if err := json.Unmarshal(t.Payload(), &job); err != nil {
		return fmt.Errorf("failed to unmarshal payload: %v: %w", err, asynq.SkipRetry)
	}
	want, err := TypeFor(job.Kind)
	if err != nil || want != t.Type() {
		return fmt.Errorf("payload kind %q does not match task type %s: %w", job.Kind, t.Type(), asynq.SkipRetry)
	}

	log.GetLogger().Info("[Queue] Processing task",
		zap.String("task_id", job.TaskId),
		zap.String("type", t.Type()))

	err = h.execute(ctx, job)
	switch {
	case err == nil:
		log.GetLogger().Info("[Queue] Task completed", zap.String("task_id", job.TaskId))
		return nil
	case errors.Is(err, conversation.ErrTurnPending):
		return err
	default:
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
}

// RegisterHandlers registers all task handlers with the Asynq server mux
func (h *TaskHandlers) RegisterHandlers(mux *asynq.ServeMux) {
	mux.HandleFunc(TypeAnalyze, h.HandleJob)
	mux.HandleFunc(TypeChat, h.HandleJob)
	mux.HandleFunc(TypeFinalize, h.HandleJob)
}
