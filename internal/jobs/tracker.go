// Package jobs tracks asynchronous task records and enforces their lifecycle:
// PENDING -> RUNNING -> SUCCEEDED | FAILED.
package jobs

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"ai-video-cutter/internal/metrics"
	"ai-video-cutter/internal/types"
	"ai-video-cutter/log"
	apperrors "ai-video-cutter/pkg/errors"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Persister receives a snapshot after every successful mutation.
type Persister interface {
	SaveTaskRecord(rec types.TaskRecord) error
}

// Update carries the payload of a transition.
type Update struct {
	Message string
	Result  *types.TaskResult
	Err     error
}

// Option configures a Tracker.
type Option func(*Tracker)

func WithPersister(p Persister) Option {
	return func(t *Tracker) { t.persister = p }
}

func WithMetrics(c *metrics.Collector) Option {
	return func(t *Tracker) { t.metrics = c }
}

func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// Tracker is the record store. Records are only ever handed out as copies.
type Tracker struct {
	mu      sync.RWMutex
	records map[string]*types.TaskRecord

	persister Persister
	metrics   *metrics.Collector
	now       func() time.Time
}

func NewTracker(opts ...Option) *Tracker {
	t := &Tracker{
		records: make(map[string]*types.TaskRecord),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Create registers a PENDING task and returns its id.
func (t *Tracker) Create(kind types.TaskKind, videoID string) string {
	now := t.now()
	rec := &types.TaskRecord{
		TaskId:    uuid.New().String(),
		Kind:      kind,
		VideoId:   videoID,
		State:     types.TaskStatePending,
		StatusMsg: "Queued",
		CreatedAt: now,
		UpdatedAt: now,
	}

	t.mu.Lock()
	t.records[rec.TaskId] = rec
	snapshot := rec.Clone()
	t.mu.Unlock()

	t.metrics.TaskTransition(string(kind), string(types.TaskStatePending))
	t.persist(snapshot)
	return rec.TaskId
}

// Get returns a snapshot of the record.
func (t *Tracker) Get(taskID string) (types.TaskRecord, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	rec, ok := t.records[taskID]
	if !ok {
		return types.TaskRecord{}, apperrors.WrapWithDetail(apperrors.CodeNotFound, "Task not found", "task_id: "+taskID, nil)
	}
	return rec.Clone(), nil
}

// ListByVideo returns snapshots of every task for a video, oldest first.
func (t *Tracker) ListByVideo(videoID string) []types.TaskRecord {
	t.mu.RLock()
	out := make([]types.TaskRecord, 0)
	for _, rec := range t.records {
		if rec.VideoId == videoID {
			out = append(out, rec.Clone())
		}
	}
	t.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].TaskId < out[j].TaskId
	})
	return out
}

// Transition moves a record to newState. Terminal states are final and
// RUNNING must be observed before a terminal state.
func (t *Tracker) Transition(taskID string, newState types.TaskState, upd Update) (types.TaskRecord, error) {
	t.mu.Lock()
	rec, ok := t.records[taskID]
	if !ok {
		t.mu.Unlock()
		return types.TaskRecord{}, apperrors.WrapWithDetail(apperrors.CodeNotFound, "Task not found", "task_id: "+taskID, nil)
	}
	if err := checkTransition(rec.State, newState); err != nil {
		t.mu.Unlock()
		return rec.Clone(), err
	}

	now := t.now()
	rec.State = newState
	rec.UpdatedAt = now
	if upd.Message != "" {
		rec.StatusMsg = upd.Message
	}

	switch newState {
	case types.TaskStateRunning:
		rec.StartedAt = &now
	case types.TaskStateSucceeded:
		rec.FinishedAt = &now
		rec.Result = upd.Result.Clone()
		if upd.Message == "" {
			rec.StatusMsg = "Completed"
		}
	case types.TaskStateFailed:
		rec.FinishedAt = &now
		taskErr := upd.Err
		if taskErr == nil {
			taskErr = apperrors.New(apperrors.CodeUnknown, "task failed without a reason")
		}
		rec.Error = &types.TaskError{
			Kind:    apperrors.KindOf(taskErr),
			Message: taskErr.Error(),
		}
		if upd.Message == "" {
			rec.StatusMsg = "Failed"
		}
	}
	snapshot := rec.Clone()
	t.mu.Unlock()

	t.metrics.TaskTransition(string(snapshot.Kind), string(newState))
	if newState.IsTerminal() && snapshot.StartedAt != nil {
		t.metrics.TaskFinished(string(snapshot.Kind), string(newState), now.Sub(*snapshot.StartedAt).Seconds())
	}
	t.persist(snapshot)
	return snapshot, nil
}

// Progress updates the message of a RUNNING task without changing its state.
func (t *Tracker) Progress(taskID, message string) error {
	t.mu.Lock()
	rec, ok := t.records[taskID]
	if !ok {
		t.mu.Unlock()
		return apperrors.WrapWithDetail(apperrors.CodeNotFound, "Task not found", "task_id: "+taskID, nil)
	}
	if rec.State != types.TaskStateRunning {
		state := rec.State
		t.mu.Unlock()
		return apperrors.WrapWithDetail(apperrors.CodeInvalidTransition, "Invalid task state transition",
			fmt.Sprintf("progress on %s task", state), nil)
	}
	rec.StatusMsg = message
	rec.UpdatedAt = t.now()
	snapshot := rec.Clone()
	t.mu.Unlock()

	t.persist(snapshot)
	return nil
}

func (t *Tracker) Start(taskID, message string) error {
	_, err := t.Transition(taskID, types.TaskStateRunning, Update{Message: message})
	return err
}

func (t *Tracker) Succeed(taskID string, result *types.TaskResult, message string) error {
	_, err := t.Transition(taskID, types.TaskStateSucceeded, Update{Result: result, Message: message})
	return err
}

func (t *Tracker) Fail(taskID string, taskErr error, message string) error {
	_, err := t.Transition(taskID, types.TaskStateFailed, Update{Err: taskErr, Message: message})
	return err
}

// Restore loads previously persisted records. Existing ids are overwritten.
func (t *Tracker) Restore(records []types.TaskRecord) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, rec := range records {
		cp := rec.Clone()
		t.records[cp.TaskId] = &cp
	}
}

// Len returns the number of tracked records.
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.records)
}

func checkTransition(from, to types.TaskState) error {
	allowed := false
	switch from {
	case types.TaskStatePending:
		allowed = to == types.TaskStateRunning
	case types.TaskStateRunning:
		allowed = to == types.TaskStateSucceeded || to == types.TaskStateFailed
	}
	if allowed {
		return nil
	}
	return apperrors.WrapWithDetail(apperrors.CodeInvalidTransition, "Invalid task state transition",
		fmt.Sprintf("%s -> %s", from, to), nil)
}

func (t *Tracker) persist(rec types.TaskRecord) {
	if t.persister == nil {
		return
	}
	if err := t.persister.SaveTaskRecord(rec); err != nil {
		log.GetLogger().Warn("[Jobs] persist task record failed",
			zap.String("task_id", rec.TaskId),
			zap.String("state", string(rec.State)),
			zap.Error(err))
	}
}
