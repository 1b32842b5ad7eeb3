package taskrunner

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"ai-video-cutter/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatchRunsJobs(t *testing.T) {
	var mu sync.Mutex
	seen := make(map[string]bool)
	done := make(chan struct{}, 3)

	runner := New(func(ctx context.Context, job types.Job) error {
		mu.Lock()
		seen[job.TaskId] = true
		mu.Unlock()
		done <- struct{}{}
		return nil
	}, Config{QueueSize: 4, Concurrency: 2}, nil)
	defer runner.Close()

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, runner.Dispatch(context.Background(), types.Job{TaskId: id, Kind: types.TaskKindAnalyze}))
	}
	for i := 0; i < 3; i++ {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for jobs")
		}
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, map[string]bool{"a": true, "b": true, "c": true}, seen)
}

func TestSingleWorkerPreservesOrder(t *testing.T) {
	release := make(chan struct{})
	var mu sync.Mutex
	var order []string
	var wg sync.WaitGroup

	runner := New(func(ctx context.Context, job types.Job) error {
		defer wg.Done()
		<-release
		mu.Lock()
		order = append(order, job.TaskId)
		mu.Unlock()
		return errors.New("failures do not stop the worker")
	}, Config{QueueSize: 8, Concurrency: 1}, nil)
	defer runner.Close()

	ids := []string{"1", "2", "3", "4"}
	wg.Add(len(ids))
	for _, id := range ids {
		require.NoError(t, runner.Dispatch(context.Background(), types.Job{TaskId: id}))
	}
	close(release)
	wg.Wait()

	assert.Equal(t, ids, order)
}

func TestDispatchQueueFull(t *testing.T) {
	block := make(chan struct{})
	started := make(chan struct{}, 1)
	runner := New(func(ctx context.Context, job types.Job) error {
		started <- struct{}{}
		select {
		case <-block:
		case <-ctx.Done():
		}
		return nil
	}, Config{QueueSize: 1, Concurrency: 1}, nil)
	defer runner.Close()
	defer close(block)

	require.NoError(t, runner.Dispatch(context.Background(), types.Job{TaskId: "running"}))
	<-started
	require.NoError(t, runner.Dispatch(context.Background(), types.Job{TaskId: "queued"}))
	assert.Equal(t, 1, runner.Pending())

	err := runner.Dispatch(context.Background(), types.Job{TaskId: "overflow"})
	assert.ErrorIs(t, err, ErrQueueFull)
}

func TestDispatchAfterClose(t *testing.T) {
	runner := New(func(ctx context.Context, job types.Job) error { return nil }, DefaultConfig(), nil)
	runner.Close()
	runner.Close()

	err := runner.Dispatch(context.Background(), types.Job{TaskId: "late"})
	assert.ErrorIs(t, err, ErrRunnerStopped)
}

func TestCloseCancelsRunningJobs(t *testing.T) {
	started := make(chan struct{})
	canceled := make(chan struct{})
	runner := New(func(ctx context.Context, job types.Job) error {
		close(started)
		<-ctx.Done()
		close(canceled)
		return ctx.Err()
	}, Config{QueueSize: 1, Concurrency: 1}, nil)

	require.NoError(t, runner.Dispatch(context.Background(), types.Job{TaskId: "long"}))
	<-started
	runner.Close()

	select {
	case <-canceled:
	default:
		t.Fatal("running job was not canceled")
	}
}

func TestPanickingJobDoesNotKillWorker(t *testing.T) {
	done := make(chan string, 1)
	runner := New(func(ctx context.Context, job types.Job) error {
		if job.TaskId == "boom" {
			panic("bad job")
		}
		done <- job.TaskId
		return nil
	}, Config{QueueSize: 2, Concurrency: 1}, nil)
	defer runner.Close()

	require.NoError(t, runner.Dispatch(context.Background(), types.Job{TaskId: "boom"}))
	require.NoError(t, runner.Dispatch(context.Background(), types.Job{TaskId: "fine"}))

	select {
	case id := <-done:
		assert.Equal(t, "fine", id)
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not survive panic")
	}
}

func TestNormalizeConfig(t *testing.T) {
	cfg := normalizeConfig(Config{})
	assert.Equal(t, DefaultConfig(), cfg)
}
