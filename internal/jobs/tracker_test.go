package jobs

import (
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"ai-video-cutter/internal/metrics"
	"ai-video-cutter/internal/types"
	apperrors "ai-video-cutter/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPersister struct {
	mu    sync.Mutex
	saved []types.TaskRecord
	err   error
}

func (p *recordingPersister) SaveTaskRecord(rec types.TaskRecord) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.saved = append(p.saved, rec)
	return p.err
}

func TestCreateStartsPending(t *testing.T) {
	tr := NewTracker()
	id := tr.Create(types.TaskKindAnalyze, "video-1")

	rec, err := tr.Get(id)
	require.NoError(t, err)
	assert.Equal(t, types.TaskStatePending, rec.State)
	assert.Equal(t, types.TaskKindAnalyze, rec.Kind)
	assert.Equal(t, "video-1", rec.VideoId)
	assert.Nil(t, rec.Result)
	assert.Nil(t, rec.Error)
}

func TestGetUnknownIsNotFound(t *testing.T) {
	tr := NewTracker()
	_, err := tr.Get("missing")
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.CodeNotFound))
}

func TestHappyPathTransitions(t *testing.T) {
	tr := NewTracker()
	id := tr.Create(types.TaskKindFinalize, "video-1")

	require.NoError(t, tr.Start(id, "Cutting segments"))
	require.NoError(t, tr.Progress(id, "Concatenating"))

	rec, err := tr.Get(id)
	require.NoError(t, err)
	assert.Equal(t, types.TaskStateRunning, rec.State)
	assert.Equal(t, "Concatenating", rec.StatusMsg)
	assert.NotNil(t, rec.StartedAt)

	require.NoError(t, tr.Succeed(id, &types.TaskResult{OutputPath: "/out/final.mp4"}, ""))
	rec, err = tr.Get(id)
	require.NoError(t, err)
	assert.Equal(t, types.TaskStateSucceeded, rec.State)
	assert.Equal(t, "/out/final.mp4", rec.Result.OutputPath)
	assert.Nil(t, rec.Error)
	assert.NotNil(t, rec.FinishedAt)
}

func TestFailRecordsErrorKind(t *testing.T) {
	tr := NewTracker()
	id := tr.Create(types.TaskKindAnalyze, "video-1")
	require.NoError(t, tr.Start(id, ""))

	cause := apperrors.Wrap(apperrors.CodeProbeFailed, "Probe failed", errors.New("exit status 1"))
	require.NoError(t, tr.Fail(id, cause, ""))

	rec, err := tr.Get(id)
	require.NoError(t, err)
	assert.Equal(t, types.TaskStateFailed, rec.State)
	require.NotNil(t, rec.Error)
	assert.Equal(t, "ProbeFailed", rec.Error.Kind)
	assert.Contains(t, rec.Error.Message, "exit status 1")
	assert.Nil(t, rec.Result)
}

func TestFailWithoutErrorStillHasDetail(t *testing.T) {
	tr := NewTracker()
	id := tr.Create(types.TaskKindChat, "video-1")
	require.NoError(t, tr.Start(id, ""))
	require.NoError(t, tr.Fail(id, nil, ""))

	rec, err := tr.Get(id)
	require.NoError(t, err)
	require.NotNil(t, rec.Error)
	assert.Equal(t, "Unknown", rec.Error.Kind)
}

func TestInvalidTransitions(t *testing.T) {
	terminal := func(state types.TaskState) func(*Tracker) string {
		return func(tr *Tracker) string {
			id := tr.Create(types.TaskKindChat, "v")
			_, err := tr.Transition(id, types.TaskStateRunning, Update{})
			require.NoError(t, err)
			_, err = tr.Transition(id, state, Update{Err: errors.New("x")})
			require.NoError(t, err)
			return id
		}
	}
	pending := func(tr *Tracker) string { return tr.Create(types.TaskKindChat, "v") }
	running := func(tr *Tracker) string {
		id := tr.Create(types.TaskKindChat, "v")
		require.NoError(t, tr.Start(id, ""))
		return id
	}

	testCases := []struct {
		name  string
		setup func(*Tracker) string
		to    types.TaskState
	}{
		{name: "pending to succeeded", setup: pending, to: types.TaskStateSucceeded},
		{name: "pending to failed", setup: pending, to: types.TaskStateFailed},
		{name: "pending to pending", setup: pending, to: types.TaskStatePending},
		{name: "running to running", setup: running, to: types.TaskStateRunning},
		{name: "running to pending", setup: running, to: types.TaskStatePending},
		{name: "succeeded to failed", setup: terminal(types.TaskStateSucceeded), to: types.TaskStateFailed},
		{name: "succeeded to running", setup: terminal(types.TaskStateSucceeded), to: types.TaskStateRunning},
		{name: "succeeded to succeeded", setup: terminal(types.TaskStateSucceeded), to: types.TaskStateSucceeded},
		{name: "failed to succeeded", setup: terminal(types.TaskStateFailed), to: types.TaskStateSucceeded},
		{name: "failed to running", setup: terminal(types.TaskStateFailed), to: types.TaskStateRunning},
		{name: "failed to pending", setup: terminal(types.TaskStateFailed), to: types.TaskStatePending},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			tr := NewTracker()
			id := tc.setup(tr)
			before, err := tr.Get(id)
			require.NoError(t, err)

			_, err = tr.Transition(id, tc.to, Update{Message: "nope", Err: errors.New("x")})
			require.Error(t, err)
			assert.True(t, apperrors.Is(err, apperrors.CodeInvalidTransition))

			after, err := tr.Get(id)
			require.NoError(t, err)
			assert.Equal(t, before, after, "rejected transition must not mutate the record")
		})
	}
}

func TestProgressRequiresRunning(t *testing.T) {
	tr := NewTracker()
	id := tr.Create(types.TaskKindChat, "v")
	err := tr.Progress(id, "early")
	assert.True(t, apperrors.Is(err, apperrors.CodeInvalidTransition))

	err = tr.Progress("missing", "x")
	assert.True(t, apperrors.Is(err, apperrors.CodeNotFound))
}

func TestSnapshotsDoNotAlias(t *testing.T) {
	tr := NewTracker()
	id := tr.Create(types.TaskKindChat, "v")
	require.NoError(t, tr.Start(id, ""))
	proposal := &types.CutProposal{AiMessage: "ok", Cuts: []types.CutRange{{Start: 1, End: 2}}}
	require.NoError(t, tr.Succeed(id, &types.TaskResult{Proposal: proposal}, ""))

	// Mutating the caller's payload after the transition must not leak in.
	proposal.Cuts[0].Start = 50

	snap, err := tr.Get(id)
	require.NoError(t, err)
	assert.Equal(t, 1.0, snap.Result.Proposal.Cuts[0].Start)

	snap.Result.Proposal.Cuts[0].Start = 99
	again, err := tr.Get(id)
	require.NoError(t, err)
	assert.Equal(t, 1.0, again.Result.Proposal.Cuts[0].Start)
}

func TestListByVideoOrdersByCreation(t *testing.T) {
	tr := NewTracker()
	a := tr.Create(types.TaskKindAnalyze, "v1")
	tr.Create(types.TaskKindAnalyze, "v2")
	b := tr.Create(types.TaskKindChat, "v1")
	c := tr.Create(types.TaskKindFinalize, "v1")

	list := tr.ListByVideo("v1")
	require.Len(t, list, 3)
	ids := []string{list[0].TaskId, list[1].TaskId, list[2].TaskId}
	assert.ElementsMatch(t, []string{a, b, c}, ids)
	for i := 1; i < len(list); i++ {
		assert.False(t, list[i].CreatedAt.Before(list[i-1].CreatedAt))
	}
}

func TestListByVideoBreaksTiesByTaskId(t *testing.T) {
	fixed := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	tr := NewTracker(WithClock(func() time.Time { return fixed }))
	ids := make([]string, 0, 20)
	for i := 0; i < 20; i++ {
		ids = append(ids, tr.Create(types.TaskKindChat, "v1"))
	}
	sort.Strings(ids)

	for round := 0; round < 5; round++ {
		list := tr.ListByVideo("v1")
		require.Len(t, list, len(ids))
		for i, rec := range list {
			assert.Equal(t, ids[i], rec.TaskId)
		}
	}
}

func TestConcurrentWorkersAndPollers(t *testing.T) {
	tr := NewTracker(WithMetrics(metrics.New()))
	const n = 50

	ids := make([]string, n)
	for i := range ids {
		ids[i] = tr.Create(types.TaskKindChat, "v")
	}

	var wg sync.WaitGroup
	stop := make(chan struct{})
	for p := 0; p < 4; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				for _, id := range ids {
					rec, err := tr.Get(id)
					if err != nil {
						t.Error(err)
						return
					}
					// A snapshot is always internally consistent.
					if rec.State == types.TaskStateSucceeded && rec.Result == nil {
						t.Error("succeeded snapshot without result")
					}
					if rec.State != types.TaskStateFailed && rec.Error != nil {
						t.Error("error present on non-failed snapshot")
					}
				}
			}
		}()
	}

	var workers sync.WaitGroup
	for i, id := range ids {
		workers.Add(1)
		go func(i int, id string) {
			defer workers.Done()
			if err := tr.Start(id, "working"); err != nil {
				t.Error(err)
				return
			}
			if i%2 == 0 {
				_ = tr.Succeed(id, &types.TaskResult{OutputPath: "x"}, "")
			} else {
				_ = tr.Fail(id, errors.New("boom"), "")
			}
		}(i, id)
	}
	workers.Wait()
	close(stop)
	wg.Wait()

	for _, id := range ids {
		rec, err := tr.Get(id)
		require.NoError(t, err)
		assert.True(t, rec.State.IsTerminal())
	}
}

func TestPersisterReceivesSnapshots(t *testing.T) {
	p := &recordingPersister{}
	tr := NewTracker(WithPersister(p))
	id := tr.Create(types.TaskKindAnalyze, "v")
	require.NoError(t, tr.Start(id, ""))
	d := types.KnownDuration(12)
	require.NoError(t, tr.Succeed(id, &types.TaskResult{Duration: &d}, ""))

	require.Len(t, p.saved, 3)
	assert.Equal(t, types.TaskStatePending, p.saved[0].State)
	assert.Equal(t, types.TaskStateRunning, p.saved[1].State)
	assert.Equal(t, types.TaskStateSucceeded, p.saved[2].State)
}

func TestPersisterFailureDoesNotBlockTransition(t *testing.T) {
	p := &recordingPersister{err: errors.New("disk full")}
	tr := NewTracker(WithPersister(p))
	id := tr.Create(types.TaskKindAnalyze, "v")
	require.NoError(t, tr.Start(id, ""))

	rec, err := tr.Get(id)
	require.NoError(t, err)
	assert.Equal(t, types.TaskStateRunning, rec.State)
}

func TestRestore(t *testing.T) {
	tr := NewTracker()
	tr.Restore([]types.TaskRecord{
		{TaskId: "old-1", Kind: types.TaskKindFinalize, VideoId: "v", State: types.TaskStateSucceeded,
			Result: &types.TaskResult{OutputPath: "/out/a.mp4"}},
	})

	rec, err := tr.Get("old-1")
	require.NoError(t, err)
	assert.Equal(t, "/out/a.mp4", rec.Result.OutputPath)
	assert.Equal(t, 1, tr.Len())

	_, err = tr.Transition("old-1", types.TaskStateRunning, Update{})
	assert.True(t, apperrors.Is(err, apperrors.CodeInvalidTransition))
}
