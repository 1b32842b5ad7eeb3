package media

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"ai-video-cutter/internal/types"
	apperrors "ai-video-cutter/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type call struct {
	name string
	args []string
}

// fakeRunner records invocations and writes the last argument as the output
// file when write is set.
type fakeRunner struct {
	calls  []call
	stdout string
	err    error
	write  []byte
	block  bool
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	f.calls = append(f.calls, call{name: name, args: args})
	if f.block {
		<-ctx.Done()
		return nil, errors.New("signal: killed")
	}
	if f.err != nil {
		return nil, f.err
	}
	if f.write != nil {
		if err := os.WriteFile(args[len(args)-1], f.write, 0o644); err != nil {
			return nil, err
		}
	}
	return []byte(f.stdout), nil
}

func TestProbeDuration(t *testing.T) {
	testCases := []struct {
		name     string
		stdout   string
		err      error
		want     float64
		wantCode int
	}{
		{name: "plain", stdout: "120.040000\n", want: 120.04},
		{name: "whitespace", stdout: "  5\n", want: 5},
		{name: "garbage", stdout: "N/A\n", wantCode: apperrors.CodeProbeFailed},
		{name: "negative", stdout: "-1\n", wantCode: apperrors.CodeProbeFailed},
		{name: "infinite", stdout: "inf\n", wantCode: apperrors.CodeProbeFailed},
		{name: "not a number", stdout: "NaN\n", wantCode: apperrors.CodeProbeFailed},
		{name: "exit status", err: errors.New("exit status 1: moov atom not found"), wantCode: apperrors.CodeProbeFailed},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			runner := &fakeRunner{stdout: tc.stdout, err: tc.err}
			tool := NewTool("ff", "fp", WithRunner(runner))

			got, err := tool.ProbeDuration(context.Background(), "/videos/a.mp4")
			require.Len(t, runner.calls, 1)
			assert.Equal(t, "fp", runner.calls[0].name)
			assert.Equal(t, "/videos/a.mp4", runner.calls[0].args[len(runner.calls[0].args)-1])

			if tc.wantCode != 0 {
				require.Error(t, err)
				assert.True(t, apperrors.Is(err, tc.wantCode))
				assert.Equal(t, "ProbeFailed", apperrors.KindOf(err))
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tc.want, got, 1e-9)
		})
	}
}

func TestProbeDurationTimeout(t *testing.T) {
	tool := NewTool("", "", WithRunner(&fakeRunner{block: true}))
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := tool.ProbeDuration(ctx, "a.mp4")
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.CodeTimeout))
	assert.Equal(t, "Timeout", apperrors.KindOf(err))
}

func TestExtractArguments(t *testing.T) {
	dir := t.TempDir()
	dest := filepath.Join(dir, "segment_000.mp4")
	runner := &fakeRunner{write: []byte("data")}
	tool := NewTool("ffmpeg-bin", "", WithRunner(runner))

	err := tool.Extract(context.Background(), "/src.mp4", types.CutRange{Start: 5, End: 15.5}, dest)
	require.NoError(t, err)

	require.Len(t, runner.calls, 1)
	assert.Equal(t, "ffmpeg-bin", runner.calls[0].name)
	args := runner.calls[0].args
	assert.Contains(t, args, "-n")
	assert.Subset(t, args, []string{"-ss", "5.000", "-to", "15.500", "-i", "/src.mp4", "-c", "copy", "-avoid_negative_ts", "make_zero"})
	assert.Equal(t, dest, args[len(args)-1])
}

func TestExtractRefusesExistingDestination(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "seg.mp4")
	require.NoError(t, os.WriteFile(dest, []byte("old"), 0o644))
	runner := &fakeRunner{write: []byte("new")}
	tool := NewTool("", "", WithRunner(runner))

	err := tool.Extract(context.Background(), "/src.mp4", types.CutRange{Start: 0, End: 1}, dest)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.CodeExtractionFailed))
	assert.Empty(t, runner.calls)

	data, readErr := os.ReadFile(dest)
	require.NoError(t, readErr)
	assert.Equal(t, "old", string(data))
}

func TestExtractEmptyOutputFails(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "seg.mp4")
	tool := NewTool("", "", WithRunner(&fakeRunner{write: []byte{}}))

	err := tool.Extract(context.Background(), "/src.mp4", types.CutRange{Start: 0, End: 1}, dest)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.CodeExtractionFailed))
	assert.Contains(t, err.Error(), "empty")
}

func TestExtractMissingOutputFails(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "seg.mp4")
	tool := NewTool("", "", WithRunner(&fakeRunner{}))

	err := tool.Extract(context.Background(), "/src.mp4", types.CutRange{Start: 0, End: 1}, dest)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.CodeExtractionFailed))
}

func TestConcat(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "out.mp4")
	runner := &fakeRunner{write: []byte("joined")}
	tool := NewTool("", "", WithRunner(runner))

	require.NoError(t, tool.Concat(context.Background(), "/work/list.txt", dest))
	args := runner.calls[0].args
	assert.Subset(t, args, []string{"-f", "concat", "-safe", "0", "-i", "/work/list.txt", "-c", "copy"})

	failing := NewTool("", "", WithRunner(&fakeRunner{err: errors.New("exit status 1")}))
	err := failing.Concat(context.Background(), "/work/list.txt", filepath.Join(t.TempDir(), "x.mp4"))
	assert.True(t, apperrors.Is(err, apperrors.CodeAssemblyFailed))
}

func TestTailTruncates(t *testing.T) {
	long := make([]byte, maxErrOutput+100)
	for i := range long {
		long[i] = 'x'
	}
	got := tail(string(long))
	assert.Len(t, got, maxErrOutput+3)
	assert.Equal(t, "short", tail("  short\n"))
}
