package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAppError_Error(t *testing.T) {
	// Test without cause
	err := New(CodeProbeFailed, "Test error")
	assert.Equal(t, "[1100] Test error", err.Error())

	// Test with cause
	cause := errors.New("underlying error")
	errWithCause := Wrap(CodeProbeFailed, "Test error", cause)
	assert.Contains(t, errWithCause.Error(), "underlying error")
	assert.Contains(t, errWithCause.Error(), "1100")
}

func TestAppError_Unwrap(t *testing.T) {
	cause := errors.New("underlying error")
	err := Wrap(CodeExtractionFailed, "Extraction failed", cause)

	assert.Equal(t, cause, err.Unwrap())
	assert.True(t, errors.Is(err, cause))
}

func TestIs(t *testing.T) {
	err := New(CodeAssemblyFailed, "assembly failed")

	assert.True(t, Is(err, CodeAssemblyFailed))
	assert.False(t, Is(err, CodeProbeFailed))

	regularErr := errors.New("regular error")
	assert.False(t, Is(regularErr, CodeAssemblyFailed))
}

func TestIs_WalksCauseChain(t *testing.T) {
	inner := Wrap(CodeExtractionFailed, "segment 2 failed", errors.New("exit status 1"))
	outer := Wrap(CodeAssemblyFailed, "assembly failed", fmt.Errorf("step: %w", inner))

	assert.True(t, Is(outer, CodeAssemblyFailed))
	assert.True(t, Is(outer, CodeExtractionFailed))
	assert.False(t, Is(outer, CodeTimeout))
}

func TestGetCode(t *testing.T) {
	appErr := New(CodeProposalUnavailable, "model unreachable")
	assert.Equal(t, CodeProposalUnavailable, GetCode(appErr))

	regularErr := errors.New("regular error")
	assert.Equal(t, CodeUnknown, GetCode(regularErr))
}

func TestGetMessage(t *testing.T) {
	appErr := New(CodeNotFound, "Task not found")
	assert.Equal(t, "Task not found", GetMessage(appErr))

	regularErr := errors.New("regular error message")
	assert.Equal(t, "regular error message", GetMessage(regularErr))
}

func TestWrapWithDetail(t *testing.T) {
	cause := errors.New("exit status 1")
	err := WrapWithDetail(CodeProbeFailed, "Probe failed", "path: /tmp/a.mp4", cause)

	assert.Equal(t, CodeProbeFailed, err.Code)
	assert.Equal(t, "Probe failed", err.Message)
	assert.Equal(t, "path: /tmp/a.mp4", err.Detail)
	assert.Equal(t, cause, err.Cause)
}

func TestKindOf(t *testing.T) {
	testCases := []struct {
		name string
		err  error
		want string
	}{
		{name: "nil", err: nil, want: ""},
		{name: "plain", err: errors.New("boom"), want: "Unknown"},
		{name: "probe", err: New(CodeProbeFailed, "x"), want: "ProbeFailed"},
		{name: "timestamp", err: New(CodeMalformedTimestamp, "x"), want: "MalformedTimestamp"},
		{
			name: "timeout inside assembly",
			err:  Wrap(CodeAssemblyFailed, "x", Wrap(CodeTimeout, "y", context.DeadlineExceeded)),
			want: "Timeout",
		},
		{name: "raw deadline", err: fmt.Errorf("wait: %w", context.DeadlineExceeded), want: "Timeout"},
		{
			name: "shutdown inside assembly",
			err:  Wrap(CodeAssemblyFailed, "x", Wrap(CodeCanceled, "y", context.Canceled)),
			want: "Canceled",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, KindOf(tc.err))
		})
	}
}

func TestFromContext(t *testing.T) {
	assert.NoError(t, FromContext(context.Background(), "probe"))

	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	<-ctx.Done()

	err := FromContext(ctx, "probe")
	assert.True(t, Is(err, CodeTimeout))
	assert.Contains(t, err.Error(), "probe timed out")
}

func TestFromContextCanceledIsNotTimeout(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := FromContext(ctx, "extract")
	assert.True(t, Is(err, CodeCanceled))
	assert.False(t, Is(err, CodeTimeout))
	assert.Equal(t, "Canceled", KindOf(err))
	assert.Contains(t, err.Error(), "extract canceled")
}

func TestPredefinedErrors(t *testing.T) {
	assert.Equal(t, CodeInvalidParams, ErrInvalidParams.Code)
	assert.Equal(t, CodeNotFound, ErrNotFound.Code)
	assert.Equal(t, CodeInvalidTransition, ErrInvalidTransition.Code)
	assert.Equal(t, CodeDBError, ErrDBError.Code)
}
