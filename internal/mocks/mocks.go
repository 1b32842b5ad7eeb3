// Package mocks provides mock implementations of core interfaces for testing.
package mocks

import (
	"context"

	"ai-video-cutter/internal/types"

	"github.com/stretchr/testify/mock"
)

// MockChatCompleter is a mock implementation of types.ChatCompleter
type MockChatCompleter struct {
	mock.Mock
}

func (m *MockChatCompleter) ChatCompletionWithHistory(ctx context.Context, systemPrompt string, history []types.Message, userPrompt string) (string, error) {
	args := m.Called(ctx, systemPrompt, history, userPrompt)
	return args.String(0), args.Error(1)
}

// MockVideoChatCompleter is a mock implementation of types.VideoChatCompleter
type MockVideoChatCompleter struct {
	MockChatCompleter
}

func (m *MockVideoChatCompleter) ChatCompletionWithVideo(ctx context.Context, systemPrompt string, history []types.Message, userPrompt string, video types.VideoAttachment) (string, error) {
	args := m.Called(ctx, systemPrompt, history, userPrompt, video)
	return args.String(0), args.Error(1)
}

// MockMediaTool is a mock implementation of types.MediaTool
type MockMediaTool struct {
	mock.Mock
}

func (m *MockMediaTool) ProbeDuration(ctx context.Context, path string) (float64, error) {
	args := m.Called(ctx, path)
	return args.Get(0).(float64), args.Error(1)
}

func (m *MockMediaTool) Extract(ctx context.Context, sourcePath string, r types.CutRange, destPath string) error {
	args := m.Called(ctx, sourcePath, r, destPath)
	return args.Error(0)
}

func (m *MockMediaTool) Concat(ctx context.Context, manifestPath string, destPath string) error {
	args := m.Called(ctx, manifestPath, destPath)
	return args.Error(0)
}
