package types

import "context"

// ChatCompleter is the language model capability behind cut proposals.
type ChatCompleter interface {
	ChatCompletionWithHistory(ctx context.Context, systemPrompt string, history []Message, userPrompt string) (string, error)
}

// VideoAttachment points the model at the video a conversation is about.
// An empty MimeType is derived from the file extension.
type VideoAttachment struct {
	Path     string
	MimeType string
}

// VideoChatCompleter is a ChatCompleter that can send the video itself along
// with the newest user message.
type VideoChatCompleter interface {
	ChatCompleter
	ChatCompletionWithVideo(ctx context.Context, systemPrompt string, history []Message, userPrompt string, video VideoAttachment) (string, error)
}

// MediaTool is the external media tool: probing, stream-copy trimming and
// manifest-driven concatenation.
type MediaTool interface {
	ProbeDuration(ctx context.Context, path string) (float64, error)
	Extract(ctx context.Context, sourcePath string, r CutRange, destPath string) error
	Concat(ctx context.Context, manifestPath string, destPath string) error
}
