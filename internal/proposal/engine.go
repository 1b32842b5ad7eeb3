// Package proposal turns a chat instruction into validated cut ranges by
// asking a language model.
package proposal

import (
	"context"
	"fmt"
	"strings"

	"ai-video-cutter/internal/metrics"
	"ai-video-cutter/internal/types"
	"ai-video-cutter/log"
	apperrors "ai-video-cutter/pkg/errors"
	"ai-video-cutter/pkg/timecode"

	"go.uber.org/zap"
)

// DefaultSystemPrompt is formatted with the video name, the video id and
// the duration text.
const DefaultSystemPrompt = `You are "Clip Assistant", an expert video editor. The user is editing the video %q (id %s). Its duration is %s.
Work out which parts of the video the user wants to KEEP and answer with a single JSON object and nothing else:
{"ai_message": "<short friendly reply to the user>", "cuts": [{"start": "HH:MM:SS", "end": "HH:MM:SS"}]}
Timestamps may be seconds, MM:SS or HH:MM:SS. List cuts in the order they should play. Never exceed the video duration.
If the request is unclear or unrelated to the video, return an empty "cuts" array and explain why in "ai_message".`

// fallbackMessage is used when a structured reply has no message.
const fallbackMessage = "Here are the suggested cuts."

type Option func(*Engine)

func WithMetrics(c *metrics.Collector) Option {
	return func(e *Engine) { e.metrics = c }
}

// WithSystemPrompt overrides DefaultSystemPrompt. The template receives the
// same three arguments.
func WithSystemPrompt(tmpl string) Option {
	return func(e *Engine) {
		if tmpl != "" {
			e.promptTemplate = tmpl
		}
	}
}

// WithHistoryLimit caps how many prior turns are sent with each request.
func WithHistoryLimit(n int) Option {
	return func(e *Engine) { e.historyLimit = n }
}

// WithVideoAttachment controls whether completers that can watch the video
// receive it. It is on by default.
func WithVideoAttachment(enabled bool) Option {
	return func(e *Engine) { e.attachVideo = enabled }
}

type Engine struct {
	completer      types.ChatCompleter
	metrics        *metrics.Collector
	promptTemplate string
	historyLimit   int
	attachVideo    bool
}

func NewEngine(completer types.ChatCompleter, opts ...Option) *Engine {
	e := &Engine{
		completer:      completer,
		promptTemplate: DefaultSystemPrompt,
		attachVideo:    true,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SystemPrompt renders the prompt for video.
func (e *Engine) SystemPrompt(video types.VideoAsset) string {
	duration := "unknown"
	if video.Duration.Known {
		duration = fmt.Sprintf("%.3f seconds (%s)", video.Duration.Seconds, timecode.Format(video.Duration.Seconds))
	}
	return fmt.Sprintf(e.promptTemplate, video.OriginalName, video.Id, duration)
}

// Propose asks the model for cuts. Only a failed completer call is an error;
// an unusable reply yields a proposal with the reply text and no cuts, and
// invalid cuts are dropped and counted.
func (e *Engine) Propose(ctx context.Context, video types.VideoAsset, history []types.Message, instruction string) (types.CutProposal, error) {
	if e.historyLimit > 0 && len(history) > e.historyLimit {
		history = history[len(history)-e.historyLimit:]
	}

	text, err := e.complete(ctx, video, history, instruction)
	if err != nil {
		cause := err
		if ctxErr := apperrors.FromContext(ctx, "language model call"); ctxErr != nil {
			cause = ctxErr
		}
		log.GetLogger().Error("[Proposal] completer failed", zap.String("video_id", video.Id), zap.Error(err))
		return types.CutProposal{}, apperrors.WrapWithDetail(apperrors.CodeProposalUnavailable,
			"Cut proposal unavailable", "video_id: "+video.Id, cause)
	}

	reply := ParseReply(text)
	proposal := types.CutProposal{
		AiMessage:  reply.Message,
		Cuts:       make([]types.CutRange, 0, len(reply.Cuts)),
		Structured: reply.Shape == Structured,
	}
	if proposal.Structured && strings.TrimSpace(proposal.AiMessage) == "" {
		proposal.AiMessage = fallbackMessage
	}

	for i, raw := range reply.Cuts {
		r, err := resolve(raw, video.Duration)
		if err != nil {
			proposal.Dropped++
			log.GetLogger().Warn("[Proposal] dropping cut",
				zap.String("video_id", video.Id),
				zap.Int("index", i),
				zap.ByteString("start", raw.Start),
				zap.ByteString("end", raw.End),
				zap.Error(err))
			continue
		}
		proposal.Cuts = append(proposal.Cuts, r)
	}
	e.metrics.CutsDropped(proposal.Dropped)

	log.GetLogger().Info("[Proposal] reply parsed",
		zap.String("video_id", video.Id),
		zap.String("shape", reply.Shape.String()),
		zap.Int("cuts", len(proposal.Cuts)),
		zap.Int("dropped", proposal.Dropped))
	return proposal, nil
}

// complete sends the video along when the completer supports it. A failed
// video upload fails the call like any other completer error.
func (e *Engine) complete(ctx context.Context, video types.VideoAsset, history []types.Message, instruction string) (string, error) {
	system := e.SystemPrompt(video)
	if vc, ok := e.completer.(types.VideoChatCompleter); ok && e.attachVideo && video.Path != "" {
		return vc.ChatCompletionWithVideo(ctx, system, history, instruction, types.VideoAttachment{Path: video.Path})
	}
	return e.completer.ChatCompletionWithHistory(ctx, system, history, instruction)
}

func resolve(raw RawCut, d types.Duration) (types.CutRange, error) {
	start, err := Seconds(raw.Start)
	if err != nil {
		return types.CutRange{}, fmt.Errorf("start: %w", err)
	}
	end, err := Seconds(raw.End)
	if err != nil {
		return types.CutRange{}, fmt.Errorf("end: %w", err)
	}
	return types.CutRange{Start: start, End: end}.Validate(d)
}
