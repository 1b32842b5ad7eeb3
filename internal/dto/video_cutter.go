package dto

import (
	"time"

	"ai-video-cutter/internal/types"
	"ai-video-cutter/pkg/timecode"

	"github.com/samber/lo"
)

type UploadVideoResData struct {
	VideoId string `json:"video_id"`
	TaskId  string `json:"task_id"`
}

type ChatReq struct {
	Message string `json:"message" binding:"required"`
}

type ChatResData struct {
	TaskId string `json:"task_id"`
}

// Cut is a range as shown to and received from clients; timestamps may be
// seconds, MM:SS or HH:MM:SS.
type Cut struct {
	Start string `json:"start" binding:"required"`
	End   string `json:"end" binding:"required"`
}

type FinalizeReq struct {
	VideoId string `json:"video_id" binding:"required"`
	Cuts    []Cut  `json:"cuts" binding:"required"`
}

type FinalizeResData struct {
	TaskId     string `json:"task_id"`
	OutputPath string `json:"output_path"`
}

type Proposal struct {
	AiMessage string `json:"ai_message"`
	Cuts      []Cut  `json:"cuts"`
	Dropped   int    `json:"dropped"`
}

type TaskError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

type TaskResult struct {
	DurationSeconds *float64  `json:"duration_seconds,omitempty"`
	Proposal        *Proposal `json:"proposal,omitempty"`
	OutputPath      string    `json:"output_path,omitempty"`
	DownloadUrl     string    `json:"download_url,omitempty"`
}

type TaskStatusResData struct {
	Found         bool        `json:"found"`
	TaskId        string      `json:"task_id"`
	Kind          string      `json:"kind,omitempty"`
	VideoId       string      `json:"video_id,omitempty"`
	State         string      `json:"state"`
	StatusMessage string      `json:"status_message"`
	Result        *TaskResult `json:"result,omitempty"`
	Error         *TaskError  `json:"error,omitempty"`
}

type ChatTurn struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Position  int       `json:"position"`
	CreatedAt time.Time `json:"created_at"`
}

type VideoStateResData struct {
	VideoId          string   `json:"video_id"`
	State            string   `json:"state"`
	DurationSeconds  *float64 `json:"duration_seconds"`
	CompletedChats   int      `json:"completed_chats"`
	FinalizedOutputs []string `json:"finalized_outputs"`
}

func CutsFrom(ranges []types.CutRange) []Cut {
	return lo.Map(ranges, func(r types.CutRange, _ int) Cut {
		return Cut{Start: timecode.Format(r.Start), End: timecode.Format(r.End)}
	})
}

func ChatTurnsFrom(turns []types.ConversationTurn) []ChatTurn {
	return lo.Map(turns, func(t types.ConversationTurn, _ int) ChatTurn {
		return ChatTurn{Role: string(t.Role), Content: t.Content, Position: t.Position, CreatedAt: t.CreatedAt}
	})
}

func TaskResultFrom(r *types.TaskResult, downloadUrl string) *TaskResult {
	if r == nil {
		return nil
	}
	out := &TaskResult{OutputPath: r.OutputPath}
	if r.OutputPath != "" {
		out.DownloadUrl = downloadUrl
	}
	if r.Duration != nil && r.Duration.Known {
		out.DurationSeconds = lo.ToPtr(r.Duration.Seconds)
	}
	if r.Proposal != nil {
		out.Proposal = &Proposal{
			AiMessage: r.Proposal.AiMessage,
			Cuts:      CutsFrom(r.Proposal.Cuts),
			Dropped:   r.Proposal.Dropped,
		}
	}
	return out
}

func TaskErrorFrom(e *types.TaskError) *TaskError {
	if e == nil {
		return nil
	}
	return &TaskError{Kind: e.Kind, Message: e.Message}
}

func DurationSeconds(d types.Duration) *float64 {
	if !d.Known {
		return nil
	}
	return lo.ToPtr(d.Seconds)
}
