package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"ai-video-cutter/internal/types"
	"ai-video-cutter/log"
	apperrors "ai-video-cutter/pkg/errors"
	"ai-video-cutter/pkg/timecode"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type UploadRequest struct {
	// VideoId is optional; PrepareUpload hands one out together with the
	// storage path.
	VideoId      string
	Path         string
	OriginalName string
}

// CutInput is a user-submitted range in any timestamp format.
type CutInput struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// StatusView is what a poller sees. Found is false for unknown task ids, in
// which case State is PENDING.
type StatusView struct {
	Found         bool              `json:"found"`
	TaskId        string            `json:"task_id"`
	Kind          types.TaskKind    `json:"kind,omitempty"`
	VideoId       string            `json:"video_id,omitempty"`
	State         types.TaskState   `json:"state"`
	StatusMessage string            `json:"status_message"`
	Result        *types.TaskResult `json:"result,omitempty"`
	Error         *types.TaskError  `json:"error,omitempty"`
}

// PrepareUpload allocates a video id and the path its upload is stored at.
func (s *Service) PrepareUpload(originalName string) (videoID, path string, err error) {
	if err = os.MkdirAll(s.roots.Upload, 0o755); err != nil {
		return "", "", apperrors.Wrap(apperrors.CodeFileWriteError, "Create upload directory failed", err)
	}
	videoID = uuid.New().String()
	return videoID, uploadPath(s.roots.Upload, videoID, originalName), nil
}

// SubmitUpload registers a stored file as a video asset and queues its
// analysis.
func (s *Service) SubmitUpload(ctx context.Context, req UploadRequest) (videoID, taskID string, err error) {
	if strings.TrimSpace(req.Path) == "" {
		return "", "", apperrors.New(apperrors.CodeInvalidParams, "Upload path is empty")
	}
	absPath, err := filepath.Abs(req.Path)
	if err != nil {
		return "", "", apperrors.Wrap(apperrors.CodeInvalidParams, "Invalid upload path", err)
	}
	info, err := os.Stat(absPath)
	if err != nil || info.IsDir() {
		return "", "", apperrors.WrapWithDetail(apperrors.CodeVideoNotFound, "Uploaded file not found", "path: "+absPath, err)
	}

	videoID = req.VideoId
	if videoID == "" {
		videoID = uuid.New().String()
	}
	name := req.OriginalName
	if name == "" {
		name = filepath.Base(absPath)
	}
	s.registerVideo(types.VideoAsset{
		Id:           videoID,
		Path:         absPath,
		OriginalName: name,
		Duration:     types.UnknownDuration(),
		CreatedAt:    time.Now(),
	})

	taskID = s.tracker.Create(types.TaskKindAnalyze, videoID)
	job := types.Job{TaskId: taskID, Kind: types.TaskKindAnalyze, VideoId: videoID}
	if err = s.dispatch(ctx, job); err != nil {
		return videoID, taskID, err
	}
	log.GetLogger().Info("[Service] upload registered",
		zap.String("video_id", videoID),
		zap.String("task_id", taskID),
		zap.String("name", name))
	return videoID, taskID, nil
}

// SubmitChatTurn queues one chat turn. Turns of a video are applied in the
// order they are submitted; tickets are dispatched in the order they are
// issued, so a FIFO dispatcher never hands a worker a turn whose predecessor
// is still queued behind it.
func (s *Service) SubmitChatTurn(ctx context.Context, videoID, instruction string) (string, error) {
	instruction = strings.TrimSpace(instruction)
	if instruction == "" {
		return "", apperrors.New(apperrors.CodeInvalidParams, "Chat message is empty")
	}
	if _, err := s.Video(videoID); err != nil {
		return "", err
	}

	s.submitMu.Lock()
	defer s.submitMu.Unlock()

	ticket := s.sequencer.Ticket(videoID)
	taskID := s.tracker.Create(types.TaskKindChat, videoID)
	job := types.Job{
		TaskId:      taskID,
		Kind:        types.TaskKindChat,
		VideoId:     videoID,
		Instruction: instruction,
		Ticket:      ticket,
	}
	if err := s.dispatch(ctx, job); err != nil {
		s.sequencer.Done(videoID, ticket)
		return taskID, err
	}
	return taskID, nil
}

// SubmitFinalize validates every range up front and queues the assembly.
// One bad range rejects the whole request. Each call writes a new output.
func (s *Service) SubmitFinalize(ctx context.Context, videoID string, cuts []CutInput) (taskID, outputPath string, err error) {
	asset, err := s.Video(videoID)
	if err != nil {
		return "", "", err
	}
	ranges, err := ParseCuts(cuts, asset.Duration)
	if err != nil {
		return "", "", err
	}
	if err = os.MkdirAll(s.roots.Processed, 0o755); err != nil {
		return "", "", apperrors.Wrap(apperrors.CodeFileWriteError, "Create output directory failed", err)
	}

	taskID = s.tracker.Create(types.TaskKindFinalize, videoID)
	outputPath = finalOutputPath(s.roots.Processed, videoID, taskID, asset.Path)
	job := types.Job{
		TaskId:     taskID,
		Kind:       types.TaskKindFinalize,
		VideoId:    videoID,
		Cuts:       ranges,
		OutputPath: outputPath,
	}
	if err = s.dispatch(ctx, job); err != nil {
		return taskID, "", err
	}
	return taskID, outputPath, nil
}

// ParseCuts parses and validates user ranges against d, keeping their order.
func ParseCuts(cuts []CutInput, d types.Duration) ([]types.CutRange, error) {
	if len(cuts) == 0 {
		return nil, apperrors.New(apperrors.CodeInvalidRange, "No cuts to finalize")
	}
	ranges := make([]types.CutRange, 0, len(cuts))
	for i, c := range cuts {
		start, err := timecode.Parse(c.Start)
		if err != nil {
			return nil, apperrors.WrapWithDetail(apperrors.CodeMalformedTimestamp, "Malformed timestamp",
				fmt.Sprintf("cut %d start: %q", i, c.Start), err)
		}
		end, err := timecode.Parse(c.End)
		if err != nil {
			return nil, apperrors.WrapWithDetail(apperrors.CodeMalformedTimestamp, "Malformed timestamp",
				fmt.Sprintf("cut %d end: %q", i, c.End), err)
		}
		r, err := types.CutRange{Start: start, End: end}.Validate(d)
		if err != nil {
			return nil, apperrors.WrapWithDetail(apperrors.CodeInvalidRange, "Invalid cut range",
				fmt.Sprintf("cut %d", i), err)
		}
		ranges = append(ranges, r)
	}
	return ranges, nil
}

// PollStatus never fails; an unknown id yields Found=false.
func (s *Service) PollStatus(taskID string) StatusView {
	rec, err := s.tracker.Get(taskID)
	if err != nil {
		return StatusView{
			Found:         false,
			TaskId:        taskID,
			State:         types.TaskStatePending,
			StatusMessage: "Task not found",
		}
	}
	return StatusView{
		Found:         true,
		TaskId:        rec.TaskId,
		Kind:          rec.Kind,
		VideoId:       rec.VideoId,
		State:         rec.State,
		StatusMessage: rec.StatusMsg,
		Result:        rec.Result,
		Error:         rec.Error,
	}
}

// OutputFor returns the output file of a succeeded finalize task.
func (s *Service) OutputFor(taskID string) (string, error) {
	rec, err := s.tracker.Get(taskID)
	if err != nil {
		return "", err
	}
	if rec.Kind != types.TaskKindFinalize || rec.State != types.TaskStateSucceeded || rec.Result == nil {
		return "", apperrors.WrapWithDetail(apperrors.CodeNotFound, "Output not available",
			fmt.Sprintf("task %s is %s %s", taskID, rec.Kind, rec.State), nil)
	}
	return ensureWithin(s.roots.Processed, rec.Result.OutputPath)
}

// History returns the chat turns of a video in order.
func (s *Service) History(ctx context.Context, videoID string) ([]types.ConversationTurn, error) {
	if _, err := s.Video(videoID); err != nil {
		return nil, err
	}
	return s.history.History(ctx, videoID)
}

// dispatch hands the job over. A job that never reached a worker is failed
// right away so pollers do not wait on it forever.
func (s *Service) dispatch(ctx context.Context, job types.Job) error {
	var err error
	if s.dispatcher == nil {
		err = apperrors.New(apperrors.CodeUnknown, "no dispatcher configured")
	} else {
		err = s.dispatcher.Dispatch(ctx, job)
	}
	if err == nil {
		return nil
	}

	log.GetLogger().Error("[Service] dispatch failed",
		zap.String("task_id", job.TaskId),
		zap.String("kind", string(job.Kind)),
		zap.Error(err))
	if startErr := s.tracker.Start(job.TaskId, ""); startErr == nil {
		_ = s.tracker.Fail(job.TaskId, err, "Could not be queued")
	}
	return err
}
