package service

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"ai-video-cutter/internal/conversation"
	"ai-video-cutter/internal/types"
	"ai-video-cutter/log"
	apperrors "ai-video-cutter/pkg/errors"

	"go.uber.org/zap"
)

var turnStallGrace = 5 * time.Second

// Execute runs one job to a terminal state. Chat jobs first wait for the
// earlier turns of their video. The returned error is the task's failure,
// already recorded on the task.
func (s *Service) Execute(ctx context.Context, job types.Job) error {
	if job.Kind != types.TaskKindChat {
		return s.run(ctx, job)
	}

	// Only the delivery that moves the task out of PENDING releases its
	// ticket; a duplicate delivery must not let the next turn start early.
	if !s.runnable(job) {
		return nil
	}
	release := func() { s.sequencer.Done(job.VideoId, job.Ticket) }
	if err := s.sequencer.WaitWithin(ctx, job.VideoId, job.Ticket, s.turnStall()); err != nil {
		if s.failPending(job, err) {
			release()
		}
		return err
	}
	return s.runThen(ctx, job, release)
}

// turnStall bounds how long a chat turn waits without any earlier turn of
// its video finishing. Each earlier turn runs under the chat timeout.
func (s *Service) turnStall() time.Duration {
	timeout := s.timeoutFor(types.TaskKindChat)
	if timeout <= 0 {
		return 0
	}
	return timeout + turnStallGrace
}

// ExecuteIfReady is Execute for dispatchers that may deliver chat jobs out
// of order. It returns conversation.ErrTurnPending, without side effects,
// when an earlier turn of the same video has not finished.
func (s *Service) ExecuteIfReady(ctx context.Context, job types.Job) error {
	if job.Kind == types.TaskKindChat && s.runnable(job) && !s.sequencer.Ready(job.VideoId, job.Ticket) {
		if s.sequencer.Pending(job.VideoId) > 0 {
			return conversation.ErrTurnPending
		}
	}
	return s.Execute(ctx, job)
}

// runnable reports whether the job's task still waits to be run. Tasks that
// were failed at dispatch or by a restart are skipped.
func (s *Service) runnable(job types.Job) bool {
	rec, err := s.tracker.Get(job.TaskId)
	if err != nil {
		log.GetLogger().Warn("[Service] skipping job of unknown task", zap.String("task_id", job.TaskId))
		return false
	}
	if rec.State != types.TaskStatePending {
		log.GetLogger().Info("[Service] skipping job of settled task",
			zap.String("task_id", job.TaskId),
			zap.String("state", string(rec.State)))
		return false
	}
	return true
}

func (s *Service) run(ctx context.Context, job types.Job) error {
	return s.runThen(ctx, job, nil)
}

// runThen is run with a release hook called once the task, after having
// been started by this call, reaches a terminal state.
func (s *Service) runThen(ctx context.Context, job types.Job, release func()) (err error) {
	if !s.runnable(job) {
		return nil
	}
	if err = s.tracker.Start(job.TaskId, startMessage(job.Kind)); err != nil {
		return err
	}
	if release != nil {
		defer release()
	}

	if timeout := s.timeoutFor(job.Kind); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			log.GetLogger().Error("[Service] task panicked",
				zap.String("task_id", job.TaskId),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()))
			err = apperrors.New(apperrors.CodeUnknown, fmt.Sprintf("task panicked: %v", r))
			_ = s.tracker.Fail(job.TaskId, err, "")
		}
	}()

	var result *types.TaskResult
	switch job.Kind {
	case types.TaskKindAnalyze:
		result, err = s.analyze(ctx, job)
	case types.TaskKindChat:
		result, err = s.chat(ctx, job)
	case types.TaskKindFinalize:
		result, err = s.finalize(ctx, job)
	default:
		err = apperrors.New(apperrors.CodeInvalidParams, "unknown task kind "+string(job.Kind))
	}

	if err != nil {
		log.GetLogger().Error("[Service] task failed",
			zap.String("task_id", job.TaskId),
			zap.String("kind", string(job.Kind)),
			zap.String("video_id", job.VideoId),
			zap.String("error_kind", apperrors.KindOf(err)),
			zap.Error(err))
		if failErr := s.tracker.Fail(job.TaskId, err, ""); failErr != nil {
			log.GetLogger().Warn("[Service] record failure failed", zap.String("task_id", job.TaskId), zap.Error(failErr))
		}
		return err
	}
	if err = s.tracker.Succeed(job.TaskId, result, ""); err != nil {
		return err
	}
	log.GetLogger().Info("[Service] task succeeded",
		zap.String("task_id", job.TaskId),
		zap.String("kind", string(job.Kind)),
		zap.String("video_id", job.VideoId))
	return nil
}

// failPending fails a task that never started, e.g. when waiting for its
// turn was canceled. It reports whether this call settled the task.
func (s *Service) failPending(job types.Job, cause error) bool {
	if err := s.tracker.Start(job.TaskId, ""); err != nil {
		return false
	}
	_ = s.tracker.Fail(job.TaskId, cause, "")
	return true
}

func startMessage(kind types.TaskKind) string {
	switch kind {
	case types.TaskKindAnalyze:
		return "Probing video"
	case types.TaskKindChat:
		return "Asking for cut proposal"
	case types.TaskKindFinalize:
		return "Assembling video"
	}
	return "Running"
}

// analyze probes the duration. On failure the asset keeps an unknown
// duration, which range validation treats as unbounded, and the task fails.
func (s *Service) analyze(ctx context.Context, job types.Job) (*types.TaskResult, error) {
	asset, err := s.Video(job.VideoId)
	if err != nil {
		return nil, err
	}

	seconds, err := s.media.ProbeDuration(ctx, asset.Path)
	if err != nil {
		s.updateVideo(asset.Id, func(v *types.VideoAsset) {
			v.Probed = true
			v.Duration = types.UnknownDuration()
			v.ProbeError = err.Error()
		})
		return nil, err
	}

	d := types.KnownDuration(seconds)
	s.updateVideo(asset.Id, func(v *types.VideoAsset) {
		v.Probed = true
		v.Duration = d
		v.ProbeError = ""
	})
	return &types.TaskResult{Duration: &d}, nil
}

// chat asks for a proposal and appends the user and assistant turns as one
// unit. A failed proposal leaves the history untouched. The engine decides
// how much of the history goes into the request.
func (s *Service) chat(ctx context.Context, job types.Job) (*types.TaskResult, error) {
	asset, err := s.Video(job.VideoId)
	if err != nil {
		return nil, err
	}
	turns, err := s.history.History(ctx, job.VideoId)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeUnknown, "Load chat history failed", err)
	}

	proposal, err := s.proposer.Propose(ctx, asset, conversation.ToMessages(turns, 0), job.Instruction)
	if err != nil {
		return nil, err
	}

	if _, err = s.history.Append(ctx, job.VideoId,
		types.ConversationTurn{Role: types.RoleUser, Content: job.Instruction},
		types.ConversationTurn{Role: types.RoleAssistant, Content: proposal.AiMessage},
	); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeUnknown, "Append chat history failed", err)
	}
	return &types.TaskResult{Proposal: &proposal}, nil
}

func (s *Service) finalize(ctx context.Context, job types.Job) (*types.TaskResult, error) {
	asset, err := s.Video(job.VideoId)
	if err != nil {
		return nil, err
	}
	timeline := types.NewTimeline(job.Cuts...)
	_ = s.tracker.Progress(job.TaskId, fmt.Sprintf("Extracting %d segment(s)", timeline.Len()))

	out, err := s.assembler.Assemble(ctx, job.TaskId, asset.Path, timeline, job.OutputPath)
	if err != nil {
		return nil, err
	}
	return &types.TaskResult{OutputPath: out}, nil
}
