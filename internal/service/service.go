// Package service composes the pipeline: it registers uploads, submits
// analyze, chat and finalize tasks to a dispatcher and executes them.
package service

import (
	"context"
	"sync"
	"time"

	"ai-video-cutter/internal/conversation"
	"ai-video-cutter/internal/jobs"
	"ai-video-cutter/internal/metrics"
	"ai-video-cutter/internal/types"
	"ai-video-cutter/log"
	apperrors "ai-video-cutter/pkg/errors"

	"go.uber.org/zap"
)

// Dispatcher carries a submitted job to a worker that calls Execute (or
// ExecuteIfReady). Dispatch must not block on the job itself.
type Dispatcher interface {
	Dispatch(ctx context.Context, job types.Job) error
}

// Proposer turns a chat instruction into a cut proposal.
type Proposer interface {
	Propose(ctx context.Context, video types.VideoAsset, history []types.Message, instruction string) (types.CutProposal, error)
}

// Assembler builds the final file from an ordered timeline.
type Assembler interface {
	Assemble(ctx context.Context, jobID, sourcePath string, timeline types.Timeline, outputPath string) (string, error)
}

// VideoPersister stores video assets across restarts.
type VideoPersister interface {
	SaveVideo(v types.VideoAsset) error
}

// Deps are the collaborators, constructed once at process start.
type Deps struct {
	Tracker   *jobs.Tracker
	History   conversation.Store
	Sequencer *conversation.Sequencer
	Proposer  Proposer
	Media     types.MediaTool
	Assembler Assembler
	Videos    VideoPersister
	Metrics   *metrics.Collector
}

type Options struct {
	Roots Roots
	// Timeouts bound one execution per task kind; zero means unbounded.
	Timeouts map[types.TaskKind]time.Duration
}

type Service struct {
	tracker   *jobs.Tracker
	history   conversation.Store
	sequencer *conversation.Sequencer
	proposer  Proposer
	media     types.MediaTool
	assembler Assembler
	videos    VideoPersister
	metrics   *metrics.Collector

	roots    Roots
	timeouts map[types.TaskKind]time.Duration

	dispatcher Dispatcher
	// submitMu keeps chat tickets and enqueue order in step.
	submitMu sync.Mutex

	mu     sync.RWMutex
	assets map[string]*types.VideoAsset
}

func NewService(deps Deps, opts Options) *Service {
	if deps.Tracker == nil {
		deps.Tracker = jobs.NewTracker()
	}
	if deps.History == nil {
		deps.History = conversation.NewMemoryStore()
	}
	if deps.Sequencer == nil {
		deps.Sequencer = conversation.NewSequencer()
	}
	timeouts := make(map[types.TaskKind]time.Duration, len(opts.Timeouts))
	for k, v := range opts.Timeouts {
		timeouts[k] = v
	}
	return &Service{
		tracker:   deps.Tracker,
		history:   deps.History,
		sequencer: deps.Sequencer,
		proposer:  deps.Proposer,
		media:     deps.Media,
		assembler: deps.Assembler,
		videos:    deps.Videos,
		metrics:   deps.Metrics,
		roots:     opts.Roots,
		timeouts:  timeouts,
		assets:    make(map[string]*types.VideoAsset),
	}
}

// SetDispatcher wires the dispatcher. Dispatchers are built around Execute,
// so this happens after NewService and before the first submission.
func (s *Service) SetDispatcher(d Dispatcher) {
	s.dispatcher = d
}

func (s *Service) Roots() Roots {
	return s.roots
}

// Video returns a copy of the registered asset.
func (s *Service) Video(videoID string) (types.VideoAsset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	asset, ok := s.assets[videoID]
	if !ok {
		return types.VideoAsset{}, apperrors.WrapWithDetail(apperrors.CodeVideoNotFound, "Video not found", "video_id: "+videoID, nil)
	}
	return *asset, nil
}

func (s *Service) registerVideo(asset types.VideoAsset) {
	s.mu.Lock()
	cp := asset
	s.assets[asset.Id] = &cp
	s.mu.Unlock()
	s.persistVideo(asset)
}

// updateVideo applies fn to the stored asset and persists the result.
func (s *Service) updateVideo(videoID string, fn func(*types.VideoAsset)) {
	s.mu.Lock()
	asset, ok := s.assets[videoID]
	if !ok {
		s.mu.Unlock()
		return
	}
	fn(asset)
	snapshot := *asset
	s.mu.Unlock()
	s.persistVideo(snapshot)
}

func (s *Service) persistVideo(asset types.VideoAsset) {
	if s.videos == nil {
		return
	}
	if err := s.videos.SaveVideo(asset); err != nil {
		log.GetLogger().Warn("[Service] persist video failed", zap.String("video_id", asset.Id), zap.Error(err))
	}
}

// Restore reloads persisted assets and task records after a restart.
func (s *Service) Restore(videos []types.VideoAsset, tasks []types.TaskRecord) {
	s.mu.Lock()
	for _, v := range videos {
		cp := v
		s.assets[v.Id] = &cp
	}
	s.mu.Unlock()
	s.tracker.Restore(tasks)
	log.GetLogger().Info("[Service] state restored", zap.Int("videos", len(videos)), zap.Int("tasks", len(tasks)))
}

func (s *Service) timeoutFor(kind types.TaskKind) time.Duration {
	return s.timeouts[kind]
}
