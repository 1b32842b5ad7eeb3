package service

import (
	"ai-video-cutter/internal/types"
)

// VideoState is derived from a video's task records; it is never stored.
type VideoState string

const (
	VideoStateUploaded   VideoState = "UPLOADED"
	VideoStateAnalyzed   VideoState = "ANALYZED"
	VideoStateConversing VideoState = "CONVERSING"
	VideoStateFinalized  VideoState = "FINALIZED"
)

// VideoStateView is the projection plus the facts it was derived from.
type VideoStateView struct {
	VideoId         string         `json:"video_id"`
	State           VideoState     `json:"state"`
	Duration        types.Duration `json:"duration"`
	CompletedChats  int            `json:"completed_chats"`
	FinalizedOutput []string       `json:"finalized_outputs"`
}

// VideoState projects the furthest stage any succeeded task has reached. A
// video keeps FINALIZED while more chats or finalizes follow.
func (s *Service) VideoState(videoID string) (VideoStateView, error) {
	asset, err := s.Video(videoID)
	if err != nil {
		return VideoStateView{}, err
	}

	view := VideoStateView{
		VideoId:         videoID,
		State:           VideoStateUploaded,
		Duration:        asset.Duration,
		FinalizedOutput: []string{},
	}
	analyzed := false
	for _, rec := range s.tracker.ListByVideo(videoID) {
		if rec.State != types.TaskStateSucceeded {
			continue
		}
		switch rec.Kind {
		case types.TaskKindAnalyze:
			analyzed = true
		case types.TaskKindChat:
			view.CompletedChats++
		case types.TaskKindFinalize:
			if rec.Result != nil {
				view.FinalizedOutput = append(view.FinalizedOutput, rec.Result.OutputPath)
			}
		}
	}

	switch {
	case len(view.FinalizedOutput) > 0:
		view.State = VideoStateFinalized
	case view.CompletedChats > 0:
		view.State = VideoStateConversing
	case analyzed || asset.Duration.Known:
		view.State = VideoStateAnalyzed
	}
	return view, nil
}
