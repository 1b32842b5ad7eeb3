package storage

import (
	"encoding/json"
	"fmt"
	"time"

	"ai-video-cutter/internal/types"

	"gorm.io/gorm/clause"
)

// TaskRow is the persisted form of types.TaskRecord.
type TaskRow struct {
	TaskId       string `gorm:"primaryKey;size:64"`
	Kind         string `gorm:"size:16"`
	VideoId      string `gorm:"index;size:64"`
	State        string `gorm:"index;size:16"`
	StateRank    int
	StatusMsg    string
	ResultJson   string    `gorm:"type:text"`
	ErrorKind    string    `gorm:"size:32"`
	ErrorMessage string    `gorm:"type:text"`
	CreatedAt    time.Time `gorm:"autoCreateTime:false"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime:false"`
	StartedAt    *time.Time
	FinishedAt   *time.Time
}

func (TaskRow) TableName() string { return "tasks" }

// VideoRow is the persisted form of types.VideoAsset.
type VideoRow struct {
	VideoId         string `gorm:"primaryKey;size:64"`
	Path            string
	OriginalName    string
	DurationSeconds float64
	DurationKnown   bool
	Probed          bool
	ProbeError      string    `gorm:"type:text"`
	CreatedAt       time.Time `gorm:"autoCreateTime:false"`
}

func (VideoRow) TableName() string { return "videos" }

// stateRank orders lifecycle states so a late write of an older snapshot
// never overwrites a newer one.
func stateRank(s types.TaskState) int {
	switch s {
	case types.TaskStatePending:
		return 0
	case types.TaskStateRunning:
		return 1
	default:
		return 2
	}
}

func toTaskRow(rec types.TaskRecord) (TaskRow, error) {
	row := TaskRow{
		TaskId:     rec.TaskId,
		Kind:       string(rec.Kind),
		VideoId:    rec.VideoId,
		State:      string(rec.State),
		StateRank:  stateRank(rec.State),
		StatusMsg:  rec.StatusMsg,
		CreatedAt:  rec.CreatedAt,
		UpdatedAt:  rec.UpdatedAt,
		StartedAt:  rec.StartedAt,
		FinishedAt: rec.FinishedAt,
	}
	if rec.Result != nil {
		data, err := json.Marshal(rec.Result)
		if err != nil {
			return row, fmt.Errorf("marshal task result: %w", err)
		}
		row.ResultJson = string(data)
	}
	if rec.Error != nil {
		row.ErrorKind = rec.Error.Kind
		row.ErrorMessage = rec.Error.Message
	}
	return row, nil
}

func (row TaskRow) toRecord() (types.TaskRecord, error) {
	rec := types.TaskRecord{
		TaskId:     row.TaskId,
		Kind:       types.TaskKind(row.Kind),
		VideoId:    row.VideoId,
		State:      types.TaskState(row.State),
		StatusMsg:  row.StatusMsg,
		CreatedAt:  row.CreatedAt,
		UpdatedAt:  row.UpdatedAt,
		StartedAt:  row.StartedAt,
		FinishedAt: row.FinishedAt,
	}
	if row.ResultJson != "" {
		var result types.TaskResult
		if err := json.Unmarshal([]byte(row.ResultJson), &result); err != nil {
			return rec, fmt.Errorf("decode result of task %s: %w", row.TaskId, err)
		}
		rec.Result = &result
	}
	if row.State == string(types.TaskStateFailed) {
		rec.Error = &types.TaskError{Kind: row.ErrorKind, Message: row.ErrorMessage}
	}
	return rec, nil
}

// SaveTaskRecord upserts rec unless the stored row is already further along
// its lifecycle.
func (s *Store) SaveTaskRecord(rec types.TaskRecord) error {
	row, err := toTaskRow(rec)
	if err != nil {
		return err
	}
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "task_id"}},
		UpdateAll: true,
		Where: clause.Where{Exprs: []clause.Expression{
			clause.Expr{SQL: "tasks.state_rank <= excluded.state_rank"},
		}},
	}).Create(&row).Error
}

// LoadTasks returns every stored task, oldest first.
func (s *Store) LoadTasks() ([]types.TaskRecord, error) {
	var rows []TaskRow
	if err := s.db.Order("created_at asc").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]types.TaskRecord, 0, len(rows))
	for _, row := range rows {
		rec, err := row.toRecord()
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// MarkStaleTasks fails every task a previous process left PENDING or
// RUNNING. It should be called on server startup before records are loaded.
func (s *Store) MarkStaleTasks(now time.Time) (int64, error) {
	result := s.db.Model(&TaskRow{}).
		Where("state IN ?", []string{string(types.TaskStatePending), string(types.TaskStateRunning)}).
		Updates(map[string]interface{}{
			"state":         string(types.TaskStateFailed),
			"state_rank":    stateRank(types.TaskStateFailed),
			"status_msg":    "Interrupted",
			"error_kind":    "Unknown",
			"error_message": "task interrupted by server restart",
			"updated_at":    now,
			"finished_at":   now,
		})
	return result.RowsAffected, result.Error
}

// SaveVideo upserts an asset.
func (s *Store) SaveVideo(v types.VideoAsset) error {
	row := VideoRow{
		VideoId:         v.Id,
		Path:            v.Path,
		OriginalName:    v.OriginalName,
		DurationSeconds: v.Duration.Seconds,
		DurationKnown:   v.Duration.Known,
		Probed:          v.Probed,
		ProbeError:      v.ProbeError,
		CreatedAt:       v.CreatedAt,
	}
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "video_id"}},
		UpdateAll: true,
	}).Create(&row).Error
}

// ListVideos returns every stored asset, oldest first.
func (s *Store) ListVideos() ([]types.VideoAsset, error) {
	var rows []VideoRow
	if err := s.db.Order("created_at asc").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]types.VideoAsset, 0, len(rows))
	for _, row := range rows {
		out = append(out, types.VideoAsset{
			Id:           row.VideoId,
			Path:         row.Path,
			OriginalName: row.OriginalName,
			Duration:     types.Duration{Seconds: row.DurationSeconds, Known: row.DurationKnown},
			Probed:       row.Probed,
			ProbeError:   row.ProbeError,
			CreatedAt:    row.CreatedAt,
		})
	}
	return out, nil
}
