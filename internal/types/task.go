package types

import "time"

type TaskKind string

const (
	TaskKindAnalyze  TaskKind = "analyze"
	TaskKindChat     TaskKind = "chat"
	TaskKindFinalize TaskKind = "finalize"
)

type TaskState string

const (
	TaskStatePending   TaskState = "PENDING"
	TaskStateRunning   TaskState = "RUNNING"
	TaskStateSucceeded TaskState = "SUCCEEDED"
	TaskStateFailed    TaskState = "FAILED"
)

func (s TaskState) IsTerminal() bool {
	return s == TaskStateSucceeded || s == TaskStateFailed
}

// TaskResult holds the kind-specific payload of a succeeded task.
type TaskResult struct {
	Duration   *Duration    `json:"duration,omitempty"`
	Proposal   *CutProposal `json:"proposal,omitempty"`
	OutputPath string       `json:"output_path,omitempty"`
}

// Clone returns a deep copy so that callers never share slices or pointers
// with the tracker.
func (r *TaskResult) Clone() *TaskResult {
	if r == nil {
		return nil
	}
	out := &TaskResult{OutputPath: r.OutputPath}
	if r.Duration != nil {
		d := *r.Duration
		out.Duration = &d
	}
	if r.Proposal != nil {
		p := r.Proposal.Clone()
		out.Proposal = &p
	}
	return out
}

type TaskError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// TaskRecord is one asynchronous unit of work.
type TaskRecord struct {
	TaskId     string      `json:"task_id"`
	Kind       TaskKind    `json:"kind"`
	VideoId    string      `json:"video_id"`
	State      TaskState   `json:"state"`
	StatusMsg  string      `json:"status_msg,omitempty"`
	Result     *TaskResult `json:"result,omitempty"`
	Error      *TaskError  `json:"error,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at"`
	StartedAt  *time.Time  `json:"started_at,omitempty"`
	FinishedAt *time.Time  `json:"finished_at,omitempty"`
}

func (r TaskRecord) Clone() TaskRecord {
	out := r
	out.Result = r.Result.Clone()
	if r.Error != nil {
		e := *r.Error
		out.Error = &e
	}
	if r.StartedAt != nil {
		t := *r.StartedAt
		out.StartedAt = &t
	}
	if r.FinishedAt != nil {
		t := *r.FinishedAt
		out.FinishedAt = &t
	}
	return out
}

// Job is what a dispatcher carries from submission to a worker. It holds
// everything needed to run the task so it can cross a process boundary.
type Job struct {
	TaskId      string     `json:"task_id"`
	Kind        TaskKind   `json:"kind"`
	VideoId     string     `json:"video_id"`
	Instruction string     `json:"instruction,omitempty"`
	Cuts        []CutRange `json:"cuts,omitempty"`
	OutputPath  string     `json:"output_path,omitempty"`
	Ticket      uint64     `json:"ticket,omitempty"`
}
