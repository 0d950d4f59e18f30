package entity

import (
	"slices"
	"time"
)

type TaskStatus string

const (
	TaskQueued     TaskStatus = "queued"
	TaskResolving  TaskStatus = "resolving"
	TaskResolved   TaskStatus = "resolved"
	TaskTerminated TaskStatus = "terminated"
	TaskFailed     TaskStatus = "failed"
)

var ActiveTaskStatuses = []TaskStatus{TaskQueued, TaskResolving} //nolint:gochecknoglobals

func (s TaskStatus) String() string {
	return string(s)
}

func (s TaskStatus) IsActive() bool {
	return slices.Contains(ActiveTaskStatuses, s)
}

func (s TaskStatus) IsTerminal() bool {
	return !s.IsActive()
}

type TaskType string

const (
	TaskAddRepositories    TaskType = "add_repositories"
	TaskRemoveRepositories TaskType = "remove_repositories"
	TaskSetupWorkflows     TaskType = "setup_workflows"
	TaskPullRequestEvent   TaskType = "pull_request_event"
	TaskDispatchResolution TaskType = "merge_conflicts"
	TaskResolveConflict    TaskType = "resolve_conflict_ai"
)

type Task struct {
	Id        string     `db:"id"`
	Type      TaskType   `db:"task_type"`
	Status    TaskStatus `db:"status"`
	PrId      *int64     `db:"pr_id"`
	MergeId   *int64     `db:"merge_id"`
	JobId     string     `db:"job_id"`
	FilePath  *string    `db:"file_path"`
	Result    *string    `db:"result"`
	Error     *string    `db:"error"`
	CreatedAt time.Time  `db:"created_at"`
	UpdatedAt time.Time  `db:"updated_at"`
}

// TaskResult is the last-known outcome of a resolution task, stored as JSON on the task row.
type TaskResult struct {
	ResolvedCode    string  `json:"resolved_code"`
	ConfidenceScore float64 `json:"confidence_score"`
	Unresolved      int     `json:"unresolved"`
	Branch          string  `json:"branch,omitempty"`
}
