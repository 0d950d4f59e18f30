package service

import "github.com/int-code/git-sleuth/internal/domain/event"

type RepositoriesJob struct {
	InstallationId int64              `json:"installation_id"`
	Repositories   []event.Repository `json:"repositories"`
}

type SetupWorkflowsJob struct {
	InstallationId int64  `json:"installation_id"`
	FullName       string `json:"full_name"`
}

// PullRequestJob carries the raw delivery; the worker parses it again.
type PullRequestJob struct {
	Body []byte `json:"body"`
}

type DispatchJob struct {
	MergeId int64 `json:"merge_id"`
}

type ResolveJob struct {
	MergeId  *int64 `json:"merge_id,omitempty"`
	FilePath string `json:"file_path"`
	File     string `json:"file"`
	Final    bool   `json:"final,omitempty"`
}
