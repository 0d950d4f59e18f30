package service

import (
	"context"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/int-code/git-sleuth/internal/domain/entity"
	"github.com/int-code/git-sleuth/pkg/contextx"
)

//nolint:gochecknoglobals
var (
	logger = contextx.LoggerFromContextOrDefault
	json   = jsoniter.ConfigCompatibleWithStandardLibrary
)

// Transactor runs fn in a transaction carried by ctx. Nested calls join the outer transaction.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type RepositoryRepository interface {
	Upsert(ctx context.Context, repo entity.Repository) (entity.Repository, error)
	MarkRemoved(ctx context.Context, githubId int64) (entity.Repository, error)
	GetById(ctx context.Context, id int64) (entity.Repository, error)
	GetByGithubId(ctx context.Context, githubId int64) (entity.Repository, error)
}

// The Lock* methods take a row lock for the rest of the transaction. Locks are always taken
// in the order pull request, merge conflict, task.

type PullRequestRepository interface {
	Create(ctx context.Context, pr entity.PullRequest) (entity.PullRequest, error)
	GetById(ctx context.Context, id int64) (entity.PullRequest, error)
	LockById(ctx context.Context, id int64) (entity.PullRequest, error)
	LockByGithubId(ctx context.Context, githubId int64) (entity.PullRequest, error)
	UpdateSnapshot(ctx context.Context, pr entity.PullRequest) error
	SetMergeable(ctx context.Context, id int64, mergeable entity.Mergeable) error
}

type MergeConflictRepository interface {
	Create(ctx context.Context, mc entity.MergeConflict) (entity.MergeConflict, error)
	GetById(ctx context.Context, id int64) (entity.MergeConflict, error)
	LockById(ctx context.Context, id int64) (entity.MergeConflict, error)
	LockActiveByPr(ctx context.Context, prId int64) (entity.MergeConflict, error)
	LockLatestByPr(ctx context.Context, prId int64, status entity.MergeConflictStatus) (entity.MergeConflict, error)
	// UpdateStatus fails with Conflict when the row is no longer in status from.
	UpdateStatus(ctx context.Context, id int64, from, to entity.MergeConflictStatus) error
	ListFilePaths(ctx context.Context, id int64) ([]string, error)
}

type TaskRepository interface {
	Create(ctx context.Context, task entity.Task) (entity.Task, error)
	GetById(ctx context.Context, id string) (entity.Task, error)
	LockById(ctx context.Context, id string) (entity.Task, error)
	LockActiveByMerge(ctx context.Context, mergeId int64) ([]entity.Task, error)
	UpdateStatus(ctx context.Context, id string, status entity.TaskStatus) error
	Finish(ctx context.Context, id string, status entity.TaskStatus, result, errText *string) error
	ListStale(ctx context.Context, updatedBefore time.Time) ([]entity.Task, error)
}

type ResolvedCodeRepository interface {
	Create(ctx context.Context, rc entity.ResolvedCode) (entity.ResolvedCode, error)
}

// Stores bundles the persistence ports every service is built from.
type Stores struct {
	Tx            Transactor
	Repositories  RepositoryRepository
	PullRequests  PullRequestRepository
	Conflicts     MergeConflictRepository
	Tasks         TaskRepository
	ResolvedCodes ResolvedCodeRepository
}

type ProbeRequest struct {
	Owner          string
	Repo           string
	Number         int
	InstallationId int64
}

// Prober reports upstream mergeability. It fails with TimeoutError once its attempts are
// exhausted and with UpstreamError on a non-2xx response.
type Prober interface {
	Probe(ctx context.Context, req ProbeRequest) (entity.Mergeable, error)
}

type DispatchRequest struct {
	FullName       string
	InstallationId int64
	HeadRef        string
	BaseRef        string
	MergeId        int64
}

type WorkflowDispatcher interface {
	DispatchResolution(ctx context.Context, req DispatchRequest) error
}

type WorkflowInstaller interface {
	InstallWorkflows(ctx context.Context, installationId int64, fullName string) error
}

// ChunkResolver is the AI resolution engine.
type ChunkResolver interface {
	Resolve(ctx context.Context, filePath, chunk string) (entity.ChunkResolution, error)
}

type Job struct {
	TaskId  string
	Type    entity.TaskType
	Payload any
}

type JobQueue interface {
	Enqueue(ctx context.Context, job Job) error
	// Cancel signals a running job and drops a pending one. It never waits for the worker.
	Cancel(ctx context.Context, taskId string)
}

// Subscription delivers a task's progress messages until the completion sentinel.
type Subscription interface {
	Next(ctx context.Context) (msg entity.Progress, done bool, err error)
	Close() error
}

type Notifier interface {
	Publish(ctx context.Context, msg entity.Progress) error
	// Done publishes the completion sentinel.
	Done(ctx context.Context, taskId string) error
	Subscribe(ctx context.Context, taskId string) (Subscription, error)
}
