// Package queue maps tasks onto asynq jobs: enqueueing and cancellation on the API side,
// handlers on the worker side.
package queue

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	jsoniter "github.com/json-iterator/go"

	"github.com/int-code/git-sleuth/internal/domain"
	"github.com/int-code/git-sleuth/internal/domain/entity"
	"github.com/int-code/git-sleuth/internal/domain/service"
	"github.com/int-code/git-sleuth/pkg/contextx"
	"github.com/int-code/git-sleuth/pkg/errcodes"
)

//nolint:gochecknoglobals
var (
	logger = contextx.LoggerFromContextOrDefault
	json   = jsoniter.ConfigCompatibleWithStandardLibrary
)

const (
	TypeRepositoryAdd     = "repository:add"
	TypeRepositoryRemove  = "repository:remove"
	TypeSetupWorkflows    = "repository:setup_workflows"
	TypePullRequestEvent  = "pull_request:event"
	TypeConflictDispatch  = "conflict:dispatch"
	TypeConflictResolve   = "conflict:resolve"
	TypeStaleTaskSweep    = "tasks:sweep"
	QueueCritical         = "critical"
	QueueDefault          = "default"
	QueueResolution       = "resolution"
	defaultResolveTimeout = 15 * time.Minute
)

// Queues are the worker's queue priorities.
var Queues = map[string]int{ //nolint:gochecknoglobals
	QueueCritical:   6,
	QueueResolution: 3,
	QueueDefault:    1,
}

type route struct {
	typeName string
	queue    string
}

var routes = map[entity.TaskType]route{ //nolint:gochecknoglobals
	entity.TaskAddRepositories:    {TypeRepositoryAdd, QueueDefault},
	entity.TaskRemoveRepositories: {TypeRepositoryRemove, QueueDefault},
	entity.TaskSetupWorkflows:     {TypeSetupWorkflows, QueueDefault},
	entity.TaskPullRequestEvent:   {TypePullRequestEvent, QueueCritical},
	entity.TaskDispatchResolution: {TypeConflictDispatch, QueueCritical},
	entity.TaskResolveConflict:    {TypeConflictResolve, QueueResolution},
}

type Queue struct {
	client         *asynq.Client
	inspector      *asynq.Inspector
	maxRetry       int
	resolveTimeout time.Duration
}

func NewQueue(client *asynq.Client, inspector *asynq.Inspector, maxRetry int, resolveTimeout time.Duration) *Queue {
	if resolveTimeout <= 0 {
		resolveTimeout = defaultResolveTimeout
	}
	return &Queue{
		client:         client,
		inspector:      inspector,
		maxRetry:       maxRetry,
		resolveTimeout: resolveTimeout,
	}
}

// Enqueue submits the job under the task's id. A job already queued under that id is left as is.
func (q *Queue) Enqueue(ctx context.Context, job service.Job) error {
	r, ok := routes[job.Type]
	if !ok {
		return domain.NewError(errcodes.InternalServerError, "no queue route for task type "+string(job.Type))
	}

	payload, err := json.Marshal(job.Payload)
	if err != nil {
		return domain.WrapError(err, errcodes.InternalServerError, "failed to encode job payload")
	}

	opts := []asynq.Option{
		asynq.TaskID(job.TaskId),
		asynq.Queue(r.queue),
		asynq.MaxRetry(q.maxRetry),
	}
	if job.Type == entity.TaskResolveConflict {
		opts = append(opts, asynq.Timeout(q.resolveTimeout))
	}

	info, err := q.client.EnqueueContext(ctx, asynq.NewTask(r.typeName, payload), opts...)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		logger(ctx).Info("job already enqueued", slog.String("task_id", job.TaskId))
		return nil
	}
	if err != nil {
		return domain.WrapError(err, errcodes.InternalServerError, "failed to enqueue "+r.typeName)
	}

	logger(ctx).Debug("job enqueued",
		slog.String("task_id", info.ID),
		slog.String("queue", info.Queue),
		slog.String("type", info.Type),
	)
	return nil
}

// Cancel asks the worker running the job to stop and drops the job if it has not started.
// Both are fire-and-forget: the persisted task status is the source of truth.
func (q *Queue) Cancel(ctx context.Context, taskId string) {
	if err := q.inspector.CancelProcessing(taskId); err != nil {
		logger(ctx).Warn("cancel running job", slog.String("task_id", taskId), slog.Any("error", err))
	}

	for name := range Queues {
		err := q.inspector.DeleteTask(name, taskId)
		switch {
		case err == nil:
			logger(ctx).Debug("pending job deleted", slog.String("task_id", taskId), slog.String("queue", name))
		case errors.Is(err, asynq.ErrTaskNotFound), errors.Is(err, asynq.ErrQueueNotFound):
		default:
			logger(ctx).Warn("delete pending job", slog.String("task_id", taskId), slog.Any("error", err))
		}
	}
}

// NewSweepTask is the periodic stale task sweep.
func NewSweepTask() *asynq.Task {
	return asynq.NewTask(TypeStaleTaskSweep, nil, asynq.Queue(QueueDefault), asynq.MaxRetry(0))
}
