package queue

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/int-code/git-sleuth/internal/domain"
	"github.com/int-code/git-sleuth/internal/domain/service"
	"github.com/int-code/git-sleuth/pkg/contextx"
	"github.com/int-code/git-sleuth/pkg/errcodes"
)

type PullRequestProcessor interface {
	ProcessEvent(ctx context.Context, taskId string, job service.PullRequestJob) error
}

type RepositoryProvisioner interface {
	AddRepositories(ctx context.Context, taskId string, job service.RepositoriesJob) error
	RemoveRepositories(ctx context.Context, taskId string, job service.RepositoriesJob) error
	SetupWorkflows(ctx context.Context, taskId string, job service.SetupWorkflowsJob) error
}

type Dispatcher interface {
	Dispatch(ctx context.Context, taskId string, job service.DispatchJob) error
}

type Resolver interface {
	Resolve(ctx context.Context, taskId string, job service.ResolveJob) error
}

type Sweeper interface {
	Sweep(ctx context.Context) (int, error)
}

type Handlers struct {
	PullRequests PullRequestProcessor
	Repositories RepositoryProvisioner
	Dispatch     Dispatcher
	Resolution   Resolver
	Sweep        Sweeper
}

func NewMux(h Handlers) *asynq.ServeMux {
	mux := asynq.NewServeMux()

	mux.HandleFunc(TypeRepositoryAdd, handle(h.Repositories.AddRepositories))
	mux.HandleFunc(TypeRepositoryRemove, handle(h.Repositories.RemoveRepositories))
	mux.HandleFunc(TypeSetupWorkflows, handle(h.Repositories.SetupWorkflows))
	mux.HandleFunc(TypePullRequestEvent, handle(h.PullRequests.ProcessEvent))
	mux.HandleFunc(TypeConflictDispatch, handle(h.Dispatch.Dispatch))
	mux.HandleFunc(TypeConflictResolve, handle(h.Resolution.Resolve))
	mux.HandleFunc(TypeStaleTaskSweep, func(ctx context.Context, _ *asynq.Task) error {
		if _, err := h.Sweep.Sweep(ctx); err != nil {
			return fmt.Errorf("sweep: %w", err)
		}
		return nil
	})

	return mux
}

// handle decodes the job payload and runs fn with a task-scoped logger.
func handle[T any](fn func(ctx context.Context, taskId string, job T) error) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		taskId, _ := asynq.GetTaskID(ctx)
		ctx = contextx.WithLogAttrs(ctx,
			slog.String("task_id", taskId),
			slog.String("task_type", t.Type()),
		)

		var job T
		if err := json.Unmarshal(t.Payload(), &job); err != nil {
			logger(ctx).Error("undecodable job payload", slog.Any("error", err))
			return fmt.Errorf("decode %s payload: %w", t.Type(), asynq.SkipRetry)
		}

		return classify(fn(ctx, taskId, job))
	}
}

// classify stops asynq from retrying errors a retry cannot fix.
func classify(err error) error {
	if err == nil || !service.IsPermanent(err) {
		return err
	}
	return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
}

// IsFailure keeps cancelled jobs out of the queue's failure statistics.
func IsFailure(err error) bool {
	return !domain.HasCode(err, errcodes.CancellationError)
}
