package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/int-code/git-sleuth/internal/domain"
	"github.com/int-code/git-sleuth/internal/domain/entity"
	"github.com/int-code/git-sleuth/internal/metrics"
	"github.com/int-code/git-sleuth/pkg/errcodes"
)

// supervisor owns the bookkeeping shared by every service that starts, cancels or fails tasks.
type supervisor struct {
	stores   Stores
	queue    JobQueue
	notifier Notifier
}

// transition moves mc to next inside the caller's transaction.
func (s supervisor) transition(ctx context.Context, mc *entity.MergeConflict, next entity.MergeConflictStatus) error {
	if mc.Status == next {
		return nil
	}
	if !mc.Status.CanTransitionTo(next) {
		return domain.NewError(errcodes.Conflict,
			fmt.Sprintf("merge conflict %d cannot move from %s to %s", mc.Id, mc.Status, next))
	}
	if err := s.stores.Conflicts.UpdateStatus(ctx, mc.Id, mc.Status, next); err != nil {
		return fmt.Errorf("conflicts.UpdateStatus: %w", err)
	}

	logger(ctx).Info("merge conflict transition",
		slog.Int64("merge_id", mc.Id),
		slog.String("from", mc.Status.String()),
		slog.String("to", next.String()),
	)
	metrics.ConflictTransitions.WithLabelValues(next.String()).Inc()

	mc.Status = next
	return nil
}

// terminateActive marks the episode's queued and running tasks terminated and returns their ids.
// The caller cancels them with cancel once the transaction commits.
func (s supervisor) terminateActive(ctx context.Context, mergeId int64) ([]string, error) {
	tasks, err := s.stores.Tasks.LockActiveByMerge(ctx, mergeId)
	if err != nil {
		return nil, fmt.Errorf("tasks.LockActiveByMerge: %w", err)
	}

	ids := make([]string, 0, len(tasks))
	for _, t := range tasks {
		if err := s.stores.Tasks.UpdateStatus(ctx, t.Id, entity.TaskTerminated); err != nil {
			return nil, fmt.Errorf("tasks.UpdateStatus: %w", err)
		}
		ids = append(ids, t.Id)
	}
	return ids, nil
}

// cancel signals terminated tasks to their workers and closes their notification channels.
func (s supervisor) cancel(ctx context.Context, taskIds []string) {
	for _, id := range taskIds {
		s.queue.Cancel(ctx, id)

		if err := s.notifier.Publish(ctx, entity.Progress{TaskId: id, Status: entity.TaskTerminated}); err != nil {
			logger(ctx).Warn("publish termination", slog.String("task_id", id), slog.Any("error", err))
		}
		if err := s.notifier.Done(ctx, id); err != nil {
			logger(ctx).Warn("publish sentinel", slog.String("task_id", id), slog.Any("error", err))
		}

		metrics.Supersessions.Inc()
		logger(ctx).Info("task terminated", slog.String("task_id", id))
	}
}

// enqueue hands a committed task to the queue. When the queue refuses it the task is failed
// and its episode escalated, so the row never sits queued with no job behind it.
func (s supervisor) enqueue(ctx context.Context, job Job, mergeId *int64) error {
	err := s.queue.Enqueue(ctx, job)
	if err == nil {
		return nil
	}

	enqueueErr := domain.WrapError(err, errcodes.InternalServerError, "failed to enqueue job")
	if _, ferr := s.failTask(ctx, job.TaskId, mergeId, enqueueErr); ferr != nil {
		logger(ctx).Error("fail unqueued task", slog.String("task_id", job.TaskId), slog.Any("error", ferr))
	}
	return enqueueErr
}

// failTask marks an active task failed and escalates its episode. It reports false when the
// task had already reached a terminal status, in which case nothing is written.
func (s supervisor) failTask(ctx context.Context, taskId string, mergeId *int64, cause error) (bool, error) {
	var failed bool

	err := s.stores.Tx.WithinTx(ctx, func(ctx context.Context) error {
		var (
			mc  entity.MergeConflict
			err error
		)
		if mergeId != nil {
			if mc, err = s.stores.Conflicts.LockById(ctx, *mergeId); err != nil {
				return fmt.Errorf("conflicts.LockById: %w", err)
			}
		}

		task, err := s.stores.Tasks.LockById(ctx, taskId)
		if err != nil {
			return fmt.Errorf("tasks.LockById: %w", err)
		}
		if task.Status.IsTerminal() {
			return nil
		}

		msg := cause.Error()
		if err := s.stores.Tasks.Finish(ctx, taskId, entity.TaskFailed, nil, &msg); err != nil {
			return fmt.Errorf("tasks.Finish: %w", err)
		}
		failed = true

		if mergeId != nil && mc.Status.CanTransitionTo(entity.ConflictEscalated) {
			return s.transition(ctx, &mc, entity.ConflictEscalated)
		}
		return nil
	})
	if err != nil {
		return false, err
	}

	if failed {
		logger(ctx).Warn("task failed", slog.String("task_id", taskId), slog.Any("error", cause))
	}
	return failed, nil
}

// publishFinal emits a terminal progress message followed by the sentinel.
func (s supervisor) publishFinal(ctx context.Context, msg entity.Progress) {
	if err := s.notifier.Publish(ctx, msg); err != nil {
		logger(ctx).Warn("publish progress", slog.String("task_id", msg.TaskId), slog.Any("error", err))
	}
	if err := s.notifier.Done(ctx, msg.TaskId); err != nil {
		logger(ctx).Warn("publish sentinel", slog.String("task_id", msg.TaskId), slog.Any("error", err))
	}
}

// IsPermanent reports whether a task error must not be retried.
func IsPermanent(err error) bool {
	code, ok := domain.CodeOf(err)
	if !ok {
		return false
	}
	switch code {
	case errcodes.ValidationError, errcodes.TimeoutError, errcodes.UpstreamError,
		errcodes.ResolutionFailure, errcodes.CancellationError, errcodes.NotFound:
		return true
	}
	return false
}

// start moves a queued task to resolving. It reports false when the task is no longer queued,
// which happens for redeliveries and for tasks terminated before a worker picked them up.
func (s supervisor) start(ctx context.Context, taskId string) (bool, error) {
	var started bool
	err := s.stores.Tx.WithinTx(ctx, func(ctx context.Context) error {
		task, err := s.stores.Tasks.LockById(ctx, taskId)
		if err != nil {
			return fmt.Errorf("tasks.LockById: %w", err)
		}
		if task.Status != entity.TaskQueued {
			logger(ctx).Info("task not queued, skipped", slog.String("status", task.Status.String()))
			return nil
		}
		started = true
		return s.stores.Tasks.UpdateStatus(ctx, taskId, entity.TaskResolving)
	})
	return started, err
}

// checkpoint fails with CancellationError once ctx is done or the task was terminated.
// Long-running work calls it before every network call and persisted write.
func (s supervisor) checkpoint(ctx context.Context, taskId string) error {
	if err := ctx.Err(); err != nil {
		return domain.WrapError(err, errcodes.CancellationError, "task interrupted")
	}

	task, err := s.stores.Tasks.GetById(ctx, taskId)
	if err != nil {
		return fmt.Errorf("tasks.GetById: %w", err)
	}
	if task.Status != entity.TaskResolving {
		return domain.NewError(errcodes.CancellationError,
			fmt.Sprintf("task %s is %s", taskId, task.Status))
	}
	return nil
}

// abort records a failed attempt. Permanent errors fail the task and escalate its episode.
// Anything else, including an interruption that was not a termination, puts the task back to
// queued for the next delivery. It reports whether the task was failed.
func (s supervisor) abort(ctx context.Context, taskId string, mergeId *int64, cause error) bool {
	// the worker context may already be cancelled; bookkeeping must still land
	ctx = context.WithoutCancel(ctx)

	if IsPermanent(cause) && !domain.HasCode(cause, errcodes.CancellationError) {
		failed, err := s.failTask(ctx, taskId, mergeId, cause)
		if err != nil {
			logger(ctx).Error("fail task", slog.String("task_id", taskId), slog.Any("error", err))
		}
		return failed
	}

	err := s.stores.Tx.WithinTx(ctx, func(ctx context.Context) error {
		task, err := s.stores.Tasks.LockById(ctx, taskId)
		if err != nil {
			return fmt.Errorf("tasks.LockById: %w", err)
		}
		if task.Status != entity.TaskResolving {
			return nil
		}
		return s.stores.Tasks.UpdateStatus(ctx, taskId, entity.TaskQueued)
	})
	if err != nil {
		logger(ctx).Error("requeue task", slog.String("task_id", taskId), slog.Any("error", err))
	}
	return false
}

// run executes fn as the body of a task with no episode of its own.
func (s supervisor) run(ctx context.Context, taskId string, fn func(ctx context.Context) error) error {
	started, err := s.start(ctx, taskId)
	if err != nil || !started {
		return err
	}

	if err := fn(ctx); err != nil {
		s.abort(ctx, taskId, nil, err)
		return err
	}

	if err := s.stores.Tasks.Finish(ctx, taskId, entity.TaskResolved, nil, nil); err != nil {
		return fmt.Errorf("tasks.Finish: %w", err)
	}
	return nil
}
