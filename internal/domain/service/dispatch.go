package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/int-code/git-sleuth/internal/domain/entity"
	"github.com/int-code/git-sleuth/pkg/contextx"
)

// DispatchService starts the out-of-band resolution workflow for a conflict episode.
type DispatchService struct {
	supervisor
	dispatcher WorkflowDispatcher
}

func NewDispatchService(stores Stores, dispatcher WorkflowDispatcher, queue JobQueue, notifier Notifier) *DispatchService {
	return &DispatchService{
		supervisor: supervisor{
			stores:   stores,
			queue:    queue,
			notifier: notifier,
		},
		dispatcher: dispatcher,
	}
}

// Dispatch moves the task and its episode to resolving and triggers the workflow. A rejected
// dispatch fails the task and escalates the episode.
func (s *DispatchService) Dispatch(ctx context.Context, taskId string, job DispatchJob) error {
	ctx = contextx.WithLogAttrs(ctx, slog.Int64("merge_id", job.MergeId))

	mc, started, err := s.begin(ctx, taskId, job.MergeId)
	if err != nil || !started {
		return err
	}

	req, err := s.request(ctx, mc)
	if err == nil {
		err = s.checkpoint(ctx, taskId)
	}
	if err == nil {
		err = s.dispatcher.DispatchResolution(ctx, req)
	}
	if err != nil {
		s.abort(ctx, taskId, &job.MergeId, err)
		return err
	}

	err = s.stores.Tx.WithinTx(ctx, func(ctx context.Context) error {
		if _, err := s.stores.Conflicts.LockById(ctx, job.MergeId); err != nil {
			return fmt.Errorf("conflicts.LockById: %w", err)
		}
		task, err := s.stores.Tasks.LockById(ctx, taskId)
		if err != nil {
			return fmt.Errorf("tasks.LockById: %w", err)
		}
		if task.Status != entity.TaskResolving {
			return nil
		}
		return s.stores.Tasks.Finish(ctx, taskId, entity.TaskResolved, nil, nil)
	})
	if err != nil {
		return err
	}

	logger(ctx).Info("resolution workflow dispatched", slog.String("branch", mc.ResolvedCodeBranch))
	return nil
}

func (s *DispatchService) begin(ctx context.Context, taskId string, mergeId int64) (entity.MergeConflict, bool, error) {
	var (
		mc      entity.MergeConflict
		started bool
	)
	err := s.stores.Tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		if mc, err = s.stores.Conflicts.LockById(ctx, mergeId); err != nil {
			return fmt.Errorf("conflicts.LockById: %w", err)
		}
		task, err := s.stores.Tasks.LockById(ctx, taskId)
		if err != nil {
			return fmt.Errorf("tasks.LockById: %w", err)
		}
		if task.Status != entity.TaskQueued {
			logger(ctx).Info("dispatch task not queued, skipped", slog.String("status", task.Status.String()))
			return nil
		}
		if !mc.Status.IsActive() {
			logger(ctx).Info("episode no longer active, dispatch dropped", slog.String("status", mc.Status.String()))
			return s.stores.Tasks.UpdateStatus(ctx, taskId, entity.TaskTerminated)
		}

		if err := s.stores.Tasks.UpdateStatus(ctx, taskId, entity.TaskResolving); err != nil {
			return fmt.Errorf("tasks.UpdateStatus: %w", err)
		}
		started = true
		return s.transition(ctx, &mc, entity.ConflictResolving)
	})
	return mc, started, err
}

func (s *DispatchService) request(ctx context.Context, mc entity.MergeConflict) (DispatchRequest, error) {
	pr, err := s.stores.PullRequests.GetById(ctx, mc.PrId)
	if err != nil {
		return DispatchRequest{}, fmt.Errorf("pullRequests.GetById: %w", err)
	}
	repo, err := s.stores.Repositories.GetById(ctx, pr.RepoId)
	if err != nil {
		return DispatchRequest{}, fmt.Errorf("repositories.GetById: %w", err)
	}
	return DispatchRequest{
		FullName:       repo.FullName,
		InstallationId: pr.InstallationId,
		HeadRef:        pr.HeadRef,
		BaseRef:        pr.BaseRef,
		MergeId:        mc.Id,
	}, nil
}
