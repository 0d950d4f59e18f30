package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/int-code/git-sleuth/internal/domain"
	"github.com/int-code/git-sleuth/internal/domain/entity"
	"github.com/int-code/git-sleuth/internal/domain/value"
	"github.com/int-code/git-sleuth/pkg/errcodes"
)

// RepositoryService provisions and retires repositories of an installation.
type RepositoryService struct {
	supervisor
	installer WorkflowInstaller
}

func NewRepositoryService(stores Stores, installer WorkflowInstaller, queue JobQueue, notifier Notifier) *RepositoryService {
	return &RepositoryService{
		supervisor: supervisor{
			stores:   stores,
			queue:    queue,
			notifier: notifier,
		},
		installer: installer,
	}
}

// AddRepositories upserts every repository, reactivating removed ones, and queues a workflow
// setup task for each. Setup task ids derive from taskId, so a retry re-enqueues only the
// setups still queued and the queue drops the ones it already holds.
func (s *RepositoryService) AddRepositories(ctx context.Context, taskId string, job RepositoriesJob) error {
	return s.run(ctx, taskId, func(ctx context.Context) error {
		var jobs []Job
		err := s.stores.Tx.WithinTx(ctx, func(ctx context.Context) error {
			jobs = jobs[:0]
			for _, r := range job.Repositories {
				repo, err := s.stores.Repositories.Upsert(ctx, entity.Repository{
					GithubId:       r.Id,
					InstallationId: job.InstallationId,
					NodeId:         r.NodeId,
					Name:           r.Name,
					FullName:       r.FullName,
					Private:        r.Private,
					Status:         entity.RepositoryActive,
				})
				if err != nil {
					return fmt.Errorf("repositories.Upsert: %w", err)
				}

				task, err := s.setupTask(ctx, value.DerivedTaskID(taskId, r.Id).String())
				if err != nil {
					return err
				}
				if task.Status != entity.TaskQueued {
					continue
				}
				jobs = append(jobs, Job{
					TaskId: task.Id,
					Type:   task.Type,
					Payload: SetupWorkflowsJob{
						InstallationId: repo.InstallationId,
						FullName:       repo.FullName,
					},
				})
			}
			return nil
		})
		if err != nil {
			return err
		}

		// a refused setup stays queued for the retry of this task
		var errs []error
		for _, j := range jobs {
			if err := s.queue.Enqueue(ctx, j); err != nil {
				errs = append(errs, domain.WrapError(err, errcodes.InternalServerError, "failed to enqueue "+j.TaskId))
			}
		}
		logger(ctx).Info("repositories added", slog.Int("count", len(job.Repositories)))
		return errors.Join(errs...)
	})
}

func (s *RepositoryService) setupTask(ctx context.Context, id string) (entity.Task, error) {
	task, err := s.stores.Tasks.GetById(ctx, id)
	if err == nil {
		return task, nil
	}
	if !domain.HasCode(err, errcodes.NotFound) {
		return entity.Task{}, fmt.Errorf("tasks.GetById: %w", err)
	}

	task, err = s.stores.Tasks.Create(ctx, entity.Task{
		Id:     id,
		Type:   entity.TaskSetupWorkflows,
		Status: entity.TaskQueued,
	})
	if err != nil {
		return entity.Task{}, fmt.Errorf("tasks.Create: %w", err)
	}
	return task, nil
}

// RemoveRepositories flips repositories to removed. Unknown repositories fail the task with
// NotFound after the known ones have been processed.
func (s *RepositoryService) RemoveRepositories(ctx context.Context, taskId string, job RepositoriesJob) error {
	return s.run(ctx, taskId, func(ctx context.Context) error {
		var missing []int64
		for _, r := range job.Repositories {
			_, err := s.stores.Repositories.MarkRemoved(ctx, r.Id)
			switch {
			case domain.HasCode(err, errcodes.NotFound):
				missing = append(missing, r.Id)
			case err != nil:
				return fmt.Errorf("repositories.MarkRemoved: %w", err)
			}
		}

		logger(ctx).Info("repositories removed",
			slog.Int("count", len(job.Repositories)-len(missing)),
			slog.Any("missing", missing),
		)
		if len(missing) > 0 {
			return domain.NewError(errcodes.NotFound, fmt.Sprintf("repositories not found: %v", missing))
		}
		return nil
	})
}

// SetupWorkflows commits the resolution automation to the repository's default branch.
func (s *RepositoryService) SetupWorkflows(ctx context.Context, taskId string, job SetupWorkflowsJob) error {
	return s.run(ctx, taskId, func(ctx context.Context) error {
		if err := s.installer.InstallWorkflows(ctx, job.InstallationId, job.FullName); err != nil {
			return fmt.Errorf("installer.InstallWorkflows: %w", err)
		}
		logger(ctx).Info("workflows installed", slog.String("repo", job.FullName))
		return nil
	})
}
