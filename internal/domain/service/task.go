package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/int-code/git-sleuth/internal/domain"
	"github.com/int-code/git-sleuth/internal/domain/entity"
	"github.com/int-code/git-sleuth/internal/metrics"
	"github.com/int-code/git-sleuth/pkg/errcodes"
)

// TaskView is a task with its decoded result.
type TaskView struct {
	entity.Task
	Outcome *entity.TaskResult
}

type TaskService struct {
	supervisor
	streamTimeout time.Duration
	staleAge      time.Duration
}

func NewTaskService(stores Stores, queue JobQueue, notifier Notifier, streamTimeout, staleAge time.Duration) *TaskService {
	return &TaskService{
		supervisor: supervisor{
			stores:   stores,
			queue:    queue,
			notifier: notifier,
		},
		streamTimeout: streamTimeout,
		staleAge:      staleAge,
	}
}

func (s *TaskService) Get(ctx context.Context, id string) (TaskView, error) {
	task, err := s.stores.Tasks.GetById(ctx, id)
	if err != nil {
		return TaskView{}, fmt.Errorf("tasks.GetById: %w", err)
	}
	return viewOf(task)
}

func viewOf(task entity.Task) (TaskView, error) {
	view := TaskView{Task: task}
	if task.Result == nil {
		return view, nil
	}

	var result entity.TaskResult
	if err := json.Unmarshal([]byte(*task.Result), &result); err != nil {
		return TaskView{}, domain.WrapError(err, errcodes.InternalServerError, "stored task result is corrupt")
	}
	view.Outcome = &result
	return view, nil
}

// Stream forwards a task's progress to emit until the completion sentinel. The subscription is
// opened before the task is read, so nothing published in between is lost. A task that already
// finished yields its stored outcome once. Messages after a termination are dropped.
func (s *TaskService) Stream(ctx context.Context, id string, emit func(entity.Progress) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.streamTimeout)
	defer cancel()

	sub, err := s.notifier.Subscribe(ctx, id)
	if err != nil {
		return fmt.Errorf("notifier.Subscribe: %w", err)
	}
	defer func() {
		if err := sub.Close(); err != nil {
			logger(ctx).Warn("close subscription", slog.String("task_id", id), slog.Any("error", err))
		}
	}()

	task, err := s.stores.Tasks.GetById(ctx, id)
	if err != nil {
		return fmt.Errorf("tasks.GetById: %w", err)
	}
	if task.Status.IsTerminal() {
		view, err := viewOf(task)
		if err != nil {
			return err
		}
		return emit(progressOf(view))
	}

	for {
		msg, done, err := sub.Next(ctx)
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			return domain.WrapError(err, errcodes.TimeoutError, "no completion before stream timeout")
		case err != nil:
			return fmt.Errorf("sub.Next: %w", err)
		case done:
			return nil
		}

		if err := emit(msg); err != nil {
			return err
		}
		if msg.Status == entity.TaskTerminated {
			return nil
		}
	}
}

func progressOf(view TaskView) entity.Progress {
	msg := entity.Progress{
		TaskId: view.Id,
		Status: view.Status,
	}
	if view.FilePath != nil {
		msg.FilePath = *view.FilePath
	}
	if view.Error != nil {
		msg.Error = *view.Error
	}
	if view.Outcome != nil {
		score := view.Outcome.ConfidenceScore
		msg.ResolvedCode = view.Outcome.ResolvedCode
		msg.ConfidenceScore = &score
	}
	return msg
}

// Sweep fails tasks stuck in queued or resolving for longer than the stale age and escalates
// their episodes. It returns how many tasks were failed.
func (s *TaskService) Sweep(ctx context.Context) (int, error) {
	stale, err := s.stores.Tasks.ListStale(ctx, time.Now().Add(-s.staleAge))
	if err != nil {
		return 0, fmt.Errorf("tasks.ListStale: %w", err)
	}

	var swept int
	for _, t := range stale {
		cause := domain.NewError(errcodes.TimeoutError,
			fmt.Sprintf("task made no progress for %s", s.staleAge))

		failed, err := s.failTask(ctx, t.Id, t.MergeId, cause)
		if err != nil {
			logger(ctx).Error("sweep task", slog.String("task_id", t.Id), slog.Any("error", err))
			continue
		}
		if !failed {
			continue
		}

		s.queue.Cancel(ctx, t.Id)
		s.publishFinal(ctx, entity.Progress{TaskId: t.Id, Status: entity.TaskFailed, Error: cause.Error()})
		metrics.StaleTasks.Inc()
		swept++
	}

	if swept > 0 {
		logger(ctx).Info("stale tasks failed", slog.Int("count", swept))
	}
	return swept, nil
}
