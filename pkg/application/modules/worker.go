package modules

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"
)

// Worker runs an asynq server for the lifetime of the group context.
type Worker struct {
	Redis           asynq.RedisClientOpt
	Concurrency     int
	Queues          map[string]int
	ShutdownTimeout time.Duration
	// IsFailure decides which handler errors count against the queue's failure stats.
	IsFailure func(error) bool
}

func (w Worker) Run(
	gCtx context.Context,
	g *errgroup.Group,
	handler asynq.Handler,
) {
	srv := asynq.NewServer(w.Redis, asynq.Config{
		Concurrency:     w.Concurrency,
		Queues:          w.Queues,
		ShutdownTimeout: w.ShutdownTimeout,
		IsFailure:       w.IsFailure,
		BaseContext: func() context.Context {
			return gCtx
		},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			logger(ctx).Warn("task failed",
				slog.String("task_type", task.Type()),
				slog.Any("error", err),
			)
		}),
	})

	g.Go(func() error {
		logger(gCtx).Info("worker started", slog.Int("concurrency", w.Concurrency))

		if err := srv.Start(handler); err != nil {
			logger(gCtx).Error("worker start error", slog.Any("error", err))
			return fmt.Errorf("srv.Start: %w", err)
		}

		<-gCtx.Done()

		logger(gCtx).Info("worker is shutting down", slog.Duration("timeout", w.ShutdownTimeout))
		srv.Shutdown()
		logger(gCtx).Info("worker shut down gracefully")
		return nil
	})
}

// Scheduler enqueues periodic tasks on cron-like specs.
type Scheduler struct {
	Redis asynq.RedisClientOpt
	Tasks map[string]*asynq.Task
}

func (s Scheduler) Run(
	gCtx context.Context,
	g *errgroup.Group,
) {
	scheduler := asynq.NewScheduler(s.Redis, &asynq.SchedulerOpts{
		EnqueueErrorHandler: func(task *asynq.Task, _ []asynq.Option, err error) {
			logger(gCtx).Error("scheduler enqueue error",
				slog.String("task_type", task.Type()),
				slog.Any("error", err),
			)
		},
	})

	g.Go(func() error {
		for spec, task := range s.Tasks {
			if _, err := scheduler.Register(spec, task); err != nil {
				return fmt.Errorf("scheduler.Register: %w", err)
			}
		}

		if err := scheduler.Start(); err != nil {
			return fmt.Errorf("scheduler.Start: %w", err)
		}
		logger(gCtx).Info("scheduler started", slog.Int("entries", len(s.Tasks)))

		<-gCtx.Done()

		scheduler.Shutdown()
		logger(gCtx).Info("scheduler stopped")
		return nil
	})
}
