package application

import (
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/int-code/git-sleuth/internal/domain/service"
	"github.com/int-code/git-sleuth/internal/server"
)

// RunAPI serves the HTTP surface. It only enqueues work; the pipelines run in the worker.
func (app App) RunAPI() error {
	ctx, stop := app.start()
	defer stop()
	defer app.shutdown(ctx)

	if app.cfg.Postgres.MigrateOnStart {
		if err := app.postgres.Migrate(ctx); err != nil {
			return fmt.Errorf("postgres.Migrate: %w", err)
		}
	}

	stores := app.stores(ctx)
	jobs := app.jobQueue(ctx)
	notifier := app.notifier(ctx)

	srv := server.NewServer(
		service.NewEventRouter(stores, jobs, notifier),
		// submissions only: chunks are resolved by the worker
		service.NewResolutionService(stores, nil, jobs, notifier),
		service.NewTaskService(stores, jobs, notifier, app.cfg.Notify.StreamTimeout, app.cfg.Worker.StaleTaskAge),
		service.NewMergeConflictService(stores, jobs, notifier),
		app.cfg.GitHub.WebhookSecret,
	)

	g, ctx := errgroup.WithContext(ctx)

	if err := app.httpServer.Run(ctx, g, "api", app.cfg.HTTP.ListenAddress, app.newRouter(srv.RegisterRoutes)); err != nil {
		return err
	}

	if err := g.Wait(); err != nil {
		return fmt.Errorf("g.Wait: %w", err)
	}

	return nil
}
