package application

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/int-code/git-sleuth/internal/domain/service"
	"github.com/int-code/git-sleuth/internal/infrastructure/github"
	"github.com/int-code/git-sleuth/internal/infrastructure/queue"
	"github.com/int-code/git-sleuth/internal/infrastructure/resolver"
)

// RunWorker consumes the task queue, runs the periodic stale task sweep and serves /metrics.
func (app App) RunWorker() error {
	ctx, stop := app.start()
	defer stop()
	defer app.shutdown(ctx)

	stores := app.stores(ctx)
	jobs := app.jobQueue(ctx)
	notifier := app.notifier(ctx)

	gh := app.githubClient(ctx)
	workflows := github.NewWorkflows(gh, app.cfg.GitHub.ResolutionWorkflow, app.cfg.GitHub.ApplyWorkflow)
	prober := github.NewProber(gh, app.cfg.GitHub.ProbeAttempts, app.cfg.GitHub.ProbeInterval)
	engine := resolver.NewClient(app.cfg.Resolver.URL, app.cfg.Resolver.APIKey, app.cfg.Resolver.Timeout)

	mux := queue.NewMux(queue.Handlers{
		PullRequests: service.NewPullRequestService(stores, prober, jobs, notifier),
		Repositories: service.NewRepositoryService(stores, workflows, jobs, notifier),
		Dispatch:     service.NewDispatchService(stores, workflows, jobs, notifier),
		Resolution:   service.NewResolutionService(stores, engine, jobs, notifier),
		Sweep:        service.NewTaskService(stores, jobs, notifier, app.cfg.Notify.StreamTimeout, app.cfg.Worker.StaleTaskAge),
	})

	g, ctx := errgroup.WithContext(ctx)

	app.worker.Run(ctx, g, mux)
	app.scheduler.Run(ctx, g)
	err := app.httpServer.Run(ctx, g, "metrics", app.cfg.Worker.MetricsAddress, app.newRouter(func(r chi.Router) {
		r.Method(http.MethodGet, "/metrics", promhttp.Handler())
		r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
	}))
	if err != nil {
		return err
	}

	if err := g.Wait(); err != nil {
		return fmt.Errorf("g.Wait: %w", err)
	}

	return nil
}
