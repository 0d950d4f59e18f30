package application

import (
	"context"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hibiken/asynq"
	"github.com/samber/lo"

	"github.com/int-code/git-sleuth/internal/config"
	"github.com/int-code/git-sleuth/internal/domain/service"
	"github.com/int-code/git-sleuth/internal/infrastructure/credentials"
	"github.com/int-code/git-sleuth/internal/infrastructure/github"
	"github.com/int-code/git-sleuth/internal/infrastructure/notify"
	"github.com/int-code/git-sleuth/internal/infrastructure/persistence"
	"github.com/int-code/git-sleuth/internal/infrastructure/persistence/migrations"
	"github.com/int-code/git-sleuth/internal/infrastructure/queue"
	"github.com/int-code/git-sleuth/pkg/application/connectors"
	"github.com/int-code/git-sleuth/pkg/application/modules"
	"github.com/int-code/git-sleuth/pkg/contextx"
	"github.com/int-code/git-sleuth/pkg/middlewarex"
)

var logger = contextx.LoggerFromContextOrDefault //nolint:gochecknoglobals

// App holds the connections and modules shared by the API and the worker processes.
type App struct {
	cfg      config.Config
	slog     *connectors.Slog
	postgres *connectors.Postgres
	redis    *connectors.Redis
	asynq    *connectors.Asynq

	httpServer modules.HTTPServer
	worker     modules.Worker
	scheduler  modules.Scheduler
}

func New(appName, appVersion string) App {
	cfg := lo.Must(config.Load())

	redisConnector := &connectors.Redis{
		Address:  cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}

	return App{
		cfg: cfg,
		slog: &connectors.Slog{
			Name:    appName,
			Version: appVersion,
			Debug:   cfg.Debug,
		},
		postgres: &connectors.Postgres{
			DSN:             cfg.Postgres.DSN,
			MaxIdleConns:    cfg.Postgres.MaxIdleConns,
			MaxOpenConns:    cfg.Postgres.MaxOpenConns,
			ConnMaxLifetime: cfg.Postgres.ConnMaxLifetime,
			Migrations:      migrations.FS,
			MigrationsDir:   ".",
		},
		redis: redisConnector,
		asynq: &connectors.Asynq{
			Redis: redisConnector.AsynqOpt(),
		},

		httpServer: modules.HTTPServer{
			ReadTimeout:     cfg.HTTP.ReadTimeout,
			WriteTimeout:    cfg.HTTP.WriteTimeout,
			IdleTimeout:     cfg.HTTP.IdleTimeout,
			ShutdownTimeout: cfg.HTTP.ShutdownTimeout,
		},
		worker: modules.Worker{
			Redis:           redisConnector.AsynqOpt(),
			Concurrency:     cfg.Worker.Concurrency,
			Queues:          queue.Queues,
			ShutdownTimeout: cfg.Worker.ShutdownTimeout,
			IsFailure:       queue.IsFailure,
		},
		scheduler: modules.Scheduler{
			Redis: redisConnector.AsynqOpt(),
			Tasks: map[string]*asynq.Task{
				cfg.Worker.SweepSpec: queue.NewSweepTask(),
			},
		},
	}
}

// start sets up signal handling and the context logger shared by both processes.
func (app App) start() (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGINT,
		syscall.SIGTERM,
	)

	ctx = contextx.WithLogger(ctx, app.slog.Logger(ctx))

	logger(ctx).Info("config", slog.Any("config", app.cfg))

	return ctx, stop
}

func (app App) shutdown(ctx context.Context) {
	app.asynq.Close(ctx)
	app.redis.Close(ctx)
	app.postgres.Close(ctx)
}

func (app App) stores(ctx context.Context) service.Stores {
	db := app.postgres.Client(ctx)

	return service.Stores{
		Tx:            persistence.NewTransactor(db),
		Repositories:  persistence.NewRepositoryRepository(db),
		PullRequests:  persistence.NewPullRequestRepository(db),
		Conflicts:     persistence.NewMergeConflictRepository(db),
		Tasks:         persistence.NewTaskRepository(db),
		ResolvedCodes: persistence.NewResolvedCodeRepository(db),
	}
}

func (app App) jobQueue(ctx context.Context) *queue.Queue {
	return queue.NewQueue(
		app.asynq.Client(ctx),
		app.asynq.Inspector(ctx),
		app.cfg.Worker.MaxRetry,
		app.cfg.Worker.ResolveTimeout,
	)
}

func (app App) notifier(ctx context.Context) *notify.Channel {
	return notify.NewChannel(app.redis.Client(ctx), app.cfg.Notify.ChannelPrefix)
}

// githubClient returns an installation-authenticated client. Installation tokens are issued
// by the app through its own unauthenticated client and cached in Redis.
func (app App) githubClient(ctx context.Context) *github.Client {
	gh := app.cfg.GitHub

	issuer := github.NewApp(
		github.NewClient(gh.APIURL, gh.UserAgent, gh.RequestTimeout, nil),
		gh.AppID,
		gh.PrivateKey,
	)
	tokens := credentials.NewCache(app.redis.Client(ctx), issuer, gh.RefreshMargin, gh.TokenTTL)

	return github.NewClient(gh.APIURL, gh.UserAgent, gh.RequestTimeout, tokens)
}

// newRouter wraps the routes registered by register in the request middleware stack.
func (app App) newRouter(register func(chi.Router)) http.Handler {
	router := chi.NewRouter()

	router.Use(
		middleware.RealIP,
		middlewarex.Logger,
		middleware.Recoverer,
	)

	register(router)

	return router
}
