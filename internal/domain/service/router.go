package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/int-code/git-sleuth/internal/domain/entity"
	"github.com/int-code/git-sleuth/internal/domain/event"
	"github.com/int-code/git-sleuth/internal/domain/value"
	"github.com/int-code/git-sleuth/internal/metrics"
)

type RouteResult struct {
	TaskId  string
	Ignored bool
}

// EventRouter validates webhook deliveries and turns each actionable one into a queued task.
// It never runs the work itself.
type EventRouter struct {
	supervisor
}

func NewEventRouter(stores Stores, queue JobQueue, notifier Notifier) *EventRouter {
	return &EventRouter{
		supervisor: supervisor{
			stores:   stores,
			queue:    queue,
			notifier: notifier,
		},
	}
}

// Route parses the delivery and enqueues it. The Task row exists before Route returns, so its
// id can be handed back to the sender.
func (r *EventRouter) Route(ctx context.Context, name string, body []byte) (RouteResult, error) {
	ev, err := event.Parse(name, body)
	if err != nil {
		metrics.WebhookEvents.WithLabelValues(name, "invalid").Inc()
		return RouteResult{}, err
	}

	var (
		taskType entity.TaskType
		payload  any
	)
	switch e := ev.(type) {
	case event.RepositoriesEvent:
		taskType = entity.TaskRemoveRepositories
		if e.Adding() {
			taskType = entity.TaskAddRepositories
		}
		payload = RepositoriesJob{
			InstallationId: e.Installation.Id,
			Repositories:   e.Repositories,
		}
	case event.PullRequestEvent:
		taskType = entity.TaskPullRequestEvent
		payload = PullRequestJob{Body: e.Raw}
	default:
		metrics.WebhookEvents.WithLabelValues(name, "ignored").Inc()
		logger(ctx).Info("event ignored", slog.String("event", name))
		return RouteResult{Ignored: true}, nil
	}

	task, err := r.stores.Tasks.Create(ctx, entity.Task{
		Id:     value.NewTaskID().String(),
		Type:   taskType,
		Status: entity.TaskQueued,
	})
	if err != nil {
		metrics.WebhookEvents.WithLabelValues(name, "error").Inc()
		return RouteResult{}, fmt.Errorf("tasks.Create: %w", err)
	}

	if err := r.enqueue(ctx, Job{TaskId: task.Id, Type: task.Type, Payload: payload}, nil); err != nil {
		metrics.WebhookEvents.WithLabelValues(name, "error").Inc()
		return RouteResult{}, err
	}

	metrics.WebhookEvents.WithLabelValues(name, "queued").Inc()
	logger(ctx).Info("event queued",
		slog.String("event", name),
		slog.String("task_id", task.Id),
		slog.String("task_type", string(task.Type)),
	)

	return RouteResult{TaskId: task.Id}, nil
}
