package connectors

import (
	"context"
	"log/slog"

	"github.com/hibiken/asynq"
)

type Asynq struct {
	Redis asynq.RedisClientOpt

	client    *asynq.Client
	inspector *asynq.Inspector
}

func (a *Asynq) Client(_ context.Context) *asynq.Client {
	if a.client == nil {
		a.client = asynq.NewClient(a.Redis)
	}
	return a.client
}

func (a *Asynq) Inspector(_ context.Context) *asynq.Inspector {
	if a.inspector == nil {
		a.inspector = asynq.NewInspector(a.Redis)
	}
	return a.inspector
}

func (a *Asynq) Close(ctx context.Context) {
	if a.client != nil {
		if err := a.client.Close(); err != nil {
			logger(ctx).Error("asynq client close error", slog.Any("error", err))
		}
	}
	if a.inspector != nil {
		if err := a.inspector.Close(); err != nil {
			logger(ctx).Error("asynq inspector close error", slog.Any("error", err))
		}
	}
}
