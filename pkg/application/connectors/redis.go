package connectors

import (
	"context"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/samber/lo"
)

type Redis struct {
	Address  string
	Password string
	DB       int

	client *redis.Client
}

func (r *Redis) Client(ctx context.Context) *redis.Client {
	if r.client != nil {
		return r.client
	}

	r.client = redis.NewClient(&redis.Options{
		Addr:     r.Address,
		Password: r.Password,
		DB:       r.DB,
	})
	lo.Must0(r.client.Ping(ctx).Err())

	logger(ctx).Info("redis connected", slog.String("address", r.Address))
	return r.client
}

// AsynqOpt returns the connection options the task queue uses for the same server.
func (r *Redis) AsynqOpt() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     r.Address,
		Password: r.Password,
		DB:       r.DB,
	}
}

func (r *Redis) Close(ctx context.Context) {
	if r.client == nil {
		return
	}

	if err := r.client.Close(); err != nil {
		logger(ctx).Error("redis close error", slog.Any("error", err))
		return
	}

	logger(ctx).Info("redis connection closed")
}
