// Package notify fans out task progress over Redis pub/sub, one channel per task.
package notify

import (
	"context"
	"errors"
	"log/slog"

	jsoniter "github.com/json-iterator/go"
	"github.com/redis/go-redis/v9"

	"github.com/int-code/git-sleuth/internal/domain"
	"github.com/int-code/git-sleuth/internal/domain/entity"
	"github.com/int-code/git-sleuth/internal/domain/service"
	"github.com/int-code/git-sleuth/pkg/contextx"
	"github.com/int-code/git-sleuth/pkg/errcodes"
)

// Sentinel marks the end of a task's stream.
const Sentinel = "[DONE]"

//nolint:gochecknoglobals
var (
	logger = contextx.LoggerFromContextOrDefault
	json   = jsoniter.ConfigCompatibleWithStandardLibrary
)

type Channel struct {
	rdb    *redis.Client
	prefix string
}

func NewChannel(rdb *redis.Client, prefix string) *Channel {
	return &Channel{rdb: rdb, prefix: prefix}
}

func (c *Channel) name(taskId string) string {
	return c.prefix + taskId
}

func (c *Channel) Publish(ctx context.Context, msg entity.Progress) error {
	encoded, err := json.Marshal(msg)
	if err != nil {
		return domain.WrapError(err, errcodes.InternalServerError, "failed to encode progress")
	}
	return c.publish(ctx, msg.TaskId, string(encoded))
}

func (c *Channel) Done(ctx context.Context, taskId string) error {
	return c.publish(ctx, taskId, Sentinel)
}

func (c *Channel) publish(ctx context.Context, taskId, payload string) error {
	if err := c.rdb.Publish(ctx, c.name(taskId), payload).Err(); err != nil {
		return domain.WrapError(err, errcodes.InternalServerError, "failed to publish progress")
	}
	return nil
}

// Subscribe returns once the subscription is confirmed by the server.
func (c *Channel) Subscribe(ctx context.Context, taskId string) (service.Subscription, error) {
	ps := c.rdb.Subscribe(ctx, c.name(taskId))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, domain.WrapError(err, errcodes.InternalServerError, "failed to subscribe to progress")
	}
	return &subscription{ps: ps, messages: ps.Channel()}, nil
}

type subscription struct {
	ps       *redis.PubSub
	messages <-chan *redis.Message
}

// Next returns ctx.Err() unwrapped when ctx ends first.
func (s *subscription) Next(ctx context.Context) (entity.Progress, bool, error) {
	for {
		select {
		case <-ctx.Done():
			return entity.Progress{}, false, ctx.Err()
		case m, ok := <-s.messages:
			if !ok {
				return entity.Progress{}, false, errors.New("progress subscription closed")
			}
			if m.Payload == Sentinel {
				return entity.Progress{}, true, nil
			}

			var msg entity.Progress
			if err := json.Unmarshal([]byte(m.Payload), &msg); err != nil {
				logger(ctx).Warn("malformed progress message", slog.String("channel", m.Channel))
				continue
			}
			return msg, false, nil
		}
	}
}

func (s *subscription) Close() error {
	return s.ps.Close()
}
