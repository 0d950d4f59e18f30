// Package credentials caches GitHub installation tokens in Redis, shared by every process.
package credentials

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/redis/go-redis/v9"

	"github.com/int-code/git-sleuth/pkg/contextx"
)

//nolint:gochecknoglobals
var (
	logger = contextx.LoggerFromContextOrDefault
	json   = jsoniter.ConfigCompatibleWithStandardLibrary
)

type Token struct {
	Value     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

type Issuer interface {
	IssueInstallationToken(ctx context.Context, installationId int64) (Token, error)
}

// Cache memoizes installation tokens. Refreshes are not coordinated: concurrent refreshers
// each write their own valid token and the last write wins.
type Cache struct {
	rdb    *redis.Client
	issuer Issuer
	margin time.Duration
	ttlCap time.Duration
	now    func() time.Time
}

func NewCache(rdb *redis.Client, issuer Issuer, margin, ttlCap time.Duration) *Cache {
	return &Cache{
		rdb:    rdb,
		issuer: issuer,
		margin: margin,
		ttlCap: ttlCap,
		now:    time.Now,
	}
}

func key(installationId int64) string {
	return fmt.Sprintf("installation_token:%d", installationId)
}

// Token returns the cached token for the installation, issuing a new one when none is cached
// or the cached one expires within the refresh margin.
func (c *Cache) Token(ctx context.Context, installationId int64) (string, error) {
	if t, ok := c.cached(ctx, installationId); ok {
		return t.Value, nil
	}

	t, err := c.issuer.IssueInstallationToken(ctx, installationId)
	if err != nil {
		return "", fmt.Errorf("issuer.IssueInstallationToken: %w", err)
	}

	ttl := min(t.ExpiresAt.Sub(c.now()), c.ttlCap)
	if ttl <= 0 {
		return t.Value, nil
	}

	encoded, err := json.Marshal(t)
	if err == nil {
		err = c.rdb.Set(ctx, key(installationId), encoded, ttl).Err()
	}
	if err != nil {
		logger(ctx).Warn("cache installation token",
			slog.Int64("installation_id", installationId),
			slog.Any("error", err),
		)
	}

	logger(ctx).Debug("installation token issued",
		slog.Int64("installation_id", installationId),
		slog.Time("expires_at", t.ExpiresAt),
	)
	return t.Value, nil
}

func (c *Cache) cached(ctx context.Context, installationId int64) (Token, bool) {
	raw, err := c.rdb.Get(ctx, key(installationId)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Token{}, false
	}
	if err != nil {
		logger(ctx).Warn("read cached installation token", slog.Any("error", err))
		return Token{}, false
	}

	var t Token
	if err := json.Unmarshal(raw, &t); err != nil {
		return Token{}, false
	}
	if t.ExpiresAt.Sub(c.now()) <= c.margin {
		return Token{}, false
	}
	return t, true
}
