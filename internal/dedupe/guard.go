// Package dedupe guards against processing the same correlation id twice when
// webhooks are redelivered.
package dedupe

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// DefaultTTL is how long a claim is held when none is configured.
const DefaultTTL = 24 * time.Hour

const keyPrefix = "audit:dedupe:"

// Client is the subset of *redis.Client the guard uses.
type Client interface {
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Ping(ctx context.Context) *redis.StatusCmd
	Close() error
}

// Guard claims correlation ids in Redis. A Guard without a client claims
// everything, which is how dedupe is disabled.
type Guard struct {
	client Client
	ttl    time.Duration
}

// New connects to the Redis server at url.
func New(url string, ttl time.Duration) (*Guard, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, eris.Wrap(err, "dedupe: parse redis url")
	}
	return NewWithClient(redis.NewClient(opt), ttl), nil
}

// NewWithClient wraps an existing client. A nil client disables dedupe.
func NewWithClient(client Client, ttl time.Duration) *Guard {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Guard{client: client, ttl: ttl}
}

// Disabled returns a Guard that claims every id.
func Disabled() *Guard {
	return &Guard{ttl: DefaultTTL}
}

// Enabled reports whether the guard is backed by Redis.
func (g *Guard) Enabled() bool {
	return g.client != nil
}

// Claim marks correlationID as in flight. It returns false when another
// delivery already holds the claim.
func (g *Guard) Claim(ctx context.Context, correlationID string) (bool, error) {
	if g.client == nil {
		return true, nil
	}
	if correlationID == "" {
		return false, eris.New("dedupe: correlation id is required")
	}
	ok, err := g.client.SetNX(ctx, keyPrefix+correlationID, time.Now().UTC().Format(time.RFC3339), g.ttl).Result()
	if err != nil {
		return false, eris.Wrapf(err, "dedupe: claim %s", correlationID)
	}
	if !ok {
		zap.L().Debug("dedupe: duplicate delivery", zap.String("correlation_id", correlationID))
	}
	return ok, nil
}

// Release drops the claim so a redelivery can retry after a failure.
func (g *Guard) Release(ctx context.Context, correlationID string) error {
	if g.client == nil || correlationID == "" {
		return nil
	}
	return eris.Wrapf(g.client.Del(ctx, keyPrefix+correlationID).Err(), "dedupe: release %s", correlationID)
}

// Ping checks connectivity.
func (g *Guard) Ping(ctx context.Context) error {
	if g.client == nil {
		return nil
	}
	return eris.Wrap(g.client.Ping(ctx).Err(), "dedupe: ping")
}

// Close closes the underlying client.
func (g *Guard) Close() error {
	if g.client == nil {
		return nil
	}
	return g.client.Close()
}
