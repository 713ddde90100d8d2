package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrDeliveryInFlight means another delivery currently holds the session claim.
var ErrDeliveryInFlight = errors.New("delivery for session is in flight")

// InflightGuard serializes concurrent deliveries of the same checkout session.
type InflightGuard interface {
	Claim(ctx context.Context, sessionID string) (release func(), err error)
}

// NoopInflightGuard never blocks. Used when Redis is not configured.
type NoopInflightGuard struct{}

func (NoopInflightGuard) Claim(context.Context, string) (func(), error) {
	return func() {}, nil
}

var releaseClaimScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisInflightGuard claims a session with SET NX and a TTL. The claim is
// released only by its owner token so an expired claim cannot be deleted by
// the delivery that lost it.
type RedisInflightGuard struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

func NewRedisInflightGuard(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisInflightGuard {
	trimmedPrefix := strings.TrimSuffix(strings.TrimSpace(prefix), ":")
	if trimmedPrefix == "" {
		trimmedPrefix = "luxe:stripe_webhook"
	}
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &RedisInflightGuard{client: client, prefix: trimmedPrefix, ttl: ttl}
}

func (g *RedisInflightGuard) key(sessionID string) string {
	return fmt.Sprintf("%s:inflight:%s", g.prefix, sessionID)
}

func (g *RedisInflightGuard) Claim(ctx context.Context, sessionID string) (func(), error) {
	if g == nil || g.client == nil {
		return func() {}, nil
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return func() {}, nil
	}

	key := g.key(sessionID)
	token := uuid.NewString()
	acquired, err := g.client.SetNX(ctx, key, token, g.ttl).Result()
	if err != nil {
		return nil, err
	}
	if !acquired {
		return nil, ErrDeliveryInFlight
	}

	release := func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = releaseClaimScript.Run(releaseCtx, g.client, []string{key}, token).Err()
	}
	return release, nil
}
