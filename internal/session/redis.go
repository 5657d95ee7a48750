package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// releaseScript deletes the guard only when it still holds the caller's token,
// so a slow request cannot clear a newer request's guard after its own expired.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisStore is a Store backed by go-redis, shared by every replica.
type RedisStore struct {
	client   *redis.Client
	themeTTL time.Duration
}

// NewRedisStore constructs a Redis-backed session store.
func NewRedisStore(client *redis.Client, themeTTL time.Duration) *RedisStore {
	return &RedisStore{client: client, themeTTL: themeTTL}
}

func themeKey(sessionID string) string    { return fmt.Sprintf("session:%s:theme", sessionID) }
func pipelineKey(sessionID string) string { return fmt.Sprintf("session:%s:pipeline", sessionID) }

func (s *RedisStore) Theme(ctx context.Context, sessionID string) (string, error) {
	theme, err := s.client.Get(ctx, themeKey(sessionID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return theme, err
}

func (s *RedisStore) SetTheme(ctx context.Context, sessionID, theme string) error {
	return s.client.Set(ctx, themeKey(sessionID), theme, s.themeTTL).Err()
}

func (s *RedisStore) AcquirePipeline(ctx context.Context, sessionID, token string, ttl time.Duration) (bool, error) {
	return s.client.SetNX(ctx, pipelineKey(sessionID), token, ttl).Result()
}

func (s *RedisStore) ReleasePipeline(ctx context.Context, sessionID, token string) error {
	return releaseScript.Run(ctx, s.client, []string{pipelineKey(sessionID)}, token).Err()
}

// Ping checks connectivity.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
