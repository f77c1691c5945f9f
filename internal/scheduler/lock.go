package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/recurring/internal/config"
)

const keyRunLock = "recurring:run:%s"

const lockReleaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

// RunLocker keeps replicas from enumerating the same as-of date at the same
// time. It only saves work; the profile version check keeps runs correct
// without it.
type RunLocker struct {
	client *redis.Client
	script *redis.Script
}

// NewRunLocker returns nil when Redis is not configured.
func NewRunLocker(cfg config.Config) *RunLocker {
	if !cfg.Redis.Enabled() {
		return nil
	}
	return NewRunLockerWithClient(redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}))
}

func NewRunLockerWithClient(client *redis.Client) *RunLocker {
	if client == nil {
		return nil
	}
	return &RunLocker{
		client: client,
		script: redis.NewScript(lockReleaseScript),
	}
}

func runLockKey(asOf time.Time) string {
	return fmt.Sprintf(keyRunLock, asOf.Format(time.DateOnly))
}

func (l *RunLocker) TryLock(ctx context.Context, asOf time.Time, ttl time.Duration) (string, bool, error) {
	if l == nil || l.client == nil {
		return "", false, errors.New("lock client not configured")
	}
	if ttl <= 0 {
		return "", false, errors.New("lock ttl must be positive")
	}

	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, runLockKey(asOf), token, ttl).Result()
	if err != nil {
		return "", false, err
	}
	return token, ok, nil
}

func (l *RunLocker) Release(ctx context.Context, asOf time.Time, token string) error {
	if l == nil || l.client == nil || token == "" {
		return nil
	}
	return l.script.Run(ctx, l.client, []string{runLockKey(asOf)}, token).Err()
}

func (l *RunLocker) Close() error {
	if l == nil || l.client == nil {
		return nil
	}
	return l.client.Close()
}
