// Package runlock serializes rule runs. Local guards one process; Redis
// extends the guarantee across processes sharing a database.
package runlock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Release gives the lock back. Calling it more than once is harmless.
type Release func(ctx context.Context) error

// Locker hands out the single run slot. Acquire blocks until the slot is
// free or ctx is done; waiting callers are not coalesced.
type Locker interface {
	Acquire(ctx context.Context) (Release, error)
}

// Local is an in-process Locker.
type Local struct {
	slot chan struct{}
}

// NewLocal returns an unlocked Local.
func NewLocal() *Local {
	return &Local{slot: make(chan struct{}, 1)}
}

// Acquire implements Locker.
func (l *Local) Acquire(ctx context.Context) (Release, error) {
	select {
	case l.slot <- struct{}{}:
	case <-ctx.Done():
		return nil, fmt.Errorf("acquire run lock: %w", ctx.Err())
	}
	released := false
	return func(context.Context) error {
		if released {
			return nil
		}
		released = true
		<-l.slot
		return nil
	}, nil
}

// Redis defaults.
const (
	DefaultKey        = "butler:run-lock"
	DefaultTTL        = 30 * time.Minute
	DefaultRetryDelay = 500 * time.Millisecond
)

// ErrNotHeld is returned by a Release whose token no longer owns the key,
// typically because the TTL expired mid-run.
var ErrNotHeld = errors.New("run lock no longer held")

// compare-and-delete so a holder never frees a lock taken over by another.
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis is a Locker backed by SET NX PX on a single key.
type Redis struct {
	client *redis.Client
	key    string
	ttl    time.Duration
	retry  time.Duration
	local  *Local
}

// RedisOption configures a Redis locker.
type RedisOption func(*Redis)

// WithKey sets the lock key.
func WithKey(key string) RedisOption { return func(r *Redis) { r.key = key } }

// WithTTL bounds how long a crashed holder can block others.
func WithTTL(ttl time.Duration) RedisOption { return func(r *Redis) { r.ttl = ttl } }

// WithRetryDelay sets the polling interval while waiting.
func WithRetryDelay(d time.Duration) RedisOption { return func(r *Redis) { r.retry = d } }

// Connect creates a Redis client from a URL.
func Connect(redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	return redis.NewClient(opts), nil
}

// NewRedis returns a Redis locker using client.
func NewRedis(client *redis.Client, opts ...RedisOption) *Redis {
	r := &Redis{
		client: client,
		key:    DefaultKey,
		ttl:    DefaultTTL,
		retry:  DefaultRetryDelay,
		local:  NewLocal(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Acquire implements Locker. The in-process slot is taken first so one
// process polls Redis with at most one caller.
func (r *Redis) Acquire(ctx context.Context) (Release, error) {
	releaseLocal, err := r.local.Acquire(ctx)
	if err != nil {
		return nil, err
	}

	token := uuid.NewString()
	for {
		ok, err := r.client.SetNX(ctx, r.key, token, r.ttl).Result()
		if err != nil {
			_ = releaseLocal(ctx)
			return nil, fmt.Errorf("acquire run lock %s: %w", r.key, err)
		}
		if ok {
			break
		}
		slog.Debug("run lock busy, waiting", "key", r.key)
		select {
		case <-time.After(r.retry):
		case <-ctx.Done():
			_ = releaseLocal(ctx)
			return nil, fmt.Errorf("acquire run lock %s: %w", r.key, ctx.Err())
		}
	}

	released := false
	return func(ctx context.Context) error {
		if released {
			return nil
		}
		released = true
		defer releaseLocal(ctx)

		n, err := unlockScript.Run(ctx, r.client, []string{r.key}, token).Int64()
		if err != nil {
			return fmt.Errorf("release run lock %s: %w", r.key, err)
		}
		if n == 0 {
			return fmt.Errorf("release run lock %s: %w", r.key, ErrNotHeld)
		}
		return nil
	}, nil
}
