package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	ErrLockHeld  = errors.New("lock is already held")
	ErrNotHolder = errors.New("lock expired or taken over")
)

// удаляем ключ только если значение совпадает с нашим токеном
const releaseScript = `
local holder = redis.call('GET', KEYS[1])
if holder == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end
return 0`

// Locker is a single-key Redis mutex. token identifies the holder so that
// a stale owner cannot release a key someone else has since acquired.
type Locker struct {
	client redis.Cmdable
	key    string
	token  string
}

func NewLocker(client redis.Cmdable, key, token string) *Locker {
	return &Locker{client: client, key: key, token: token}
}

func (l *Locker) Lock(ctx context.Context, ttl time.Duration) error {
	ok, err := l.client.SetNX(ctx, l.key, l.token, ttl).Result()
	if err != nil {
		return fmt.Errorf("lock %s: %w", l.key, err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrLockHeld, l.key)
	}
	return nil
}

// Unlock releases the key. ErrNotHolder means the TTL ran out before release.
func (l *Locker) Unlock(ctx context.Context) error {
	deleted, err := l.client.Eval(ctx, releaseScript, []string{l.key}, l.token).Int64()
	if err != nil {
		return fmt.Errorf("release %s: %w", l.key, err)
	}
	if deleted == 0 {
		return fmt.Errorf("release %s: %w", l.key, ErrNotHolder)
	}
	return nil
}

// Manager hands out per-key lockers with a random holder token.
type Manager struct {
	client redis.Cmdable
}

func NewManager(client redis.Cmdable) *Manager {
	return &Manager{client: client}
}

// TryLock acquires key without waiting. The returned release func must be called
// by the holder; ErrLockHeld is returned when someone else owns the key.
func (m *Manager) TryLock(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, error) {
	l := NewLocker(m.client, key, uuid.NewString())
	if err := l.Lock(ctx, ttl); err != nil {
		return nil, err
	}
	return l.Unlock, nil
}

func SubmitKey(userID int64) string {
	return fmt.Sprintf("kyc:submit:%d", userID)
}
