package adapter

import (
	"context"
	"time"
)

// Locker is a best-effort distributed mutex. TryLock returns
// domain.ErrLockBusy when the key stays held after its retries.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (token string, err error)
	Unlock(ctx context.Context, key, token string) error
}
