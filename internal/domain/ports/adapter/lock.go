package adapter

import (
	"context"
	"time"
)

// Locker guards a key for at most ttl. TryLock returns domain.ErrProjectBusy
// when someone else holds the key. Extend pushes the expiry of a held lease
// to ttl from now and returns domain.ErrLockLost when token no longer holds it.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (token string, err error)
	Extend(ctx context.Context, key, token string, ttl time.Duration) error
	Unlock(ctx context.Context, key, token string) error
}

// ProjectRunKey is the lock key serializing runs of one project.
func ProjectRunKey(projectID string) string {
	return "agenthub:run-lock:" + projectID
}
