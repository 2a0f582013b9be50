//go:build !integration

package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"agent-hub/internal/domain"
	"agent-hub/internal/domain/ports/adapter"
)

func TestLocalLocker(t *testing.T) {
	ctx := context.Background()
	key := adapter.ProjectRunKey("p1")

	t.Run("should refuse a second holder until unlock", func(t *testing.T) {
		l := NewLocalLocker()
		tok, err := l.TryLock(ctx, key, time.Minute)
		if err != nil {
			t.Fatalf("TryLock: %v", err)
		}
		if _, err := l.TryLock(ctx, key, time.Minute); !errors.Is(err, domain.ErrProjectBusy) {
			t.Fatalf("expected ErrProjectBusy, got %v", err)
		}
		if err := l.Unlock(ctx, key, "someone-else"); err != nil {
			t.Fatalf("Unlock: %v", err)
		}
		if _, err := l.TryLock(ctx, key, time.Minute); !errors.Is(err, domain.ErrProjectBusy) {
			t.Fatal("a foreign token must not release the lock")
		}
		_ = l.Unlock(ctx, key, tok)
		if _, err := l.TryLock(ctx, key, time.Minute); err != nil {
			t.Fatalf("expected lock to be free after unlock, got %v", err)
		}
	})

	t.Run("should expire leases after ttl", func(t *testing.T) {
		l := NewLocalLocker()
		now := time.Now()
		l.clock = func() time.Time { return now }
		if _, err := l.TryLock(ctx, key, time.Second); err != nil {
			t.Fatalf("TryLock: %v", err)
		}
		now = now.Add(2 * time.Second)
		if _, err := l.TryLock(ctx, key, time.Second); err != nil {
			t.Fatalf("expected expired lease to be replaced, got %v", err)
		}
	})

	t.Run("should keep an extended lease past its original ttl", func(t *testing.T) {
		l := NewLocalLocker()
		now := time.Now()
		l.clock = func() time.Time { return now }
		tok, err := l.TryLock(ctx, key, time.Second)
		if err != nil {
			t.Fatalf("TryLock: %v", err)
		}
		now = now.Add(800 * time.Millisecond)
		if err := l.Extend(ctx, key, tok, time.Second); err != nil {
			t.Fatalf("Extend: %v", err)
		}
		now = now.Add(800 * time.Millisecond)
		if _, err := l.TryLock(ctx, key, time.Second); !errors.Is(err, domain.ErrProjectBusy) {
			t.Fatalf("expected extended lease to hold, got %v", err)
		}
	})

	t.Run("should report a lost lease on extend", func(t *testing.T) {
		l := NewLocalLocker()
		now := time.Now()
		l.clock = func() time.Time { return now }
		tok, err := l.TryLock(ctx, key, time.Second)
		if err != nil {
			t.Fatalf("TryLock: %v", err)
		}
		if err := l.Extend(ctx, key, "someone-else", time.Second); !errors.Is(err, domain.ErrLockLost) {
			t.Fatalf("expected ErrLockLost for a foreign token, got %v", err)
		}
		now = now.Add(2 * time.Second)
		if err := l.Extend(ctx, key, tok, time.Second); !errors.Is(err, domain.ErrLockLost) {
			t.Fatalf("expected ErrLockLost after expiry, got %v", err)
		}
	})
}
