package router

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestMemoryCooldownStoreExpiresAfterDuration(t *testing.T) {
	s := NewMemoryCooldownStore()
	ctx := context.Background()

	if err := s.Cooldown(ctx, "dep-1", 10*time.Millisecond); err != nil {
		t.Fatalf("Cooldown() error = %v", err)
	}
	cooled, err := s.IsCooled(ctx, "dep-1")
	if err != nil || !cooled {
		t.Fatalf("IsCooled() = %v, %v, want true", cooled, err)
	}

	time.Sleep(20 * time.Millisecond)
	cooled, err = s.IsCooled(ctx, "dep-1")
	if err != nil || cooled {
		t.Fatalf("IsCooled() after expiry = %v, %v, want false", cooled, err)
	}
}

func TestMemoryCooldownStoreClear(t *testing.T) {
	s := NewMemoryCooldownStore()
	ctx := context.Background()
	_ = s.Cooldown(ctx, "dep-1", time.Minute)

	if err := s.Clear(ctx, "dep-1"); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	cooled, _ := s.IsCooled(ctx, "dep-1")
	if cooled {
		t.Error("expected not cooled after Clear()")
	}
}

func newTestRedisStore(t *testing.T) (*miniredis.Miniredis, *RedisCooldownStore) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run() error = %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return mr, NewRedisCooldownStore(client, "gateway:")
}

func TestRedisCooldownStoreSharesStateAcrossInstances(t *testing.T) {
	mr, store := newTestRedisStore(t)
	defer mr.Close()
	ctx := context.Background()

	if err := store.Cooldown(ctx, "dep-1", time.Minute); err != nil {
		t.Fatalf("Cooldown() error = %v", err)
	}
	cooled, err := store.IsCooled(ctx, "dep-1")
	if err != nil || !cooled {
		t.Fatalf("IsCooled() = %v, %v, want true", cooled, err)
	}

	mr.FastForward(2 * time.Minute)
	cooled, err = store.IsCooled(ctx, "dep-1")
	if err != nil || cooled {
		t.Fatalf("IsCooled() after TTL expiry = %v, %v, want false", cooled, err)
	}
}
