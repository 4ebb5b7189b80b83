package router

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// CooldownStore tracks which deployment ids are currently cooled down
// after a transient failure (spec §4.5). The process-local implementation
// is the default; RedisCooldownStore shares state across gateway instances
// when configured, per spec §5's "optionally shared via an external KV".
type CooldownStore interface {
	IsCooled(ctx context.Context, deploymentID string) (bool, error)
	Cooldown(ctx context.Context, deploymentID string, d time.Duration) error
	Clear(ctx context.Context, deploymentID string) error
}

// MemoryCooldownStore is the default process-local CooldownStore.
type MemoryCooldownStore struct {
	mu      sync.RWMutex
	cooled  map[string]time.Time // deployment id -> cooled-until
}

// NewMemoryCooldownStore builds an empty in-process cooldown store.
func NewMemoryCooldownStore() *MemoryCooldownStore {
	return &MemoryCooldownStore{cooled: make(map[string]time.Time)}
}

func (s *MemoryCooldownStore) IsCooled(ctx context.Context, deploymentID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	until, ok := s.cooled[deploymentID]
	if !ok {
		return false, nil
	}
	return time.Now().Before(until), nil
}

func (s *MemoryCooldownStore) Cooldown(ctx context.Context, deploymentID string, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cooled[deploymentID] = time.Now().Add(d)
	return nil
}

func (s *MemoryCooldownStore) Clear(ctx context.Context, deploymentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.cooled, deploymentID)
	return nil
}

// RedisCooldownStore shares cooldown state across gateway instances using
// a key-per-deployment TTL entry: presence of the key means cooled, and its
// TTL does the expiry bookkeeping for us instead of a background sweep.
type RedisCooldownStore struct {
	client *redis.Client
	prefix string
}

// NewRedisCooldownStore builds a CooldownStore backed by the given Redis
// client. keyPrefix namespaces keys when multiple gateway deployments share
// one Redis instance.
func NewRedisCooldownStore(client *redis.Client, keyPrefix string) *RedisCooldownStore {
	return &RedisCooldownStore{client: client, prefix: keyPrefix}
}

func (s *RedisCooldownStore) key(deploymentID string) string {
	return s.prefix + "cooldown:" + deploymentID
}

func (s *RedisCooldownStore) IsCooled(ctx context.Context, deploymentID string) (bool, error) {
	n, err := s.client.Exists(ctx, s.key(deploymentID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *RedisCooldownStore) Cooldown(ctx context.Context, deploymentID string, d time.Duration) error {
	return s.client.Set(ctx, s.key(deploymentID), "1", d).Err()
}

func (s *RedisCooldownStore) Clear(ctx context.Context, deploymentID string) error {
	return s.client.Del(ctx, s.key(deploymentID)).Err()
}
