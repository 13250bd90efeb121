package jwt

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// RefreshStore keeps refresh tokens server-side so they can be revoked.
type RefreshStore interface {
	Save(ctx context.Context, token string, admin Admin, ttl time.Duration) error
	// Load returns ErrInvalidRefreshToken for unknown or expired tokens.
	Load(ctx context.Context, token string) (Admin, error)
	Extend(ctx context.Context, token string, ttl time.Duration) error
	Delete(ctx context.Context, token string) error
}

const refreshKeyPrefix = "refresh:"

type RedisRefreshStore struct {
	client *redis.Client
}

func NewRedisRefreshStore(addr, password string) *RedisRefreshStore {
	return &RedisRefreshStore{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       0,
		}),
	}
}

func (s *RedisRefreshStore) Save(ctx context.Context, token string, admin Admin, ttl time.Duration) error {
	data, err := json.Marshal(admin)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, refreshKeyPrefix+token, data, ttl).Err()
}

func (s *RedisRefreshStore) Load(ctx context.Context, token string) (Admin, error) {
	val, err := s.client.Get(ctx, refreshKeyPrefix+token).Result()
	if err == redis.Nil {
		return Admin{}, ErrInvalidRefreshToken
	} else if err != nil {
		return Admin{}, err
	}

	var admin Admin
	if err := json.Unmarshal([]byte(val), &admin); err != nil {
		return Admin{}, fmt.Errorf("invalid token data: %w", err)
	}
	return admin, nil
}

func (s *RedisRefreshStore) Extend(ctx context.Context, token string, ttl time.Duration) error {
	return s.client.Expire(ctx, refreshKeyPrefix+token, ttl).Err()
}

func (s *RedisRefreshStore) Delete(ctx context.Context, token string) error {
	return s.client.Del(ctx, refreshKeyPrefix+token).Err()
}

func (s *RedisRefreshStore) Close() error {
	return s.client.Close()
}

type memoryRefreshEntry struct {
	admin     Admin
	expiresAt time.Time
}

// MemoryRefreshStore is used when no auth Redis is configured.
type MemoryRefreshStore struct {
	mu      sync.Mutex
	entries map[string]memoryRefreshEntry
	now     func() time.Time
}

func NewMemoryRefreshStore() *MemoryRefreshStore {
	return &MemoryRefreshStore{
		entries: make(map[string]memoryRefreshEntry),
		now:     time.Now,
	}
}

func (s *MemoryRefreshStore) Save(ctx context.Context, token string, admin Admin, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[token] = memoryRefreshEntry{admin: admin, expiresAt: s.now().Add(ttl)}
	return nil
}

func (s *MemoryRefreshStore) Load(ctx context.Context, token string) (Admin, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[token]
	if !ok {
		return Admin{}, ErrInvalidRefreshToken
	}
	if !s.now().Before(entry.expiresAt) {
		delete(s.entries, token)
		return Admin{}, ErrInvalidRefreshToken
	}
	return entry.admin, nil
}

func (s *MemoryRefreshStore) Extend(ctx context.Context, token string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[token]
	if !ok {
		return ErrInvalidRefreshToken
	}
	entry.expiresAt = s.now().Add(ttl)
	s.entries[token] = entry
	return nil
}

func (s *MemoryRefreshStore) Delete(ctx context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, token)
	return nil
}
