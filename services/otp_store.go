package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// OTPKey identifies the order a code was issued for.
type OTPKey struct {
	OrderID   uint
	OrderType string
}

func (k OTPKey) String() string {
	return fmt.Sprintf("%s:%d", k.OrderType, k.OrderID)
}

// OTPEntry is a stored one-time code with its absolute expiry and the
// contact address the code was sent to.
type OTPEntry struct {
	Code      string    `json:"code"`
	Recipient string    `json:"recipient"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the entry's window has passed.
func (e OTPEntry) Expired() bool {
	return time.Now().After(e.ExpiresAt)
}

// OTPStore is a keyed code store. Set overwrites any prior entry for
// the key; Get returns nil when no entry exists. Implementations
// evict expired entries on access, but an expired entry may still be
// returned once so callers can report expiry distinctly from absence.
type OTPStore interface {
	Get(ctx context.Context, key OTPKey) (*OTPEntry, error)
	Set(ctx context.Context, key OTPKey, entry OTPEntry) error
	Delete(ctx context.Context, key OTPKey) error
}

// InMemoryOTPStore keeps codes in a process-local map. Suitable for
// single-instance deployments and tests. Expired entries are evicted
// on read rather than by a background sweep.
type InMemoryOTPStore struct {
	mu      sync.Mutex
	entries map[string]OTPEntry
}

// NewInMemoryOTPStore creates an empty in-memory store.
func NewInMemoryOTPStore() *InMemoryOTPStore {
	return &InMemoryOTPStore{entries: make(map[string]OTPEntry)}
}

// Get returns the entry for key, evicting it first if expired. The
// evicted entry is still returned once for expiry reporting.
func (s *InMemoryOTPStore) Get(ctx context.Context, key OTPKey) (*OTPEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, exists := s.entries[key.String()]
	if !exists {
		return nil, nil
	}
	if entry.Expired() {
		delete(s.entries, key.String())
	}
	return &entry, nil
}

// Set stores entry under key, overwriting any prior code.
func (s *InMemoryOTPStore) Set(ctx context.Context, key OTPKey, entry OTPEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key.String()] = entry
	return nil
}

// Delete removes the entry for key if present.
func (s *InMemoryOTPStore) Delete(ctx context.Context, key OTPKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key.String())
	return nil
}

// RedisOTPStore keeps codes in Redis with a TTL matching the code's
// expiry. Suitable for multi-instance deployments. Redis expires
// entries itself, so an expired code reads back as absent.
type RedisOTPStore struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisOTPStore creates a store over an existing Redis client.
func NewRedisOTPStore(client *redis.Client) *RedisOTPStore {
	return &RedisOTPStore{client: client, keyPrefix: "otp:order:"}
}

func (s *RedisOTPStore) Get(ctx context.Context, key OTPKey) (*OTPEntry, error) {
	raw, err := s.client.Get(ctx, s.keyPrefix+key.String()).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read otp entry: %w", err)
	}

	var entry OTPEntry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		return nil, fmt.Errorf("failed to decode otp entry: %w", err)
	}
	return &entry, nil
}

func (s *RedisOTPStore) Set(ctx context.Context, key OTPKey, entry OTPEntry) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode otp entry: %w", err)
	}

	ttl := time.Until(entry.ExpiresAt)
	if ttl <= 0 {
		return fmt.Errorf("otp entry already expired")
	}

	if err := s.client.Set(ctx, s.keyPrefix+key.String(), raw, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store otp entry: %w", err)
	}
	return nil
}

func (s *RedisOTPStore) Delete(ctx context.Context, key OTPKey) error {
	if err := s.client.Del(ctx, s.keyPrefix+key.String()).Err(); err != nil {
		return fmt.Errorf("failed to delete otp entry: %w", err)
	}
	return nil
}
