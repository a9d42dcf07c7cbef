package oauthflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisPendingStore implementa PendingStore sobre Redis; el TTL lo aplica Redis.
type RedisPendingStore struct {
	client redis.UniversalClient
	prefix string
}

var _ PendingStore = (*RedisPendingStore)(nil)

func NewRedisPendingStore(client redis.UniversalClient, prefix string) *RedisPendingStore {
	if prefix == "" {
		prefix = "posgate:oauth:state:"
	}
	return &RedisPendingStore{client: client, prefix: prefix}
}

func (s *RedisPendingStore) Put(ctx context.Context, state string, p Pending, ttl time.Duration) error {
	payload, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	if err := s.client.Set(ctx, s.prefix+state, payload, ttl).Err(); err != nil {
		return fmt.Errorf("persist state: %w", err)
	}
	return nil
}

// Take usa GETDEL: lectura y borrado en un solo comando.
func (s *RedisPendingStore) Take(ctx context.Context, state string) (*Pending, bool, error) {
	b, err := s.client.GetDel(ctx, s.prefix+state).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("take state: %w", err)
	}
	var p Pending
	if err := json.Unmarshal(b, &p); err != nil {
		return nil, false, fmt.Errorf("decode state: %w", err)
	}
	return &p, true, nil
}

// Sweep no hace nada: Redis expira las claves por TTL.
func (s *RedisPendingStore) Sweep(ctx context.Context, cutoff time.Time) (int, error) {
	return 0, nil
}
