package cart

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// hashes is the subset of redis the cart needs.
type hashes interface {
	HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd
	HSet(ctx context.Context, key string, values ...any) *redis.IntCmd
	HDel(ctx context.Context, key string, fields ...string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// Store keeps one redis hash per cart (field = plan slug, value = quantity).
type Store struct {
	rdb hashes
	ttl time.Duration
}

func NewStore(rdb hashes, ttl time.Duration) *Store {
	return &Store{rdb: rdb, ttl: ttl}
}

func key(cartID string) string { return "cart:" + cartID }

func (s *Store) Lines(ctx context.Context, cartID string) ([]Line, error) {
	m, err := s.rdb.HGetAll(ctx, key(cartID)).Result()
	if err != nil {
		return nil, fmt.Errorf("cart: load: %w", err)
	}
	lines := make([]Line, 0, len(m))
	for sl, v := range m {
		q, err := strconv.Atoi(v)
		if err != nil || q <= 0 {
			continue
		}
		lines = append(lines, Line{Slug: sl, Quantity: q})
	}
	sort.Slice(lines, func(i, j int) bool { return lines[i].Slug < lines[j].Slug })
	return lines, nil
}

func (s *Store) Set(ctx context.Context, cartID, slug string, qty int) error {
	k := key(cartID)
	if err := s.rdb.HSet(ctx, k, slug, qty).Err(); err != nil {
		return fmt.Errorf("cart: set: %w", err)
	}
	if s.ttl > 0 {
		if err := s.rdb.Expire(ctx, k, s.ttl).Err(); err != nil {
			return fmt.Errorf("cart: expire: %w", err)
		}
	}
	return nil
}

func (s *Store) Remove(ctx context.Context, cartID, slug string) error {
	if err := s.rdb.HDel(ctx, key(cartID), slug).Err(); err != nil {
		return fmt.Errorf("cart: remove: %w", err)
	}
	return nil
}

func (s *Store) Clear(ctx context.Context, cartID string) error {
	if err := s.rdb.Del(ctx, key(cartID)).Err(); err != nil {
		return fmt.Errorf("cart: clear: %w", err)
	}
	return nil
}
