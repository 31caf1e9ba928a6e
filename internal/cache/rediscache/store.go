// Package rediscache keeps raw upstream bodies in Redis so that several
// instances can share fetched payloads.
package rediscache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultPrefix = "quotron:"

type Store struct {
	client redis.Cmdable
	prefix string
}

type Option func(*Store)

func WithPrefix(prefix string) Option {
	return func(s *Store) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

func New(client redis.Cmdable, opts ...Option) *Store {
	s := &Store{
		client: client,
		prefix: defaultPrefix,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Entry is a stored body with its remaining lifetime.
type Entry struct {
	Body []byte
	TTL  time.Duration
}

// Get returns the entry stored under key, or nil when the key is missing.
func (s *Store) Get(ctx context.Context, key string) (*Entry, error) {
	body, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}

	ttl, err := s.client.PTTL(ctx, s.prefix+key).Result()
	if err != nil {
		return nil, fmt.Errorf("redis pttl: %w", err)
	}

	// PTTL reports -2 for a key that expired in between and -1 for one without expiry.
	if ttl == -2 {
		return nil, nil
	}

	if ttl < 0 {
		ttl = 0
	}

	return &Entry{Body: body, TTL: ttl}, nil
}

func (s *Store) Set(ctx context.Context, key string, body []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}

	if err := s.client.Set(ctx, s.prefix+key, body, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}

	return nil
}
