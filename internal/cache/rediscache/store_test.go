package rediscache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

type mockRedisClient struct {
	redis.Cmdable

	mu      sync.Mutex
	values  map[string]string
	ttls    map[string]time.Duration
	failGet bool
}

func newMockRedisClient() *mockRedisClient {
	return &mockRedisClient{
		values: make(map[string]string),
		ttls:   make(map[string]time.Duration),
	}
}

func (m *mockRedisClient) Get(ctx context.Context, key string) *redis.StringCmd {
	m.mu.Lock()
	defer m.mu.Unlock()

	cmd := redis.NewStringCmd(ctx)

	if m.failGet {
		cmd.SetErr(errors.New("connection refused"))
		return cmd
	}

	v, ok := m.values[key]
	if !ok {
		cmd.SetErr(redis.Nil)
		return cmd
	}

	cmd.SetVal(v)

	return cmd
}

func (m *mockRedisClient) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch v := value.(type) {
	case []byte:
		m.values[key] = string(v)
	case string:
		m.values[key] = v
	}

	m.ttls[key] = expiration

	cmd := redis.NewStatusCmd(ctx)
	cmd.SetVal("OK")

	return cmd
}

func (m *mockRedisClient) PTTL(ctx context.Context, key string) *redis.DurationCmd {
	m.mu.Lock()
	defer m.mu.Unlock()

	cmd := redis.NewDurationCmd(ctx, time.Millisecond)

	ttl, ok := m.ttls[key]
	if !ok {
		cmd.SetVal(-2)
		return cmd
	}

	cmd.SetVal(ttl)

	return cmd
}

func TestStore_SetGet(t *testing.T) {
	client := newMockRedisClient()
	store := New(client, WithPrefix("test:"))

	if err := store.Set(context.Background(), "quote:AAPL", []byte(`{"a":1}`), time.Minute); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if client.ttls["test:quote:AAPL"] != time.Minute {
		t.Errorf("expected ttl 1m, got %v", client.ttls["test:quote:AAPL"])
	}

	entry, err := store.Get(context.Background(), "quote:AAPL")
	if err != nil || entry == nil {
		t.Fatalf("expected hit, got entry=%v err=%v", entry, err)
	}

	if string(entry.Body) != `{"a":1}` {
		t.Errorf("unexpected body %s", entry.Body)
	}

	if entry.TTL != time.Minute {
		t.Errorf("expected remaining ttl 1m, got %v", entry.TTL)
	}
}

func TestStore_MissIsNotAnError(t *testing.T) {
	store := New(newMockRedisClient())

	entry, err := store.Get(context.Background(), "missing")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if entry != nil {
		t.Error("expected miss")
	}
}

func TestStore_GetError(t *testing.T) {
	client := newMockRedisClient()
	client.failGet = true

	entry, err := New(client).Get(context.Background(), "k")
	if err == nil || entry != nil {
		t.Errorf("expected error and miss, got entry=%v err=%v", entry, err)
	}
}

func TestStore_NonPositiveTTLSkipsWrite(t *testing.T) {
	client := newMockRedisClient()

	if err := New(client).Set(context.Background(), "k", []byte("v"), 0); err != nil {
		t.Fatal(err)
	}

	if len(client.values) != 0 {
		t.Errorf("expected no writes, got %d", len(client.values))
	}
}
