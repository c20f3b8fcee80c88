package idempotency

import (
	"context"
	"os"
	"testing"
	"time"
)

func TestRedisStoreLifecycle(t *testing.T) {
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	store, err := NewRedisStore(ctx, addr)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	defer store.Close()

	key := "POST /api/v1/transfers " + time.Now().Format(time.RFC3339Nano)
	rec := Record{
		StatusCode: 202,
		Response:   []byte(`{"ok":true}`),
		CreatedAt:  time.Now(),
		ExpiresAt:  time.Now().Add(time.Minute),
	}
	if err := store.Save(ctx, key, rec); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := store.Get(ctx, key)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil || string(got.Response) != `{"ok":true}` {
		t.Fatalf("unexpected record: %#v", got)
	}
	if missing, _ := store.Get(ctx, key+"-other"); missing != nil {
		t.Fatalf("expected nil for missing key")
	}
}

func TestRedisKeyIsBounded(t *testing.T) {
	long := "POST /api/v1/bets " + string(make([]byte, 4096))
	if got := redisKey(long); len(got) > len(redisKeyPrefix)+16 {
		t.Fatalf("key too long: %d", len(got))
	}
	if redisKey("a") == redisKey("b") {
		t.Fatalf("distinct keys collapsed")
	}
}
