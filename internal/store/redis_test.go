package store

import (
	"context"
	"testing"
	"time"
)

// --- Put + Take ---

func TestRedisPendingPutTake(t *testing.T) {
	ctx := context.Background()

	t.Run("take consumes the key exactly once", func(t *testing.T) {
		key := "redis_take_once"
		t.Cleanup(func() {
			testRedis.rdb.Del(ctx, pendingKeyPrefix+key)
		})

		if err := testRedis.Put(ctx, key, time.Minute); err != nil {
			t.Fatalf("Put failed: %v", err)
		}

		ok, err := testRedis.Take(ctx, key)
		if err != nil {
			t.Fatalf("Take failed: %v", err)
		}
		if !ok {
			t.Fatal("first Take should hit")
		}

		ok, err = testRedis.Take(ctx, key)
		if err != nil {
			t.Fatalf("second Take failed: %v", err)
		}
		if ok {
			t.Error("second Take of the same key should miss")
		}
	})

	t.Run("unknown key misses without error", func(t *testing.T) {
		ok, err := testRedis.Take(ctx, "redis_never_issued")
		if err != nil {
			t.Fatalf("Take failed: %v", err)
		}
		if ok {
			t.Error("Take of a never-issued key should miss")
		}
	})

	t.Run("key expires server-side", func(t *testing.T) {
		key := "redis_take_expired"
		t.Cleanup(func() {
			testRedis.rdb.Del(ctx, pendingKeyPrefix+key)
		})

		if err := testRedis.Put(ctx, key, 50*time.Millisecond); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		time.Sleep(120 * time.Millisecond)

		ok, err := testRedis.Take(ctx, key)
		if err != nil {
			t.Fatalf("Take failed: %v", err)
		}
		if ok {
			t.Error("expired key should read as a miss")
		}
	})

	t.Run("keys are namespaced", func(t *testing.T) {
		key := "redis_namespaced"
		t.Cleanup(func() {
			testRedis.rdb.Del(ctx, pendingKeyPrefix+key)
		})

		if err := testRedis.Put(ctx, key, time.Minute); err != nil {
			t.Fatalf("Put failed: %v", err)
		}

		n, err := testRedis.rdb.Exists(ctx, pendingKeyPrefix+key).Result()
		if err != nil {
			t.Fatalf("Exists failed: %v", err)
		}
		if n != 1 {
			t.Errorf("expected key under %q prefix", pendingKeyPrefix)
		}
	})
}

// --- CheckHealth ---

func TestRedisPendingCheckHealth(t *testing.T) {
	if err := testRedis.CheckHealth(context.Background()); err != nil {
		t.Errorf("CheckHealth against live Redis: %v", err)
	}
}
