package kv_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"testing"
	"time"

	"github.com/yeisme/yukumo/pkg/configs"
	"github.com/yeisme/yukumo/pkg/internal/storage/kv"
)

func TestMemoryKV_TTL(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemoryKV()

	if err := store.Set(ctx, "fp-short", []byte("a"), 20*time.Millisecond); err != nil {
		t.Fatalf("set: %v", err)
	}

	if err := store.Set(ctx, "fp-forever", []byte("b"), 0); err != nil {
		t.Fatalf("set: %v", err)
	}

	if v, err := store.Get(ctx, "fp-short"); err != nil || string(v) != "a" {
		t.Fatalf("get before expiry = %q, %v", v, err)
	}

	time.Sleep(60 * time.Millisecond)

	if _, err := store.Get(ctx, "fp-short"); !errors.Is(err, kv.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after expiry, got %v", err)
	}

	if ok, err := store.Exists(ctx, "fp-forever"); err != nil || !ok {
		t.Fatalf("fp-forever should exist: %v %v", ok, err)
	}
}

func TestMemoryKV_Keys(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemoryKV()

	for _, k := range []string{"fp:a", "fp:b", "other:a"} {
		_ = store.Set(ctx, k, []byte(k), 0)
	}

	tests := []struct {
		pattern string
		want    []string
	}{
		{"", []string{"fp:a", "fp:b", "other:a"}},
		{"*", []string{"fp:a", "fp:b", "other:a"}},
		{"fp:*", []string{"fp:a", "fp:b"}},
		{"*:a", []string{"fp:a", "other:a"}},
		{"none:*", nil},
	}

	for _, tt := range tests {
		t.Run(tt.pattern, func(t *testing.T) {
			got, err := store.Keys(ctx, tt.pattern)
			if err != nil {
				t.Fatal(err)
			}

			slices.Sort(got)

			if !slices.Equal(got, tt.want) {
				t.Errorf("Keys(%q) = %v, want %v", tt.pattern, got, tt.want)
			}
		})
	}
}

func TestMemoryKV_GetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemoryKV()

	_ = store.Set(ctx, "k", []byte("abc"), 0)

	v, _ := store.Get(ctx, "k")
	v[0] = 'x'

	if again, _ := store.Get(ctx, "k"); string(again) != "abc" {
		t.Errorf("stored value mutated through Get result: %q", again)
	}
}

func TestNewKVClient(t *testing.T) {
	client, err := kv.NewKVClient(context.Background(), configs.KVConfig{Type: configs.KVTypeMemory})
	if err != nil {
		t.Fatalf("memory: %v", err)
	}

	if client.Type != configs.KVTypeMemory {
		t.Errorf("type = %s", client.Type)
	}

	if _, err := kv.NewKVClient(context.Background(), configs.KVConfig{Type: "etcd"}); err == nil {
		t.Fatal("expected error for unsupported type")
	}

	if !slices.Contains(kv.GetRegisteredKVTypes(), configs.KVTypeMemory) {
		t.Errorf("registered = %v", kv.GetRegisteredKVTypes())
	}
}

// 外部后端按环境变量开启：YUKUMO_TEST_REDIS=addr，YUKUMO_TEST_NATS=url.
func externalStores(t testing.TB) map[string]kv.KVStore {
	t.Helper()

	stores := map[string]kv.KVStore{"memory": kv.NewMemoryKV()}

	if addr := os.Getenv("YUKUMO_TEST_REDIS"); addr != "" {
		c, err := kv.NewKVClient(context.Background(), configs.KVConfig{
			Type: configs.KVTypeRedis, Timeout: time.Second, Redis: configs.RedisKVConfig{Addr: addr},
		})
		if err != nil {
			t.Fatalf("redis: %v", err)
		}

		stores["redis"] = c
	}

	if url := os.Getenv("YUKUMO_TEST_NATS"); url != "" {
		c, err := kv.NewKVClient(context.Background(), configs.KVConfig{
			Type: configs.KVTypeNATS, Timeout: time.Second, NATS: configs.NATSKVConfig{URL: url, Bucket: "yukumo-test"},
		})
		if err != nil {
			t.Fatalf("nats: %v", err)
		}

		stores["nats"] = c
	}

	t.Cleanup(func() {
		for _, s := range stores {
			_ = s.Close()
		}
	})

	return stores
}

func TestStores_RoundTrip(t *testing.T) {
	ctx := context.Background()

	for name, store := range externalStores(t) {
		t.Run(name, func(t *testing.T) {
			key := fmt.Sprintf("yk-test-%d", time.Now().UnixNano())

			if err := store.Set(ctx, key, []byte("v"), time.Minute); err != nil {
				t.Fatalf("set: %v", err)
			}

			if v, err := store.Get(ctx, key); err != nil || string(v) != "v" {
				t.Fatalf("get = %q, %v", v, err)
			}

			if err := store.Delete(ctx, key); err != nil {
				t.Fatalf("delete: %v", err)
			}

			if ok, _ := store.Exists(ctx, key); ok {
				t.Errorf("%s still exists after delete", key)
			}
		})
	}
}

func BenchmarkStores(b *testing.B) {
	ctx := context.Background()
	payload := make([]byte, 1024)

	for name, store := range externalStores(b) {
		b.Run(name, func(b *testing.B) {
			b.ReportAllocs()

			for i := 0; b.Loop(); i++ {
				key := fmt.Sprintf("bench-%s-%d", name, i)
				if err := store.Set(ctx, key, payload, 0); err != nil {
					b.Fatal(err)
				}

				if _, err := store.Get(ctx, key); err != nil {
					b.Fatal(err)
				}

				_ = store.Delete(ctx, key)
			}
		})
	}
}
