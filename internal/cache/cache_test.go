package cache

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
)

func TestMemory_ClaimOnceUntilExpiry(t *testing.T) {
	m := NewMemory()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }
	ctx := context.Background()

	if ok, _ := m.Claim(ctx, "k", time.Minute); !ok {
		t.Fatalf("first claim must win")
	}
	if ok, _ := m.Claim(ctx, "k", time.Minute); ok {
		t.Fatalf("second claim must lose")
	}
	now = now.Add(time.Minute)
	if ok, _ := m.Claim(ctx, "k", time.Minute); !ok {
		t.Fatalf("claim after expiry must win")
	}
	_ = m.Release(ctx, "k")
	if ok, _ := m.Claim(ctx, "k", time.Minute); !ok {
		t.Fatalf("claim after release must win")
	}
}

func TestMemory_ConcurrentClaimsSingleWinner(t *testing.T) {
	m := NewMemory()
	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := m.Claim(context.Background(), "same", time.Minute); ok {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}
	wg.Wait()
	if wins != 1 {
		t.Fatalf("expected exactly one winner, got %d", wins)
	}
}

func TestMemory_SweepsExpired(t *testing.T) {
	m := NewMemory()
	now := time.Now()
	m.now = func() time.Time { return now }
	for i := 0; i < sweepEvery-1; i++ {
		_, _ = m.Claim(context.Background(), MarkerKey("submit", "u", string(rune('a'+i%26)), time.Duration(i).String()), time.Second)
	}
	now = now.Add(time.Hour)
	_, _ = m.Claim(context.Background(), "fresh", time.Second) // triggers sweep
	if m.Len() != 1 {
		t.Fatalf("expected only the fresh entry after sweep, got %d", m.Len())
	}
}

func TestMarkerKey(t *testing.T) {
	a := MarkerKey("submit", "u1", "7", "key")
	b := MarkerKey("submit", "u1", "7", "key")
	c := MarkerKey("edit", "u1", "7", "key")
	if a != b {
		t.Fatalf("marker keys must be deterministic")
	}
	if a == c {
		t.Fatalf("kind must separate namespaces")
	}
	if !strings.HasPrefix(a, "pg:submit:") || len(a) != len("pg:submit:")+64 {
		t.Fatalf("unexpected marker key %q", a)
	}
}

func TestRedis_UnreachableServer(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := NewRedis(ctx, RedisOptions{Addr: "127.0.0.1:1"}); err == nil {
		t.Fatalf("expected ping error for unreachable redis")
	}

	r := NewRedisFromClient(redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1}))
	defer r.Close()
	if ok, err := r.Claim(ctx, "k", time.Second); ok || err == nil {
		t.Fatalf("expected claim error, got ok=%v err=%v", ok, err)
	}
	if err := r.Release(ctx, "k"); err == nil {
		t.Fatalf("expected release error")
	}
}

var (
	_ KeyCache = (*Memory)(nil)
	_ KeyCache = (*Redis)(nil)
)
