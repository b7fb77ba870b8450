package cache

import (
	"context"
	"testing"
	"time"

	"github.com/opensource-finance/txguard/internal/domain"
	"github.com/shopspring/decimal"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newClockedCache(size int) (*LRUCache, *fakeClock) {
	clock := &fakeClock{t: time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)}
	c := NewLRUCache(size)
	c.now = clock.now
	return c, clock
}

func TestLRUCache(t *testing.T) {
	cache := NewLRUCache(100)
	ctx := context.Background()

	t.Run("SetAndGet", func(t *testing.T) {
		err := cache.Set(ctx, "key1", []byte("value1"), time.Minute)
		if err != nil {
			t.Fatalf("Set failed: %v", err)
		}

		val, err := cache.Get(ctx, "key1")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}

		if string(val) != "value1" {
			t.Errorf("expected 'value1', got '%s'", string(val))
		}
	})

	t.Run("GetMiss", func(t *testing.T) {
		val, err := cache.Get(ctx, "nonexistent")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if val != nil {
			t.Errorf("expected nil for cache miss, got: %v", val)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		_ = cache.Set(ctx, "key2", []byte("value2"), time.Minute)

		if err := cache.Delete(ctx, "key2"); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}

		val, _ := cache.Get(ctx, "key2")
		if val != nil {
			t.Error("expected nil after delete")
		}
	})

	t.Run("TTLExpiration", func(t *testing.T) {
		clockCache, clock := newClockedCache(10)
		_ = clockCache.Set(ctx, "expiring", []byte("temp"), 10*time.Second)

		val, _ := clockCache.Get(ctx, "expiring")
		if val == nil {
			t.Error("expected value before expiration")
		}

		clock.advance(10 * time.Second)

		val, _ = clockCache.Get(ctx, "expiring")
		if val != nil {
			t.Error("expected nil after expiration")
		}
	})

	t.Run("LRUEviction", func(t *testing.T) {
		smallCache := NewLRUCache(3)

		_ = smallCache.Set(ctx, "a", []byte("1"), time.Minute)
		_ = smallCache.Set(ctx, "b", []byte("2"), time.Minute)
		_ = smallCache.Set(ctx, "c", []byte("3"), time.Minute)

		// Access 'a' to make it recently used
		_, _ = smallCache.Get(ctx, "a")

		// Add 'd' - should evict 'b' (oldest accessed)
		_ = smallCache.Set(ctx, "d", []byte("4"), time.Minute)

		val, _ := smallCache.Get(ctx, "b")
		if val != nil {
			t.Error("expected 'b' to be evicted")
		}

		val, _ = smallCache.Get(ctx, "a")
		if val == nil {
			t.Error("expected 'a' to still exist")
		}
	})

	t.Run("RequiresKey", func(t *testing.T) {
		if err := cache.Set(ctx, "", []byte("value"), time.Minute); err == nil {
			t.Error("expected error for empty key")
		}
		if _, err := cache.Get(ctx, ""); err == nil {
			t.Error("expected error for empty key")
		}
		if _, err := cache.IncrementCounter(ctx, "", time.Minute); err == nil {
			t.Error("expected error for empty key")
		}
	})

	t.Run("IncrementCounter", func(t *testing.T) {
		cache, clock := newClockedCache(10)
		window := time.Minute

		count1, err := cache.IncrementCounter(ctx, "velocity:user-001", window)
		if err != nil {
			t.Fatalf("IncrementCounter failed: %v", err)
		}
		if count1 != 1 {
			t.Errorf("expected count 1, got %d", count1)
		}

		count2, _ := cache.IncrementCounter(ctx, "velocity:user-001", window)
		if count2 != 2 {
			t.Errorf("expected count 2, got %d", count2)
		}

		current, err := cache.Counter(ctx, "velocity:user-001")
		if err != nil {
			t.Fatalf("Counter failed: %v", err)
		}
		if current != 2 {
			t.Errorf("expected Counter 2 without incrementing, got %d", current)
		}

		clock.advance(window + time.Second)

		if current, _ := cache.Counter(ctx, "velocity:user-001"); current != 0 {
			t.Errorf("expected 0 after window, got %d", current)
		}

		count3, _ := cache.IncrementCounter(ctx, "velocity:user-001", window)
		if count3 != 1 {
			t.Errorf("expected count 1 after window reset, got %d", count3)
		}
	})

	t.Run("CounterSweep", func(t *testing.T) {
		small, clock := newClockedCache(2)
		_, _ = small.IncrementCounter(ctx, "u1", time.Minute)
		_, _ = small.IncrementCounter(ctx, "u2", time.Minute)

		clock.advance(2 * time.Minute)
		_, _ = small.IncrementCounter(ctx, "u3", time.Minute)

		if n := small.Stats().Counters; n != 1 {
			t.Errorf("expected expired counters swept, %d left", n)
		}
	})

	t.Run("EvictionCount", func(t *testing.T) {
		small := NewLRUCache(1)
		_ = small.Set(ctx, "a", []byte("1"), time.Minute)
		_ = small.Set(ctx, "b", []byte("2"), time.Minute)
		if ev := small.Stats().Evictions; ev != 1 {
			t.Errorf("expected 1 eviction, got %d", ev)
		}
	})

	t.Run("CounterMiss", func(t *testing.T) {
		n, err := cache.Counter(ctx, "never-incremented")
		if err != nil || n != 0 {
			t.Errorf("expected 0, nil for unknown counter, got %d, %v", n, err)
		}
	})

	t.Run("RecordCache", func(t *testing.T) {
		tx := &domain.Transaction{
			ID:       "tx-001",
			Type:     domain.TypeTransfer,
			Amount:   decimal.RequireFromString("1000.50"),
			Currency: "USD",
		}
		result := domain.NewValidationResult("tx-001", 70)
		result.FraudScore = 20

		err := SetRecord(ctx, cache, &domain.ValidationRecord{Transaction: tx, Result: result, Approved: true}, time.Minute)
		if err != nil {
			t.Fatalf("SetRecord failed: %v", err)
		}

		rec, err := GetRecord(ctx, cache, "tx-001")
		if err != nil {
			t.Fatalf("GetRecord failed: %v", err)
		}
		if rec == nil {
			t.Fatal("expected cached record")
		}
		if !rec.Transaction.Amount.Equal(tx.Amount) {
			t.Errorf("expected amount %s, got %s", tx.Amount, rec.Transaction.Amount)
		}
		if rec.Result.FraudScore != 20 || !rec.Approved {
			t.Errorf("unexpected record %+v", rec.Result)
		}

		miss, err := GetRecord(ctx, cache, "tx-missing")
		if err != nil || miss != nil {
			t.Errorf("expected nil, nil on miss, got %v, %v", miss, err)
		}
	})

	t.Run("Stats", func(t *testing.T) {
		statsCache := NewLRUCache(50)
		_ = statsCache.Set(ctx, "k1", []byte("v1"), time.Minute)
		_ = statsCache.Set(ctx, "k2", []byte("v2"), time.Minute)

		_, _ = statsCache.Get(ctx, "k1")
		_, _ = statsCache.Get(ctx, "k3")

		stats := statsCache.Stats()
		if stats.Size != 2 || stats.Capacity != 50 {
			t.Errorf("expected size 2 of 50, got %+v", stats)
		}
		if stats.Hits != 1 || stats.Misses != 1 {
			t.Errorf("expected 1 hit and 1 miss, got %+v", stats)
		}
	})

	t.Run("Ping", func(t *testing.T) {
		if err := cache.Ping(ctx); err != nil {
			t.Errorf("Ping failed: %v", err)
		}
	})

	t.Run("Close", func(t *testing.T) {
		testCache := NewLRUCache(10)
		_ = testCache.Set(ctx, "k", []byte("v"), time.Minute)

		if err := testCache.Close(); err != nil {
			t.Errorf("Close failed: %v", err)
		}

		val, _ := testCache.Get(ctx, "k")
		if val != nil {
			t.Error("expected cache to be cleared after close")
		}
	})
}

func TestNewCache(t *testing.T) {
	t.Run("MemoryType", func(t *testing.T) {
		cfg := domain.CacheConfig{
			Type:         "memory",
			LocalMaxSize: 100,
		}

		cache, err := New(cfg)
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		defer cache.Close()

		if _, ok := cache.(*LRUCache); !ok {
			t.Error("expected LRUCache for memory type")
		}
	})

	t.Run("UnsupportedType", func(t *testing.T) {
		_, err := New(domain.CacheConfig{Type: "memcached"})
		if err == nil {
			t.Error("expected error for unsupported type")
		}
	})
}
