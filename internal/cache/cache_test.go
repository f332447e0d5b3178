package cache

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func newTestCache(t *testing.T, ttl time.Duration) *Cache {
	t.Helper()
	c, err := New(filepath.Join(t.TempDir(), "cache"), ttl, true)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return c
}

func TestNew(t *testing.T) {
	c := newTestCache(t, time.Hour)
	if !c.Enabled() {
		t.Error("cache should be enabled")
	}

	c, err := New("", 0, false)
	if err != nil {
		t.Fatalf("New() error for disabled cache: %v", err)
	}
	if c.Enabled() {
		t.Error("cache should be disabled")
	}
}

func TestNewCreatesDirectory(t *testing.T) {
	cacheDir := filepath.Join(t.TempDir(), "nested", "cache", "dir")

	if _, err := New(cacheDir, time.Hour, true); err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if _, err := os.Stat(cacheDir); os.IsNotExist(err) {
		t.Error("New() should create cache directory")
	}
}

func TestSetAndGet(t *testing.T) {
	c := newTestCache(t, time.Hour)
	data := []byte(`{"diagnostics":[]}`)

	if err := c.Set("src/Module.bsl", "h1", data); err != nil {
		t.Fatalf("Set() error: %v", err)
	}

	got, ok := c.Get("src/Module.bsl", "h1")
	if !ok {
		t.Fatal("Get() should hit")
	}
	if string(got) != string(data) {
		t.Errorf("Get() = %s, want %s", got, data)
	}

	if _, ok := c.Get("src/Module.bsl", "h2"); ok {
		t.Error("Get() with a different hash should miss")
	}
	if _, ok := c.Get("src/Other.bsl", "h1"); ok {
		t.Error("Get() for an unknown key should miss")
	}
}

func TestSetRejectsInvalidJSON(t *testing.T) {
	c := newTestCache(t, time.Hour)
	if err := c.Set("k", "h", []byte("not json")); err == nil {
		t.Error("Set() should reject data that is not JSON")
	}
}

func TestInvalidate(t *testing.T) {
	c := newTestCache(t, time.Hour)
	if err := c.Set("k", "h", []byte(`1`)); err != nil {
		t.Fatal(err)
	}
	if err := c.Invalidate("k"); err != nil {
		t.Fatalf("Invalidate() error: %v", err)
	}
	if _, ok := c.Get("k", "h"); ok {
		t.Error("entry should be gone after Invalidate()")
	}
	if err := c.Invalidate("k"); err != nil {
		t.Errorf("Invalidate() of a missing key should succeed, got %v", err)
	}
}

func TestClear(t *testing.T) {
	c := newTestCache(t, time.Hour)
	for _, k := range []string{"a", "b", "c"} {
		if err := c.Set(k, "h", []byte(`{}`)); err != nil {
			t.Fatal(err)
		}
	}
	if err := c.Clear(); err != nil {
		t.Fatalf("Clear() error: %v", err)
	}
	if _, ok := c.Get("a", "h"); ok {
		t.Error("entry should be gone after Clear()")
	}
}

func TestDisabledCache(t *testing.T) {
	c, _ := New("", 0, false)
	if err := c.Set("k", "h", []byte(`{}`)); err != nil {
		t.Errorf("Set() on disabled cache should be a no-op, got %v", err)
	}
	if _, ok := c.Get("k", "h"); ok {
		t.Error("disabled cache should never hit")
	}
	stats, err := c.Stats()
	if err != nil || stats.Entries != 0 {
		t.Errorf("Stats() = %+v, %v", stats, err)
	}
}

func TestTTLExpiration(t *testing.T) {
	c := newTestCache(t, time.Millisecond)
	if err := c.Set("k", "h", []byte(`{}`)); err != nil {
		t.Fatal(err)
	}
	time.Sleep(10 * time.Millisecond)
	if _, ok := c.Get("k", "h"); ok {
		t.Error("expired entry should miss")
	}
	if _, err := os.Stat(c.keyPath("k")); !os.IsNotExist(err) {
		t.Error("expired entry should be removed")
	}
}

func TestNoExpiry(t *testing.T) {
	c := newTestCache(t, 0)
	if err := c.Set("k", "h", []byte(`{}`)); err != nil {
		t.Fatal(err)
	}
	time.Sleep(5 * time.Millisecond)
	if _, ok := c.Get("k", "h"); !ok {
		t.Error("zero ttl should never expire")
	}
}

func TestHashBytes(t *testing.T) {
	a := HashBytes([]byte("ab"), []byte("c"))
	b := HashBytes([]byte("a"), []byte("bc"))
	if a == b {
		t.Error("part boundaries should change the hash")
	}
	if a != HashBytes([]byte("ab"), []byte("c")) {
		t.Error("hash should be deterministic")
	}
	if len(a) != 64 {
		t.Errorf("hash length = %d, want 64", len(a))
	}
}

func TestStats(t *testing.T) {
	c := newTestCache(t, time.Hour)
	for _, k := range []string{"a", "b"} {
		if err := c.Set(k, "h", []byte(`{"x":1}`)); err != nil {
			t.Fatal(err)
		}
	}
	// Leftover temp files are not entries.
	if err := os.WriteFile(filepath.Join(c.dir, ".entry-123"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	stats, err := c.Stats()
	if err != nil {
		t.Fatalf("Stats() error: %v", err)
	}
	if stats.Entries != 2 {
		t.Errorf("Entries = %d, want 2", stats.Entries)
	}
	if stats.Bytes == 0 {
		t.Error("Bytes should be positive")
	}
	if stats.Expired != 0 {
		t.Errorf("Expired = %d, want 0", stats.Expired)
	}
	if stats.Oldest.IsZero() || stats.Newest.Before(stats.Oldest) {
		t.Errorf("Oldest = %v, Newest = %v", stats.Oldest, stats.Newest)
	}
}

func TestStatsAfterClear(t *testing.T) {
	c := newTestCache(t, time.Hour)
	if err := c.Set("a", "h", []byte(`{}`)); err != nil {
		t.Fatal(err)
	}
	if err := c.Clear(); err != nil {
		t.Fatal(err)
	}
	stats, err := c.Stats()
	if err != nil || stats.Entries != 0 {
		t.Errorf("Stats() after Clear = %+v, %v", stats, err)
	}
}

func TestConcurrentSet(t *testing.T) {
	c := newTestCache(t, time.Hour)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = c.Set("shared", "h", []byte(`{"n":1}`))
		}()
	}
	wg.Wait()
	if _, ok := c.Get("shared", "h"); !ok {
		t.Error("entry should survive concurrent writes")
	}
}

func TestSpecialCharactersInKey(t *testing.T) {
	c := newTestCache(t, time.Hour)
	key := "Документы/Заказ/Ext/ObjectModule.bsl"
	if err := c.Set(key, "h", []byte(`{}`)); err != nil {
		t.Fatalf("Set() error: %v", err)
	}
	if _, ok := c.Get(key, "h"); !ok {
		t.Error("key with path separators and Cyrillic should round-trip")
	}
}
