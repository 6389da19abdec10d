package cache

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/saiset-co/sai-data/logger"
	"github.com/saiset-co/sai-data/types"
)

func newTestStore(t *testing.T, storeConfig *StoreConfig) *Store {
	t.Helper()

	cfg := &types.CacheConfig{
		Enabled: true,
		Type:    "memory",
		Config:  storeConfig,
	}

	manager, err := NewStore(context.Background(), logger.NewZapWrapper(zap.NewNop()), cfg)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	store := manager.(*Store)
	if err := store.Start(); err != nil {
		t.Fatalf("start store: %v", err)
	}

	t.Cleanup(func() {
		if store.IsRunning() {
			_ = store.Stop()
		}
	})

	return store
}

func TestConfigValidation(t *testing.T) {
	log := logger.NewZapWrapper(zap.NewNop())

	cases := []struct {
		name   string
		config *StoreConfig
	}{
		{"zero max size", &StoreConfig{MaxSize: 0, CleanupInterval: "1m"}},
		{"negative max size", &StoreConfig{MaxSize: -5, CleanupInterval: "1m"}},
		{"zero cleanup interval", &StoreConfig{MaxSize: 10, CleanupInterval: "0s"}},
		{"negative cleanup interval", &StoreConfig{MaxSize: 10, CleanupInterval: "-1m"}},
		{"garbage cleanup interval", &StoreConfig{MaxSize: 10, CleanupInterval: "soon"}},
		{"garbage default ttl", &StoreConfig{MaxSize: 10, CleanupInterval: "1m", DefaultTTL: "later"}},
	}

	for _, tc := range cases {
		cfg := &types.CacheConfig{Enabled: true, Type: "memory", Config: tc.config}
		if _, err := NewStore(context.Background(), log, cfg); err == nil {
			t.Errorf("%s: expected configuration error", tc.name)
		}
	}

	// A missing default TTL is fine, it falls back to the documented constant.
	cfg := &types.CacheConfig{Enabled: true, Type: "memory", Config: &StoreConfig{MaxSize: 10, CleanupInterval: "1m"}}
	manager, err := NewStore(context.Background(), log, cfg)
	if err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
	if ttl := manager.(*Store).defaultTTL; ttl != DefaultTTL {
		t.Errorf("expected default ttl %s, got %s", DefaultTTL, ttl)
	}
}

func TestReadAfterWrite(t *testing.T) {
	store := newTestStore(t, &StoreConfig{MaxSize: 10, CleanupInterval: "1m"})

	if err := store.Set("k", "v", 0); err != nil {
		t.Fatalf("set: %v", err)
	}

	value, ok := store.Get("k")
	if !ok {
		t.Fatal("expected k to exist")
	}
	if value != "v" {
		t.Fatalf("expected v, got %v", value)
	}
}

func TestExpiry(t *testing.T) {
	store := newTestStore(t, &StoreConfig{MaxSize: 10, CleanupInterval: "1m"})

	if err := store.Set("a", 1, 30*time.Millisecond); err != nil {
		t.Fatalf("set: %v", err)
	}

	if _, ok := store.Get("a"); !ok {
		t.Fatal("expected a to exist before expiry")
	}

	time.Sleep(80 * time.Millisecond)

	if _, ok := store.Get("a"); ok {
		t.Fatal("expected a to be expired on get")
	}
	if store.Has("a") {
		t.Fatal("expected has to report a as absent after expiry")
	}
}

func TestCapacityEviction(t *testing.T) {
	store := newTestStore(t, &StoreConfig{MaxSize: 2, CleanupInterval: "1m"})

	if err := store.Set("a", 1, 0); err != nil {
		t.Fatalf("set a: %v", err)
	}
	time.Sleep(time.Millisecond)
	if err := store.Set("b", 2, 0); err != nil {
		t.Fatalf("set b: %v", err)
	}
	time.Sleep(time.Millisecond)

	// Touch a so b becomes the least recently used entry.
	if _, ok := store.Get("a"); !ok {
		t.Fatal("expected a to exist")
	}
	time.Sleep(time.Millisecond)

	if err := store.Set("c", 3, 0); err != nil {
		t.Fatalf("set c: %v", err)
	}

	if store.Has("b") {
		t.Fatal("expected b to be evicted")
	}
	if !store.Has("a") {
		t.Fatal("expected a to remain")
	}
	if !store.Has("c") {
		t.Fatal("expected c to exist")
	}
}

func TestOverwriteDoesNotEvict(t *testing.T) {
	store := newTestStore(t, &StoreConfig{MaxSize: 2, CleanupInterval: "1m"})

	if err := store.Set("a", 1, 0); err != nil {
		t.Fatalf("set a: %v", err)
	}
	if err := store.Set("b", 2, 0); err != nil {
		t.Fatalf("set b: %v", err)
	}

	if err := store.Set("a", "updated", 0); err != nil {
		t.Fatalf("overwrite a: %v", err)
	}

	if !store.Has("b") {
		t.Fatal("expected b to survive an overwrite of a")
	}

	value, ok := store.Get("a")
	if !ok || value != "updated" {
		t.Fatalf("expected updated value for a, got %v (ok=%v)", value, ok)
	}
}

func TestPatternInvalidation(t *testing.T) {
	store := newTestStore(t, &StoreConfig{MaxSize: 10, CleanupInterval: "1m"})

	for key, value := range map[string]interface{}{
		"user:1":    "alice",
		"user:2":    "bob",
		"product:1": "widget",
	} {
		if err := store.Set(key, value, 0); err != nil {
			t.Fatalf("set %s: %v", key, err)
		}
	}

	removed, err := store.InvalidatePattern("user:.*")
	if err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if removed != 2 {
		t.Fatalf("expected 2 removed, got %d", removed)
	}

	if store.Has("user:1") || store.Has("user:2") {
		t.Fatal("expected user entries to be gone")
	}
	if _, ok := store.Get("product:1"); !ok {
		t.Fatal("expected product:1 to survive")
	}
}

func TestInvalidPattern(t *testing.T) {
	store := newTestStore(t, &StoreConfig{MaxSize: 10, CleanupInterval: "1m"})

	if _, err := store.InvalidatePattern("["); err == nil {
		t.Fatal("expected error for malformed pattern")
	}
}

func TestHitRateAccounting(t *testing.T) {
	store := newTestStore(t, &StoreConfig{MaxSize: 10, CleanupInterval: "1m"})

	if err := store.Set("k", "v", 0); err != nil {
		t.Fatalf("set: %v", err)
	}

	if _, ok := store.Get("k"); !ok {
		t.Fatal("expected hit")
	}
	if _, ok := store.Get("missing"); ok {
		t.Fatal("expected miss")
	}

	stats := store.Stats()
	if stats.HitRate != 50 {
		t.Fatalf("expected hit rate 50, got %v", stats.HitRate)
	}
	if stats.Size != 1 {
		t.Fatalf("expected size 1, got %d", stats.Size)
	}
	if stats.MaxSize != 10 {
		t.Fatalf("expected max size 10, got %d", stats.MaxSize)
	}
	if stats.AverageAccessCount != 1 {
		t.Fatalf("expected average access count 1, got %v", stats.AverageAccessCount)
	}
}

func TestHasDoesNotTouchCounters(t *testing.T) {
	store := newTestStore(t, &StoreConfig{MaxSize: 10, CleanupInterval: "1m"})

	if err := store.Set("k", "v", 0); err != nil {
		t.Fatalf("set: %v", err)
	}

	store.Has("k")
	store.Has("missing")

	stats := store.Stats()
	if stats.HitRate != 0 {
		t.Fatalf("expected hit rate 0 after has-only traffic, got %v", stats.HitRate)
	}
	if stats.AverageAccessCount != 0 {
		t.Fatalf("expected access count untouched by has, got %v", stats.AverageAccessCount)
	}
}

func TestDelete(t *testing.T) {
	store := newTestStore(t, &StoreConfig{MaxSize: 10, CleanupInterval: "1m"})

	if err := store.Set("k", "v", 0); err != nil {
		t.Fatalf("set: %v", err)
	}

	if !store.Delete("k") {
		t.Fatal("expected delete to report removal")
	}
	if store.Delete("k") {
		t.Fatal("expected second delete to be a no-op")
	}
	if store.Delete("never-existed") {
		t.Fatal("expected delete of unknown key to be a no-op")
	}

	stats := store.Stats()
	if stats.HitRate != 0 {
		t.Fatalf("expected delete to leave counters alone, got hit rate %v", stats.HitRate)
	}
}

func TestBackgroundSweepRemovesUnreadEntries(t *testing.T) {
	store := newTestStore(t, &StoreConfig{MaxSize: 10, CleanupInterval: "10ms"})

	if err := store.Set("never-read-again", "v", 20*time.Millisecond); err != nil {
		t.Fatalf("set: %v", err)
	}

	// The sweep must drop the entry without any further reads. Poll with a
	// deadline to avoid timing flakes.
	deadline := time.Now().Add(500 * time.Millisecond)
	for time.Now().Before(deadline) {
		if store.Stats().Size == 0 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}

	t.Fatal("expected background sweep to remove the expired entry")
}

func TestStopClearsAndHalts(t *testing.T) {
	store := newTestStore(t, &StoreConfig{MaxSize: 10, CleanupInterval: "10ms"})

	if err := store.Set("k", "v", 0); err != nil {
		t.Fatalf("set: %v", err)
	}
	store.Get("k")

	if err := store.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}

	stats := store.Stats()
	if stats.Size != 0 {
		t.Fatalf("expected empty store after stop, got size %d", stats.Size)
	}
	if stats.HitRate != 0 {
		t.Fatalf("expected counters reset after stop, got hit rate %v", stats.HitRate)
	}

	// The sweep goroutine must be gone.
	select {
	case <-store.cleanupDone:
	case <-time.After(time.Second):
		t.Fatal("cleanup routine still running after stop")
	}

	// A stopped store is inert.
	if err := store.Set("k2", "v", 0); err != types.ErrCacheStopped {
		t.Fatalf("expected ErrCacheStopped, got %v", err)
	}
	if _, ok := store.Get("k"); ok {
		t.Fatal("expected get on stopped store to report absent")
	}
	if store.Has("k") {
		t.Fatal("expected has on stopped store to report absent")
	}
	if store.Stats().HitRate != 0 {
		t.Fatal("expected reads on a stopped store to leave counters alone")
	}
}

func TestGenerateQueryKeyOrderIndependent(t *testing.T) {
	store := newTestStore(t, &StoreConfig{MaxSize: 10, CleanupInterval: "1m"})

	sql := "SELECT * FROM users WHERE age > :age AND city = :city"

	first := map[string]interface{}{}
	first["age"] = 30
	first["city"] = "Riga"

	second := map[string]interface{}{}
	second["city"] = "Riga"
	second["age"] = 30

	keyA := store.GenerateQueryKey(sql, first)
	keyB := store.GenerateQueryKey(sql, second)

	if keyA != keyB {
		t.Fatalf("expected identical keys, got %q and %q", keyA, keyB)
	}
	if keyA[:len(QueryKeyPrefix)] != QueryKeyPrefix {
		t.Fatalf("expected %q prefix, got %q", QueryKeyPrefix, keyA)
	}

	keyC := store.GenerateQueryKey(sql, map[string]interface{}{"age": 31, "city": "Riga"})
	if keyC == keyA {
		t.Fatal("expected different params to produce a different key")
	}
}

func TestGenerateEntityKey(t *testing.T) {
	store := newTestStore(t, &StoreConfig{MaxSize: 10, CleanupInterval: "1m"})

	if key := store.GenerateEntityKey("users"); key != "entity:users" {
		t.Fatalf("expected entity:users, got %q", key)
	}
	if key := store.GenerateEntityKey("users", "1"); key != "entity:users:1" {
		t.Fatalf("expected entity:users:1, got %q", key)
	}
	if key := store.GenerateEntityKey("users", "1", "find"); key != "entity:users:1:find" {
		t.Fatalf("expected entity:users:1:find, got %q", key)
	}
}

func TestEntityKeyPrefixInvalidation(t *testing.T) {
	store := newTestStore(t, &StoreConfig{MaxSize: 10, CleanupInterval: "1m"})

	keys := []string{
		store.GenerateEntityKey("users"),
		store.GenerateEntityKey("users", "1"),
		store.GenerateEntityKey("users", "1", "find"),
		store.GenerateEntityKey("userscores", "9"),
	}

	for _, key := range keys {
		if err := store.Set(key, "v", 0); err != nil {
			t.Fatalf("set %s: %v", key, err)
		}
	}

	// Anchored so "userscores" does not match the "users" prefix.
	removed, err := store.InvalidatePattern("^entity:users(:.*)?$")
	if err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if removed != 3 {
		t.Fatalf("expected 3 removed, got %d", removed)
	}
	if !store.Has("entity:userscores:9") {
		t.Fatal("expected userscores entry to survive")
	}
}

func TestStartAfterStopIsRejected(t *testing.T) {
	store := newTestStore(t, &StoreConfig{MaxSize: 10, CleanupInterval: "10ms"})

	if err := store.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}

	if err := store.Start(); !types.IsError(err, types.ErrCacheStopped) {
		t.Fatalf("restart of destroyed store: got %v", err)
	}

	// The sweep goroutine must not be relaunched; the store stays inert.
	select {
	case <-store.cleanupDone:
	default:
		t.Fatal("cleanup routine should have terminated")
	}

	if err := store.Set("k", "v", 0); !types.IsError(err, types.ErrCacheStopped) {
		t.Errorf("set on destroyed store: got %v", err)
	}
	if _, exists := store.Get("k"); exists {
		t.Error("destroyed store should report absent")
	}
}

func TestSetClampsLongTTL(t *testing.T) {
	store := newTestStore(t, &StoreConfig{MaxSize: 10, CleanupInterval: "1m"})

	before := time.Now()
	if err := store.Set("k", "v", 48*time.Hour); err != nil {
		t.Fatalf("set: %v", err)
	}

	store.mu.RLock()
	expiresAt := store.data["k"].ExpiresAt
	store.mu.RUnlock()

	if expiresAt.After(before.Add(MaxTTL + time.Minute)) {
		t.Errorf("expiry should be clamped to %v from now, got %v", MaxTTL, expiresAt)
	}
	if expiresAt.Before(before.Add(MaxTTL - time.Minute)) {
		t.Errorf("clamped expiry should sit near %v from now, got %v", MaxTTL, expiresAt)
	}
}
