package cache

import (
	"context"
	"math"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/saiset-co/sai-data/types"
	"github.com/saiset-co/sai-data/utils"
)

type StoreState int32

const (
	StoreStateStopped StoreState = iota
	StoreStateStarting
	StoreStateRunning
	StoreStateStopping
	StoreStateDestroyed
)

const (
	MaxTTL     = 24 * time.Hour
	DefaultTTL = 5 * time.Minute

	QueryKeyPrefix  = "query:"
	EntityKeyPrefix = "entity:"
)

type StoreConfig struct {
	MaxSize         int    `json:"max_size"`
	DefaultTTL      string `json:"default_ttl"`
	CleanupInterval string `json:"cleanup_interval"`
}

// Store is an in-process result cache: TTL-bounded, capacity-bounded with
// least-recently-used eviction, a periodic expiry sweep, and regex bulk
// invalidation. Values are opaque to the store.
type Store struct {
	ctx             context.Context
	cancel          context.CancelFunc
	logger          types.Logger
	maxSize         int
	defaultTTL      time.Duration
	cleanupInterval time.Duration
	data            map[string]*types.CacheEntry
	hits            uint64
	misses          uint64
	evictions       uint64
	mu              sync.RWMutex
	state           atomic.Value
	stopCleanup     chan struct{}
	cleanupDone     chan struct{}
	shutdownTimeout time.Duration
}

func NewStore(ctx context.Context, logger types.Logger, config *types.CacheConfig) (types.CacheManager, error) {
	var storeConfig = &StoreConfig{
		MaxSize:         10000,
		DefaultTTL:      "",
		CleanupInterval: "1m",
	}

	if config != nil && config.Config != nil {
		err := utils.UnmarshalConfig(config.Config, storeConfig)
		if err != nil {
			return nil, types.WrapError(err, "failed to unmarshal cache store config")
		}
	}

	if storeConfig.MaxSize <= 0 {
		return nil, types.Errorf(types.ErrCacheConfigInvalid, "max_size must be positive, got %d", storeConfig.MaxSize)
	}

	cleanupInterval, err := time.ParseDuration(storeConfig.CleanupInterval)
	if err != nil {
		return nil, types.Errorf(types.ErrCacheConfigInvalid, "cleanup_interval: %v", err)
	}
	if cleanupInterval <= 0 {
		return nil, types.Errorf(types.ErrCacheConfigInvalid, "cleanup_interval must be positive, got %s", cleanupInterval)
	}

	defaultTTL := DefaultTTL
	if storeConfig.DefaultTTL != "" {
		defaultTTL, err = time.ParseDuration(storeConfig.DefaultTTL)
		if err != nil {
			return nil, types.Errorf(types.ErrCacheConfigInvalid, "default_ttl: %v", err)
		}
		if defaultTTL <= 0 {
			defaultTTL = DefaultTTL
		}
	}

	storeCtx, cancel := context.WithCancel(ctx)

	store := &Store{
		ctx:             storeCtx,
		cancel:          cancel,
		logger:          logger,
		maxSize:         storeConfig.MaxSize,
		defaultTTL:      defaultTTL,
		cleanupInterval: cleanupInterval,
		data:            make(map[string]*types.CacheEntry),
		stopCleanup:     make(chan struct{}),
		cleanupDone:     make(chan struct{}),
		shutdownTimeout: 10 * time.Second,
	}

	store.state.Store(StoreStateStopped)

	return store, nil
}

func (s *Store) Get(key string) (interface{}, bool) {
	if s.getState() != StoreStateRunning {
		return nil, false
	}

	now := time.Now()

	s.mu.RLock()
	entry, exists := s.data[key]
	if !exists {
		s.mu.RUnlock()
		atomic.AddUint64(&s.misses, 1)
		return nil, false
	}

	if !now.Before(entry.ExpiresAt) {
		s.mu.RUnlock()
		s.removeExpired(key, now)
		atomic.AddUint64(&s.misses, 1)
		return nil, false
	}

	value := entry.Value
	atomic.StoreInt64(&entry.LastAccessed, now.UnixNano())
	atomic.AddUint64(&entry.AccessCount, 1)
	s.mu.RUnlock()

	atomic.AddUint64(&s.hits, 1)

	return value, true
}

// Set stores value under key. A non-positive ttl falls back to the store's
// default TTL; a ttl above MaxTTL is clamped to MaxTTL.
func (s *Store) Set(key string, value interface{}, ttl time.Duration) error {
	if s.getState() != StoreStateRunning {
		return types.ErrCacheStopped
	}

	if key == "" {
		s.logger.Error("Attempted to set cache entry with empty key")
		return types.ErrCacheKeyEmpty
	}

	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	if ttl > MaxTTL {
		ttl = MaxTTL
	}

	now := time.Now()
	entry := &types.CacheEntry{
		Key:          key,
		Value:        value,
		CreatedAt:    now,
		ExpiresAt:    now.Add(ttl),
		LastAccessed: now.UnixNano(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Overwrites replace in place and never trigger eviction.
	if _, exists := s.data[key]; !exists && len(s.data) >= s.maxSize {
		s.evictOneUnsafe()
	}

	s.data[key] = entry
	return nil
}

func (s *Store) Has(key string) bool {
	if s.getState() != StoreStateRunning {
		return false
	}

	now := time.Now()

	s.mu.RLock()
	entry, exists := s.data[key]
	if !exists {
		s.mu.RUnlock()
		return false
	}

	if !now.Before(entry.ExpiresAt) {
		s.mu.RUnlock()
		s.removeExpired(key, now)
		return false
	}

	s.mu.RUnlock()
	return true
}

func (s *Store) Delete(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[key]; !exists {
		return false
	}

	delete(s.data, key)
	return true
}

// InvalidatePattern removes every entry whose key matches the given regular
// expression and reports how many were removed.
func (s *Store) InvalidatePattern(pattern string) (int, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return 0, types.Errorf(types.ErrCachePatternInvalid, "pattern %q: %v", pattern, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key := range s.data {
		if re.MatchString(key) {
			delete(s.data, key)
			removed++
		}
	}

	if removed > 0 {
		s.logger.Debug("Cache entries invalidated",
			zap.String("pattern", pattern),
			zap.Int("removed", removed))
	}

	return removed, nil
}

func (s *Store) Stats() types.CacheStats {
	hits := atomic.LoadUint64(&s.hits)
	misses := atomic.LoadUint64(&s.misses)

	s.mu.RLock()
	size := len(s.data)
	var totalAccess uint64
	for _, entry := range s.data {
		totalAccess += atomic.LoadUint64(&entry.AccessCount)
	}
	s.mu.RUnlock()

	stats := types.CacheStats{
		Size:    size,
		MaxSize: s.maxSize,
	}

	if total := hits + misses; total > 0 {
		stats.HitRate = roundTo(float64(hits)/float64(total)*100, 2)
	}

	if size > 0 {
		stats.AverageAccessCount = roundTo(float64(totalAccess)/float64(size), 2)
	}

	return stats
}

// GenerateQueryKey builds a deterministic key for a SQL text and its
// parameters. Parameters are serialized with sorted keys, so two maps with
// the same contents produce the same key regardless of insertion order.
func (s *Store) GenerateQueryKey(sql string, params map[string]interface{}) string {
	canonical, err := utils.MarshalCanonical(params)
	if err != nil {
		s.logger.Warn("Failed to serialize query params for cache key", zap.Error(err))
		canonical = []byte("null")
	}

	var b strings.Builder
	b.Grow(len(QueryKeyPrefix) + len(sql) + 1 + len(canonical))
	b.WriteString(QueryKeyPrefix)
	b.WriteString(sql)
	b.WriteByte(':')
	b.Write(canonical)

	return b.String()
}

// GenerateEntityKey builds "entity:<name>", "entity:<name>:<id>" or
// "entity:<name>:<id>:<operation>" depending on the parts supplied. The
// bare entity form doubles as the prefix for hierarchical invalidation.
func (s *Store) GenerateEntityKey(entityName string, parts ...string) string {
	var b strings.Builder
	b.WriteString(EntityKeyPrefix)
	b.WriteString(entityName)

	for _, part := range parts {
		b.WriteByte(':')
		b.WriteString(part)
	}

	return b.String()
}

func (s *Store) Start() error {
	if s.getState() == StoreStateDestroyed {
		return types.ErrCacheStopped
	}

	if !s.transitionState(StoreStateStopped, StoreStateStarting) {
		s.logger.Warn("Cache store is already running")
		return types.ErrComponentAlreadyRunning
	}

	defer func() {
		if s.getState() == StoreStateStarting {
			s.setState(StoreStateRunning)
		}
	}()

	go s.startCleanupRoutine()

	s.logger.Info("Cache store started",
		zap.Int("max_size", s.maxSize),
		zap.Duration("default_ttl", s.defaultTTL),
		zap.Duration("cleanup_interval", s.cleanupInterval))
	return nil
}

// Stop destroys the store: the sweep is cancelled, all entries dropped
// and the hit/miss counters reset. A destroyed store rejects writes,
// treats every read as absent, and cannot be restarted.
func (s *Store) Stop() error {
	if !s.transitionState(StoreStateRunning, StoreStateStopping) {
		s.logger.Warn("Cache store is not running")
		return types.ErrComponentNotRunning
	}

	defer func() {
		s.setState(StoreStateDestroyed)
	}()

	s.cancel()

	ctx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()

	g, _ := errgroup.WithContext(ctx)

	g.Go(func() error {
		select {
		case s.stopCleanup <- struct{}{}:
		case <-time.After(time.Second):
		}

		select {
		case <-s.cleanupDone:
			s.logger.Debug("Cleanup routine stopped")
		case <-time.After(5 * time.Second):
			s.logger.Warn("Cleanup routine stop timeout")
		}

		return nil
	})

	g.Go(func() error {
		s.mu.Lock()
		entriesCount := len(s.data)
		s.data = make(map[string]*types.CacheEntry)
		s.mu.Unlock()

		atomic.StoreUint64(&s.hits, 0)
		atomic.StoreUint64(&s.misses, 0)
		atomic.StoreUint64(&s.evictions, 0)

		s.logger.Info("Cache store cleared", zap.Int("cleared_entries", entriesCount))
		return nil
	})

	if err := g.Wait(); err != nil {
		s.logger.Error("Error during cache store shutdown", zap.Error(err))
	} else {
		s.logger.Info("Cache store stopped gracefully")
	}

	return nil
}

func (s *Store) IsRunning() bool {
	return s.getState() == StoreStateRunning
}

func (s *Store) getState() StoreState {
	return s.state.Load().(StoreState)
}

func (s *Store) setState(newState StoreState) bool {
	currentState := s.getState()
	return s.state.CompareAndSwap(currentState, newState)
}

func (s *Store) transitionState(from, to StoreState) bool {
	return s.state.CompareAndSwap(from, to)
}

// removeExpired re-checks liveness under the write lock before dropping the
// entry, since another writer may have replaced it between locks.
func (s *Store) removeExpired(key string, now time.Time) {
	s.mu.Lock()
	if entry, exists := s.data[key]; exists && !now.Before(entry.ExpiresAt) {
		delete(s.data, key)
	}
	s.mu.Unlock()
}

func (s *Store) cleanup() {
	now := time.Now()

	s.mu.Lock()

	var expired []string
	for key, entry := range s.data {
		if !now.Before(entry.ExpiresAt) {
			expired = append(expired, key)
		}
	}

	for _, key := range expired {
		delete(s.data, key)
	}

	s.mu.Unlock()

	if len(expired) > 0 {
		s.logger.Debug("Cleanup completed", zap.Int("expired_entries", len(expired)))
	}
}

func (s *Store) startCleanupRoutine() {
	defer close(s.cleanupDone)

	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			s.logger.Debug("Cleanup routine stopped by context")
			return
		case <-s.stopCleanup:
			s.logger.Debug("Cleanup routine stopped by signal")
			return
		case <-ticker.C:
			s.cleanup()
		}
	}
}

func (s *Store) evictOneUnsafe() {
	victimKey := s.findLRUVictim()
	if victimKey == "" {
		return
	}

	delete(s.data, victimKey)
	atomic.AddUint64(&s.evictions, 1)

	s.logger.Debug("Cache entry evicted", zap.String("key", victimKey))
}

// findLRUVictim scans for the entry with the oldest last access, breaking
// ties by oldest creation time.
func (s *Store) findLRUVictim() string {
	var victimKey string
	var victimAccess int64
	var victimCreated time.Time

	for key, entry := range s.data {
		lastAccess := atomic.LoadInt64(&entry.LastAccessed)

		if victimKey == "" ||
			lastAccess < victimAccess ||
			(lastAccess == victimAccess && entry.CreatedAt.Before(victimCreated)) {
			victimKey = key
			victimAccess = lastAccess
			victimCreated = entry.CreatedAt
		}
	}

	return victimKey
}

func roundTo(value float64, decimals int) float64 {
	factor := math.Pow(10, float64(decimals))
	return math.Round(value*factor) / factor
}
