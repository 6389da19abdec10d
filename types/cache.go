package types

import (
	"time"
)

type CacheManager interface {
	LifecycleManager
	Get(key string) (interface{}, bool)
	Set(key string, value interface{}, ttl time.Duration) error
	Has(key string) bool
	Delete(key string) bool
	InvalidatePattern(pattern string) (int, error)
	Stats() CacheStats
	GenerateQueryKey(sql string, params map[string]interface{}) string
	GenerateEntityKey(entityName string, parts ...string) string
}

type CacheManagerCreator func(config interface{}) (CacheManager, error)

type CacheEntry struct {
	Key       string      `json:"key"`
	Value     interface{} `json:"value"`
	CreatedAt time.Time   `json:"created_at"`
	ExpiresAt time.Time   `json:"expires_at"`

	// Access bookkeeping lives in atomics so a hit only needs the
	// store's read lock.
	LastAccessed int64  `json:"last_accessed"`
	AccessCount  uint64 `json:"access_count"`
}

type CacheStats struct {
	Size               int     `json:"size"`
	MaxSize            int     `json:"max_size"`
	HitRate            float64 `json:"hit_rate"`
	AverageAccessCount float64 `json:"average_access_count"`
}
