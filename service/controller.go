package service

import (
	"context"
	"regexp"
	"time"

	"go.uber.org/zap"

	"github.com/saiset-co/sai-data/cache"
	"github.com/saiset-co/sai-data/types"
)

const defaultReadTTL = 5 * time.Minute

// CRUDController is the data-access front door: every document operation
// goes through validation, then storage, with reads served through the
// cache and mutations invalidating the affected keys.
type CRUDController struct {
	config     types.ConfigManager
	logger     types.Logger
	cache      types.CacheManager
	database   types.DatabaseManager
	validation types.ValidationManager
	readTTL    time.Duration
	cacheReads bool
}

type readResult struct {
	Documents []map[string]interface{}
	Total     int64
}

func NewCRUDController(
	config types.ConfigManager,
	logger types.Logger,
	cacheManager types.CacheManager,
	database types.DatabaseManager,
	validation types.ValidationManager,
) (*CRUDController, error) {
	if database == nil {
		return nil, types.ErrDatabaseIsDisabled
	}

	controller := &CRUDController{
		config:     config,
		logger:     logger,
		cache:      cacheManager,
		database:   database,
		validation: validation,
		readTTL:    defaultReadTTL,
	}

	if controllerConfig := config.GetConfig().Controller; controllerConfig != nil {
		controller.cacheReads = controllerConfig.CacheReads
		if controllerConfig.ReadTTL != "" {
			ttl, err := time.ParseDuration(controllerConfig.ReadTTL)
			if err != nil {
				return nil, types.Errorf(types.ErrInvalidParameter, "read_ttl: %v", err)
			}
			controller.readTTL = ttl
		}
	}

	return controller, nil
}

func (c *CRUDController) Create(ctx context.Context, request types.CreateDocumentsRequest) ([]string, error) {
	if c.validation != nil {
		for i, data := range request.Data {
			document, ok := data.(map[string]interface{})
			if !ok {
				return nil, types.Errorf(types.ErrDatabaseInvalidData, "data must be a map")
			}

			if err := c.validation.ValidateDocument(request.Collection, document); err != nil {
				return nil, err
			}

			sanitized, err := c.validation.SanitizeDocument(request.Collection, document)
			if err != nil {
				return nil, err
			}
			request.Data[i] = sanitized
		}
	}

	ids, err := c.database.CreateDocuments(ctx, request)
	if err != nil {
		return nil, err
	}

	c.invalidateCollection(request.Collection)
	return ids, nil
}

func (c *CRUDController) Read(ctx context.Context, request types.ReadDocumentsRequest) ([]map[string]interface{}, int64, error) {
	if !c.readCachingEnabled() {
		return c.database.ReadDocuments(ctx, request)
	}

	key := c.cache.GenerateQueryKey("read:"+request.Collection, map[string]interface{}{
		"filter": request.Filter,
		"sort":   request.Sort,
		"skip":   request.Skip,
		"limit":  request.Limit,
	})

	if cached, exists := c.cache.Get(key); exists {
		if result, ok := cached.(readResult); ok {
			return result.Documents, result.Total, nil
		}
	}

	documents, total, err := c.database.ReadDocuments(ctx, request)
	if err != nil {
		return nil, 0, err
	}

	if err := c.cache.Set(key, readResult{Documents: documents, Total: total}, c.readTTL); err != nil {
		c.logger.Warn("Failed to cache read result", zap.String("key", key), zap.Error(err))
	}

	return documents, total, nil
}

func (c *CRUDController) Update(ctx context.Context, request types.UpdateDocumentsRequest) (int64, error) {
	updated, err := c.database.UpdateDocuments(ctx, request)
	if err != nil {
		return 0, err
	}

	if updated > 0 {
		c.invalidateCollection(request.Collection)
	}
	return updated, nil
}

func (c *CRUDController) Delete(ctx context.Context, request types.DeleteDocumentsRequest) (int64, error) {
	deleted, err := c.database.DeleteDocuments(ctx, request)
	if err != nil {
		return 0, err
	}

	if deleted > 0 {
		c.invalidateCollection(request.Collection)
	}
	return deleted, nil
}

func (c *CRUDController) CacheStats() (types.CacheStats, bool) {
	if c.cache == nil {
		return types.CacheStats{}, false
	}
	return c.cache.Stats(), true
}

func (c *CRUDController) readCachingEnabled() bool {
	return c.cache != nil && c.cacheReads
}

// invalidateCollection removes the collection's entity keys (the bare key
// and every id/operation variant under it) plus all cached reads for it.
func (c *CRUDController) invalidateCollection(collection string) {
	if c.cache == nil {
		return
	}

	entityKey := c.cache.GenerateEntityKey(collection)
	patterns := []string{
		"^" + regexp.QuoteMeta(entityKey) + "(:.*)?$",
		"^" + regexp.QuoteMeta(cache.QueryKeyPrefix+"read:"+collection) + ":",
	}

	for _, pattern := range patterns {
		removed, err := c.cache.InvalidatePattern(pattern)
		if err != nil {
			c.logger.Warn("Cache invalidation failed",
				zap.String("pattern", pattern), zap.Error(err))
			continue
		}
		if removed > 0 {
			c.logger.Debug("Invalidated cache entries",
				zap.String("collection", collection), zap.Int("removed", removed))
		}
	}
}
