package sai

import (
	"sync/atomic"

	"github.com/saiset-co/sai-data/cache"
	"github.com/saiset-co/sai-data/database"
	"github.com/saiset-co/sai-data/logger"
	"github.com/saiset-co/sai-data/metrics"
	"github.com/saiset-co/sai-data/types"
)

type Container struct {
	Config     atomic.Pointer[types.ConfigManager]
	Logger     atomic.Pointer[types.LoggerManager]
	Cache      atomic.Pointer[types.CacheManager]
	Database   atomic.Pointer[types.DatabaseManager]
	Metrics    atomic.Pointer[types.MetricsManager]
	Cron       atomic.Pointer[types.CronManager]
	Validation atomic.Pointer[types.ValidationManager]
}

var globalContainer *Container

func InitContainer() *Container {
	return &Container{}
}

func SetContainer(container *Container) {
	globalContainer = container
}

func Config() types.ConfigManager {
	if ptr := globalContainer.Config.Load(); ptr != nil {
		return *ptr
	}
	panic("ConfigManager not initialized")
}

func Logger() types.LoggerManager {
	if ptr := globalContainer.Logger.Load(); ptr != nil {
		return *ptr
	}
	panic("Logger not initialized")
}

func Cache() types.CacheManager {
	if ptr := globalContainer.Cache.Load(); ptr != nil {
		return *ptr
	}
	panic("CacheManager not initialized")
}

func Database() types.DatabaseManager {
	if ptr := globalContainer.Database.Load(); ptr != nil {
		return *ptr
	}
	panic("DatabaseManager not initialized")
}

func Metrics() types.MetricsManager {
	if ptr := globalContainer.Metrics.Load(); ptr != nil {
		return *ptr
	}
	panic("MetricsManager not initialized")
}

func Cron() types.CronManager {
	if ptr := globalContainer.Cron.Load(); ptr != nil {
		return *ptr
	}
	panic("CronManager not initialized")
}

func Validation() types.ValidationManager {
	if ptr := globalContainer.Validation.Load(); ptr != nil {
		return *ptr
	}
	panic("ValidationManager not initialized")
}

func RegisterCacheManager(cacheManagerName string, creator types.CacheManagerCreator) {
	cache.RegisterCacheManager(cacheManagerName, creator)
}

func RegisterDatabaseManager(databaseManagerName string, creator types.DatabaseManagerCreator) {
	database.RegisterDatabaseManager(databaseManagerName, creator)
}

func RegisterMetricsManager(metricsManagerName string, creator types.MetricsManagerCreator) {
	metrics.RegisterMetricsManager(metricsManagerName, creator)
}

func RegisterLogger(loggerName string, creator types.LoggerCreator) {
	logger.RegisterLogger(loggerName, creator)
}

func (fc *Container) SetConfig(config types.ConfigManager) {
	fc.Config.Store(&config)
}

func (fc *Container) SetLogger(logger types.LoggerManager) {
	fc.Logger.Store(&logger)
}

func (fc *Container) SetCache(cache types.CacheManager) {
	fc.Cache.Store(&cache)
}

func (fc *Container) SetDatabase(database types.DatabaseManager) {
	fc.Database.Store(&database)
}

func (fc *Container) SetMetrics(metrics types.MetricsManager) {
	fc.Metrics.Store(&metrics)
}

func (fc *Container) SetCron(cron types.CronManager) {
	fc.Cron.Store(&cron)
}

func (fc *Container) SetValidation(validation types.ValidationManager) {
	fc.Validation.Store(&validation)
}
