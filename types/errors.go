package types

import (
	"errors"
	"fmt"
)

var (
	ErrConfigNotFound       = errors.New("config not found")
	ErrConfigParseFailed    = errors.New("config parse failed")
	ErrConfigIsNil          = errors.New("config is nil")
	ErrConfigValidateFailed = errors.New("config validate failed")
)

var (
	ErrCacheConfigInvalid   = errors.New("cache config invalid")
	ErrCacheKeyEmpty        = errors.New("cache key empty")
	ErrCacheStopped         = errors.New("cache store stopped")
	ErrCachePatternInvalid  = errors.New("cache pattern invalid")
	ErrCacheTypeUnknown     = errors.New("cache type unknown")
	ErrCacheIsDisabled      = errors.New("cache manager is disabled")
	ErrCacheOperationFailed = errors.New("cache operation failed")
)

var (
	ErrDatabaseIsDisabled       = errors.New("database manager is disabled")
	ErrDatabaseTypeUnknown      = errors.New("database type unknown")
	ErrDatabaseCollectionExists = errors.New("database collection exists")
	ErrDatabaseInvalidData      = errors.New("database invalid data")
	ErrDatabaseQueryFailed      = errors.New("database query failed")
)

var (
	ErrValidationFailed      = errors.New("validation failed")
	ErrEntityNotConfigured   = errors.New("entity not configured")
	ErrEntityFieldNotAllowed = errors.New("entity field not allowed")
)

var (
	ErrCronJobNotFound       = errors.New("cron job not found")
	ErrCronJobExists         = errors.New("cron job exists")
	ErrCronExpressionInvalid = errors.New("cron expression invalid")
	ErrCronJobNameIsEmpty    = errors.New("cron job name is empty")
	ErrCronJobIsNil          = errors.New("cron job is nil")
)

var (
	ErrMetricsTypeUnknown = errors.New("metrics type unknown")
	ErrMetricsIsDisabled  = errors.New("metrics manager is disabled")
)

var (
	ErrLogFileIsEmpty     = errors.New("log file is empty")
	ErrLogFileWrongFormat = errors.New("log file wrong format")
	ErrLoggerTypeUnknown  = errors.New("logger type unknown")
)

var (
	ErrComponentNotRunning     = errors.New("component not running")
	ErrComponentAlreadyRunning = errors.New("component already running")
	ErrComponentStartFailed    = errors.New("component start failed")
	ErrComponentStopFailed     = errors.New("component stop failed")
)

var (
	ErrInvalidParameter = errors.New("invalid parameter")
	ErrNotImplemented   = errors.New("not implemented")
	ErrResourceNotFound = errors.New("resource not found")
	ErrInvalidState     = errors.New("invalid state")
)

func Errorf(baseErr error, format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", baseErr, fmt.Sprintf(format, args...))
}

func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

func NewErrorf(format string, args ...interface{}) error {
	return fmt.Errorf(format, args...)
}

func IsError(err, target error) bool {
	return errors.Is(err, target)
}
