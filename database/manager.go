package database

import (
	"context"
	"time"

	"github.com/saiset-co/sai-data/types"
)

type State int32

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
)

var customDatabaseCreators = make(map[string]types.DatabaseManagerCreator)

func RegisterDatabaseManager(databaseManagerName string, creator types.DatabaseManagerCreator) {
	customDatabaseCreators[databaseManagerName] = creator
}

func NewDatabaseManager(ctx context.Context, config types.ConfigManager, logger types.Logger, metrics types.MetricsManager) (types.DatabaseManager, error) {
	databaseConfig := config.GetConfig().Database

	if databaseConfig == nil || !databaseConfig.Enabled {
		return nil, types.ErrDatabaseIsDisabled
	}

	databaseManagerName := databaseConfig.Type

	var impl types.DatabaseManager
	var err error

	switch databaseManagerName {
	case "memory":
		impl, err = NewMemoryDB(ctx, logger, databaseConfig)
	case "clover":
		impl, err = NewCloverDB(ctx, logger, databaseConfig)
	case "sqlite":
		impl, err = NewSQLiteDB(ctx, logger, databaseConfig)
	default:
		if creator, exists := customDatabaseCreators[databaseManagerName]; exists {
			impl, err = creator(databaseConfig)
		} else {
			return nil, types.Errorf(types.ErrDatabaseTypeUnknown, "type: %s", databaseManagerName)
		}
	}

	if err != nil {
		return nil, err
	}

	return newInstrumentedDatabaseManager(logger, metrics, impl), nil
}

type instrumentedDatabaseManager struct {
	impl    types.DatabaseManager
	logger  types.Logger
	metrics types.MetricsManager
}

func newInstrumentedDatabaseManager(logger types.Logger, metrics types.MetricsManager, impl types.DatabaseManager) types.DatabaseManager {
	return &instrumentedDatabaseManager{
		impl:    impl,
		logger:  logger,
		metrics: metrics,
	}
}

func (idm *instrumentedDatabaseManager) CreateDocuments(ctx context.Context, request types.CreateDocumentsRequest) ([]string, error) {
	start := time.Now()
	ids, err := idm.impl.CreateDocuments(ctx, request)
	idm.recordMetric("create", request.Collection, err, time.Since(start))
	return ids, err
}

func (idm *instrumentedDatabaseManager) ReadDocuments(ctx context.Context, request types.ReadDocumentsRequest) ([]map[string]interface{}, int64, error) {
	start := time.Now()
	documents, total, err := idm.impl.ReadDocuments(ctx, request)
	idm.recordMetric("read", request.Collection, err, time.Since(start))
	return documents, total, err
}

func (idm *instrumentedDatabaseManager) UpdateDocuments(ctx context.Context, request types.UpdateDocumentsRequest) (int64, error) {
	start := time.Now()
	updated, err := idm.impl.UpdateDocuments(ctx, request)
	idm.recordMetric("update", request.Collection, err, time.Since(start))
	return updated, err
}

func (idm *instrumentedDatabaseManager) DeleteDocuments(ctx context.Context, request types.DeleteDocumentsRequest) (int64, error) {
	start := time.Now()
	deleted, err := idm.impl.DeleteDocuments(ctx, request)
	idm.recordMetric("delete", request.Collection, err, time.Since(start))
	return deleted, err
}

func (idm *instrumentedDatabaseManager) CreateCollection(collectionName string) error {
	return idm.impl.CreateCollection(collectionName)
}

func (idm *instrumentedDatabaseManager) DropCollection(collectionName string) error {
	return idm.impl.DropCollection(collectionName)
}

func (idm *instrumentedDatabaseManager) Start() error {
	return idm.impl.Start()
}

func (idm *instrumentedDatabaseManager) Stop() error {
	return idm.impl.Stop()
}

func (idm *instrumentedDatabaseManager) IsRunning() bool {
	return idm.impl.IsRunning()
}

func (idm *instrumentedDatabaseManager) recordMetric(operation, collection string, err error, duration time.Duration) {
	result := "success"
	if err != nil {
		result = "error"
	}

	opCounter := idm.metrics.Counter("database_operations_total", map[string]string{
		"operation":  operation,
		"collection": collection,
		"result":     result,
	})
	opCounter.Inc()

	opDuration := idm.metrics.Histogram("database_operation_duration_seconds",
		[]float64{0.001, 0.01, 0.1, 1.0, 10.0},
		map[string]string{"operation": operation},
	)
	opDuration.Observe(duration.Seconds())
}
