package database

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/ostafen/clover"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-data/types"
)

type CloverDB struct {
	db     *clover.DB
	logger types.Logger
	config *types.DatabaseConfig
	state  atomic.Value
}

func NewCloverDB(ctx context.Context, logger types.Logger, config *types.DatabaseConfig) (types.DatabaseManager, error) {
	var db *clover.DB
	var err error

	if config.Path == "" {
		db, err = clover.Open("")
	} else {
		db, err = clover.Open(config.Path)
	}

	if err != nil {
		return nil, types.WrapError(err, "failed to open CloverDB")
	}

	cdb := &CloverDB{
		db:     db,
		logger: logger,
		config: config,
	}

	cdb.state.Store(StateStopped)
	return cdb, nil
}

func (c *CloverDB) Start() error {
	if !c.transitionState(StateStopped, StateStarting) {
		return types.ErrComponentAlreadyRunning
	}

	defer func() {
		if c.getState() == StateStarting {
			c.setState(StateRunning)
		}
	}()

	c.logger.Info("CloverDB started", zap.String("path", c.config.Path))
	return nil
}

func (c *CloverDB) Stop() error {
	if !c.transitionState(StateRunning, StateStopping) {
		return types.ErrComponentNotRunning
	}

	defer func() {
		c.setState(StateStopped)
	}()

	err := c.db.Close()
	if err != nil {
		return types.WrapError(err, "failed to close CloverDB")
	}

	c.logger.Info("CloverDB stopped gracefully")
	return nil
}

func (c *CloverDB) IsRunning() bool {
	return c.getState() == StateRunning
}

func (c *CloverDB) CreateCollection(collectionName string) error {
	exists, err := c.db.HasCollection(collectionName)
	if err != nil {
		return types.WrapError(err, "failed to check collection existence")
	}

	if exists {
		return types.ErrDatabaseCollectionExists
	}

	err = c.db.CreateCollection(collectionName)
	if err != nil {
		return types.WrapError(err, "failed to create collection")
	}

	return nil
}

func (c *CloverDB) DropCollection(collectionName string) error {
	err := c.db.DropCollection(collectionName)
	if err != nil {
		return types.WrapError(err, "failed to drop collection")
	}

	return nil
}

func (c *CloverDB) CreateDocuments(ctx context.Context, request types.CreateDocumentsRequest) ([]string, error) {
	if len(request.Data) == 0 {
		return []string{}, nil
	}

	exists, err := c.db.HasCollection(request.Collection)
	if err != nil {
		return nil, types.WrapError(err, "failed to check collection existence")
	}

	if !exists {
		err = c.db.CreateCollection(request.Collection)
		if err != nil {
			return nil, types.WrapError(err, "failed to create collection")
		}
	}

	var docs []*clover.Document
	var ids []string
	now := time.Now().UnixNano()

	for i, data := range request.Data {
		dataMap, ok := data.(map[string]interface{})
		if !ok {
			return nil, types.Errorf(types.ErrDatabaseInvalidData, "data must be a map")
		}

		internalID := uuid.New().String()
		dataMap[FieldInternalID] = internalID
		dataMap[FieldCreatedAt] = now + int64(i)
		dataMap[FieldChangedAt] = now + int64(i)

		doc := clover.NewDocument()
		for key, value := range dataMap {
			doc.Set(key, value)
		}

		docs = append(docs, doc)
		ids = append(ids, internalID)
	}

	err = c.db.Insert(request.Collection, docs...)
	if err != nil {
		return nil, types.WrapError(err, "failed to insert documents")
	}

	return ids, nil
}

func (c *CloverDB) ReadDocuments(ctx context.Context, request types.ReadDocumentsRequest) ([]map[string]interface{}, int64, error) {
	exists, err := c.db.HasCollection(request.Collection)
	if err != nil {
		return nil, 0, types.WrapError(err, "failed to check collection existence")
	}

	if !exists {
		return []map[string]interface{}{}, 0, nil
	}

	query := c.db.Query(request.Collection)

	if len(request.Filter) > 0 {
		query = c.applyFilters(query, request.Filter)
	}

	if len(request.Sort) > 0 {
		for field, order := range request.Sort {
			query = query.Sort(clover.SortOption{Field: field, Direction: order})
		}
	}

	if request.Skip > 0 {
		query = query.Skip(request.Skip)
	}

	if request.Limit > 0 {
		query = query.Limit(request.Limit)
	}

	cloverDocs, err := query.FindAll()
	if err != nil {
		return nil, 0, types.WrapError(err, "failed to find documents")
	}

	// Total count ignores pagination.
	totalQuery := c.db.Query(request.Collection)
	if len(request.Filter) > 0 {
		totalQuery = c.applyFilters(totalQuery, request.Filter)
	}

	totalCount, err := totalQuery.Count()
	if err != nil {
		return nil, 0, types.WrapError(err, "failed to count documents")
	}

	var results []map[string]interface{}
	for _, doc := range cloverDocs {
		docMap := make(map[string]interface{})

		err = doc.Unmarshal(&docMap)
		if err != nil {
			continue
		}

		delete(docMap, "_id")

		results = append(results, docMap)
	}

	return results, int64(totalCount), nil
}

func (c *CloverDB) UpdateDocuments(ctx context.Context, request types.UpdateDocumentsRequest) (int64, error) {
	exists, err := c.db.HasCollection(request.Collection)
	if err != nil {
		return 0, types.WrapError(err, "failed to check collection existence")
	}

	if !exists && !request.Upsert {
		return 0, nil
	}

	if !exists && request.Upsert {
		err = c.db.CreateCollection(request.Collection)
		if err != nil {
			return 0, types.WrapError(err, "failed to create collection")
		}
	}

	query := c.db.Query(request.Collection)

	if len(request.Filter) > 0 {
		query = c.applyFilters(query, request.Filter)
	}

	count, err := query.Count()
	if err != nil {
		return 0, types.WrapError(err, "failed to count matching documents")
	}

	if count == 0 && !request.Upsert {
		return 0, nil
	}

	if count == 0 && request.Upsert {
		newDoc := make(map[string]interface{})

		if err := applyUpdateOperations(newDoc, request.Data); err != nil {
			return 0, err
		}

		newDoc[FieldInternalID] = uuid.New().String()
		newDoc[FieldCreatedAt] = time.Now().UnixNano()
		newDoc[FieldChangedAt] = time.Now().UnixNano()

		doc := clover.NewDocument()
		for key, value := range newDoc {
			doc.Set(key, value)
		}

		err = c.db.Insert(request.Collection, doc)
		if err != nil {
			return 0, types.WrapError(err, "failed to insert upserted document")
		}

		return 1, nil
	}

	updateMap := make(map[string]interface{})
	if err := applyUpdateOperations(updateMap, request.Data); err != nil {
		return 0, err
	}

	updateMap[FieldChangedAt] = time.Now().UnixNano()

	err = query.Update(updateMap)
	if err != nil {
		return 0, types.WrapError(err, "failed to update documents")
	}

	return int64(count), nil
}

func (c *CloverDB) DeleteDocuments(ctx context.Context, request types.DeleteDocumentsRequest) (int64, error) {
	exists, err := c.db.HasCollection(request.Collection)
	if err != nil {
		return 0, types.WrapError(err, "failed to check collection existence")
	}

	if !exists {
		return 0, nil
	}

	query := c.db.Query(request.Collection)

	if len(request.Filter) > 0 {
		query = c.applyFilters(query, request.Filter)
	}

	count, err := query.Count()
	if err != nil {
		return 0, types.WrapError(err, "failed to count matching documents")
	}

	if count == 0 {
		return 0, nil
	}

	err = query.Delete()
	if err != nil {
		return 0, types.WrapError(err, "failed to delete documents")
	}

	return int64(count), nil
}

func (c *CloverDB) applyFilters(query *clover.Query, filter map[string]interface{}) *clover.Query {
	for key, value := range filter {
		query = c.applyFieldFilter(query, key, value)
	}
	return query
}

func (c *CloverDB) applyFieldFilter(query *clover.Query, key string, value interface{}) *clover.Query {
	switch val := value.(type) {
	case map[string]interface{}:
		for op, opValue := range val {
			switch op {
			case "$eq":
				query = query.Where(clover.Field(key).Eq(opValue))
			case "$ne":
				query = query.Where(clover.Field(key).Neq(opValue))
			case "$gt":
				query = query.Where(clover.Field(key).Gt(opValue))
			case "$gte":
				query = query.Where(clover.Field(key).GtEq(opValue))
			case "$lt":
				query = query.Where(clover.Field(key).Lt(opValue))
			case "$lte":
				query = query.Where(clover.Field(key).LtEq(opValue))
			case "$in":
				if arr, ok := opValue.([]interface{}); ok {
					query = query.Where(clover.Field(key).In(arr...))
				}
			case "$nin":
				if arr, ok := opValue.([]interface{}); ok {
					query = query.Where(clover.Field(key).In(arr...).Not())
				}
			case "$exists":
				if exists, ok := opValue.(bool); ok {
					if exists {
						query = query.Where(clover.Field(key).Exists())
					} else {
						query = query.Where(clover.Field(key).NotExists())
					}
				}
			case "$regex":
				if regexStr, ok := opValue.(string); ok {
					query = query.Where(clover.Field(key).Like(regexStr))
				}
			}
		}
	default:
		query = query.Where(clover.Field(key).Eq(value))
	}

	return query
}

func (c *CloverDB) getState() State {
	return c.state.Load().(State)
}

func (c *CloverDB) setState(newState State) bool {
	currentState := c.getState()
	return c.state.CompareAndSwap(currentState, newState)
}

func (c *CloverDB) transitionState(from, to State) bool {
	return c.state.CompareAndSwap(from, to)
}
