package database

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/saiset-co/sai-data/types"
)

type MemoryDB struct {
	collections map[string]map[string]map[string]interface{}
	mutex       sync.RWMutex
	logger      types.Logger
	config      *types.DatabaseConfig
	state       atomic.Value
}

func NewMemoryDB(ctx context.Context, logger types.Logger, config *types.DatabaseConfig) (types.DatabaseManager, error) {
	mdb := &MemoryDB{
		collections: make(map[string]map[string]map[string]interface{}),
		logger:      logger,
		config:      config,
	}

	mdb.state.Store(StateStopped)
	return mdb, nil
}

func (m *MemoryDB) Start() error {
	if !m.transitionState(StateStopped, StateStarting) {
		return types.ErrComponentAlreadyRunning
	}

	defer func() {
		if m.getState() == StateStarting {
			m.setState(StateRunning)
		}
	}()

	m.logger.Info("MemoryDB started")
	return nil
}

func (m *MemoryDB) Stop() error {
	if !m.transitionState(StateRunning, StateStopping) {
		return types.ErrComponentNotRunning
	}

	defer func() {
		m.setState(StateStopped)
	}()

	m.mutex.Lock()
	m.collections = make(map[string]map[string]map[string]interface{})
	m.mutex.Unlock()

	m.logger.Info("MemoryDB stopped gracefully")
	return nil
}

func (m *MemoryDB) IsRunning() bool {
	return m.getState() == StateRunning
}

func (m *MemoryDB) CreateCollection(collectionName string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if _, exists := m.collections[collectionName]; exists {
		return types.ErrDatabaseCollectionExists
	}

	m.collections[collectionName] = make(map[string]map[string]interface{})
	return nil
}

func (m *MemoryDB) DropCollection(collectionName string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	delete(m.collections, collectionName)
	return nil
}

func (m *MemoryDB) CreateDocuments(ctx context.Context, request types.CreateDocumentsRequest) ([]string, error) {
	if len(request.Data) == 0 {
		return []string{}, nil
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	if _, exists := m.collections[request.Collection]; !exists {
		m.collections[request.Collection] = make(map[string]map[string]interface{})
	}

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

		docCopy := make(map[string]interface{})
		deepCopy(dataMap, docCopy)

		m.collections[request.Collection][internalID] = docCopy
		ids = append(ids, internalID)
	}

	return ids, nil
}

func (m *MemoryDB) ReadDocuments(ctx context.Context, request types.ReadDocumentsRequest) ([]map[string]interface{}, int64, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	collection, exists := m.collections[request.Collection]
	if !exists {
		return []map[string]interface{}{}, 0, nil
	}

	var allDocs []map[string]interface{}

	for _, doc := range collection {
		if matchesFilter(doc, request.Filter) {
			docCopy := make(map[string]interface{})
			deepCopy(doc, docCopy)
			allDocs = append(allDocs, docCopy)
		}
	}

	total := int64(len(allDocs))

	sortDocuments(allDocs, request.Sort)

	if request.Skip > 0 {
		if request.Skip >= len(allDocs) {
			return []map[string]interface{}{}, total, nil
		}
		allDocs = allDocs[request.Skip:]
	}

	if request.Limit > 0 && request.Limit < len(allDocs) {
		allDocs = allDocs[:request.Limit]
	}

	return allDocs, total, nil
}

func (m *MemoryDB) UpdateDocuments(ctx context.Context, request types.UpdateDocumentsRequest) (int64, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	collection, exists := m.collections[request.Collection]
	if !exists && !request.Upsert {
		return 0, nil
	}

	if !exists && request.Upsert {
		m.collections[request.Collection] = make(map[string]map[string]interface{})
		collection = m.collections[request.Collection]
	}

	var matchingDocs []string
	for id, doc := range collection {
		if matchesFilter(doc, request.Filter) {
			matchingDocs = append(matchingDocs, id)
		}
	}

	if len(matchingDocs) == 0 && !request.Upsert {
		return 0, nil
	}

	now := time.Now().UnixNano()

	if len(matchingDocs) == 0 && request.Upsert {
		newDoc := make(map[string]interface{})

		if err := applyUpdateOperations(newDoc, request.Data); err != nil {
			return 0, err
		}

		internalID := uuid.New().String()
		newDoc[FieldInternalID] = internalID
		newDoc[FieldCreatedAt] = now
		newDoc[FieldChangedAt] = now

		collection[internalID] = newDoc
		return 1, nil
	}

	for _, id := range matchingDocs {
		doc := collection[id]

		if err := applyUpdateOperations(doc, request.Data); err != nil {
			continue
		}

		doc[FieldChangedAt] = now
	}

	return int64(len(matchingDocs)), nil
}

func (m *MemoryDB) DeleteDocuments(ctx context.Context, request types.DeleteDocumentsRequest) (int64, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	collection, exists := m.collections[request.Collection]
	if !exists {
		return 0, nil
	}

	var toDelete []string
	for id, doc := range collection {
		if matchesFilter(doc, request.Filter) {
			toDelete = append(toDelete, id)
		}
	}

	for _, id := range toDelete {
		delete(collection, id)
	}

	return int64(len(toDelete)), nil
}

func deepCopy(src, dst map[string]interface{}) {
	for k, v := range src {
		switch val := v.(type) {
		case map[string]interface{}:
			nestedDst := make(map[string]interface{})
			deepCopy(val, nestedDst)
			dst[k] = nestedDst
		default:
			dst[k] = v
		}
	}
}

func (m *MemoryDB) getState() State {
	return m.state.Load().(State)
}

func (m *MemoryDB) setState(newState State) bool {
	currentState := m.getState()
	return m.state.CompareAndSwap(currentState, newState)
}

func (m *MemoryDB) transitionState(from, to State) bool {
	return m.state.CompareAndSwap(from, to)
}
