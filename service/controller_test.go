package service

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"github.com/saiset-co/sai-data/cache"
	"github.com/saiset-co/sai-data/config"
	"github.com/saiset-co/sai-data/database"
	"github.com/saiset-co/sai-data/logger"
	"github.com/saiset-co/sai-data/types"
	"github.com/saiset-co/sai-data/validation"
)

func newTestController(t *testing.T) (*CRUDController, types.CacheManager, types.DatabaseManager) {
	t.Helper()

	log := logger.NewZapWrapper(zap.NewNop())

	cfg, err := config.NewStaticConfigurationManager(context.Background(), &types.DataConfig{
		Name:    "test",
		Version: "0.0.0",
		Controller: &types.ControllerConfig{
			CacheReads: true,
			ReadTTL:    "1m",
		},
		Entities: []*types.EntityConfig{
			{
				Name: "users",
				Fields: []*types.EntityFieldConfig{
					{Name: "name", Type: "string", Required: true},
					{Name: "age", Type: "number"},
				},
			},
		},
	})
	if err != nil {
		t.Fatalf("static config manager: %v", err)
	}

	cacheManager, err := cache.NewStore(context.Background(), log, &types.CacheConfig{
		Enabled: true,
		Type:    "memory",
		Config:  &cache.StoreConfig{MaxSize: 100, CleanupInterval: "1m"},
	})
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if err := cacheManager.Start(); err != nil {
		t.Fatalf("start cache: %v", err)
	}
	t.Cleanup(func() {
		_ = cacheManager.Stop()
	})

	db, err := database.NewMemoryDB(context.Background(), log, &types.DatabaseConfig{
		Enabled: true,
		Type:    "memory",
	})
	if err != nil {
		t.Fatalf("new memory db: %v", err)
	}
	if err := db.Start(); err != nil {
		t.Fatalf("start db: %v", err)
	}
	t.Cleanup(func() {
		_ = db.Stop()
	})

	validationManager, err := validation.NewValidationManager(cfg, log)
	if err != nil {
		t.Fatalf("new validation manager: %v", err)
	}

	controller, err := NewCRUDController(cfg, log, cacheManager, db, validationManager)
	if err != nil {
		t.Fatalf("new controller: %v", err)
	}

	return controller, cacheManager, db
}

func TestCreateValidates(t *testing.T) {
	controller, _, _ := newTestController(t)

	_, err := controller.Create(context.Background(), types.CreateDocumentsRequest{
		Collection: "users",
		Data:       []interface{}{map[string]interface{}{"age": 31}},
	})
	if !types.IsError(err, types.ErrValidationFailed) {
		t.Errorf("expected validation failure, got %v", err)
	}

	ids, err := controller.Create(context.Background(), types.CreateDocumentsRequest{
		Collection: "users",
		Data:       []interface{}{map[string]interface{}{"name": "alice", "age": 31}},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if len(ids) != 1 {
		t.Fatalf("expected 1 id, got %d", len(ids))
	}
}

func TestCreateSanitizesUndeclaredFields(t *testing.T) {
	controller, _, _ := newTestController(t)

	if _, err := controller.Create(context.Background(), types.CreateDocumentsRequest{
		Collection: "users",
		Data: []interface{}{map[string]interface{}{
			"name":     "alice",
			"injected": "value",
		}},
	}); err != nil {
		t.Fatalf("create: %v", err)
	}

	docs, _, err := controller.Read(context.Background(), types.ReadDocumentsRequest{Collection: "users"})
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(docs) != 1 {
		t.Fatalf("expected 1 document, got %d", len(docs))
	}
	if _, exists := docs[0]["injected"]; exists {
		t.Error("undeclared field reached storage")
	}
}

func TestReadThroughCaching(t *testing.T) {
	controller, cacheManager, db := newTestController(t)

	if _, err := controller.Create(context.Background(), types.CreateDocumentsRequest{
		Collection: "users",
		Data:       []interface{}{map[string]interface{}{"name": "alice"}},
	}); err != nil {
		t.Fatalf("create: %v", err)
	}

	request := types.ReadDocumentsRequest{
		Collection: "users",
		Filter:     map[string]interface{}{"name": "alice"},
	}

	if _, total, err := controller.Read(context.Background(), request); err != nil || total != 1 {
		t.Fatalf("first read: total %d, err %v", total, err)
	}

	// Bypass the controller; a cached read must not see this write.
	if _, err := db.CreateDocuments(context.Background(), types.CreateDocumentsRequest{
		Collection: "users",
		Data:       []interface{}{map[string]interface{}{"name": "alice"}},
	}); err != nil {
		t.Fatalf("direct create: %v", err)
	}

	if _, total, err := controller.Read(context.Background(), request); err != nil || total != 1 {
		t.Fatalf("cached read should be stale: total %d, err %v", total, err)
	}

	stats := cacheManager.Stats()
	if stats.HitRate <= 0 {
		t.Errorf("expected cache hits, hit rate %v", stats.HitRate)
	}
}

func TestMutationsInvalidateReads(t *testing.T) {
	controller, _, _ := newTestController(t)

	if _, err := controller.Create(context.Background(), types.CreateDocumentsRequest{
		Collection: "users",
		Data:       []interface{}{map[string]interface{}{"name": "alice", "age": 31}},
	}); err != nil {
		t.Fatalf("create: %v", err)
	}

	request := types.ReadDocumentsRequest{Collection: "users"}

	if _, total, err := controller.Read(context.Background(), request); err != nil || total != 1 {
		t.Fatalf("first read: total %d, err %v", total, err)
	}

	if _, err := controller.Create(context.Background(), types.CreateDocumentsRequest{
		Collection: "users",
		Data:       []interface{}{map[string]interface{}{"name": "bob"}},
	}); err != nil {
		t.Fatalf("second create: %v", err)
	}

	if _, total, err := controller.Read(context.Background(), request); err != nil || total != 2 {
		t.Fatalf("read after create should see both documents: total %d, err %v", total, err)
	}

	if _, err := controller.Delete(context.Background(), types.DeleteDocumentsRequest{
		Collection: "users",
		Filter:     map[string]interface{}{"name": "bob"},
	}); err != nil {
		t.Fatalf("delete: %v", err)
	}

	if _, total, err := controller.Read(context.Background(), request); err != nil || total != 1 {
		t.Fatalf("read after delete should see one document: total %d, err %v", total, err)
	}
}

func TestInvalidationIsScopedToCollection(t *testing.T) {
	controller, cacheManager, _ := newTestController(t)

	if _, err := controller.Create(context.Background(), types.CreateDocumentsRequest{
		Collection: "orders",
		Data:       []interface{}{map[string]interface{}{"sku": "x1"}},
	}); err != nil {
		t.Fatalf("create orders: %v", err)
	}

	if _, _, err := controller.Read(context.Background(), types.ReadDocumentsRequest{Collection: "orders"}); err != nil {
		t.Fatalf("read orders: %v", err)
	}

	sizeBefore := cacheManager.Stats().Size
	if sizeBefore == 0 {
		t.Fatal("expected cached orders read")
	}

	if _, err := controller.Create(context.Background(), types.CreateDocumentsRequest{
		Collection: "users",
		Data:       []interface{}{map[string]interface{}{"name": "alice"}},
	}); err != nil {
		t.Fatalf("create users: %v", err)
	}

	if size := cacheManager.Stats().Size; size != sizeBefore {
		t.Errorf("users mutation evicted orders reads: size %d -> %d", sizeBefore, size)
	}
}

func TestUpdateThroughController(t *testing.T) {
	controller, _, _ := newTestController(t)

	if _, err := controller.Create(context.Background(), types.CreateDocumentsRequest{
		Collection: "users",
		Data:       []interface{}{map[string]interface{}{"name": "alice", "age": 31}},
	}); err != nil {
		t.Fatalf("create: %v", err)
	}

	updated, err := controller.Update(context.Background(), types.UpdateDocumentsRequest{
		Collection: "users",
		Filter:     map[string]interface{}{"name": "alice"},
		Data:       map[string]interface{}{"$inc": map[string]interface{}{"age": 2}},
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated != 1 {
		t.Fatalf("expected 1 updated, got %d", updated)
	}

	docs, _, err := controller.Read(context.Background(), types.ReadDocumentsRequest{
		Collection: "users",
		Filter:     map[string]interface{}{"age": 33},
	})
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(docs) != 1 {
		t.Errorf("update not visible through controller read: %d docs", len(docs))
	}
}

func TestControllerWithoutCache(t *testing.T) {
	log := logger.NewZapWrapper(zap.NewNop())

	cfg, err := config.NewStaticConfigurationManager(context.Background(), &types.DataConfig{
		Name:    "test",
		Version: "0.0.0",
	})
	if err != nil {
		t.Fatalf("static config manager: %v", err)
	}

	db, err := database.NewMemoryDB(context.Background(), log, &types.DatabaseConfig{Enabled: true, Type: "memory"})
	if err != nil {
		t.Fatalf("new memory db: %v", err)
	}
	if err := db.Start(); err != nil {
		t.Fatalf("start db: %v", err)
	}
	defer db.Stop()

	controller, err := NewCRUDController(cfg, log, nil, db, nil)
	if err != nil {
		t.Fatalf("new controller: %v", err)
	}

	if _, err := controller.Create(context.Background(), types.CreateDocumentsRequest{
		Collection: "users",
		Data:       []interface{}{map[string]interface{}{"name": "alice"}},
	}); err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, total, err := controller.Read(context.Background(), types.ReadDocumentsRequest{Collection: "users"}); err != nil || total != 1 {
		t.Fatalf("read without cache: total %d, err %v", total, err)
	}

	if _, ok := controller.CacheStats(); ok {
		t.Error("cache stats should report unavailable without a cache")
	}
}
