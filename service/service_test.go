package service

import (
	"context"
	"testing"

	"github.com/saiset-co/sai-data/types"
)

func embeddedConfig() *types.DataConfig {
	return &types.DataConfig{
		Name:    "test-service",
		Version: "0.0.0",
		Logger:  &types.LoggerConfig{Type: "zap", Level: "error"},
		Cache: &types.CacheConfig{
			Enabled: true,
			Type:    "memory",
			Config: map[string]interface{}{
				"max_size":         100,
				"cleanup_interval": "1m",
			},
		},
		Database: &types.DatabaseConfig{
			Enabled: true,
			Type:    "memory",
		},
		Controller: &types.ControllerConfig{
			CacheReads: true,
			ReadTTL:    "1m",
		},
	}
}

func TestServiceLifecycle(t *testing.T) {
	svc, err := NewServiceWithConfig(context.Background(), embeddedConfig())
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	if err := svc.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if !svc.IsRunning() {
		t.Error("service should be running")
	}
	if err := svc.Start(); !types.IsError(err, types.ErrComponentAlreadyRunning) {
		t.Errorf("double start: got %v", err)
	}

	controller := svc.Controller()
	if controller == nil {
		t.Fatal("controller should be available with database enabled")
	}

	ids, err := controller.Create(context.Background(), types.CreateDocumentsRequest{
		Collection: "notes",
		Data:       []interface{}{map[string]interface{}{"text": "hello"}},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if len(ids) != 1 {
		t.Fatalf("expected 1 id, got %d", len(ids))
	}

	docs, total, err := controller.Read(context.Background(), types.ReadDocumentsRequest{Collection: "notes"})
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if total != 1 || docs[0]["text"] != "hello" {
		t.Fatalf("unexpected read result: %v (total %d)", docs, total)
	}

	if err := svc.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if svc.IsRunning() {
		t.Error("service should not be running after stop")
	}

	select {
	case <-svc.Done():
	default:
		t.Error("done channel should be closed after stop")
	}
}

func TestServiceWithoutDatabaseHasNoController(t *testing.T) {
	cfg := embeddedConfig()
	cfg.Database = nil

	svc, err := NewServiceWithConfig(context.Background(), cfg)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	if svc.Controller() != nil {
		t.Error("controller should be nil with database disabled")
	}

	if err := svc.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := svc.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
}

func TestServiceRequiresExistingConfigFile(t *testing.T) {
	if _, err := NewService(context.Background(), ""); err == nil {
		t.Error("empty config path should be rejected")
	}
	if _, err := NewService(context.Background(), "/nonexistent/config.yml"); err == nil {
		t.Error("missing config file should be rejected")
	}
}
