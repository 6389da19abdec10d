package cron

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/saiset-co/sai-data/config"
	"github.com/saiset-co/sai-data/logger"
	"github.com/saiset-co/sai-data/types"
)

func newTestCronManager(t *testing.T) types.CronManager {
	t.Helper()

	cfg, err := config.NewStaticConfigurationManager(context.Background(), &types.DataConfig{
		Name:    "test",
		Version: "0.0.0",
		Cron:    &types.CronConfig{Enabled: true, Timezone: "UTC"},
	})
	if err != nil {
		t.Fatalf("static config manager: %v", err)
	}

	manager, err := NewManager(context.Background(), cfg, logger.NewZapWrapper(zap.NewNop()), nil)
	if err != nil {
		t.Fatalf("new cron manager: %v", err)
	}

	return manager
}

func TestAddValidation(t *testing.T) {
	manager := newTestCronManager(t)

	if err := manager.Add("", "* * * * * *", func() {}); !types.IsError(err, types.ErrCronJobNameIsEmpty) {
		t.Errorf("empty name: got %v", err)
	}
	if err := manager.Add("job", "", func() {}); !types.IsError(err, types.ErrCronExpressionInvalid) {
		t.Errorf("empty spec: got %v", err)
	}
	if err := manager.Add("job", "* * * * * *", nil); !types.IsError(err, types.ErrCronJobIsNil) {
		t.Errorf("nil job: got %v", err)
	}
	if err := manager.Add("job", "not a cron spec", func() {}); err == nil {
		t.Error("malformed spec should be rejected")
	}
}

func TestAddDuplicateAndRemove(t *testing.T) {
	manager := newTestCronManager(t)

	if err := manager.Add("job", "* * * * * *", func() {}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := manager.Add("job", "* * * * * *", func() {}); !types.IsError(err, types.ErrCronJobExists) {
		t.Errorf("duplicate add: got %v", err)
	}

	if err := manager.Remove("job"); err != nil {
		t.Errorf("remove: %v", err)
	}
	if err := manager.Remove("job"); !types.IsError(err, types.ErrCronJobNotFound) {
		t.Errorf("remove missing: got %v", err)
	}

	if err := manager.Add("job", "* * * * * *", func() {}); err != nil {
		t.Errorf("re-add after remove: %v", err)
	}
}

func TestLifecycle(t *testing.T) {
	manager := newTestCronManager(t)

	if manager.IsRunning() {
		t.Error("should not be running before start")
	}

	if err := manager.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := manager.Start(); !types.IsError(err, types.ErrComponentAlreadyRunning) {
		t.Errorf("double start: got %v", err)
	}
	if !manager.IsRunning() {
		t.Error("should be running after start")
	}

	if err := manager.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if manager.IsRunning() {
		t.Error("should not be running after stop")
	}

	if err := manager.Add("late", "* * * * * *", func() {}); !types.IsError(err, types.ErrComponentNotRunning) {
		t.Errorf("add after stop: got %v", err)
	}
}

func TestJobExecutes(t *testing.T) {
	manager := newTestCronManager(t)

	var runs int64
	if err := manager.Add("tick", "* * * * * *", func() {
		atomic.AddInt64(&runs, 1)
	}); err != nil {
		t.Fatalf("add: %v", err)
	}

	if err := manager.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer manager.Stop()

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if atomic.LoadInt64(&runs) > 0 {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("job never executed")
}
