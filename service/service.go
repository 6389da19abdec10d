package service

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/saiset-co/sai-data/cache"
	"github.com/saiset-co/sai-data/config"
	"github.com/saiset-co/sai-data/cron"
	"github.com/saiset-co/sai-data/database"
	"github.com/saiset-co/sai-data/logger"
	"github.com/saiset-co/sai-data/metrics"
	"github.com/saiset-co/sai-data/sai"
	"github.com/saiset-co/sai-data/types"
	"github.com/saiset-co/sai-data/validation"
)

type State int32

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
)

const statsJobName = "cache_stats_report"

// Service assembles the configured managers and exposes the CRUD
// controller as the library's front door.
type Service struct {
	ctx             context.Context
	cancel          context.CancelFunc
	container       *sai.Container
	controller      *CRUDController
	done            chan struct{}
	wg              sync.WaitGroup
	state           atomic.Value
	shutdownTimeout time.Duration
}

func NewService(ctx context.Context, configPath string) (*Service, error) {
	if configPath == "" {
		return nil, types.ErrConfigNotFound
	}

	if _, err := os.Stat(configPath); err != nil {
		return nil, types.WrapError(err, "config file does not exist")
	}

	serviceCtx, cancel := context.WithCancel(ctx)

	configManager, err := config.NewConfigurationManager(serviceCtx, configPath)
	if err != nil {
		cancel()
		return nil, types.WrapError(err, "failed to load configuration")
	}

	return assemble(serviceCtx, cancel, configManager)
}

// NewServiceWithConfig builds a service around an in-memory configuration,
// for embedding without a config file.
func NewServiceWithConfig(ctx context.Context, dataConfig *types.DataConfig) (*Service, error) {
	serviceCtx, cancel := context.WithCancel(ctx)

	configManager, err := config.NewStaticConfigurationManager(serviceCtx, dataConfig)
	if err != nil {
		cancel()
		return nil, err
	}

	return assemble(serviceCtx, cancel, configManager)
}

func assemble(ctx context.Context, cancel context.CancelFunc, configManager types.ConfigManager) (*Service, error) {
	container := sai.InitContainer()
	container.SetConfig(configManager)

	service := &Service{
		ctx:             ctx,
		cancel:          cancel,
		container:       container,
		done:            make(chan struct{}),
		shutdownTimeout: 30 * time.Second,
	}

	service.state.Store(StateStopped)

	if err := service.registerProviders(); err != nil {
		cancel()
		return nil, types.WrapError(err, "failed to register providers")
	}

	sai.SetContainer(container)
	return service, nil
}

func (s *Service) registerProviders() error {
	configManager := s.config()
	dataConfig := configManager.GetConfig()

	loggerManager, err := logger.NewManager(s.ctx, configManager)
	if err != nil {
		return types.WrapError(err, "failed to create logger")
	}
	s.container.SetLogger(loggerManager)

	var metricsManager types.MetricsManager
	if dataConfig.Metrics != nil && dataConfig.Metrics.Enabled {
		metricsManager, err = metrics.NewManager(s.ctx, configManager, loggerManager)
		if err != nil {
			return types.WrapError(err, "failed to create metrics manager")
		}
	} else {
		metricsManager = metrics.NewNoopMetrics()
	}
	s.container.SetMetrics(metricsManager)

	var cacheManager types.CacheManager
	if dataConfig.Cache != nil && dataConfig.Cache.Enabled {
		cacheManager, err = cache.NewCacheManager(s.ctx, configManager, loggerManager, metricsManager)
		if err != nil {
			return types.WrapError(err, "failed to create cache manager")
		}
		s.container.SetCache(cacheManager)
	}

	var databaseManager types.DatabaseManager
	if dataConfig.Database != nil && dataConfig.Database.Enabled {
		databaseManager, err = database.NewDatabaseManager(s.ctx, configManager, loggerManager, metricsManager)
		if err != nil {
			return types.WrapError(err, "failed to create database manager")
		}
		s.container.SetDatabase(databaseManager)
	}

	validationManager, err := validation.NewValidationManager(configManager, loggerManager)
	if err != nil {
		return types.WrapError(err, "failed to create validation manager")
	}
	s.container.SetValidation(validationManager)

	if dataConfig.Cron != nil && dataConfig.Cron.Enabled {
		cronManager, err := cron.NewManager(s.ctx, configManager, loggerManager, metricsManager)
		if err != nil {
			return types.WrapError(err, "failed to create cron manager")
		}
		s.container.SetCron(cronManager)
	}

	if databaseManager != nil {
		controller, err := NewCRUDController(configManager, loggerManager, cacheManager, databaseManager, validationManager)
		if err != nil {
			return types.WrapError(err, "failed to create controller")
		}
		s.controller = controller
	}

	return nil
}

// Controller returns the CRUD controller, or nil when the database is
// disabled in config.
func (s *Service) Controller() *CRUDController {
	return s.controller
}

func (s *Service) Start() error {
	if !s.transitionState(StateStopped, StateStarting) {
		return types.ErrComponentAlreadyRunning
	}

	if err := s.startComponents(); err != nil {
		s.setState(StateStopped)
		return types.WrapError(err, "failed to start components")
	}

	s.setState(StateRunning)
	s.setupSignalHandling()

	s.wg.Add(1)
	go s.contextMonitor()

	s.logger().Info("Service started successfully")
	return nil
}

func (s *Service) Stop() error {
	if !s.transitionState(StateRunning, StateStopping) {
		return types.ErrComponentNotRunning
	}

	s.logger().Info("Stopping service...")

	err := s.stopComponents()

	s.cancel()
	s.wg.Wait()
	s.setState(StateStopped)
	close(s.done)

	if err == nil {
		s.logger().Info("Service stopped gracefully")
	}
	return err
}

func (s *Service) Done() <-chan struct{} {
	return s.done
}

func (s *Service) Context() context.Context {
	return s.ctx
}

func (s *Service) IsRunning() bool {
	return s.getState() == StateRunning
}

func (s *Service) startComponents() error {
	if ptr := s.container.Config.Load(); ptr != nil {
		if manager, ok := (*ptr).(types.LifecycleManager); ok {
			if err := manager.Start(); err != nil {
				return types.WrapError(err, "failed to start config manager")
			}
		}
	}

	if ptr := s.container.Logger.Load(); ptr != nil {
		if manager, ok := (*ptr).(types.LifecycleManager); ok {
			if err := manager.Start(); err != nil {
				return types.WrapError(err, "failed to start logger")
			}
		}
	}

	if ptr := s.container.Metrics.Load(); ptr != nil {
		if err := (*ptr).Start(); err != nil {
			return types.WrapError(err, "failed to start metrics manager")
		}
	}

	if ptr := s.container.Cache.Load(); ptr != nil {
		if err := (*ptr).Start(); err != nil {
			return types.WrapError(err, "failed to start cache manager")
		}
	}

	if ptr := s.container.Database.Load(); ptr != nil {
		if err := (*ptr).Start(); err != nil {
			return types.WrapError(err, "failed to start database manager")
		}
	}

	if ptr := s.container.Cron.Load(); ptr != nil {
		cronManager := *ptr
		if err := cronManager.Start(); err != nil {
			return types.WrapError(err, "failed to start cron manager")
		}
		s.registerStatsJob(cronManager)
	}

	return nil
}

// registerStatsJob periodically logs cache hit rate and occupancy so
// long-running deployments can see cache behavior without metrics scraping.
func (s *Service) registerStatsJob(cronManager types.CronManager) {
	controllerConfig := s.config().GetConfig().Controller
	if controllerConfig == nil || controllerConfig.StatsReportCron == "" || s.controller == nil {
		return
	}

	err := cronManager.Add(statsJobName, controllerConfig.StatsReportCron, func() {
		stats, ok := s.controller.CacheStats()
		if !ok {
			return
		}
		s.logger().Info("Cache stats",
			zap.Int("size", stats.Size),
			zap.Int("max_size", stats.MaxSize),
			zap.Float64("hit_rate", stats.HitRate),
			zap.Float64("avg_access_count", stats.AverageAccessCount))
	})
	if err != nil {
		s.logger().Warn("Failed to register stats job", zap.Error(err))
	}
}

func (s *Service) stopComponents() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()

	g, gCtx := errgroup.WithContext(ctx)

	stop := func(name string, manager types.LifecycleManager) {
		g.Go(func() error {
			select {
			case <-gCtx.Done():
				return gCtx.Err()
			default:
				if err := manager.Stop(); err != nil && !types.IsError(err, types.ErrComponentNotRunning) {
					s.logger().Error("Failed to stop "+name, zap.Error(err))
					return err
				}
				return nil
			}
		})
	}

	if ptr := s.container.Cron.Load(); ptr != nil {
		stop("cron manager", *ptr)
	}
	if ptr := s.container.Cache.Load(); ptr != nil {
		stop("cache manager", *ptr)
	}
	if ptr := s.container.Database.Load(); ptr != nil {
		stop("database manager", *ptr)
	}
	if ptr := s.container.Metrics.Load(); ptr != nil {
		stop("metrics manager", *ptr)
	}

	err := g.Wait()

	if ptr := s.container.Config.Load(); ptr != nil {
		if manager, ok := (*ptr).(types.LifecycleManager); ok {
			if stopErr := manager.Stop(); stopErr != nil && !types.IsError(stopErr, types.ErrComponentNotRunning) {
				s.logger().Error("Failed to stop config manager", zap.Error(stopErr))
			}
		}
	}

	if ptr := s.container.Logger.Load(); ptr != nil {
		if manager, ok := (*ptr).(types.LifecycleManager); ok {
			_ = manager.Stop()
		}
	}

	return err
}

func (s *Service) setupSignalHandling() {
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer signal.Stop(signals)

		select {
		case sig := <-signals:
			s.logger().Info("Received shutdown signal", zap.String("signal", sig.String()))
			go func() {
				_ = s.Stop()
			}()
		case <-s.ctx.Done():
		}
	}()
}

func (s *Service) contextMonitor() {
	defer s.wg.Done()
	<-s.ctx.Done()
}

func (s *Service) config() types.ConfigManager {
	ptr := s.container.Config.Load()
	return *ptr
}

func (s *Service) logger() types.Logger {
	if ptr := s.container.Logger.Load(); ptr != nil {
		return *ptr
	}
	return nil
}

func (s *Service) getState() State {
	return s.state.Load().(State)
}

func (s *Service) setState(newState State) bool {
	currentState := s.getState()
	return s.state.CompareAndSwap(currentState, newState)
}

func (s *Service) transitionState(from, to State) bool {
	return s.state.CompareAndSwap(from, to)
}
