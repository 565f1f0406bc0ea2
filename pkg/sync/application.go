package sync

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	_ "net/http/pprof" //nolint:gosec // pprof is intentionally exposed when pprofAddr is configured
	"time"

	"github.com/sirupsen/logrus"

	"github.com/accessops/idsync/pkg/api"
	"github.com/accessops/idsync/pkg/diffcache"
	"github.com/accessops/idsync/pkg/invenzi"
	"github.com/accessops/idsync/pkg/observability"
	r "github.com/accessops/idsync/pkg/redis"
	"github.com/accessops/idsync/pkg/scheduler"
	"github.com/accessops/idsync/pkg/source"
	"github.com/accessops/idsync/pkg/tasks"
	"github.com/accessops/idsync/pkg/worker"
)

// AppConfig is the top-level daemon configuration.
type AppConfig struct {
	Logging         string `yaml:"logging" default:"info"`
	MetricsAddr     string `yaml:"metricsAddr" default:":9090"`
	HealthCheckAddr string `yaml:"healthCheckAddr"`
	PProfAddr       string `yaml:"pprofAddr"`

	Redis   r.Config         `yaml:"redis"`
	Source  source.Config    `yaml:"source"`
	Cache   diffcache.Config `yaml:"cache"`
	Invenzi invenzi.Config   `yaml:"invenzi"`
	Sync    Config           `yaml:"sync"`
	Worker  worker.Config    `yaml:"worker"`
	API     api.Config       `yaml:"api"`
}

// Validate checks all sections of the configuration
func (c *AppConfig) Validate() error {
	if err := c.Redis.Validate(); err != nil {
		return err
	}

	if err := c.Source.Validate(); err != nil {
		return err
	}

	if err := c.Cache.Validate(); err != nil {
		return err
	}

	if err := c.Invenzi.Validate(); err != nil {
		return err
	}

	if err := c.Sync.Validate(); err != nil {
		return err
	}

	if err := c.Worker.Validate(); err != nil {
		return err
	}

	return c.API.Validate()
}

// Application wires the full daemon: source adapter, differential cache,
// leader election, poller, task worker and admin API.
type Application struct {
	config *AppConfig
	logger *logrus.Logger

	adapter       *source.DBAdapter
	cache         *diffcache.Cache
	elector       scheduler.LeaderElector
	queueManager  *tasks.QueueManager
	syncService   Service
	workerService worker.Service
	apiService    api.Service
	healthServer  *http.Server
	pprofServer   *http.Server
}

// NewApplication creates a new daemon application
func NewApplication(cfg *AppConfig, logger *logrus.Logger) *Application {
	return &Application{
		config: cfg,
		logger: logger,
	}
}

// Start initializes and starts every daemon component
func (a *Application) Start(ctx context.Context) error {
	if err := a.config.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	a.logger.Info("Starting idsync daemon...")

	observability.StartMetricsServer(a.config.MetricsAddr)
	a.logger.WithField("addr", a.config.MetricsAddr).Info("Started metrics server")

	if a.config.HealthCheckAddr != "" {
		a.startHealthCheck()
	}

	if a.config.PProfAddr != "" {
		a.startPProf()
	}

	redisOpt, err := a.config.Redis.Options()
	if err != nil {
		return err
	}

	adapter, err := source.NewDBAdapter(&a.config.Source)
	if err != nil {
		return err
	}
	a.adapter = adapter

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := adapter.Ping(pingCtx); err != nil {
		return fmt.Errorf("source database unreachable: %w", err)
	}

	executor, err := source.NewExecutor(a.logger, adapter)
	if err != nil {
		return err
	}

	cache, err := diffcache.New(a.logger, executor, &a.config.Cache)
	if err != nil {
		return err
	}
	a.cache = cache

	a.elector = scheduler.NewLeaderElector(a.logger, redisOpt)
	if err := a.elector.Start(ctx); err != nil {
		return err
	}

	asynqOpt := r.NewAsynqRedisOptions(redisOpt)
	a.queueManager = tasks.NewQueueManager(&asynqOpt)

	invenziClient, err := invenzi.NewClient(a.logger, &a.config.Invenzi)
	if err != nil {
		return err
	}

	reconciler := worker.NewReconciler(a.logger, invenziClient)

	workerService, err := worker.NewService(a.logger, &a.config.Worker, reconciler, redisOpt)
	if err != nil {
		return err
	}
	a.workerService = workerService

	if err := workerService.Start(ctx); err != nil {
		return err
	}

	syncService, err := NewService(a.logger, &a.config.Sync, cache, a.queueManager, a.elector)
	if err != nil {
		return err
	}
	a.syncService = syncService

	if err := syncService.Start(ctx); err != nil {
		return err
	}

	// The admin API reads the same cache entry the poller maintains.
	query, err := RenderQuery(a.config.Sync.Query.SQL, a.config.Sync.Query.Vars)
	if err != nil {
		return err
	}

	a.apiService = api.NewService(a.logger, &a.config.API, cache, a.queueManager, query, source.Params(a.config.Sync.Query.Params))
	if err := a.apiService.Start(ctx); err != nil {
		return err
	}

	a.logger.Info("Daemon started successfully")

	return nil
}

// Stop gracefully shuts down the daemon
func (a *Application) Stop() error {
	a.logger.Info("Shutting down daemon...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if a.syncService != nil {
		if err := a.syncService.Stop(); err != nil {
			a.logger.WithError(err).Error("Error stopping sync service")
		}
	}

	if a.workerService != nil {
		if err := a.workerService.Stop(); err != nil {
			a.logger.WithError(err).Error("Error stopping worker service")
		}
	}

	if a.apiService != nil {
		if err := a.apiService.Stop(); err != nil {
			a.logger.WithError(err).Error("Error stopping API service")
		}
	}

	if a.elector != nil {
		if err := a.elector.Stop(); err != nil {
			a.logger.WithError(err).Error("Error stopping leader election")
		}
	}

	if a.queueManager != nil {
		if err := a.queueManager.Close(); err != nil {
			a.logger.WithError(err).Error("Failed to close queue manager")
		}
	}

	if a.adapter != nil {
		if err := a.adapter.Close(); err != nil {
			a.logger.WithError(err).Error("Failed to close source database")
		}
	}

	if a.healthServer != nil {
		if err := a.healthServer.Shutdown(ctx); err != nil {
			a.logger.WithError(err).Error("Failed to shutdown health check server")
		}
	}

	if a.pprofServer != nil {
		if err := a.pprofServer.Shutdown(ctx); err != nil {
			a.logger.WithError(err).Error("Failed to shutdown pprof server")
		}
	}

	if err := observability.StopMetricsServer(ctx); err != nil {
		a.logger.WithError(err).Error("Failed to shutdown metrics server")
	}

	return nil
}

func (a *Application) startHealthCheck() {
	a.logger.WithField("addr", a.config.HealthCheckAddr).Info("Starting health check server")

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	mux.HandleFunc("/ready", func(w http.ResponseWriter, _ *http.Request) {
		if a.syncService != nil {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("READY"))
		} else {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("NOT READY"))
		}
	})

	a.healthServer = &http.Server{
		Addr:              a.config.HealthCheckAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := a.healthServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.WithError(err).Error("Health check server failed")
		}
	}()
}

func (a *Application) startPProf() {
	a.logger.WithField("addr", a.config.PProfAddr).Info("Starting pprof server")

	a.pprofServer = &http.Server{
		Addr:              a.config.PProfAddr,
		ReadHeaderTimeout: 120 * time.Second,
	}

	go func() {
		if err := a.pprofServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.WithError(err).Error("Pprof server failed")
		}
	}()
}
