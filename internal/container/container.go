package container

import (
	"context"
	"fmt"
	"time"

	"fieldtrial/adapters/docstore/memory"
	"fieldtrial/adapters/docstore/mongo"
	"fieldtrial/adapters/docstore/postgres"
	"fieldtrial/adapters/docstore/sqlite"
	rediscache "fieldtrial/adapters/redis"
	"fieldtrial/adapters/repository"
	"fieldtrial/adapters/stats/accumulator"
	"fieldtrial/app"
	"fieldtrial/domain/phenotype"
	"fieldtrial/internal/config"
	"fieldtrial/internal/errors"
	"fieldtrial/internal/lock"
	"fieldtrial/internal/logging"
	"fieldtrial/internal/metrics"
	"fieldtrial/ports"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
)

// Container holds all application dependencies and manages their lifecycle
type Container struct {
	Config *config.Config
	Logger *logging.Logger

	// Infrastructure
	Store    ports.DocumentStore
	DB       *sqlx.DB // set for the SQL drivers
	Redis    *rediscache.VariableCache
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics
	Locker   ports.StudyLocker

	// Repositories (data access layer)
	Studies     ports.StudyRepository
	Plots       ports.PlotRepository
	Variables   ports.VariableRepository
	Instruments ports.InstrumentRepository

	PhenotypeCache *phenotype.Cache
	Resolver       *repository.Resolver

	// Services
	Statistics   *app.StatisticsService
	Observations *app.ObservationService
	Imports      *app.ImportService
	Batch        *app.BatchStatistics
}

// New creates a new dependency injection container
func New(cfg *config.Config, logger *logging.Logger) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if logger == nil {
		logger = logging.Nop()
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return &Container{
		Config:   cfg,
		Logger:   logger,
		Registry: reg,
		Metrics:  metrics.New(reg),
	}, nil
}

// Init opens the configured document store and wires everything on top of it
func (c *Container) Init(ctx context.Context) error {
	store, err := c.openStore(ctx)
	if err != nil {
		return errors.WithCode(errors.CodeDatabaseError, err)
	}
	return c.InitWithStore(ctx, store)
}

func (c *Container) openStore(ctx context.Context) (ports.DocumentStore, error) {
	sc := c.Config.Store
	c.Logger.Info("opening document store", "driver", sc.Driver)
	switch sc.Driver {
	case config.DriverMemory:
		return memory.New(), nil
	case config.DriverSQLite:
		s, err := sqlite.Open(ctx, sc.SQLitePath)
		if err != nil {
			return nil, err
		}
		c.DB = s.DB()
		return s, nil
	case config.DriverPostgres:
		s, err := postgres.Open(ctx, sc.DatabaseURL)
		if err != nil {
			return nil, err
		}
		c.DB = s.DB()
		return s, nil
	case config.DriverMongo:
		return mongo.Open(ctx, sc.MongoURI, sc.MongoDatabase)
	}
	return nil, fmt.Errorf("unknown store driver %q", sc.Driver)
}

// InitWithStore wires repositories and services on an already opened store
func (c *Container) InitWithStore(ctx context.Context, store ports.DocumentStore) error {
	if store == nil {
		return fmt.Errorf("document store cannot be nil")
	}
	c.Store = store

	if err := c.initRepositories(ctx); err != nil {
		return fmt.Errorf("failed to initialize repositories: %w", err)
	}
	if err := c.initLocker(); err != nil {
		return fmt.Errorf("failed to initialize study locker: %w", err)
	}
	c.initServices()

	c.Logger.Info("container initialized", "driver", c.Config.Store.Driver, "redis", c.Redis != nil)
	return nil
}

// initRepositories initializes data access repositories
func (c *Container) initRepositories(ctx context.Context) error {
	c.Studies = repository.NewStudyRepository(c.Store)
	c.Instruments = repository.NewInstrumentRepository(c.Store)

	var variables ports.VariableRepository = repository.NewVariableRepository(c.Store)
	if rc := c.Config.Redis; rc.Addr != "" {
		cache, err := rediscache.NewVariableCache(&redis.Options{
			Addr:     rc.Addr,
			Password: rc.Password,
			DB:       rc.DB,
		}, rc.Namespace)
		if err != nil {
			return err
		}
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := cache.Ping(pingCtx); err != nil {
			// the store still serves every lookup
			c.Logger.Warn("redis unavailable, variable cache disabled", "addr", rc.Addr, "error", err)
			_ = cache.Close()
		} else {
			c.Redis = cache
			variables = repository.NewCachedVariables(variables, cache, rc.TTL, c.Logger)
		}
	}
	c.Variables = variables

	c.PhenotypeCache = phenotype.NewCache(c.Variables)
	c.Resolver = repository.NewResolver(c.PhenotypeCache, c.Instruments)
	c.Plots = repository.NewPlotRepository(c.Store, c.Resolver)
	return nil
}

func (c *Container) initLocker() error {
	if dir := c.Config.Stats.LockDir; dir != "" {
		locker, err := lock.NewFile(dir, 0)
		if err != nil {
			return err
		}
		c.Locker = locker
		return nil
	}
	c.Locker = lock.NewLocal()
	return nil
}

// initServices initializes the application services
func (c *Container) initServices() {
	sc := c.Config.Stats
	c.Statistics = app.NewStatisticsService(c.Studies, c.Plots, c.Variables,
		accumulator.Factory(sc.AccumulatorCapacity),
		app.StatisticsOptions{
			Locker:  c.Locker,
			Timeout: sc.Timeout,
			Metrics: c.Metrics,
			Logger:  c.Logger.With("component", "statistics"),
		})
	c.Observations = app.NewObservationService(c.Plots, c.Resolver, c.Metrics, c.Logger.With("component", "observations"))
	c.Imports = app.NewImportService(c.Plots, c.Variables, c.PhenotypeCache, c.Metrics, c.Logger.With("component", "import"))
	c.Batch = app.NewBatchStatistics(c.Statistics, sc.BatchConcurrency, c.Logger.With("component", "batch"))
}

// Close releases the store and cache connections
func (c *Container) Close() error {
	var firstErr error
	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			firstErr = err
		}
	}
	if c.Store != nil {
		if err := c.Store.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	c.Logger.Sync()
	return firstErr
}
