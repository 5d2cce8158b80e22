// Package labelflow provides a top-level entry point that assembles the
// workflow runtime (database, execution engine, service) from configuration.
//
// Usage:
//
//	import "github.com/BaSui01/labelflow"
//
//	rt, err := labelflow.New(ctx, cfg, labelflow.WithLogger(logger))
//	if err != nil { ... }
//	defer rt.Close(ctx)
//
//	exec, err := rt.Engine.CreateExecution(ctx, workflowID, workflow.ExecutionOptions{})
//	err = rt.Engine.Run(ctx, exec.ExecutionID)
//
// With engine.lock_backend set to "redis" the runtime connects to Redis and
// uses it both for execution locks and for the status cache.
package labelflow

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/BaSui01/labelflow/config"
	"github.com/BaSui01/labelflow/internal/cache"
	"github.com/BaSui01/labelflow/internal/database"
	"github.com/BaSui01/labelflow/models"
	"github.com/BaSui01/labelflow/workflow"
)

// Runtime bundles everything needed to create and run executions.
type Runtime struct {
	DB      *database.PoolManager
	Engine  *workflow.Engine
	Service *workflow.Service
	// Cache is nil unless the redis lock backend is configured.
	Cache *cache.Manager

	logger *zap.Logger
	ownsDB bool
}

// Option configures the runtime created by [New].
type Option func(*options)

type options struct {
	logger  *zap.Logger
	metrics workflow.Metrics
	db      *database.PoolManager
}

// WithLogger sets a custom zap logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithMetrics records engine metrics on m.
func WithMetrics(m workflow.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithDatabase uses an already open pool instead of opening cfg.Database.
// The caller keeps ownership of db.
func WithDatabase(db *database.PoolManager) Option {
	return func(o *options) { o.db = db }
}

// New opens the database (running AutoMigrate when configured), connects the
// lock backend and builds the engine and service.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Runtime, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}

	rt := &Runtime{DB: o.db, logger: o.logger}
	if rt.DB == nil {
		db, err := openDatabase(cfg.Database, o.logger)
		if err != nil {
			return nil, err
		}
		rt.DB = db
		rt.ownsDB = true
	}

	var engineOpts []workflow.Option
	if o.metrics != nil {
		engineOpts = append(engineOpts, workflow.WithMetrics(o.metrics))
	}
	if cfg.Engine.LockBackend == config.LockBackendRedis {
		m, err := cache.NewManager(ctx, cfg.Redis, o.logger)
		if err != nil {
			rt.closeDB()
			return nil, fmt.Errorf("redis lock backend: %w", err)
		}
		rt.Cache = m
		engineOpts = append(engineOpts,
			workflow.WithLocker(m, config.LockBackendRedis),
			workflow.WithStatusCache(m),
		)
	}

	rt.Engine = workflow.NewEngine(rt.DB, cfg.Engine, cfg.Storage, o.logger, engineOpts...)
	rt.Service = workflow.NewService(rt.DB, cfg.Storage, o.logger)

	o.logger.Info("workflow runtime initialized",
		zap.String("lock_backend", cfg.Engine.LockBackend),
		zap.Int("workers", cfg.Engine.Workers),
		zap.Int("queue_size", cfg.Engine.QueueSize),
	)
	return rt, nil
}

// Close drains the engine and releases the connections the runtime opened.
func (rt *Runtime) Close(ctx context.Context) error {
	var errs []error
	if err := rt.Engine.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("engine: %w", err))
	}
	if rt.Cache != nil {
		if err := rt.Cache.Close(); err != nil {
			errs = append(errs, fmt.Errorf("cache: %w", err))
		}
	}
	if err := rt.closeDB(); err != nil {
		errs = append(errs, fmt.Errorf("database: %w", err))
	}
	return errors.Join(errs...)
}

func (rt *Runtime) closeDB() error {
	if !rt.ownsDB {
		return nil
	}
	return rt.DB.Close()
}

func openDatabase(cfg config.DatabaseConfig, logger *zap.Logger) (*database.PoolManager, error) {
	pm, err := database.Open(cfg, logger)
	if err != nil {
		return nil, err
	}
	if cfg.AutoMigrate {
		if err := models.InitDatabase(pm.DB()); err != nil {
			_ = pm.Close()
			return nil, fmt.Errorf("auto-migrate: %w", err)
		}
		logger.Info("database schema migrated")
	}
	return pm, nil
}
