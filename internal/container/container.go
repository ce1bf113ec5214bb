// Package container wires the approval service together and owns its
// lifecycle: ordered initialization and reverse-order teardown.
package container

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/garyjia/coop-approvals/internal/application/dispatcher"
	"github.com/garyjia/coop-approvals/internal/application/port"
	"github.com/garyjia/coop-approvals/internal/application/workflow"
	"github.com/garyjia/coop-approvals/internal/config"
	"github.com/garyjia/coop-approvals/internal/infrastructure/tracing"
	"github.com/garyjia/coop-approvals/internal/infrastructure/worker"
	"github.com/garyjia/coop-approvals/pkg/utils"
)

// Container manages all application dependencies and lifecycle
type Container struct {
	config *config.Config
	logger *zap.Logger

	// Infrastructure
	db           *DatabaseBundle
	repositories *RepositoryBundle
	redis        *redis.Client
	cache        port.MetricsCache
	notifier     port.Notifier
	tracingStop  tracing.ShutdownFunc

	// Application
	dispatcher dispatcher.Dispatcher
	engine     workflow.WorkflowEngine
	services   *ServiceBundle

	workers *worker.Manager

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	ready  atomic.Bool
	closed atomic.Bool
}

// HealthStatus represents the health of all components
type HealthStatus struct {
	Overall    bool                       `json:"overall"`
	Components map[string]ComponentHealth `json:"components"`
}

// ComponentHealth represents health of a single component
type ComponentHealth struct {
	Healthy bool   `json:"healthy"`
	Message string `json:"message,omitempty"`
}

// NewContainer creates a new container. Call Start to initialize it.
func NewContainer(cfg *config.Config, logger *zap.Logger) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &Container{config: cfg, logger: logger}, nil
}

// Start initializes components in dependency order:
// 1. Tracing
// 2. Database, migrations and repositories
// 3. Redis, metrics cache and notifier
// 4. Dispatcher, workflow engine and services
// 5. Workers
func (c *Container) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container has been closed")
	}
	if c.ready.Load() {
		return fmt.Errorf("container already started")
	}

	c.ctx, c.cancel = context.WithCancel(ctx)
	c.logger.Info("Starting container initialization")

	stop, err := tracing.Setup(tracing.Config{
		Enabled:     c.config.Tracing.Enabled,
		ServiceName: c.config.Tracing.ServiceName,
		OutputFile:  c.config.Tracing.OutputFile,
	}, c.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	c.tracingStop = stop

	if err := c.initDatabase(); err != nil {
		c.teardown()
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	c.logger.Info("Database initialized")

	if err := c.initRedis(); err != nil {
		c.teardown()
		return fmt.Errorf("failed to initialize redis: %w", err)
	}

	if err := c.initApplication(); err != nil {
		c.teardown()
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	c.logger.Info("Application services initialized")

	c.workers = ProvideWorkers(c.config, c.services, c.engine, c.logger)
	if err := c.workers.StartAll(c.ctx); err != nil {
		c.teardown()
		return fmt.Errorf("failed to start workers: %w", err)
	}

	c.ready.Store(true)
	c.logger.Info("Container started successfully")
	return nil
}

func (c *Container) initDatabase() error {
	db, err := ProvideDatabase(c.config.Database, c.logger)
	if err != nil {
		return err
	}
	c.db = db
	c.repositories = ProvideRepositories(db, c.logger)

	return BootstrapAdmins(c.ctx, c.repositories.Roles, c.config.Roles.BootstrapAdmins, c.logger)
}

func (c *Container) initRedis() error {
	client, err := ProvideRedis(c.ctx, c.config.Redis, c.logger)
	if err != nil {
		return err
	}
	c.redis = client
	c.cache = ProvideMetricsCache(client, c.config, c.logger)
	c.notifier = ProvideNotifier(client, c.config.Redis, c.logger)
	return nil
}

func (c *Container) initApplication() error {
	validate := utils.NewValidator()

	adapters, err := ProvideAdapters(c.repositories, c.db.TxManager, validate)
	if err != nil {
		return err
	}

	c.dispatcher = dispatcher.NewDispatcher(dispatcher.WithLogger(&zapLoggerAdapter{logger: c.logger}))
	c.services, c.engine = ProvideServices(&ServiceDeps{
		Config:     c.config,
		Repos:      c.repositories,
		TxManager:  c.db.TxManager,
		Adapters:   adapters,
		Dispatcher: c.dispatcher,
		Cache:      c.cache,
		Notifier:   c.notifier,
		Validate:   validate,
		Logger:     c.logger,
	})
	return nil
}

// Close shuts components down in reverse order
func (c *Container) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container already closed")
	}
	c.logger.Info("Closing container")

	errs := c.teardown()
	c.closed.Store(true)
	c.ready.Store(false)

	if len(errs) > 0 {
		c.logger.Error("Container closed with errors", zap.Int("error_count", len(errs)))
		return fmt.Errorf("container closed with %d errors", len(errs))
	}
	c.logger.Info("Container closed successfully")
	return nil
}

func (c *Container) teardown() []error {
	var errs []error

	if c.cancel != nil {
		c.cancel()
	}

	if c.workers != nil {
		if err := c.workers.StopAll(); err != nil {
			c.logger.Error("Failed to stop workers", zap.Error(err))
			errs = append(errs, fmt.Errorf("stop workers: %w", err))
		}
		c.workers = nil
	}

	// waits for in-flight notifications before their sinks close
	if c.dispatcher != nil {
		if err := c.dispatcher.Close(); err != nil {
			c.logger.Error("Failed to close dispatcher", zap.Error(err))
			errs = append(errs, fmt.Errorf("close dispatcher: %w", err))
		}
		c.dispatcher = nil
	}

	if c.redis != nil {
		if err := c.redis.Close(); err != nil {
			c.logger.Error("Failed to close redis", zap.Error(err))
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
		c.redis = nil
	}

	if c.db != nil {
		if err := c.db.Raw.Close(); err != nil {
			c.logger.Error("Failed to close database", zap.Error(err))
			errs = append(errs, fmt.Errorf("close database: %w", err))
		}
		c.db = nil
	}

	if c.tracingStop != nil {
		if err := c.tracingStop(context.Background()); err != nil {
			c.logger.Error("Failed to stop tracing", zap.Error(err))
			errs = append(errs, fmt.Errorf("stop tracing: %w", err))
		}
		c.tracingStop = nil
	}
	return errs
}

// Ready returns true when all components are initialized
func (c *Container) Ready() bool {
	return c.ready.Load()
}

// Health pings the stores the service depends on
func (c *Container) Health(ctx context.Context) *HealthStatus {
	c.mu.Lock()
	defer c.mu.Unlock()

	status := &HealthStatus{Overall: true, Components: make(map[string]ComponentHealth)}
	check := func(name string, err error) {
		if err != nil {
			status.Components[name] = ComponentHealth{Message: err.Error()}
			status.Overall = false
			return
		}
		status.Components[name] = ComponentHealth{Healthy: true}
	}

	if c.db == nil {
		check("database", fmt.Errorf("not initialized"))
	} else {
		check("database", c.db.Raw.PingContext(ctx))
	}
	if c.redis != nil {
		check("redis", c.redis.Ping(ctx).Err())
	}
	if c.workers == nil || !c.workers.IsRunning() {
		check("workers", fmt.Errorf("not running"))
	} else {
		status.Components["workers"] = ComponentHealth{Healthy: true, Message: fmt.Sprintf("worker count: %d", c.workers.Count())}
	}
	return status
}

// Services returns all application services
func (c *Container) Services() *ServiceBundle {
	return c.services
}

// WorkflowEngine returns the workflow engine
func (c *Container) WorkflowEngine() workflow.WorkflowEngine {
	return c.engine
}

// Dispatcher returns the event dispatcher
func (c *Container) Dispatcher() dispatcher.Dispatcher {
	return c.dispatcher
}

// Repositories returns all repositories
func (c *Container) Repositories() *RepositoryBundle {
	return c.repositories
}

// Logger returns the container's logger
func (c *Container) Logger() *zap.Logger {
	return c.logger
}

// AppLogger returns the key/value logger handed to the application layer
func (c *Container) AppLogger() port.Logger {
	return &zapLoggerAdapter{logger: c.logger}
}

// Config returns the container's configuration
func (c *Container) Config() *config.Config {
	return c.config
}

// zapLoggerAdapter adapts zap.Logger to the key/value Logger interfaces of
// the application layer
type zapLoggerAdapter struct {
	logger *zap.Logger
}

func (a *zapLoggerAdapter) Info(msg string, keysAndValues ...interface{}) {
	a.logger.Info(msg, convertToZapFields(keysAndValues...)...)
}

func (a *zapLoggerAdapter) Error(msg string, keysAndValues ...interface{}) {
	a.logger.Error(msg, convertToZapFields(keysAndValues...)...)
}

// convertToZapFields converts key-value pairs to zap fields. Errors keep
// zap's error encoding.
func convertToZapFields(keysAndValues ...interface{}) []zap.Field {
	fields := make([]zap.Field, 0, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			continue
		}
		if err, isErr := keysAndValues[i+1].(error); isErr {
			fields = append(fields, zap.NamedError(key, err))
			continue
		}
		fields = append(fields, zap.Any(key, keysAndValues[i+1]))
	}
	return fields
}
