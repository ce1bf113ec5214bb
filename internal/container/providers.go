package container

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/garyjia/coop-approvals/internal/application/dispatcher"
	"github.com/garyjia/coop-approvals/internal/application/domainsync"
	"github.com/garyjia/coop-approvals/internal/application/port"
	"github.com/garyjia/coop-approvals/internal/application/service"
	"github.com/garyjia/coop-approvals/internal/application/workflow"
	"github.com/garyjia/coop-approvals/internal/config"
	"github.com/garyjia/coop-approvals/internal/domain/apperr"
	"github.com/garyjia/coop-approvals/internal/domain/entity"
	"github.com/garyjia/coop-approvals/internal/infrastructure/cache"
	"github.com/garyjia/coop-approvals/internal/infrastructure/notify"
	"github.com/garyjia/coop-approvals/internal/infrastructure/persistence/repository"
	"github.com/garyjia/coop-approvals/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/coop-approvals/internal/infrastructure/worker"
	"github.com/garyjia/coop-approvals/migrations"
	"github.com/garyjia/coop-approvals/pkg/database"
)

// DatabaseBundle holds the connection and the transaction manager over it
type DatabaseBundle struct {
	Raw       *database.DB
	TxManager *sqlite.DB
}

// RepositoryBundle groups all repositories
type RepositoryBundle struct {
	Requests        *repository.RequestRepository
	History         *repository.HistoryRepository
	Roles           *repository.RoleRepository
	Loans           *repository.LoanRepository
	Savings         *repository.SavingsRepository
	PersonalSavings *repository.PersonalSavingsRepository
	Accounts        *repository.AccountRepository
}

// ServiceBundle groups all application services
type ServiceBundle struct {
	Requests service.RequestService
	Metrics  service.MetricsService
	Roles    service.RoleService
}

// ProvideDatabase opens the database and applies pending migrations
func ProvideDatabase(cfg config.DatabaseConfig, logger *zap.Logger) (*DatabaseBundle, error) {
	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	raw, err := database.New(database.Config{
		Path:            cfg.Path,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	}, logger)
	if err != nil {
		return nil, err
	}

	if err := database.NewMigrator(raw, logger).Run(migrations.FS); err != nil {
		_ = raw.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &DatabaseBundle{Raw: raw, TxManager: sqlite.NewDB(raw.DB, logger)}, nil
}

// ProvideRepositories creates every repository over the bundle's connection
func ProvideRepositories(db *DatabaseBundle, logger *zap.Logger) *RepositoryBundle {
	sqlDB := db.Raw.DB
	return &RepositoryBundle{
		Requests:        repository.NewRequestRepository(sqlDB, logger),
		History:         repository.NewHistoryRepository(sqlDB, logger),
		Roles:           repository.NewRoleRepository(sqlDB, logger),
		Loans:           repository.NewLoanRepository(sqlDB, logger),
		Savings:         repository.NewSavingsRepository(sqlDB, logger),
		PersonalSavings: repository.NewPersonalSavingsRepository(sqlDB, logger),
		Accounts:        repository.NewAccountRepository(sqlDB, logger),
	}
}

// ProvideAdapters registers one domain adapter per module
func ProvideAdapters(repos *RepositoryBundle, tx port.TransactionManager, validate *validator.Validate) (*domainsync.Registry, error) {
	return domainsync.NewRegistry(
		domainsync.NewLoanAdapter(repos.Loans, tx, validate),
		domainsync.NewSavingsAdapter(repos.Savings, tx, validate),
		domainsync.NewPersonalSavingsAdapter(repos.PersonalSavings, tx, validate),
		domainsync.NewAccountAdapter(repos.Accounts, tx, validate),
	)
}

// ProvideRedis connects when redis is enabled and returns nil otherwise
func ProvideRedis(ctx context.Context, cfg config.RedisConfig, logger *zap.Logger) (*redis.Client, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	return cache.Connect(ctx, cache.RedisOptions{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB}, nil, logger)
}

// ProvideMetricsCache picks the redis cache when a client exists
func ProvideMetricsCache(client *redis.Client, cfg *config.Config, logger *zap.Logger) port.MetricsCache {
	if client != nil {
		return cache.NewRedisCache(client, cfg.Redis.KeyPrefix, cfg.Metrics.CacheTTL, logger)
	}
	return cache.NewMemoryCache(cfg.Metrics.CacheTTL)
}

// ProvideNotifier always logs and additionally publishes when redis is on
func ProvideNotifier(client *redis.Client, cfg config.RedisConfig, logger *zap.Logger) port.Notifier {
	n := notify.MultiNotifier{notify.NewLogNotifier(logger)}
	if client != nil {
		n = append(n, notify.NewRedisNotifier(client, cfg.NotificationChannel))
	}
	return n
}

// ProvideChains turns configured chains into workflow chains. Map keys are
// request types in any case.
func ProvideChains(cfg config.WorkflowConfig) workflow.Chains {
	convert := func(steps []config.ChainStepConfig) []workflow.ChainStep {
		out := make([]workflow.ChainStep, len(steps))
		for i, s := range steps {
			out[i] = workflow.ChainStep{Level: s.Level, Role: strings.ToUpper(s.Role)}
		}
		return out
	}

	byType := make(map[entity.RequestType][]workflow.ChainStep, len(cfg.Chains))
	for name, steps := range cfg.Chains {
		byType[entity.RequestType(strings.ToUpper(name))] = convert(steps)
	}
	return workflow.NewChains(convert(cfg.DefaultChain), byType)
}

// ServiceDeps bundles what the application services need
type ServiceDeps struct {
	Config     *config.Config
	Repos      *RepositoryBundle
	TxManager  port.TransactionManager
	Adapters   *domainsync.Registry
	Dispatcher dispatcher.Dispatcher
	Cache      port.MetricsCache
	Notifier   port.Notifier
	Validate   *validator.Validate
	Logger     *zap.Logger
}

// ProvideServices builds the engine and services and subscribes the event
// handlers. The engine resolves actors through the role service.
func ProvideServices(deps *ServiceDeps) (*ServiceBundle, workflow.WorkflowEngine) {
	log := &zapLoggerAdapter{logger: deps.Logger}

	roles := service.NewRoleService(deps.Repos.Roles, deps.Validate, log)
	engine := workflow.NewEngine(
		deps.Repos.Requests,
		deps.Repos.History,
		deps.TxManager,
		deps.Adapters,
		roles,
		workflow.WithDispatcher(deps.Dispatcher),
		workflow.WithLogger(log),
	)

	wf := deps.Config.Workflow
	requests := service.NewRequestService(
		deps.Repos.Requests,
		deps.Repos.History,
		deps.TxManager,
		deps.Adapters,
		engine,
		roles,
		ProvideChains(wf),
		deps.Validate,
		log,
		service.WithPriorityThresholds(service.PriorityThresholds{High: wf.Priority.HighAmount, Medium: wf.Priority.MediumAmount}),
		service.WithMaxPageLimit(wf.MaxPageLimit),
		service.WithEventDispatcher(deps.Dispatcher),
	)
	metrics := service.NewMetricsService(deps.Repos.Requests, deps.Adapters, deps.Cache, log)

	service.NewNotificationHandler(deps.Notifier, log).Register(deps.Dispatcher)
	service.NewMetricsInvalidator(metrics, log).Register(deps.Dispatcher)

	return &ServiceBundle{Requests: requests, Metrics: metrics, Roles: roles}, engine
}

// ProvideWorkers registers the periodic jobs whose interval is set
func ProvideWorkers(cfg *config.Config, services *ServiceBundle, engine workflow.WorkflowEngine, logger *zap.Logger) *worker.Manager {
	m := worker.NewManager(logger)
	if cfg.Metrics.RefreshInterval > 0 {
		m.Register(worker.NewMetricsRefresher(services.Metrics, cfg.Metrics.RefreshInterval, logger))
	}
	if cfg.Workflow.ReconcileInterval > 0 {
		m.Register(worker.NewReconciler(engine, cfg.Workflow.ReconcileInterval, cfg.Workflow.ReconcileBatch, logger))
	}
	return m
}

// BootstrapAdmins assigns the ADMIN role to the configured actors
func BootstrapAdmins(ctx context.Context, roles *repository.RoleRepository, actorIDs []string, logger *zap.Logger) error {
	for _, id := range actorIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if err := roles.AssignActor(ctx, id, "ADMIN"); err != nil {
			if apperr.KindOf(err) == apperr.KindNotFound {
				return fmt.Errorf("ADMIN role missing, cannot bootstrap %s: %w", id, err)
			}
			return err
		}
		logger.Info("Bootstrapped admin", zap.String("actor_id", id))
	}
	return nil
}
