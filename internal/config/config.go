package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/garyjia/coop-approvals/internal/domain/entity"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Logger   LoggerConfig   `mapstructure:"logger"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Workflow WorkflowConfig `mapstructure:"workflow"`
	Tracing  TracingConfig  `mapstructure:"tracing"`
	Roles    RolesConfig    `mapstructure:"roles"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"`
}

// RedisConfig holds the dashboard cache and notification bus connection
type RedisConfig struct {
	Enabled             bool   `mapstructure:"enabled"`
	Addr                string `mapstructure:"addr"`
	Password            string `mapstructure:"password"`
	DB                  int    `mapstructure:"db"`
	NotificationChannel string `mapstructure:"notification_channel"`
	KeyPrefix           string `mapstructure:"key_prefix"`
}

// MetricsConfig holds dashboard count settings
type MetricsConfig struct {
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`
	CacheTTL        time.Duration `mapstructure:"cache_ttl"`
}

// ChainStepConfig is one configured approval stage
type ChainStepConfig struct {
	Level int    `mapstructure:"level"`
	Role  string `mapstructure:"role"`
}

// PriorityConfig derives a priority from the content amount when none is given
type PriorityConfig struct {
	HighAmount   int64 `mapstructure:"high_amount"`
	MediumAmount int64 `mapstructure:"medium_amount"`
}

// WorkflowConfig holds approval chain and listing settings
type WorkflowConfig struct {
	DefaultChain      []ChainStepConfig            `mapstructure:"default_chain"`
	Chains            map[string][]ChainStepConfig `mapstructure:"chains"`
	MaxPageLimit      int                          `mapstructure:"max_page_limit"`
	ReconcileInterval time.Duration                `mapstructure:"reconcile_interval"`
	ReconcileBatch    int                          `mapstructure:"reconcile_batch"`
	Priority          PriorityConfig               `mapstructure:"priority"`
}

// TracingConfig holds OpenTelemetry settings
type TracingConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	ServiceName string `mapstructure:"service_name"`
	OutputFile  string `mapstructure:"output_file"`
}

// RolesConfig holds identity bootstrap settings
type RolesConfig struct {
	// BootstrapAdmins are assigned the ADMIN role at startup
	BootstrapAdmins []string `mapstructure:"bootstrap_admins"`
}

// Load loads configuration from file and environment variables. A .env file
// in the working directory is read first when present.
func Load(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("COOP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	bindEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	// Database defaults
	v.SetDefault("database.path", "data/approvals.db")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)

	// Logger defaults
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.output_path", "stdout")
	v.SetDefault("logger.format", "json")

	// Redis defaults
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.notification_channel", "coop:notifications")
	v.SetDefault("redis.key_prefix", "coop:metrics:")

	// Metrics defaults
	v.SetDefault("metrics.refresh_interval", time.Minute)
	v.SetDefault("metrics.cache_ttl", 5*time.Minute)

	// Workflow defaults
	v.SetDefault("workflow.max_page_limit", 100)
	v.SetDefault("workflow.reconcile_interval", 2*time.Minute)
	v.SetDefault("workflow.reconcile_batch", 200)

	// Tracing defaults
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", "coop-approvals")
}

// bindEnvVars binds the unprefixed variables deployments already set
func bindEnvVars(v *viper.Viper) {
	_ = v.BindEnv("redis.password", "COOP_REDIS_PASSWORD", "REDIS_PASSWORD")
	_ = v.BindEnv("database.path", "COOP_DATABASE_PATH", "DATABASE_PATH")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if strings.TrimSpace(c.Database.Path) == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("redis.addr is required when redis is enabled")
	}
	if c.Metrics.RefreshInterval < 0 || c.Workflow.ReconcileInterval < 0 {
		return fmt.Errorf("worker intervals must not be negative")
	}
	if c.Workflow.MaxPageLimit < 1 {
		return fmt.Errorf("workflow.max_page_limit must be positive")
	}

	if err := validateChain("workflow.default_chain", c.Workflow.DefaultChain); err != nil {
		return err
	}
	for name, chain := range c.Workflow.Chains {
		t := entity.RequestType(strings.ToUpper(name))
		if !t.Valid() {
			return fmt.Errorf("workflow.chains: unknown request type %s", name)
		}
		if len(chain) == 0 {
			return fmt.Errorf("workflow.chains.%s is empty", name)
		}
		if err := validateChain("workflow.chains."+name, chain); err != nil {
			return err
		}
	}

	p := c.Workflow.Priority
	if p.HighAmount < 0 || p.MediumAmount < 0 {
		return fmt.Errorf("workflow.priority amounts must not be negative")
	}
	if p.HighAmount > 0 && p.MediumAmount > p.HighAmount {
		return fmt.Errorf("workflow.priority.medium_amount exceeds high_amount")
	}
	return nil
}

func validateChain(key string, chain []ChainStepConfig) error {
	prev := 0
	for i, step := range chain {
		if step.Level < entity.MinApprovalLevel || step.Level > entity.MaxApprovalLevel {
			return fmt.Errorf("%s[%d]: level %d outside %d-%d", key, i, step.Level, entity.MinApprovalLevel, entity.MaxApprovalLevel)
		}
		if i > 0 && step.Level <= prev {
			return fmt.Errorf("%s[%d]: levels must be strictly increasing", key, i)
		}
		if strings.TrimSpace(step.Role) == "" {
			return fmt.Errorf("%s[%d]: role is required", key, i)
		}
		prev = step.Level
	}
	return nil
}
