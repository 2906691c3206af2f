package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Environment    string               `mapstructure:"environment"`
	LogLevel       string               `mapstructure:"log_level"`
	Server         ServerConfig         `mapstructure:"server"`
	Database       DatabaseConfig       `mapstructure:"database"`
	Redis          RedisConfig          `mapstructure:"redis"`
	JWT            JWTConfig            `mapstructure:"jwt"`
	Scheduler      SchedulerConfig      `mapstructure:"scheduler"`
	Signal         SignalConfig         `mapstructure:"signal"`
	Pulse          PulseConfig          `mapstructure:"pulse"`
	Exchange       ExchangeConfig       `mapstructure:"exchange"`
	Reconciliation ReconciliationConfig `mapstructure:"reconciliation"`
	Email          EmailConfig          `mapstructure:"email"`
	Events         EventsConfig         `mapstructure:"events"`
	Tracing        TracingConfig        `mapstructure:"tracing"`
	Secrets        SecretsConfig        `mapstructure:"secrets"`
}

type ServerConfig struct {
	Port            int      `mapstructure:"port"`
	Host            string   `mapstructure:"host"`
	ReadTimeout     int      `mapstructure:"read_timeout"`
	WriteTimeout    int      `mapstructure:"write_timeout"`
	AllowedOrigins  []string `mapstructure:"allowed_origins"`
	RateLimitPerMin int      `mapstructure:"rate_limit_per_min"`

	// Enforced across replicas through Redis, only when Redis is enabled
	UserRateLimitPerMin    int `mapstructure:"user_rate_limit_per_min"`
	ExecuteRateLimitPerMin int `mapstructure:"execute_rate_limit_per_min"`
}

type DatabaseConfig struct {
	URL             string `mapstructure:"url"`
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	Name            string `mapstructure:"name"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	SSLMode         string `mapstructure:"ssl_mode"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`
	QueryTimeout    int    `mapstructure:"query_timeout"`
	MigrationsPath  string `mapstructure:"migrations_path"`
}

type RedisConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	Password   string `mapstructure:"password"`
	DB         int    `mapstructure:"db"`
	MaxRetries int    `mapstructure:"max_retries"`
	PoolSize   int    `mapstructure:"pool_size"`
}

type JWTConfig struct {
	Secret    string `mapstructure:"secret"`
	AccessTTL int    `mapstructure:"access_token_ttl"`
	Issuer    string `mapstructure:"issuer"`
}

// SchedulerConfig controls scan job claiming and the privileged tick endpoint
type SchedulerConfig struct {
	SharedSecret        string `mapstructure:"shared_secret"`
	InternalTickEnabled bool   `mapstructure:"internal_tick_enabled"`
	TickCron            string `mapstructure:"tick_cron"`
	LockTTLSeconds      int    `mapstructure:"lock_ttl_seconds"`
	BatchSize           int    `mapstructure:"batch_size"`
	DefaultTimezone     string `mapstructure:"default_timezone"`
	JobTimeoutSeconds   int    `mapstructure:"job_timeout_seconds"`
}

// LockTTL returns the claim lease duration
func (c SchedulerConfig) LockTTL() time.Duration {
	return time.Duration(c.LockTTLSeconds) * time.Second
}

// SignalConfig points at the external signal generator
type SignalConfig struct {
	Mode           string `mapstructure:"mode"` // "http" or "rules"
	BaseURL        string `mapstructure:"base_url"`
	APIKey         string `mapstructure:"api_key"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// PulseConfig points at the external market pulse generator
type PulseConfig struct {
	BaseURL         string `mapstructure:"base_url"`
	APIKey          string `mapstructure:"api_key"`
	TimeoutSeconds  int    `mapstructure:"timeout_seconds"`
	CacheTTLSeconds int    `mapstructure:"cache_ttl_seconds"`
	MaxRetries      int    `mapstructure:"max_retries"`
}

// ExchangeConfig selects and configures the exchange venue
type ExchangeConfig struct {
	Venue                  string `mapstructure:"venue"` // "rest" or "paper"
	BaseURL                string `mapstructure:"base_url"`
	APIKey                 string `mapstructure:"api_key"`
	APISecret              string `mapstructure:"api_secret"`
	Scope                  string `mapstructure:"scope"` // "trading" or "read_only"
	TimeoutSeconds         int    `mapstructure:"timeout_seconds"`
	SubmittingGraceSeconds int    `mapstructure:"submitting_grace_seconds"`
	QuoteCurrency          string `mapstructure:"quote_currency"`
	PaperCash              string `mapstructure:"paper_cash"`
}

// SubmittingGrace is how long a PENDING or SUBMITTING execution is treated as in flight
func (c ExchangeConfig) SubmittingGrace() time.Duration {
	return time.Duration(c.SubmittingGraceSeconds) * time.Second
}

// ReconciliationConfig controls the stale execution sweep
type ReconciliationConfig struct {
	Enabled           bool   `mapstructure:"enabled"`
	Schedule          string `mapstructure:"schedule"`
	StaleAfterSeconds int    `mapstructure:"stale_after_seconds"`
	BatchSize         int    `mapstructure:"batch_size"`
}

type EmailConfig struct {
	Provider  string `mapstructure:"provider"` // "sendgrid" or "" for log only
	APIKey    string `mapstructure:"api_key"`
	FromEmail string `mapstructure:"from_email"`
	FromName  string `mapstructure:"from_name"`
	BaseURL   string `mapstructure:"base_url"`
	Locale    string `mapstructure:"locale"`
}

// EventsConfig configures the lifecycle event publisher
type EventsConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

type TracingConfig struct {
	Enabled      bool    `mapstructure:"enabled"`
	CollectorURL string  `mapstructure:"collector_url"`
	SampleRate   float64 `mapstructure:"sample_rate"`
}

// SecretsConfig selects where credentials come from. With "aws" any credential left
// empty by the config file and environment is read from AWS Secrets Manager.
type SecretsConfig struct {
	Provider        string `mapstructure:"provider"` // "env" or "aws"
	Region          string `mapstructure:"region"`
	Prefix          string `mapstructure:"prefix"`
	CacheTTLSeconds int    `mapstructure:"cache_ttl_seconds"`
}

// Load loads configuration from environment variables and config files
func Load() (*Config, error) {
	// Load .env file if it exists (ignore errors if file doesn't exist)
	godotenv.Load()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath(".")

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	overrideFromEnv()

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if config.Database.URL == "" {
		config.Database.URL = fmt.Sprintf(
			"postgres://%s:%s@%s:%d/%s?sslmode=%s",
			config.Database.User,
			config.Database.Password,
			config.Database.Host,
			config.Database.Port,
			config.Database.Name,
			config.Database.SSLMode,
		)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("environment", "development")
	viper.SetDefault("log_level", "info")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.read_timeout", 30)
	viper.SetDefault("server.write_timeout", 30)
	viper.SetDefault("server.allowed_origins", []string{"*"})
	viper.SetDefault("server.rate_limit_per_min", 120)
	viper.SetDefault("server.user_rate_limit_per_min", 60)
	viper.SetDefault("server.execute_rate_limit_per_min", 10)

	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.name", "pilot_service")
	viper.SetDefault("database.user", "postgres")
	viper.SetDefault("database.ssl_mode", "disable")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.conn_max_lifetime", 300)
	viper.SetDefault("database.query_timeout", 30)
	viper.SetDefault("database.migrations_path", "migrations")

	viper.SetDefault("redis.enabled", false)
	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.max_retries", 3)
	viper.SetDefault("redis.pool_size", 10)

	viper.SetDefault("jwt.access_token_ttl", 3600)
	viper.SetDefault("jwt.issuer", "pilot_service")

	viper.SetDefault("scheduler.internal_tick_enabled", false)
	viper.SetDefault("scheduler.tick_cron", "0 * * * * *") // every minute, seconds field first
	viper.SetDefault("scheduler.lock_ttl_seconds", 300)
	viper.SetDefault("scheduler.batch_size", 50)
	viper.SetDefault("scheduler.default_timezone", "Europe/Berlin")
	viper.SetDefault("scheduler.job_timeout_seconds", 120)

	viper.SetDefault("signal.mode", "http")
	viper.SetDefault("signal.timeout_seconds", 20)

	viper.SetDefault("pulse.timeout_seconds", 10)
	viper.SetDefault("pulse.cache_ttl_seconds", 60)
	viper.SetDefault("pulse.max_retries", 2)

	viper.SetDefault("exchange.venue", "paper")
	viper.SetDefault("exchange.scope", "trading")
	viper.SetDefault("exchange.timeout_seconds", 10)
	viper.SetDefault("exchange.submitting_grace_seconds", 120)
	viper.SetDefault("exchange.quote_currency", "EUR")
	viper.SetDefault("exchange.paper_cash", "10000")

	viper.SetDefault("reconciliation.enabled", true)
	viper.SetDefault("reconciliation.schedule", "30 */2 * * * *") // every two minutes
	viper.SetDefault("reconciliation.stale_after_seconds", 300)
	viper.SetDefault("reconciliation.batch_size", 50)

	viper.SetDefault("email.provider", "")
	viper.SetDefault("email.from_email", "no-reply@tradepilot.app")
	viper.SetDefault("email.from_name", "Trade Pilot")
	viper.SetDefault("email.base_url", "http://localhost:3000")
	viper.SetDefault("email.locale", "de-DE")

	viper.SetDefault("events.enabled", false)
	viper.SetDefault("events.topic", "pilot.lifecycle")

	viper.SetDefault("tracing.enabled", false)
	viper.SetDefault("tracing.collector_url", "localhost:4317")
	viper.SetDefault("tracing.sample_rate", 0.1)

	viper.SetDefault("secrets.provider", "env")
	viper.SetDefault("secrets.region", "eu-central-1")
	viper.SetDefault("secrets.prefix", "pilot/")
	viper.SetDefault("secrets.cache_ttl_seconds", 300)
}

func overrideFromEnv() {
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			viper.Set("server.port", p)
		}
	}

	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		viper.Set("database.url", dbURL)
	}

	if jwtSecret := os.Getenv("JWT_SECRET"); jwtSecret != "" {
		viper.Set("jwt.secret", jwtSecret)
	}

	if secret := os.Getenv("SCHEDULER_SHARED_SECRET"); secret != "" {
		viper.Set("scheduler.shared_secret", secret)
	}

	if redisURL := os.Getenv("REDIS_HOST"); redisURL != "" {
		viper.Set("redis.host", redisURL)
		viper.Set("redis.enabled", true)
	}

	if key := os.Getenv("EXCHANGE_API_KEY"); key != "" {
		viper.Set("exchange.api_key", key)
	}
	if secret := os.Getenv("EXCHANGE_API_SECRET"); secret != "" {
		viper.Set("exchange.api_secret", secret)
	}

	if key := os.Getenv("SIGNAL_API_KEY"); key != "" {
		viper.Set("signal.api_key", key)
	}
	if key := os.Getenv("PULSE_API_KEY"); key != "" {
		viper.Set("pulse.api_key", key)
	}

	if sendgridKey := os.Getenv("SENDGRID_API_KEY"); sendgridKey != "" {
		viper.Set("email.api_key", sendgridKey)
		viper.Set("email.provider", "sendgrid")
	}

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		var list []string
		for _, part := range strings.Split(brokers, ",") {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				list = append(list, trimmed)
			}
		}
		if len(list) > 0 {
			viper.Set("events.brokers", list)
			viper.Set("events.enabled", true)
		}
	}
}

// CheckSecrets reports the first required credential that is still missing
func (c *Config) CheckSecrets() error {
	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT secret is required")
	}
	if c.Scheduler.SharedSecret == "" {
		return fmt.Errorf("scheduler shared secret is required")
	}
	return nil
}

func validate(config *Config) error {
	switch config.Secrets.Provider {
	case "", "env":
		if err := config.CheckSecrets(); err != nil {
			return err
		}
	case "aws":
		// resolved after load, see di.ResolveSecrets
	default:
		return fmt.Errorf("unknown secrets provider %q", config.Secrets.Provider)
	}

	if config.Database.URL == "" && (config.Database.Host == "" || config.Database.Name == "") {
		return fmt.Errorf("database configuration is incomplete")
	}

	switch config.Exchange.Venue {
	case "paper":
	case "rest":
		if config.Exchange.BaseURL == "" {
			return fmt.Errorf("exchange base url is required for the rest venue")
		}
	default:
		return fmt.Errorf("unknown exchange venue %q", config.Exchange.Venue)
	}

	switch config.Exchange.Scope {
	case "trading", "read_only":
	default:
		return fmt.Errorf("unknown exchange credential scope %q", config.Exchange.Scope)
	}

	if config.Signal.Mode == "http" && config.Signal.BaseURL == "" {
		return fmt.Errorf("signal base url is required in http mode")
	}

	if config.Pulse.BaseURL == "" {
		return fmt.Errorf("pulse base url is required")
	}

	if _, err := time.LoadLocation(config.Scheduler.DefaultTimezone); err != nil {
		return fmt.Errorf("invalid scheduler default timezone: %w", err)
	}

	if config.Events.Enabled && len(config.Events.Brokers) == 0 {
		return fmt.Errorf("events enabled but no brokers configured")
	}

	return nil
}
