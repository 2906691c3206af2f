package di

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/text/language"

	"github.com/tradepilot/pilot_service/internal/adapters/exchange"
	"github.com/tradepilot/pilot_service/internal/adapters/pulse"
	"github.com/tradepilot/pilot_service/internal/adapters/signal"
	"github.com/tradepilot/pilot_service/internal/domain/repositories"
	"github.com/tradepilot/pilot_service/internal/domain/services/events"
	"github.com/tradepilot/pilot_service/internal/domain/services/execution"
	"github.com/tradepilot/pilot_service/internal/domain/services/notification"
	"github.com/tradepilot/pilot_service/internal/domain/services/policy"
	"github.com/tradepilot/pilot_service/internal/domain/services/proposal"
	"github.com/tradepilot/pilot_service/internal/domain/services/scan"
	"github.com/tradepilot/pilot_service/internal/domain/services/trading"
	"github.com/tradepilot/pilot_service/internal/infrastructure/adapters"
	"github.com/tradepilot/pilot_service/internal/infrastructure/cache"
	"github.com/tradepilot/pilot_service/internal/infrastructure/config"
	"github.com/tradepilot/pilot_service/internal/infrastructure/database"
	"github.com/tradepilot/pilot_service/internal/infrastructure/messaging"
	infrarepo "github.com/tradepilot/pilot_service/internal/infrastructure/repositories"
	"github.com/tradepilot/pilot_service/pkg/logger"
	"github.com/tradepilot/pilot_service/pkg/ratelimit"
	"github.com/tradepilot/pilot_service/pkg/retry"
	"github.com/tradepilot/pilot_service/pkg/security"
)

// ServiceVersion is reported by the health endpoint and trace resources
const ServiceVersion = "1.0.0"

// Container holds all application dependencies
type Container struct {
	Config  *config.Config
	DB      *sql.DB
	SQLX    *sqlx.DB
	Logger  *logger.Logger
	ZapLog  *zap.Logger
	Version string

	// Repositories
	PolicyRepo      repositories.PolicyRepository
	ScanJobRepo     repositories.ScanJobRepository
	SnapshotRepo    repositories.SnapshotRepository
	ProposalRepo    repositories.ProposalRepository
	ExecutionRepo   repositories.ExecutionRepository
	TradingFlagRepo repositories.TradingFlagRepository
	IdempotencyRepo *infrarepo.IdempotencyRepository

	// External collaborators
	RedisClient     cache.RedisClient
	RateLimiter     *ratelimit.TieredLimiter
	Pulse           scan.Pulse
	SignalGenerator scan.SignalGenerator
	Exchange        exchange.Gateway
	Publisher       events.Publisher
	Mailer          notification.Mailer

	// Services
	PolicyService        *policy.Service
	ProposalService      *proposal.Service
	TradingService       *trading.Service
	NotificationService  *notification.Service
	ScanScheduler        *scan.Scheduler
	ExecutionCoordinator *execution.Coordinator

	kafkaPublisher *messaging.KafkaPublisher
}

// NewContainer creates a new dependency injection container
func NewContainer(cfg *config.Config, db *sql.DB, log *logger.Logger) (*Container, error) {
	zapLog := log.Zap()
	sqlxDB := database.NewSQLX(db)

	location, err := time.LoadLocation(cfg.Scheduler.DefaultTimezone)
	if err != nil {
		return nil, fmt.Errorf("failed to load default timezone: %w", err)
	}

	c := &Container{
		Config:  cfg,
		DB:      db,
		SQLX:    sqlxDB,
		Logger:  log,
		ZapLog:  zapLog,
		Version: ServiceVersion,

		PolicyRepo:      infrarepo.NewPolicyRepository(sqlxDB, zapLog),
		ScanJobRepo:     infrarepo.NewScanJobRepository(sqlxDB, zapLog),
		SnapshotRepo:    infrarepo.NewSnapshotRepository(sqlxDB),
		ProposalRepo:    infrarepo.NewProposalRepository(sqlxDB, zapLog),
		ExecutionRepo:   infrarepo.NewExecutionRepository(sqlxDB, zapLog),
		TradingFlagRepo: infrarepo.NewTradingFlagRepository(sqlxDB),
		IdempotencyRepo: infrarepo.NewIdempotencyRepository(sqlxDB, zapLog),
	}

	if cfg.Redis.Enabled {
		redisClient, err := cache.NewRedisClient(&cfg.Redis, zapLog)
		if err != nil {
			// the pulse cache is an optimisation, run without it
			log.Warn("Redis unavailable, pulse cache disabled", "error", err)
		} else {
			c.RedisClient = redisClient
			c.RateLimiter = ratelimit.NewTieredLimiter(redisClient.Client(), ratelimit.TieredConfig{
				UserLimit:  int64(cfg.Server.UserRateLimitPerMin),
				UserWindow: time.Minute,
				EndpointLimits: map[string]ratelimit.EndpointLimit{
					"/api/v1/proposals/:id/execute": {Limit: int64(cfg.Server.ExecuteRateLimitPerMin), Window: time.Minute},
					"/api/v1/scan/force":            {Limit: int64(cfg.Server.ExecuteRateLimitPerMin), Window: time.Minute},
				},
			}, zapLog)
		}
	}

	c.Pulse = c.buildPulse()
	c.SignalGenerator = c.buildSignalGenerator()

	gateway, err := c.buildExchange()
	if err != nil {
		return nil, err
	}
	c.Exchange = gateway

	c.Publisher = c.buildPublisher()

	mailer, err := adapters.NewEmailService(zapLog, adapters.EmailServiceConfig{
		Provider:  cfg.Email.Provider,
		APIKey:    cfg.Email.APIKey,
		FromEmail: cfg.Email.FromEmail,
		FromName:  cfg.Email.FromName,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create email service: %w", err)
	}
	c.Mailer = mailer

	locale, err := language.Parse(cfg.Email.Locale)
	if err != nil {
		log.Warn("Unknown email locale, falling back to German", "locale", cfg.Email.Locale)
		locale = language.German
	}

	c.NotificationService = notification.NewService(c.Mailer, locale, log)
	c.TradingService = trading.NewService(c.TradingFlagRepo, log)
	c.PolicyService = policy.NewService(c.PolicyRepo, c.ScanJobRepo, cfg.Scheduler.DefaultTimezone, log)
	c.ProposalService = proposal.NewService(c.ProposalRepo, c.PolicyRepo, c.TradingFlagRepo, c.Publisher, log)

	c.ScanScheduler = scan.NewScheduler(scan.Deps{
		Jobs:      c.ScanJobRepo,
		Policies:  c.PolicyRepo,
		Snapshots: c.SnapshotRepo,
		Proposals: c.ProposalService,
		Pulse:     c.Pulse,
		Signal:    c.SignalGenerator,
		Notifier:  c.NotificationService,
		Publisher: c.Publisher,
	}, scan.Config{
		LockTTL:         cfg.Scheduler.LockTTL(),
		BatchSize:       cfg.Scheduler.BatchSize,
		JobTimeout:      time.Duration(cfg.Scheduler.JobTimeoutSeconds) * time.Second,
		SignalTimeout:   time.Duration(cfg.Signal.TimeoutSeconds) * time.Second,
		DefaultLocation: location,
		Quote:           cfg.Exchange.QuoteCurrency,
	}, log)

	c.ExecutionCoordinator = execution.NewCoordinator(execution.Deps{
		Proposals:  c.ProposalRepo,
		Executions: c.ExecutionRepo,
		Policies:   c.PolicyRepo,
		Jobs:       c.ScanJobRepo,
		Snapshots:  c.SnapshotRepo,
		Flags:      c.TradingFlagRepo,
		Gateway:    c.Exchange,
		Publisher:  c.Publisher,
		Notifier:   c.NotificationService,
	}, execution.Config{
		SubmittingGrace: cfg.Exchange.SubmittingGrace(),
		ExchangeTimeout: time.Duration(cfg.Exchange.TimeoutSeconds) * time.Second,
		DefaultLocation: location,
	}, log)

	log.Info("Container initialized",
		"exchange_venue", cfg.Exchange.Venue,
		"exchange_scope", cfg.Exchange.Scope,
		"signal_mode", cfg.Signal.Mode,
		"pulse_cache", c.RedisClient != nil,
		"events", cfg.Events.Enabled)

	return c, nil
}

func (c *Container) buildPulse() scan.Pulse {
	cfg := c.Config.Pulse
	client := pulse.NewClient(pulse.Config{
		BaseURL: cfg.BaseURL,
		APIKey:  cfg.APIKey,
		Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		Retry:   pulseRetryPolicy(cfg),
	}, c.ZapLog)

	if c.RedisClient == nil {
		return client
	}
	return pulse.NewCached(client, c.RedisClient, time.Duration(cfg.CacheTTLSeconds)*time.Second, c.ZapLog)
}

// pulseRetryPolicy applies the configured retry count to the default backoff
func pulseRetryPolicy(cfg config.PulseConfig) retry.Policy {
	p := retry.DefaultPolicy()
	if cfg.MaxRetries > 0 {
		p.MaxRetries = uint64(cfg.MaxRetries)
	}
	return p
}

func (c *Container) buildSignalGenerator() scan.SignalGenerator {
	cfg := c.Config.Signal
	if cfg.Mode == "rules" {
		return signal.NewRuleBased()
	}
	return signal.NewClient(signal.Config{
		BaseURL: cfg.BaseURL,
		APIKey:  cfg.APIKey,
		Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
	}, c.ZapLog)
}

func (c *Container) buildExchange() (exchange.Gateway, error) {
	cfg := c.Config.Exchange
	scope := exchange.Scope(cfg.Scope)

	if cfg.Venue == "paper" {
		cash, err := decimal.NewFromString(cfg.PaperCash)
		if err != nil {
			return nil, fmt.Errorf("invalid paper cash %q: %w", cfg.PaperCash, err)
		}
		var gateway exchange.Gateway = exchange.NewPaperVenue(cfg.QuoteCurrency, cash)
		if scope == exchange.ScopeReadOnly {
			gateway = exchange.ReadOnly(gateway)
		}
		return gateway, nil
	}

	c.Logger.Info("Using REST exchange venue",
		"base_url", cfg.BaseURL,
		"api_key", security.MaskAPIKey(cfg.APIKey),
		"scope", cfg.Scope)
	return exchange.NewGateway(exchange.Config{
		BaseURL: cfg.BaseURL,
		Quote:   cfg.QuoteCurrency,
		Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		Credential: exchange.Credential{
			APIKey:    cfg.APIKey,
			APISecret: cfg.APISecret,
			Scope:     scope,
		},
		ReadRetry: retry.DefaultPolicy(),
	}, c.ZapLog), nil
}

func (c *Container) buildPublisher() events.Publisher {
	cfg := c.Config.Events
	if !cfg.Enabled {
		return events.NoopPublisher{}
	}
	c.kafkaPublisher = messaging.NewKafkaPublisher(messaging.KafkaConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.Topic,
		ClientID: "pilot-service",
	}, c.ZapLog)
	return c.kafkaPublisher
}

// HealthChecks returns the dependencies the readiness check pings
func (c *Container) HealthChecks() map[string]func(ctx context.Context) error {
	checks := map[string]func(ctx context.Context) error{
		"database": c.DB.PingContext,
	}
	if c.RedisClient != nil {
		checks["redis"] = c.RedisClient.Ping
	}
	return checks
}

// Close releases external connections
func (c *Container) Close() error {
	var firstErr error
	if c.kafkaPublisher != nil {
		if err := c.kafkaPublisher.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if c.RedisClient != nil {
		if err := c.RedisClient.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
