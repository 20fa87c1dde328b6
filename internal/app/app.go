// Package app wires configuration, storage and services shared by the API
// server and the finance job runner.
package app

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-fee-ledger/internal/repository"
	"github.com/noah-isme/sma-fee-ledger/internal/service"
	"github.com/noah-isme/sma-fee-ledger/pkg/cache"
	"github.com/noah-isme/sma-fee-ledger/pkg/config"
	"github.com/noah-isme/sma-fee-ledger/pkg/database"
	"github.com/noah-isme/sma-fee-ledger/pkg/jobs"
	"github.com/noah-isme/sma-fee-ledger/pkg/storage"
)

// Container holds every long-lived dependency.
type Container struct {
	Config *config.Config
	Logger *zap.Logger
	DB     *sqlx.DB
	Redis  *redis.Client

	Fees          *repository.FeeRepository
	Policies      *repository.LateFeePolicyRepository
	Waivers       *repository.WaiverRepository
	Guardians     *repository.GuardianRepository
	Audit         *repository.AuditRepository
	Notifications *repository.NotificationRepository
	Cache         *repository.CacheRepository

	Metrics   *service.MetricsService
	CacheSvc  *service.CacheService
	Tokens    *service.TokenService
	Ledger    *service.LedgerService
	WaiverSvc *service.WaiverService
	LateFees  *service.LateFeeService
	Reminders *service.ReminderService
	Exports   *service.ExportService

	ReminderQueue *jobs.Queue
}

// New connects to Postgres (and Redis when enabled), ensures the schema and
// builds the services.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Container, error) {
	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := database.EnsureSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	rdb, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}

	c := &Container{
		Config:        cfg,
		Logger:        logger,
		DB:            db,
		Redis:         rdb,
		Fees:          repository.NewFeeRepository(db),
		Policies:      repository.NewLateFeePolicyRepository(db),
		Waivers:       repository.NewWaiverRepository(db),
		Guardians:     repository.NewGuardianRepository(db),
		Audit:         repository.NewAuditRepository(db),
		Notifications: repository.NewNotificationRepository(db),
		Cache:         repository.NewCacheRepository(rdb, logger.Named("cache")),
		Metrics:       service.NewMetricsService(),
	}
	if err := c.buildServices(); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

func (c *Container) buildServices() error {
	cfg := c.Config
	validate := validator.New()

	c.CacheSvc = service.NewCacheService(c.Cache, c.Metrics, cfg.Finance.ReminderCacheTTL, c.Logger.Named("cache"), c.Cache.Available())
	c.Tokens = service.NewTokenService(service.TokenConfig{Secret: cfg.JWT.Secret})
	c.Ledger = service.NewLedgerService(c.Fees, c.Waivers, c.Audit, c.Metrics, c.CacheSvc, validate, c.Logger.Named("ledger"))
	c.WaiverSvc = service.NewWaiverService(c.Waivers, c.Fees, c.Audit, c.CacheSvc, validate, c.Logger.Named("waivers"))
	c.LateFees = service.NewLateFeeService(c.Fees, c.Policies, c.Waivers, c.Audit, c.Logger,
		service.WithBatchLock(service.NewBatchLock(c.Cache, c.Logger.Named("lock")), cfg.Finance.LateFeeLockTTL),
		service.WithLateFeeMetrics(c.Metrics),
		service.WithLateFeeCache(c.CacheSvc),
	)
	c.Reminders = service.NewReminderService(
		c.Fees, c.Waivers, c.Guardians,
		service.NewOutboxSink(c.Notifications),
		c.CacheSvc, c.Metrics, c.Logger.Named("reminders"),
		service.ReminderServiceConfig{
			WindowDays:  cfg.Finance.ReminderWindowDays,
			OverdueOnly: cfg.Finance.ReminderOverdueOnly,
			CacheTTL:    cfg.Finance.ReminderCacheTTL,
		},
	)

	store, err := storage.NewLocalStorage(cfg.Exports.Dir)
	if err != nil {
		return fmt.Errorf("init export storage: %w", err)
	}
	c.Exports = service.NewExportService(store, service.ExportConfig{
		Currency:  cfg.Finance.Currency,
		ResultTTL: cfg.Exports.TTL,
	}, c.Logger.Named("exports"))
	return nil
}

// StartReminderQueue starts the async dispatch workers. Failed dispatch jobs
// are not retried.
func (c *Container) StartReminderQueue(ctx context.Context) {
	c.ReminderQueue = jobs.NewQueue("reminders", c.Reminders.HandleJob, jobs.QueueConfig{
		Workers:    c.Config.Notifications.Workers,
		BufferSize: c.Config.Notifications.BufferSize,
		Logger:     c.Logger.Named("reminder-queue"),
	})
	c.ReminderQueue.Start(ctx)
	c.Reminders.SetDispatcher(c.ReminderQueue)
}

// Scheduler builds the daily job scheduler.
func (c *Container) Scheduler() *service.Scheduler {
	return service.NewScheduler(c.LateFees, c.Reminders, c.Exports, service.SchedulerConfig{
		RunHour:      c.Config.Scheduler.RunHour,
		PollInterval: c.Config.Scheduler.PollInterval,
	}, c.Logger.Named("scheduler"))
}

// Close releases connections and stops workers.
func (c *Container) Close() {
	if c.ReminderQueue != nil {
		c.ReminderQueue.Stop()
	}
	if c.Cache != nil {
		if err := c.Cache.Close(); err != nil {
			c.Logger.Warn("failed to close redis", zap.Error(err))
		}
	}
	if c.DB != nil {
		if err := c.DB.Close(); err != nil {
			c.Logger.Warn("failed to close database", zap.Error(err))
		}
	}
}
