package main

import (
	"context"
	"errors"
	"time"

	"github.com/iplixera/nivostack-monorepo-sub006/internal/application/billing"
	"github.com/iplixera/nivostack-monorepo-sub006/internal/infrastructure/cache"
	"github.com/iplixera/nivostack-monorepo-sub006/internal/infrastructure/config"
	"github.com/iplixera/nivostack-monorepo-sub006/internal/infrastructure/event"
	"github.com/iplixera/nivostack-monorepo-sub006/internal/infrastructure/logger"
	"github.com/iplixera/nivostack-monorepo-sub006/internal/infrastructure/persistence"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const busDrainTimeout = 10 * time.Second

// app holds the services a command runs against. Counts are always read
// from the database; the CLI never uses the count cache.
type app struct {
	log   *zap.Logger
	db    *persistence.Database
	bus   *event.InMemoryEventBus
	redis *redis.Client
	fan   cache.InvalidationBus

	plans       *persistence.GormPlanRepository
	meter       *billing.UsageMeterService
	enforcement *billing.EnforcementService
	history     *billing.HistoryService
	admin       *billing.SubscriptionAdminService
}

func openApp(ctx context.Context, cfg *config.Config, log *zap.Logger) (*app, error) {
	db, err := persistence.NewDatabase(&cfg.Database, log, logger.MapGormLogLevel(cfg.Log.Level))
	if err != nil {
		return nil, err
	}

	a := &app{log: log, db: db}
	a.plans = persistence.NewGormPlanRepository(db.DB)
	subRepo := persistence.NewGormSubscriptionRepository(db.DB)
	stateRepo := persistence.NewGormEnforcementStateRepository(db.DB)
	historyRepo := persistence.NewGormEnforcementHistoryRepository(db.DB)

	a.bus = event.NewInMemoryEventBus(log)
	a.bus.Subscribe(event.NewEnforcementAuditHandler(historyRepo, log))
	if err := a.bus.Start(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	// Other replicas only hear about CLI invalidations through Redis
	var broadcaster billing.InvalidationBroadcaster
	if cfg.Redis.Enabled {
		a.redis, err = cache.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.fan = cache.NewRedisInvalidationBus(a.redis,
			cache.WithInvalidationChannel(cfg.Redis.InvalidationChannel),
			cache.WithInvalidationLogger(log),
		)
		broadcaster = a.fan
	}

	a.meter = billing.NewUsageMeterService(subRepo, a.plans, persistence.NewGormUsageCounter(db.DB), log)
	a.enforcement = billing.NewEnforcementService(a.meter, stateRepo, a.bus, nil, log,
		billing.EnforcementServiceConfig{
			Evaluator:      cfg.EvaluatorConfig(),
			Policy:         cfg.PolicyConfig(),
			FailureBackoff: cfg.Scheduler.FailureBackoff,
		})
	a.history = billing.NewHistoryService(historyRepo)
	a.admin = billing.NewSubscriptionAdminService(subRepo, a.plans, a.enforcement, a.bus, broadcaster, log)
	return a, nil
}

// Close drains pending audit events before releasing connections
func (a *app) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), busDrainTimeout)
	defer cancel()

	var errs []error
	if a.bus != nil {
		errs = append(errs, a.bus.Stop(ctx))
	}
	if a.fan != nil {
		errs = append(errs, a.fan.Close())
	}
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	errs = append(errs, a.db.Close())
	if err := errors.Join(errs...); err != nil {
		a.log.Warn("Error closing resources", zap.Error(err))
	}
}
