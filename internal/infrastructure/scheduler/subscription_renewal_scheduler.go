package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/iplixera/nivostack-monorepo-sub006/internal/application/billing"
	"github.com/iplixera/nivostack-monorepo-sub006/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// Renewer closes finished billing periods
type Renewer interface {
	RenewDue(ctx context.Context, limit int) (*billing.RenewalResult, error)
}

// SubscriptionRenewalScheduler periodically rolls finished billing periods
// forward and expires ended trials
type SubscriptionRenewalScheduler struct {
	renewer   Renewer
	logger    *zap.Logger
	config    SubscriptionRenewalConfig
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
	inFlight  atomic.Bool
}

// SubscriptionRenewalConfig holds configuration for the renewal scheduler
type SubscriptionRenewalConfig struct {
	Enabled          bool
	Interval         time.Duration
	BatchSize        int
	MaxBatchesPerRun int
	Timeout          time.Duration
	RunOnStartup     bool
}

// DefaultSubscriptionRenewalConfig returns default configuration
func DefaultSubscriptionRenewalConfig() SubscriptionRenewalConfig {
	return SubscriptionRenewalConfig{
		Enabled:          true,
		Interval:         time.Hour,
		BatchSize:        100,
		MaxBatchesPerRun: 20,
		Timeout:          5 * time.Minute,
		RunOnStartup:     true,
	}
}

// Validate checks the configuration
func (c SubscriptionRenewalConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Interval <= 0 {
		return fmt.Errorf("%w: renewal interval must be positive", ErrInvalidConfig)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("%w: renewal batch size must be positive", ErrInvalidConfig)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("%w: renewal timeout must be positive", ErrInvalidConfig)
	}
	return nil
}

// NewSubscriptionRenewalScheduler creates a new renewal scheduler
func NewSubscriptionRenewalScheduler(renewer Renewer, logger *zap.Logger, config SubscriptionRenewalConfig) *SubscriptionRenewalScheduler {
	if config.MaxBatchesPerRun <= 0 {
		config.MaxBatchesPerRun = 1
	}
	return &SubscriptionRenewalScheduler{
		renewer: renewer,
		logger:  logger,
		config:  config,
	}
}

// Start launches the renewal loop
func (s *SubscriptionRenewalScheduler) Start(ctx context.Context) error {
	if err := s.config.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	if !s.config.Enabled {
		s.mu.Unlock()
		s.logger.Info("Subscription renewal scheduler is disabled")
		return nil
	}
	s.isRunning = true
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(1)
	go s.run(ctx)

	s.logger.Info("Subscription renewal scheduler started",
		zap.Duration("interval", s.config.Interval),
		zap.Int("batch_size", s.config.BatchSize),
	)
	return nil
}

// Stop cancels the loop and waits for the current run to finish
func (s *SubscriptionRenewalScheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("Subscription renewal scheduler stopped gracefully")
		return nil
	case <-ctx.Done():
		s.logger.Warn("Subscription renewal scheduler stop timed out")
		return ctx.Err()
	}
}

func (s *SubscriptionRenewalScheduler) run(ctx context.Context) {
	defer s.wg.Done()

	labels := telemetry.OperationLabels("subscription_renewal", nil)
	renew := func(ctx context.Context) { s.executeRenewal(ctx) }

	if s.config.RunOnStartup {
		telemetry.WithProfilingLabels(ctx, labels, renew)
	}

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Debug("Subscription renewal loop stopping")
			return
		case <-ticker.C:
			telemetry.WithProfilingLabels(ctx, labels, renew)
		}
	}
}

// executeRenewal drains due subscriptions in batches. A batch with failures
// ends the run so rows that keep failing are not fetched again until the
// next tick.
func (s *SubscriptionRenewalScheduler) executeRenewal(ctx context.Context) *billing.RenewalResult {
	total := &billing.RenewalResult{}
	if !s.inFlight.CompareAndSwap(false, true) {
		s.logger.Debug("Subscription renewal already in progress, skipping")
		return total
	}
	defer s.inFlight.Store(false)

	runCtx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	startTime := time.Now()
	for batch := 0; batch < s.config.MaxBatchesPerRun; batch++ {
		result, err := s.renewer.RenewDue(runCtx, s.config.BatchSize)
		if err != nil {
			s.logger.Error("Subscription renewal failed",
				zap.Int("batch", batch),
				zap.Duration("duration", time.Since(startTime)),
				zap.Error(err),
			)
			break
		}
		total.Total += result.Total
		total.Renewed += result.Renewed
		total.Expired += result.Expired
		total.Failed += result.Failed
		if result.Total < s.config.BatchSize || result.Failed > 0 || runCtx.Err() != nil {
			break
		}
	}

	if total.Total > 0 {
		s.logger.Info("Subscription renewal completed",
			zap.Duration("duration", time.Since(startTime)),
			zap.Int("total", total.Total),
			zap.Int("renewed", total.Renewed),
			zap.Int("expired", total.Expired),
			zap.Int("failed", total.Failed),
		)
	}
	return total
}

// IsRunning returns whether the scheduler is running
func (s *SubscriptionRenewalScheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isRunning
}
