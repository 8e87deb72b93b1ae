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

// Sweeper re-evaluates tenants whose enforcement record is due
type Sweeper interface {
	SweepDue(ctx context.Context, limit int) (*billing.SweepResult, error)
	EvaluateAllTenants(ctx context.Context) (*billing.SweepResult, error)
}

// EnforcementSweepScheduler periodically commits evaluations for due tenants
// so GRACE deadlines and usage growth are picked up without a read
type EnforcementSweepScheduler struct {
	sweeper   Sweeper
	logger    *zap.Logger
	config    EnforcementSweepConfig
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
	inFlight  atomic.Bool
}

// EnforcementSweepConfig holds configuration for the sweep scheduler
type EnforcementSweepConfig struct {
	Enabled bool

	// Interval between sweeps
	Interval time.Duration

	// BatchSize caps tenants per batch. A full batch is followed by another
	// one until the backlog is drained or MaxBatchesPerRun is reached.
	BatchSize        int
	MaxBatchesPerRun int

	// Timeout bounds one sweep run
	Timeout time.Duration

	// RunOnStartup evaluates every tenant once when the scheduler starts
	RunOnStartup bool
}

// DefaultEnforcementSweepConfig returns default configuration
func DefaultEnforcementSweepConfig() EnforcementSweepConfig {
	return EnforcementSweepConfig{
		Enabled:          true,
		Interval:         time.Minute,
		BatchSize:        200,
		MaxBatchesPerRun: 50,
		Timeout:          5 * time.Minute,
	}
}

// Validate checks the configuration
func (c EnforcementSweepConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Interval <= 0 {
		return fmt.Errorf("%w: interval must be positive", ErrInvalidConfig)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("%w: batch size must be positive", ErrInvalidConfig)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("%w: timeout must be positive", ErrInvalidConfig)
	}
	return nil
}

// NewEnforcementSweepScheduler creates a new sweep scheduler
func NewEnforcementSweepScheduler(sweeper Sweeper, logger *zap.Logger, config EnforcementSweepConfig) *EnforcementSweepScheduler {
	if config.MaxBatchesPerRun <= 0 {
		config.MaxBatchesPerRun = 1
	}
	return &EnforcementSweepScheduler{
		sweeper: sweeper,
		logger:  logger,
		config:  config,
	}
}

// Start launches the sweep loop
func (s *EnforcementSweepScheduler) Start(ctx context.Context) error {
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
		s.logger.Info("Enforcement sweep scheduler is disabled")
		return nil
	}
	s.isRunning = true
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(1)
	go s.run(ctx)

	s.logger.Info("Enforcement sweep scheduler started",
		zap.Duration("interval", s.config.Interval),
		zap.Int("batch_size", s.config.BatchSize),
		zap.Bool("run_on_startup", s.config.RunOnStartup),
	)
	return nil
}

// Stop cancels the loop and waits for the current run to finish
func (s *EnforcementSweepScheduler) Stop(ctx context.Context) error {
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
		s.logger.Info("Enforcement sweep scheduler stopped gracefully")
		return nil
	case <-ctx.Done():
		s.logger.Warn("Enforcement sweep scheduler stop timed out")
		return ctx.Err()
	}
}

func (s *EnforcementSweepScheduler) run(ctx context.Context) {
	defer s.wg.Done()

	if s.config.RunOnStartup {
		telemetry.WithProfilingLabels(ctx, telemetry.OperationLabels("enforcement_full_sweep", nil), s.executeFullSweep)
	}

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	sweepLabels := telemetry.OperationLabels("enforcement_sweep", nil)
	for {
		select {
		case <-ctx.Done():
			s.logger.Debug("Enforcement sweep loop stopping")
			return
		case <-ticker.C:
			telemetry.WithProfilingLabels(ctx, sweepLabels, func(ctx context.Context) {
				s.executeSweep(ctx)
			})
		}
	}
}

// executeSweep drains due tenants in batches. A run that starts while
// another is in flight returns an empty result.
func (s *EnforcementSweepScheduler) executeSweep(ctx context.Context) *billing.SweepResult {
	total := &billing.SweepResult{}
	if !s.inFlight.CompareAndSwap(false, true) {
		s.logger.Debug("Enforcement sweep already in progress, skipping")
		return total
	}
	defer s.inFlight.Store(false)

	sweepCtx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	startTime := time.Now()
	for batch := 0; batch < s.config.MaxBatchesPerRun; batch++ {
		result, err := s.sweeper.SweepDue(sweepCtx, s.config.BatchSize)
		if err != nil {
			s.logger.Error("Enforcement sweep failed",
				zap.Int("batch", batch),
				zap.Duration("duration", time.Since(startTime)),
				zap.Error(err),
			)
			break
		}
		total.Total += result.Total
		total.Successful += result.Successful
		total.Failed += result.Failed
		if result.Total < s.config.BatchSize || sweepCtx.Err() != nil {
			break
		}
	}

	if total.Total > 0 {
		s.logger.Info("Enforcement sweep completed",
			zap.Duration("duration", time.Since(startTime)),
			zap.Int("total_tenants", total.Total),
			zap.Int("successful", total.Successful),
			zap.Int("failed", total.Failed),
		)
	}
	return total
}

func (s *EnforcementSweepScheduler) executeFullSweep(ctx context.Context) {
	s.logger.Info("Starting full enforcement evaluation")

	sweepCtx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	startTime := time.Now()
	result, err := s.sweeper.EvaluateAllTenants(sweepCtx)
	duration := time.Since(startTime)
	if err != nil {
		s.logger.Error("Full enforcement evaluation failed",
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		return
	}

	s.logger.Info("Full enforcement evaluation completed",
		zap.Duration("duration", duration),
		zap.Int("total_tenants", result.Total),
		zap.Int("successful", result.Successful),
		zap.Int("failed", result.Failed),
	)
}

// TriggerImmediateSweep runs one sweep in the background
func (s *EnforcementSweepScheduler) TriggerImmediateSweep(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return ErrSchedulerNotRunning
	}
	s.wg.Add(1)
	s.mu.Unlock()

	s.logger.Info("Triggering immediate enforcement sweep")

	go func() {
		defer s.wg.Done()
		s.executeSweep(ctx)
	}()
	return nil
}

// IsRunning returns whether the scheduler is running
func (s *EnforcementSweepScheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isRunning
}
