package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"booking-engine/internal/usecase"
	"booking-engine/pkg/logger"

	"github.com/go-co-op/gocron/v2"
	"github.com/jonboulle/clockwork"
)

// SweepLockKey is the Redis key that serializes sweeps across replicas
const SweepLockKey = "booking-engine:expiry-sweep"

// Sweeper runs one expiry sweep
type Sweeper interface {
	RunSweep(ctx context.Context) (*usecase.SweepReport, error)
}

// SweepScheduler triggers the expiry sweep on a fixed interval
type SweepScheduler struct {
	sched    gocron.Scheduler
	sweeper  Sweeper
	lock     Locker
	lockTTL  time.Duration
	interval time.Duration
	logger   logger.Logger
}

// NewSweepScheduler creates a scheduler. lock may be nil for a single replica.
func NewSweepScheduler(sweeper Sweeper, lock Locker, interval, lockTTL time.Duration, clock clockwork.Clock, logger logger.Logger) (*SweepScheduler, error) {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	sched, err := gocron.NewScheduler(gocron.WithClock(clock), gocron.WithLocation(time.UTC))
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}
	if lockTTL <= 0 {
		lockTTL = 5 * time.Minute
	}
	return &SweepScheduler{
		sched:    sched,
		sweeper:  sweeper,
		lock:     lock,
		lockTTL:  lockTTL,
		interval: interval,
		logger:   logger,
	}, nil
}

// Start registers the sweep job and starts the scheduler. The first sweep runs immediately.
func (s *SweepScheduler) Start(ctx context.Context) error {
	_, err := s.sched.NewJob(
		gocron.DurationJob(s.interval),
		gocron.NewTask(func() {
			s.RunOnce(ctx)
		}),
		gocron.WithName("expiry-sweep"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		return fmt.Errorf("register sweep job: %w", err)
	}
	s.sched.Start()
	s.logger.Info("Expiry sweep scheduled", "interval", s.interval.String())
	return nil
}

// RunOnce runs one sweep under the lease lock, if configured. It returns
// the report, or nil when the sweep was skipped or failed.
func (s *SweepScheduler) RunOnce(ctx context.Context) *usecase.SweepReport {
	if ctx.Err() != nil {
		return nil
	}

	if s.lock != nil {
		release, ok, err := s.lock.Acquire(ctx, SweepLockKey, s.lockTTL)
		if err != nil {
			s.logger.Error("Failed to acquire sweep lock", "error", err)
			return nil
		}
		if !ok {
			s.logger.Debug("Sweep lock held by another replica, skipping")
			return nil
		}
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				s.logger.Warn("Failed to release sweep lock", "error", err)
			}
		}()
	}

	report, err := s.sweeper.RunSweep(ctx)
	if err != nil {
		if errors.Is(err, usecase.ErrSweepInProgress) {
			s.logger.Debug("Sweep already running, skipping")
			return nil
		}
		s.logger.Error("Expiry sweep failed", "error", err)
		return nil
	}
	return report
}

// Shutdown stops the scheduler and waits for a running sweep
func (s *SweepScheduler) Shutdown() error {
	return s.sched.Shutdown()
}
