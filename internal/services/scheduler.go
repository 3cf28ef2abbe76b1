package services

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"budgetwise/internal/allocation"
	"budgetwise/internal/core"
	"budgetwise/internal/log"
	"budgetwise/internal/ports"

	"golang.org/x/sync/errgroup"
)

// Applier runs one allocation. *AllocationService satisfies it.
type Applier interface {
	Apply(ctx context.Context, userID string, year, month int, ov allocation.Overrides) (core.AllocationRun, error)
}

// SchedulerConfig holds configuration for the allocation scheduler.
type SchedulerConfig struct {
	// RefreshAfter is how old the latest run of the month may get before it
	// is applied again (default: 6h)
	RefreshAfter time.Duration

	// Concurrency caps how many users are processed at once (default: 4)
	Concurrency int
}

func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		RefreshAfter: 6 * time.Hour,
		Concurrency:  4,
	}
}

// Scheduler reapplies the current month's allocation for every user with
// a stored policy.
type Scheduler struct {
	policies ports.PolicyStore
	runs     ports.RunStore
	applier  Applier
	config   SchedulerConfig
	logger   *log.Logger
}

func NewScheduler(policies ports.PolicyStore, runs ports.RunStore, applier Applier, config SchedulerConfig, logger *log.Logger) *Scheduler {
	if config.Concurrency < 1 {
		config.Concurrency = 1
	}
	if logger == nil {
		logger = log.Discard()
	}
	return &Scheduler{
		policies: policies,
		runs:     runs,
		applier:  applier,
		config:   config,
		logger:   logger.WithComponent(log.ComponentScheduler),
	}
}

// ProcessDueAllocations applies the month containing now for each user whose
// latest run of that month is missing or older than RefreshAfter. It returns
// how many runs were recorded. Per-user failures are logged and skipped;
// only a failure to list users or a cancelled ctx is returned.
func (s *Scheduler) ProcessDueAllocations(ctx context.Context, now time.Time) (int, error) {
	users, err := s.policies.ListPolicyUsers(ctx)
	if err != nil {
		return 0, fmt.Errorf("list policy users: %w", err)
	}
	if len(users) == 0 {
		return 0, nil
	}

	w := core.CurrentMonth(now)
	var applied atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.config.Concurrency)

	for _, userID := range users {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if !s.due(gctx, userID, w, now) {
				return nil
			}

			run, err := s.applier.Apply(gctx, userID, w.Year, w.Month, allocation.Overrides{})
			if run.ID != "" {
				applied.Add(1)
			}
			if err != nil {
				if errors.Is(err, context.Canceled) && gctx.Err() != nil {
					return gctx.Err()
				}
				s.logger.WarnContext(gctx, "Scheduled allocation failed",
					log.FieldUserID, userID,
					log.FieldWindow, w.Key(),
					log.FieldErrorKind, string(allocation.KindOf(err)),
					log.FieldError, err)
			}
			return nil
		})
	}

	err = g.Wait()
	count := int(applied.Load())
	s.logger.InfoContext(ctx, "Scheduled allocation pass finished",
		log.FieldWindow, w.Key(),
		"users", len(users),
		"applied", count)
	return count, err
}

func (s *Scheduler) due(ctx context.Context, userID string, w core.MonthWindow, now time.Time) bool {
	last, err := s.runs.LatestRun(ctx, userID, w)
	switch {
	case errors.Is(err, core.ErrNotFound):
		return true
	case err != nil:
		s.logger.WarnContext(ctx, "Failed to read latest run, skipping user",
			log.FieldUserID, userID, log.FieldError, err)
		return false
	default:
		return now.Sub(last.CreatedAt) >= s.config.RefreshAfter
	}
}

// Run calls ProcessDueAllocations every interval until ctx is done.
func (s *Scheduler) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := s.ProcessDueAllocations(ctx, time.Now()); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logger.ErrorContext(ctx, "Scheduled allocation pass failed", log.FieldError, err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
