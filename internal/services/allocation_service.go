package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"budgetwise/internal/allocation"
	"budgetwise/internal/amqp"
	"budgetwise/internal/cache"
	"budgetwise/internal/core"
	"budgetwise/internal/lock"
	"budgetwise/internal/log"
	"budgetwise/internal/ports"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"
)

// Publisher announces applied runs. *amqp.Client satisfies it.
type Publisher interface {
	PublishAllocationApplied(ctx context.Context, msg *amqp.AllocationAppliedMessage) error
}

// AllocationServiceConfig holds tuning for the allocation boundary.
type AllocationServiceConfig struct {
	// WriteTimeout bounds one Apply, reads and goal writes included (0 = none).
	WriteTimeout time.Duration

	// PreviewCacheSize and PreviewCacheTTL size the calculator figure cache.
	// A zero size disables caching.
	PreviewCacheSize int
	PreviewCacheTTL  time.Duration
}

func DefaultAllocationServiceConfig() AllocationServiceConfig {
	return AllocationServiceConfig{
		WriteTimeout:     15 * time.Second,
		PreviewCacheSize: 256,
		PreviewCacheTTL:  5 * time.Minute,
	}
}

// AllocationService is the entry point for allocation runs. It coalesces
// concurrent identical requests, serializes runs per user and month through
// the locker, records each run and announces it.
type AllocationService struct {
	calc      *allocation.Calculator
	dist      *allocation.Distributor
	runs      ports.RunStore
	locker    lock.Locker
	publisher Publisher
	preview   *cache.LRUCache[core.Allocation]
	config    AllocationServiceConfig
	logger    *log.Logger
	now       func() time.Time

	group singleflight.Group
}

// NewAllocationService wires the engine to run storage. locker defaults to
// an in-process locker; publisher may be nil.
func NewAllocationService(
	calc *allocation.Calculator,
	dist *allocation.Distributor,
	runs ports.RunStore,
	locker lock.Locker,
	publisher Publisher,
	config AllocationServiceConfig,
	logger *log.Logger,
) *AllocationService {
	if locker == nil {
		locker = lock.NewLocalLocker()
	}
	if logger == nil {
		logger = log.Discard()
	}
	s := &AllocationService{
		calc:      calc,
		dist:      dist,
		runs:      runs,
		locker:    locker,
		publisher: publisher,
		config:    config,
		logger:    logger.WithComponent(log.ComponentAllocation),
		now:       time.Now,
	}
	if config.PreviewCacheSize > 0 {
		s.preview = cache.NewLRUCache[core.Allocation](config.PreviewCacheSize, config.PreviewCacheTTL)
	}
	return s
}

// PreviewCache exposes the figure cache for periodic cleanup, or nil.
func (s *AllocationService) PreviewCache() *cache.LRUCache[core.Allocation] {
	return s.preview
}

func previewKey(userID string, w core.MonthWindow) string {
	return previewPrefix(userID) + w.Key()
}

func previewPrefix(userID string) string {
	return "u:" + userID + ":"
}

// Preview returns the calculator figures for the month. Results are cached
// until the user's ledger changes or the TTL passes.
func (s *AllocationService) Preview(ctx context.Context, userID string, year, month int) (core.Allocation, error) {
	w := core.MonthWindow{Year: year, Month: month}
	if s.preview != nil {
		if a, ok := s.preview.Get(previewKey(userID, w)); ok {
			return a, nil
		}
	}

	a, err := s.calc.ComputeAllocation(ctx, userID, year, month)
	if err != nil {
		return core.Allocation{}, err
	}
	if s.preview != nil {
		s.preview.Set(previewKey(userID, w), a)
	}
	return a, nil
}

// Budget returns the needs/wants/savings view of the month.
func (s *AllocationService) Budget(ctx context.Context, userID string, year, month int) (core.BudgetBreakdown, error) {
	return s.calc.ComputeBudget(ctx, userID, year, month)
}

// InvalidateUser drops every cached figure of the user.
func (s *AllocationService) InvalidateUser(userID string) {
	if s.preview == nil {
		return
	}
	if n := s.preview.DeletePrefix(previewPrefix(userID)); n > 0 {
		s.logger.Debug("Preview cache invalidated", log.FieldUserID, userID, "entries", n)
	}
}

// History returns the user's recorded runs, newest first.
func (s *AllocationService) History(ctx context.Context, userID string, limit int) ([]core.AllocationRun, error) {
	if userID == "" {
		return nil, &allocation.Error{Kind: allocation.InvalidArgument, Message: core.ErrEmptyUserID.Error(), Err: core.ErrEmptyUserID}
	}
	runs, err := s.runs.ListRuns(ctx, userID, limit)
	if err != nil {
		return nil, &allocation.Error{Kind: allocation.UpstreamFailure, Message: "list allocation runs failed", Err: err}
	}
	return runs, nil
}

type applyOutcome struct {
	run core.AllocationRun
	err error
}

func flightKey(userID string, year, month int, ov allocation.Overrides) string {
	return fmt.Sprintf("%s|%04d-%02d|%s|%s", userID, year, month, pctKey(ov.LongTermPct), pctKey(ov.ShortTermPct))
}

func pctKey(p *decimal.Decimal) string {
	if p == nil {
		return "-"
	}
	return p.String()
}

// Apply runs the savings distribution for the month and records the run.
//
// Identical concurrent calls share one execution. The shared execution is
// bounded by WriteTimeout only, so one caller going away does not cancel the
// writes the others wait on; a cancelled caller returns its ctx error at once.
// The returned run carries the result even when err is a PartialApplication;
// it is zero when nothing was written. A lock held elsewhere yields an error
// wrapping lock.ErrLocked.
func (s *AllocationService) Apply(ctx context.Context, userID string, year, month int, ov allocation.Overrides) (core.AllocationRun, error) {
	flight := context.WithoutCancel(ctx)
	ch := s.group.DoChan(flightKey(userID, year, month, ov), func() (any, error) {
		run, err := s.apply(flight, userID, year, month, ov)
		return applyOutcome{run: run, err: err}, nil
	})

	select {
	case res := <-ch:
		out := res.Val.(applyOutcome)
		if res.Shared {
			s.logger.DebugContext(ctx, "Allocation run shared with a concurrent request",
				log.FieldUserID, userID, log.FieldRunID, out.run.ID)
		}
		return out.run, out.err
	case <-ctx.Done():
		return core.AllocationRun{}, fmt.Errorf("apply allocation %04d-%02d: %w", year, month, ctx.Err())
	}
}

func (s *AllocationService) apply(ctx context.Context, userID string, year, month int, ov allocation.Overrides) (core.AllocationRun, error) {
	w := core.MonthWindow{Year: year, Month: month}

	if s.config.WriteTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.WriteTimeout)
		defer cancel()
	}

	unlock, err := s.locker.Obtain(ctx, lock.AllocationKey(userID, w))
	if err != nil {
		return core.AllocationRun{}, fmt.Errorf("apply allocation %s: %w", w.Key(), err)
	}
	defer func() {
		if err := unlock(context.WithoutCancel(ctx)); err != nil {
			s.logger.WarnContext(ctx, "Failed to release allocation lock",
				log.FieldUserID, userID, log.FieldWindow, w.Key(), log.FieldError, err)
		}
	}()

	result, err := s.dist.DistributeSavings(ctx, userID, year, month, ov)

	status := core.RunApplied
	var failed []string
	if err != nil {
		var aerr *allocation.Error
		if !errors.As(err, &aerr) || aerr.Kind != allocation.PartialApplication {
			return core.AllocationRun{}, err
		}
		status = core.RunPartial
		failed = aerr.Failed
	}

	run := core.AllocationRun{
		ID:           uuid.NewString(),
		UserID:       userID,
		Window:       w,
		Status:       status,
		Result:       result,
		FailedGoals:  failed,
		ExportStatus: core.ExportPending,
		CreatedAt:    s.now().UTC(),
	}
	s.record(ctx, run)

	return run, err
}

// record stores the run and announces it. Goal writes already happened, so
// failures here are logged and not returned.
func (s *AllocationService) record(ctx context.Context, run core.AllocationRun) {
	ctx = context.WithoutCancel(ctx)

	if err := s.runs.SaveRun(ctx, run); err != nil {
		s.logger.ErrorContext(ctx, "Failed to record allocation run",
			log.FieldRunID, run.ID, log.FieldUserID, run.UserID, log.FieldError, err)
		return
	}

	log.NewStructuredLogger(s.logger).LogAllocationApplied(ctx, run.UserID, run.Window.Key(), run.ID, len(run.Result.UpdatedGoals))

	if s.publisher == nil {
		s.logger.DebugContext(ctx, "No publisher configured, skipping allocation message", log.FieldRunID, run.ID)
		return
	}
	msg := amqp.NewAllocationAppliedMessage(run.ID, run.UserID, run.Window)
	if err := s.publisher.PublishAllocationApplied(ctx, msg); err != nil {
		s.logger.ErrorContext(ctx, "Failed to publish allocation message",
			log.FieldRunID, run.ID, log.FieldError, err)
	}
}
