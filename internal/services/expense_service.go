package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"billbuddy/internal/cache"
	"billbuddy/internal/core"
	applog "billbuddy/internal/log"
)

// ExpenseStore is the persistence contract the service depends on.
type ExpenseStore interface {
	Create(ctx context.Context, in core.ExpenseInput) (core.Expense, error)
	List(ctx context.Context) ([]core.Expense, error)
	Get(ctx context.Context, id int64) (core.Expense, error)
	Update(ctx context.Context, id int64, in core.ExpenseInput) (core.Expense, error)
	Delete(ctx context.Context, id int64) error
	ResetAll(ctx context.Context) (int64, error)
	SumByCurrency(ctx context.Context, start, end time.Time) (core.Totals, error)
	SumByMonth(ctx context.Context, year int, month time.Month) (core.Totals, error)
	SumByYear(ctx context.Context, year int) (core.Totals, error)
	Close() error
}

// ExpenseService is what the presentation shell talks to. It forwards CRUD to
// the store and derives the calendar summaries from its clock.
type ExpenseService struct {
	store  ExpenseStore
	logger *applog.Logger
	now    func() time.Time
	loc    *time.Location
	totals cache.Cache[core.Totals]

	// cacheMu orders cache fills against invalidation; generation counts
	// invalidations so a fill computed before a write is discarded.
	cacheMu    sync.Mutex
	generation uint64
}

// Period totals are cached until the next write through the service. The
// TTL bounds staleness when another process shares the database file.
const (
	totalsCacheSize = 32
	totalsCacheTTL  = 30 * time.Second
)

func NewExpenseService(store ExpenseStore, logger *applog.Logger) *ExpenseService {
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	return &ExpenseService{
		store:  store,
		logger: logger.WithComponent(applog.ComponentExpense),
		now:    time.Now,
		loc:    time.Local,
		totals: cache.NewLRU[core.Totals](totalsCacheSize, totalsCacheTTL),
	}
}

// SetClock overrides the time source and zone used for summaries.
func (s *ExpenseService) SetClock(now func() time.Time, loc *time.Location) {
	s.now = now
	s.loc = loc
}

func (s *ExpenseService) CreateExpense(ctx context.Context, in core.ExpenseInput) (core.Expense, error) {
	e, err := s.store.Create(ctx, in)
	if err != nil {
		s.logFailure(ctx, applog.OpCreate, err)
		return core.Expense{}, err
	}
	s.invalidateTotals()
	s.logger.InfoContext(ctx, "Expense created", applog.NewFields().
		WithExpense(e.ID, e.Amount.String(), string(e.Currency), e.Category).
		WithOperation(applog.OpCreate).
		ToSlice()...)
	return e, nil
}

func (s *ExpenseService) ListExpenses(ctx context.Context) ([]core.Expense, error) {
	list, err := s.store.List(ctx)
	if err != nil {
		s.logFailure(ctx, applog.OpList, err)
		return nil, err
	}
	s.logger.DebugContext(ctx, "Expenses listed", applog.FieldCount, len(list))
	return list, nil
}

func (s *ExpenseService) GetExpense(ctx context.Context, id int64) (core.Expense, error) {
	e, err := s.store.Get(ctx, id)
	if err != nil {
		s.logFailure(ctx, applog.OpRead, err, applog.FieldExpenseID, id)
		return core.Expense{}, err
	}
	return e, nil
}

func (s *ExpenseService) UpdateExpense(ctx context.Context, id int64, in core.ExpenseInput) (core.Expense, error) {
	e, err := s.store.Update(ctx, id, in)
	if err != nil {
		s.logFailure(ctx, applog.OpUpdate, err, applog.FieldExpenseID, id)
		return core.Expense{}, err
	}
	s.invalidateTotals()
	s.logger.InfoContext(ctx, "Expense updated", applog.NewFields().
		WithExpense(e.ID, e.Amount.String(), string(e.Currency), e.Category).
		WithOperation(applog.OpUpdate).
		ToSlice()...)
	return e, nil
}

func (s *ExpenseService) DeleteExpense(ctx context.Context, id int64) error {
	if err := s.store.Delete(ctx, id); err != nil {
		s.logFailure(ctx, applog.OpDelete, err, applog.FieldExpenseID, id)
		return err
	}
	s.invalidateTotals()
	s.logger.InfoContext(ctx, "Expense deleted", applog.FieldExpenseID, id, applog.FieldOperation, applog.OpDelete)
	return nil
}

func (s *ExpenseService) ResetExpenses(ctx context.Context) (int64, error) {
	n, err := s.store.ResetAll(ctx)
	if err != nil {
		s.logFailure(ctx, applog.OpReset, err)
		return 0, err
	}
	s.invalidateTotals()
	s.logger.WarnContext(ctx, "Expenses reset", applog.FieldCount, n, applog.FieldOperation, applog.OpReset)
	return n, nil
}

// SumByCurrency totals the closed interval [start, end].
func (s *ExpenseService) SumByCurrency(ctx context.Context, start, end time.Time) (core.Totals, error) {
	if end.Before(start) {
		return core.Totals{}, nil
	}
	return s.sum(ctx, "range", "", func() (core.Totals, error) {
		return s.store.SumByCurrency(ctx, start, end)
	})
}

// DailyTotal covers the whole current calendar day.
func (s *ExpenseService) DailyTotal(ctx context.Context) (core.Totals, error) {
	day := core.Day(s.clock())
	return s.sum(ctx, "daily", day.Start.Format("2006-01-02"), func() (core.Totals, error) {
		return s.store.SumByCurrency(ctx, day.Start, day.End)
	})
}

// WeeklyTotal covers Monday 00:00:00 of the current week through now.
func (s *ExpenseService) WeeklyTotal(ctx context.Context) (core.Totals, error) {
	week := core.WeekToDate(s.clock())
	return s.sum(ctx, "weekly", week.Start.Format("2006-01-02"), func() (core.Totals, error) {
		return s.store.SumByCurrency(ctx, week.Start, week.End)
	})
}

// MonthlyTotal covers the current calendar month.
func (s *ExpenseService) MonthlyTotal(ctx context.Context) (core.Totals, error) {
	now := s.clock()
	return s.sum(ctx, "monthly", now.Format("2006-01"), func() (core.Totals, error) {
		return s.store.SumByMonth(ctx, now.Year(), now.Month())
	})
}

// YearlyTotal covers the current calendar year.
func (s *ExpenseService) YearlyTotal(ctx context.Context) (core.Totals, error) {
	now := s.clock()
	return s.sum(ctx, "yearly", now.Format("2006"), func() (core.Totals, error) {
		return s.store.SumByYear(ctx, now.Year())
	})
}

// Summary returns the weekly, monthly and yearly totals together.
func (s *ExpenseService) Summary(ctx context.Context) (core.Summary, error) {
	weekly, err := s.WeeklyTotal(ctx)
	if err != nil {
		return core.Summary{}, err
	}
	monthly, err := s.MonthlyTotal(ctx)
	if err != nil {
		return core.Summary{}, err
	}
	yearly, err := s.YearlyTotal(ctx)
	if err != nil {
		return core.Summary{}, err
	}
	return core.Summary{Weekly: weekly, Monthly: monthly, Yearly: yearly}, nil
}

// sum runs fn for the named period. A non-empty bucket makes the result
// cacheable under period:bucket.
func (s *ExpenseService) sum(ctx context.Context, period, bucket string, fn func() (core.Totals, error)) (core.Totals, error) {
	key := period + ":" + bucket
	cacheable := bucket != "" && s.totals != nil

	var gen uint64
	if cacheable {
		s.cacheMu.Lock()
		gen = s.generation
		cached, ok := s.totals.Get(key)
		s.cacheMu.Unlock()
		if ok {
			return cached.Clone(), nil
		}
	}

	totals, err := fn()
	if err != nil {
		s.logFailure(ctx, applog.OpSummary, err, applog.FieldPeriod, period)
		return nil, fmt.Errorf("%s total: %w", period, err)
	}

	if cacheable {
		s.cacheMu.Lock()
		if s.generation == gen {
			s.totals.Set(key, totals.Clone())
		}
		s.cacheMu.Unlock()
	}
	return totals, nil
}

// invalidateTotals runs after every successful write.
func (s *ExpenseService) invalidateTotals() {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.generation++
	if s.totals != nil {
		s.totals.Purge()
	}
}

func (s *ExpenseService) clock() time.Time {
	return s.now().In(s.loc)
}

// Caller mistakes are logged at warn, storage failures at error.
func (s *ExpenseService) logFailure(ctx context.Context, op string, err error, args ...any) {
	fields := append(applog.NewFields().WithOperation(op).WithError(err).ToSlice(), args...)
	if errors.Is(err, core.ErrNotFound) || errors.Is(err, core.ErrInvalidAmount) {
		s.logger.WarnContext(ctx, "Expense operation rejected", fields...)
		return
	}
	s.logger.ErrorContext(ctx, "Expense operation failed", fields...)
}

// Close closes the underlying store.
func (s *ExpenseService) Close() error {
	if s.store == nil {
		return nil
	}
	if err := s.store.Close(); err != nil {
		return fmt.Errorf("close expense service: %w", err)
	}
	return nil
}
