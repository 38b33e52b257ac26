package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"billbuddy/internal/core"
	applog "billbuddy/internal/log"

	_ "modernc.org/sqlite"
)

// SQLiteStore is the durable record of expenses. All methods are safe for
// concurrent use: mutations are serialised against each other and against reads.
type SQLiteStore struct {
	mu      sync.RWMutex
	db      *sql.DB
	queries *Queries
	now     func() time.Time
	loc     *time.Location
	logger  *applog.Logger
}

// Option customises a SQLiteStore.
type Option func(*SQLiteStore)

// WithClock replaces time.Now as the source of creation timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *SQLiteStore) { s.now = now }
}

// WithLocation sets the wall-clock zone timestamps are written and read in.
func WithLocation(loc *time.Location) Option {
	return func(s *SQLiteStore) { s.loc = loc }
}

// WithLogger sets the logger; records are tagged with the storage component.
func WithLogger(logger *applog.Logger) Option {
	return func(s *SQLiteStore) { s.logger = logger.WithComponent(applog.ComponentStorage) }
}

// Open creates the database file and its schema if missing. It is safe to
// call on every startup. Failures wrap core.ErrStorageUnavailable.
func Open(ctx context.Context, dbPath string, opts ...Option) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("%w: create db directory: %w", core.ErrStorageUnavailable, err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("%w: open sqlite database: %w", core.ErrStorageUnavailable, err)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: ping database: %w", core.ErrStorageUnavailable, err)
	}

	s := &SQLiteStore{
		db:      db,
		queries: New(db),
		now:     time.Now,
		loc:     time.Local,
		logger:  applog.New(applog.Config{Handler: slog.Default().Handler(), Component: applog.ComponentStorage}),
	}
	for _, opt := range opts {
		opt(s)
	}

	if _, err := RunMigrations(ctx, dbPath, s.logger); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %w", core.ErrStorageUnavailable, err)
	}
	return s, nil
}

func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Ping checks that the database is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: ping database: %w", core.ErrStorageUnavailable, err)
	}
	return nil
}

// Create stamps the expense with the current second and persists it.
func (s *SQLiteStore) Create(ctx context.Context, in core.ExpenseInput) (core.Expense, error) {
	amount, err := core.ParseAmount(in.Amount)
	if err != nil {
		return core.Expense{}, fmt.Errorf("create expense: %w", err)
	}
	currency := core.NormalizeCurrency(in.Currency)

	s.mu.Lock()
	defer s.mu.Unlock()

	stamp := core.FormatDate(s.now().In(s.loc))
	date, err := core.ParseDate(stamp, s.loc)
	if err != nil {
		return core.Expense{}, fmt.Errorf("create expense: %w", err)
	}

	id, err := s.queries.CreateExpense(ctx, CreateExpenseParams{
		Date:        stamp,
		Description: in.Description,
		Amount:      amount.InexactFloat64(),
		Category:    in.Category,
		Currency:    string(currency),
	})
	if err != nil {
		return core.Expense{}, fmt.Errorf("%w: create expense: %w", core.ErrStorageWrite, err)
	}

	e := core.Expense{
		ID:          id,
		Date:        date,
		Description: in.Description,
		Amount:      core.StoredAmount(amount),
		Category:    in.Category,
		Currency:    currency,
	}

	s.logger.DebugContext(ctx, "Expense saved", applog.NewFields().
		WithExpense(e.ID, e.Amount.String(), string(e.Currency), e.Category).
		WithOperation(applog.OpCreate).
		ToSlice()...)

	return e, nil
}

// List returns a snapshot of every expense, newest first. Expenses sharing a
// timestamp are ordered by descending id.
func (s *SQLiteStore) List(ctx context.Context) ([]core.Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.queries.ListExpenses(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: list expenses: %w", core.ErrStorageRead, err)
	}

	expenses := make([]core.Expense, 0, len(rows))
	for _, row := range rows {
		e, err := s.toExpense(row)
		if err != nil {
			return nil, fmt.Errorf("%w: list expenses: %w", core.ErrStorageRead, err)
		}
		expenses = append(expenses, e)
	}
	return expenses, nil
}

// Get retrieves a single expense by ID.
func (s *SQLiteStore) Get(ctx context.Context, id int64) (core.Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.get(ctx, id)
}

func (s *SQLiteStore) get(ctx context.Context, id int64) (core.Expense, error) {
	row, err := s.queries.GetExpense(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Expense{}, fmt.Errorf("get expense %d: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return core.Expense{}, fmt.Errorf("%w: get expense %d: %w", core.ErrStorageRead, id, err)
	}

	e, err := s.toExpense(row)
	if err != nil {
		return core.Expense{}, fmt.Errorf("%w: get expense %d: %w", core.ErrStorageRead, id, err)
	}
	return e, nil
}

// Update overwrites the editable fields of an expense. ID and date are kept.
// The row is read and decoded before the write, so a failure of either leaves
// it untouched.
func (s *SQLiteStore) Update(ctx context.Context, id int64, in core.ExpenseInput) (core.Expense, error) {
	amount, err := core.ParseAmount(in.Amount)
	if err != nil {
		return core.Expense{}, fmt.Errorf("update expense %d: %w", id, err)
	}
	currency := core.NormalizeCurrency(in.Currency)

	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.get(ctx, id)
	if err != nil {
		return core.Expense{}, fmt.Errorf("update expense %d: %w", id, err)
	}

	n, err := s.queries.UpdateExpense(ctx, UpdateExpenseParams{
		ID:          id,
		Description: in.Description,
		Amount:      amount.InexactFloat64(),
		Category:    in.Category,
		Currency:    string(currency),
	})
	if err != nil {
		return core.Expense{}, fmt.Errorf("%w: update expense %d: %w", core.ErrStorageWrite, id, err)
	}
	if n == 0 {
		return core.Expense{}, fmt.Errorf("update expense %d: %w", id, core.ErrNotFound)
	}

	e := core.Expense{
		ID:          id,
		Date:        current.Date,
		Description: in.Description,
		Amount:      core.StoredAmount(amount),
		Category:    in.Category,
		Currency:    currency,
	}
	s.logger.DebugContext(ctx, "Expense updated", applog.NewFields().
		WithExpense(e.ID, e.Amount.String(), string(e.Currency), e.Category).
		WithOperation(applog.OpUpdate).
		ToSlice()...)
	return e, nil
}

// Delete removes one expense. A missing ID is reported as core.ErrNotFound.
func (s *SQLiteStore) Delete(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, err := s.queries.DeleteExpense(ctx, id)
	if err != nil {
		return fmt.Errorf("%w: delete expense %d: %w", core.ErrStorageWrite, id, err)
	}
	if n == 0 {
		return fmt.Errorf("delete expense %d: %w", id, core.ErrNotFound)
	}

	s.logger.DebugContext(ctx, "Expense deleted", applog.FieldExpenseID, id, applog.FieldOperation, applog.OpDelete)
	return nil
}

// ResetAll removes every expense and reports how many were removed.
func (s *SQLiteStore) ResetAll(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, err := s.queries.DeleteAllExpenses(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: reset expenses: %w", core.ErrStorageWrite, err)
	}

	s.logger.DebugContext(ctx, "All expenses deleted", applog.FieldCount, n, applog.FieldOperation, applog.OpReset)
	return n, nil
}

// SumByCurrency totals expenses dated within [start, end], per currency.
func (s *SQLiteStore) SumByCurrency(ctx context.Context, start, end time.Time) (core.Totals, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items, err := s.queries.AmountsBetween(ctx,
		core.FormatDate(start.In(s.loc)),
		core.FormatDate(end.In(s.loc)))
	if err != nil {
		return nil, fmt.Errorf("%w: sum by currency: %w", core.ErrStorageRead, err)
	}
	return sumAmounts(items), nil
}

// SumByMonth totals expenses whose calendar month matches, per currency.
func (s *SQLiteStore) SumByMonth(ctx context.Context, year int, month time.Month) (core.Totals, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items, err := s.queries.AmountsInMonth(ctx, fmt.Sprintf("%04d-%02d", year, int(month)))
	if err != nil {
		return nil, fmt.Errorf("%w: sum by month: %w", core.ErrStorageRead, err)
	}
	return sumAmounts(items), nil
}

// SumByYear totals expenses whose calendar year matches, per currency.
func (s *SQLiteStore) SumByYear(ctx context.Context, year int) (core.Totals, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items, err := s.queries.AmountsInYear(ctx, fmt.Sprintf("%04d", year))
	if err != nil {
		return nil, fmt.Errorf("%w: sum by year: %w", core.ErrStorageRead, err)
	}
	return sumAmounts(items), nil
}

func sumAmounts(items []CurrencyAmount) core.Totals {
	totals := core.Totals{}
	for _, it := range items {
		totals.Add(core.Currency(it.Currency.String), decimal.NewFromFloat(it.Amount.Float64))
	}
	return totals
}

func (s *SQLiteStore) toExpense(row ExpenseRow) (core.Expense, error) {
	date, err := core.ParseDate(row.Date.String, s.loc)
	if err != nil {
		return core.Expense{}, fmt.Errorf("parse date of expense %d: %w", row.ID, err)
	}
	return core.Expense{
		ID:          row.ID,
		Date:        date,
		Description: row.Description.String,
		Amount:      decimal.NewFromFloat(row.Amount.Float64),
		Category:    row.Category.String,
		Currency:    core.Currency(row.Currency.String),
	}, nil
}
