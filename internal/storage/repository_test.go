package storage

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"billbuddy/internal/core"
	applog "billbuddy/internal/log"
)

// stepClock hands out next, then advances it by step.
type stepClock struct {
	mu   sync.Mutex
	next time.Time
	step time.Duration
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.next
	c.next = c.next.Add(c.step)
	return t
}

func newTestStore(t *testing.T, opts ...Option) *SQLiteStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "expenses.db")
	opts = append([]Option{WithLocation(time.UTC)}, opts...)
	s, err := Open(context.Background(), path, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func input(desc, amount, category string, currency core.Currency) core.ExpenseInput {
	return core.ExpenseInput{Description: desc, Amount: amount, Category: category, Currency: currency}
}

func assertSameExpense(t *testing.T, want, got core.Expense) {
	t.Helper()
	assert.Equal(t, want.ID, got.ID)
	assert.True(t, want.Date.Equal(got.Date), "date: want %v, got %v", want.Date, got.Date)
	assert.Equal(t, want.Description, got.Description)
	assert.True(t, want.Amount.Equal(got.Amount), "amount: want %s, got %s", want.Amount, got.Amount)
	assert.Equal(t, want.Category, got.Category)
	assert.Equal(t, want.Currency, got.Currency)
}

func TestOpenIsIdempotent(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "expenses.db")

	s, err := Open(ctx, path)
	require.NoError(t, err)
	_, err = s.Create(ctx, input("Coffee", "3.20", "Food", "EUR"))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(ctx, path)
	require.NoError(t, err)
	defer s.Close()

	list, err := s.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1, "reopening must keep existing rows")
	assert.NoError(t, s.Ping(ctx))
}

func TestOpenUnavailable(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	_, err := Open(context.Background(), filepath.Join(blocker, "sub", "expenses.db"))
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrStorageUnavailable)
}

func TestOpenLegacyDatabase(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "expenses.db")

	// A file created without migration bookkeeping, as the first release did.
	s, err := Open(ctx, path)
	require.NoError(t, err)
	_, err = s.db.ExecContext(ctx, `DROP TABLE schema_migrations`)
	require.NoError(t, err)
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO expenses (date, description, amount, category, currency) VALUES ('2024-01-02 10:00:00', 'Old', 7.5, 'Misc', 'GBP')`)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	var logs bytes.Buffer
	logger := applog.New(applog.Config{Level: slog.LevelInfo, Output: &logs})
	s, err = Open(ctx, path, WithLocation(time.UTC), WithLogger(logger))
	require.NoError(t, err)
	defer s.Close()

	list, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Old", list[0].Description)
	assert.Equal(t, core.Currency("GBP"), list[0].Currency)
	assert.Contains(t, logs.String(), "Adopted expenses table")
	assert.Contains(t, logs.String(), "component=storage")
}

func TestRunMigrationsReportsVersion(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "expenses.db")
	logger := applog.New(applog.Config{Level: slog.LevelDebug, Output: &bytes.Buffer{}})

	for i := 0; i < 2; i++ {
		version, err := RunMigrations(ctx, path, logger)
		require.NoError(t, err)
		assert.Equal(t, uint(1), version)
	}
}

func TestCreateGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 18, 14, 30, 15, 987654321, time.UTC)
	s := newTestStore(t, WithClock(func() time.Time { return now }))

	cases := []core.ExpenseInput{
		input("Lunch", "10.50", "Food", "USD"),
		input("Taxi", "-3", "Transport", "php"),
		input("", "0", "", ""),
		input("Unknown currency", "1e2", "Misc", "XYZ"),
	}
	for _, in := range cases {
		created, err := s.Create(ctx, in)
		require.NoError(t, err)

		assert.Equal(t, "2025-06-18 14:30:15", core.FormatDate(created.Date), "date is truncated to the second")
		assert.Equal(t, core.NormalizeCurrency(in.Currency), created.Currency)

		got, err := s.Get(ctx, created.ID)
		require.NoError(t, err)
		assertSameExpense(t, created, got)
	}
}

func TestCreateDefaultsCurrency(t *testing.T) {
	s := newTestStore(t)
	e, err := s.Create(context.Background(), input("Snack", "2", "Food", ""))
	require.NoError(t, err)
	assert.Equal(t, core.DefaultCurrency, e.Currency)
}

func TestCreateInvalidAmount(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	_, err := s.Create(ctx, input("Ok", "1", "Misc", "USD"))
	require.NoError(t, err)

	for _, amount := range []string{"abc", "", "NaN", "1.2.3"} {
		_, err := s.Create(ctx, input("Bad", amount, "Misc", "USD"))
		assert.ErrorIs(t, err, core.ErrInvalidAmount, "amount %q", amount)
	}

	list, err := s.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestIDsAreUniqueAndIncreasing(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	var last int64
	seen := map[int64]bool{}
	for i := 0; i < 20; i++ {
		e, err := s.Create(ctx, input("e", "1", "c", "USD"))
		require.NoError(t, err)
		assert.False(t, seen[e.ID], "duplicate id %d", e.ID)
		assert.Greater(t, e.ID, last)
		seen[e.ID] = true
		last = e.ID
	}

	// Deleted ids are not handed out again.
	require.NoError(t, s.Delete(ctx, last))
	e, err := s.Create(ctx, input("e", "1", "c", "USD"))
	require.NoError(t, err)
	assert.Greater(t, e.ID, last)
}

func TestListOrdering(t *testing.T) {
	ctx := context.Background()
	clock := &stepClock{next: time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC), step: time.Minute}
	s := newTestStore(t, WithClock(clock.Now))

	t1, err := s.Create(ctx, input("first", "1", "c", "USD"))
	require.NoError(t, err)
	t2, err := s.Create(ctx, input("second", "2", "c", "USD"))
	require.NoError(t, err)
	t3, err := s.Create(ctx, input("third", "3", "c", "USD"))
	require.NoError(t, err)

	list, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, []int64{t3.ID, t2.ID, t1.ID}, []int64{list[0].ID, list[1].ID, list[2].ID})
}

func TestListTiesBrokenByID(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC)
	s := newTestStore(t, WithClock(func() time.Time { return now }))

	a, err := s.Create(ctx, input("a", "1", "c", "USD"))
	require.NoError(t, err)
	b, err := s.Create(ctx, input("b", "1", "c", "USD"))
	require.NoError(t, err)

	list, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, b.ID, list[0].ID)
	assert.Equal(t, a.ID, list[1].ID)
}

func TestListIsSnapshot(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	_, err := s.Create(ctx, input("a", "1", "c", "USD"))
	require.NoError(t, err)

	list, err := s.List(ctx)
	require.NoError(t, err)
	_, err = s.Create(ctx, input("b", "1", "c", "USD"))
	require.NoError(t, err)
	assert.Len(t, list, 1)

	empty := newTestStore(t)
	list, err = empty.List(ctx)
	require.NoError(t, err)
	assert.NotNil(t, list)
	assert.Empty(t, list)
}

func TestGetNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Get(context.Background(), 42)
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestUpdateKeepsIDAndDate(t *testing.T) {
	ctx := context.Background()
	clock := &stepClock{next: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC), step: time.Hour}
	s := newTestStore(t, WithClock(clock.Now))

	created, err := s.Create(ctx, input("Lunch", "10", "Food", "USD"))
	require.NoError(t, err)

	updated, err := s.Update(ctx, created.ID, input("Dinner", "25.75", "Dining", "eur"))
	require.NoError(t, err)
	assert.Equal(t, created.ID, updated.ID)
	assert.True(t, created.Date.Equal(updated.Date))
	assert.Equal(t, "Dinner", updated.Description)
	assert.True(t, updated.Amount.Equal(decimal.RequireFromString("25.75")))
	assert.Equal(t, "Dining", updated.Category)
	assert.Equal(t, core.Currency("EUR"), updated.Currency)

	got, err := s.Get(ctx, created.ID)
	require.NoError(t, err)
	assertSameExpense(t, updated, got)
}

func TestUpdateErrors(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	created, err := s.Create(ctx, input("Lunch", "10", "Food", "USD"))
	require.NoError(t, err)

	_, err = s.Update(ctx, created.ID+100, input("x", "1", "c", "USD"))
	assert.ErrorIs(t, err, core.ErrNotFound)

	_, err = s.Update(ctx, created.ID, input("x", "abc", "c", "USD"))
	assert.ErrorIs(t, err, core.ErrInvalidAmount)

	list, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assertSameExpense(t, created, list[0])
}

func TestUpdateUnreadableRowIsNotWritten(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO expenses (date, description, amount, category, currency) VALUES ('yesterday', 'Legacy', 4, 'Misc', 'USD')`)
	require.NoError(t, err)
	id, err := res.LastInsertId()
	require.NoError(t, err)

	_, err = s.Update(ctx, id, input("Changed", "9", "Food", "EUR"))
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrStorageRead)

	var desc, currency string
	var amount float64
	require.NoError(t, s.db.QueryRowContext(ctx,
		`SELECT description, amount, currency FROM expenses WHERE id = ?`, id).Scan(&desc, &amount, &currency))
	assert.Equal(t, "Legacy", desc)
	assert.Equal(t, 4.0, amount)
	assert.Equal(t, "USD", currency)
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	a, err := s.Create(ctx, input("a", "1", "c", "USD"))
	require.NoError(t, err)
	_, err = s.Create(ctx, input("b", "2", "c", "USD"))
	require.NoError(t, err)

	require.NoError(t, s.Delete(ctx, a.ID))

	_, err = s.Get(ctx, a.ID)
	assert.ErrorIs(t, err, core.ErrNotFound)
	list, err := s.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	assert.ErrorIs(t, s.Delete(ctx, a.ID), core.ErrNotFound)
}

func TestResetAll(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	n, err := s.ResetAll(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	for i := 0; i < 3; i++ {
		_, err := s.Create(ctx, input("e", "1", "c", "USD"))
		require.NoError(t, err)
	}
	n, err = s.ResetAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	list, err := s.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestSumByCurrencyToday(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 18, 12, 0, 0, 0, time.UTC)
	s := newTestStore(t, WithClock(func() time.Time { return now }))

	for _, in := range []core.ExpenseInput{
		input("a", "10.50", "c", "USD"),
		input("b", "5.00", "c", "USD"),
		input("c", "20.00", "c", "PHP"),
	} {
		_, err := s.Create(ctx, in)
		require.NoError(t, err)
	}

	day := core.Day(now)
	totals, err := s.SumByCurrency(ctx, day.Start, day.End)
	require.NoError(t, err)
	require.Len(t, totals, 2)
	assert.True(t, totals["USD"].Equal(decimal.RequireFromString("15.50")), "USD=%s", totals["USD"])
	assert.True(t, totals["PHP"].Equal(decimal.RequireFromString("20.00")), "PHP=%s", totals["PHP"])
}

func TestSumByCurrencyInterval(t *testing.T) {
	ctx := context.Background()
	stamps := []time.Time{
		time.Date(2025, 6, 17, 23, 59, 59, 0, time.UTC), // before
		time.Date(2025, 6, 18, 0, 0, 0, 0, time.UTC),    // start bound
		time.Date(2025, 6, 18, 23, 59, 59, 0, time.UTC), // end bound
		time.Date(2025, 6, 19, 0, 0, 0, 0, time.UTC),    // after
	}
	i := 0
	s := newTestStore(t, WithClock(func() time.Time { ts := stamps[i]; i++; return ts }))

	for _, amount := range []string{"1", "2", "4", "8"} {
		_, err := s.Create(ctx, input("e", amount, "c", "EUR"))
		require.NoError(t, err)
	}

	day := core.Day(stamps[1])
	totals, err := s.SumByCurrency(ctx, day.Start, day.End)
	require.NoError(t, err)
	assert.True(t, totals["EUR"].Equal(decimal.NewFromInt(6)), "EUR=%s", totals["EUR"])
	_, hasUSD := totals["USD"]
	assert.False(t, hasUSD, "currencies without rows are absent")

	empty, err := s.SumByCurrency(ctx, stamps[3].Add(time.Hour), stamps[3].Add(2*time.Hour))
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestSumByMonthAndYear(t *testing.T) {
	ctx := context.Background()
	stamps := []time.Time{
		time.Date(2024, 12, 31, 23, 59, 59, 0, time.UTC),
		time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 1, 31, 23, 59, 59, 0, time.UTC),
		time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC),
	}
	amounts := []string{"1", "2", "4", "8"}
	currencies := []core.Currency{"USD", "USD", "JPY", "USD"}
	i := 0
	s := newTestStore(t, WithClock(func() time.Time { ts := stamps[i]; i++; return ts }))
	for j := range stamps {
		_, err := s.Create(ctx, input("e", amounts[j], "c", currencies[j]))
		require.NoError(t, err)
	}

	jan, err := s.SumByMonth(ctx, 2025, time.January)
	require.NoError(t, err)
	assert.Len(t, jan, 2)
	assert.True(t, jan["USD"].Equal(decimal.NewFromInt(2)))
	assert.True(t, jan["JPY"].Equal(decimal.NewFromInt(4)))

	year, err := s.SumByYear(ctx, 2025)
	require.NoError(t, err)
	assert.True(t, year["USD"].Equal(decimal.NewFromInt(10)))
	assert.True(t, year["JPY"].Equal(decimal.NewFromInt(4)))

	prev, err := s.SumByYear(ctx, 2024)
	require.NoError(t, err)
	assert.Len(t, prev, 1)
	assert.True(t, prev["USD"].Equal(decimal.NewFromInt(1)))
}

func TestConcurrentWrites(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 5; j++ {
				_, err := s.Create(ctx, input("e", "1", "c", "USD"))
				assert.NoError(t, err)
				_, err = s.List(ctx)
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	list, err := s.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 40)
}
