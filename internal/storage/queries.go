package storage

import (
	"context"
	"database/sql"
)

// DBTX is satisfied by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

// Queries holds the SQL for the expenses table.
type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

// ExpenseRow mirrors one row of the expenses table. Every column except id is
// nullable because the table predates any constraints.
type ExpenseRow struct {
	ID          int64
	Date        sql.NullString
	Description sql.NullString
	Amount      sql.NullFloat64
	Category    sql.NullString
	Currency    sql.NullString
}

// CurrencyAmount is one (currency, amount) pair read for aggregation.
type CurrencyAmount struct {
	Currency sql.NullString
	Amount   sql.NullFloat64
}

const expenseColumns = `id, date, description, amount, category, currency`

const createExpense = `INSERT INTO expenses (date, description, amount, category, currency)
VALUES (?, ?, ?, ?, ?)`

type CreateExpenseParams struct {
	Date        string
	Description string
	Amount      float64
	Category    string
	Currency    string
}

func (q *Queries) CreateExpense(ctx context.Context, arg CreateExpenseParams) (int64, error) {
	res, err := q.db.ExecContext(ctx, createExpense,
		arg.Date,
		arg.Description,
		arg.Amount,
		arg.Category,
		arg.Currency,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

const getExpense = `SELECT ` + expenseColumns + ` FROM expenses WHERE id = ?`

func (q *Queries) GetExpense(ctx context.Context, id int64) (ExpenseRow, error) {
	row := q.db.QueryRowContext(ctx, getExpense, id)
	var i ExpenseRow
	err := row.Scan(
		&i.ID,
		&i.Date,
		&i.Description,
		&i.Amount,
		&i.Category,
		&i.Currency,
	)
	return i, err
}

const listExpenses = `SELECT ` + expenseColumns + ` FROM expenses ORDER BY date DESC, id DESC`

func (q *Queries) ListExpenses(ctx context.Context) ([]ExpenseRow, error) {
	rows, err := q.db.QueryContext(ctx, listExpenses)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []ExpenseRow{}
	for rows.Next() {
		var i ExpenseRow
		if err := rows.Scan(
			&i.ID,
			&i.Date,
			&i.Description,
			&i.Amount,
			&i.Category,
			&i.Currency,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const updateExpense = `UPDATE expenses
SET description = ?, amount = ?, category = ?, currency = ?
WHERE id = ?`

type UpdateExpenseParams struct {
	ID          int64
	Description string
	Amount      float64
	Category    string
	Currency    string
}

// UpdateExpense returns the number of rows changed.
func (q *Queries) UpdateExpense(ctx context.Context, arg UpdateExpenseParams) (int64, error) {
	res, err := q.db.ExecContext(ctx, updateExpense,
		arg.Description,
		arg.Amount,
		arg.Category,
		arg.Currency,
		arg.ID,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const deleteExpense = `DELETE FROM expenses WHERE id = ?`

func (q *Queries) DeleteExpense(ctx context.Context, id int64) (int64, error) {
	res, err := q.db.ExecContext(ctx, deleteExpense, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const deleteAllExpenses = `DELETE FROM expenses`

func (q *Queries) DeleteAllExpenses(ctx context.Context) (int64, error) {
	res, err := q.db.ExecContext(ctx, deleteAllExpenses)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const amountsBetween = `SELECT currency, amount FROM expenses WHERE date BETWEEN ? AND ?`

func (q *Queries) AmountsBetween(ctx context.Context, start, end string) ([]CurrencyAmount, error) {
	return q.currencyAmounts(ctx, amountsBetween, start, end)
}

const amountsInMonth = `SELECT currency, amount FROM expenses WHERE strftime('%Y-%m', date) = ?`

// AmountsInMonth matches on the calendar month, formatted as "YYYY-MM".
func (q *Queries) AmountsInMonth(ctx context.Context, yearMonth string) ([]CurrencyAmount, error) {
	return q.currencyAmounts(ctx, amountsInMonth, yearMonth)
}

const amountsInYear = `SELECT currency, amount FROM expenses WHERE strftime('%Y', date) = ?`

// AmountsInYear matches on the calendar year, formatted as "YYYY".
func (q *Queries) AmountsInYear(ctx context.Context, year string) ([]CurrencyAmount, error) {
	return q.currencyAmounts(ctx, amountsInYear, year)
}

func (q *Queries) currencyAmounts(ctx context.Context, query string, args ...interface{}) ([]CurrencyAmount, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []CurrencyAmount
	for rows.Next() {
		var i CurrencyAmount
		if err := rows.Scan(&i.Currency, &i.Amount); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
