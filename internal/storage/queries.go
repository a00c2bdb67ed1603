package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"finledger/internal/core"
)

// ErrNotFound is returned when a row does not exist.
var ErrNotFound = errors.New("not found")

// DBTX is satisfied by both *sql.DB and *sql.Tx so every query can run
// standalone or inside a unit of work.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Queries bundles all SQL against one DBTX.
type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

// --- accounts ---

func (q *Queries) CreateAccount(ctx context.Context, a *core.Account) error {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	err := q.db.QueryRowContext(ctx, `
		INSERT INTO accounts (user_id, name, type, balance, created_at)
		VALUES (?, ?, ?, ?, ?)
		RETURNING id`,
		a.UserID, a.Name, a.Type, a.Balance.String(), a.CreatedAt.Format(time.RFC3339),
	).Scan(&a.ID)
	if err != nil {
		return fmt.Errorf("create account: %w", err)
	}
	return nil
}

func (q *Queries) GetAccount(ctx context.Context, id int64) (*core.Account, error) {
	row := q.db.QueryRowContext(ctx, `
		SELECT id, user_id, name, type, balance, created_at
		FROM accounts WHERE id = ?`, id)
	a, err := scanAccount(row)
	if err != nil {
		return nil, fmt.Errorf("get account %d: %w", id, err)
	}
	return a, nil
}

func (q *Queries) ListAccountsByUser(ctx context.Context, userID int64) ([]core.Account, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, user_id, name, type, balance, created_at
		FROM accounts WHERE user_id = ? ORDER BY id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []core.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("list accounts: %w", err)
		}
		accounts = append(accounts, *a)
	}
	return accounts, rows.Err()
}

func (q *Queries) UpdateAccountBalance(ctx context.Context, id int64, balance decimal.Decimal) error {
	res, err := q.db.ExecContext(ctx,
		`UPDATE accounts SET balance = ? WHERE id = ?`, balance.String(), id)
	if err != nil {
		return fmt.Errorf("update account balance: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("update account balance %d: %w", id, ErrNotFound)
	}
	return nil
}

func (q *Queries) DeleteAccount(ctx context.Context, id int64) error {
	res, err := q.db.ExecContext(ctx, `DELETE FROM accounts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete account: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("delete account %d: %w", id, ErrNotFound)
	}
	return nil
}

func scanAccount(row rowScanner) (*core.Account, error) {
	var (
		a         core.Account
		balance   string
		createdAt string
	)
	if err := row.Scan(&a.ID, &a.UserID, &a.Name, &a.Type, &balance, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	var err error
	if a.Balance, err = decimal.NewFromString(balance); err != nil {
		return nil, fmt.Errorf("parse balance %q: %w", balance, err)
	}
	if a.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at %q: %w", createdAt, err)
	}
	return &a, nil
}

// --- categories ---

func (q *Queries) CreateCategory(ctx context.Context, c *core.Category) error {
	err := q.db.QueryRowContext(ctx, `
		INSERT INTO categories (user_id, parent_id, name, icon, type)
		VALUES (?, ?, ?, ?, ?)
		RETURNING id`,
		c.UserID, c.ParentID, c.Name, c.Icon, string(c.Type),
	).Scan(&c.ID)
	if err != nil {
		return fmt.Errorf("create category: %w", err)
	}
	return nil
}

func (q *Queries) GetCategory(ctx context.Context, id int64) (*core.Category, error) {
	var (
		c     core.Category
		ctype string
	)
	err := q.db.QueryRowContext(ctx, `
		SELECT id, user_id, parent_id, name, icon, type
		FROM categories WHERE id = ?`, id).
		Scan(&c.ID, &c.UserID, &c.ParentID, &c.Name, &c.Icon, &ctype)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get category %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get category %d: %w", id, err)
	}
	c.Type = core.TransactionType(ctype)
	return &c, nil
}

func (q *Queries) DeleteCategory(ctx context.Context, id int64) error {
	res, err := q.db.ExecContext(ctx, `DELETE FROM categories WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete category: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("delete category %d: %w", id, ErrNotFound)
	}
	return nil
}

// --- transactions ---

func (q *Queries) CreateTransaction(ctx context.Context, t *core.Transaction) error {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	err := q.db.QueryRowContext(ctx, `
		INSERT INTO transactions
			(source_account_id, destination_account_id, category_id, amount,
			 type, description, transaction_date, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`,
		t.SourceAccountID, t.DestinationAccountID, t.CategoryID,
		t.Amount.String(), string(t.Type), t.Description,
		t.TransactionDate.String(), t.CreatedAt.Format(time.RFC3339),
	).Scan(&t.ID)
	if err != nil {
		return fmt.Errorf("create transaction: %w", err)
	}
	return nil
}

func (q *Queries) GetTransaction(ctx context.Context, id int64) (*core.Transaction, error) {
	row := q.db.QueryRowContext(ctx, `
		SELECT id, source_account_id, destination_account_id, category_id,
		       amount, type, description, transaction_date, created_at
		FROM transactions WHERE id = ?`, id)
	t, err := scanTransaction(row)
	if err != nil {
		return nil, fmt.Errorf("get transaction %d: %w", id, err)
	}
	return t, nil
}

func (q *Queries) UpdateTransaction(ctx context.Context, t *core.Transaction) error {
	res, err := q.db.ExecContext(ctx, `
		UPDATE transactions
		SET source_account_id = ?, destination_account_id = ?, category_id = ?,
		    amount = ?, type = ?, description = ?, transaction_date = ?
		WHERE id = ?`,
		t.SourceAccountID, t.DestinationAccountID, t.CategoryID,
		t.Amount.String(), string(t.Type), t.Description,
		t.TransactionDate.String(), t.ID)
	if err != nil {
		return fmt.Errorf("update transaction: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("update transaction %d: %w", t.ID, ErrNotFound)
	}
	return nil
}

func (q *Queries) DeleteTransaction(ctx context.Context, id int64) error {
	res, err := q.db.ExecContext(ctx, `DELETE FROM transactions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("delete transaction %d: %w", id, ErrNotFound)
	}
	return nil
}

func (q *Queries) ListTransactionsByAccount(ctx context.Context, accountID int64) ([]core.Transaction, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, source_account_id, destination_account_id, category_id,
		       amount, type, description, transaction_date, created_at
		FROM transactions
		WHERE source_account_id = ? OR destination_account_id = ?
		ORDER BY transaction_date, id`, accountID, accountID)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var out []core.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("list transactions: %w", err)
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

// SumExpensesByCategoryMonth totals a user's EXPENSE transactions for one
// category in one calendar month. Amounts are summed in Go with decimal
// arithmetic; SQLite would coerce the TEXT column to float.
func (q *Queries) SumExpensesByCategoryMonth(ctx context.Context, userID, categoryID int64, month, year int) (decimal.Decimal, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT t.amount
		FROM transactions t
		JOIN accounts a ON a.id = t.source_account_id
		WHERE a.user_id = ? AND t.category_id = ? AND t.type = 'EXPENSE'
		  AND strftime('%m', t.transaction_date) = ?
		  AND strftime('%Y', t.transaction_date) = ?`,
		userID, categoryID, fmt.Sprintf("%02d", month), fmt.Sprintf("%04d", year))
	if err != nil {
		return decimal.Zero, fmt.Errorf("sum expenses: %w", err)
	}
	defer rows.Close()

	total := decimal.Zero
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return decimal.Zero, fmt.Errorf("sum expenses: %w", err)
		}
		amount, err := decimal.NewFromString(s)
		if err != nil {
			return decimal.Zero, fmt.Errorf("sum expenses: parse amount %q: %w", s, err)
		}
		total = total.Add(amount)
	}
	return total, rows.Err()
}

func scanTransaction(row rowScanner) (*core.Transaction, error) {
	var (
		t         core.Transaction
		amount    string
		ttype     string
		txDate    string
		createdAt string
	)
	err := row.Scan(&t.ID, &t.SourceAccountID, &t.DestinationAccountID,
		&t.CategoryID, &amount, &ttype, &t.Description, &txDate, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if t.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("parse amount %q: %w", amount, err)
	}
	t.Type = core.TransactionType(ttype)
	if t.TransactionDate, err = core.ParseDate(txDate); err != nil {
		return nil, fmt.Errorf("parse transaction_date %q: %w", txDate, err)
	}
	if t.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at %q: %w", createdAt, err)
	}
	return &t, nil
}

// --- recurring schedules ---

func (q *Queries) CreateSchedule(ctx context.Context, s *core.RecurringSchedule) error {
	err := q.db.QueryRowContext(ctx, `
		INSERT INTO recurring_schedules
			(user_id, source_account_id, destination_account_id, category_id,
			 amount, type, description, frequency, start_date, next_run_date,
			 is_active, deactivated_reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`,
		s.UserID, s.SourceAccountID, s.DestinationAccountID, s.CategoryID,
		s.Amount.String(), string(s.Type), s.Description, string(s.Frequency),
		s.StartDate.String(), s.NextRunDate.String(),
		s.IsActive, string(s.DeactivatedReason),
	).Scan(&s.ID)
	if err != nil {
		return fmt.Errorf("create schedule: %w", err)
	}
	return nil
}

func (q *Queries) GetSchedule(ctx context.Context, id int64) (*core.RecurringSchedule, error) {
	row := q.db.QueryRowContext(ctx, scheduleSelect+` WHERE id = ?`, id)
	s, err := scanSchedule(row)
	if err != nil {
		return nil, fmt.Errorf("get schedule %d: %w", id, err)
	}
	return s, nil
}

func (q *Queries) UpdateSchedule(ctx context.Context, s *core.RecurringSchedule) error {
	res, err := q.db.ExecContext(ctx, `
		UPDATE recurring_schedules
		SET source_account_id = ?, destination_account_id = ?, category_id = ?,
		    amount = ?, type = ?, description = ?, frequency = ?,
		    start_date = ?, next_run_date = ?, is_active = ?, deactivated_reason = ?
		WHERE id = ?`,
		s.SourceAccountID, s.DestinationAccountID, s.CategoryID,
		s.Amount.String(), string(s.Type), s.Description, string(s.Frequency),
		s.StartDate.String(), s.NextRunDate.String(),
		s.IsActive, string(s.DeactivatedReason), s.ID)
	if err != nil {
		return fmt.Errorf("update schedule: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("update schedule %d: %w", s.ID, ErrNotFound)
	}
	return nil
}

func (q *Queries) UpdateScheduleNextRun(ctx context.Context, id int64, next core.Date) error {
	res, err := q.db.ExecContext(ctx,
		`UPDATE recurring_schedules SET next_run_date = ? WHERE id = ?`,
		next.String(), id)
	if err != nil {
		return fmt.Errorf("update schedule next run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("update schedule next run %d: %w", id, ErrNotFound)
	}
	return nil
}

func (q *Queries) SetScheduleActive(ctx context.Context, id int64, active bool, reason core.DeactivationReason) error {
	res, err := q.db.ExecContext(ctx, `
		UPDATE recurring_schedules
		SET is_active = ?, deactivated_reason = ?
		WHERE id = ?`,
		active, string(reason), id)
	if err != nil {
		return fmt.Errorf("set schedule active: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("set schedule active %d: %w", id, ErrNotFound)
	}
	return nil
}

func (q *Queries) DeleteSchedule(ctx context.Context, id int64) error {
	res, err := q.db.ExecContext(ctx, `DELETE FROM recurring_schedules WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete schedule: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("delete schedule %d: %w", id, ErrNotFound)
	}
	return nil
}

func (q *Queries) ListSchedulesByUser(ctx context.Context, userID int64) ([]core.RecurringSchedule, error) {
	return q.listSchedules(ctx, scheduleSelect+` WHERE user_id = ? ORDER BY next_run_date, id`, userID)
}

func (q *Queries) ListActiveSchedulesByUser(ctx context.Context, userID int64) ([]core.RecurringSchedule, error) {
	return q.listSchedules(ctx, scheduleSelect+` WHERE user_id = ? AND is_active = 1 ORDER BY next_run_date, id`, userID)
}

// ListActiveUserIDs returns every user that still owns at least one active
// schedule, for the worker's fan-out.
func (q *Queries) ListActiveUserIDs(ctx context.Context) ([]int64, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT DISTINCT user_id FROM recurring_schedules WHERE is_active = 1 ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("list active user ids: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("list active user ids: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (q *Queries) listSchedules(ctx context.Context, query string, args ...any) ([]core.RecurringSchedule, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list schedules: %w", err)
	}
	defer rows.Close()

	var out []core.RecurringSchedule
	for rows.Next() {
		s, err := scanSchedule(rows)
		if err != nil {
			return nil, fmt.Errorf("list schedules: %w", err)
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

const scheduleSelect = `
	SELECT id, user_id, source_account_id, destination_account_id, category_id,
	       amount, type, description, frequency, start_date, next_run_date,
	       is_active, deactivated_reason
	FROM recurring_schedules`

func scanSchedule(row rowScanner) (*core.RecurringSchedule, error) {
	var (
		s         core.RecurringSchedule
		amount    string
		stype     string
		frequency string
		startDate string
		nextRun   string
		reason    string
	)
	err := row.Scan(&s.ID, &s.UserID, &s.SourceAccountID, &s.DestinationAccountID,
		&s.CategoryID, &amount, &stype, &s.Description, &frequency,
		&startDate, &nextRun, &s.IsActive, &reason)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if s.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("parse amount %q: %w", amount, err)
	}
	s.Type = core.TransactionType(stype)
	s.Frequency = core.Frequency(frequency)
	s.DeactivatedReason = core.DeactivationReason(reason)
	if s.StartDate, err = core.ParseDate(startDate); err != nil {
		return nil, fmt.Errorf("parse start_date %q: %w", startDate, err)
	}
	if s.NextRunDate, err = core.ParseDate(nextRun); err != nil {
		return nil, fmt.Errorf("parse next_run_date %q: %w", nextRun, err)
	}
	return &s, nil
}

// --- budgets ---

func (q *Queries) CreateBudget(ctx context.Context, b *core.Budget) error {
	err := q.db.QueryRowContext(ctx, `
		INSERT INTO budgets (user_id, category_id, amount, month, year)
		VALUES (?, ?, ?, ?, ?)
		RETURNING id`,
		b.UserID, b.CategoryID, b.Amount.String(), b.Month, b.Year,
	).Scan(&b.ID)
	if err != nil {
		return fmt.Errorf("create budget: %w", err)
	}
	return nil
}

func (q *Queries) ListBudgetsByUser(ctx context.Context, userID int64) ([]core.Budget, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, user_id, category_id, amount, month, year
		FROM budgets WHERE user_id = ? ORDER BY year, month, id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list budgets: %w", err)
	}
	defer rows.Close()

	var out []core.Budget
	for rows.Next() {
		var (
			b      core.Budget
			amount string
		)
		if err := rows.Scan(&b.ID, &b.UserID, &b.CategoryID, &amount, &b.Month, &b.Year); err != nil {
			return nil, fmt.Errorf("list budgets: %w", err)
		}
		if b.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("list budgets: parse amount %q: %w", amount, err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (q *Queries) DeleteBudget(ctx context.Context, id int64) error {
	res, err := q.db.ExecContext(ctx, `DELETE FROM budgets WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete budget: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("delete budget %d: %w", id, ErrNotFound)
	}
	return nil
}
