package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"

	"finledger/internal/core"
)

func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	repo, err := NewRepository(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("open test repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestAccountRoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	a := &core.Account{UserID: 1, Name: "checking", Balance: dec("1234.56")}
	if err := repo.Queries().CreateAccount(ctx, a); err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	if a.ID == 0 {
		t.Fatal("CreateAccount did not assign an id")
	}

	got, err := repo.Queries().GetAccount(ctx, a.ID)
	if err != nil {
		t.Fatalf("GetAccount: %v", err)
	}
	if !got.Balance.Equal(dec("1234.56")) {
		t.Errorf("balance = %s, want 1234.56", got.Balance)
	}
	if got.Name != "checking" || got.UserID != 1 {
		t.Errorf("unexpected account: %+v", got)
	}

	if err := repo.Queries().UpdateAccountBalance(ctx, a.ID, dec("0.01")); err != nil {
		t.Fatalf("UpdateAccountBalance: %v", err)
	}
	got, err = repo.Queries().GetAccount(ctx, a.ID)
	if err != nil {
		t.Fatalf("GetAccount after update: %v", err)
	}
	if !got.Balance.Equal(dec("0.01")) {
		t.Errorf("balance after update = %s, want 0.01", got.Balance)
	}
}

func TestNotFoundSentinel(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	if _, err := repo.Queries().GetAccount(ctx, 999); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetAccount(999) = %v, want ErrNotFound", err)
	}
	if _, err := repo.Queries().GetTransaction(ctx, 999); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetTransaction(999) = %v, want ErrNotFound", err)
	}
	if _, err := repo.Queries().GetSchedule(ctx, 999); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetSchedule(999) = %v, want ErrNotFound", err)
	}
	if err := repo.Queries().UpdateAccountBalance(ctx, 999, dec("1")); !errors.Is(err, ErrNotFound) {
		t.Errorf("UpdateAccountBalance(999) = %v, want ErrNotFound", err)
	}
	if err := repo.Queries().DeleteSchedule(ctx, 999); !errors.Is(err, ErrNotFound) {
		t.Errorf("DeleteSchedule(999) = %v, want ErrNotFound", err)
	}
}

func TestInTxRollsBackOnError(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	a := &core.Account{UserID: 1, Name: "checking", Balance: dec("100")}
	if err := repo.Queries().CreateAccount(ctx, a); err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}

	boom := errors.New("boom")
	err := repo.InTx(ctx, func(q *Queries) error {
		if err := q.UpdateAccountBalance(ctx, a.ID, dec("0")); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("InTx = %v, want boom", err)
	}

	got, err := repo.Queries().GetAccount(ctx, a.ID)
	if err != nil {
		t.Fatalf("GetAccount: %v", err)
	}
	if !got.Balance.Equal(dec("100")) {
		t.Errorf("balance = %s after rollback, want 100", got.Balance)
	}
}

func TestListTransactionsByAccountIncludesBothLegs(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	q := repo.Queries()

	src := &core.Account{UserID: 1, Name: "checking", Balance: dec("100")}
	dst := &core.Account{UserID: 1, Name: "savings", Balance: dec("0")}
	for _, a := range []*core.Account{src, dst} {
		if err := q.CreateAccount(ctx, a); err != nil {
			t.Fatalf("CreateAccount: %v", err)
		}
	}

	dstID := dst.ID
	txs := []core.Transaction{
		{SourceAccountID: src.ID, Amount: dec("10"), Type: core.Expense, TransactionDate: core.NewDate(2024, 3, 2)},
		{SourceAccountID: src.ID, DestinationAccountID: &dstID, Amount: dec("20"), Type: core.Transfer, TransactionDate: core.NewDate(2024, 3, 1)},
	}
	for i := range txs {
		if err := q.CreateTransaction(ctx, &txs[i]); err != nil {
			t.Fatalf("CreateTransaction: %v", err)
		}
	}

	got, err := q.ListTransactionsByAccount(ctx, dst.ID)
	if err != nil {
		t.Fatalf("ListTransactionsByAccount: %v", err)
	}
	if len(got) != 1 || got[0].Type != core.Transfer {
		t.Fatalf("destination account should see the incoming transfer, got %+v", got)
	}

	got, err = q.ListTransactionsByAccount(ctx, src.ID)
	if err != nil {
		t.Fatalf("ListTransactionsByAccount: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("source account transactions = %d, want 2", len(got))
	}
	// Ordered by transaction date, so the transfer (Mar 1) comes first.
	if got[0].Type != core.Transfer {
		t.Errorf("expected transfer first by date, got %s", got[0].Type)
	}
}

func TestSumExpensesByCategoryMonth(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	q := repo.Queries()

	acc := &core.Account{UserID: 1, Name: "checking", Balance: dec("100")}
	if err := q.CreateAccount(ctx, acc); err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	cat := &core.Category{UserID: 1, Name: "groceries", Type: core.Expense}
	if err := q.CreateCategory(ctx, cat); err != nil {
		t.Fatalf("CreateCategory: %v", err)
	}

	catID := cat.ID
	txs := []core.Transaction{
		{SourceAccountID: acc.ID, CategoryID: &catID, Amount: dec("10.10"), Type: core.Expense, TransactionDate: core.NewDate(2024, 3, 1)},
		{SourceAccountID: acc.ID, CategoryID: &catID, Amount: dec("0.20"), Type: core.Expense, TransactionDate: core.NewDate(2024, 3, 31)},
		// Different month, must not be counted.
		{SourceAccountID: acc.ID, CategoryID: &catID, Amount: dec("99"), Type: core.Expense, TransactionDate: core.NewDate(2024, 4, 1)},
		// Uncategorized, must not be counted.
		{SourceAccountID: acc.ID, Amount: dec("50"), Type: core.Expense, TransactionDate: core.NewDate(2024, 3, 15)},
	}
	for i := range txs {
		if err := q.CreateTransaction(ctx, &txs[i]); err != nil {
			t.Fatalf("CreateTransaction: %v", err)
		}
	}

	total, err := q.SumExpensesByCategoryMonth(ctx, 1, cat.ID, 3, 2024)
	if err != nil {
		t.Fatalf("SumExpensesByCategoryMonth: %v", err)
	}
	if !total.Equal(dec("10.30")) {
		t.Errorf("total = %s, want 10.30", total)
	}
}

func TestScheduleStateTransitions(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	q := repo.Queries()

	s := &core.RecurringSchedule{
		UserID:          1,
		SourceAccountID: 1,
		Amount:          dec("15"),
		Type:            core.Expense,
		Frequency:       core.Weekly,
		StartDate:       core.NewDate(2024, 3, 1),
		NextRunDate:     core.NewDate(2024, 3, 1),
		IsActive:        true,
	}
	if err := q.CreateSchedule(ctx, s); err != nil {
		t.Fatalf("CreateSchedule: %v", err)
	}

	if err := q.UpdateScheduleNextRun(ctx, s.ID, core.NewDate(2024, 3, 8)); err != nil {
		t.Fatalf("UpdateScheduleNextRun: %v", err)
	}
	got, err := q.GetSchedule(ctx, s.ID)
	if err != nil {
		t.Fatalf("GetSchedule: %v", err)
	}
	if !got.NextRunDate.Equal(core.NewDate(2024, 3, 8)) {
		t.Errorf("next_run_date = %s, want 2024-03-08", got.NextRunDate)
	}

	if err := q.SetScheduleActive(ctx, s.ID, false, core.DeactivatedMissingSource); err != nil {
		t.Fatalf("SetScheduleActive: %v", err)
	}
	got, err = q.GetSchedule(ctx, s.ID)
	if err != nil {
		t.Fatalf("GetSchedule: %v", err)
	}
	if got.IsActive {
		t.Error("schedule should be inactive")
	}
	if got.DeactivatedReason != core.DeactivatedMissingSource {
		t.Errorf("reason = %q, want %q", got.DeactivatedReason, core.DeactivatedMissingSource)
	}

	active, err := q.ListActiveSchedulesByUser(ctx, 1)
	if err != nil {
		t.Fatalf("ListActiveSchedulesByUser: %v", err)
	}
	if len(active) != 0 {
		t.Errorf("active schedules = %d, want 0", len(active))
	}
	all, err := q.ListSchedulesByUser(ctx, 1)
	if err != nil {
		t.Fatalf("ListSchedulesByUser: %v", err)
	}
	if len(all) != 1 {
		t.Errorf("all schedules = %d, want 1", len(all))
	}
}

func TestBudgetUniquePerCategoryMonth(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	q := repo.Queries()

	cat := &core.Category{UserID: 1, Name: "groceries", Type: core.Expense}
	if err := q.CreateCategory(ctx, cat); err != nil {
		t.Fatalf("CreateCategory: %v", err)
	}

	b := &core.Budget{UserID: 1, CategoryID: cat.ID, Amount: dec("300"), Month: 3, Year: 2024}
	if err := q.CreateBudget(ctx, b); err != nil {
		t.Fatalf("CreateBudget: %v", err)
	}

	dup := &core.Budget{UserID: 1, CategoryID: cat.ID, Amount: dec("400"), Month: 3, Year: 2024}
	if err := q.CreateBudget(ctx, dup); err == nil {
		t.Fatal("duplicate budget for the same category and month must fail")
	}

	// A different month for the same category is fine.
	next := &core.Budget{UserID: 1, CategoryID: cat.ID, Amount: dec("300"), Month: 4, Year: 2024}
	if err := q.CreateBudget(ctx, next); err != nil {
		t.Fatalf("CreateBudget for next month: %v", err)
	}
}
