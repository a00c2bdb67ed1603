package services

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"

	"finledger/internal/core"
	"finledger/internal/storage"
)

func newTestRepo(t *testing.T) *storage.Repository {
	t.Helper()
	repo, err := storage.NewRepository(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("open test repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func createAccount(t *testing.T, repo *storage.Repository, userID int64, balance string) *core.Account {
	t.Helper()
	a := &core.Account{
		UserID:  userID,
		Name:    "test account",
		Balance: dec(balance),
	}
	if err := repo.Queries().CreateAccount(context.Background(), a); err != nil {
		t.Fatalf("create account: %v", err)
	}
	return a
}

func createCategory(t *testing.T, repo *storage.Repository, userID int64, ctype core.TransactionType) *core.Category {
	t.Helper()
	c := &core.Category{
		UserID: userID,
		Name:   "test category",
		Type:   ctype,
	}
	if err := repo.Queries().CreateCategory(context.Background(), c); err != nil {
		t.Fatalf("create category: %v", err)
	}
	return c
}

func balanceOf(t *testing.T, repo *storage.Repository, accountID int64) decimal.Decimal {
	t.Helper()
	a, err := repo.Queries().GetAccount(context.Background(), accountID)
	if err != nil {
		t.Fatalf("get account %d: %v", accountID, err)
	}
	return a.Balance
}

func requireBalance(t *testing.T, repo *storage.Repository, accountID int64, want string) {
	t.Helper()
	got := balanceOf(t, repo, accountID)
	if !got.Equal(dec(want)) {
		t.Fatalf("account %d balance = %s, want %s", accountID, got, want)
	}
}

// createRawSchedule inserts a schedule directly, bypassing the resolver, to
// model a long-idle schedule whose next_run_date lies in the past.
func createRawSchedule(t *testing.T, repo *storage.Repository, s *core.RecurringSchedule) *core.RecurringSchedule {
	t.Helper()
	if err := repo.Queries().CreateSchedule(context.Background(), s); err != nil {
		t.Fatalf("create schedule: %v", err)
	}
	return s
}
