package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	"finledger/internal/core"
	"finledger/internal/log"
	"finledger/internal/storage"
)

// BudgetService manages monthly per-category budgets. Budgets are a
// read-only projection over the ledger: they never write balances.
type BudgetService struct {
	repo *storage.Repository
}

func NewBudgetService(repo *storage.Repository) *BudgetService {
	return &BudgetService{repo: repo}
}

// BudgetStatus pairs a budget with the amount already spent in its month.
type BudgetStatus struct {
	Budget core.Budget
	Spent  decimal.Decimal
}

// Create rejects budgets on categories the user does not own or that are not
// expense categories. One budget per (category, month, year) is enforced by
// the unique index.
func (s *BudgetService) Create(ctx context.Context, userID int64, b core.Budget) (*core.Budget, error) {
	b.UserID = userID
	if err := b.Validate(); err != nil {
		return nil, fmt.Errorf("validate budget: %w", err)
	}

	err := s.repo.InTx(ctx, func(q *storage.Queries) error {
		category, err := requireOwnedCategory(ctx, q, b.CategoryID, userID)
		if err != nil {
			return err
		}
		if category.Type != core.Expense {
			return fmt.Errorf("budget category %d: only expense categories can be budgeted", b.CategoryID)
		}
		if err := q.CreateBudget(ctx, &b); err != nil {
			if strings.Contains(err.Error(), "UNIQUE constraint failed") {
				return fmt.Errorf("budget for category %d in %d-%02d already exists: %w", b.CategoryID, b.Year, b.Month, err)
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "Budget created",
		log.FieldBudgetID, b.ID,
		log.FieldCategoryID, b.CategoryID,
		log.FieldMonth, b.Month,
		log.FieldYear, b.Year)
	return &b, nil
}

// Status lists the user's budgets with the spent amount aggregated from the
// ledger for each budget's month.
func (s *BudgetService) Status(ctx context.Context, userID int64) ([]BudgetStatus, error) {
	budgets, err := s.repo.Queries().ListBudgetsByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	statuses := make([]BudgetStatus, 0, len(budgets))
	for _, b := range budgets {
		spent, err := s.repo.Queries().SumExpensesByCategoryMonth(ctx, userID, b.CategoryID, b.Month, b.Year)
		if err != nil {
			return nil, fmt.Errorf("budget %d spent amount: %w", b.ID, err)
		}
		statuses = append(statuses, BudgetStatus{Budget: b, Spent: spent})
	}
	return statuses, nil
}

// Delete removes a budget after an ownership check.
func (s *BudgetService) Delete(ctx context.Context, userID, id int64) error {
	return s.repo.InTx(ctx, func(q *storage.Queries) error {
		budgets, err := q.ListBudgetsByUser(ctx, userID)
		if err != nil {
			return err
		}
		for _, b := range budgets {
			if b.ID == id {
				return q.DeleteBudget(ctx, id)
			}
		}
		return fmt.Errorf("budget %d: %w", id, storage.ErrNotFound)
	})
}
