// Balance mutation lives here and nowhere else: every write to
// Account.Balance, manual or materialized, goes through applyEffect or
// revertEffect inside one storage transaction.
package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"finledger/internal/core"
	"finledger/internal/storage"
)

// applyEffect applies the signed balance effect of t to its account(s).
func applyEffect(ctx context.Context, q *storage.Queries, t *core.Transaction) error {
	return mutateBalances(ctx, q, t, false)
}

// revertEffect is the exact inverse of applyEffect.
func revertEffect(ctx context.Context, q *storage.Queries, t *core.Transaction) error {
	return mutateBalances(ctx, q, t, true)
}

func mutateBalances(ctx context.Context, q *storage.Queries, t *core.Transaction, invert bool) error {
	source, err := q.GetAccount(ctx, t.SourceAccountID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("source account %d: %w", t.SourceAccountID, core.ErrAccountGone)
		}
		return fmt.Errorf("resolve source account: %w", err)
	}

	var sourceDelta decimal.Decimal
	switch t.Type {
	case core.Income:
		sourceDelta = t.Amount
	case core.Expense, core.Transfer:
		sourceDelta = t.Amount.Neg()
	default:
		return core.ErrInvalidType
	}
	if invert {
		sourceDelta = sourceDelta.Neg()
	}

	if t.Type == core.Transfer {
		if t.DestinationAccountID == nil {
			return core.ErrMissingDestination
		}
		// Resolve the destination before touching the source so a missing
		// leg can never leave a half-applied transfer.
		dest, err := q.GetAccount(ctx, *t.DestinationAccountID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return fmt.Errorf("destination account %d: %w", *t.DestinationAccountID, core.ErrAccountGone)
			}
			return fmt.Errorf("resolve destination account: %w", err)
		}

		destDelta := t.Amount
		if invert {
			destDelta = destDelta.Neg()
		}

		if err := q.UpdateAccountBalance(ctx, source.ID, source.Balance.Add(sourceDelta)); err != nil {
			return err
		}
		return q.UpdateAccountBalance(ctx, dest.ID, dest.Balance.Add(destDelta))
	}

	return q.UpdateAccountBalance(ctx, source.ID, source.Balance.Add(sourceDelta))
}

// requireOwnedAccount resolves an account and checks it belongs to userID.
// A vanished account maps to ErrAccountGone, a foreign one to ErrNotOwned.
func requireOwnedAccount(ctx context.Context, q *storage.Queries, accountID, userID int64) (*core.Account, error) {
	account, err := q.GetAccount(ctx, accountID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("account %d: %w", accountID, core.ErrAccountGone)
		}
		return nil, err
	}
	if account.UserID != userID {
		return nil, fmt.Errorf("account %d: %w", accountID, core.ErrNotOwned)
	}
	return account, nil
}

func requireOwnedCategory(ctx context.Context, q *storage.Queries, categoryID, userID int64) (*core.Category, error) {
	category, err := q.GetCategory(ctx, categoryID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("category %d: %w", categoryID, core.ErrNotOwned)
		}
		return nil, err
	}
	if category.UserID != userID {
		return nil, fmt.Errorf("category %d: %w", categoryID, core.ErrNotOwned)
	}
	return category, nil
}
