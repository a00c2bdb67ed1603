package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"finledger/internal/amqp"
	"finledger/internal/core"
	"finledger/internal/log"
	"finledger/internal/storage"
)

// LedgerService is the only sanctioned path for mutating account balances.
// Creating, editing and deleting a transaction each run as one atomic unit
// of work: ownership validation first, then balance effect, then the row.
type LedgerService struct {
	repo   *storage.Repository
	events *amqp.Client
}

func NewLedgerService(repo *storage.Repository, events *amqp.Client) *LedgerService {
	return &LedgerService{
		repo:   repo,
		events: events,
	}
}

// TransactionUpdate carries the fields of an edit; nil means unchanged.
type TransactionUpdate struct {
	SourceAccountID      *int64
	DestinationAccountID *int64
	CategoryID           *int64
	Amount               *decimal.Decimal
	Type                 *core.TransactionType
	Description          *string
	TransactionDate      *core.Date
}

// CreateTransaction validates ownership of every referenced account and
// category before any balance is touched, then applies the effect and
// inserts the row in one transaction.
func (s *LedgerService) CreateTransaction(ctx context.Context, userID int64, t core.Transaction) (*core.Transaction, error) {
	if err := t.Validate(); err != nil {
		return nil, fmt.Errorf("validate transaction: %w", err)
	}

	err := s.repo.InTx(ctx, func(q *storage.Queries) error {
		if _, err := requireOwnedAccount(ctx, q, t.SourceAccountID, userID); err != nil {
			return err
		}
		if t.CategoryID != nil {
			if _, err := requireOwnedCategory(ctx, q, *t.CategoryID, userID); err != nil {
				return err
			}
		}
		if t.Type == core.Transfer {
			if _, err := requireOwnedAccount(ctx, q, *t.DestinationAccountID, userID); err != nil {
				return err
			}
		}
		if err := applyEffect(ctx, q, &t); err != nil {
			return err
		}
		return q.CreateTransaction(ctx, &t)
	})
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "Transaction recorded",
		log.FieldTransactionID, t.ID,
		log.FieldType, t.Type,
		log.FieldAmount, t.Amount.String(),
		log.FieldSourceAccountID, t.SourceAccountID)

	s.publishRecorded(ctx, &t, nil)
	return &t, nil
}

// UpdateTransaction is revert(old) followed by apply(new) inside one unit of
// work; the reverted intermediate state is never durably observable.
func (s *LedgerService) UpdateTransaction(ctx context.Context, userID, id int64, changes TransactionUpdate) (*core.Transaction, error) {
	var updated core.Transaction

	err := s.repo.InTx(ctx, func(q *storage.Queries) error {
		old, err := q.GetTransaction(ctx, id)
		if err != nil {
			return err
		}
		if _, err := requireOwnedAccount(ctx, q, old.SourceAccountID, userID); err != nil {
			return err
		}

		if err := revertEffect(ctx, q, old); err != nil {
			return err
		}

		updated = *old
		if changes.SourceAccountID != nil {
			updated.SourceAccountID = *changes.SourceAccountID
		}
		if changes.DestinationAccountID != nil {
			updated.DestinationAccountID = changes.DestinationAccountID
		}
		if changes.CategoryID != nil {
			updated.CategoryID = changes.CategoryID
		}
		if changes.Amount != nil {
			updated.Amount = *changes.Amount
		}
		if changes.Type != nil {
			updated.Type = *changes.Type
		}
		if changes.Description != nil {
			updated.Description = *changes.Description
		}
		if changes.TransactionDate != nil {
			updated.TransactionDate = *changes.TransactionDate
		}
		if changes.Type != nil && updated.Type != old.Type {
			// A type edit off TRANSFER drops the stale destination, onto it
			// the stale category, unless the edit sets the field explicitly.
			if updated.Type != core.Transfer && changes.DestinationAccountID == nil {
				updated.DestinationAccountID = nil
			}
			if updated.Type == core.Transfer && changes.CategoryID == nil {
				updated.CategoryID = nil
			}
		}
		if err := updated.Validate(); err != nil {
			return fmt.Errorf("validate updated transaction: %w", err)
		}

		if _, err := requireOwnedAccount(ctx, q, updated.SourceAccountID, userID); err != nil {
			return err
		}
		if updated.CategoryID != nil {
			if _, err := requireOwnedCategory(ctx, q, *updated.CategoryID, userID); err != nil {
				return err
			}
		}
		if updated.Type == core.Transfer {
			if _, err := requireOwnedAccount(ctx, q, *updated.DestinationAccountID, userID); err != nil {
				return err
			}
		}

		if err := applyEffect(ctx, q, &updated); err != nil {
			return err
		}
		return q.UpdateTransaction(ctx, &updated)
	})
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "Transaction updated",
		log.FieldTransactionID, updated.ID,
		log.FieldType, updated.Type,
		log.FieldAmount, updated.Amount.String())
	return &updated, nil
}

// DeleteTransaction reverts the balance effect and removes the row,
// atomically.
func (s *LedgerService) DeleteTransaction(ctx context.Context, userID, id int64) error {
	err := s.repo.InTx(ctx, func(q *storage.Queries) error {
		t, err := q.GetTransaction(ctx, id)
		if err != nil {
			return err
		}
		if _, err := requireOwnedAccount(ctx, q, t.SourceAccountID, userID); err != nil {
			return err
		}
		if err := revertEffect(ctx, q, t); err != nil {
			return err
		}
		return q.DeleteTransaction(ctx, id)
	})
	if err != nil {
		return err
	}

	slog.InfoContext(ctx, "Transaction deleted", log.FieldTransactionID, id)
	return nil
}

func (s *LedgerService) publishRecorded(ctx context.Context, t *core.Transaction, scheduleID *int64) {
	if s.events == nil {
		return
	}
	ev := amqp.NewTransactionRecordedEvent(t.ID, scheduleID, string(t.Type), t.Amount.String())
	if err := s.events.PublishTransactionRecorded(ctx, ev); err != nil {
		// Event delivery is best-effort; the ledger write already committed.
		slog.ErrorContext(ctx, "Failed to publish transaction event",
			log.FieldTransactionID, t.ID,
			log.FieldError, err)
	}
}
