package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"finledger/internal/core"
	"finledger/internal/log"
	"finledger/internal/storage"
)

// ScheduleService owns the CRUD semantics of recurring schedules: next_run_date
// is computed by the resolver at creation, recomputed when start date or
// frequency change, and advanced only by the catch-up engine.
type ScheduleService struct {
	repo   *storage.Repository
	engine *CatchUpEngine
}

func NewScheduleService(repo *storage.Repository, engine *CatchUpEngine) *ScheduleService {
	return &ScheduleService{
		repo:   repo,
		engine: engine,
	}
}

// ScheduleUpdate carries the fields of an edit; nil means unchanged.
type ScheduleUpdate struct {
	SourceAccountID      *int64
	DestinationAccountID *int64
	CategoryID           *int64
	Amount               *decimal.Decimal
	Type                 *core.TransactionType
	Description          *string
	Frequency            *core.Frequency
	StartDate            *core.Date
	IsActive             *bool
}

func (s *ScheduleService) Create(ctx context.Context, userID int64, sched core.RecurringSchedule, today core.Date) (*core.RecurringSchedule, error) {
	sched.UserID = userID
	sched.IsActive = true
	sched.DeactivatedReason = ""

	if err := sched.Validate(); err != nil {
		return nil, fmt.Errorf("validate schedule: %w", err)
	}

	next, err := core.FirstDue(sched.StartDate, sched.Frequency, today)
	if err != nil {
		return nil, err
	}
	sched.NextRunDate = next

	err = s.repo.InTx(ctx, func(q *storage.Queries) error {
		if _, err := requireOwnedAccount(ctx, q, sched.SourceAccountID, userID); err != nil {
			return err
		}
		if sched.Type == core.Transfer {
			if _, err := requireOwnedAccount(ctx, q, *sched.DestinationAccountID, userID); err != nil {
				return err
			}
		}
		if sched.CategoryID != nil {
			if _, err := requireOwnedCategory(ctx, q, *sched.CategoryID, userID); err != nil {
				return err
			}
		}
		return q.CreateSchedule(ctx, &sched)
	})
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "Recurring schedule created",
		log.FieldScheduleID, sched.ID,
		log.FieldUserID, userID,
		log.FieldFrequency, sched.Frequency,
		log.FieldNextRunDate, sched.NextRunDate.String())
	return &sched, nil
}

// Update edits a schedule. Changing start_date or frequency recomputes
// next_run_date through the resolver; toggling IsActive records the
// user-initiated deactivation reason.
func (s *ScheduleService) Update(ctx context.Context, userID, id int64, changes ScheduleUpdate, today core.Date) (*core.RecurringSchedule, error) {
	var updated core.RecurringSchedule

	err := s.repo.InTx(ctx, func(q *storage.Queries) error {
		cur, err := q.GetSchedule(ctx, id)
		if err != nil {
			return err
		}
		if cur.UserID != userID {
			return fmt.Errorf("schedule %d: %w", id, core.ErrNotOwned)
		}

		updated = *cur
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
		if changes.Frequency != nil {
			updated.Frequency = *changes.Frequency
		}
		if changes.StartDate != nil {
			updated.StartDate = *changes.StartDate
		}
		if changes.Type != nil && updated.Type != cur.Type {
			// A type edit off TRANSFER drops the stale destination, onto it
			// the stale category, unless the edit sets the field explicitly.
			if updated.Type != core.Transfer && changes.DestinationAccountID == nil {
				updated.DestinationAccountID = nil
			}
			if updated.Type == core.Transfer && changes.CategoryID == nil {
				updated.CategoryID = nil
			}
		}
		if changes.IsActive != nil && *changes.IsActive != updated.IsActive {
			updated.IsActive = *changes.IsActive
			if updated.IsActive {
				updated.DeactivatedReason = ""
			} else {
				updated.DeactivatedReason = core.DeactivatedByUser
			}
		}

		if err := updated.Validate(); err != nil {
			return fmt.Errorf("validate updated schedule: %w", err)
		}

		if changes.Frequency != nil || changes.StartDate != nil {
			next, err := core.FirstDue(updated.StartDate, updated.Frequency, today)
			if err != nil {
				return err
			}
			updated.NextRunDate = next
		}

		if changes.SourceAccountID != nil {
			if _, err := requireOwnedAccount(ctx, q, updated.SourceAccountID, userID); err != nil {
				return err
			}
		}
		if changes.DestinationAccountID != nil {
			if _, err := requireOwnedAccount(ctx, q, *updated.DestinationAccountID, userID); err != nil {
				return err
			}
		}
		if changes.CategoryID != nil {
			if _, err := requireOwnedCategory(ctx, q, *updated.CategoryID, userID); err != nil {
				return err
			}
		}

		return q.UpdateSchedule(ctx, &updated)
	})
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "Recurring schedule updated",
		log.FieldScheduleID, updated.ID,
		log.FieldNextRunDate, updated.NextRunDate.String(),
		log.FieldIsActive, updated.IsActive)
	return &updated, nil
}

// List runs catch-up first so the returned schedules always reflect
// up-to-date state, then lists the user's schedules by next run date.
func (s *ScheduleService) List(ctx context.Context, userID int64, today core.Date) ([]core.RecurringSchedule, error) {
	if _, err := s.engine.CatchUp(ctx, userID, today); err != nil {
		return nil, fmt.Errorf("catch up before listing: %w", err)
	}
	return s.repo.Queries().ListSchedulesByUser(ctx, userID)
}

// Delete hard-deletes a schedule on explicit user action.
func (s *ScheduleService) Delete(ctx context.Context, userID, id int64) error {
	err := s.repo.InTx(ctx, func(q *storage.Queries) error {
		cur, err := q.GetSchedule(ctx, id)
		if err != nil {
			return err
		}
		if cur.UserID != userID {
			return fmt.Errorf("schedule %d: %w", id, core.ErrNotOwned)
		}
		return q.DeleteSchedule(ctx, id)
	})
	if err != nil {
		return err
	}

	slog.InfoContext(ctx, "Recurring schedule deleted", log.FieldScheduleID, id)
	return nil
}
