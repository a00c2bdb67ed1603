package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"finledger/internal/amqp"
	"finledger/internal/core"
	"finledger/internal/log"
	"finledger/internal/storage"
)

// CatchUpEngine materializes every due occurrence of a user's active
// schedules. Each occurrence commits as its own unit of work: the new
// transaction, the balance effect and the advanced next_run_date either all
// land or none do, so a crash or a concurrent trigger always leaves the last
// successfully committed state.
type CatchUpEngine struct {
	repo   *storage.Repository
	events *amqp.Client

	mu        sync.Mutex
	userLocks map[int64]*sync.Mutex
}

func NewCatchUpEngine(repo *storage.Repository, events *amqp.Client) *CatchUpEngine {
	return &CatchUpEngine{
		repo:      repo,
		events:    events,
		userLocks: make(map[int64]*sync.Mutex),
	}
}

// outcome of one engine iteration for one schedule.
type iterOutcome int

const (
	outcomeCaughtUp iterOutcome = iota
	outcomeMaterialized
	outcomeDeactivated
)

// CatchUp processes all of userID's active schedules and returns the number
// of materialized-or-deactivated events. A failure on one schedule is logged
// and the run continues with the next; that schedule's next_run_date was not
// advanced, so the next invocation retries it.
func (e *CatchUpEngine) CatchUp(ctx context.Context, userID int64, today core.Date) (int, error) {
	lock := e.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	schedules, err := e.repo.Queries().ListActiveSchedulesByUser(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("list active schedules: %w", err)
	}

	processed := 0
	for i := range schedules {
		n, err := e.catchUpSchedule(ctx, &schedules[i], today)
		processed += n
		if err != nil {
			slog.ErrorContext(ctx, "Catch-up failed for schedule, continuing with next",
				log.FieldScheduleID, schedules[i].ID,
				log.FieldUserID, userID,
				log.FieldError, err)
		}
	}

	slog.InfoContext(ctx, "Catch-up complete",
		log.FieldUserID, userID,
		log.FieldProcessed, processed,
		log.FieldSchedulesChecked, len(schedules))
	return processed, nil
}

// catchUpSchedule drives one schedule through its due occurrences in strict
// chronological order, one atomic iteration per occurrence.
func (e *CatchUpEngine) catchUpSchedule(ctx context.Context, sched *core.RecurringSchedule, today core.Date) (int, error) {
	if !sched.Frequency.Valid() {
		return 0, fmt.Errorf("schedule %d: %w: %q", sched.ID, core.ErrInvalidFrequency, sched.Frequency)
	}

	count := 0
	for {
		var (
			outcome      iterOutcome
			materialized *core.Transaction
			reason       core.DeactivationReason
		)

		err := e.repo.InTx(ctx, func(q *storage.Queries) error {
			// Re-read inside the unit of work: a concurrent trigger may have
			// advanced or deactivated this schedule since the listing.
			cur, err := q.GetSchedule(ctx, sched.ID)
			if err != nil {
				return err
			}
			*sched = *cur

			if !cur.IsActive || cur.NextRunDate.After(today) {
				outcome = outcomeCaughtUp
				return nil
			}

			if _, err := q.GetAccount(ctx, cur.SourceAccountID); err != nil {
				if errors.Is(err, storage.ErrNotFound) {
					outcome = outcomeDeactivated
					reason = core.DeactivatedMissingSource
					return q.SetScheduleActive(ctx, cur.ID, false, reason)
				}
				return fmt.Errorf("resolve source account: %w", err)
			}

			if cur.Type == core.Transfer {
				// The destination is resolved before any balance moves so the
				// source is never charged for a transfer with no second leg.
				if cur.DestinationAccountID == nil {
					outcome = outcomeDeactivated
					reason = core.DeactivatedMissingDestination
					return q.SetScheduleActive(ctx, cur.ID, false, reason)
				}
				if _, err := q.GetAccount(ctx, *cur.DestinationAccountID); err != nil {
					if errors.Is(err, storage.ErrNotFound) {
						outcome = outcomeDeactivated
						reason = core.DeactivatedMissingDestination
						return q.SetScheduleActive(ctx, cur.ID, false, reason)
					}
					return fmt.Errorf("resolve destination account: %w", err)
				}
			}

			t := &core.Transaction{
				SourceAccountID:      cur.SourceAccountID,
				DestinationAccountID: cur.DestinationAccountID,
				CategoryID:           cur.CategoryID,
				Amount:               cur.Amount,
				Type:                 cur.Type,
				Description:          core.RecurringTag(cur.Description),
				// The occurrence keeps its scheduled date, not "today".
				TransactionDate: cur.NextRunDate,
			}
			if err := applyEffect(ctx, q, t); err != nil {
				return err
			}
			if err := q.CreateTransaction(ctx, t); err != nil {
				return err
			}

			// Advance from the current occurrence date, so a schedule N
			// periods behind catches up through exactly N occurrences.
			next := core.Advance(cur.NextRunDate, cur.Frequency)
			if err := q.UpdateScheduleNextRun(ctx, cur.ID, next); err != nil {
				return err
			}

			sched.NextRunDate = next
			materialized = t
			outcome = outcomeMaterialized
			return nil
		})
		if err != nil {
			return count, err
		}

		switch outcome {
		case outcomeCaughtUp:
			return count, nil

		case outcomeDeactivated:
			count++
			sched.IsActive = false
			sched.DeactivatedReason = reason
			slog.WarnContext(ctx, "Deactivated schedule: referenced account missing",
				log.FieldScheduleID, sched.ID,
				log.FieldUserID, sched.UserID,
				log.FieldReason, reason)
			e.publishDeactivated(ctx, sched)
			return count, nil

		case outcomeMaterialized:
			count++
			slog.InfoContext(ctx, "Materialized recurring transaction",
				log.FieldScheduleID, sched.ID,
				log.FieldTransactionID, materialized.ID,
				log.FieldTransactionDate, materialized.TransactionDate.String(),
				log.FieldNextRunDate, sched.NextRunDate.String())
			e.publishRecorded(ctx, materialized, sched.ID)
		}
	}
}

// userLock serializes catch-up per user so two concurrent triggers cannot
// observe the same stale next_run_date.
func (e *CatchUpEngine) userLock(userID int64) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	lock, ok := e.userLocks[userID]
	if !ok {
		lock = &sync.Mutex{}
		e.userLocks[userID] = lock
	}
	return lock
}

func (e *CatchUpEngine) publishRecorded(ctx context.Context, t *core.Transaction, scheduleID int64) {
	if e.events == nil {
		return
	}
	ev := amqp.NewTransactionRecordedEvent(t.ID, &scheduleID, string(t.Type), t.Amount.String())
	if err := e.events.PublishTransactionRecorded(ctx, ev); err != nil {
		slog.ErrorContext(ctx, "Failed to publish transaction event",
			log.FieldTransactionID, t.ID,
			log.FieldScheduleID, scheduleID,
			log.FieldError, err)
	}
}

func (e *CatchUpEngine) publishDeactivated(ctx context.Context, sched *core.RecurringSchedule) {
	if e.events == nil {
		return
	}
	ev := amqp.NewScheduleDeactivatedEvent(sched.ID, sched.UserID, string(sched.DeactivatedReason))
	if err := e.events.PublishScheduleDeactivated(ctx, ev); err != nil {
		slog.ErrorContext(ctx, "Failed to publish schedule deactivated event",
			log.FieldScheduleID, sched.ID,
			log.FieldError, err)
	}
}
