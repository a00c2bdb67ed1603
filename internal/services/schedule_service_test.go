package services

import (
	"context"
	"errors"
	"testing"

	"finledger/internal/core"
)

func TestScheduleCreateComputesFirstDue(t *testing.T) {
	repo := newTestRepo(t)
	engine := NewCatchUpEngine(repo, nil)
	svc := NewScheduleService(repo, engine)
	acc := createAccount(t, repo, 1, "1000")

	today := core.NewDate(2024, 3, 10)

	tests := []struct {
		name     string
		start    core.Date
		freq     core.Frequency
		wantNext core.Date
	}{
		{
			name:     "future start kept",
			start:    core.NewDate(2024, 4, 1),
			freq:     core.Monthly,
			wantNext: core.NewDate(2024, 4, 1),
		},
		{
			name:     "past weekly start resolves forward",
			start:    core.NewDate(2024, 1, 1),
			freq:     core.Weekly,
			wantNext: core.NewDate(2024, 3, 11),
		},
		{
			name:     "start today is due today",
			start:    today,
			freq:     core.Daily,
			wantNext: today,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sched, err := svc.Create(context.Background(), 1, core.RecurringSchedule{
				SourceAccountID: acc.ID,
				Amount:          dec("10"),
				Type:            core.Expense,
				Frequency:       tt.freq,
				StartDate:       tt.start,
			}, today)
			if err != nil {
				t.Fatalf("Create: %v", err)
			}
			if !sched.NextRunDate.Equal(tt.wantNext) {
				t.Errorf("next_run_date = %s, want %s", sched.NextRunDate, tt.wantNext)
			}
			if !sched.IsActive {
				t.Error("new schedule should be active")
			}
		})
	}
}

func TestScheduleCreateRejectsInvalid(t *testing.T) {
	repo := newTestRepo(t)
	svc := NewScheduleService(repo, NewCatchUpEngine(repo, nil))
	acc := createAccount(t, repo, 1, "1000")
	today := core.NewDate(2024, 3, 10)

	_, err := svc.Create(context.Background(), 1, core.RecurringSchedule{
		SourceAccountID: acc.ID,
		Amount:          dec("10"),
		Type:            core.Transfer, // no destination
		Frequency:       core.Weekly,
		StartDate:       today,
	}, today)
	if !errors.Is(err, core.ErrMissingDestination) {
		t.Fatalf("expected ErrMissingDestination, got %v", err)
	}

	foreign := createAccount(t, repo, 2, "0")
	_, err = svc.Create(context.Background(), 1, core.RecurringSchedule{
		SourceAccountID: foreign.ID,
		Amount:          dec("10"),
		Type:            core.Expense,
		Frequency:       core.Weekly,
		StartDate:       today,
	}, today)
	if !errors.Is(err, core.ErrNotOwned) {
		t.Fatalf("expected ErrNotOwned, got %v", err)
	}
}

func TestScheduleUpdateRecomputesNextRun(t *testing.T) {
	repo := newTestRepo(t)
	svc := NewScheduleService(repo, NewCatchUpEngine(repo, nil))
	acc := createAccount(t, repo, 1, "1000")
	today := core.NewDate(2024, 3, 10)

	sched, err := svc.Create(context.Background(), 1, core.RecurringSchedule{
		SourceAccountID: acc.ID,
		Amount:          dec("10"),
		Type:            core.Expense,
		Frequency:       core.Monthly,
		StartDate:       core.NewDate(2024, 4, 1),
	}, today)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	newFreq := core.Weekly
	newStart := core.NewDate(2024, 1, 1)
	updated, err := svc.Update(context.Background(), 1, sched.ID, ScheduleUpdate{
		Frequency: &newFreq,
		StartDate: &newStart,
	}, today)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if want := core.NewDate(2024, 3, 11); !updated.NextRunDate.Equal(want) {
		t.Fatalf("next_run_date = %s, want %s", updated.NextRunDate, want)
	}
}

func TestScheduleUpdateAmountKeepsNextRun(t *testing.T) {
	repo := newTestRepo(t)
	svc := NewScheduleService(repo, NewCatchUpEngine(repo, nil))
	acc := createAccount(t, repo, 1, "1000")
	today := core.NewDate(2024, 3, 10)

	sched, err := svc.Create(context.Background(), 1, core.RecurringSchedule{
		SourceAccountID: acc.ID,
		Amount:          dec("10"),
		Type:            core.Expense,
		Frequency:       core.Monthly,
		StartDate:       core.NewDate(2024, 4, 1),
	}, today)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	amount := dec("25")
	updated, err := svc.Update(context.Background(), 1, sched.ID, ScheduleUpdate{
		Amount: &amount,
	}, today)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if !updated.NextRunDate.Equal(sched.NextRunDate) {
		t.Fatalf("next_run_date changed without start/frequency edit: %s", updated.NextRunDate)
	}
	if !updated.Amount.Equal(amount) {
		t.Fatalf("amount = %s, want 25", updated.Amount)
	}
}

func TestScheduleUpdateTransferToExpenseDropsDestination(t *testing.T) {
	repo := newTestRepo(t)
	svc := NewScheduleService(repo, NewCatchUpEngine(repo, nil))
	source := createAccount(t, repo, 1, "1000")
	dest := createAccount(t, repo, 1, "0")
	today := core.NewDate(2024, 3, 10)

	sched, err := svc.Create(context.Background(), 1, core.RecurringSchedule{
		SourceAccountID:      source.ID,
		DestinationAccountID: &dest.ID,
		Amount:               dec("50"),
		Type:                 core.Transfer,
		Frequency:            core.Monthly,
		StartDate:            core.NewDate(2024, 4, 1),
	}, today)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	newType := core.Expense
	updated, err := svc.Update(context.Background(), 1, sched.ID, ScheduleUpdate{
		Type: &newType,
	}, today)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Type != core.Expense {
		t.Fatalf("type = %s, want EXPENSE", updated.Type)
	}
	if updated.DestinationAccountID != nil {
		t.Fatal("destination should be dropped when the type leaves TRANSFER")
	}
}

func TestScheduleUserDeactivationRecordsReason(t *testing.T) {
	repo := newTestRepo(t)
	svc := NewScheduleService(repo, NewCatchUpEngine(repo, nil))
	acc := createAccount(t, repo, 1, "1000")
	today := core.NewDate(2024, 3, 10)

	sched, err := svc.Create(context.Background(), 1, core.RecurringSchedule{
		SourceAccountID: acc.ID,
		Amount:          dec("10"),
		Type:            core.Expense,
		Frequency:       core.Daily,
		StartDate:       core.NewDate(2024, 4, 1),
	}, today)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	inactive := false
	updated, err := svc.Update(context.Background(), 1, sched.ID, ScheduleUpdate{
		IsActive: &inactive,
	}, today)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.IsActive {
		t.Fatal("schedule should be inactive")
	}
	if updated.DeactivatedReason != core.DeactivatedByUser {
		t.Fatalf("reason = %q, want %q", updated.DeactivatedReason, core.DeactivatedByUser)
	}

	active := true
	updated, err = svc.Update(context.Background(), 1, sched.ID, ScheduleUpdate{
		IsActive: &active,
	}, today)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if !updated.IsActive || updated.DeactivatedReason != "" {
		t.Fatalf("reactivation should clear reason, got %q", updated.DeactivatedReason)
	}
}

func TestScheduleListRunsCatchUpFirst(t *testing.T) {
	repo := newTestRepo(t)
	engine := NewCatchUpEngine(repo, nil)
	svc := NewScheduleService(repo, engine)
	acc := createAccount(t, repo, 1, "1000")
	today := core.NewDate(2024, 3, 10)

	createRawSchedule(t, repo, &core.RecurringSchedule{
		UserID:          1,
		SourceAccountID: acc.ID,
		Amount:          dec("10"),
		Type:            core.Expense,
		Frequency:       core.Daily,
		StartDate:       core.NewDate(2024, 3, 8),
		NextRunDate:     core.NewDate(2024, 3, 8),
		IsActive:        true,
	})

	schedules, err := svc.List(context.Background(), 1, today)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(schedules) != 1 {
		t.Fatalf("schedules = %d, want 1", len(schedules))
	}
	// The listing must already reflect the caught-up state.
	if !schedules[0].NextRunDate.After(today) {
		t.Fatalf("next_run_date = %s, expected past today", schedules[0].NextRunDate)
	}
	requireBalance(t, repo, acc.ID, "970")
}

func TestScheduleDelete(t *testing.T) {
	repo := newTestRepo(t)
	svc := NewScheduleService(repo, NewCatchUpEngine(repo, nil))
	acc := createAccount(t, repo, 1, "1000")
	today := core.NewDate(2024, 3, 10)

	sched, err := svc.Create(context.Background(), 1, core.RecurringSchedule{
		SourceAccountID: acc.ID,
		Amount:          dec("10"),
		Type:            core.Expense,
		Frequency:       core.Daily,
		StartDate:       core.NewDate(2024, 4, 1),
	}, today)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := svc.Delete(context.Background(), 2, sched.ID); !errors.Is(err, core.ErrNotOwned) {
		t.Fatalf("expected ErrNotOwned for foreign delete, got %v", err)
	}
	if err := svc.Delete(context.Background(), 1, sched.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	schedules, err := repo.Queries().ListSchedulesByUser(context.Background(), 1)
	if err != nil {
		t.Fatalf("ListSchedulesByUser: %v", err)
	}
	if len(schedules) != 0 {
		t.Fatalf("schedules = %d, want 0", len(schedules))
	}
}
