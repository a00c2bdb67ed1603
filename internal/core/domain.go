package core

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	Income   TransactionType = "INCOME"
	Expense  TransactionType = "EXPENSE"
	Transfer TransactionType = "TRANSFER"
)

const (
	Daily   Frequency = "DAILY"
	Weekly  Frequency = "WEEKLY"
	Monthly Frequency = "MONTHLY"
	Yearly  Frequency = "YEARLY"
)

// Reasons recorded when a schedule is deactivated, so a user-initiated pause
// can be told apart from the engine retiring a schedule whose account is gone.
const (
	DeactivatedByUser             DeactivationReason = "user"
	DeactivatedMissingSource      DeactivationReason = "missing_source"
	DeactivatedMissingDestination DeactivationReason = "missing_destination"
)

type (
	TransactionType    string
	Frequency          string
	DeactivationReason string

	// Date is a calendar date with day resolution. The time-of-day part is
	// always midnight UTC so that comparisons are date-only.
	Date struct {
		time.Time
	}

	Account struct {
		ID        int64
		UserID    int64
		Name      string
		Type      string
		Balance   decimal.Decimal
		CreatedAt time.Time
	}

	Category struct {
		ID       int64
		UserID   int64
		ParentID *int64
		Name     string
		Icon     string
		Type     TransactionType
	}

	Transaction struct {
		ID                   int64
		SourceAccountID      int64
		DestinationAccountID *int64
		CategoryID           *int64
		Amount               decimal.Decimal
		Type                 TransactionType
		Description          string
		TransactionDate      Date
		CreatedAt            time.Time
	}

	RecurringSchedule struct {
		ID                   int64
		UserID               int64
		SourceAccountID      int64
		DestinationAccountID *int64
		CategoryID           *int64
		Amount               decimal.Decimal
		Type                 TransactionType
		Description          string
		Frequency            Frequency
		StartDate            Date
		NextRunDate          Date
		IsActive             bool
		DeactivatedReason    DeactivationReason
	}

	Budget struct {
		ID         int64
		UserID     int64
		CategoryID int64
		Amount     decimal.Decimal
		Month      int
		Year       int
	}
)

var (
	ErrInvalidAmount      = errors.New("amount must be positive")
	ErrInvalidType        = errors.New("invalid transaction type")
	ErrInvalidFrequency   = errors.New("invalid frequency")
	ErrMissingDestination = errors.New("transfer requires a destination account")
	ErrUnexpectedCategory = errors.New("transfer cannot carry a category")
	ErrNotOwned           = errors.New("resource does not belong to user")
	ErrAccountGone        = errors.New("referenced account no longer exists")
)

// NewDate builds a Date at midnight UTC.
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates a timestamp to its calendar date.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return NewDate(y, int(m), d)
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return Date{}, err
	}
	return Date{Time: t}, nil
}

func (d Date) String() string {
	return d.Format("2006-01-02")
}

// After reports whether d falls on a later calendar day than o.
func (d Date) After(o Date) bool {
	return d.Time.After(o.Time)
}

// Before reports whether d falls on an earlier calendar day than o.
func (d Date) Before(o Date) bool {
	return d.Time.Before(o.Time)
}

func (d Date) Equal(o Date) bool {
	return d.Time.Equal(o.Time)
}

func (t TransactionType) Valid() bool {
	switch t {
	case Income, Expense, Transfer:
		return true
	}
	return false
}

func (f Frequency) Valid() bool {
	switch f {
	case Daily, Weekly, Monthly, Yearly:
		return true
	}
	return false
}

func (t Transaction) Validate() error {
	if !t.Type.Valid() {
		return ErrInvalidType
	}
	if t.Amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if t.TransactionDate.IsZero() {
		return errors.New("transaction date cannot be zero")
	}
	if t.Type == Transfer {
		if t.DestinationAccountID == nil {
			return ErrMissingDestination
		}
		if t.CategoryID != nil {
			return ErrUnexpectedCategory
		}
	} else if t.DestinationAccountID != nil {
		return errors.New("destination account only allowed on transfers")
	}
	if len(t.Description) > 200 {
		return errors.New("description too long (max 200 characters)")
	}
	return nil
}

func (s RecurringSchedule) Validate() error {
	if !s.Type.Valid() {
		return ErrInvalidType
	}
	if !s.Frequency.Valid() {
		return ErrInvalidFrequency
	}
	if s.Amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if s.StartDate.IsZero() {
		return errors.New("start date cannot be zero")
	}
	if s.Type == Transfer {
		if s.DestinationAccountID == nil {
			return ErrMissingDestination
		}
		if s.CategoryID != nil {
			return ErrUnexpectedCategory
		}
	} else if s.DestinationAccountID != nil {
		return errors.New("destination account only allowed on transfers")
	}
	if len(s.Description) > 200 {
		return errors.New("description too long (max 200 characters)")
	}
	return nil
}

func (b Budget) Validate() error {
	if b.Amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if b.Month < 1 || b.Month > 12 {
		return errors.New("invalid budget month")
	}
	if b.Year < 1 {
		return errors.New("invalid budget year")
	}
	return nil
}

// RecurringTag prefixes a schedule description the way materialized
// transactions are labelled in the ledger.
func RecurringTag(description string) string {
	if strings.TrimSpace(description) == "" {
		return "[Recurring transaction]"
	}
	return "[Recurring] " + description
}
