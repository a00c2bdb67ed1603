package amqp

import (
	"encoding/json"
	"time"
)

// TransactionRecordedEvent is published after a transaction commits.
// It carries only identifiers and the signed summary; consumers fetch the
// full row from storage if they need it.
type TransactionRecordedEvent struct {
	TransactionID int64     `json:"transaction_id"`
	ScheduleID    *int64    `json:"schedule_id,omitempty"`
	Type          string    `json:"type"`
	Amount        string    `json:"amount"`
	Timestamp     time.Time `json:"timestamp"`
}

func NewTransactionRecordedEvent(transactionID int64, scheduleID *int64, txType, amount string) *TransactionRecordedEvent {
	return &TransactionRecordedEvent{
		TransactionID: transactionID,
		ScheduleID:    scheduleID,
		Type:          txType,
		Amount:        amount,
		Timestamp:     time.Now(),
	}
}

func (e *TransactionRecordedEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// ScheduleDeactivatedEvent is published when the catch-up engine retires a
// schedule whose account disappeared.
type ScheduleDeactivatedEvent struct {
	ScheduleID int64     `json:"schedule_id"`
	UserID     int64     `json:"user_id"`
	Reason     string    `json:"reason"`
	Timestamp  time.Time `json:"timestamp"`
}

func NewScheduleDeactivatedEvent(scheduleID, userID int64, reason string) *ScheduleDeactivatedEvent {
	return &ScheduleDeactivatedEvent{
		ScheduleID: scheduleID,
		UserID:     userID,
		Reason:     reason,
		Timestamp:  time.Now(),
	}
}

func (e *ScheduleDeactivatedEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}
