package log

// Common field names for structured logging
const (
	FieldComponent        = "component"
	FieldError            = "error"
	FieldUserID           = "user_id"
	FieldScheduleID       = "schedule_id"
	FieldTransactionID    = "transaction_id"
	FieldSourceAccountID  = "source_account_id"
	FieldBudgetID         = "budget_id"
	FieldCategoryID       = "category_id"
	FieldAmount           = "amount"
	FieldType             = "type"
	FieldFrequency        = "frequency"
	FieldTransactionDate  = "transaction_date"
	FieldNextRunDate      = "next_run_date"
	FieldIsActive         = "is_active"
	FieldReason           = "reason"
	FieldMonth            = "month"
	FieldYear             = "year"
	FieldExchange         = "exchange"
	FieldProcessed        = "processed"
	FieldSchedulesChecked = "schedules_checked"
)

// ComponentWorker tags log lines emitted by the recurring worker daemon.
const ComponentWorker = "worker"
