package models

import "time"

// ExecutionStatus is the outcome of one compound journal run.
type ExecutionStatus string

const (
	ExecutionStatusSuccess ExecutionStatus = "success"
	ExecutionStatusSkipped ExecutionStatus = "skipped"
	ExecutionStatusFailed  ExecutionStatus = "failed"
)

// CompoundJournalExecutionLog records one run of a definition. It is
// immutable once written. The context snapshot makes every run reproducible
// for audit regardless of outcome.
type CompoundJournalExecutionLog struct {
	ID              string            `json:"id"`
	DefinitionID    string            `json:"definition_id"`
	ExecutedAt      time.Time         `json:"executed_at"`
	Automatic       bool              `json:"automatic"`
	Status          ExecutionStatus   `json:"status"`
	Message         string            `json:"message,omitempty"`
	JournalEntryID  *string           `json:"journal_entry_id,omitempty"`
	ContextSnapshot map[string]string `json:"context_snapshot,omitempty"`
}
