package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// EntryStatus is the posting status a generated journal entry is created with.
type EntryStatus string

const (
	EntryStatusDraft  EntryStatus = "draft"
	EntryStatusPosted EntryStatus = "posted"
)

// JournalLine is a single debit or credit posting inside an entry.
type JournalLine struct {
	ID           string          `json:"id"`
	EntryID      string          `json:"entry_id"`
	AccountID    string          `json:"account_id"`
	Description  string          `json:"description,omitempty"`
	CostCenterID *string         `json:"cost_center_id,omitempty"`
	Debit        decimal.Decimal `json:"debit"`
	Credit       decimal.Decimal `json:"credit"`
}

// JournalEntry is the balanced ledger entry synthesized from a template.
// TotalDebit always equals TotalCredit for a persisted entry.
type JournalEntry struct {
	ID                 string          `json:"id"`
	Number             string          `json:"number"`
	Status             EntryStatus     `json:"status"`
	BranchID           *string         `json:"branch_id,omitempty"`
	Date               time.Time       `json:"date"`
	Description        string          `json:"description,omitempty"`
	Lines              []JournalLine   `json:"lines"`
	TotalDebit         decimal.Decimal `json:"total_debit"`
	TotalCredit        decimal.Decimal `json:"total_credit"`
	SourceDefinitionID *string         `json:"source_definition_id,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
}
