package models

import "github.com/shopspring/decimal"

// DocumentRef is the snapshot of a financial document handed to the engine
// at submission. Fields seeds the compound journal run context when a run
// is triggered by a document event.
type DocumentRef struct {
	Type        DocumentType      `json:"type"         validate:"required"`
	ID          string            `json:"id"           validate:"required"`
	Amount      decimal.Decimal   `json:"amount"`
	CurrencyID  string            `json:"currency_id"  validate:"required"`
	BranchID    *string           `json:"branch_id,omitempty"`
	InitiatorID string            `json:"initiator_id" validate:"required"`
	Fields      map[string]string `json:"fields,omitempty"`
}
