// Package web provides HTTP request and response types for the approval
// and compound journal API.
package web

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ledgerops/approvia/pkg/models"
)

// SubmitDocumentRequest is the request body for submitting a document into
// the approval workflow.
type SubmitDocumentRequest struct {
	DocumentType string            `json:"document_type" validate:"required"`
	DocumentID   string            `json:"document_id"   validate:"required"`
	Amount       decimal.Decimal   `json:"amount"`
	CurrencyID   string            `json:"currency_id"   validate:"required"`
	BranchID     *string           `json:"branch_id,omitempty"`
	InitiatorID  string            `json:"initiator_id"  validate:"required"`
	Fields       map[string]string `json:"fields,omitempty"`
}

// RecordActionRequest is the request body for recording an approval action
// against an instance's current step.
type RecordActionRequest struct {
	UserID   string `json:"user_id"  validate:"required"`
	Decision string `json:"decision" validate:"required,oneof=approve reject skip"`
	Notes    string `json:"notes,omitempty"`
}

// CreateJournalDefinitionRequest is the request body for creating a
// compound journal definition. The template is kept raw so it can be
// schema-checked before deserialization.
type CreateJournalDefinitionRequest struct {
	Name               string          `json:"name"         validate:"required,min=3"`
	Template           json.RawMessage `json:"template"     validate:"required"`
	TriggerType        string          `json:"trigger_type" validate:"required,oneof=manual one_time recurring"`
	Active             bool            `json:"active"`
	RunOnApproval      bool            `json:"run_on_approval"`
	StartDate          *time.Time      `json:"start_date,omitempty"`
	EndDate            *time.Time      `json:"end_date,omitempty"`
	Recurrence         *string         `json:"recurrence,omitempty"  validate:"omitempty,oneof=daily weekly monthly yearly"`
	RecurrenceInterval int             `json:"recurrence_interval,omitempty"`
}

// RunJournalDefinitionRequest is the request body for a manual run.
// Overrides take precedence over the definition's default context.
type RunJournalDefinitionRequest struct {
	Overrides map[string]string `json:"overrides,omitempty"`
}

// InstanceResponse is the API shape of a workflow instance.
type InstanceResponse struct {
	ID               string                  `json:"id"`
	DefinitionID     string                  `json:"definition_id"`
	DocumentType     models.DocumentType     `json:"document_type"`
	DocumentID       string                  `json:"document_id"`
	Amount           decimal.Decimal         `json:"amount"`
	BaseAmount       decimal.Decimal         `json:"base_amount"`
	CurrencyID       string                  `json:"currency_id"`
	BranchID         *string                 `json:"branch_id,omitempty"`
	Status           models.InstanceStatus   `json:"status"`
	CurrentStepOrder int                     `json:"current_step_order"`
	InitiatorID      string                  `json:"initiator_id"`
	Actions          []models.WorkflowAction `json:"actions"`
	CreatedAt        time.Time               `json:"created_at"`
	UpdatedAt        time.Time               `json:"updated_at"`
}

func newInstanceResponse(instance *models.WorkflowInstance) InstanceResponse {
	return InstanceResponse{
		ID:               instance.ID,
		DefinitionID:     instance.DefinitionID,
		DocumentType:     instance.DocumentType,
		DocumentID:       instance.DocumentID,
		Amount:           instance.Amount,
		BaseAmount:       instance.BaseAmount,
		CurrencyID:       instance.CurrencyID,
		BranchID:         instance.BranchID,
		Status:           instance.Status,
		CurrentStepOrder: instance.CurrentStepOrder,
		InitiatorID:      instance.InitiatorID,
		Actions:          instance.Actions,
		CreatedAt:        instance.CreatedAt,
		UpdatedAt:        instance.UpdatedAt,
	}
}
