// Package models defines the core domain models for approval workflows and compound journals.
package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// DocumentType discriminates the financial documents a workflow definition can govern.
type DocumentType string

const (
	DocumentTypePaymentVoucher      DocumentType = "payment_voucher"
	DocumentTypeDynamicScreenEntry  DocumentType = "dynamic_screen_entry"
	DocumentTypeReceiptVoucher      DocumentType = "receipt_voucher"
	DocumentTypeDisbursementVoucher DocumentType = "disbursement_voucher"
	DocumentTypeAssetExpense        DocumentType = "asset_expense"
)

func (t DocumentType) Valid() bool {
	switch t {
	case DocumentTypePaymentVoucher,
		DocumentTypeDynamicScreenEntry,
		DocumentTypeReceiptVoucher,
		DocumentTypeDisbursementVoucher,
		DocumentTypeAssetExpense:
		return true
	default:
		return false
	}
}

// ApprovalMode controls how a definition's steps are executed. Linear is the
// only implemented mode; the enum exists so future modes don't change the schema.
type ApprovalMode string

const ApprovalModeLinear ApprovalMode = "linear"

// WorkflowDefinition is the routing configuration for one document type.
// Steps are evaluated in ascending Order.
type WorkflowDefinition struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"          validate:"required,min=3"`
	DocumentType DocumentType   `json:"document_type" validate:"required"`
	BranchID     *string        `json:"branch_id,omitempty"`
	Mode         ApprovalMode   `json:"mode"`
	Active       bool           `json:"active"`
	Steps        []WorkflowStep `json:"steps"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// WorkflowStep is a single approval stop. A step gates on the document's
// branch and base-currency amount; either bound of the amount range may be
// absent, meaning unbounded on that side.
type WorkflowStep struct {
	ID                 string           `json:"id"`
	DefinitionID       string           `json:"definition_id"`
	Order              int              `json:"order"               validate:"gt=0"`
	RequiredPermission string           `json:"required_permission,omitempty"`
	ApproverUserID     *string          `json:"approver_user_id,omitempty"`
	BranchID           *string          `json:"branch_id,omitempty"`
	MinAmount          *decimal.Decimal `json:"min_amount,omitempty"`
	MaxAmount          *decimal.Decimal `json:"max_amount,omitempty"`
}

var (
	ErrInvalidDefinition = errors.New("invalid workflow definition")
	ErrInvalidStep       = errors.New("invalid workflow step")
)

// AppliesTo reports whether this step gates the given document snapshot.
// The amount range is inclusive on both bounds.
func (s WorkflowStep) AppliesTo(branchID *string, baseAmount decimal.Decimal) bool {
	if s.BranchID != nil {
		if branchID == nil || *branchID != *s.BranchID {
			return false
		}
	}

	if s.MinAmount != nil && baseAmount.LessThan(*s.MinAmount) {
		return false
	}

	if s.MaxAmount != nil && baseAmount.GreaterThan(*s.MaxAmount) {
		return false
	}

	return true
}

// Validate checks the definition's structural invariants: known document
// type, a supported mode, and strictly increasing unique step orders.
func (d *WorkflowDefinition) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidDefinition)
	}

	if !d.DocumentType.Valid() {
		return fmt.Errorf("%w: unknown document type %q", ErrInvalidDefinition, d.DocumentType)
	}

	if d.Mode != "" && d.Mode != ApprovalModeLinear {
		return fmt.Errorf("%w: unsupported approval mode %q", ErrInvalidDefinition, d.Mode)
	}

	lastOrder := 0

	for i, step := range d.Steps {
		if step.Order <= 0 {
			return fmt.Errorf("%w: step %d has non-positive order %d", ErrInvalidStep, i, step.Order)
		}

		if step.Order <= lastOrder {
			return fmt.Errorf("%w: step orders must be strictly increasing, got %d after %d", ErrInvalidStep, step.Order, lastOrder)
		}

		if step.RequiredPermission == "" && step.ApproverUserID == nil {
			return fmt.Errorf("%w: step %d needs a required permission or an approver", ErrInvalidStep, step.Order)
		}

		if step.MinAmount != nil && step.MaxAmount != nil && step.MinAmount.GreaterThan(*step.MaxAmount) {
			return fmt.Errorf("%w: step %d has min amount above max amount", ErrInvalidStep, step.Order)
		}

		lastOrder = step.Order
	}

	return nil
}
